package auction_test

import (
	"testing"
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

func TestApplyBid(t *testing.T) {
	in := []auction.Auction{{ID: "a", CurrentPrice: 100, BidCount: 1}, {ID: "b"}}

	out, ok := auction.ApplyBid(in, "a", 5000, 3)
	if !ok {
		t.Fatal("ApplyBid() did not match")
	}
	if out[0].CurrentPrice != 5000 || out[0].BidCount != 3 {
		t.Errorf("patched = %+v, want price 5000 and 3 bids", out[0])
	}
	if in[0].CurrentPrice != 100 {
		t.Error("ApplyBid mutated its input")
	}
}

func TestApplyBid_UnknownID(t *testing.T) {
	in := []auction.Auction{{ID: "a", CurrentPrice: 100}}
	out, ok := auction.ApplyBid(in, "zzz", 5000, 3)
	if ok {
		t.Error("ApplyBid() matched an unknown id")
	}
	if &out[0] != &in[0] {
		t.Error("unmatched ApplyBid should return its input")
	}
}

func TestApplySold(t *testing.T) {
	at := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	in := []auction.Auction{{
		ID:      "a",
		Status:  auction.FlagActive,
		EndTime: auction.At(at.Add(time.Hour)),
		Car:     auction.Car{Status: auction.ParseFlag("available")},
	}}

	out, ok := auction.ApplySold(in, "a", at)
	if !ok {
		t.Fatal("ApplySold() did not match")
	}
	got := out[0]
	if got.Status != auction.FlagSold || got.Car.Status != auction.FlagSold {
		t.Errorf("statuses = %q/%q, want SOLD/SOLD", got.Status, got.Car.Status)
	}
	if !got.EndTime.Time.Equal(at) {
		t.Errorf("EndTime = %v, want %v", got.EndTime.Time, at)
	}
	if auction.DeriveStatus(&got, at) != auction.Sold {
		t.Error("patched auction does not resolve to sold")
	}
	if in[0].Status != auction.FlagActive {
		t.Error("ApplySold mutated its input")
	}
}
