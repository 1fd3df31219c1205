package auction_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

func TestDedupe(t *testing.T) {
	in := []auction.Auction{
		{ID: "a", Title: "first a"},
		{ID: "b"},
		{ID: "a", Title: "second a"},
		{ID: "c"},
		{ID: "b"},
	}

	out, dups := auction.Dedupe(in)

	wantIDs := []string{"a", "b", "c"}
	if len(out) != len(wantIDs) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(wantIDs))
	}
	for i, id := range wantIDs {
		if out[i].ID != id {
			t.Errorf("out[%d].ID = %q, want %q", i, out[i].ID, id)
		}
	}
	if out[0].Title != "first a" {
		t.Errorf("kept %q, want the first occurrence", out[0].Title)
	}
	if len(dups) != 2 || dups[0] != "a" || dups[1] != "b" {
		t.Errorf("dups = %v, want [a b]", dups)
	}
}

func TestDedupe_Empty(t *testing.T) {
	out, dups := auction.Dedupe(nil)
	if len(out) != 0 || len(dups) != 0 {
		t.Errorf("Dedupe(nil) = %v, %v; want empty", out, dups)
	}
}

func TestDedupe_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	toAuctions := func(ids []int) []auction.Auction {
		out := make([]auction.Auction, len(ids))
		for i, id := range ids {
			out[i] = auction.Auction{ID: fmt.Sprintf("id-%d", id)}
		}
		return out
	}

	properties.Property("output never exceeds input and has no repeated id", prop.ForAll(
		func(ids []int) bool {
			in := toAuctions(ids)
			out, dups := auction.Dedupe(in)
			if len(out) > len(in) || len(out)+len(dups) != len(in) {
				return false
			}
			seen := make(map[string]bool, len(out))
			for _, a := range out {
				if seen[a.ID] {
					return false
				}
				seen[a.ID] = true
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.Property("dedupe is idempotent", prop.ForAll(
		func(ids []int) bool {
			once, _ := auction.Dedupe(toAuctions(ids))
			twice, dups := auction.Dedupe(once)
			if len(dups) != 0 || len(once) != len(twice) {
				return false
			}
			for i := range once {
				if once[i].ID != twice[i].ID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
