package auction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingID is returned for wire records without an identity.
var ErrMissingID = errors.New("auction record has no id")

// wireTime accepts RFC 3339 strings, epoch milliseconds or null.
type wireTime struct {
	ts Timestamp
}

func (w *wireTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		w.ts = Timestamp{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			w.ts = Timestamp{Malformed: true, Raw: string(b)}
			return nil
		}
		w.ts = ParseTimestamp(s)
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		w.ts = Timestamp{Malformed: true, Raw: string(b)}
		return nil
	}
	w.ts = At(time.UnixMilli(int64(ms)).UTC())
	return nil
}

// wireNumber accepts a JSON number, a numeric string or null.
type wireNumber struct {
	v     float64
	valid bool
}

func (n *wireNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = wireNumber{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = wireNumber{}
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*n = wireNumber{v: f, valid: true}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = wireNumber{v: f, valid: true}
	return nil
}

func (n wireNumber) asInt() int { return int(n.v) }

func (n wireNumber) asPtr() *float64 {
	if !n.valid {
		return nil
	}
	v := n.v
	return &v
}

type wireLocation struct {
	City string `json:"city"`
	Area string `json:"area"`
}

type wireCar struct {
	Brand     string       `json:"brand"`
	Model     string       `json:"model"`
	Year      wireNumber   `json:"year"`
	Condition string       `json:"condition"`
	Mileage   wireNumber   `json:"mileage"`
	Location  wireLocation `json:"location"`
	Images    []string     `json:"images"`
	Status    string       `json:"status"`
	Owner     string       `json:"owner"`
}

type wireBid struct {
	Amount    wireNumber `json:"amount"`
	Bidder    string     `json:"bidder"`
	Timestamp wireTime   `json:"timestamp"`
}

type wireAuction struct {
	ID                 string     `json:"id"`
	DocID              string     `json:"_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	StartingPrice      wireNumber `json:"startingPrice"`
	CurrentPrice       wireNumber `json:"currentPrice"`
	ReservePrice       wireNumber `json:"reservePrice"`
	BidCount           wireNumber `json:"bidCount"`
	StartDate          wireTime   `json:"startDate"`
	EndDate            wireTime   `json:"endDate"`
	CreatedAt          wireTime   `json:"createdAt"`
	UpdatedAt          wireTime   `json:"updatedAt"`
	Status             string     `json:"status"`
	WinnerName         string     `json:"winnerName"`
	BuyerName          string     `json:"buyerName"`
	Featured           bool       `json:"featured"`
	PromotionTier      string     `json:"promotionTier"`
	PromotionPriority  wireNumber `json:"promotionPriority"`
	PromotionExpiresAt wireTime   `json:"promotionExpiresAt"`
	Car                wireCar    `json:"car"`
	Bids               []wireBid  `json:"bids"`
}

// Decode validates a single wire record into an Auction.
func Decode(raw json.RawMessage) (Auction, error) {
	var w wireAuction
	if err := json.Unmarshal(raw, &w); err != nil {
		return Auction{}, fmt.Errorf("decoding auction: %w", err)
	}

	id := strings.TrimSpace(w.ID)
	if id == "" {
		id = strings.TrimSpace(w.DocID)
	}
	if id == "" {
		return Auction{}, ErrMissingID
	}

	winner := w.WinnerName
	if winner == "" {
		winner = w.BuyerName
	}

	a := Auction{
		ID:            id,
		Title:         w.Title,
		Description:   w.Description,
		StartingPrice: w.StartingPrice.v,
		CurrentPrice:  w.CurrentPrice.v,
		ReservePrice:  w.ReservePrice.asPtr(),
		BidCount:      w.BidCount.asInt(),

		StartTime: w.StartDate.ts,
		EndTime:   w.EndDate.ts,
		CreatedAt: w.CreatedAt.ts,
		UpdatedAt: w.UpdatedAt.ts,

		Status:     ParseFlag(w.Status),
		WinnerName: strings.TrimSpace(winner),

		Featured:           w.Featured,
		PromotionTier:      w.PromotionTier,
		PromotionPriority:  w.PromotionPriority.asInt(),
		PromotionExpiresAt: w.PromotionExpiresAt.ts,

		Car: Car{
			Brand:     w.Car.Brand,
			Model:     w.Car.Model,
			Year:      w.Car.Year.asInt(),
			Condition: w.Car.Condition,
			Mileage:   w.Car.Mileage.asInt(),
			Location:  Location{City: w.Car.Location.City, Area: w.Car.Location.Area},
			Images:    w.Car.Images,
			Status:    ParseFlag(w.Car.Status),
			OwnerID:   w.Car.Owner,
		},
	}

	if len(w.Bids) > 0 {
		a.Bids = make([]Bid, 0, len(w.Bids))
		for _, b := range w.Bids {
			a.Bids = append(a.Bids, Bid{Amount: b.Amount.v, BidderID: b.Bidder, Time: b.Timestamp.ts})
		}
	}
	if a.BidCount == 0 {
		a.BidCount = len(a.Bids)
	}
	return a, nil
}

// DecodeAll validates every record. Records that fail validation are left
// out of the result and reported through the returned errors, so one bad
// record never discards the rest of the page.
func DecodeAll(raws []json.RawMessage) ([]Auction, []error) {
	out := make([]Auction, 0, len(raws))
	var errs []error
	for i, raw := range raws {
		a, err := Decode(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		out = append(out, a)
	}
	return out, errs
}
