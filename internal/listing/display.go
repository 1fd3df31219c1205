package listing

import (
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

// DisplayRecord is the flat projection of an auction that the listing renders.
type DisplayRecord struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Images            []string   `json:"images,omitempty"`
	Brand             string     `json:"brand,omitempty"`
	Model             string     `json:"model,omitempty"`
	Year              int        `json:"year,omitempty"`
	StartingPrice     float64    `json:"startingPrice"`
	CurrentPrice      float64    `json:"currentPrice"`
	ReservePrice      *float64   `json:"reservePrice,omitempty"`
	BidCount          int        `json:"bidCount"`
	City              string     `json:"city,omitempty"`
	Area              string     `json:"area,omitempty"`
	Status            string     `json:"status"`
	Label             string     `json:"label"`
	Sold              bool       `json:"sold"`
	Featured          bool       `json:"featured"`
	PromotionTier     string     `json:"promotionTier,omitempty"`
	PromotionPriority int        `json:"promotionPriority,omitempty"`
	EndsAt            *time.Time `json:"endsAt,omitempty"`
}

var labels = map[auction.DerivedStatus]string{
	auction.Live:     "Live",
	auction.Upcoming: "Upcoming",
	auction.Sold:     "Sold",
	auction.Ended:    "Ended",
}

// Project flattens a with its resolved status.
func Project(a *auction.Auction, status auction.DerivedStatus) DisplayRecord {
	r := DisplayRecord{
		ID:                a.ID,
		Title:             a.Title,
		Images:            a.Car.Images,
		Brand:             a.Car.Brand,
		Model:             a.Car.Model,
		Year:              a.Car.Year,
		StartingPrice:     a.StartingPrice,
		CurrentPrice:      a.EffectivePrice(),
		ReservePrice:      a.ReservePrice,
		BidCount:          a.BidCount,
		City:              a.Car.Location.City,
		Area:              a.Car.Location.Area,
		Status:            string(status),
		Label:             labels[status],
		Sold:              status == auction.Sold,
		Featured:          a.Featured,
		PromotionTier:     a.PromotionTier,
		PromotionPriority: a.PromotionPriority,
	}
	if a.EndTime.Valid {
		t := a.EndTime.Time
		r.EndsAt = &t
	}
	return r
}
