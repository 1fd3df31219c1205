// Package report prints a listing page for operators.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/jensholdgaard/auction-live/internal/listing"
)

// Table writes records as a table followed by a pagination footer.
func Table(w io.Writer, records []listing.DisplayRecord, p listing.Pager, now time.Time) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "ID", "Title", "Status", "Price", "Bids", "City", "Ends")

	for i, r := range records {
		title := r.Title
		if r.Featured {
			title = "* " + title
		}
		if err := table.Append(
			fmt.Sprintf("%d", i+1),
			r.ID,
			title,
			r.Label,
			fmt.Sprintf("%.0f", r.CurrentPrice),
			fmt.Sprintf("%d", r.BidCount),
			r.City,
			ends(r, now),
		); err != nil {
			return fmt.Errorf("appending row %s: %w", r.ID, err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}

	total := "unknown"
	if p.Total >= 0 {
		total = fmt.Sprintf("%d", p.Total)
	}
	_, err := fmt.Fprintf(w, "page %d of %d (%s auctions, %d per page)\n", p.Page, p.PageCount(), total, p.PageSize)
	return err
}

func ends(r listing.DisplayRecord, now time.Time) string {
	if r.EndsAt == nil {
		return "-"
	}
	left := r.EndsAt.Sub(now)
	if left <= 0 || r.Sold {
		return r.EndsAt.UTC().Format("2006-01-02 15:04")
	}
	return "in " + left.Truncate(time.Minute).String()
}
