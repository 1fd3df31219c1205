package report_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jensholdgaard/auction-live/internal/listing"
	"github.com/jensholdgaard/auction-live/internal/report"
)

func TestTable(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	soon := now.Add(90 * time.Minute)
	past := now.Add(-time.Hour)

	records := []listing.DisplayRecord{
		{ID: "a1", Title: "2019 Toyota Corolla", Label: "Live", CurrentPrice: 7250, BidCount: 3, City: "Lahore", Featured: true, EndsAt: &soon},
		{ID: "a2", Title: "2015 Honda Civic", Label: "Sold", Sold: true, CurrentPrice: 9100, EndsAt: &past},
		{ID: "a3", Title: "2021 Suzuki Alto", Label: "Upcoming"},
	}
	p := listing.Pager{Page: 2, PageSize: 12, Total: 30}

	var buf bytes.Buffer
	if err := report.Table(&buf, records, p, now); err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{"a1", "* 2019 Toyota Corolla", "in 1h30m0s", "2025-06-15 11:00", "Upcoming", "page 2 of 3 (30 auctions, 12 per page)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTable_UnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Table(&buf, nil, listing.Pager{Page: 1, PageSize: 12, Total: -1}, time.Now()); err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if !strings.Contains(buf.String(), "page 1 of 1 (unknown auctions") {
		t.Errorf("footer = %q", buf.String())
	}
}
