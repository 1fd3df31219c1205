// Package feed fetches listing pages from the marketplace API and keeps the
// working collection fresh with a single-flight poller.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

var (
	// ErrMalformedResponse is returned when the body cannot be decoded or
	// lacks the auctions array.
	ErrMalformedResponse = errors.New("malformed listing response")
	// ErrUnsuccessful is returned when the API reports success:false.
	ErrUnsuccessful = errors.New("listing response reported failure")
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected listing response status")
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRate      = 2
	defaultBurst     = 4
	defaultSortBy    = "createdAt"
	defaultSortOrder = "desc"
	maxBodyBytes     = 8 << 20
)

// ClientOptions configures a Client. Zero values select defaults.
type ClientOptions struct {
	Timeout   time.Duration
	SortBy    string
	SortOrder string
	// RatePerSec and Burst bound how often the API is hit, forced refreshes
	// included.
	RatePerSec float64
	Burst      int
	HTTPClient *http.Client
}

// Client fetches listing pages.
type Client struct {
	http      *http.Client
	endpoint  *url.URL
	sortBy    string
	sortOrder string
	limiter   *rate.Limiter
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewClient creates a Client for the listing endpoint at baseURL + "/auctions".
func NewClient(baseURL string, opts ClientOptions, logger *slog.Logger, tp trace.TracerProvider) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing feed base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("feed base url %q must be absolute", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	if opts.SortBy == "" {
		opts.SortBy = defaultSortBy
	}
	if opts.SortOrder == "" {
		opts.SortOrder = defaultSortOrder
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}

	return &Client{
		http:      hc,
		endpoint:  base.JoinPath("auctions"),
		sortBy:    opts.SortBy,
		sortOrder: opts.SortOrder,
		limiter:   rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		logger:    logger,
		tracer:    tp.Tracer("github.com/jensholdgaard/auction-live/internal/feed"),
	}, nil
}

// Page is one decoded listing page. Total is -1 when the response did not
// report one. Rejected holds the records that failed validation.
type Page struct {
	Auctions []auction.Auction
	Rejected []error
	Received int
	Total    int
}

type envelope struct {
	Success *bool `json:"success"`
	Data    *struct {
		Auctions   []json.RawMessage `json:"auctions"`
		Pagination *struct {
			Total *int `json:"total"`
		} `json:"pagination"`
	} `json:"data"`
}

// Fetch requests one page. Every request carries a fresh cache-busting token
// and asks intermediaries not to serve a cached copy.
func (c *Client) Fetch(ctx context.Context, page, pageSize int) (Page, error) {
	ctx, span := c.tracer.Start(ctx, "Client.Fetch",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	p, err := c.fetch(ctx, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, err
	}
	span.SetAttributes(attribute.Int("received", p.Received), attribute.Int("rejected", len(p.Rejected)))
	return p, nil
}

func (c *Client) fetch(ctx context.Context, page, pageSize int) (Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
	q.Set("sortBy", c.sortBy)
	q.Set("sortOrder", c.sortOrder)
	q.Set("_t", uuid.NewString())

	u := *c.endpoint
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("building listing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetching listing page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Page{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env); err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Success == nil {
		return Page{}, fmt.Errorf("%w: success missing", ErrMalformedResponse)
	}
	if !*env.Success {
		return Page{}, ErrUnsuccessful
	}
	if env.Data == nil || env.Data.Auctions == nil {
		return Page{}, fmt.Errorf("%w: auctions missing", ErrMalformedResponse)
	}

	auctions, rejected := auction.DecodeAll(env.Data.Auctions)
	for _, err := range rejected {
		c.logger.WarnContext(ctx, "rejected listing record", slog.Any("error", err))
	}

	total := -1
	if env.Data.Pagination != nil && env.Data.Pagination.Total != nil {
		total = *env.Data.Pagination.Total
	}
	return Page{
		Auctions: auctions,
		Rejected: rejected,
		Received: len(env.Data.Auctions),
		Total:    total,
	}, nil
}
