// Package httpapi exposes the listing view over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jensholdgaard/auction-live/internal/health"
	"github.com/jensholdgaard/auction-live/internal/listing"
	"github.com/jensholdgaard/auction-live/internal/signal"
)

// ErrBadQuery is wrapped by every query parameter validation error.
var ErrBadQuery = errors.New("bad query")

// View is the listing view the handlers read and drive.
type View interface {
	Listing(tab listing.Tab, c listing.Criteria) listing.Output
	Pagination() listing.Pager
	Location() string
	Loaded() bool
	SetPage(ctx context.Context, n int) (bool, error)
	Observe(ctx context.Context, id string, ratio float64) error
	Leave(ctx context.Context, id string) error
}

// SignalHandler reacts to external mutation signals.
type SignalHandler interface {
	Handle(ctx context.Context, s signal.Signal) bool
}

// Handler serves the listing API.
type Handler struct {
	view    View
	signals SignalHandler
	health  *health.Handler
	logger  *slog.Logger
}

// NewHandler creates a Handler. health may be nil.
func NewHandler(view View, signals SignalHandler, h *health.Handler, logger *slog.Logger) *Handler {
	return &Handler{view: view, signals: signals, health: h, logger: logger}
}

// Routes builds the router.
func (h *Handler) Routes() *mux.Router {
	router := mux.NewRouter()

	if h.health != nil {
		router.HandleFunc("/healthz", h.health.LivenessHandler()).Methods(http.MethodGet)
		router.HandleFunc("/readyz", h.health.ReadinessHandler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/auctions", h.GetAuctions).Methods(http.MethodGet)
	router.HandleFunc("/page/{n:[0-9]+}", h.SetPage).Methods(http.MethodPost)
	router.HandleFunc("/visibility", h.PostVisibility).Methods(http.MethodPost)
	router.HandleFunc("/signals/{kind}", h.PostSignal).Methods(http.MethodPost)

	router.Use(h.loggingMiddleware)
	return router
}

// ListingResponse is the body of GET /auctions.
type ListingResponse struct {
	Records   []listing.DisplayRecord `json:"records"`
	Matched   int                     `json:"matched"`
	Page      int                     `json:"page"`
	PageSize  int                     `json:"pageSize"`
	Total     int                     `json:"total"`
	PageCount int                     `json:"pageCount"`
	Location  string                  `json:"location"`
	Loaded    bool                    `json:"loaded"`
}

// GetAuctions renders the current page through the tab and criteria given
// in the query string.
func (h *Handler) GetAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tab, err := listing.ParseTab(q.Get("tab"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := ParseCriteria(q)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := h.view.Listing(tab, c)
	p := h.view.Pagination()
	records := out.Records
	if records == nil {
		records = []listing.DisplayRecord{}
	}
	respondJSON(w, http.StatusOK, ListingResponse{
		Records:   records,
		Matched:   out.Matched,
		Page:      p.Page,
		PageSize:  p.PageSize,
		Total:     p.Total,
		PageCount: p.PageCount(),
		Location:  h.view.Location(),
		Loaded:    h.view.Loaded(),
	})
}

// SetPage moves the view to page n.
func (h *Handler) SetPage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(mux.Vars(r)["n"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "page must be a number")
		return
	}
	changed, err := h.view.SetPage(r.Context(), n)
	if err != nil {
		h.logger.WarnContext(r.Context(), "changing page", slog.Int("page", n), slog.Any("error", err))
		respondError(w, http.StatusServiceUnavailable, "view is not running")
		return
	}
	p := h.view.Pagination()
	respondJSON(w, http.StatusOK, map[string]any{
		"changed":  changed,
		"page":     p.Page,
		"location": h.view.Location(),
	})
}

// VisibilityRequest reports one row's viewport intersection.
type VisibilityRequest struct {
	ID    string  `json:"id"`
	Ratio float64 `json:"ratio"`
	Left  bool    `json:"left"`
}

// PostVisibility feeds a viewport observation to the view.
func (h *Handler) PostVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	var err error
	if req.Left {
		err = h.view.Leave(r.Context(), req.ID)
	} else {
		err = h.view.Observe(r.Context(), req.ID, req.Ratio)
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "reporting visibility", slog.String("auction_id", req.ID), slog.Any("error", err))
		respondError(w, http.StatusServiceUnavailable, "view is not running")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// PostSignal forwards an external mutation signal. A storage signal carries
// its key in the optional JSON body.
func (h *Handler) PostSignal(w http.ResponseWriter, r *http.Request) {
	kind, err := signal.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s := signal.Signal{Kind: kind}
	if r.ContentLength != 0 {
		var body struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s.Key = body.Key
	}

	refreshed := h.signals.Handle(r.Context(), s)
	respondJSON(w, http.StatusAccepted, map[string]bool{"refreshed": refreshed})
}

// ParseCriteria reads listing criteria from query parameters. Absent
// parameters leave the criterion inactive.
func ParseCriteria(q url.Values) (listing.Criteria, error) {
	c := listing.Criteria{
		Query:     q.Get("q"),
		City:      q.Get("city"),
		Brand:     q.Get("brand"),
		Model:     q.Get("model"),
		Condition: q.Get("condition"),
		Bucket:    listing.Bucket(strings.ToLower(q.Get("bucket"))),
		TimeLeft:  listing.TimeLeft(strings.ToLower(q.Get("timeLeft"))),
	}

	var errs []error
	intParam := func(name string, dst *int) {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s must be an integer", ErrBadQuery, name))
				return
			}
			*dst = n
		}
	}
	floatParam := func(name string, dst *float64) {
		if v := q.Get(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				errs = append(errs, fmt.Errorf("%w: %s must be a non-negative number", ErrBadQuery, name))
				return
			}
			*dst = f
		}
	}
	intParam("yearFrom", &c.YearFrom)
	intParam("yearTo", &c.YearTo)
	floatParam("priceMin", &c.PriceMin)
	floatParam("priceMax", &c.PriceMax)

	if v := q.Get("featured"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: featured must be a boolean", ErrBadQuery))
		}
		c.FeaturedOnly = b
	}

	switch c.Bucket {
	case "", listing.BucketAll, listing.BucketLive, listing.BucketUpcoming,
		listing.BucketSold, listing.BucketEnded, listing.BucketEndingSoon:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown bucket %q", ErrBadQuery, c.Bucket))
	}
	switch c.TimeLeft {
	case "", listing.TimeLeftAll, listing.TimeLeftHour, listing.TimeLeftDay,
		listing.TimeLeftWeek, listing.TimeLeftOverWeek:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown timeLeft %q", ErrBadQuery, c.TimeLeft))
	}

	return c, errors.Join(errs...)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.code),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}
