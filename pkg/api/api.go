// Package api exposes the session triggers over HTTP: start and cancel a
// search, send text or an image, read the status and scrape metrics.
//
//	GET  /status   session snapshot as JSON
//	POST /search   {"host": "..."} host optional
//	POST /cancel
//	POST /text     {"text": "..."}
//	POST /image    raw image body (PNG, JPEG, GIF, BMP, WebP)
//	GET  /metrics  Prometheus exposition
package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/frame"
	"github.com/ws3ds/ws3ds-go/pkg/session"
)

// DefaultMaxImageBytes limits uploaded images.
const DefaultMaxImageBytes = 8 << 20

// Controller is the session surface driven by the API.
// Implemented by *session.Client.
type Controller interface {
	Start(ctx context.Context, opts session.StartOptions) error
	Cancel()
	Status() session.Status
	SendText(text string) error
	SendImage(img image.Image) error
}

// Options configures the handler.
type Options struct {
	// Logger is the optional request logger.
	Logger *slog.Logger

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// MaxImageBytes limits /image bodies. Default: DefaultMaxImageBytes.
	MaxImageBytes int64
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State    string    `json:"state"`
	SearchID string    `json:"search_id,omitempty"`
	Address  string    `json:"address,omitempty"`
	Since    time.Time `json:"since"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Host string `json:"host,omitempty"`
}

// TextRequest is the body of POST /text.
type TextRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type server struct {
	ctrl    Controller
	logger  *slog.Logger
	maxBody int64
}

// NewHandler returns the HTTP handler for ctrl.
func NewHandler(ctrl Controller, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	s := &server{
		ctrl:    ctrl,
		logger:  opts.Logger.With("component", "api"),
		maxBody: opts.MaxImageBytes,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/status", s.status)
	r.Post("/search", s.search)
	r.Post("/cancel", s.cancel)
	r.Post("/text", s.text)
	r.Post("/image", s.image)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusBody())
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	// The search outlives the request.
	ctx := context.WithoutCancel(r.Context())
	if err := s.ctrl.Start(ctx, session.StartOptions{Host: req.Host}); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.statusBody())
}

func (s *server) cancel(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Cancel()
	writeJSON(w, http.StatusOK, s.statusBody())
}

func (s *server) text(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctrl.SendText(req.Text); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) image(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	img, format, err := frame.Decode(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctrl.SendImage(img); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.logger.Debug("image sent", "format", format, "bounds", img.Bounds().String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) statusBody() StatusResponse {
	st := s.ctrl.Status()
	resp := StatusResponse{State: st.State.String(), SearchID: st.SearchID, Since: st.Since}
	if !st.Address.IsZero() {
		resp.Address = st.Address.String()
	}
	return resp
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, discovery.ErrUnresolved):
		return http.StatusUnprocessableEntity
	case errors.Is(err, discovery.ErrInvalidHost), errors.Is(err, frame.ErrBufferSize),
		errors.Is(err, frame.ErrInvalidDimensions):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
