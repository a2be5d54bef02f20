package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/raintree-service/internal/adapter/svg"
	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/highlight"
	"github.com/couchcryptid/raintree-service/internal/tree"
	"github.com/couchcryptid/raintree-service/internal/viewer"
)

// maxTreeBody caps the size of an uploaded tree document.
const maxTreeBody = 4 << 20

// TreeViewer is the part of viewer.Viewer the HTTP API drives.
type TreeViewer interface {
	sharedobs.ReadinessChecker
	Snapshot() (viewer.Snapshot, error)
	Load(format tree.Format, data []byte) (*viewer.Session, error)
	Predict(ctx context.Context, features tree.FeatureVector) (viewer.Prediction, error)
	PredictForDate(ctx context.Context, date time.Time) (viewer.Prediction, error)
}

// Server exposes health, readiness and metrics endpoints plus the tree API.
type Server struct {
	httpServer *http.Server
	viewer     TreeViewer
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api routes.
func NewServer(addr string, v TreeViewer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		viewer: v,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(v))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/tree", s.handleGetTree)
	mux.HandleFunc("GET /api/tree.svg", s.handleGetTreeSVG)
	mux.HandleFunc("POST /api/tree", s.handleLoadTree)
	mux.HandleFunc("POST /api/predict", s.handlePredict)
	mux.HandleFunc("GET /api/predict", s.handlePredictForDate)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleGetTree(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.viewer.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetTreeSVG(w http.ResponseWriter, r *http.Request) {
	width, err := queryInt(r, "width")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", err))
		return
	}
	height, err := queryInt(r, "height")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", err))
		return
	}

	snap, err := s.viewer.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Render fully before writing so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := svg.Render(&buf, snap, svg.Options{Width: width, Height: height}); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck // client went away
}

type loadResponse struct {
	Status     string   `json:"status"`
	Generation uint64   `json:"generation"`
	Nodes      int      `json:"nodes"`
	Depth      int      `json:"depth"`
	Features   []string `json:"features"`
}

func (s *Server) handleLoadTree(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTreeBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("too_large", err))
		return
	}

	session, err := s.viewer.Load(tree.FormatFromContentType(r.Header.Get("Content-Type")), data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t := session.Tree
	writeJSON(w, http.StatusOK, loadResponse{
		Status:     "loaded",
		Generation: t.Generation(),
		Nodes:      t.Len(),
		Depth:      t.MaxDepth(),
		Features:   t.Features(),
	})
}

type predictionResponse struct {
	Status     string             `json:"status"`
	Seq        uint64             `json:"seq"`
	Source     domain.Source      `json:"source"`
	Date       string             `json:"date,omitempty"`
	Generation uint64             `json:"generation,omitempty"`
	Label      *tree.Label        `json:"label,omitempty"`
	LabelName  string             `json:"label_name,omitempty"`
	Path       []tree.NodeID      `json:"path,omitempty"`
	Features   tree.FeatureVector `json:"features,omitempty"`
	Diff       highlight.DiffSet  `json:"diff"`
	Error      string             `json:"error,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	// Pointers let explicit nulls count as missing values.
	var body map[string]*float64
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTreeBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", fmt.Errorf("decode features: %w", err)))
		return
	}
	features := make(tree.FeatureVector, len(body))
	for name, v := range body {
		if v != nil {
			features[name] = *v
		}
	}

	p, err := s.viewer.Predict(r.Context(), features)
	s.writePrediction(w, p, err)
}

func (s *Server) handlePredictForDate(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", err))
		return
	}

	p, err := s.viewer.PredictForDate(r.Context(), date)
	s.writePrediction(w, p, err)
}

func (s *Server) writePrediction(w http.ResponseWriter, p viewer.Prediction, err error) {
	resp := predictionResponse{
		Seq:      p.Seq,
		Source:   p.Source,
		Date:     p.Date,
		Features: p.Features,
		Diff:     p.Diff,
	}
	switch {
	case err == nil:
		label := p.Result.Label
		resp.Status = "ok"
		resp.Generation = p.Result.Path.Generation
		resp.Label = &label
		resp.LabelName = domain.ClassName(label)
		resp.Path = p.Result.Path.IDs
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, viewer.ErrStale):
		resp.Status = "superseded"
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
	case viewer.InsufficientData(err):
		resp.Status = "insufficient_data"
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
	default:
		s.writeError(w, err)
	}
}

// writeError maps viewer and parse errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var pe *tree.ParseError
	switch {
	case errors.Is(err, viewer.ErrNotLoaded):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("not_loaded", err))
	case errors.Is(err, viewer.ErrForecastDisabled):
		writeJSON(w, http.StatusNotFound, errorBody("forecast_disabled", err))
	case errors.Is(err, viewer.ErrStale):
		writeJSON(w, http.StatusConflict, errorBody("superseded", err))
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("invalid_tree", err))
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("error", err))
	}
}

func errorBody(status string, err error) map[string]string {
	return map[string]string{"status": status, "error": err.Error()}
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
