// Package viewer owns the currently loaded tree and its derived state: the
// identity arena, the layout and the highlight. It drives loads and
// predictions and keeps them consistent with each other.
//
// A Session bundles a tree with its layout and is never modified after it
// is built; a reload swaps in a new Session wholesale. Prediction requests
// carry a sequence number so that a slow forecast response can never
// overwrite the result of a request issued after it.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/highlight"
	"github.com/couchcryptid/raintree-service/internal/layout"
	"github.com/couchcryptid/raintree-service/internal/observability"
	"github.com/couchcryptid/raintree-service/internal/tree"
)

var (
	// ErrNotLoaded is returned by operations that need a tree before one
	// has been loaded successfully.
	ErrNotLoaded = errors.New("no tree loaded")
	// ErrStale is returned for a prediction superseded by a newer request
	// or a reload while it was waiting for its features.
	ErrStale = errors.New("prediction superseded by a newer request")
	// ErrForecastDisabled is returned by PredictForDate without a forecaster.
	ErrForecastDisabled = errors.New("forecast source is disabled")
)

// State is the lifecycle of the viewer.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LoadError reports a failed load attempt. It wraps a *tree.ParseError for
// malformed documents, or the I/O error for unreadable sources.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return "load tree: " + e.Err.Error()
	}
	return fmt.Sprintf("load tree from %s: %s", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Session is one loaded tree together with its layout.
type Session struct {
	Tree     *tree.Tree
	Layout   layout.Layout
	Source   string
	LoadedAt time.Time
}

// Publisher receives every accepted prediction.
type Publisher interface {
	Publish(ctx context.Context, event domain.PredictionEvent) error
}

// Prediction is the outcome of one prediction request.
type Prediction struct {
	Seq      uint64             `json:"seq"`
	Source   domain.Source      `json:"source"`
	Date     string             `json:"date,omitempty"`
	Features tree.FeatureVector `json:"features"`
	Result   tree.Result        `json:"result"`
	Diff     highlight.DiffSet  `json:"diff"`
}

// Options configures a Viewer.
type Options struct {
	Parser tree.Parser
	Layout layout.Params
	// Forecaster is optional; without it PredictForDate fails with
	// ErrForecastDisabled.
	Forecaster domain.Forecaster
	// Publisher is optional.
	Publisher Publisher
}

// Viewer is safe for concurrent use.
type Viewer struct {
	parser     tree.Parser
	params     layout.Params
	forecaster domain.Forecaster
	publisher  Publisher
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      clockwork.Clock

	mu        sync.Mutex
	registry  *tree.Registry
	state     State
	session   *Session
	lastErr   error
	highlight *highlight.Controller
	seq       uint64
	width     float64
	height    float64
}

// New creates a viewer with no tree loaded.
func New(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Viewer {
	return &Viewer{
		parser:     opts.Parser,
		params:     opts.Layout,
		forecaster: opts.Forecaster,
		publisher:  opts.Publisher,
		metrics:    metrics,
		logger:     logger,
		clock:      clockwork.NewRealClock(),
		registry:   &tree.Registry{MaxDepth: opts.Parser.MaxDepth},
		highlight:  highlight.NewController(nil),
	}
}

// LoadFile loads a tree document from disk, picking the format from the
// file extension.
func (v *Viewer) LoadFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, v.loadFailed(&LoadError{Source: path, Err: err})
	}
	return v.load(tree.FormatFromPath(path), data, path)
}

// Load parses data and replaces the current session. On failure the
// previous session, if any, stays in place.
func (v *Viewer) Load(format tree.Format, data []byte) (*Session, error) {
	return v.load(format, data, "upload")
}

func (v *Viewer) load(format tree.Format, data []byte, source string) (*Session, error) {
	root, err := v.parser.Parse(format, data)
	if err != nil {
		return nil, v.loadFailed(&LoadError{Source: source, Err: err})
	}

	// Parsing and layout run outside the lock; only the swap is serialized.
	v.mu.Lock()
	t, err := v.registry.Build(root)
	v.mu.Unlock()
	if err != nil {
		return nil, v.loadFailed(&LoadError{Source: source, Err: err})
	}
	s := &Session{
		Tree:     t,
		Layout:   layout.Compute(t, v.params),
		Source:   source,
		LoadedAt: v.clock.Now(),
	}
	if err := v.install(s); err != nil {
		return nil, err
	}
	return s, nil
}

// install swaps s in as the current session unless a newer generation is
// already installed.
func (v *Viewer) install(s *Session) error {
	t, source := s.Tree, s.Source

	v.mu.Lock()
	if v.session != nil && v.session.Tree.Generation() > t.Generation() {
		// A concurrent load that started later already won.
		latest := v.session.Tree.Generation()
		v.mu.Unlock()
		v.metrics.TreeLoads.WithLabelValues("superseded").Inc()
		v.logger.Info("discarding superseded tree load", "source", source, "generation", t.Generation(), "latest", latest)
		return &LoadError{Source: source, Err: ErrStale}
	}
	v.session = s
	v.state = StateLoaded
	v.lastErr = nil
	v.highlight = highlight.NewController(t)
	v.seq++ // in-flight predictions belong to the old tree
	v.mu.Unlock()

	v.metrics.TreeLoads.WithLabelValues("success").Inc()
	v.metrics.TreeNodes.Set(float64(t.Len()))
	v.logger.Info("tree loaded",
		"source", source,
		"generation", t.Generation(),
		"nodes", t.Len(),
		"depth", t.MaxDepth(),
		"features", t.Features(),
	)
	return nil
}

func (v *Viewer) loadFailed(err *LoadError) error {
	v.mu.Lock()
	if v.session == nil {
		v.state = StateError
	}
	v.lastErr = err
	v.mu.Unlock()

	v.metrics.TreeLoads.WithLabelValues("error").Inc()
	v.logger.Error("tree load failed", "source", err.Source, "error", err.Err)
	return err
}

// State returns the lifecycle state and the error of the last failed
// load, which is nil after a successful one.
func (v *Viewer) State() (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, v.lastErr
}

// Session returns the current session, or nil before the first
// successful load.
func (v *Viewer) Session() *Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session
}

// CheckReadiness reports whether a tree is loaded.
func (v *Viewer) CheckReadiness(_ context.Context) error {
	if v.Session() == nil {
		return ErrNotLoaded
	}
	return nil
}

// Resize records the viewport size and returns the transform that fits
// the current layout into it. Node positions do not change.
func (v *Viewer) Resize(width, height float64) (layout.Transform, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width, v.height = width, height
	if v.session == nil {
		return layout.Identity, ErrNotLoaded
	}
	return v.session.Layout.Fit(width, height), nil
}

// ClearHighlight deactivates the current highlight.
func (v *Viewer) ClearHighlight() highlight.DiffSet {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.highlight.Clear()
}

// Predict classifies a manually entered feature vector. It also
// supersedes any forecast request still in flight.
func (v *Viewer) Predict(ctx context.Context, features tree.FeatureVector) (Prediction, error) {
	v.mu.Lock()
	if v.session == nil {
		v.mu.Unlock()
		return Prediction{}, ErrNotLoaded
	}
	v.seq++
	p, err := v.applyLocked(Prediction{Seq: v.seq, Source: domain.SourceForm, Features: features})
	v.mu.Unlock()

	return v.finish(ctx, p, err)
}

// PredictForDate fetches the forecast for date and classifies it. If
// another prediction or a reload is issued before the forecast arrives,
// the result is discarded and ErrStale is returned.
func (v *Viewer) PredictForDate(ctx context.Context, date time.Time) (Prediction, error) {
	if v.forecaster == nil {
		return Prediction{}, ErrForecastDisabled
	}

	v.mu.Lock()
	if v.session == nil {
		v.mu.Unlock()
		return Prediction{}, ErrNotLoaded
	}
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	day := domain.FormatDate(date)
	v.logger.Debug("fetching forecast", "date", day, "seq", seq)
	features, fetchErr := v.forecaster.Forecast(ctx, date)

	v.mu.Lock()
	if seq != v.seq {
		latest := v.seq
		v.mu.Unlock()
		v.metrics.StaleResponses.Inc()
		v.metrics.Predictions.WithLabelValues(string(domain.SourceForecast), "superseded").Inc()
		v.logger.Info("discarding stale forecast", "date", day, "seq", seq, "latest", latest)
		return Prediction{Seq: seq, Source: domain.SourceForecast, Date: day}, ErrStale
	}
	var (
		p   Prediction
		err error
	)
	if fetchErr != nil {
		p = Prediction{Seq: seq, Source: domain.SourceForecast, Date: day, Diff: v.highlight.Clear()}
		err = fetchErr
	} else {
		p, err = v.applyLocked(Prediction{Seq: seq, Source: domain.SourceForecast, Date: day, Features: features})
	}
	v.mu.Unlock()

	return v.finish(ctx, p, err)
}

// applyLocked classifies p.Features against the current session and
// updates the highlight. A prediction-time error clears the highlight
// instead. v.mu must be held.
func (v *Viewer) applyLocked(p Prediction) (Prediction, error) {
	res, err := tree.Classify(v.session.Tree, p.Features)
	if err != nil {
		p.Diff = v.highlight.Clear()
		return p, err
	}
	diff, err := v.highlight.ApplyPath(res.Path)
	if err != nil {
		// The path came from the session the controller is bound to.
		return p, fmt.Errorf("apply highlight: %w", err)
	}
	p.Result = res
	p.Diff = diff
	return p, nil
}

// finish records metrics and publishes accepted predictions.
func (v *Viewer) finish(ctx context.Context, p Prediction, err error) (Prediction, error) {
	source := string(p.Source)
	if err != nil {
		outcome := "error"
		if InsufficientData(err) {
			outcome = "insufficient_data"
		}
		v.metrics.Predictions.WithLabelValues(source, outcome).Inc()
		v.logger.Info("prediction without result", "source", source, "date", p.Date, "seq", p.Seq, "error", err)
		return p, err
	}

	outcome := "no_rain"
	if p.Result.Label == tree.LabelRain {
		outcome = "rain"
	}
	v.metrics.Predictions.WithLabelValues(source, outcome).Inc()
	v.metrics.PathLength.Observe(float64(p.Result.Path.Len()))
	v.logger.Debug("prediction", "source", source, "date", p.Date, "seq", p.Seq,
		"label", p.Result.Label, "path", p.Result.Path.IDs)

	if v.publisher != nil {
		event := domain.NewPredictionEvent(p.Result, p.Features, p.Source, p.Date)
		if perr := v.publisher.Publish(ctx, event); perr != nil {
			v.logger.Warn("publish prediction failed", "seq", p.Seq, "error", perr)
		}
	}
	return p, nil
}

// InsufficientData reports whether err is a prediction-time error that
// should be shown inline rather than treated as a failure.
func InsufficientData(err error) bool {
	var mfe *tree.MissingFeatureError
	var fe *domain.FetchError
	return errors.As(err, &mfe) || errors.As(err, &fe)
}
