package viewer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/layout"
	"github.com/couchcryptid/raintree-service/internal/observability"
	"github.com/couchcryptid/raintree-service/internal/tree"
)

const (
	rhumTree = `{"feature":"rhum","threshold":70,"left":{"label":0},"right":{"label":1}}`
	tavgTree = `{"feature":"tavg","threshold":25,
		"left":{"feature":"wspd","threshold":15,"left":{"label":1},"right":{"label":0}},
		"right":{"label":1}}`
)

// --- fakes ---

// gatedForecaster serves fixed vectors per day. Days with a gate block
// until the gate is closed.
type gatedForecaster struct {
	mu      sync.Mutex
	vectors map[string]tree.FeatureVector
	gates   map[string]chan struct{}
	started chan string
}

func newGatedForecaster() *gatedForecaster {
	return &gatedForecaster{
		vectors: map[string]tree.FeatureVector{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 8),
	}
}

func (f *gatedForecaster) Forecast(_ context.Context, date time.Time) (tree.FeatureVector, error) {
	day := domain.FormatDate(date)
	f.mu.Lock()
	gate := f.gates[day]
	fv, ok := f.vectors[day]
	f.mu.Unlock()

	f.started <- day
	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, domain.DateRangeError(day)
	}
	return fv, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PredictionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.PredictionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func newViewer(opts Options) *Viewer {
	return New(opts, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mustLoad(t *testing.T, v *Viewer, doc string) *Session {
	t.Helper()
	s, err := v.Load(tree.FormatJSON, []byte(doc))
	require.NoError(t, err)
	return s
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

// --- load and state machine ---

func TestViewer_LoadTransitions(t *testing.T) {
	v := newViewer(Options{})

	state, err := v.State()
	assert.Equal(t, StateUnloaded, state)
	assert.NoError(t, err)
	assert.ErrorIs(t, v.CheckReadiness(context.Background()), ErrNotLoaded)

	s := mustLoad(t, v, tavgTree)
	state, err = v.State()
	assert.Equal(t, StateLoaded, state)
	assert.NoError(t, err)
	assert.NoError(t, v.CheckReadiness(context.Background()))
	assert.Equal(t, 5, s.Tree.Len())
	assert.Len(t, s.Layout.Nodes, 5)
	assert.Equal(t, s.Tree.Generation(), s.Layout.Generation)
	assert.Same(t, s, v.Session())
}

func TestViewer_LoadFailureBeforeAnyTree(t *testing.T) {
	v := newViewer(Options{})

	_, err := v.Load(tree.FormatJSON, []byte(`{"feature":"tavg"}`))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	var pe *tree.ParseError
	require.ErrorAs(t, err, &pe)

	state, lastErr := v.State()
	assert.Equal(t, StateError, state)
	assert.Equal(t, err, lastErr)
	assert.Nil(t, v.Session())

	_, err = v.Predict(context.Background(), tree.FeatureVector{"tavg": 1})
	assert.ErrorIs(t, err, ErrNotLoaded)

	mustLoad(t, v, rhumTree)
	state, lastErr = v.State()
	assert.Equal(t, StateLoaded, state, "error is recoverable by a fresh load")
	assert.NoError(t, lastErr)
}

func TestViewer_FailedReloadKeepsPriorTree(t *testing.T) {
	v := newViewer(Options{})
	prior := mustLoad(t, v, rhumTree)
	_, err := v.Predict(context.Background(), tree.FeatureVector{"rhum": 75})
	require.NoError(t, err)

	_, err = v.Load(tree.FormatJSON, []byte(`not json`))
	require.Error(t, err)

	state, lastErr := v.State()
	assert.Equal(t, StateLoaded, state)
	assert.Error(t, lastErr)
	assert.Same(t, prior, v.Session())

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []tree.NodeID{1, 3}, snap.Active.Nodes, "highlight survives a failed reload")
}

func TestViewer_ReloadReplacesEverything(t *testing.T) {
	v := newViewer(Options{})
	first := mustLoad(t, v, tavgTree)
	_, err := v.Predict(context.Background(), tree.FeatureVector{"tavg": 20, "wspd": 10})
	require.NoError(t, err)

	second := mustLoad(t, v, tavgTree)
	assert.Greater(t, second.Tree.Generation(), first.Tree.Generation())

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, second.Tree.Generation(), snap.Generation)
	assert.Empty(t, snap.Active.Nodes, "old ids are discarded on reload")
	assert.Equal(t, second.Tree.Generation(), snap.Active.Generation)
}

func TestViewer_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feature: rhum\nthreshold: 70\nleft: {label: 0}\nright: {label: 1}\n"), 0o600))

	v := newViewer(Options{})
	s, err := v.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Tree.Len())
	assert.Equal(t, path, s.Source)

	_, err = v.LoadFile(filepath.Join(dir, "missing.json"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Same(t, s, v.Session())
}

func TestViewer_MaxDepthFromParser(t *testing.T) {
	v := newViewer(Options{Parser: tree.Parser{MaxDepth: 1}})
	_, err := v.Load(tree.FormatJSON, []byte(tavgTree))
	var pe *tree.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "maximum depth")
}

// --- predictions ---

func TestViewer_Predict(t *testing.T) {
	pub := &recordingPublisher{}
	v := newViewer(Options{Publisher: pub})
	mustLoad(t, v, tavgTree)

	p, err := v.Predict(context.Background(), tree.FeatureVector{"tavg": 20, "wspd": 10})
	require.NoError(t, err)
	assert.Equal(t, tree.LabelRain, p.Result.Label)
	assert.Equal(t, []tree.NodeID{1, 2, 3}, p.Result.Path.IDs)
	assert.Equal(t, []tree.NodeID{1, 2, 3}, p.Diff.NodesToActivate)
	assert.Equal(t, domain.SourceForm, p.Source)

	p2, err := v.Predict(context.Background(), tree.FeatureVector{"tavg": 30})
	require.NoError(t, err)
	assert.Equal(t, []tree.NodeID{1, 2, 3}, p2.Diff.NodesToDeactivate)
	assert.Equal(t, []tree.NodeID{1, 5}, p2.Diff.NodesToActivate)
	assert.Greater(t, p2.Seq, p.Seq)

	require.Len(t, pub.events, 2)
	assert.Equal(t, "Hujan", pub.events[0].LabelName)
	assert.Equal(t, []tree.NodeID{1, 5}, pub.events[1].Path)
}

func TestViewer_PredictMissingFeature(t *testing.T) {
	pub := &recordingPublisher{}
	v := newViewer(Options{Publisher: pub})
	mustLoad(t, v, tavgTree)

	_, err := v.Predict(context.Background(), tree.FeatureVector{"tavg": 30})
	require.NoError(t, err)

	p, err := v.Predict(context.Background(), tree.FeatureVector{"tavg": 20})
	var mfe *tree.MissingFeatureError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, "wspd", mfe.Feature)
	assert.True(t, InsufficientData(err))
	assert.Equal(t, []tree.NodeID{1, 5}, p.Diff.NodesToDeactivate)

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Active.Nodes, "insufficient data clears the highlight")
	assert.Len(t, snap.Nodes, 5, "tree is untouched")
	assert.Len(t, pub.events, 1, "failed predictions are not published")
}

func TestViewer_PredictForDate(t *testing.T) {
	fc := newGatedForecaster()
	fc.vectors["2026-01-06"] = tree.FeatureVector{"rhum": 88}
	v := newViewer(Options{Forecaster: fc})
	mustLoad(t, v, rhumTree)

	p, err := v.PredictForDate(context.Background(), day(t, "2026-01-06"))
	require.NoError(t, err)
	assert.Equal(t, tree.LabelRain, p.Result.Label)
	assert.Equal(t, "2026-01-06", p.Date)
	assert.Equal(t, domain.SourceForecast, p.Source)

	_, err = v.PredictForDate(context.Background(), day(t, "2031-01-01"))
	require.ErrorIs(t, err, domain.ErrDateUnavailable)
	assert.True(t, InsufficientData(err))
}

func TestViewer_PredictForDateDisabled(t *testing.T) {
	v := newViewer(Options{})
	mustLoad(t, v, rhumTree)
	_, err := v.PredictForDate(context.Background(), day(t, "2026-01-06"))
	assert.ErrorIs(t, err, ErrForecastDisabled)
}

func TestViewer_StaleForecastIsDiscarded(t *testing.T) {
	fc := newGatedForecaster()
	fc.vectors["2026-01-05"] = tree.FeatureVector{"rhum": 95}
	fc.vectors["2026-01-06"] = tree.FeatureVector{"rhum": 40}
	fc.gates["2026-01-05"] = make(chan struct{})
	pub := &recordingPublisher{}
	v := newViewer(Options{Forecaster: fc, Publisher: pub})
	mustLoad(t, v, rhumTree)

	slowDay := day(t, "2026-01-05")
	slow := make(chan error, 1)
	go func() {
		_, err := v.PredictForDate(context.Background(), slowDay)
		slow <- err
	}()
	require.Equal(t, "2026-01-05", <-fc.started)

	fast, err := v.PredictForDate(context.Background(), day(t, "2026-01-06"))
	require.NoError(t, err)
	assert.Equal(t, tree.LabelNoRain, fast.Result.Label)

	close(fc.gates["2026-01-05"])
	require.ErrorIs(t, <-slow, ErrStale)

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []tree.NodeID{1, 2}, snap.Active.Nodes, "newer request's highlight wins")
	require.Len(t, pub.events, 1)
	assert.Equal(t, "2026-01-06", pub.events[0].Date)
}

func TestViewer_ManualPredictionSupersedesForecast(t *testing.T) {
	fc := newGatedForecaster()
	fc.vectors["2026-01-05"] = tree.FeatureVector{"rhum": 95}
	fc.gates["2026-01-05"] = make(chan struct{})
	v := newViewer(Options{Forecaster: fc})
	mustLoad(t, v, rhumTree)

	slowDay := day(t, "2026-01-05")
	slow := make(chan error, 1)
	go func() {
		_, err := v.PredictForDate(context.Background(), slowDay)
		slow <- err
	}()
	<-fc.started

	_, err := v.Predict(context.Background(), tree.FeatureVector{"rhum": 10})
	require.NoError(t, err)

	close(fc.gates["2026-01-05"])
	require.ErrorIs(t, <-slow, ErrStale)

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []tree.NodeID{1, 2}, snap.Active.Nodes)
}

func TestViewer_ReloadSupersedesForecast(t *testing.T) {
	fc := newGatedForecaster()
	fc.vectors["2026-01-05"] = tree.FeatureVector{"rhum": 95}
	fc.gates["2026-01-05"] = make(chan struct{})
	v := newViewer(Options{Forecaster: fc})
	mustLoad(t, v, rhumTree)

	slowDay := day(t, "2026-01-05")
	slow := make(chan error, 1)
	go func() {
		_, err := v.PredictForDate(context.Background(), slowDay)
		slow <- err
	}()
	<-fc.started

	mustLoad(t, v, rhumTree)
	close(fc.gates["2026-01-05"])
	require.ErrorIs(t, <-slow, ErrStale)

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Active.Nodes)
}

// --- render data ---

func TestViewer_Snapshot(t *testing.T) {
	v := newViewer(Options{})
	_, err := v.Snapshot()
	require.ErrorIs(t, err, ErrNotLoaded)

	mustLoad(t, v, rhumTree)
	_, err = v.Predict(context.Background(), tree.FeatureVector{"rhum": 75})
	require.NoError(t, err)

	snap, err := v.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 3)
	require.Len(t, snap.Edges, 2)

	root := snap.Nodes[0]
	assert.False(t, root.IsLeaf)
	assert.Equal(t, "Kelembapan Relatif (%) ≤ 70.00", root.FeatureSummary)
	require.NotNil(t, root.Threshold)
	assert.Equal(t, 70.0, *root.Threshold)
	assert.Nil(t, root.Label)
	assert.True(t, root.Active)
	assert.True(t, root.HasChildren)

	noRain := snap.Nodes[1]
	assert.True(t, noRain.IsLeaf)
	require.NotNil(t, noRain.Label)
	assert.Equal(t, tree.LabelNoRain, *noRain.Label)
	assert.False(t, noRain.HasChildren)
	assert.Equal(t, "Tidak Hujan", noRain.ClassName)
	assert.False(t, noRain.Active)
	assert.True(t, snap.Nodes[2].Active)

	assert.Equal(t, RenderEdge{From: 1, To: 2, Branch: layout.BranchLeft, BranchLabel: "YA (≤)"}, snap.Edges[0])
	assert.Equal(t, RenderEdge{From: 1, To: 3, Branch: layout.BranchRight, BranchLabel: "TIDAK (>)", Active: true}, snap.Edges[1])
	assert.Equal(t, layout.Identity, snap.Viewport)
	assert.Equal(t, "upload", snap.Source)
}

func TestViewer_Resize(t *testing.T) {
	v := newViewer(Options{Layout: layout.DefaultParams()})
	_, err := v.Resize(800, 600)
	require.ErrorIs(t, err, ErrNotLoaded)

	s := mustLoad(t, v, rhumTree)
	before := s.Layout

	tf, err := v.Resize(1080, 688)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, tf.Scale, 1e-9)

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, tf, snap.Viewport)
	assert.Equal(t, before, v.Session().Layout, "resize does not move nodes")
}

func TestViewer_ConcurrentUse(t *testing.T) {
	fc := newGatedForecaster()
	fc.vectors["2026-01-06"] = tree.FeatureVector{"tavg": 20, "wspd": 10}
	fc.started = make(chan string, 64)
	v := newViewer(Options{Forecaster: fc})
	mustLoad(t, v, tavgTree)
	forecastDay := day(t, "2026-01-06")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, _ = v.Predict(context.Background(), tree.FeatureVector{"tavg": float64(i * 3)})
			case 1:
				_, _ = v.PredictForDate(context.Background(), forecastDay)
			case 2:
				_, _ = v.Load(tree.FormatJSON, []byte(tavgTree))
			default:
				_, _ = v.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, v.Session().Tree.Generation(), snap.Generation)
	if len(snap.Active.Nodes) > 0 {
		assert.Equal(t, snap.Generation, snap.Active.Generation)
	}
}

func TestViewer_SupersededLoadIsCounted(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	v := New(Options{}, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Build the losing tree first so it holds the older generation.
	root, err := tree.ParseJSON([]byte(tavgTree))
	require.NoError(t, err)
	older, err := v.registry.Build(root)
	require.NoError(t, err)

	mustLoad(t, v, rhumTree)

	err = v.install(&Session{Tree: older, Source: "upload"})
	require.ErrorIs(t, err, ErrStale)
	assert.Equal(t, uint64(2), v.Session().Tree.Generation(), "newer tree stays")

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics.TreeLoads))
	families, err := reg.Gather()
	require.NoError(t, err)
	outcomes := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					outcomes[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"success": 1, "superseded": 1}, outcomes)
}
