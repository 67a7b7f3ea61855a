package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/regions/internal/runtime"
	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/identity"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/aretw0/regions/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	surface = "main"
	tool    = domain.DefaultTool
)

type recorder struct {
	mu         sync.Mutex
	added      []string
	removed    []string
	duplicates []string
	reconciles []domain.ReconcileTrigger
	selections []domain.Selection
	registry   int
}

func (r *recorder) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAnnotationAdded: func(_ context.Context, e *domain.AnnotationEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.added = append(r.added, e.UID)
		},
		OnAnnotationRemoved: func(_ context.Context, e *domain.AnnotationEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.removed = append(r.removed, e.UID)
		},
		OnDuplicate: func(_ context.Context, e *domain.AnnotationEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.duplicates = append(r.duplicates, e.UID)
		},
		OnReconciled: func(_ context.Context, e *domain.ReconcileEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.reconciles = append(r.reconciles, e.Report.Trigger)
		},
		OnSelectionChanged: func(_ context.Context, e *domain.SelectionEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.selections = append(r.selections, e.Current)
		},
		OnRegistryChanged: func(_ context.Context, e *domain.RegistryEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.registry++
		},
	}
}

type fixture struct {
	ctx    context.Context
	engine *memory.Engine
	ws     *runtime.Workspace
	events *recorder
}

func sequential() identity.Generator {
	var n atomic.Int64
	return identity.GeneratorFunc(func() string {
		return fmt.Sprintf("uid%d", n.Add(1))
	})
}

func newFixture(t *testing.T, engineOpts []memory.EngineOption, opts ...runtime.Option) *fixture {
	t.Helper()
	return newWrappedFixture(t, memory.NewEngine(engineOpts...), nil, opts...)
}

// newWrappedFixture builds the workspace on wrap(engine) so tests can
// intercept renderer calls. A nil wrap uses the engine directly.
func newWrappedFixture(t *testing.T, engine *memory.Engine, wrap func(*memory.Engine) ports.Renderer, opts ...runtime.Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		engine: engine,
		events: &recorder{},
	}
	var renderer ports.Renderer = f.engine
	if wrap != nil {
		renderer = wrap(f.engine)
	}
	f.engine.AddImage("img-1", memory.PNG(16, 16))
	f.engine.AddImage("img-2", memory.PNG(32, 8))
	f.engine.AddImage("bad", []byte("garbage"))

	base := []runtime.Option{
		runtime.WithSurface(surface),
		runtime.WithImageSource(f.engine),
		runtime.WithGenerator(sequential()),
		runtime.WithSettleWindow(time.Hour),
		runtime.WithLifecycleHooks(f.events.hooks()),
	}
	ws, err := runtime.NewWorkspace(renderer, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	f.ws = ws
	return f
}

func (f *fixture) load(t *testing.T, ref string) {
	t.Helper()
	_, err := f.ws.LoadImage(f.ctx, ref)
	require.NoError(t, err)
}

// draw runs a full user drawing action and settles it.
func (f *fixture) draw(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ws.Add(f.ctx))
	_, err := f.engine.Draw(surface, tool, map[string]any{"points": 5})
	require.NoError(t, err)
	f.ws.Flush()
}

func (f *fixture) storeUIDs(t *testing.T) []string {
	t.Helper()
	recs, err := f.engine.Records(f.ctx, surface, tool)
	require.NoError(t, err)
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, fmt.Sprint(r.Data[domain.FieldUID]))
	}
	return out
}

func labels(pairs ...string) []domain.Label {
	out := make([]domain.Label, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.Label{UID: pairs[i], DisplayName: pairs[i+1]})
	}
	return out
}

func TestWorkspace_ScenarioA(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")

	f.draw(t)
	assert.Equal(t, labels("uid1", "Label 1"), f.ws.Labels())

	f.draw(t)
	assert.Equal(t, labels("uid1", "Label 1", "uid2", "Label 2"), f.ws.Labels())

	ok, err := f.ws.Delete(f.ctx, "uid1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, labels("uid2", "Label 2"), f.ws.Labels())

	f.draw(t)
	assert.Equal(t, labels("uid2", "Label 2", "uid3", "Label 3"), f.ws.Labels())
	assert.Equal(t, []string{"uid2", "uid3"}, f.storeUIDs(t))
	assert.Equal(t, 3, f.ws.Counter())
}

func TestWorkspace_ScenarioB(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)
	f.draw(t)

	ok, err := f.ws.Edit(f.ctx, "uid1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Selected("uid1"), f.ws.Selection())

	require.True(t, f.engine.Drop(surface, tool, 1))

	ok, err = f.ws.Edit(f.ctx, "uid2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, labels("uid1", "Label 1"), f.ws.Labels())
	assert.True(t, f.ws.Selection().IsNone())
	assert.Contains(t, f.events.reconciles, domain.TriggerActivateFailed)
}

func TestWorkspace_EditActivatesRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)
	f.draw(t)

	ok, err := f.ws.Edit(f.ctx, "uid2")
	require.NoError(t, err)
	require.True(t, ok)

	recs, err := f.engine.Records(f.ctx, surface, tool)
	require.NoError(t, err)
	assert.False(t, recs[0].Active)
	assert.True(t, recs[1].Active)

	annotations := f.ws.Annotations()
	assert.False(t, annotations[0].Active)
	assert.True(t, annotations[1].Active)
}

func TestWorkspace_DuplicateSuppressionWithinWindow(t *testing.T) {
	f := newFixture(t, []memory.EngineOption{memory.WithCompletionRepeat(3)},
		runtime.WithSettleWindow(20*time.Millisecond))
	f.load(t, "img-1")

	require.NoError(t, f.ws.Add(f.ctx))
	_, err := f.engine.Draw(surface, tool, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(f.ws.Labels()) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, f.ws.Labels(), 1)
	assert.Equal(t, []string{"uid1"}, f.storeUIDs(t))
}

func TestWorkspace_DuplicateAcrossWindows(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)

	require.True(t, f.engine.Touch(surface, tool, 0))
	f.ws.Flush()

	f.ws.Complete(domain.CompletionEvent{Surface: surface, Tool: tool, Record: domain.NewRecord(nil), Index: 0})
	f.ws.Flush()

	assert.Len(t, f.ws.Labels(), 1)
	assert.Equal(t, []string{"uid1", "uid1"}, f.events.duplicates)
}

func TestWorkspace_RawUIDAdopted(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")

	rec := domain.NewRecord(map[string]any{domain.FieldAnnotationUID: "legacy-1"})
	require.NoError(t, f.engine.AddRecord(f.ctx, surface, tool, rec))
	f.ws.Complete(domain.CompletionEvent{Tool: tool, Record: rec, Index: 0})
	f.ws.Flush()

	assert.Equal(t, labels("legacy-1", "Label 1"), f.ws.Labels())
	assert.Equal(t, []string{"legacy-1"}, f.storeUIDs(t))
}

func TestWorkspace_ConflictingRawUIDReassigned(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")

	rec := domain.NewRecord(map[string]any{domain.FieldUID: "x"})
	require.NoError(t, f.engine.AddRecord(f.ctx, surface, tool, rec))
	f.ws.Complete(domain.CompletionEvent{Tool: tool, Record: rec, Index: 0})
	f.ws.Flush()

	require.NoError(t, f.engine.AddRecord(f.ctx, surface, tool, rec))
	f.ws.Complete(domain.CompletionEvent{Tool: tool, Record: rec, Index: 1})
	f.ws.Flush()

	assert.Equal(t, labels("x", "Label 1", "uid1", "Label 2"), f.ws.Labels())
	assert.Equal(t, []string{"x", "uid1"}, f.storeUIDs(t))
}

func TestWorkspace_CompletionWithoutStoreRecordIsAppended(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")

	f.ws.Complete(domain.CompletionEvent{Tool: tool, Record: domain.NewRecord(map[string]any{"points": 1}), Index: -1})
	f.ws.Flush()

	assert.Equal(t, labels("uid1", "Label 1"), f.ws.Labels())
	assert.Equal(t, []string{"uid1"}, f.storeUIDs(t))
}

func TestWorkspace_OtherToolIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")

	f.ws.Complete(domain.CompletionEvent{Tool: "Length", Record: domain.NewRecord(nil), Index: -1})
	f.ws.Flush()
	assert.Empty(t, f.ws.Labels())
}

func TestWorkspace_DeleteCompleteness(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)
	f.draw(t)

	_, err := f.ws.Edit(f.ctx, "uid2")
	require.NoError(t, err)

	ok, err := f.ws.Delete(f.ctx, "uid2")
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotContains(t, f.storeUIDs(t), "uid2")
	for _, l := range f.ws.Labels() {
		assert.NotEqual(t, "uid2", l.UID)
	}
	assert.True(t, f.ws.Selection().IsNone())
	assert.Equal(t, []string{"uid2"}, f.events.removed)
}

// frameRecorder captures the visible flag of every record each time the
// surface is redrawn.
type frameRecorder struct {
	*memory.Engine

	mu     sync.Mutex
	frames [][]bool
}

func (r *frameRecorder) Redraw(s string) error {
	recs, err := r.Records(context.Background(), s, tool)
	if err != nil {
		return err
	}
	frame := make([]bool, len(recs))
	for i, rec := range recs {
		frame[i] = rec.Visible
	}
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	return r.Engine.Redraw(s)
}

func (r *frameRecorder) last() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

func TestWorkspace_DeleteRestoresVisibility(t *testing.T) {
	var frames *frameRecorder
	f := newWrappedFixture(t, memory.NewEngine(), func(e *memory.Engine) ports.Renderer {
		frames = &frameRecorder{Engine: e}
		return frames
	})
	f.engine.HideSiblingsOnRemoval(true)
	f.load(t, "img-1")
	f.draw(t)
	f.draw(t)

	ok, err := f.ws.Delete(f.ctx, "uid1")
	require.NoError(t, err)
	require.True(t, ok)

	recs, err := f.engine.Records(f.ctx, surface, tool)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Visible)

	// The frame painted after the delete shows the survivor.
	assert.Equal(t, []bool{true}, frames.last())
}

func TestWorkspace_DeleteFailureReconciles(t *testing.T) {
	f := newFixture(t, nil, runtime.WithStoreOptions(store.WithLegacyRemoval(false)))
	f.load(t, "img-1")
	f.draw(t)
	f.draw(t)

	_, err := f.ws.Edit(f.ctx, "uid1")
	require.NoError(t, err)

	f.engine.FailRemovals(true)
	ok, err := f.ws.Delete(f.ctx, "uid2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, labels("uid1", "Label 1", "uid2", "Label 2"), f.ws.Labels())
	assert.Equal(t, domain.Selected("uid1"), f.ws.Selection())
	assert.Contains(t, f.events.reconciles, domain.TriggerRemoveFailed)
}

func TestWorkspace_DeleteFailureClearsVanishedSelection(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)

	_, err := f.ws.Edit(f.ctx, "uid1")
	require.NoError(t, err)
	require.True(t, f.engine.Drop(surface, tool, 0))

	ok, err := f.ws.Delete(f.ctx, "uid1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.ws.Labels())
	assert.True(t, f.ws.Selection().IsNone())
}

func TestWorkspace_DeleteFallsBackToRebuild(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)
	f.draw(t)
	f.engine.FailRemovals(true)

	ok, err := f.ws.Delete(f.ctx, "uid1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"uid2"}, f.storeUIDs(t))
	assert.Equal(t, labels("uid2", "Label 2"), f.ws.Labels())
}

func TestWorkspace_AddRestoresPassiveDisplay(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)
	f.draw(t)

	_, err := f.ws.Edit(f.ctx, "uid1")
	require.NoError(t, err)
	hidden := domain.NewRecord(map[string]any{domain.FieldUID: "uid2"})
	hidden.Visible = false
	require.NoError(t, f.engine.ReplaceRecord(f.ctx, surface, tool, 1, hidden))

	require.NoError(t, f.ws.Add(f.ctx))
	recs, err := f.engine.Records(f.ctx, surface, tool)
	require.NoError(t, err)
	for _, r := range recs {
		assert.True(t, r.Visible)
		assert.False(t, r.Active)
	}
	assert.True(t, f.engine.ToolActive(surface, tool))
	assert.Equal(t, domain.Selected("uid1"), f.ws.Selection())
}

func TestWorkspace_ReconcileAdoptsDrift(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)

	require.NoError(t, f.engine.AddRecord(f.ctx, surface, tool, domain.NewRecord(map[string]any{"points": 9})))
	report, err := f.ws.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Len(t, report.Added, 1)

	got := f.ws.Labels()
	require.Len(t, got, 2)
	assert.Equal(t, "Label 2", got[1].DisplayName)

	again, err := f.ws.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.False(t, again.Changed())
	assert.Equal(t, got, f.ws.Labels())
}

func TestWorkspace_UIDsStayUnique(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	for i := 0; i < 5; i++ {
		f.draw(t)
		require.True(t, f.engine.Touch(surface, tool, i))
		f.ws.Flush()
	}
	_, err := f.ws.Delete(f.ctx, "uid3")
	require.NoError(t, err)
	f.draw(t)

	seen := map[string]bool{}
	for _, l := range f.ws.Labels() {
		assert.False(t, seen[l.UID], "duplicate uid %s", l.UID)
		seen[l.UID] = true
	}
	assert.Equal(t, 6, f.ws.Counter())
}

func TestWorkspace_ImageChangeTearsDown(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)
	_, err := f.ws.Edit(f.ctx, "uid1")
	require.NoError(t, err)

	// A completion still pending for the old image must not leak.
	_, err = f.engine.Draw(surface, tool, nil)
	require.NoError(t, err)

	img, err := f.ws.LoadImage(f.ctx, "img-2")
	require.NoError(t, err)
	assert.Equal(t, 32, img.Width)
	f.ws.Flush()

	assert.Empty(t, f.ws.Labels())
	assert.True(t, f.ws.Selection().IsNone())
	assert.Empty(t, f.storeUIDs(t))
	assert.Equal(t, 1, f.engine.Listeners(surface))
	assert.False(t, f.engine.ToolActive(surface, tool))

	f.draw(t)
	assert.Equal(t, labels("uid2", "Label 2"), f.ws.Labels())
}

func TestWorkspace_DecodeFailureLeavesState(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)

	_, err := f.ws.LoadImage(f.ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrImageDecode)

	_, err = f.ws.LoadImage(f.ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrImageNotFound)

	img, ok := f.ws.Image()
	require.True(t, ok)
	assert.Equal(t, "img-1", img.ID)
	assert.Equal(t, labels("uid1", "Label 1"), f.ws.Labels())
}

// flakyDisplay refuses to display images while broken is set.
type flakyDisplay struct {
	*memory.Engine
	broken atomic.Bool
}

func (d *flakyDisplay) DisplayImage(s string, img domain.Image) error {
	if d.broken.Load() {
		return domain.ErrSurfaceMissing
	}
	return d.Engine.DisplayImage(s, img)
}

func TestWorkspace_DisplayFailureLeavesState(t *testing.T) {
	var display *flakyDisplay
	f := newWrappedFixture(t, memory.NewEngine(), func(e *memory.Engine) ports.Renderer {
		display = &flakyDisplay{Engine: e}
		return display
	})
	f.load(t, "img-1")
	f.draw(t)
	_, err := f.ws.Edit(f.ctx, "uid1")
	require.NoError(t, err)

	display.broken.Store(true)
	_, err = f.ws.LoadImage(f.ctx, "img-2")
	require.ErrorIs(t, err, domain.ErrSurfaceMissing)

	img, ok := f.ws.Image()
	require.True(t, ok)
	assert.Equal(t, "img-1", img.ID)
	assert.Equal(t, labels("uid1", "Label 1"), f.ws.Labels())
	assert.Equal(t, domain.Selected("uid1"), f.ws.Selection())
	recs, err := f.engine.Records(f.ctx, surface, tool)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// The completion listener of the current image is still attached.
	display.broken.Store(false)
	f.draw(t)
	assert.Equal(t, labels("uid1", "Label 1", "uid2", "Label 2"), f.ws.Labels())
}

func TestWorkspace_CommandsRequireImage(t *testing.T) {
	f := newFixture(t, nil)

	assert.ErrorIs(t, f.ws.Add(f.ctx), domain.ErrNoImage)
	_, err := f.ws.Edit(f.ctx, "x")
	assert.ErrorIs(t, err, domain.ErrNoImage)
	_, err = f.ws.Delete(f.ctx, "x")
	assert.ErrorIs(t, err, domain.ErrNoImage)
}

func TestWorkspace_Close(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	require.NoError(t, f.ws.Add(f.ctx))

	require.NoError(t, f.ws.Close())
	assert.Equal(t, 0, f.engine.Listeners(surface))
	assert.ErrorIs(t, f.ws.Add(f.ctx), domain.ErrWorkspaceClosed)
	_, err := f.ws.LoadImage(f.ctx, "img-2")
	assert.ErrorIs(t, err, domain.ErrWorkspaceClosed)
	require.NoError(t, f.ws.Close())
}

func TestWorkspace_HooksFire(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t, "img-1")
	f.draw(t)
	_, err := f.ws.Edit(f.ctx, "uid1")
	require.NoError(t, err)

	assert.Equal(t, []string{"uid1"}, f.events.added)
	assert.Equal(t, []domain.Selection{domain.Selected("uid1")}, f.events.selections)
	assert.Contains(t, f.events.reconciles, domain.TriggerBeforeDraw)
	assert.Positive(t, f.events.registry)
}
