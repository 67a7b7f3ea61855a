package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/regions/internal/logging"
	"github.com/aretw0/regions/pkg/debounce"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/identity"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/aretw0/regions/pkg/reconcile"
	"github.com/aretw0/regions/pkg/registry"
	"github.com/aretw0/regions/pkg/store"
)

// Workspace binds one rendering surface to its annotation state.
// Every mutation, including settle callbacks fired from the debounce timer,
// is serialized through mu.
type Workspace struct {
	mu sync.Mutex

	renderer ports.Renderer
	records  ports.RecordStore
	images   ports.ImageSource

	surface   string
	tool      string
	toolOpts  domain.ToolOptions
	window    time.Duration
	generator identity.Generator
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	storeOpts []store.Option

	registry   *registry.Registry
	guard      *identity.Guard
	adapter    *store.Adapter
	reconciler *reconcile.Reconciler
	debouncer  *debounce.Debouncer[pending]

	image       *domain.Image
	selection   domain.Selection
	epoch       atomic.Uint64
	unsubscribe func()
	closed      bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

// pending is a completion tagged with the image it was raised for.
type pending struct {
	epoch uint64
	evt   domain.CompletionEvent
}

// Option configures the Workspace.
type Option func(*Workspace)

// WithSurface sets the rendering surface name (default: "main").
func WithSurface(surface string) Option {
	return func(w *Workspace) {
		w.surface = surface
	}
}

// WithTool sets the annotation tool name (default: domain.DefaultTool).
func WithTool(name string) Option {
	return func(w *Workspace) {
		w.tool = name
	}
}

// WithToolOptions sets the options passed when the tool is activated.
func WithToolOptions(opts domain.ToolOptions) Option {
	return func(w *Workspace) {
		w.toolOpts = opts
	}
}

// WithSettleWindow sets the completion debounce window.
func WithSettleWindow(d time.Duration) Option {
	return func(w *Workspace) {
		w.window = d
	}
}

// WithGenerator sets the uid generator.
func WithGenerator(g identity.Generator) Option {
	return func(w *Workspace) {
		w.generator = g
	}
}

// WithLogger configures a logger for the Workspace.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		w.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(w *Workspace) {
		w.hooks = hooks
	}
}

// WithRecordStore overrides the store the renderer exposes.
func WithRecordStore(s ports.RecordStore) Option {
	return func(w *Workspace) {
		w.records = s
	}
}

// WithImageSource resolves image references before decoding.
// Without one, references are passed to the renderer unchanged.
func WithImageSource(src ports.ImageSource) Option {
	return func(w *Workspace) {
		w.images = src
	}
}

// WithStoreOptions forwards options to the external store adapter.
func WithStoreOptions(opts ...store.Option) Option {
	return func(w *Workspace) {
		w.storeOpts = append(w.storeOpts, opts...)
	}
}

// NewWorkspace creates a workspace on top of renderer. If renderer also
// implements ports.RecordStore it is used as the store unless overridden.
func NewWorkspace(renderer ports.Renderer, opts ...Option) (*Workspace, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required: %w", domain.ErrSurfaceMissing)
	}

	w := &Workspace{
		renderer:  renderer,
		surface:   "main",
		tool:      domain.DefaultTool,
		toolOpts:  domain.ToolOptions{MouseButtonMask: 1},
		window:    debounce.DefaultWindow,
		generator: identity.NewGenerator(),
		logger:    logging.NewNop(),
		registry:  registry.New(),
		guard:     identity.NewGuard(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.records == nil {
		rs, ok := renderer.(ports.RecordStore)
		if !ok {
			return nil, errors.New("renderer does not expose a record store; use WithRecordStore")
		}
		w.records = rs
	}
	if w.surface == "" {
		return nil, domain.ErrSurfaceMissing
	}

	w.logger = w.logger.With("surface", w.surface)
	w.baseCtx, w.cancel = context.WithCancel(context.Background())

	adapterOpts := append([]store.Option{
		store.WithGenerator(w.generator),
		store.WithLogger(w.logger),
		store.WithLifecycleHooks(w.hooks),
	}, w.storeOpts...)
	w.adapter = store.New(w.records, renderer, w.surface, w.tool, adapterOpts...)
	w.reconciler = reconcile.New(w.adapter, w.registry, w.guard,
		reconcile.WithSurface(w.surface),
		reconcile.WithLogger(w.logger),
		reconcile.WithLifecycleHooks(w.hooks),
	)
	w.debouncer = debounce.New(w.window, w.settle)

	return w, nil
}

// LoadImage resolves and decodes ref, then replaces the displayed image.
// The previous image's listeners, pending completions, annotations and
// selection are torn down only once the new image is decoded and displayed
// with the tool registered; any earlier failure leaves the workspace untouched.
func (w *Workspace) LoadImage(ctx context.Context, ref string) (domain.Image, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return domain.Image{}, domain.ErrWorkspaceClosed
	}

	if err := w.renderer.Enable(w.surface); err != nil {
		w.logger.Warn("Rendering surface unavailable", "err", err)
		return domain.Image{}, fmt.Errorf("enable surface %q: %w", w.surface, err)
	}

	imageID := ref
	if w.images != nil {
		id, err := w.images.Resolve(ctx, ref)
		if err != nil {
			return domain.Image{}, fmt.Errorf("resolve image %q: %w", ref, err)
		}
		imageID = id
	}

	img, err := w.renderer.LoadImage(ctx, imageID)
	if err != nil {
		w.logger.Error("Image decode failed", "image", imageID, "err", err)
		if ctx.Err() == nil && !errors.Is(err, domain.ErrImageDecode) && !errors.Is(err, domain.ErrImageNotFound) {
			err = fmt.Errorf("%w: %v", domain.ErrImageDecode, err)
		}
		return domain.Image{}, err
	}

	if err := w.renderer.DisplayImage(w.surface, img); err != nil {
		w.logger.Warn("Display failed", "image", img.ID, "err", err)
		return domain.Image{}, fmt.Errorf("display image %q: %w", img.ID, err)
	}
	if err := w.renderer.RegisterTool(w.tool); err != nil {
		return domain.Image{}, fmt.Errorf("register tool %q: %w", w.tool, err)
	}
	if err := w.renderer.SetToolPassive(w.surface, w.tool); err != nil {
		return domain.Image{}, fmt.Errorf("set tool %q passive: %w", w.tool, err)
	}

	prevLabels, prevSel := w.registry.Labels(), w.selection
	w.teardown(ctx)

	epoch := w.epoch.Load()
	w.unsubscribe = w.renderer.OnCompletion(w.surface, func(evt domain.CompletionEvent) {
		w.notify(epoch, evt)
	})
	w.image = &img

	w.logger.Info("Image loaded", "image", img.ID, "width", img.Width, "height", img.Height)
	if w.hooks.OnImageLoaded != nil {
		w.hooks.OnImageLoaded(ctx, &domain.ImageEvent{
			EventBase: domain.NewEventBase(domain.EventImageLoaded, w.surface),
			Image:     img,
		})
	}
	w.emitRegistry(ctx, prevLabels, prevSel)
	return img, nil
}

// Complete forwards a raw completion notification from the engine.
// Notifications for other tools are ignored.
func (w *Workspace) Complete(evt domain.CompletionEvent) {
	w.notify(w.epoch.Load(), evt)
}

// Flush settles a pending completion without waiting for the window to close.
func (w *Workspace) Flush() {
	w.debouncer.Flush()
}

// Add restores every annotation to visible, passive display and activates
// the drawing tool. Selection is unchanged.
func (w *Workspace) Add(ctx context.Context) error {
	w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ready(); err != nil {
		return err
	}

	prevLabels, prevSel := w.registry.Labels(), w.selection
	if _, err := w.reconcileLocked(ctx, domain.TriggerBeforeDraw); err != nil {
		return err
	}
	if err := w.adapter.Passivate(ctx); err != nil {
		return err
	}
	w.registry.SetAllPassive()
	if err := w.renderer.SetToolActive(w.surface, w.tool, w.toolOpts); err != nil {
		return fmt.Errorf("activate tool %q: %w", w.tool, err)
	}
	w.emitRegistry(ctx, prevLabels, prevSel)
	return nil
}

// Edit puts uid in edit focus. When the store cannot activate it, the
// registry is reconciled and the selection is cleared.
func (w *Workspace) Edit(ctx context.Context, uid string) (bool, error) {
	w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ready(); err != nil {
		return false, err
	}

	prevLabels, prevSel := w.registry.Labels(), w.selection
	defer func() { w.emitRegistry(ctx, prevLabels, prevSel) }()

	ok, err := w.adapter.ActivateByUID(ctx, uid)
	if err != nil {
		return false, err
	}
	if !ok {
		if _, err := w.reconcileLocked(ctx, domain.TriggerActivateFailed); err != nil {
			return false, err
		}
		w.setSelection(ctx, domain.NoSelection)
		return false, nil
	}

	if !w.registry.Contains(uid) {
		if _, err := w.reconcileLocked(ctx, domain.TriggerDrift); err != nil {
			return false, err
		}
	}
	w.registry.SetActive(uid)
	w.setSelection(ctx, domain.Selected(uid))
	return true, nil
}

// Delete removes uid from the store and the registry. When removal cannot be
// confirmed the registry is reconciled instead, and the selection is cleared
// only if the selected annotation no longer exists.
func (w *Workspace) Delete(ctx context.Context, uid string) (bool, error) {
	w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ready(); err != nil {
		return false, err
	}

	prevLabels, prevSel := w.registry.Labels(), w.selection
	defer func() { w.emitRegistry(ctx, prevLabels, prevSel) }()

	ok, err := w.adapter.RemoveByUID(ctx, uid)
	if err != nil {
		return false, err
	}
	if !ok {
		if _, err := w.reconcileLocked(ctx, domain.TriggerRemoveFailed); err != nil {
			return false, err
		}
		return false, nil
	}

	removed, _ := w.registry.Get(uid)
	w.registry.Remove(uid)
	w.guard.Forget(uid)
	if w.selection.UID == uid {
		w.setSelection(ctx, domain.NoSelection)
	}

	w.logger.Info("Annotation deleted", "uid", uid, "label", removed.DisplayName)
	if w.hooks.OnAnnotationRemoved != nil {
		w.hooks.OnAnnotationRemoved(ctx, &domain.AnnotationEvent{
			EventBase:   domain.NewEventBase(domain.EventAnnotationRemoved, w.surface),
			UID:         uid,
			DisplayName: removed.DisplayName,
		})
	}
	return true, nil
}

// Reconcile rebuilds the registry from the store on demand.
func (w *Workspace) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ready(); err != nil {
		return domain.ReconcileReport{}, err
	}

	prevLabels, prevSel := w.registry.Labels(), w.selection
	report, err := w.reconcileLocked(ctx, domain.TriggerManual)
	w.emitRegistry(ctx, prevLabels, prevSel)
	return report, err
}

// Labels returns the presentation list in display order.
func (w *Workspace) Labels() []domain.Label {
	return w.registry.Labels()
}

// Annotations returns the registry entries in display order.
func (w *Workspace) Annotations() []domain.Annotation {
	return w.registry.Snapshot()
}

// Counter returns the highest label number issued.
func (w *Workspace) Counter() int {
	return w.registry.Counter()
}

// Selection returns the annotation in edit focus.
func (w *Workspace) Selection() domain.Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selection
}

// Image returns the displayed image.
func (w *Workspace) Image() (domain.Image, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.image == nil {
		return domain.Image{}, false
	}
	return *w.image, true
}

// Close removes the completion listener and drops any pending completion.
// Store contents are left to the engine.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	w.epoch.Add(1)
	w.debouncer.Cancel()
	if w.hooks.OnClosed != nil {
		e := domain.NewEventBase(domain.EventClosed, w.surface)
		w.hooks.OnClosed(w.baseCtx, &e)
	}
	w.cancel()
	return nil
}

func (w *Workspace) notify(epoch uint64, evt domain.CompletionEvent) {
	if evt.Tool != "" && evt.Tool != w.tool {
		return
	}
	w.debouncer.Notify(pending{epoch: epoch, evt: evt})
}

// settle turns one debounced completion into at most one registry entry.
func (w *Workspace) settle(p pending) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.image == nil || p.epoch != w.epoch.Load() {
		w.logger.Debug("Dropped stale completion", "epoch", p.epoch)
		return
	}

	ctx := w.baseCtx
	evt := p.evt
	prevLabels, prevSel := w.registry.Labels(), w.selection

	recs, err := w.adapter.Records(ctx)
	if err != nil {
		w.logger.Warn("Failed to read store on completion", "err", err)
		return
	}

	raw, hasRaw := w.adapter.IdentityOf(evt.Record)
	if !hasRaw && evt.Index >= 0 && evt.Index < len(recs) {
		if id, ok := w.adapter.IdentityAt(evt.Index, recs[evt.Index]); ok && w.guard.Contains(id) {
			w.duplicate(ctx, id)
			return
		}
	}
	if hasRaw && w.guard.Contains(raw) {
		if countUID(w.adapter, recs, raw) <= 1 {
			w.duplicate(ctx, raw)
			return
		}
		w.logger.Debug("Conflicting uid on completion, reassigning", "uid", raw)
		hasRaw = false
	}

	uid := raw
	if !hasRaw {
		uid = identity.Fresh(w.generator, w.guard.Contains)
	}
	if !w.guard.Admit(uid) {
		w.duplicate(ctx, uid)
		return
	}

	index, err := w.locate(ctx, recs, evt, raw)
	if err == nil {
		err = w.adapter.Stamp(ctx, index, uid)
	}
	if err != nil {
		w.guard.Forget(uid)
		w.logger.Warn("Failed to bind completion to store record", "uid", uid, "err", err)
		return
	}

	a, _ := w.registry.Append(uid, evt.Record.Data)
	w.logger.Info("Annotation added", "uid", uid, "label", a.DisplayName)
	if w.hooks.OnAnnotationAdded != nil {
		w.hooks.OnAnnotationAdded(ctx, &domain.AnnotationEvent{
			EventBase:   domain.NewEventBase(domain.EventAnnotationAdded, w.surface),
			UID:         uid,
			DisplayName: a.DisplayName,
		})
	}
	w.emitRegistry(ctx, prevLabels, prevSel)
}

// locate finds the store record a completion refers to. With no usable
// record the completion payload is appended so store and registry agree.
func (w *Workspace) locate(ctx context.Context, recs []domain.Record, evt domain.CompletionEvent, raw string) (int, error) {
	if evt.Index >= 0 && evt.Index < len(recs) {
		id, ok := w.adapter.IdentityAt(evt.Index, recs[evt.Index])
		if !ok || id == raw {
			return evt.Index, nil
		}
	}
	for i := len(recs) - 1; i >= 0; i-- {
		id, ok := w.adapter.IdentityAt(i, recs[i])
		if raw == "" && !ok {
			return i, nil
		}
		if raw != "" && ok && id == raw {
			return i, nil
		}
	}
	return w.adapter.Append(ctx, evt.Record.Clone())
}

func (w *Workspace) duplicate(ctx context.Context, uid string) {
	w.logger.Debug("Duplicate completion suppressed", "uid", uid)
	if w.hooks.OnDuplicate != nil {
		w.hooks.OnDuplicate(ctx, &domain.AnnotationEvent{
			EventBase: domain.NewEventBase(domain.EventDuplicate, w.surface),
			UID:       uid,
		})
	}
}

// teardown clears everything bound to the displayed image. Caller holds mu.
func (w *Workspace) teardown(ctx context.Context) {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	w.epoch.Add(1)
	w.debouncer.Cancel()

	if w.image != nil {
		if err := w.adapter.Clear(ctx); err != nil {
			w.logger.Warn("Failed to clear store on image change", "err", err)
		}
	}
	w.registry.Clear()
	w.guard.Reset()
	w.setSelection(ctx, domain.NoSelection)
	w.image = nil
}

func (w *Workspace) reconcileLocked(ctx context.Context, trigger domain.ReconcileTrigger) (domain.ReconcileReport, error) {
	report, err := w.reconciler.Run(ctx, trigger)
	if err != nil {
		return report, err
	}
	if !w.selection.IsNone() && !w.registry.Contains(w.selection.UID) {
		w.setSelection(ctx, domain.NoSelection)
	}
	return report, nil
}

func (w *Workspace) setSelection(ctx context.Context, next domain.Selection) {
	if next == w.selection {
		return
	}
	prev := w.selection
	w.selection = next
	if w.hooks.OnSelectionChanged != nil {
		w.hooks.OnSelectionChanged(ctx, &domain.SelectionEvent{
			EventBase: domain.NewEventBase(domain.EventSelectionChanged, w.surface),
			Previous:  prev,
			Current:   next,
		})
	}
}

func (w *Workspace) emitRegistry(ctx context.Context, prevLabels []domain.Label, prevSel domain.Selection) {
	labels := w.registry.Labels()
	if prevSel == w.selection && slices.Equal(prevLabels, labels) {
		return
	}
	if w.hooks.OnRegistryChanged != nil {
		w.hooks.OnRegistryChanged(ctx, &domain.RegistryEvent{
			EventBase:         domain.NewEventBase(domain.EventRegistryChanged, w.surface),
			Previous:          prevLabels,
			Labels:            labels,
			PreviousSelection: prevSel,
			Selection:         w.selection,
		})
	}
}

func (w *Workspace) ready() error {
	if w.closed {
		return domain.ErrWorkspaceClosed
	}
	if w.image == nil {
		return domain.ErrNoImage
	}
	return nil
}

func countUID(a *store.Adapter, recs []domain.Record, uid string) int {
	n := 0
	for i, rec := range recs {
		if id, ok := a.IdentityAt(i, rec); ok && id == uid {
			n++
		}
	}
	return n
}
var _ ports.Workspace = (*Workspace)(nil)
