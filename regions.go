package regions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/regions/internal/logging"
	"github.com/aretw0/regions/internal/runtime"
	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/identity"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/aretw0/regions/pkg/store"
)

// Viewer is the high-level entry point of the library.
// It wraps the internal workspace and provides the presentation commands.
type Viewer struct {
	ws       *runtime.Workspace
	renderer ports.Renderer
	logger   *slog.Logger
	Name     string
}

type config struct {
	renderer  ports.Renderer
	records   ports.RecordStore
	images    ports.ImageSource
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	surface   string
	tool      string
	window    time.Duration
	generator identity.Generator
	storeOpts []store.Option
	toolOpts  *domain.ToolOptions
	name      string
}

// Option defines a functional option for configuring the Viewer.
type Option func(*config)

// WithRenderer injects the rendering engine. Defaults to a headless memory engine.
func WithRenderer(r ports.Renderer) Option {
	return func(c *config) {
		c.renderer = r
	}
}

// WithRecordStore overrides the annotation store exposed by the renderer.
func WithRecordStore(s ports.RecordStore) Option {
	return func(c *config) {
		c.records = s
	}
}

// WithImageSource resolves image references before decoding.
func WithImageSource(src ports.ImageSource) Option {
	return func(c *config) {
		c.images = src
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) {
		c.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithSurface sets the rendering surface name.
func WithSurface(surface string) Option {
	return func(c *config) {
		c.surface = surface
	}
}

// WithTool sets the annotation tool name.
func WithTool(name string) Option {
	return func(c *config) {
		c.tool = name
	}
}

// WithToolOptions sets the options used when the drawing tool is activated.
func WithToolOptions(opts domain.ToolOptions) Option {
	return func(c *config) {
		c.toolOpts = &opts
	}
}

// WithSettleWindow sets the completion debounce window.
func WithSettleWindow(d time.Duration) Option {
	return func(c *config) {
		c.window = d
	}
}

// WithGenerator sets the uid generator.
func WithGenerator(g identity.Generator) Option {
	return func(c *config) {
		c.generator = g
	}
}

// WithIdentityFields sets the ordered record fields probed for a uid.
func WithIdentityFields(fields ...string) Option {
	return func(c *config) {
		c.storeOpts = append(c.storeOpts, store.WithIdentityFields(fields...))
	}
}

// WithLegacyRemoval toggles the single-record and rebuild removal fallbacks.
func WithLegacyRemoval(enabled bool) Option {
	return func(c *config) {
		c.storeOpts = append(c.storeOpts, store.WithLegacyRemoval(enabled))
	}
}

// WithRedrawPasses isolates engines that need several redraws to converge.
func WithRedrawPasses(n int) Option {
	return func(c *config) {
		c.storeOpts = append(c.storeOpts, store.WithRedrawPasses(n))
	}
}

// WithName labels the viewer in logs.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// New initializes a Viewer. Without WithRenderer a headless memory engine is
// used for rendering, storage and image resolution.
func New(opts ...Option) (*Viewer, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.renderer == nil {
		engine := memory.NewEngine()
		cfg.renderer = engine
		if cfg.images == nil {
			cfg.images = engine
		}
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNop()
	}
	if cfg.name != "" {
		cfg.logger = cfg.logger.With("viewer", cfg.name)
	}

	rtOpts := []runtime.Option{
		runtime.WithLogger(cfg.logger),
		runtime.WithLifecycleHooks(cfg.hooks),
		runtime.WithStoreOptions(cfg.storeOpts...),
	}
	if cfg.records != nil {
		rtOpts = append(rtOpts, runtime.WithRecordStore(cfg.records))
	}
	if cfg.images != nil {
		rtOpts = append(rtOpts, runtime.WithImageSource(cfg.images))
	}
	if cfg.surface != "" {
		rtOpts = append(rtOpts, runtime.WithSurface(cfg.surface))
	}
	if cfg.tool != "" {
		rtOpts = append(rtOpts, runtime.WithTool(cfg.tool))
	}
	if cfg.toolOpts != nil {
		rtOpts = append(rtOpts, runtime.WithToolOptions(*cfg.toolOpts))
	}
	if cfg.window > 0 {
		rtOpts = append(rtOpts, runtime.WithSettleWindow(cfg.window))
	}
	if cfg.generator != nil {
		rtOpts = append(rtOpts, runtime.WithGenerator(cfg.generator))
	}

	ws, err := runtime.NewWorkspace(cfg.renderer, rtOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Viewer{
		ws:       ws,
		renderer: cfg.renderer,
		logger:   cfg.logger,
		Name:     cfg.name,
	}, nil
}

// Renderer returns the rendering engine in use.
func (v *Viewer) Renderer() ports.Renderer {
	return v.renderer
}

// LoadImage displays a new image, discarding the annotations of the previous one.
func (v *Viewer) LoadImage(ctx context.Context, ref string) (domain.Image, error) {
	return v.ws.LoadImage(ctx, ref)
}

// Complete forwards a raw completion notification from the rendering engine.
func (v *Viewer) Complete(evt domain.CompletionEvent) {
	v.ws.Complete(evt)
}

// Flush settles a pending completion immediately.
func (v *Viewer) Flush() {
	v.ws.Flush()
}

// Add starts a new drawing action.
func (v *Viewer) Add(ctx context.Context) error {
	return v.ws.Add(ctx)
}

// Edit puts an annotation in edit focus.
func (v *Viewer) Edit(ctx context.Context, uid string) (bool, error) {
	return v.ws.Edit(ctx, uid)
}

// Delete removes an annotation.
func (v *Viewer) Delete(ctx context.Context, uid string) (bool, error) {
	return v.ws.Delete(ctx, uid)
}

// Reconcile rebuilds the label list from the annotation store.
func (v *Viewer) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	return v.ws.Reconcile(ctx)
}

// Labels returns the ordered label list.
func (v *Viewer) Labels() []domain.Label {
	return v.ws.Labels()
}

// Selection returns the annotation in edit focus.
func (v *Viewer) Selection() domain.Selection {
	return v.ws.Selection()
}

// Image returns the displayed image.
func (v *Viewer) Image() (domain.Image, bool) {
	return v.ws.Image()
}

// Close releases listeners and timers.
func (v *Viewer) Close() error {
	if err := v.ws.Close(); err != nil {
		v.logger.Warn("Failed to close viewer", "err", err)
		return err
	}
	v.logger.Info("Viewer closed", "labels", len(v.ws.Labels()), "issued", v.ws.Counter())
	return nil
}

var _ ports.Workspace = (*Viewer)(nil)
