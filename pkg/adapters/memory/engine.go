package memory

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"sync"

	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/ports"
)

// Engine is a headless rendering engine. It implements ports.Renderer,
// ports.RecordStore, ports.Splicer and ports.ImageSource, decoding PNG and
// JPEG images and emitting completion notifications when Draw is called.
type Engine struct {
	*Store

	mu       sync.Mutex
	images   map[string]storedImage
	tools    map[string]struct{}
	surfaces map[string]*surfaceState
	repeat   int
}

type storedImage struct {
	data    []byte
	patient *domain.PatientInfo
}

type surfaceState struct {
	image     *domain.Image
	active    map[string]domain.ToolOptions
	listeners map[int]ports.CompletionListener
	nextID    int
	redraws   int
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithCompletionRepeat makes every Draw emit n completion notifications for the
// same record, the way engines report a region both when it is closed and
// when it is first modified.
func WithCompletionRepeat(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.repeat = n
		}
	}
}

// NewEngine creates a headless engine with an empty store.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		Store:    NewStore(),
		images:   make(map[string]storedImage),
		tools:    make(map[string]struct{}),
		surfaces: make(map[string]*surfaceState),
		repeat:   1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ImageOption configures an uploaded image.
type ImageOption func(*storedImage)

// WithPatient attaches patient metadata to the image.
func WithPatient(p domain.PatientInfo) ImageOption {
	return func(s *storedImage) {
		s.patient = &p
	}
}

// AddImage uploads encoded image bytes under id and returns id.
// Bytes are only decoded on LoadImage.
func (e *Engine) AddImage(id string, data []byte, opts ...ImageOption) string {
	img := storedImage{data: append([]byte(nil), data...)}
	for _, opt := range opts {
		opt(&img)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[id] = img
	return id
}

// Resolve implements ports.ImageSource.
func (e *Engine) Resolve(ctx context.Context, ref string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.images[ref]; !ok {
		return "", fmt.Errorf("%q: %w", ref, domain.ErrImageNotFound)
	}
	return ref, nil
}

// Enable binds a surface.
func (e *Engine) Enable(surface string) error {
	if surface == "" {
		return domain.ErrSurfaceMissing
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.surfaces[surface]; !ok {
		e.surfaces[surface] = &surfaceState{
			active:    make(map[string]domain.ToolOptions),
			listeners: make(map[int]ports.CompletionListener),
		}
	}
	return nil
}

// LoadImage decodes the image header and returns its dimensions.
func (e *Engine) LoadImage(ctx context.Context, imageID string) (domain.Image, error) {
	if err := ctx.Err(); err != nil {
		return domain.Image{}, err
	}

	e.mu.Lock()
	stored, ok := e.images[imageID]
	e.mu.Unlock()
	if !ok {
		return domain.Image{}, fmt.Errorf("%q: %w", imageID, domain.ErrImageNotFound)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(stored.data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("%q: %w: %v", imageID, domain.ErrImageDecode, err)
	}
	return domain.Image{
		ID:      imageID,
		Width:   cfg.Width,
		Height:  cfg.Height,
		Patient: stored.patient,
	}, nil
}

// DisplayImage shows img on the surface. Tool state is reset.
func (e *Engine) DisplayImage(surface string, img domain.Image) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.surfaces[surface]
	if !ok {
		return domain.ErrSurfaceMissing
	}
	s.image = &img
	s.active = make(map[string]domain.ToolOptions)
	return nil
}

// RegisterTool makes name available on every surface.
func (e *Engine) RegisterTool(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[name] = struct{}{}
	return nil
}

// SetToolActive enables drawing with name on surface.
func (e *Engine) SetToolActive(surface, name string, opts domain.ToolOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.surfaceWithTool(surface, name)
	if err != nil {
		return err
	}
	s.active[name] = opts
	return nil
}

// SetToolPassive disables drawing with name on surface.
func (e *Engine) SetToolPassive(surface, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.surfaceWithTool(surface, name)
	if err != nil {
		return err
	}
	delete(s.active, name)
	return nil
}

// OnCompletion registers fn for completion notifications on surface.
func (e *Engine) OnCompletion(surface string, fn ports.CompletionListener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.surfaces[surface]
	if !ok {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Redraw counts a repaint of surface.
func (e *Engine) Redraw(surface string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.surfaces[surface]
	if !ok {
		return domain.ErrSurfaceMissing
	}
	s.redraws++
	return nil
}

// Draw simulates the user closing a region with tool on surface. The record is
// appended to the store and listeners are notified synchronously.
func (e *Engine) Draw(surface, tool string, data map[string]any) (int, error) {
	e.mu.Lock()
	s, ok := e.surfaces[surface]
	if !ok {
		e.mu.Unlock()
		return -1, domain.ErrSurfaceMissing
	}
	if s.image == nil {
		e.mu.Unlock()
		return -1, domain.ErrNoImage
	}
	if _, active := s.active[tool]; !active {
		e.mu.Unlock()
		return -1, fmt.Errorf("%s on %s: %w", tool, surface, domain.ErrToolInactive)
	}
	repeat := e.repeat
	e.mu.Unlock()

	index := e.Store.add(surface, tool, domain.NewRecord(data))
	for i := 0; i < repeat; i++ {
		e.Touch(surface, tool, index)
	}
	return index, nil
}

// Touch re-emits the completion notification for the record at index,
// as engines do when a closed region is modified.
func (e *Engine) Touch(surface, tool string, index int) bool {
	rec, ok := e.Store.at(surface, tool, index)
	if !ok {
		return false
	}
	evt := domain.CompletionEvent{Surface: surface, Tool: tool, Record: rec, Index: index}
	for _, fn := range e.listeners(surface) {
		fn(evt)
	}
	return true
}

// Displayed returns the image shown on surface.
func (e *Engine) Displayed(surface string) (domain.Image, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.surfaces[surface]
	if !ok || s.image == nil {
		return domain.Image{}, false
	}
	return *s.image, true
}

// ToolActive reports whether tool accepts drawing on surface.
func (e *Engine) ToolActive(surface, tool string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.surfaces[surface]
	if !ok {
		return false
	}
	_, active := s.active[tool]
	return active
}

// Listeners returns the number of completion listeners on surface.
func (e *Engine) Listeners(surface string) int {
	return len(e.listeners(surface))
}

// Redraws returns the number of repaints requested for surface.
func (e *Engine) Redraws(surface string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.surfaces[surface]; ok {
		return s.redraws
	}
	return 0
}

func (e *Engine) listeners(surface string) []ports.CompletionListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.surfaces[surface]
	if !ok {
		return nil
	}
	out := make([]ports.CompletionListener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (e *Engine) surfaceWithTool(surface, name string) (*surfaceState, error) {
	s, ok := e.surfaces[surface]
	if !ok {
		return nil, domain.ErrSurfaceMissing
	}
	if _, ok := e.tools[name]; !ok {
		return nil, fmt.Errorf("tool %q is not registered", name)
	}
	return s, nil
}

// PNG encodes a blank width x height image.
func PNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
