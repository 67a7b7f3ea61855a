package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/aretw0/regions"
	"github.com/aretw0/regions/internal/logging"
	"github.com/aretw0/regions/internal/presentation/tui"
	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Script is a recorded interaction replayed against a headless engine.
type Script struct {
	Name   string        `yaml:"name"`
	Window time.Duration `yaml:"window"`
	Images []ImageSpec   `yaml:"images"`
	Steps  []Step        `yaml:"steps"`
}

// ImageSpec declares an image available to load steps.
type ImageSpec struct {
	ID      string              `yaml:"id"`
	Width   int                 `yaml:"width"`
	Height  int                 `yaml:"height"`
	Corrupt bool                `yaml:"corrupt"`
	Patient *domain.PatientInfo `yaml:"patient"`
}

// Step holds exactly one action. Edit and Delete accept a uid or a label
// name. Expect and ExpectSelected may accompany any action and are checked
// after it; ExpectSelected names the selected label, "" for none.
type Step struct {
	Load           string        `yaml:"load"`
	Add            bool          `yaml:"add"`
	Draw           *DrawStep     `yaml:"draw"`
	Touch          *int          `yaml:"touch"`
	Flush          bool          `yaml:"flush"`
	Wait           time.Duration `yaml:"wait"`
	Edit           string        `yaml:"edit"`
	Delete         string        `yaml:"delete"`
	ExternalRemove *int          `yaml:"external_remove"`
	Reconcile      bool          `yaml:"reconcile"`
	Expect         []string      `yaml:"expect"`
	ExpectSelected *string       `yaml:"expect_selected"`
}

// DrawStep simulates the user completing a shape. Data seeds the record,
// e.g. with an engine-assigned uid.
type DrawStep struct {
	Data map[string]any `yaml:"data"`
}

// ReplayOptions configures Replay.
type ReplayOptions struct {
	Out    io.Writer
	Render func(string) (string, error)
	Logger *slog.Logger
	Quiet  bool
}

// ReplayResult is the state after the last step.
type ReplayResult struct {
	Steps     int
	Labels    []domain.Label
	Selection domain.Selection
}

// LoadScript parses a replay script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript parses a replay script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, step := range s.Steps {
		if n := step.actions(); n != 1 {
			return nil, fmt.Errorf("step %d: expected exactly one action, got %d", i+1, n)
		}
	}
	return &s, nil
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Load != "", s.Add, s.Draw != nil, s.Touch != nil, s.Flush, s.Wait > 0,
		s.Edit != "", s.Delete != "", s.ExternalRemove != nil, s.Reconcile,
	} {
		if set {
			n++
		}
	}
	if n == 0 && (s.Expect != nil || s.ExpectSelected != nil) {
		return 1
	}
	return n
}

// Replay runs the script against a fresh headless engine and prints the
// label list after every step.
func Replay(ctx context.Context, script *Script, opts ReplayOptions) (*ReplayResult, error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Render == nil {
		opts.Render = func(md string) (string, error) { return md, nil }
	}

	engine := memory.NewEngine()
	for _, img := range script.Images {
		data := []byte("corrupt")
		if !img.Corrupt {
			data = memory.PNG(max(img.Width, 1), max(img.Height, 1))
		}
		var imgOpts []memory.ImageOption
		if img.Patient != nil {
			imgOpts = append(imgOpts, memory.WithPatient(*img.Patient))
		}
		engine.AddImage(img.ID, data, imgOpts...)
	}

	window := script.Window
	if window <= 0 {
		window = time.Hour // steps flush explicitly
	}
	viewer, err := regions.New(
		regions.WithRenderer(engine),
		regions.WithLogger(opts.Logger),
		regions.WithSettleWindow(window),
		regions.WithName(script.Name),
		regions.WithLifecycleHooks(createDebugHooks(opts.Logger)),
	)
	if err != nil {
		return nil, err
	}
	defer viewer.Close()

	r := &replayer{viewer: viewer, engine: engine, opts: opts}
	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desc, err := r.apply(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, desc, err)
		}
		if err := r.check(step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, desc, err)
		}
		if !opts.Quiet {
			r.print(i+1, desc)
		}
	}

	return &ReplayResult{
		Steps:     len(script.Steps),
		Labels:    viewer.Labels(),
		Selection: viewer.Selection(),
	}, nil
}

// replaySurface is the viewer's default surface.
const replaySurface = "main"

type replayer struct {
	viewer *regions.Viewer
	engine *memory.Engine
	opts   ReplayOptions
}

func (r *replayer) apply(ctx context.Context, s Step) (string, error) {
	switch {
	case s.Load != "":
		img, err := r.viewer.LoadImage(ctx, s.Load)
		if err != nil {
			printSystemMessage(r.opts.Out, "Failed to load %q: %v", s.Load, err)
			return "load " + s.Load, nil
		}
		if img.Patient != nil {
			printSystemMessage(r.opts.Out, "Patient %s, age %d", img.Patient.Name, img.Patient.Age(time.Now()))
		}
		return "load " + s.Load, nil

	case s.Add:
		return "add", r.viewer.Add(ctx)

	case s.Draw != nil:
		_, err := r.engine.Draw(replaySurface, domain.DefaultTool, s.Draw.Data)
		return "draw", err

	case s.Touch != nil:
		if !r.engine.Touch(replaySurface, domain.DefaultTool, *s.Touch) {
			return "touch", fmt.Errorf("no record at index %d", *s.Touch)
		}
		return fmt.Sprintf("touch %d", *s.Touch), nil

	case s.Flush:
		r.viewer.Flush()
		return "flush", nil

	case s.Wait > 0:
		select {
		case <-time.After(s.Wait):
		case <-ctx.Done():
			return "wait", ctx.Err()
		}
		return "wait " + s.Wait.String(), nil

	case s.Edit != "":
		ok, err := r.viewer.Edit(ctx, r.resolve(s.Edit))
		if err == nil && !ok {
			printSystemMessage(r.opts.Out, "Edit %s not confirmed, list reconciled", s.Edit)
		}
		return "edit " + s.Edit, err

	case s.Delete != "":
		ok, err := r.viewer.Delete(ctx, r.resolve(s.Delete))
		if err == nil && !ok {
			printSystemMessage(r.opts.Out, "Delete %s not confirmed, list reconciled", s.Delete)
		}
		return "delete " + s.Delete, err

	case s.ExternalRemove != nil:
		if !r.engine.Drop(replaySurface, domain.DefaultTool, *s.ExternalRemove) {
			return "external_remove", fmt.Errorf("no record at index %d", *s.ExternalRemove)
		}
		return fmt.Sprintf("external_remove %d", *s.ExternalRemove), nil

	case s.Reconcile:
		_, err := r.viewer.Reconcile(ctx)
		return "reconcile", err
	}
	return "expect", nil
}

func (r *replayer) check(s Step) error {
	if s.Expect != nil {
		got := make([]string, 0)
		for _, l := range r.viewer.Labels() {
			got = append(got, l.DisplayName)
		}
		if !slices.Equal(got, s.Expect) {
			return fmt.Errorf("expected labels %v, got %v", s.Expect, got)
		}
	}
	if s.ExpectSelected != nil {
		if got := r.selectedName(); got != *s.ExpectSelected {
			return fmt.Errorf("expected selection %q, got %q", *s.ExpectSelected, got)
		}
	}
	return nil
}

// resolve maps a display name to its uid. Anything else is taken as a uid.
func (r *replayer) resolve(ref string) string {
	for _, l := range r.viewer.Labels() {
		if l.DisplayName == ref {
			return l.UID
		}
	}
	return ref
}

func (r *replayer) selectedName() string {
	sel := r.viewer.Selection()
	for _, l := range r.viewer.Labels() {
		if l.UID == sel.UID {
			return l.DisplayName
		}
	}
	return sel.UID
}

func (r *replayer) print(n int, desc string) {
	md := tui.LabelsMarkdown(fmt.Sprintf("Step %d: %s", n, desc), r.viewer.Labels(), r.viewer.Selection())
	out, err := r.opts.Render(md)
	if err != nil {
		out = md
	}
	fmt.Fprint(r.opts.Out, out)
}
