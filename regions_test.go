package regions_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/aretw0/regions"
	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacade_DefaultEngine(t *testing.T) {
	v, err := regions.New(regions.WithName("default"))
	require.NoError(t, err)
	defer v.Close()

	engine, ok := v.Renderer().(*memory.Engine)
	require.True(t, ok)
	engine.AddImage("img", memory.PNG(4, 4))

	ctx := context.Background()
	img, err := v.LoadImage(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)

	_, err = v.LoadImage(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrImageNotFound)
}

func TestFacade_CustomSurfaceAndTool(t *testing.T) {
	ctx := context.Background()
	engine := memory.NewEngine()
	engine.AddImage("img", memory.PNG(4, 4))

	var n int
	gen := identity.GeneratorFunc(func() string {
		n++
		return "roi-" + strings.Repeat("x", n)
	})

	var added []string
	v, err := regions.New(
		regions.WithRenderer(engine),
		regions.WithRecordStore(engine.Store),
		regions.WithImageSource(engine),
		regions.WithSurface("left"),
		regions.WithTool("Lasso"),
		regions.WithToolOptions(domain.ToolOptions{MouseButtonMask: 2}),
		regions.WithGenerator(gen),
		regions.WithIdentityFields("annotationUID"),
		regions.WithLegacyRemoval(false),
		regions.WithRedrawPasses(2),
		regions.WithLifecycleHooks(domain.LifecycleHooks{
			OnAnnotationAdded: func(_ context.Context, e *domain.AnnotationEvent) {
				added = append(added, e.DisplayName)
			},
		}),
	)
	require.NoError(t, err)
	defer v.Close()

	_, err = v.LoadImage(ctx, "img")
	require.NoError(t, err)
	require.NoError(t, v.Add(ctx))
	_, err = engine.Draw("left", "Lasso", nil)
	require.NoError(t, err)
	v.Flush()

	assert.Equal(t, []domain.Label{{UID: "roi-x", DisplayName: "Label 1"}}, v.Labels())
	assert.Equal(t, []string{"Label 1"}, added)

	ok, err := v.Edit(ctx, "roi-x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.Selected("roi-x"), v.Selection())

	report, err := v.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}

func TestFacade_CloseIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	v, err := regions.New(regions.WithName("scan-7"), regions.WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, v.Close())

	out := buf.String()
	assert.Contains(t, out, "Viewer closed")
	assert.Contains(t, out, "viewer=scan-7")
	assert.Contains(t, out, "labels=0")
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, strings.TrimSpace(regions.Version))
}
