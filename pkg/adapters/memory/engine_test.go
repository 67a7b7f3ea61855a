package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	ports.RunRecordStoreContract(t, memory.NewStore())
}

func TestEngine_Contract(t *testing.T) {
	ports.RunRecordStoreContract(t, memory.NewEngine())
}

func TestEngine_LoadImage(t *testing.T) {
	ctx := context.Background()
	e := memory.NewEngine()
	patient := domain.PatientInfo{Name: "Doe", BirthDate: "19800101", Sex: "F"}
	e.AddImage("ct-1", memory.PNG(8, 4), memory.WithPatient(patient))
	e.AddImage("broken", []byte("not an image"))

	img, err := e.LoadImage(ctx, "ct-1")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 4, img.Height)
	require.NotNil(t, img.Patient)
	assert.Equal(t, "Doe", img.Patient.Name)

	_, err = e.LoadImage(ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrImageDecode)

	_, err = e.LoadImage(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrImageNotFound)

	_, err = e.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrImageNotFound)
}

func TestEngine_Draw(t *testing.T) {
	ctx := context.Background()
	e := memory.NewEngine(memory.WithCompletionRepeat(2))
	e.AddImage("img", memory.PNG(2, 2))

	const surface, tool = "main", domain.DefaultTool
	require.NoError(t, e.Enable(surface))
	require.NoError(t, e.RegisterTool(tool))

	_, err := e.Draw(surface, tool, nil)
	assert.ErrorIs(t, err, domain.ErrNoImage)

	img, err := e.LoadImage(ctx, "img")
	require.NoError(t, err)
	require.NoError(t, e.DisplayImage(surface, img))

	_, err = e.Draw(surface, tool, nil)
	assert.ErrorIs(t, err, domain.ErrToolInactive)

	var events []domain.CompletionEvent
	remove := e.OnCompletion(surface, func(evt domain.CompletionEvent) {
		events = append(events, evt)
	})
	require.NoError(t, e.SetToolActive(surface, tool, domain.ToolOptions{MouseButtonMask: 1}))

	idx, err := e.Draw(surface, tool, map[string]any{"points": 3})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	require.Len(t, events, 2)
	assert.Equal(t, 0, events[1].Index)
	assert.Equal(t, 3, events[0].Record.Data["points"])

	remove()
	_, err = e.Draw(surface, tool, nil)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 0, e.Listeners(surface))

	require.NoError(t, e.SetToolPassive(surface, tool))
	assert.False(t, e.ToolActive(surface, tool))
	assert.Error(t, e.SetToolActive(surface, "Unknown", domain.ToolOptions{}))
}

func TestStore_FailRemovals(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.AddRecord(ctx, "s", "t", domain.NewRecord(nil)))
	require.NoError(t, s.AddRecord(ctx, "s", "t", domain.NewRecord(nil)))

	s.FailRemovals(true)
	require.NoError(t, s.RemoveRecordAt(ctx, "s", "t", 0))
	recs, _ := s.Records(ctx, "s", "t")
	assert.Len(t, recs, 2)

	assert.True(t, s.Drop("s", "t", 0))
	recs, _ = s.Records(ctx, "s", "t")
	assert.Len(t, recs, 1)

	s.FailRemovals(false)
	s.HideSiblingsOnRemoval(true)
	require.NoError(t, s.AddRecord(ctx, "s", "t", domain.NewRecord(nil)))
	require.NoError(t, s.RemoveRecordAt(ctx, "s", "t", 0))
	recs, _ = s.Records(ctx, "s", "t")
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Visible)
}
