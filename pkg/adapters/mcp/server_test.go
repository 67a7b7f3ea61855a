package mcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/regions"
	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/identity"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/aretw0/regions/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *memory.Engine, *session.Manager) {
	t.Helper()
	engine := memory.NewEngine()
	var n int
	mgr := session.NewManager(func(ctx context.Context, id string) (ports.Workspace, error) {
		return regions.New(
			regions.WithRenderer(engine),
			regions.WithSurface(id),
			regions.WithSettleWindow(time.Hour),
			regions.WithGenerator(identity.GeneratorFunc(func() string {
				n++
				return fmt.Sprintf("uid%d", n)
			})),
		)
	})
	t.Cleanup(func() { _ = mgr.CloseAll() })

	s := NewServer(mgr)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s, engine, mgr
}

func TestTools_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, engine, mgr := newTestServer(t)
	engine.AddImage("scan", memory.PNG(3, 2), memory.WithPatient(domain.PatientInfo{
		Name:      "Doe^Jane",
		BirthDate: "19800101",
	}))
	req := mcp.CallToolRequest{}

	// 1. Load
	img, err := s.handleLoadImage(ctx, req, LoadArgs{Ref: "scan"})
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionID, img.SessionID)
	assert.Equal(t, 3, img.Image.Width)
	assert.Equal(t, 46, img.Age)

	// 2. Add and draw twice
	for range 2 {
		_, err = s.handleAdd(ctx, req, SessionArgs{})
		require.NoError(t, err)
		_, err = engine.Draw(DefaultSessionID, domain.DefaultTool, map[string]any{})
		require.NoError(t, err)
		ws, err := mgr.Get(DefaultSessionID)
		require.NoError(t, err)
		ws.Flush()
	}

	list, err := s.handleList(ctx, req, SessionArgs{})
	require.NoError(t, err)
	assert.Equal(t, []domain.Label{
		{UID: "uid1", DisplayName: "Label 1"},
		{UID: "uid2", DisplayName: "Label 2"},
	}, list.Labels)

	// 3. Edit
	edited, err := s.handleEdit(ctx, req, UIDArgs{UID: "uid1"})
	require.NoError(t, err)
	assert.True(t, edited.OK)
	assert.Equal(t, "uid1", edited.Selected)

	// 4. Delete the selected annotation
	deleted, err := s.handleDelete(ctx, req, UIDArgs{UID: "uid1"})
	require.NoError(t, err)
	assert.True(t, deleted.OK)
	assert.Empty(t, deleted.Selected)
	assert.Equal(t, []domain.Label{{UID: "uid2", DisplayName: "Label 2"}}, deleted.Labels)
}

func TestTools_Errors(t *testing.T) {
	ctx := context.Background()
	s, engine, _ := newTestServer(t)
	engine.AddImage("broken", []byte("garbage"))
	req := mcp.CallToolRequest{}

	_, err := s.handleList(ctx, req, SessionArgs{SessionID: "missing"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = s.handleLoadImage(ctx, req, LoadArgs{Ref: "broken"})
	assert.ErrorIs(t, err, domain.ErrImageDecode)

	_, err = s.handleAdd(ctx, req, SessionArgs{})
	assert.ErrorIs(t, err, domain.ErrNoImage)

	_, err = s.handleEdit(ctx, req, UIDArgs{})
	assert.Error(t, err)
}
