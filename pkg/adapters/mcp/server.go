package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/regions"
	"github.com/aretw0/regions/internal/logging"
	"github.com/aretw0/regions/internal/sanitize"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/aretw0/regions/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultSessionID is used when a tool call names no session.
const DefaultSessionID = "default"

// LabelsResponse provides a unified structure across adapters.
type LabelsResponse struct {
	SessionID string         `json:"session_id" jsonschema_description:"The session the labels belong to"`
	Labels    []domain.Label `json:"labels" jsonschema_description:"Ordered label list"`
	Selected  string         `json:"selected,omitempty" jsonschema_description:"UID of the annotation in edit focus, if any"`
}

// CommandResponse reports the outcome of an edit or delete.
type CommandResponse struct {
	OK bool `json:"ok" jsonschema_description:"Whether the engine confirmed the command"`
	LabelsResponse
}

// ImageResponse describes the displayed image.
type ImageResponse struct {
	SessionID string       `json:"session_id"`
	Image     domain.Image `json:"image" jsonschema_description:"The decoded image"`
	Age       int          `json:"age,omitempty" jsonschema_description:"Patient age derived from the birth date"`
}

// SessionArgs selects a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// LoadArgs are the arguments of load_image.
type LoadArgs struct {
	SessionID string `json:"session_id"`
	Ref       string `json:"ref"`
}

// UIDArgs are the arguments of the per-annotation commands.
type UIDArgs struct {
	SessionID string `json:"session_id"`
	UID       string `json:"uid"`
}

// Server exposes the presentation commands of each session as MCP tools.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("regions-mcp", strings.TrimSpace(regions.Version)),
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionParam := mcp.WithString("session_id", mcp.Description("Session to act on (default: \"default\")"))

	// TOOL: load_image
	s.mcpServer.AddTool(mcp.NewTool("load_image",
		mcp.WithDescription("Decode and display an image, discarding the annotations of the previous one."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("Image reference known to the engine")),
		sessionParam,
		mcp.WithOutputSchema[ImageResponse](),
	), mcp.NewStructuredToolHandler(s.handleLoadImage))

	// TOOL: add_annotation
	s.mcpServer.AddTool(mcp.NewTool("add_annotation",
		mcp.WithDescription("Show every annotation passively and activate the drawing tool for a new region."),
		sessionParam,
		mcp.WithOutputSchema[LabelsResponse](),
	), mcp.NewStructuredToolHandler(s.handleAdd))

	// TOOL: edit_annotation
	s.mcpServer.AddTool(mcp.NewTool("edit_annotation",
		mcp.WithDescription("Put an annotation in edit focus."),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Annotation UID")),
		sessionParam,
		mcp.WithOutputSchema[CommandResponse](),
	), mcp.NewStructuredToolHandler(s.handleEdit))

	// TOOL: delete_annotation
	s.mcpServer.AddTool(mcp.NewTool("delete_annotation",
		mcp.WithDescription("Remove an annotation from the engine and the label list."),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Annotation UID")),
		sessionParam,
		mcp.WithOutputSchema[CommandResponse](),
	), mcp.NewStructuredToolHandler(s.handleDelete))

	// TOOL: list_labels
	s.mcpServer.AddTool(mcp.NewTool("list_labels",
		mcp.WithDescription("List the labels of a session in display order."),
		sessionParam,
		mcp.WithOutputSchema[LabelsResponse](),
	), mcp.NewStructuredToolHandler(s.handleList))

	// TOOL: reconcile
	s.mcpServer.AddTool(mcp.NewTool("reconcile",
		mcp.WithDescription("Rebuild the label list from the engine's annotation store."),
		sessionParam,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("session_id", DefaultSessionID)
		var report domain.ReconcileReport
		err := s.sessions.Do(ctx, id, func(ctx context.Context, ws ports.Workspace) error {
			var err error
			report, err = ws.Reconcile(ctx)
			return err
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reconcile failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(report)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

// Handler methods for structured tools

func (s *Server) handleLoadImage(ctx context.Context, request mcp.CallToolRequest, args LoadArgs) (ImageResponse, error) {
	id := sessionOf(args.SessionID)
	ref, err := sanitize.ID(args.Ref)
	if err != nil {
		return ImageResponse{}, fmt.Errorf("ref: %w", err)
	}
	if _, err := s.sessions.GetOrCreate(ctx, id); err != nil {
		return ImageResponse{}, err
	}

	var img domain.Image
	err = s.sessions.Do(ctx, id, func(ctx context.Context, ws ports.Workspace) error {
		var err error
		img, err = ws.LoadImage(ctx, ref)
		return err
	})
	if err != nil {
		s.logger.Warn("MCP LoadImage: failed", "session_id", id, "err", err)
		return ImageResponse{}, fmt.Errorf("load image failed: %w", err)
	}

	resp := ImageResponse{SessionID: id, Image: img}
	if img.Patient != nil {
		resp.Age = img.Patient.Age(s.now())
	}
	return resp, nil
}

func (s *Server) handleAdd(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (LabelsResponse, error) {
	id := sessionOf(args.SessionID)
	var resp LabelsResponse
	err := s.sessions.Do(ctx, id, func(ctx context.Context, ws ports.Workspace) error {
		if err := ws.Add(ctx); err != nil {
			return err
		}
		resp = labelsOf(id, ws)
		return nil
	})
	if err != nil {
		return LabelsResponse{}, fmt.Errorf("add failed: %w", err)
	}
	return resp, nil
}

func (s *Server) handleEdit(ctx context.Context, request mcp.CallToolRequest, args UIDArgs) (CommandResponse, error) {
	return s.command(ctx, args, "edit", ports.Workspace.Edit)
}

func (s *Server) handleDelete(ctx context.Context, request mcp.CallToolRequest, args UIDArgs) (CommandResponse, error) {
	return s.command(ctx, args, "delete", ports.Workspace.Delete)
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (LabelsResponse, error) {
	id := sessionOf(args.SessionID)
	ws, err := s.sessions.Get(id)
	if err != nil {
		return LabelsResponse{}, err
	}
	return labelsOf(id, ws), nil
}

func (s *Server) command(ctx context.Context, args UIDArgs, op string, fn func(ports.Workspace, context.Context, string) (bool, error)) (CommandResponse, error) {
	id := sessionOf(args.SessionID)
	uid, err := sanitize.ID(args.UID)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("uid: %w", err)
	}
	var resp CommandResponse
	err = s.sessions.Do(ctx, id, func(ctx context.Context, ws ports.Workspace) error {
		ok, err := fn(ws, ctx, uid)
		if err != nil {
			return err
		}
		resp = CommandResponse{OK: ok, LabelsResponse: labelsOf(id, ws)}
		return nil
	})
	if err != nil {
		return CommandResponse{}, fmt.Errorf("%s failed: %w", op, err)
	}
	return resp, nil
}

func (s *Server) registerResources() {
	// EXPOSE: regions://sessions
	s.mcpServer.AddResource(mcp.NewResource("regions://sessions", "Open Sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, _ := json.Marshal(s.sessions.List())
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "regions://sessions",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func sessionOf(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}

func labelsOf(id string, ws ports.Workspace) LabelsResponse {
	labels := ws.Labels()
	if labels == nil {
		labels = []domain.Label{}
	}
	return LabelsResponse{SessionID: id, Labels: labels, Selected: ws.Selection().UID}
}
