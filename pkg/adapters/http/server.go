package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/regions"
	"github.com/aretw0/regions/internal/logging"
	"github.com/aretw0/regions/internal/sanitize"
	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/aretw0/regions/pkg/session"
	"github.com/go-chi/chi/v5"
)

// maxImageBytes bounds uploaded image bodies.
const maxImageBytes = 32 << 20

// Uploader accepts raw image bytes. *memory.Engine implements it.
type Uploader interface {
	AddImage(id string, data []byte, opts ...memory.ImageOption) string
}

// Server exposes the presentation commands of each session over HTTP.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager
	Uploader Uploader
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithUploader enables PUT /images/{id}.
func WithUploader(u Uploader) Option {
	return func(s *Server) {
		s.Uploader = u
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler over the session manager. Workspaces
// built by the manager should carry streams.Hooks(sessionID) so that
// subscribers receive registry diffs.
func NewHandler(sessions *session.Manager, streams *StreamManager, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		Streams:  streams,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Put("/images/{imageID}", s.PutImage)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Delete("/", s.CloseSession)
			r.Post("/image", s.LoadImage)
			r.Get("/labels", s.GetLabels)
			r.Post("/annotations", s.AddAnnotation)
			r.Post("/annotations/{uid}/edit", s.EditAnnotation)
			r.Delete("/annotations/{uid}", s.DeleteAnnotation)
			r.Post("/completions", s.Complete)
			r.Post("/reconcile", s.Reconcile)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LabelsView is the label list together with the current selection.
type LabelsView struct {
	Labels    []domain.Label   `json:"labels"`
	Selection domain.Selection `json:"selection"`
}

// CommandView reports whether an edit or delete was confirmed.
type CommandView struct {
	OK bool `json:"ok"`
	LabelsView
}

// ImageView is a displayed image with the patient age derived from its metadata.
type ImageView struct {
	domain.Image
	Age int `json:"age,omitempty"`
}

type loadImageRequest struct {
	Ref string `json:"ref"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "regions-http",
		"version": strings.TrimSpace(regions.Version),
	})
}

// PutImage handles the PUT /images/{imageID} upload.
func (s *Server) PutImage(w http.ResponseWriter, r *http.Request) {
	if s.Uploader == nil {
		http.Error(w, "Image upload not supported by this engine", http.StatusNotImplemented)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes+1))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(data) > maxImageBytes {
		http.Error(w, "Image too large", http.StatusRequestEntityTooLarge)
		return
	}

	imageID, ok := s.param(w, r, "imageID")
	if !ok {
		return
	}

	var opts []memory.ImageOption
	if name := r.Header.Get("X-Patient-Name"); name != "" {
		opts = append(opts, memory.WithPatient(domain.PatientInfo{
			Name:      name,
			BirthDate: r.Header.Get("X-Patient-Birth-Date"),
			Sex:       r.Header.Get("X-Patient-Sex"),
		}))
	}
	id := s.Uploader.AddImage(imageID, data, opts...)
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.Sessions.List()})
}

// CloseSession handles DELETE /sessions/{sessionID}.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.param(w, r, "sessionID")
	if !ok {
		return
	}
	if err := s.Sessions.Close(r.Context(), sessionID); err != nil {
		s.fail(w, "CloseSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadImage handles POST /sessions/{sessionID}/image, creating the session on first use.
func (s *Server) LoadImage(w http.ResponseWriter, r *http.Request) {
	var body loadImageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("LoadImage: Invalid request body", "err", err)
		return
	}
	ref, err := sanitize.ID(body.Ref)
	if err != nil {
		http.Error(w, "Invalid image ref: "+err.Error(), http.StatusBadRequest)
		return
	}

	sessionID, ok := s.param(w, r, "sessionID")
	if !ok {
		return
	}
	if _, err := s.Sessions.GetOrCreate(r.Context(), sessionID); err != nil {
		s.fail(w, "LoadImage", err)
		return
	}

	var img domain.Image
	err = s.Sessions.Do(r.Context(), sessionID, func(ctx context.Context, ws ports.Workspace) error {
		var err error
		img, err = ws.LoadImage(ctx, ref)
		return err
	})
	if err != nil {
		s.fail(w, "LoadImage", err)
		return
	}

	view := ImageView{Image: img}
	if img.Patient != nil {
		view.Age = img.Patient.Age(s.now())
	}
	s.writeJSON(w, http.StatusOK, view)
}

// GetLabels handles GET /sessions/{sessionID}/labels.
func (s *Server) GetLabels(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.param(w, r, "sessionID")
	if !ok {
		return
	}
	ws, err := s.Sessions.Get(sessionID)
	if err != nil {
		s.fail(w, "GetLabels", err)
		return
	}
	s.writeJSON(w, http.StatusOK, labelsOf(ws))
}

// AddAnnotation handles POST /sessions/{sessionID}/annotations.
func (s *Server) AddAnnotation(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.param(w, r, "sessionID")
	if !ok {
		return
	}
	var view LabelsView
	err := s.Sessions.Do(r.Context(), sessionID, func(ctx context.Context, ws ports.Workspace) error {
		if err := ws.Add(ctx); err != nil {
			return err
		}
		view = labelsOf(ws)
		return nil
	})
	if err != nil {
		s.fail(w, "AddAnnotation", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, view)
}

// EditAnnotation handles POST /sessions/{sessionID}/annotations/{uid}/edit.
func (s *Server) EditAnnotation(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, "EditAnnotation", ports.Workspace.Edit)
}

// DeleteAnnotation handles DELETE /sessions/{sessionID}/annotations/{uid}.
func (s *Server) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, "DeleteAnnotation", ports.Workspace.Delete)
}

// Complete handles POST /sessions/{sessionID}/completions, the raw
// notification relayed from a browser-side engine.
func (s *Server) Complete(w http.ResponseWriter, r *http.Request) {
	var evt domain.CompletionEvent
	evt.Index = -1
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Complete: Invalid request body", "err", err)
		return
	}
	if evt.Record.Data == nil {
		evt.Record.Data = make(map[string]any)
	}

	sessionID, ok := s.param(w, r, "sessionID")
	if !ok {
		return
	}
	ws, err := s.Sessions.Get(sessionID)
	if err != nil {
		s.fail(w, "Complete", err)
		return
	}
	ws.Complete(evt)
	w.WriteHeader(http.StatusAccepted)
}

// Reconcile handles POST /sessions/{sessionID}/reconcile.
func (s *Server) Reconcile(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.param(w, r, "sessionID")
	if !ok {
		return
	}
	var report domain.ReconcileReport
	err := s.Sessions.Do(r.Context(), sessionID, func(ctx context.Context, ws ports.Workspace) error {
		var err error
		report, err = ws.Reconcile(ctx)
		return err
	})
	if err != nil {
		s.fail(w, "Reconcile", err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// SubscribeEvents handles GET /sessions/{sessionID}/events (SSE).
// The optional watch query ("labels", "selection") filters the diffs sent.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	sessionID, ok := s.param(w, r, "sessionID")
	if !ok {
		return
	}
	if _, err := s.Sessions.Get(sessionID); err != nil {
		s.fail(w, "SubscribeEvents", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sessionID)
	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !watched(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "event: registry\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func watched(msg string, fields []string) bool {
	var diff domain.RegistryDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range fields {
		switch strings.TrimSpace(field) {
		case "labels":
			if len(diff.Appended) > 0 || len(diff.Removed) > 0 || len(diff.Renamed) > 0 {
				return true
			}
		case "selection":
			if diff.Selection != nil {
				return true
			}
		}
	}
	return false
}

func (s *Server) command(w http.ResponseWriter, r *http.Request, op string, fn func(ports.Workspace, context.Context, string) (bool, error)) {
	sessionID, ok := s.param(w, r, "sessionID")
	if !ok {
		return
	}
	uid, ok := s.param(w, r, "uid")
	if !ok {
		return
	}
	var view CommandView
	err := s.Sessions.Do(r.Context(), sessionID, func(ctx context.Context, ws ports.Workspace) error {
		ok, err := fn(ws, ctx, uid)
		if err != nil {
			return err
		}
		view = CommandView{OK: ok, LabelsView: labelsOf(ws)}
		return nil
	})
	if err != nil {
		s.fail(w, op, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// param returns the sanitized URL parameter name. An invalid value is
// answered with 400 and ok is false.
func (s *Server) param(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := sanitize.ID(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, "Invalid "+name+": "+err.Error(), http.StatusBadRequest)
		return "", false
	}
	return v, true
}

func labelsOf(ws ports.Workspace) LabelsView {
	labels := ws.Labels()
	if labels == nil {
		labels = []domain.Label{}
	}
	return LabelsView{Labels: labels, Selection: ws.Selection()}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Warn(op+" rejected", "err", err)
	}
	http.Error(w, err.Error(), status)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrImageDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrImageNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoImage):
		return http.StatusConflict
	case errors.Is(err, domain.ErrWorkspaceClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrSurfaceMissing):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
