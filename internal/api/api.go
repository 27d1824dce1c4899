package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/store"
)

// Failure messages returned by the issue routes.
const (
	msgListFailed   = "Resource not found"
	msgCreateFailed = "Failed to create resource"
	msgUpdateFailed = "Failed to update resource"
	msgDeleteFailed = "Failed to delete resource"
)

// DeletedCountHeader carries the delete acknowledgment, since a 204 has no body.
const DeletedCountHeader = "X-Deleted-Count"

const maxBodyBytes = 1 << 20

// Server provides the REST API handlers.
type Server struct {
	issues *issues.Service
	store  store.Store
	log    *slog.Logger
}

// NewServer creates a new API server. The logger may be nil.
func NewServer(svc *issues.Service, s store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		issues: svc,
		store:  s,
		log:    logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/issues/{project}", s.listIssues)
	mux.HandleFunc("POST /api/issues/{project}", s.createIssue)
	mux.HandleFunc("PUT /api/issues/{project}", s.updateIssue)
	mux.HandleFunc("DELETE /api/issues/{project}", s.deleteIssue)

	mux.HandleFunc("GET /api/projects", s.listProjects)
	mux.HandleFunc("GET /healthz", s.health)

	return corsMiddleware(s.logRequests(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", DeletedCountHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// fail logs the classified error and writes the route's fixed failure response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, status int, msg string) {
	s.log.Warn("issue request failed",
		"method", r.Method,
		"project", r.PathValue("project"),
		"kind", issues.KindOf(err).String(),
		"error", err,
	)
	writeError(w, status, msg)
}

// decodeDocument reads a JSON object or form-encoded request body. An empty
// body yields an empty document. Form bodies are parsed for every method;
// http.Request.ParseForm skips the body on DELETE.
func decodeDocument(r *http.Request) (models.Document, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read form body: %w", err)
		}
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		doc := models.Document{}
		for key, values := range form {
			if len(values) == 0 {
				continue
			}
			doc[key] = values[0]
		}
		if v, ok := doc[models.FieldOpen].(string); ok && (v == "true" || v == "false") {
			doc[models.FieldOpen] = v == "true"
		}
		return doc, nil
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	doc := models.Document{}
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return models.Document{}, nil
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if doc == nil {
		doc = models.Document{}
	}
	return doc, nil
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := issues.ListQuery{
		Open:       r.URL.Query().Get("open"),
		AssignedTo: r.URL.Query().Get("assigned_to"),
	}
	docs, err := s.issues.List(r.Context(), r.PathValue("project"), q)
	if err != nil {
		s.fail(w, r, err, http.StatusNotFound, msgListFailed)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	doc, err := decodeDocument(r)
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest, msgCreateFailed)
		return
	}
	res, err := s.issues.Create(r.Context(), r.PathValue("project"), doc)
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest, msgCreateFailed)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	doc, err := decodeDocument(r)
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest, msgUpdateFailed)
		return
	}
	res, err := s.issues.Update(r.Context(), r.PathValue("project"), doc)
	if err != nil {
		s.fail(w, r, err, http.StatusBadRequest, msgUpdateFailed)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	doc, err := decodeDocument(r)
	if err != nil {
		s.fail(w, r, err, http.StatusNotFound, msgDeleteFailed)
		return
	}
	res, err := s.issues.Delete(r.Context(), r.PathValue("project"), doc.ID())
	if err != nil {
		s.fail(w, r, err, http.StatusNotFound, msgDeleteFailed)
		return
	}
	w.Header().Set(DeletedCountHeader, strconv.FormatInt(res.DeletedCount, 10))
	w.WriteHeader(http.StatusNoContent)
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.issues.Projects(r.Context())
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
