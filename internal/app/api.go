package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"annotate/internal/domain"
	"annotate/internal/source"
)

const maxUploadBytes = 64 << 20

// Router mounts the object links, the websocket hub, the MCP endpoint and
// the REST API.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()
	a.bucket.Register(r)
	r.Handle("/ws", a.hub)
	r.Handle("/mcp", a.MCP.HTTPHandler())

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/documents", a.listDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents", a.uploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}", a.getDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", a.deleteDocument).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/annotations", a.listAnnotations).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/position", a.getPosition).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/position", a.savePosition).Methods(http.MethodPut)
	api.HandleFunc("/documents/{id}/pages/{page:[0-9]+}.png", a.renderPage).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/bookmarks", a.listBookmarks).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/bookmarks", a.addBookmark).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/bookmarks/{page:[0-9]+}", a.removeBookmark).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/notes", a.listNotes).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/notes", a.addNote).Methods(http.MethodPost)
	api.HandleFunc("/notes/{noteId}", a.updateNote).Methods(http.MethodPut)
	api.HandleFunc("/notes/{noteId}", a.deleteNote).Methods(http.MethodDelete)
	api.HandleFunc("/search", a.search).Methods(http.MethodGet)
	api.HandleFunc("/approvals", a.listApprovals).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}/{decision:approve|reject}", a.resolveApproval).Methods(http.MethodPost)
	return r
}

// userOf returns the X-Annotate-User header or the configured user.
func (a *App) userOf(r *http.Request) string {
	if u := r.Header.Get("X-Annotate-User"); u != "" {
		return u
	}
	return a.cfg.UserID
}

// ── Documents ──────────────────────────────────────────────

func (a *App) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.Documents.List(r.Context(), a.userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.DocumentRecord{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *App) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field \"file\" is required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := a.Documents.Upload(r.Context(), a.userOf(r), header.Filename, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *App) getDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Documents.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *App) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := a.Documents.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) listAnnotations(w http.ResponseWriter, r *http.Request) {
	records, err := a.Documents.Annotations(r.Context(), a.userOf(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.AnnotationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ── Reading position ───────────────────────────────────────

func (a *App) getPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := a.Positions.Get(r.Context(), a.userOf(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (a *App) savePosition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Page int     `json:"pageNumber"`
		Zoom float64 `json:"zoom"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Page < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pageNumber must be a positive integer"})
		return
	}
	if body.Zoom <= 0 {
		body.Zoom = 1
	}
	if err := a.Positions.Save(r.Context(), a.userOf(r), mux.Vars(r)["id"], body.Page, body.Zoom); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Rendering ──────────────────────────────────────────────

func (a *App) renderPage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page, _ := strconv.Atoi(vars["page"])
	width, _ := strconv.Atoi(r.URL.Query().Get("width"))

	rec, err := a.Documents.Get(r.Context(), vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if page < 1 || page > rec.TotalPages {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "page out of range"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := a.RenderPage(r.Context(), source.Source{DocumentID: rec.ID}, page, width, w); err != nil {
		log.Printf("[API] render %s page %d: %v", rec.ID, page, err)
		w.Header().Del("Content-Type")
		writeError(w, err)
	}
}

// ── Approvals ──────────────────────────────────────────────

type approvalView struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	Metadata    string `json:"metadata"`
	CreatedAt   string `json:"createdAt"`
	// Standalone is set for approvals requested by a separate MCP process.
	Standalone bool `json:"standalone"`
}

func (a *App) listApprovals(w http.ResponseWriter, r *http.Request) {
	out := []approvalView{}
	for _, p := range a.MCP.Pending() {
		out = append(out, approvalView{ID: p.ID, Tool: p.Tool, Description: p.Description, Metadata: p.Metadata, CreatedAt: p.CreatedAt})
	}
	if a.approvals != nil {
		pending, err := a.approvals.ListPendingApprovals(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		for _, p := range pending {
			out = append(out, approvalView{
				ID:          p.ID,
				Tool:        p.Tool,
				Description: p.Description,
				Metadata:    p.Metadata,
				CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
				Standalone:  true,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) resolveApproval(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, approve := vars["id"], vars["decision"] == "approve"

	for _, p := range a.MCP.Pending() {
		if p.ID == id {
			if approve {
				a.MCP.Approve(id)
			} else {
				a.MCP.Reject(id)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	if a.approvals == nil {
		writeError(w, domain.ErrNotFound)
		return
	}
	if err := a.approvals.ResolveApproval(r.Context(), id, approve); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Helpers ────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *domain.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.As(err, &maxErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled):
		status = 499
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
