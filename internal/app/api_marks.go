package app

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"annotate/internal/domain"
)

// ── Bookmarks ──────────────────────────────────────────────

func (a *App) listBookmarks(w http.ResponseWriter, r *http.Request) {
	marks, err := a.Bookmarks.List(r.Context(), a.userOf(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if marks == nil {
		marks = []domain.Bookmark{}
	}
	writeJSON(w, http.StatusOK, marks)
}

func (a *App) addBookmark(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Page  int    `json:"pageNumber"`
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	b, err := a.Bookmarks.Add(r.Context(), a.userOf(r), mux.Vars(r)["id"], body.Page, body.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *App) removeBookmark(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page, _ := strconv.Atoi(vars["page"])
	if err := a.Bookmarks.Remove(r.Context(), a.userOf(r), vars["id"], page); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Notes ──────────────────────────────────────────────────

type noteBody struct {
	Page int      `json:"pageNumber"`
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

// listNotes accepts ?page=N to keep one page's notes.
func (a *App) listNotes(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	notes, err := a.Notes.List(r.Context(), a.userOf(r), mux.Vars(r)["id"], page)
	if err != nil {
		writeError(w, err)
		return
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (a *App) addNote(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	n, err := a.Notes.Add(r.Context(), a.userOf(r), mux.Vars(r)["id"], body.Page, body.Text, body.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (a *App) updateNote(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	n, err := a.Notes.Update(r.Context(), a.userOf(r), mux.Vars(r)["noteId"], body.Text, body.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *App) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := a.Notes.Delete(r.Context(), a.userOf(r), mux.Vars(r)["noteId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Search ─────────────────────────────────────────────────

// search serves GET /api/search?type=notes|bookmarks&q=...&limit=N.
func (a *App) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	user := a.userOf(r)

	var (
		out any
		err error
	)
	switch q.Get("type") {
	case "notes":
		var notes []domain.Note
		notes, err = a.Notes.Search(r.Context(), user, q.Get("q"), limit)
		if notes == nil {
			notes = []domain.Note{}
		}
		out = notes
	case "bookmarks":
		var marks []domain.Bookmark
		marks, err = a.Bookmarks.Search(r.Context(), user, q.Get("q"), limit)
		if marks == nil {
			marks = []domain.Bookmark{}
		}
		out = marks
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": `type must be "notes" or "bookmarks"`})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
