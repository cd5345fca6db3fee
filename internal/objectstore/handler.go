package objectstore

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"path"

	"github.com/gorilla/mux"

	"annotate/internal/domain"
)

// Handler serves issued links at GET /objects/{token}.
func (b *Bucket) Handler() http.Handler {
	r := mux.NewRouter()
	b.Register(r)
	return r
}

// Register adds the link routes to an existing router.
func (b *Bucket) Register(r *mux.Router) {
	r.HandleFunc("/objects/{token}", b.serveLink).Methods(http.MethodGet, http.MethodHead)
}

func (b *Bucket) serveLink(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	link, err := b.links.GetLink(r.Context(), token)
	if errors.Is(err, domain.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("objectstore: link %s: %v", token, err)
		http.Error(w, "link lookup failed", http.StatusInternalServerError)
		return
	}
	if link.Expired(b.opts.Now()) {
		http.Error(w, "link expired", http.StatusGone)
		return
	}

	data, err := b.Download(r.Context(), link.Key)
	if errors.Is(err, domain.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("objectstore: serve %s: %v", link.Key, err)
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	if link.Public {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	} else {
		w.Header().Set("Cache-Control", "private, no-store")
	}
	http.ServeContent(w, r, path.Base(link.Key), link.CreatedAt, bytes.NewReader(data))
}
