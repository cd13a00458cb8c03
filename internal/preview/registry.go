package preview

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/IagoDantas/upload-ai-web/internal/domain"
)

const pathPrefix = "/preview/"

type entry struct {
	name     string
	mimeType string
	data     []byte
	created  time.Time
}

// Registry holds the transient previews of selected videos.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Publish registers asset and returns the URL the UI can play it from.
func (r *Registry) Publish(asset domain.VideoAsset) string {
	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[token] = entry{
		name:     asset.Name,
		mimeType: asset.MIMEType,
		data:     asset.Data,
		created:  time.Now(),
	}
	return pathPrefix + token
}

// Release drops the preview behind url. Unknown URLs are ignored.
func (r *Registry) Release(url string) {
	token, ok := tokenFromURL(url)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, token)
}

// ReleaseAll drops every preview.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]entry)
}

// Len returns the number of live previews.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Routes serves previews and hands every other request to fallback.
func (r *Registry) Routes(fallback http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)

	router.Get(pathPrefix+"{token}", r.serve)
	router.Head(pathPrefix+"{token}", r.serve)
	if fallback != nil {
		router.NotFound(fallback.ServeHTTP)
	}
	return router
}

func (r *Registry) serve(w http.ResponseWriter, req *http.Request) {
	token := chi.URLParam(req, "token")

	r.mu.RLock()
	item, ok := r.entries[token]
	r.mu.RUnlock()
	if !ok {
		http.Error(w, "preview not found", http.StatusNotFound)
		return
	}

	if item.mimeType != "" {
		w.Header().Set("Content-Type", item.mimeType)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, req, item.name, item.created, bytes.NewReader(item.data))
}

func tokenFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, pathPrefix) {
		return "", false
	}
	token := strings.TrimPrefix(url, pathPrefix)
	if token == "" || strings.Contains(token, "/") {
		return "", false
	}
	return token, true
}
