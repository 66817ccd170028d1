package media

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/betsync/go/internal/round"
)

// StatusProvider reports the state of the game for /health
type StatusProvider interface {
	Status() round.Status
}

// RouterConfig configures the media and asset routes
type RouterConfig struct {
	PublicDir      string
	AllowedOrigins []string
	// Metrics is mounted on /metrics when set
	Metrics http.Handler
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status  string `json:"status"`
	Game    string `json:"game"`
	Clients int    `json:"clients"`
}

type handler struct {
	library *Library
	status  StatusProvider
}

// NewRouter builds the HTTP handler serving videos, static assets,
// health and metrics
func NewRouter(library *Library, status StatusProvider, cfg RouterConfig) http.Handler {
	h := &handler{library: library, status: status}

	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Get("/video/{name}", h.video)
	r.Head("/video/{name}", h.video)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.PublicDir != "" {
		public := http.FileServer(http.Dir(cfg.PublicDir))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.ServeFile(w, req, filepath.Join(cfg.PublicDir, "index.html"))
		})
		r.Handle("/*", public)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"Range", "Content-Type"},
		ExposedHeaders: []string{"Content-Range", "Content-Length", "Accept-Ranges"},
	})
	return c.Handler(r)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	resp := HealthResponse{Status: "ok", Game: "waiting", Clients: st.Clients}
	if st.Active {
		resp.Game = "active"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}

// video streams a file with byte-range support
func (h *handler) video(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	// chi matches on the raw path when the request carries escaped slashes
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}

	f, info, err := h.library.Open(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Str("video", name).Msg("failed to open video")
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
