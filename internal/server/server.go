package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-poi/internal/api"
	"github.com/joeblew999/plat-poi/internal/api/viewer"
	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/humastar"
	"github.com/joeblew999/plat-poi/internal/logger"
	"github.com/joeblew999/plat-poi/internal/metadata"
	"github.com/joeblew999/plat-poi/internal/metrics"
	"github.com/joeblew999/plat-poi/internal/service"
	"github.com/joeblew999/plat-poi/internal/session"
	"github.com/joeblew999/plat-poi/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host        string
	Port        string
	DataDir     string
	WebDir      string // Path to web/ directory for static files and templates
	Version     string
	MaxSessions int
	Log         zerolog.Logger
}

// Server is the POI viewer HTTP server.
type Server struct {
	config   Config
	log      zerolog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
	renderer *templates.Renderer
	page     *template.Template
	pageData humastar.PageData
	stop     func()
}

// New creates a new viewer server. The dataset is loaded before New
// returns; a document that fails to parse is logged and the server starts
// empty.
func New(cfg Config) (*Server, error) {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-poi API", cfg.Version)
	humaConfig.Info.Description = "Point-of-interest map viewer: feature details, hover emphasis and filter state."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	store := feature.NewStore()
	dataset := service.NewDatasetService(service.Config{DataDir: cfg.DataDir}, store, service.NewEventBus(),
		logger.Component(cfg.Log, "dataset"))

	sessions, err := session.NewManager(store, cfg.MaxSessions, logger.Component(cfg.Log, "session"))
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	m := metrics.Init(metrics.BuildInfo{Version: cfg.Version})
	m.Gauge("poi_sessions_active", "Live viewer sessions.", func() float64 { return float64(sessions.Len()) })

	dataset.OnLoad(func(doc metadata.Document) {
		sessions.SetCategories(doc.Definitions())
		m.FeaturesLoaded.Set(float64(store.Len()))
	})

	var overrideDir string
	if cfg.WebDir != "" {
		overrideDir = filepath.Join(cfg.WebDir, "templates", "fragments")
	}
	renderer, err := templates.New(overrideDir)
	if err != nil {
		return nil, fmt.Errorf("loading fragment templates: %w", err)
	}

	s := &Server{
		config:   cfg,
		log:      cfg.Log,
		mux:      mux,
		humaAPI:  humaAPI,
		services: &api.Services{Dataset: dataset, Sessions: sessions, Metrics: m},
		renderer: renderer,
	}
	s.page = s.loadPage()

	events, cancel := dataset.Bus().Subscribe()
	s.stop = cancel
	go s.countReloads(events)

	if err := dataset.Load(); err != nil {
		s.log.Warn().Err(err).Msg("starting with an empty dataset")
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the wired services.
func (s *Server) Services() *api.Services {
	return s.services
}

// Watch reloads the dataset whenever its files change, until ctx is done.
func (s *Server) Watch(ctx context.Context) error {
	return s.services.Dataset.Watch(ctx, service.DefaultWatchDelay)
}

// Close tears down every session and stops background work.
func (s *Server) Close() error {
	s.services.Sessions.Close()
	if s.stop != nil {
		s.stop()
	}
	return nil
}

// countReloads follows dataset reloads, counting them and re-reading the
// fragment overrides alongside the data.
func (s *Server) countReloads(events <-chan service.Event) {
	for ev := range events {
		if ev.Resource != "dataset" {
			continue
		}
		switch ev.Action {
		case "reloaded":
			s.services.Metrics.Reloads.WithLabelValues("ok").Inc()
			if err := s.renderer.Reload(); err != nil {
				s.log.Error().Err(err).Msg("fragment overrides not reloaded")
			}
		case "reload-failed":
			s.services.Metrics.Reloads.WithLabelValues("error").Inc()
		}
	}
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services, s.config.Version)

	// Viewer SSE routes using Huma + Datastar SDK
	viewer.NewHandler(s.services.Sessions, s.services.Dataset, s.renderer, s.services.Metrics,
		logger.Component(s.log, "viewer")).RegisterRoutes(s.humaAPI)

	s.mux.Handle("/metrics", s.services.Metrics.Handler())

	// Static files and the built documents
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	if s.config.DataDir != "" {
		s.mux.Handle("/data/", http.StripPrefix("/data/", s.handleData(s.config.DataDir)))
	}

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)

	s.pageData = humastar.BuildPageData(s.humaAPI, viewer.Tag, viewer.InitialSignals())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Link", `</viewer>; rel="alternate"`)
	w.Header().Add("Link", `</health>; rel="service-meta"`)
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-poi",
		"status":  "running",
	})
}

// ViewerPage is the data handed to the viewer page template.
type ViewerPage struct {
	Title      string
	DatasetURL string
	Page       humastar.PageData
}

func (s *Server) loadPage() *template.Template {
	if s.config.WebDir == "" {
		return nil
	}
	file := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	tmpl, err := template.ParseFiles(file)
	if err != nil {
		s.log.Warn().Err(err).Str("path", file).Msg("viewer page unavailable")
		return nil
	}
	return tmpl
}

// handleViewer serves the map page. ?dataset= picks another GeoJSON file
// from the data directory.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	if s.page == nil {
		http.Error(w, "viewer page not available", http.StatusNotFound)
		return
	}
	name := r.URL.Query().Get("dataset")
	if name == "" {
		name = s.services.Dataset.Config().GeoJSONFile
	}
	if !validDatasetName(name) {
		http.Error(w, "invalid dataset name", http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(filepath.Join(s.config.DataDir, name)); err != nil {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, ViewerPage{
		Title:      s.services.Dataset.Metadata().Title,
		DatasetURL: "/data/" + name,
		Page:       s.pageData,
	}); err != nil {
		s.log.Error().Err(err).Msg("rendering viewer page")
	}
}

func validDatasetName(name string) bool {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".geojson" || ext == ".json"
}

func (s *Server) handleData(dataDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if strings.EqualFold(filepath.Ext(name), ".geojson") && validDatasetName(name) {
			s.serveRendered(w, r, filepath.Join(dataDir, name))
			return
		}
		http.FileServer(http.Dir(dataDir)).ServeHTTP(w, r)
	})
}

// serveRendered serves a GeoJSON file with its filterable attributes
// normalized to term arrays, so the map's filter expressions see the same
// terms the server's predicate does.
func (s *Server) serveRendered(w http.ResponseWriter, r *http.Request, file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	fc, err := s.services.Dataset.ReadCollection(data)
	if err != nil {
		s.log.Warn().Err(err).Str("path", file).Msg("serving unparsed GeoJSON")
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write(data)
		return
	}
	out, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if r.Method == http.MethodHead {
		return
	}
	w.Write(out)
}
