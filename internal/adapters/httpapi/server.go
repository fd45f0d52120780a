// Package httpapi exposes the house collection, palette, weather, skyline
// and exports over JSON HTTP.
package httpapi

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"citybuilder/docs/schema/openapi"
	"citybuilder/internal/adapters/exports"
	"citybuilder/internal/core"
	"citybuilder/internal/render"
	"citybuilder/internal/weather"
)

// ExportScheduler queues city exports and exposes their status.
type ExportScheduler interface {
	Enqueue(ctx context.Context, formats []exports.Format) (exports.Record, error)
	Get(id string) (exports.Record, bool)
	List() []exports.Record
}

// Deps wires the server. Store is required; the other collaborators are
// optional and their routes answer 501 or 404 when absent.
type Deps struct {
	Store       *core.Store
	Weather     weather.Source
	Exports     ExportScheduler
	Metrics     http.Handler
	Vars        http.Handler
	Logger      *zap.Logger
	Render      render.Options
	CORSOrigins []string
}

// Server routes HTTP requests to the Store and its collaborators.
type Server struct {
	store    *core.Store
	weather  weather.Source
	exports  ExportScheduler
	metrics  http.Handler
	vars     http.Handler
	logger   *zap.Logger
	render   render.Options
	origins  []string
	validate *validator.Validate
}

// New constructs a Server.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		store:    d.Store,
		weather:  d.Weather,
		exports:  d.Exports,
		metrics:  d.Metrics,
		vars:     d.Vars,
		logger:   logger,
		render:   d.Render,
		origins:  origins,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Router returns the bare route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	if s.vars != nil {
		r.Handle("/debug/vars", s.vars).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/houses", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/houses", s.handleAdd).Methods(http.MethodPost)
	api.HandleFunc("/houses/reorder", s.handleReorder).Methods(http.MethodPost)
	api.HandleFunc("/houses/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/houses/{id}", s.handlePatch).Methods(http.MethodPatch)
	api.HandleFunc("/houses/{id}", s.handleRemove).Methods(http.MethodDelete)
	api.HandleFunc("/houses/{id}/duplicate", s.handleDuplicate).Methods(http.MethodPost)
	api.HandleFunc("/houses/{id}/floors", s.handleSetFloors).Methods(http.MethodPut)
	api.HandleFunc("/houses/{id}/floors/{floorId}", s.handleRecolorFloor).Methods(http.MethodPut)

	api.HandleFunc("/palette", s.handlePalette).Methods(http.MethodGet)
	api.HandleFunc("/weather", s.handleWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/cities", s.handleCities).Methods(http.MethodGet)
	api.HandleFunc("/city.png", s.handleSkyline).Methods(http.MethodGet)
	api.HandleFunc("/openapi.yaml", handleOpenAPI).Methods(http.MethodGet)

	if s.exports != nil {
		api.HandleFunc("/exports", s.handleExportList).Methods(http.MethodGet)
		api.HandleFunc("/exports", s.handleExportCreate).Methods(http.MethodPost)
		api.HandleFunc("/exports/{id}", s.handleExportGet).Methods(http.MethodGet)
	}
	return r
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	co := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return co.Handler(s.Router())
}

func handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "houses": s.store.Len()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
