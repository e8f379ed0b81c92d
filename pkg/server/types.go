// Package server exposes a loaded multilinear head model over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mlmhead/internal/models"
	"mlmhead/pkg/mesh"
	"mlmhead/pkg/mlm"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	model *mlm.Model

	// template meshes; never written, every request evaluates into clones
	skin  *mesh.SurfaceMesh
	skull *mesh.SurfaceMesh

	defaultWSkull []float64
	defaultWFstt  []float64

	maxBodyBytes int64
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	// Model must be fully loaded
	Model *mlm.Model

	// Skin and Skull supply vertex counts and faces for the responses
	Skin  *mesh.SurfaceMesh
	Skull *mesh.SurfaceMesh

	MaxBodyKB int
	Logger    *slog.Logger
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ModelResponse is returned by GET /model.
type ModelResponse struct {
	GeometryChannels int `json:"geometry_channels"`
	SkullComponents  int `json:"skull_components"`
	FsttComponents   int `json:"fstt_components"`
	SkinVertices     int `json:"skin_vertices"`
	SkullVertices    int `json:"skull_vertices"`
	SkinFaces        int `json:"skin_faces"`
	SkullFaces       int `json:"skull_faces"`

	DefaultWSkull []float64 `json:"default_w_skull"`
	DefaultWFstt  []float64 `json:"default_w_fstt"`

	EigenvaluesSkull []float64 `json:"eigenvalues_skull"`
	EigenvaluesFstt  []float64 `json:"eigenvalues_fstt"`
}

// EvaluateRequest is the body of POST /evaluate. A missing parameter vector
// falls back to the mean-of-basis defaults.
type EvaluateRequest struct {
	WSkull []float64 `json:"w_skull"`
	WFstt  []float64 `json:"w_fstt"`

	// Format is json (default), off or stl
	Format string `json:"format"`

	// Surface selects skin or skull for the off and stl formats
	Surface string `json:"surface"`
}

// EvaluateResponse carries the vertices of both surfaces.
type EvaluateResponse struct {
	WSkull []float64      `json:"w_skull"`
	WFstt  []float64      `json:"w_fstt"`
	Skin   []models.Point `json:"skin"`
	Skull  []models.Point `json:"skull"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a server around a loaded model.
func NewServer(config Config) (*Server, error) {
	if config.Model == nil || !config.Model.Ready() {
		return nil, mlm.ErrNotLoaded
	}
	if config.Skin == nil || config.Skull == nil {
		return nil, errors.New("server: skin and skull meshes are required")
	}
	wSkull, wFstt, err := mlm.DefaultParameters(config.Model)
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := config.MaxBodyKB
	if maxBody <= 0 {
		maxBody = 64
	}

	return &Server{
		model:         config.Model,
		skin:          config.Skin,
		skull:         config.Skull,
		defaultWSkull: wSkull,
		defaultWFstt:  wFstt,
		maxBodyBytes:  int64(maxBody) * 1024,
		logger:        logger,
	}, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.metricsMiddleware(s.healthHandler))
	mux.HandleFunc("/model", s.metricsMiddleware(s.modelHandler))
	mux.HandleFunc("/evaluate", s.metricsMiddleware(s.evaluateHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
