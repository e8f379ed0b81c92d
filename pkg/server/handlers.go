package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"gonum.org/v1/gonum/mat"

	"mlmhead/internal/models"
	"mlmhead/pkg/mesh"
	"mlmhead/pkg/mlm"
	"mlmhead/pkg/stl"
)

const (
	formatJSON = "json"
	formatOFF  = "off"
	formatSTL  = "stl"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// modelHandler describes the loaded model.
func (s *Server) modelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m := s.model
	s.writeJSON(w, http.StatusOK, ModelResponse{
		GeometryChannels: m.Dim0(),
		SkullComponents:  m.Dim1(),
		FsttComponents:   m.Dim2(),
		SkinVertices:     s.skin.NumVertices(),
		SkullVertices:    s.skull.NumVertices(),
		SkinFaces:        s.skin.NumFaces(),
		SkullFaces:       s.skull.NumFaces(),
		DefaultWSkull:    s.defaultWSkull,
		DefaultWFstt:     s.defaultWFstt,
		EigenvaluesSkull: rawVector(m.EigenvaluesSkull()),
		EigenvaluesFstt:  rawVector(m.EigenvaluesFstt()),
	})
}

// evaluateHandler evaluates the model for the posted parameters.
func (s *Server) evaluateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req EvaluateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, fmt.Sprintf("Failed to parse JSON request: %v", err), http.StatusBadRequest)
		return
	}

	format := req.Format
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == "" {
		format = formatJSON
	}
	surface := req.Surface
	if surface == "" {
		surface = r.URL.Query().Get("surface")
	}

	switch format {
	case formatJSON:
	case formatOFF, formatSTL:
		if surface != "skin" && surface != "skull" {
			s.writeErrorResponse(w, fmt.Sprintf("surface must be skin or skull for %s output", format), http.StatusBadRequest)
			return
		}
	default:
		s.writeErrorResponse(w, fmt.Sprintf("Unsupported format: %s", format), http.StatusBadRequest)
		return
	}

	wSkull, wFstt := req.WSkull, req.WFstt
	if wSkull == nil {
		wSkull = s.defaultWSkull
	}
	if wFstt == nil {
		wFstt = s.defaultWFstt
	}

	skin, skull := s.skin.Clone(), s.skull.Clone()
	start := time.Now()
	err := s.model.Evaluate(skin, skull, wSkull, wFstt)
	evaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, mlm.ErrDimensionMismatch) {
			evaluationsTotal.WithLabelValues("invalid").Inc()
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		evaluationsTotal.WithLabelValues("error").Inc()
		s.logger.Error("evaluation failed", "error", err)
		s.writeErrorResponse(w, "Evaluation failed", http.StatusInternalServerError)
		return
	}
	// JSON cannot carry Inf or NaN, which very large weights can produce
	if format == formatJSON && (!finite(skin.Vertices) || !finite(skull.Vertices)) {
		evaluationsTotal.WithLabelValues("non_finite").Inc()
		s.writeErrorResponse(w, "Result contains non-finite coordinates", http.StatusUnprocessableEntity)
		return
	}
	evaluationsTotal.WithLabelValues("ok").Inc()

	target := skin
	if surface == "skull" {
		target = skull
	}

	switch format {
	case formatOFF:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", surface+".off"))
		if err := mesh.WriteOFF(w, target); err != nil {
			s.logger.Error("error writing OFF response", "error", err)
		}
	case formatSTL:
		w.Header().Set("Content-Type", "model/stl")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", surface+".stl"))
		if err := stl.Write(w, stl.FromMesh(target)); err != nil {
			s.logger.Error("error writing STL response", "error", err)
		}
	default:
		s.writeJSON(w, http.StatusOK, EvaluateResponse{
			WSkull: wSkull,
			WFstt:  wFstt,
			Skin:   skin.Vertices,
			Skull:  skull.Vertices,
		})
	}
}

// writeJSON encodes v before writing the status so that an encoding
// failure becomes a 500 instead of an empty response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.logger.Error("error encoding response", "error", err)
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{Error: "Failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Error("error writing response", "error", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

func finite(points []models.Point) bool {
	for _, p := range points {
		for _, c := range p {
			if math.IsInf(c, 0) || math.IsNaN(c) {
				return false
			}
		}
	}
	return true
}

func rawVector(v *mat.VecDense) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
