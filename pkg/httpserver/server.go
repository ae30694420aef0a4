package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/TillBeemelmanns/PDFCompare/internal/pipeline"
	"github.com/TillBeemelmanns/PDFCompare/pkg/logging"
)

// Response represents API response structure
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server exposes the comparison pipeline over a JSON HTTP API. It holds
// the most recently built index. The index lock guards only the swap of
// that index; builds and comparisons run concurrently, each comparison
// using the index that was current when it started.
type Server struct {
	pipe     *pipeline.Pipeline
	defaults pipeline.Params

	mu      sync.RWMutex
	current *pipeline.Index
}

// New creates a Server around a pipeline. defaults fill in compare
// parameters the client omits.
func New(pipe *pipeline.Pipeline, defaults pipeline.Params) *Server {
	return &Server{pipe: pipe, defaults: defaults}
}

// Handler returns the API mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/index", s.handleIndex)
	mux.HandleFunc("/api/compare", s.handleCompare)
	mux.HandleFunc("/api/stats", s.handleStats)
	return mux
}

// ListenAndServe blocks serving the API on the given port.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logging.Component("httpserver").Infof("pdfcompare server listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
}

type indexRequest struct {
	References []string `json:"references"`
	SeedSize   int      `json:"seed_size"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Message: "method not allowed"})
		return
	}
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid body"})
		return
	}
	if req.SeedSize == 0 {
		req.SeedSize = s.defaults.SeedSize
	}
	ix, err := s.pipe.BuildIndex(req.References, req.SeedSize, nil, nil)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, Response{Message: err.Error()})
		return
	}
	s.mu.Lock()
	s.current = ix
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("indexed %d document(s)", len(ix.Paths())),
		Data:    map[string]interface{}{"skipped": ix.Skipped, "stats": s.pipe.Stats(ix)},
	})
}

type compareRequest struct {
	Target string           `json:"target"`
	Params *pipeline.Params `json:"params,omitempty"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Message: "method not allowed"})
		return
	}
	params := s.defaults
	params.SeedSize = 0
	req := compareRequest{Params: &params}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid body"})
		return
	}
	s.mu.RLock()
	ix := s.current
	s.mu.RUnlock()
	if ix == nil {
		writeJSON(w, http.StatusConflict, Response{Message: "no index built; POST /api/index first"})
		return
	}
	if params.SeedSize == 0 {
		params.SeedSize = ix.SeedSize()
	}
	result, err := s.pipe.Compare(req.Target, ix, params, nil, nil)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, Response{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "compared", Data: result})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ix := s.current
	s.mu.RUnlock()
	if ix == nil {
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "no index built"})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "stats", Data: s.pipe.Stats(ix)})
}
