// Package review provides a read-only HTTP surface for operational
// visibility into the running pipeline: CRL completeness, image-tile
// lifecycle state, and dedup cache size. It does not render or export
// anything — that belongs to the out-of-scope end-user display layer.
package review

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fisb/internal/dedup"
	"fisb/internal/frame"
	"fisb/internal/harvest"
)

// Server serves the operational status endpoints.
type Server struct {
	harvester *harvest.Harvester
	dedupe    *dedup.Cache
	port      int

	rsrSource func() map[string]frame.RSRResult // optional; nil when RSR tracking is disabled
}

// NewServer creates a review server reporting on harvester's CRL/image
// bookkeeping and dedupe's cache occupancy.
func NewServer(harvester *harvest.Harvester, dedupe *dedup.Cache, port int) *Server {
	return &Server{harvester: harvester, dedupe: dedupe, port: port}
}

// WithRSRSource attaches a reception-success-rate snapshot source,
// enabling /status/rsr. Returns s for chaining.
func (s *Server) WithRSRSource(source func() map[string]frame.RSRResult) *Server {
	s.rsrSource = source
	return s
}

// Router builds the chi router, split out from Run so it can be
// embedded under another server's mux in tests or in a combined
// deployment.
//
// Grounded on internal/api/enrichment.go's EnrichmentServer.Router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/status/crl", s.handleCRLStatus)
	r.Get("/status/images", s.handleImageStatus)
	r.Get("/status/dedup", s.handleDedupStatus)
	r.Get("/status/rsr", s.handleRSRStatus)

	return r
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	addr := ":" + strconv.Itoa(s.port)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// crlStatusResponse is the JSON view of one harvest.CRLStatus entry.
type crlStatusResponse struct {
	ProductID       int    `json:"product_id"`
	Station         string `json:"station"`
	TotalReports    int    `json:"total_reports"`
	CompleteReports int    `json:"complete_reports"`
}

func (s *Server) handleCRLStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.harvester.CRLStatuses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]crlStatusResponse, 0, len(statuses))
	for _, cs := range statuses {
		resp = append(resp, crlStatusResponse{
			ProductID:       cs.ProductID,
			Station:         cs.Station,
			TotalReports:    cs.TotalReports,
			CompleteReports: cs.CompleteReports,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// imageStatusResponse is the JSON view of one harvest.ImageStatus entry.
type imageStatusResponse struct {
	Product          string    `json:"product"`
	HasAnyData       bool      `json:"has_any_data"`
	BinCount         int       `json:"bin_count"`
	OldestOfficialTs time.Time `json:"oldest_official_time,omitempty"`
	NewestOfficialTs time.Time `json:"newest_official_time,omitempty"`
	LastChangedTs    time.Time `json:"last_changed_time,omitempty"`
	LastRenderedTs   time.Time `json:"last_rendered_time,omitempty"`
}

func (s *Server) handleImageStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.harvester.ImageStatuses()

	resp := make([]imageStatusResponse, 0, len(statuses))
	for _, is := range statuses {
		resp = append(resp, imageStatusResponse{
			Product:          is.Product,
			HasAnyData:       is.HasAnyData,
			BinCount:         is.BinCount,
			OldestOfficialTs: is.OldestOfficialTs,
			NewestOfficialTs: is.NewestOfficialTs,
			LastChangedTs:    is.LastChangedTs,
			LastRenderedTs:   is.LastRenderedTs,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDedupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"cache_size": s.dedupe.Len(),
	})
}

// rsrStatusResponse is the JSON view of one station's computed
// reception success rate.
type rsrStatusResponse struct {
	Station  string `json:"station"`
	Count    int    `json:"count"`
	Expected int    `json:"expected"`
	Percent  int    `json:"percent"`
}

func (s *Server) handleRSRStatus(w http.ResponseWriter, r *http.Request) {
	if s.rsrSource == nil {
		writeJSON(w, http.StatusOK, []rsrStatusResponse{})
		return
	}

	statuses := s.rsrSource()
	resp := make([]rsrStatusResponse, 0, len(statuses))
	for station, rr := range statuses {
		resp = append(resp, rsrStatusResponse{Station: station, Count: rr.Count, Expected: rr.Expected, Percent: rr.Percent})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON and writeError mirror internal/api/enrichment.go's response
// helpers.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
