// Package web provides an HTTP status server for the als-corrector daemon.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/als-corrector/internal/status"
	"github.com/sweeney/als-corrector/internal/store"
)

const defaultHistory = 50

// History returns recently stored recomputations, newest first.
type History interface {
	Recent(n int) ([]store.Record, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    History
}

// New creates a Server that reads state from the given tracker. history
// may be nil when recording is disabled.
func New(addr string, tracker *status.Tracker, history History) *Server {
	s := &Server{tracker: tracker, history: history}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/corrections.json", s.handleCorrections)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// CorrectionJSON is one stored recomputation.
type CorrectionJSON struct {
	Timestamp    string     `json:"timestamp"`
	Reason       string     `json:"reason"`
	Raw          float64    `json:"raw"`
	Brightness   float64    `json:"brightness"`
	Screen       [3]float64 `json:"screen_rgb"`
	Emission     float64    `json:"emission"`
	RawCorrected float64    `json:"raw_corrected"`
	AGCGain      float64    `json:"agc_gain"`
	Lux          float64    `json:"lux"`
	Forced       bool       `json:"forced"`
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "recording disabled", http.StatusNotFound)
		return
	}
	n := defaultHistory
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	recs, err := s.history.Recent(n)
	if err != nil {
		log.Printf("web: read history: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	out := make([]CorrectionJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, CorrectionJSON{
			Timestamp:    rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Reason:       string(rec.Reason),
			Raw:          rec.Raw,
			Brightness:   rec.Brightness,
			Screen:       rec.Screen,
			Emission:     rec.Emission,
			RawCorrected: rec.RawCorrected,
			AGCGain:      rec.AGCGain,
			Lux:          rec.Lux,
			Forced:       rec.Forced,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
