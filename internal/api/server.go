package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tabledash/internal/chart"
	"tabledash/internal/domain"
	"tabledash/internal/service"
	"tabledash/internal/tablesync"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Server is the REST API over the table service.
type Server struct {
	svc        *service.TableService
	metrics    http.Handler
	charts     []chart.Spec
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a new API server. metrics may be nil to leave /metrics unrouted.
func NewServer(svc *service.TableService, metrics http.Handler, charts []chart.Spec) *Server {
	if len(charts) == 0 {
		charts = chart.DefaultSpecs
	}
	return &Server{svc: svc, metrics: metrics, charts: charts, startTime: time.Now()}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Store browsing
	r.HandleFunc("/stores", s.listStores).Methods("GET")
	r.HandleFunc("/stores/{store}/collections", s.listCollections).Methods("GET")
	r.HandleFunc("/stores/{store}/collections", s.createCollection).Methods("POST")

	// Sessions
	r.HandleFunc("/sessions", s.openSession).Methods("POST")
	r.HandleFunc("/sessions/{id}", s.getSession).Methods("GET")
	r.HandleFunc("/sessions/{id}", s.closeSession).Methods("DELETE")
	r.HandleFunc("/sessions/{id}/selection", s.setSelection).Methods("PUT")
	r.HandleFunc("/sessions/{id}/reload", s.reload).Methods("POST")
	r.HandleFunc("/sessions/{id}/cells", s.setCell).Methods("PUT")
	r.HandleFunc("/sessions/{id}/rows", s.appendRow).Methods("POST")
	r.HandleFunc("/sessions/{id}/rows/{row}", s.deleteRow).Methods("DELETE")
	r.HandleFunc("/sessions/{id}/save", s.save).Methods("POST")
	r.HandleFunc("/sessions/{id}/histogram", s.histogram).Methods("GET")
	r.HandleFunc("/sessions/{id}/charts", s.allCharts).Methods("GET")

	// Save journal
	r.HandleFunc("/saves", s.listSaves).Methods("GET")

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return requestLogger(securityHeaders(r))
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	slog.Info("REST API listening", "addr", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// --- Store Handlers ---

func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.svc.ListStores(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	store := mux.Vars(r)["store"]
	colls, err := s.svc.ListCollections(r.Context(), store)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": store, "collections": colls})
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h, err := s.svc.CreateCollection(r.Context(), mux.Vars(r)["store"], req.Name)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

// --- Session Handlers ---

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	id := s.svc.OpenSession()
	up, err := s.svc.State(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Update: up})
}

type sessionResponse struct {
	ID string `json:"id"`
	*tablesync.Update
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	up, err := s.svc.State(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Update: up})
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CloseSession(mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Store      string `json:"store"`
		Collection string `json:"collection"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.dispatch(w, r, tablesync.Intent{
		Kind: tablesync.IntentSelectionChanged, Store: req.Store, Collection: req.Collection,
	})
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, tablesync.Intent{Kind: tablesync.IntentRefresh})
}

func (s *Server) setCell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Row    *int   `json:"row"`
		Column string `json:"column"`
		Value  any    `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Row == nil || req.Column == "" {
		writeError(w, http.StatusBadRequest, "row and column are required")
		return
	}
	s.dispatch(w, r, tablesync.Intent{
		Kind: tablesync.IntentCellEdited, Row: *req.Row, Column: req.Column, Value: req.Value,
	})
}

func (s *Server) appendRow(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, tablesync.Intent{Kind: tablesync.IntentAddRow})
}

func (s *Server) deleteRow(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(mux.Vars(r)["row"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "row must be an integer")
		return
	}
	s.dispatch(w, r, tablesync.Intent{Kind: tablesync.IntentDeleteRow, Row: row})
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, tablesync.Intent{Kind: tablesync.IntentSave})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, in tablesync.Intent) {
	id := mux.Vars(r)["id"]
	up, err := s.svc.Dispatch(r.Context(), id, in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Update: up})
}

// --- Chart Handlers ---

func (s *Server) histogram(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec := chart.Spec{X: q.Get("x"), Color: q.Get("color"), Title: q.Get("title")}
	if spec.X == "" {
		writeError(w, http.StatusBadRequest, "x is required")
		return
	}
	res, err := s.svc.Histogram(mux.Vars(r)["id"], spec)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// allCharts renders every configured chart; charts naming columns the table lacks are skipped.
func (s *Server) allCharts(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	results := make([]*chart.Result, 0, len(s.charts))
	for _, spec := range s.charts {
		res, err := chart.Histogram(snap, spec)
		if err != nil {
			continue
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"charts": results})
}

// --- Journal Handlers ---

func (s *Server) listSaves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.svc.SaveHistory(q.Get("store"), q.Get("collection"), limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saves": runs})
}

// --- Health ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if err := s.svc.Ping(r.Context()); err != nil {
		resp["status"] = "unhealthy"
		resp["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch domain.KindName(err) {
	case "not_found":
		return http.StatusNotFound
	case "range":
		return http.StatusBadRequest
	case "validation":
		return http.StatusUnprocessableEntity
	case "connection":
		return http.StatusServiceUnavailable
	case "save_in_progress":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error(), "kind": domain.KindName(err)}
	var pe *domain.PartialSaveError
	if errors.As(err, &pe) {
		body["deleted"] = pe.Deleted
		body["inserted"] = pe.Inserted
		body["expected"] = pe.Expected
	}
	if status >= http.StatusInternalServerError {
		requestLog(r).Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
