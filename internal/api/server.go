// Package api exposes the read and control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/ledger"
	"pendle-watch/internal/reconcile"
	"pendle-watch/internal/runner"
	"pendle-watch/internal/storage"
)

// defaultHistoryDays bounds the history listing when no range is given.
const defaultHistoryDays = 30

// Syncer triggers a reconciliation run on demand.
type Syncer interface {
	RunOnce(ctx context.Context) (*reconcile.Report, error)
}

// Server handles the HTTP API. It reads and writes through the same stores
// the reconciliation engine uses.
type Server struct {
	stores storage.Stores
	syncer Syncer
	logger *log.Logger
	now    func() time.Time
}

// NewServer creates a Server. Syncer may be nil; the sync endpoints then
// report the feature unavailable.
func NewServer(stores storage.Stores, syncer Syncer, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{stores: stores, syncer: syncer, logger: logger, now: time.Now}
}

// Mount attaches all routes to the router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects/{address}/monitor", s.handleSetMonitored)
		r.Patch("/projects/{address}/group", s.handleSetGroup)
		r.Get("/groups", s.handleListGroups)
		r.Post("/groups", s.handleCreateGroup)
		r.Get("/history", s.handleListHistory)
		r.Post("/history/cleanup", s.handleHistoryCleanup)
		r.Post("/sync", s.handleSync)
		r.Get("/sync/last", s.handleLastSync)
	})
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, apiError{Error: message})
}

func decodeJSONBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type projectResponse struct {
	Address    string     `json:"address"`
	Name       string     `json:"name"`
	ChainID    *int64     `json:"chain_id,omitempty"`
	Group      string     `json:"group"`
	Expiry     *time.Time `json:"expiry,omitempty"`
	TVL        *float64   `json:"tvl,omitempty"`
	Volume24h  *float64   `json:"volume_24h,omitempty"`
	ImpliedAPY *float64   `json:"implied_apy,omitempty"`
	YTAddress  string     `json:"yt_address,omitempty"`
	Monitored  bool       `json:"monitored"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toProjectResponse(p *domain.Project) projectResponse {
	group := p.Group
	if group == "" {
		group = domain.DefaultGroup
	}
	return projectResponse{
		Address:    p.Address,
		Name:       p.Name,
		ChainID:    p.ChainID,
		Group:      group,
		Expiry:     p.Expiry,
		TVL:        p.TVL,
		Volume24h:  p.Volume24h,
		ImpliedAPY: p.ImpliedAPY,
		YTAddress:  p.YTAddress,
		Monitored:  p.Monitored,
		UpdatedAt:  p.UpdatedAt,
	}
}

// handleListProjects lists projects. By default only those currently in the
// qualifying universe are shown; ?all=true includes the rest. ?monitored
// filters on the user flag.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	visibleOnly := r.URL.Query().Get("all") != "true"

	var (
		projects []*domain.Project
		err      error
	)
	switch r.URL.Query().Get("monitored") {
	case "":
		projects, err = s.stores.Projects.GetAll(r.Context(), visibleOnly)
	case "true":
		projects, err = s.stores.Projects.GetMonitored(r.Context(), visibleOnly)
	case "false":
		projects, err = s.stores.Projects.GetUnmonitored(r.Context(), visibleOnly)
	default:
		writeError(w, http.StatusBadRequest, "monitored must be true or false")
		return
	}
	if err != nil {
		s.logger.Printf("list projects: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load projects")
		return
	}

	response := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		response = append(response, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, response)
}

type setMonitoredRequest struct {
	Monitored bool `json:"monitored"`
}

func (s *Server) handleSetMonitored(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	var req setMonitoredRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := s.stores.Projects.SetMonitored(r.Context(), address, req.Monitored)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		s.logger.Printf("set monitored for %s: %v", address, err)
		writeError(w, http.StatusInternalServerError, "failed to update project")
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

type setGroupRequest struct {
	Group string `json:"group"`
}

// handleSetGroup assigns a project to a group, creating the group if it
// does not exist yet.
func (s *Server) handleSetGroup(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	var req setGroupRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Group = strings.TrimSpace(req.Group)
	if req.Group == "" {
		writeError(w, http.StatusBadRequest, "group must not be empty")
		return
	}

	if err := s.stores.Groups.EnsureExists(r.Context(), req.Group); err != nil {
		s.logger.Printf("ensure group %q: %v", req.Group, err)
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	p, err := s.stores.Projects.SetGroup(r.Context(), address, req.Group)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		s.logger.Printf("set group for %s: %v", address, err)
		writeError(w, http.StatusInternalServerError, "failed to update project")
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

type groupResponse struct {
	Name         string `json:"name"`
	ProjectCount int    `json:"project_count"`
}

// handleListGroups lists all groups with their project counts. Groups with
// no projects are included.
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.stores.Groups.List(r.Context())
	if err != nil {
		s.logger.Printf("list groups: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load groups")
		return
	}

	projects, err := s.stores.Projects.GetAll(r.Context(), false)
	if err != nil {
		s.logger.Printf("count projects per group: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load projects")
		return
	}
	counts := make(map[string]int)
	for _, p := range projects {
		group := p.Group
		if group == "" {
			group = domain.DefaultGroup
		}
		counts[group]++
	}

	response := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		response = append(response, groupResponse{Name: g.Name, ProjectCount: counts[g.Name]})
	}
	writeJSON(w, http.StatusOK, response)
}

type createGroupRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}

	if err := s.stores.Groups.EnsureExists(r.Context(), req.Name); err != nil {
		s.logger.Printf("create group %q: %v", req.Name, err)
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	writeJSON(w, http.StatusCreated, groupResponse{Name: req.Name})
}

type historyEventResponse struct {
	Date    string `json:"date"`
	Action  string `json:"action"`
	Address string `json:"address"`
	Name    string `json:"name"`
}

// handleListHistory lists ledger events for the last ?days days (default
// 30). Within a day, a Removed row hides an Added row for the same address.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	to := domain.DayOf(s.now())
	from := to.AddDate(0, 0, -(days - 1))

	events, err := s.stores.History.ListRange(r.Context(), from, to)
	if err != nil {
		s.logger.Printf("list history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	// Legacy rows may still carry same-day Added+Removed pairs; the view
	// applies the dominance rule instead of trusting old data.
	type dayAddr struct {
		date    time.Time
		address string
	}
	removedOn := make(map[dayAddr]struct{})
	for _, e := range events {
		if e.Action == domain.ActionRemoved {
			removedOn[dayAddr{e.Date, e.Address}] = struct{}{}
		}
	}

	response := make([]historyEventResponse, 0, len(events))
	for _, e := range events {
		if e.Action == domain.ActionAdded {
			if _, conflict := removedOn[dayAddr{e.Date, e.Address}]; conflict {
				continue
			}
		}
		response = append(response, historyEventResponse{
			Date:    e.Date.Format("2006-01-02"),
			Action:  string(e.Action),
			Address: e.Address,
			Name:    e.Name,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

type cleanupResponse struct {
	Deleted int `json:"deleted"`
}

// handleHistoryCleanup deletes Added rows that conflict with a same-day
// Removed row. Safe to call repeatedly.
func (s *Server) handleHistoryCleanup(w http.ResponseWriter, r *http.Request) {
	led := ledger.New(s.stores.Projects, s.stores.History)
	deleted, err := led.DeduplicateConflicts(r.Context())
	if err != nil {
		s.logger.Printf("history cleanup: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to clean up history")
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Deleted: deleted})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}

	report, err := s.syncer.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "a sync run is already in progress")
			return
		}
		s.logger.Printf("manual sync: %v", err)
		writeError(w, http.StatusBadGateway, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type syncStatusResponse struct {
	SyncTime time.Time `json:"sync_time"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
}

func (s *Server) handleLastSync(w http.ResponseWriter, r *http.Request) {
	last, err := s.stores.SyncLogs.Latest(r.Context(), domain.SyncTypeProjects)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no sync has run yet")
			return
		}
		s.logger.Printf("last sync: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load sync status")
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{
		SyncTime: last.SyncTime,
		Status:   last.Status,
		Message:  last.Message,
	})
}
