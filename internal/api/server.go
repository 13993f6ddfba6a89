package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"call-insights-go/internal/aggregator"
	"call-insights-go/internal/credentials"
	"call-insights-go/internal/dataset"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/mcube"
	"call-insights-go/internal/poller"
	"call-insights-go/internal/registry"
	"call-insights-go/internal/types"
	"call-insights-go/internal/vapi"
)

// Server fronts the pipeline for the dashboard client.
type Server struct {
	mcube *mcube.Service
	vapi  *vapi.Service
	creds *credentials.Store

	pollers map[types.Provider]*poller.Poller

	topKeywords int
	mux         *http.ServeMux
	log         *logger.Logger
}

func NewServer(mc *mcube.Service, va *vapi.Service, creds *credentials.Store, pollers map[types.Provider]*poller.Poller, topKeywords int) *Server {
	s := &Server{
		mcube:       mc,
		vapi:        va,
		creds:       creds,
		pollers:     pollers,
		topKeywords: topKeywords,
		mux:         http.NewServeMux(),
		log:         logger.New(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/calls", s.handleListCalls)
	s.mux.HandleFunc("GET /api/calls/{id}", s.handleGetCall)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/calls/outbound", s.handleOutbound)
	s.mux.HandleFunc("POST /api/campaigns", s.handleCreateCampaign)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /webhooks/mcube", s.handleMcubeWebhook)
	s.mux.HandleFunc("GET /api/credentials", s.handleCredentialStatus)
	s.mux.HandleFunc("POST /api/credentials", s.handleSetCredentials)
	s.mux.HandleFunc("DELETE /api/credentials", s.handleClearCredentials)

	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "call-insights-go",
		"mcube_calls": s.mcube.Registry().Len(),
		"vapi_calls":  s.vapi.Registry().Len(),
	})
}

// registriesFor resolves which providers a request targets. An empty
// provider means both.
func (s *Server) registriesFor(provider string) ([]*registry.Registry, error) {
	switch types.Provider(provider) {
	case "":
		return []*registry.Registry{s.mcube.Registry(), s.vapi.Registry()}, nil
	case types.ProviderMCube:
		return []*registry.Registry{s.mcube.Registry()}, nil
	case types.ProviderVapi:
		return []*registry.Registry{s.vapi.Registry()}, nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "list-calls")

	regs, err := s.registriesFor(r.URL.Query().Get("provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	f := registry.Filter{
		AgentPhone: r.URL.Query().Get("agent"),
		Direction:  types.Direction(r.URL.Query().Get("direction")),
	}
	if f.Direction != "" && f.Direction != types.DirectionInbound && f.Direction != types.DirectionOutbound {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid direction %q", f.Direction))
		return
	}
	if t, ok := parseDateParam(r, "start"); ok {
		f.StartDate = &t
	}
	if t, ok := parseDateParam(r, "end"); ok {
		f.EndDate = &t
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	records := collect(regs, f)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	reqLog.WithField("count", len(records)).Debug("calls listed")
	writeJSON(w, http.StatusOK, map[string]any{"calls": records})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	providerParam := r.URL.Query().Get("provider")

	regs, err := s.registriesFor(providerParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, reg := range regs {
		if rec, ok := reg.Get(id); ok {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}

	// Not cached: a detail fetch is load-bearing, so failures surface.
	if providerParam == string(types.ProviderVapi) || providerParam == "" {
		rec, err := s.vapi.GetCall(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
		if !errors.Is(err, credentials.ErrNotConfigured) {
			s.log.WithRequest(r).WithError(err).Warn("detail fetch failed")
		}
	}
	writeError(w, http.StatusNotFound, fmt.Errorf("call %s not found", id))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	regs, err := s.registriesFor(r.URL.Query().Get("provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	topN := s.topKeywords
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topN = n
		}
	}
	writeJSON(w, http.StatusOK, aggregator.Aggregate(collect(regs, registry.Filter{}), topN))
}

type outboundRequest struct {
	Provider      string `json:"provider"`
	AgentPhone    string `json:"agent_phone"`
	CustomerPhone string `json:"customer_phone"`
	AssistantID   string `json:"assistant_id"`
}

func (s *Server) handleOutbound(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "outbound")

	var req outboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	if req.CustomerPhone == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("customer_phone is required"))
		return
	}

	var (
		rec types.CallRecord
		err error
	)
	switch types.Provider(req.Provider) {
	case types.ProviderMCube:
		if req.AgentPhone == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("agent_phone is required for mcube"))
			return
		}
		rec, err = s.mcube.InitiateOutbound(r.Context(), req.AgentPhone, req.CustomerPhone)
	case types.ProviderVapi:
		rec, err = s.vapi.InitiateOutbound(r.Context(), req.AssistantID, req.CustomerPhone)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown provider %q", req.Provider))
		return
	}
	if err != nil {
		reqLog.WithError(err).Warn("outbound call failed")
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type campaignRequest struct {
	Name         string          `json:"name"`
	AgentPhone   string          `json:"agent_phone"`
	Contacts     []types.Contact `json:"contacts"`
	ContactsFile string          `json:"contacts_file"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "create-campaign")

	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}
	contacts := req.Contacts
	if len(contacts) == 0 && req.ContactsFile != "" {
		loaded, err := loadContacts(req.ContactsFile)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("load contacts: %w", err))
			return
		}
		contacts = loaded
	}
	if len(contacts) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("at least one contact is required"))
		return
	}

	created, err := s.mcube.CreateCampaign(r.Context(), types.Campaign{
		Name:       req.Name,
		AgentPhone: req.AgentPhone,
		Contacts:   contacts,
	})
	if err != nil {
		reqLog.WithError(err).Warn("campaign creation failed")
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	providerParam := r.URL.Query().Get("provider")
	force := r.URL.Query().Get("force") == "true"

	targets := make([]*poller.Poller, 0, len(s.pollers))
	if providerParam == "" {
		for _, p := range s.pollers {
			targets = append(targets, p)
		}
	} else if p, ok := s.pollers[types.Provider(providerParam)]; ok {
		targets = append(targets, p)
	} else {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown provider %q", providerParam))
		return
	}

	for _, p := range targets {
		if err := p.Refresh(r.Context(), force); err != nil {
			s.log.WithRequest(r).WithError(err).Warn("manual refresh failed")
			writeError(w, statusFor(err), err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleMcubeWebhook(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "mcube-webhook")

	var raw mcube.RawCall
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		reqLog.WithError(err).Warn("malformed webhook payload")
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid webhook payload"))
		return
	}
	rec := s.mcube.HandleWebhook(raw)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	c, err := s.creds.Get(r.Context())
	if errors.Is(err, credentials.ErrNotConfigured) {
		writeJSON(w, http.StatusOK, map[string]any{"configured": false})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// The key itself never leaves the server.
	writeJSON(w, http.StatusOK, map[string]any{
		"configured":   true,
		"assistant_id": c.AssistantID,
	})
}

func (s *Server) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	var c credentials.Credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	if err := s.creds.Set(c); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleClearCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.creds.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// loadContacts is swapped out in tests.
var loadContacts = dataset.LoadContacts

// collect queries every registry with the same filter (minus limit, which
// is applied after the combined sort) and merges newest-first.
func collect(regs []*registry.Registry, f registry.Filter) []types.CallRecord {
	f.Limit = 0
	var out []types.CallRecord
	for _, reg := range regs {
		out = append(out, reg.Query(f)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	if out == nil {
		out = []types.CallRecord{}
	}
	return out
}

func parseDateParam(r *http.Request, key string) (time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func statusFor(err error) int {
	if errors.Is(err, credentials.ErrNotConfigured) {
		return http.StatusPreconditionFailed
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
