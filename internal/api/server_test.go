package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/credentials"
	"call-insights-go/internal/mcube"
	"call-insights-go/internal/poller"
	"call-insights-go/internal/provider"
	"call-insights-go/internal/registry"
	"call-insights-go/internal/types"
	"call-insights-go/internal/vapi"
)

func newTestServer(t *testing.T, upstream http.Handler) *Server {
	t.Helper()
	if upstream == nil {
		upstream = http.NotFoundHandler()
	}
	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)

	creds := credentials.NewStore("", filepath.Join(t.TempDir(), "creds.json"), time.Minute)
	require.NoError(t, creds.Set(credentials.Credentials{APIKey: "test-key", AssistantID: "asst_1"}))

	mc := mcube.NewService(
		provider.NewClient("mcube", up.URL, []string{"/api/v1/calls"}, creds, provider.WithMaxAttempts(1)),
		registry.New(types.ProviderMCube),
	)
	va := vapi.NewService(
		provider.NewClient("vapi", up.URL, []string{"/call"}, creds, provider.WithMaxAttempts(1)),
		registry.New(types.ProviderVapi),
	)
	return NewServer(mc, va, creds, map[types.Provider]*poller.Poller{}, 10)
}

func doRequest(s *Server, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func seedCall(reg *registry.Registry, id string, provider types.Provider, dir types.Direction, start time.Time) {
	reg.Store(types.CallRecord{
		ID:        id,
		Provider:  provider,
		Direction: dir,
		StartTime: start,
		Sentiment: types.SentimentNeutral,
	})
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	seedCall(s.mcube.Registry(), "m1", types.ProviderMCube, types.DirectionInbound, time.Now())

	rr := doRequest(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["mcube_calls"])
	assert.EqualValues(t, 0, body["vapi_calls"])
}

func TestListCalls_MergesProvidersNewestFirst(t *testing.T) {
	s := newTestServer(t, nil)
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	seedCall(s.mcube.Registry(), "m1", types.ProviderMCube, types.DirectionInbound, base)
	seedCall(s.vapi.Registry(), "v1", types.ProviderVapi, types.DirectionInbound, base.Add(time.Hour))
	seedCall(s.mcube.Registry(), "m2", types.ProviderMCube, types.DirectionOutbound, base.Add(2*time.Hour))

	rr := doRequest(s, http.MethodGet, "/api/calls", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Calls []types.CallRecord `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Calls, 3)
	assert.Equal(t, "m2", body.Calls[0].ID)
	assert.Equal(t, "v1", body.Calls[1].ID)
	assert.Equal(t, "m1", body.Calls[2].ID)
}

func TestListCalls_FiltersAndLimit(t *testing.T) {
	s := newTestServer(t, nil)
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	for i, dir := range []types.Direction{
		types.DirectionInbound, types.DirectionOutbound, types.DirectionInbound,
		types.DirectionInbound, types.DirectionOutbound,
	} {
		seedCall(s.mcube.Registry(), string(rune('a'+i)), types.ProviderMCube, dir, base.Add(time.Duration(i)*time.Minute))
	}

	rr := doRequest(s, http.MethodGet, "/api/calls?provider=mcube&direction=inbound&limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Calls []types.CallRecord `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Calls, 2)
	for _, c := range body.Calls {
		assert.Equal(t, types.DirectionInbound, c.Direction)
	}
}

func TestListCalls_BadProviderAndDirection(t *testing.T) {
	s := newTestServer(t, nil)

	rr := doRequest(s, http.MethodGet, "/api/calls?provider=twilio", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(s, http.MethodGet, "/api/calls?direction=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetCall_FromRegistry(t *testing.T) {
	s := newTestServer(t, nil)
	seedCall(s.vapi.Registry(), "v1", types.ProviderVapi, types.DirectionInbound, time.Now())

	rr := doRequest(s, http.MethodGet, "/api/calls/v1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var rec types.CallRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "v1", rec.ID)
}

func TestGetCall_UnknownIsNotFound(t *testing.T) {
	s := newTestServer(t, nil) // upstream 404s the detail fetch

	rr := doRequest(s, http.MethodGet, "/api/calls/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetCall_FallsBackToDetailFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /call/v9", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        "v9",
			"status":    "ended",
			"startedAt": "2025-11-03T10:00:00Z",
		})
	})
	s := newTestServer(t, mux)

	rr := doRequest(s, http.MethodGet, "/api/calls/v9?provider=vapi", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var rec types.CallRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "v9", rec.ID)

	_, ok := s.vapi.Registry().Get("v9")
	assert.True(t, ok, "detail fetch upserts into the registry")
}

func TestStats(t *testing.T) {
	s := newTestServer(t, nil)
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	seedCall(s.mcube.Registry(), "m1", types.ProviderMCube, types.DirectionInbound, base)
	seedCall(s.vapi.Registry(), "v1", types.ProviderVapi, types.DirectionInbound, base)

	rr := doRequest(s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		TotalCalls int `json:"total_calls"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.TotalCalls)
}

func TestOutbound_Mcube(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /outbound/call", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"callid": "oc-1", "status": "success"})
	})
	s := newTestServer(t, mux)

	rr := doRequest(s, http.MethodPost, "/api/calls/outbound", outboundRequest{
		Provider:      "mcube",
		AgentPhone:    "9100000001",
		CustomerPhone: "9100000002",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec types.CallRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "oc-1", rec.ID)

	_, ok := s.mcube.Registry().Get("oc-1")
	assert.True(t, ok)
}

func TestOutbound_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	rr := doRequest(s, http.MethodPost, "/api/calls/outbound", outboundRequest{Provider: "mcube", AgentPhone: "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "customer phone required")

	rr = doRequest(s, http.MethodPost, "/api/calls/outbound", outboundRequest{Provider: "mcube", CustomerPhone: "y"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "agent phone required for mcube")

	rr = doRequest(s, http.MethodPost, "/api/calls/outbound", outboundRequest{Provider: "skype", CustomerPhone: "y"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown provider")
}

func TestOutbound_UpstreamFailureIsBlocking(t *testing.T) {
	s := newTestServer(t, nil) // upstream has no outbound route

	rr := doRequest(s, http.MethodPost, "/api/calls/outbound", outboundRequest{
		Provider:      "vapi",
		CustomerPhone: "9100000002",
	})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestCreateCampaign(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /campaigns", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"campaignid": "cmp-1", "status": "created"})
	})
	s := newTestServer(t, mux)

	rr := doRequest(s, http.MethodPost, "/api/campaigns", campaignRequest{
		Name:       "fall-admissions",
		AgentPhone: "9100000001",
		Contacts:   []types.Contact{{Name: "Ada", Phone: "5551234567"}},
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var c types.Campaign
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, "cmp-1", c.ID)
}

func TestCreateCampaign_FromContactsFile(t *testing.T) {
	orig := loadContacts
	loadContacts = func(path string) ([]types.Contact, error) {
		return []types.Contact{{Name: "Grace", Phone: "5559876543"}}, nil
	}
	t.Cleanup(func() { loadContacts = orig })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /campaigns", func(w http.ResponseWriter, r *http.Request) {
		var c types.Campaign
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		assert.Len(t, c.Contacts, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"campaignid": "cmp-2"})
	})
	s := newTestServer(t, mux)

	rr := doRequest(s, http.MethodPost, "/api/campaigns", campaignRequest{
		Name:         "spring-outreach",
		ContactsFile: "contacts.xlsx",
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestCreateCampaign_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	rr := doRequest(s, http.MethodPost, "/api/campaigns", campaignRequest{Contacts: []types.Contact{{Phone: "x"}}})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "name required")

	rr = doRequest(s, http.MethodPost, "/api/campaigns", campaignRequest{Name: "n"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "contacts required")
}

func TestMcubeWebhook(t *testing.T) {
	s := newTestServer(t, nil)

	rr := doRequest(s, http.MethodPost, "/webhooks/mcube", map[string]string{
		"callid":     "wh-1",
		"starttime":  "2025-11-03 10:00:00",
		"custnumber": "9100000002",
		"direction":  "inbound",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rec, ok := s.mcube.Registry().Get("wh-1")
	require.True(t, ok)
	assert.Equal(t, types.DirectionInbound, rec.Direction)
}

func TestMcubeWebhook_MalformedPayload(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mcube", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRefresh_ForcesPoller(t *testing.T) {
	var fetches atomic.Int32
	p := poller.New("mcube", time.Hour, func(ctx context.Context) error {
		fetches.Add(1)
		return nil
	})
	s := newTestServer(t, nil)
	s.pollers[types.ProviderMCube] = p

	rr := doRequest(s, http.MethodPost, "/api/refresh?provider=mcube&force=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int32(1), fetches.Load())

	rr = doRequest(s, http.MethodPost, "/api/refresh?provider=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCredentialEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rr := doRequest(s, http.MethodGet, "/api/credentials", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, true, status["configured"])
	assert.Equal(t, "asst_1", status["assistant_id"])
	assert.NotContains(t, rr.Body.String(), "test-key", "api key never leaves the server")

	rr = doRequest(s, http.MethodDelete, "/api/credentials", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(s, http.MethodGet, "/api/credentials", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, false, status["configured"])

	rr = doRequest(s, http.MethodPost, "/api/credentials", credentials.Credentials{APIKey: "new-key"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(s, http.MethodPost, "/api/credentials", credentials.Credentials{})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "api key required")
}
