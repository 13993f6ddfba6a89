package mcube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/provider"
	"call-insights-go/internal/registry"
	"call-insights-go/internal/types"
)

// ListFilters narrow a call-log fetch.
type ListFilters struct {
	Limit     int
	StartDate string // YYYY-MM-DD
	EndDate   string
}

// Service owns the MCUBE side of the pipeline: fetch raw call logs,
// normalize, store into the registry.
type Service struct {
	client *provider.Client
	reg    *registry.Registry
	log    *logrus.Entry
}

func NewService(client *provider.Client, reg *registry.Registry) *Service {
	return &Service{
		client: client,
		reg:    reg,
		log:    logger.New().WithComponent("mcube"),
	}
}

func (s *Service) Registry() *registry.Registry { return s.reg }

// RefreshCalls pulls the call log and upserts every record. A degraded
// (empty) transport result leaves the registry untouched.
func (s *Service) RefreshCalls(ctx context.Context, f ListFilters) (int, error) {
	params := url.Values{}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.StartDate != "" {
		params.Set("start_date", f.StartDate)
	}
	if f.EndDate != "" {
		params.Set("end_date", f.EndDate)
	}

	items, err := s.client.List(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("list mcube calls: %w", err)
	}

	stored := 0
	for _, item := range items {
		var raw RawCall
		if err := json.Unmarshal(item, &raw); err != nil {
			s.log.WithError(err).Warn("skipping malformed mcube record")
			continue
		}
		s.reg.Store(Normalize(raw))
		stored++
	}
	s.log.WithField("count", stored).Debug("mcube refresh complete")
	return stored, nil
}

// HandleWebhook ingests one inbound-call event pushed by MCUBE.
func (s *Service) HandleWebhook(raw RawCall) types.CallRecord {
	rec := s.reg.Store(Normalize(raw))
	s.log.WithFields(logrus.Fields{
		"call_id": rec.ID,
		"status":  rec.Status,
	}).Info("mcube webhook ingested")
	return rec
}

type outboundRequest struct {
	ExeNumber  string `json:"exenumber"`
	CustNumber string `json:"custnumber"`
}

type outboundResponse struct {
	CallID  string `json:"callid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// InitiateOutbound starts a click-to-call between the agent and customer.
// Errors propagate: the initiating UI shows a blocking failure.
func (s *Service) InitiateOutbound(ctx context.Context, agentPhone, customerPhone string) (types.CallRecord, error) {
	req := outboundRequest{ExeNumber: agentPhone, CustNumber: customerPhone}
	var resp outboundResponse
	if err := s.client.Post(ctx, "/outbound/call", req, &resp); err != nil {
		return types.CallRecord{}, fmt.Errorf("initiate outbound call: %w", err)
	}

	id := resp.CallID
	if id == "" {
		id = uuid.New().String()
	}
	rec := s.reg.Store(types.CallRecord{
		ID:            id,
		Provider:      types.ProviderMCube,
		StartTime:     time.Now().UTC(),
		Direction:     types.DirectionOutbound,
		Status:        "initiated",
		AgentPhone:    agentPhone,
		CustomerPhone: customerPhone,
		Sentiment:     types.SentimentNeutral,
		Keywords:      []string{},
	})
	s.log.WithField("call_id", rec.ID).Info("outbound call initiated")
	return rec, nil
}

type campaignResponse struct {
	CampaignID string `json:"campaignid"`
	Status     string `json:"status"`
}

// CreateCampaign submits an outbound calling campaign. Errors propagate
// like InitiateOutbound.
func (s *Service) CreateCampaign(ctx context.Context, c types.Campaign) (types.Campaign, error) {
	if c.Name == "" {
		return types.Campaign{}, fmt.Errorf("campaign name is required")
	}
	if len(c.Contacts) == 0 {
		return types.Campaign{}, fmt.Errorf("campaign needs at least one contact")
	}

	var resp campaignResponse
	if err := s.client.Post(ctx, "/campaigns", c, &resp); err != nil {
		return types.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}

	c.ID = resp.CampaignID
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	s.log.WithFields(logrus.Fields{
		"campaign_id": c.ID,
		"contacts":    len(c.Contacts),
	}).Info("campaign created")
	return c, nil
}
