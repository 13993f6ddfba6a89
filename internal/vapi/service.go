package vapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/provider"
	"call-insights-go/internal/registry"
	"call-insights-go/internal/types"
)

// ListFilters narrow a call fetch.
type ListFilters struct {
	Limit     int
	StartDate string
	EndDate   string
}

// Service owns the VAPI side of the pipeline.
type Service struct {
	client *provider.Client
	reg    *registry.Registry
	log    *logrus.Entry
}

func NewService(client *provider.Client, reg *registry.Registry) *Service {
	return &Service{
		client: client,
		reg:    reg,
		log:    logger.New().WithComponent("vapi"),
	}
}

func (s *Service) Registry() *registry.Registry { return s.reg }

// RefreshCalls pulls the assistant's calls and upserts every record.
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
		return 0, fmt.Errorf("list vapi calls: %w", err)
	}

	stored := 0
	for _, item := range items {
		var raw RawCall
		if err := json.Unmarshal(item, &raw); err != nil {
			s.log.WithError(err).Warn("skipping malformed vapi record")
			continue
		}
		s.reg.Store(Normalize(raw))
		stored++
	}
	s.log.WithField("count", stored).Debug("vapi refresh complete")
	return stored, nil
}

// GetCall fetches one call by id, normalizes it and upserts the result.
// Exhausted endpoint variants are a hard error here, not an empty record.
func (s *Service) GetCall(ctx context.Context, id string) (types.CallRecord, error) {
	raw, err := s.client.Get(ctx, id)
	if err != nil {
		return types.CallRecord{}, fmt.Errorf("get vapi call %s: %w", id, err)
	}
	var rc RawCall
	if err := json.Unmarshal(raw, &rc); err != nil {
		return types.CallRecord{}, fmt.Errorf("decode vapi call %s: %w", id, err)
	}
	return s.reg.Store(Normalize(rc)), nil
}

type outboundRequest struct {
	AssistantID string `json:"assistantId,omitempty"`
	Customer    struct {
		Number string `json:"number"`
	} `json:"customer"`
}

// InitiateOutbound asks the assistant to place a call. Errors propagate to
// the caller so the UI can show a blocking failure and retry.
func (s *Service) InitiateOutbound(ctx context.Context, assistantID, customerPhone string) (types.CallRecord, error) {
	var req outboundRequest
	req.AssistantID = assistantID
	req.Customer.Number = customerPhone

	var raw RawCall
	if err := s.client.Post(ctx, "/call", req, &raw); err != nil {
		return types.CallRecord{}, fmt.Errorf("initiate vapi call: %w", err)
	}
	if raw.Customer.Number == "" {
		raw.Customer.Number = customerPhone
	}
	if raw.Type == "" {
		raw.Type = "outboundPhoneCall"
	}
	if raw.Status == "" {
		raw.Status = "queued"
	}

	rec := s.reg.Store(Normalize(raw))
	s.log.WithField("call_id", rec.ID).Info("vapi outbound call initiated")
	return rec, nil
}
