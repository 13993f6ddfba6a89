package vapi

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"call-insights-go/internal/enrich"
	"call-insights-go/internal/types"
)

// RawCall is the VAPI call object. Field names drifted across API
// revisions, so several aliases are reconciled during normalization.
type RawCall struct {
	ID          string `json:"id"`
	CallID      string `json:"callId"`
	AssistantID string `json:"assistantId"`

	Type   string `json:"type"` // e.g. inboundPhoneCall, outboundPhoneCall
	Status string `json:"status"`

	StartedAt string `json:"startedAt"`
	CreatedAt string `json:"createdAt"`
	EndedAt   string `json:"endedAt"`

	DurationSeconds *int `json:"durationSeconds"`
	Duration        *int `json:"duration"`

	Customer struct {
		Number string `json:"number"`
		Name   string `json:"name"`
	} `json:"customer"`
	PhoneNumber struct {
		Number string `json:"number"`
	} `json:"phoneNumber"`

	RecordingURL      string `json:"recordingUrl"`
	RecordingURLSnake string `json:"recording_url"`

	Transcript    string              `json:"transcript"`
	Transcription string              `json:"transcription"`
	Sentiment     string              `json:"sentiment"`
	Keywords      []string            `json:"keywords"`
	Analysis      *types.CallAnalysis `json:"analysis"`
}

// Normalize maps one raw VAPI call into the canonical shape and enriches
// the gaps.
func Normalize(raw RawCall) types.CallRecord {
	id := raw.ID
	if id == "" {
		id = raw.CallID
	}
	if id == "" {
		id = uuid.New().String()
	}

	start := parseTime(firstNonEmpty(raw.StartedAt, raw.CreatedAt))
	end := parseTimePtr(raw.EndedAt)

	explicitDur := raw.DurationSeconds
	if explicitDur == nil {
		explicitDur = raw.Duration
	}

	rec := types.CallRecord{
		ID:            id,
		Provider:      types.ProviderVapi,
		StartTime:     start,
		EndTime:       end,
		DurationSec:   enrich.ComputeDuration(explicitDur, start, end),
		Direction:     direction(raw),
		Status:        strings.ToLower(strings.TrimSpace(raw.Status)),
		AgentPhone:    raw.PhoneNumber.Number,
		CustomerPhone: raw.Customer.Number,
		RecordingURL:  firstNonEmpty(raw.RecordingURL, raw.RecordingURLSnake),
		Transcription: firstNonEmpty(raw.Transcript, raw.Transcription),
		Sentiment:     parseSentiment(raw.Sentiment),
		Keywords:      raw.Keywords,
		ContactName:   raw.Customer.Name,
		Analysis:      raw.Analysis,
	}
	enrich.Enrich(&rec)
	return rec
}

func direction(raw RawCall) types.Direction {
	t := strings.ToLower(raw.Type)
	switch {
	case strings.Contains(t, "inbound"):
		return types.DirectionInbound
	case strings.Contains(t, "outbound"):
		return types.DirectionOutbound
	}
	return enrich.ResolveDirection("", raw.Customer.Number, raw.PhoneNumber.Number)
}

func parseSentiment(s string) types.Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return types.SentimentPositive
	case "negative":
		return types.SentimentNegative
	case "neutral":
		return types.SentimentNeutral
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseTimePtr(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
