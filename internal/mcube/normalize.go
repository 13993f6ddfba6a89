package mcube

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"call-insights-go/internal/enrich"
	"call-insights-go/internal/types"
)

// RawCall is the MCUBE record shape, shared by the list endpoint and the
// inbound-call webhook. Everything is string-typed on the wire; older
// records omit the agent fields.
type RawCall struct {
	CallID   string `json:"callid"`
	AltID    string `json:"id"`
	UniqueID string `json:"uniqueid"`

	StartTime string `json:"starttime"`
	CallDate  string `json:"call_date"`
	EndTime   string `json:"endtime"`
	Duration  string `json:"duration"`

	AgentNumber string `json:"agentnumber"`
	AgentName   string `json:"agentname"`
	CustNumber  string `json:"custnumber"`

	DialStatus     string `json:"dialstatus"`
	Direction      string `json:"direction"`
	DisconnectedBy string `json:"disconnectedby"`
	GroupName      string `json:"groupname"`

	Filename        string `json:"filename"`
	RecordingURL    string `json:"recording_url"`
	RecordingURLAlt string `json:"recordingUrl"`

	Transcription string              `json:"transcription"`
	Sentiment     string              `json:"sentiment"`
	Keywords      []string            `json:"keywords"`
	Analysis      *types.CallAnalysis `json:"analysis"`
}

// MCUBE formats timestamps several ways depending on the endpoint.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-01-2006 15:04:05",
	"2006-01-02",
}

// Normalize maps one raw MCUBE record into the canonical shape and runs
// enrichment for the fields MCUBE doesn't supply.
func Normalize(raw RawCall) types.CallRecord {
	id := firstNonEmpty(raw.CallID, raw.AltID, raw.UniqueID)
	if id == "" {
		id = uuid.New().String()
	}

	start := parseTime(firstNonEmpty(raw.StartTime, raw.CallDate))
	end := parseTimePtr(raw.EndTime)

	var explicitDur *int
	if raw.Duration != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw.Duration)); err == nil {
			explicitDur = &n
		}
	}

	rec := types.CallRecord{
		ID:            id,
		Provider:      types.ProviderMCube,
		StartTime:     start,
		EndTime:       end,
		DurationSec:   enrich.ComputeDuration(explicitDur, start, end),
		Direction:     enrich.ResolveDirection(raw.Direction, "", raw.AgentNumber),
		Status:        strings.ToLower(strings.TrimSpace(raw.DialStatus)),
		AgentPhone:    raw.AgentNumber,
		AgentName:     raw.AgentName,
		CustomerPhone: raw.CustNumber,
		RecordingURL:  firstNonEmpty(raw.RecordingURL, raw.RecordingURLAlt, raw.Filename),
		Transcription: raw.Transcription,
		Sentiment:     parseSentiment(raw.Sentiment),
		Keywords:      raw.Keywords,
		CompanyName:   raw.GroupName,
		Analysis:      raw.Analysis,
	}
	enrich.Enrich(&rec)
	return rec
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
