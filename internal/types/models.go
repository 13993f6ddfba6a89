package types

import "time"

// Provider identifies which calling platform a record came from.
type Provider string

const (
	ProviderMCube Provider = "mcube"
	ProviderVapi  Provider = "vapi"
)

// Direction of a call relative to the agent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Sentiment is the coarse per-call label. Providers that don't score
// sentiment get SentimentNeutral.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// CallAnalysis holds behavioral scoring produced by a downstream analysis
// step. The pipeline tolerates its absence everywhere.
type CallAnalysis struct {
	ScriptAdherencePct float64 `json:"script_adherence_pct"`
	DeadAirPct         float64 `json:"dead_air_pct"`
	TalkRatio          float64 `json:"talk_ratio"`
	EmpathyScore       float64 `json:"empathy_score"`
	Success            bool    `json:"success"`
}

// CallRecord is the canonical shape every provider record is normalized
// into. Keywords is never nil once a record leaves a normalizer.
type CallRecord struct {
	ID            string        `json:"id"`
	Provider      Provider      `json:"provider,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	DurationSec   *int          `json:"duration_sec,omitempty"`
	Direction     Direction     `json:"direction"`
	Status        string        `json:"status,omitempty"`
	AgentPhone    string        `json:"agent_phone,omitempty"`
	AgentName     string        `json:"agent_name,omitempty"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	RecordingURL  string        `json:"recording_url,omitempty"`
	Transcription string        `json:"transcription,omitempty"`
	Sentiment     Sentiment     `json:"sentiment,omitempty"`
	Keywords      []string      `json:"keywords"`
	ContactName   string        `json:"contact_name,omitempty"`
	CompanyName   string        `json:"company_name,omitempty"`
	InquiryType   string        `json:"inquiry_type,omitempty"`
	Analysis      *CallAnalysis `json:"analysis,omitempty"`
}

// TalkSeconds returns the known duration, or 0 when the duration is
// unknown (in-progress call or provider omitted it).
func (r CallRecord) TalkSeconds() int {
	if r.DurationSec == nil {
		return 0
	}
	return *r.DurationSec
}

// EnsureKeywords coerces a nil keyword slice to an empty one. Downstream
// code iterates Keywords unconditionally.
func (r *CallRecord) EnsureKeywords() {
	if r.Keywords == nil {
		r.Keywords = []string{}
	}
}

// Merge returns r updated with every field present on in. Fields absent on
// in (zero value, nil pointer, empty slice) keep r's value. This models a
// call's lifecycle: the started event creates the record, the completion
// event fills in status, duration and sentiment.
func (r CallRecord) Merge(in CallRecord) CallRecord {
	out := r
	if in.Provider != "" {
		out.Provider = in.Provider
	}
	if !in.StartTime.IsZero() {
		out.StartTime = in.StartTime
	}
	if in.EndTime != nil {
		out.EndTime = in.EndTime
	}
	if in.DurationSec != nil {
		out.DurationSec = in.DurationSec
	}
	if in.Direction != "" {
		out.Direction = in.Direction
	}
	if in.Status != "" {
		out.Status = in.Status
	}
	if in.AgentPhone != "" {
		out.AgentPhone = in.AgentPhone
	}
	if in.AgentName != "" {
		out.AgentName = in.AgentName
	}
	if in.CustomerPhone != "" {
		out.CustomerPhone = in.CustomerPhone
	}
	if in.RecordingURL != "" {
		out.RecordingURL = in.RecordingURL
	}
	if in.Transcription != "" {
		out.Transcription = in.Transcription
	}
	if in.Sentiment != "" {
		out.Sentiment = in.Sentiment
	}
	if len(in.Keywords) > 0 {
		out.Keywords = in.Keywords
	}
	if in.ContactName != "" {
		out.ContactName = in.ContactName
	}
	if in.CompanyName != "" {
		out.CompanyName = in.CompanyName
	}
	if in.InquiryType != "" {
		out.InquiryType = in.InquiryType
	}
	if in.Analysis != nil {
		out.Analysis = in.Analysis
	}
	out.EnsureKeywords()
	return out
}

// Contact is one campaign target imported from a spreadsheet.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Campaign is an outbound calling campaign submitted to a provider.
type Campaign struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name"`
	AgentPhone string    `json:"agent_phone,omitempty"`
	Contacts   []Contact `json:"contacts"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
