package enrich

import (
	"regexp"
	"strings"
	"time"

	"call-insights-go/internal/types"
)

// The heuristics here are best-effort text classifiers. They trade false
// positives for not needing an external NLP service, so every matcher is a
// plain case-insensitive pattern over the transcript.

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([A-Za-z][A-Za-z'-]*(?:\s+[A-Za-z][A-Za-z'-]*)?)`),
	regexp.MustCompile(`(?i)\bthis is ([A-Za-z][A-Za-z'-]*(?:\s+[A-Za-z][A-Za-z'-]*)?)\s+(?:calling|speaking)\b`),
	regexp.MustCompile(`(?i)\b(?:hello|hi)[,!]?\s+([A-Za-z][A-Za-z'-]*)`),
}

var nameStopwords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "from": {},
}

// ExtractContactName scans a transcript for self-introduction phrases and
// returns the first plausible capture. Falls back to "Caller <last 4 digits>"
// of the customer phone, then "Unknown Caller".
func ExtractContactName(transcription, customerPhone string) string {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(transcription)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if len(name) <= 2 {
			continue
		}
		first := strings.ToLower(strings.Fields(name)[0])
		if _, stop := nameStopwords[first]; stop {
			continue
		}
		return name
	}
	if d := digitsOnly(customerPhone); len(d) >= 4 {
		return "Caller " + d[len(d)-4:]
	}
	return "Unknown Caller"
}

// keywordClusters map a topic's primary term to its synonyms. A substring
// hit on any synonym tags the record with the primary term plus the
// specific synonym matched.
var keywordClusters = []struct {
	Primary  string
	Synonyms []string
}{
	{"admissions", []string{"admission", "application", "apply", "acceptance", "accepted", "deadline", "requirements"}},
	{"financial aid", []string{"fafsa", "scholarship", "grant", "student loan", "tuition", "financial assistance"}},
	{"housing", []string{"dorm", "dormitory", "residence hall", "roommate", "housing application"}},
	{"meal plan", []string{"dining hall", "cafeteria", "food service"}},
	{"academic", []string{"major", "minor", "degree program", "curriculum", "coursework"}},
	{"registration", []string{"register", "enroll", "enrollment", "sign up"}},
	{"transcript request", []string{"official transcript", "academic record", "grade report"}},
	{"transfer", []string{"transferring", "transfer credit"}},
	{"orientation", []string{"orientation week", "welcome week", "first-year experience"}},
	{"campus visit", []string{"campus tour", "open house", "visit campus", "guided tour"}},
	{"advising", []string{"advisor", "adviser", "counselor", "academic advising"}},
	{"career services", []string{"internship", "job placement", "resume", "career fair"}},
	{"scheduling", []string{"appointment", "reschedule", "booking", "schedule"}},
	{"payment", []string{"billing", "invoice", "payment plan", "installment"}},
	{"fees", []string{"fee waiver", "application fee", "late fee"}},
	{"test scores", []string{"sat score", "act score", "placement test", "test results"}},
	{"international", []string{"visa", "i-20", "international student"}},
	{"athletics", []string{"athletic scholarship", "sports program", "recruiting"}},
	{"online programs", []string{"online course", "distance learning", "remote class"}},
	{"support", []string{"help", "problem", "issue", "complaint", "frustrated"}},
}

// ExtractKeywords tags a transcript with topic-cluster terms. Deduplicated,
// uncapped; empty transcript yields an empty list, never nil.
func ExtractKeywords(transcription string) []string {
	out := []string{}
	if transcription == "" {
		return out
	}
	lower := strings.ToLower(transcription)
	seen := map[string]struct{}{}
	add := func(kw string) {
		if _, ok := seen[kw]; ok {
			return
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	for _, c := range keywordClusters {
		matched := false
		if strings.Contains(lower, c.Primary) {
			matched = true
		}
		var hits []string
		for _, syn := range c.Synonyms {
			if strings.Contains(lower, syn) {
				matched = true
				if syn != c.Primary {
					hits = append(hits, syn)
				}
			}
		}
		if matched {
			add(c.Primary)
			for _, h := range hits {
				add(h)
			}
		}
	}
	return out
}

// inquiryRules are evaluated in a fixed priority order; the first category
// whose triggers intersect the keyword set wins. Keyword sets overlap
// (e.g. "transfer" is also an Academic trigger), so first-match-wins keeps
// the classification deterministic.
var inquiryRules = []struct {
	Category string
	Triggers []string
}{
	{"Admissions", []string{"admissions", "admission", "application", "apply", "acceptance", "deadline", "requirements"}},
	{"Financial Aid", []string{"financial aid", "fafsa", "scholarship", "tuition", "grant", "student loan"}},
	{"Housing", []string{"housing", "dorm", "residence hall", "roommate", "meal plan"}},
	{"Academic", []string{"academic", "major", "degree", "transfer", "transcript request", "registration"}},
	{"Support", []string{"support", "help", "problem", "issue"}},
	{"Career Services", []string{"career services", "internship", "resume", "job placement"}},
	{"Scheduling", []string{"scheduling", "appointment", "schedule", "campus visit"}},
}

var complaintLexicon = []string{
	"complaint", "frustrated", "angry", "upset", "disappointed",
	"not working", "doesn't work", "cancel", "refund", "speak to a manager",
}

const DefaultInquiryType = "General Inquiry"

// Categorize resolves the inquiry type from the keyword set. Support
// additionally matches a complaint lexicon against the transcript itself.
func Categorize(keywords []string, transcription string) string {
	kwset := map[string]struct{}{}
	for _, k := range keywords {
		kwset[strings.ToLower(k)] = struct{}{}
	}
	lowerTr := strings.ToLower(transcription)
	for _, rule := range inquiryRules {
		for _, t := range rule.Triggers {
			if _, ok := kwset[t]; ok {
				return rule.Category
			}
		}
		if rule.Category == "Support" {
			for _, c := range complaintLexicon {
				if lowerTr != "" && strings.Contains(lowerTr, c) {
					return rule.Category
				}
			}
		}
	}
	return DefaultInquiryType
}

// ResolveDirection trusts an explicit provider field when present,
// otherwise compares the call's originating number against the agent's own.
func ResolveDirection(explicit, fromNumber, agentPhone string) types.Direction {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "inbound", "in", "incoming":
		return types.DirectionInbound
	case "outbound", "out", "outgoing":
		return types.DirectionOutbound
	}
	if agentPhone != "" && digitsOnly(fromNumber) == digitsOnly(agentPhone) {
		return types.DirectionOutbound
	}
	return types.DirectionInbound
}

// ComputeDuration prefers an explicit duration, else derives seconds from
// the timestamps. Unknown stays nil: an in-progress call has no duration,
// and zero would misrepresent it.
func ComputeDuration(explicit *int, start time.Time, end *time.Time) *int {
	if explicit != nil {
		if *explicit < 0 {
			zero := 0
			return &zero
		}
		return explicit
	}
	if !start.IsZero() && end != nil {
		d := int(end.Sub(start).Seconds())
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// Enrich fills analytically-useful fields the provider didn't supply.
// Running it on an already-enriched record is a no-op, so normalizers can
// call it unconditionally.
func Enrich(r *types.CallRecord) {
	r.EnsureKeywords()
	if len(r.Keywords) == 0 && r.Transcription != "" {
		r.Keywords = ExtractKeywords(r.Transcription)
	}
	if r.ContactName == "" {
		r.ContactName = ExtractContactName(r.Transcription, r.CustomerPhone)
	}
	if r.InquiryType == "" {
		r.InquiryType = Categorize(r.Keywords, r.Transcription)
	}
	if r.Sentiment == "" {
		r.Sentiment = types.SentimentNeutral
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
