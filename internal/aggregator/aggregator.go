package aggregator

import (
	"sort"
	"strings"

	"call-insights-go/internal/enrich"
	"call-insights-go/internal/types"
)

// KeywordCount is one entry of the top-keyword leaderboard.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Stats summarizes a batch of call records for the dashboard. Every field
// is defined (zero, not nil) on an empty batch.
type Stats struct {
	TotalCalls            int                     `json:"total_calls"`
	TotalTalkTime         int                     `json:"total_talk_time"`
	UniqueContacts        int                     `json:"unique_contacts"`
	SentimentDistribution map[types.Sentiment]int `json:"sentiment_distribution"`
	TopKeywords           []KeywordCount          `json:"top_keywords"`
	VolumeByDay           map[string]int          `json:"volume_by_day"`
	VolumeByMonth         map[string]int          `json:"volume_by_month"`
	InquiryTypes          map[string]int          `json:"inquiry_types"`
}

// Aggregate is a pure function of its input batch. topN caps the keyword
// leaderboard; values <= 0 fall back to 10.
func Aggregate(records []types.CallRecord, topN int) Stats {
	if topN <= 0 {
		topN = 10
	}
	stats := Stats{
		SentimentDistribution: map[types.Sentiment]int{
			types.SentimentPositive: 0,
			types.SentimentNeutral:  0,
			types.SentimentNegative: 0,
		},
		TopKeywords:   []KeywordCount{},
		VolumeByDay:   map[string]int{},
		VolumeByMonth: map[string]int{},
		InquiryTypes:  map[string]int{},
	}

	phones := map[string]struct{}{}
	kwCounts := map[string]int{}

	for _, r := range records {
		stats.TotalCalls++
		stats.TotalTalkTime += r.TalkSeconds()

		if r.CustomerPhone != "" {
			phones[r.CustomerPhone] = struct{}{}
		}

		switch types.Sentiment(strings.ToLower(string(r.Sentiment))) {
		case types.SentimentPositive:
			stats.SentimentDistribution[types.SentimentPositive]++
		case types.SentimentNegative:
			stats.SentimentDistribution[types.SentimentNegative]++
		default:
			// Missing or unrecognized counts as neutral.
			stats.SentimentDistribution[types.SentimentNeutral]++
		}

		for _, k := range r.Keywords {
			kwCounts[k]++
		}

		if !r.StartTime.IsZero() {
			stats.VolumeByDay[r.StartTime.Format("2006-01-02")]++
			stats.VolumeByMonth[r.StartTime.Format("2006-01")]++
		}

		inquiry := r.InquiryType
		if inquiry == "" {
			inquiry = enrich.Categorize(r.Keywords, r.Transcription)
		}
		stats.InquiryTypes[inquiry]++
	}

	stats.UniqueContacts = len(phones)

	for k, c := range kwCounts {
		stats.TopKeywords = append(stats.TopKeywords, KeywordCount{Keyword: k, Count: c})
	}
	sort.Slice(stats.TopKeywords, func(i, j int) bool {
		if stats.TopKeywords[i].Count == stats.TopKeywords[j].Count {
			return stats.TopKeywords[i].Keyword < stats.TopKeywords[j].Keyword
		}
		return stats.TopKeywords[i].Count > stats.TopKeywords[j].Count
	})
	if len(stats.TopKeywords) > topN {
		stats.TopKeywords = stats.TopKeywords[:topN]
	}

	return stats
}
