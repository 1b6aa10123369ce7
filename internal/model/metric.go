package model

import "time"

// DailyMetric aggregates every Citation with a matching
// (project_id, date, platform) tuple. Recomputation is idempotent: the
// same Citation set always produces the same row.
type DailyMetric struct {
	ProjectID         string    `json:"project_id"`
	Date              time.Time `json:"date"` // truncated to day, UTC
	Platform          Provider  `json:"platform"`
	TotalQueries      int       `json:"total_queries"`
	Mentions          int       `json:"mentions"`
	AvgPosition       float64   `json:"avg_position"`
	PositiveSentiment int       `json:"positive_sentiment"`
	NeutralSentiment  int       `json:"neutral_sentiment"`
	NegativeSentiment int       `json:"negative_sentiment"`
	TotalSourcesCited int       `json:"total_sources_cited"`
}
