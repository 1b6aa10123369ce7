package model

import "time"

// FunnelStage classifies a keyword by purchase-funnel position.
type FunnelStage string

const (
	FunnelAwareness    FunnelStage = "awareness"
	FunnelConsideration FunnelStage = "consideration"
	FunnelDecision     FunnelStage = "decision"
)

// Keyword is a tracked query string, owned by a Project.
type Keyword struct {
	ID            string      `json:"id"`
	ProjectID     string      `json:"project_id"`
	KeywordText   string      `json:"keyword_text"`
	PriorityLevel int         `json:"priority_level"` // 1..5
	FunnelStage   FunnelStage `json:"funnel_stage"`
	IsActive      bool        `json:"is_active"`
	LastTrackedAt *time.Time  `json:"last_tracked_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
