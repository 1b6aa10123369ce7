package model

import "time"

// AlertType enumerates the change-driven notification classes.
type AlertType string

const (
	AlertNewCitation     AlertType = "new_citation"
	AlertLostCitation    AlertType = "lost_citation"
	AlertPositionChange  AlertType = "position_change"
	AlertCompetitorGain  AlertType = "competitor_gain"
	AlertNewPlatform     AlertType = "new_platform"
	AlertSentimentShift  AlertType = "sentiment_shift"
	AlertVolumeSpike     AlertType = "volume_spike"
)

// AlertSeverity ranks how urgently an alert needs attention.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a persisted, change-driven notification owned by a Project.
type Alert struct {
	ID             string        `json:"id"`
	ProjectID      string        `json:"project_id"`
	OrganizationID string        `json:"organization_id"`
	AlertType      AlertType     `json:"alert_type"`
	Severity       AlertSeverity `json:"severity"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	KeywordID      string        `json:"keyword_id,omitempty"`
	Platform       Provider      `json:"platform,omitempty"`
	PreviousValue  string        `json:"previous_value,omitempty"`
	CurrentValue   string        `json:"current_value,omitempty"`
	ChangePercent  *float64      `json:"change_percent,omitempty"`
	IsRead         bool          `json:"is_read"`
	CreatedAt      time.Time     `json:"created_at"`
}
