package model

import "time"

// Grade is the letter grade derived from a composite visibility score.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

// GradeFor maps a composite score in [0,100] to a letter grade per spec §4.6.
func GradeFor(composite float64) Grade {
	switch {
	case composite >= 90:
		return GradeAPlus
	case composite >= 80:
		return GradeA
	case composite >= 70:
		return GradeB
	case composite >= 60:
		return GradeC
	case composite >= 50:
		return GradeD
	default:
		return GradeF
	}
}

// ComponentScores holds the five weighted component scores that make up
// a VisibilityScore's composite, each in [0,100].
type ComponentScores struct {
	Frequency float64 `json:"frequency"`
	Position  float64 `json:"position"`
	Diversity float64 `json:"diversity"`
	Context   float64 `json:"context"`
	Momentum  float64 `json:"momentum"`
}

// VisibilityScore is one row of the append-only score time series for a project.
type VisibilityScore struct {
	ProjectID    string          `json:"project_id"`
	CalculatedAt time.Time       `json:"calculated_at"`
	Components   ComponentScores `json:"component_scores"`
	Overall      float64         `json:"overall_score"`
	GradeLetter  Grade           `json:"grade"`
	Delta7d      *float64        `json:"delta_7d,omitempty"`
	Delta30d     *float64        `json:"delta_30d,omitempty"`
}

// ShareOfVoice is one domain's percentage of total self-or-competitor
// mentions over the scoring window.
type ShareOfVoice struct {
	Domain      string  `json:"domain"`
	IsSelf      bool    `json:"is_self"`
	Mentions    int     `json:"mentions"`
	SharePct    float64 `json:"share_pct"`
}

// TrendDirection classifies a keyword's week-over-week movement.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// KeywordTrend is one keyword's week-over-week citation and position delta.
type KeywordTrend struct {
	KeywordID        string         `json:"keyword_id"`
	KeywordText      string         `json:"keyword_text"`
	ThisWeekCitations int           `json:"this_week_citations"`
	LastWeekCitations int           `json:"last_week_citations"`
	CitationDelta     int           `json:"citation_delta"`
	PositionDelta     float64       `json:"position_delta"` // lastWeekAvgPos - thisWeekAvgPos
	Direction         TrendDirection `json:"direction"`
}
