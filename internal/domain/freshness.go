package domain

import (
	"time"

	"github.com/google/uuid"
)

type FreshnessStatus string

const (
	FreshnessVeryFresh FreshnessStatus = "very_fresh"
	FreshnessFresh     FreshnessStatus = "fresh"
	FreshnessGood      FreshnessStatus = "good"
	FreshnessFair      FreshnessStatus = "fair"
	FreshnessPoor      FreshnessStatus = "poor"
	FreshnessSpoiled   FreshnessStatus = "spoiled"
)

// FreshnessStatusForScore maps a 0-100 score onto its band.
func FreshnessStatusForScore(score int) FreshnessStatus {
	switch {
	case score >= 90:
		return FreshnessVeryFresh
	case score >= 80:
		return FreshnessFresh
	case score >= 70:
		return FreshnessGood
	case score >= 50:
		return FreshnessFair
	case score >= 30:
		return FreshnessPoor
	default:
		return FreshnessSpoiled
	}
}

type Defect struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Location string `json:"location"`
}

type ShelfLife struct {
	Days  int `json:"days"`
	Hours int `json:"hours"`
}

type AnalysisMetadata struct {
	ModelVersion     string `json:"modelVersion"`
	ProcessingTimeMs int    `json:"processingTime"`
	ImageSize        int64  `json:"imageSize"`
	ImageFormat      string `json:"imageFormat"`
}

// FreshnessAnalysis is the stored result of one image analysis.
type FreshnessAnalysis struct {
	ID                 uuid.UUID        `json:"id"`
	ProductID          *uuid.UUID       `json:"productId,omitempty"`
	ImageName          string           `json:"image"`
	FreshnessScore     int              `json:"freshnessScore"`
	Confidence         int              `json:"confidence"`
	Status             FreshnessStatus  `json:"status"`
	Defects            []Defect         `json:"defects"`
	EstimatedShelfLife ShelfLife        `json:"estimatedShelfLife"`
	Recommendations    []string         `json:"recommendations"`
	AnalyzedBy         string           `json:"analyzedBy"`
	AnalystID          uuid.UUID        `json:"analyst"`
	Metadata           AnalysisMetadata `json:"metadata"`
	CreatedAt          time.Time        `json:"createdAt"`
}
