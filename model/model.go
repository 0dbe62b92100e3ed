// Package model contains core data types for the project.
package model

import "time"

// Severity defines how urgent an alert is.
type Severity string

const (
	SeverityLow    Severity = "low"    // SeverityLow is informational and expires from the log.
	SeverityMedium Severity = "medium" // SeverityMedium asks for closer monitoring.
	SeverityHigh   Severity = "high"   // SeverityHigh requires immediate action.
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Sample is a single observation of the fairness score.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`            // Observation time.
	Value      float64   `json:"value"`                // Fairness score in [0,100], higher is better.
	MaleRate   float64   `json:"maleRate,omitempty"`   // Selection rate for the male group.
	FemaleRate float64   `json:"femaleRate,omitempty"` // Selection rate for the female group.
}

// BiasScore returns the complement of the fairness score.
func (s Sample) BiasScore() float64 {
	return 100 - s.Value
}

// AlertEvent is a single alert produced by the evaluator or by the session itself.
type AlertEvent struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalysisMetrics is the metrics block of an analysis response.
type AnalysisMetrics struct {
	DisparateImpact   float64 `json:"disparateImpact"`
	StatisticalParity float64 `json:"statisticalParity"`
	BiasScore         float64 `json:"biasScore"`
	RiskLevel         string  `json:"riskLevel"`
	SampleSize        int     `json:"sampleSize"`
	Confidence        float64 `json:"confidence"`
}

// AnalysisResult is the response of the external bias analysis service.
type AnalysisResult struct {
	BiasScore       float64         `json:"biasScore"`
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	MaleRate        float64         `json:"maleRate"`
	FemaleRate      float64         `json:"femaleRate"`
	OtherRate       float64         `json:"otherRate"`
	Metrics         AnalysisMetrics `json:"metrics"`
	Recommendations []string        `json:"recommendations"`
	FileName        string          `json:"fileName,omitempty"`
	FileSize        int64           `json:"fileSize,omitempty"`
	Industry        string          `json:"industry,omitempty"`
	AnalysisTime    int64           `json:"analysisTime,omitempty"`
}

// IndustryFormat describes the CSV layout expected for an industry.
type IndustryFormat struct {
	Industry    string `json:"industry"`
	Format      string `json:"format"`
	Description string `json:"description"`
}
