package pipeline

import (
	"holders-backend/internal/fetcher"
	"holders-backend/internal/scheduler"
	"holders-backend/internal/series"
)

// DefaultSubject is the token tracked when none is configured
const DefaultSubject = "9j6twpYWrV1ueJok76D9YK8wJTVoG9Zy8spC7wnTpump"

// Config holds configuration for the tracking pipeline
type Config struct {
	Subject          string           `json:"subject" yaml:"subject"`                    // initial token mint
	ValidateSubjects bool             `json:"validateSubjects" yaml:"validate_subjects"` // require base58 32-byte mints
	Capacity         int              `json:"capacity" yaml:"capacity"`                  // samples kept (default: 2000)
	Fetcher          fetcher.Config   `json:"fetcher" yaml:"fetcher"`
	Scheduler        scheduler.Config `json:"scheduler" yaml:"scheduler"`
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() Config {
	return Config{
		Subject:          DefaultSubject,
		ValidateSubjects: true,
		Capacity:         series.DefaultCapacity,
		Fetcher:          fetcher.DefaultConfig(),
		Scheduler:        scheduler.DefaultConfig(),
	}
}
