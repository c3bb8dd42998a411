// Package amend generates section-level amendment text and brand-new
// sections through concurrency-bounded generation calls. Unlike the rule
// mapper, every failure here is item-local: one section or insertion-point
// group failing never disturbs its siblings or later windows.
package amend

import (
	"strings"
	"time"

	"redline/internal/llm"
)

// DefaultConcurrency bounds how many generation calls run in one window.
const DefaultConcurrency = 3

// Config tunes the scheduler and inserter.
type Config struct {
	Concurrency int
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = llm.DefaultTimeout
	}
	return c
}

// Amendment is a generated replacement for a section's text.
type Amendment struct {
	Original       string   `json:"original"`
	Amended        string   `json:"amended"`
	AppliedRules   []string `json:"appliedRules"`
	IsFullDeletion bool     `json:"isFullDeletion"`
}

// Outcome is the classified generation response for one section: either
// the section was left untouched or it carries an amendment.
type Outcome struct {
	NoChanges bool       `json:"noChanges,omitempty"`
	Amendment *Amendment `json:"amendment,omitempty"`
}

// Result is the per-section amendment outcome. Results are independent of
// each other; there is no shared state between them.
type Result struct {
	SectionNumber string   `json:"sectionNumber"`
	Success       bool     `json:"success"`
	Result        *Outcome `json:"result,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// deletionMarkers are the recognized stand-ins for a removed section,
// compared after trimming, bracket stripping, and case folding.
var deletionMarkers = []string{
	"deleted",
	"reserved",
	"intentionally omitted",
	"intentionally deleted",
	"intentionally left blank",
}

// IsDeletionMarker reports whether amended text is a recognized full
// deletion rather than substitute language.
func IsDeletionMarker(amended string) bool {
	s := strings.TrimSpace(amended)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)
	for _, marker := range deletionMarkers {
		if strings.EqualFold(s, marker) {
			return true
		}
	}
	return false
}
