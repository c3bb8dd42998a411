// Package job tracks coarse progress of pipeline runs. The pipeline only
// reports events through the Reporter interface; owning job state, retry
// policy, and persistence stays with whoever implements it. The in-memory
// Store here backs the HTTP surface and the CLI.
package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one coarse progress update ("batch 2 of 5 complete").
type Event struct {
	Stage     string `json:"stage"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s: %d/%d %s", e.Stage, e.Completed, e.Total, e.Message)
}

// Reporter receives progress events for a job. Implementations must be
// safe for concurrent use; the pipeline reports from concurrent windows.
type Reporter interface {
	Progress(jobID string, e Event)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) Progress(string, Event) {}

// Status is the lifecycle state of a tracked job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one tracked pipeline run.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Progress  Event     `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is an in-memory job registry. It implements Reporter.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Create registers a new running job and returns its id.
func (s *Store) Create(kind string) string {
	id := uuid.NewString()
	now := time.Now()
	s.mu.Lock()
	s.jobs[id] = &Job{
		ID:        id,
		Kind:      kind,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Unlock()
	return id
}

// Progress records the latest event for a job. Unknown ids are ignored.
func (s *Store) Progress(jobID string, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		j.Progress = e
		j.UpdatedAt = time.Now()
	}
}

// Complete marks a job finished.
func (s *Store) Complete(jobID string) {
	s.setStatus(jobID, StatusCompleted, "")
}

// Fail marks a job failed with its error.
func (s *Store) Fail(jobID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.setStatus(jobID, StatusFailed, msg)
}

func (s *Store) setStatus(jobID string, st Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		j.Status = st
		j.Error = errMsg
		j.UpdatedAt = time.Now()
	}
}

// Get returns a copy of a job.
func (s *Store) Get(jobID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}
