package amend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"redline/internal/job"
	"redline/internal/llm"
	"redline/internal/outline"
	"redline/internal/prompt"
	"redline/internal/rules"
)

// SectionJob is everything one amendment call needs: the section's own
// text, its locked ancestor context, the rules mapped to it, and, on a
// rerun, the texts of all prior attempts.
type SectionJob struct {
	SectionNumber string
	Text          string
	LockedContext []string
	Rules         []rules.Rule
	PriorAttempts []string
}

// Scheduler dispatches amendment calls level by level, deepest first.
// Parents depend on their children's final text, so a level starts only
// after every deeper level has fully finished.
type Scheduler struct {
	client llm.Client
	log    *zap.Logger
	cfg    Config
}

// NewScheduler creates a Scheduler. A nil logger becomes a no-op logger.
func NewScheduler(client llm.Client, logger *zap.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{client: client, log: logger, cfg: cfg.withDefaults()}
}

// amendResponse is the loose wire shape for one amendment call.
type amendResponse struct {
	NoChanges bool   `json:"noChanges"`
	Reason    string `json:"reason"`
	Amendment *struct {
		Original     string   `json:"original"`
		Amended      string   `json:"amended"`
		AppliedRules []string `json:"appliedRules"`
	} `json:"amendment"`
}

// Run amends every given section and returns one Result per job, in input
// order. Jobs are grouped by tree depth and processed deepest level first;
// within a level, calls run in windows of the configured concurrency.
func (s *Scheduler) Run(ctx context.Context, nodes []*outline.SectionNode, jobs []SectionJob, jobID string, rep job.Reporter) []Result {
	if rep == nil {
		rep = job.NopReporter{}
	}
	results := make([]Result, len(jobs))

	// Group job indices by depth, preserving input order within a level.
	byDepth := make(map[int][]int)
	for i, jb := range jobs {
		depth, ok := outline.Depth(nodes, jb.SectionNumber)
		if !ok {
			results[i] = Result{
				SectionNumber: outline.CanonicalNumber(jb.SectionNumber),
				Error:         "section not found in outline",
			}
			continue
		}
		byDepth[depth] = append(byDepth[depth], i)
	}

	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(depths)))

	var done atomic.Int64
	total := len(jobs)

	for _, depth := range depths {
		level := byDepth[depth]
		s.log.Info("amending level",
			zap.Int("depth", depth),
			zap.Int("sections", len(level)))

		for start := 0; start < len(level); start += s.cfg.Concurrency {
			end := start + s.cfg.Concurrency
			if end > len(level) {
				end = len(level)
			}
			var wg sync.WaitGroup
			for _, idx := range level[start:end] {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[idx] = s.amendOne(ctx, jobs[idx])
					rep.Progress(jobID, job.Event{
						Stage:     "amendment",
						Completed: int(done.Add(1)),
						Total:     total,
						Message:   "section " + results[idx].SectionNumber,
					})
				}()
			}
			wg.Wait()
		}
	}
	return results
}

// amendOne issues a single generation call and classifies the response.
// All failures are captured in the Result, never propagated.
func (s *Scheduler) amendOne(ctx context.Context, jb SectionJob) Result {
	num := outline.CanonicalNumber(jb.SectionNumber)

	var user string
	if len(jb.PriorAttempts) > 0 {
		user = prompt.RerunUser(num, jb.Text, jb.LockedContext, jb.Rules, jb.PriorAttempts)
	} else {
		user = prompt.AmendmentUser(num, jb.Text, jb.LockedContext, jb.Rules)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	resp, err := s.client.CompleteWithSystem(callCtx, prompt.AmendmentSystem, user)
	if err != nil {
		return Result{SectionNumber: num, Error: err.Error()}
	}

	var decoded amendResponse
	if err := llm.DecodeJSON(resp, &decoded); err != nil {
		return Result{SectionNumber: num, Error: err.Error()}
	}

	switch {
	case decoded.Amendment != nil:
		applied := make([]string, 0, len(decoded.Amendment.AppliedRules))
		for _, raw := range decoded.Amendment.AppliedRules {
			id := rules.NormalizeID(raw, jb.Rules)
			if _, ok := rules.ByID(jb.Rules)[id]; ok && !containsString(applied, id) {
				applied = append(applied, id)
			}
		}
		return Result{
			SectionNumber: num,
			Success:       true,
			Result: &Outcome{
				Amendment: &Amendment{
					Original:       decoded.Amendment.Original,
					Amended:        decoded.Amendment.Amended,
					AppliedRules:   applied,
					IsFullDeletion: IsDeletionMarker(decoded.Amendment.Amended),
				},
			},
		}
	case decoded.NoChanges:
		return Result{
			SectionNumber: num,
			Success:       true,
			Result:        &Outcome{NoChanges: true},
		}
	default:
		return Result{
			SectionNumber: num,
			Error:         fmt.Sprintf("response carried neither noChanges nor an amendment: %s", truncate(resp, 200)),
		}
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
