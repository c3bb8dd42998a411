// Package mapper classifies compliance rules against a document outline
// through batched, concurrency-bounded generation calls. Mapping runs in
// two passes: the first pass classifies every rule, the second re-examines
// the same rules with their first-pass results and may only add sections
// that were missed. A batch whose generation output cannot be decoded is
// fatal to the whole mapping phase; a silently missing batch would
// under-map an arbitrary subset of rules, which is worse than failing.
package mapper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"redline/internal/job"
	"redline/internal/llm"
	"redline/internal/location"
	"redline/internal/outline"
	"redline/internal/prompt"
	"redline/internal/rules"
)

const (
	// DefaultBatchSize bounds how many rules share one generation call.
	DefaultBatchSize = 10
	// DefaultConcurrency bounds how many calls run in one window.
	DefaultConcurrency = 3
)

// Config tunes batching and concurrency.
type Config struct {
	BatchSize   int
	Concurrency int
	// SecondPass enables the missed-section sweep. On by default through
	// DefaultConfig.
	SecondPass  bool
	CallTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   DefaultBatchSize,
		Concurrency: DefaultConcurrency,
		SecondPass:  true,
		CallTimeout: llm.DefaultTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = llm.DefaultTimeout
	}
	return c
}

// Mapper runs the two-pass rule classification.
type Mapper struct {
	client llm.Client
	log    *zap.Logger
	cfg    Config
}

// New creates a Mapper. A nil logger is replaced with a no-op logger.
func New(client llm.Client, logger *zap.Logger, cfg Config) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{client: client, log: logger, cfg: cfg.withDefaults()}
}

// mappingResponse is the loosely-typed shape requested from generation.
// Every field is optional on the wire; decoding is defensive and the
// conversion below fills gaps conservatively.
type mappingResponse struct {
	Results []mappingResult `json:"results"`
}

type mappingResult struct {
	RuleID            string   `json:"ruleId"`
	Status            string   `json:"status"`
	Locations         []string `json:"locations"`
	SuggestedLocation string   `json:"suggestedLocation"`
	SuggestedHeading  string   `json:"suggestedHeading"`
	Reason            string   `json:"reason"`
}

type secondPassResponse struct {
	Results []secondPassResult `json:"results"`
}

type secondPassResult struct {
	RuleID              string   `json:"ruleId"`
	AdditionalLocations []string `json:"additionalLocations"`
}

// MapRules classifies every rule against the outline and returns exactly
// one RuleStatus per input rule, in input order. Rules the first pass never
// mentions come back not_applicable. Any batch failure aborts the whole
// call.
func (m *Mapper) MapRules(ctx context.Context, nodes []*outline.SectionNode, ruleSet []rules.Rule, jobID string, rep job.Reporter) ([]rules.RuleStatus, error) {
	if rep == nil {
		rep = job.NopReporter{}
	}
	if len(ruleSet) == 0 {
		return nil, nil
	}

	batches := chunkRules(ruleSet, m.cfg.BatchSize)
	m.log.Info("rule mapping started",
		zap.Int("rules", len(ruleSet)),
		zap.Int("batches", len(batches)),
		zap.Bool("secondPass", m.cfg.SecondPass))

	merged, err := m.firstPass(ctx, nodes, ruleSet, batches, jobID, rep)
	if err != nil {
		return nil, fmt.Errorf("first mapping pass: %w", err)
	}

	if m.cfg.SecondPass {
		if err := m.secondPass(ctx, nodes, batches, merged, jobID, rep); err != nil {
			return nil, fmt.Errorf("second mapping pass: %w", err)
		}
	}

	// One status per input rule, in input order.
	out := make([]rules.RuleStatus, 0, len(ruleSet))
	for _, r := range ruleSet {
		st, ok := merged[r.ID]
		if !ok {
			st = rules.RuleStatus{RuleID: r.ID, Status: rules.StatusNotApplicable}
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Mapper) firstPass(ctx context.Context, nodes []*outline.SectionNode, ruleSet []rules.Rule, batches [][]rules.Rule, jobID string, rep job.Reporter) (map[string]rules.RuleStatus, error) {
	perBatch := make([][]rules.RuleStatus, len(batches))
	var done atomic.Int64

	err := m.inWindows(ctx, len(batches), func(ctx context.Context, i int) error {
		resp, err := m.completeJSON(ctx, prompt.MappingSystem, prompt.FirstPassUser(nodes, batches[i]))
		if err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		var decoded mappingResponse
		if err := llm.DecodeJSON(resp, &decoded); err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		perBatch[i] = m.convertResults(decoded.Results, batches[i], nodes)
		rep.Progress(jobID, job.Event{
			Stage:     "mapping",
			Completed: int(done.Add(1)),
			Total:     len(batches),
			Message:   "first pass batch complete",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := make(map[string]rules.RuleStatus, len(ruleSet))
	for _, statuses := range perBatch {
		for _, st := range statuses {
			merged[st.RuleID] = st
		}
	}
	// Rules the response never mentioned default to not_applicable so the
	// one-status-per-rule invariant holds.
	for _, r := range ruleSet {
		if _, ok := merged[r.ID]; !ok {
			merged[r.ID] = rules.RuleStatus{RuleID: r.ID, Status: rules.StatusNotApplicable}
		}
	}
	return merged, nil
}

// convertResults turns the loose wire results into RuleStatus values:
// rule ids are reconciled against the batch, locations canonicalized, and
// needs_new_section locations pushed through the degrade chain.
func (m *Mapper) convertResults(results []mappingResult, batch []rules.Rule, nodes []*outline.SectionNode) []rules.RuleStatus {
	var out []rules.RuleStatus
	byID := rules.ByID(batch)

	for _, res := range results {
		id := rules.NormalizeID(res.RuleID, batch)
		if _, known := byID[id]; !known {
			m.log.Warn("dropping result for unknown rule", zap.String("ruleId", res.RuleID))
			continue
		}

		st := rules.RuleStatus{RuleID: id, Reason: res.Reason}
		switch rules.Status(res.Status) {
		case rules.StatusMapped:
			st.Status = rules.StatusMapped
			st.Locations = canonicalAll(res.Locations)
			if len(st.Locations) == 0 {
				st.Status = rules.StatusNotApplicable
				st.Reason = "mapped without locations"
			}
		case rules.StatusNeedsNewSection:
			switch r := location.Resolve(res.SuggestedLocation, nodes); r.Kind {
			case location.ResolvedAfter:
				st.Status = rules.StatusNeedsNewSection
				st.SuggestedLocation = r.Location
				st.SuggestedHeading = res.SuggestedHeading
			case location.DowngradeMapped:
				st.Status = rules.StatusMapped
				st.Locations = []string{r.Section}
				st.Reason = "insertion point unresolvable; mapped to named section"
			case location.Unplaceable:
				st.Status = rules.StatusNotApplicable
				st.Reason = r.Reason
			}
		default:
			st.Status = rules.StatusNotApplicable
		}
		out = append(out, st)
	}
	return out
}

func (m *Mapper) secondPass(ctx context.Context, nodes []*outline.SectionNode, batches [][]rules.Rule, merged map[string]rules.RuleStatus, jobID string, rep job.Reporter) error {
	perBatch := make([][]secondPassResult, len(batches))
	var done atomic.Int64

	err := m.inWindows(ctx, len(batches), func(ctx context.Context, i int) error {
		resp, err := m.completeJSON(ctx, prompt.SecondPassSystem, prompt.SecondPassUser(nodes, batches[i], merged))
		if err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		var decoded secondPassResponse
		if err := llm.DecodeJSON(resp, &decoded); err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		perBatch[i] = decoded.Results
		rep.Progress(jobID, job.Event{
			Stage:     "mapping",
			Completed: int(done.Add(1)),
			Total:     len(batches),
			Message:   "second pass batch complete",
		})
		return nil
	})
	if err != nil {
		return err
	}

	// Add-only merge: new locations append, nothing is removed, and a rule
	// that gained a location becomes mapped regardless of where it started.
	allRules := flattenBatches(batches)
	for _, results := range perBatch {
		for _, res := range results {
			id := rules.NormalizeID(res.RuleID, allRules)
			st, ok := merged[id]
			if !ok {
				continue
			}
			added := false
			for _, loc := range canonicalAll(res.AdditionalLocations) {
				if !containsString(st.Locations, loc) {
					st.Locations = append(st.Locations, loc)
					added = true
				}
			}
			if added {
				st.Status = rules.StatusMapped
			}
			merged[id] = st
		}
	}
	return nil
}

// completeJSON runs one generation call under the per-call deadline.
func (m *Mapper) completeJSON(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	return m.client.CompleteWithSystem(callCtx, system, user)
}

// inWindows runs n items with bounded concurrency: the next window of
// calls starts only after every call in the current window has finished.
// The first error cancels the window's siblings and aborts the remainder.
func (m *Mapper) inWindows(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for startIdx := 0; startIdx < n; startIdx += m.cfg.Concurrency {
		end := startIdx + m.cfg.Concurrency
		if end > n {
			end = n
		}
		eg, egCtx := errgroup.WithContext(ctx)
		for i := startIdx; i < end; i++ {
			eg.Go(func() error {
				return fn(egCtx, i)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func chunkRules(rs []rules.Rule, size int) [][]rules.Rule {
	var batches [][]rules.Rule
	for start := 0; start < len(rs); start += size {
		end := start + size
		if end > len(rs) {
			end = len(rs)
		}
		batches = append(batches, rs[start:end])
	}
	return batches
}

func flattenBatches(batches [][]rules.Rule) []rules.Rule {
	var out []rules.Rule
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

func canonicalAll(locs []string) []string {
	var out []string
	for _, l := range locs {
		if c := outline.CanonicalNumber(l); c != "" && !containsString(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
