// Package pipeline wires the mapping, annotation, ordering, amendment,
// and insertion stages into the two caller-facing operations: MapRules and
// Amend. It owns no state beyond its collaborators; every invocation is
// request-scoped.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"redline/internal/amend"
	"redline/internal/job"
	"redline/internal/llm"
	"redline/internal/mapper"
	"redline/internal/outline"
	"redline/internal/rules"
)

// Config tunes the whole pipeline. Zero values mean defaults.
type Config struct {
	BatchSize   int
	Concurrency int
	SecondPass  bool
	CallTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   mapper.DefaultBatchSize,
		Concurrency: mapper.DefaultConcurrency,
		SecondPass:  true,
		CallTimeout: llm.DefaultTimeout,
	}
}

// MappingRequest is the caller-facing mapping input.
type MappingRequest struct {
	Structure []*outline.SectionNode `json:"structure"`
	Rules     []rules.Rule           `json:"rules"`
	// SecondPass overrides the configured default when non-nil.
	SecondPass  *bool `json:"secondPass,omitempty"`
	BatchSize   int   `json:"batchSize,omitempty"`
	Concurrency int   `json:"concurrency,omitempty"`
}

// MappingResponse is the caller-facing mapping output.
type MappingResponse struct {
	AnnotatedOutline []*outline.SectionNode     `json:"annotatedOutline"`
	RuleStatus       []rules.RuleStatus         `json:"ruleStatus"`
	NewSections      []rules.NewSectionLocation `json:"newSections"`
	ProcessingOrder  []string                   `json:"processingOrder"`
	Summary          rules.Summary              `json:"summary"`
}

// AmendRequest is the caller-facing generation input. When RuleStatus is
// empty the pipeline maps first. PriorAttempts keys are canonical section
// numbers; a non-empty entry makes that section's call a rerun.
type AmendRequest struct {
	Structure     []*outline.SectionNode `json:"structure"`
	Rules         []rules.Rule           `json:"rules"`
	RuleStatus    []rules.RuleStatus     `json:"ruleStatus,omitempty"`
	PriorAttempts map[string][]string    `json:"priorAttempts,omitempty"`
	SecondPass    *bool                  `json:"secondPass,omitempty"`
	BatchSize     int                    `json:"batchSize,omitempty"`
	Concurrency   int                    `json:"concurrency,omitempty"`
}

// AmendResponse pairs the per-section amendment results with the per-
// insertion-point new-section results. The two stages run independently;
// failures stay item-local in both.
type AmendResponse struct {
	Amendments  []amend.Result       `json:"amendments"`
	NewSections []amend.InsertResult `json:"newSections"`
}

// Pipeline is the orchestrator.
type Pipeline struct {
	client llm.Client
	log    *zap.Logger
	cfg    Config
}

// New creates a Pipeline. A nil logger becomes a no-op logger.
func New(client llm.Client, logger *zap.Logger, cfg Config) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = mapper.DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = mapper.DefaultConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = llm.DefaultTimeout
	}
	return &Pipeline{client: client, log: logger, cfg: cfg}
}

func (p *Pipeline) mapperConfig(secondPass *bool, batchSize, concurrency int) mapper.Config {
	cfg := mapper.Config{
		BatchSize:   p.cfg.BatchSize,
		Concurrency: p.cfg.Concurrency,
		SecondPass:  p.cfg.SecondPass,
		CallTimeout: p.cfg.CallTimeout,
	}
	if secondPass != nil {
		cfg.SecondPass = *secondPass
	}
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	return cfg
}

func (p *Pipeline) amendConfig(concurrency int) amend.Config {
	cfg := amend.Config{Concurrency: p.cfg.Concurrency, CallTimeout: p.cfg.CallTimeout}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	return cfg
}

// MapRules runs the two-pass mapping and derives every read model the
// caller needs from the one merged status set.
func (p *Pipeline) MapRules(ctx context.Context, req MappingRequest, jobID string, rep job.Reporter) (*MappingResponse, error) {
	m := mapper.New(p.client, p.log, p.mapperConfig(req.SecondPass, req.BatchSize, req.Concurrency))
	statuses, err := m.MapRules(ctx, req.Structure, req.Rules, jobID, rep)
	if err != nil {
		return nil, err
	}
	return &MappingResponse{
		AnnotatedOutline: outline.Annotate(req.Structure, statuses),
		RuleStatus:       statuses,
		NewSections:      rules.NewSectionLocations(statuses),
		ProcessingOrder:  outline.ProcessingOrder(req.Structure, statuses),
		Summary:          rules.Summarize(statuses),
	}, nil
}

// MapInstructions classifies positional instructions against the outline.
func (p *Pipeline) MapInstructions(ctx context.Context, structure []*outline.SectionNode, instructions []string, jobID string, rep job.Reporter) ([]mapper.InstructionStatus, error) {
	m := mapper.New(p.client, p.log, p.mapperConfig(nil, 0, 0))
	return m.MapInstructions(ctx, structure, instructions, jobID, rep)
}

// Amend maps when necessary, then runs the amendment scheduler and the
// new-section inserter independently and in parallel. A mapping failure is
// fatal; everything after mapping reports per-item results.
func (p *Pipeline) Amend(ctx context.Context, req AmendRequest, jobID string, rep job.Reporter) (*AmendResponse, error) {
	statuses := req.RuleStatus
	if len(statuses) == 0 {
		m := mapper.New(p.client, p.log, p.mapperConfig(req.SecondPass, req.BatchSize, req.Concurrency))
		mapped, err := m.MapRules(ctx, req.Structure, req.Rules, jobID, rep)
		if err != nil {
			return nil, fmt.Errorf("rule mapping: %w", err)
		}
		statuses = mapped
	}

	jobs := p.buildSectionJobs(req, statuses)
	inserts := rules.NewSectionLocations(statuses)

	cfg := p.amendConfig(req.Concurrency)
	scheduler := amend.NewScheduler(p.client, p.log, cfg)
	inserter := amend.NewInserter(p.client, p.log, cfg)

	resp := &AmendResponse{}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		resp.Amendments = scheduler.Run(ctx, req.Structure, jobs, jobID, rep)
	}()
	go func() {
		defer wg.Done()
		resp.NewSections = inserter.Run(ctx, req.Structure, inserts, req.Rules, jobID, rep)
	}()
	wg.Wait()

	p.log.Info("amendment run finished",
		zap.Int("sections", len(resp.Amendments)),
		zap.Int("insertionGroups", len(resp.NewSections)))
	return resp, nil
}

// buildSectionJobs assembles one SectionJob per section in processing
// order, carrying only the rules mapped to that section.
func (p *Pipeline) buildSectionJobs(req AmendRequest, statuses []rules.RuleStatus) []amend.SectionJob {
	order := outline.ProcessingOrder(req.Structure, statuses)
	rulesByID := rules.ByID(req.Rules)

	bySection := make(map[string][]rules.Rule)
	for _, st := range statuses {
		if st.Status != rules.StatusMapped {
			continue
		}
		r, ok := rulesByID[st.RuleID]
		if !ok {
			p.log.Warn("mapped status without a rule", zap.String("ruleId", st.RuleID))
			continue
		}
		for _, loc := range st.Locations {
			key := outline.CanonicalNumber(loc)
			bySection[key] = append(bySection[key], r)
		}
	}

	jobs := make([]amend.SectionJob, 0, len(order))
	for _, num := range order {
		node := outline.Find(req.Structure, num)
		if node == nil {
			continue
		}
		jobs = append(jobs, amend.SectionJob{
			SectionNumber: num,
			Text:          sectionText(node),
			LockedContext: outline.AncestorContext(req.Structure, num),
			Rules:         bySection[num],
			PriorAttempts: req.PriorAttempts[num],
		})
	}
	return jobs
}

// sectionText is the section's own text plus its additional paragraphs,
// children excluded.
func sectionText(n *outline.SectionNode) string {
	if len(n.AdditionalParagraphs) == 0 {
		return n.Text
	}
	parts := append([]string{n.Text}, n.AdditionalParagraphs...)
	return strings.Join(parts, "\n")
}
