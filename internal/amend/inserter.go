package amend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"redline/internal/job"
	"redline/internal/llm"
	"redline/internal/outline"
	"redline/internal/prompt"
	"redline/internal/rules"
)

// NewSection is one generated brand-new section.
type NewSection struct {
	SectionNumber  string `json:"sectionNumber"`
	SectionHeading string `json:"sectionHeading,omitempty"`
	Text           string `json:"text"`
	RuleID         string `json:"ruleId,omitempty"`
}

// InsertResult is the outcome for one insertion-point group: all new
// sections anchored after the same existing section.
type InsertResult struct {
	Anchor   string       `json:"anchor"` // canonical "After Section <N>."
	RuleIDs  []string     `json:"ruleIds"`
	Success  bool         `json:"success"`
	Sections []NewSection `json:"sections,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Inserter generates wholly new sections for needs_new_section rules.
type Inserter struct {
	client llm.Client
	log    *zap.Logger
	cfg    Config
}

// NewInserter creates an Inserter. A nil logger becomes a no-op logger.
func NewInserter(client llm.Client, logger *zap.Logger, cfg Config) *Inserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inserter{client: client, log: logger, cfg: cfg.withDefaults()}
}

type newSectionResponse struct {
	Sections []NewSection `json:"sections"`
}

// Run groups the insertion requests by their canonical anchor and issues
// one generation call per group, window-bounded. Each group succeeds or
// fails on its own; an anchor that does not resolve to an outline node
// fails only that group.
func (ins *Inserter) Run(ctx context.Context, nodes []*outline.SectionNode, locs []rules.NewSectionLocation, ruleSet []rules.Rule, jobID string, rep job.Reporter) []InsertResult {
	if rep == nil {
		rep = job.NopReporter{}
	}
	if len(locs) == 0 {
		return nil
	}
	rulesByID := rules.ByID(ruleSet)

	// Group by canonical anchor, preserving first-seen order.
	type group struct {
		anchor string
		locs   []rules.NewSectionLocation
	}
	var groups []*group
	index := make(map[string]*group)
	for _, l := range locs {
		key := l.SuggestedLocation
		g, ok := index[key]
		if !ok {
			g = &group{anchor: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.locs = append(g.locs, l)
	}

	ins.log.Info("new-section insertion started",
		zap.Int("rules", len(locs)),
		zap.Int("groups", len(groups)))

	results := make([]InsertResult, len(groups))
	var done atomic.Int64

	for start := 0; start < len(groups); start += ins.cfg.Concurrency {
		end := start + ins.cfg.Concurrency
		if end > len(groups) {
			end = len(groups)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = ins.insertGroup(ctx, nodes, groups[i].anchor, groups[i].locs, rulesByID)
				rep.Progress(jobID, job.Event{
					Stage:     "new-sections",
					Completed: int(done.Add(1)),
					Total:     len(groups),
					Message:   "anchor " + groups[i].anchor,
				})
			}()
		}
		wg.Wait()
	}
	return results
}

// insertGroup generates every new section sharing one anchor in a single
// call, lettered consecutively after the anchor's number.
func (ins *Inserter) insertGroup(ctx context.Context, nodes []*outline.SectionNode, anchor string, locs []rules.NewSectionLocation, rulesByID map[string]rules.Rule) InsertResult {
	res := InsertResult{Anchor: anchor}
	for _, l := range locs {
		res.RuleIDs = append(res.RuleIDs, l.RuleID)
	}

	anchorNumber := anchorSection(anchor)
	node := outline.Find(nodes, anchorNumber)
	if node == nil {
		res.Error = fmt.Sprintf("anchor section %q not found in outline", anchorNumber)
		return res
	}

	groupRules := make([]rules.Rule, 0, len(locs))
	headings := make([]string, 0, len(locs))
	for _, l := range locs {
		r, ok := rulesByID[l.RuleID]
		if !ok {
			// A status whose rule vanished from the playbook is a caller
			// bug; fail the group loudly rather than generating for a
			// rule nobody can display.
			res.Error = fmt.Sprintf("no rule found for id %q", l.RuleID)
			return res
		}
		groupRules = append(groupRules, r)
		headings = append(headings, l.SuggestedHeading)
	}

	callCtx, cancel := context.WithTimeout(ctx, ins.cfg.CallTimeout)
	defer cancel()

	user := prompt.NewSectionUser(outline.CanonicalNumber(anchorNumber), outline.FullText(node), groupRules, headings)
	resp, err := ins.client.CompleteWithSystem(callCtx, prompt.NewSectionSystem, user)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	var decoded newSectionResponse
	if err := llm.DecodeJSON(resp, &decoded); err != nil {
		res.Error = err.Error()
		return res
	}
	if len(decoded.Sections) == 0 {
		res.Error = "response contained no sections"
		return res
	}

	// Renumber defensively: the lettering contract is ours, not the
	// model's.
	for i := range decoded.Sections {
		decoded.Sections[i].SectionNumber = letteredNumber(anchorNumber, i)
		if decoded.Sections[i].RuleID == "" && i < len(locs) {
			decoded.Sections[i].RuleID = locs[i].RuleID
		}
	}

	res.Success = true
	res.Sections = decoded.Sections
	return res
}

// anchorSection strips the canonical "After Section " prefix.
func anchorSection(anchor string) string {
	s := strings.TrimSpace(anchor)
	s = strings.TrimPrefix(s, "After Section ")
	return outline.CanonicalNumber(s)
}

// letteredNumber forms the i-th lettered continuation of an anchor:
// "8.1." becomes "8.1.A", "8.1.B", ...
func letteredNumber(anchorNumber string, i int) string {
	return fmt.Sprintf("%s%c", outline.CanonicalNumber(anchorNumber), 'A'+i)
}
