package mapper

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"redline/internal/job"
	"redline/internal/llm"
	"redline/internal/outline"
	"redline/internal/prompt"
	"redline/internal/rules"
)

// InstructionStatus is the classification of one free-form amendment
// instruction. Instructions have no stable ids so results are keyed by the
// instruction's position in the request. Instructions never create new
// sections; an instruction with no matching section is not_applicable.
type InstructionStatus struct {
	Index     int          `json:"index"`
	Status    rules.Status `json:"status"`
	Locations []string     `json:"locations,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

type instructionResponse struct {
	Results []instructionResult `json:"results"`
}

type instructionResult struct {
	Index               *int     `json:"index"`
	Status              string   `json:"status"`
	Locations           []string `json:"locations"`
	AdditionalLocations []string `json:"additionalLocations"`
	Reason              string   `json:"reason"`
}

// MapInstructions classifies positional instructions against the outline
// with the same two-pass, batched, windowed structure as MapRules.
// Exactly one status per instruction comes back, in input order.
func (m *Mapper) MapInstructions(ctx context.Context, nodes []*outline.SectionNode, instructions []string, jobID string, rep job.Reporter) ([]InstructionStatus, error) {
	if rep == nil {
		rep = job.NopReporter{}
	}
	if len(instructions) == 0 {
		return nil, nil
	}

	type batchSpan struct{ start, end int }
	var spans []batchSpan
	for start := 0; start < len(instructions); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(instructions) {
			end = len(instructions)
		}
		spans = append(spans, batchSpan{start, end})
	}

	m.log.Info("instruction mapping started",
		zap.Int("instructions", len(instructions)),
		zap.Int("batches", len(spans)))

	merged := make(map[int]InstructionStatus, len(instructions))

	// First pass.
	perBatch := make([][]InstructionStatus, len(spans))
	var done atomic.Int64
	err := m.inWindows(ctx, len(spans), func(ctx context.Context, i int) error {
		sp := spans[i]
		resp, err := m.completeJSON(ctx, prompt.MappingSystem, prompt.InstructionUser(nodes, instructions[sp.start:sp.end], sp.start))
		if err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		var decoded instructionResponse
		if err := llm.DecodeJSON(resp, &decoded); err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		perBatch[i] = convertInstructionResults(decoded.Results, sp.start, sp.end)
		rep.Progress(jobID, job.Event{
			Stage:     "instruction-mapping",
			Completed: int(done.Add(1)),
			Total:     len(spans),
			Message:   "first pass batch complete",
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("first mapping pass: %w", err)
	}
	for _, statuses := range perBatch {
		for _, st := range statuses {
			merged[st.Index] = st
		}
	}
	for i := range instructions {
		if _, ok := merged[i]; !ok {
			merged[i] = InstructionStatus{Index: i, Status: rules.StatusNotApplicable}
		}
	}

	// Second pass, add-only on index.
	if m.cfg.SecondPass {
		perBatch2 := make([][]instructionResult, len(spans))
		var done2 atomic.Int64
		err := m.inWindows(ctx, len(spans), func(ctx context.Context, i int) error {
			sp := spans[i]
			prior := make([]prompt.InstructionPrior, 0, sp.end-sp.start)
			for idx := sp.start; idx < sp.end; idx++ {
				st := merged[idx]
				prior = append(prior, prompt.InstructionPrior{
					Status:    string(st.Status),
					Locations: st.Locations,
				})
			}
			resp, err := m.completeJSON(ctx, prompt.SecondPassSystem, prompt.InstructionSecondPassUser(nodes, instructions[sp.start:sp.end], sp.start, prior))
			if err != nil {
				return fmt.Errorf("batch %d: %w", i+1, err)
			}
			var decoded instructionResponse
			if err := llm.DecodeJSON(resp, &decoded); err != nil {
				return fmt.Errorf("batch %d: %w", i+1, err)
			}
			perBatch2[i] = decoded.Results
			rep.Progress(jobID, job.Event{
				Stage:     "instruction-mapping",
				Completed: int(done2.Add(1)),
				Total:     len(spans),
				Message:   "second pass batch complete",
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("second mapping pass: %w", err)
		}
		for _, results := range perBatch2 {
			for _, res := range results {
				if res.Index == nil {
					continue
				}
				st, ok := merged[*res.Index]
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
				merged[*res.Index] = st
			}
		}
	}

	out := make([]InstructionStatus, len(instructions))
	for i := range instructions {
		out[i] = merged[i]
	}
	return out, nil
}

// convertInstructionResults keeps only in-range indices and coerces every
// status to mapped or not_applicable.
func convertInstructionResults(results []instructionResult, start, end int) []InstructionStatus {
	var out []InstructionStatus
	for _, res := range results {
		if res.Index == nil || *res.Index < start || *res.Index >= end {
			continue
		}
		st := InstructionStatus{Index: *res.Index, Reason: res.Reason}
		if rules.Status(res.Status) == rules.StatusMapped {
			st.Status = rules.StatusMapped
			st.Locations = canonicalAll(res.Locations)
			if len(st.Locations) == 0 {
				st.Status = rules.StatusNotApplicable
				st.Reason = "mapped without locations"
			}
		} else {
			st.Status = rules.StatusNotApplicable
		}
		out = append(out, st)
	}
	return out
}
