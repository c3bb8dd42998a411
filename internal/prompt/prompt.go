// Package prompt assembles the system prompts and user content for every
// generation call the pipeline makes. All builders are pure string
// assembly; the requested JSON shapes here must stay in sync with the
// response DTOs decoded in the mapper and amend packages.
package prompt

import (
	"fmt"
	"strings"

	"redline/internal/outline"
	"redline/internal/rules"
)

// MappingSystem is the system prompt for rule-to-section classification.
const MappingSystem = `You are a legal compliance analyst. You are given the full outline of a ` +
	`legal document and a batch of compliance rules. For each rule, decide whether it applies to ` +
	`one or more existing sections, requires a wholly new section, or does not apply to this ` +
	`document at all. Respond with JSON only. Section numbers must be quoted exactly as they ` +
	`appear in the outline, including the trailing period.`

// SecondPassSystem is the system prompt for the missed-section sweep.
const SecondPassSystem = `You are a legal compliance analyst performing a second review pass. ` +
	`You previously classified each rule against the document outline; that prior result is ` +
	`provided. Your only task is to find ADDITIONAL applicable sections the first pass missed. ` +
	`Never remove or contradict prior findings. Respond with JSON only.`

// AmendmentSystem is the system prompt for section amendment generation.
const AmendmentSystem = `You are a legal drafting assistant. Amend the given section so it ` +
	`satisfies every listed compliance rule while preserving the document's defined terms, ` +
	`numbering, and drafting style. Ancestor sections are provided as read-only context; never ` +
	`modify them. If the section already satisfies all rules, say so. If the section must be ` +
	`removed entirely, use the amended text "[DELETED]". Respond with JSON only.`

// NewSectionSystem is the system prompt for generating brand-new sections.
const NewSectionSystem = `You are a legal drafting assistant. Draft wholly new sections for a ` +
	`legal document at a given insertion point, one section per compliance rule, matching the ` +
	`document's drafting style. Number the new sections as consecutive lettered continuations of ` +
	`the anchor section. Respond with JSON only.`

// RenderOutline flattens the section tree into the indented listing every
// mapping prompt carries. All sections are always included so the model
// sees the whole document.
func RenderOutline(nodes []*outline.SectionNode) string {
	var sb strings.Builder
	outline.Walk(nodes, func(n *outline.SectionNode, depth int) bool {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(outline.CanonicalNumber(n.SectionNumber))
		if n.SectionHeading != "" {
			sb.WriteString(" ")
			sb.WriteString(n.SectionHeading)
		}
		if n.Text != "" {
			sb.WriteString(" — ")
			sb.WriteString(n.Text)
		}
		sb.WriteString("\n")
		return true
	})
	return sb.String()
}

func writeRules(sb *strings.Builder, batch []rules.Rule) {
	for _, r := range batch {
		fmt.Fprintf(sb, "- Rule %s: %s\n", r.ID, r.Content)
		if r.Example != "" {
			fmt.Fprintf(sb, "  Example: %s\n", r.Example)
		}
	}
}

// FirstPassUser builds the user content for one first-pass mapping batch.
func FirstPassUser(nodes []*outline.SectionNode, batch []rules.Rule) string {
	var sb strings.Builder
	sb.WriteString("## Document Outline\n\n")
	sb.WriteString(RenderOutline(nodes))
	sb.WriteString("\n## Rules\n\n")
	writeRules(&sb, batch)
	sb.WriteString(`
## Output Format

Return a JSON object:
{"results": [{"ruleId": "<id>", "status": "mapped" | "not_applicable" | "needs_new_section", "locations": ["<section number>", ...], "suggestedLocation": "After Section <N>.", "suggestedHeading": "<heading>", "reason": "<short reason>"}]}

Include every rule exactly once. "locations" is required when status is "mapped";
"suggestedLocation" and "suggestedHeading" are required when status is "needs_new_section".
`)
	return sb.String()
}

// SecondPassUser builds the user content for one second-pass batch. Each
// rule's first-pass outcome is included so the model only reports sections
// not already found.
func SecondPassUser(nodes []*outline.SectionNode, batch []rules.Rule, prior map[string]rules.RuleStatus) string {
	var sb strings.Builder
	sb.WriteString("## Document Outline\n\n")
	sb.WriteString(RenderOutline(nodes))
	sb.WriteString("\n## Rules and First-Pass Results\n\n")
	for _, r := range batch {
		fmt.Fprintf(&sb, "- Rule %s: %s\n", r.ID, r.Content)
		if st, ok := prior[r.ID]; ok {
			fmt.Fprintf(&sb, "  First pass: %s", st.Status)
			if len(st.Locations) > 0 {
				fmt.Fprintf(&sb, " (%s)", strings.Join(st.Locations, ", "))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString(`
## Output Format

Return a JSON object listing only ADDITIONAL applicable sections per rule:
{"results": [{"ruleId": "<id>", "additionalLocations": ["<section number>", ...]}]}

Omit rules with nothing to add, or give them an empty list.
`)
	return sb.String()
}

// InstructionUser builds the user content for an instruction-request
// mapping batch. Instructions carry no stable ids, so results are keyed by
// the zero-based position shown here.
func InstructionUser(nodes []*outline.SectionNode, batch []string, offset int) string {
	var sb strings.Builder
	sb.WriteString("## Document Outline\n\n")
	sb.WriteString(RenderOutline(nodes))
	sb.WriteString("\n## Instructions\n\n")
	for i, ins := range batch {
		fmt.Fprintf(&sb, "%d. %s\n", offset+i, ins)
	}
	sb.WriteString(`
## Output Format

Return a JSON object:
{"results": [{"index": <number shown above>, "status": "mapped" | "not_applicable", "locations": ["<section number>", ...], "reason": "<short reason>"}]}

Every instruction index must appear exactly once. Instructions never create new sections.
`)
	return sb.String()
}

// InstructionSecondPassUser builds the missed-section sweep content for an
// instruction batch. prior is aligned with batch.
func InstructionSecondPassUser(nodes []*outline.SectionNode, batch []string, offset int, prior []InstructionPrior) string {
	var sb strings.Builder
	sb.WriteString("## Document Outline\n\n")
	sb.WriteString(RenderOutline(nodes))
	sb.WriteString("\n## Instructions and First-Pass Results\n\n")
	for i, ins := range batch {
		fmt.Fprintf(&sb, "%d. %s\n", offset+i, ins)
		if i < len(prior) {
			fmt.Fprintf(&sb, "   First pass: %s", prior[i].Status)
			if len(prior[i].Locations) > 0 {
				fmt.Fprintf(&sb, " (%s)", strings.Join(prior[i].Locations, ", "))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString(`
## Output Format

Return a JSON object listing only ADDITIONAL applicable sections per instruction:
{"results": [{"index": <number shown above>, "additionalLocations": ["<section number>", ...]}]}

Omit instructions with nothing to add, or give them an empty list.
`)
	return sb.String()
}

// InstructionPrior is the first-pass summary shown to the second pass.
type InstructionPrior struct {
	Status    string
	Locations []string
}

// AmendmentUser builds the user content for one section amendment call.
// lockedContext is the section's ancestor chain, outermost first.
func AmendmentUser(sectionNumber, sectionText string, lockedContext []string, applicable []rules.Rule) string {
	var sb strings.Builder
	if len(lockedContext) > 0 {
		sb.WriteString("## Surrounding Context (read-only, do not modify)\n\n")
		for _, c := range lockedContext {
			sb.WriteString(c)
			sb.WriteString("\n\n")
		}
	}
	fmt.Fprintf(&sb, "## Section To Amend: %s\n\n%s\n", sectionNumber, sectionText)
	sb.WriteString("\n## Rules To Satisfy\n\n")
	writeRules(&sb, applicable)
	sb.WriteString(`
## Output Format

Return a JSON object, one of:
{"noChanges": true, "reason": "<why no change is needed>"}
{"amendment": {"original": "<exact original text>", "amended": "<full amended text>", "appliedRules": ["<rule id>", ...]}}
`)
	return sb.String()
}

// RerunUser builds the amendment user content for a rerun: every prior
// attempt is included and the model is told to produce something
// materially different. Distinctness is a prompt-level instruction only;
// nothing downstream verifies it.
func RerunUser(sectionNumber, sectionText string, lockedContext []string, applicable []rules.Rule, priorAttempts []string) string {
	var sb strings.Builder
	sb.WriteString(AmendmentUser(sectionNumber, sectionText, lockedContext, applicable))
	sb.WriteString("\n## Prior Attempts (do not repeat)\n\n")
	for i, attempt := range priorAttempts {
		fmt.Fprintf(&sb, "### Attempt %d\n\n%s\n\n", i+1, attempt)
	}
	sb.WriteString("Produce an amendment materially different from every prior attempt above.\n")
	return sb.String()
}

// NewSectionUser builds the user content for one insertion-point group.
// Every rule sharing the anchor is covered by this single call.
func NewSectionUser(anchorNumber, anchorText string, group []rules.Rule, headings []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Insertion Point\n\nAfter Section %s\n", anchorNumber)
	fmt.Fprintf(&sb, "\n## Anchor Section (read-only context)\n\n%s\n", anchorText)
	sb.WriteString("\n## Rules Requiring New Sections\n\n")
	for i, r := range group {
		fmt.Fprintf(&sb, "- Rule %s: %s\n", r.ID, r.Content)
		if i < len(headings) && headings[i] != "" {
			fmt.Fprintf(&sb, "  Suggested heading: %s\n", headings[i])
		}
	}
	letters := make([]string, 0, len(group))
	for i := range group {
		letters = append(letters, fmt.Sprintf("%s%c", anchorNumber, 'A'+i))
	}
	fmt.Fprintf(&sb, `
## Output Format

Draft exactly %d new section(s), numbered %s in order.
Return a JSON object:
{"sections": [{"sectionNumber": "<number>", "sectionHeading": "<heading>", "text": "<full section text>", "ruleId": "<rule id>"}]}
`, len(group), strings.Join(letters, ", "))
	return sb.String()
}
