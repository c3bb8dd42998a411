// Package location parses free-form insertion-point phrases produced by
// generation ("between Section 3 and Section 4", "at the end", ...) into
// the single canonical form "After Section <N>." used by the rest of the
// pipeline. Parsing is pure and never fails hard: unresolvable phrases
// degrade through Resolve into a downgrade-to-mapped or a diagnostic
// not-applicable outcome.
package location

import (
	"regexp"
	"strings"

	"redline/internal/outline"
)

var (
	numberPat = `(\d+(?:\.\d+)*(?:\.?[A-Z])?)\.*`

	reBetween = regexp.MustCompile(`(?i)\bbetween\s+section\s+` + numberPat + `\s+and\s+section\s+` + numberPat)
	reEndOf   = regexp.MustCompile(`(?i)\bat\s+the\s+end\s+of\s+section\s+` + numberPat)
	reAfter   = regexp.MustCompile(`(?i)\bafter\s+section\s+` + numberPat)
	reBefore  = regexp.MustCompile(`(?i)\bbefore\s+section\s+` + numberPat)
	reEnd     = regexp.MustCompile(`(?i)\bat\s+the\s+end\b`)
	reSection = regexp.MustCompile(`(?i)\bsection\s+` + numberPat)
)

// After formats a canonical insertion point for a section number.
func After(sectionNumber string) string {
	return "After Section " + outline.CanonicalNumber(sectionNumber)
}

// Normalize parses a raw insertion phrase into canonical "After Section
// <N>." form. The outline is consulted only for the forms that need it:
// "at the end" resolves to the last section in document order, and
// "before Section X" resolves to X's document-order predecessor. The
// second return is false when the phrase cannot be normalized, which
// includes "before" the very first section of the document.
func Normalize(raw string, nodes []*outline.SectionNode) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if m := reBetween.FindStringSubmatch(s); m != nil {
		// The earlier boundary is enough: inserting after X already
		// places the new content before Y.
		return After(m[1]), true
	}
	if m := reEndOf.FindStringSubmatch(s); m != nil {
		return After(m[1]), true
	}
	if m := reAfter.FindStringSubmatch(s); m != nil {
		return After(m[1]), true
	}
	if m := reBefore.FindStringSubmatch(s); m != nil {
		pred, ok := outline.Predecessor(nodes, m[1])
		if !ok {
			return "", false
		}
		return After(pred), true
	}
	if reEnd.MatchString(s) {
		last := outline.LastSection(nodes)
		if last == "" {
			return "", false
		}
		return After(last), true
	}
	return "", false
}

// ExtractSectionNumber pulls the first bare "Section <N>" token out of a
// phrase, canonicalized. Used as the downgrade fallback when a phrase
// cannot be normalized into an insertion point.
func ExtractSectionNumber(raw string) (string, bool) {
	m := reSection.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return outline.CanonicalNumber(m[1]), true
}

// ResolutionKind tags the outcome of Resolve.
type ResolutionKind int

const (
	// ResolvedAfter means the phrase normalized into an insertion point.
	ResolvedAfter ResolutionKind = iota
	// DowngradeMapped means the phrase did not normalize but names a
	// section; the rule should be treated as mapped to that section.
	DowngradeMapped
	// Unplaceable means no section could be extracted at all; the rule
	// should be marked not applicable with the diagnostic reason.
	Unplaceable
)

// Resolution is the tagged result of resolving an insertion phrase.
type Resolution struct {
	Kind     ResolutionKind
	Location string // canonical "After Section <N>." when ResolvedAfter
	Section  string // canonical section number when DowngradeMapped
	Reason   string // diagnostic when Unplaceable
}

// Resolve applies Normalize and, on failure, the two fallbacks in order:
// extract a bare section token and downgrade the rule to mapped, else
// declare the rule unplaceable. A bad location therefore never blocks the
// rest of the rule set.
func Resolve(raw string, nodes []*outline.SectionNode) Resolution {
	if loc, ok := Normalize(raw, nodes); ok {
		return Resolution{Kind: ResolvedAfter, Location: loc}
	}
	// A section named by an unresolvable "before" clause is not reusable:
	// mapping the rule into the section its content must precede would
	// misplace it. Only tokens outside that clause count.
	stripped := reBefore.ReplaceAllString(raw, "")
	if num, ok := ExtractSectionNumber(stripped); ok {
		return Resolution{Kind: DowngradeMapped, Section: num}
	}
	return Resolution{
		Kind:   Unplaceable,
		Reason: "could not resolve insertion location: " + strings.TrimSpace(raw),
	}
}
