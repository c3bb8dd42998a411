package outline

import "redline/internal/rules"

// Annotate returns a copy of the outline with every node's Rules field set
// to the ids of the mapped statuses whose locations include that node's
// section number. Nodes with no applicable rules keep a nil Rules field so
// the JSON form omits it. The input tree is not modified.
func Annotate(nodes []*SectionNode, statuses []rules.RuleStatus) []*SectionNode {
	bySection := make(map[string][]string)
	for _, st := range statuses {
		if st.Status != rules.StatusMapped {
			continue
		}
		for _, loc := range st.Locations {
			key := CanonicalNumber(loc)
			bySection[key] = append(bySection[key], st.RuleID)
		}
	}
	return annotateNodes(nodes, bySection)
}

func annotateNodes(nodes []*SectionNode, bySection map[string][]string) []*SectionNode {
	if nodes == nil {
		return nil
	}
	out := make([]*SectionNode, len(nodes))
	for i, n := range nodes {
		cp := *n
		cp.Rules = nil
		if ids := bySection[CanonicalNumber(n.SectionNumber)]; len(ids) > 0 {
			cp.Rules = append([]string(nil), ids...)
		}
		cp.Children = annotateNodes(n.Children, bySection)
		out[i] = &cp
	}
	return out
}

// ProcessingOrder returns the canonical numbers of every section that
// carries at least one mapped rule, ordered so that all of a node's
// qualifying descendants appear strictly before the node itself. Parents
// depend structurally on their sub-sections, so children are always
// finalized first.
func ProcessingOrder(nodes []*SectionNode, statuses []rules.RuleStatus) []string {
	qualifying := make(map[string]struct{})
	for _, st := range statuses {
		if st.Status != rules.StatusMapped {
			continue
		}
		for _, loc := range st.Locations {
			qualifying[CanonicalNumber(loc)] = struct{}{}
		}
	}

	var order []string
	var visit func(ns []*SectionNode)
	visit = func(ns []*SectionNode) {
		for _, n := range ns {
			visit(n.Children)
			num := CanonicalNumber(n.SectionNumber)
			if _, ok := qualifying[num]; ok {
				order = append(order, num)
			}
		}
	}
	visit(nodes)
	return order
}
