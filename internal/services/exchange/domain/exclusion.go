package domain

import (
	"sort"
	"strings"
)

// ExclusionRule is an unordered pair of user IDs that must not draw each
// other in either direction.
type ExclusionRule struct {
	GroupID         string
	UserAID         string
	UserBID         string
	CreatedByUserID string
}

// Graph is a symmetric adjacency structure over participant IDs. A nil map
// value behaves as an empty graph.
type Graph struct {
	adjacency map[string]map[string]bool
}

// BuildGraph builds a symmetric exclusion graph from rules. Rules are taken
// as-is: participant existence is not validated here (unknown IDs simply
// carry adjacency that never matches a member), and self-pairs are dropped
// since giver==receiver is already rejected by the solver.
func BuildGraph(rules []ExclusionRule) Graph {
	adjacency := make(map[string]map[string]bool, len(rules)*2)
	for _, rule := range rules {
		a := strings.TrimSpace(rule.UserAID)
		b := strings.TrimSpace(rule.UserBID)
		if a == "" || b == "" || a == b {
			continue
		}
		if adjacency[a] == nil {
			adjacency[a] = make(map[string]bool)
		}
		if adjacency[b] == nil {
			adjacency[b] = make(map[string]bool)
		}
		adjacency[a][b] = true
		adjacency[b][a] = true
	}
	return Graph{adjacency: adjacency}
}

// Excludes reports whether giver is forbidden from drawing receiver.
func (g Graph) Excludes(giverID, receiverID string) bool {
	return g.adjacency[giverID][receiverID]
}

// ExcludedIDs returns the sorted exclusion set for one participant.
// Used to snapshot a receiver's exclusions onto the assignment for audit.
func (g Graph) ExcludedIDs(userID string) []string {
	neighbors := g.adjacency[userID]
	if len(neighbors) == 0 {
		return nil
	}
	ids := make([]string, 0, len(neighbors))
	for id := range neighbors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
