// Package dag provides the directed acyclic graph the orchestrator uses to
// order tasks: cycle detection, topological sorting and barrier levels.
package dag

import (
	"fmt"
	"sort"
)

// Graph is a directed acyclic graph over string-identified nodes. An edge
// parent -> child means the child depends on the parent.
type Graph struct {
	nodes   map[string]struct{}
	edges   map[string][]string // parent -> children
	parents map[string][]string // child -> parents
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = struct{}{}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge records that child depends on parent.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// Parents returns the dependencies of a node.
func (g *Graph) Parents(id string) []string { return g.parents[id] }

// HasCycle reports whether the graph contains a cycle, with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for id := range g.nodes {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}
	return false, nil
}

// TopologicalSort returns node IDs with every dependency before its
// dependents. Ties break alphabetically for deterministic output.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range g.parents[id] {
			visit(parentID)
		}
		result = append(result, id)
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(id)
	}
	return result, nil
}

// ExecutionLevels groups node IDs by dependency depth. Nodes in one level
// are mutually independent and may run concurrently once every earlier
// level has completed. Level 0 holds nodes with no dependencies.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	assigned := make(map[string]int)

	var level func(id string) int
	level = func(id string) int {
		if l, ok := assigned[id]; ok {
			return l
		}
		max := -1
		for _, parentID := range g.parents[id] {
			if pl := level(parentID); pl > max {
				max = pl
			}
		}
		assigned[id] = max + 1
		return max + 1
	}

	maxLevel := 0
	for id := range g.nodes {
		if l := level(id); l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for id, l := range assigned {
		levels[l] = append(levels[l], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
