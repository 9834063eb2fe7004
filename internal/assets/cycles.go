package assets

import (
	"slices"
	"sort"
	"strings"
)

// FindCycles checks every module of the metafile input graph for an import chain
// leading back to itself and reports the shortest such chain. Each cycle is
// returned once, rotated so it starts at its lexically smallest module. Modules
// whose path contains the exclude segment are ignored.
func FindCycles(meta *BuildMetadata, exclude string) [][]string {
	if meta == nil {
		return nil
	}

	skip := func(path string) bool {
		return exclude != "" && slices.Contains(strings.Split(path, "/"), exclude)
	}

	nodes := make([]string, 0, len(meta.Inputs))
	for path := range meta.Inputs {
		if !skip(path) {
			nodes = append(nodes, path)
		}
	}
	sort.Strings(nodes)

	edges := func(node string) []string {
		var out []string
		for _, imp := range meta.Inputs[node].Imports {
			if imp.External || skip(imp.Path) {
				continue
			}
			if _, ok := meta.Inputs[imp.Path]; ok {
				out = append(out, imp.Path)
			}
		}
		return out
	}

	seen := map[string]bool{}
	var cycles [][]string

	for _, node := range nodes {
		cycle := shortestCycle(node, edges)
		if cycle == nil {
			continue
		}
		cycle = normalizeCycle(cycle)
		key := strings.Join(cycle, "\x00")
		if !seen[key] {
			seen[key] = true
			cycles = append(cycles, cycle)
		}
	}

	return cycles
}

// shortestCycle runs a breadth first search from start and returns the shortest
// chain of modules that imports start again, or nil.
func shortestCycle(start string, edges func(string) []string) []string {
	parent := map[string]string{}
	queue := []string{start}
	visited := map[string]bool{start: true}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, next := range edges(node) {
			if next == start {
				chain := []string{node}
				for chain[len(chain)-1] != start {
					chain = append(chain, parent[chain[len(chain)-1]])
				}
				slices.Reverse(chain)
				return chain
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = node
			queue = append(queue, next)
		}
	}

	return nil
}

func normalizeCycle(cycle []string) []string {
	smallest := 0
	for i, node := range cycle {
		if node < cycle[smallest] {
			smallest = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[smallest:]...)
	return append(out, cycle[:smallest]...)
}
