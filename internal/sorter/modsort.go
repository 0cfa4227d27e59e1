// Package sorter computes the mod priority order behind modlist.txt and the
// plugin load order behind plugins.txt.
package sorter

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"nexusbridge/internal/domain"
)

// ModSortInput carries everything the ensemble sorter consults
type ModSortInput struct {
	Mods  []domain.Mod
	Rules []domain.ModRule

	// PluginOrder is the sorted plugin load order (plugins.txt content)
	PluginOrder []string
	// ModPlugins maps mod index to the plugin filenames found in its folder
	ModPlugins map[int][]string
}

// modGraph holds the before/after constraint edges. An edge u -> v means u
// must precede v in install order (v ends up above u in the written file).
type modGraph struct {
	n    int
	succ [][]int
	pred [][]int
}

// SortMods produces the final install order of mod indices (lowest priority
// first; the writer reverses it so the highest priority lands on top) plus
// human-readable warnings for cycles and unresolvable rules.
//
// Four candidate orderings vote: DFS post-order from sinks, Kahn's
// algorithm keyed by earliest plugin position, pure plugin order, and the
// collection's own order. Their weighted rank combination only breaks ties:
// the final pass is Kahn again, so before/after constraints stay hard.
func SortMods(in ModSortInput) ([]int, []string) {
	n := len(in.Mods)
	if n == 0 {
		return nil, nil
	}

	graph, warnings := buildGraph(in)

	pluginPos := earliestPluginPositions(in)

	rankDFS := rankOf(dfsFromSinks(graph, in.Mods))
	rankKahn := rankOf(kahnByKey(graph, func(i int) float64 { return pluginPos[i] }))
	rankPlugin := rankOf(pluginOrderSort(n, pluginPos))
	rankCollection := make([]int, n)
	for i := range rankCollection {
		rankCollection[i] = i
	}

	// Weighted ensemble vote, normalised by the weight sum
	score := make([]float64, n)
	for i := 0; i < n; i++ {
		score[i] = (2*float64(rankDFS[i]) + 2*float64(rankKahn[i]) +
			1.5*float64(rankPlugin[i]) + 0.5*float64(rankCollection[i])) / 6
	}
	combRank := rankOf(sortedBy(n, func(a, b int) bool {
		if score[a] != score[b] {
			return score[a] < score[b]
		}
		return a < b
	}))

	final := kahnByKey(graph, func(i int) float64 { return float64(combRank[i]) })

	if cycles := findCycles(graph, in.Mods); len(cycles) > 0 {
		warnings = append(warnings, cycles...)
	}
	return final, warnings
}

// buildGraph resolves each rule to mod indices, logical filename first and
// archive MD5 second; rules with an unresolvable end are skipped.
func buildGraph(in ModSortInput) (*modGraph, []string) {
	n := len(in.Mods)
	byFilename := make(map[string]int, n)
	byMD5 := make(map[string]int, n)
	for i := range in.Mods {
		m := &in.Mods[i]
		if m.Filename != "" {
			byFilename[strings.ToLower(m.Filename)] = i
		}
		if m.MD5 != "" {
			byMD5[strings.ToLower(m.MD5)] = i
		}
	}

	resolve := func(ref domain.RuleRef) (int, bool) {
		if ref.Filename != "" {
			if idx, ok := byFilename[strings.ToLower(ref.Filename)]; ok {
				return idx, true
			}
		}
		if ref.MD5 != "" {
			if idx, ok := byMD5[strings.ToLower(ref.MD5)]; ok {
				return idx, true
			}
		}
		return 0, false
	}

	g := &modGraph{n: n, succ: make([][]int, n), pred: make([][]int, n)}
	var warnings []string
	for _, rule := range in.Rules {
		src, okS := resolve(rule.Source)
		ref, okR := resolve(rule.Reference)
		if !okS || !okR || src == ref {
			warnings = append(warnings, fmt.Sprintf(
				"skipping %s rule: unresolvable reference (%s / %s)",
				rule.Type, rule.Source.Filename, rule.Reference.Filename))
			continue
		}
		// before: source precedes reference; after: source follows it
		u, v := src, ref
		if rule.Type == domain.RuleAfter {
			u, v = ref, src
		}
		g.succ[u] = append(g.succ[u], v)
		g.pred[v] = append(g.pred[v], u)
	}
	return g, warnings
}

// earliestPluginPositions returns, per mod, the smallest index in the
// sorted plugin list of any plugin inside that mod; +Inf without plugins.
func earliestPluginPositions(in ModSortInput) []float64 {
	posByName := make(map[string]int, len(in.PluginOrder))
	for i, name := range in.PluginOrder {
		posByName[strings.ToLower(name)] = i
	}

	out := make([]float64, len(in.Mods))
	for i := range in.Mods {
		out[i] = math.Inf(1)
		for _, p := range in.ModPlugins[i] {
			if pos, ok := posByName[strings.ToLower(p)]; ok && float64(pos) < out[i] {
				out[i] = float64(pos)
			}
		}
	}
	return out
}

// dfsFromSinks visits sinks (no outgoing edges) in alphabetical folder
// order, recursing into predecessors first; the post-order appends each mod
// after everything that must precede it. Cycles are detected by in-progress
// markers and broken silently here (reported separately).
func dfsFromSinks(g *modGraph, mods []domain.Mod) []int {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make([]int, g.n)
	var order []int

	var visit func(int)
	visit = func(u int) {
		if state[u] != unvisited {
			return
		}
		state[u] = inStack
		preds := append([]int(nil), g.pred[u]...)
		sort.Slice(preds, func(a, b int) bool {
			return mods[preds[a]].FolderName < mods[preds[b]].FolderName
		})
		for _, p := range preds {
			if state[p] == unvisited {
				visit(p)
			}
		}
		state[u] = done
		order = append(order, u)
	}

	var sinks []int
	for i := 0; i < g.n; i++ {
		if len(g.succ[i]) == 0 {
			sinks = append(sinks, i)
		}
	}
	sort.Slice(sinks, func(a, b int) bool {
		return mods[sinks[a]].FolderName < mods[sinks[b]].FolderName
	})
	for _, s := range sinks {
		visit(s)
	}
	// Cycle members have no path to a sink; pick them up alphabetically
	var rest []int
	for i := 0; i < g.n; i++ {
		if state[i] == unvisited {
			rest = append(rest, i)
		}
	}
	sort.Slice(rest, func(a, b int) bool {
		return mods[rest[a]].FolderName < mods[rest[b]].FolderName
	})
	for _, r := range rest {
		visit(r)
	}
	return order
}

// kahnByKey runs Kahn's algorithm, always releasing the ready node with the
// smallest key (collection index breaking ties). Nodes stuck in cycles are
// appended in collection order at the end.
func kahnByKey(g *modGraph, key func(int) float64) []int {
	indegree := make([]int, g.n)
	for v := 0; v < g.n; v++ {
		indegree[v] = len(g.pred[v])
	}

	ready := make([]int, 0, g.n)
	for i := 0; i < g.n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	popMin := func() int {
		best := 0
		for i := 1; i < len(ready); i++ {
			a, b := ready[i], ready[best]
			if key(a) < key(b) || (key(a) == key(b) && a < b) {
				best = i
			}
		}
		node := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		return node
	}

	var order []int
	for len(ready) > 0 {
		u := popMin()
		order = append(order, u)
		for _, v := range g.succ[u] {
			indegree[v]--
			if indegree[v] == 0 {
				ready = append(ready, v)
			}
		}
	}
	if len(order) < g.n {
		seen := make([]bool, g.n)
		for _, u := range order {
			seen[u] = true
		}
		for i := 0; i < g.n; i++ {
			if !seen[i] {
				order = append(order, i)
			}
		}
	}
	return order
}

// pluginOrderSort ignores rules entirely: a stable sort of all mods by
// earliest plugin position.
func pluginOrderSort(n int, pluginPos []float64) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pluginPos[order[a]] < pluginPos[order[b]]
	})
	return order
}

func sortedBy(n int, less func(a, b int) bool) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return less(order[a], order[b]) })
	return order
}

// rankOf converts an ordering into a rank per mod index
func rankOf(order []int) []int {
	rank := make([]int, len(order))
	for pos, idx := range order {
		rank[idx] = pos
	}
	return rank
}

// findCycles reports the constraint cycles in the rule graph. A cycle is a
// warning, never fatal: the final Kahn pass appends the mods it cannot
// release (cycle members and every mod ordered after them) in collection
// order, without enforcing the rules between them.
func findCycles(g *modGraph, mods []domain.Mod) []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make([]int, g.n)
	var messages []string

	var stack []int
	var visit func(int)
	visit = func(u int) {
		state[u] = inStack
		stack = append(stack, u)
		for _, v := range g.succ[u] {
			switch state[v] {
			case unvisited:
				visit(v)
			case inStack:
				var names []string
				start := 0
				for i, node := range stack {
					if node == v {
						start = i
						break
					}
				}
				for _, node := range stack[start:] {
					names = append(names, mods[node].FolderName)
				}
				messages = append(messages, fmt.Sprintf(
					"mod rule cycle detected: %s", strings.Join(names, " -> ")))
			}
		}
		stack = stack[:len(stack)-1]
		state[u] = done
	}

	for i := 0; i < g.n; i++ {
		if state[i] == unvisited {
			visit(i)
		}
	}
	return messages
}
