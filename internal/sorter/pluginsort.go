package sorter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nexusbridge/internal/domain"
	"nexusbridge/internal/mo2"
	"nexusbridge/internal/plugin"
)

// PluginSorter orders plugin files for plugins.txt. Implementations must
// honour master dependencies; any error makes the caller fall back to the
// collection's own plugin order.
type PluginSorter interface {
	SortPlugins(names []string) ([]string, error)
}

// PluginSortInput describes where plugin files live on disk
type PluginSortInput struct {
	// GamePath is the game installation root (its Data folder is searched
	// last); may be empty when discovery failed.
	GamePath string
	// LocalAppData is the game's local application data folder (the wine
	// prefix under Proton). An existing plugins.txt there breaks ties.
	LocalAppData string
	// ModDirs are the installed mod folders, searched first in order
	ModDirs []string
	// Rules are the collection's plugin rules (must-precede lists)
	Rules []domain.PluginRule
}

// HeaderSorter sorts plugins by their parsed TES4 headers: masters load
// first, and every plugin loads after all of its masters. It stands in for
// the vendored sorting library of the reference implementation.
type HeaderSorter struct {
	input PluginSortInput

	// found maps lowercased plugin name to its on-disk path
	found map[string]string
	// order preserves first-seen input order for stability
	order map[string]int
}

// NewHeaderSorter creates a sorter over the given search locations
func NewHeaderSorter(input PluginSortInput) *HeaderSorter {
	return &HeaderSorter{input: input}
}

// locate finds each requested plugin on disk, mod folders first and the
// game's Data folder last, deduplicating names case-insensitively.
func (s *HeaderSorter) locate(names []string) []string {
	s.found = make(map[string]string)
	s.order = make(map[string]int)

	searchDirs := append([]string(nil), s.input.ModDirs...)
	if s.input.GamePath != "" {
		searchDirs = append(searchDirs, filepath.Join(s.input.GamePath, "Data"))
	}

	var present []string
	for _, name := range names {
		key := strings.ToLower(name)
		if _, dup := s.order[key]; dup {
			continue
		}
		for _, dir := range searchDirs {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				s.found[key] = candidate
				break
			}
			// Account for differing on-disk casing
			if entries, err := os.ReadDir(dir); err == nil {
				for _, e := range entries {
					if !e.IsDir() && strings.EqualFold(e.Name(), name) {
						s.found[key] = filepath.Join(dir, e.Name())
						break
					}
				}
			}
			if _, ok := s.found[key]; ok {
				break
			}
		}
		if _, ok := s.found[key]; ok {
			s.order[key] = len(present)
			present = append(present, name)
		}
	}
	return present
}

// SortPlugins filters the requested names to those found on disk, parses
// their headers and emits a load order where masters precede the plugins
// that require them and ESM-flagged files come first overall.
func (s *HeaderSorter) SortPlugins(names []string) ([]string, error) {
	present := s.locate(names)
	if len(present) == 0 {
		return nil, fmt.Errorf("%w: no plugins found on disk", domain.ErrSortFailed)
	}

	headers := make(map[string]*plugin.Header, len(present))
	for _, name := range present {
		h, err := plugin.ReadHeaderFile(s.found[strings.ToLower(name)])
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrSortFailed, name, err)
		}
		headers[strings.ToLower(name)] = h
	}

	// Edges: master -> dependant, plus the collection's explicit rules
	index := func(name string) (int, bool) {
		i, ok := s.order[strings.ToLower(name)]
		return i, ok
	}
	n := len(present)
	succ := make([][]int, n)
	indegree := make([]int, n)
	addEdge := func(u, v int) {
		if u == v {
			return
		}
		succ[u] = append(succ[u], v)
		indegree[v]++
	}
	for _, name := range present {
		v, _ := index(name)
		for _, master := range headers[strings.ToLower(name)].Masters {
			if u, ok := index(master); ok {
				addEdge(u, v)
			}
		}
	}
	for _, rule := range s.input.Rules {
		v, ok := index(rule.Name)
		if !ok {
			continue
		}
		for _, before := range rule.After {
			if u, ok := index(before); ok {
				addEdge(u, v)
			}
		}
	}

	// An order the game itself last used, when available, breaks ties
	prior := make(map[string]int)
	if s.input.LocalAppData != "" {
		existing := filepath.Join(s.input.LocalAppData, "Skyrim Special Edition", "plugins.txt")
		if names, err := mo2.ReadPluginsFile(existing); err == nil {
			for i, name := range names {
				prior[strings.ToLower(name)] = i
			}
		}
	}
	priorRank := func(i int) int {
		if p, ok := prior[strings.ToLower(present[i])]; ok {
			return p
		}
		return len(prior) + i
	}

	// Kahn's algorithm; masters win the ready queue, then the prior order,
	// then input order
	classRank := func(i int) int {
		h := headers[strings.ToLower(present[i])]
		switch h.Kind {
		case plugin.KindESM:
			return 0
		case plugin.KindESL:
			return 1
		default:
			return 2
		}
	}

	var ready []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	var result []string
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool {
			ca, cb := classRank(ready[a]), classRank(ready[b])
			if ca != cb {
				return ca < cb
			}
			if pa, pb := priorRank(ready[a]), priorRank(ready[b]); pa != pb {
				return pa < pb
			}
			return ready[a] < ready[b]
		})
		u := ready[0]
		ready = ready[1:]
		result = append(result, present[u])
		for _, v := range succ[u] {
			indegree[v]--
			if indegree[v] == 0 {
				ready = append(ready, v)
			}
		}
	}
	if len(result) < n {
		return nil, fmt.Errorf("%w: plugin rule cycle", domain.ErrSortFailed)
	}
	return result, nil
}
