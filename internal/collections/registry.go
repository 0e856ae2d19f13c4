// internal/collections/registry.go
package collections

import (
	"sort"
	"sync"
)

var (
	regMu    sync.RWMutex
	registry = map[string]Spec{}
)

func Register(s Spec) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[s.Name] = s
}

func Get(name string) (Spec, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	s, ok := registry[name]
	return s, ok
}

// All zwraca kopię rejestru posortowaną po nazwie.
func All() []Spec {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]Spec, 0, len(registry))
	for _, v := range registry {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WithPaths nadpisuje ścieżki GET z configu (nazwa -> path).
func WithPaths(specs []Spec, paths map[string]string) []Spec {
	out := make([]Spec, len(specs))
	for i, s := range specs {
		if p, ok := paths[s.Name]; ok && p != "" {
			s.Path = p
		}
		out[i] = s
	}
	return out
}
