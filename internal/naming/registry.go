package naming

import (
	"fmt"
	"strings"
)

// Registry hands out display names that are unique within one pipeline run.
// It is not safe for concurrent use; extraction assigns names sequentially.
type Registry struct {
	used map[string]struct{}
	// next is the first suffix not yet tried for a candidate; every lower
	// suffix is already taken.
	next map[string]int
}

func NewRegistry() *Registry {
	return &Registry{used: make(map[string]struct{}), next: make(map[string]int)}
}

// Assign returns candidate if it is still free, otherwise the first free
// candidate-1, candidate-2, ... The returned name is recorded as used.
func (r *Registry) Assign(candidate string) string {
	if r.used == nil {
		r.used = make(map[string]struct{})
		r.next = make(map[string]int)
	}
	name := candidate
	if _, ok := r.used[name]; ok {
		n := max(r.next[candidate], 1)
		for {
			name = fmt.Sprintf("%s-%d", candidate, n)
			n++
			if _, ok := r.used[name]; !ok {
				break
			}
		}
		r.next[candidate] = n
	}
	r.used[name] = struct{}{}
	return name
}

// Taken reports whether name has already been handed out.
func (r *Registry) Taken(name string) bool {
	_, ok := r.used[name]
	return ok
}

func (r *Registry) Len() int { return len(r.used) }

// Placeholder is the name given to an entry that carries no remark of its
// own: Proxy-<source>-<index>, both 1-based.
func Placeholder(sourceIndex, entryIndex int) string {
	return fmt.Sprintf("Proxy-%d-%d", sourceIndex+1, entryIndex+1)
}

// Remark turns an upstream remark into a name candidate. Spaces become "-"
// so the name survives tools that split on whitespace.
func Remark(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
}
