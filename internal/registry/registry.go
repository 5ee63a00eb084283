// Package registry indexes function definitions across all parsed files so
// cross-file references resolve by name.
package registry

import (
	"sort"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

// Status classifies a lookup outcome.
type Status int

const (
	// NotFound means no file defines the name.
	NotFound Status = iota
	// Found means exactly one definition matched (after tie-breaking).
	Found
	// Ambiguous means multiple true definitions exist; the returned
	// definition is the tie-break winner and callers should surface a
	// duplicate-definition diagnostic.
	Ambiguous
)

// Registry maps function names to their definitions. Built once after all
// files parse; read-only afterwards, safe for concurrent lookups.
type Registry struct {
	byName map[string][]*model.FunctionDefinition
	order  map[string]int // file path -> discovery index
}

// Build indexes every function definition from files in discovery order.
// Extern forward declarations are not definitions and never register.
func Build(files []*model.SourceFile) *Registry {
	r := &Registry{
		byName: make(map[string][]*model.FunctionDefinition),
		order:  make(map[string]int, len(files)),
	}
	for i, f := range files {
		if _, seen := r.order[f.Path]; !seen {
			r.order[f.Path] = i
		}
		for _, fn := range f.Functions {
			r.byName[fn.Name] = append(r.byName[fn.Name], fn)
		}
	}
	return r
}

// Resolve finds the definition of name as referenced from fromFile.
// With multiple candidates the definition in the referencing file wins;
// otherwise the one from the earliest-discovered file is chosen. Either
// way the result is reported Ambiguous: duplicate definitions are always
// worth a diagnostic, whichever candidate the tie-break picks.
func (r *Registry) Resolve(name, fromFile string) (*model.FunctionDefinition, Status) {
	candidates := r.byName[name]
	switch len(candidates) {
	case 0:
		return nil, NotFound
	case 1:
		return candidates[0], Found
	}
	for _, fn := range candidates {
		if fn.File == fromFile {
			return fn, Ambiguous
		}
	}
	best := candidates[0]
	for _, fn := range candidates[1:] {
		if r.order[fn.File] < r.order[best.File] {
			best = fn
		}
	}
	return best, Ambiguous
}

// Lookup returns all definitions of name, in discovery order.
func (r *Registry) Lookup(name string) []*model.FunctionDefinition {
	out := append([]*model.FunctionDefinition(nil), r.byName[name]...)
	sort.SliceStable(out, func(i, j int) bool {
		return r.order[out[i].File] < r.order[out[j].File]
	})
	return out
}

// Names returns every registered function name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
