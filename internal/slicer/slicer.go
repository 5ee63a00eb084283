// Package slicer computes minimal dependency slices around Python invocation
// call sites. The slice is line-granular: starting from the call statement's
// defs and uses, it repeatedly pulls in defining statements and pure
// consumers of tracked variables until a fixed point, then reorders by
// source line.
package slicer

import (
	"sort"
	"strings"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
	"github.com/shuangxiangkan/PyCTrace/internal/registry"
)

// Locate scans a parsed file for statements invoking one of the recognized
// Python call APIs.
func Locate(file *model.SourceFile, apiSet map[string]struct{}) []model.CallOfInterest {
	var out []model.CallOfInterest
	for _, fn := range file.Functions {
		for _, stmt := range fn.Body {
			for _, call := range stmt.Calls {
				if _, ok := apiSet[call.Name]; !ok {
					continue
				}
				out = append(out, model.CallOfInterest{
					API:      call.Name,
					File:     file.Path,
					Line:     stmt.Line,
					Code:     stmt.Text,
					Args:     call.Args,
					Function: fn,
				})
			}
		}
	}
	return out
}

// Slice builds the dependency slice for one call site inside fn. Helper
// functions called from context statements are pulled in whole through the
// registry; helpers are not sliced recursively.
func Slice(call model.CallOfInterest, reg *registry.Registry) (model.CallContextSlice, []model.Diagnostic) {
	slice := model.CallContextSlice{Call: call}
	var diags []model.Diagnostic

	fn := call.Function
	if fn == nil {
		return slice, diags
	}

	seed := -1
	for i, stmt := range fn.Body {
		if stmt.Line != call.Line {
			continue
		}
		for _, c := range stmt.Calls {
			if c.Name == call.API {
				seed = i
				break
			}
		}
		if seed >= 0 {
			break
		}
	}
	if seed < 0 {
		return slice, diags
	}

	// tracked maps each name to its tier: true for primary names (the seed's
	// own def/use set and everything on the result's forward chain), false
	// for secondary names acquired while chasing dependency definitions.
	tracked := map[string]bool{}
	included := map[int]struct{}{seed: {}}
	for _, d := range fn.Body[seed].Defs {
		tracked[d] = true
	}
	for _, u := range fn.Body[seed].Uses {
		tracked[u] = true
	}

	// Fixed point: one pass can expose new tracked names that earlier
	// statements touch, so repeat until nothing changes.
	for {
		changed := false
		for i, stmt := range fn.Body {
			if _, in := included[i]; in {
				continue
			}
			asPrimary, ok := joins(stmt, tracked)
			if !ok {
				continue
			}
			included[i] = struct{}{}
			admit(tracked, stmt, asPrimary)
			changed = true
		}
		if !changed {
			break
		}
	}

	idxs := make([]int, 0, len(included))
	for i := range included {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	// Reorder by source line so the slice reads as program text.
	sort.SliceStable(idxs, func(a, b int) bool {
		return fn.Body[idxs[a]].Line < fn.Body[idxs[b]].Line
	})
	for _, i := range idxs {
		slice.Statements = append(slice.Statements, fn.Body[i])
	}

	slice.Related, slice.Unresolved, diags = relatedFunctions(slice.Statements, call, reg)

	for _, name := range unresolvedVars(slice.Statements, tracked, fn) {
		slice.Unresolved = appendUnique(slice.Unresolved, name)
	}
	sort.Strings(slice.Unresolved)

	return slice, diags
}

// joins decides slice membership. A statement defining a tracked variable
// always joins. A statement using a primary variable joins unconditionally:
// consumers of the call's result belong to the slice even when they bind
// new names. A statement reaching the slice only through secondary names
// joins solely as a pure consumer, so a sibling call chain sharing a
// variable (two lookups off the same module object) is not dragged in
// through its own definitions.
func joins(stmt model.Statement, tracked map[string]bool) (asPrimary, ok bool) {
	for _, d := range stmt.Defs {
		if _, hit := tracked[d]; hit {
			return false, true
		}
	}
	secondaryUse := false
	for _, u := range stmt.Uses {
		primary, hit := tracked[u]
		if !hit {
			continue
		}
		if primary {
			return true, true
		}
		secondaryUse = true
	}
	if !secondaryUse {
		return false, false
	}
	// No def here is tracked, so any def would introduce a new name.
	if len(stmt.Defs) > 0 {
		return false, false
	}
	return false, true
}

// admit records a joined statement's names. Statements joining through a
// primary use extend the forward chain, so their names stay primary;
// everything else enters as secondary without demoting existing primaries.
func admit(tracked map[string]bool, stmt model.Statement, asPrimary bool) {
	record := func(name string) {
		if asPrimary {
			tracked[name] = true
			return
		}
		if _, ok := tracked[name]; !ok {
			tracked[name] = false
		}
	}
	for _, d := range stmt.Defs {
		record(d)
	}
	for _, u := range stmt.Uses {
		record(u)
	}
}

// Annotate records the lookup and argument-building calls appearing in the
// slice's context statements, matched against the configured API families.
func Annotate(sl *model.CallContextSlice, lookup, argBuild map[string]struct{}) {
	for _, stmt := range sl.Statements {
		for _, c := range stmt.Calls {
			if _, ok := lookup[c.Name]; ok {
				sl.Lookups = append(sl.Lookups, c)
			}
			if _, ok := argBuild[c.Name]; ok {
				sl.ArgBuilds = append(sl.ArgBuilds, c)
			}
		}
	}
}

// relatedFunctions resolves every call target appearing in the context
// statements. Bodies found in the repository come back whole; names with no
// definition anywhere are recorded as unresolved.
func relatedFunctions(stmts []model.Statement, call model.CallOfInterest, reg *registry.Registry) ([]model.RelatedFunction, []string, []model.Diagnostic) {
	var (
		related    []model.RelatedFunction
		unresolved []string
		diags      []model.Diagnostic
		seen       = map[string]struct{}{}
	)
	for _, stmt := range stmts {
		for _, c := range stmt.Calls {
			name := c.Name
			if name == "" || name == call.API {
				continue
			}
			if strings.ContainsAny(name, ".->()") {
				// Indirect calls through fields or pointers have no
				// textual definition to resolve.
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			def, status := reg.Resolve(name, call.File)
			switch status {
			case registry.Found:
				related = append(related, asRelated(def))
			case registry.Ambiguous:
				related = append(related, asRelated(def))
				diags = append(diags, model.Diagnostic{
					Kind:   model.AmbiguousSymbol,
					File:   call.File,
					Line:   stmt.Line,
					Detail: name + ": multiple definitions; using " + def.File,
				})
			case registry.NotFound:
				unresolved = appendUnique(unresolved, name)
			}
		}
	}
	sort.Slice(related, func(i, j int) bool {
		if related[i].File != related[j].File {
			return related[i].File < related[j].File
		}
		return related[i].Line < related[j].Line
	})
	return related, unresolved, diags
}

// unresolvedVars returns tracked variables no context statement defines,
// excluding the enclosing function's parameters.
func unresolvedVars(stmts []model.Statement, tracked map[string]bool, fn *model.FunctionDefinition) []string {
	defined := map[string]struct{}{}
	for _, stmt := range stmts {
		for _, d := range stmt.Defs {
			defined[d] = struct{}{}
		}
	}
	for _, p := range fn.ParamNames {
		defined[p] = struct{}{}
	}
	var out []string
	for name := range tracked {
		if _, ok := defined[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func asRelated(def *model.FunctionDefinition) model.RelatedFunction {
	return model.RelatedFunction{
		Name: def.Name,
		File: def.File,
		Line: def.StartLine,
		Code: def.Code,
	}
}

func appendUnique(list []string, name string) []string {
	for _, have := range list {
		if have == name {
			return list
		}
	}
	return append(list, name)
}
