// Package callgraph builds the static C call graph from extracted call
// expressions and merges it with the Python-side graph, linking calls to
// exported module names to the registered C functions.
package callgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

// Build returns deduplicated caller -> callee edges for every direct call
// found in any function body. Indirect calls through fields or pointers are
// excluded.
func Build(files []*model.SourceFile) []model.CallEdge {
	seen := map[model.CallEdge]struct{}{}
	var edges []model.CallEdge
	for _, f := range files {
		for _, fn := range f.Functions {
			for _, stmt := range fn.Body {
				for _, call := range stmt.Calls {
					if call.Name == "" || strings.ContainsAny(call.Name, ".->") {
						continue
					}
					edge := model.CallEdge{Caller: fn.Name, Callee: call.Name}
					if _, dup := seen[edge]; dup {
						continue
					}
					seen[edge] = struct{}{}
					edges = append(edges, edge)
				}
			}
		}
	}
	sortEdges(edges)
	return edges
}

// MergePython rewrites registered C function nodes as "cfunc(pyname)" so the
// graph shows which C functions are reachable from Python and under which
// exported name.
func MergePython(edges []model.CallEdge, chains []model.ModuleChain) []model.CallEdge {
	rename := map[string]string{}
	for _, chain := range chains {
		if chain.MethodTable == nil {
			continue
		}
		for _, entry := range chain.MethodTable.Entries {
			if entry.Resolved {
				rename[entry.CFunction] = fmt.Sprintf("%s(%s)", entry.CFunction, entry.PythonName)
			}
		}
	}
	if len(rename) == 0 {
		return edges
	}

	seen := map[model.CallEdge]struct{}{}
	out := make([]model.CallEdge, 0, len(edges))
	for _, e := range edges {
		if r, ok := rename[e.Caller]; ok {
			e.Caller = r
		}
		if r, ok := rename[e.Callee]; ok {
			e.Callee = r
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sortEdges(out)
	return out
}

// Merge combines the C graph with edges extracted from Python sources.
// Registered C functions are renamed as in MergePython; Python calls naming
// an exported function, bare or module-qualified, are rewired to the same
// renamed node, producing the cross-language edges.
func Merge(cEdges, pyEdges []model.CallEdge, chains []model.ModuleChain) []model.CallEdge {
	merged := MergePython(cEdges, chains)
	if len(pyEdges) == 0 {
		return merged
	}

	exports := map[string]string{}
	for _, chain := range chains {
		if chain.MethodTable == nil {
			continue
		}
		moduleName := chain.Init.ModuleName
		if chain.ModuleDef != nil && chain.ModuleDef.ModuleName != "" {
			moduleName = chain.ModuleDef.ModuleName
		}
		for _, entry := range chain.MethodTable.Entries {
			if !entry.Resolved {
				continue
			}
			renamed := fmt.Sprintf("%s(%s)", entry.CFunction, entry.PythonName)
			exports[entry.PythonName] = renamed
			if moduleName != "" {
				exports[moduleName+"."+entry.PythonName] = renamed
			}
		}
	}

	seen := map[model.CallEdge]struct{}{}
	for _, e := range merged {
		seen[e] = struct{}{}
	}
	for _, e := range pyEdges {
		if r, ok := exports[e.Callee]; ok {
			e.Callee = r
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		merged = append(merged, e)
	}
	sortEdges(merged)
	return merged
}

func sortEdges(edges []model.CallEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		return edges[i].Callee < edges[j].Callee
	})
}
