// Package pycall extracts function definitions and call edges from Python
// sources. The edges join the merged call graph, where calls into an
// extension module resolve to the registered C functions.
package pycall

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

// moduleCaller labels call edges originating at module level rather than
// inside a function body.
const moduleCaller = "<module>"

// Function is a Python function definition.
type Function struct {
	Name string
	File string
	Line int
}

// NewParser creates a fresh tree-sitter parser for Python.
// Each goroutine must use its own parser (not thread-safe).
func NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return p
}

// File parses one Python source and returns its function definitions and
// call edges. Callee names keep their dotted form, so calc.add stays
// matchable against the module's exported names.
func File(parser *sitter.Parser, source []byte, path string) ([]Function, []model.CallEdge, error) {
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if tree.RootNode() == nil {
		return nil, nil, fmt.Errorf("parsing %s: no syntax tree", path)
	}

	var (
		fns   []Function
		edges []model.CallEdge
	)
	walk(tree.RootNode(), source, path, moduleCaller, &fns, &edges)
	return fns, edges, nil
}

func walk(node *sitter.Node, source []byte, path, caller string, fns *[]Function, edges *[]model.CallEdge) {
	switch node.Type() {
	case "function_definition":
		name := caller
		if id := node.ChildByFieldName("name"); id != nil {
			name = id.Content(source)
			*fns = append(*fns, Function{
				Name: name,
				File: path,
				Line: int(node.StartPoint().Row) + 1,
			})
		}
		if body := node.ChildByFieldName("body"); body != nil {
			walk(body, source, path, name, fns, edges)
		}
		return
	case "call":
		if fn := node.ChildByFieldName("function"); fn != nil {
			if callee := calleeName(fn, source); callee != "" {
				*edges = append(*edges, model.CallEdge{Caller: caller, Callee: callee})
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), source, path, caller, fns, edges)
	}
}

// calleeName renders the called expression as a name. Identifiers and
// attribute chains come back in dotted form; anything computed (a call
// result, a subscript) yields no edge.
func calleeName(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "identifier":
		return node.Content(source)
	case "attribute":
		obj := node.ChildByFieldName("object")
		attr := node.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		base := calleeName(obj, source)
		if base == "" {
			return ""
		}
		return base + "." + attr.Content(source)
	}
	return ""
}
