// Package parse builds the source model from C files using tree-sitter:
// ordered function definitions, per-statement def/use sets, extern
// declarations and string literals.
package parse

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Result owns one parsed file: the tree-sitter AST, the raw source, and the
// extracted model. Immutable after File returns.
type Result struct {
	Path   string
	Source []byte
	Tree   *sitter.Tree
	File   *model.SourceFile
}

// NewParser creates a fresh tree-sitter parser for C.
// Each goroutine must use its own parser (not thread-safe).
func NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(c.GetLanguage())
	return p
}

// File parses source and extracts its model. The tree is retained on the
// Result so the registration-chain resolver can revisit declaration shapes
// without re-parsing.
func File(parser *sitter.Parser, source []byte, path string) (*Result, error) {
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if tree.RootNode() == nil {
		return nil, fmt.Errorf("parsing %s: no syntax tree", path)
	}

	sf := &model.SourceFile{Path: path}
	extract(tree.RootNode(), source, path, sf)

	return &Result{Path: path, Source: source, Tree: tree, File: sf}, nil
}

func extract(node *sitter.Node, source []byte, path string, sf *model.SourceFile) {
	switch node.Type() {
	case "function_definition":
		if fn := buildFunction(node, source, path); fn != nil {
			sf.Functions = append(sf.Functions, fn)
		}
		// Still descend for string literals inside the body.
		collectStrings(node, source, sf)
		return
	case "declaration":
		if name, ok := forwardDeclName(node, source); ok {
			sf.ExternDecls = append(sf.ExternDecls, model.ExternDecl{
				Name: name,
				File: path,
				Line: line(node),
			})
		}
		collectStrings(node, source, sf)
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		extract(node.Child(i), source, path, sf)
	}
}

func collectStrings(node *sitter.Node, source []byte, sf *model.SourceFile) {
	if node.Type() == "string_literal" {
		sf.StringLiterals = append(sf.StringLiterals, model.StringLiteral{
			Text: UnquoteString(NodeText(node, source)),
			Line: line(node),
		})
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectStrings(node.Child(i), source, sf)
	}
}

func buildFunction(node *sitter.Node, source []byte, path string) *model.FunctionDefinition {
	name := functionName(node, source)
	if name == "" {
		return nil
	}

	fn := &model.FunctionDefinition{
		Name:      name,
		File:      path,
		StartLine: line(node),
		EndLine:   int(node.EndPoint().Row) + 1,
		Code:      NodeText(node, source),
	}

	if typ := node.ChildByFieldName("type"); typ != nil {
		fn.ReturnType = CollapseWhitespace(NodeText(typ, source))
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "storage_class_specifier" && NodeText(child, source) == "static" {
			fn.Static = true
		}
	}

	if fd := functionDeclarator(node.ChildByFieldName("declarator")); fd != nil {
		if params := fd.ChildByFieldName("parameters"); params != nil {
			for i := 0; i < int(params.NamedChildCount()); i++ {
				p := params.NamedChild(i)
				if p.Type() != "parameter_declaration" {
					continue
				}
				fn.Params = append(fn.Params, CollapseWhitespace(NodeText(p, source)))
				if id := firstIdentifier(p); id != nil {
					fn.ParamNames = append(fn.ParamNames, NodeText(id, source))
				}
			}
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		fn.Body = bodyStatements(body, source)
	}

	return fn
}

// functionName extracts the defined name, descending through pointer
// declarators for functions returning pointers (PyObject *f(...)).
func functionName(node *sitter.Node, source []byte) string {
	fd := functionDeclarator(node.ChildByFieldName("declarator"))
	if fd == nil {
		return ""
	}
	inner := fd.ChildByFieldName("declarator")
	if inner == nil {
		return ""
	}
	if id := firstIdentifier(inner); id != nil {
		return NodeText(id, source)
	}
	return ""
}

// functionDeclarator unwraps pointer declarators down to the
// function_declarator, or returns nil when there is none.
func functionDeclarator(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Type() {
		case "function_declarator":
			return node
		case "pointer_declarator", "parenthesized_declarator":
			node = node.ChildByFieldName("declarator")
			if node == nil {
				return nil
			}
		default:
			return nil
		}
	}
	return nil
}

// forwardDeclName reports whether a declaration is a function forward
// declaration (extern or implicit) and returns the declared name.
func forwardDeclName(node *sitter.Node, source []byte) (string, bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_declarator", "pointer_declarator":
			if fd := functionDeclarator(child); fd != nil {
				if id := firstIdentifier(fd.ChildByFieldName("declarator")); id != nil {
					return NodeText(id, source), true
				}
			}
		}
	}
	return "", false
}

func firstIdentifier(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == "identifier" {
		return node
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if id := firstIdentifier(node.NamedChild(i)); id != nil {
			return id
		}
	}
	return nil
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// UnquoteString strips surrounding quotes from a string literal and decodes
// the common escapes.
func UnquoteString(raw string) string {
	s := raw
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	replacer := strings.NewReplacer(
		`\n`, "\n",
		`\t`, "\t",
		`\r`, "\r",
		`\"`, `"`,
		`\\`, `\`,
	)
	return replacer.Replace(s)
}

func line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}
