package parse

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

// Identifiers that never participate in dependency tracking.
var ignoredIdents = map[string]struct{}{
	"NULL":  {},
	"true":  {},
	"false": {},
}

// defuse accumulates the effect of one statement.
type defuse struct {
	defs  map[string]struct{}
	uses  map[string]struct{}
	calls []model.CallExpr
}

func newDefuse() *defuse {
	return &defuse{defs: map[string]struct{}{}, uses: map[string]struct{}{}}
}

func (d *defuse) def(name string) {
	if _, skip := ignoredIdents[name]; skip || name == "" {
		return
	}
	d.defs[name] = struct{}{}
}

func (d *defuse) use(name string) {
	if _, skip := ignoredIdents[name]; skip || name == "" {
		return
	}
	d.uses[name] = struct{}{}
}

// bodyStatements flattens a compound statement into the ordered statement
// list, recursing through control-flow bodies. Control headers become
// StmtCondition entries so tracked variables consumed only in conditions
// still pull the header in.
func bodyStatements(body *sitter.Node, source []byte) []model.Statement {
	var out []model.Statement
	collectStatements(body, source, &out)
	return out
}

func collectStatements(node *sitter.Node, source []byte, out *[]model.Statement) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "declaration":
			*out = append(*out, makeStatement(child, source, model.StmtDeclaration))

		case "expression_statement":
			*out = append(*out, makeStatement(child, source, model.StmtExpression))

		case "return_statement":
			*out = append(*out, makeStatement(child, source, model.StmtReturn))

		case "if_statement":
			appendHeader(child, child.ChildByFieldName("condition"), source, out)
			if cons := child.ChildByFieldName("consequence"); cons != nil {
				recurseBody(cons, source, out)
			}
			if alt := child.ChildByFieldName("alternative"); alt != nil {
				recurseBody(alt, source, out)
			}

		case "while_statement", "switch_statement":
			appendHeader(child, child.ChildByFieldName("condition"), source, out)
			if b := child.ChildByFieldName("body"); b != nil {
				recurseBody(b, source, out)
			}

		case "do_statement":
			if b := child.ChildByFieldName("body"); b != nil {
				recurseBody(b, source, out)
			}
			appendHeader(child, child.ChildByFieldName("condition"), source, out)

		case "for_statement":
			appendForHeader(child, source, out)
			if b := child.ChildByFieldName("body"); b != nil {
				recurseBody(b, source, out)
			}

		case "compound_statement":
			collectStatements(child, source, out)

		case "case_statement", "labeled_statement":
			collectStatements(child, source, out)

		case "else_clause":
			collectStatements(child, source, out)

		case "break_statement", "continue_statement", "goto_statement", "comment":
			// no defs or uses

		default:
			// Anything expression-like that slipped through keeps its uses.
			if child.IsNamed() {
				*out = append(*out, makeStatement(child, source, model.StmtOther))
			}
		}
	}
}

// recurseBody descends into a control-flow body, wrapping single statements
// that are not compound blocks.
func recurseBody(node *sitter.Node, source []byte, out *[]model.Statement) {
	if node.Type() == "compound_statement" || node.Type() == "else_clause" {
		collectStatements(node, source, out)
		return
	}
	// Single-statement body without braces.
	collectSingle(node, source, out)
}

func collectSingle(node *sitter.Node, source []byte, out *[]model.Statement) {
	switch node.Type() {
	case "declaration":
		*out = append(*out, makeStatement(node, source, model.StmtDeclaration))
	case "expression_statement":
		*out = append(*out, makeStatement(node, source, model.StmtExpression))
	case "return_statement":
		*out = append(*out, makeStatement(node, source, model.StmtReturn))
	case "if_statement", "while_statement", "for_statement", "do_statement",
		"switch_statement", "compound_statement", "case_statement", "labeled_statement":
		// Delegate back through the collector with a synthetic parent walk.
		var tmp []model.Statement
		collectControl(node, source, &tmp)
		*out = append(*out, tmp...)
	case "break_statement", "continue_statement", "goto_statement":
	default:
		if node.IsNamed() {
			*out = append(*out, makeStatement(node, source, model.StmtOther))
		}
	}
}

// collectControl handles a lone control statement reached outside a block.
func collectControl(node *sitter.Node, source []byte, out *[]model.Statement) {
	switch node.Type() {
	case "if_statement":
		appendHeader(node, node.ChildByFieldName("condition"), source, out)
		if cons := node.ChildByFieldName("consequence"); cons != nil {
			recurseBody(cons, source, out)
		}
		if alt := node.ChildByFieldName("alternative"); alt != nil {
			recurseBody(alt, source, out)
		}
	case "while_statement", "switch_statement":
		appendHeader(node, node.ChildByFieldName("condition"), source, out)
		if b := node.ChildByFieldName("body"); b != nil {
			recurseBody(b, source, out)
		}
	case "do_statement":
		if b := node.ChildByFieldName("body"); b != nil {
			recurseBody(b, source, out)
		}
		appendHeader(node, node.ChildByFieldName("condition"), source, out)
	case "for_statement":
		appendForHeader(node, source, out)
		if b := node.ChildByFieldName("body"); b != nil {
			recurseBody(b, source, out)
		}
	case "compound_statement", "case_statement", "labeled_statement":
		collectStatements(node, source, out)
	}
}

func appendHeader(stmt, condition *sitter.Node, source []byte, out *[]model.Statement) {
	du := newDefuse()
	if condition != nil {
		collectExpr(condition, source, du)
	}
	*out = append(*out, model.Statement{
		Line:  line(stmt),
		Text:  headerText(stmt, source),
		Kind:  model.StmtCondition,
		Defs:  du.sortedDefs(),
		Uses:  du.sortedUses(),
		Calls: du.calls,
	})
}

// appendForHeader folds initializer, condition and update of a for loop into
// one condition statement.
func appendForHeader(node *sitter.Node, source []byte, out *[]model.Statement) {
	du := newDefuse()
	for _, field := range []string{"initializer", "condition", "update"} {
		if part := node.ChildByFieldName(field); part != nil {
			collectExpr(part, source, du)
		}
	}
	*out = append(*out, model.Statement{
		Line:  line(node),
		Text:  headerText(node, source),
		Kind:  model.StmtCondition,
		Defs:  du.sortedDefs(),
		Uses:  du.sortedUses(),
		Calls: du.calls,
	})
}

// headerText reproduces a control header without its body, e.g. "if (rc < 0)".
func headerText(stmt *sitter.Node, source []byte) string {
	end := stmt.EndByte()
	if b := stmt.ChildByFieldName("body"); b != nil {
		end = b.StartByte()
	} else if c := stmt.ChildByFieldName("consequence"); c != nil {
		end = c.StartByte()
	}
	return CollapseWhitespace(string(source[stmt.StartByte():end]))
}

func makeStatement(node *sitter.Node, source []byte, kind model.StatementKind) model.Statement {
	du := newDefuse()
	collectExpr(node, source, du)
	return model.Statement{
		Line:  line(node),
		Text:  CollapseWhitespace(NodeText(node, source)),
		Kind:  kind,
		Defs:  du.sortedDefs(),
		Uses:  du.sortedUses(),
		Calls: du.calls,
	}
}

// collectExpr walks an expression subtree recording defs, uses and calls.
// Type specifiers never reach here, so every identifier seen is a value name.
func collectExpr(node *sitter.Node, source []byte, du *defuse) {
	switch node.Type() {
	case "identifier":
		du.use(NodeText(node, source))

	case "declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "init_declarator":
				collectExpr(child, source, du)
			case "identifier":
				du.def(NodeText(child, source))
			case "pointer_declarator", "array_declarator":
				if id := firstIdentifier(child); id != nil {
					du.def(NodeText(id, source))
				}
			}
			// Type specifiers and qualifiers are skipped.
		}

	case "init_declarator":
		if decl := node.ChildByFieldName("declarator"); decl != nil {
			if id := firstIdentifier(decl); id != nil {
				du.def(NodeText(id, source))
			}
		}
		if value := node.ChildByFieldName("value"); value != nil {
			collectExpr(value, source, du)
		}

	case "assignment_expression":
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		compound := false
		for i := 0; i < int(node.ChildCount()); i++ {
			t := node.Child(i).Type()
			if len(t) > 1 && t[len(t)-1] == '=' && t != "==" && t != "!=" && t != "<=" && t != ">=" {
				compound = true
			}
		}
		if left != nil {
			if left.Type() == "identifier" {
				name := NodeText(left, source)
				du.def(name)
				if compound {
					du.use(name)
				}
			} else {
				// Writes through a field, subscript or dereference both
				// define and use the base variable.
				if id := firstIdentifier(left); id != nil {
					name := NodeText(id, source)
					du.def(name)
					du.use(name)
				}
				collectExpr(left, source, du)
			}
		}
		if right != nil {
			collectExpr(right, source, du)
		}

	case "update_expression":
		if id := firstIdentifier(node); id != nil {
			name := NodeText(id, source)
			du.def(name)
			du.use(name)
		}

	case "call_expression":
		fn := node.ChildByFieldName("function")
		call := model.CallExpr{}
		if fn != nil {
			call.Name = CollapseWhitespace(NodeText(fn, source))
			// Method-style calls through a pointer still use the receiver.
			if fn.Type() != "identifier" {
				collectExpr(fn, source, du)
			}
		}
		call.Text = CollapseWhitespace(NodeText(node, source))
		if args := node.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				arg := args.NamedChild(i)
				call.Args = append(call.Args, CollapseWhitespace(NodeText(arg, source)))
				collectExpr(arg, source, du)
			}
		}
		du.calls = append(du.calls, call)

	case "string_literal", "char_literal", "number_literal", "concatenated_string",
		"preproc_arg", "sizeof_expression", "null":
		// literals contribute nothing

	default:
		for i := 0; i < int(node.NamedChildCount()); i++ {
			collectExpr(node.NamedChild(i), source, du)
		}
	}
}

func (d *defuse) sortedDefs() []string { return sortedSet(d.defs) }
func (d *defuse) sortedUses() []string { return sortedSet(d.uses) }

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
