// Package regchain recovers Python module registration chains from C
// sources: the init function, the module definition struct, the method
// table, and the implementing C functions. The pieces may live in different
// files; resolution joins them by identifier through the whole file set.
package regchain

import (
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/shuangxiangkan/PyCTrace/internal/config"
	"github.com/shuangxiangkan/PyCTrace/internal/model"
	"github.com/shuangxiangkan/PyCTrace/internal/parse"
	"github.com/shuangxiangkan/PyCTrace/internal/registry"
)

// Components holds the registration pieces extracted from one file.
type Components struct {
	MethodTables []model.MethodTable
	ModuleDefs   []model.ModuleDefinition
	Inits        []model.InitFunction
	Externs      []model.ExternDecl
	Diagnostics  []model.Diagnostic
}

// Extract walks one parsed file for the three registration shapes. Shapes
// are matched syntactically by their configured type markers, so macro
// expansion is not required. An init function is recognized by its name
// prefix or by the init macro in its declaration, which catches legacy
// initmod-style entry points.
func Extract(res *parse.Result, shapes config.ShapeConfig) Components {
	var comp Components
	walkDeclarations(res.Tree.RootNode(), res, shapes, &comp)
	comp.Externs = append(comp.Externs, res.File.ExternDecls...)

	for _, fn := range res.File.Functions {
		if !strings.HasPrefix(fn.Name, shapes.InitPrefix) && fn.ReturnType != shapes.InitMacro {
			continue
		}
		comp.Inits = append(comp.Inits, model.InitFunction{
			Name:         fn.Name,
			File:         fn.File,
			Line:         fn.StartLine,
			Code:         fn.Code,
			ModuleName:   strings.TrimPrefix(fn.Name, shapes.InitPrefix),
			ModuleDefRef: moduleDefRef(fn, shapes.ModuleCreate),
		})
	}
	return comp
}

func walkDeclarations(node *sitter.Node, res *parse.Result, shapes config.ShapeConfig, comp *Components) {
	if node.Type() == "declaration" {
		typeName := ""
		if typ := node.ChildByFieldName("type"); typ != nil {
			typeName = parse.CollapseWhitespace(parse.NodeText(typ, res.Source))
		}
		switch {
		case strings.Contains(typeName, shapes.MethodTableType):
			table, diags, ok := methodTable(node, res, shapes)
			comp.Diagnostics = append(comp.Diagnostics, diags...)
			if ok {
				comp.MethodTables = append(comp.MethodTables, table)
			}
		case strings.Contains(typeName, shapes.ModuleDefType):
			if def, ok := moduleDef(node, res); ok {
				comp.ModuleDefs = append(comp.ModuleDefs, def)
			}
		}
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkDeclarations(node.Child(i), res, shapes, comp)
	}
}

// initializedDeclarator returns the declared identifier and the initializer
// list of a declaration, when it has that shape.
func initializedDeclarator(node *sitter.Node, source []byte) (string, *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "init_declarator" {
			continue
		}
		decl := child.ChildByFieldName("declarator")
		value := child.ChildByFieldName("value")
		if decl == nil || value == nil || value.Type() != "initializer_list" {
			continue
		}
		if id := firstIdentifier(decl, source); id != "" {
			return id, value
		}
	}
	return "", nil
}

func methodTable(node *sitter.Node, res *parse.Result, shapes config.ShapeConfig) (model.MethodTable, []model.Diagnostic, bool) {
	name, init := initializedDeclarator(node, res.Source)
	if name == "" || init == nil {
		return model.MethodTable{}, nil, false
	}
	table := model.MethodTable{
		Name: name,
		File: res.Path,
		Line: int(node.StartPoint().Row) + 1,
		Code: parse.NodeText(node, res.Source),
	}

	var diags []model.Diagnostic
	sawSentinel := false
	for i := 0; i < int(init.NamedChildCount()); i++ {
		row := init.NamedChild(i)
		if row.Type() != "initializer_list" {
			continue
		}
		fields := rowFields(row, res.Source)
		if isSentinel(fields) {
			sawSentinel = true
			if i != int(init.NamedChildCount())-1 {
				diags = append(diags, model.Diagnostic{
					Kind:   model.MalformedShape,
					File:   res.Path,
					Line:   int(row.StartPoint().Row) + 1,
					Detail: name + ": sentinel row is not last; following entries ignored",
				})
				break
			}
			continue
		}
		if len(fields) < 2 {
			continue
		}
		entry := model.MethodEntry{
			PythonName: parse.UnquoteString(fields[0]),
			CFunction:  fields[1],
		}
		// Rows may omit the docstring or combine flags; the flag marker
		// identifies the flags field wherever it sits.
		for _, f := range fields[2:] {
			switch {
			case strings.Contains(f, shapes.MethodFlagMark):
				entry.Flags = f
			case strings.HasPrefix(f, `"`):
				entry.Doc = parse.UnquoteString(f)
			}
		}
		table.Entries = append(table.Entries, entry)
	}
	if !sawSentinel {
		// A table without its terminator is a malformed shape; skip it
		// rather than resolve against a half-trusted entry list.
		diags = append(diags, model.Diagnostic{
			Kind:   model.MalformedShape,
			File:   res.Path,
			Line:   table.Line,
			Detail: name + ": method table has no terminating sentinel row",
		})
		return model.MethodTable{}, diags, false
	}
	return table, diags, true
}

// moduleDef parses a module definition struct literal. Field order follows
// the C convention: the module name is the first string literal, the
// docstring the second, and the method table the last plain identifier after
// the head marker.
func moduleDef(node *sitter.Node, res *parse.Result) (model.ModuleDefinition, bool) {
	name, init := initializedDeclarator(node, res.Source)
	if name == "" || init == nil {
		return model.ModuleDefinition{}, false
	}
	def := model.ModuleDefinition{
		Name: name,
		File: res.Path,
		Line: int(node.StartPoint().Row) + 1,
		Code: parse.NodeText(node, res.Source),
	}

	var strLits []string
	var idents []string
	for i := 0; i < int(init.NamedChildCount()); i++ {
		field := init.NamedChild(i)
		text := parse.CollapseWhitespace(parse.NodeText(field, res.Source))
		switch field.Type() {
		case "string_literal", "concatenated_string":
			strLits = append(strLits, parse.UnquoteString(text))
		case "identifier":
			if i > 0 && text != "NULL" {
				idents = append(idents, text)
			}
		}
	}
	if len(strLits) > 0 {
		def.ModuleName = strLits[0]
	}
	if len(strLits) > 1 {
		def.Doc = strLits[1]
	}
	if len(idents) > 0 {
		def.MethodTableRef = idents[len(idents)-1]
	}
	return def, true
}

func rowFields(row *sitter.Node, source []byte) []string {
	var fields []string
	for i := 0; i < int(row.NamedChildCount()); i++ {
		fields = append(fields, parse.CollapseWhitespace(parse.NodeText(row.NamedChild(i), source)))
	}
	return fields
}

func isSentinel(fields []string) bool {
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		if f != "NULL" && f != "0" {
			return false
		}
	}
	return true
}

// moduleDefRef finds the identifier passed by address to the module
// construction call inside an init function body.
func moduleDefRef(fn *model.FunctionDefinition, createAPIs []string) string {
	create := make(map[string]struct{}, len(createAPIs))
	for _, api := range createAPIs {
		create[api] = struct{}{}
	}
	for _, stmt := range fn.Body {
		for _, call := range stmt.Calls {
			if _, ok := create[call.Name]; !ok {
				continue
			}
			if len(call.Args) == 0 {
				continue
			}
			return strings.TrimPrefix(call.Args[0], "&")
		}
	}
	return ""
}

func firstIdentifier(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	if node.Type() == "identifier" {
		return parse.NodeText(node, source)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if id := firstIdentifier(node.NamedChild(i), source); id != "" {
			return id
		}
	}
	return ""
}

// Resolve joins components from every file into module chains, one per init
// function. Partial chains are retained with the first missing link tagged.
func Resolve(all []Components, reg *registry.Registry, parseTuple map[string]struct{}) ([]model.ModuleChain, []model.Diagnostic) {
	var (
		chains  []model.ModuleChain
		diags   []model.Diagnostic
		tables  []model.MethodTable
		defs    []model.ModuleDefinition
		externs = map[string]model.ExternDecl{}
	)
	for _, comp := range all {
		tables = append(tables, comp.MethodTables...)
		defs = append(defs, comp.ModuleDefs...)
		diags = append(diags, comp.Diagnostics...)
		for _, decl := range comp.Externs {
			if _, seen := externs[decl.Name]; !seen {
				externs[decl.Name] = decl
			}
		}
	}

	for _, comp := range all {
		for _, init := range comp.Inits {
			chain := model.ModuleChain{Init: init}

			def := findModuleDef(defs, init.ModuleDefRef, init.File)
			if def == nil {
				chain.MissingLink = model.MissingModuleDef
				chains = append(chains, chain)
				continue
			}
			chain.ModuleDef = def

			table := findMethodTable(tables, def.MethodTableRef, def.File)
			if table == nil {
				chain.MissingLink = model.MissingMethodTable
				chains = append(chains, chain)
				continue
			}
			chain.MethodTable = table

			complete := true
			for i := range table.Entries {
				entry := &table.Entries[i]
				fn, status := reg.Resolve(entry.CFunction, table.File)
				if status == registry.NotFound {
					complete = false
					if chain.MissingLink == "" {
						chain.MissingLink = model.MissingCFunction + ":" + entry.CFunction
					}
					detail := entry.CFunction + ": method table target has no definition in the file set"
					if decl, ok := externs[entry.CFunction]; ok {
						detail = fmt.Sprintf("%s: forward-declared at %s:%d but never defined", entry.CFunction, decl.File, decl.Line)
					}
					diags = append(diags, model.Diagnostic{
						Kind:   model.UnresolvedName,
						File:   table.File,
						Line:   table.Line,
						Detail: detail,
					})
					continue
				}
				if status == registry.Ambiguous {
					diags = append(diags, model.Diagnostic{
						Kind:   model.AmbiguousSymbol,
						File:   table.File,
						Line:   table.Line,
						Detail: entry.CFunction + ": multiple definitions; using " + fn.File,
					})
				}
				entry.Resolved = true
				entry.ParamFormat = paramFormat(fn, parseTuple)
				chain.Functions = append(chain.Functions, model.RelatedFunction{
					Name: fn.Name,
					File: fn.File,
					Line: fn.StartLine,
					Code: fn.Code,
				})
			}
			chain.Complete = complete
			chains = append(chains, chain)
		}
	}

	sort.SliceStable(chains, func(i, j int) bool {
		if chains[i].Init.File != chains[j].Init.File {
			return chains[i].Init.File < chains[j].Init.File
		}
		return chains[i].Init.Line < chains[j].Init.Line
	})
	return chains, diags
}

// findModuleDef prefers a definition in the referencing file, then the first
// one declared anywhere.
func findModuleDef(defs []model.ModuleDefinition, name, fromFile string) *model.ModuleDefinition {
	if name == "" {
		return nil
	}
	var fallback *model.ModuleDefinition
	for i := range defs {
		if defs[i].Name != name {
			continue
		}
		if defs[i].File == fromFile {
			d := defs[i]
			return &d
		}
		if fallback == nil {
			d := defs[i]
			fallback = &d
		}
	}
	return fallback
}

func findMethodTable(tables []model.MethodTable, name, fromFile string) *model.MethodTable {
	if name == "" {
		return nil
	}
	var fallback *model.MethodTable
	for i := range tables {
		if tables[i].Name != name {
			continue
		}
		if tables[i].File == fromFile {
			t := cloneTable(tables[i])
			return t
		}
		if fallback == nil {
			fallback = cloneTable(tables[i])
		}
	}
	return fallback
}

// cloneTable copies a table so entry resolution on one chain cannot bleed
// into another chain referencing the same table.
func cloneTable(t model.MethodTable) *model.MethodTable {
	out := t
	out.Entries = append([]model.MethodEntry(nil), t.Entries...)
	return &out
}

// paramFormat lifts the format string of the first argument-unpacking call
// in a method body, when it is a plain literal.
func paramFormat(fn *model.FunctionDefinition, parseTuple map[string]struct{}) string {
	for _, stmt := range fn.Body {
		for _, call := range stmt.Calls {
			if _, ok := parseTuple[call.Name]; !ok {
				continue
			}
			if len(call.Args) < 2 {
				continue
			}
			arg := call.Args[1]
			if strings.HasPrefix(arg, `"`) && strings.HasSuffix(arg, `"`) {
				return parse.UnquoteString(arg)
			}
		}
	}
	return ""
}
