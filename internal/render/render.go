// Package render writes analysis reports as human-readable text, JSON,
// Graphviz DOT and Mermaid diagrams.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

const banner = "================================================================================"

// WriteAll renders the requested formats into dir. File names are fixed:
// report.txt, report.json, callgraph.dot, chains.mmd.
func WriteAll(dir string, formats []string, report *model.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	for _, format := range formats {
		var (
			name string
			fn   func(io.Writer, *model.Report) error
		)
		switch format {
		case "text":
			name, fn = "report.txt", Text
		case "json":
			name, fn = "report.json", JSON
		case "dot":
			name, fn = "callgraph.dot", DOT
		case "mermaid":
			name, fn = "chains.mmd", Mermaid
		default:
			return fmt.Errorf("unknown output format %q", format)
		}
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		if err := fn(f, report); err != nil {
			f.Close()
			return fmt.Errorf("rendering %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Text writes the banner-delimited report.
func Text(w io.Writer, report *model.Report) error {
	p := func(format string, args ...any) {
		fmt.Fprintf(w, format+"\n", args...)
	}

	p(banner)
	p("Python C-API Analysis")
	p("Root: %s", report.Root)
	p("Files analyzed: %d", len(report.Files))
	if len(report.PythonFiles) > 0 {
		p("Python files analyzed: %d", len(report.PythonFiles))
	}
	p(banner)

	p("")
	p("Python API calls: %d", len(report.Slices))
	for i, sl := range report.Slices {
		p("")
		p("--- Call %d: %s ---", i+1, sl.Call.API)
		fnName := ""
		if sl.Call.Function != nil {
			fnName = sl.Call.Function.Name
		}
		p("  Location: %s:%d (in %s)", sl.Call.File, sl.Call.Line, fnName)
		p("  Code: %s", sl.Call.Code)
		p("  Context statements (%d):", len(sl.Statements))
		for _, stmt := range sl.Statements {
			p("    %4d | %s", stmt.Line, stmt.Text)
		}
		if len(sl.Lookups) > 0 {
			p("  Function lookup:")
			for _, c := range sl.Lookups {
				p("    %s", c.Text)
			}
		}
		if len(sl.ArgBuilds) > 0 {
			p("  Argument building:")
			for _, c := range sl.ArgBuilds {
				p("    %s", c.Text)
			}
		}
		if len(sl.Related) > 0 {
			p("  Related functions:")
			for _, rf := range sl.Related {
				p("    %s (%s:%d)", rf.Name, rf.File, rf.Line)
			}
		}
		if len(sl.Unresolved) > 0 {
			p("  Unresolved: %s", strings.Join(sl.Unresolved, ", "))
		}
	}

	p("")
	p(banner)
	p("Module registration chains: %d", len(report.Chains))
	for _, chain := range report.Chains {
		p("")
		status := "COMPLETE"
		if !chain.Complete {
			status = "INCOMPLETE (missing " + chain.MissingLink + ")"
		}
		p("--- Module %s [%s] ---", chain.Init.ModuleName, status)
		p("  Init: %s (%s:%d)", chain.Init.Name, chain.Init.File, chain.Init.Line)
		if chain.ModuleDef != nil {
			p("  Module def: %s (%s:%d)", chain.ModuleDef.Name, chain.ModuleDef.File, chain.ModuleDef.Line)
		}
		if chain.MethodTable != nil {
			p("  Method table: %s (%s:%d)", chain.MethodTable.Name, chain.MethodTable.File, chain.MethodTable.Line)
			for _, entry := range chain.MethodTable.Entries {
				mark := "ok"
				if !entry.Resolved {
					mark = "missing"
				}
				line := fmt.Sprintf("    %q -> %s [%s]", entry.PythonName, entry.CFunction, mark)
				if entry.ParamFormat != "" {
					line += fmt.Sprintf(" format=%q", entry.ParamFormat)
				}
				p("%s", line)
			}
		}
	}

	if len(report.PythonSnippets) > 0 {
		p("")
		p(banner)
		p("Embedded Python snippets: %d", len(report.PythonSnippets))
		for i, snippet := range report.PythonSnippets {
			p("")
			p("--- Snippet %d ---", i+1)
			p("%s", snippet)
		}
	}

	if len(report.Diagnostics) > 0 {
		p("")
		p(banner)
		p("Diagnostics: %d", len(report.Diagnostics))
		for _, d := range report.Diagnostics {
			p("  [%s] %s:%d %s", d.Kind, d.File, d.Line, d.Detail)
		}
	}
	return nil
}

// JSON output types. Key names follow the established report schema consumed
// by downstream tooling.
type jsonReport struct {
	Root           string      `json:"root"`
	Files          []string    `json:"files"`
	PythonFiles    []string    `json:"python_files,omitempty"`
	PythonAPICalls []jsonCall  `json:"python_api_calls"`
	ModuleChains   []jsonChain `json:"module_chains"`
	CallEdges      []jsonEdge  `json:"call_graph_edges"`
	PythonSnippets []string    `json:"python_snippets,omitempty"`
	Diagnostics    []jsonDiag  `json:"diagnostics,omitempty"`
}

type jsonCall struct {
	CallInfo    jsonCallInfo   `json:"call_info"`
	Context     []jsonStmt     `json:"context_statements"`
	Lookups     []string       `json:"function_lookup,omitempty"`
	ArgBuilds   []string       `json:"argument_building,omitempty"`
	Definitions []jsonFunction `json:"function_definitions"`
	Unresolved  []string       `json:"unresolved,omitempty"`
}

type jsonCallInfo struct {
	Type               string   `json:"type"`
	ContainingFunction string   `json:"containing_function"`
	Code               string   `json:"code"`
	Line               int      `json:"line"`
	File               string   `json:"file"`
	Args               []string `json:"args,omitempty"`
}

type jsonStmt struct {
	Line int    `json:"line"`
	Kind string `json:"kind"`
	Code string `json:"code"`
}

type jsonFunction struct {
	Name string `json:"name"`
	File string `json:"file"`
	Line int    `json:"line"`
	Code string `json:"code"`
}

type jsonChain struct {
	Module      string         `json:"module"`
	Complete    bool           `json:"complete"`
	MissingLink string         `json:"missing_link,omitempty"`
	Init        jsonFunction   `json:"init_function"`
	ModuleDef   *jsonShape     `json:"module_def,omitempty"`
	MethodTable *jsonTable     `json:"method_table,omitempty"`
	Functions   []jsonFunction `json:"functions,omitempty"`
}

type jsonShape struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	ModuleName string `json:"module_name,omitempty"`
	Doc        string `json:"doc,omitempty"`
}

type jsonTable struct {
	Name    string      `json:"name"`
	File    string      `json:"file"`
	Line    int         `json:"line"`
	Entries []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	PythonName  string `json:"python_name"`
	CFunction   string `json:"c_function"`
	Flags       string `json:"flags,omitempty"`
	Doc         string `json:"doc,omitempty"`
	ParamFormat string `json:"param_format,omitempty"`
	Resolved    bool   `json:"resolved"`
}

type jsonEdge struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

type jsonDiag struct {
	Kind   string `json:"kind"`
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Detail string `json:"detail"`
}

// JSON writes the machine-readable report.
func JSON(w io.Writer, report *model.Report) error {
	out := jsonReport{
		Root:           report.Root,
		Files:          report.Files,
		PythonFiles:    report.PythonFiles,
		PythonSnippets: report.PythonSnippets,
	}
	for _, sl := range report.Slices {
		call := jsonCall{
			CallInfo: jsonCallInfo{
				Type: sl.Call.API,
				Code: sl.Call.Code,
				Line: sl.Call.Line,
				File: sl.Call.File,
				Args: sl.Call.Args,
			},
			Unresolved: sl.Unresolved,
		}
		if sl.Call.Function != nil {
			call.CallInfo.ContainingFunction = sl.Call.Function.Name
		}
		for _, stmt := range sl.Statements {
			call.Context = append(call.Context, jsonStmt{Line: stmt.Line, Kind: string(stmt.Kind), Code: stmt.Text})
		}
		for _, c := range sl.Lookups {
			call.Lookups = append(call.Lookups, c.Text)
		}
		for _, c := range sl.ArgBuilds {
			call.ArgBuilds = append(call.ArgBuilds, c.Text)
		}
		for _, rf := range sl.Related {
			call.Definitions = append(call.Definitions, jsonFunction(rf))
		}
		out.PythonAPICalls = append(out.PythonAPICalls, call)
	}
	for _, chain := range report.Chains {
		jc := jsonChain{
			Module:      chain.Init.ModuleName,
			Complete:    chain.Complete,
			MissingLink: chain.MissingLink,
			Init: jsonFunction{
				Name: chain.Init.Name,
				File: chain.Init.File,
				Line: chain.Init.Line,
				Code: chain.Init.Code,
			},
		}
		if chain.ModuleDef != nil {
			jc.ModuleDef = &jsonShape{
				Name:       chain.ModuleDef.Name,
				File:       chain.ModuleDef.File,
				Line:       chain.ModuleDef.Line,
				ModuleName: chain.ModuleDef.ModuleName,
				Doc:        chain.ModuleDef.Doc,
			}
		}
		if chain.MethodTable != nil {
			table := &jsonTable{
				Name: chain.MethodTable.Name,
				File: chain.MethodTable.File,
				Line: chain.MethodTable.Line,
			}
			for _, entry := range chain.MethodTable.Entries {
				table.Entries = append(table.Entries, jsonEntry{
					PythonName:  entry.PythonName,
					CFunction:   entry.CFunction,
					Flags:       entry.Flags,
					Doc:         entry.Doc,
					ParamFormat: entry.ParamFormat,
					Resolved:    entry.Resolved,
				})
			}
			jc.MethodTable = table
		}
		for _, fn := range chain.Functions {
			jc.Functions = append(jc.Functions, jsonFunction(fn))
		}
		out.ModuleChains = append(out.ModuleChains, jc)
	}
	for _, edge := range report.CallEdges {
		out.CallEdges = append(out.CallEdges, jsonEdge(edge))
	}
	for _, d := range report.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, jsonDiag{Kind: string(d.Kind), File: d.File, Line: d.Line, Detail: d.Detail})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// DOT writes the merged call graph in Graphviz format.
func DOT(w io.Writer, report *model.Report) error {
	fmt.Fprintln(w, "digraph callgraph {")
	fmt.Fprintln(w, "    rankdir=LR;")
	fmt.Fprintln(w, "    node [shape=box, fontname=\"monospace\"];")
	for _, edge := range report.CallEdges {
		fmt.Fprintf(w, "    %q -> %q;\n", edge.Caller, edge.Callee)
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// Mermaid writes the registration chains as a flowchart.
func Mermaid(w io.Writer, report *model.Report) error {
	fmt.Fprintln(w, "flowchart TD")
	for i, chain := range report.Chains {
		prefix := fmt.Sprintf("m%d", i)
		fmt.Fprintf(w, "    %s_init[%q]\n", prefix, chain.Init.Name)
		if chain.ModuleDef == nil {
			fmt.Fprintf(w, "    %s_init --> %s_missing[missing module def]\n", prefix, prefix)
			continue
		}
		fmt.Fprintf(w, "    %s_init --> %s_def[%q]\n", prefix, prefix, chain.ModuleDef.Name)
		if chain.MethodTable == nil {
			fmt.Fprintf(w, "    %s_def --> %s_missing[missing method table]\n", prefix, prefix)
			continue
		}
		fmt.Fprintf(w, "    %s_def --> %s_table[%q]\n", prefix, prefix, chain.MethodTable.Name)
		for j, entry := range chain.MethodTable.Entries {
			label := fmt.Sprintf("%s(%s)", entry.CFunction, entry.PythonName)
			if !entry.Resolved {
				label += " [unresolved]"
			}
			fmt.Fprintf(w, "    %s_table --> %s_f%d[%q]\n", prefix, prefix, j, label)
		}
	}
	return nil
}
