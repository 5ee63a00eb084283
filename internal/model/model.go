// Package model defines core data structures for pyctrace.
package model

// StatementKind is the syntactic category of an extracted statement.
type StatementKind string

const (
	StmtDeclaration StatementKind = "declaration"
	StmtExpression  StatementKind = "expression"
	StmtReturn      StatementKind = "return"
	StmtCondition   StatementKind = "condition"
	StmtOther       StatementKind = "other"
)

// CallExpr is a single function invocation inside a statement.
type CallExpr struct {
	Name string   // callee name (identifier or field expression text)
	Text string   // full call expression text
	Args []string // argument expression texts, in order
}

// Statement is one line-granular statement of a function body with its
// def/use information. Never mutated after extraction.
type Statement struct {
	Line  int // 1-based, relative to the file
	Text  string
	Kind  StatementKind
	Defs  []string // names assigned or declared by this statement
	Uses  []string // names read by this statement
	Calls []CallExpr
}

// FunctionDefinition is a full C function definition.
type FunctionDefinition struct {
	Name       string
	File       string
	StartLine  int
	EndLine    int
	ReturnType string
	Params     []string // parameter declaration texts
	ParamNames []string // bare parameter identifiers
	Static     bool     // file-local storage class
	Code       string   // raw source of the whole definition
	Body       []Statement
}

// ExternDecl is a forward declaration of a function defined elsewhere.
type ExternDecl struct {
	Name string
	File string
	Line int
}

// StringLiteral is a string constant found anywhere in a file.
type StringLiteral struct {
	Text string // cleaned content, quotes stripped
	Line int
}

// SourceFile is the extracted model of one parsed file. Immutable after parse.
type SourceFile struct {
	Path           string
	Functions      []*FunctionDefinition
	ExternDecls    []ExternDecl
	StringLiterals []StringLiteral
}

// CallOfInterest is a located invocation of a Python-object-calling API.
type CallOfInterest struct {
	API      string
	File     string
	Line     int
	Code     string   // the call expression text
	Args     []string // argument expression texts
	Function *FunctionDefinition
}

// RelatedFunction is a whole-body function definition pulled into a result.
type RelatedFunction struct {
	Name string
	File string
	Line int
	Code string
}

// CallContextSlice is the minimal statement set a call causally depends on,
// in original program order, plus the helper definitions it reaches.
type CallContextSlice struct {
	Call       CallOfInterest
	Statements []Statement
	Related    []RelatedFunction
	Unresolved []string // names with no defining statement in any parsed file
	Lookups    []CallExpr
	ArgBuilds  []CallExpr
}

// MethodEntry is one row of a method table.
type MethodEntry struct {
	PythonName  string
	CFunction   string
	Flags       string
	Doc         string
	ParamFormat string // PyArg_ParseTuple format string, if syntactically present
	Resolved    bool   // target C function found in the parsed file set
}

// MethodTable is a PyMethodDef-style array with its parsed entries.
type MethodTable struct {
	Name    string
	File    string
	Line    int
	Code    string
	Entries []MethodEntry
}

// ModuleDefinition is a PyModuleDef-style struct literal.
type ModuleDefinition struct {
	Name           string // struct identifier
	File           string
	Line           int
	Code           string
	ModuleName     string // module name literal
	Doc            string
	MethodTableRef string // referenced method table identifier
}

// InitFunction is a module-init function (PyInit_* convention).
type InitFunction struct {
	Name         string
	File         string
	Line         int
	Code         string
	ModuleName   string // name with the init prefix stripped
	ModuleDefRef string // identifier passed to the module-construction call
}

// Missing-link tags for incomplete module chains. The c_function tag carries
// the unresolved name as a suffix, e.g. "c_function:func2".
const (
	MissingModuleDef   = "module_def"
	MissingMethodTable = "method_table"
	MissingCFunction   = "c_function"
)

// ModuleChain is the resolved linkage init -> moduledef -> methodtable ->
// implementing C functions. Partial chains are retained with MissingLink set
// to the first link that failed to resolve.
type ModuleChain struct {
	Init        InitFunction
	ModuleDef   *ModuleDefinition
	MethodTable *MethodTable
	Functions   []RelatedFunction // resolved targets, in method-table order
	Complete    bool
	MissingLink string
}

// CallEdge is a deduplicated caller -> callee edge in the C call graph.
type CallEdge struct {
	Caller string
	Callee string
}

// DiagnosticKind classifies non-fatal analysis problems.
type DiagnosticKind string

const (
	ParseFailure    DiagnosticKind = "parse_failure"
	AmbiguousSymbol DiagnosticKind = "ambiguous_symbol"
	UnresolvedName  DiagnosticKind = "unresolved_symbol"
	MalformedShape  DiagnosticKind = "malformed_shape"
)

// Diagnostic is a recorded, non-fatal problem tied to a file location.
type Diagnostic struct {
	Kind   DiagnosticKind
	File   string
	Line   int
	Detail string
}

// Report is the complete result of one analysis run.
type Report struct {
	Root           string
	Files          []string
	PythonFiles    []string
	Slices         []CallContextSlice
	Chains         []ModuleChain
	CallEdges      []CallEdge
	PythonSnippets []string
	Diagnostics    []Diagnostic
}
