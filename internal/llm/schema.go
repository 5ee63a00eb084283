// Package llm optionally enriches registration chains with a language model:
// given the raw C source of a chain, it recovers the exported Python
// signatures in a structured form. The analyzer never requires it; every
// result it produces can also be derived syntactically, with less detail.
package llm

import "fmt"

// ModuleInfo is the structured description of one extension module.
type ModuleInfo struct {
	ModuleName string         `json:"module_name"`
	Doc        string         `json:"doc,omitempty"`
	Functions  []FunctionInfo `json:"functions"`
}

// FunctionInfo describes one exported function.
type FunctionInfo struct {
	PythonName  string      `json:"python_name"`
	CFunction   string      `json:"c_function"`
	Doc         string      `json:"doc,omitempty"`
	ParamFormat string      `json:"param_format,omitempty"`
	Params      []ParamInfo `json:"params,omitempty"`
	ReturnType  string      `json:"return_type,omitempty"`
}

// ParamInfo is one parameter with its Python-side type.
type ParamInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ParamFormatTypes maps PyArg_ParseTuple format units to Python type names.
// Units that consume no argument (| : ;) are absent.
var ParamFormatTypes = map[byte]string{
	's': "str",
	'z': "str",
	'y': "bytes",
	'u': "str",
	'b': "int",
	'h': "int",
	'i': "int",
	'l': "int",
	'k': "int",
	'L': "int",
	'K': "int",
	'n': "int",
	'c': "str",
	'f': "float",
	'd': "float",
	'D': "complex",
	'O': "object",
	'S': "str",
	'U': "str",
	'p': "bool",
}

// ParamsFromFormat expands a format string into typed positional parameters.
// Optional-marker and separator characters are skipped.
func ParamsFromFormat(format string) []ParamInfo {
	var out []ParamInfo
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch == '|' || ch == '$' || ch == ':' || ch == ';' {
			if ch == ':' || ch == ';' {
				break // the rest is the function name or error message
			}
			continue
		}
		typ, ok := ParamFormatTypes[ch]
		if !ok {
			continue
		}
		out = append(out, ParamInfo{
			Name: paramName(len(out)),
			Type: typ,
		})
	}
	return out
}

func paramName(i int) string {
	return fmt.Sprintf("arg%d", i)
}
