package llm

import (
	"fmt"
	"strings"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

const systemPrompt = `You are an expert in CPython extension modules. You read C source
code that registers a Python module through the C-API and report the exported
Python interface. Respond with JSON only, no prose.`

const responseSchema = `{
  "module_name": "<name passed to the module definition>",
  "doc": "<module docstring or empty>",
  "functions": [
    {
      "python_name": "<name exported to Python>",
      "c_function": "<implementing C function>",
      "doc": "<docstring or empty>",
      "param_format": "<PyArg_ParseTuple format string or empty>",
      "params": [{"name": "<param>", "type": "<python type>"}],
      "return_type": "<python type>"
    }
  ]
}`

// ChainPrompt builds the user prompt for one registration chain. The model
// sees every piece of the chain in source form, including the method bodies,
// so it can recover parameter names the format string alone cannot.
func ChainPrompt(chain model.ModuleChain) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the Python module registration below and describe the exported interface.\n")
	fmt.Fprintf(&sb, "Respond with JSON matching this schema exactly:\n%s\n\n", responseSchema)

	fmt.Fprintf(&sb, "Init function (%s):\n```c\n%s\n```\n\n", chain.Init.File, chain.Init.Code)
	if chain.ModuleDef != nil {
		fmt.Fprintf(&sb, "Module definition (%s):\n```c\n%s\n```\n\n", chain.ModuleDef.File, chain.ModuleDef.Code)
	}
	if chain.MethodTable != nil {
		fmt.Fprintf(&sb, "Method table (%s):\n```c\n%s\n```\n\n", chain.MethodTable.File, chain.MethodTable.Code)
	}
	for _, fn := range chain.Functions {
		fmt.Fprintf(&sb, "Method implementation %s (%s):\n```c\n%s\n```\n\n", fn.Name, fn.File, fn.Code)
	}
	return sb.String()
}
