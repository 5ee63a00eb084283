// Package stub renders Python interface stubs (.pyi) for analyzed extension
// modules so Python-side tooling can type-check calls into the C code.
package stub

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shuangxiangkan/PyCTrace/internal/llm"
)

// Render produces the .pyi text for one module.
func Render(info llm.ModuleInfo) string {
	var sb strings.Builder
	if info.Doc != "" {
		fmt.Fprintf(&sb, "\"\"\"%s\"\"\"\n\n", info.Doc)
	}
	for i, fn := range info.Functions {
		if i > 0 {
			sb.WriteString("\n")
		}
		params := make([]string, 0, len(fn.Params))
		for _, p := range fn.Params {
			if p.Type != "" {
				params = append(params, fmt.Sprintf("%s: %s", p.Name, p.Type))
			} else {
				params = append(params, p.Name)
			}
		}
		ret := fn.ReturnType
		if ret == "" {
			ret = "object"
		}
		fmt.Fprintf(&sb, "def %s(%s) -> %s:\n", fn.PythonName, strings.Join(params, ", "), ret)
		if fn.Doc != "" {
			fmt.Fprintf(&sb, "    \"\"\"%s\"\"\"\n", fn.Doc)
		}
		sb.WriteString("    ...\n")
	}
	if len(info.Functions) == 0 {
		sb.WriteString("# module exports no functions\n")
	}
	return sb.String()
}

// WriteStubs writes one <module>.pyi per module into dir.
func WriteStubs(dir string, infos []llm.ModuleInfo) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating stub dir: %w", err)
	}
	for _, info := range infos {
		name := info.ModuleName
		if !safeName(name) {
			continue
		}
		path := filepath.Join(dir, name+".pyi")
		if err := os.WriteFile(path, []byte(Render(info)), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// safeName rejects module names that would escape the stub directory. The
// name originates from model output, so it is untrusted input.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return name == filepath.Base(name)
}
