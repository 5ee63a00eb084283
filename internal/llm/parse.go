package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSONResponse strips markdown code fences models wrap JSON in.
func CleanJSONResponse(s string) string {
	out := strings.TrimSpace(s)
	if strings.HasPrefix(out, "```json") {
		out = strings.TrimPrefix(out, "```json")
	} else if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```")
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

// ParseModuleInfo decodes a model response into ModuleInfo, tolerating
// fenced output and leading prose before the first brace.
func ParseModuleInfo(response string) (*ModuleInfo, error) {
	cleaned := CleanJSONResponse(response)
	if idx := strings.Index(cleaned, "{"); idx > 0 {
		cleaned = cleaned[idx:]
	}
	var info ModuleInfo
	if err := json.Unmarshal([]byte(cleaned), &info); err != nil {
		return nil, fmt.Errorf("llm: decoding module info: %w", err)
	}
	if info.ModuleName == "" {
		return nil, fmt.Errorf("llm: response missing module_name")
	}
	return &info, nil
}
