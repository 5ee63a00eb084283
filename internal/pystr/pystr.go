// Package pystr detects Python source embedded in C string literals, e.g.
// scripts passed to PyRun_SimpleString. Detection is heuristic: literals are
// scored against Python keyword and syntax patterns.
package pystr

import (
	"regexp"
	"strings"

	"github.com/shuangxiangkan/PyCTrace/internal/model"
)

var strongPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*import\s+\w+`),
	regexp.MustCompile(`(?m)^\s*from\s+[\w.]+\s+import\s`),
	regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(`),
	regexp.MustCompile(`(?m)^\s*class\s+\w+\s*[(:]`),
	regexp.MustCompile(`\blambda\s+\w*\s*:`),
	regexp.MustCompile(`\bprint\s*\(`),
}

var weakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(if|elif|for|while|try|except|with)\b.*:\s*$`),
	regexp.MustCompile(`(?m)^\s*return\b`),
	regexp.MustCompile(`\bself\.`),
	regexp.MustCompile(`\bNone\b|\bTrue\b|\bFalse\b`),
	regexp.MustCompile(`\w+\s*=\s*\[.*\]|\w+\s*=\s*\{.*\}`),
	regexp.MustCompile(`\brange\s*\(|\blen\s*\(|\bstr\s*\(|\bint\s*\(`),
	regexp.MustCompile(`\.append\s*\(|\.join\s*\(|\.split\s*\(`),
}

var formatVerbRe = regexp.MustCompile(`%[sdifux]`)

// IsPythonCode reports whether a string looks like Python source rather than
// a format string, path, or message. One strong indicator or two weak ones
// qualify.
func IsPythonCode(s string) bool {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 4 {
		return false
	}
	// Printf-style format strings are the most common false positive.
	if formatVerbRe.MatchString(trimmed) && !strings.Contains(trimmed, "\n") {
		return false
	}
	for _, p := range strongPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	score := 0
	for _, p := range weakPatterns {
		if p.MatchString(trimmed) {
			score++
		}
	}
	return score >= 2
}

// MergeConsecutive joins literals on adjacent lines into one snippet, the
// way C concatenates split string constants of a multi-line script.
func MergeConsecutive(literals []model.StringLiteral) []model.StringLiteral {
	if len(literals) == 0 {
		return nil
	}
	var out []model.StringLiteral
	current := literals[0]
	for _, lit := range literals[1:] {
		if lit.Line-current.Line <= 1 {
			if !strings.HasSuffix(current.Text, "\n") {
				current.Text += "\n"
			}
			current.Text += lit.Text
			current.Line = lit.Line
			continue
		}
		out = append(out, current)
		current = lit
	}
	return append(out, current)
}

// Extract returns every Python snippet found in the files' string literals,
// in file then line order.
func Extract(files []*model.SourceFile) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, f := range files {
		for _, lit := range MergeConsecutive(f.StringLiterals) {
			if !IsPythonCode(lit.Text) {
				continue
			}
			snippet := strings.TrimSpace(lit.Text)
			if _, dup := seen[snippet]; dup {
				continue
			}
			seen[snippet] = struct{}{}
			out = append(out, snippet)
		}
	}
	return out
}
