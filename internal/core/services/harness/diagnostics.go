package harness

import (
	"regexp"
	"strconv"
	"strings"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// compilerLine matches "file.go:line:col: message" with an optional file.
var compilerLine = regexp.MustCompile(`^(?:\./)?(?:([^:\s]+\.go):)?(\d+):(\d+):\s*(.*)$`)

// ParseDiagnostics turns compiler output into error diagnostics. Positions
// inside the user's code are mapped back to user lines; positions inside
// generated code are dropped. Output without any recognizable position
// becomes one diagnostic carrying the whole text.
func ParseDiagnostics(output string, sc *Scaffold) []domain.Diagnostic {
	var diags []domain.Diagnostic
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := compilerLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ln, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		diags = append(diags, Diagnostic(m[4], m[1], ln, col, sc))
	}

	if len(diags) == 0 {
		msg := strings.TrimSpace(output)
		if msg == "" {
			msg = "compilation failed"
		}
		diags = append(diags, domain.Diagnostic{
			Severity:       domain.SeverityError,
			ExecutionError: domain.Message(msg),
		})
	}
	return diags
}

// Diagnostic builds one error diagnostic at a scaffold position.
func Diagnostic(msg, file string, line, col int, sc *Scaffold) domain.Diagnostic {
	d := domain.Diagnostic{
		Severity:       domain.SeverityError,
		ExecutionError: domain.Message(msg),
	}
	if sc == nil {
		return d
	}
	userLine, ok := sc.UserLine(line)
	if !ok {
		return d
	}
	if file == "" {
		file = SourceFile
	}
	d.StartLine = &userLine
	d.EndLine = &userLine
	if col > 0 {
		d.StartColumn = &col
		d.EndColumn = &col
	}
	d.FilePath = &file
	return d
}
