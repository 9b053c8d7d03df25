package interp

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"io"
	"path"
	"strings"
	"testing/fstest"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/harness"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// Compiler turns user code into artifacts. Every call builds its own
// interpreter, so a Compiler is safe for concurrent use.
type Compiler struct {
	symbols interp.Exports
	logger  primary.Logger
}

// NewCompiler restricts interpreted code to the allowed standard packages.
// The packages the scaffold itself imports are always allowed.
func NewCompiler(allowed []string, logger primary.Logger) *Compiler {
	allow := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		allow[p] = true
	}
	for _, p := range harness.StandardImports() {
		allow[p] = true
	}

	symbols := make(interp.Exports)
	for key, values := range stdlib.Symbols {
		if allow[path.Dir(key)] {
			symbols[key] = values
		}
	}
	return &Compiler{symbols: symbols, logger: logger}
}

func (c *Compiler) newInterpreter(stdout, stderr io.Writer) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{
		Stdout:               stdout,
		Stderr:               stderr,
		SourcecodeFilesystem: fstest.MapFS{},
	})
	if err := i.Use(c.symbols); err != nil {
		return nil, fmt.Errorf("failed to load interpreter symbols: %w", err)
	}
	return i, nil
}

// Compile scaffolds and compiles user code. On failure the artifact is nil
// and the diagnostics carry at least one error.
func (c *Compiler) Compile(code string, sig *domain.MethodSignature) (artifact *Artifact, diags []domain.Diagnostic) {
	sc, err := harness.BuildScaffold(code, sig)
	if err != nil {
		return nil, []domain.Diagnostic{errorDiagnostic(err.Error())}
	}
	if diags := forbidden(sc); len(diags) > 0 {
		return nil, diags
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Interpreter panicked during compilation", "panic", r)
			artifact = nil
			diags = []domain.Diagnostic{errorDiagnostic(fmt.Sprintf("internal compiler error: %v", r))}
		}
	}()

	i, err := c.newInterpreter(io.Discard, io.Discard)
	if err != nil {
		return nil, []domain.Diagnostic{errorDiagnostic(err.Error())}
	}
	if _, err := i.Compile(sc.Source); err != nil {
		return nil, c.diagnose(err, sc)
	}
	return &Artifact{scaffold: sc, compiler: c}, nil
}

// forbidden reports constructs the interpreter cannot contain. A goroutine
// started by user code panics outside any recover and takes the process
// down with it.
func forbidden(sc *harness.Scaffold) []domain.Diagnostic {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, harness.SourceFile, sc.Source, parser.SkipObjectResolution)
	if err != nil {
		return nil
	}
	var diags []domain.Diagnostic
	ast.Inspect(file, func(n ast.Node) bool {
		if stmt, ok := n.(*ast.GoStmt); ok {
			pos := fset.Position(stmt.Pos())
			diags = append(diags, harness.Diagnostic("go statements are not allowed", "", pos.Line, pos.Column, sc))
		}
		return true
	})
	return diags
}

func (c *Compiler) diagnose(err error, sc *harness.Scaffold) []domain.Diagnostic {
	var list scanner.ErrorList
	if errors.As(err, &list) {
		diags := make([]domain.Diagnostic, 0, len(list))
		for _, e := range list {
			diags = append(diags, harness.Diagnostic(e.Msg, "", e.Pos.Line, e.Pos.Column, sc))
		}
		if len(diags) > 0 {
			return diags
		}
	}
	return harness.ParseDiagnostics(stripPrefix(err.Error()), sc)
}

// stripPrefix drops the leading file marker yaegi puts before positions.
func stripPrefix(msg string) string {
	lines := strings.Split(msg, "\n")
	for idx, line := range lines {
		lines[idx] = strings.TrimPrefix(strings.TrimSpace(line), "_.go:")
	}
	return strings.Join(lines, "\n")
}

func errorDiagnostic(msg string) domain.Diagnostic {
	return domain.Diagnostic{Severity: domain.SeverityError, ExecutionError: domain.Message(msg)}
}
