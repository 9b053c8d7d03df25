package harness

import (
	"fmt"
	"go/ast"
	"go/parser"
	"strconv"
	"strings"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

const (
	// LibraryPackage is the package name of the library scaffold.
	LibraryPackage = "solution"
	// SourceFile is the file name every scaffold is compiled under.
	SourceFile = "main.go"
	// ResultFile receives the returned value of a standalone program.
	ResultFile = "result.json"
	// GoMod is the module file shipped next to a standalone program.
	GoMod = "module solution\n\ngo 1.21\n"

	entryPrefix = "HarnessEntry_"
)

// standardImports are available to user code without an import line.
var standardImports = []struct {
	path  string
	guard string
}{
	{"fmt", "fmt.Sprint"},
	{"strings", "strings.TrimSpace"},
	{"strconv", "strconv.Itoa"},
	{"math", "math.Abs"},
	{"sort", "sort.Ints"},
	{"errors", "errors.New"},
}

// StandardImports lists the packages user code may use without importing them.
func StandardImports() []string {
	paths := make([]string, 0, len(standardImports))
	for _, imp := range standardImports {
		paths = append(paths, imp.path)
	}
	return paths
}

// Scaffold is user code wrapped into a compilable unit
type Scaffold struct {
	Source    string
	Package   string
	Entry     string
	Signature *domain.MethodSignature
	// lines before the first user line
	UserLineOffset int
	UserLines      int
}

// UserLine maps a scaffold line to a line of the user's code.
func (s *Scaffold) UserLine(line int) (int, bool) {
	userLine := line - s.UserLineOffset
	if userLine < 1 || userLine > s.UserLines {
		return 0, false
	}
	return userLine, true
}

// EntryName is the exported function that invokes the graded method.
func EntryName(sig *domain.MethodSignature) string {
	return entryPrefix + sig.TypeName + "_" + sig.MethodName
}

// BuildScaffold wraps user code into the library form: the fixed standard
// imports, the user code verbatim, the receiver type when the user did not
// declare it and an exported entry function calling the method.
func BuildScaffold(code string, sig *domain.MethodSignature) (*Scaffold, error) {
	return build(code, sig, LibraryPackage, nil)
}

// BuildStandalone wraps user code into a program whose main decodes the
// literal arguments, calls the method and writes the returned value as JSON
// to result.json. A returned error is printed to stderr with exit code 1.
func BuildStandalone(code string, sig *domain.MethodSignature, args []domain.Argument) (*Scaffold, error) {
	if len(args) != len(sig.Params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(sig.Params), len(args))
	}
	return build(code, sig, "main", args)
}

func build(code string, sig *domain.MethodSignature, pkg string, args []domain.Argument) (*Scaffold, error) {
	if sig == nil {
		return nil, fmt.Errorf("%w: missing signature", domain.ErrNoMethodFound)
	}
	imported, names := userScope(code)

	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n", pkg)

	var guards []string
	for _, imp := range standardImports {
		if imported[imp.path] || names[imp.path] {
			continue
		}
		fmt.Fprintf(&b, "import %q\n", imp.path)
		guards = append(guards, imp.guard)
	}
	if args != nil {
		b.WriteString("import harnessjson \"encoding/json\"\n")
		b.WriteString("import harnessos \"os\"\n")
		guards = append(guards, "harnessjson.Marshal", "harnessos.Exit")
	}

	offset := strings.Count(b.String(), "\n")
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	userLines := strings.Count(code, "\n")
	if !strings.HasSuffix(code, "\n") {
		userLines++
	}

	b.WriteString("\n")
	for _, g := range guards {
		fmt.Fprintf(&b, "var _ = %s\n", g)
	}
	if !sig.DeclaresType {
		fmt.Fprintf(&b, "\ntype %s struct{}\n", sig.TypeName)
	}

	entry := EntryName(sig)
	writeEntry(&b, entry, sig)
	if args != nil {
		writeMain(&b, entry, sig, args)
	}

	return &Scaffold{
		Source:         b.String(),
		Package:        pkg,
		Entry:          entry,
		Signature:      sig,
		UserLineOffset: offset,
		UserLines:      userLines,
	}, nil
}

// userScope collects the import paths and top-level names of user code.
func userScope(code string) (map[string]bool, map[string]bool) {
	imported := make(map[string]bool)
	names := make(map[string]bool)
	_, file := parseUser(code, parser.AllErrors)
	if file == nil {
		return imported, names
	}
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		imported[path] = true
		if imp.Name != nil {
			names[imp.Name.Name] = true
		}
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				names[d.Name.Name] = true
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					names[s.Name.Name] = true
				case *ast.ValueSpec:
					for _, n := range s.Names {
						names[n.Name] = true
					}
				}
			}
		}
	}
	return imported, names
}

func argName(i int) string {
	return fmt.Sprintf("harnessArg%d", i)
}

// declType is the type of a local holding the parameter value.
func declType(p domain.Param) string {
	if strings.HasPrefix(p.Type, "...") {
		return "[]" + strings.TrimPrefix(p.Type, "...")
	}
	return p.Type
}

func callArgs(sig *domain.MethodSignature) string {
	parts := make([]string, 0, len(sig.Params))
	for i := range sig.Params {
		parts = append(parts, argName(i))
	}
	call := strings.Join(parts, ", ")
	if sig.Variadic && len(parts) > 0 {
		call += "..."
	}
	return call
}

func writeEntry(b *strings.Builder, entry string, sig *domain.MethodSignature) {
	params := make([]string, 0, len(sig.Params))
	for i, p := range sig.Params {
		params = append(params, argName(i)+" "+p.Type)
	}
	results := ""
	switch len(sig.Results) {
	case 0:
	case 1:
		results = " " + sig.Results[0]
	default:
		results = " (" + strings.Join(sig.Results, ", ") + ")"
	}

	fmt.Fprintf(b, "\nfunc %s(%s)%s {\n", entry, strings.Join(params, ", "), results)
	call := fmt.Sprintf("new(%s).%s(%s)", sig.TypeName, sig.MethodName, callArgs(sig))
	if len(sig.Results) == 0 {
		fmt.Fprintf(b, "\t%s\n}\n", call)
		return
	}
	fmt.Fprintf(b, "\treturn %s\n}\n", call)
}

func writeMain(b *strings.Builder, entry string, sig *domain.MethodSignature, args []domain.Argument) {
	b.WriteString("\nfunc main() {\n")
	for i, p := range sig.Params {
		name := argName(i)
		value := args[i].Value
		fmt.Fprintf(b, "\tvar %s %s\n", name, declType(p))
		if value == "" {
			continue
		}
		if p.Type == "string" {
			fmt.Fprintf(b, "\t%s = %s\n", name, strconv.Quote(value))
			continue
		}
		fmt.Fprintf(b, "\tif err := harnessjson.Unmarshal([]byte(%s), &%s); err != nil {\n", strconv.Quote(value), name)
		fmt.Fprintf(b, "\t\tharnessos.Stderr.WriteString(%s + err.Error() + \"\\n\")\n", strconv.Quote("invalid argument "+p.Name+": "))
		b.WriteString("\t\tharnessos.Exit(1)\n\t}\n")
	}

	call := fmt.Sprintf("%s(%s)", entry, callArgs(sig))
	if len(sig.Results) == 0 {
		fmt.Fprintf(b, "\t%s\n}\n", call)
		return
	}

	vars := make([]string, len(sig.Results))
	var values []string
	for i := range sig.Results {
		vars[i] = fmt.Sprintf("harnessRet%d", i)
		if !(sig.ReturnsError() && i == len(sig.Results)-1) {
			values = append(values, vars[i])
		}
	}
	fmt.Fprintf(b, "\t%s := %s\n", strings.Join(vars, ", "), call)
	if sig.ReturnsError() {
		writeErrorExit(b, vars[len(vars)-1])
	}
	switch len(values) {
	case 0:
	case 1:
		fmt.Fprintf(b, "\tharnessResult := %s\n", values[0])
		writeResult(b)
	default:
		fmt.Fprintf(b, "\tharnessResult := []interface{}{%s}\n", strings.Join(values, ", "))
		writeResult(b)
	}
	b.WriteString("}\n")
}

func writeErrorExit(b *strings.Builder, errVar string) {
	fmt.Fprintf(b, "\tif %s != nil {\n", errVar)
	fmt.Fprintf(b, "\t\tharnessos.Stderr.WriteString(%s.Error() + \"\\n\")\n", errVar)
	b.WriteString("\t\tharnessos.Exit(1)\n\t}\n")
}

func writeResult(b *strings.Builder) {
	b.WriteString("\tharnessOut, err := harnessjson.Marshal(harnessResult)\n")
	b.WriteString("\tif err != nil {\n")
	b.WriteString("\t\tharnessos.Stderr.WriteString(\"cannot encode result: \" + err.Error() + \"\\n\")\n")
	b.WriteString("\t\tharnessos.Exit(1)\n\t}\n")
	fmt.Fprintf(b, "\tif err := harnessos.WriteFile(%q, harnessOut, 0o644); err != nil {\n", ResultFile)
	b.WriteString("\t\tharnessos.Stderr.WriteString(err.Error() + \"\\n\")\n")
	b.WriteString("\t\tharnessos.Exit(1)\n\t}\n")
}
