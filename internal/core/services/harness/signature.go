package harness

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// sourcePrelude is prepended to user code before parsing. User code carries
// no package clause.
const sourcePrelude = "package main\n"

// parseUser parses user code with the prelude. The returned file may be
// partial when the code has syntax errors inside function bodies.
func parseUser(code string, mode parser.Mode) (*token.FileSet, *ast.File) {
	fset := token.NewFileSet()
	file, _ := parser.ParseFile(fset, "main.go", sourcePrelude+code, mode|parser.SkipObjectResolution)
	return fset, file
}

// ParseSignature extracts the graded method from user code: the receiver
// type, the method name and its ordered parameters.
func ParseSignature(code string) (*domain.MethodSignature, error) {
	_, file := parseUser(code, parser.AllErrors)
	if file == nil {
		return nil, fmt.Errorf("%w: source could not be parsed", domain.ErrNoClassFound)
	}

	declared := declaredTypes(file)
	var method *ast.FuncDecl
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || len(fn.Recv.List) == 0 || !fn.Name.IsExported() {
			continue
		}
		method = fn
		break
	}
	if method == nil {
		if len(declared) > 0 || hasReceiverFunc(file) {
			return nil, fmt.Errorf("%w: declare one exported method with a receiver", domain.ErrNoMethodFound)
		}
		return nil, fmt.Errorf("%w: declare a type with one exported method", domain.ErrNoClassFound)
	}

	typeName, pointer := receiverType(method.Recv.List[0].Type)
	if typeName == "" {
		return nil, fmt.Errorf("%w: unsupported receiver %s", domain.ErrNoClassFound, types.ExprString(method.Recv.List[0].Type))
	}

	sig := &domain.MethodSignature{
		TypeName:        typeName,
		MethodName:      method.Name.Name,
		Params:          []domain.Param{},
		Results:         []string{},
		DeclaresType:    declared[typeName],
		PointerReceiver: pointer,
	}

	for i, field := range method.Type.Params.List {
		if len(field.Names) == 0 {
			return nil, fmt.Errorf("%w: parameter %d (%s) has no name", domain.ErrInvalidArgumentFormat, i+1, types.ExprString(field.Type))
		}
		if _, ok := field.Type.(*ast.Ellipsis); ok {
			sig.Variadic = true
		}
		typ := types.ExprString(field.Type)
		for _, name := range field.Names {
			if name.Name == "_" {
				return nil, fmt.Errorf("%w: parameter of type %s has a blank name", domain.ErrInvalidArgumentFormat, typ)
			}
			sig.Params = append(sig.Params, domain.Param{Name: name.Name, Type: typ})
		}
	}

	if method.Type.Results != nil {
		for _, field := range method.Type.Results.List {
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			for j := 0; j < n; j++ {
				sig.Results = append(sig.Results, types.ExprString(field.Type))
			}
		}
	}

	return sig, nil
}

func declaredTypes(file *ast.File) map[string]bool {
	declared := make(map[string]bool)
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			if ts, ok := spec.(*ast.TypeSpec); ok {
				declared[ts.Name.Name] = true
			}
		}
	}
	return declared
}

func hasReceiverFunc(file *ast.File) bool {
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv != nil {
			return true
		}
	}
	return false
}

func receiverType(expr ast.Expr) (string, bool) {
	pointer := false
	if star, ok := expr.(*ast.StarExpr); ok {
		pointer = true
		expr = star.X
	}
	if ident, ok := expr.(*ast.Ident); ok {
		return ident.Name, pointer
	}
	return "", pointer
}
