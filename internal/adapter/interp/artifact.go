package interp

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sync"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/services/harness"
)

// Artifact is compiled user code ready to be loaded
type Artifact struct {
	scaffold *harness.Scaffold
	compiler *Compiler
}

// Registry maps "Type.Method" to a callable entry
type Registry map[string]reflect.Value

func registryKey(typeName, method string) string {
	return typeName + "." + method
}

// Lookup finds the callable for a type and method name.
func (r Registry) Lookup(typeName, method string) (reflect.Value, bool) {
	fn, ok := r[registryKey(typeName, method)]
	return fn, ok
}

// Load evaluates the artifact in a fresh interpreter whose standard streams
// are the given writers, and builds the method registry.
func (a *Artifact) Load(stdout, stderr io.Writer) (Registry, error) {
	i, err := a.compiler.newInterpreter(stdout, stderr)
	if err != nil {
		return nil, err
	}
	if _, err := i.Eval(a.scaffold.Source); err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	entry, err := i.Eval(a.scaffold.Package + "." + a.scaffold.Entry)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", a.scaffold.Entry, err)
	}
	if entry.Kind() != reflect.Func {
		return nil, fmt.Errorf("entry %s is not a function", a.scaffold.Entry)
	}

	sig := a.scaffold.Signature
	return Registry{registryKey(sig.TypeName, sig.MethodName): entry}, nil
}

// syncBuffer collects output written from a call that may outlive its timeout
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
