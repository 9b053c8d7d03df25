package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

func TestParseDiagnostics(t *testing.T) {
	sc := &Scaffold{UserLineOffset: 7, UserLines: 5}
	output := "# solution\n./main.go:9:2: undefined: x\n./main.go:30:1: missing return\n"

	diags := ParseDiagnostics(output, sc)
	require.Len(t, diags, 2)
	assert.True(t, domain.HasErrors(diags))

	assert.Equal(t, "undefined: x", diags[0].Message)
	require.NotNil(t, diags[0].StartLine)
	assert.Equal(t, 2, *diags[0].StartLine)
	assert.Equal(t, 2, *diags[0].StartColumn)
	assert.Equal(t, "main.go", *diags[0].FilePath)

	assert.Equal(t, "missing return", diags[1].Message)
	assert.Nil(t, diags[1].StartLine)
}

func TestParseDiagnostics_Fallback(t *testing.T) {
	diags := ParseDiagnostics("go: cannot find main module\n", nil)
	require.Len(t, diags, 1)
	assert.Equal(t, "go: cannot find main module", diags[0].Message)
	assert.Equal(t, domain.SeverityError, diags[0].Severity)

	diags = ParseDiagnostics("", nil)
	require.Len(t, diags, 1)
	assert.Equal(t, "compilation failed", diags[0].Message)
}

func TestParseDiagnostics_PositionWithoutFile(t *testing.T) {
	sc := &Scaffold{UserLineOffset: 2, UserLines: 4}
	diags := ParseDiagnostics("4:5: expected ';', found 'EOF'", sc)
	require.Len(t, diags, 1)
	require.NotNil(t, diags[0].StartLine)
	assert.Equal(t, 2, *diags[0].StartLine)
	assert.Equal(t, SourceFile, *diags[0].FilePath)
}
