package comment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_ModeOnly(t *testing.T) {
	p := New()
	tag, ok := p.ParseLine("test.rs", 1, "// @@docs")
	require.True(t, ok)
	assert.Equal(t, "claude", tag.Agent)
	assert.Equal(t, "docs", tag.Mode)
	assert.Empty(t, tag.Description)
}

func TestParseLine_ModeWithDescription(t *testing.T) {
	p := New()
	tag, ok := p.ParseLine("test.rs", 1, "// @@docs write docstrings here")
	require.True(t, ok)
	assert.Equal(t, "docs", tag.Mode)
	assert.Equal(t, "write docstrings here", tag.Description)
}

func TestParseLine_AgentAndMode(t *testing.T) {
	p := New()
	tag, ok := p.ParseLine("test.rs", 1, "// @@codex:fix")
	require.True(t, ok)
	assert.Equal(t, "codex", tag.Agent)
	assert.Equal(t, "fix", tag.Mode)
}

func TestParseLine_ShortAliases(t *testing.T) {
	p := New()

	tag, ok := p.ParseLine("test.rs", 1, "// @@d")
	require.True(t, ok)
	assert.Equal(t, "docs", tag.Mode)

	tag, ok = p.ParseLine("test.rs", 1, "// @@c:r")
	require.True(t, ok)
	assert.Equal(t, "claude", tag.Agent)
	assert.Equal(t, "refactor", tag.Mode)

	tag, ok = p.ParseLine("test.rs", 1, "// @@x:t")
	require.True(t, ok)
	assert.Equal(t, "codex", tag.Agent)
	assert.Equal(t, "tests", tag.Mode)
}

func TestParseLine_StatusMarker(t *testing.T) {
	p := New()
	tag, ok := p.ParseLine("test.rs", 1, "// @@fix handle error [pending#42]")
	require.True(t, ok)
	assert.Equal(t, "fix", tag.Mode)
	assert.Equal(t, "handle error", tag.Description)
	assert.EqualValues(t, 42, tag.JobID)
}

func TestParseLine_DifferentCommentStyles(t *testing.T) {
	p := New()

	tag, ok := p.ParseLine("test.py", 1, "# @@docs")
	require.True(t, ok)
	assert.Equal(t, "docs", tag.Mode)

	tag, ok = p.ParseLine("test.rs", 1, "/* @@fix this */")
	require.True(t, ok)
	assert.Equal(t, "fix", tag.Mode)

	tag, ok = p.ParseLine("test.sql", 1, "-- @@review")
	require.True(t, ok)
	assert.Equal(t, "review", tag.Mode)
}

func TestParseLine_CustomPrefix(t *testing.T) {
	p := WithPrefix("::")

	tag, ok := p.ParseLine("test.rs", 1, "// ::docs write docs")
	require.True(t, ok)
	assert.Equal(t, "docs", tag.Mode)
	assert.Equal(t, "write docs", tag.Description)
}

func TestParseLine_NoMatchPythonDecorator(t *testing.T) {
	p := New()
	_, ok := p.ParseLine("test.py", 1, "@staticmethod")
	assert.False(t, ok)
}

func TestParseLine_AgentOnlyDefaultsToImplement(t *testing.T) {
	p := New()
	tag, ok := p.ParseLine("test.rs", 1, "// @@claude do something important")
	require.True(t, ok)
	assert.Equal(t, "claude", tag.Agent)
	assert.Equal(t, "implement", tag.Mode)
	assert.Equal(t, "do something important", tag.Description)
}

func TestParseFile_MultilineDescription(t *testing.T) {
	p := New()
	content := "// @@refactor\n// Make this function more readable\n// Keep the same behavior\nfn process_order() {}"

	tags := p.ParseFile("test.rs", content)
	require.Len(t, tags, 1)
	assert.Equal(t, "refactor", tags[0].Mode)
	assert.Equal(t, "Make this function more readable Keep the same behavior", tags[0].Description)
}
