// Package comment implements the source-comment marker intake syntax:
//
//	{prefix}{agent:}?{mode}( {description})?( [{status}#{id}])?
package comment

import (
	"regexp"
	"strings"
)

// AliasResolver maps short aliases to canonical agent/mode names.
type AliasResolver struct {
	Agents map[string]string
	Modes  map[string]string
}

// NewAliasResolver returns the default alias tables.
func NewAliasResolver() *AliasResolver {
	return &AliasResolver{
		Agents: map[string]string{
			"c": "claude", "cl": "claude", "claude": "claude",
			"x": "codex", "cx": "codex", "codex": "codex",
			"g": "gemini", "gm": "gemini", "gemini": "gemini",
			"cr": "cr",
		},
		Modes: map[string]string{
			"r": "refactor", "ref": "refactor", "refactor": "refactor",
			"t": "tests", "test": "tests", "tests": "tests",
			"d": "docs", "doc": "docs", "docs": "docs",
			"v": "review", "rev": "review", "review": "review",
			"i": "implement", "impl": "implement", "implement": "implement",
			"f": "fix", "fix": "fix",
			"o": "optimize", "opt": "optimize", "optimize": "optimize",
		},
	}
}

func (a *AliasResolver) ResolveAgent(alias string) string {
	if v, ok := a.Agents[strings.ToLower(alias)]; ok {
		return v
	}
	return strings.ToLower(alias)
}

func (a *AliasResolver) ResolveMode(alias string) string {
	if v, ok := a.Modes[strings.ToLower(alias)]; ok {
		return v
	}
	return strings.ToLower(alias)
}

func (a *AliasResolver) IsMode(s string) bool {
	_, ok := a.Modes[strings.ToLower(s)]
	return ok
}

func (a *AliasResolver) IsAgent(s string) bool {
	_, ok := a.Agents[strings.ToLower(s)]
	return ok
}

// StatusMarker is the optional trailing "[status#id]" annotation a
// marker can carry once a job has been created for it (e.g. re-scanning
// a file to show "[running#42]").
type StatusMarker struct {
	Status string
	JobID  uint64
}

// Tag is a single parsed marker occurrence.
type Tag struct {
	Path         string
	Line         int
	RawLine      string
	Agent        string
	Mode         string
	Description  string
	StatusMarker *StatusMarker
	JobID        uint64
}

// Parser scans file content for markers with a configurable prefix.
type Parser struct {
	prefix  string
	aliases *AliasResolver
	pattern *regexp.Regexp
}

// New creates a parser with the default prefix "@@".
func New() *Parser { return WithPrefix("@@") }

// WithPrefix creates a parser with a custom prefix and default aliases.
func WithPrefix(prefix string) *Parser {
	return WithPrefixAndAliases(prefix, NewAliasResolver())
}

// WithPrefixAndAliases creates a parser with a custom prefix and alias table.
func WithPrefixAndAliases(prefix string, aliases *AliasResolver) *Parser {
	return &Parser{prefix: prefix, aliases: aliases, pattern: buildPattern(prefix)}
}

// Groups: 1=agent (optional, without ':'), 2=mode, 3=description (optional),
// 4=status, 5=id.
func buildPattern(prefix string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(prefix)
	pat := escaped + `(?:(\w+):)?(\w+)(?:\s+(.+?))?(?:\s*\[(\w+)#(\d+)\])?\s*$`
	return regexp.MustCompile(pat)
}

// ParseFile extracts every marker found in content.
func (p *Parser) ParseFile(path, content string) []Tag {
	var tags []Tag
	lines := strings.Split(content, "\n")

	for idx, line := range lines {
		tag, ok := p.parseLine(path, idx+1, line)
		if !ok {
			continue
		}
		if tag.Description == "" {
			tag.Description = p.extractDescription(lines, idx)
		}
		tags = append(tags, tag)
	}
	return tags
}

// ParseLine parses a single line for a marker, or returns ok=false.
func (p *Parser) ParseLine(path string, lineNumber int, line string) (Tag, bool) {
	return p.parseLine(path, lineNumber, line)
}

func (p *Parser) parseLine(path string, lineNumber int, line string) (Tag, bool) {
	m := p.pattern.FindStringSubmatch(line)
	if m == nil {
		return Tag{}, false
	}

	agentRaw := m[1]
	modeRaw := m[2]
	description := strings.TrimSpace(m[3])
	statusStr := m[4]
	idStr := m[5]

	var agent, mode string
	switch {
	case agentRaw != "":
		agent = p.aliases.ResolveAgent(agentRaw)
		mode = p.aliases.ResolveMode(modeRaw)
	case p.aliases.IsMode(modeRaw):
		agent = "claude"
		mode = p.aliases.ResolveMode(modeRaw)
	case p.aliases.IsAgent(modeRaw):
		agent = p.aliases.ResolveAgent(modeRaw)
		mode = "implement"
	default:
		agent = "claude"
		mode = strings.ToLower(modeRaw)
	}

	tag := Tag{
		Path:    path,
		Line:    lineNumber,
		RawLine: line,
		Agent:   agent,
		Mode:    mode,
	}
	if description != "" {
		tag.Description = description
	}
	if statusStr != "" && idStr != "" {
		var id uint64
		for _, c := range idStr {
			id = id*10 + uint64(c-'0')
		}
		tag.StatusMarker = &StatusMarker{Status: statusStr, JobID: id}
		tag.JobID = id
	}

	return tag, true
}

// extractDescription scans following comment lines for a continuation
// description: stop at the first non-comment line or another marker
// occurrence; strip leading comment-syntax runs per line; join with a
// single space.
func (p *Parser) extractDescription(lines []string, startIdx int) string {
	var parts []string
	for i := startIdx + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])

		isComment := strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, "--") ||
			strings.HasPrefix(trimmed, "*")
		hasMarker := strings.Contains(trimmed, p.prefix)

		if isComment && !hasMarker {
			content := strings.TrimLeft(trimmed, "/#*- ")
			content = strings.TrimSpace(content)
			if content != "" {
				parts = append(parts, content)
			}
		} else {
			break
		}
	}
	return strings.Join(parts, " ")
}
