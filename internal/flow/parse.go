// Package flow is the Flow Scheduler (C6): cron-driven assignment of new
// terminals from markdown files with a YAML front-matter header, with an
// optional gating script and [[var]] prompt interpolation.
package flow

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

// ParseFile reads a flow definition: a "---"-delimited YAML header
// (name/schedule/agent_profile/provider/script/enabled) followed by the
// prompt template body, per spec section 6.
func ParseFile(path string) (*domain.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", path, err)
	}
	return Parse(path, string(data))
}

// Parse is ParseFile's testable core, taking the file's text directly.
func Parse(name, text string) (*domain.Flow, error) {
	text = strings.TrimPrefix(text, "\xef\xbb\xbf") // tolerate a BOM from hand-edited files
	trimmed := strings.TrimLeft(text, "\n")
	if !strings.HasPrefix(trimmed, frontMatterDelim) {
		return nil, fmt.Errorf("flow %s: missing %q front-matter delimiter", name, frontMatterDelim)
	}
	rest := trimmed[len(frontMatterDelim):]

	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return nil, fmt.Errorf("flow %s: unterminated front matter", name)
	}
	header := rest[:end]
	body := rest[end+len("\n"+frontMatterDelim):]
	body = strings.TrimLeft(body, "\n")

	var f domain.Flow
	if err := yaml.Unmarshal([]byte(header), &f); err != nil {
		return nil, fmt.Errorf("flow %s: invalid front matter: %w", name, err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("flow %s: front matter is missing required field %q", name, "name")
	}
	if f.Schedule == "" {
		return nil, fmt.Errorf("flow %s: front matter is missing required field %q", name, "schedule")
	}
	if f.AgentProfile == "" {
		return nil, fmt.Errorf("flow %s: front matter is missing required field %q", name, "agent_profile")
	}
	f.PromptTemplate = body
	return &f, nil
}

var varRe = regexp.MustCompile(`\[\[([a-zA-Z0-9_]+)\]\]`)

// Interpolate substitutes each [[key]] placeholder in tmpl with vars[key];
// a missing key becomes the empty string, per spec section 4.6 step 2.
func Interpolate(tmpl string, vars map[string]string) string {
	return varRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := varRe.FindStringSubmatch(m)[1]
		return vars[key]
	})
}
