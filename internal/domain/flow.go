package domain

import "time"

// Flow is a scheduled specification for spawning a terminal on a cron
// trigger, optionally gated by a pre-execution script. See spec section 3
// and section 4.6.
type Flow struct {
	Name         string `yaml:"name"`
	Schedule     string `yaml:"schedule"`
	AgentProfile string `yaml:"agent_profile"`
	Provider     string `yaml:"provider,omitempty"`
	Script       string `yaml:"script,omitempty"`
	Enabled      *bool  `yaml:"enabled,omitempty"`

	// PromptTemplate is the markdown body below the front-matter, not part
	// of the YAML header itself.
	PromptTemplate string `yaml:"-"`

	NextFireAt time.Time `yaml:"-"`
}

// IsEnabled defaults to true when Enabled is unset, per spec section 6.
func (f *Flow) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// ScriptResult is the parsed stdout of a flow's gating script, per the
// script protocol in spec section 6.
type ScriptResult struct {
	Execute bool              `json:"execute"`
	Output  map[string]string `json:"output"`
}
