package domain

// Profile is an agent profile: a named system prompt / first injected
// context loaded from <profile_dir>/<name>.md, per spec section 4.10.
type Profile struct {
	Name        string `yaml:"-"`
	Provider    string `yaml:"provider,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Body is the markdown below the front-matter, injected as the
	// launched agent's system prompt / first task context.
	Body string `yaml:"-"`
}
