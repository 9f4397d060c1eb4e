package flow

import "testing"

const sampleFlow = `---
name: nightly-report
schedule: "0 2 * * *"
agent_profile: reporter
provider: claude_code
---
Summarize yesterday's [[metric]] for [[team]].
`

func TestParse_Basic(t *testing.T) {
	f, err := Parse("nightly-report.md", sampleFlow)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Name != "nightly-report" {
		t.Errorf("expected name %q, got %q", "nightly-report", f.Name)
	}
	if f.Schedule != "0 2 * * *" {
		t.Errorf("expected schedule %q, got %q", "0 2 * * *", f.Schedule)
	}
	if f.Provider != "claude_code" {
		t.Errorf("expected provider %q, got %q", "claude_code", f.Provider)
	}
	if !f.IsEnabled() {
		t.Error("expected flow to default to enabled")
	}
	wantBody := "Summarize yesterday's [[metric]] for [[team]].\n"
	if f.PromptTemplate != wantBody {
		t.Errorf("expected body %q, got %q", wantBody, f.PromptTemplate)
	}
}

func TestParse_MissingFrontMatter(t *testing.T) {
	if _, err := Parse("bad.md", "just a prompt, no header"); err == nil {
		t.Error("expected an error for missing front matter")
	}
}

func TestParse_MissingRequiredField(t *testing.T) {
	text := "---\nschedule: \"* * * * *\"\n---\nbody\n"
	if _, err := Parse("bad.md", text); err == nil {
		t.Error("expected an error for a missing name field")
	}
}

func TestParse_DisabledFlag(t *testing.T) {
	text := "---\nname: x\nschedule: \"* * * * *\"\nagent_profile: reporter\nenabled: false\n---\nbody\n"
	f, err := Parse("x.md", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.IsEnabled() {
		t.Error("expected flow with enabled: false to report disabled")
	}
}

func TestInterpolate(t *testing.T) {
	got := Interpolate("hello [[name]], your [[thing]] is ready. unknown: [[missing]]", map[string]string{
		"name":  "world",
		"thing": "report",
	})
	want := "hello world, your report is ready. unknown: "
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
