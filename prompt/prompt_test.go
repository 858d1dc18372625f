package prompt

import (
	"strings"
	"testing"
)

func TestManagerRegisterAndRender(t *testing.T) {
	m := NewManager()
	if err := m.RegisterString("greet", "Hello, {{.Name}}!"); err != nil {
		t.Fatalf("RegisterString: %v", err)
	}

	out, err := m.Render("greet", map[string]interface{}{"Name": "world"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Hello, world!" {
		t.Errorf("Render = %q", out)
	}

	if err := m.RegisterString("greet", "again"); err == nil {
		t.Error("duplicate registration accepted")
	}
	if _, err := m.Render("missing", nil); err == nil {
		t.Error("rendering unknown template succeeded")
	}
}

func TestRegisterStringRejectsBadTemplate(t *testing.T) {
	m := NewManager()
	if err := m.RegisterString("bad", "{{.Unclosed"); err == nil {
		t.Error("unparseable template accepted")
	}
}

func TestBuilder(t *testing.T) {
	out := NewBuilder().
		Add("intro\n").
		AddFormat("- item %d\n", 1).
		AddSection("Rules", "be brief").
		Build()

	for _, want := range []string{"intro", "- item 1", "## Rules", "be brief"} {
		if !strings.Contains(out, want) {
			t.Errorf("built prompt missing %q:\n%s", want, out)
		}
	}
}
