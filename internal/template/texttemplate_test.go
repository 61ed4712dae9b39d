package template

import (
	"strings"
	"testing"
)

func TestTextRendererSubstitutesFacts(t *testing.T) {
	r := NewTextRenderer()
	out, err := r.Render("host={{.Facts.hostname}}\n", map[string]string{"hostname": "web1"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := string(out); got != "host=web1\n" {
		t.Fatalf("render = %q", got)
	}
}

func TestTextRendererRejectsBadSyntax(t *testing.T) {
	r := NewTextRenderer()
	if _, err := r.Render("{{.Facts.", nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTextRendererMissingFactRendersEmpty(t *testing.T) {
	r := NewTextRenderer()
	out, err := r.Render("[{{.Facts.missing}}]", map[string]string{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(out), "[]") {
		t.Fatalf("render = %q, want empty substitution", out)
	}
}
