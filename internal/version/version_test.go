package version

import (
	"strings"
	"testing"
)

func TestGet_Trimmed(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("expected embedded version")
	}
	if strings.TrimSpace(v) != v {
		t.Errorf("version %q has surrounding whitespace", v)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "nexus/"+Get() {
		t.Errorf("UserAgent() = %q", got)
	}
}
