package environ

import "testing"

func TestSanitize_Defaults(t *testing.T) {
	s := New()
	in := map[string]string{
		"PATH":              "/usr/bin",
		"HOME":              "/h",
		"API_KEY":           "sk_test_...",
		"AWS_ACCESS_KEY_ID": "AKIA...",
	}
	out := s.Sanitize(in)

	want := map[string]string{"PATH": "/usr/bin", "HOME": "/h"}
	if len(out) != len(want) {
		t.Fatalf("Sanitize() = %v, want %v", out, want)
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("Sanitize()[%q] = %q, want %q", k, out[k], v)
		}
	}
}

func TestSanitize_AllowListSurvivesDenyMatch(t *testing.T) {
	s := New()
	s.Configure(Options{AllowList: []string{"MY_TOKEN"}})
	out := s.Sanitize(map[string]string{"MY_TOKEN": "keep-me"})
	if out["MY_TOKEN"] != "keep-me" {
		t.Errorf("allow-listed key should survive deny match, got %v", out)
	}
}

func TestSanitize_Pure(t *testing.T) {
	s := New()
	in := map[string]string{"PATH": "/usr/bin", "SECRET_TOKEN": "x"}
	out1 := s.Sanitize(in)
	out2 := s.Sanitize(in)
	if len(out1) != len(out2) || out1["PATH"] != out2["PATH"] {
		t.Errorf("Sanitize is not pure: %v vs %v", out1, out2)
	}
	if _, ok := in["SECRET_TOKEN"]; !ok {
		t.Errorf("input map was mutated")
	}
}

func TestIsAllowedIsDenied(t *testing.T) {
	s := New()
	if !s.IsAllowed("PATH") {
		t.Errorf("PATH should be allowed")
	}
	if !s.IsDenied("GITHUB_TOKEN") {
		t.Errorf("GITHUB_TOKEN should be denied")
	}
	if s.IsDenied("RANDOM_VAR") {
		t.Errorf("RANDOM_VAR should not be denied")
	}
}

func TestConfigure_InvalidPatternIgnored(t *testing.T) {
	s := New()
	before := s.GetDenyPatterns()

	s.Configure(Options{DenyPatterns: []string{"[invalid"}})

	after := s.GetDenyPatterns()
	if len(before) != len(after) {
		t.Errorf("invalid pattern should leave deny list unchanged: before=%v after=%v", before, after)
	}
}

func TestConfigure_EmptyListsLeaveExistingInPlace(t *testing.T) {
	s := New()
	before := s.GetAllowList()
	s.Configure(Options{})
	after := s.GetAllowList()
	if len(before) != len(after) {
		t.Errorf("empty Configure should be a no-op: before=%v after=%v", before, after)
	}
}

func TestConfigure_ReplacesDenyPatterns(t *testing.T) {
	s := New()
	s.Configure(Options{DenyPatterns: []string{"CUSTOM_*"}})
	out := s.Sanitize(map[string]string{"CUSTOM_VALUE": "x", "API_KEY": "y"})
	if _, ok := out["CUSTOM_VALUE"]; ok {
		t.Errorf("CUSTOM_VALUE should now be denied")
	}
	if _, ok := out["API_KEY"]; !ok {
		t.Errorf("API_KEY should survive since deny patterns were replaced, not merged")
	}
}
