package trustgate

import "testing"

func TestIsInteractiveSession(t *testing.T) {
	cases := []struct {
		session string
		want    bool
	}{
		{"interactive-main", true},
		{"pipeline-nightly-42", false},
		{"subagent-7", false},
		{"isolated-worktree-1", false},
		{"op-console", true},
	}
	for _, c := range cases {
		if got := isInteractiveSession(c.session); got != c.want {
			t.Errorf("isInteractiveSession(%q) = %v, want %v", c.session, got, c.want)
		}
	}
}

func TestParseShortDuration(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"30m", false},
		{"4h", false},
		{"2d", false},
		{"1.5h", true},
		{"100ns", true},
		{"", true},
		{"abc", true},
	}
	for _, c := range cases {
		_, err := parseShortDuration(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("parseShortDuration(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
	}
}
