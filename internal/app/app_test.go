package app

import (
	"strings"
	"testing"

	"classbot/internal/agent"
)

func TestParseChatID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"  ", 0},
		{"-1001234567890", -1001234567890},
		{"12345", 12345},
		{"@channel", 0},
	}
	for _, tc := range cases {
		if got := parseChatID(tc.in); got != tc.want {
			t.Errorf("parseChatID(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestResultText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		res  agent.Result
		want string
	}{
		{"model reply wins", agent.Result{Reply: "All set!", Scheduled: 2}, "All set!"},
		{"reply is escaped", agent.Result{Reply: "a <b> c"}, "a &lt;b&gt; c"},
		{"all scheduled", agent.Result{Scheduled: 3}, "scheduled 3 class(es)"},
		{"partial", agent.Result{Scheduled: 1, Failed: 2}, "1 class(es); 2 failed"},
		{"all failed", agent.Result{Failed: 2}, "couldn't schedule"},
		{"nothing found", agent.Result{}, "didn't find any classes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := resultText(tc.res)
			if !strings.Contains(got, tc.want) {
				t.Fatalf("resultText(%+v) = %q, want substring %q", tc.res, got, tc.want)
			}
		})
	}
}
