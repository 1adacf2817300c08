package tgui

import "testing"

func TestDataSplitRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                   string
		scope, action, payload string
		want                   string
	}{
		{"no payload", "undo", "yes", "", "undo:yes"},
		{"with payload", "undo", "yes", "42", "undo:yes:42"},
		{"payload with colon", "undo", "yes", "a:b", "undo:yes:a:b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data := Data(tc.scope, tc.action, tc.payload)
			if data != tc.want {
				t.Fatalf("Data() = %q, want %q", data, tc.want)
			}
			scope, action, payload := Split(data)
			if scope != tc.scope || action != tc.action || payload != tc.payload {
				t.Fatalf("Split(%q) = %q, %q, %q", data, scope, action, payload)
			}
		})
	}
}

func TestSplitBareScope(t *testing.T) {
	t.Parallel()

	scope, action, payload := Split("undo")
	if scope != "undo" || action != "" || payload != "" {
		t.Fatalf("Split() = %q, %q, %q", scope, action, payload)
	}
}
