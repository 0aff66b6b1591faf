package strings

import "testing"

func TestIsBlank(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{
			name:  "empty",
			input: "",
			want:  true,
		},
		{
			name:  "whitespace",
			input: " \t\n ",
			want:  true,
		},
		{
			name:  "non-empty",
			input: "note",
			want:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBlank(tc.input); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestContainsAnyLower(t *testing.T) {
	cases := []struct {
		name  string
		input string
		subs  []string
		want  bool
	}{
		{
			name:  "match",
			input: "Error: No such bookmark: feature",
			subs:  []string{"no such bookmark"},
			want:  true,
		},
		{
			name:  "second match",
			input: "Error: Bookmark doesn't exist",
			subs:  []string{"no such bookmark", "doesn't exist"},
			want:  true,
		},
		{
			name:  "no match",
			input: "Error: permission denied",
			subs:  []string{"no such bookmark"},
			want:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContainsAnyLower(tc.input, tc.subs...); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFirstNonBlank(t *testing.T) {
	if got := FirstNonBlank("", "  ", "main", "other"); got != "main" {
		t.Fatalf("expected main, got %q", got)
	}
	if got := FirstNonBlank("", "  "); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
