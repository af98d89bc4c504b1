package facts

import "testing"

func TestAutoTitle(t *testing.T) {
	cases := []struct {
		name     string
		messages []string
		expect   string
	}{
		{"service topic wins", []string{"my new laptop arrived broken", "I want a refund"}, "Refund"},
		{"product topic", []string{"Do you stock Slim JEANS?"}, "Jeans"},
		{"long text truncated", []string{"Hi there, could you tell me about your store opening hours"}, "hi there, could you tell me..."},
		{"short text", []string{"hello"}, DefaultTitle},
		{"no messages", nil, DefaultTitle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AutoTitle(tc.messages); got != tc.expect {
				t.Fatalf("AutoTitle(%q) = %q, want %q", tc.messages, got, tc.expect)
			}
		})
	}
}
