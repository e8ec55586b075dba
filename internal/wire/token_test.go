package wire

import "testing"

func TestSplitSpeakable(t *testing.T) {
	for _, tc := range []struct {
		name      string
		in        string
		speakable string
		meta      string
		found     bool
	}{
		{
			name:      "no delimiter",
			in:        "Thanks, let me check that for you.",
			speakable: "Thanks, let me check that for you.",
		},
		{
			name:      "delimiter with metadata",
			in:        "You qualify for the standard plan. |||{\"loan_amount\":10000}",
			speakable: "You qualify for the standard plan.",
			meta:      `{"loan_amount":10000}`,
			found:     true,
		},
		{
			name:      "delimiter arrived across tokens",
			in:        "Done.|" + "||" + `{"a":1}`,
			speakable: "Done.",
			meta:      `{"a":1}`,
			found:     true,
		},
		{
			name:  "delimiter at start hides everything",
			in:    `|||{"silent":true}`,
			meta:  `{"silent":true}`,
			found: true,
		},
		{
			name:      "only first delimiter splits",
			in:        "a|||b|||c",
			speakable: "a",
			meta:      "b|||c",
			found:     true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			speakable, meta, found := SplitSpeakable(tc.in)
			if speakable != tc.speakable || meta != tc.meta || found != tc.found {
				t.Errorf("SplitSpeakable(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tc.in, speakable, meta, found, tc.speakable, tc.meta, tc.found)
			}
		})
	}
}
