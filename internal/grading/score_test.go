package grading

import (
	"errors"
	"testing"
)

func TestExtractScoreNormalizes(t *testing.T) {
	cases := []struct {
		name   string
		stdout string
		max    float64
		want   string
	}{
		{"seven of ten", "Total: 7/10\n", 10, "7.00"},
		{"three quarters", "Total: 3/4\n", 10, "7.50"},
		{"decimals", "Total: 2.5/5\n", 10, "5.00"},
		{"rounds to two places", "Total: 1/3\n", 10, "3.33"},
		{"other scale", "Total: 7/10\n", 5, "3.50"},
		{"spacing tolerated", "  Total:  9 / 12  \n", 10, "7.50"},
		{"crlf output", "Total: 1/2\r\n", 10, "5.00"},
		{"surrounded by feedback", "Test 1 ok\nTest 2 FAIL\nTotal: 1/2\nbye\n", 10, "5.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractScore(tc.stdout, tc.max)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if FormatScore(got) != tc.want {
				t.Fatalf("score = %s, want %s", FormatScore(got), tc.want)
			}
		})
	}
}

func TestExtractScoreUsesLastTotal(t *testing.T) {
	stdout := "part A\nTotal: 1/10\npart B\nTotal: 9/10\n"
	got, err := ExtractScore(stdout, 10)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != 9 {
		t.Fatalf("score = %v, want 9 from the later line", got)
	}
}

func TestExtractScoreWithoutMarker(t *testing.T) {
	for _, stdout := range []string{"", "all tests passed\n", "Total 7/10\n", "Subtotal: 7/10\n", "Total: 7/0\n"} {
		_, err := ExtractScore(stdout, 10)
		var extractErr *ExtractionError
		if !errors.As(err, &extractErr) {
			t.Fatalf("stdout %q: expected *ExtractionError, got %v", stdout, err)
		}
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(7.499); got != 7.5 {
		t.Fatalf("Round2(7.499) = %v", got)
	}
	if got := Round2(0.125); FormatScore(got) != "0.13" {
		t.Fatalf("Round2(0.125) = %v", got)
	}
}
