// internal/pileup/score_test.go
package pileup

import "testing"

func TestScorer_Score(t *testing.T) {
	s := NewScorer(DefaultWeights(), nil)
	tests := []struct {
		word string
		want int
	}{
		{"", 0},
		{"CQ", 10},
		{"cq", 10},
		{"73", 10},
		{"K", 10},
		{"W1AW", 20},
		{"VK2/W1AW", 20},
		{"QTH", 15},
		{"QRZ?", 15},
		{"599", 15},
		{"5NN", 15},
		{"TNK", 3},
		{"HELLO", 2},
		{"TT", 2},
		{"E", -3},
		{"7", -3},
		{"EEE", -13},
		{"A*B", -20},
		{"*", -20},
		{"**", -40},
		{"ABCDEFGHIJK", -8},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			if got := s.Score(tt.word); got != tt.want {
				t.Errorf("Score(%q) = %d, want %d", tt.word, got, tt.want)
			}
		})
	}
}

func TestScorer_CustomAbbreviations(t *testing.T) {
	w := DefaultWeights()
	w.Abbrev = 7
	s := NewScorer(w, []string{"foo", " FOO ", ""})

	if !s.IsAbbreviation("Foo") {
		t.Error("IsAbbreviation(\"Foo\") = false")
	}
	if s.IsAbbreviation("CQ") {
		t.Error("CQ should not be an abbreviation with a custom list")
	}
	if got := s.Score("FOO"); got != 7 {
		t.Errorf("Score(FOO) = %d, want 7", got)
	}
	if got := s.Score("FOX"); got != w.Fuzzy {
		t.Errorf("Score(FOX) = %d, want fuzzy bonus %d", got, w.Fuzzy)
	}
	if got := s.Score("CQ"); got != w.Clean {
		t.Errorf("Score(CQ) = %d, want clean bonus %d", got, w.Clean)
	}
}

func TestIsCallsign(t *testing.T) {
	tests := []struct {
		word string
		want bool
	}{
		{"W1AW", true},
		{"G4ABC", true},
		{"VK2/W1AW", true},
		{"W1AW-7", true},
		{"W1", false},
		{"ABCDE", false},
		{"12345", false},
		{"599", false},
		{"5NN", false},
		{"W1AW//", false},
		{"AB1CDEFGHIJ", false},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			if got := isCallsign(tt.word); got != tt.want {
				t.Errorf("isCallsign(%q) = %v, want %v", tt.word, got, tt.want)
			}
		})
	}
}

func TestHasRun(t *testing.T) {
	tests := []struct {
		word string
		want bool
	}{
		{"EEE", true},
		{"TEEEST", true},
		{"EE", false},
		{"EEIEE", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := hasRun(tt.word, 3); got != tt.want {
			t.Errorf("hasRun(%q) = %v, want %v", tt.word, got, tt.want)
		}
	}
}
