package cw

import (
	"errors"
	"testing"
	"time"

	"github.com/ColonelBlimp/cwlisten/internal/dsp"
)

func TestMorseTable_RoundTrip(t *testing.T) {
	for _, r := range Characters() {
		code, ok := Encode(r)
		if !ok {
			t.Errorf("Encode(%q) failed", r)
			continue
		}
		if got, ok := Lookup(code); !ok || got != r {
			t.Errorf("Lookup(Encode(%q)) = %q, %v; want %q", r, got, ok, r)
		}
	}
}

func TestMorseTable_KnownCodes(t *testing.T) {
	tests := []struct {
		code string
		want rune
	}{
		{".-", 'A'},
		{"-...", 'B'},
		{"--.-", 'Q'},
		{".----", '1'},
		{"-----", '0'},
		{"-..-.", '/'},
		{"..--..", '?'},
		{"-...-", '='},
		{".-.-.-", '.'},
		{"--..--", ','},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := Lookup(tt.code)
			if !ok || got != tt.want {
				t.Errorf("Lookup(%q) = %q, %v; want %q", tt.code, got, ok, tt.want)
			}
		})
	}
}

func TestMorseTable_Size(t *testing.T) {
	if got := len(Characters()); got != 41 {
		t.Errorf("table has %d characters, want 26 letters + 10 digits + 5 punctuation", got)
	}
	// Every character is reachable at its tree index and nowhere else.
	seen := map[rune]int{}
	for i, r := range MorseTree {
		if r != 0 {
			seen[r]++
			if seen[r] > 1 {
				t.Errorf("%q appears more than once (index %d)", r, i)
			}
		}
	}
	if len(seen) != 41 {
		t.Errorf("tree holds %d characters, want 41", len(seen))
	}
}

func TestLookup_Invalid(t *testing.T) {
	for _, code := range []string{"", "......", ".......", "..--", "abc", ".-x"} {
		if r, ok := Lookup(code); ok {
			t.Errorf("Lookup(%q) = %q, want no match", code, r)
		}
		if got := Decode(code); got != UnknownChar {
			t.Errorf("Decode(%q) = %q, want %q", code, got, UnknownChar)
		}
	}
}

func TestEncode_CaseInsensitive(t *testing.T) {
	lower, ok := Encode('k')
	if !ok || lower != "-.-" {
		t.Errorf("Encode('k') = %q, %v; want \"-.-\"", lower, ok)
	}
	if _, ok := Encode('#'); ok {
		t.Error("Encode('#') succeeded")
	}
}

func TestEncodeText(t *testing.T) {
	got, err := EncodeText("cq  de K1")
	if err != nil {
		t.Fatalf("EncodeText() error = %v", err)
	}
	want := "-.-. --.- / -.. . / -.- .----"
	if got != want {
		t.Errorf("EncodeText() = %q, want %q", got, want)
	}

	if _, err := EncodeText("A#B"); !errors.Is(err, ErrUnencodable) {
		t.Errorf("EncodeText(\"A#B\") error = %v, want %v", err, ErrUnencodable)
	}
}

func TestWPMConversions(t *testing.T) {
	if got := WPMToDit(20); got != 60 {
		t.Errorf("WPMToDit(20) = %v, want 60", got)
	}
	if got := WPMToDit(15); got != 80 {
		t.Errorf("WPMToDit(15) = %v, want 80", got)
	}
	if got := DitToWPM(40); got != 30 {
		t.Errorf("DitToWPM(40) = %v, want 30", got)
	}
}

func TestKeying(t *testing.T) {
	dit := 50 * time.Millisecond
	got, err := Keying("AE T", dit)
	if err != nil {
		t.Fatalf("Keying() error = %v", err)
	}
	want := []dsp.TimingEvent{
		{Duration: dit, IsSignal: true},     // A .
		{Duration: dit},                     // element gap
		{Duration: 3 * dit, IsSignal: true}, // A -
		{Duration: 3 * dit},                 // char gap
		{Duration: dit, IsSignal: true},     // E
		{Duration: 7 * dit},                 // word gap
		{Duration: 3 * dit, IsSignal: true}, // T
	}
	if len(got) != len(want) {
		t.Fatalf("Keying() returned %d events, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := Keying("A#", dit); !errors.Is(err, ErrUnencodable) {
		t.Errorf("Keying(\"A#\") error = %v, want %v", err, ErrUnencodable)
	}
}
