// internal/cw/morse.go
// Package cw implements CW (Morse code) decoding from keying timing events.
package cw

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Morse code timing ratios (ITU standard)
const (
	// DahDitRatio is the ratio of dah duration to dit duration (ITU: 3:1)
	DahDitRatio = 3.0
	// InterCharSpaceRatio is the space between characters in dits (ITU: 3:1)
	InterCharSpaceRatio = 3.0
	// WordSpaceRatio is the space between words in dits (ITU: 7:1)
	WordSpaceRatio = 7.0

	// MillisecondsPerMinute is used for WPM calculations
	MillisecondsPerMinute = 60000.0
	// DitsPerWord is the standard word "PARIS" = 50 dit units
	DitsPerWord = 50.0
)

// MaxCodeLength is the longest code the table holds.
const MaxCodeLength = 6

// UnknownChar is emitted for codes with no table entry. '?' is a real
// character (..--..), so a distinct sentinel is used.
const UnknownChar = '*'

// ErrUnencodable indicates a character has no Morse code
var ErrUnencodable = errors.New("character has no morse code")

// table is the International Morse subset shared with the companion
// encoder. Order is only for readability.
var table = []struct {
	char rune
	code string
}{
	{'A', ".-"}, {'B', "-..."}, {'C', "-.-."}, {'D', "-.."}, {'E', "."},
	{'F', "..-."}, {'G', "--."}, {'H', "...."}, {'I', ".."}, {'J', ".---"},
	{'K', "-.-"}, {'L', ".-.."}, {'M', "--"}, {'N', "-."}, {'O', "---"},
	{'P', ".--."}, {'Q', "--.-"}, {'R', ".-."}, {'S', "..."}, {'T', "-"},
	{'U', "..-"}, {'V', "...-"}, {'W', ".--"}, {'X', "-..-"}, {'Y', "-.--"},
	{'Z', "--.."},
	{'0', "-----"}, {'1', ".----"}, {'2', "..---"}, {'3', "...--"}, {'4', "....-"},
	{'5', "....."}, {'6', "-...."}, {'7', "--..."}, {'8', "---.."}, {'9', "----."},
	{'/', "-..-."}, {'?', "..--.."}, {'=', "-...-"}, {'.', ".-.-.-"}, {',', "--..--"},
}

// MorseTree is the binary tree for Morse code lookup.
// Left branch = dit, Right branch = dah.
// Index 1 is the root; parent at i, dit child at 2i, dah child at 2i+1.
// Zero entries are codes with no character.
var MorseTree [1 << (MaxCodeLength + 1)]rune

var encodeMap = make(map[rune]string, len(table))

func init() {
	for _, e := range table {
		idx, ok := treeIndex(e.code)
		if !ok {
			panic("cw: malformed table code " + e.code)
		}
		MorseTree[idx] = e.char
		encodeMap[e.char] = e.code
	}
}

// treeIndex walks the tree for a dot/dash code.
func treeIndex(code string) (int, bool) {
	if len(code) == 0 || len(code) > MaxCodeLength {
		return 0, false
	}
	idx := 1
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '.':
			idx = idx * 2
		case '-':
			idx = idx*2 + 1
		default:
			return 0, false
		}
	}
	return idx, true
}

// Lookup returns the character for a dot/dash code.
func Lookup(code string) (rune, bool) {
	idx, ok := treeIndex(code)
	if !ok || MorseTree[idx] == 0 {
		return 0, false
	}
	return MorseTree[idx], true
}

// Decode returns the character for a code, or UnknownChar.
func Decode(code string) rune {
	if r, ok := Lookup(code); ok {
		return r
	}
	return UnknownChar
}

// Encode returns the dot/dash code for a character. Letters are case-insensitive.
func Encode(r rune) (string, bool) {
	code, ok := encodeMap[unicode.ToUpper(r)]
	return code, ok
}

// EncodeText encodes text as codes separated by single spaces, with " / "
// between words. Runs of whitespace count as one word break.
func EncodeText(text string) (string, error) {
	words := strings.Fields(text)
	encoded := make([]string, 0, len(words))
	for _, w := range words {
		codes := make([]string, 0, len(w))
		for _, r := range w {
			code, ok := Encode(r)
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrUnencodable, r)
			}
			codes = append(codes, code)
		}
		encoded = append(encoded, strings.Join(codes, " "))
	}
	return strings.Join(encoded, " / "), nil
}

// Characters returns every character in the table, in table order.
func Characters() []rune {
	out := make([]rune, len(table))
	for i, e := range table {
		out[i] = e.char
	}
	return out
}

// WPMToDit converts a speed in words per minute to a dit length in milliseconds.
func WPMToDit(wpm float64) float64 {
	return MillisecondsPerMinute / (wpm * DitsPerWord)
}

// DitToWPM converts a dit length in milliseconds to words per minute.
func DitToWPM(ditMs float64) float64 {
	return MillisecondsPerMinute / (ditMs * DitsPerWord)
}
