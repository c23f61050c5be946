// internal/pileup/score.go
// Package pileup runs several fixed-speed Morse decoders side by side and
// follows whichever one produces the most plausible amateur-radio text.
package pileup

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	lev "github.com/agnivade/levenshtein"

	"github.com/ColonelBlimp/cwlisten/internal/cw"
)

// Word shape limits.
const (
	minCallsignLength = 3
	maxCallsignLength = 10
	longWordLength    = 10
	repeatRunLength   = 3
	minFuzzyLength    = 3
)

var (
	callsignPattern = regexp.MustCompile(`^[A-Z0-9]+(?:[/-][A-Z0-9]+)*$`)
	qcodePattern    = regexp.MustCompile(`^Q[A-Z]{2}\??$`)
	reportPattern   = regexp.MustCompile(`^[1-5][1-9N][1-9N]$`)
)

// ScoreWeights are the points a word earns or loses per category.
type ScoreWeights struct {
	Unknown  int // per unknown character (from config: score_unknown)
	Repeat   int // run of 3+ identical characters (from config: score_repeat)
	Callsign int // looks like a callsign (from config: score_callsign)
	QCode    int // Q-code such as QTH or QRZ? (from config: score_qcode)
	Report   int // RST-style report such as 599 or 5NN (from config: score_report)
	Abbrev   int // known procedural abbreviation (from config: score_abbrev)
	Fuzzy    int // one edit away from an abbreviation (from config: score_fuzzy)
	Single   int // lone character that is not an abbreviation (from config: score_single)
	Clean    int // any other readable word (from config: score_clean)
	Long     int // longer than any real callsign (from config: score_long)
}

// DefaultWeights returns the documented scoring weights.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Unknown:  -20,
		Repeat:   -15,
		Callsign: 20,
		QCode:    15,
		Report:   15,
		Abbrev:   10,
		Fuzzy:    3,
		Single:   -3,
		Clean:    2,
		Long:     -10,
	}
}

// DefaultAbbreviations are common procedural words and QSO shorthand.
var DefaultAbbreviations = []string{
	"CQ", "DE", "K", "R", "73", "88", "TU", "5NN", "599",
	"QTH", "QRZ", "QSO", "QSL", "QRL", "QRS", "QRQ",
	"GM", "GA", "GE", "GN", "UR", "FB", "ES", "HR", "RST", "TNX", "TKS",
	"NAME", "OP", "ANT", "RIG", "PWR", "WX", "PSE", "AGN", "BK", "SK",
	"KN", "AR", "BT", "HW", "CUL", "GL", "OM", "YL", "DR", "TEST",
}

// Scorer rates decoded words by how much they look like real CW traffic.
type Scorer struct {
	weights ScoreWeights
	abbrevs map[string]struct{}
	fuzzy   []string
}

// NewScorer creates a scorer. A nil abbreviation list uses DefaultAbbreviations.
func NewScorer(weights ScoreWeights, abbreviations []string) *Scorer {
	if abbreviations == nil {
		abbreviations = DefaultAbbreviations
	}
	s := &Scorer{
		weights: weights,
		abbrevs: make(map[string]struct{}, len(abbreviations)),
	}
	for _, a := range abbreviations {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, dup := s.abbrevs[a]; dup {
			continue
		}
		s.abbrevs[a] = struct{}{}
		if utf8.RuneCountInString(a) >= minFuzzyLength {
			s.fuzzy = append(s.fuzzy, a)
		}
	}
	return s
}

// Score returns the points for one completed word. Penalties add up; at most
// one bonus applies and garbled words get none.
func (s *Scorer) Score(word string) int {
	word = strings.ToUpper(word)
	n := utf8.RuneCountInString(word)
	if n == 0 {
		return 0
	}
	w := s.weights

	score := 0
	unknowns := strings.Count(word, string(cw.UnknownChar))
	score += unknowns * w.Unknown
	if hasRun(word, repeatRunLength) {
		score += w.Repeat
	}
	_, abbrev := s.abbrevs[word]
	if n == 1 && !abbrev && unknowns == 0 {
		score += w.Single
	}
	if n > longWordLength {
		score += w.Long
	}
	if unknowns > 0 {
		return score
	}

	switch {
	case isCallsign(word):
		score += w.Callsign
	case qcodePattern.MatchString(word):
		score += w.QCode
	case reportPattern.MatchString(word):
		score += w.Report
	case abbrev:
		score += w.Abbrev
	case s.nearAbbreviation(word):
		score += w.Fuzzy
	case n >= 2:
		score += w.Clean
	}
	return score
}

// IsAbbreviation reports whether word is in the scorer's abbreviation list.
func (s *Scorer) IsAbbreviation(word string) bool {
	_, ok := s.abbrevs[strings.ToUpper(word)]
	return ok
}

func (s *Scorer) nearAbbreviation(word string) bool {
	if utf8.RuneCountInString(word) < minFuzzyLength {
		return false
	}
	for _, a := range s.fuzzy {
		if lev.ComputeDistance(word, a) == 1 {
			return true
		}
	}
	return false
}

// isCallsign applies the usual shape checks: 3 to 10 characters, at least one
// letter and one digit, slash or dash separated parts. Reports are excluded.
func isCallsign(word string) bool {
	if len(word) < minCallsignLength || len(word) > maxCallsignLength {
		return false
	}
	if strings.IndexFunc(word, unicode.IsDigit) < 0 || strings.IndexFunc(word, unicode.IsLetter) < 0 {
		return false
	}
	if reportPattern.MatchString(word) {
		return false
	}
	return callsignPattern.MatchString(word)
}

func hasRun(word string, n int) bool {
	run := 0
	var prev rune
	for i, r := range word {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}
