// internal/cw/keying.go
package cw

import (
	"time"

	"github.com/ColonelBlimp/cwlisten/internal/dsp"
)

// Keying renders text as the timing events a perfect key would produce at
// the given dit length: 1 dit element gaps, 3 dit character gaps and 7 dit
// word gaps. The sequence starts with a signal and ends with the last
// signal; trailing silence is left to the caller.
func Keying(text string, dit time.Duration) ([]dsp.TimingEvent, error) {
	encoded, err := EncodeText(text)
	if err != nil {
		return nil, err
	}

	var events []dsp.TimingEvent
	gap := func(units float64) {
		events = append(events, dsp.TimingEvent{Duration: time.Duration(units * float64(dit))})
	}

	// encoded looks like ".- -... / -.-."
	pendingGap := 0.0
	for i := 0; i < len(encoded); i++ {
		switch encoded[i] {
		case '.', '-':
			if pendingGap > 0 {
				gap(pendingGap)
			}
			units := 1.0
			if encoded[i] == '-' {
				units = DahDitRatio
			}
			events = append(events, dsp.TimingEvent{Duration: time.Duration(units * float64(dit)), IsSignal: true})
			pendingGap = 1
		case ' ':
			if pendingGap < InterCharSpaceRatio {
				pendingGap = InterCharSpaceRatio
			}
		case '/':
			pendingGap = WordSpaceRatio
		}
	}
	return events, nil
}
