// internal/dsp/events.go
package dsp

import "time"

// TimingEvent describes a keying segment that has just ended.
// Emitted at every confirmed transition; the value is never modified afterwards.
type TimingEvent struct {
	// Duration is the length of the segment that ended
	Duration time.Duration
	// IsSignal is true when the segment was tone (key down)
	IsSignal bool
}

// Ms returns the duration in milliseconds.
func (e TimingEvent) Ms() float64 {
	return float64(e.Duration) / float64(time.Millisecond)
}

// StateEvent reports a confirmed on/off transition.
type StateEvent struct {
	// On is the new state
	On bool
	// Level is the gain-corrected block level that confirmed the change
	Level float64
	// Threshold is the on-threshold in force at the time
	Threshold float64
	// Gain is the AGC gain applied to Level
	Gain float64
	// At is the sample-clock time of the transition
	At time.Duration
}

// RecalibrationReason says why the detector threw away its learned state.
type RecalibrationReason string

const (
	ReasonStuck         RecalibrationReason = "stuck"
	ReasonFrequencyJump RecalibrationReason = "frequency-jump"
	ReasonManual        RecalibrationReason = "manual"
)

// RecalibrationEvent is emitted after a full recalibration.
type RecalibrationEvent struct {
	Reason    RecalibrationReason
	Frequency float64
	At        time.Duration
}

// Listener receives detector events. Calls are made synchronously from
// Process, in the order the events occur, and must not block.
type Listener interface {
	OnStateChange(StateEvent)
	OnTiming(TimingEvent)
	OnRecalibrate(RecalibrationEvent)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	StateChange func(StateEvent)
	Timing      func(TimingEvent)
	Recalibrate func(RecalibrationEvent)
}

func (f ListenerFuncs) OnStateChange(e StateEvent) {
	if f.StateChange != nil {
		f.StateChange(e)
	}
}

func (f ListenerFuncs) OnTiming(e TimingEvent) {
	if f.Timing != nil {
		f.Timing(e)
	}
}

func (f ListenerFuncs) OnRecalibrate(e RecalibrationEvent) {
	if f.Recalibrate != nil {
		f.Recalibrate(e)
	}
}
