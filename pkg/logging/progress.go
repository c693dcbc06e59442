package logging

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/typedblock/pkg/humanfmt"
)

// CompletionEvent builds a structured "something finished" log line with a
// consistent event, phase and duration.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  map[string]any
}

// NewCompletionEvent starts a completion event.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
		fields:  make(map[string]any),
	}
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Uint64 adds a uint64 field.
func (ce *CompletionEvent) Uint64(key string, val uint64) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bytes adds a byte count, plus key_h in pretty mode.
func (ce *CompletionEvent) Bytes(key string, n uint64) *CompletionEvent {
	ce.fields[key] = n
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.BytesUint64(n)
	}
	return ce
}

// Count adds a count, plus key_h in pretty mode.
func (ce *CompletionEvent) Count(key string, n uint64) *CompletionEvent {
	ce.fields[key] = n
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.CountUint64(n)
	}
	return ce
}

// Ratio adds raw/stored as a float, plus key_h in pretty mode.
func (ce *CompletionEvent) Ratio(key string, raw, stored uint64) *CompletionEvent {
	if stored > 0 {
		ce.fields[key] = float64(raw) / float64(stored)
	}
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Ratio(raw, stored)
	}
	return ce
}

// Throughput adds the rate of moving n bytes over the event's duration.
func (ce *CompletionEvent) Throughput(n uint64) *CompletionEvent {
	if ce.elapsed > 0 {
		ce.fields["throughput_bps"] = float64(n) / ce.elapsed.Seconds()
		if IsPrettyMode() {
			ce.fields["throughput_h"] = humanfmt.Throughput(int64(n), ce.elapsed)
		}
	}
	return ce
}

// Log emits the event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for k, v := range ce.fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// PhaseComplete starts a phase_completed event.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "phase_completed", phase, elapsed)
}

// FileCreated starts a file_created event.
func FileCreated(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_created", phase, elapsed)
}

// BlocksWritten starts a blocks_written event for one parallel encode round.
func BlocksWritten(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "blocks_written", phase, elapsed)
}
