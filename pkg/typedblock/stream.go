package typedblock

import (
	"fmt"
	"io"

	"github.com/eunmann/typedblock/pkg/flex"
	"github.com/eunmann/typedblock/pkg/wire"
)

// State is the position of a Stream in its decode lifecycle.
type State uint8

const (
	// Ready means no values have been requested yet.
	Ready State = iota
	// Emitting means a call is in progress.
	Emitting
	// SuspendedFullWindow means the last Read filled its window and values
	// remain.
	SuspendedFullWindow
	// SuspendedSkipExhausted means the last Skip finished and values remain.
	SuspendedSkipExhausted
	// Done means every value has been produced or skipped, or decoding failed.
	Done
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Emitting:
		return "emitting"
	case SuspendedFullWindow:
		return "suspended-full-window"
	case SuspendedSkipExhausted:
		return "suspended-skip-exhausted"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Stream decodes one block incrementally into caller-owned windows. Values
// come out in column order; Skip moves past values without building them.
//
// A Stream is single-use and not safe for concurrent use. It may be
// abandoned at any point.
type Stream struct {
	info  BlockInfo
	r     *wire.Reader
	hdr   header
	sub   valueDecoder
	pos   int
	n     int
	state State
	err   error
}

// NewStream decodes the block header and prepares the per-type decoder.
// The stream reads data in place; data must not change while it is in use.
func NewStream(info BlockInfo, data []byte) (*Stream, error) {
	if uint64(len(data)) != info.BlockSize {
		return nil, fmt.Errorf("%w: %d bytes, header says %d", ErrLengthMismatch, len(data), info.BlockSize)
	}
	if info.NumElem > MaxBlockValues {
		return nil, fmt.Errorf("%w: %d values", ErrMalformedHeader, info.NumElem)
	}
	r := wire.NewReader(data)
	h, err := readHeader(r, info)
	if err != nil {
		return nil, err
	}
	s := &Stream{info: info, r: r, hdr: h, n: int(info.NumElem)}

	switch {
	case h.kind == censusHeterogeneous:
		s.sub = &mixedDecoder{r: r}
	case h.kind == censusEmpty || h.tag == flex.Undefined:
	default:
		if s.sub, err = newValueDecoder(r, info, h.tag, s.n-h.numMissing); err != nil {
			return nil, fmt.Errorf("decode %s block: %w", h.tag, err)
		}
	}
	if s.n == 0 {
		if err := s.finish(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Len returns the number of values in the block.
func (s *Stream) Len() int { return s.n }

// Remaining returns the number of values not yet produced or skipped.
func (s *Stream) Remaining() int { return s.n - s.pos }

// State reports where the stream is in its lifecycle.
func (s *Stream) State() State { return s.state }

// Tag returns the block's single type, or Undefined for heterogeneous and
// empty blocks.
func (s *Stream) Tag() flex.Tag { return s.hdr.tag }

// Read fills window with the next values and returns how many were
// written. It returns io.EOF once every value has been consumed.
func (s *Stream) Read(window []flex.Value) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.Remaining() == 0 {
		return 0, io.EOF
	}
	if len(window) == 0 {
		return 0, nil
	}
	return s.advance(window[:min(len(window), s.Remaining())], 0)
}

// Skip moves past up to n values without decoding them into values and
// returns how many were skipped. It returns io.EOF if nothing remains.
func (s *Stream) Skip(n int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.Remaining() == 0 {
		return 0, io.EOF
	}
	if n <= 0 {
		return 0, nil
	}
	return s.advance(nil, min(n, s.Remaining()))
}

// advance handles exactly one of a fill or a skip, walking runs of
// Undefined positions itself and handing runs of real values to the
// per-type decoder.
func (s *Stream) advance(window []flex.Value, skip int) (int, error) {
	if (skip == 0) == (len(window) == 0) {
		return 0, errBadAdvance
	}
	s.state = Emitting
	want := len(window) + skip
	done := 0
	for done < want {
		missing := s.hdr.isMissing(s.pos)
		run := 1
		for done+run < want && s.hdr.isMissing(s.pos+run) == missing {
			run++
		}

		switch {
		case missing && skip == 0:
			clear(window[done : done+run])
		case missing:
		case skip == 0:
			if _, err := s.sub.advance(window[done:done+run], 0); err != nil {
				return done, s.fail(err)
			}
		default:
			if _, err := s.sub.advance(nil, run); err != nil {
				return done, s.fail(err)
			}
		}
		s.pos += run
		done += run
	}

	switch {
	case s.pos == s.n:
		if err := s.finish(); err != nil {
			return done, err
		}
	case skip > 0:
		s.state = SuspendedSkipExhausted
	default:
		s.state = SuspendedFullWindow
	}
	return done, nil
}

// finish checks the block was consumed exactly and releases the decoder.
func (s *Stream) finish() error {
	s.sub = nil
	if s.r.Remaining() != 0 {
		return s.fail(fmt.Errorf("%w: %d trailing bytes", ErrLengthMismatch, s.r.Remaining()))
	}
	s.state = Done
	return nil
}

func (s *Stream) fail(err error) error {
	s.err = err
	s.sub = nil
	s.state = Done
	return err
}
