// Package session applies one connection's message stream to the store
// in arrival order, tracking which experiment is current.
package session

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/marionridgway/Project-Reactor/decoder"
	"github.com/marionridgway/Project-Reactor/logger"
	"github.com/marionridgway/Project-Reactor/store"
)

// maxChunkSize bounds one controller message. The instrument emits
// sub-kilobyte lines; anything past this limit is garbage and is
// discarded without ending the session.
const maxChunkSize = 1 << 20

// errChunkTooLong marks a line that exceeded maxChunkSize and was
// drained from the stream.
var errChunkTooLong = errors.New("message exceeds size limit")

// Gateway is the slice of the store a session writes through. A test
// double stands in for it.
type Gateway interface {
	RecordSetup(setup decoder.Setup) error
	RecordStop(expNumber string) error
	RecordSample(expNumber string, sample decoder.Sample) error
}

// Session owns one connection's tracker and write path.
type Session struct {
	tracker Tracker
	gateway Gateway
}

// New creates a session with a fresh, idle tracker.
func New(gateway Gateway) *Session {
	return &Session{gateway: gateway}
}

// Tracker exposes the session's lifecycle state, read-only.
func (s *Session) Tracker() *Tracker {
	return &s.tracker
}

// Run consumes the stream until EOF. Per-message failures are logged
// and the stream continues; only a lost store ends the session early.
func (s *Session) Run(r io.Reader) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		chunk, err := readChunk(reader)
		if errors.Is(err, errChunkTooLong) {
			logger.Warnf("session: dropping message longer than %d bytes\n", maxChunkSize)
			continue
		}
		if len(chunk) > 0 {
			if applyErr := s.handleChunk(chunk); applyErr != nil {
				return applyErr
			}
		}
		if err != nil {
			if err != io.EOF {
				// A dropped connection reads the same as a clean close.
				logger.Warnf("session: transport read ended: %v\n", err)
			}
			return nil
		}
	}
}

// readChunk returns the next newline-delimited chunk. A line longer
// than maxChunkSize is drained up to its newline and reported as
// errChunkTooLong so the caller can keep the session alive.
func readChunk(reader *bufio.Reader) ([]byte, error) {
	var chunk []byte
	for {
		part, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			chunk = append(chunk, part...)
			if len(chunk) > maxChunkSize {
				if drainErr := discardLine(reader); drainErr != nil && drainErr != io.EOF {
					return nil, drainErr
				}
				return nil, errChunkTooLong
			}
			continue
		}
		return append(chunk, part...), err
	}
}

// discardLine consumes the stream up to and including the next newline.
func discardLine(reader *bufio.Reader) error {
	for {
		_, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			continue
		}
		return err
	}
}

// handleChunk decodes one chunk and applies its events in order.
func (s *Session) handleChunk(chunk []byte) error {
	logger.Debugf("raw message received: %s\n", bytes.TrimSpace(chunk))

	events, err := decoder.Decode(chunk)
	if err != nil {
		logger.Warnf("session: dropping message: %v\n", err)
	}
	for _, event := range events {
		if err := s.apply(event); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) apply(event decoder.Event) error {
	switch e := event.(type) {
	case decoder.Setup:
		return s.applySetup(e)
	case decoder.Stop:
		return s.applyStop()
	case decoder.Sample:
		return s.applySample(e)
	}
	return nil
}

func (s *Session) applySetup(setup decoder.Setup) error {
	if err := s.gateway.RecordSetup(setup); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateExperiment):
			// Keep attributing samples to whatever was current before
			// the colliding setup.
			logger.Warnf("session: %v; tracker state unchanged\n", err)
			return nil
		case errors.Is(err, store.ErrUnavailable):
			return err
		default:
			logger.Errorf("session: setup for %q failed: %v\n", setup.ExpNumber, err)
			return nil
		}
	}

	if current, ok := s.tracker.Current(); ok {
		// The controller never stopped the previous run; it stays open
		// with no end_time.
		logger.Warnf("session: experiment %q superseded without a stop\n", current)
	}
	s.tracker.begin(setup.ExpNumber)
	logger.Printf("experiment %q started\n", setup.ExpNumber)
	return nil
}

func (s *Session) applyStop() error {
	current, ok := s.tracker.Current()
	if !ok {
		logger.Debugf("session: stop with no active experiment, ignored\n")
		return nil
	}

	if err := s.gateway.RecordStop(current); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return err
		}
		logger.Errorf("session: stop for %q failed: %v\n", current, err)
		return nil
	}

	s.tracker.end()
	logger.Printf("experiment %q stopped\n", current)
	return nil
}

func (s *Session) applySample(sample decoder.Sample) error {
	current, ok := s.tracker.Current()
	if !ok {
		logger.Warnf("session: no active experiment, sensor sample dropped\n")
		return nil
	}

	if err := s.gateway.RecordSample(current, sample); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return err
		}
		logger.Errorf("session: sensor sample for %q failed: %v\n", current, err)
		return nil
	}

	logger.Debugf("sensor sample logged for %q\n", current)
	return nil
}
