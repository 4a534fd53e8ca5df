package audit

import "io"

// Writer appends events to an audit trail.
//
// Implementations must validate the event, link it into the hash chain
// (HashPrev, Hash), persist it durably before returning, and never
// record secrets such as PINs or private key material. A write error
// must fail the calling operation.
type Writer interface {
	Write(event *Event) error

	// Close flushes pending writes and releases the trail.
	Close() error

	// LastHash returns the hash of the most recent event, or
	// GenesisHash when the trail is empty.
	LastHash() string
}

// NopWriter discards all events. Used when audit logging is disabled.
type NopWriter struct{}

var _ Writer = (*NopWriter)(nil)

func (NopWriter) Write(*Event) error { return nil }
func (NopWriter) Close() error       { return nil }
func (NopWriter) LastHash() string   { return GenesisHash }

// MultiWriter fans events out to several writers. A failure in any one
// of them fails the write.
type MultiWriter struct {
	writers []Writer
}

var _ Writer = (*MultiWriter)(nil)

// NewMultiWriter creates a writer that writes to all provided writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Write(event *Event) error {
	for _, w := range m.writers {
		if err := w.Write(event); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiWriter) Close() error {
	var lastErr error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (m *MultiWriter) LastHash() string {
	if len(m.writers) > 0 {
		return m.writers[0].LastHash()
	}
	return GenesisHash
}

var _ io.Closer = (Writer)(nil)
