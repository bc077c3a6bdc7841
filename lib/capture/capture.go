// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records inbound envelopes to a file and reads them
// back for replay.
//
// A capture file starts with an 8-byte magic string and one byte
// naming the [Compression] of the rest of the file. The body is a
// sequence of CBOR maps, one per [Entry], holding the arrival time,
// the envelope kind and session, and the envelope body as a byte
// string. The body is stored exactly as received, so a replay feeds
// the engine the same bytes the backend sent, including bodies that
// are not valid CBOR.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/schema"
)

// magic identifies a capture file and its format version.
var magic = [8]byte{'C', 'U', 'S', 'T', 'C', 'A', 'P', '1'}

// ErrNotCapture is returned when a file does not start with the
// capture header.
var ErrNotCapture = errors.New("not a custody capture file")

// ErrEntrySkipped is returned by [Writer.Write] when one entry could
// not be encoded. Nothing was written and the Writer stays usable;
// any other Write error means the stream itself failed.
var ErrEntrySkipped = errors.New("capture entry skipped")

// Entry is one captured envelope.
type Entry struct {
	At       time.Time
	Envelope schema.Envelope
}

// record is the stored form of an Entry.
type record struct {
	At      time.Time `cbor:"at"`
	Kind    string    `cbor:"kind"`
	Session string    `cbor:"session,omitempty"`
	Body    []byte    `cbor:"body"`
}

// Writer appends entries to a capture stream. Not safe for concurrent
// use.
type Writer struct {
	body   io.WriteCloser
	buffer *bufio.Writer
	file   *os.File
	count  int
}

// NewWriter writes the header to destination and returns a Writer for
// the body. Close flushes the body but does not close destination.
func NewWriter(destination io.Writer, compression Compression) (*Writer, error) {
	header := append(magic[:], byte(compression))
	if _, err := destination.Write(header); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}
	body, err := compressingWriter(destination, compression)
	if err != nil {
		return nil, err
	}
	return &Writer{body: body, buffer: bufio.NewWriter(body)}, nil
}

// Create creates (or truncates) a capture file at path.
func Create(path string, compression Compression) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture %s: %w", path, err)
	}
	writer, err := NewWriter(file, compression)
	if err != nil {
		file.Close()
		return nil, err
	}
	writer.file = file
	return writer, nil
}

// Write appends one entry. The entry is encoded in full before any
// byte reaches the stream, so an error wrapping [ErrEntrySkipped]
// leaves the stream intact.
func (w *Writer) Write(at time.Time, envelope schema.Envelope) error {
	data, err := codec.Marshal(record{
		At:      at,
		Kind:    envelope.Kind,
		Session: envelope.Session,
		Body:    envelope.Body,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding entry %d: %v", ErrEntrySkipped, w.count, err)
	}
	if _, err := w.buffer.Write(data); err != nil {
		return fmt.Errorf("writing capture entry %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count returns the number of entries written.
func (w *Writer) Count() int { return w.count }

// Close flushes buffered entries and the compressor, and closes the
// file if the Writer was made by Create.
func (w *Writer) Close() error {
	err := w.buffer.Flush()
	if closeErr := w.body.Close(); err == nil {
		err = closeErr
	}
	if w.file != nil {
		if closeErr := w.file.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return fmt.Errorf("closing capture: %w", err)
	}
	return nil
}

// Reader reads entries from a capture stream.
type Reader struct {
	Compression Compression

	decoder *codec.Decoder
	release func()
	file    *os.File
}

// NewReader checks the header of source and returns a Reader for the
// body.
func NewReader(source io.Reader) (*Reader, error) {
	var header [len(magic) + 1]byte
	if _, err := io.ReadFull(source, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCapture, err)
	}
	if [8]byte(header[:8]) != magic {
		return nil, ErrNotCapture
	}
	compression := Compression(header[8])
	body, release, err := decompressingReader(source, compression)
	if err != nil {
		return nil, err
	}
	return &Reader{
		Compression: compression,
		decoder:     codec.NewDecoder(bufio.NewReader(body)),
		release:     release,
	}, nil
}

// Open opens the capture file at path.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture %s: %w", path, err)
	}
	reader, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	reader.file = file
	return reader, nil
}

// Next returns the next entry, or io.EOF after the last one.
func (r *Reader) Next() (Entry, error) {
	var stored record
	if err := r.decoder.Decode(&stored); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("reading capture entry: %w", err)
	}
	return Entry{
		At: stored.At,
		Envelope: schema.Envelope{
			Kind:    stored.Kind,
			Session: stored.Session,
			Body:    codec.RawMessage(stored.Body),
		},
	}, nil
}

// Close releases decoder resources and closes the file if the Reader
// was made by Open.
func (r *Reader) Close() error {
	r.release()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
