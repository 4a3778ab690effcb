package frame

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// maxLineBytes bounds a single recorded frame. Dense depth frames run to a few MB of JSON.
const maxLineBytes = 64 << 20

// Writer appends samples to a JSON-lines recording.
type Writer struct {
	enc *json.Encoder
}

// NewWriter returns a Writer emitting one JSON document per line to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write appends one sample.
func (w *Writer) Write(s *Sample) error {
	return errors.Wrap(w.enc.Encode(s), "writing frame")
}

// Reader reads samples from a JSON-lines recording.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLineBytes)
	return &Reader{scanner: scanner}
}

// Next returns the next sample, or io.EOF when the recording is exhausted. Blank lines are skipped.
func (r *Reader) Next() (*Sample, error) {
	for r.scanner.Scan() {
		r.line++
		data := r.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, errors.Wrapf(err, "line %d", r.line)
		}
		if err := s.Validate(); err != nil {
			return nil, errors.Wrapf(err, "line %d", r.line)
		}
		return &s, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading recording")
	}
	return nil, io.EOF
}
