package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	Name string
	Data string
}

// Reader parses an event stream incrementally. Multi-line data fields are
// joined with "\n"; comment lines are skipped.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next event with a non-empty data field, or io.EOF once the
// stream ends.
func (r *Reader) Next() (Event, error) {
	var (
		name      string
		dataLines []string
	)

	for {
		line, err := r.br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if len(dataLines) > 0 {
				return Event{Name: name, Data: strings.Join(dataLines, "\n")}, nil
			}
			name = ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			v = strings.TrimPrefix(v, " ")
			dataLines = append(dataLines, v)
		}

		if eof {
			if len(dataLines) > 0 {
				return Event{Name: name, Data: strings.Join(dataLines, "\n")}, nil
			}
			return Event{}, io.EOF
		}
	}
}
