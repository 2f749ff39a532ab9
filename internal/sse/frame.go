// Package sse encodes the relay's event stream and parses upstream ones.
//
// The relay emits three frame kinds on the wire:
//
//	data: {"content": "..."}
//	data: {"error": "..."}
//	data: [DONE]
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DoneSentinel terminates every stream.
const DoneSentinel = "[DONE]"

// Frame is one of ContentFrame, ErrorFrame or DoneFrame.
type Frame interface {
	payload() ([]byte, error)
}

type ContentFrame struct {
	Content string `json:"content"`
}

type ErrorFrame struct {
	Message string `json:"error"`
}

type DoneFrame struct{}

func (f ContentFrame) payload() ([]byte, error) { return json.Marshal(f) }
func (f ErrorFrame) payload() ([]byte, error)   { return json.Marshal(f) }
func (DoneFrame) payload() ([]byte, error)      { return []byte(DoneSentinel), nil }

// Encode renders a frame as a complete SSE event, trailing blank line included.
func Encode(f Frame) ([]byte, error) {
	p, err := f.payload()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(p)+8)
	out = append(out, "data: "...)
	out = append(out, p...)
	out = append(out, '\n', '\n')
	return out, nil
}

var ErrUnknownFrame = errors.New("sse: unknown frame payload")

// DecodeFrame turns the data of one event back into a typed frame.
func DecodeFrame(data string) (Frame, error) {
	if data == DoneSentinel {
		return DoneFrame{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if v, ok := raw["content"]; ok {
		var f ContentFrame
		if err := json.Unmarshal(v, &f.Content); err != nil {
			return nil, fmt.Errorf("decode content frame: %w", err)
		}
		return f, nil
	}
	if v, ok := raw["error"]; ok {
		var f ErrorFrame
		if err := json.Unmarshal(v, &f.Message); err != nil {
			return nil, fmt.Errorf("decode error frame: %w", err)
		}
		return f, nil
	}
	return nil, ErrUnknownFrame
}
