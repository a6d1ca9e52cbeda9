package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
)

// ErrMalformedMessage is wrapped by ParseMessage failures.
var ErrMalformedMessage = errors.New("malformed realtime message")

type wireMessage struct {
	Type  EventType       `json:"type"`
	JobID string          `json:"job_id"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// ParseMessage decodes one socket frame of the form {type, job_id, data}.
func ParseMessage(raw []byte) (Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !msg.Type.Valid() {
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
	}

	ev := Event{Type: msg.Type, JobID: msg.JobID}
	data := bytes.TrimSpace(msg.Data)
	hasData := len(data) > 0 && !bytes.Equal(data, []byte("null"))

	switch msg.Type {
	case EventProgress:
		if !hasData {
			return Event{}, fmt.Errorf("%w: progress without data", ErrMalformedMessage)
		}
		var p ProgressUpdate
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("%w: progress data: %v", ErrMalformedMessage, err)
		}
		ev.Progress = &p
		ev.Message = p.Message

	case EventCompleted:
		if hasData {
			result, err := parseResult(data)
			if err != nil {
				return Event{}, err
			}
			ev.Result = result
		}

	default:
		if hasData {
			ev.Message = parseText(data)
		}
	}

	return ev, nil
}

// parseResult accepts either the result itself or {"result": {...}}.
func parseResult(data []byte) (*analysis.Result, error) {
	var wrapped struct {
		Result *analysis.Result `json:"result"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Result != nil {
		return wrapped.Result, nil
	}
	var result analysis.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: completed data: %v", ErrMalformedMessage, err)
	}
	return &result, nil
}

// parseText pulls a human readable message out of a string or an object payload.
func parseText(data []byte) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var w wireError
	if err := json.Unmarshal(data, &w); err == nil {
		switch {
		case w.Message != "":
			return w.Message
		case w.Error != "":
			return w.Error
		case w.Detail != "":
			return w.Detail
		}
	}
	return ""
}
