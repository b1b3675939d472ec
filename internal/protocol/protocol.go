// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务
//
// Package protocol frames and parses the newline-delimited JSON messages
// exchanged with the helper process. Telemetry carries an "event" key,
// responses carry a "success" key; the two schemas are disjoint so a line
// classifies without any surrounding context.

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Command kinds understood by the helper
const (
	CmdTestPlace  = "test_place"
	CmdTranscribe = "transcribe"
	CmdCancel     = "cancel"
	CmdShutdown   = "shutdown"
)

// Telemetry event kinds
const (
	EventTimelineState = "timeline_state"
)

// Transcription devices
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Message is a decoded line from the duplex channel: either Telemetry
// (one-way) or Response (answers exactly one outstanding command).
type Message interface {
	isMessage()
}

// Command is a request the helper must act on and answer with exactly one
// Response. Input/Model/Device/Language are only meaningful for transcribe.
type Command struct {
	Cmd      string
	Input    string
	Model    string
	Device   string
	Language *string
}

// MarshalJSON emits the wire shape for the command kind: transcribe carries
// its parameters (language is an explicit null when unset), everything else
// is a bare {"cmd":...} object.
func (c Command) MarshalJSON() ([]byte, error) {
	if c.Cmd == CmdTranscribe {
		return json.Marshal(struct {
			Cmd      string  `json:"cmd"`
			Input    string  `json:"input"`
			Model    string  `json:"model"`
			Device   string  `json:"device"`
			Language *string `json:"language"`
		}{c.Cmd, c.Input, c.Model, c.Device, c.Language})
	}
	return json.Marshal(struct {
		Cmd string `json:"cmd"`
	}{c.Cmd})
}

// TimelineState is the payload of a timeline_state telemetry message. All
// fields are nullable; in_tc, out_tc and range_seconds are jointly present
// or jointly null.
type TimelineState struct {
	Name         *string  `json:"name"`
	FPS          *string  `json:"fps"`
	TC           *string  `json:"tc"`
	InTC         *string  `json:"in_tc"`
	OutTC        *string  `json:"out_tc"`
	RangeSeconds *float64 `json:"range_seconds"`
}

// Telemetry is a one-way state update. No reply is expected.
type Telemetry struct {
	Event    string        `json:"event"`
	Timeline TimelineState `json:"timeline"`
}

func (Telemetry) isMessage() {}

// Response is the helper's answer to a command
type Response struct {
	Success bool   `json:"success"`
	SrtPath string `json:"srt_path,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (Response) isMessage() {}

// ParseError marks a line that failed to parse or matched neither schema.
// Callers log and discard it; it never stops the reader.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("protocol: %s: %q", e.Reason, e.Line)
}

// Encode marshals a message into one compact JSON object terminated by a
// single newline. A payload that would embed a newline is rejected.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if bytes.ContainsRune(data, '\n') {
		return nil, fmt.Errorf("encode message: embedded newline")
	}
	return append(data, '\n'), nil
}

// Decode parses one line into a Telemetry or a Response. Classification is
// by key presence: "event" means telemetry, "success" means response. A line
// carrying both, neither, or invalid JSON yields a ParseError.
func Decode(line []byte) (Message, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, &ParseError{Line: string(line), Reason: "invalid JSON"}
	}

	_, hasEvent := probe["event"]
	_, hasSuccess := probe["success"]

	switch {
	case hasEvent && hasSuccess:
		return nil, &ParseError{Line: string(line), Reason: "ambiguous schema"}
	case hasEvent:
		var t Telemetry
		if err := json.Unmarshal(line, &t); err != nil {
			return nil, &ParseError{Line: string(line), Reason: "malformed telemetry"}
		}
		return t, nil
	case hasSuccess:
		var r Response
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, &ParseError{Line: string(line), Reason: "malformed response"}
		}
		return r, nil
	default:
		return nil, &ParseError{Line: string(line), Reason: "unknown schema"}
	}
}
