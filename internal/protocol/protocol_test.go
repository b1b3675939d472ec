// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommandShapes(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "test_place",
			cmd:  Command{Cmd: CmdTestPlace},
			want: `{"cmd":"test_place"}`,
		},
		{
			name: "cancel",
			cmd:  Command{Cmd: CmdCancel},
			want: `{"cmd":"cancel"}`,
		},
		{
			name: "shutdown",
			cmd:  Command{Cmd: CmdShutdown},
			want: `{"cmd":"shutdown"}`,
		},
		{
			name: "transcribe with language",
			cmd: Command{
				Cmd:      CmdTranscribe,
				Input:    "a.mp4",
				Model:    "base",
				Device:   DeviceAuto,
				Language: strPtr("en"),
			},
			want: `{"cmd":"transcribe","input":"a.mp4","model":"base","device":"auto","language":"en"}`,
		},
		{
			name: "transcribe null language",
			cmd: Command{
				Cmd:    CmdTranscribe,
				Input:  "a.mp4",
				Model:  "base",
				Device: DeviceAuto,
			},
			want: `{"cmd":"transcribe","input":"a.mp4","model":"base","device":"auto","language":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Encode(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", string(line))
		})
	}
}

func TestEncodeSingleLine(t *testing.T) {
	name := "Timeline 1"
	fps := "24.00"
	tc := "01:00:00:00"
	line, err := Encode(Telemetry{
		Event:    EventTimelineState,
		Timeline: TimelineState{Name: &name, FPS: &fps, TC: &tc},
	})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(line), "\n"))
	assert.NotContains(t, strings.TrimSuffix(string(line), "\n"), "\n")
}

func TestEncodeTelemetryNullFields(t *testing.T) {
	line, err := Encode(Telemetry{Event: EventTimelineState})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event":"timeline_state","timeline":{"name":null,"fps":null,"tc":null,"in_tc":null,"out_tc":null,"range_seconds":null}}`,
		string(line))
}

func TestDecodeClassification(t *testing.T) {
	msg, err := Decode([]byte(`{"success":true,"srt_path":"/tmp/test.srt"}`))
	require.NoError(t, err)
	resp, ok := msg.(Response)
	require.True(t, ok)
	assert.True(t, resp.Success)
	assert.Equal(t, "/tmp/test.srt", resp.SrtPath)

	msg, err = Decode([]byte(`{"success":false,"error":"cancel"}`))
	require.NoError(t, err)
	resp, ok = msg.(Response)
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.Equal(t, "cancel", resp.Error)

	msg, err = Decode([]byte(`{"event":"timeline_state","timeline":{"name":"tl","fps":"24.00","tc":"00:00:01:00","in_tc":null,"out_tc":null,"range_seconds":null}}`))
	require.NoError(t, err)
	tel, ok := msg.(Telemetry)
	require.True(t, ok)
	assert.Equal(t, EventTimelineState, tel.Event)
	require.NotNil(t, tel.Timeline.Name)
	assert.Equal(t, "tl", *tel.Timeline.Name)
	assert.Nil(t, tel.Timeline.InTC)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not JSON", "garbage"},
		{"empty object", "{}"},
		{"unknown schema", `{"cmd":"transcribe"}`},
		{"both keys", `{"event":"x","success":true}`},
		{"truncated", `{"success":true,`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.line))
			assert.Nil(t, msg)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line)
		})
	}
}

// Schema disjointness: nothing Encode produces for one class decodes as the
// other.
func TestSchemaDisjointness(t *testing.T) {
	rng := 12.5
	name := "tl"
	messages := []interface{}{
		Telemetry{Event: EventTimelineState},
		Telemetry{Event: EventTimelineState, Timeline: TimelineState{Name: &name, RangeSeconds: &rng}},
		Response{Success: true, SrtPath: "/tmp/a.srt"},
		Response{Success: false, Error: "cancel"},
	}

	for _, m := range messages {
		line, err := Encode(m)
		require.NoError(t, err)

		var probe map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(line, &probe))

		_, hasEvent := probe["event"]
		_, hasSuccess := probe["success"]
		assert.NotEqual(t, hasEvent, hasSuccess, "schema must be unambiguous: %s", line)

		decoded, err := Decode(line[:len(line)-1])
		require.NoError(t, err)
		switch m.(type) {
		case Telemetry:
			assert.IsType(t, Telemetry{}, decoded)
		case Response:
			assert.IsType(t, Response{}, decoded)
		}
	}
}

func strPtr(s string) *string { return &s }
