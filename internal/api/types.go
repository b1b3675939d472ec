// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package api

// TimelineStateRequest for PUT /api/v3/timeline, pushed by the editor shim
type TimelineStateRequest struct {
	Name       string  `json:"name" binding:"required"`
	FPS        float64 `json:"fps" binding:"required"`
	TC         string  `json:"tc"`
	StartFrame int     `json:"start_frame"`
	MarkIn     *int    `json:"mark_in"`
	MarkOut    *int    `json:"mark_out"`
}

// CommandRequest for PUT /api/v3/command
type CommandRequest struct {
	Command  string  `json:"command" binding:"required"`
	Input    string  `json:"input"`
	Model    string  `json:"model"`
	Device   string  `json:"device"`
	Language *string `json:"language"`
}

// CommandAccepted marks an asynchronously running command
type CommandAccepted struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// HelperState in API format
type HelperState struct {
	State          string  `json:"state"`
	Order          string  `json:"order"`
	PID            int32   `json:"pid"`
	RuntimeSeconds int64   `json:"runtime_seconds"`
	ExitCode       int     `json:"exit_code"`
	LastLog        string  `json:"last_logline"`
	Memory         uint64  `json:"memory_bytes"`
	CPU            float64 `json:"cpu_usage"`
}

// PendingState describes the in-flight command
type PendingState struct {
	ID             string  `json:"id"`
	Command        string  `json:"command"`
	RunningSeconds float64 `json:"running_seconds"`
}

// CommandResult is the outcome of the most recent command
type CommandResult struct {
	ID          string `json:"id"`
	Command     string `json:"command"`
	Success     bool   `json:"success"`
	SrtPath     string `json:"srt_path,omitempty"`
	Error       string `json:"error,omitempty"`
	Imported    bool   `json:"imported"`
	ImportError string `json:"import_error,omitempty"`
	FinishedAt  int64  `json:"finished_at"`
}

// TelemetryState counts snapshot ticks
type TelemetryState struct {
	Sent    uint64 `json:"sent"`
	Skipped uint64 `json:"skipped"`
}

// StateResponse for GET /api/v3/state
type StateResponse struct {
	Session       string         `json:"session"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Helper        HelperState    `json:"helper"`
	Pending       *PendingState  `json:"pending,omitempty"`
	LastResult    *CommandResult `json:"last_result,omitempty"`
	Telemetry     TelemetryState `json:"telemetry"`
}

// ReportResponse for protocol line logs
type ReportResponse struct {
	Log [][2]string `json:"log"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
