// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/resolvebridge/internal/protocol"
	"github.com/ZSC714725/resolvebridge/internal/supervisor"
	"github.com/ZSC714725/resolvebridge/internal/timeline"
)

// Handler holds dependencies
type Handler struct {
	sup    *supervisor.Supervisor
	remote *timeline.Remote
}

// NewHandler creates API handler
func NewHandler(sup *supervisor.Supervisor, remote *timeline.Remote) *Handler {
	return &Handler{sup: sup, remote: remote}
}

// RegisterRoutes mounts all API routes on the router
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Info)

	v3 := r.Group("/api/v3")
	{
		v3.GET("/state", h.GetState)
		v3.GET("/report", h.GetReport)
		v3.GET("/result", h.GetResult)
		v3.PUT("/command", h.Command)

		v3.PUT("/timeline", h.PutTimeline)
		v3.DELETE("/timeline", h.DeleteTimeline)

		v3.GET("/imports", h.GetImports)
		v3.DELETE("/imports", h.AckImports)
	}
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// Info GET /
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "resolvebridge",
		"session": h.sup.Session(),
	})
}

// GetState GET /api/v3/state
func (h *Handler) GetState(c *gin.Context) {
	st := h.sup.Status()

	resp := StateResponse{
		Session:       st.Session,
		UptimeSeconds: int64(time.Since(st.StartedAt).Seconds()),
		Helper: HelperState{
			State:          string(st.Helper.State),
			Order:          st.Helper.Order,
			PID:            st.Helper.PID,
			RuntimeSeconds: int64(st.Helper.Duration.Seconds()),
			ExitCode:       st.Helper.ExitCode,
			LastLog:        st.Helper.LastLine,
			Memory:         st.Helper.Memory,
			CPU:            st.Helper.CPU,
		},
		Telemetry: TelemetryState{
			Sent:    st.Telemetry.Sent,
			Skipped: st.Telemetry.Skipped,
		},
	}
	if st.Pending != nil {
		resp.Pending = &PendingState{
			ID:             st.Pending.ID,
			Command:        st.Pending.Command,
			RunningSeconds: time.Since(st.Pending.IssuedAt).Seconds(),
		}
	}
	if st.LastResult != nil {
		resp.LastResult = resultToAPI(st.LastResult)
	}

	c.JSON(http.StatusOK, resp)
}

// GetReport GET /api/v3/report
func (h *Handler) GetReport(c *gin.Context) {
	lines := h.sup.Report()

	report := ReportResponse{Log: make([][2]string, len(lines))}
	for i, line := range lines {
		report.Log[i] = [2]string{
			line.Timestamp.Format("2006-01-02 15:04:05.000"),
			line.Data,
		}
	}

	c.JSON(http.StatusOK, report)
}

// GetResult GET /api/v3/result
func (h *Handler) GetResult(c *gin.Context) {
	last := h.sup.LastResult()
	if last == nil {
		errResp(c, http.StatusNotFound, "No finished command", "")
		return
	}
	c.JSON(http.StatusOK, resultToAPI(last))
}

// Command PUT /api/v3/command
func (h *Handler) Command(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	switch req.Command {
	case protocol.CmdCancel:
		if err := h.sup.Cancel(); err != nil {
			errResp(c, http.StatusInternalServerError, "Cancel failed", err.Error())
			return
		}
		c.JSON(http.StatusOK, "OK")

	case protocol.CmdTestPlace:
		id, err := h.sup.Submit(protocol.Command{Cmd: protocol.CmdTestPlace})
		if err != nil {
			h.submitError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, CommandAccepted{ID: id, Command: req.Command})

	case protocol.CmdTranscribe:
		cmd, err := h.sup.NewTranscribeCommand(supervisor.TranscribeOptions{
			Input:    req.Input,
			Model:    req.Model,
			Device:   req.Device,
			Language: req.Language,
		})
		if err != nil {
			errResp(c, http.StatusBadRequest, "Invalid transcribe request", err.Error())
			return
		}
		id, err := h.sup.Submit(cmd)
		if err != nil {
			h.submitError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, CommandAccepted{ID: id, Command: req.Command})

	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known commands: transcribe, test_place, cancel")
	}
}

func (h *Handler) submitError(c *gin.Context, err error) {
	if errors.Is(err, supervisor.ErrBusy) {
		errResp(c, http.StatusConflict, "Command in flight", err.Error())
		return
	}
	errResp(c, http.StatusInternalServerError, "Submit failed", err.Error())
}

// PutTimeline PUT /api/v3/timeline
func (h *Handler) PutTimeline(c *gin.Context) {
	var req TimelineStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if req.FPS <= 0 {
		errResp(c, http.StatusBadRequest, "Invalid fps", "fps must be positive")
		return
	}

	info := &timeline.Info{
		Name:       req.Name,
		FPS:        req.FPS,
		CurrentTC:  req.TC,
		StartFrame: req.StartFrame,
	}
	if req.MarkIn != nil && req.MarkOut != nil {
		info.Marks = &timeline.Marks{In: *req.MarkIn, Out: *req.MarkOut}
	}
	h.remote.SetInfo(info)

	c.JSON(http.StatusOK, "OK")
}

// DeleteTimeline DELETE /api/v3/timeline
func (h *Handler) DeleteTimeline(c *gin.Context) {
	h.remote.ClearInfo()
	c.JSON(http.StatusOK, "OK")
}

// GetImports GET /api/v3/imports
func (h *Handler) GetImports(c *gin.Context) {
	sinceStr := c.DefaultQuery("since", "0")
	since, err := strconv.ParseUint(sinceStr, 10, 64)
	if err != nil {
		errResp(c, http.StatusBadRequest, "Invalid since", err.Error())
		return
	}

	reqs := h.remote.Imports(since)
	if reqs == nil {
		reqs = []timeline.ImportRequest{}
	}
	c.JSON(http.StatusOK, reqs)
}

// AckImports DELETE /api/v3/imports
func (h *Handler) AckImports(c *gin.Context) {
	uptoStr := c.Query("upto")
	if uptoStr == "" {
		errResp(c, http.StatusBadRequest, "Missing upto", "upto query parameter required")
		return
	}
	upto, err := strconv.ParseUint(uptoStr, 10, 64)
	if err != nil {
		errResp(c, http.StatusBadRequest, "Invalid upto", err.Error())
		return
	}

	h.remote.Ack(upto)
	c.JSON(http.StatusOK, "OK")
}

func resultToAPI(r *supervisor.Result) *CommandResult {
	return &CommandResult{
		ID:          r.ID,
		Command:     r.Command,
		Success:     r.Success,
		SrtPath:     r.SrtPath,
		Error:       r.Error,
		Imported:    r.Imported,
		ImportError: r.ImportError,
		FinishedAt:  r.FinishedAt.Unix(),
	}
}
