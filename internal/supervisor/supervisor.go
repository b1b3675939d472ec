// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务
//
// Package supervisor composes the helper process, the telemetry producer,
// the command dispatcher and the subtitle importer into one control loop
// with a start/stop lifecycle. There is exactly one helper and at most one
// command in flight per session; nothing here is a hidden singleton.

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/resolvebridge/internal/logger"
	"github.com/ZSC714725/resolvebridge/internal/process"
	"github.com/ZSC714725/resolvebridge/internal/protocol"
	"github.com/ZSC714725/resolvebridge/internal/timeline"
)

// TranscribeOptions for a transcribe command. Empty Model/Device fall back
// to the configured defaults; a nil Language means auto-detect.
type TranscribeOptions struct {
	Input    string
	Model    string
	Device   string
	Language *string
}

// Result is the outcome of one command, including the import side effect
type Result struct {
	ID          string
	Command     string
	Success     bool
	SrtPath     string
	Error       string
	Imported    bool
	ImportError string
	FinishedAt  time.Time
}

// PendingInfo describes the command currently in flight
type PendingInfo struct {
	ID       string
	Command  string
	IssuedAt time.Time
}

// Status is a snapshot of the whole session
type Status struct {
	Session    string
	StartedAt  time.Time
	Helper     process.Status
	Pending    *PendingInfo
	LastResult *Result
	Telemetry  timeline.Stats
}

// Config for a supervising session
type Config struct {
	Helper       process.Helper
	Adapter      timeline.Adapter
	Logger       logger.Logger
	PollInterval time.Duration // telemetry period, default 500ms
	GraceTimeout time.Duration // shutdown grace, default 5s
	TrackName    string        // subtitle track, default "AI Subtitles"
	Model        string        // transcribe default, default "base"
	Device       string        // transcribe default, default "auto"
	Language     *string       // transcribe default, nil = auto-detect
}

// Supervisor owns one helper process for the lifetime of one editor session
type Supervisor struct {
	helper     process.Helper
	producer   *timeline.Producer
	dispatcher *Dispatcher
	importer   *Importer
	logger     logger.Logger

	session string
	grace   time.Duration

	defaultModel    string
	defaultDevice   string
	defaultLanguage *string

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	last      *Result
	loopDone  chan struct{}
	stopOnce  sync.Once
}

// New wires a session together. The caller owns the Supervisor and must
// Stop it; launch happens in Start, not here.
func New(cfg Config) *Supervisor {
	log := cfg.Logger
	if log == nil {
		log = logger.New("supervisor")
	}

	grace := cfg.GraceTimeout
	if grace <= 0 {
		grace = 5 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "base"
	}
	device := cfg.Device
	if device == "" {
		device = protocol.DeviceAuto
	}

	s := &Supervisor{
		helper:          cfg.Helper,
		logger:          log,
		session:         shortuuid.New(),
		grace:           grace,
		defaultModel:    model,
		defaultDevice:   device,
		defaultLanguage: cfg.Language,
	}
	s.producer = timeline.NewProducer(cfg.Adapter, cfg.Helper, cfg.PollInterval, logger.New("timeline"))
	s.dispatcher = NewDispatcher(cfg.Helper, logger.New("dispatch"))
	s.importer = NewImporter(cfg.Adapter, cfg.TrackName, logger.New("import"))
	return s
}

// Session returns the session id
func (s *Supervisor) Session() string { return s.session }

// Start launches the helper and begins routing and telemetry. A launch
// failure is fatal and returned immediately.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("session %s already started", s.session)
	}

	if err := s.helper.Start(); err != nil {
		return fmt.Errorf("session %s: %w", s.session, err)
	}

	s.started = true
	s.startedAt = time.Now()
	s.loopDone = make(chan struct{})
	go s.route()
	s.producer.Start()

	s.logger.Info("session %s started", s.session)
	return nil
}

// Stop shuts the session down: telemetry stops, the helper gets a shutdown
// command and the grace period, then a kill. Idempotent.
func (s *Supervisor) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			return
		}

		s.producer.Stop()
		err = s.helper.Terminate(s.grace)
		<-s.loopDone
		s.logger.Info("session %s stopped", s.session)
	})
	return err
}

// route drains the helper's message queue. Responses resolve the pending
// command; the queue closing means the child exited, and an exit the
// session did not ask for fails the pending command and ends polling.
func (s *Supervisor) route() {
	defer close(s.loopDone)

	for msg := range s.helper.Messages() {
		switch m := msg.(type) {
		case protocol.Response:
			s.dispatcher.Resolve(m)
		case protocol.Telemetry:
			// telemetry flows supervisor -> helper only
			s.logger.Debug("unexpected telemetry from helper, dropped")
		}
	}

	s.producer.Stop()
	if s.helper.State() == process.StateCrashed {
		s.dispatcher.Fail(ErrHelperCrashed)
	} else {
		s.dispatcher.Fail(ErrSessionClosed)
	}
}

// Execute sends a command and blocks until its response, importing the
// subtitle on success. Rejected with ErrBusy while another command is in
// flight.
func (s *Supervisor) Execute(ctx context.Context, cmd protocol.Command) (*Result, error) {
	p, err := s.dispatcher.Send(shortuuid.New(), cmd)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, p)
}

// Submit sends a command and completes it in the background, for callers
// that must not block (the HTTP layer). The busy check stays synchronous.
func (s *Supervisor) Submit(cmd protocol.Command) (string, error) {
	p, err := s.dispatcher.Send(shortuuid.New(), cmd)
	if err != nil {
		return "", err
	}
	go func() {
		_, _ = s.finish(context.Background(), p)
	}()
	return p.ID, nil
}

func (s *Supervisor) finish(ctx context.Context, p *Pending) (*Result, error) {
	resp, err := s.dispatcher.Await(ctx, p)

	r := &Result{
		ID:         p.ID,
		Command:    p.Cmd.Cmd,
		Success:    resp.Success,
		SrtPath:    resp.SrtPath,
		Error:      resp.Error,
		FinishedAt: time.Now(),
	}
	if err != nil && r.Error == "" {
		r.Error = err.Error()
	}

	if err == nil && resp.Success && resp.SrtPath != "" {
		if ierr := s.importer.Import(resp.SrtPath); ierr != nil {
			r.ImportError = ierr.Error()
			s.logger.Error("command %s: import failed: %v", p.ID, ierr)
		} else {
			r.Imported = true
		}
	}

	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
	return r, err
}

// TestPlace asks the helper for a short throwaway subtitle and places it
func (s *Supervisor) TestPlace(ctx context.Context) (*Result, error) {
	return s.Execute(ctx, protocol.Command{Cmd: protocol.CmdTestPlace})
}

// Transcribe runs a transcription of the given media file. Duration is
// unbounded; liveness is observable through the telemetry stream instead of
// a timeout.
func (s *Supervisor) Transcribe(ctx context.Context, opts TranscribeOptions) (*Result, error) {
	cmd, err := s.NewTranscribeCommand(opts)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, cmd)
}

// Cancel requests expedited resolution of the in-flight command. No-op when
// nothing is in flight.
func (s *Supervisor) Cancel() error {
	return s.dispatcher.Cancel()
}

// NewTranscribeCommand validates options and applies configured defaults
func (s *Supervisor) NewTranscribeCommand(opts TranscribeOptions) (protocol.Command, error) {
	if opts.Input == "" {
		return protocol.Command{}, ErrNoInput
	}
	if err := validateInput(opts.Input); err != nil {
		return protocol.Command{}, err
	}

	cmd := protocol.Command{
		Cmd:      protocol.CmdTranscribe,
		Input:    opts.Input,
		Model:    opts.Model,
		Device:   opts.Device,
		Language: opts.Language,
	}
	if cmd.Model == "" {
		cmd.Model = s.defaultModel
	}
	if cmd.Device == "" {
		cmd.Device = s.defaultDevice
	}
	if cmd.Language == nil {
		cmd.Language = s.defaultLanguage
	}
	return cmd, nil
}

// LastResult returns the most recent command outcome, or nil
func (s *Supervisor) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Report returns recent raw protocol lines from the helper
func (s *Supervisor) Report() []process.Line {
	return s.helper.Log()
}

// Status snapshots the session
func (s *Supervisor) Status() Status {
	st := Status{
		Session:   s.session,
		Helper:    s.helper.Status(),
		Telemetry: s.producer.Stats(),
	}

	s.mu.Lock()
	st.StartedAt = s.startedAt
	st.LastResult = s.last
	s.mu.Unlock()

	if id, kind, issued, ok := s.dispatcher.Pending(); ok {
		st.Pending = &PendingInfo{ID: id, Command: kind, IssuedAt: issued}
	}
	return st
}

// 允许送入转写的媒体类型
var mediaExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".mxf": true, ".avi": true,
	".wav": true, ".mp3": true, ".m4a": true, ".aac": true, ".flac": true,
}

func validateInput(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("input file %s is a directory", path)
	}
	if !mediaExts[strings.ToLower(filepath.Ext(path))] {
		return fmt.Errorf("%s: %w", path, ErrUnsupportedInput)
	}
	return nil
}
