// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务
//
// Package process wraps exec.Cmd for controlling the helper process. It owns
// the child's stdin/stdout pipes: all writes go through one serialized choke
// point and one dedicated reader goroutine drains stdout into a message
// channel. The channel closes when the child exits.

package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ZSC714725/resolvebridge/internal/logger"
	"github.com/ZSC714725/resolvebridge/internal/protocol"
)

var (
	ErrNoBinary       = errors.New("no valid helper binary given")
	ErrNotRunning     = errors.New("helper is not running")
	ErrAlreadyStarted = errors.New("helper already started")
)

// Helper represents the supervised helper process
type Helper interface {
	Start() error
	Terminate(grace time.Duration) error

	// WriteLine writes one framed line to the child's stdin. Telemetry 和
	// 命令共用这一个入口，保证不会交错出残缺行。
	WriteLine(line []byte) error

	// Messages is the queue fed by the reader goroutine. It is closed when
	// the child exits; ParseErrors are logged and never appear here.
	Messages() <-chan protocol.Message

	// BeginCommand, BeginCancel and EndCommand drive the Busy/Cancelling
	// portion of the lifecycle on behalf of the dispatcher.
	BeginCommand() error
	BeginCancel() error
	EndCommand()

	State() State
	Status() Status
	IsRunning() bool
	Log() []Line
}

// State of the helper lifecycle
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateIdle       State = "idle"
	StateBusy       State = "busy"
	StateCancelling State = "cancelling"
	StateTerminated State = "terminated"
	StateCrashed    State = "crashed"
)

func (s State) String() string { return string(s) }

func (s State) IsRunning() bool {
	return s == StateStarting || s == StateIdle || s == StateBusy || s == StateCancelling
}

// IsTerminal reports whether the state is absorbing
func (s State) IsTerminal() bool {
	return s == StateTerminated || s == StateCrashed
}

// States cumulative transition counts
type States struct {
	Starting   uint64
	Idle       uint64
	Busy       uint64
	Cancelling uint64
	Terminated uint64
	Crashed    uint64
}

// Status of the helper process
type Status struct {
	State      State
	States     States
	Order      string
	Duration   time.Duration
	Time       time.Time
	PID        int32
	ExitCode   int
	LastLine   string
	LastReadAt time.Time
	CPU        float64
	Memory     uint64
}

// Line is a timestamped raw protocol line read from the child
type Line struct {
	Timestamp time.Time
	Data      string
}

// Config for a helper process
type Config struct {
	Binary        string
	Args          []string
	QueueSize     int // message channel buffer, default 64
	LogLines      int // raw line ring size, default 100
	OnExit        func()
	OnStateChange func(from, to string)
	Logger        logger.Logger
	Limiter       Limiter
}

type helper struct {
	binary string
	args   []string

	cmd    *exec.Cmd
	pid    int32
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex

	msgs   chan protocol.Message
	exited chan struct{}

	state struct {
		state    State
		time     time.Time
		states   States
		exitCode int
		lock     sync.Mutex
	}
	order struct {
		order string // "start" | "stop"
		lock  sync.Mutex
	}

	tail ringLog

	limits Limiter
	logger logger.Logger

	callbacks struct {
		onExit        func()
		onStateChange func(from, to string)
		lock          sync.Mutex
	}
}

// New creates a new helper process supervisor
func New(config Config) (Helper, error) {
	if len(config.Binary) == 0 {
		return nil, ErrNoBinary
	}

	queue := config.QueueSize
	if queue <= 0 {
		queue = 64
	}

	h := &helper{
		binary: config.Binary,
		args:   config.Args,
		msgs:   make(chan protocol.Message, queue),
		limits: config.Limiter,
		logger: config.Logger,
	}

	if h.limits == nil {
		h.limits = NewSysLimiter()
	}
	if h.logger == nil {
		h.logger = &nopLogger{}
	}

	h.tail.init(config.LogLines)
	h.order.order = "stop"
	h.initState(StateNotStarted)
	h.callbacks.onExit = config.OnExit
	h.callbacks.onStateChange = config.OnStateChange

	return h, nil
}

func (h *helper) initState(state State) {
	h.state.lock.Lock()
	defer h.state.lock.Unlock()
	h.state.state = state
	h.state.time = time.Now()
}

func (h *helper) setState(state State) error {
	h.state.lock.Lock()
	defer h.state.lock.Unlock()

	prev := h.state.state
	failed := false

	switch prev {
	case StateNotStarted:
		if state == StateStarting {
			h.state.states.Starting++
		} else {
			failed = true
		}
	case StateStarting:
		switch state {
		case StateIdle:
			h.state.states.Idle++
		case StateTerminated:
			h.state.states.Terminated++
		case StateCrashed:
			h.state.states.Crashed++
		default:
			failed = true
		}
	case StateIdle:
		switch state {
		case StateBusy:
			h.state.states.Busy++
		case StateTerminated:
			h.state.states.Terminated++
		case StateCrashed:
			h.state.states.Crashed++
		default:
			failed = true
		}
	case StateBusy:
		switch state {
		case StateIdle:
			h.state.states.Idle++
		case StateCancelling:
			h.state.states.Cancelling++
		case StateTerminated:
			h.state.states.Terminated++
		case StateCrashed:
			h.state.states.Crashed++
		default:
			failed = true
		}
	case StateCancelling:
		switch state {
		case StateIdle:
			h.state.states.Idle++
		case StateTerminated:
			h.state.states.Terminated++
		case StateCrashed:
			h.state.states.Crashed++
		default:
			failed = true
		}
	default:
		// terminated and crashed are absorbing
		failed = true
	}

	if failed {
		return fmt.Errorf("can't change from %s to %s", prev, state)
	}

	h.state.state = state
	h.state.time = time.Now()

	h.callbacks.lock.Lock()
	cb := h.callbacks.onStateChange
	h.callbacks.lock.Unlock()
	if cb != nil {
		go cb(prev.String(), state.String())
	}
	return nil
}

func (h *helper) State() State {
	h.state.lock.Lock()
	defer h.state.lock.Unlock()
	return h.state.state
}

func (h *helper) IsRunning() bool {
	return h.State().IsRunning()
}

func (h *helper) Status() Status {
	cpu, memory := h.limits.Current()

	h.state.lock.Lock()
	s := Status{
		State:    h.state.state,
		States:   h.state.states,
		Duration: time.Since(h.state.time),
		Time:     h.state.time,
		ExitCode: h.state.exitCode,
	}
	h.state.lock.Unlock()

	h.order.lock.Lock()
	s.Order = h.order.order
	h.order.lock.Unlock()

	s.PID = h.pid
	s.LastLine, s.LastReadAt = h.tail.last()
	s.CPU = cpu
	s.Memory = memory
	return s
}

func (h *helper) Messages() <-chan protocol.Message {
	return h.msgs
}

func (h *helper) Log() []Line {
	return h.tail.lines()
}

// Start launches the helper. A missing or unstartable executable is fatal
// and reported immediately; there is no retry.
func (h *helper) Start() error {
	h.order.lock.Lock()
	defer h.order.lock.Unlock()

	if h.order.order == "start" {
		return ErrAlreadyStarted
	}
	if h.State() != StateNotStarted {
		return ErrAlreadyStarted
	}

	binary, err := exec.LookPath(h.binary)
	if err != nil {
		return fmt.Errorf("invalid helper binary: %w", err)
	}

	if err := h.setState(StateStarting); err != nil {
		return err
	}

	h.cmd = exec.Command(binary, h.args...)

	h.stdin, err = h.cmd.StdinPipe()
	if err != nil {
		h.setState(StateCrashed)
		return fmt.Errorf("helper stdin: %w", err)
	}
	h.stdout, err = h.cmd.StdoutPipe()
	if err != nil {
		h.setState(StateCrashed)
		return fmt.Errorf("helper stdout: %w", err)
	}

	if err := h.cmd.Start(); err != nil {
		h.setState(StateCrashed)
		return fmt.Errorf("launch helper: %w", err)
	}

	h.order.order = "start"
	h.pid = int32(h.cmd.Process.Pid)
	h.exited = make(chan struct{})
	h.limits.Start(int(h.pid))
	h.setState(StateIdle)

	h.logger.Info("helper started (pid %d): %s", h.pid, binary)

	go h.reader()

	return nil
}

// WriteLine writes one already-framed line to the child's stdin. This is the
// single write choke point; the mutex guarantees two lines never interleave.
func (h *helper) WriteLine(line []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if !h.State().IsRunning() {
		return ErrNotRunning
	}
	if _, err := h.stdin.Write(line); err != nil {
		return fmt.Errorf("write to helper: %w", err)
	}
	return nil
}

// BeginCommand moves Idle -> Busy. Fails when a command is in flight or the
// helper is not idle.
func (h *helper) BeginCommand() error {
	return h.setState(StateBusy)
}

// BeginCancel moves Busy -> Cancelling
func (h *helper) BeginCancel() error {
	return h.setState(StateCancelling)
}

// EndCommand moves Busy/Cancelling back to Idle. Safe to call after the
// child died; the transition is simply refused then.
func (h *helper) EndCommand() {
	_ = h.setState(StateIdle)
}

// Terminate writes a shutdown command, waits up to grace for the child to
// exit, then force-kills. Calling it twice is a no-op the second time.
func (h *helper) Terminate(grace time.Duration) error {
	h.order.lock.Lock()
	if h.order.order == "stop" {
		h.order.lock.Unlock()
		return nil
	}
	h.order.order = "stop"
	h.order.lock.Unlock()

	if !h.IsRunning() {
		return nil
	}

	if line, err := protocol.Encode(protocol.Command{Cmd: protocol.CmdShutdown}); err == nil {
		if werr := h.WriteLine(line); werr != nil {
			h.logger.Debug("shutdown write: %v", werr)
		}
	}

	select {
	case <-h.exited:
		return nil
	case <-time.After(grace):
	}

	h.logger.Error("helper did not exit within %s, killing", grace)
	if err := h.cmd.Process.Kill(); err != nil {
		h.logger.Debug("kill helper: %v", err)
	}
	<-h.exited
	return nil
}

// reader drains the child's stdout line by line, decoding each into a
// Message and pushing it onto the queue. Malformed lines are logged and
// dropped. On EOF it hands over to the waiter.
func (h *helper) reader() {
	scanner := bufio.NewScanner(h.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLine)

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		h.tail.record(line)

		msg, err := protocol.Decode([]byte(line))
		if err != nil {
			h.logger.Debug("dropped line: %v", err)
			continue
		}
		h.msgs <- msg
	}

	h.waiter()
}

// waiter reaps the child and settles the final state. An exit while the
// order is still "start" (no shutdown was requested) means the helper died
// on us: state becomes Crashed.
func (h *helper) waiter() {
	err := h.cmd.Wait()

	exitCode := 0
	if err != nil {
		var exiterr *exec.ExitError
		if errors.As(err, &exiterr) {
			exitCode = exiterr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	h.state.lock.Lock()
	h.state.exitCode = exitCode
	h.state.lock.Unlock()

	h.limits.Stop()

	h.order.lock.Lock()
	planned := h.order.order == "stop"
	h.order.order = "stop"
	h.order.lock.Unlock()

	if planned {
		h.setState(StateTerminated)
		h.logger.Info("helper exited (code %d)", exitCode)
	} else {
		h.setState(StateCrashed)
		h.logger.Error("helper exited unexpectedly (code %d)", exitCode)
	}

	close(h.msgs)
	close(h.exited)

	h.callbacks.lock.Lock()
	cb := h.callbacks.onExit
	h.callbacks.lock.Unlock()
	if cb != nil {
		go cb()
	}
}

func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
