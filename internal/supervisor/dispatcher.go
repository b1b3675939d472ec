// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZSC714725/resolvebridge/internal/logger"
	"github.com/ZSC714725/resolvebridge/internal/protocol"
)

// commandTransport is the slice of the helper the dispatcher needs
type commandTransport interface {
	WriteLine(line []byte) error
	BeginCommand() error
	BeginCancel() error
	EndCommand()
}

type result struct {
	resp protocol.Response
	err  error
}

// Pending is the one command currently awaiting a response
type Pending struct {
	ID       string
	Cmd      protocol.Command
	IssuedAt time.Time
	done     chan result
}

// Dispatcher sends commands and correlates the next response to the one
// outstanding command. At most one Pending exists at any time; a command
// issued while one is in flight is rejected with ErrBusy, never queued.
// Matching needs no correlation id: the single-in-flight invariant makes
// responses arrive strictly in send order.
type Dispatcher struct {
	transport commandTransport
	logger    logger.Logger

	mu      sync.Mutex
	pending *Pending
}

// NewDispatcher creates a dispatcher over the given transport
func NewDispatcher(transport commandTransport, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.New("dispatch")
	}
	return &Dispatcher{transport: transport, logger: log}
}

// Send reserves the in-flight slot and writes the command. The returned
// Pending is completed by Resolve or Fail; collect it with Await.
func (d *Dispatcher) Send(id string, cmd protocol.Command) (*Pending, error) {
	line, err := protocol.Encode(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	d.mu.Lock()
	if d.pending != nil {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	if err := d.transport.BeginCommand(); err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("helper cannot accept a command: %w", err)
	}
	p := &Pending{ID: id, Cmd: cmd, IssuedAt: time.Now(), done: make(chan result, 1)}
	d.pending = p
	d.mu.Unlock()

	if err := d.transport.WriteLine(line); err != nil {
		d.clear(p)
		d.transport.EndCommand()
		return nil, fmt.Errorf("write command: %w", err)
	}

	d.logger.Info("command %s sent: %s", p.ID, cmd.Cmd)
	return p, nil
}

// Await suspends until the pending command resolves, the helper crashes, or
// ctx is done. An abandoned command frees the slot; a response that arrives
// for it later is logged and dropped.
func (d *Dispatcher) Await(ctx context.Context, p *Pending) (protocol.Response, error) {
	select {
	case r := <-p.done:
		return r.resp, r.err
	case <-ctx.Done():
		if d.clear(p) {
			d.transport.EndCommand()
			d.logger.Info("command %s abandoned: %v", p.ID, ctx.Err())
		}
		return protocol.Response{}, ctx.Err()
	}
}

// Resolve consumes the pending command with the helper's response. A
// response with nothing in flight is dropped.
func (d *Dispatcher) Resolve(resp protocol.Response) {
	d.mu.Lock()
	p := d.pending
	d.pending = nil
	d.mu.Unlock()

	if p == nil {
		d.logger.Info("response with no command in flight, dropped")
		return
	}

	d.transport.EndCommand()
	d.logger.Info("command %s resolved after %s (success=%v)", p.ID, time.Since(p.IssuedAt).Round(time.Millisecond), resp.Success)
	p.done <- result{resp: resp}
}

// Fail resolves the pending command with success=false. Used when the
// helper exits mid-command; the helper will never answer it.
func (d *Dispatcher) Fail(err error) {
	d.mu.Lock()
	p := d.pending
	d.pending = nil
	d.mu.Unlock()

	if p == nil {
		return
	}

	d.logger.Error("command %s failed: %v", p.ID, err)
	p.done <- result{resp: protocol.Response{Success: false, Error: err.Error()}, err: err}
}

// Cancel asks the helper to expedite the outstanding command. Cancel has no
// response of its own: the in-flight command still resolves with exactly one
// response, conventionally {success:false,error:"cancel"}. With nothing in
// flight it is a no-op.
func (d *Dispatcher) Cancel() error {
	d.mu.Lock()
	p := d.pending
	d.mu.Unlock()

	if p == nil {
		d.logger.Info("cancel requested with no command in flight")
		return nil
	}

	if err := d.transport.BeginCancel(); err != nil {
		// the command resolved between the check and the transition
		d.logger.Info("cancel raced with completion of command %s", p.ID)
		return nil
	}

	line, err := protocol.Encode(protocol.Command{Cmd: protocol.CmdCancel})
	if err != nil {
		return fmt.Errorf("encode cancel: %w", err)
	}
	if err := d.transport.WriteLine(line); err != nil {
		return fmt.Errorf("write cancel: %w", err)
	}

	d.logger.Info("cancel sent for command %s", p.ID)
	return nil
}

// Pending returns the in-flight command, if any
func (d *Dispatcher) Pending() (id, kind string, issuedAt time.Time, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return "", "", time.Time{}, false
	}
	return d.pending.ID, d.pending.Cmd.Cmd, d.pending.IssuedAt, true
}

func (d *Dispatcher) clear(p *Pending) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == p {
		d.pending = nil
		return true
	}
	return false
}
