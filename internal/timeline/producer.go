// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package timeline

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZSC714725/resolvebridge/internal/logger"
	"github.com/ZSC714725/resolvebridge/internal/protocol"
)

// LineWriter is the write choke point the producer pushes telemetry through
type LineWriter interface {
	WriteLine(line []byte) error
}

// Producer pushes one timeline_state telemetry message per tick. Writes are
// fire-and-forget; if the previous tick's write has not returned yet, the
// tick is skipped rather than buffered, so a stalled child cannot grow a
// backlog.
type Producer struct {
	adapter  Adapter
	writer   LineWriter
	interval time.Duration
	logger   logger.Logger

	inflight atomic.Bool
	sent     atomic.Uint64
	skipped  atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Stats of the telemetry stream
type Stats struct {
	Sent    uint64
	Skipped uint64
}

// NewProducer creates a snapshot producer. Interval defaults to 500ms.
func NewProducer(adapter Adapter, writer LineWriter, interval time.Duration, log logger.Logger) *Producer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.New("timeline")
	}
	return &Producer{
		adapter:  adapter,
		writer:   writer,
		interval: interval,
		logger:   log,
		done:     make(chan struct{}),
	}
}

// Start begins ticking. Telemetry flows regardless of whether a command is
// in flight; live state display must not freeze during a long transcription.
func (p *Producer) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop halts the ticker and waits for an in-flight write to return. Safe to
// call more than once.
func (p *Producer) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// Stats returns cumulative sent/skipped tick counts
func (p *Producer) Stats() Stats {
	return Stats{Sent: p.sent.Load(), Skipped: p.skipped.Load()}
}

func (p *Producer) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Producer) tick() {
	if !p.inflight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Debug("telemetry tick skipped, previous write still in flight")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inflight.Store(false)
		p.emit()
	}()
}

func (p *Producer) emit() {
	info, err := p.adapter.Info()
	if err != nil {
		// absence of a timeline is normal editor state; emit nulls
		p.logger.Debug("timeline read: %v", err)
		info = nil
	}

	line, err := protocol.Encode(protocol.Telemetry{
		Event:    protocol.EventTimelineState,
		Timeline: Snapshot(info),
	})
	if err != nil {
		p.logger.Error("encode telemetry: %v", err)
		return
	}

	if err := p.writer.WriteLine(line); err != nil {
		p.logger.Debug("telemetry write: %v", err)
		return
	}
	p.sent.Add(1)
}

// Snapshot derives the wire payload from one timeline read. in_tc, out_tc
// and range_seconds are jointly present only when both marks are set.
func Snapshot(info *Info) protocol.TimelineState {
	if info == nil {
		return protocol.TimelineState{}
	}

	name := info.Name
	fps := fmt.Sprintf("%.2f", info.FPS)
	tc := info.CurrentTC
	st := protocol.TimelineState{Name: &name, FPS: &fps, TC: &tc}

	if m := info.Marks; m != nil && m.Valid() {
		in := FramesToTimecode(m.In, info.FPS)
		out := FramesToTimecode(m.Out, info.FPS)
		rng := float64(m.Out-m.In) / math.Max(info.FPS, 0.001)
		st.InTC = &in
		st.OutTC = &out
		st.RangeSeconds = &rng
	}
	return st
}
