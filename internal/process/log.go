// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package process

import (
	"container/ring"
	"sync"
	"time"
)

// ringLog keeps the most recent raw protocol lines read from the child,
// for the report endpoint and for liveness observation. It never influences
// control flow: there is deliberately no stale-kill, a transcription may run
// for hours without output.
type ringLog struct {
	mu       sync.RWMutex
	log      *ring.Ring
	size     int
	lastLine string
	lastRead time.Time
}

func (r *ringLog) init(size int) {
	if size <= 0 {
		size = 100
	}
	r.size = size
	r.log = ring.New(size)
}

func (r *ringLog) record(line string) {
	now := time.Now()
	r.mu.Lock()
	r.log.Value = Line{Timestamp: now, Data: line}
	r.log = r.log.Next()
	r.lastLine = line
	r.lastRead = now
	r.mu.Unlock()
}

func (r *ringLog) last() (string, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLine, r.lastRead
}

func (r *ringLog) lines() []Line {
	var out []Line
	r.mu.RLock()
	r.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(Line))
		}
	})
	r.mu.RUnlock()
	return out
}
