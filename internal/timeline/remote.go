// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package timeline

import "sync"

// ImportRequest is one queued subtitle placement for the editor-side shim
// to apply. CreateTrack is set when the track was not known to exist yet.
type ImportRequest struct {
	Seq         uint64 `json:"seq"`
	Path        string `json:"path"`
	Track       string `json:"track"`
	CreateTrack bool   `json:"create_track"`
	StartFrame  int    `json:"start_frame"`
}

// Remote is an Adapter fed over the control API. The editor-side shim pushes
// the current timeline state in and polls queued import requests out; the
// bridge itself never talks to the editor scripting API directly.
type Remote struct {
	mu      sync.Mutex
	info    *Info
	tracks  map[string]bool
	pending []ImportRequest
	seq     uint64
}

// NewRemote creates an empty Remote adapter (no timeline open)
func NewRemote() *Remote {
	return &Remote{tracks: make(map[string]bool)}
}

// SetInfo replaces the pushed timeline state. 每次推送都是完整状态。
func (r *Remote) SetInfo(info *Info) {
	r.mu.Lock()
	r.info = info
	r.mu.Unlock()
}

// ClearInfo marks the timeline as closed
func (r *Remote) ClearInfo() {
	r.mu.Lock()
	r.info = nil
	r.mu.Unlock()
}

// Info returns a copy of the pushed state, or (nil, nil) when none
func (r *Remote) Info() (*Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info == nil {
		return nil, nil
	}
	cp := *r.info
	if r.info.Marks != nil {
		m := *r.info.Marks
		cp.Marks = &m
	}
	return &cp, nil
}

// EnsureSubtitleTrack records that the named track must exist before the
// next import is applied
func (r *Remote) EnsureSubtitleTrack(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info == nil {
		return ErrNoTimeline
	}
	r.tracks[name] = true
	return nil
}

// ImportSubtitle queues a placement for the shim
func (r *Remote) ImportSubtitle(path, track string, startFrame int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info == nil {
		return ErrNoTimeline
	}
	r.seq++
	r.pending = append(r.pending, ImportRequest{
		Seq:         r.seq,
		Path:        path,
		Track:       track,
		CreateTrack: r.tracks[track],
		StartFrame:  startFrame,
	})
	return nil
}

// Imports returns queued requests with Seq > since
func (r *Remote) Imports(since uint64) []ImportRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ImportRequest
	for _, req := range r.pending {
		if req.Seq > since {
			out = append(out, req)
		}
	}
	return out
}

// Ack drops queued requests with Seq <= upto, typically after the shim has
// applied them inside the editor
func (r *Remote) Ack(upto uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.pending[:0]
	for _, req := range r.pending {
		if req.Seq > upto {
			kept = append(kept, req)
		}
	}
	r.pending = kept
}
