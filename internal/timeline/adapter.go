// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务
//
// Package timeline models the narrow slice of the editor scripting API the
// bridge needs: reading the current timeline state and placing subtitle
// files back into it.

package timeline

import "errors"

var ErrNoTimeline = errors.New("no timeline open")

// Marks are the user-set in/out range on a timeline, in frames. Absence
// means unset, not zero.
type Marks struct {
	In  int
	Out int
}

// Valid reports whether both marks are set and usable. 编辑器端把未设置
// 的标记省略，这里要求 in>=0 且 out>in。
func (m Marks) Valid() bool {
	return m.In >= 0 && m.Out > m.In
}

// Info is one read of the editor's timeline state
type Info struct {
	Name       string
	FPS        float64
	CurrentTC  string // the editor's native HH:MM:SS:FF form
	StartFrame int
	Marks      *Marks
}

// Adapter exposes the editor operations the bridge consumes. Info returns
// (nil, nil) when no timeline is open; that is normal editor state, not a
// failure.
type Adapter interface {
	Info() (*Info, error)
	EnsureSubtitleTrack(name string) error
	ImportSubtitle(path, track string, startFrame int) error
}
