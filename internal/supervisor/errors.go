// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package supervisor

import "errors"

var (
	ErrBusy             = errors.New("a command is already in flight")
	ErrHelperCrashed    = errors.New("helper process exited unexpectedly")
	ErrSessionClosed    = errors.New("session closed while command in flight")
	ErrEmptySubtitle    = errors.New("subtitle file is empty")
	ErrNoInput          = errors.New("transcribe requires an input file")
	ErrUnsupportedInput = errors.New("unsupported input media type")
)
