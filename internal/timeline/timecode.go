// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package timeline

import (
	"fmt"
	"math"
)

// FramesToTimecode converts an absolute frame count to the editor's native
// HH:MM:SS:FF form. Non-positive fps or negative frames yield 00:00:00:00.
func FramesToTimecode(frames int, fps float64) string {
	if fps <= 0 || frames < 0 {
		return "00:00:00:00"
	}
	f := float64(frames)
	hours := int(f / (3600 * fps))
	minutes := int(math.Mod(f, 3600*fps) / (60 * fps))
	seconds := int(math.Mod(f, 60*fps) / fps)
	ff := int(math.Mod(f, fps))
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, ff)
}
