// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package supervisor

import (
	"fmt"
	"os"

	"github.com/ZSC714725/resolvebridge/internal/logger"
	"github.com/ZSC714725/resolvebridge/internal/srt"
	"github.com/ZSC714725/resolvebridge/internal/timeline"
)

// DefaultTrackName is the subtitle track created when none exists
const DefaultTrackName = "AI Subtitles"

// Importer places a subtitle file into the timeline. Failures are reported
// to the caller and never end the supervising session.
type Importer struct {
	adapter timeline.Adapter
	track   string
	logger  logger.Logger
}

// NewImporter creates an importer placing onto the named track
func NewImporter(adapter timeline.Adapter, track string, log logger.Logger) *Importer {
	if track == "" {
		track = DefaultTrackName
	}
	if log == nil {
		log = logger.New("import")
	}
	return &Importer{adapter: adapter, track: track, logger: log}
}

// Import validates the subtitle file, ensures the subtitle track exists and
// places the content at the in-mark when one is set, otherwise at the
// timeline start. Re-invocation is an independent import; there is no
// replace or merge logic.
func (i *Importer) Import(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("subtitle file: %w", err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("subtitle file %s: %w", path, ErrEmptySubtitle)
	}

	stats, err := srt.ParseFile(path)
	if err != nil {
		return fmt.Errorf("subtitle file %s: %w", path, err)
	}

	info, err := i.adapter.Info()
	if err != nil {
		return fmt.Errorf("read timeline: %w", err)
	}
	if info == nil {
		return timeline.ErrNoTimeline
	}

	start := info.StartFrame
	if m := info.Marks; m != nil && m.Valid() {
		start = m.In
	}

	if err := i.adapter.EnsureSubtitleTrack(i.track); err != nil {
		return fmt.Errorf("ensure subtitle track: %w", err)
	}
	if err := i.adapter.ImportSubtitle(path, i.track, start); err != nil {
		return fmt.Errorf("import subtitle: %w", err)
	}

	i.logger.Info("subtitle %s (%d cues, %s) placed on track %q at frame %d",
		path, stats.Cues, stats.Span(), i.track, start)
	return nil
}
