// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package srt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoCues means the file parsed but contains no timed cues
var ErrNoCues = errors.New("subtitle file contains no cues")

// Stats summarizes an SRT file
type Stats struct {
	Cues       int           `json:"cues"`
	FirstStart time.Duration `json:"-"`
	LastEnd    time.Duration `json:"-"`
}

// Span is the covered duration from first cue start to last cue end
func (s *Stats) Span() time.Duration {
	if s.Cues == 0 {
		return 0
	}
	return s.LastEnd - s.FirstStart
}

// 支持逗号和点号两种毫秒分隔符，helper 输出使用逗号
var timingRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// ParseFile opens and parses an SRT file
func ParseFile(path string) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse scans SRT content and counts cues. A cue is a timing line with at
// least one following non-empty text line. Index numbers are not required;
// malformed blocks are skipped rather than failing the whole file.
func Parse(r io.Reader) (*Stats, error) {
	stats := &Stats{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	pendingEnd := time.Duration(-1)
	pendingStart := time.Duration(-1)
	first := true

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		m := timingRe.FindStringSubmatch(line)
		if m != nil {
			pendingStart = timingToDuration(m[1], m[2], m[3], m[4])
			pendingEnd = timingToDuration(m[5], m[6], m[7], m[8])
			continue
		}

		// 定时行之后的第一条非空行即字幕文本
		if pendingEnd >= 0 && line != "" {
			stats.Cues++
			if first || pendingStart < stats.FirstStart {
				stats.FirstStart = pendingStart
				first = false
			}
			if pendingEnd > stats.LastEnd {
				stats.LastEnd = pendingEnd
			}
			pendingEnd = -1
			pendingStart = -1
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan subtitle: %w", err)
	}

	if stats.Cues == 0 {
		return nil, ErrNoCues
	}
	return stats, nil
}

func timingToDuration(hh, mm, ss, ms string) time.Duration {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	frac, _ := strconv.Atoi(ms)
	for i := len(ms); i < 3; i++ {
		frac *= 10
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(frac)*time.Millisecond
}
