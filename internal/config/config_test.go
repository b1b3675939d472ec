// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8090", cfg.Server.Bind)
	assert.Equal(t, uint64(5), cfg.Helper.GraceSeconds)
	assert.Equal(t, uint64(500), cfg.Poll.IntervalMs)
	assert.Equal(t, "base", cfg.Transcribe.Model)
	assert.Equal(t, "auto", cfg.Transcribe.Device)
	assert.Equal(t, "AI Subtitles", cfg.Subtitle.Track)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesAndBackfill(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  bind: ":9000"
helper:
  path: /opt/resolve_ai_helper
poll:
  interval_ms: 250
transcribe:
  model: large-v3
  language: en
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Bind)
	assert.Equal(t, "/opt/resolve_ai_helper", cfg.Helper.Path)
	assert.Equal(t, uint64(250), cfg.Poll.IntervalMs)
	assert.Equal(t, "large-v3", cfg.Transcribe.Model)
	assert.Equal(t, "en", cfg.Transcribe.Language)

	// 未设置的字段回填默认值
	assert.Equal(t, uint64(5), cfg.Helper.GraceSeconds)
	assert.Equal(t, "auto", cfg.Transcribe.Device)
	assert.Equal(t, "AI Subtitles", cfg.Subtitle.Track)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: valid"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
