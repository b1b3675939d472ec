// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Helper     HelperConfig     `yaml:"helper"`
	Poll       PollConfig       `yaml:"poll"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Subtitle   SubtitleConfig   `yaml:"subtitle"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// HelperConfig helper 进程配置
type HelperConfig struct {
	Path         string   `yaml:"path"` // empty: discover next to the binary, then PATH
	Args         []string `yaml:"args"`
	GraceSeconds uint64   `yaml:"grace_timeout_seconds"`
	QueueSize    int      `yaml:"queue_size"`
	LogLines     int      `yaml:"log_lines"`
}

// PollConfig 时间线轮询配置
type PollConfig struct {
	IntervalMs uint64 `yaml:"interval_ms"`
}

// TranscribeConfig transcribe 默认参数
type TranscribeConfig struct {
	Model    string `yaml:"model"`
	Device   string `yaml:"device"`
	Language string `yaml:"language"` // empty means auto-detect (null on the wire)
}

// SubtitleConfig 字幕轨道配置
type SubtitleConfig struct {
	Track string `yaml:"track"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server:     ServerConfig{Bind: ":8090"},
		Helper:     HelperConfig{GraceSeconds: 5, QueueSize: 64, LogLines: 100},
		Poll:       PollConfig{IntervalMs: 500},
		Transcribe: TranscribeConfig{Model: "base", Device: "auto"},
		Subtitle:   SubtitleConfig{Track: "AI Subtitles"},
		Log:        LogConfig{Level: "info"},
	}
}

// Load 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 填充空值
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = ":8090"
	}
	if cfg.Helper.GraceSeconds == 0 {
		cfg.Helper.GraceSeconds = 5
	}
	if cfg.Helper.QueueSize <= 0 {
		cfg.Helper.QueueSize = 64
	}
	if cfg.Helper.LogLines <= 0 {
		cfg.Helper.LogLines = 100
	}
	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = 500
	}
	if cfg.Transcribe.Model == "" {
		cfg.Transcribe.Model = "base"
	}
	if cfg.Transcribe.Device == "" {
		cfg.Transcribe.Device = "auto"
	}
	if cfg.Subtitle.Track == "" {
		cfg.Subtitle.Track = "AI Subtitles"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}
