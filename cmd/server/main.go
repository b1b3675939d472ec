// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package main

import (
	"flag"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/resolvebridge/internal/api"
	"github.com/ZSC714725/resolvebridge/internal/config"
	"github.com/ZSC714725/resolvebridge/internal/logger"
	"github.com/ZSC714725/resolvebridge/internal/process"
	"github.com/ZSC714725/resolvebridge/internal/supervisor"
	"github.com/ZSC714725/resolvebridge/internal/timeline"
)

const helperName = "resolve_ai_helper"

var defaultHelperArgs = []string{"transcribe", "--show-ui", "--interactive"}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	bind := flag.String("bind", "", "Bind address (overrides config)")
	helperBin := flag.String("helper", "", "Helper binary path (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
	}

	bindAddr := cfg.Server.Bind
	if *bind != "" {
		bindAddr = *bind
	}
	helperPath := cfg.Helper.Path
	if *helperBin != "" {
		helperPath = *helperBin
	}
	if helperPath == "" {
		var err error
		helperPath, err = findHelper()
		if err != nil {
			log.Fatalf("Helper binary: %v", err)
		}
	}
	helperArgs := cfg.Helper.Args
	if len(helperArgs) == 0 {
		helperArgs = defaultHelperArgs
	}

	logger.Configure(logger.Config{Level: cfg.Log.Level})
	mainLog := logger.New("resolvebridge")

	helper, err := process.New(process.Config{
		Binary:    helperPath,
		Args:      helperArgs,
		QueueSize: cfg.Helper.QueueSize,
		LogLines:  cfg.Helper.LogLines,
		Logger:    logger.New("helper"),
	})
	if err != nil {
		log.Fatalf("Helper init: %v", err)
	}

	remote := timeline.NewRemote()

	var language *string
	if cfg.Transcribe.Language != "" {
		language = &cfg.Transcribe.Language
	}
	sup := supervisor.New(supervisor.Config{
		Helper:       helper,
		Adapter:      remote,
		PollInterval: time.Duration(cfg.Poll.IntervalMs) * time.Millisecond,
		GraceTimeout: time.Duration(cfg.Helper.GraceSeconds) * time.Second,
		TrackName:    cfg.Subtitle.Track,
		Model:        cfg.Transcribe.Model,
		Device:       cfg.Transcribe.Device,
		Language:     language,
	})
	if err := sup.Start(); err != nil {
		log.Fatalf("Helper start: %v", err)
	}

	handler := api.NewHandler(sup, remote)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), cors.Default())
	handler.RegisterRoutes(r)

	go func() {
		mainLog.Info("ResolveBridge listening on %s (session %s)", bindAddr, sup.Session())
		if err := r.Run(bindAddr); err != nil {
			log.Fatalf("Server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLog.Info("shutting down")
	if err := sup.Stop(); err != nil {
		mainLog.Error("stop: %v", err)
	}
}

// findHelper 在程序目录和 PATH 中查找 helper
func findHelper() (string, error) {
	name := helperName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}

	return exec.LookPath(name)
}
