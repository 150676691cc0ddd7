package main

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface, wrapping the same daemon started
// interactively so `-service install` and a foreground run share one path.
type program struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
	configFlag string
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("paperminderd service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)
	if p.svcLogger != nil {
		p.svcLogger.Info("paperminderd service running")
	}
	if err := runServer(p.ctx, p.configFlag); err != nil && p.svcLogger != nil {
		p.svcLogger.Error(err)
	}
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("paperminderd service stop requested")
	}
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(30 * time.Second):
		if p.svcLogger != nil {
			p.svcLogger.Warning("paperminderd service stopped with timeout")
		}
	}
	return nil
}

func getServiceConfig() *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = os.Getenv("ProgramData") + "\\PaperMinder"
	case "darwin":
		workingDir = "/Library/Application Support/PaperMinder"
	default:
		workingDir = "/var/lib/paperminder"
	}

	return &service.Config{
		Name:             "PaperMinderServer",
		DisplayName:      "PaperMinder Server",
		Description:      "PaperMinder WebSocket hub coordinating web clients and thermal printers.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"-service", "run"},
		Option: service.KeyValue{
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",

			"StartType":        "automatic",
			"DelayedAutoStart": true,

			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}
