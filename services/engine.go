package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"stars-host/config"

	"go.uber.org/zap"
)

// EngineMode selects which of the engine's two entry points to run.
type EngineMode string

const (
	ModeActivate EngineMode = "activate"
	ModeGenerate EngineMode = "generate"
)

// HostFileName is the host state file the engine is generated from.
const HostFileName = "game.hst"

const (
	engineWaitDelay = 5 * time.Second
	engineLogName   = "engine.log"
	maxLoggedOutput = 4 << 10
)

// EngineResult describes a finished engine run.
type EngineResult struct {
	ExitCode int
	PID      int
	Duration time.Duration
	Output   []byte
}

// EngineInvoker runs the external turn generator against a workspace.
type EngineInvoker struct {
	command   []string
	env       []string
	timeout   time.Duration
	pathStyle string
	log       *zap.Logger
}

func NewEngineInvoker(cfg config.EngineConfig, log *zap.Logger) *EngineInvoker {
	return &EngineInvoker{
		command:   cfg.Command,
		env:       cfg.Env,
		timeout:   cfg.Timeout,
		pathStyle: cfg.PathStyle,
		log:       log,
	}
}

// PathPrefix rewrites a workspace directory into the form the engine
// expects, trailing separator included.
func (e *EngineInvoker) PathPrefix(workspace string) string {
	if e.pathStyle == config.PathStyleWine {
		p := strings.ReplaceAll(workspace, "/", `\`)
		p = strings.TrimRight(p, `\`)
		return `Z:` + p + `\`
	}
	return strings.TrimRight(workspace, string(os.PathSeparator)) + string(os.PathSeparator)
}

func (e *EngineInvoker) args(mode EngineMode, workspace string) ([]string, error) {
	prefix := e.PathPrefix(workspace)
	args := append([]string(nil), e.command[1:]...)
	switch mode {
	case ModeActivate:
		return append(args, "-a", prefix+ConfigFileName), nil
	case ModeGenerate:
		return append(args, "-g", prefix+HostFileName), nil
	}
	return nil, fmt.Errorf("unknown engine mode %q", mode)
}

// Run starts the engine in workspace and waits for it. The engine runs in
// its own process group; when the timeout passes or ctx is cancelled the
// whole group is killed. A non-zero exit status is reported, not returned
// as an error: the files left behind decide whether the run worked.
func (e *EngineInvoker) Run(ctx context.Context, mode EngineMode, workspace string) (*EngineResult, error) {
	if len(e.command) == 0 {
		return nil, errors.New("engine command is not configured")
	}
	args, err := e.args(mode, workspace)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// A file rather than a pipe: helpers holding the pipe open would keep
	// Wait from returning after the engine itself exits.
	logPath := filepath.Join(workspace, engineLogName)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, &WorkspaceError{Path: logPath, Err: err}
	}
	defer logFile.Close()

	cmd := exec.CommandContext(runCtx, e.command[0], args...)
	cmd.Dir = workspace
	cmd.Env = append(os.Environ(), e.env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = engineWaitDelay

	log := e.log.With(zap.String("mode", string(mode)), zap.String("workspace", workspace))
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	pid := cmd.Process.Pid
	log.Info("🚀 engine started", zap.Int("pid", pid), zap.Strings("args", args))

	waitErr := cmd.Wait()
	// Helpers the engine forked may outlive it; the group goes either way.
	reapProcessGroup(pid)

	output, _ := os.ReadFile(logPath)
	res := &EngineResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		PID:      pid,
		Duration: time.Since(start),
		Output:   output,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		if processAlive(pid) {
			log.Error("engine survived kill", zap.Int("pid", pid))
		}
		log.Error("⏰ engine timed out", zap.Int("pid", pid), zap.Duration("timeout", e.timeout))
		return res, &EngineTimeoutError{Timeout: e.timeout, PID: pid}
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("engine run cancelled: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("engine wait failed: %w", waitErr)
	}
	if res.ExitCode != 0 {
		log.Warn("engine exited with non-zero status",
			zap.Int("pid", pid),
			zap.Int("exit_code", res.ExitCode),
			zap.ByteString("output", tail(res.Output, maxLoggedOutput)))
	} else {
		log.Info("engine finished", zap.Int("pid", pid), zap.Duration("duration", res.Duration))
	}
	return res, nil
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
