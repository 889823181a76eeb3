package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"minewatch/internal/api"
	"minewatch/internal/config"
	"minewatch/internal/daemonrun"
	"minewatch/internal/ipc"
	"minewatch/internal/mines"
	"minewatch/internal/preflight"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// Launch starts a detached `minewatch daemon` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless its socket already answers.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	resp, err := client.Status()
	if err != nil {
		return StartResult{}, err
	}
	if !resp.Status.Running {
		return StartResult{}, fmt.Errorf("daemon socket is up but the daemon is not running; check %s", resp.Status.LogPath)
	}
	state := StartStateAlreadyRunning
	if launched {
		state = StartStateStarted
	}
	return StartResult{State: state, Launched: launched, PID: resp.Status.PID}, nil
}

// WaitForShutdown waits for daemon IPC to disappear.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}
		_ = client.Close()
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, resp.Status.PID, nil
}

// ReadPID returns the pid recorded in the daemon pid file, or 0 when absent.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q is malformed", pidPath)
	}
	return pid, nil
}

// SignalProcess sends sig to pid, refusing to signal the current process.
func SignalProcess(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid daemon pid %d", pid)
	}
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

// ForceKillProcess sends SIGKILL to the daemon and removes its pid, lock,
// and socket files.
func ForceKillProcess(cfg *config.Config, fallbackPID int) (int, error) {
	pidPath := daemonrun.PIDPath(cfg)
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if err := SignalProcess(pid, syscall.SIGKILL); err != nil {
		return 0, err
	}
	for _, path := range []string{pidPath, cfg.LockPath(), cfg.SocketPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pid, fmt.Errorf("remove %q: %w", path, err)
		}
	}
	return pid, nil
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	ForcedKill bool
	PID        int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate sends SIGTERM to the daemon and force-kills it if the
// socket is still answering after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	if cfg == nil {
		return StopResult{}, errors.New("configuration not available")
	}
	alive, pid, err := ProcessInfo(socketPath)
	if err != nil && !alive {
		return StopResult{}, err
	}
	if !alive {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == 0 {
		if pid, err = ReadPID(daemonrun.PIDPath(cfg)); err != nil {
			return StopResult{}, err
		}
	}
	result := StopResult{PID: pid}
	if err := SignalProcess(pid, syscall.SIGTERM); err != nil {
		return result, err
	}
	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}

	killed, err := ForceKillProcess(cfg, pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// StatusLine is one labelled row of status output. Severity is one of ok,
// info, warn, or error.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Snapshot combines live daemon status with local configuration checks.
type Snapshot struct {
	Daemon     api.DaemonStatus `json:"daemon"`
	APIAddress string           `json:"apiAddress,omitempty"`
	System     []StatusLine     `json:"system"`
	Checks     []StatusLine     `json:"checks"`
}

// BuildStatusSnapshot collects daemon status over IPC and falls back to
// configuration values when the daemon is not reachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snap.Daemon = resp.Status
			snap.APIAddress = resp.APIAddress
		}
		_ = client.Close()
	}

	if !snap.Daemon.Running {
		snap.Daemon.DatabasePath = cfg.DatabasePath()
		snap.Daemon.LockFilePath = cfg.LockPath()
		snap.Daemon.LogPath = cfg.LogPath()
		snap.Daemon.Provider = cfg.Provider.Kind
		if catalog, loadErr := mines.LoadCatalog(cfg.Paths.MinesFile); loadErr == nil {
			snap.Daemon.Mines = catalog.Len()
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap.System = BuildSystemChecks(cfg, snap.Daemon, snap.APIAddress)
	snap.Checks = PreflightLines(preflight.RunAll(checkCtx, cfg))
	return snap, nil
}

// BuildSystemChecks resolves status lines that combine runtime state and config.
func BuildSystemChecks(cfg *config.Config, status api.DaemonStatus, apiAddress string) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	if status.Running {
		lines = append(lines, StatusLine{Label: "Minewatch", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		lines = append(lines, StatusLine{Label: "Tasks", Severity: taskSeverity(status.Workflow), Detail: taskDetail(status.Workflow)})
	} else {
		lines = append(lines, StatusLine{Label: "Minewatch", Severity: "warn", Detail: "Not running (run `minewatch start`)"})
	}

	switch {
	case apiAddress != "":
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "ok", Detail: apiAddress})
	case strings.TrimSpace(cfg.Paths.APIBind) == "":
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "info", Detail: "Disabled"})
	default:
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "info", Detail: cfg.Paths.APIBind + " (inactive)"})
	}

	lines = append(lines, StatusLine{Label: "Mines", Severity: mineSeverity(status.Mines), Detail: strconv.Itoa(status.Mines) + " in catalog"})
	lines = append(lines, StatusLine{Label: "Provider", Severity: "info", Detail: providerDetail(cfg)})

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "warn", Detail: "Not configured"})
	}
	return lines
}

// PreflightLines converts preflight results to status lines.
func PreflightLines(results []preflight.Result) []StatusLine {
	lines := make([]StatusLine, 0, len(results))
	for _, r := range results {
		severity := "error"
		if r.Passed {
			severity = "ok"
		}
		lines = append(lines, StatusLine{Label: r.Name, Severity: severity, Detail: r.Detail})
	}
	return lines
}

func taskSeverity(wf api.WorkflowStatus) string {
	if wf.LastError != "" {
		return "warn"
	}
	return "ok"
}

func taskDetail(wf api.WorkflowStatus) string {
	total := 0
	for _, n := range wf.Tasks {
		total += n
	}
	detail := fmt.Sprintf("%d tracked", total)
	if wf.LastError != "" {
		detail += "; last error: " + wf.LastError
	}
	return detail
}

func mineSeverity(n int) string {
	if n == 0 {
		return "error"
	}
	return "ok"
}

func providerDetail(cfg *config.Config) string {
	switch cfg.Provider.Kind {
	case config.ProviderHTTP:
		return "Sampling service at " + cfg.Provider.BaseURL
	default:
		return "CSV samples in " + cfg.Paths.CSVDir
	}
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
