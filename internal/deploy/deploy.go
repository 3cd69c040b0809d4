package deploy

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"zeitachse/internal/config"
	appLog "zeitachse/internal/log"
)

// ErrUnknownService is returned before any process is spawned when a
// requested unit is not on the configured allow-list.
var ErrUnknownService = errors.New("service not in deploy allow-list")

// ErrNoPullScript is returned when the pull endpoint is used without a
// configured script.
var ErrNoPullScript = errors.New("no pull script configured")

// defaultLogLines matches the dashboard's journal view depth.
const defaultLogLines = 120

// commandTimeout bounds every spawned process.
const commandTimeout = 60 * time.Second

// Result carries the outcome of one spawned command: combined output plus
// whether the process exited zero.
type Result struct {
	OK     bool   `json:"ok"`
	Output string `json:"output"`
}

// Runner shells out to service control and log retrieval. It is deliberately
// thin: no retries, no state, output returned verbatim for the operator.
type Runner struct {
	cfg config.DeployConfig
}

// NewRunner builds a Runner from the deploy section of the app config.
func NewRunner(cfg config.DeployConfig) *Runner {
	return &Runner{cfg: cfg}
}

// Services returns the configured unit allow-list.
func (r *Runner) Services() []string {
	return r.cfg.Services
}

func (r *Runner) allowed(service string) bool {
	for _, s := range r.cfg.Services {
		if s == service {
			return true
		}
	}
	return false
}

// StartService triggers `systemctl start <unit>` for an allow-listed unit.
func (r *Runner) StartService(ctx context.Context, service string) (Result, error) {
	if !r.allowed(service) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return r.run(ctx, r.cfg.SystemctlBin, "start", service)
}

// Logs fetches the last n journal lines for an allow-listed unit.
func (r *Runner) Logs(ctx context.Context, service string, n int) (Result, error) {
	if !r.allowed(service) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	if n <= 0 {
		n = defaultLogLines
	}
	return r.run(ctx, r.cfg.JournalctlBin, "-u", service, "-n", strconv.Itoa(n), "--no-pager")
}

// PullData runs the data repo pull script for the given branch ("dev" or
// "main" in practice; the script itself decides what a branch name means).
func (r *Runner) PullData(ctx context.Context, branch string) (Result, error) {
	if r.cfg.PullScript == "" {
		return Result{}, ErrNoPullScript
	}
	if branch == "" {
		branch = "main"
	}
	return r.run(ctx, r.cfg.PullScript, branch)
}

func (r *Runner) run(ctx context.Context, bin string, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()

	res := Result{
		OK:     err == nil,
		Output: strings.TrimSpace(string(out)),
	}

	if err != nil {
		// A non-zero exit is an operator-visible outcome, not a transport
		// failure; only process-spawn problems bubble up as errors.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			appLog.Warn("deploy command failed", "bin", bin, "args", strings.Join(args, " "), "exit", exitErr.ExitCode())
			return res, nil
		}
		appLog.Error("deploy command could not run", err, "bin", bin)
		return res, err
	}

	appLog.Info("deploy command ok", "bin", bin, "args", strings.Join(args, " "))
	return res, nil
}
