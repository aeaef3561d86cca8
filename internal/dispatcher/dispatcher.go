// Package dispatcher implements the Provider Dispatcher: uniform
// invocation of opaque external agent executables in priority order, with
// per-provider circuit breaking (spec.md §4.5).
package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// Status classifies the outcome of a dispatch (spec.md §4.5 "Result").
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusBlocked Status = "BLOCKED"
)

// Usage is the optional token/timing accounting a provider may report.
type Usage struct {
	Tokens      int64
	WallSeconds float64
}

// Result is the uniform outcome of dispatch() regardless of provider.
type Result struct {
	ExitCode          int
	RawOutput         string
	ParsedText        string
	NewSessionID      string
	Usage             *Usage
	Status            Status
	ResourceExhausted bool
}

// DispatchTimeout is the per-dispatch ceiling; on timeout the child is
// terminated and the iteration reports FAILED (spec.md §4.5 invariant).
const DispatchTimeout = 30 * time.Minute

// sigtermGracePeriod bounds how long Dispatch waits after sending SIGTERM
// before exec.CommandContext escalates to SIGKILL (spec.md §5).
const sigtermGracePeriod = 10 * time.Second

// Provider is a single named, opaque agent executable.
type Provider struct {
	Name       string
	Executable string
	BaseArgs   []string
	// SessionFlag, when non-empty, is the CLI flag used to pass a session
	// id through to the provider executable (e.g. "--session").
	SessionFlag string
	// ModeFlag is the CLI flag used to pass an agent-mode hint.
	ModeFlag string
}

// Dispatcher holds providers in a static, operator-configured priority
// order and wraps each invocation in its own circuit breaker (spec.md
// §4.5 "Provider selection": no LLM-based routing, first available wins).
type Dispatcher struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
}

// New constructs a Dispatcher over providers in priority order.
func New(providers []Provider) *Dispatcher {
	d := &Dispatcher{providers: providers, breakers: map[string]*gobreaker.CircuitBreaker{}}
	for _, p := range providers {
		name := p.Name
		d.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return d
}

// errCircuitOpen is returned by Dispatch when every configured provider's
// circuit is open.
type errCircuitOpen struct{}

func (errCircuitOpen) Error() string { return "dispatcher: all providers unavailable (circuit open)" }

// Dispatch invokes the first available provider — the first whose
// circuit is not open — in priority order.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, workingDirectory, agentMode, sessionID string) (Result, string, error) {
	fi, err := os.Stat(workingDirectory)
	if err != nil || !fi.IsDir() {
		return Result{}, "", fmt.Errorf("dispatcher: working directory %q must exist and be a directory: %w", workingDirectory, err)
	}

	for _, p := range d.providers {
		breaker := d.breakers[p.Name]
		if breaker.State() == gobreaker.StateOpen {
			continue
		}
		res, err := d.dispatchOne(ctx, p, breaker, prompt, workingDirectory, agentMode, sessionID)
		return res, p.Name, err
	}
	return Result{}, "", errCircuitOpen{}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, p Provider, breaker *gobreaker.CircuitBreaker, prompt, workingDirectory, agentMode, sessionID string) (Result, error) {
	out, err := breaker.Execute(func() (interface{}, error) {
		return d.run(ctx, p, prompt, workingDirectory, agentMode, sessionID)
	})
	if err != nil {
		if res, ok := out.(Result); ok {
			return res, err
		}
		return Result{}, err
	}
	return out.(Result), nil
}

// run execs the provider's binary, feeding prompt on stdin and draining
// stdout/stderr concurrently, grounded on the teacher's command-execution
// tool pattern (v2/tool/commandtool/command.go) adapted from a bounded
// sandboxed command runner to an opaque agent-process invocation.
func (d *Dispatcher) run(ctx context.Context, p Provider, prompt, workingDirectory, agentMode, sessionID string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, DispatchTimeout)
	defer cancel()

	args := append([]string{}, p.BaseArgs...)
	if sessionID != "" && p.SessionFlag != "" {
		args = append(args, p.SessionFlag, sessionID)
	}
	if agentMode != "" && p.ModeFlag != "" {
		args = append(args, p.ModeFlag, agentMode)
	}

	cmd := exec.CommandContext(ctx, p.Executable, args...)
	cmd.Dir = workingDirectory
	cmd.Stdin = bytes.NewBufferString(prompt)
	// On timeout, terminate with SIGTERM first (spec.md §5 "Cancellation &
	// timeout": "child terminated with SIGTERM"); exec.CommandContext's
	// default cancel sends SIGKILL, which skips that grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = sigtermGracePeriod

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("dispatcher: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("dispatcher: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("dispatcher: start %s: %w", p.Name, err)
	}

	var stdout, stderr bytes.Buffer
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := io.Copy(&stdout, stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		return err
	})
	_ = g.Wait()

	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return Result{Status: StatusFailed, RawOutput: stdout.String()}, fmt.Errorf("dispatcher: %s timed out after %s", p.Name, DispatchTimeout)
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{Status: StatusFailed, RawOutput: stdout.String()}, fmt.Errorf("dispatcher: %s: %w", p.Name, waitErr)
		}
	}

	resourceExhausted := looksResourceExhausted(stderr.String()) || looksResourceExhausted(stdout.String())

	status := StatusSuccess
	if exitCode != 0 {
		status = StatusFailed
	}

	result := Result{
		ExitCode:          exitCode,
		RawOutput:         stdout.String(),
		ParsedText:        stdout.String(),
		Status:            status,
		ResourceExhausted: resourceExhausted,
	}
	if exitCode != 0 {
		return result, fmt.Errorf("dispatcher: %s exited %d: %s", p.Name, exitCode, stderr.String())
	}
	return result, nil
}

// resourceExhaustedSubstrings is the configurable predicate default for
// detecting provider quota exhaustion (DESIGN.md Open Question 1).
var resourceExhaustedSubstrings = []string{"quota", "rate limit", "429"}

func looksResourceExhausted(s string) bool {
	lower := strings.ToLower(s)
	for _, sub := range resourceExhaustedSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// SetResourceExhaustedSubstrings overrides the default detection
// substrings, honoring the operator-configurable predicate decided in
// DESIGN.md's Open Questions resolution.
func SetResourceExhaustedSubstrings(substrings []string) {
	if len(substrings) == 0 {
		return
	}
	resourceExhaustedSubstrings = substrings
}
