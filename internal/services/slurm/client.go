package slurm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"papermill/internal/services"
)

// JobState is the scheduler-reported lifecycle of a submitted job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateUnknown   JobState = "unknown"
)

// Client is the scheduler interface the batcher and collector consume.
// A fake implementation drives tests without a real cluster.
type Client interface {
	Submit(ctx context.Context, contentDir string) (string, error)
	Status(ctx context.Context, jobID string) (JobState, error)
	Cancel(ctx context.Context, jobID string) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stdout, stderr string, err error)
}

// Option configures the client.
type Option func(*CommandClient)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *CommandClient) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// CommandClient drives a SLURM-style scheduler through its command-line
// tools: a submit script that prints "Submitted batch job <id>", sacct for
// status, scancel for cancellation.
type CommandClient struct {
	submitCommand string
	statusCommand string
	cancelCommand string
	timeout       time.Duration
	exec          Executor
}

// New constructs a scheduler client.
func New(submitCommand, statusCommand, cancelCommand string, timeoutSeconds int, opts ...Option) (*CommandClient, error) {
	submitCommand = strings.TrimSpace(submitCommand)
	if submitCommand == "" {
		return nil, errors.New("scheduler submit command required")
	}
	statusCommand = strings.TrimSpace(statusCommand)
	if statusCommand == "" {
		return nil, errors.New("scheduler status command required")
	}
	client := &CommandClient{
		submitCommand: submitCommand,
		statusCommand: statusCommand,
		cancelCommand: strings.TrimSpace(cancelCommand),
		timeout:       time.Duration(timeoutSeconds) * time.Second,
		exec:          commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Submit hands a batch content directory to the scheduler and returns the
// opaque job handle parsed from its output.
func (c *CommandClient) Submit(ctx context.Context, contentDir string) (string, error) {
	if strings.TrimSpace(contentDir) == "" {
		return "", services.Wrap(services.ErrValidation, "batch", "submit", "content directory required", nil)
	}
	stdout, stderr, err := c.run(ctx, c.submitCommand, []string{"--pdf-dir", contentDir})
	if err != nil {
		return "", c.classify(err, "submit", stderr)
	}
	jobID := parseJobID(stdout + "\n" + stderr)
	if jobID == "" {
		return "", services.Wrap(services.ErrExternalTool, "batch", "submit",
			"could not parse job handle from scheduler output", nil)
	}
	return jobID, nil
}

// Status queries the scheduler for a job's state.
func (c *CommandClient) Status(ctx context.Context, jobID string) (JobState, error) {
	if strings.TrimSpace(jobID) == "" {
		return StateUnknown, services.Wrap(services.ErrValidation, "collect", "status", "job handle required", nil)
	}
	args := []string{"-j", jobID, "--format=State", "--noheader", "--parsable2"}
	stdout, stderr, err := c.run(ctx, c.statusCommand, args)
	if err != nil {
		return StateUnknown, c.classify(err, "status", stderr)
	}
	return ParseState(stdout), nil
}

// Cancel asks the scheduler to stop a job. It is best-effort: the pipeline
// never requires cancellation for correctness.
func (c *CommandClient) Cancel(ctx context.Context, jobID string) error {
	if c.cancelCommand == "" {
		return services.Wrap(services.ErrConfiguration, "collect", "cancel", "no cancel command configured", nil)
	}
	_, stderr, err := c.run(ctx, c.cancelCommand, []string{jobID})
	if err != nil {
		return c.classify(err, "cancel", stderr)
	}
	return nil
}

func (c *CommandClient) run(ctx context.Context, binary string, args []string) (string, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.exec.Run(ctx, binary, args)
}

// classify wraps executor failures, capturing stderr as diagnostics.
func (c *CommandClient) classify(err error, operation, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "scheduler", operation, detail, err)
	}
	return services.Wrap(services.ErrExternalTool, "scheduler", operation, detail, err)
}

// parseJobID extracts the handle from "Submitted batch job <id>" output.
func parseJobID(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "Submitted batch job") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			return fields[len(fields)-1]
		}
	}
	return ""
}

// ParseState maps sacct state output to a JobState. Job arrays report one
// line per step; the first line carries the parent state.
func ParseState(output string) JobState {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return StateUnknown
	}
	state := strings.ToUpper(strings.TrimSpace(lines[0]))
	switch {
	case state == "":
		return StateUnknown
	case strings.Contains(state, "COMPLETED"):
		return StateCompleted
	case strings.Contains(state, "FAILED"),
		strings.Contains(state, "CANCELLED"),
		strings.Contains(state, "TIMEOUT"),
		strings.Contains(state, "OUT_OF_MEMORY"):
		return StateFailed
	case strings.Contains(state, "RUNNING"):
		return StateRunning
	case strings.Contains(state, "PENDING"):
		return StatePending
	default:
		return StateUnknown
	}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() != nil {
		err = fmt.Errorf("%s interrupted: %w", binary, ctx.Err())
	}
	return stdout.String(), stderr.String(), err
}
