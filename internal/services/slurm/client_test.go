package slurm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"papermill/internal/services"
)

type stubExecutor struct {
	stdout string
	stderr string
	err    error

	binary string
	args   []string
}

func (s *stubExecutor) Run(_ context.Context, binary string, args []string) (string, string, error) {
	s.binary = binary
	s.args = args
	return s.stdout, s.stderr, s.err
}

func newTestClient(t *testing.T, exec Executor) *CommandClient {
	t.Helper()
	client, err := New("sbatch-ocr", "sacct", "scancel", 30, WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestSubmitParsesJobHandle(t *testing.T) {
	exec := &stubExecutor{stdout: "Queue depth ok\nSubmitted batch job 48213\n"}
	client := newTestClient(t, exec)

	jobID, err := client.Submit(context.Background(), "/data/03_ocr_processing/batch_0001")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != "48213" {
		t.Fatalf("jobID = %q, want 48213", jobID)
	}
	if exec.binary != "sbatch-ocr" {
		t.Fatalf("binary = %q", exec.binary)
	}
	if len(exec.args) != 2 || exec.args[0] != "--pdf-dir" {
		t.Fatalf("args = %v", exec.args)
	}
}

func TestSubmitUnparseableOutput(t *testing.T) {
	client := newTestClient(t, &stubExecutor{stdout: "queue is full, try later\n"})
	_, err := client.Submit(context.Background(), "/data/batch_0002")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
}

func TestSubmitFailureCarriesStderr(t *testing.T) {
	exec := &stubExecutor{stderr: "sbatch: error: invalid partition", err: errors.New("exit status 1")}
	client := newTestClient(t, exec)

	_, err := client.Submit(context.Background(), "/data/batch_0003")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	if !strings.Contains(err.Error(), "invalid partition") {
		t.Fatalf("error should carry stderr diagnostics: %v", err)
	}
}

func TestStatusQueriesJobState(t *testing.T) {
	cases := []struct {
		output string
		want   JobState
	}{
		{"COMPLETED\nCOMPLETED\n", StateCompleted},
		{"FAILED\n", StateFailed},
		{"CANCELLED by 1001\n", StateFailed},
		{"TIMEOUT\n", StateFailed},
		{"RUNNING\n", StateRunning},
		{"PENDING\n", StatePending},
		{"", StateUnknown},
		{"REQUEUED\n", StateUnknown},
	}
	for _, tc := range cases {
		exec := &stubExecutor{stdout: tc.output}
		client := newTestClient(t, exec)
		state, err := client.Status(context.Background(), "48213")
		if err != nil {
			t.Fatalf("Status(%q): %v", tc.output, err)
		}
		if state != tc.want {
			t.Errorf("Status(%q) = %v, want %v", tc.output, state, tc.want)
		}
		if len(exec.args) == 0 || exec.args[0] != "-j" || exec.args[1] != "48213" {
			t.Errorf("sacct args = %v", exec.args)
		}
	}
}

func TestStatusTimeout(t *testing.T) {
	exec := &stubExecutor{err: context.DeadlineExceeded}
	client := newTestClient(t, exec)
	_, err := client.Status(context.Background(), "48213")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestCancelWithoutCommandConfigured(t *testing.T) {
	client, err := New("sbatch-ocr", "sacct", "", 30, WithExecutor(&stubExecutor{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Cancel(context.Background(), "48213"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestNewRequiresCommands(t *testing.T) {
	if _, err := New("", "sacct", "scancel", 30); err == nil {
		t.Fatal("expected error for empty submit command")
	}
	if _, err := New("sbatch-ocr", " ", "scancel", 30); err == nil {
		t.Fatal("expected error for empty status command")
	}
}
