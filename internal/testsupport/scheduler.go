package testsupport

import (
	"context"
	"fmt"
	"sync"

	"papermill/internal/services/slurm"
)

// FakeScheduler is an in-memory slurm.Client for worker tests. Submissions
// receive sequential job handles; states are scripted per handle.
type FakeScheduler struct {
	mu         sync.Mutex
	next       int
	SubmitErrs []error
	Submitted  []string
	States     map[string]slurm.JobState
	Cancelled  []string
}

// NewFakeScheduler returns a scheduler whose jobs report running by default.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{States: make(map[string]slurm.JobState)}
}

func (f *FakeScheduler) Submit(_ context.Context, contentDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.SubmitErrs) > 0 {
		err := f.SubmitErrs[0]
		f.SubmitErrs = f.SubmitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.next++
	jobID := fmt.Sprintf("%d", 9000+f.next)
	f.Submitted = append(f.Submitted, contentDir)
	if _, ok := f.States[jobID]; !ok {
		f.States[jobID] = slurm.StateRunning
	}
	return jobID, nil
}

func (f *FakeScheduler) Status(_ context.Context, jobID string) (slurm.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state, ok := f.States[jobID]; ok {
		return state, nil
	}
	return slurm.StateUnknown, nil
}

func (f *FakeScheduler) Cancel(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cancelled = append(f.Cancelled, jobID)
	return nil
}

// SetState scripts the reported state for a job handle.
func (f *FakeScheduler) SetState(jobID string, state slurm.JobState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.States[jobID] = state
}
