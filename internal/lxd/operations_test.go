package lxd

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/rokaw/multipass/internal/image"
	"github.com/rokaw/multipass/internal/vm"
)

const testOpURL = "http://lxd/1.0/operations/op-1"

// scriptedPoller returns a poller whose GETs against the operation URL
// walk through the given responses in order, and a pointer to the
// number of sleeps performed.
func scriptedPoller(t *testing.T, script []func() (*response, error)) (*taskPoller, *mockRequester, *int) {
	t.Helper()

	i := 0
	m := &mockRequester{}
	m.requestFunc = func(method, url string, body any) (*response, error) {
		if method != "GET" {
			return syncResponse(nil), nil
		}
		if i >= len(script) {
			t.Fatalf("unexpected extra poll #%d", i+1)
		}
		resp, err := script[i]()
		i++
		return resp, err
	}

	sleeps := 0
	p := newTaskPoller(m, zaptest.NewLogger(t))
	p.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}
	return p, m, &sleeps
}

func inProgress() (*response, error) {
	return operationResponse(statusRunning, ""), nil
}

func success() (*response, error) {
	return operationResponse(statusSuccess, ""), nil
}

func TestPollSuccess(t *testing.T) {
	p, _, sleeps := scriptedPoller(t, []func() (*response, error){inProgress, inProgress, success})

	if err := p.poll(context.Background(), testOpURL); err != nil {
		t.Fatalf("poll returned error: %v", err)
	}
	if *sleeps != 2 {
		t.Errorf("poll slept %d times, want 2", *sleeps)
	}
}

func TestPollNotFoundIsImplicitSuccess(t *testing.T) {
	p, _, sleeps := scriptedPoller(t, []func() (*response, error){
		inProgress,
		func() (*response, error) { return nil, notFound(testOpURL) },
	})

	if err := p.poll(context.Background(), testOpURL); err != nil {
		t.Fatalf("poll returned error: %v", err)
	}
	if *sleeps != 1 {
		t.Errorf("poll slept %d times, want 1", *sleeps)
	}
}

func TestPollErrorCodeIsTerminal(t *testing.T) {
	p, _, sleeps := scriptedPoller(t, []func() (*response, error){
		func() (*response, error) {
			return &response{Type: "sync", ErrorCode: 500, Error: "disk full"}, nil
		},
	})

	err := p.poll(context.Background(), testOpURL)
	if err == nil {
		t.Fatal("poll succeeded, want failure")
	}
	if *sleeps != 0 {
		t.Errorf("poll slept %d times after terminal failure, want 0", *sleeps)
	}
}

func TestPollFailedOperationIsTerminal(t *testing.T) {
	p, _, _ := scriptedPoller(t, []func() (*response, error){
		func() (*response, error) { return operationResponse(statusFailure, ""), nil },
	})

	if err := p.poll(context.Background(), testOpURL); err == nil {
		t.Fatal("poll succeeded for a failed operation")
	}
}

func TestPollWithProgressReportsPercent(t *testing.T) {
	p, _, _ := scriptedPoller(t, []func() (*response, error){
		func() (*response, error) {
			return operationResponse(statusRunning, "Downloading: 42% (1.2MB/s)"), nil
		},
		success,
	})

	var phases []string
	var percents []int
	monitor := func(phase string, percent int) bool {
		phases = append(phases, phase)
		percents = append(percents, percent)
		return true
	}

	if err := p.pollWithProgress(context.Background(), testOpURL, monitor); err != nil {
		t.Fatalf("pollWithProgress returned error: %v", err)
	}
	if len(percents) != 1 || percents[0] != 42 {
		t.Errorf("monitor saw percents %v, want [42]", percents)
	}
	if len(phases) != 1 || phases[0] != image.ProgressPhaseImage {
		t.Errorf("monitor saw phases %v, want [image]", phases)
	}
}

func TestPollWithProgressCancel(t *testing.T) {
	p, m, _ := scriptedPoller(t, []func() (*response, error){
		func() (*response, error) {
			return operationResponse(statusRunning, "Downloading: 10%"), nil
		},
	})

	monitor := func(string, int) bool { return false }

	err := p.pollWithProgress(context.Background(), testOpURL, monitor)
	var aborted *vm.AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("pollWithProgress error = %v, want AbortedError", err)
	}
	if got := m.callsMatching("DELETE", "/operations/op-1"); len(got) != 1 {
		t.Errorf("cancellation DELETEs = %d, want 1", len(got))
	}
}

func TestPollContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	m := &mockRequester{}
	m.requestFunc = func(method, url string, body any) (*response, error) {
		return operationResponse(statusRunning, ""), nil
	}
	p := newTaskPoller(m, zaptest.NewLogger(t))
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if err := p.poll(ctx, testOpURL); !errors.Is(err, context.Canceled) {
		t.Errorf("poll error = %v, want context.Canceled", err)
	}
}

func TestWait(t *testing.T) {
	tests := []struct {
		name    string
		resp    *response
		err     error
		wantErr bool
	}{
		{"success", operationResponse(statusSuccess, ""), nil, false},
		{"not found is implicit success", nil, notFound(testOpURL), false},
		{"error code", &response{ErrorCode: 400, Error: "boom"}, nil, true},
		{"failed operation", operationResponse(statusFailure, ""), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockRequester{}
			m.requestFunc = func(method, url string, body any) (*response, error) {
				if url != testOpURL+"/wait" {
					t.Errorf("wait hit %s, want %s/wait", url, testOpURL)
				}
				return tt.resp, tt.err
			}
			p := newTaskPoller(m, zaptest.NewLogger(t))

			err := p.wait(context.Background(), testOpURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("wait error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"Downloading: 42% (1.2MB/s)", 42},
		{"Retrieving image: 100%", 100},
		{"Downloading: 7%", 7},
		{"rootfs: 3% (12.5MB/s)", 3},
		{"no progress here", image.UnknownProgress},
		{"", image.UnknownProgress},
		{"42%", image.UnknownProgress}, // no leading separator
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parsePercent(tt.input); got != tt.want {
				t.Errorf("parsePercent(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestOperationFromResponse(t *testing.T) {
	if op, ok := operationFromResponse(taskResponse("op-9")); !ok || op.ID != "op-9" {
		t.Errorf("operationFromResponse(task) = %v, %v", op, ok)
	}
	if _, ok := operationFromResponse(syncResponse(nil)); ok {
		t.Error("synchronous response should not produce an operation")
	}
}
