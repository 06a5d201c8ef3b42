package lxd

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rokaw/multipass/internal/image"
	"github.com/rokaw/multipass/internal/vm"
)

// operationMetadata is the metadata shape of an operation resource.
type operationMetadata struct {
	ID         string `json:"id"`
	Class      string `json:"class"`
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	Err        string `json:"err"`
	Metadata   struct {
		DownloadProgress string `json:"download_progress"`
	} `json:"metadata"`
}

// operationFromResponse extracts a background task handle from a
// mutation response. The second result is false when the daemon
// answered synchronously.
func operationFromResponse(resp *response) (*operationMetadata, bool) {
	if resp.StatusCode != statusOperationCreated {
		return nil, false
	}

	var op operationMetadata
	if err := resp.metadataInto(&op); err != nil || op.Class != "task" {
		return nil, false
	}

	return &op, true
}

// taskPoller drives a submitted asynchronous operation to its terminal
// status.
//
// Polling is the only completion signal: the daemon pushes nothing.
// A not-found while polling means the operation record was already
// discarded after finishing and counts as success.
//
// TODO: the daemon also exposes an events websocket; waiting on it
// would replace the fixed-interval sleep.
type taskPoller struct {
	r      requester
	logger *zap.Logger

	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func newTaskPoller(r requester, logger *zap.Logger) *taskPoller {
	return &taskPoller{
		r:        r,
		logger:   logger,
		interval: time.Second,
		sleep:    sleepContext,
	}
}

// poll polls the operation at opURL until it reaches a terminal
// status, sleeping a fixed interval between polls.
func (p *taskPoller) poll(ctx context.Context, opURL string) error {
	return p.pollWithProgress(ctx, opURL, nil)
}

// pollWithProgress is poll plus download-progress reporting. Before
// each sleep the monitor receives the image phase and the percentage
// parsed from the operation's status text; if it returns false a
// best-effort cancellation is issued against the operation and an
// AbortedError is returned.
func (p *taskPoller) pollWithProgress(ctx context.Context, opURL string, monitor image.ProgressMonitor) error {
	for {
		resp, err := p.r.request(ctx, "GET", opURL, nil)
		if errors.Is(err, ErrNotFound) {
			// The record is gone: finished operations are
			// garbage-collected by the daemon.
			return nil
		}
		if err != nil {
			return err
		}

		if resp.ErrorCode != 0 {
			return fmt.Errorf("operation failed: %s", resp.Error)
		}

		var op operationMetadata
		if err := resp.metadataInto(&op); err != nil {
			return err
		}

		switch {
		case op.StatusCode == statusSuccess:
			return nil
		case op.StatusCode >= statusFailure:
			return fmt.Errorf("operation failed: %s", operationFailure(&op))
		}

		if monitor != nil {
			percent := parsePercent(op.Metadata.DownloadProgress)
			if !monitor(image.ProgressPhaseImage, percent) {
				if _, err := p.r.request(ctx, "DELETE", opURL, nil); err != nil {
					p.logger.Warn("failed to cancel operation", zap.String("url", opURL), zap.Error(err))
				}
				return &vm.AbortedError{Reason: "download aborted"}
			}
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

// wait blocks on the operation's server-side wait endpoint instead of
// polling. The terminal status still has to be checked afterwards.
func (p *taskPoller) wait(ctx context.Context, opURL string) error {
	resp, err := p.r.request(ctx, "GET", opURL+"/wait", nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if resp.ErrorCode != 0 {
		return fmt.Errorf("operation failed: %s", resp.Error)
	}

	var op operationMetadata
	if err := resp.metadataInto(&op); err != nil {
		return err
	}
	if op.StatusCode >= statusFailure {
		return fmt.Errorf("operation failed: %s", operationFailure(&op))
	}

	return nil
}

func operationFailure(op *operationMetadata) string {
	if op.Err != "" {
		return op.Err
	}
	return op.Status
}

var percentRE = regexp.MustCompile(`\s([0-9]{1,3})%`)

// parsePercent extracts the percentage from free-form progress text
// like "Downloading: 42% (1.2MB/s)". Returns image.UnknownProgress
// when no percent token is present.
func parsePercent(progress string) int {
	match := percentRE.FindStringSubmatch(progress)
	if match == nil {
		return image.UnknownProgress
	}

	n, err := strconv.Atoi(match[1])
	if err != nil {
		return image.UnknownProgress
	}
	return n
}

// sleepContext sleeps for d unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
