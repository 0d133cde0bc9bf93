// Copyright 2019 Bull S.A.S. Atos Technologies - Bull, Rue Jean Jaures, B.P.68, 78340, Les Clayes-sous-Bois, France.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package allocation

import (
	"context"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/slurm-utils/gpunode/log"
)

// Resolver turns allocation requests into running jobs with a known node
type Resolver struct {
	scheduler Scheduler
}

// NewResolver returns a Resolver using the given scheduler
func NewResolver(s Scheduler) *Resolver {
	return &Resolver{scheduler: s}
}

// Submit validates and submits an allocation request.
//
// Scheduler failures are returned as *SubmissionError and are never retried.
func (r *Resolver) Submit(ctx context.Context, req Request) (Handle, error) {
	if err := req.Validate(); err != nil {
		return Handle{}, err
	}
	log.Debugf("Submitting allocation request %+v", req)
	h, err := r.scheduler.Submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return Handle{}, errors.Wrap(ctx.Err(), "job submission interrupted")
		}
		if IsSubmissionError(err) {
			return Handle{}, err
		}
		return Handle{}, &SubmissionError{Request: req, Err: err}
	}
	if h.JobID == "" {
		return Handle{}, &SubmissionError{Request: req, Err: errors.New("scheduler returned an empty job id")}
	}
	log.Printf("Job %s submitted", h.JobID)
	return h, nil
}

// Resolve waits for the job to run on a node.
//
// Status query errors are logged and retried on the next cycle. A terminal job
// state fails immediately with a *FailedError. When opts.MaxWait is exhausted a
// *TimeoutError is returned, or a *FailedError if the job was last seen running
// without node. The job is never cancelled by Resolve.
func (r *Resolver) Resolve(ctx context.Context, h Handle, opts PollOptions) (*Resolved, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	var last JobStatus
	var seen bool
	var emptyNodePolls int
	for {
		status, err := r.scheduler.Status(ctx, h)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, errors.Wrapf(ctx.Err(), "stopped waiting for job %s, the job is left in place", h.JobID)
		case err != nil:
			log.Printf("Failed to query status of job %s, will retry: %v", h.JobID, err)
		default:
			if !seen || status.State != last.State {
				log.Printf("Job %s is %s", h.JobID, status.State)
			}
			seen = true
			last = status
			switch {
			case status.State == JobRunning && status.NodeName != "":
				log.Printf("Job %s is running on node %s", h.JobID, status.NodeName)
				return &Resolved{JobID: h.JobID, NodeName: status.NodeName}, nil
			case status.State == JobRunning:
				emptyNodePolls++
				log.Debugf("Job %s reported running without node (%d consecutive time(s))", h.JobID, emptyNodePolls)
				if opts.MaxEmptyNodePolls > 0 && emptyNodePolls >= opts.MaxEmptyNodePolls {
					return nil, &FailedError{JobID: h.JobID, State: JobRunning, Reason: "running without node assignment", MayStillBeActive: true}
				}
			case status.State.IsTerminal():
				return nil, &FailedError{JobID: h.JobID, State: status.State, Reason: status.Reason}
			default:
				emptyNodePolls = 0
			}
		}

		elapsed := time.Since(start)
		if elapsed >= opts.MaxWait {
			if seen && last.State == JobRunning {
				return nil, &FailedError{JobID: h.JobID, State: JobRunning, Reason: "running without node assignment until the wait budget was exhausted", MayStillBeActive: true}
			}
			return nil, &TimeoutError{JobID: h.JobID, Waited: elapsed, LastState: last.State}
		}
		log.Debugf("Waiting for job %s (%s) since %s", h.JobID, last.State, humanize.Time(start))

		wait := opts.Interval
		if remaining := opts.MaxWait - elapsed; remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrapf(ctx.Err(), "stopped waiting for job %s, the job is left in place", h.JobID)
		case <-timer.C:
		}
	}
}

// Status performs a single status query
func (r *Resolver) Status(ctx context.Context, h Handle) (JobStatus, error) {
	if h.JobID == "" {
		return JobStatus{}, NewValidationError(errors.New("job id must not be empty"))
	}
	return r.scheduler.Status(ctx, h)
}

// Cancel cancels a job. It is never called implicitly by Submit or Resolve.
func (r *Resolver) Cancel(ctx context.Context, h Handle) error {
	if h.JobID == "" {
		return NewValidationError(errors.New("job id must not be empty"))
	}
	return errors.Wrapf(r.scheduler.Cancel(ctx, h), "failed to cancel job %s", h.JobID)
}
