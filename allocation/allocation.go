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

// Package allocation submits GPU allocation requests to a batch scheduler and
// waits for the scheduler to grant a node.
package allocation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Request fully specifies a scheduler submission
type Request struct {
	// Duration is the wall-clock limit in [D-]HH:MM:SS format
	Duration string
	// Partition is the resource pool name
	Partition string
	// GPUs is the number of requested GPUs
	GPUs int
	// User is the cluster user name submitting the job
	User string
	// Gateway is the login host used to reach the cluster
	Gateway string
}

// Validate checks every field of the request and returns a *ValidationError
// listing all problems found
func (r Request) Validate() error {
	var errs []error
	if d, err := ParseWallTime(r.Duration); err != nil {
		errs = append(errs, err)
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("duration %q must be greater than zero", r.Duration))
	}
	if strings.TrimSpace(r.Partition) == "" {
		errs = append(errs, fmt.Errorf("partition must not be empty"))
	}
	if r.GPUs < 1 {
		errs = append(errs, fmt.Errorf("gpu count must be at least 1, got %d", r.GPUs))
	}
	if strings.TrimSpace(r.User) == "" {
		errs = append(errs, fmt.Errorf("user must not be empty"))
	}
	if strings.TrimSpace(r.Gateway) == "" {
		errs = append(errs, fmt.Errorf("gateway host must not be empty"))
	}
	return NewValidationError(errs...)
}

// Handle identifies a submitted job
type Handle struct {
	JobID string
}

// Resolved is a job that runs on a known node
type Resolved struct {
	JobID    string
	NodeName string
}

// JobState is the state of a job as seen by the allocation resolver
type JobState int

const (
	// JobUnknown is a state the resolver does not know about, it keeps waiting
	JobUnknown JobState = iota
	// JobPending is a queued job or a job about to start
	JobPending
	// JobRunning is a running job
	JobRunning
	// JobCompleted is a job that already ended
	JobCompleted
	// JobFailed is a job that ended in error (failure, node failure, time limit...)
	JobFailed
	// JobCancelled is a cancelled job
	JobCancelled
	// JobGone is a job the scheduler has no record of anymore
	JobGone
)

var jobStateNames = map[JobState]string{
	JobUnknown:   "UNKNOWN",
	JobPending:   "PENDING",
	JobRunning:   "RUNNING",
	JobCompleted: "COMPLETED",
	JobFailed:    "FAILED",
	JobCancelled: "CANCELLED",
	JobGone:      "GONE",
}

func (s JobState) String() string {
	if n, ok := jobStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("JobState(%d)", int(s))
}

// IsTerminal returns true if a job in this state will never run
func (s JobState) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled, JobGone:
		return true
	}
	return false
}

// JobStatus is the result of a scheduler status query
type JobStatus struct {
	State JobState
	// NodeName is the node granted to the job, empty until the job runs
	NodeName string
	// Reason is the scheduler's raw state and reason, used in messages only
	Reason string
}

// Scheduler is the batch scheduler interface consumed by the Resolver
type Scheduler interface {
	// Submit submits an allocation request and returns the job handle
	Submit(ctx context.Context, req Request) (Handle, error)
	// Status queries the current status of a job
	Status(ctx context.Context, h Handle) (JobStatus, error)
	// Cancel cancels a job
	Cancel(ctx context.Context, h Handle) error
}

// PollOptions controls how Resolve waits for a job
type PollOptions struct {
	// Interval between two status queries
	Interval time.Duration
	// MaxWait is the overall waiting budget
	MaxWait time.Duration
	// MaxEmptyNodePolls is the number of consecutive polls reporting a running job
	// without node after which the allocation is considered failed.
	// 0 means the whole MaxWait budget is used.
	MaxEmptyNodePolls int
}

// Validate checks poll options
func (o PollOptions) Validate() error {
	var errs []error
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be greater than zero, got %s", o.Interval))
	}
	if o.MaxWait <= 0 {
		errs = append(errs, fmt.Errorf("max wait must be greater than zero, got %s", o.MaxWait))
	}
	if o.MaxEmptyNodePolls < 0 {
		errs = append(errs, fmt.Errorf("max empty node polls must not be negative, got %d", o.MaxEmptyNodePolls))
	}
	return NewValidationError(errs...)
}
