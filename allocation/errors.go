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
	"fmt"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ValidationError is returned when input parameters are malformed.
// It is always detected before any call to the scheduler.
type ValidationError struct {
	errs *multierror.Error
}

// NewValidationError aggregates errs into a *ValidationError.
// It returns nil if errs contains no error.
func NewValidationError(errs ...error) error {
	var merr *multierror.Error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if ve, ok := errors.Cause(err).(*ValidationError); ok {
			merr = multierror.Append(merr, ve.errs.Errors...)
			continue
		}
		merr = multierror.Append(merr, err)
	}
	if merr == nil {
		return nil
	}
	merr.ErrorFormat = func(es []error) string {
		msgs := make([]string, len(es))
		for i, e := range es {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return &ValidationError{errs: merr}
}

func (e *ValidationError) Error() string {
	return "invalid parameters: " + e.errs.Error()
}

// Errors returns the individual validation problems
func (e *ValidationError) Errors() []error {
	return e.errs.Errors
}

// SubmissionError is returned when the scheduler rejects a submission
type SubmissionError struct {
	Request Request
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("scheduler rejected the allocation of %d GPU(s) on partition %q for %s: %v", e.Request.GPUs, e.Request.Partition, e.Request.Duration, e.Err)
}

// FailedError is returned when a job will never provide a usable node
type FailedError struct {
	JobID  string
	State  JobState
	Reason string
	// MayStillBeActive is true when the job may still hold resources on the cluster
	MayStillBeActive bool
}

func (e *FailedError) Error() string {
	msg := fmt.Sprintf("allocation of job %s failed with state %s", e.JobID, e.State)
	if e.Reason != "" {
		msg += fmt.Sprintf(" (%s)", e.Reason)
	}
	if e.MayStillBeActive {
		msg += ", the job may still be consuming resources"
	}
	return msg
}

// TimeoutError is returned when the waiting budget is exhausted.
// The job is left in place and may still be consuming resources.
type TimeoutError struct {
	JobID     string
	Waited    time.Duration
	LastState JobState
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s not allocated after %s (last known state %s), the job is still queued or running", e.JobID, e.Waited.Round(time.Second), e.LastState)
}

// IsValidationError checks if an error is caused by a *ValidationError
func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

// IsSubmissionError checks if an error is caused by a *SubmissionError
func IsSubmissionError(err error) bool {
	_, ok := errors.Cause(err).(*SubmissionError)
	return ok
}

// IsFailedError checks if an error is caused by a *FailedError and returns it
func IsFailedError(err error) (*FailedError, bool) {
	fe, ok := errors.Cause(err).(*FailedError)
	return fe, ok
}

// IsTimeoutError checks if an error is caused by a *TimeoutError and returns it
func IsTimeoutError(err error) (*TimeoutError, bool) {
	te, ok := errors.Cause(err).(*TimeoutError)
	return te, ok
}
