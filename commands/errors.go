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

package commands

import (
	"fmt"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/sshconfig"
)

// Process exit codes, one per failure category
const (
	ExitOK               = 0
	ExitOther            = 1
	ExitValidation       = 2
	ExitSubmission       = 3
	ExitAllocationFailed = 4
	ExitTimeout          = 5
	ExitParse            = 6
	ExitPersistence      = 7
)

// ExitCode returns the process exit code corresponding to err
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if allocation.IsValidationError(err) {
		return ExitValidation
	}
	if allocation.IsSubmissionError(err) {
		return ExitSubmission
	}
	if _, ok := allocation.IsFailedError(err); ok {
		return ExitAllocationFailed
	}
	if _, ok := allocation.IsTimeoutError(err); ok {
		return ExitTimeout
	}
	if _, ok := sshconfig.IsParseError(err); ok {
		return ExitParse
	}
	if _, ok := sshconfig.IsPersistenceError(err); ok {
		return ExitPersistence
	}
	return ExitOther
}

// ErrorMessage returns the message displayed for err, telling whether a job
// may still hold resources and how to cancel it
func ErrorMessage(err error) string {
	msg := err.Error()
	if fe, ok := allocation.IsFailedError(err); ok {
		if fe.MayStillBeActive {
			return msg + "\n" + cancelHint(fe.JobID)
		}
		return msg + "\nThe job does not hold resources anymore."
	}
	if te, ok := allocation.IsTimeoutError(err); ok {
		return msg + "\n" + cancelHint(te.JobID)
	}
	return msg
}

func cancelHint(jobID string) string {
	return fmt.Sprintf("The job may still be consuming resources, cancel it with: %s cancel %s", RootCmd.Name(), jobID)
}
