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

import "context"

// MockScheduler allows to mock a Scheduler
type MockScheduler struct {
	MockSubmit func(Request) (Handle, error)
	MockStatus func(Handle) (JobStatus, error)
	MockCancel func(Handle) error
}

// Submit to mock a job submission
func (s *MockScheduler) Submit(ctx context.Context, req Request) (Handle, error) {
	if s.MockSubmit != nil {
		return s.MockSubmit(req)
	}
	return Handle{JobID: "1"}, nil
}

// Status to mock a job status query
func (s *MockScheduler) Status(ctx context.Context, h Handle) (JobStatus, error) {
	if s.MockStatus != nil {
		return s.MockStatus(h)
	}
	return JobStatus{State: JobPending}, nil
}

// Cancel to mock a job cancellation
func (s *MockScheduler) Cancel(ctx context.Context, h Handle) error {
	if s.MockCancel != nil {
		return s.MockCancel(h)
	}
	return nil
}

// SequenceStatus returns a MockStatus function replaying statuses in order.
// The last status is repeated once the sequence is exhausted.
func SequenceStatus(statuses ...JobStatus) func(Handle) (JobStatus, error) {
	var i int
	return func(Handle) (JobStatus, error) {
		s := statuses[i]
		if i < len(statuses)-1 {
			i++
		}
		return s, nil
	}
}
