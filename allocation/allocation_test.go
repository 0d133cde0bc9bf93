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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	return Request{Duration: "01:00:00", Partition: "gpu", GPUs: 1, User: "spapa01", Gateway: "snellius01"}
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		modify   func(r *Request)
		wantErrs int
	}{
		{"Valid", func(r *Request) {}, 0},
		{"ValidWithDays", func(r *Request) { r.Duration = "1-12:00:00" }, 0},
		{"BadDurationFormat", func(r *Request) { r.Duration = "1h" }, 1},
		{"ZeroDuration", func(r *Request) { r.Duration = "00:00:00" }, 1},
		{"DurationOverflow", func(r *Request) { r.Duration = "300000-00:00:00" }, 1},
		{"DurationOverflowNegative", func(r *Request) { r.Duration = "200000-00:00:00" }, 1},
		{"DurationOutOfRange", func(r *Request) { r.Duration = "99999999999999999999-00:00:00" }, 1},
		{"ZeroGPUs", func(r *Request) { r.GPUs = 0 }, 1},
		{"EmptyPartition", func(r *Request) { r.Partition = " " }, 1},
		{"AllWrong", func(r *Request) { *r = Request{} }, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.modify(&r)
			err := r.Validate()
			if tt.wantErrs == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, IsValidationError(err))
			assert.Len(t, err.(*ValidationError).Errors(), tt.wantErrs)
		})
	}
}

func TestPollOptionsValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, PollOptions{Interval: time.Second, MaxWait: time.Minute}.Validate())
	err := PollOptions{Interval: 0, MaxWait: -1, MaxEmptyNodePolls: -1}.Validate()
	require.True(t, IsValidationError(err))
	assert.Len(t, err.(*ValidationError).Errors(), 3)
}

func TestNewValidationErrorFlattens(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewValidationError())
	assert.Nil(t, NewValidationError(nil, nil))
	inner := validRequest()
	inner.GPUs = 0
	err := NewValidationError(inner.Validate(), PollOptions{}.Validate())
	require.True(t, IsValidationError(err))
	assert.Len(t, err.(*ValidationError).Errors(), 3)
	assert.Contains(t, err.Error(), "gpu count must be at least 1")
}

func TestParseWallTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"01:00:00", time.Hour, false},
		{"00:30:15", 30*time.Minute + 15*time.Second, false},
		{"120:00:00", 120 * time.Hour, false},
		{"2-01:00:00", 49 * time.Hour, false},
		{"1:00", 0, true},
		{"01:60:00", 0, true},
		{"", 0, true},
		{"-01:00:00", 0, true},
		{"106751-23:47:16", 106751*24*time.Hour + 23*time.Hour + 47*time.Minute + 16*time.Second, false},
		{"106751-23:47:17", 0, true},
		{"200000-00:00:00", 0, true},
		{"300000-00:00:00", 0, true},
		{"99999999999999999999-00:00:00", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseWallTime(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatWallTime(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "01:00:00", FormatWallTime(time.Hour))
	assert.Equal(t, "2-01:00:05", FormatWallTime(49*time.Hour+5*time.Second))
}

func TestJobState(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "RUNNING", JobRunning.String())
	assert.Equal(t, "JobState(42)", JobState(42).String())
	for _, s := range []JobState{JobCompleted, JobFailed, JobCancelled, JobGone} {
		assert.True(t, s.IsTerminal(), s.String())
	}
	for _, s := range []JobState{JobUnknown, JobPending, JobRunning} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}
