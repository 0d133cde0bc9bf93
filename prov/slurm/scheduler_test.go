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

package slurm

import (
	"context"
	"errors"
	"strings"
	"testing"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/helper/sshutil"
)

func splitCommand(t *testing.T, cmd string) []string {
	args, err := shellquote.Split(cmd)
	require.NoError(t, err, "command %q is not a valid shell command", cmd)
	return args
}

func TestSubmit(t *testing.T) {
	t.Parallel()
	var got []string
	s := NewScheduler(&sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			got = splitCommand(t, cmd)
			return "4567\n", nil
		},
	}, "", "")

	h, err := s.Submit(context.Background(), allocation.Request{Duration: "1:30:00", Partition: "gpu_a100", GPUs: 2, User: "spapa01", Gateway: "snellius01"})
	require.NoError(t, err)
	assert.Equal(t, "4567", h.JobID)
	assert.Equal(t, []string{
		"sbatch",
		"--parsable",
		"--job-name=snellius_gpu_node",
		"--partition=gpu_a100",
		"--time=01:30:00",
		"--gpus=2",
		"--wrap=sleep infinity",
	}, got)
}

func TestSubmitRejected(t *testing.T) {
	t.Parallel()
	s := NewScheduler(&sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			return "", &sshutil.CommandError{Command: cmd, Stderr: "sbatch: error: invalid partition specified: gpux", ExitStatus: 1}
		},
	}, "myjob", "sleep 3600")
	_, err := s.Submit(context.Background(), allocation.Request{Duration: "01:00:00", Partition: "gpux", GPUs: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid partition specified")

	_, err = s.Submit(context.Background(), allocation.Request{Duration: "one hour"})
	assert.Error(t, err)
}

func TestParseJobIDFromBatchOutput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{"Parsable", "4567\n", "4567", false},
		{"ParsableWithCluster", "4567;snellius\n", "4567", false},
		{"Default", "Submitted batch job 4567", "4567", false},
		{"WithLeadingInfo", "sbatch: info: job requests 18 CPUs\n4567\n", "4567", false},
		{"Empty", "", "", true},
		{"Malformed", "MALFORMED", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJobIDFromBatchOutput(tt.output)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseJobIDFromBatchOutput() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	invalidJobID := &sshutil.CommandError{Stderr: "slurm_load_jobs error: Invalid job id specified", ExitStatus: 1}
	tests := []struct {
		name    string
		squeue  func() (string, error)
		sacct   func() (string, error)
		want    allocation.JobStatus
		wantErr bool
	}{
		{"Pending", func() (string, error) { return "|PD|Resources\n", nil }, nil,
			allocation.JobStatus{State: allocation.JobPending, Reason: "PD: Resources"}, false},
		{"Running", func() (string, error) { return "tcn042|R|None\n", nil }, nil,
			allocation.JobStatus{State: allocation.JobRunning, NodeName: "tcn042", Reason: "R"}, false},
		{"RunningWithoutNode", func() (string, error) { return "|R|None\n", nil }, nil,
			allocation.JobStatus{State: allocation.JobRunning, Reason: "R"}, false},
		{"Cancelled", func() (string, error) { return "tcn042|CA|None\n", nil }, nil,
			allocation.JobStatus{State: allocation.JobCancelled, NodeName: "tcn042", Reason: "CA"}, false},
		{"Suspended", func() (string, error) { return "tcn042|S|None\n", nil }, nil,
			allocation.JobStatus{State: allocation.JobUnknown, NodeName: "tcn042", Reason: "S"}, false},
		{"Malformed", func() (string, error) { return "garbage\n", nil }, nil,
			allocation.JobStatus{}, true},
		{"TransportError", func() (string, error) { return "", errors.New("connection refused") }, nil,
			allocation.JobStatus{}, true},
		{"LeftQueueCompleted", func() (string, error) { return "", nil }, func() (string, error) { return "COMPLETED|tcn042|None\n", nil },
			allocation.JobStatus{State: allocation.JobCompleted, NodeName: "tcn042", Reason: "COMPLETED"}, false},
		{"PurgedCancelled", func() (string, error) { return "", invalidJobID }, func() (string, error) { return "CANCELLED by 1234|None assigned|None\n", nil },
			allocation.JobStatus{State: allocation.JobCancelled, Reason: "CANCELLED by 1234"}, false},
		{"PurgedNoAccounting", func() (string, error) { return "", invalidJobID }, func() (string, error) {
			return "", &sshutil.CommandError{Stderr: "sacct: error: Slurm accounting storage is disabled", ExitStatus: 1}
		}, allocation.JobStatus{State: allocation.JobGone, Reason: "job is neither queued nor in accounting"}, false},
		{"Gone", func() (string, error) { return "", nil }, func() (string, error) { return "", nil },
			allocation.JobStatus{State: allocation.JobGone, Reason: "job is neither queued nor in accounting"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(&sshutil.MockSSHClient{
				MockRunCommand: func(cmd string) (string, error) {
					args := splitCommand(t, cmd)
					switch args[0] {
					case "squeue":
						assert.Equal(t, []string{"squeue", "-j", "4567", "-o", "%N|%t|%r", "--noheader"}, args)
						return tt.squeue()
					case "sacct":
						require.NotNil(t, tt.sacct, "sacct should not be called")
						assert.Equal(t, []string{"sacct", "-j", "4567", "-X", "-n", "-P", "-o", "State,NodeList,Reason"}, args)
						return tt.sacct()
					}
					t.Fatalf("unexpected command %q", cmd)
					return "", nil
				},
			}, "", "")
			got, err := s.Status(context.Background(), allocation.Handle{JobID: "4567"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Status() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	var got string
	s := NewScheduler(&sshutil.MockSSHClient{
		MockRunCommand: func(cmd string) (string, error) {
			got = cmd
			return "", nil
		},
	}, "", "")
	require.NoError(t, s.Cancel(context.Background(), allocation.Handle{JobID: "4567"}))
	assert.Equal(t, "scancel 4567", strings.TrimSpace(got))
}
