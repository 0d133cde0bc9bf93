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

// Package slurm implements the allocation scheduler on top of the Slurm
// command line tools (sbatch, squeue, sacct, scancel) run over SSH on a
// cluster login node.
package slurm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/pkg/errors"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/helper/sshutil"
	"github.com/slurm-utils/gpunode/helper/stringutil"
	"github.com/slurm-utils/gpunode/log"
)

// DefaultJobName is the default Slurm job name
const DefaultJobName = "snellius_gpu_node"

// DefaultWorkload is the default job body, the wall-clock limit ends it
const DefaultWorkload = "sleep infinity"

// squeueFormat outputs nodes, compact state and reason
const squeueFormat = "%N|%t|%r"

const sacctFormat = "State,NodeList,Reason"

var jobIDRegexp = regexp.MustCompile(`^\d+$`)

// Scheduler submits and monitors jobs through the Slurm commands of a login node
type Scheduler struct {
	client   sshutil.Client
	jobName  string
	workload string
}

// NewScheduler returns a Scheduler running Slurm commands with client.
// Empty jobName and workload fall back to DefaultJobName and DefaultWorkload.
func NewScheduler(client sshutil.Client, jobName, workload string) *Scheduler {
	if jobName == "" {
		jobName = DefaultJobName
	}
	if workload == "" {
		workload = DefaultWorkload
	}
	return &Scheduler{client: client, jobName: jobName, workload: workload}
}

func (s *Scheduler) submitCommand(req allocation.Request) (string, error) {
	d, err := allocation.ParseWallTime(req.Duration)
	if err != nil {
		return "", err
	}
	return shellquote.Join(
		"sbatch",
		"--parsable",
		"--job-name="+s.jobName,
		"--partition="+req.Partition,
		"--time="+allocation.FormatWallTime(d),
		fmt.Sprintf("--gpus=%d", req.GPUs),
		"--wrap="+s.workload,
	), nil
}

// Submit runs sbatch and returns the new job id
func (s *Scheduler) Submit(ctx context.Context, req allocation.Request) (allocation.Handle, error) {
	cmd, err := s.submitCommand(req)
	if err != nil {
		return allocation.Handle{}, err
	}
	log.Printf("Submitting job: %s", cmd)
	out, err := s.client.RunCommand(ctx, cmd)
	if err != nil {
		return allocation.Handle{}, err
	}
	id, err := parseJobIDFromBatchOutput(out)
	if err != nil {
		return allocation.Handle{}, err
	}
	return allocation.Handle{JobID: id}, nil
}

// parseJobIDFromBatchOutput reads the job id from either "sbatch --parsable"
// output ("<id>[;<cluster>]") or the default "Submitted batch job <id>"
func parseJobIDFromBatchOutput(output string) (string, error) {
	line := stringutil.LastNonEmptyLine(output)
	var id string
	if strings.HasPrefix(line, "Submitted batch job") {
		id = stringutil.GetLastElement(line, " ")
	} else {
		id = strings.SplitN(line, ";", 2)[0]
	}
	if !jobIDRegexp.MatchString(id) {
		return "", errors.Errorf("unable to parse job id from sbatch output %q", output)
	}
	return id, nil
}

// Status queries squeue, and sacct once the job left the queue
func (s *Scheduler) Status(ctx context.Context, h allocation.Handle) (allocation.JobStatus, error) {
	cmd := shellquote.Join("squeue", "-j", h.JobID, "-o", squeueFormat, "--noheader")
	out, err := s.client.RunCommand(ctx, cmd)
	if err != nil {
		// squeue fails with "Invalid job id specified" once a job is purged from the controller
		ce, ok := sshutil.IsCommandError(err)
		if !ok || !strings.Contains(ce.Stderr, "Invalid job id") {
			return allocation.JobStatus{}, errors.Wrapf(err, "failed to query status of job %s", h.JobID)
		}
		out = ""
	}
	line := firstNonEmptyLine(out)
	if line == "" {
		log.Debugf("Job %s not found in queue, looking at accounting", h.JobID)
		return s.accountingStatus(ctx, h)
	}
	return parseSqueueLine(line)
}

func (s *Scheduler) accountingStatus(ctx context.Context, h allocation.Handle) (allocation.JobStatus, error) {
	cmd := shellquote.Join("sacct", "-j", h.JobID, "-X", "-n", "-P", "-o", sacctFormat)
	out, err := s.client.RunCommand(ctx, cmd)
	if err != nil {
		if _, ok := sshutil.IsCommandError(err); !ok {
			return allocation.JobStatus{}, errors.Wrapf(err, "failed to query accounting of job %s", h.JobID)
		}
		log.Debugf("sacct is not usable: %v", err)
		out = ""
	}
	line := firstNonEmptyLine(out)
	if line == "" {
		return allocation.JobStatus{State: allocation.JobGone, Reason: "job is neither queued nor in accounting"}, nil
	}
	return parseSacctLine(line)
}

// Cancel runs scancel
func (s *Scheduler) Cancel(ctx context.Context, h allocation.Handle) error {
	_, err := s.client.RunCommand(ctx, shellquote.Join("scancel", h.JobID))
	return err
}

func firstNonEmptyLine(out string) string {
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}
