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
	"strings"

	"github.com/pkg/errors"

	"github.com/slurm-utils/gpunode/allocation"
)

// compactStates maps squeue %t codes
var compactStates = map[string]allocation.JobState{
	"PD":  allocation.JobPending,
	"CF":  allocation.JobPending,
	"CG":  allocation.JobPending,
	"R":   allocation.JobRunning,
	"CD":  allocation.JobCompleted,
	"F":   allocation.JobFailed,
	"TO":  allocation.JobFailed,
	"NF":  allocation.JobFailed,
	"PR":  allocation.JobFailed,
	"BF":  allocation.JobFailed,
	"DL":  allocation.JobFailed,
	"OOM": allocation.JobFailed,
	"CA":  allocation.JobCancelled,
}

// longStates maps sacct and scontrol state names
var longStates = map[string]allocation.JobState{
	"PENDING":       allocation.JobPending,
	"CONFIGURING":   allocation.JobPending,
	"COMPLETING":    allocation.JobPending,
	"REQUEUED":      allocation.JobPending,
	"RUNNING":       allocation.JobRunning,
	"COMPLETED":     allocation.JobCompleted,
	"FAILED":        allocation.JobFailed,
	"TIMEOUT":       allocation.JobFailed,
	"NODE_FAIL":     allocation.JobFailed,
	"PREEMPTED":     allocation.JobFailed,
	"BOOT_FAIL":     allocation.JobFailed,
	"DEADLINE":      allocation.JobFailed,
	"OUT_OF_MEMORY": allocation.JobFailed,
	"CANCELLED":     allocation.JobCancelled,
}

func parseSqueueLine(line string) (allocation.JobStatus, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return allocation.JobStatus{}, errors.Errorf("unexpected squeue output %q", line)
	}
	code := strings.TrimSpace(parts[1])
	state, ok := compactStates[code]
	if !ok {
		state = allocation.JobUnknown
	}
	return allocation.JobStatus{State: state, NodeName: firstNode(parts[0]), Reason: reason(code, parts[2:])}, nil
}

func parseSacctLine(line string) (allocation.JobStatus, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return allocation.JobStatus{}, errors.Errorf("unexpected sacct output %q", line)
	}
	// "CANCELLED by 1234" or "CANCELLED+"
	raw := strings.TrimSpace(parts[0])
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return allocation.JobStatus{}, errors.Errorf("unexpected sacct output %q", line)
	}
	state, ok := longStates[strings.TrimRight(fields[0], "+")]
	if !ok {
		state = allocation.JobUnknown
	}
	return allocation.JobStatus{State: state, NodeName: firstNode(parts[1]), Reason: reason(raw, parts[2:])}, nil
}

func reason(state string, rest []string) string {
	if len(rest) == 0 {
		return state
	}
	r := strings.Trim(strings.TrimSpace(rest[0]), "()")
	if r == "" || r == "None" {
		return state
	}
	return state + ": " + r
}

// firstNode returns the first host of a Slurm node list such as "tcn[042-043],gcn1".
// An empty string is returned when no node is assigned yet.
func firstNode(nodeList string) string {
	nodeList = strings.TrimSpace(nodeList)
	switch nodeList {
	case "", "(null)", "None assigned", "n/a", "None":
		return ""
	}
	depth := 0
loop:
	for i, c := range nodeList {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				nodeList = nodeList[:i]
				break loop
			}
		}
	}
	open := strings.IndexByte(nodeList, '[')
	if open < 0 {
		return nodeList
	}
	end := strings.IndexByte(nodeList, ']')
	if end < open {
		return ""
	}
	first := strings.FieldsFunc(nodeList[open+1:end], func(r rune) bool { return r == ',' || r == '-' })
	if len(first) == 0 {
		return ""
	}
	return nodeList[:open] + first[0] + nodeList[end+1:]
}
