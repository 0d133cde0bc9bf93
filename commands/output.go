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
	"encoding/json"
	"io"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/config"
)

// printOutput prints v in the given format, text uses the text function
func printOutput(w io.Writer, format string, v interface{}, text func(io.Writer)) error {
	var bSlice []byte
	var err error
	switch format {
	case config.OutputJSON:
		bSlice, err = json.MarshalIndent(v, "", "    ")
		bSlice = append(bSlice, '\n')
	case config.OutputYAML:
		bSlice, err = yaml.Marshal(v)
	default:
		text(w)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to format output")
	}
	_, err = w.Write(bSlice)
	return err
}

func getColoredJobState(state allocation.JobState) string {
	switch state {
	case allocation.JobFailed, allocation.JobCancelled, allocation.JobGone:
		return color.New(color.FgHiRed, color.Bold).SprintFunc()(state.String())
	case allocation.JobRunning:
		return color.New(color.FgHiGreen, color.Bold).SprintFunc()(state.String())
	case allocation.JobPending:
		return color.New(color.FgHiYellow, color.Bold).SprintFunc()(state.String())
	default:
		return color.New(color.Bold).SprintFunc()(state.String())
	}
}
