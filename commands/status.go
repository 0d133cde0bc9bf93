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
	"io"

	"github.com/spf13/cobra"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/helper/tabutil"
)

func init() {
	RootCmd.AddCommand(statusCmd)
}

type jobStatusOutput struct {
	JobID  string `json:"job_id" yaml:"job_id"`
	State  string `json:"state" yaml:"state"`
	Node   string `json:"node,omitempty" yaml:"node,omitempty"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of an allocation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		scheduler, closeFn, err := newScheduler(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, cancel := commandContext()
		defer cancel()
		status, err := allocation.NewResolver(scheduler).Status(ctx, allocation.Handle{JobID: args[0]})
		if err != nil {
			return err
		}
		out := jobStatusOutput{JobID: args[0], State: status.State.String(), Node: status.NodeName, Reason: status.Reason}
		return printOutput(cmd.OutOrStdout(), cfg.Output, out, func(w io.Writer) {
			table := tabutil.NewTable("Job", "State", "Node", "Reason")
			table.AddRow(out.JobID, getColoredJobState(status.State), out.Node, out.Reason)
			fmt.Fprintln(w, table.Render())
		})
	},
}
