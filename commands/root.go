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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/slurm-utils/gpunode/log"
)

// RootCmd is the root of slurm-utils commands tree
var RootCmd = &cobra.Command{
	Use:   "slurm-utils",
	Short: "Get a GPU node on a Slurm cluster and reach it with ssh",
	Long: `slurm-utils requests GPU allocations on a Slurm cluster through its login
host, waits for the scheduler to grant a node and keeps an ssh alias pointing
to that node, so that "ssh snellius_gpu_node" reaches it through the login host.
`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("debug") {
			log.SetDebug(true)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			fmt.Print(err)
		}
	},
}

func init() {
	setConfig()
	cobra.OnInitialize(initConfig)
}
