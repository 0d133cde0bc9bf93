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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/config"
	"github.com/slurm-utils/gpunode/gpunode"
	"github.com/slurm-utils/gpunode/log"
	"github.com/slurm-utils/gpunode/sshconfig"
)

func init() {
	RootCmd.AddCommand(requestCmd)
	f := requestCmd.Flags()
	f.StringP("time", "t", config.DefaultDuration, "Wall-clock limit of the allocation (HH:MM:SS or D-HH:MM:SS)")
	f.StringP("partition", "p", config.DefaultPartition, "Slurm partition")
	f.IntP("gpus", "g", config.DefaultGPUs, "Number of GPUs")
	f.StringP("alias", "a", config.DefaultAlias, "ssh alias pointing to the allocated node")
	f.String("ssh-config", config.DefaultSSHConfigPath, "ssh configuration file where the alias is written")
	f.Duration("poll-interval", config.DefaultPollInterval, "Delay between two job status queries")
	f.Duration("max-wait", config.DefaultMaxWait, "Maximum time to wait for a node, the job is left queued when exceeded")
	f.Int("max-empty-node-polls", config.DefaultMaxEmptyNodePolls, "Consecutive polls tolerated for a job running without node, 0 waits up to max-wait")
	f.String("job-name", config.DefaultJobName, "Slurm job name")
	f.String("workload", config.DefaultWorkload, "Command run by the job")

	bindFlag("time", f, "time")
	bindFlag("partition", f, "partition")
	bindFlag("gpus", f, "gpus")
	bindFlag("alias", f, "alias")
	bindFlag("ssh_config", f, "ssh-config")
	bindFlag("poll_interval", f, "poll-interval")
	bindFlag("max_wait", f, "max-wait")
	bindFlag("max_empty_node_polls", f, "max-empty-node-polls")
	bindFlag("job_name", f, "job-name")
	bindFlag("workload", f, "workload")
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Allocate a GPU node and point an ssh alias to it",
	Long: `Submit a GPU allocation job on the cluster login host, wait for the
scheduler to run it on a node, then write (or replace) the ssh alias block:

    Host snellius_gpu_node
        HostName <node>
        ProxyJump <user>@<login host>

The job is never cancelled by this command, even on timeout or interruption:
use the cancel command to release the node.

Concurrent runs against the same ssh configuration file are not coordinated,
the last one to finish wins.`,
	Args: cobra.NoArgs,
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
		doc, err := sshconfig.NewFile(cfg.SSHConfigPath)
		if err != nil {
			return err
		}
		o := &gpunode.Orchestrator{
			Resolver: allocation.NewResolver(scheduler),
			Document: doc,
			Alias:    cfg.Alias,
			Poll:     cfg.PollOptions(),
		}

		ctx, cancel := commandContext()
		defer cancel()
		res, err := o.Run(ctx, cfg.Request())
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), cfg.Output, res, func(w io.Writer) {
			node := color.New(color.FgHiGreen, color.Bold).SprintFunc()(res.NodeName)
			fmt.Fprintf(w, "Job %s is running on %s\n", res.JobID, node)
			fmt.Fprintf(w, "ssh alias %q updated in %s\n", res.Alias, res.ConfigPath)
			fmt.Fprintf(w, "Connect with: ssh %s\n", res.Alias)
		})
	},
}

// commandContext returns the context bounding remote operations of commands, replaced in tests
var commandContext = interruptibleContext

// interruptibleContext returns a context cancelled on interruption or termination signals
func interruptibleContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signalCh:
			log.Printf("Received %s, stop waiting", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(signalCh)
		cancel()
	}
}
