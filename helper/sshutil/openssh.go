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

package sshutil

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/slurm-utils/gpunode/helper/executil"
	"github.com/slurm-utils/gpunode/log"
)

// DefaultOpenSSHBinary is the ssh binary looked up in the PATH
const DefaultOpenSSHBinary = "ssh"

const sshFailureStatus = 255

// OpenSSHClient runs commands using the local OpenSSH client binary.
//
// It honors the user's ssh configuration (agent, ProxyJump, ControlMaster...) exactly
// as an interactive ssh command would.
type OpenSSHClient struct {
	// Destination is the ssh destination, typically user@host
	Destination string
	// Port is the remote port, 0 lets ssh decide
	Port int
	// Binary defaults to DefaultOpenSSHBinary
	Binary string
	// Options are additional -o options given to ssh
	Options []string
}

func (c *OpenSSHClient) args(cmd string) []string {
	args := []string{"-o", "BatchMode=yes"}
	for _, o := range c.Options {
		args = append(args, "-o", o)
	}
	if c.Port != 0 {
		args = append(args, "-p", strconv.Itoa(c.Port))
	}
	return append(args, c.Destination, cmd)
}

// RunCommand allows to run a specified command
func (c *OpenSSHClient) RunCommand(ctx context.Context, cmd string) (string, error) {
	bin := c.Binary
	if bin == "" {
		bin = DefaultOpenSSHBinary
	}
	var stdout, stderr bytes.Buffer
	sshCmd := executil.Command(ctx, bin, c.args(cmd)...)
	sshCmd.Stdout = &stdout
	sshCmd.Stderr = &stderr
	log.Debugf("[OpenSSH] %s %q", c.Destination, cmd)
	err := sshCmd.Run()
	if err != nil {
		// ssh exits with 255 when it fails by itself (connection, authentication)
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() != sshFailureStatus {
			return stdout.String(), &CommandError{Command: cmd, Stdout: stdout.String(), Stderr: stderr.String(), ExitStatus: exitErr.ExitCode()}
		}
		return stdout.String(), errors.Wrapf(err, "failed to run %s: %s", bin, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
