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

// Package sshutil runs commands on remote hosts over SSH.
package sshutil

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/slurm-utils/gpunode/log"
)

// Client is interface allowing running command
type Client interface {
	// RunCommand runs cmd through the remote user's shell and returns its standard output.
	//
	// A command that ran but exited with a non-zero status returns a *CommandError.
	RunCommand(ctx context.Context, cmd string) (string, error)
}

// CommandError is returned when a remote command exits with a non-zero status
type CommandError struct {
	Command    string
	Stdout     string
	Stderr     string
	ExitStatus int
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	return fmt.Sprintf("command %q exited with status %d: %s", e.Command, e.ExitStatus, msg)
}

// IsCommandError checks if an error is a *CommandError and returns it
func IsCommandError(err error) (*CommandError, bool) {
	ce, ok := errors.Cause(err).(*CommandError)
	return ce, ok
}

// SSHClient is a client SSH based on golang.org/x/crypto/ssh.
//
// The underlying connection is opened on first use and reused by subsequent commands.
type SSHClient struct {
	Config *ssh.ClientConfig
	Host   string
	Port   int

	conn connection
}

// RunCommand allows to run a specified command
func (client *SSHClient) RunCommand(ctx context.Context, cmd string) (string, error) {
	session, err := client.conn.newSession(ctx, client.address(), client.Config)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open SSH session on %s", client.address())
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	log.Debugf("[SSHSession] %q", cmd)
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		log.Debug("[SSHSession] Cancellation has been sent: a sigkill signal is sent to remote process")
		session.Signal(ssh.SIGKILL)
		session.Close()
		return "", ctx.Err()
	case err = <-done:
	}

	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return stdout.String(), &CommandError{Command: cmd, Stdout: stdout.String(), Stderr: stderr.String(), ExitStatus: exitErr.ExitStatus()}
		}
		// The connection is likely broken, next command will dial again
		client.conn.reset()
		return stdout.String(), errors.Wrapf(err, "failed to run command %q", cmd)
	}
	return stdout.String(), nil
}

// Close closes the underlying SSH connection if any
func (client *SSHClient) Close() error {
	return client.conn.close()
}

func (client *SSHClient) address() string {
	port := client.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", client.Host, port)
}
