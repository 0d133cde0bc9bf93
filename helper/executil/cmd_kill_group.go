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

//go:build !windows
// +build !windows

// Package executil runs local commands bound to a context.
package executil

import (
	"context"
	"os/exec"
	"syscall"

	"github.com/slurm-utils/gpunode/log"
)

// Cmd represents an external command being prepared or run.
//
// It's an extension of exec.Cmd that kills the whole process group instead of just the parent process
// when its context is done. This matters for ssh which may spawn ProxyCommand children.
type Cmd struct {
	ctx context.Context
	*exec.Cmd
	waitDone chan struct{}
}

// Command returns the Cmd struct to execute the named program with the given arguments.
func Command(ctx context.Context, name string, arg ...string) *Cmd {
	if ctx == nil {
		panic("nil Context")
	}
	log.Debugf("Running local command %s %q", name, arg)
	cmd := &Cmd{ctx: ctx, Cmd: exec.Command(name, arg...), waitDone: make(chan struct{})}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// Run starts the specified command and waits for it to complete.
func (c *Cmd) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}

// Start starts the specified command but does not wait for it to complete.
//
// If the context is done before Wait returns, the process group is sent a SIGKILL.
func (c *Cmd) Start() error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}

	if err := c.Cmd.Start(); err != nil {
		return err
	}
	go func() {
		select {
		case <-c.ctx.Done():
			if err := syscall.Kill(-c.Process.Pid, syscall.SIGKILL); err != nil {
				log.Debugf("failed to kill process group %d: %v", c.Process.Pid, err)
			}
		case <-c.waitDone:
		}
	}()
	return nil
}

// Wait waits for the command to exit. It must have been started by Start.
//
// A command that failed after its context was done reports the context error.
func (c *Cmd) Wait() error {
	defer close(c.waitDone)
	err := c.Cmd.Wait()
	if err != nil {
		if ctxErr := c.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
