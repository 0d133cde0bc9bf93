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
	"github.com/pkg/errors"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/config"
	"github.com/slurm-utils/gpunode/helper/sshutil"
	"github.com/slurm-utils/gpunode/log"
	"github.com/slurm-utils/gpunode/prov/slurm"
)

// newSSHClient returns the client running Slurm commands on the login host.
// The returned function releases the client resources.
func newSSHClient(cfg config.Configuration) (sshutil.Client, func(), error) {
	switch cfg.SSHMode {
	case config.SSHModeNative:
		auth, closeAuth, err := sshutil.AuthMethods(cfg.PrivateKey)
		if err != nil {
			return nil, nil, err
		}
		hostKeyCallback, err := sshutil.HostKeyCallback(cfg.KnownHostsPath)
		if err != nil {
			closeAuth()
			return nil, nil, err
		}
		client := sshutil.NewSSHClient(cfg.User, cfg.Gateway, cfg.SSHPort, auth, hostKeyCallback)
		log.Debugf("Using native ssh client to reach %s@%s:%d", cfg.User, cfg.Gateway, cfg.SSHPort)
		return client, func() {
			if err := client.Close(); err != nil {
				log.Debugf("failed to close ssh connection: %v", err)
			}
			if err := closeAuth(); err != nil {
				log.Debugf("failed to close ssh-agent connection: %v", err)
			}
		}, nil
	case config.SSHModeOpenSSH:
		client := &sshutil.OpenSSHClient{Destination: cfg.User + "@" + cfg.Gateway}
		if cfg.SSHPort != config.DefaultSSHPort {
			client.Port = cfg.SSHPort
		}
		log.Debugf("Using local ssh binary to reach %s", client.Destination)
		return client, func() {}, nil
	}
	return nil, nil, errors.Errorf("unsupported ssh mode %q", cfg.SSHMode)
}

// newScheduler returns the scheduler used by commands, replaced in tests
var newScheduler = func(cfg config.Configuration) (allocation.Scheduler, func(), error) {
	client, closeFn, err := newSSHClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return slurm.NewScheduler(client, cfg.JobName, cfg.Workload), closeFn, nil
}
