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
	"io/ioutil"
	"net"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/slurm-utils/gpunode/helper/pathutil"
	"github.com/slurm-utils/gpunode/log"
)

// DefaultKnownHostsFilePath is the default OpenSSH known hosts file
const DefaultKnownHostsFilePath = "~/.ssh/known_hosts"

// DefaultTimeout is the default timeout to establish an SSH connection
const DefaultTimeout = 30 * time.Second

// defaultPrivateKeys are the keys looked for when no key and no agent are available
var defaultPrivateKeys = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}

// ToPrivateKeyContent allows to convert private key content or file to byte array
func ToPrivateKeyContent(pk string) ([]byte, error) {
	keyPath, exists, err := pathutil.ExistingPath(pk)
	if err != nil {
		return nil, errors.Wrap(err, "failed to expand key path")
	}
	if exists {
		p, err := ioutil.ReadFile(keyPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read key file %q", keyPath)
		}
		return p, nil
	}
	return []byte(pk), nil
}

// ReadPrivateKey returns an authentication method relying on private/public key pairs
// The argument is :
// - either a path to the private key file,
// - or the content or this private key file
func ReadPrivateKey(pk string) (ssh.AuthMethod, error) {
	raw, err := ToPrivateKeyContent(pk)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		if len(raw) > 0 && string(raw) == pk {
			pk = "<private key content redacted>"
		}
		return nil, errors.Wrapf(err, "Failed to parse key %q", pk)
	}
	return ssh.PublicKeys(signer), nil
}

// AuthMethods returns the authentication methods to use for a connection.
//
// An explicit private key takes precedence. Otherwise the ssh-agent pointed by SSH_AUTH_SOCK is
// used if available, then the default OpenSSH identity files.
// The returned function closes the ssh-agent connection once the methods are not needed anymore.
func AuthMethods(privateKey string) ([]ssh.AuthMethod, func() error, error) {
	noop := func() error { return nil }
	if privateKey != "" {
		am, err := ReadPrivateKey(privateKey)
		if err != nil {
			return nil, nil, err
		}
		return []ssh.AuthMethod{am}, noop, nil
	}

	var methods []ssh.AuthMethod
	closeFn := noop
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			log.Debugf("ssh-agent socket %q not usable: %v", sock, err)
		} else {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			closeFn = conn.Close
		}
	}
	for _, k := range defaultPrivateKeys {
		p, exists, err := pathutil.ExistingPath(k)
		if err != nil || !exists {
			continue
		}
		am, err := ReadPrivateKey(p)
		if err != nil {
			log.Debugf("skipping identity file %q: %v", p, err)
			continue
		}
		methods = append(methods, am)
	}
	if len(methods) == 0 {
		return nil, nil, errors.New("no SSH authentication method available: provide a private key or start an ssh-agent")
	}
	return methods, closeFn, nil
}

// HostKeyCallback returns a callback checking host keys against the given known hosts file.
//
// An empty path disables host key checking.
func HostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		log.Printf("Host key checking is disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	p, err := homedir.Expand(knownHostsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to expand known hosts path %q", knownHostsPath)
	}
	cb, err := knownhosts.New(p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load known hosts file %q", p)
	}
	return cb, nil
}

// NewSSHClient builds a native SSH client for user@host:port
func NewSSHClient(user, host string, port int, auth []ssh.AuthMethod, hostKeyCallback ssh.HostKeyCallback) *SSHClient {
	return &SSHClient{
		Config: &ssh.ClientConfig{
			User:            user,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         DefaultTimeout,
		},
		Host: host,
		Port: port,
	}
}
