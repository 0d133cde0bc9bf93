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
	"context"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// connection lazily dials an SSH server and keeps the client for later sessions
type connection struct {
	mu sync.Mutex
	c  *ssh.Client
}

func (c *connection) newSession(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c != nil {
		s, err := c.c.NewSession()
		if err == nil {
			return s, nil
		}
		// Stale connection, dial a new one
		c.c.Close()
		c.c = nil
	}

	client, err := dial(ctx, addr, config)
	if err != nil {
		return nil, err
	}
	c.c = client
	return c.c.NewSession()
}

func (c *connection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c != nil {
		c.c.Close()
		c.c = nil
	}
}

func (c *connection) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c == nil {
		return nil
	}
	err := c.c.Close()
	c.c = nil
	return err
}

func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: config.Timeout}
	netC, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	conn, chans, reqs, err := ssh.NewClientConn(netC, addr, config)
	if err != nil {
		netC.Close()
		return nil, err
	}
	return ssh.NewClient(conn, chans, reqs), nil
}
