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
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"fmt"
	"net"
	"testing"

	"golang.org/x/crypto/ssh"
)

type execCommandHandler func(string) (stdout string, stderr string, status uint32)

func echoCommandHandler(command string) (string, string, uint32) {
	return command, "", 0
}

// newServer starts an in-process SSH server accepting testuser/tiger and
// answering exec requests with handler
func newServer(ctx context.Context, t *testing.T, handler execCommandHandler) net.Addr {
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "tiger" {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(private)
	if err != nil {
		t.Fatalf("failed to parse host key: %v", err)
	}
	config.AddHostKey(signer)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:")
	if err != nil {
		t.Fatalf("failed to listen for connection: %v", err)
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	go func() {
		for {
			nConn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveConn(ctx, nConn, config, handler)
		}
	}()
	return listener.Addr()
}

func serveConn(ctx context.Context, nConn net.Conn, config *ssh.ServerConfig, handler execCommandHandler) {
	conn, chans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for {
		var newChannel ssh.NewChannel
		var ok bool
		select {
		case newChannel, ok = <-chans:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				if req.Type != "exec" {
					req.Reply(false, nil)
					continue
				}
				req.Reply(true, nil)
				var payload = struct{ Command string }{}
				ssh.Unmarshal(req.Payload, &payload)

				stdout, stderr, status := handler(payload.Command)
				channel.Write([]byte(stdout))
				channel.Stderr().Write([]byte(stderr))

				b := make([]byte, 4)
				binary.BigEndian.PutUint32(b, status)
				channel.SendRequest("exit-status", false, b)
				channel.CloseWrite()
				channel.Close()
			}
		}(requests)
	}
}
