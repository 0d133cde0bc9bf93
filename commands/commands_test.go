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
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/config"
	"github.com/slurm-utils/gpunode/helper/sshutil"
	"github.com/slurm-utils/gpunode/sshconfig"
)

// useScheduler replaces the scheduler used by commands until the test ends
func useScheduler(t *testing.T, s allocation.Scheduler) {
	previous := newScheduler
	newScheduler = func(config.Configuration) (allocation.Scheduler, func(), error) {
		return s, func() {}, nil
	}
	t.Cleanup(func() { newScheduler = previous })
}

func execute(t *testing.T, args ...string) (string, error) {
	var buf bytes.Buffer
	RootCmd.SetOutput(&buf)
	RootCmd.SetArgs(args)
	t.Cleanup(func() {
		RootCmd.SetOutput(nil)
		RootCmd.SetArgs(nil)
	})
	err := RootCmd.Execute()
	return buf.String(), err
}

func TestRequestCommand(t *testing.T) {
	var submitted allocation.Request
	useScheduler(t, &allocation.MockScheduler{
		MockSubmit: func(req allocation.Request) (allocation.Handle, error) {
			submitted = req
			return allocation.Handle{JobID: "4567"}, nil
		},
		MockStatus: allocation.SequenceStatus(
			allocation.JobStatus{State: allocation.JobPending},
			allocation.JobStatus{State: allocation.JobRunning, NodeName: "tcn042"},
		),
	})
	sshConfig := filepath.Join(t.TempDir(), "config")
	require.NoError(t, ioutil.WriteFile(sshConfig, []byte("Host other_node\n    HostName 10.0.0.7\n"), 0600))

	out, err := execute(t, "request", "-o", "json", "--ssh-config", sshConfig, "--poll-interval", "1ms",
		"--time", "02:00:00", "--gpus", "2", "--partition", "gpu_h100", "--user", "jdoe", "--host", "int3")
	require.NoError(t, err)
	assert.Equal(t, allocation.Request{Duration: "02:00:00", Partition: "gpu_h100", GPUs: 2, User: "jdoe", Gateway: "int3"}, submitted)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "4567", res["job_id"])
	assert.Equal(t, "tcn042", res["node"])
	assert.Equal(t, "snellius_gpu_node", res["alias"])
	assert.Equal(t, sshConfig, res["ssh_config"])

	b, err := ioutil.ReadFile(sshConfig)
	require.NoError(t, err)
	assert.Equal(t, "Host other_node\n    HostName 10.0.0.7\n\nHost snellius_gpu_node\n    HostName tcn042\n    ProxyJump jdoe@int3\n", string(b))
}

func TestRequestCommandValidation(t *testing.T) {
	submitted := false
	useScheduler(t, &allocation.MockScheduler{MockSubmit: func(allocation.Request) (allocation.Handle, error) {
		submitted = true
		return allocation.Handle{JobID: "1"}, nil
	}})
	sshConfig := filepath.Join(t.TempDir(), "config")
	_, err := execute(t, "request", "-o", "text", "--ssh-config", sshConfig, "--gpus", "0", "--time", "1h")
	require.Error(t, err)
	assert.Equal(t, ExitValidation, ExitCode(err))
	assert.False(t, submitted)
	_, statErr := ioutil.ReadFile(sshConfig)
	assert.Error(t, statErr, "the ssh configuration should not be created")
}

func TestStatusCommand(t *testing.T) {
	var queried string
	useScheduler(t, &allocation.MockScheduler{MockStatus: func(h allocation.Handle) (allocation.JobStatus, error) {
		queried = h.JobID
		return allocation.JobStatus{State: allocation.JobRunning, NodeName: "tcn042", Reason: "R"}, nil
	}})

	out, err := execute(t, "status", "-o", "yaml", "4567")
	require.NoError(t, err)
	assert.Equal(t, "4567", queried)
	var res jobStatusOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, jobStatusOutput{JobID: "4567", State: "RUNNING", Node: "tcn042", Reason: "R"}, res)

	out, err = execute(t, "status", "-o", "text", "4567")
	require.NoError(t, err)
	assert.Contains(t, out, "tcn042")
	assert.Contains(t, out, "RUNNING")

	_, err = execute(t, "status", "-o", "text")
	assert.Error(t, err, "a job id is required")
}

func TestCancelCommand(t *testing.T) {
	var cancelled string
	useScheduler(t, &allocation.MockScheduler{MockCancel: func(h allocation.Handle) error {
		cancelled = h.JobID
		return nil
	}})
	out, err := execute(t, "cancel", "4567")
	require.NoError(t, err)
	assert.Equal(t, "4567", cancelled)
	assert.Equal(t, "Job 4567 cancelled\n", out)
}

// contextScheduler fails remote operations once their context is done
type contextScheduler struct {
	allocation.MockScheduler
}

func (s *contextScheduler) Status(ctx context.Context, h allocation.Handle) (allocation.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return allocation.JobStatus{}, err
	}
	return s.MockScheduler.Status(ctx, h)
}

func (s *contextScheduler) Cancel(ctx context.Context, h allocation.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MockScheduler.Cancel(ctx, h)
}

func TestCommandsInterrupted(t *testing.T) {
	previous := commandContext
	commandContext = func() (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx, cancel
	}
	t.Cleanup(func() { commandContext = previous })

	var called bool
	useScheduler(t, &contextScheduler{allocation.MockScheduler{
		MockStatus: func(allocation.Handle) (allocation.JobStatus, error) {
			called = true
			return allocation.JobStatus{State: allocation.JobRunning}, nil
		},
		MockCancel: func(allocation.Handle) error {
			called = true
			return nil
		},
	}})

	for _, args := range [][]string{{"status", "4567"}, {"cancel", "4567"}} {
		_, err := execute(t, args...)
		require.Error(t, err, args[0])
		assert.Equal(t, context.Canceled, pkgerrors.Cause(err), args[0])
	}
	assert.False(t, called, "no remote operation should run once interrupted")
}

func TestInterruptibleContext(t *testing.T) {
	ctx, cancel := interruptibleContext()
	defer cancel()
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context should be cancelled on interruption")
	}

	ctx, cancel = interruptibleContext()
	cancel()
	assert.Equal(t, context.Canceled, ctx.Err())
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "slurm-utils "+version+"\n", out)
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Nil", nil, ExitOK},
		{"Other", errors.New("boom"), ExitOther},
		{"Validation", allocation.NewValidationError(errors.New("gpu count must be at least 1")), ExitValidation},
		{"Submission", &allocation.SubmissionError{Err: errors.New("invalid partition")}, ExitSubmission},
		{"Failed", &allocation.FailedError{JobID: "1", State: allocation.JobCancelled}, ExitAllocationFailed},
		{"Timeout", &allocation.TimeoutError{JobID: "1"}, ExitTimeout},
		{"Parse", &sshconfig.ParseError{Line: 1, Text: "Host", Reason: "Host declaration without pattern"}, ExitParse},
		{"Persistence", &sshconfig.PersistenceError{Path: "config", Op: "write", Err: errors.New("read-only file system")}, ExitPersistence},
		{"Wrapped", pkgerrors.Wrap(&sshconfig.PersistenceError{Path: "config", Op: "read", Err: errors.New("denied")}, "job 1 runs on tcn042"), ExitPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()
	msg := ErrorMessage(&allocation.TimeoutError{JobID: "4567", LastState: allocation.JobPending})
	assert.Contains(t, msg, "slurm-utils cancel 4567")

	msg = ErrorMessage(&allocation.FailedError{JobID: "4567", State: allocation.JobRunning, MayStillBeActive: true})
	assert.Contains(t, msg, "slurm-utils cancel 4567")

	msg = ErrorMessage(&allocation.FailedError{JobID: "4567", State: allocation.JobCancelled})
	assert.NotContains(t, msg, "cancel 4567")
	assert.Contains(t, msg, "does not hold resources")

	assert.Equal(t, "boom", ErrorMessage(errors.New("boom")))
}

func TestNewSSHClient(t *testing.T) {
	t.Parallel()
	cfg, err := config.FromValues(config.Values{"user": "jdoe", "host": "int3"})
	require.NoError(t, err)

	client, closeFn, err := newSSHClient(cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, &sshutil.OpenSSHClient{Destination: "jdoe@int3"}, client)

	cfg.SSHPort = 2222
	client, _, err = newSSHClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, &sshutil.OpenSSHClient{Destination: "jdoe@int3", Port: 2222}, client)

	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	cfg.SSHMode = config.SSHModeNative
	cfg.PrivateKey = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}))
	cfg.KnownHostsPath = ""
	client, closeFn, err = newSSHClient(cfg)
	require.NoError(t, err)
	defer closeFn()
	native, ok := client.(*sshutil.SSHClient)
	require.True(t, ok, "expecting a native client, got %T", client)
	assert.Equal(t, "int3", native.Host)
	assert.Equal(t, 2222, native.Port)
	assert.Equal(t, "jdoe", native.Config.User)

	cfg.SSHMode = "telnet"
	_, _, err = newSSHClient(cfg)
	assert.Error(t, err)
}

func TestPrintOutput(t *testing.T) {
	t.Parallel()
	v := jobStatusOutput{JobID: "1", State: "PENDING"}
	var buf bytes.Buffer
	require.NoError(t, printOutput(&buf, config.OutputJSON, v, nil))
	assert.Equal(t, "{\n    \"job_id\": \"1\",\n    \"state\": \"PENDING\"\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, printOutput(&buf, config.OutputYAML, v, nil))
	assert.Equal(t, "job_id: \"1\"\nstate: PENDING\n", buf.String())

	buf.Reset()
	require.NoError(t, printOutput(&buf, config.OutputText, v, func(w io.Writer) { w.Write([]byte("text")) }))
	assert.Equal(t, "text", buf.String())
}
