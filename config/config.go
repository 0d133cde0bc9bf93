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

// Package config defines configuration structures
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/slurm-utils/gpunode/allocation"
)

// DefaultDuration is the default wall-clock limit of an allocation
const DefaultDuration = "01:00:00"

// DefaultPartition is the default Slurm partition
const DefaultPartition = "gpu"

// DefaultGPUs is the default number of requested GPUs
const DefaultGPUs int = 1

// DefaultUser is the default cluster user
const DefaultUser = "spapa01"

// DefaultGateway is the default login host of the cluster
const DefaultGateway = "snellius01"

// DefaultAlias is the default ssh alias pointing to the allocated node
const DefaultAlias = "snellius_gpu_node"

// DefaultSSHConfigPath is the default ssh configuration updated with the alias
const DefaultSSHConfigPath = "~/.ssh/config"

// DefaultKnownHostsPath is the default known hosts file used by the native ssh client
const DefaultKnownHostsPath = "~/.ssh/known_hosts"

// DefaultPollInterval is the default delay between two job status queries
const DefaultPollInterval = 5 * time.Second

// DefaultMaxWait is the default time to wait for a node before giving up
const DefaultMaxWait = 2 * time.Hour

// DefaultMaxEmptyNodePolls is the default number of consecutive polls tolerated
// for a job reported running without node
const DefaultMaxEmptyNodePolls int = 3

// DefaultJobName is the default Slurm job name
const DefaultJobName = "snellius_gpu_node"

// DefaultWorkload is the default job body
const DefaultWorkload = "sleep infinity"

// DefaultSSHPort is the default port of the login host
const DefaultSSHPort int = 22

// SSH transports
const (
	// SSHModeOpenSSH runs the local ssh binary, honoring the user ssh configuration
	SSHModeOpenSSH = "openssh"
	// SSHModeNative uses the built-in ssh client
	SSHModeNative = "native"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Configuration holds config information filled by Cobra and Viper (see commands package for more information)
type Configuration struct {
	Duration          string
	Partition         string
	GPUs              int
	User              string
	Gateway           string
	Alias             string
	SSHConfigPath     string
	KnownHostsPath    string
	PollInterval      time.Duration
	MaxWait           time.Duration
	MaxEmptyNodePolls int
	JobName           string
	Workload          string
	SSHMode           string
	SSHPort           int
	PrivateKey        string
	Output            string
	Debug             bool
}

// Request returns the allocation request described by the configuration
func (c Configuration) Request() allocation.Request {
	return allocation.Request{
		Duration:  c.Duration,
		Partition: c.Partition,
		GPUs:      c.GPUs,
		User:      c.User,
		Gateway:   c.Gateway,
	}
}

// PollOptions returns the options used to wait for a node
func (c Configuration) PollOptions() allocation.PollOptions {
	return allocation.PollOptions{
		Interval:          c.PollInterval,
		MaxWait:           c.MaxWait,
		MaxEmptyNodePolls: c.MaxEmptyNodePolls,
	}
}

// Values are raw configuration values as read from flags, environment and
// configuration files.
//
// It has methods to automatically cast data to the desired type.
type Values map[string]interface{}

// Get returns the raw value of a given configuration key
func (v Values) Get(name string) interface{} {
	return v[name]
}

// GetString returns the value of the given key casted into a string.
// An empty string is returned if not found.
func (v Values) GetString(name string) string {
	return cast.ToString(v[name])
}

// GetStringOrDefault returns the value of the given key casted into a string.
// The given default value is returned if not found.
func (v Values) GetStringOrDefault(name, defaultValue string) string {
	if res := v.GetString(name); res != "" {
		return res
	}
	return defaultValue
}

// GetBool returns the value of the given key casted into a boolean.
// False is returned if not found.
func (v Values) GetBool(name string) bool {
	return cast.ToBool(v[name])
}

// GetIntOrDefault returns the value of the given key casted into an int.
// The given default value is returned if not found.
func (v Values) GetIntOrDefault(name string, defaultValue int) (int, error) {
	raw, ok := v[name]
	if !ok || raw == nil || raw == "" {
		return defaultValue, nil
	}
	i, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, cast.ToString(raw))
	}
	return i, nil
}

// GetDurationOrDefault returns the value of the given key casted into a duration.
// Numbers without unit are seconds.
// The given default value is returned if not found.
func (v Values) GetDurationOrDefault(name string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := v[name]
	if !ok || raw == nil || raw == "" {
		return defaultValue, nil
	}
	switch r := raw.(type) {
	case time.Duration:
		return r, nil
	case int, int32, int64, uint, uint32, uint64:
		return time.Duration(cast.ToInt64(r)) * time.Second, nil
	case string:
		if _, err := strconv.Atoi(strings.TrimSpace(r)); err == nil {
			raw = strings.TrimSpace(r) + "s"
		}
	}
	d, err := cast.ToDurationE(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", name, cast.ToString(raw))
	}
	return d, nil
}

// FromValues builds a Configuration from raw values, applying defaults for
// missing ones. Values that can't be converted and unsupported ssh modes or
// output formats are reported together in a *allocation.ValidationError.
func FromValues(v Values) (Configuration, error) {
	var errs []error
	c := Configuration{
		Duration:       v.GetStringOrDefault("time", DefaultDuration),
		Partition:      v.GetStringOrDefault("partition", DefaultPartition),
		User:           v.GetStringOrDefault("user", DefaultUser),
		Gateway:        v.GetStringOrDefault("host", DefaultGateway),
		Alias:          v.GetStringOrDefault("alias", DefaultAlias),
		SSHConfigPath:  v.GetStringOrDefault("ssh_config", DefaultSSHConfigPath),
		JobName:        v.GetStringOrDefault("job_name", DefaultJobName),
		Workload:       v.GetStringOrDefault("workload", DefaultWorkload),
		SSHMode:        strings.ToLower(v.GetStringOrDefault("ssh_mode", SSHModeOpenSSH)),
		PrivateKey:     v.GetString("private_key"),
		Output:         strings.ToLower(v.GetStringOrDefault("output", OutputText)),
		Debug:          v.GetBool("debug"),
		KnownHostsPath: DefaultKnownHostsPath,
	}
	// an explicitly empty known_hosts disables host key checking
	if kh, ok := v["known_hosts"]; ok {
		c.KnownHostsPath = cast.ToString(kh)
	}

	var err error
	if c.GPUs, err = v.GetIntOrDefault("gpus", DefaultGPUs); err != nil {
		errs = append(errs, err)
	}
	if c.SSHPort, err = v.GetIntOrDefault("ssh_port", DefaultSSHPort); err != nil {
		errs = append(errs, err)
	}
	if c.MaxEmptyNodePolls, err = v.GetIntOrDefault("max_empty_node_polls", DefaultMaxEmptyNodePolls); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval, err = v.GetDurationOrDefault("poll_interval", DefaultPollInterval); err != nil {
		errs = append(errs, err)
	}
	if c.MaxWait, err = v.GetDurationOrDefault("max_wait", DefaultMaxWait); err != nil {
		errs = append(errs, err)
	}

	switch c.SSHMode {
	case SSHModeOpenSSH, SSHModeNative:
	default:
		errs = append(errs, fmt.Errorf("ssh_mode: %q is not one of %q or %q", c.SSHMode, SSHModeOpenSSH, SSHModeNative))
	}
	if c.SSHPort < 1 || c.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("ssh_port: %d is not a valid port", c.SSHPort))
	}
	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		errs = append(errs, fmt.Errorf("output: %q is not one of %q, %q or %q", c.Output, OutputText, OutputJSON, OutputYAML))
	}
	return c, allocation.NewValidationError(errs...)
}
