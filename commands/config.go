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
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/slurm-utils/gpunode/config"
	"github.com/slurm-utils/gpunode/log"
)

var cfgFile string

// configErr is set when a configuration file exists but can't be read
var configErr error

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// enable ability to specify config file via flag
		viper.SetConfigFile(cfgFile)
	}
	configErr = nil
	// If a config file is found, read it in.
	err := viper.ReadInConfig()
	switch err.(type) {
	case nil:
		log.Debugln("Using config file:", viper.ConfigFileUsed())
	case viper.ConfigFileNotFoundError:
		log.Debugln("Config not found... ")
	default:
		configErr = errors.Wrap(err, "failed to read configuration file")
	}
}

func bindFlag(key string, flags *pflag.FlagSet, name string) {
	if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
		log.Fatalf("failed to bind flag %q: %v", name, err)
	}
}

func setConfig() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/slurm-utils/slurm-utils.yaml)")
	pf.Bool("debug", false, "Print debug logs")
	pf.StringP("output", "o", config.OutputText, "Output format: text, json or yaml")
	pf.StringP("user", "u", config.DefaultUser, "User name on the cluster")
	pf.String("host", config.DefaultGateway, "Login host of the cluster, used as ssh gateway to reach nodes")
	pf.String("ssh-mode", config.SSHModeOpenSSH, "How to reach the login host: openssh (local ssh binary) or native (built-in client)")
	pf.Int("ssh-port", config.DefaultSSHPort, "ssh port of the login host")
	pf.String("private-key", "", "Private key path or content (native mode, defaults to ssh-agent and ~/.ssh keys)")
	pf.String("known-hosts", config.DefaultKnownHostsPath, "Known hosts file (native mode), an empty value disables host key checking")

	bindFlag("debug", pf, "debug")
	bindFlag("output", pf, "output")
	bindFlag("user", pf, "user")
	bindFlag("host", pf, "host")
	bindFlag("ssh_mode", pf, "ssh-mode")
	bindFlag("ssh_port", pf, "ssh-port")
	bindFlag("private_key", pf, "private-key")
	bindFlag("known_hosts", pf, "known-hosts")

	//Environment Variables
	viper.SetEnvPrefix("slurm_utils") // will be uppercased automatically - Become "SLURM_UTILS_"
	viper.AutomaticEnv()              // read in environment variables that match

	//Setting Defaults
	viper.SetDefault("time", config.DefaultDuration)
	viper.SetDefault("partition", config.DefaultPartition)
	viper.SetDefault("gpus", config.DefaultGPUs)
	viper.SetDefault("user", config.DefaultUser)
	viper.SetDefault("host", config.DefaultGateway)
	viper.SetDefault("alias", config.DefaultAlias)
	viper.SetDefault("ssh_config", config.DefaultSSHConfigPath)
	viper.SetDefault("known_hosts", config.DefaultKnownHostsPath)
	viper.SetDefault("poll_interval", config.DefaultPollInterval)
	viper.SetDefault("max_wait", config.DefaultMaxWait)
	viper.SetDefault("max_empty_node_polls", config.DefaultMaxEmptyNodePolls)
	viper.SetDefault("job_name", config.DefaultJobName)
	viper.SetDefault("workload", config.DefaultWorkload)
	viper.SetDefault("ssh_mode", config.SSHModeOpenSSH)
	viper.SetDefault("ssh_port", config.DefaultSSHPort)
	viper.SetDefault("private_key", "")
	viper.SetDefault("output", config.OutputText)
	viper.SetDefault("debug", false)

	//Configuration file directories
	viper.SetConfigName("slurm-utils") // name of config file (without extension)
	viper.AddConfigPath("$HOME/.config/slurm-utils")
	viper.AddConfigPath(".")
}

func getConfig() (config.Configuration, error) {
	if configErr != nil {
		return config.Configuration{}, configErr
	}
	values := config.Values{}
	for _, k := range viper.AllKeys() {
		values[k] = viper.Get(k)
	}
	return config.FromValues(values)
}
