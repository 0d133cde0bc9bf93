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

// Package gpunode allocates a GPU node and makes it reachable through an ssh alias.
package gpunode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/slurm-utils/gpunode/allocation"
	"github.com/slurm-utils/gpunode/log"
	"github.com/slurm-utils/gpunode/sshconfig"
)

// DefaultAlias is the default ssh alias of the allocated node
const DefaultAlias = "snellius_gpu_node"

// Document is the persistent ssh configuration edited by the Orchestrator
type Document interface {
	// Read returns the whole document, an empty string if it does not exist yet
	Read() (string, error)
	// Write replaces the whole document
	Write(content string) error
	// Location describes where the document is stored
	Location() string
}

// Result describes a usable allocation
type Result struct {
	JobID       string    `json:"job_id" yaml:"job_id"`
	NodeName    string    `json:"node" yaml:"node"`
	Alias       string    `json:"alias" yaml:"alias"`
	ConfigPath  string    `json:"ssh_config" yaml:"ssh_config"`
	SubmittedAt time.Time `json:"submitted_at" yaml:"submitted_at"`
	ResolvedAt  time.Time `json:"resolved_at" yaml:"resolved_at"`
}

// Orchestrator submits an allocation, waits for its node and points an ssh alias to it
type Orchestrator struct {
	Resolver *allocation.Resolver
	Document Document
	// Alias is the ssh Host pattern pointing to the allocated node
	Alias string
	Poll  allocation.PollOptions
}

// NodeSettings returns the ssh settings reaching node through the gateway of req
func NodeSettings(node string, req allocation.Request) *sshconfig.Settings {
	return sshconfig.NewSettings(
		"HostName", node,
		"ProxyJump", req.User+"@"+req.Gateway,
	)
}

func (o *Orchestrator) validate(req allocation.Request) error {
	var errs []error
	if o.Resolver == nil {
		errs = append(errs, errors.New("no scheduler configured"))
	}
	if o.Document == nil {
		errs = append(errs, errors.New("no ssh configuration document configured"))
	}
	if o.Alias == "" || strings.ContainsAny(o.Alias, " \t\r\n\"'#") {
		errs = append(errs, fmt.Errorf("alias %q must be a single non-empty word", o.Alias))
	}
	errs = append(errs, req.Validate(), o.Poll.Validate())
	return allocation.NewValidationError(errs...)
}

// Run allocates a node for req and rewrites the ssh alias to reach it.
//
// The ssh configuration is checked before submitting anything, so that an
// unusable document never leaves an orphan job. Once the job is submitted,
// errors leave it in place: it is up to the caller to cancel it.
func (o *Orchestrator) Run(ctx context.Context, req allocation.Request) (*Result, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}
	location := o.Document.Location()
	doc, err := o.Document.Read()
	if err != nil {
		return nil, err
	}
	if err = sshconfig.Check(doc, o.Alias); err != nil {
		return nil, errors.Wrapf(err, "ssh configuration %q can not be edited", location)
	}

	submittedAt := time.Now()
	h, err := o.Resolver.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Printf("Job %s submitted on %s, waiting for a node", h.JobID, req.Gateway)

	resolved, err := o.Resolver.Resolve(ctx, h, o.Poll)
	if err != nil {
		return nil, err
	}
	resolvedAt := time.Now()
	log.Printf("Job %s allocated node %s after %s", resolved.JobID, resolved.NodeName, resolvedAt.Sub(submittedAt).Round(time.Second))

	// read again, the document may have been edited while waiting
	doc, err = o.Document.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "job %s runs on %s", resolved.JobID, resolved.NodeName)
	}
	updated, err := sshconfig.UpsertBlock(doc, o.Alias, NodeSettings(resolved.NodeName, req))
	if err != nil {
		return nil, errors.Wrapf(err, "job %s runs on %s but ssh configuration %q can not be edited", resolved.JobID, resolved.NodeName, location)
	}
	if err = o.Document.Write(updated); err != nil {
		return nil, errors.Wrapf(err, "job %s runs on %s", resolved.JobID, resolved.NodeName)
	}
	log.Debugf("ssh alias %q updated in %q", o.Alias, location)

	return &Result{
		JobID:       resolved.JobID,
		NodeName:    resolved.NodeName,
		Alias:       o.Alias,
		ConfigPath:  location,
		SubmittedAt: submittedAt,
		ResolvedAt:  resolvedAt,
	}, nil
}
