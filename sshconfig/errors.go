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

package sshconfig

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParseError is returned when a document cannot be edited safely.
// The document is never modified when a ParseError occurs.
type ParseError struct {
	// Line is the 1-based line number of the offending line, 0 when the error
	// is not related to a line of the document (invalid identifier or setting)
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %q", e.Reason, e.Text)
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// IsParseError checks if an error is caused by a *ParseError and returns it
func IsParseError(err error) (*ParseError, bool) {
	pe, ok := errors.Cause(err).(*ParseError)
	return pe, ok
}

// PersistenceError is returned when the configuration file cannot be read or written.
// When writing fails the former file content is left untouched.
type PersistenceError struct {
	Path string
	// Op is the failed operation: "read", "mkdir", "write" or "rename"
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s ssh configuration %q: %v", e.Op, e.Path, e.Err)
}

// IsPersistenceError checks if an error is caused by a *PersistenceError and returns it
func IsPersistenceError(err error) (*PersistenceError, bool) {
	pe, ok := errors.Cause(err).(*PersistenceError)
	return pe, ok
}
