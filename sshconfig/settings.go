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

import "strings"

// Settings is an ordered set of ssh_config keywords and their values.
// Keywords are case-insensitive: setting an existing keyword again updates its
// value and keeps its position and original spelling.
//
// The zero value is an empty Settings ready to use.
type Settings struct {
	keys   []string
	values map[string]string
}

// NewSettings returns Settings holding the given keyword/value pairs.
// A trailing keyword without value is ignored.
func NewSettings(pairs ...string) *Settings {
	s := &Settings{}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Set(pairs[i], pairs[i+1])
	}
	return s
}

// Set sets the value of keyword and returns s
func (s *Settings) Set(keyword, value string) *Settings {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	k := strings.ToLower(keyword)
	if _, ok := s.values[k]; !ok {
		s.keys = append(s.keys, keyword)
	}
	s.values[k] = value
	return s
}

// Get returns the value of keyword
func (s *Settings) Get(keyword string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[strings.ToLower(keyword)]
	return v, ok
}

// Keys returns keywords in insertion order
func (s *Settings) Keys() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.keys...)
}

// Len returns the number of keywords
func (s *Settings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}
