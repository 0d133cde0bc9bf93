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
	"io/ioutil"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/slurm-utils/gpunode/helper/stringutil"
	"github.com/slurm-utils/gpunode/log"
)

// DefaultPath is the default location of the user ssh configuration
const DefaultPath = "~/.ssh/config"

const (
	defaultFileMode os.FileMode = 0600
	defaultDirMode  os.FileMode = 0700
)

// File is an ssh configuration file on the local filesystem
type File struct {
	Path string
}

// NewFile returns a File for path, expanding a leading '~' to the user home directory
func NewFile(path string) (*File, error) {
	if path == "" {
		path = DefaultPath
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve ssh configuration path %q", path)
	}
	return &File{Path: p}, nil
}

// Location returns the file path
func (f *File) Location() string {
	return f.Path
}

// Read returns the file content. A missing file is read as an empty document.
func (f *File) Read() (string, error) {
	b, err := ioutil.ReadFile(f.Path)
	if os.IsNotExist(err) {
		log.Debugf("ssh configuration %q does not exist yet", f.Path)
		return "", nil
	}
	if err != nil {
		return "", &PersistenceError{Path: f.Path, Op: "read", Err: err}
	}
	return string(b), nil
}

// target returns the path actually replaced by Write, following a symbolic link
// so that a linked configuration stays linked
func (f *File) target() string {
	p, err := filepath.EvalSymlinks(f.Path)
	if err != nil {
		return f.Path
	}
	return p
}

// Write replaces the file content.
//
// The content is written to a temporary file in the same directory which is
// then renamed over the target, so the former content is either fully replaced
// or left untouched. The former file mode is kept, new files get 0600 within a
// 0700 directory.
func (f *File) Write(content string) error {
	path := f.target()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return &PersistenceError{Path: f.Path, Op: "mkdir", Err: err}
	}
	mode := defaultFileMode
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp := filepath.Join(dir, stringutil.UniqueTimestampedName("."+filepath.Base(path)+".", ".tmp"))
	if err := writeSynced(tmp, content, mode); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Path: f.Path, Op: "write", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Path: f.Path, Op: "rename", Err: err}
	}
	log.Debugf("ssh configuration %q written", path)
	return nil
}

func writeSynced(name, content string, mode os.FileMode) error {
	fd, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err = fd.WriteString(content); err != nil {
		fd.Close()
		return err
	}
	// umask may have restricted the requested mode
	if err = fd.Chmod(mode); err != nil {
		fd.Close()
		return err
	}
	if err = fd.Sync(); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}
