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

package pathutil

import (
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// ExistingPath expands a leading '~' in str and checks whether the resulting
// path exists. The expanded path is returned in any case.
func ExistingPath(str string) (string, bool, error) {
	expPath, err := homedir.Expand(str)
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to expand path:%q", str)
	}
	if _, err := os.Stat(expPath); err != nil {
		return expPath, false, nil
	}
	return expPath, true, nil
}
