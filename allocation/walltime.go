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

package allocation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// maxWallTimeSeconds is the largest limit representable as a time.Duration
const maxWallTimeSeconds = math.MaxInt64 / int64(time.Second)

var wallTimeRegexp = regexp.MustCompile(`^(?:(\d+)-)?(\d{1,3}):([0-5]\d):([0-5]\d)$`)

// ParseWallTime parses a scheduler wall-clock limit in HH:MM:SS or D-HH:MM:SS format
func ParseWallTime(s string) (time.Duration, error) {
	m := wallTimeRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, invalidWallTime(s)
	}
	if m[1] == "" {
		m[1] = "0"
	}
	var total int64
	for i, unit := range []int64{24 * 3600, 3600, 60, 1} {
		v, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil || v > (maxWallTimeSeconds-total)/unit {
			return 0, invalidWallTime(s)
		}
		total += v * unit
	}
	return time.Duration(total) * time.Second, nil
}

func invalidWallTime(s string) error {
	return fmt.Errorf("invalid duration %q: expecting HH:MM:SS or D-HH:MM:SS", s)
}

// FormatWallTime formats a duration as a scheduler wall-clock limit
func FormatWallTime(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / (24 * 3600)
	rem := total % (24 * 3600)
	hours := rem / 3600
	rem %= 3600
	minutes := rem / 60
	seconds := rem % 60
	if days > 0 {
		return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
