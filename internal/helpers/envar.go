// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"os"
	"strings"
)

var boolWords = map[string]bool{
	"1": true, "true": true, "yes": true, "on": true, "enable": true, "enabled": true,
	"0": false, "false": false, "no": false, "off": false, "disable": false, "disabled": false,
}

// lookupBool reports the value of a boolean environment variable and
// whether it is set. Unrecognized non-empty values read as true.
func lookupBool(name string) (value, set bool) {
	s := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if s == "" {
		return false, false
	}
	if v, known := boolWords[s]; known {
		return v, true
	}
	return true, true
}

// GetBoolEnv reads envVar as a boolean, or returns defaultValue when it is
// unset or blank.
func GetBoolEnv(envVar string, defaultValue bool) bool {
	if v, ok := lookupBool(envVar); ok {
		return v
	}
	return defaultValue
}

// GetAnyBoolEnv returns the value of the first of envVars that is set.
func GetAnyBoolEnv(defaultValue bool, envVars ...string) bool {
	for _, name := range envVars {
		if v, ok := lookupBool(name); ok {
			return v
		}
	}
	return defaultValue
}
