/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package opts

import (
	"os"
	"strconv"
)

const (
	MinCallSitesLimit = 2 // a single call site has nothing to merge with
)

const (
	_DefaultVerify       = false
	_DefaultMinCallSites = MinCallSitesLimit
)

var (
	Verify       = parseBoolOrDefault("MERGECALLS_VERIFY", _DefaultVerify)
	MinCallSites = parseOrDefault("MERGECALLS_MIN_CALL_SITES", _DefaultMinCallSites, MinCallSitesLimit)
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("mergecalls: invalid value for " + key)
	} else if ret := int(val); ret < min {
		panic("mergecalls: value too small for " + key)
	} else {
		return ret
	}
}

func parseBoolOrDefault(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("mergecalls: invalid value for " + key)
	} else {
		return val
	}
}
