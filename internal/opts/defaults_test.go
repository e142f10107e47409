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
	"testing"

	"github.com/stretchr/testify/assert"
)

func withEnv(t *testing.T, key string, val string) {
	old, ok := os.LookupEnv(key)
	_ = os.Setenv(key, val)
	t.Cleanup(func() {
		if ok {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func TestDefaults_ParseOrDefault(t *testing.T) {
	const key = "MERGECALLS_TEST_INT"
	_ = os.Unsetenv(key)
	assert.Equal(t, 5, parseOrDefault(key, 5, 2))
	withEnv(t, key, "7")
	assert.Equal(t, 7, parseOrDefault(key, 5, 2))
	withEnv(t, key, "0x10")
	assert.Equal(t, 16, parseOrDefault(key, 5, 2))
	withEnv(t, key, "1")
	assert.PanicsWithValue(t, "mergecalls: value too small for "+key, func() { parseOrDefault(key, 5, 2) })
	withEnv(t, key, "many")
	assert.PanicsWithValue(t, "mergecalls: invalid value for "+key, func() { parseOrDefault(key, 5, 2) })
}

func TestDefaults_ParseBoolOrDefault(t *testing.T) {
	const key = "MERGECALLS_TEST_BOOL"
	_ = os.Unsetenv(key)
	assert.True(t, parseBoolOrDefault(key, true))
	assert.False(t, parseBoolOrDefault(key, false))
	withEnv(t, key, "1")
	assert.True(t, parseBoolOrDefault(key, false))
	withEnv(t, key, "false")
	assert.False(t, parseBoolOrDefault(key, true))
	withEnv(t, key, "maybe")
	assert.Panics(t, func() { parseBoolOrDefault(key, true) })
}

func TestOptions_Defaults(t *testing.T) {
	o := GetDefaultOptions()
	assert.True(t, o.Demote)
	assert.False(t, o.Graphviz)
	assert.Equal(t, Verify, o.Verify)
	assert.Equal(t, MinCallSites, o.MinCallSites)
	assert.GreaterOrEqual(t, o.MinCallSites, MinCallSitesLimit)
}
