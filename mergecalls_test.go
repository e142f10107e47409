/*
 * Copyright 2022 CloudWeGo Authors
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

package mergecalls

import (
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/mergecalls/debug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModule = `declare @emit(2)

func @render(1) {
bb_0:
    %x = load.arg #0
    %c = %x < 0
    switch %c {
      0 => pos,
      _ => neg,
    }
neg:
    %a = call @emit(0, %x)
    goto out
pos:
    %b = call @emit(1, %x)
    goto out
out:
    %r = φ(neg: %a, pos: %b)
    ret %r
}
`

func TestOptimize_MergesCalls(t *testing.T) {
	debug.ResetStats()
	out, err := Optimize([]byte(testModule), WithVerify(true))
	require.NoError(t, err)
	text := string(out)
	assert.Equal(t, 1, strings.Count(text, "call @emit("), text)
	assert.Contains(t, text, "declare @emit(2)")
	assert.NotContains(t, text, "φ")
	assert.Contains(t, text, "unreachable")

	/* the counters are updated */
	st := debug.GetStats()
	assert.Equal(t, 1, st.Merge.Functions)
	assert.Equal(t, 1, st.Merge.Groups)
	assert.Equal(t, 2, st.Merge.CallSites)
	assert.Equal(t, 4, st.Demote.Phis)
	assert.NotZero(t, st.Demote.Registers)

	/* optimizing the output again does nothing */
	again, err := Optimize(out, WithVerify(true))
	require.NoError(t, err)
	assert.Equal(t, text, string(again))
	assert.Equal(t, 1, debug.GetStats().Merge.Functions)
}

func TestOptimize_NoDemotion(t *testing.T) {
	out, err := Optimize([]byte(testModule), WithDemotion(false), WithVerify(true))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "call @emit("))
	assert.Contains(t, string(out), "φ")
	assert.NotContains(t, string(out), "alloca")
}

func TestOptimize_MinCallSites(t *testing.T) {
	out, err := Optimize([]byte(testModule), WithMinCallSites(3))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(out), "call @emit("))
	assert.Panics(t, func() { WithMinCallSites(1) })
}

func TestOptimize_Graphviz(t *testing.T) {
	out, err := Optimize([]byte(testModule), WithGraphviz(true))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), `digraph "render" {`), string(out))
	assert.Contains(t, string(out), "START -> ")
}

func TestOptimize_SyntaxError(t *testing.T) {
	_, err := Optimize([]byte("func @f(0) {\nbb_0:\n    %1 = frobnicate 1\n    ret %1\n}\n"))
	require.Error(t, err)
	var se SyntaxError
	require.True(t, errors.As(err, &se), "%T", err)
	assert.Equal(t, 3, se.Line)
	assert.Contains(t, se.Reason, "frobnicate")
}

func TestOptimize_VerifyError(t *testing.T) {
	_, err := Optimize([]byte("func @f(0) {\nbb_0:\n    goto bb_1\nbb_1:\n    %1 = copy 1\n    goto bb_2\nbb_2:\n    ret %2\nbb_3:\n    %2 = copy 2\n    goto bb_2\n}\n"))
	require.Error(t, err)
	var ve VerifyError
	require.True(t, errors.As(err, &ve), "%T", err)
	assert.Equal(t, "f", ve.Func)
	assert.Equal(t, 2, ve.Block)
}

func TestOptions_Setters(t *testing.T) {
	old := SetMinCallSites(4)
	assert.Equal(t, 4, SetMinCallSites(old))
	assert.Panics(t, func() { SetMinCallSites(0) })
	v := SetVerify(true)
	assert.True(t, SetVerify(v))
}
