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

package ssa

import (
    `testing`

    `github.com/cloudwego/mergecalls/internal/utils`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestVerify_WellFormed(t *testing.T) {
    m := mustParse(t, _RoundTripSource)
    for _, fn := range m.Funcs {
        assert.NoError(t, Verify(fn), fn.Name)
    }
}

func TestVerify_Errors(t *testing.T) {
    tests := []struct {
        name   string
        src    string
        block  int
        reason string
    }{
        {
            name   : "use not dominated",
            src    : `
func @f(1) {
bb_0:
    %1 = load.arg #0
    switch %1 {
      0 => bb_1,
      _ => bb_2,
    }
bb_1:
    %2 = copy 1
    goto bb_3
bb_2:
    goto bb_3
bb_3:
    ret %2
}`,
            block  : 3,
            reason : "%2 defined in bb_1 does not dominate its use",
        },
        {
            name   : "use before definition",
            src    : `
func @f(0) {
bb_0:
    %1 = %2 + 1
    %2 = copy 1
    ret %1
}`,
            block  : 0,
            reason : "%2 is used before its definition",
        },
        {
            name   : "undefined register",
            src    : `
func @f(0) {
bb_0:
    ret %5
}`,
            block  : 0,
            reason : "use of undefined register: %5",
        },
        {
            name   : "phi missing incoming value",
            src    : `
func @f(1) {
bb_0:
    %1 = load.arg #0
    switch %1 {
      0 => bb_1,
      _ => bb_2,
    }
bb_1:
    goto bb_3
bb_2:
    goto bb_3
bb_3:
    %2 = φ(bb_1: 1)
    ret %2
}`,
            block  : 3,
            reason : "expected 2 incoming values, got 1",
        },
        {
            name   : "phi value not available",
            src    : `
func @f(1) {
bb_0:
    %1 = load.arg #0
    switch %1 {
      0 => bb_1,
      _ => bb_2,
    }
bb_1:
    %3 = copy 5
    goto bb_3
bb_2:
    goto bb_3
bb_3:
    %2 = φ(bb_1: %3, bb_2: %3)
    ret %2
}`,
            block  : 3,
            reason : "is not available at the end of bb_2",
        },
        {
            name   : "branch to entry",
            src    : `
func @f(0) {
bb_0:
    goto bb_0
}`,
            block  : 0,
            reason : "entry block has predecessors",
        },
        {
            name   : "argument out of range",
            src    : `
func @f(1) {
bb_0:
    %1 = load.arg #1
    ret %1
}`,
            block  : 0,
            reason : "argument index out of range: #1",
        },
        {
            name   : "argument outside entry",
            src    : `
func @f(1) {
bb_0:
    goto bb_1
bb_1:
    %1 = load.arg #0
    ret %1
}`,
            block  : 1,
            reason : "argument loaded outside the entry block",
        },
        {
            name   : "call arity",
            src    : `
declare @g(2)

func @f(0) {
bb_0:
    %1 = call @g(1)
    ret %1
}`,
            block  : 0,
            reason : "@g takes 2 arguments, got 1",
        },
        {
            name   : "void function returns",
            src    : `
func void @f(0) {
bb_0:
    ret 1
}`,
            block  : 0,
            reason : "void function returns a value",
        },
        {
            name   : "missing return value",
            src    : `
func @f(0) {
bb_0:
    ret
}`,
            block  : 0,
            reason : "missing return value",
        },
    }
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            m := mustParse(t, tc.src)
            err := Verify(m.Lookup("f"))
            require.Error(t, err)
            require.IsType(t, utils.VerifyError{}, err)
            assert.Equal(t, "f", err.(utils.VerifyError).Func)
            assert.Equal(t, tc.block, err.(utils.VerifyError).Block)
            assert.Contains(t, err.Error(), tc.reason)
        })
    }
}

func TestVerify_UnreachableBlocks(t *testing.T) {
    m := mustParse(t, `
func @f(0) {
bb_0:
    ret 0
bb_1:
    ret %9
bb_2:
    %9 = copy 1
    goto bb_1
}`)
    assert.NoError(t, Verify(m.Lookup("f")))
}

func TestVerify_ForeignBlock(t *testing.T) {
    m := NewModule()
    f := m.Define("f", 0, true)
    g := m.Define("g", 0, true)
    g.Entry().Term = &IrReturn{}
    f.Entry().Term = IrJump(g.Entry())
    err := Verify(f)
    require.Error(t, err)
    assert.Contains(t, err.Error(), "branch to foreign block")
}
