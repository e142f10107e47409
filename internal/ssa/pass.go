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
    `github.com/cloudwego/mergecalls/internal/opts`
)

type Pass interface {
    Apply(*Func) bool
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

// Passes returns the passes to run on every function definition.
func Passes(o opts.Options) []PassDescriptor {
    return []PassDescriptor {
        { Name: "Call Site Merging", Pass: MergeCalls { MinCallSites: o.MinCallSites, NoDemote: !o.Demote } },
    }
}

// Optimize runs the passes on every function definition of m, and returns
// the number of functions modified.
func Optimize(m *Module, o opts.Options) (n int) {
    for _, fn := range m.Funcs {
        if !fn.IsDeclaration() {
            for _, p := range Passes(o) {
                if p.Pass.Apply(fn) {
                    n++
                }
            }
        }
    }
    return
}
