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
	"github.com/cloudwego/mergecalls/internal/opts"
	"github.com/cloudwego/mergecalls/internal/ssa"
)

// Optimize reads a module in textual SSA form, merges the call sites of
// every function definition, and returns the resulting module in textual
// form, or in Graphviz DOT format if WithGraphviz is set.
//
// The input module is always verified. The output is verified when
// WithVerify is set, as long as demotion is not disabled, since merged
// functions are not in SSA form until demoted.
func Optimize(src []byte, options ...Option) ([]byte, error) {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}

	/* parse the module */
	m, err := ssa.ParseModule(string(src))
	if err != nil {
		return nil, err
	}

	/* the passes only work on well-formed functions */
	if err = verifyModule(m); err != nil {
		return nil, err
	}

	/* merge the call sites */
	ssa.Optimize(m, o)

	/* verify the result if needed */
	if o.Verify && o.Demote {
		if err = verifyModule(m); err != nil {
			return nil, err
		}
	}

	/* render the module */
	if o.Graphviz {
		return []byte(ssa.ModuleGraphviz(m)), nil
	} else {
		return []byte(m.String()), nil
	}
}

func verifyModule(m *ssa.Module) error {
	for _, fn := range m.Funcs {
		if err := ssa.Verify(fn); err != nil {
			return err
		}
	}
	return nil
}
