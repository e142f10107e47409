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
	"fmt"

	"github.com/cloudwego/mergecalls/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithVerify verifies every function after it has been transformed.
//
// The default value of this option is "false".
func WithVerify(v bool) Option {
	return func(o *opts.Options) { o.Verify = v }
}

// WithMinCallSites sets the minimum number of call sites a callee must have
// within a function before they are merged.
//
// Increasing of this option makes the transformation less aggressive, only
// callees that are called many times are merged.
//
// The default value of this option is "2", which is also the minimum.
func WithMinCallSites(n int) Option {
	if n < opts.MinCallSitesLimit {
		panic(fmt.Sprintf("mergecalls: invalid minimum call sites: %d", n))
	} else {
		return func(o *opts.Options) { o.MinCallSites = n }
	}
}

// WithDemotion controls whether registers and Phi nodes are demoted to stack
// slots after merging. Without demotion the merged functions may violate the
// dominance rules of SSA.
//
// The default value of this option is "true".
func WithDemotion(v bool) Option {
	return func(o *opts.Options) { o.Demote = v }
}

// WithGraphviz makes Optimize render the resulting module in Graphviz DOT
// format instead of the textual SSA form.
func WithGraphviz(v bool) Option {
	return func(o *opts.Options) { o.Graphviz = v }
}

// SetMinCallSites sets the default minimum number of call sites for all
// functions from now on.
//
// This value can also be configured with the `MERGECALLS_MIN_CALL_SITES`
// environment variable.
//
// Returns the old opts.MinCallSites value.
func SetMinCallSites(n int) int {
	if n < opts.MinCallSitesLimit {
		panic(fmt.Sprintf("mergecalls: invalid minimum call sites: %d", n))
	} else {
		n, opts.MinCallSites = opts.MinCallSites, n
		return n
	}
}

// SetVerify sets whether the results are verified by default.
//
// This value can also be configured with the `MERGECALLS_VERIFY` environment
// variable.
//
// Returns the old opts.Verify value.
func SetVerify(v bool) bool {
	v, opts.Verify = opts.Verify, v
	return v
}
