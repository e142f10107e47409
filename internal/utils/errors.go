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

package utils

import (
    `fmt`
)

// SyntaxError occures when failed to parse the textual SSA form.
type SyntaxError struct {
    Line   int
    Src    string
    Reason string
}

func (self SyntaxError) Error() string {
    return fmt.Sprintf("Syntax error at line %d: %s", self.Line, self.Reason)
}

// VerifyError occures when a function violates the structural or
// dominance rules of the SSA form.
type VerifyError struct {
    Func   string
    Block  int
    Reason string
}

func (self VerifyError) Error() string {
    if self.Block < 0 {
        return fmt.Sprintf("VerifyError(@%s): %s", self.Func, self.Reason)
    } else {
        return fmt.Sprintf("VerifyError(@%s, bb_%d): %s", self.Func, self.Block, self.Reason)
    }
}

func ESyntax(line int, src string, reason string) SyntaxError {
    return SyntaxError {
        Line   : line,
        Src    : src,
        Reason : reason,
    }
}

func ESyntaxf(line int, src string, format string, args ...interface{}) SyntaxError {
    return ESyntax(line, src, fmt.Sprintf(format, args...))
}

func EFunc(fn string, reason string) VerifyError {
    return VerifyError {
        Func   : fn,
        Block  : -1,
        Reason : reason,
    }
}

func EBlock(fn string, bb int, format string, args ...interface{}) VerifyError {
    return VerifyError {
        Func   : fn,
        Block  : bb,
        Reason : fmt.Sprintf(format, args...),
    }
}
