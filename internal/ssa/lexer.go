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
    `fmt`
    `strconv`
    `unicode`
)

type _TokenKind uint8

const (
    _T_end _TokenKind = iota
    _T_int
    _T_reg
    _T_func
    _T_name
    _T_punc
    _T_string
)

func (self _TokenKind) String() string {
    switch self {
        case _T_end    : return "end of line"
        case _T_int    : return "integer"
        case _T_reg    : return "register"
        case _T_func   : return "function name"
        case _T_name   : return "identifier"
        case _T_punc   : return "punctuation"
        case _T_string : return "string"
        default        : return "unknown token"
    }
}

type _Token struct {
    tag _TokenKind
    str string
    val int64
}

func (self _Token) String() string {
    switch self.tag {
        case _T_end    : return "end of line"
        case _T_int    : return strconv.FormatInt(self.val, 10)
        case _T_reg    : return "%" + self.str
        case _T_func   : return "@" + self.str
        case _T_string : return strconv.Quote(self.str)
        default        : return strconv.Quote(self.str)
    }
}

func (self _Token) is(tag _TokenKind, str string) bool {
    return self.tag == tag && self.str == str
}

var _Punctuations = []string {
    "=>", "->", "<<", ">>", "==", "!=",
    "=", "(", ")", ",", ":", "{", "}", "#", "+", "-", "*", "&", "|", "^", "<",
}

func isident(c rune) bool {
    return c == '_' || c == '.' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

// tokenize splits one line of source into tokens, stopping at a `;` comment.
func tokenize(line string) ([]_Token, error) {
    var i int
    var ret []_Token
    var src = []rune(line)

    /* scan the whole line */
    for i < len(src) {
        c := src[i]

        /* skip spaces */
        if unicode.IsSpace(c) {
            i++
            continue
        }

        /* comments */
        if c == ';' {
            break
        }

        /* Phi nodes */
        if c == 'φ' {
            i++
            ret = append(ret, _Token{tag: _T_name, str: "phi"})
            continue
        }

        /* registers and function names */
        if c == '%' || c == '@' {
            p := i + 1
            for p < len(src) && isident(src[p]) { p++ }

            /* must not be empty */
            if p == i + 1 {
                return nil, fmt.Errorf("empty name after %q", c)
            }

            /* add the token */
            if c == '%' {
                ret = append(ret, _Token{tag: _T_reg, str: string(src[i + 1:p])})
            } else {
                ret = append(ret, _Token{tag: _T_func, str: string(src[i + 1:p])})
            }

            /* move to the next token */
            i = p
            continue
        }

        /* integers, possibly negative */
        if unicode.IsDigit(c) || (c == '-' && i + 1 < len(src) && unicode.IsDigit(src[i + 1])) {
            p := i + 1
            for p < len(src) && unicode.IsDigit(src[p]) { p++ }

            /* parse the integer */
            v, err := strconv.ParseInt(string(src[i:p]), 10, 64)
            if err != nil {
                return nil, fmt.Errorf("invalid integer %q", string(src[i:p]))
            }

            /* add the token */
            ret = append(ret, _Token{tag: _T_int, str: string(src[i:p]), val: v})
            i = p
            continue
        }

        /* identifiers */
        if isident(c) {
            p := i + 1
            for p < len(src) && isident(src[p]) { p++ }
            ret = append(ret, _Token{tag: _T_name, str: string(src[i:p])})
            i = p
            continue
        }

        /* quoted strings */
        if c == '"' {
            p := i + 1
            for p < len(src) && src[p] != '"' {
                if src[p] == '\\' { p++ }
                p++
            }

            /* must be terminated */
            if p >= len(src) {
                return nil, fmt.Errorf("unterminated string")
            }

            /* unquote the string */
            s, err := strconv.Unquote(string(src[i:p + 1]))
            if err != nil {
                return nil, fmt.Errorf("invalid string %s", string(src[i:p + 1]))
            }

            /* add the token */
            i = p + 1
            ret = append(ret, _Token{tag: _T_string, str: s})
            continue
        }

        /* punctuations, longest match first */
        ok := false
        for _, pp := range _Punctuations {
            if n := len([]rune(pp)); i + n <= len(src) && string(src[i:i + n]) == pp {
                i += n
                ok = true
                ret = append(ret, _Token{tag: _T_punc, str: pp})
                break
            }
        }

        /* invalid character */
        if !ok {
            return nil, fmt.Errorf("invalid character %q", c)
        }
    }

    /* all done */
    return ret, nil
}
