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
    `html`
    `strconv`
    `strings`

    `github.com/oleiade/lane`
)

type _Edge struct {
    A int
    B int
}

func dotrows(w *int, buf []string, s string) []string {
    for _, ss := range strings.Split(s, "\n") {
        vv := strings.ReplaceAll(html.EscapeString(ss), " ", "&nbsp;")
        buf = append(buf, fmt.Sprintf("<tr><td align=\"left\">%s</td></tr>\n", vv))
        if n := len([]rune(ss)); n > *w {
            *w = n
        }
    }
    return buf
}

func dotblocks(v []*BasicBlock) string {
    ret := make([]string, 0, len(v))
    for _, bb := range v { ret = append(ret, fmt.Sprintf("bb_%d", bb.Id)) }
    return strings.Join(ret, ", ")
}

func dumpbb(bb *BasicBlock, pred []*BasicBlock, dt *DominatorTree) string {
    var w int
    var phi []string
    var ins []string
    var term []string

    /* block body */
    for _, v := range bb.Phi { phi = dotrows(&w, phi, v.String()) }
    for _, v := range bb.Ins { ins = dotrows(&w, ins, v.String()) }

    /* blocks under construction does not have terminators */
    if bb.Term != nil {
        term = dotrows(&w, term, bb.Term.String())
    }

    /* immediate dominator */
    idomby := "∅"
    if d := dt.DominatedBy(bb); d != nil {
        idomby = fmt.Sprintf("bb_%d", d.Id)
    }

    /* block metadata */
    meta := dotrows(&w, nil, strings.Join([]string {
        fmt.Sprintf("# pred = {%s}", dotblocks(pred)),
        fmt.Sprintf("# idom_by = %s", idomby),
        fmt.Sprintf("# idom_of = {%s}", dotblocks(dt.DominatorOf(bb))),
    }, "\n"))

    /* block header */
    buf := []string {
        "<table border=\"1\" cellborder=\"0\" cellspacing=\"0\">\n",
        fmt.Sprintf("<tr><td width=\"%d\">bb_%d</td></tr>\n", w * 10 + 5, bb.Id),
    }

    /* add all the sections */
    for _, sec := range [][]string { meta, phi, ins, term } {
        if len(sec) != 0 {
            buf = append(buf, "<hr/>\n")
            buf = append(buf, sec...)
        }
    }

    /* join them together */
    buf = append(buf, "</table>")
    return strings.Join(buf, "")
}

// Graphviz renders the control flow graph of fn in DOT format. Blocks that
// are not reachable from the entry are rendered as well.
func Graphviz(fn *Func) string {
    q := lane.NewQueue()
    n := make(map[int]bool)
    e := make(map[_Edge]bool)
    buf := []string {
        "digraph " + strconv.Quote(fn.Name) + " {",
        `    xdotversion = "15"`,
        `    graph [ fontname = "Fira Code" ]`,
        `    node [ fontname = "Fira Code" fontsize="16" shape = "plaintext" ]`,
        `    edge [ fontname = "Fira Code" ]`,
    }

    /* declarations are empty graphs */
    if fn.IsDeclaration() {
        return strings.Join(append(buf, "}"), "\n")
    }

    /* dominator tree and predecessors */
    dt := BuildDominatorTree(fn)
    pred := fn.Predecessors()

    /* start from the entry block */
    buf = append(buf,
        `    START [ shape = "circle" ]`,
        fmt.Sprintf(`    START -> bb_%d`, fn.Entry().Id),
    )

    /* visit from the entry block first, then every block left */
    for _, bb := range fn.Blocks {
        if !n[bb.Id] {
            n[bb.Id] = true
            q.Enqueue(bb)
        }

        /* breadth-first search */
        for !q.Empty() {
            f := true
            p := q.Dequeue().(*BasicBlock)
            buf = append(buf, fmt.Sprintf(`    bb_%d [ label = < %s > ]`, p.Id, dumpbb(p, pred[p], dt)))

            /* blocks under construction */
            if p.Term == nil {
                continue
            }

            /* add all the edges */
            for it := p.Term.Successors(); it.Next(); {
                ln := it.Block()
                edge := _Edge{p.Id, ln.Id}

                /* enqueue the successor if not visited */
                if !n[ln.Id] {
                    n[ln.Id] = true
                    q.Enqueue(ln)
                }

                /* only one edge for each pair of blocks */
                if e[edge] {
                    continue
                }

                /* add the edge label */
                e[edge] = true
                if v, ok := it.Value(); ok {
                    f = false
                    buf = append(buf, fmt.Sprintf(`    bb_%d -> bb_%d [ label = "%d" ]`, p.Id, ln.Id, v))
                } else if f {
                    buf = append(buf, fmt.Sprintf(`    bb_%d -> bb_%d [ label = "goto" ]`, p.Id, ln.Id))
                } else {
                    buf = append(buf, fmt.Sprintf(`    bb_%d -> bb_%d [ label = "otherwise" ]`, p.Id, ln.Id))
                }
            }
        }
    }

    /* join them together */
    buf = append(buf, "}")
    return strings.Join(buf, "\n")
}

// ModuleGraphviz renders every function definition in m as a separate
// graph.
func ModuleGraphviz(m *Module) string {
    var buf []string
    for _, fn := range m.Funcs {
        if !fn.IsDeclaration() {
            buf = append(buf, Graphviz(fn))
        }
    }
    return strings.Join(buf, "\n\n") + "\n"
}
