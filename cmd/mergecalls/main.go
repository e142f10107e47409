// Copyright 2022 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/cloudwego/mergecalls"
	"github.com/cloudwego/mergecalls/debug"
	"github.com/davecgh/go-spew/spew"
)

var (
	OutputFile   string
	Graphviz     bool
	Verify       bool
	NoDemote     bool
	DumpStats    bool
	MinCallSites int
)

func init() {
	flag.StringVar(&OutputFile, "o", "", "output file, defaults to stdout")
	flag.BoolVar(&Graphviz, "dot", false, "write the result in Graphviz DOT format")
	flag.BoolVar(&Verify, "verify", false, "verify the functions after transformation")
	flag.BoolVar(&NoDemote, "no-demote", false, "do not demote registers to stack slots after merging")
	flag.BoolVar(&DumpStats, "stats", false, "dump merging statistics to stderr")
	flag.IntVar(&MinCallSites, "min-call-sites", 0, "minimum number of call sites to merge a callee")
}

func readInput() ([]byte, error) {
	switch flag.NArg() {
	case 0:
		return ioutil.ReadAll(os.Stdin)
	case 1:
		if fn := flag.Arg(0); fn == "-" {
			return ioutil.ReadAll(os.Stdin)
		} else {
			return ioutil.ReadFile(fn)
		}
	default:
		flag.Usage()
		os.Exit(2)
		return nil, nil
	}
}

func options() []mergecalls.Option {
	ret := []mergecalls.Option{
		mergecalls.WithGraphviz(Graphviz),
		mergecalls.WithVerify(Verify),
		mergecalls.WithDemotion(!NoDemote),
	}
	if MinCallSites != 0 {
		ret = append(ret, mergecalls.WithMinCallSites(MinCallSites))
	}
	return ret
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [file.ssa]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if MinCallSites != 0 && MinCallSites < 2 {
		log.Fatalln(fmt.Errorf("invalid -min-call-sites %d: must be at least 2", MinCallSites))
	}
	src, err := readInput()
	if err != nil {
		log.Fatalln(fmt.Errorf("read input failed: %w", err))
	}
	out, err := mergecalls.Optimize(src, options()...)
	if err != nil {
		log.Fatalln(err)
	}
	if DumpStats {
		spew.Fdump(os.Stderr, debug.GetStats())
	}
	if OutputFile == "" {
		_, err = os.Stdout.Write(out)
	} else {
		err = ioutil.WriteFile(OutputFile, out, 0644)
	}
	if err != nil {
		log.Fatalln(fmt.Errorf("write output failed: %w", err))
	}
}
