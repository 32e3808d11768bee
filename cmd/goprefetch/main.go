// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package main implements the goprefetch command line tool that decodes
// Windows prefetch files into various output formats.
//     parse csv   Parse prefetch files to csv
//     parse json  Parse prefetch files to line delimited json
//     parse body  Parse prefetch run times to bodyfile
//     parse db    Parse prefetch files into a sqlite store
//
// Usage
//
// Parse a directory of prefetch files
//     goprefetch parse csv C:\Windows\Prefetch
//     goprefetch parse json --workers 4 CMD.EXE-087B4001.pf
//     goprefetch parse body --output timeline.body C:\Windows\Prefetch
//     goprefetch parse db --store case1.pfstore C:\Windows\Prefetch
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forensicanalysis/goprefetch/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "goprefetch",
		Short: "Decode Windows prefetch files",
	}
	rootCmd.AddCommand(cmd.Parse(), cmd.Version("v0.1.0"))
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
