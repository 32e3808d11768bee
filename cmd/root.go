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

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/goprefetch"
	"github.com/forensicanalysis/goprefetch/pfstore"
)

// Parse is the goprefetch parse commandline subcommand
func Parse() *cobra.Command {
	var workers int
	var output string
	parseCommand := &cobra.Command{
		Use:   "parse",
		Short: "Parse prefetch files",
		Args:  requirePrefetchFiles,
	}
	parseCommand.PersistentFlags().IntVar(&workers, "workers", 0, "number of parallel workers, 0 selects the CPU count")
	parseCommand.PersistentFlags().StringVar(&output, "output", "", "write to file instead of stdout")
	parseCommand.AddCommand(
		csvCommand(&workers, &output), jsonCommand(&workers, &output),
		bodyCommand(&workers, &output), dbCommand(&workers),
	)
	return parseCommand
}

func csvCommand(workers *int, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "csv",
		Short: "Parse prefetch files to csv",
		Args:  requirePrefetchFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutput(cmd, args, *workers, *output, writeCSV)
		},
	}
}

func jsonCommand(workers *int, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "json",
		Short: "Parse prefetch files to line delimited json",
		Args:  requirePrefetchFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutput(cmd, args, *workers, *output, writeJSON)
		},
	}
}

func bodyCommand(workers *int, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "body",
		Short: "Parse prefetch run times to bodyfile",
		Args:  requirePrefetchFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutput(cmd, args, *workers, *output, writeBody)
		},
	}
}

func dbCommand(workers *int) *cobra.Command {
	var storeURL string
	dbCommand := &cobra.Command{
		Use:   "db",
		Short: "Parse prefetch files into a sqlite store",
		Args:  requirePrefetchFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := pfstore.New(storeURL)
			if err != nil {
				return err
			}
			defer store.Close()

			outcomes, err := decodeAll(cmd.Context(), args, *workers)
			if err != nil {
				return err
			}
			for _, outcome := range outcomes {
				if outcome.Err != nil {
					log.Printf("Skipping %s: %s", outcome.Source, outcome.Err)
					continue
				}
				if _, err := store.InsertStruct(newSummary(outcome)); err != nil {
					return errors.Wrapf(err, "could not insert %s", outcome.Source)
				}
			}
			return nil
		},
	}
	dbCommand.Flags().StringVar(&storeURL, "store", "prefetch.pfstore", "store directory")
	return dbCommand
}

func runOutput(cmd *cobra.Command, args []string, workers int, output string,
	write func(io.Writer, []goprefetch.Outcome) error) error {
	outcomes, err := decodeAll(cmd.Context(), args, workers)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return write(w, outcomes)
}

func decodeAll(ctx context.Context, args []string, workers int) ([]goprefetch.Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	inputs, err := gatherInputs(afero.NewOsFs(), args)
	if err != nil {
		return nil, err
	}
	return goprefetch.NewPool(workers).Run(ctx, inputs), nil
}

// gatherInputs resolves the arguments to prefetch file buffers. Directories
// are walked for .pf files, plain files are taken as given.
func gatherInputs(fs afero.Fs, args []string) ([]goprefetch.Input, error) {
	var paths []string
	for _, arg := range args {
		fi, err := fs.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = afero.Walk(fs, arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".pf") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	var inputs []goprefetch.Input
	for _, path := range paths {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, errors.Wrapf(err, "could not read %s", path)
		}
		inputs = append(inputs, goprefetch.Input{Source: path, Data: data})
	}
	return inputs, nil
}

func requirePrefetchFiles(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("requires at least one prefetch file or directory")
	}
	for _, arg := range args {
		if _, err := os.Stat(arg); os.IsNotExist(err) {
			return errors.Wrap(os.ErrNotExist, arg)
		}
	}
	return nil
}

// Version is the goprefetch version commandline subcommand
func Version(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
