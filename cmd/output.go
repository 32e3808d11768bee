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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/forensicanalysis/goprefetch"
)

var csvHeader = []string{
	"Index", "Version", "ExecutableName", "PrefetchHash", "HashVerified",
	"MetricsCount", "TraceChainsCount", "FilenameStringsSize", "VolumesCount",
	"LastExecutionTime", "ExecutionCount", "FileNameStrings",
	"VolumeDevicePath", "VolumeCreateTime", "VolumeSerialNumber",
	"FileReferenceCount", "DirectoryStringCount",
}

func writeCSV(w io.Writer, outcomes []goprefetch.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			log.Printf("Skipping %s: %s", outcome.Source, outcome.Err)
			continue
		}
		if err := cw.Write(csvRecord(outcome)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(outcome goprefetch.Outcome) []string {
	record := outcome.Record
	devicePath, createTime, serial := "", "", ""
	var directoryCount int
	if len(record.Volumes) > 0 {
		vol := record.Volumes[0]
		devicePath = vol.DevicePath
		createTime = formatFiletime(vol.CreationTime)
		serial = fmt.Sprintf("%08X", vol.SerialNumber)
		for _, vol := range record.Volumes {
			directoryCount += len(vol.Directories)
		}
	}

	return []string{
		strconv.Itoa(outcome.Index),
		record.Header.Version.String(),
		record.Header.Executable,
		fmt.Sprintf("%08X", record.Header.Hash),
		strconv.FormatBool(record.HashVerified),
		strconv.Itoa(len(record.Metrics)),
		strconv.Itoa(len(record.TraceChains)),
		strconv.FormatUint(uint64(record.Info.FilenameStringsSize), 10),
		strconv.Itoa(len(record.Volumes)),
		formatFiletime(record.Info.LastRun()),
		strconv.FormatUint(uint64(record.Info.RunCount), 10),
		strings.Join(record.FilenameStrings, "|"),
		devicePath,
		createTime,
		serial,
		strconv.Itoa(len(record.FileReferences)),
		strconv.Itoa(directoryCount),
	}
}

func writeJSON(w io.Writer, outcomes []goprefetch.Outcome) error {
	enc := json.NewEncoder(w)
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			log.Printf("Skipping %s: %s", outcome.Source, outcome.Err)
			continue
		}
		if err := enc.Encode(outcome.Record); err != nil {
			return err
		}
	}
	return nil
}

// writeBody emits one sleuthkit bodyfile line per stored run timestamp, the
// run time as access time.
func writeBody(w io.Writer, outcomes []goprefetch.Outcome) error {
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			log.Printf("Skipping %s: %s", outcome.Source, outcome.Err)
			continue
		}
		record := outcome.Record
		for run, ticks := range record.Info.LastRunTimes {
			if ticks == 0 {
				continue
			}
			name := fmt.Sprintf("%s (Prefetch: %s, run %d)", record.Header.Executable, outcome.Source, run+1)
			atime := goprefetch.FiletimeToTime(ticks).Unix()
			line := fmt.Sprintf("0|%s|0|0|0|0|%d|%d|0|0|0\n", name, record.Header.FileSize, atime)
			if _, err := io.WriteString(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary is the flat prefetch artifact stored per file.
type Summary struct {
	Type          string   `structs:"type"`
	Source        string   `structs:"source"`
	Executable    string   `structs:"executable"`
	PrefetchHash  string   `structs:"prefetch_hash"`
	HashVerified  bool     `structs:"hash_verified"`
	RunCount      int      `structs:"run_count"`
	LastRunTimes  []string `structs:"last_run_times"`
	FilesAccessed []string `structs:"files_accessed"`
	VolumePaths   []string `structs:"volume_paths"`
}

func newSummary(outcome goprefetch.Outcome) Summary {
	record := outcome.Record

	var lastRuns []string
	for _, ticks := range record.Info.LastRunTimes {
		if ticks == 0 {
			continue
		}
		lastRuns = append(lastRuns, goprefetch.FiletimeToTime(ticks).Format(time.RFC3339))
	}

	var volumePaths []string
	for _, vol := range record.Volumes {
		volumePaths = append(volumePaths, vol.DevicePath)
	}

	return Summary{
		Type:          "prefetch",
		Source:        outcome.Source,
		Executable:    record.Header.Executable,
		PrefetchHash:  fmt.Sprintf("%08X", record.Header.Hash),
		HashVerified:  record.HashVerified,
		RunCount:      int(record.Info.RunCount),
		LastRunTimes:  lastRuns,
		FilesAccessed: record.FilenameStrings,
		VolumePaths:   volumePaths,
	}
}

func formatFiletime(ticks uint64) string {
	if ticks == 0 {
		return ""
	}
	return goprefetch.FiletimeToTime(ticks).Format("2006-01-02 15:04:05.000000")
}
