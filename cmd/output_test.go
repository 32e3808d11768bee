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
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/goprefetch"
)

func testOutcomes() []goprefetch.Outcome {
	record := &goprefetch.Prefetch{
		Header: goprefetch.Header{
			Version:    goprefetch.VersionWin10,
			FileSize:   4096,
			Executable: "CMD.EXE",
			Hash:       0x087b4001,
		},
		Info: goprefetch.FileInformation{
			// 2017-01-08 17:54:24 UTC
			LastRunTimes: []uint64{131283716640000000},
			RunCount:     42,
		},
		FilenameStrings: []string{
			`\DEVICE\HARDDISKVOLUME2\WINDOWS\SYSTEM32\NTDLL.DLL`,
			`\DEVICE\HARDDISKVOLUME2\WINDOWS\SYSTEM32\CMD.EXE`,
		},
		Volumes: []goprefetch.VolumeInformation{{
			DevicePath:   `\DEVICE\HARDDISKVOLUME2`,
			SerialNumber: 0xaabbccdd,
			Directories:  []string{`\DEVICE\HARDDISKVOLUME2\WINDOWS`},
		}},
		HashVerified: true,
	}
	return []goprefetch.Outcome{
		{Index: 0, Source: "CMD.EXE-087B4001.pf", Record: record},
		{Index: 1, Source: "broken.pf", Err: errors.New("bad signature")},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := writeCSV(&buf, testOutcomes())
	if err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// header plus the one good record, the broken input is skipped
	if !assert.Len(t, rows, 2) {
		return
	}
	assert.Equal(t, csvHeader, rows[0])
	row := rows[1]
	assert.Equal(t, "CMD.EXE", row[2])
	assert.Equal(t, "087B4001", row[3])
	assert.Equal(t, "true", row[4])
	assert.Equal(t, "2017-01-08 17:54:24.000000", row[9])
	assert.Equal(t, "42", row[10])
	assert.Equal(t, `\DEVICE\HARDDISKVOLUME2`, row[12])
	assert.Equal(t, "AABBCCDD", row[14])
	assert.Equal(t, "1", row[16])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	err := writeJSON(&buf, testOutcomes())
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !assert.Len(t, lines, 1) {
		return
	}
	assert.Equal(t, "CMD.EXE", gjson.Get(lines[0], "header.executable").String())
	assert.Equal(t, int64(42), gjson.Get(lines[0], "info.run_count").Int())
	assert.True(t, gjson.Get(lines[0], "hash_verified").Bool())
}

func TestWriteBody(t *testing.T) {
	var buf bytes.Buffer
	err := writeBody(&buf, testOutcomes())
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !assert.Len(t, lines, 1) {
		return
	}
	fields := strings.Split(lines[0], "|")
	if !assert.Len(t, fields, 11) {
		return
	}
	assert.Contains(t, fields[1], "CMD.EXE")
	assert.Equal(t, "4096", fields[6])
	assert.Equal(t, "1483898064", fields[7])
}

func TestNewSummary(t *testing.T) {
	summary := newSummary(testOutcomes()[0])
	assert.Equal(t, "prefetch", summary.Type)
	assert.Equal(t, "CMD.EXE", summary.Executable)
	assert.Equal(t, 42, summary.RunCount)
	assert.Equal(t, []string{"2017-01-08T17:54:24Z"}, summary.LastRunTimes)
	assert.Len(t, summary.FilesAccessed, 2)
}

func TestGatherInputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	assert.NoError(t, fs.MkdirAll("/prefetch/sub", 0755))
	assert.NoError(t, afero.WriteFile(fs, "/prefetch/CMD.EXE-087B4001.pf", []byte("a"), 0644))
	assert.NoError(t, afero.WriteFile(fs, "/prefetch/sub/NOTEPAD.EXE-D8414F97.PF", []byte("b"), 0644))
	assert.NoError(t, afero.WriteFile(fs, "/prefetch/readme.txt", []byte("c"), 0644))
	assert.NoError(t, afero.WriteFile(fs, "/single.bin", []byte("d"), 0644))

	inputs, err := gatherInputs(fs, []string{"/prefetch", "/single.bin"})
	if err != nil {
		t.Fatal(err)
	}
	// both .pf files regardless of case, the plain file as given
	if !assert.Len(t, inputs, 3) {
		return
	}
	var sources []string
	for _, input := range inputs {
		sources = append(sources, input.Source)
	}
	assert.Contains(t, sources, "/prefetch/CMD.EXE-087B4001.pf")
	assert.Contains(t, sources, "/prefetch/sub/NOTEPAD.EXE-D8414F97.PF")
	assert.Contains(t, sources, "/single.bin")

	_, err = gatherInputs(fs, []string{"/missing"})
	assert.Error(t, err)
}
