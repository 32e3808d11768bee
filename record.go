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

package goprefetch

// Header is the fixed size header common to all prefetch versions.
type Header struct {
	Version    Version `json:"version"`
	FileSize   uint32  `json:"file_size"`
	Executable string  `json:"executable"`
	Hash       uint32  `json:"hash"`
}

// FileInformation holds the offset and count pairs that address the variable
// sections, the run count and the stored last run timestamps. Timestamps are
// raw FILETIME ticks, most recent first; versions before Windows 8 store a
// single slot, later versions eight.
type FileInformation struct {
	MetricsOffset         uint32   `json:"-"`
	MetricsCount          uint32   `json:"metrics_count"`
	TraceChainsOffset     uint32   `json:"-"`
	TraceChainsCount      uint32   `json:"trace_chains_count"`
	FilenameStringsOffset uint32   `json:"-"`
	FilenameStringsSize   uint32   `json:"filename_strings_size"`
	VolumesOffset         uint32   `json:"-"`
	VolumesCount          uint32   `json:"volumes_count"`
	VolumesSize           uint32   `json:"-"`
	LastRunTimes          []uint64 `json:"last_run_times"`
	RunCount              uint32   `json:"run_count"`
}

// LastRun returns the most recent stored run timestamp, zero if none is set.
func (i *FileInformation) LastRun() uint64 {
	if len(i.LastRunTimes) == 0 {
		return 0
	}
	return i.LastRunTimes[0]
}

// FileMetric describes one file referenced during the traced runs.
// AverageDuration and FileReference are zero for XP generation files, that
// layout does not store them.
type FileMetric struct {
	StartTime       uint32        `json:"start_time"`
	Duration        uint32        `json:"duration"`
	AverageDuration uint32        `json:"average_duration,omitempty"`
	FilenameOffset  uint32        `json:"-"`
	FilenameLength  uint32        `json:"-"`
	Filename        string        `json:"filename"`
	FileReference   FileReference `json:"file_reference,omitempty"`
}

// traceChainEOF marks the end of a trace chain.
const traceChainEOF = 0xffffffff

// TraceChain is one segment of the linked execution trace.
type TraceChain struct {
	NextIndex      uint32 `json:"next_index"`
	BlockLoadCount uint32 `json:"block_load_count"`
	SampleDuration uint8  `json:"sample_duration"`
}

// Last reports whether the segment ends its chain.
func (t *TraceChain) Last() bool { return t.NextIndex == traceChainEOF }

// FileReference is an MFT style file reference, an entry number in the low
// 48 bits packed with a sequence number in the high 16 bits.
type FileReference uint64

// Entry returns the MFT entry number.
func (r FileReference) Entry() uint64 { return uint64(r) & 0xffffffffffff }

// Sequence returns the MFT sequence number.
func (r FileReference) Sequence() uint16 { return uint16(uint64(r) >> 48) }

// VolumeInformation describes one volume the referenced files lived on,
// including its directory string table and MFT file reference list.
type VolumeInformation struct {
	DevicePath     string          `json:"device_path"`
	CreationTime   uint64          `json:"creation_time"`
	SerialNumber   uint32          `json:"serial_number"`
	Directories    []string        `json:"directories,omitempty"`
	FileReferences []FileReference `json:"file_references,omitempty"`
}

// Prefetch is the fully decoded record of one prefetch file. It is populated
// in a single decode pass and not mutated afterwards. SectionErrors lists
// sections that could not be decoded; their fields stay empty while all
// other sections remain valid.
type Prefetch struct {
	Header          Header              `json:"header"`
	Info            FileInformation     `json:"info"`
	Metrics         []FileMetric        `json:"metrics,omitempty"`
	TraceChains     []TraceChain        `json:"trace_chains,omitempty"`
	FilenameStrings []string            `json:"filename_strings,omitempty"`
	Volumes         []VolumeInformation `json:"volumes,omitempty"`
	FileReferences  []FileReference     `json:"file_references,omitempty"`
	HashVerified    bool                `json:"hash_verified"`
	SectionErrors   []*SectionError     `json:"-"`
	Index           int                 `json:"-"`
}

func (p *Prefetch) addSectionError(section string, err error) {
	p.SectionErrors = append(p.SectionErrors, newSectionError(section, err))
}
