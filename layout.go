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

import "github.com/pkg/errors"

// Version is the prefetch format version code from the file header.
type Version uint32

// Known format versions.
const (
	VersionXP    Version = 17 // Windows XP, 2003
	VersionVista Version = 23 // Windows Vista, 7
	VersionWin8  Version = 26 // Windows 8, 8.1
	VersionWin10 Version = 30 // Windows 10, 11
)

func (v Version) String() string {
	switch v {
	case VersionXP:
		return "Windows XP/2003"
	case VersionVista:
		return "Windows Vista/7"
	case VersionWin8:
		return "Windows 8/8.1"
	case VersionWin10:
		return "Windows 10/11"
	}
	return "unknown"
}

// Fixed header geometry, identical in all versions. The version code comes
// first, the SCCA magic follows at offset 4.
const (
	versionOffset    = 0
	signatureOffset  = 4
	fileSizeOffset   = 12
	executableOffset = 16
	executableSize   = 60
	hashOffset       = 76
	fileInfoOffset   = 84
)

var signature = []byte("SCCA")

// The nine section offset/count fields at the start of the file information
// block are laid out identically in every version; only the fields behind
// them move.
const (
	metricsOffsetField      = fileInfoOffset
	metricsCountField       = fileInfoOffset + 4
	traceChainsOffsetField  = fileInfoOffset + 8
	traceChainsCountField   = fileInfoOffset + 12
	filenameStringsOffField = fileInfoOffset + 16
	filenameStringsLenField = fileInfoOffset + 20
	volumesOffsetField      = fileInfoOffset + 24
	volumesCountField       = fileInfoOffset + 28
	volumesSizeField        = fileInfoOffset + 32
)

// layout carries the version dependent structure of a prefetch file as
// data: field offsets, entry sizes and the hash strategy of that format
// generation. Adding a version means adding a table entry.
type layout struct {
	version Version

	lastRunOffset  int // first FILETIME slot in the file information block
	lastRunSlots   int
	runCountOffset int
	fileInfoSize   int

	metricsEntrySize  int
	metricsHasFileRef bool
	volumeEntrySize   int

	hash hashFunc
}

// layouts is the closed table of known format generations. Version dispatch
// is a pure lookup, an unknown code never falls back to a guessed layout.
var layouts = map[Version]layout{
	VersionXP: {
		version:          VersionXP,
		lastRunOffset:    fileInfoOffset + 36,
		lastRunSlots:     1,
		runCountOffset:   fileInfoOffset + 60,
		fileInfoSize:     68,
		metricsEntrySize: 20,
		volumeEntrySize:  40,
		hash:             sccaXPHash,
	},
	VersionVista: {
		version:           VersionVista,
		lastRunOffset:     fileInfoOffset + 44,
		lastRunSlots:      1,
		runCountOffset:    fileInfoOffset + 68,
		fileInfoSize:      156,
		metricsEntrySize:  32,
		metricsHasFileRef: true,
		volumeEntrySize:   104,
		hash:              sccaVistaHash,
	},
	VersionWin8: {
		version:           VersionWin8,
		lastRunOffset:     fileInfoOffset + 44,
		lastRunSlots:      8,
		runCountOffset:    fileInfoOffset + 124,
		fileInfoSize:      224,
		metricsEntrySize:  32,
		metricsHasFileRef: true,
		volumeEntrySize:   104,
		hash:              scca2008Hash,
	},
	VersionWin10: {
		version:           VersionWin10,
		lastRunOffset:     fileInfoOffset + 44,
		lastRunSlots:      8,
		runCountOffset:    fileInfoOffset + 124,
		fileInfoSize:      224,
		metricsEntrySize:  32,
		metricsHasFileRef: true,
		volumeEntrySize:   96,
		hash:              scca2008Hash,
	},
}

// dispatch validates the signature, reads the version code and selects the
// matching layout. It touches nothing beyond the fixed header.
func dispatch(c *cursor) (layout, error) {
	sig, err := c.Bytes(signatureOffset, 4)
	if err != nil {
		return layout{}, errors.Wrap(ErrBadSignature, "file shorter than the fixed header")
	}
	if string(sig) != string(signature) {
		return layout{}, errors.Wrapf(ErrBadSignature, "got % x", sig)
	}
	code, err := c.Uint32(versionOffset)
	if err != nil {
		return layout{}, err
	}
	lay, ok := layouts[Version(code)]
	if !ok {
		return layout{}, errors.Wrapf(ErrUnsupportedVersion, "version code %d", code)
	}
	return lay, nil
}
