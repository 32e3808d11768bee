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

import (
	"encoding/binary"
	"strings"
	"testing"
	"unicode/utf16"
)

// testFile describes a synthetic prefetch file assembled by buildPrefetch.
type testFile struct {
	version    Version
	executable string
	runCount   uint32
	lastRuns   []uint64
	files      []string // full paths for the filename string table and metrics
	devicePath string
	volSerial  uint32
	volCreated uint64
	dirs       []string
	refs       []FileReference
	breakHash  bool
}

func encodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

// buildPrefetch assembles a structurally valid uncompressed prefetch buffer
// of the given version. Section order: metrics, trace chains, filename
// strings, volume information (device path, file references, directory
// strings, all section relative).
func buildPrefetch(t *testing.T, tf testFile) []byte {
	t.Helper()

	lay, ok := layouts[tf.version]
	if !ok {
		t.Fatalf("no layout for version %d", tf.version)
	}

	// filename string table blob and the byte offset of every entry
	var blob []byte
	offsets := make([]uint32, len(tf.files))
	for i, name := range tf.files {
		offsets[i] = uint32(len(blob))
		blob = append(blob, encodeUTF16(name)...)
		blob = append(blob, 0, 0)
	}

	metricsOffset := fileInfoOffset + lay.fileInfoSize
	metricsSize := len(tf.files) * lay.metricsEntrySize
	chainsOffset := metricsOffset + metricsSize
	chainsSize := len(tf.files) * 12
	namesOffset := chainsOffset + chainsSize
	volumesOffset := namesOffset + len(blob)

	// volume payload, offsets relative to volumesOffset
	devPath := encodeUTF16(tf.devicePath)
	devPathOffset := lay.volumeEntrySize
	refsOffset := devPathOffset + len(devPath) + 2
	refsSize := 8 + 8*len(tf.refs)
	dirsOffset := refsOffset + refsSize
	dirsSize := 0
	for _, dir := range tf.dirs {
		dirsSize += 2 + len(encodeUTF16(dir)) + 2
	}
	volumesSize := dirsOffset + dirsSize

	total := volumesOffset + volumesSize
	b := make([]byte, total)
	put32 := func(off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
	put64 := func(off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }

	// header
	put32(versionOffset, uint32(tf.version))
	copy(b[signatureOffset:], signature)
	put32(fileSizeOffset, uint32(total))
	copy(b[executableOffset:executableOffset+executableSize], encodeUTF16(tf.executable))

	hash := lay.hash(strings.ToUpper(hashInputFor(tf)))
	if tf.breakHash {
		hash++
	}
	put32(hashOffset, hash)

	// file information
	put32(metricsOffsetField, uint32(metricsOffset))
	put32(metricsCountField, uint32(len(tf.files)))
	put32(traceChainsOffsetField, uint32(chainsOffset))
	put32(traceChainsCountField, uint32(len(tf.files)))
	put32(filenameStringsOffField, uint32(namesOffset))
	put32(filenameStringsLenField, uint32(len(blob)))
	put32(volumesOffsetField, uint32(volumesOffset))
	put32(volumesCountField, 1)
	put32(volumesSizeField, uint32(volumesSize))
	for i, ticks := range tf.lastRuns {
		if i >= lay.lastRunSlots {
			break
		}
		put64(lay.lastRunOffset+8*i, ticks)
	}
	put32(lay.runCountOffset, tf.runCount)

	// file metrics
	for i := range tf.files {
		entry := metricsOffset + i*lay.metricsEntrySize
		put32(entry, uint32(i*100))
		put32(entry+4, 50)
		next := entry + 8
		if lay.metricsHasFileRef {
			put32(next, 60)
			next += 4
		}
		put32(next, offsets[i])
		put32(next+4, uint32(len(utf16.Encode([]rune(tf.files[i])))))
		if lay.metricsHasFileRef && i < len(tf.refs) {
			put64(entry+24, uint64(tf.refs[i]))
		}
	}

	// trace chains
	for i := range tf.files {
		entry := chainsOffset + i*12
		next := uint32(i + 1)
		if i == len(tf.files)-1 {
			next = traceChainEOF
		}
		put32(entry, next)
		put32(entry+4, 8)
		b[entry+9] = 1
	}

	copy(b[namesOffset:], blob)

	// volume information
	put32(volumesOffset, uint32(devPathOffset))
	put32(volumesOffset+4, uint32(len(utf16.Encode([]rune(tf.devicePath)))))
	put64(volumesOffset+8, tf.volCreated)
	put32(volumesOffset+16, tf.volSerial)
	put32(volumesOffset+20, uint32(refsOffset))
	put32(volumesOffset+24, uint32(refsSize))
	put32(volumesOffset+28, uint32(dirsOffset))
	put32(volumesOffset+32, uint32(len(tf.dirs)))

	copy(b[volumesOffset+devPathOffset:], devPath)

	put32(volumesOffset+refsOffset, 3) // list format version
	put32(volumesOffset+refsOffset+4, uint32(len(tf.refs)))
	for i, ref := range tf.refs {
		put64(volumesOffset+refsOffset+8+8*i, uint64(ref))
	}

	pos := volumesOffset + dirsOffset
	for _, dir := range tf.dirs {
		enc := encodeUTF16(dir)
		binary.LittleEndian.PutUint16(b[pos:], uint16(len(enc)/2))
		copy(b[pos+2:], enc)
		pos += 2 + len(enc) + 2
	}

	return b
}

// hashInputFor mirrors the path selection of the hash validator so the
// stored hash of a synthetic file verifies by construction.
func hashInputFor(tf testFile) string {
	exe := strings.ToUpper(tf.executable)
	for _, name := range tf.files {
		if strings.HasSuffix(strings.ToUpper(name), "\\"+exe) {
			return name
		}
	}
	if tf.devicePath != "" {
		return strings.TrimRight(tf.devicePath, "\\") + "\\" + tf.executable
	}
	return tf.executable
}

func defaultTestFile(version Version) testFile {
	return testFile{
		version:    version,
		executable: "CMD.EXE",
		runCount:   42,
		lastRuns:   []uint64{131283716640000000},
		files: []string{
			"\\DEVICE\\HARDDISKVOLUME2\\WINDOWS\\SYSTEM32\\NTDLL.DLL",
			"\\DEVICE\\HARDDISKVOLUME2\\WINDOWS\\SYSTEM32\\CMD.EXE",
			"\\DEVICE\\HARDDISKVOLUME2\\WINDOWS\\SYSTEM32\\KERNEL32.DLL",
		},
		devicePath: "\\DEVICE\\HARDDISKVOLUME2",
		volSerial:  0xa1b2c3d4,
		volCreated: 130000000000000000,
		dirs: []string{
			"\\DEVICE\\HARDDISKVOLUME2\\WINDOWS",
			"\\DEVICE\\HARDDISKVOLUME2\\WINDOWS\\SYSTEM32",
		},
		refs: []FileReference{
			FileReference(5<<48 | 1234),
			FileReference(2<<48 | 98765),
		},
	}
}
