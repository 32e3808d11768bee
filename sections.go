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

// Section names used in SectionError records.
const (
	sectionFileInformation = "file information"
	sectionMetrics         = "file metrics"
	sectionTraceChains     = "trace chains"
	sectionFilenames       = "filename strings"
	sectionVolumes         = "volume information"
)

func decodeHeader(c *cursor) (Header, error) {
	var hdr Header
	var err error
	var code uint32
	if code, err = c.Uint32(versionOffset); err != nil {
		return hdr, err
	}
	hdr.Version = Version(code)
	if hdr.FileSize, err = c.Uint32(fileSizeOffset); err != nil {
		return hdr, err
	}
	if hdr.Executable, err = c.UTF16String(executableOffset, executableSize); err != nil {
		return hdr, err
	}
	if hdr.Hash, err = c.Uint32(hashOffset); err != nil {
		return hdr, err
	}
	return hdr, nil
}

// decodeFileInformation reads the section directory. Unlike the sections it
// addresses, a broken file information block is fatal, without it nothing
// else can be located.
func decodeFileInformation(c *cursor, lay layout) (FileInformation, error) {
	var info FileInformation

	if err := c.check(fileInfoOffset, lay.fileInfoSize); err != nil {
		return info, err
	}

	fields := []struct {
		offset int
		dst    *uint32
	}{
		{metricsOffsetField, &info.MetricsOffset},
		{metricsCountField, &info.MetricsCount},
		{traceChainsOffsetField, &info.TraceChainsOffset},
		{traceChainsCountField, &info.TraceChainsCount},
		{filenameStringsOffField, &info.FilenameStringsOffset},
		{filenameStringsLenField, &info.FilenameStringsSize},
		{volumesOffsetField, &info.VolumesOffset},
		{volumesCountField, &info.VolumesCount},
		{volumesSizeField, &info.VolumesSize},
	}
	for _, f := range fields {
		v, err := c.Uint32(f.offset)
		if err != nil {
			return info, err
		}
		*f.dst = v
	}

	for slot := 0; slot < lay.lastRunSlots; slot++ {
		t, err := c.Uint64(lay.lastRunOffset + slot*8)
		if err != nil {
			return info, err
		}
		info.LastRunTimes = append(info.LastRunTimes, t)
	}

	runCount, err := c.Uint32(lay.runCountOffset)
	if err != nil {
		return info, err
	}
	info.RunCount = runCount
	return info, nil
}

func decodeMetrics(c *cursor, lay layout, info FileInformation) ([]FileMetric, error) {
	base := int(info.MetricsOffset)
	count := int(info.MetricsCount)
	if err := c.check(base, count*lay.metricsEntrySize); err != nil {
		return nil, err
	}

	metrics := make([]FileMetric, 0, count)
	for i := 0; i < count; i++ {
		entry := base + i*lay.metricsEntrySize
		var m FileMetric
		var err error
		if m.StartTime, err = c.Uint32(entry); err != nil {
			return nil, err
		}
		if m.Duration, err = c.Uint32(entry + 4); err != nil {
			return nil, err
		}
		next := entry + 8
		if lay.metricsHasFileRef {
			if m.AverageDuration, err = c.Uint32(next); err != nil {
				return nil, err
			}
			next += 4
		}
		if m.FilenameOffset, err = c.Uint32(next); err != nil {
			return nil, err
		}
		if m.FilenameLength, err = c.Uint32(next + 4); err != nil {
			return nil, err
		}
		if lay.metricsHasFileRef {
			ref, err := c.Uint64(entry + 24)
			if err != nil {
				return nil, err
			}
			m.FileReference = FileReference(ref)
		}

		// The filename fields index into the filename string table. An
		// entry pointing outside of it is malformed.
		nameOffset := int(info.FilenameStringsOffset) + int(m.FilenameOffset)
		nameBytes := (int(m.FilenameLength) + 1) * 2
		if int(m.FilenameOffset)+nameBytes > int(info.FilenameStringsSize) {
			return nil, errors.Wrapf(ErrMalformedSection,
				"metrics entry %d references filename outside the string table", i)
		}
		if m.Filename, err = c.UTF16String(nameOffset, nameBytes); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func decodeTraceChains(c *cursor, info FileInformation) ([]TraceChain, error) {
	const entrySize = 12
	base := int(info.TraceChainsOffset)
	count := int(info.TraceChainsCount)
	if err := c.check(base, count*entrySize); err != nil {
		return nil, err
	}

	chains := make([]TraceChain, 0, count)
	for i := 0; i < count; i++ {
		entry := base + i*entrySize
		var t TraceChain
		var err error
		if t.NextIndex, err = c.Uint32(entry); err != nil {
			return nil, err
		}
		if t.BlockLoadCount, err = c.Uint32(entry + 4); err != nil {
			return nil, err
		}
		if t.SampleDuration, err = c.Uint8(entry + 9); err != nil {
			return nil, err
		}
		chains = append(chains, t)
	}
	return chains, nil
}

// decodeFilenameStrings splits the UTF-16 blob of the filename string table
// into its null terminated substrings.
func decodeFilenameStrings(c *cursor, info FileInformation) ([]string, error) {
	blob, err := c.Bytes(int(info.FilenameStringsOffset), int(info.FilenameStringsSize))
	if err != nil {
		return nil, err
	}

	var names []string
	start := 0
	for i := 0; i+1 < len(blob); i += 2 {
		if blob[i] == 0 && blob[i+1] == 0 {
			if i > start {
				names = append(names, decodeUTF16(blob[start:i]))
			}
			start = i + 2
		}
	}
	if start+1 < len(blob) {
		names = append(names, decodeUTF16(blob[start:]))
	}
	return names, nil
}

func decodeVolumes(c *cursor, lay layout, info FileInformation) ([]VolumeInformation, error) {
	base := int(info.VolumesOffset)
	count := int(info.VolumesCount)
	if err := c.check(base, count*lay.volumeEntrySize); err != nil {
		return nil, err
	}

	volumes := make([]VolumeInformation, 0, count)
	for i := 0; i < count; i++ {
		entry := base + i*lay.volumeEntrySize
		vol, err := decodeVolume(c, base, entry)
		if err != nil {
			return nil, errors.Wrapf(err, "volume %d", i)
		}
		volumes = append(volumes, vol)
	}
	return volumes, nil
}

// decodeVolume reads one volume information entry. The device path,
// directory string and file reference offsets inside the entry are relative
// to the start of the volume information section.
func decodeVolume(c *cursor, sectionBase, entry int) (VolumeInformation, error) {
	var vol VolumeInformation

	devPathOffset, err := c.Uint32(entry)
	if err != nil {
		return vol, err
	}
	devPathLength, err := c.Uint32(entry + 4)
	if err != nil {
		return vol, err
	}
	if vol.CreationTime, err = c.Uint64(entry + 8); err != nil {
		return vol, err
	}
	if vol.SerialNumber, err = c.Uint32(entry + 16); err != nil {
		return vol, err
	}
	refsOffset, err := c.Uint32(entry + 20)
	if err != nil {
		return vol, err
	}
	refsSize, err := c.Uint32(entry + 24)
	if err != nil {
		return vol, err
	}
	dirsOffset, err := c.Uint32(entry + 28)
	if err != nil {
		return vol, err
	}
	dirsCount, err := c.Uint32(entry + 32)
	if err != nil {
		return vol, err
	}

	path, err := c.UTF16String(sectionBase+int(devPathOffset), (int(devPathLength)+1)*2)
	if err != nil {
		return vol, err
	}
	vol.DevicePath = path

	if vol.FileReferences, err = decodeFileReferences(c, sectionBase+int(refsOffset), int(refsSize)); err != nil {
		return vol, err
	}
	if vol.Directories, err = decodeDirectoryStrings(c, sectionBase+int(dirsOffset), int(dirsCount)); err != nil {
		return vol, err
	}
	return vol, nil
}

// decodeFileReferences reads the MFT file reference list of a volume: an
// eight byte header of version and count, then count packed references.
func decodeFileReferences(c *cursor, offset, size int) ([]FileReference, error) {
	if size == 0 {
		return nil, nil
	}
	if err := c.check(offset, size); err != nil {
		return nil, err
	}
	count, err := c.Uint32(offset + 4)
	if err != nil {
		return nil, err
	}
	if 8+int(count)*8 > size {
		return nil, errors.Wrapf(ErrMalformedSection, "%d file references exceed section of %d bytes", count, size)
	}

	refs := make([]FileReference, 0, count)
	for i := 0; i < int(count); i++ {
		v, err := c.Uint64(offset + 8 + i*8)
		if err != nil {
			return nil, err
		}
		refs = append(refs, FileReference(v))
	}
	return refs, nil
}

// decodeDirectoryStrings reads the directory string table of a volume:
// count entries of a 16 bit character count, the UTF-16 string and its null
// terminator.
func decodeDirectoryStrings(c *cursor, offset, count int) ([]string, error) {
	// Every entry occupies at least its character count and terminator, so
	// the buffer bounds the count before anything is allocated.
	if err := c.check(offset, count*4); err != nil {
		return nil, err
	}

	dirs := make([]string, 0, count)
	pos := offset
	for i := 0; i < count; i++ {
		chars, err := c.Uint16(pos)
		if err != nil {
			return nil, err
		}
		s, err := c.UTF16String(pos+2, (int(chars)+1)*2)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, s)
		pos += 2 + (int(chars)+1)*2
	}
	return dirs, nil
}
