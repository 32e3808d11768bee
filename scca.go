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
	"strings"
	"unicode/utf16"
)

// The prefetch hash in the header is computed by Windows over the uppercase
// device path of the executable. Three published hash functions exist, one
// per format generation; each layout selects its own. The stored hash is an
// integrity signal only: a mismatch marks the record as unverified, a
// renamed or relocated prefetch file is still informative.

// hashFunc computes a prefetch path hash over UTF-16 code units.
type hashFunc func(path string) uint32

func pathUnits(path string) []uint16 {
	return utf16.Encode([]rune(strings.ToUpper(path)))
}

// sccaXPHash is the hash function of the XP and 2003 generation.
func sccaXPHash(path string) uint32 {
	hash := uint64(0)
	for _, u := range pathUnits(path) {
		hash = (hash*37 + uint64(u)) & 0xffffffff
	}
	hash = (hash * 314159269) & 0xffffffff
	if hash > 0x80000000 {
		hash = 1<<32 - hash
	}
	return uint32((hash % 1000000007) & 0xffffffff)
}

// sccaVistaHash is the hash function of the Vista and Windows 7 generation.
func sccaVistaHash(path string) uint32 {
	hash := uint32(314159)
	for _, u := range pathUnits(path) {
		hash = hash*37 + uint32(u)
	}
	return hash
}

// scca2008Hash is the hash function used since Windows 8. It folds eight
// characters per round and consumes a possible remainder like the Vista
// function.
func scca2008Hash(path string) uint32 {
	units := pathUnits(path)
	hash := uint32(314159)
	i := 0
	for ; i+8 < len(units); i += 8 {
		block := uint32(units[i+1]) * 37
		block += uint32(units[i+2])
		block *= 37
		block += uint32(units[i+3])
		block *= 37
		block += uint32(units[i+4])
		block *= 37
		block += uint32(units[i+5])
		block *= 37
		block += uint32(units[i+6])
		block *= 37
		block += uint32(units[i]) * 442596621
		block += uint32(units[i+7])
		hash = block - hash*803794207
	}
	for ; i < len(units); i++ {
		hash = hash*37 + uint32(units[i])
	}
	return hash
}

// validateHash recomputes the expected header hash and compares it to the
// stored one. The best recoverable input is the full path of the executable
// from the filename string table; without one the device path of the first
// volume joined with the executable name is used, without volumes the bare
// executable name.
func validateHash(p *Prefetch, lay layout) bool {
	return lay.hash(hashPath(p)) == p.Header.Hash
}

func hashPath(p *Prefetch) string {
	exe := strings.ToUpper(p.Header.Executable)
	for _, name := range p.FilenameStrings {
		upper := strings.ToUpper(name)
		if strings.HasSuffix(upper, "\\"+exe) {
			return name
		}
	}
	if len(p.Volumes) > 0 && p.Volumes[0].DevicePath != "" {
		return strings.TrimRight(p.Volumes[0].DevicePath, "\\") + "\\" + p.Header.Executable
	}
	return p.Header.Executable
}
