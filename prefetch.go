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
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
)

// Parse decodes a single prefetch file. Fatal errors, a bad signature, an
// unknown version or undecodable compression, return nil and the error. A
// file with single malformed sections still returns a record; the failed
// sections are listed in its SectionErrors and their fields stay empty.
func Parse(data []byte) (*Prefetch, error) {
	raw, err := Decompress(data)
	if err != nil {
		return nil, err
	}

	c := newCursor(raw)
	lay, err := dispatch(c)
	if err != nil {
		return nil, err
	}

	hdr, err := decodeHeader(c)
	if err != nil {
		// dispatch validated the buffer covers the fixed header
		return nil, err
	}

	p := &Prefetch{Header: hdr}

	p.Info, err = decodeFileInformation(c, lay)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedSection, err.Error())
	}

	// The variable sections are independent of each other; one malformed
	// section degrades only itself.
	if p.Metrics, err = decodeMetrics(c, lay, p.Info); err != nil {
		p.addSectionError(sectionMetrics, err)
	}
	if p.TraceChains, err = decodeTraceChains(c, p.Info); err != nil {
		p.addSectionError(sectionTraceChains, err)
	}
	if p.FilenameStrings, err = decodeFilenameStrings(c, p.Info); err != nil {
		p.addSectionError(sectionFilenames, err)
	}
	if p.Volumes, err = decodeVolumes(c, lay, p.Info); err != nil {
		p.addSectionError(sectionVolumes, err)
	}
	for _, vol := range p.Volumes {
		p.FileReferences = append(p.FileReferences, vol.FileReferences...)
	}

	p.HashVerified = validateHash(p, lay)
	return p, nil
}

// LoadPrefetch reads and decodes a prefetch file from a reader.
func LoadPrefetch(r io.Reader) (*Prefetch, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
