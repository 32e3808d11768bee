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
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds of the decoder. ErrBadSignature, ErrUnsupportedVersion and
// ErrDecompression abort the decode of an input. ErrOutOfBounds is raised by
// the bounds checked reads and converted into a SectionError by the section
// decoders wherever the partial record policy applies.
var (
	ErrBadSignature       = errors.New("invalid prefetch signature")
	ErrUnsupportedVersion = errors.New("unsupported prefetch version")
	ErrDecompression      = errors.New("invalid compressed data")
	ErrMalformedSection   = errors.New("malformed section")
	ErrOutOfBounds        = errors.New("read out of bounds")
)

// A SectionError records the failure of a single section decode. It is kept
// on the record instead of aborting the parse, one broken section does not
// discard the readable rest of a file.
type SectionError struct {
	Section string
	Err     error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("section %s: %s", e.Section, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SectionError) Unwrap() error { return e.Err }

func newSectionError(section string, err error) *SectionError {
	if errors.Cause(err) == ErrOutOfBounds {
		err = errors.Wrap(ErrMalformedSection, err.Error())
	}
	return &SectionError{Section: section, Err: err}
}
