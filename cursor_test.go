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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCursorBounds(t *testing.T) {
	c := newCursor([]byte{1, 2, 3, 4})

	v, err := c.Uint32(0)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x04030201), v)

	_, err = c.Uint32(1)
	assert.Equal(t, ErrOutOfBounds, errors.Cause(err))
	_, err = c.Uint8(4)
	assert.Equal(t, ErrOutOfBounds, errors.Cause(err))
	_, err = c.Uint64(0)
	assert.Equal(t, ErrOutOfBounds, errors.Cause(err))
	_, err = c.Bytes(2, 3)
	assert.Equal(t, ErrOutOfBounds, errors.Cause(err))
	_, err = c.Bytes(-1, 2)
	assert.Equal(t, ErrOutOfBounds, errors.Cause(err))
}

func TestCursorUTF16String(t *testing.T) {
	c := newCursor(encodeUTF16("CMD.EXE\x00garbage"))

	s, err := c.UTF16String(0, c.Len())
	assert.NoError(t, err)
	assert.Equal(t, "CMD.EXE", s)

	// no terminator, the whole window is decoded
	c = newCursor(encodeUTF16("AB"))
	s, err = c.UTF16String(0, 4)
	assert.NoError(t, err)
	assert.Equal(t, "AB", s)

	_, err = c.UTF16String(2, 4)
	assert.Equal(t, ErrOutOfBounds, errors.Cause(err))
}

func TestDecodeUTF16Invalid(t *testing.T) {
	// an unpaired high surrogate decodes to the replacement character
	s := decodeUTF16([]byte{0x00, 0xd8})
	assert.Equal(t, "�", s)
}
