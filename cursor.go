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

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
)

// cursor is a bounds checked view over a byte buffer. Every buffer access of
// the decoder goes through it, so out of range offsets from untrusted input
// surface as ErrOutOfBounds at a single place instead of panicking somewhere
// in the section decoders. Byte ranges are returned as sub slices of the one
// underlying buffer, never as copies.
type cursor struct {
	data []byte
}

func newCursor(data []byte) *cursor { return &cursor{data: data} }

func (c *cursor) Len() int { return len(c.data) }

func (c *cursor) check(offset, size int) error {
	if offset < 0 || size < 0 || offset+size < 0 || offset+size > len(c.data) {
		return errors.Wrapf(ErrOutOfBounds, "%d bytes at offset %d, buffer has %d", size, offset, len(c.data))
	}
	return nil
}

// Bytes returns size bytes at offset as a view into the buffer.
func (c *cursor) Bytes(offset, size int) ([]byte, error) {
	if err := c.check(offset, size); err != nil {
		return nil, err
	}
	return c.data[offset : offset+size], nil
}

func (c *cursor) Uint8(offset int) (uint8, error) {
	if err := c.check(offset, 1); err != nil {
		return 0, err
	}
	return c.data[offset], nil
}

func (c *cursor) Uint16(offset int) (uint16, error) {
	if err := c.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(c.data[offset:]), nil
}

func (c *cursor) Uint32(offset int) (uint32, error) {
	if err := c.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(c.data[offset:]), nil
}

func (c *cursor) Uint64(offset int) (uint64, error) {
	if err := c.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(c.data[offset:]), nil
}

// UTF16String decodes little endian UTF-16 code units starting at offset up
// to the first null unit or maxBytes, whichever comes first. Broken code
// units, like unpaired surrogates, become the unicode replacement character
// instead of failing the read.
func (c *cursor) UTF16String(offset, maxBytes int) (string, error) {
	raw, err := c.Bytes(offset, maxBytes)
	if err != nil {
		return "", err
	}
	return decodeUTF16(raw), nil
}

func decodeUTF16(raw []byte) string {
	raw = raw[:len(raw)&^1]
	for i := 0; i < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			raw = raw[:i]
			break
		}
	}
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		// The UTF-16 decoder substitutes broken input, it does not error.
		return ""
	}
	return string(decoded)
}
