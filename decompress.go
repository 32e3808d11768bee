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
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Compressed prefetch files (Windows 10 and later) start with "MAM" followed
// by a flag byte and the uncompressed size. The payload is an LZXPRESS
// Huffman stream as specified in MS-XCA.
var compressedSignature = []byte("MAM")

const (
	compressedFlagBits = 0x04 // LZXPRESS Huffman payload
	compressedFlagCRC  = 0x80 // a CRC32 of the payload precedes the stream

	huffmanTableSize = 256   // 512 nibble packed code lengths
	huffmanChunkSize = 65536 // output bytes per Huffman table
	maxCodeLength    = 15
)

// Decompress unwraps the whole file compression of a prefetch file. Buffers
// without the compression signature are returned unchanged, they are the
// legacy uncompressed on-disk form. The returned buffer has exactly the
// length announced in the wrapper header.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 || !bytes.Equal(data[:3], compressedSignature) {
		return data, nil
	}
	flags := data[3]
	if flags&compressedFlagBits == 0 {
		return nil, errors.Wrapf(ErrDecompression, "unknown compression flags 0x%02x", flags)
	}
	if len(data) < 8 {
		return nil, errors.Wrap(ErrDecompression, "wrapper header truncated")
	}
	size := binary.LittleEndian.Uint32(data[4:8])
	stream := data[8:]
	if flags&compressedFlagCRC != 0 {
		// Skip the optional payload checksum.
		if len(stream) < 4 {
			return nil, errors.Wrap(ErrDecompression, "wrapper header truncated")
		}
		stream = stream[4:]
	}
	// Every 64 KiB chunk of output consumes at least its own code length
	// table, so the stream length bounds the plausible declared size.
	maxSize := (len(stream)/huffmanTableSize + 1) * huffmanChunkSize
	if int64(size) > int64(maxSize) {
		return nil, errors.Wrapf(ErrDecompression,
			"declared size %d exceeds what %d stream bytes can hold", size, len(stream))
	}
	return lzxpressHuffmanDecompress(stream, int(size))
}

// lzxpressHuffmanDecompress decodes an MS-XCA LZ77+Huffman stream into
// exactly size bytes. Every 64 KiB of output a new canonical prefix code is
// rebuilt from a 256 byte code length table embedded in the stream.
func lzxpressHuffmanDecompress(src []byte, size int) ([]byte, error) {
	dst := make([]byte, 0, size)

	pos := 0
	for len(dst) < size {
		if pos+huffmanTableSize > len(src) {
			return nil, errors.Wrap(ErrDecompression, "code length table truncated")
		}
		table, err := newHuffmanTable(src[pos : pos+huffmanTableSize])
		if err != nil {
			return nil, err
		}
		pos += huffmanTableSize

		chunkEnd := len(dst) + huffmanChunkSize
		if chunkEnd > size {
			chunkEnd = size
		}

		r := newBitReader(src, pos)
		for len(dst) < chunkEnd {
			symbol, err := table.readSymbol(r)
			if err != nil {
				return nil, err
			}
			if symbol < 256 {
				dst = append(dst, byte(symbol))
				continue
			}

			symbol -= 256
			length := int(symbol & 0x0f)
			offsetBits := uint(symbol>>4) & 0x0f

			if length == 15 {
				b, err := r.readByte()
				if err != nil {
					return nil, err
				}
				if b == 0xff {
					l, err := r.readUint16()
					if err != nil {
						return nil, err
					}
					if l < 15 {
						return nil, errors.Wrap(ErrDecompression, "invalid match length")
					}
					length = int(l) - 15
				} else {
					length = int(b)
				}
				length += 15
			}
			length += 3

			extra, err := r.readBits(offsetBits)
			if err != nil {
				return nil, err
			}
			offset := int(1<<offsetBits) + int(extra)
			if offset > len(dst) {
				return nil, errors.Wrapf(ErrDecompression, "back reference %d before start of output", offset)
			}
			if len(dst)+length > size {
				length = size - len(dst)
			}
			for i := 0; i < length; i++ {
				dst = append(dst, dst[len(dst)-offset])
			}
		}
		pos = r.byteOffset()
	}

	return dst, nil
}

// huffmanTable is the canonical prefix code of one chunk, expanded into a
// direct lookup on the next 15 bits. An entry packs symbol<<4 | codeLength,
// zero entries mark bit patterns no code maps to.
type huffmanTable struct {
	entries [1 << maxCodeLength]uint16
}

func newHuffmanTable(lengthTable []byte) (*huffmanTable, error) {
	var lengths [512]uint8
	for i, b := range lengthTable {
		lengths[2*i] = b & 0x0f
		lengths[2*i+1] = b >> 4
	}

	t := &huffmanTable{}
	assigned := false
	code := uint32(0)
	for bitLen := 1; bitLen <= maxCodeLength; bitLen++ {
		for symbol := 0; symbol < 512; symbol++ {
			if int(lengths[symbol]) != bitLen {
				continue
			}
			if code >= 1<<uint(bitLen) {
				return nil, errors.Wrap(ErrDecompression, "code lengths exceed the prefix code space")
			}
			entry := uint16(symbol)<<4 | uint16(bitLen)
			span := 1 << uint(maxCodeLength-bitLen)
			base := int(code) << uint(maxCodeLength-bitLen)
			for i := 0; i < span; i++ {
				t.entries[base+i] = entry
			}
			assigned = true
			code++
		}
		code <<= 1
	}
	if !assigned {
		return nil, errors.Wrap(ErrDecompression, "empty code length table")
	}
	return t, nil
}

func (t *huffmanTable) readSymbol(r *bitReader) (uint16, error) {
	entry := t.entries[r.peek(maxCodeLength)]
	if entry == 0 {
		return 0, errors.Wrap(ErrDecompression, "bit pattern outside the prefix code")
	}
	if err := r.consume(uint(entry & 0x0f)); err != nil {
		return 0, err
	}
	return entry >> 4, nil
}

// bitReader reads the MS-XCA bitstream: 16 bit little endian words pulled
// into a 32 bit buffer, bits consumed most significant first. Extra length
// bytes are interleaved at the current byte position, outside the bit
// buffer. nbits counts the bits actually backed by input so a truncated
// stream is detected instead of decoding shifted-in zeros.
type bitReader struct {
	src   []byte
	pos   int
	buf   uint32
	nbits uint
}

func newBitReader(src []byte, pos int) *bitReader {
	r := &bitReader{src: src, pos: pos}
	r.fill()
	r.fill()
	return r
}

func (r *bitReader) fill() {
	if r.nbits > 16 || r.pos+2 > len(r.src) {
		return
	}
	w := binary.LittleEndian.Uint16(r.src[r.pos:])
	r.pos += 2
	r.buf |= uint32(w) << (16 - r.nbits)
	r.nbits += 16
}

func (r *bitReader) peek(n uint) uint32 {
	return r.buf >> (32 - n)
}

func (r *bitReader) consume(n uint) error {
	if n > r.nbits {
		return errors.Wrap(ErrDecompression, "compressed stream exhausted")
	}
	r.buf <<= n
	r.nbits -= n
	r.fill()
	return nil
}

func (r *bitReader) readBits(n uint) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	v := r.peek(n)
	if err := r.consume(n); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *bitReader) readByte() (byte, error) {
	if r.pos >= len(r.src) {
		return 0, errors.Wrap(ErrDecompression, "compressed stream exhausted")
	}
	b := r.src[r.pos]
	r.pos++
	return b, nil
}

func (r *bitReader) readUint16() (uint16, error) {
	if r.pos+2 > len(r.src) {
		return 0, errors.Wrap(ErrDecompression, "compressed stream exhausted")
	}
	v := binary.LittleEndian.Uint16(r.src[r.pos:])
	r.pos += 2
	return v, nil
}

// byteOffset returns the input offset the next chunk starts at. The encoder
// reserves two 16 bit slots ahead and flushes both at a chunk end, matching
// the two word lookahead of this reader, so no rewind is needed.
func (r *bitReader) byteOffset() int {
	return r.pos
}
