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

// Package goprefetch decodes Windows Prefetch files (*.pf) into structured
// records for forensic processing.
//
// Prefetch files record past executions of a program: the executable name, up
// to eight last run timestamps, a run count, every file touched during the
// traced runs and the volumes those files lived on. The on-disk format is
// version dependent and, since Windows 10, wrapped in an LZXPRESS Huffman
// compressed container.
//
// Decoding a single file
//
// Parse decompresses the input if needed, dispatches on the format version
// and decodes all sections:
//     record, err := goprefetch.Parse(data)
//
// A record is returned even if single sections are broken. Such partial
// decodes list their failures in record.SectionErrors, so a truncated file
// still yields the readable parts. Only a wrong signature, an unknown format
// version or undecodable compression abort a parse.
//
// Decoding many files
//
// A Pool decodes batches concurrently while emitting results in input order:
//     pool := goprefetch.NewPool(0)
//     outcomes := pool.Run(context.Background(), inputs)
//
// Timestamps are kept as raw FILETIME ticks on the records. FiletimeToTime
// converts them for output sinks.
package goprefetch
