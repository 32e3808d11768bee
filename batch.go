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
	"context"
	"runtime"
	"sync"
)

// Input is one prefetch file buffer queued for batch decoding. The source
// identifies it in outcomes, usually the file path.
type Input struct {
	Source string
	Data   []byte
}

// Outcome is the result of decoding one input: either a record or the fatal
// error of that input, tagged with the input's position in the batch.
type Outcome struct {
	Index  int
	Source string
	Record *Prefetch
	Err    error
}

// Pool decodes batches of prefetch files on a bounded number of workers.
// Workers share nothing but the result channel; every decode owns its own
// buffer. Results are released strictly in input order regardless of
// completion order, downstream sinks like bodyfile writers depend on a
// stable index.
type Pool struct {
	workers int
	parse   func([]byte) (*Prefetch, error)
}

// NewPool creates a decoding pool. A width below one selects the number of
// CPUs.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers, parse: Parse}
}

type task struct {
	index int
	input Input
}

// Stream decodes the inputs concurrently and emits one outcome per input on
// the returned channel, in input order. A failed input is reported as its
// outcome and never stops the remaining batch. Cancelling the context stops
// the emission.
func (p *Pool) Stream(ctx context.Context, inputs []Input) <-chan Outcome {
	tasks := make(chan task)
	results := make(chan Outcome)
	out := make(chan Outcome)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				outcome := Outcome{Index: t.index, Source: t.input.Source}
				record, err := p.parse(t.input.Data)
				if err != nil {
					outcome.Err = err
				} else {
					record.Index = t.index
					outcome.Record = record
				}
				select {
				case results <- outcome:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for i, input := range inputs {
			select {
			case tasks <- task{index: i, input: input}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Reorder by index: buffer outcomes until the next expected index
	// arrived, then release. A merge step, not a queue.
	go func() {
		defer close(out)
		pending := make(map[int]Outcome)
		next := 0
		for outcome := range results {
			pending[outcome.Index] = outcome
			for {
				buffered, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				select {
				case out <- buffered:
				case <-ctx.Done():
					return
				}
				next++
			}
		}
	}()

	return out
}

// Run decodes the inputs and returns all outcomes in input order.
func (p *Pool) Run(ctx context.Context, inputs []Input) []Outcome {
	outcomes := make([]Outcome, 0, len(inputs))
	for outcome := range p.Stream(ctx, inputs) {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
