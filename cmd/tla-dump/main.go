// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// tla-dump decodes and displays analyzer capture files.
//
// Usage: tla-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> tla-dump ./tla_042.cap
//	=== capture 0 ===
//	geometry:     4 bits/slot, 8 slots/word
//	samples:             32
//	pre-trigger:          1
//	trigger at:           8
//	wrapped:          false
//	aborted:          false
//	words:                4
//	  0x12312312
//	  0x51231231
//	[...]
package main // import "github.com/beluga3858/TeensyLogicAnalyzer/cmd/tla-dump"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/beluga3858/TeensyLogicAnalyzer/capture"
)

func main() {
	log.SetPrefix("tla-dump: ")
	log.SetFlags(0)

	words := flag.Bool("words", true, "dump raw storage words")

	flag.Usage = func() {
		fmt.Printf(`tla-dump decodes and displays analyzer capture files.

Usage: tla-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> tla-dump ./tla_042.cap
 === capture 0 ===
 geometry:     4 bits/slot, 8 slots/word
 samples:             32
 pre-trigger:          1
 trigger at:           8
 wrapped:          false
 aborted:          false
 words:                4
   0x12312312
   0x51231231
 [...]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input capture file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *words)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, words bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	dec := capture.NewDecoder(f)
loop:
	for i := 0; ; i++ {
		var rec capture.Record
		err := dec.Decode(&rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode capture: %w", err)
		}
		fmt.Fprintf(wbuf, "=== capture %d ===\n", i)
		fmt.Fprintf(wbuf, "geometry:     %d bits/slot, %d slots/word\n",
			rec.SampleShift, rec.SamplesPerWord,
		)
		fmt.Fprintf(wbuf, "samples:     % 10d\n", rec.TotalSamples)
		fmt.Fprintf(wbuf, "pre-trigger: % 10d\n", rec.PreTrigger)
		fmt.Fprintf(wbuf, "trigger at:  % 10d\n", rec.Meta.TriggerIndex)
		fmt.Fprintf(wbuf, "wrapped:     % 10v\n", rec.Meta.Wrapped)
		fmt.Fprintf(wbuf, "aborted:     % 10v\n", rec.Meta.Aborted)
		if rec.Meta.Aborted {
			fmt.Fprintf(wbuf, "interrupted: % 10d\n", rec.Meta.Interrupted)
		}
		if rec.Meta.Wrapped {
			fmt.Fprintf(wbuf, "first value: 0x%08x\n", rec.Meta.FirstValue)
		}
		fmt.Fprintf(wbuf, "words:       % 10d\n", len(rec.Words))
		if words {
			for _, w := range rec.Words {
				fmt.Fprintf(wbuf, "  0x%08x\n", w)
			}
		}
	}

	return nil
}
