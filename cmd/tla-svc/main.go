// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tla-svc serves the analyzer board control service.
package main // import "github.com/beluga3858/TeensyLogicAnalyzer/cmd/tla-svc"

import (
	"flag"
	"log"

	"github.com/beluga3858/TeensyLogicAnalyzer/board"
)

func main() {
	var (
		addr = flag.String("addr", ":9999", "tla-svc [addr]:port")
		odir = flag.String("o", "/home/root/run", "output dir")

		devmem = flag.String("dev-mem", "/dev/mem", "")
	)

	log.SetPrefix("tla-svc: ")
	log.SetFlags(0)

	flag.Parse()

	err := board.Serve(*addr, *odir, *devmem)
	if err != nil {
		log.Fatalf("could not create tla-svc service: %+v", err)
	}
}
