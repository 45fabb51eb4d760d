// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tla-daq drives the analyzer data acquisition in stand-alone
// mode: it fetches the capture setup from the configuration database,
// starts a run and records until interrupted.
package main // import "github.com/beluga3858/TeensyLogicAnalyzer/cmd/tla-daq"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/beluga3858/TeensyLogicAnalyzer/board"
	"github.com/beluga3858/TeensyLogicAnalyzer/cfgdb"
	_ "github.com/go-sql-driver/mysql"
)

func main() {
	var (
		runnbr = flag.Int("run", -1, "run number")
		setup  = flag.String("setup", "", "capture setup name (empty: last setup)")
		dbname = flag.String("db", "tlasrv", "configuration database name")
		odir   = flag.String("o", "/home/root/run", "output dir")

		devmem = flag.String("dev-mem", "/dev/mem", "")
	)

	log.SetPrefix("tla-daq: ")
	log.SetFlags(0)

	flag.Parse()

	if *runnbr < 0 {
		log.Fatalf("invalid run number value")
	}

	log.Printf("run=%d setup=%q db=%q", *runnbr, *setup, *dbname)

	err := run(uint32(*runnbr), *setup, *dbname, *odir, *devmem)
	if err != nil {
		log.Fatalf("could not run tla-daq: %+v", err)
	}
}

func run(runnbr uint32, setup, dbname, odir, devmem string) error {
	db, err := cfgdb.Open(dbname)
	if err != nil {
		return fmt.Errorf("could not open configuration db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var set cfgdb.Setup
	switch setup {
	case "":
		set, err = db.LastSetup(ctx)
	default:
		set, err = db.SetupByName(ctx, setup)
	}
	if err != nil {
		return fmt.Errorf("could not fetch capture setup: %w", err)
	}

	stages, err := db.Stages(ctx, set.ID)
	if err != nil {
		return fmt.Errorf("could not fetch trigger stages: %w", err)
	}

	dev, err := board.NewDevice(devmem, odir)
	if err != nil {
		return fmt.Errorf("could not create board device: %w", err)
	}
	defer dev.Close()

	err = dev.Configure(set, stages)
	if err != nil {
		return fmt.Errorf("could not configure board device: %w", err)
	}

	err = dev.Initialize()
	if err != nil {
		return fmt.Errorf("could not initialize board device: %w", err)
	}

	err = dev.Start(runnbr)
	if err != nil {
		return fmt.Errorf("could not start run %d: %w", runnbr, err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)
	<-stop

	err = dev.Stop()
	if err != nil {
		return fmt.Errorf("could not stop run %d: %w", runnbr, err)
	}
	return nil
}
