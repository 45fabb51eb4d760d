// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tla-sql inspects the capture setups stored in the
// configuration database.
package main // import "github.com/beluga3858/TeensyLogicAnalyzer/cmd/tla-sql"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/beluga3858/TeensyLogicAnalyzer/cfgdb"
	_ "github.com/go-sql-driver/mysql"
)

func main() {
	log.SetPrefix("tla-sql: ")
	log.SetFlags(0)

	var (
		dbname = flag.String("db", "tlasrv", "configuration database name")
		setup  = flag.String("setup", "", "capture setup to inspect (empty: last setup)")
	)

	flag.Parse()

	db, err := cfgdb.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open configuration db: %+v", err)
	}
	defer db.Close()

	err = doQuery(db, *setup)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(db *cfgdb.DB, name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		set cfgdb.Setup
		err error
	)
	switch name {
	case "":
		set, err = db.LastSetup(ctx)
	default:
		set, err = db.SetupByName(ctx, name)
	}
	if err != nil {
		return fmt.Errorf("could not get setup %q: %w", name, err)
	}

	log.Printf("setup:        %q (id=%d)", set.Name, set.ID)
	log.Printf("clock-div:    %d", set.ClockDiv)
	log.Printf("buffer-words: %d", set.BufferWords)
	log.Printf("sample-shift: %d (samples/word=%d)", set.SampleShift, set.SamplesPerWord())
	log.Printf("pre-trigger:  %d", set.PreTrigger)

	stages, err := db.Stages(ctx, set.ID)
	if err != nil {
		return fmt.Errorf("could not get stages (setup=%d): %w", set.ID, err)
	}
	log.Printf("stages: %d", len(stages))
	for _, stage := range stages {
		log.Printf(">>> level=%d mask=0x%08x value=0x%08x delay=%d",
			stage.Level, stage.Mask, stage.Value, stage.Delay,
		)
	}

	{
		rows, err := db.QueryContext(ctx, "SELECT identifier, name FROM setups ORDER BY identifier")
		if err != nil {
			return fmt.Errorf("could not list setups: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id   uint32
				name string
			)
			err = rows.Scan(&id, &name)
			if err != nil {
				return fmt.Errorf("could not scan setup row: %w", err)
			}
			log.Printf("setup[%03d]: %q", id, name)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("could not list setups: %w", err)
		}
	}

	return nil
}
