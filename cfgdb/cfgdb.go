// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cfgdb holds types to describe the capture-setup configuration
// database of the logic analyzer.
package cfgdb // import "github.com/beluga3858/TeensyLogicAnalyzer/cfgdb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve capture setups
// and trigger configurations from the analyzer database.
type DB struct {
	db   *sql.DB
	name string // name of the analyzer database
}

// Open opens a connection to the analyzer database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("cfgdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("cfgdb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("cfgdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastSetup returns the most recently recorded capture setup.
func (db *DB) LastSetup(ctx context.Context) (Setup, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var set Setup
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier, name, clock_div, buffer_words, sample_shift, pre_trigger FROM setups ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return set, fmt.Errorf("cfgdb: could not query last setup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(
			&set.ID, &set.Name, &set.ClockDiv,
			&set.BufferWords, &set.SampleShift, &set.PreTrigger,
		)
		if err != nil {
			return set, fmt.Errorf("cfgdb: could not get last setup: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return set, fmt.Errorf("cfgdb: could not scan db for last setup: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return set, fmt.Errorf("cfgdb: context error while retrieving last setup: %w", err)
	}

	return set, nil
}

// SetupByName returns the capture setup registered under the given name.
func (db *DB) SetupByName(ctx context.Context, name string) (Setup, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var set Setup
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT identifier, name, clock_div, buffer_words, sample_shift, pre_trigger FROM setups WHERE name=?",
		name,
	)
	if err != nil {
		return set, fmt.Errorf("cfgdb: could not query setup %q: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(
			&set.ID, &set.Name, &set.ClockDiv,
			&set.BufferWords, &set.SampleShift, &set.PreTrigger,
		)
		if err != nil {
			return set, fmt.Errorf("cfgdb: could not get setup %q: %w", name, err)
		}
	}

	if err := rows.Err(); err != nil {
		return set, fmt.Errorf("cfgdb: could not scan db for setup %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return set, fmt.Errorf("cfgdb: context error while retrieving setup %q: %w", name, err)
	}

	return set, nil
}

// Stages returns the ordered trigger stages of the given setup.
func (db *DB) Stages(ctx context.Context, setupID uint32) ([]Stage, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stages []Stage
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT setup, level, trig_mask, trig_value, trig_delay FROM stages WHERE setup=? ORDER BY level",
		setupID,
	)
	if err != nil {
		return stages, fmt.Errorf("cfgdb: could not query stages for setup=%d: %w", setupID, err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var stage Stage
		err = rows.Scan(
			&stage.SetupID, &stage.Level,
			&stage.Mask, &stage.Value, &stage.Delay,
		)
		if err != nil {
			return stages, fmt.Errorf("cfgdb: could not scan row %d for stages: %w", i, err)
		}
		i++

		stages = append(stages, stage)
	}

	if err := rows.Err(); err != nil {
		return stages, fmt.Errorf("cfgdb: could not scan db for stages: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return stages, fmt.Errorf("cfgdb: context error while retrieving stages: %w", err)
	}

	return stages, nil
}
