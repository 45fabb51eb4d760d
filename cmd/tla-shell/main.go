// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tla-shell is an interactive client for the tla-svc control
// service.
//
// Example:
//
//	$> tla-shell -addr localhost:9999
//	tla> configure uart-921600
//	tla> initialize
//	tla> start 42
//	tla> stop
//	tla> quit
package main // import "github.com/beluga3858/TeensyLogicAnalyzer/cmd/tla-shell"

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/beluga3858/TeensyLogicAnalyzer/cfgdb"
	_ "github.com/go-sql-driver/mysql"
	"github.com/peterh/liner"
)

func main() {
	var (
		addr   = flag.String("addr", "localhost:9999", "tla-svc address to dial")
		dbname = flag.String("db", "tlasrv", "configuration database name")
	)

	log.SetPrefix("tla-shell: ")
	log.SetFlags(0)

	flag.Parse()

	sh, err := newShell(*addr, *dbname)
	if err != nil {
		log.Fatalf("could not create shell: %+v", err)
	}
	defer sh.close()

	sh.loop()
}

type shell struct {
	conn   net.Conn
	dbname string
	term   *liner.State
}

func newShell(addr, dbname string) (*shell, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not dial tla-svc %q: %w", addr, err)
	}

	term := liner.NewLiner()
	term.SetCtrlCAborts(true)

	return &shell{
		conn:   conn,
		dbname: dbname,
		term:   term,
	}, nil
}

func (sh *shell) close() {
	_ = sh.term.Close()
	_ = sh.conn.Close()
}

func (sh *shell) loop() {
	for {
		line, err := sh.term.Prompt("tla> ")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				fmt.Println()
				return
			}
			log.Printf("could not read line: %+v", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sh.term.AppendHistory(line)

		toks := strings.Fields(line)
		switch toks[0] {
		case "quit", "exit":
			return
		case "help":
			fmt.Print(`commands:
 configure <setup>  configure the board with a named capture setup
 initialize         bring the sampler to a known idle state
 start <run>        start a capture run
 stop               stop the capture run
 quit               leave the shell
`)
		default:
			err = sh.dispatch(toks)
			if err != nil {
				log.Printf("%+v", err)
			}
		}
	}
}

func (sh *shell) dispatch(toks []string) error {
	switch toks[0] {
	case "configure":
		if len(toks) != 2 {
			return fmt.Errorf("usage: configure <setup>")
		}
		return sh.configure(toks[1])

	case "initialize":
		return sh.send("initialize", nil)

	case "start":
		if len(toks) != 2 {
			return fmt.Errorf("usage: start <run>")
		}
		if _, err := strconv.Atoi(toks[1]); err != nil {
			return fmt.Errorf("invalid run number %q: %w", toks[1], err)
		}
		return sh.send("start", []string{toks[1]})

	case "stop":
		return sh.send("stop", nil)
	}
	return fmt.Errorf("unknown command %q", toks[0])
}

func (sh *shell) configure(name string) error {
	db, err := cfgdb.Open(sh.dbname)
	if err != nil {
		return fmt.Errorf("could not open configuration db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set, err := db.SetupByName(ctx, name)
	if err != nil {
		return fmt.Errorf("could not fetch setup %q: %w", name, err)
	}
	stages, err := db.Stages(ctx, set.ID)
	if err != nil {
		return fmt.Errorf("could not fetch stages (setup=%d): %w", set.ID, err)
	}

	args := struct {
		Setup  cfgdb.Setup   `json:"setup"`
		Stages []cfgdb.Stage `json:"stages"`
	}{set, stages}

	return sh.send("configure", args)
}

func (sh *shell) send(name string, args interface{}) error {
	req := struct {
		Name string      `json:"name"`
		Args interface{} `json:"args,omitempty"`
	}{name, args}

	err := json.NewEncoder(sh.conn).Encode(req)
	if err != nil {
		return fmt.Errorf("could not send %q request: %w", name, err)
	}

	var rep struct {
		Msg string `json:"msg"`
	}
	err = json.NewDecoder(sh.conn).Decode(&rep)
	if err != nil {
		return fmt.Errorf("could not read %q reply: %w", name, err)
	}
	if rep.Msg != "ok" {
		return fmt.Errorf("%s failed: %s", name, rep.Msg)
	}

	fmt.Printf("%s: ok\n", name)
	return nil
}
