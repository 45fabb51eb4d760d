// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tla-tdaq exposes an analyzer board as a TDAQ process: the
// board is configured from the configuration database and publishes
// its capture records on the /tla output end-point.
package main // import "github.com/beluga3858/TeensyLogicAnalyzer/cmd/tla-tdaq"

import (
	"bytes"
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/beluga3858/TeensyLogicAnalyzer/board"
	"github.com/beluga3858/TeensyLogicAnalyzer/capture"
	"github.com/beluga3858/TeensyLogicAnalyzer/cfgdb"
	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	_ "github.com/go-sql-driver/mysql"
)

func main() {
	cmd := flags.New()

	dev := node{
		dbname: "tlasrv",
		devmem: "/dev/mem",
		odir:   "/home/root/run",
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/tla", dev.tla)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type node struct {
	dbname string
	devmem string
	odir   string

	brd     *board.Device
	data    chan []byte
	n       int
	running uint32
}

func (dev *node) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	db, err := cfgdb.Open(dev.dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	set, err := db.LastSetup(ctx.Ctx)
	if err != nil {
		return err
	}
	stages, err := db.Stages(ctx.Ctx, set.ID)
	if err != nil {
		return err
	}

	if dev.brd == nil {
		brd, err := board.NewDevice(dev.devmem, dev.odir)
		if err != nil {
			return err
		}
		dev.brd = brd
	}
	return dev.brd.Configure(set, stages)
}

func (dev *node) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	dev.data = make(chan []byte, 1024)
	dev.n = 0
	return dev.brd.Initialize()
}

func (dev *node) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	atomic.StoreUint32(&dev.running, 0)
	dev.data = make(chan []byte, 1024)
	dev.n = 0
	return dev.brd.Initialize()
}

func (dev *node) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	atomic.StoreUint32(&dev.running, 1)
	return nil
}

func (dev *node) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	atomic.StoreUint32(&dev.running, 0)
	ctx.Msg.Debugf("received /stop command... -> n=%d", dev.n)
	return nil
}

func (dev *node) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	atomic.StoreUint32(&dev.running, 0)
	if dev.brd != nil {
		return dev.brd.Close()
	}
	return nil
}

func (dev *node) tla(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *node) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			if atomic.LoadUint32(&dev.running) == 0 {
				time.Sleep(100 * time.Millisecond)
				continue
			}

			rec, err := dev.brd.Capture()
			if err != nil {
				ctx.Msg.Errorf("could not run capture: %+v", err)
				atomic.StoreUint32(&dev.running, 0)
				continue
			}

			buf := new(bytes.Buffer)
			err = capture.NewEncoder(buf).Encode(rec)
			if err != nil {
				ctx.Msg.Errorf("could not encode capture: %+v", err)
				continue
			}

			select {
			case dev.data <- buf.Bytes():
				dev.n++
			default:
			}
		}
	}
}
