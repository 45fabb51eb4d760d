// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/beluga3858/TeensyLogicAnalyzer/cfgdb"
)

// device is the board API the control server drives.
type device interface {
	Configure(set cfgdb.Setup, stages []cfgdb.Stage) error
	Initialize() error
	Start(run uint32) error
	Stop() error
	Close() error
}

var (
	_ device = (*Device)(nil)
)

// server allows to control an analyzer board device.
type server struct {
	ctl net.Listener

	msg    *log.Logger
	odir   string
	devmem string

	newDevice func(devmem, odir string, opts ...Option) (device, error)

	opts []Option
	dev  device
}

func Serve(addr, odir, devmem string, opts ...Option) error {
	srv, err := newServer(addr, odir, devmem, opts...)
	if err != nil {
		return fmt.Errorf("could not create board server: %w", err)
	}
	return srv.serve()
}

func newServer(addr, odir, devmem string, opts ...Option) (*server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not create tla-svc server on %q: %w", addr, err)
	}

	srv := &server{
		ctl: ctl,

		msg: log.New(os.Stdout, "tla-svc: ", 0),

		odir:   odir,
		devmem: devmem,

		newDevice: func(devmem, odir string, opts ...Option) (device, error) {
			return NewDevice(devmem, odir, opts...)
		},

		opts: opts,
	}
	return srv, nil
}

func (srv *server) serve() error {
	defer srv.close()

	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return fmt.Errorf("could not accept connection: %w", err)
		}

		err = srv.handle(conn)
		if err != nil {
			srv.msg.Printf("could not run analyzer board: %+v", err)
			continue
		}
	}
}

func (srv *server) handle(conn net.Conn) error {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

	srv.dev = nil
	dev, err := srv.newDevice(srv.devmem, srv.odir, srv.opts...)
	if err != nil {
		return fmt.Errorf("could not create board device: %w", err)
	}
	defer dev.Close()
	srv.dev = dev

loop:
	for {
		var req struct {
			Name string           `json:"name"`
			Args *json.RawMessage `json:"args"`
		}

		err = json.NewDecoder(conn).Decode(&req)
		if err != nil {
			srv.msg.Printf("could not decode command request: %+v", err)
			srv.reply(conn, err)
			if errors.Is(err, io.EOF) {
				break loop
			}
			continue
		}
		srv.msg.Printf("received request: name=%q", req.Name)

		switch strings.ToLower(req.Name) {
		case "configure":
			var args struct {
				Setup  cfgdb.Setup   `json:"setup"`
				Stages []cfgdb.Stage `json:"stages"`
			}
			err = json.Unmarshal(*req.Args, &args)
			if err != nil {
				srv.msg.Printf("could not decode %q payload: %+v",
					req.Name, err,
				)
				srv.reply(conn, err)
				continue
			}

			err = dev.Configure(args.Setup, args.Stages)
			srv.reply(conn, err)
			if err != nil {
				srv.msg.Printf("could not configure board device: %+v", err)
				continue
			}

		case "initialize":
			err = dev.Initialize()
			srv.reply(conn, err)
			if err != nil {
				srv.msg.Printf("could not initialize board device: %+v", err)
				continue
			}

		case "start":
			var args []string
			err = json.Unmarshal(*req.Args, &args)
			if err != nil {
				srv.msg.Printf("could not decode %q payload: %+v",
					req.Name, err,
				)
				srv.reply(conn, err)
				continue
			}

			run, err := strconv.Atoi(args[0])
			if err != nil {
				srv.msg.Printf("could not decode run-nbr for start-run (args=%v): %+v",
					req.Args, err,
				)
				srv.reply(conn, err)
				continue
			}

			err = dev.Start(uint32(run))
			srv.reply(conn, err)
			if err != nil {
				srv.msg.Printf("could not start board device: %+v", err)
				continue
			}

		case "stop":
			err = dev.Stop()
			srv.reply(conn, err)
			if err != nil {
				srv.msg.Printf("could not stop board device: %+v", err)
				return fmt.Errorf("could not stop board device: %w", err)
			}
			break loop

		default:
			srv.msg.Printf("unknown command name=%q, args=%q", req.Name, req.Args)
			err = fmt.Errorf("unknown command %q", req.Name)
			srv.reply(conn, err)
			continue
		}
	}

	return nil
}

func (srv *server) reply(conn net.Conn, err error) {
	rep := struct {
		Msg string `json:"msg"`
	}{"ok"}
	if err != nil {
		rep.Msg = fmt.Sprintf("%+v", err)
	}

	_ = json.NewEncoder(conn).Encode(rep)
}

func (srv *server) close() {
	_ = srv.ctl.Close()
}
