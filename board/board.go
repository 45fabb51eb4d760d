// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package board drives the memory-mapped sampler of the logic
// analyzer: register access, sample clock, status LED, host UART
// poll and the capture run loop that feeds the acquisition engine.
package board // import "github.com/beluga3858/TeensyLogicAnalyzer/board"

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/beluga3858/TeensyLogicAnalyzer/board/internal/regs"
	"github.com/beluga3858/TeensyLogicAnalyzer/capture"
	"github.com/beluga3858/TeensyLogicAnalyzer/cfgdb"
	"github.com/beluga3858/TeensyLogicAnalyzer/internal/mmap"
	"github.com/go-daq/smbus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Device represents an analyzer board device.
type Device struct {
	msg *log.Logger
	dir string

	mem struct {
		fd *os.File
		h  *mmap.Handle
	}

	err  error
	xbuf [4]byte
	regs pins

	cfg config
	tmp *smbus.Conn // temperature sensor, optional

	daq struct {
		run   uint32
		cycle uint32
		abort uint32 // set by Stop, polled by the capture loop
		grp   *errgroup.Group
		f     *os.File
		enc   *capture.Encoder
	}
}

type pins struct {
	port   reg32
	tick   reg32
	ctrl   reg32
	state  reg32
	clkDiv reg32
	uart   reg32
	id     reg32
}

// NewDevice opens the sampler register file backed by devmem and
// returns a device writing its captures under odir.
func NewDevice(devmem, odir string, opts ...Option) (*Device, error) {
	mem, err := os.OpenFile(devmem, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("board: could not open %q: %w", devmem, err)
	}

	msg := log.New(os.Stdout, "board: ", 0)
	dev := &Device{
		msg: msg,
		dir: odir,
		cfg: newConfig(),
	}
	dev.mem.fd = mem

	for _, opt := range opts {
		opt(&dev.cfg)
	}

	err = dev.mmapSampler()
	if err != nil {
		_ = mem.Close()
		return nil, fmt.Errorf("board: could not initialize sampler bus: %w", err)
	}

	if dev.cfg.sensor.bus >= 0 {
		conn, err := smbus.Open(dev.cfg.sensor.bus, dev.cfg.sensor.addr)
		if err != nil {
			_ = dev.mem.h.Close()
			_ = mem.Close()
			return nil, fmt.Errorf("board: could not open sensor bus %d: %w", dev.cfg.sensor.bus, err)
		}
		dev.tmp = conn
	}

	return dev, nil
}

func (dev *Device) mmapSampler() error {
	data, err := unix.Mmap(
		int(dev.mem.fd.Fd()),
		regs.SAMPLER_BASE, regs.SAMPLER_SPAN,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		return fmt.Errorf("board: could not mmap sampler: %w", err)
	}
	if data == nil || len(data) != regs.SAMPLER_SPAN {
		return fmt.Errorf("board: invalid mmap'd data: %d", len(data))
	}
	dev.mem.h = mmap.HandleFrom(data)
	dev.bind(dev.mem.h)
	return nil
}

func (dev *Device) bind(rw rwer) {
	dev.regs.port = newReg32(dev, rw, regs.SAMPLER_PORT_IN)
	dev.regs.tick = newReg32(dev, rw, regs.SAMPLER_TICK)
	dev.regs.ctrl = newReg32(dev, rw, regs.SAMPLER_CTRL)
	dev.regs.state = newReg32(dev, rw, regs.SAMPLER_STATE)
	dev.regs.clkDiv = newReg32(dev, rw, regs.SAMPLER_CLK_DIV)
	dev.regs.uart = newReg32(dev, rw, regs.SAMPLER_UART_CSR)
	dev.regs.id = newReg32(dev, rw, regs.SAMPLER_ID)
}

func (dev *Device) readU32(r io.ReaderAt, off int64) uint32 {
	if dev.err != nil {
		return 0
	}
	_, dev.err = r.ReadAt(dev.xbuf[:4], off)
	if dev.err != nil {
		dev.err = fmt.Errorf("board: could not read register 0x%x: %w", off, dev.err)
		return 0
	}
	return binary.LittleEndian.Uint32(dev.xbuf[:4])
}

func (dev *Device) writeU32(w io.WriterAt, off int64, v uint32) {
	if dev.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(dev.xbuf[:4], v)
	_, dev.err = w.WriteAt(dev.xbuf[:4], off)
	if dev.err != nil {
		dev.err = fmt.Errorf("board: could not write register 0x%x: %w", off, dev.err)
		return
	}
}

// Configure applies a capture setup from the configuration database.
func (dev *Device) Configure(set cfgdb.Setup, stages []cfgdb.Stage) error {
	switch {
	case set.SampleShift < 2 || set.SampleShift > 32 || 32%set.SampleShift != 0:
		return fmt.Errorf("board: invalid sample shift %d", set.SampleShift)
	case set.BufferWords == 0:
		return fmt.Errorf("board: invalid buffer size %d", set.BufferWords)
	case set.ClockDiv == 0:
		return fmt.Errorf("board: invalid clock divider %d", set.ClockDiv)
	}

	dev.cfg.clkDiv = set.ClockDiv
	dev.cfg.buf.words = set.BufferWords
	dev.cfg.buf.shift = set.SampleShift
	dev.cfg.buf.pre = set.PreTrigger

	dev.cfg.stages = dev.cfg.stages[:0]
	for _, stage := range stages {
		dev.cfg.stages = append(dev.cfg.stages, capture.TriggerStage{
			Mask:  stage.Mask,
			Value: stage.Value,
			Delay: stage.Delay,
		})
	}

	dev.msg.Printf(
		"configured setup %q: clkdiv=%d words=%d shift=%d pre=%d stages=%d",
		set.Name, set.ClockDiv, set.BufferWords, set.SampleShift, set.PreTrigger,
		len(stages),
	)
	return nil
}

// Initialize brings the sampler to a known idle state: run bit clear,
// LED off, IRQs masked, clock divider programmed, stale tick cleared.
func (dev *Device) Initialize() error {
	if id := dev.regs.id.r(); dev.err == nil && id != regs.SAMPLER_ID_MAGIC {
		return fmt.Errorf("board: invalid sampler id 0x%x", id)
	}

	dev.regs.ctrl.w(0)
	dev.regs.clkDiv.w(dev.cfg.clkDiv)
	dev.regs.tick.w(regs.TICK_PENDING)
	if dev.err != nil {
		return fmt.Errorf("board: could not initialize sampler: %w", dev.err)
	}

	if dev.tmp != nil {
		t, err := dev.Temperature()
		if err != nil {
			return fmt.Errorf("board: could not read board temperature: %w", err)
		}
		dev.msg.Printf("board temperature: %.2f C", t)
	}
	return nil
}

// Start begins a capture run: it opens the run's output files and
// launches the capture loop.
func (dev *Device) Start(run uint32) error {
	if dev.daq.grp != nil {
		return fmt.Errorf("board: run %d already in progress", dev.daq.run)
	}

	err := dev.initRun(run)
	if err != nil {
		return fmt.Errorf("board: could not initialize run %d: %w", run, err)
	}

	dev.daq.run = run
	dev.daq.cycle = 0
	atomic.StoreUint32(&dev.daq.abort, 0)

	dev.daq.grp = new(errgroup.Group)
	dev.daq.grp.Go(dev.loop)

	dev.msg.Printf("run %d started", run)
	return nil
}

func (dev *Device) initRun(run uint32) error {
	out, err := os.Create(filepath.Join(
		dev.dir, fmt.Sprintf("tla_%03d.cap", run),
	))
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	dev.daq.f = out
	dev.daq.enc = capture.NewEncoder(out)

	set, err := os.Create(filepath.Join(
		dev.dir, fmt.Sprintf("tla_%03d.settings.txt", run),
	))
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("could not create settings file: %w", err)
	}
	defer set.Close()

	fmt.Fprintf(set, "run: %d\n", run)
	fmt.Fprintf(set, "clock-div: %d\n", dev.cfg.clkDiv)
	fmt.Fprintf(set, "buffer-words: %d\n", dev.cfg.buf.words)
	fmt.Fprintf(set, "sample-shift: %d\n", dev.cfg.buf.shift)
	fmt.Fprintf(set, "pre-trigger: %d\n", dev.cfg.buf.pre)
	for i, stage := range dev.cfg.stages {
		fmt.Fprintf(set, "stage-%d: mask=0x%08x value=0x%08x delay=%d\n",
			i, stage.Mask, stage.Value, stage.Delay,
		)
	}
	return nil
}

// loop runs capture cycles back to back until the run is stopped or a
// capture is aborted by the host.
func (dev *Device) loop() error {
	for {
		rec, err := dev.Capture()
		if err != nil {
			return fmt.Errorf("board: could not run capture cycle %d: %w", dev.daq.cycle, err)
		}
		err = dev.daq.enc.Encode(rec)
		if err != nil {
			return fmt.Errorf("board: could not write capture cycle %d: %w", dev.daq.cycle, err)
		}
		dev.daq.cycle++

		if atomic.LoadUint32(&dev.daq.abort) == 1 || rec.Meta.Aborted {
			return nil
		}
	}
}

// Capture performs one capture cycle with the configured geometry and
// returns its record.
func (dev *Device) Capture() (*capture.Record, error) {
	cfg := capture.Config{
		Words:          make([]uint32, dev.cfg.buf.words),
		SamplesPerWord: 32 / dev.cfg.buf.shift,
		SampleShift:    dev.cfg.buf.shift,
		PreTrigger:     dev.cfg.buf.pre,
		Stages:         dev.cfg.stages,
	}

	dev.regs.ctrl.set(regs.CTRL_RUN)
	res, err := capture.Run(cfg, dev)
	dev.regs.ctrl.clear(regs.CTRL_RUN)
	if err != nil {
		return nil, err
	}
	if dev.err != nil {
		return nil, dev.err
	}

	return &capture.Record{
		SampleShift:    uint8(cfg.SampleShift),
		SamplesPerWord: uint8(cfg.SamplesPerWord),
		TotalSamples:   uint32(len(cfg.Words)) * cfg.SamplesPerWord,
		PreTrigger:     cfg.PreTrigger,
		Meta:           res,
		Words:          cfg.Words,
	}, nil
}

// Stop ends the capture run at the next sample boundary and closes
// the run's output file.
func (dev *Device) Stop() error {
	if dev.daq.grp == nil {
		return fmt.Errorf("board: no run in progress")
	}

	atomic.StoreUint32(&dev.daq.abort, 1)
	err := dev.daq.grp.Wait()
	dev.daq.grp = nil

	if dev.daq.f != nil {
		if e := dev.daq.f.Close(); e != nil && err == nil {
			err = fmt.Errorf("board: could not close output file: %w", e)
		}
		dev.daq.f = nil
		dev.daq.enc = nil
	}

	dev.msg.Printf("run %d stopped after %d cycles", dev.daq.run, dev.daq.cycle)
	return err
}

// Close releases the sampler register file. A run still in progress
// is stopped first.
func (dev *Device) Close() error {
	if dev.daq.grp != nil {
		_ = dev.Stop()
	}
	if dev.tmp != nil {
		_ = dev.tmp.Close()
	}
	if dev.mem.h != nil {
		if err := dev.mem.h.Close(); err != nil {
			return fmt.Errorf("board: could not close sampler mmap: %w", err)
		}
	}
	if dev.mem.fd != nil {
		if err := dev.mem.fd.Close(); err != nil {
			return fmt.Errorf("board: could not close sampler file: %w", err)
		}
	}
	return nil
}

// WaitSample blocks until the next sample-clock tick and acknowledges
// it. It returns early when the run is aborted or a register access
// failed.
func (dev *Device) WaitSample() {
	for dev.err == nil && atomic.LoadUint32(&dev.daq.abort) == 0 {
		if dev.regs.tick.r()&regs.TICK_PENDING != 0 {
			dev.regs.tick.w(regs.TICK_PENDING) // write 1 to clear
			return
		}
	}
}

// ReadSample returns the current value of the parallel input port.
func (dev *Device) ReadSample() uint32 {
	return dev.regs.port.r()
}

// HostPending reports whether the host sent data on the UART, or the
// run was aborted locally.
func (dev *Device) HostPending() bool {
	if dev.err != nil || atomic.LoadUint32(&dev.daq.abort) == 1 {
		return true
	}
	return dev.regs.uart.r()&regs.UART_RX_READY != 0
}

func (dev *Device) MaskIRQ()   { dev.regs.ctrl.clear(regs.CTRL_IRQ_EN) }
func (dev *Device) UnmaskIRQ() { dev.regs.ctrl.set(regs.CTRL_IRQ_EN) }

// SetStatus drives the status LED.
func (dev *Device) SetStatus(on bool) {
	if on {
		dev.regs.ctrl.set(regs.CTRL_STATUS)
		return
	}
	dev.regs.ctrl.clear(regs.CTRL_STATUS)
}

// Reset returns the sampler to idle after a host abort.
func (dev *Device) Reset() {
	dev.regs.ctrl.clear(regs.CTRL_RUN | regs.CTRL_STATUS)
	dev.regs.tick.w(regs.TICK_PENDING)
}

// DumpRegisters writes the raw sampler registers to w.
func (dev *Device) DumpRegisters(w io.Writer) error {
	fmt.Fprintf(w, "port:    0x%08x\n", dev.regs.port.r())
	fmt.Fprintf(w, "tick:    0x%08x\n", dev.regs.tick.r())
	fmt.Fprintf(w, "ctrl:    0x%08x\n", dev.regs.ctrl.r())
	fmt.Fprintf(w, "state:   0x%08x\n", dev.regs.state.r())
	fmt.Fprintf(w, "clk-div: 0x%08x\n", dev.regs.clkDiv.r())
	fmt.Fprintf(w, "uart:    0x%08x\n", dev.regs.uart.r())
	fmt.Fprintf(w, "id:      0x%08x\n", dev.regs.id.r())
	if dev.err != nil {
		return fmt.Errorf("board: could not dump registers: %w", dev.err)
	}
	return nil
}

// DumpStatus writes a run summary to w.
func (dev *Device) DumpStatus(w io.Writer) error {
	fmt.Fprintf(w, "run:    %d\n", dev.daq.run)
	fmt.Fprintf(w, "cycles: %d\n", dev.daq.cycle)
	fmt.Fprintf(w, "state:  0x%08x\n", dev.regs.state.r())
	if dev.tmp != nil {
		t, err := dev.Temperature()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "temp:   %.2f C\n", t)
	}
	if dev.err != nil {
		return fmt.Errorf("board: could not dump status: %w", dev.err)
	}
	return nil
}

var _ capture.Driver = (*Device)(nil)
