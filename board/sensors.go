// Copyright 2025 The TeensyLogicAnalyzer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"
)

// TMP102 temperature register.
const tmp102RegTemp = 0x00

// Temperature returns the board temperature in Celsius, read from
// the TMP102 sensor over SMBus.
func (dev *Device) Temperature() (float64, error) {
	if dev.tmp == nil {
		return 0, fmt.Errorf("board: no temperature sensor configured")
	}

	raw, err := dev.tmp.ReadWord(dev.cfg.sensor.addr, tmp102RegTemp)
	if err != nil {
		return 0, fmt.Errorf("board: could not read temperature register: %w", err)
	}

	// the sensor sends the 12-bit temperature MSB first.
	raw = raw<<8 | raw>>8
	return float64(int16(raw)>>4) * 0.0625, nil
}
