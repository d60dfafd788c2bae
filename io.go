package st95

import (
	"errors"

	"log/slog"
)

// io.go contains the low level command sequences issued to the device. Every
// sequence is bracketed by the chip select line; the write sequences are
// additionally bracketed by the WREN/WRDI instructions and the standby poll
// that waits out the device's internal write cycle.

func (d *Device) csLow()  { d.cs(false) }
func (d *Device) csHigh() { d.cs(true) }

// waitBusIdle busy-waits until the bus can accept a new transfer.
func (d *Device) waitBusIdle() {
	for !d.bus.Ready() {
		d.sleep(pollPeriod)
	}
}

// sendInstruction blocks until the bus is idle and transmits instr. Any
// failure, busy included, is a transport error: instructions are a handful
// of bytes and a bus that cannot take them is not making progress.
func (d *Device) sendInstruction(instr []byte) error {
	d.waitBusIdle()
	if err := d.bus.Transmit(instr, d.txTimeout); err != nil {
		return errjoin(ErrTransport, err)
	}
	return nil
}

func (d *Device) writeEnable() error {
	d.csLow()
	d.header[0] = opWREN
	err := d.sendInstruction(d.header[:1])
	d.csHigh()
	return err
}

func (d *Device) writeDisable() error {
	d.csLow()
	d.header[0] = opWRDI
	err := d.sendInstruction(d.header[:1])
	d.csHigh()
	return err
}

// writePage performs one page write cycle. The caller guarantees the range
// [addr, addr+len(src)) does not cross a page boundary and len(src) is at
// most the page size; the device would otherwise wrap addressing within the
// page and corrupt data.
func (d *Device) writePage(src []byte, addr uint16) error {
	d.trace("writePage", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(src)))
	d.waitBusIdle()
	if err := d.writeEnable(); err != nil {
		return err
	}

	d.header[0] = opWRITE
	d.header[1] = byte(addr >> 8)
	d.header[2] = byte(addr)
	d.csLow()
	txErr := d.sendInstruction(d.header[:3])
	if txErr == nil {
		txErr = d.transmitPayload(src)
	}
	d.csHigh()

	// The write cycle is waited out and write access revoked even after a
	// failed transmit so the device is left in a known state.
	if err := d.waitStandby(); err != nil {
		txErr = errjoin(txErr, err)
	}
	if err := d.writeDisable(); err != nil {
		txErr = errjoin(txErr, err)
	}
	if txErr != nil {
		d.logerr("writePage", slog.Uint64("addr", uint64(addr)), slog.String("err", txErr.Error()))
	}
	return txErr
}

// transmitPayload sends the data phase of a page write, retrying up to
// payloadAttempts times while the bus reports transient busy.
func (d *Device) transmitPayload(src []byte) error {
	var err error
	for attempt := 0; attempt < payloadAttempts; attempt++ {
		err = d.bus.Transmit(src, d.txTimeout)
		if !errors.Is(err, ErrBusBusy) {
			break
		}
		d.sleep(busyRetryDelay)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBusBusy):
		return ErrBusyRetryExhausted
	default:
		return errjoin(ErrTransport, err)
	}
}

// waitStandby polls the status register until the write-in-progress flag
// clears. The chip stays selected for the whole poll; the device streams
// status bytes for as long as the RDSR instruction is in effect. The poll
// is bounded: a device that never goes ready yields ErrTimeout instead of
// hanging the caller.
func (d *Device) waitStandby() error {
	d.csLow()
	defer d.csHigh()
	d.header[0] = opRDSR
	if err := d.sendInstruction(d.header[:1]); err != nil {
		return err
	}
	var status [1]byte
	for poll := 0; poll < d.standbyPolls; poll++ {
		err := d.bus.Receive(status[:], d.rxTimeout)
		if err != nil {
			if errors.Is(err, ErrBusBusy) {
				d.sleep(pollPeriod)
				continue
			}
			return errjoin(ErrTransport, err)
		}
		if !Status(status[0]).WriteInProgress() {
			return nil
		}
		d.sleep(pollPeriod)
	}
	return ErrTimeout
}

// receive reads into r, retrying up to payloadAttempts times while the bus
// reports transient busy.
func (d *Device) receive(r []byte) error {
	var err error
	for attempt := 0; attempt < payloadAttempts; attempt++ {
		err = d.bus.Receive(r, d.rxTimeout)
		if !errors.Is(err, ErrBusBusy) {
			break
		}
		d.sleep(pollPeriod)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBusBusy):
		return ErrBusyRetryExhausted
	default:
		return errjoin(ErrTransport, err)
	}
}

// readStatus issues a single RDSR and returns one status byte. Callers hold
// the operation lock.
func (d *Device) readStatus() (Status, error) {
	d.waitBusIdle()
	d.csLow()
	d.header[0] = opRDSR
	err := d.sendInstruction(d.header[:1])
	var status [1]byte
	if err == nil {
		err = d.receive(status[:])
	}
	d.csHigh()
	return Status(status[0]), err
}

// ReadStatus reads the device's status register.
func (d *Device) ReadStatus() (Status, error) {
	err := d.acquire()
	defer d.release()
	if err != nil {
		return 0, err
	}
	return d.readStatus()
}

// WriteStatus rewrites the writable status register bits (BP0, BP1, SRWD).
// Like a memory write this triggers an internal write cycle, which is
// waited out before returning.
func (d *Device) WriteStatus(s Status) error {
	err := d.acquire()
	defer d.release()
	if err != nil {
		return err
	}
	d.debug("WriteStatus", slog.String("status", s.String()))
	d.waitBusIdle()
	if err := d.writeEnable(); err != nil {
		return err
	}
	d.header[0] = opWRSR
	d.header[1] = byte(s)
	d.csLow()
	wrErr := d.sendInstruction(d.header[:2])
	d.csHigh()
	if err := d.waitStandby(); err != nil {
		wrErr = errjoin(wrErr, err)
	}
	if err := d.writeDisable(); err != nil {
		wrErr = errjoin(wrErr, err)
	}
	return wrErr
}
