package st95

import (
	"log/slog"
)

// WriteBuffer writes src to the EEPROM starting at addr. The destination
// may start anywhere and span any number of pages; WriteBuffer splits it
// into page bounded sub-writes issued in ascending address order, each
// completing its full write cycle before the next begins.
//
// The first failing sub-write aborts the operation: the prefix before it
// has been committed, nothing after it has been attempted, and no rollback
// is performed.
func (d *Device) WriteBuffer(addr uint16, src []byte) error {
	err := d.acquire()
	defer d.release()
	if err != nil {
		return err
	}
	if err := d.checkRange(addr, len(src)); err != nil {
		return err
	}
	if len(src) == 0 {
		return nil
	}
	d.debug("WriteBuffer", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(src)))

	a := uint32(addr)
	if !isaligned(a, d.pagesize) {
		// Unaligned start: fill the remainder of the current page first.
		head := alignup(a, d.pagesize) - a
		if uint32(len(src)) <= head {
			return d.writePage(src, uint16(a))
		}
		if err := d.writePage(src[:head], uint16(a)); err != nil {
			return err
		}
		a += head
		src = src[head:]
	}
	// a is page aligned here. Whole pages, then the remainder.
	for uint32(len(src)) > d.pagesize {
		if err := d.writePage(src[:d.pagesize], uint16(a)); err != nil {
			return err
		}
		a += d.pagesize
		src = src[d.pagesize:]
	}
	if len(src) == 0 {
		// Request filled exactly to a page boundary. A zero length
		// transaction is never issued.
		return nil
	}
	return d.writePage(src, uint16(a))
}

// ReadBuffer fills dst with len(dst) bytes read sequentially from addr.
// Reads have no page granularity; the device streams the whole range in
// one transaction.
func (d *Device) ReadBuffer(addr uint16, dst []byte) error {
	err := d.acquire()
	defer d.release()
	if err != nil {
		return err
	}
	if err := d.checkRange(addr, len(dst)); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	d.debug("ReadBuffer", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(dst)))

	d.waitBusIdle()
	d.header[0] = opREAD
	d.header[1] = byte(addr >> 8)
	d.header[2] = byte(addr)
	d.csLow()
	rdErr := d.sendInstruction(d.header[:3])
	if rdErr == nil {
		rdErr = d.receive(dst)
	}
	d.csHigh()
	return rdErr
}
