package st95

import "time"

// Bus is the SPI transport the driver issues device commands over. The chip
// select line is not part of the Bus; the driver owns it and brackets every
// command sequence with it, which lets a single command span several
// Transmit/Receive calls (standby polling holds the chip selected across an
// arbitrary number of status reads).
//
// Implementations distinguish transient contention from hard failure by
// returning an error matching ErrBusBusy for the former. The driver retries
// busy results and propagates everything else.
type Bus interface {
	// Transmit sends w over the bus, blocking until the transfer finishes
	// or timeout elapses. Received bytes are discarded.
	Transmit(w []byte, timeout time.Duration) error
	// Receive clocks out len(r) bytes and stores what the device answers
	// in r, blocking until the transfer finishes or timeout elapses.
	Receive(r []byte, timeout time.Duration) error
	// Ready reports whether the bus can accept a new transfer. The driver
	// busy-waits on Ready before starting a command sequence.
	Ready() bool
}

// outputPin abstracts a push-pull GPIO. true drives the line high.
type outputPin func(bool)
