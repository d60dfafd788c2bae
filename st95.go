// Package st95 implements a driver for the ST95 series of SPI EEPROMs
// (M95040, M95256 et al). The device accepts at most one page per write
// cycle and silently wraps addressing within a page when a cycle is asked
// to cross a page boundary, so the driver splits arbitrary writes into
// page bounded transactions and waits out the device's internal write
// cycle between them.
package st95

import (
	"errors"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/exp/constraints"
)

var (
	// ErrBusBusy is returned by Bus implementations when a transfer could
	// not start because the bus is transiently occupied. The driver
	// retries these; every other bus error is treated as a hard failure.
	ErrBusBusy = errors.New("st95: bus busy")
	// ErrTransport marks a hard bus transfer failure.
	ErrTransport = errors.New("st95: transport failure")
	// ErrBusyRetryExhausted is returned when the payload transmit of a page
	// write still reported busy after all retry attempts.
	ErrBusyRetryExhausted = errors.New("st95: busy retries exhausted")
	// ErrTimeout is returned when the device's write-in-progress flag did
	// not clear within the configured write cycle timeout.
	ErrTimeout = errors.New("st95: timeout waiting for write cycle")
	// ErrOutOfRange is returned for accesses beyond the device capacity.
	ErrOutOfRange = errors.New("st95: address range exceeds device capacity")
	// ErrUninitialized is returned for operations before a successful Init.
	ErrUninitialized = errors.New("st95: device uninitialized")
)

const (
	// payloadAttempts is how many times the payload transmit of a page
	// write is attempted while the bus reports busy.
	payloadAttempts = 5
	// busyRetryDelay separates payload transmit attempts.
	busyRetryDelay = 5 * time.Millisecond
	// pollPeriod separates bus-ready and write-in-progress polls.
	pollPeriod = time.Millisecond
)

// Device is a single ST95 EEPROM on a chip-select-gated SPI bus. The zero
// value is not usable; construct with New and call Init before any other
// method. Methods serialize internally, one bus operation is in flight at
// a time.
type Device struct {
	mu   sync.Mutex
	bus  Bus
	cs   outputPin
	wp   outputPin
	hold outputPin
	// Immutable geometry after Init.
	pagesize     uint32
	capacity     uint32
	sleep        func(time.Duration)
	logger       *slog.Logger
	txTimeout    time.Duration
	rxTimeout    time.Duration
	standbyPolls int
	initted      bool
	header       [3]byte // scratch for instruction headers, avoids allocation.
}

// Config is the device geometry and driver tuning consumed by (*Device).Init.
// Use one of the ConfigM95xxx constructors for the common family members.
type Config struct {
	// PageSize is the device's write page size in bytes. Must be a power
	// of two greater than zero.
	PageSize uint32
	// Capacity is the device's total byte capacity. Must be a nonzero
	// multiple of PageSize and addressable with 2 bytes (at most 65536).
	Capacity uint32
	Logger   *slog.Logger
	// Sleep replaces time.Sleep in the driver's polling loops. Tests
	// inject a fake clock here. Nil selects time.Sleep.
	Sleep func(time.Duration)
	// WriteCycleTimeout bounds the standby poll waiting for the device's
	// write-in-progress flag to clear. Zero selects 100ms; the family's
	// worst case write cycle is 10ms.
	WriteCycleTimeout time.Duration
	// TransmitTimeout bounds a single bus transmit. Zero selects 100ms.
	TransmitTimeout time.Duration
	// ReceiveTimeout bounds a single bus receive. Zero selects 200ms.
	ReceiveTimeout time.Duration
}

func ConfigM95040() Config { return Config{PageSize: 16, Capacity: 512} }
func ConfigM95080() Config { return Config{PageSize: 32, Capacity: 1024} }
func ConfigM95160() Config { return Config{PageSize: 32, Capacity: 2048} }
func ConfigM95320() Config { return Config{PageSize: 32, Capacity: 4096} }
func ConfigM95640() Config { return Config{PageSize: 32, Capacity: 8192} }
func ConfigM95128() Config { return Config{PageSize: 64, Capacity: 16384} }
func ConfigM95256() Config { return Config{PageSize: 64, Capacity: 32768} }
func ConfigM95512() Config { return Config{PageSize: 128, Capacity: 65536} }

// New wires a Device to its bus and control pins. cs is mandatory. wp and
// hold may be nil when the write-protect and hold lines are strapped high
// in hardware. The Device is unusable until Init succeeds.
func New(bus Bus, cs, wp, hold outputPin) *Device {
	if bus == nil || cs == nil {
		panic("st95: nil bus or chip select")
	}
	return &Device{
		bus:  bus,
		cs:   cs,
		wp:   wp,
		hold: hold,
	}
}

// Init validates the geometry, drives the control lines to their idle
// levels and probes the device by reading its status register. Init may be
// called again after a system reset; geometry is fixed between Inits.
func (d *Device) Init(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case cfg.PageSize == 0 || cfg.PageSize&(cfg.PageSize-1) != 0:
		return errors.New("st95: page size must be a power of two")
	case cfg.Capacity == 0 || !isaligned(cfg.Capacity, cfg.PageSize):
		return errors.New("st95: capacity must be a nonzero multiple of page size")
	case cfg.Capacity > 1<<16:
		return errors.New("st95: capacity not addressable with 2 byte addresses")
	}
	d.pagesize = cfg.PageSize
	d.capacity = cfg.Capacity
	d.logger = cfg.Logger
	d.sleep = cfg.Sleep
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	d.txTimeout = defaultDuration(cfg.TransmitTimeout, 100*time.Millisecond)
	d.rxTimeout = defaultDuration(cfg.ReceiveTimeout, 200*time.Millisecond)
	cycle := defaultDuration(cfg.WriteCycleTimeout, 100*time.Millisecond)
	d.standbyPolls = int(cycle / pollPeriod)
	if d.standbyPolls < 1 {
		d.standbyPolls = 1
	}

	// Idle levels: deselected, write protect released, hold released.
	d.cs(true)
	if d.wp != nil {
		d.wp(true)
	}
	if d.hold != nil {
		d.hold(true)
	}

	d.info("Init:start", slog.Uint64("pagesize", uint64(d.pagesize)), slog.Uint64("capacity", uint64(d.capacity)))
	status, err := d.readStatus()
	if err != nil {
		return errjoin(errors.New("st95: device probe failed"), err)
	}
	if status.WriteInProgress() {
		// Power-up raced an earlier write cycle. Wait it out.
		if err := d.waitStandby(); err != nil {
			return err
		}
	}
	d.initted = true
	d.debug("Init:done", slog.String("status", status.String()))
	return nil
}

// PageSize returns the device's write page size in bytes.
func (d *Device) PageSize() uint32 { return d.pagesize }

// Capacity returns the device's total byte capacity.
func (d *Device) Capacity() uint32 { return d.capacity }

// WriteProtect drives the WP line. While protected (and with the SRWD
// status bit set) the status register cannot be rewritten. No-op when the
// WP line is not wired.
func (d *Device) WriteProtect(protect bool) {
	if d.wp != nil {
		d.wp(!protect)
	}
}

// Hold drives the HOLD line, pausing an in-flight transaction without
// deselecting the chip. No-op when the HOLD line is not wired.
func (d *Device) Hold(hold bool) {
	if d.hold != nil {
		d.hold(!hold)
	}
}

// acquire takes the operation lock. The caller must defer release even
// when acquire errors, mirroring the lock-then-check idiom used throughout.
func (d *Device) acquire() error {
	d.mu.Lock()
	if !d.initted {
		return ErrUninitialized
	}
	return nil
}

func (d *Device) release() {
	d.mu.Unlock()
}

func (d *Device) checkRange(addr uint16, n int) error {
	if n < 0 || uint32(addr)+uint32(n) > d.capacity {
		return ErrOutOfRange
	}
	return nil
}

func defaultDuration(d, fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return d
}

func errjoin(errs ...error) error {
	return errors.Join(errs...)
}

// alignup rounds `val` up to nearest multiple of `align`. `align` must be a power of 2.
func alignup[T constraints.Unsigned](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}

// aligndown rounds `val` down to nearest multiple of `align`. `align` must be a power of 2.
func aligndown[T constraints.Unsigned](val, align T) T {
	return val &^ (align - 1)
}

// isaligned checks if `val` is wholly divisible by `align`. `align` must be a power of 2.
func isaligned[T constraints.Unsigned](val, align T) bool {
	return val&(align-1) == 0
}
