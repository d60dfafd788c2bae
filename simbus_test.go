package st95

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errSimTransfer = errors.New("simulated hard transfer error")

// subwrite is one page write observed on the simulated bus.
type subwrite struct {
	addr uint16
	n    int
}

// simBus emulates an ST95 EEPROM behind the Bus interface: a backing memory
// array, the write enable latch, the write-in-progress countdown and,
// crucially, the device's page wrap behavior on writes that cross a page
// boundary. Fault injection knobs drive the failure mode tests.
type simBus struct {
	mem      []byte
	pagesize int
	status   Status

	selected bool
	frame    []byte // bytes transmitted while selected
	served   int    // payload bytes already answered for the current READ frame

	// wipPolls is how many status reads report write-in-progress after
	// each accepted write before the flag clears.
	wipPolls     int
	wipCountdown int

	// busyPayload makes the next n payload transmits report ErrBusBusy.
	busyPayload int
	// failOnWrite hard-fails the payload of the Nth (1 based) page write.
	failOnWrite int
	// failAllTx hard-fails every transmit.
	failAllTx bool
	// notReadyPolls makes Ready report false that many times.
	notReadyPolls int

	writes      []subwrite // accepted page writes in order
	frames      [][]byte   // every chip select frame's transmitted bytes
	writeFrames int        // write instruction frames started, attempts included
	payloadTx   int        // payload transmit attempts, busy results included
	statusReads int        // status bytes served
}

func newSimBus(pagesize, capacity int) *simBus {
	return &simBus{
		mem:      make([]byte, capacity),
		pagesize: pagesize,
		wipPolls: 2,
	}
}

// chipSelect is handed to the Device as its cs pin. The device executes
// buffered commands on the rising (deselect) edge.
func (b *simBus) chipSelect(high bool) {
	if !high {
		b.selected = true
		b.frame = b.frame[:0]
		b.served = 0
		return
	}
	if !b.selected {
		return
	}
	b.selected = false
	b.exec()
}

func (b *simBus) exec() {
	if len(b.frame) == 0 {
		return
	}
	b.frames = append(b.frames, append([]byte{}, b.frame...))
	switch b.frame[0] {
	case opWREN:
		b.status |= statusWEL
	case opWRDI:
		b.status &^= statusWEL
	case opWRSR:
		if len(b.frame) >= 2 && b.status.WriteEnabled() {
			b.status = Status(b.frame[1]) & (statusBP0 | statusBP1 | statusSRWD)
			b.wipCountdown = b.wipPolls
		}
	case opWRITE:
		if len(b.frame) > 3 && b.status.WriteEnabled() {
			addr := binary.BigEndian.Uint16(b.frame[1:3])
			data := b.frame[3:]
			// Addressing wraps within the page: bytes past the page
			// boundary land back at the start of the same page. A
			// correct splitter never triggers this.
			base := int(addr) &^ (b.pagesize - 1)
			off := int(addr) & (b.pagesize - 1)
			for i, v := range data {
				b.mem[base+(off+i)%b.pagesize] = v
			}
			b.writes = append(b.writes, subwrite{addr: addr, n: len(data)})
			b.status &^= statusWEL
			b.wipCountdown = b.wipPolls
		}
	}
}

func (b *simBus) Transmit(w []byte, _ time.Duration) error {
	if b.failAllTx {
		return errSimTransfer
	}
	if !b.selected {
		return errSimTransfer
	}
	if len(b.frame) == 0 && len(w) > 0 && w[0] == opWRITE {
		b.writeFrames++
	}
	isPayload := len(b.frame) == 3 && b.frame[0] == opWRITE
	if isPayload {
		b.payloadTx++
		if b.busyPayload > 0 {
			b.busyPayload--
			return ErrBusBusy
		}
		if b.failOnWrite != 0 && len(b.writes)+1 == b.failOnWrite {
			return errSimTransfer
		}
	}
	b.frame = append(b.frame, w...)
	return nil
}

func (b *simBus) Receive(r []byte, _ time.Duration) error {
	if !b.selected || len(b.frame) == 0 {
		return errSimTransfer
	}
	switch b.frame[0] {
	case opRDSR:
		s := b.status
		if b.wipCountdown > 0 {
			s |= statusWIP
			b.wipCountdown--
		}
		for i := range r {
			r[i] = byte(s)
		}
		b.statusReads += len(r)
	case opREAD:
		if len(b.frame) < 3 {
			return errSimTransfer
		}
		addr := int(binary.BigEndian.Uint16(b.frame[1:3])) + b.served
		for i := range r {
			r[i] = b.mem[(addr+i)%len(b.mem)]
		}
		b.served += len(r)
	default:
		for i := range r {
			r[i] = 0
		}
	}
	return nil
}

func (b *simBus) Ready() bool {
	if b.notReadyPolls > 0 {
		b.notReadyPolls--
		return false
	}
	return true
}

// reset clears the transaction history accumulated so far, typically the
// Init probe traffic.
func (b *simBus) reset() {
	b.writes = nil
	b.frames = nil
	b.writeFrames = 0
	b.payloadTx = 0
	b.statusReads = 0
}

// newTestDevice builds an initialized Device over a fresh simBus. tweak runs
// before Init so fault injection can target the probe too.
func newTestDevice(t *testing.T, pagesize, capacity int, tweak func(*simBus)) (*Device, *simBus) {
	t.Helper()
	b := newSimBus(pagesize, capacity)
	if tweak != nil {
		tweak(b)
	}
	d := New(b, b.chipSelect, nil, nil)
	err := d.Init(Config{
		PageSize: uint32(pagesize),
		Capacity: uint32(capacity),
		Sleep:    func(time.Duration) {},
	})
	require.NoError(t, err)
	b.reset()
	return d, b
}
