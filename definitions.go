package st95

// definitions.go contains the wire-level constants of the ST95 series
// instruction set. These map to the instruction table readily found in the
// M95xxx datasheets.

// Single byte instruction opcodes. WRITE and READ are followed by a 2 byte
// big endian memory address.
const (
	opWREN  = 0x06 // Set write enable latch.
	opWRDI  = 0x04 // Reset write enable latch.
	opRDSR  = 0x05 // Read status register.
	opWRSR  = 0x01 // Write status register.
	opREAD  = 0x03 // Read from memory array.
	opWRITE = 0x02 // Write to memory array.
)

// Status is the ST95 status register byte. The device streams it out
// continuously after a RDSR instruction until chip select is released,
// which is how the driver waits out internal write cycles.
type Status uint8

const (
	statusWIP  Status = 1 << 0 // write in progress
	statusWEL  Status = 1 << 1 // write enable latch
	statusBP0  Status = 1 << 2
	statusBP1  Status = 1 << 3
	statusSRWD Status = 1 << 7 // status register write disable
)

// WriteInProgress reports whether the device is still committing a write
// cycle to non-volatile storage. No instruction other than RDSR is accepted
// while set.
func (s Status) WriteInProgress() bool { return s&statusWIP != 0 }

// WriteEnabled reports the state of the write enable latch.
func (s Status) WriteEnabled() bool { return s&statusWEL != 0 }

// BlockProtect returns the BP1:BP0 block protection bits. Zero means the
// whole array is writable.
func (s Status) BlockProtect() uint8 { return uint8(s>>2) & 0b11 }

// StatusRegisterLocked reports the SRWD bit. When set and the WP pin is
// driven low the status register itself is write protected.
func (s Status) StatusRegisterLocked() bool { return s&statusSRWD != 0 }

func (s Status) String() (str string) {
	if s == 0 {
		return "ready"
	}
	if s.WriteInProgress() {
		str += "wip "
	}
	if s.WriteEnabled() {
		str += "wel "
	}
	if s.BlockProtect() != 0 {
		str += "bp "
	}
	if s.StatusRegisterLocked() {
		str += "srwd "
	}
	return str
}
