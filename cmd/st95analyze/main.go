// st95analyze processes binary Saleae digital capture files of ST95 EEPROM
// bus traffic and prints the decoded instruction stream. Point a 4 channel
// logic capture at CLK, CS, MOSI and MISO and export each channel as a
// binary digital file.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "st95analyze - Decode Saleae digital data files of ST95 EEPROM transactions.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	mosi := flag.String("f-mosi", "digital_1.bin", "Input filename: SPI MOSI data.")
	miso := flag.String("f-miso", "digital_3.bin", "Input filename: SPI MISO data.")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI CLK data.")
	output := flag.String("o-cmd", "commands.txt", "Output filename of decoded instruction stream.")
	omitPolls := flag.Bool("omit-polls", false, "Collapse RDSR status poll frames into their enclosing write sequence line.")
	flag.Parse()

	start := time.Now()
	if err := run(*mosi, *miso, *enable, *clk, *output, *omitPolls); err != nil {
		log.Fatal(err.Error())
	}
	log.Println("finished in", time.Since(start))
}

func run(fmosi, fmiso, fenable, fclk, output string, omitPolls bool) error {
	const fmtMsg = "cmd×%2d %s data=%#x"
	mosi, err := opendigital(fmosi)
	if err != nil {
		return err
	}
	miso, err := opendigital(fmiso)
	if err != nil {
		return err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return err
	}
	clk, err := opendigital(fclk)
	if err != nil {
		return err
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, mosi, miso)

	fp, err := os.Create(output)
	if err != nil {
		return err
	}
	defer fp.Close()

	for _, action := range process(txs) {
		if omitPolls && action.Cmd.Op == opRDSR {
			continue
		}
		_, err = fmt.Fprintf(fp, fmtMsg, action.Num, action.Cmd.String(), action.Data)
		if err != nil {
			return err
		}
		fmt.Fprintln(fp)
	}
	return nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}

// ST95 single byte opcodes, kept in sync with the driver package.
const (
	opWREN  = 0x06
	opWRDI  = 0x04
	opRDSR  = 0x05
	opWRSR  = 0x01
	opREAD  = 0x03
	opWRITE = 0x02
)

type ST95Cmd struct {
	Op      byte
	Addr    uint16
	HasAddr bool
}

func (cmd *ST95Cmd) String() string {
	name := "invalid"
	switch cmd.Op {
	case opWREN:
		name = "write-enable"
	case opWRDI:
		name = "write-disable"
	case opRDSR:
		name = "read-status"
	case opWRSR:
		name = "write-status"
	case opREAD:
		name = "read"
	case opWRITE:
		name = "write"
	}
	if cmd.HasAddr {
		return fmt.Sprintf("op=%13s  addr=%#06x", name, cmd.Addr)
	}
	return fmt.Sprintf("op=%13s             ", name)
}

// commandFromBytes splits one chip select frame into the decoded instruction
// and its payload. mosi carries host data, miso carries device data; the
// payload side depends on the instruction.
func commandFromBytes(mosi, miso []byte) (cmd ST95Cmd, data []byte) {
	if len(mosi) == 0 {
		return cmd, nil
	}
	cmd.Op = mosi[0]
	switch cmd.Op {
	case opREAD, opWRITE:
		if len(mosi) < 3 {
			return cmd, nil
		}
		cmd.Addr = binary.BigEndian.Uint16(mosi[1:3])
		cmd.HasAddr = true
		if cmd.Op == opREAD {
			if len(miso) > 3 {
				data = miso[3:]
			}
		} else {
			data = mosi[3:]
		}
	case opRDSR:
		if len(miso) > 1 {
			data = miso[1:]
		}
	case opWRSR:
		data = mosi[1:]
	}
	return cmd, data
}

type st95tx struct {
	Num   int
	Cmd   ST95Cmd
	Data  []byte
	Start float64
}

// process decodes the transaction list, collapsing runs of identical frames
// (standby polls produce long runs of read-status frames).
func process(txs []analyzers.TxSPI) (out []st95tx) {
	accumulated := 1
	for i := 0; i < len(txs); i++ {
		tx := txs[i]
		cmd, data := commandFromBytes(tx.SDO, tx.SDI)
		for j := i + 1; j < len(txs); j++ {
			nextcmd, nextdata := commandFromBytes(txs[j].SDO, txs[j].SDI)
			if nextcmd != cmd || !bytes.Equal(data, nextdata) {
				break
			}
			accumulated++
			i = j
		}
		out = append(out, st95tx{
			Num:   accumulated,
			Cmd:   cmd,
			Data:  data,
			Start: tx.StartTime(),
		})
		accumulated = 1
	}
	return out
}
