package dma

import (
	"fmt"
	"strings"
)

// Base is the address of the GDMA register block.
const Base = 0x6003_f000

// NumChannels is the number of channels of a controller.
const NumChannels = 3

// Size of the register block.
const regsSize = 0x400

// Register offsets relative to Base. The interrupt group of channel n
// starts at n*intStride; the configuration groups of channel n at
// n*chanStride.
const (
	intRawCh0 = 0x000 // raw status
	intStCh0  = 0x004 // masked status
	intEnaCh0 = 0x008 // interrupt enable
	intClrCh0 = 0x00c // write one to clear
	intStride = 0x010

	inConf0Ch0    = 0x070
	inLinkCh0     = 0x080
	inPeriSelCh0  = 0x0a0
	outConf0Ch0   = 0x0d0
	outLinkCh0    = 0x0e0
	outPeriSelCh0 = 0x100
	chanStride    = 0x0c0
)

const (
	// Reset bit of IN_CONF0 and OUT_CONF0.
	conf0Reset = 0b1 << 0
	// MEM_TRANS_EN of IN_CONF0: route the channel's transmit side to
	// its receive side.
	inMemTrans = 0b1 << 4

	// Descriptor address field of IN_LINK and OUT_LINK.
	linkAddrMask = 0xf_ffff
	// Start bit of IN_LINK and OUT_LINK.
	linkStart = 0b1 << 22

	// linkBase supplies the address bits above linkAddrMask: the engine
	// only fetches descriptors from internal SRAM.
	linkBase = 0x3fc0_0000
)

// Status is the set of raw interrupt bits of a channel.
type Status uint32

const (
	InDone Status = 0b1 << iota
	InSucEOF
	InErrEOF
	OutDone
	OutEOF
	InDscrErr
	OutDscrErr
	InDscrEmpty
	OutTotalEOF
	InFIFOOverflow
	InFIFOUnderflow
	OutFIFOOverflow
	OutFIFOUnderflow

	// Status bits owned by each direction.
	rxStatus = InDone | InSucEOF | InErrEOF | InDscrErr | InDscrEmpty | InFIFOOverflow | InFIFOUnderflow
	txStatus = OutDone | OutEOF | OutDscrErr | OutTotalEOF | OutFIFOOverflow | OutFIFOUnderflow
)

var statusNames = [...]string{
	"IN_DONE", "IN_SUC_EOF", "IN_ERR_EOF", "OUT_DONE", "OUT_EOF", "IN_DSCR_ERR",
	"OUT_DSCR_ERR", "IN_DSCR_EMPTY", "OUT_TOTAL_EOF", "INFIFO_OVF", "INFIFO_UDF",
	"OUTFIFO_OVF", "OUTFIFO_UDF",
}

func (s Status) String() string {
	if s == 0 {
		return "0"
	}
	var names []string
	for i, name := range statusNames {
		if s&(0b1<<i) != 0 {
			names = append(names, name)
			s &^= 0b1 << i
		}
	}
	if s != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(s)))
	}
	return strings.Join(names, "|")
}

// Register names a channel register for diagnostics.
type Register struct {
	Name string
	Addr uint32
}

// Registers lists the registers of channel id in a block at base.
func Registers(base uint32, id ChannelID) []Register {
	ch := uint32(id)
	in := base + inConf0Ch0 + ch*chanStride
	intr := base + ch*intStride
	return []Register{
		{"INT_RAW", intr + intRawCh0},
		{"INT_ST", intr + intStCh0},
		{"INT_ENA", intr + intEnaCh0},
		{"IN_CONF0", in},
		{"IN_LINK", in + inLinkCh0 - inConf0Ch0},
		{"IN_PERI_SEL", in + inPeriSelCh0 - inConf0Ch0},
		{"OUT_CONF0", in + outConf0Ch0 - inConf0Ch0},
		{"OUT_LINK", in + outLinkCh0 - inConf0Ch0},
		{"OUT_PERI_SEL", in + outPeriSelCh0 - inConf0Ch0},
	}
}

// Peripheral selects the device a channel direction is connected to.
type Peripheral uint8

const (
	SPI2  Peripheral = 0
	UHCI0 Peripheral = 2 // UART0 and UART1
	I2S   Peripheral = 3
	AES   Peripheral = 6
	SHA   Peripheral = 7
	ADC   Peripheral = 8
)

var peripheralNames = map[Peripheral]string{
	SPI2:  "spi2",
	UHCI0: "uhci0",
	I2S:   "i2s",
	AES:   "aes",
	SHA:   "sha",
	ADC:   "adc",
}

func (p Peripheral) String() string {
	if n, ok := peripheralNames[p]; ok {
		return n
	}
	return fmt.Sprintf("peripheral(%d)", uint8(p))
}

func (p Peripheral) valid() bool {
	_, ok := peripheralNames[p]
	return ok
}

// ParsePeripheral returns the peripheral named s, such as "spi2".
func ParsePeripheral(s string) (Peripheral, error) {
	s = strings.ToLower(s)
	for p, n := range peripheralNames {
		if n == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPeripheral, s)
}
