//go:build tinygo

package ch32

import (
	"runtime/volatile"
	"unsafe"
)

// mmioReg binds a register cell to a volatile MMIO word.
type mmioReg struct {
	r *volatile.Register32
}

func (m mmioReg) Get() uint32  { return m.r.Get() }
func (m mmioReg) Set(v uint32) { m.r.Set(v) }

func reg(addr uintptr) Reg {
	return mmioReg{(*volatile.Register32)(unsafe.Pointer(addr))}
}

func mmioPort(base uintptr) *PortRegs {
	return &PortRegs{
		CFGLR: reg(base + 0x00),
		CFGHR: reg(base + 0x04),
		INDR:  reg(base + 0x08),
		OUTDR: reg(base + 0x0C),
		BSHR:  reg(base + 0x10),
		BCR:   reg(base + 0x14),
		LCKR:  reg(base + 0x18),
	}
}

func mmioAFIO(base uintptr) *AFIORegs {
	return &AFIORegs{
		EVCR:  reg(base + 0x00),
		PCFR1: reg(base + 0x04),
		EXTICR: [4]Reg{
			reg(base + 0x08), reg(base + 0x0C),
			reg(base + 0x10), reg(base + 0x14),
		},
		PCFR2: reg(base + 0x1C),
	}
}

func mmioRCC(base uintptr) *RCCRegs {
	return &RCCRegs{
		CTLR:      reg(base + 0x00),
		CFGR0:     reg(base + 0x04),
		INTR:      reg(base + 0x08),
		APB2PRSTR: reg(base + 0x0C),
		APB1PRSTR: reg(base + 0x10),
		AHBPCENR:  reg(base + 0x14),
		APB2PCENR: reg(base + 0x18),
		APB1PCENR: reg(base + 0x1C),
		BDCTLR:    reg(base + 0x20),
		RSTSCKR:   reg(base + 0x24),
	}
}

func mmioI2C(base uintptr) *I2CRegs {
	return &I2CRegs{
		CTLR1:  reg(base + 0x00),
		CTLR2:  reg(base + 0x04),
		OADDR1: reg(base + 0x08),
		OADDR2: reg(base + 0x0C),
		DATAR:  reg(base + 0x10),
		STAR1:  reg(base + 0x14),
		STAR2:  reg(base + 0x18),
		CKCFGR: reg(base + 0x1C),
		RTR:    reg(base + 0x20),
	}
}

func mmioSPI(base uintptr) *SPIRegs {
	return &SPIRegs{
		CTLR1: reg(base + 0x00),
		CTLR2: reg(base + 0x04),
		STATR: reg(base + 0x08),
		DATAR: reg(base + 0x0C),
		CRCR:  reg(base + 0x10),
		RCRCR: reg(base + 0x14),
		TCRCR: reg(base + 0x18),
		HSCR:  reg(base + 0x1C),
	}
}

func mmioUSART(base uintptr) *USARTRegs {
	return &USARTRegs{
		STATR: reg(base + 0x00),
		DATAR: reg(base + 0x04),
		BRR:   reg(base + 0x08),
		CTLR1: reg(base + 0x0C),
		CTLR2: reg(base + 0x10),
		CTLR3: reg(base + 0x14),
		GPR:   reg(base + 0x18),
	}
}

func mmioADC(base uintptr) *ADCRegs {
	return &ADCRegs{
		STATR:   reg(base + 0x00),
		CTLR1:   reg(base + 0x04),
		CTLR2:   reg(base + 0x08),
		SAMPTR1: reg(base + 0x0C),
		SAMPTR2: reg(base + 0x10),
		IOFR: [4]Reg{
			reg(base + 0x14), reg(base + 0x18),
			reg(base + 0x1C), reg(base + 0x20),
		},
		WDHTR: reg(base + 0x24),
		WDLTR: reg(base + 0x28),
		RSQR1: reg(base + 0x2C),
		RSQR2: reg(base + 0x30),
		RSQR3: reg(base + 0x34),
		ISQR:  reg(base + 0x38),
		IDATAR: [4]Reg{
			reg(base + 0x3C), reg(base + 0x40),
			reg(base + 0x44), reg(base + 0x48),
		},
		RDATAR: reg(base + 0x4C),
	}
}

func mmioTimer(base uintptr) *TimerRegs {
	return &TimerRegs{
		CTLR1:     reg(base + 0x00),
		CTLR2:     reg(base + 0x04),
		SMCFGR:    reg(base + 0x08),
		DMAINTENR: reg(base + 0x0C),
		INTFR:     reg(base + 0x10),
		SWEVGR:    reg(base + 0x14),
		CHCTLR1:   reg(base + 0x18),
		CHCTLR2:   reg(base + 0x1C),
		CCER:      reg(base + 0x20),
		CNT:       reg(base + 0x24),
		PSC:       reg(base + 0x28),
		ATRLR:     reg(base + 0x2C),
		RPTCR:     reg(base + 0x30),
		CH1CVR:    reg(base + 0x34),
		CH2CVR:    reg(base + 0x38),
		CH3CVR:    reg(base + 0x3C),
		CH4CVR:    reg(base + 0x40),
		BDTR:      reg(base + 0x44),
		DMACFGR:   reg(base + 0x48),
		DMAADR:    reg(base + 0x4C),
	}
}

// NewMMIODevice builds the device table over the real peripheral
// addresses. Call exactly once, from target startup.
func NewMMIODevice() *Device {
	return &Device{
		rcc:  mmioRCC(rccBase),
		afio: mmioAFIO(afioBase),
		adc:  mmioADC(adc1Base),
		ports: [NumPorts]*PortRegs{
			mmioPort(gpioABase), mmioPort(gpioBBase), mmioPort(gpioCBase),
			mmioPort(gpioDBase), mmioPort(gpioEBase),
		},
		i2cs:   [2]*I2CRegs{mmioI2C(i2c1Base), mmioI2C(i2c2Base)},
		spis:   [2]*SPIRegs{mmioSPI(spi1Base), mmioSPI(spi2Base)},
		usarts: [3]*USARTRegs{mmioUSART(usart1Base), mmioUSART(usart2Base), mmioUSART(usart3Base)},
		tims: [4]*TimerRegs{
			mmioTimer(tim1Base), mmioTimer(tim2Base),
			mmioTimer(tim3Base), mmioTimer(tim4Base),
		},
	}
}
