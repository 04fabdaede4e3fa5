package ch32

import (
	"fmt"

	"gomcu/core"
)

// Number of GPIO ports on this part (PA..PE).
const NumPorts = 5

// Device hands out the register file of each peripheral instance. Every
// block can be claimed exactly once, so two drivers cannot end up poking
// the same peripheral behind each other's back.
type Device struct {
	rcc    *RCCRegs
	afio   *AFIORegs
	ports  [NumPorts]*PortRegs
	i2cs   [2]*I2CRegs
	spis   [2]*SPIRegs
	usarts [3]*USARTRegs
	adc    *ADCRegs
	tims   [4]*TimerRegs

	claimed struct {
		rcc    bool
		afio   bool
		adc    bool
		ports  [NumPorts]bool
		i2cs   [2]bool
		spis   [2]bool
		usarts [3]bool
		tims   [4]bool
	}
}

// ClaimRCC hands out the clock control block.
func (d *Device) ClaimRCC() (*RCCRegs, error) {
	if d.claimed.rcc {
		return nil, fmt.Errorf("RCC already claimed")
	}
	d.claimed.rcc = true
	return d.rcc, nil
}

// ClaimAFIO hands out the remap block.
func (d *Device) ClaimAFIO() (*AFIORegs, error) {
	if d.claimed.afio {
		return nil, fmt.Errorf("AFIO already claimed")
	}
	d.claimed.afio = true
	return d.afio, nil
}

// ClaimPort hands out a GPIO port register file.
func (d *Device) ClaimPort(p core.PortID) (*PortRegs, error) {
	if int(p) >= NumPorts {
		return nil, fmt.Errorf("no GPIO port %d on this part", p)
	}
	if d.claimed.ports[p] {
		return nil, fmt.Errorf("GPIO port %c already claimed", 'A'+p)
	}
	d.claimed.ports[p] = true
	return d.ports[p], nil
}

// ClaimI2C hands out an I2C controller (n is the hardware number, 1 or 2).
func (d *Device) ClaimI2C(n int) (*I2CRegs, error) {
	if n < 1 || n > len(d.i2cs) {
		return nil, fmt.Errorf("no I2C%d on this part", n)
	}
	if d.claimed.i2cs[n-1] {
		return nil, fmt.Errorf("I2C%d already claimed", n)
	}
	d.claimed.i2cs[n-1] = true
	return d.i2cs[n-1], nil
}

// ClaimSPI hands out an SPI controller (n is the hardware number, 1 or 2).
func (d *Device) ClaimSPI(n int) (*SPIRegs, error) {
	if n < 1 || n > len(d.spis) {
		return nil, fmt.Errorf("no SPI%d on this part", n)
	}
	if d.claimed.spis[n-1] {
		return nil, fmt.Errorf("SPI%d already claimed", n)
	}
	d.claimed.spis[n-1] = true
	return d.spis[n-1], nil
}

// ClaimUSART hands out a USART (n is the hardware number, 1..3).
func (d *Device) ClaimUSART(n int) (*USARTRegs, error) {
	if n < 1 || n > len(d.usarts) {
		return nil, fmt.Errorf("no USART%d on this part", n)
	}
	if d.claimed.usarts[n-1] {
		return nil, fmt.Errorf("USART%d already claimed", n)
	}
	d.claimed.usarts[n-1] = true
	return d.usarts[n-1], nil
}

// ClaimADC hands out the ADC block.
func (d *Device) ClaimADC() (*ADCRegs, error) {
	if d.claimed.adc {
		return nil, fmt.Errorf("ADC1 already claimed")
	}
	d.claimed.adc = true
	return d.adc, nil
}

// ClaimTimer hands out a timer block (n is the hardware number, 1..4).
func (d *Device) ClaimTimer(n int) (*TimerRegs, error) {
	if n < 1 || n > len(d.tims) {
		return nil, fmt.Errorf("no TIM%d on this part", n)
	}
	if d.claimed.tims[n-1] {
		return nil, fmt.Errorf("TIM%d already claimed", n)
	}
	d.claimed.tims[n-1] = true
	return d.tims[n-1], nil
}

// NewSimDevice builds a device over plain memory cells. Config registers
// start at their hardware reset values. Used by host-side tests and by
// anything that wants to run the drivers without an MCU.
func NewSimDevice() *Device {
	d := &Device{
		rcc:  newMemRCC(),
		afio: newMemAFIO(),
		adc:  newMemADC(),
	}
	for i := range d.ports {
		d.ports[i] = newMemPort()
	}
	for i := range d.i2cs {
		d.i2cs[i] = newMemI2C()
	}
	for i := range d.spis {
		d.spis[i] = newMemSPI()
	}
	for i := range d.usarts {
		d.usarts[i] = newMemUSART()
	}
	for i := range d.tims {
		d.tims[i] = newMemTimer()
	}
	return d
}

func newMemPort() *PortRegs {
	p := &PortRegs{
		CFGLR: &MemReg{}, CFGHR: &MemReg{}, INDR: &MemReg{}, OUTDR: &MemReg{},
		BSHR: &MemReg{}, BCR: &MemReg{}, LCKR: &MemReg{},
	}
	p.CFGLR.Set(gpioCfgReset)
	p.CFGHR.Set(gpioCfgReset)
	return p
}

func newMemAFIO() *AFIORegs {
	return &AFIORegs{
		EVCR: &MemReg{}, PCFR1: &MemReg{},
		EXTICR: [4]Reg{&MemReg{}, &MemReg{}, &MemReg{}, &MemReg{}},
		PCFR2:  &MemReg{},
	}
}

func newMemRCC() *RCCRegs {
	r := &RCCRegs{
		CTLR: &MemReg{}, CFGR0: &MemReg{}, INTR: &MemReg{},
		APB2PRSTR: &MemReg{}, APB1PRSTR: &MemReg{}, AHBPCENR: &MemReg{},
		APB2PCENR: &MemReg{}, APB1PCENR: &MemReg{}, BDCTLR: &MemReg{}, RSTSCKR: &MemReg{},
	}
	r.CTLR.Set(RCC_CTLR_HSION | RCC_CTLR_HSIRDY)
	return r
}

func newMemI2C() *I2CRegs {
	return &I2CRegs{
		CTLR1: &MemReg{}, CTLR2: &MemReg{}, OADDR1: &MemReg{}, OADDR2: &MemReg{},
		DATAR: &MemReg{}, STAR1: &MemReg{}, STAR2: &MemReg{}, CKCFGR: &MemReg{}, RTR: &MemReg{},
	}
}

func newMemSPI() *SPIRegs {
	s := &SPIRegs{
		CTLR1: &MemReg{}, CTLR2: &MemReg{}, STATR: &MemReg{}, DATAR: &MemReg{},
		CRCR: &MemReg{}, RCRCR: &MemReg{}, TCRCR: &MemReg{}, HSCR: &MemReg{},
	}
	s.STATR.Set(SPI_STATR_TXE)
	return s
}

func newMemUSART() *USARTRegs {
	u := &USARTRegs{
		STATR: &MemReg{}, DATAR: &MemReg{}, BRR: &MemReg{},
		CTLR1: &MemReg{}, CTLR2: &MemReg{}, CTLR3: &MemReg{}, GPR: &MemReg{},
	}
	u.STATR.Set(USART_STATR_TXE | USART_STATR_TC)
	return u
}

func newMemADC() *ADCRegs {
	return &ADCRegs{
		STATR: &MemReg{}, CTLR1: &MemReg{}, CTLR2: &MemReg{},
		SAMPTR1: &MemReg{}, SAMPTR2: &MemReg{},
		IOFR:  [4]Reg{&MemReg{}, &MemReg{}, &MemReg{}, &MemReg{}},
		WDHTR: &MemReg{}, WDLTR: &MemReg{},
		RSQR1: &MemReg{}, RSQR2: &MemReg{}, RSQR3: &MemReg{}, ISQR: &MemReg{},
		IDATAR: [4]Reg{&MemReg{}, &MemReg{}, &MemReg{}, &MemReg{}},
		RDATAR: &MemReg{},
	}
}

func newMemTimer() *TimerRegs {
	return &TimerRegs{
		CTLR1: &MemReg{}, CTLR2: &MemReg{}, SMCFGR: &MemReg{}, DMAINTENR: &MemReg{},
		INTFR: &MemReg{}, SWEVGR: &MemReg{}, CHCTLR1: &MemReg{}, CHCTLR2: &MemReg{},
		CCER: &MemReg{}, CNT: &MemReg{}, PSC: &MemReg{}, ATRLR: &MemReg{}, RPTCR: &MemReg{},
		CH1CVR: &MemReg{}, CH2CVR: &MemReg{}, CH3CVR: &MemReg{}, CH4CVR: &MemReg{},
		BDTR: &MemReg{}, DMACFGR: &MemReg{}, DMAADR: &MemReg{},
	}
}
