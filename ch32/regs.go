// Register definitions for the CH32V20x (STM32F1-compatible peripherals).
// Layout and field names follow the WCH reference manual. This file carries
// no behavior beyond single-register access; drivers own all sequencing.
package ch32

// Reg is one 32-bit peripheral register. Hardware builds bind each cell to a
// volatile MMIO word; host builds back cells with plain memory so drivers can
// run under the regular toolchain.
type Reg interface {
	Get() uint32
	Set(v uint32)
}

// SetBits sets the bits in mask, leaving the rest of the register unchanged.
func SetBits(r Reg, mask uint32) {
	r.Set(r.Get() | mask)
}

// ClearBits clears the bits in mask.
func ClearBits(r Reg, mask uint32) {
	r.Set(r.Get() &^ mask)
}

// HasBits reports whether all bits in mask are set.
func HasBits(r Reg, mask uint32) bool {
	return r.Get()&mask == mask
}

// MemReg is a register cell backed by ordinary memory. It is the host-side
// binding used by the simulated device and by tests.
type MemReg struct {
	v uint32
}

func (m *MemReg) Get() uint32  { return m.v }
func (m *MemReg) Set(v uint32) { m.v = v }

// PortRegs is the register file of one GPIO port.
type PortRegs struct {
	CFGLR Reg // pins 0-7, one 4-bit config per pin
	CFGHR Reg // pins 8-15
	INDR  Reg
	OUTDR Reg
	BSHR  Reg // low half sets, high half clears
	BCR   Reg
	LCKR  Reg
}

// AFIORegs is the alternate-function remap block.
type AFIORegs struct {
	EVCR   Reg
	PCFR1  Reg
	EXTICR [4]Reg
	PCFR2  Reg
}

// RCCRegs is the reset and clock control block.
type RCCRegs struct {
	CTLR      Reg
	CFGR0     Reg
	INTR      Reg
	APB2PRSTR Reg
	APB1PRSTR Reg
	AHBPCENR  Reg
	APB2PCENR Reg
	APB1PCENR Reg
	BDCTLR    Reg
	RSTSCKR   Reg
}

// I2CRegs is the register file of one I2C controller.
type I2CRegs struct {
	CTLR1  Reg
	CTLR2  Reg
	OADDR1 Reg
	OADDR2 Reg
	DATAR  Reg
	STAR1  Reg
	STAR2  Reg
	CKCFGR Reg
	RTR    Reg
}

// SPIRegs is the register file of one SPI controller.
type SPIRegs struct {
	CTLR1 Reg
	CTLR2 Reg
	STATR Reg
	DATAR Reg
	CRCR  Reg
	RCRCR Reg
	TCRCR Reg
	HSCR  Reg
}

// USARTRegs is the register file of one USART.
type USARTRegs struct {
	STATR Reg
	DATAR Reg
	BRR   Reg
	CTLR1 Reg
	CTLR2 Reg
	CTLR3 Reg
	GPR   Reg
}

// ADCRegs is the register file of the ADC.
type ADCRegs struct {
	STATR   Reg
	CTLR1   Reg
	CTLR2   Reg
	SAMPTR1 Reg
	SAMPTR2 Reg
	IOFR    [4]Reg
	WDHTR   Reg
	WDLTR   Reg
	RSQR1   Reg
	RSQR2   Reg
	RSQR3   Reg
	ISQR    Reg
	IDATAR  [4]Reg
	RDATAR  Reg
}

// TimerRegs is the register file of one general-purpose/advanced timer.
type TimerRegs struct {
	CTLR1     Reg
	CTLR2     Reg
	SMCFGR    Reg
	DMAINTENR Reg
	INTFR     Reg
	SWEVGR    Reg
	CHCTLR1   Reg
	CHCTLR2   Reg
	CCER      Reg
	CNT       Reg
	PSC       Reg
	ATRLR     Reg
	RPTCR     Reg
	CH1CVR    Reg
	CH2CVR    Reg
	CH3CVR    Reg
	CH4CVR    Reg
	BDTR      Reg
	DMACFGR   Reg
	DMAADR    Reg
}

// Peripheral base addresses.
const (
	periphBase     = 0x40000000
	apb2PeriphBase = periphBase + 0x10000

	afioBase   = apb2PeriphBase + 0x0000
	gpioABase  = apb2PeriphBase + 0x0800
	gpioBBase  = apb2PeriphBase + 0x0C00
	gpioCBase  = apb2PeriphBase + 0x1000
	gpioDBase  = apb2PeriphBase + 0x1400
	gpioEBase  = apb2PeriphBase + 0x1800
	adc1Base   = apb2PeriphBase + 0x2400
	tim1Base   = apb2PeriphBase + 0x2C00
	spi1Base   = apb2PeriphBase + 0x3000
	usart1Base = apb2PeriphBase + 0x3800

	tim2Base   = periphBase + 0x0000
	tim3Base   = periphBase + 0x0400
	tim4Base   = periphBase + 0x0800
	spi2Base   = periphBase + 0x3800
	usart2Base = periphBase + 0x4400
	usart3Base = periphBase + 0x4800
	i2c1Base   = periphBase + 0x5400
	i2c2Base   = periphBase + 0x5800

	rccBase = periphBase + 0x21000
)

// Interrupt numbers (PFIC vector table). Peripheral sources sit 16
// vectors above their STM32F1-compatible interrupt positions.
const (
	IRQTim2   = 44
	IRQUsart1 = 53
)

// RCC CTLR bits.
const (
	RCC_CTLR_HSION  = 1 << 0
	RCC_CTLR_HSIRDY = 1 << 1
	RCC_CTLR_HSEON  = 1 << 16
	RCC_CTLR_HSERDY = 1 << 17
	RCC_CTLR_PLLON  = 1 << 24
	RCC_CTLR_PLLRDY = 1 << 25
)

// RCC CFGR0 fields.
const (
	RCC_CFGR0_SW_Msk      = 0x3
	RCC_CFGR0_SW_HSI      = 0x0
	RCC_CFGR0_SW_HSE      = 0x1
	RCC_CFGR0_SW_PLL      = 0x2
	RCC_CFGR0_SWS_Msk     = 0x3 << 2
	RCC_CFGR0_SWS_PLL     = 0x2 << 2
	RCC_CFGR0_HPRE_Msk    = 0xF << 4
	RCC_CFGR0_PPRE1_Msk   = 0x7 << 8
	RCC_CFGR0_PPRE1_DIV2  = 0x4 << 8
	RCC_CFGR0_PPRE2_Msk   = 0x7 << 11
	RCC_CFGR0_ADCPRE_Msk  = 0x3 << 14
	RCC_CFGR0_PLLSRC_HSE  = 1 << 16
	RCC_CFGR0_PLLXTPRE    = 1 << 17
	RCC_CFGR0_PLLMULL_Msk = 0xF << 18
)

// RCC_CFGR0_PLLMULL encodes a PLL multiplier of val (2..16).
func RCC_CFGR0_PLLMULL(val uint32) uint32 {
	return (val - 2) << 18
}

// APB2 clock enable bits.
const (
	RCC_APB2_AFIO   = 1 << 0
	RCC_APB2_IOPA   = 1 << 2
	RCC_APB2_IOPB   = 1 << 3
	RCC_APB2_IOPC   = 1 << 4
	RCC_APB2_IOPD   = 1 << 5
	RCC_APB2_IOPE   = 1 << 6
	RCC_APB2_ADC1   = 1 << 9
	RCC_APB2_TIM1   = 1 << 11
	RCC_APB2_SPI1   = 1 << 12
	RCC_APB2_USART1 = 1 << 14
)

// APB1 clock enable bits.
const (
	RCC_APB1_TIM2   = 1 << 0
	RCC_APB1_TIM3   = 1 << 1
	RCC_APB1_TIM4   = 1 << 2
	RCC_APB1_SPI2   = 1 << 14
	RCC_APB1_USART2 = 1 << 17
	RCC_APB1_USART3 = 1 << 18
	RCC_APB1_I2C1   = 1 << 21
	RCC_APB1_I2C2   = 1 << 22
)

// GPIO config nibble: mode in bits 1:0, cnf in bits 3:2.
const (
	GPIO_MODE_INPUT        = 0x0
	GPIO_MODE_OUTPUT_10MHZ = 0x1
	GPIO_MODE_OUTPUT_2MHZ  = 0x2
	GPIO_MODE_OUTPUT_50MHZ = 0x3

	GPIO_CNF_ANALOG        = 0x0
	GPIO_CNF_FLOATING      = 0x1
	GPIO_CNF_INPUT_PU_PD   = 0x2
	GPIO_CNF_PUSHPULL      = 0x0
	GPIO_CNF_OPENDRAIN     = 0x1
	GPIO_CNF_AF_PUSHPULL   = 0x2
	GPIO_CNF_AF_OPENDRAIN  = 0x3
)

// GPIOConfig packs a mode and cnf pair into the 4-bit per-pin config value.
func GPIOConfig(mode, cnf uint32) uint32 {
	return (mode & 0x3) | ((cnf & 0x3) << 2)
}

// All pins floating input, the reset state of a port.
const gpioCfgReset = 0x44444444

// I2C register bits.
const (
	I2C_CTLR1_PE    = 1 << 0
	I2C_CTLR1_START = 1 << 8
	I2C_CTLR1_STOP  = 1 << 9
	I2C_CTLR1_ACK   = 1 << 10
	I2C_CTLR1_SWRST = 1 << 15

	I2C_CTLR2_FREQ_Msk = 0x3F

	I2C_STAR1_SB   = 1 << 0
	I2C_STAR1_ADDR = 1 << 1
	I2C_STAR1_BTF  = 1 << 2
	I2C_STAR1_RXNE = 1 << 6
	I2C_STAR1_TXE  = 1 << 7
	I2C_STAR1_AF   = 1 << 10

	I2C_STAR2_MSL  = 1 << 0
	I2C_STAR2_BUSY = 1 << 1

	I2C_CKCFGR_CCR_Msk = 0xFFF
)

// SPI register bits.
const (
	SPI_CTLR1_CPHA     = 1 << 0
	SPI_CTLR1_CPOL     = 1 << 1
	SPI_CTLR1_MSTR     = 1 << 2
	SPI_CTLR1_BR_Shift = 3
	SPI_CTLR1_BR_Msk   = 0x7 << 3
	SPI_CTLR1_SPE      = 1 << 6
	SPI_CTLR1_SSI      = 1 << 8
	SPI_CTLR1_SSM      = 1 << 9

	SPI_STATR_RXNE = 1 << 0
	SPI_STATR_TXE  = 1 << 1
	SPI_STATR_BSY  = 1 << 7
)

// USART register bits.
const (
	USART_STATR_ORE  = 1 << 3
	USART_STATR_RXNE = 1 << 5
	USART_STATR_TC   = 1 << 6
	USART_STATR_TXE  = 1 << 7

	USART_CTLR1_RE     = 1 << 2
	USART_CTLR1_TE     = 1 << 3
	USART_CTLR1_RXNEIE = 1 << 5
	USART_CTLR1_TCIE   = 1 << 6
	USART_CTLR1_TXEIE  = 1 << 7
	USART_CTLR1_PS     = 1 << 9
	USART_CTLR1_PCE    = 1 << 10
	USART_CTLR1_M      = 1 << 12
	USART_CTLR1_UE     = 1 << 13
)

// ADC register bits.
const (
	ADC_STATR_EOC = 1 << 1

	ADC_CTLR2_ADON    = 1 << 0
	ADC_CTLR2_CONT    = 1 << 1
	ADC_CTLR2_CAL     = 1 << 2
	ADC_CTLR2_RSTCAL  = 1 << 3
	ADC_CTLR2_EXTTRIG = 1 << 20
	ADC_CTLR2_SWSTART = 1 << 22

	ADC_RDATAR_DATA_Msk = 0xFFF
)

// Timer register bits.
const (
	TIM_CTLR1_CEN  = 1 << 0
	TIM_CTLR1_ARPE = 1 << 7

	TIM_DMAINTENR_UIE = 1 << 0
	TIM_INTFR_UIF     = 1 << 0

	TIM_SWEVGR_UG = 1 << 0

	// Output-compare fields within one CHCTLR half-register. Channels 1/3
	// use the low byte, channels 2/4 the high byte.
	TIM_CCMR_OCPE     = 1 << 3
	TIM_CCMR_OCM_Msk  = 0x7 << 4
	TIM_CCMR_OCM_PWM1 = 0x6 << 4

	TIM_CCER_CC1E = 1 << 0

	TIM_BDTR_MOE = 1 << 15
)

// AFIO PCFR1 timer remap fields.
const (
	AFIO_PCFR1_TIM1_REMAP_Msk     = 0x3 << 6
	AFIO_PCFR1_TIM1_REMAP_NONE    = 0x0 << 6
	AFIO_PCFR1_TIM2_REMAP_Msk     = 0x3 << 8
	AFIO_PCFR1_TIM2_REMAP_NONE    = 0x0 << 8
	AFIO_PCFR1_TIM2_REMAP_PART1   = 0x1 << 8
	AFIO_PCFR1_TIM2_REMAP_PART2   = 0x2 << 8
	AFIO_PCFR1_TIM2_REMAP_FULL    = 0x3 << 8
	AFIO_PCFR1_TIM3_REMAP_Msk     = 0x3 << 10
	AFIO_PCFR1_TIM3_REMAP_NONE    = 0x0 << 10
	AFIO_PCFR1_TIM3_REMAP_PARTIAL = 0x1 << 10
	AFIO_PCFR1_TIM3_REMAP_FULL    = 0x2 << 10
	AFIO_PCFR1_TIM4_REMAP_Msk     = 0x1 << 12
	AFIO_PCFR1_TIM4_REMAP_NONE    = 0x0 << 12
	AFIO_PCFR1_TIM4_REMAP_FULL    = 0x1 << 12
)
