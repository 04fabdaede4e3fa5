package ch32

import (
	"testing"

	"gomcu/core"
)

// echoReg is a register cell whose stored value is rewritten by a hook on
// every store. It stands in for hardware status bits that follow control
// bits, like HSERDY tracking HSEON.
type echoReg struct {
	v    uint32
	hook func(v uint32) uint32
}

func (r *echoReg) Get() uint32 { return r.v }

func (r *echoReg) Set(v uint32) {
	if r.hook != nil {
		v = r.hook(v)
	}
	r.v = v
}

// liveRCC swaps in cells whose ready bits follow the enable bits, so the
// bring-up sequence completes against simulated registers.
func liveRCC(rcc *RCCRegs) {
	rcc.CTLR = &echoReg{v: RCC_CTLR_HSION | RCC_CTLR_HSIRDY, hook: func(v uint32) uint32 {
		if v&RCC_CTLR_HSEON != 0 {
			v |= RCC_CTLR_HSERDY
		} else {
			v &^= RCC_CTLR_HSERDY
		}
		if v&RCC_CTLR_PLLON != 0 {
			v |= RCC_CTLR_PLLRDY
		} else {
			v &^= RCC_CTLR_PLLRDY
		}
		return v
	}}
	rcc.CFGR0 = &echoReg{hook: func(v uint32) uint32 {
		v &^= RCC_CFGR0_SWS_Msk
		if v&RCC_CFGR0_SW_Msk == RCC_CFGR0_SW_PLL {
			v |= RCC_CFGR0_SWS_PLL
		}
		return v
	}}
}

func newLiveRCC() *RCCRegs {
	rcc := newMemRCC()
	liveRCC(rcc)
	return rcc
}

func TestSetupClocksSequence(t *testing.T) {
	rcc := newLiveRCC()

	clk, err := SetupClocks(rcc)
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}

	ctlr := rcc.CTLR.Get()
	if ctlr&RCC_CTLR_HSEON == 0 {
		t.Error("HSE was not switched on")
	}
	if ctlr&RCC_CTLR_PLLON == 0 {
		t.Error("PLL was not switched on")
	}

	cfgr0 := rcc.CFGR0.Get()
	if cfgr0&RCC_CFGR0_PLLSRC_HSE == 0 {
		t.Error("PLL source is not HSE")
	}
	if cfgr0&RCC_CFGR0_PLLMULL_Msk != RCC_CFGR0_PLLMULL(12) {
		t.Errorf("Expected PLL multiplier x12, got field %#x", cfgr0&RCC_CFGR0_PLLMULL_Msk)
	}
	if cfgr0&RCC_CFGR0_PPRE1_Msk != RCC_CFGR0_PPRE1_DIV2 {
		t.Errorf("Expected APB1 prescaler /2, got field %#x", cfgr0&RCC_CFGR0_PPRE1_Msk)
	}
	if cfgr0&RCC_CFGR0_SWS_Msk != RCC_CFGR0_SWS_PLL {
		t.Error("Sysclk switch to PLL not confirmed")
	}

	if got := clk.SysFreq(); got != 144000000 {
		t.Errorf("Expected 144MHz sysclk, got %d", got)
	}
	if got := clk.PCLK1(); got != 72000000 {
		t.Errorf("Expected 72MHz PCLK1, got %d", got)
	}
	if got := clk.PCLK2(); got != 144000000 {
		t.Errorf("Expected 144MHz PCLK2, got %d", got)
	}
}

// regStore is one recorded register write.
type regStore struct {
	reg string
	v   uint32
}

// recordReg forwards stores to the underlying cell and logs them in
// arrival order across all recorded registers.
type recordReg struct {
	name  string
	inner Reg
	log   *[]regStore
}

func (r *recordReg) Get() uint32 { return r.inner.Get() }

func (r *recordReg) Set(v uint32) {
	*r.log = append(*r.log, regStore{r.name, v})
	r.inner.Set(v)
}

func TestSetupClocksWarmRestartStopsPLL(t *testing.T) {
	rcc := newLiveRCC()
	// A soft reset leaves the PLL running on its previous settings.
	rcc.CTLR.Set(rcc.CTLR.Get() | RCC_CTLR_PLLON)
	if rcc.CTLR.Get()&RCC_CTLR_PLLRDY == 0 {
		t.Fatal("simulated PLL did not come up for the warm start")
	}

	var log []regStore
	rcc.CTLR = &recordReg{name: "CTLR", inner: rcc.CTLR, log: &log}
	rcc.CFGR0 = &recordReg{name: "CFGR0", inner: rcc.CFGR0, log: &log}

	if _, err := SetupClocks(rcc); err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}

	pllOff := -1
	for i, s := range log {
		if s.reg == "CTLR" && s.v&RCC_CTLR_PLLON == 0 {
			pllOff = i
			break
		}
	}
	if pllOff < 0 {
		t.Fatal("no CTLR store switched the PLL off before reconfiguration")
	}
	for _, s := range log[:pllOff] {
		if s.reg == "CFGR0" {
			t.Errorf("CFGR0 store %#x issued while the PLL was still on", s.v)
		}
	}

	if rcc.CTLR.Get()&RCC_CTLR_PLLON == 0 {
		t.Error("PLL not running after bring-up")
	}
	if rcc.CFGR0.Get()&RCC_CFGR0_SWS_Msk != RCC_CFGR0_SWS_PLL {
		t.Error("Sysclk switch to PLL not confirmed")
	}
}

func TestSetupClocksHSEFailure(t *testing.T) {
	// Plain cells never report ready.
	rcc := newMemRCC()

	_, err := SetupClocks(rcc)
	if err == nil {
		t.Fatal("Expected error when HSE never comes ready")
	}
	if !core.IsUnrecoverable(err) {
		t.Errorf("Expected unrecoverable error, got %v", err)
	}
}

func TestEnablePeripheral(t *testing.T) {
	rcc := newLiveRCC()
	clk, err := SetupClocks(rcc)
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}

	if err := clk.EnablePeripheral(PeriphI2C1); err != nil {
		t.Fatalf("EnablePeripheral(I2C1) failed: %v", err)
	}
	if rcc.APB1PCENR.Get()&RCC_APB1_I2C1 == 0 {
		t.Error("I2C1 gate not opened on APB1")
	}

	if err := clk.EnablePeripheral(PeriphUSART1); err != nil {
		t.Fatalf("EnablePeripheral(USART1) failed: %v", err)
	}
	if rcc.APB2PCENR.Get()&RCC_APB2_USART1 == 0 {
		t.Error("USART1 gate not opened on APB2")
	}

	// Re-enabling must leave the gate set.
	if err := clk.EnablePeripheral(PeriphUSART1); err != nil {
		t.Fatalf("Second EnablePeripheral(USART1) failed: %v", err)
	}
	if rcc.APB2PCENR.Get()&RCC_APB2_USART1 == 0 {
		t.Error("USART1 gate lost after second enable")
	}

	if err := clk.EnablePeripheral(PeriphID(200)); err == nil {
		t.Error("Expected error for unknown peripheral id")
	}
}

func TestEnablePort(t *testing.T) {
	rcc := newLiveRCC()
	clk, err := SetupClocks(rcc)
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}

	if err := clk.EnablePort(core.PortD); err != nil {
		t.Fatalf("EnablePort(PortD) failed: %v", err)
	}
	if rcc.APB2PCENR.Get()&RCC_APB2_IOPD == 0 {
		t.Error("Port D gate not opened")
	}

	if err := clk.EnablePort(core.PortID(9)); err == nil {
		t.Error("Expected error for port beyond this part")
	}
}

func TestPeripheralFreq(t *testing.T) {
	rcc := newLiveRCC()
	clk, err := SetupClocks(rcc)
	if err != nil {
		t.Fatalf("SetupClocks failed: %v", err)
	}

	cases := []struct {
		id   PeriphID
		want uint32
	}{
		{PeriphI2C1, 72000000},
		{PeriphUSART2, 72000000},
		{PeriphUSART1, 144000000},
		{PeriphSPI1, 144000000},
		{PeriphADC1, 144000000},
	}
	for _, c := range cases {
		got, err := clk.PeripheralFreq(c.id)
		if err != nil {
			t.Fatalf("PeripheralFreq(%d) failed: %v", c.id, err)
		}
		if got != c.want {
			t.Errorf("PeripheralFreq(%d): expected %d, got %d", c.id, c.want, got)
		}
	}

	if _, err := clk.PeripheralFreq(PeriphID(200)); err == nil {
		t.Error("Expected error for unknown peripheral id")
	}
}
