//go:build tinygo

package main

import (
	"device/riscv"
	"runtime/volatile"
	"unsafe"
)

// PFIC register addresses. IENR1 covers sources 0-31, IENR2 sources
// 32-63; writing a 1 bit enables, 0 bits are ignored.
const (
	pficIENRBase = 0xE000E100
	pficCFGR     = 0xE000E048
)

// cfgrKey must accompany every write to the PFIC configuration register.
const cfgrKey = 0xBEEF0000

func enableIRQ(n int) {
	r := (*volatile.Register32)(unsafe.Pointer(uintptr(pficIENRBase + 4*(n/32))))
	r.Set(1 << (n % 32))
}

// systemReset requests a core reset through the PFIC. Does not return.
func systemReset() {
	r := (*volatile.Register32)(unsafe.Pointer(uintptr(pficCFGR)))
	r.Set(cfgrKey | 1<<7)
	for {
	}
}

// waitForInterrupt idles the core until the next interrupt.
func waitForInterrupt() {
	riscv.Asm("wfi")
}

//go:export TIM2_IRQHandler
func handleTIM2() {
	sysTimer.HandleIRQ()
}

//go:export USART1_IRQHandler
func handleUSART1() {
	uart.HandleIRQ()
}
