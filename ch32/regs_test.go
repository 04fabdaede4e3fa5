package ch32

import "testing"

func TestInterruptVectorNumbers(t *testing.T) {
	// Peripheral interrupt sources sit 16 vectors above their
	// STM32F1-compatible interrupt positions (TIM2 at 28, USART1 at 37).
	const coreVectors = 16

	if IRQTim2 != coreVectors+28 {
		t.Errorf("TIM2 vector: expected %d, got %d", coreVectors+28, IRQTim2)
	}
	if IRQUsart1 != coreVectors+37 {
		t.Errorf("USART1 vector: expected %d, got %d", coreVectors+37, IRQUsart1)
	}
}
