//go:build tinygo

// Firmware entry point for the BMCU-C board (CH32V208).
//
// Brings the chip up to 144MHz, constructs the register-level drivers and
// registers them with the portable command layer, then serves one of two
// protocols over the RS-485 link: the Klipper protocol for a host running
// this firmware as an MCU, or the printer-facing bus framing when the
// board runs standalone next to an AMS-style printer.
package main

import (
	"gomcu/bambubus"
	"gomcu/ch32"
	"gomcu/core"
	"gomcu/protocol"
	"gomcu/standalone"
)

// klipperBaud is the host link rate in Klipper mode. The standalone rate
// comes from the bus definition.
const klipperBaud = 250000

var (
	// Communication buffers. The receive FIFO is filled from the USART
	// interrupt; the transmit FIFO is drained by it.
	inputBuffer  *protocol.FifoBuffer
	txQueue      *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	// Referenced from the interrupt vectors in irq.go.
	sysTimer *ch32.SysTimer
	uart     *ch32.UART

	msgErrors uint32
)

func main() {
	dev := ch32.NewMMIODevice()

	rcc, err := dev.ClaimRCC()
	if err != nil {
		return
	}
	clk, err := ch32.SetupClocks(rcc)
	if err != nil {
		return
	}

	pins := ch32.NewPinDriver(dev, clk)
	core.SetGPIODriver(pins)

	// Event timebase on TIM2. Scheduled timers run from its interrupt.
	sysTimer, err = ch32.NewSysTimer(dev, clk, core.TimerDispatchNext)
	if err != nil {
		return
	}
	core.SetTimeSource(sysTimer)
	core.SetTimerKick(sysTimer.Kick)
	core.TimerInit()

	motors := ch32.NewMotors(pins)
	core.SetMotorDriver(motors)

	adc, err := ch32.NewADC(dev, clk, pins, sysTimer)
	if err != nil {
		return
	}
	core.SetADCDriver(adc)

	i2c := ch32.NewI2CMaster(dev, clk, pins, sysTimer)
	core.SetI2CDriver(ch32.I2CHAL{Master: i2c})

	spi := ch32.NewSPIMaster(dev, clk, pins, sysTimer)
	core.SetSPIDriver(ch32.SPIHAL{Master: spi})

	pwm := ch32.NewPWM(dev, clk, pins)
	core.SetPWMDriver(ch32.PWMHAL{PWM: pwm})

	core.InitCoreCommands()
	core.InitGPIOCommands()
	core.InitADCCommands()
	core.InitPWMCommands()
	core.InitI2CCommands()
	core.InitSPICommands()
	core.InitMotorCommands()
	core.InitEndstopCommands()
	core.InitTriggerSyncCommands()
	core.InitSensorCommands()
	core.InitAsyncDebug()

	// Pin enumeration and board constants must be registered before the
	// dictionary is built.
	registerBoardPins()
	registerSensors()
	core.RegisterConstant("MCU", "ch32v208")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
	core.RegisterConstant("ADC_MAX", uint32(4095))
	core.GetGlobalDictionary().BuildDictionary()

	// Steady status LED once bring-up is done.
	if err := pins.SetupOutput(ch32.BoardStatusLED, true); err != nil {
		return
	}

	inputBuffer = protocol.NewFifoBuffer(256)
	txQueue = protocol.NewFifoBuffer(512)
	outputBuffer = protocol.NewScratchOutput()

	if GetMode().Standalone {
		runStandalone(dev, clk, pins, motors)
	} else {
		runKlipper(dev, clk, pins)
	}
}

// runKlipper serves the Klipper protocol over USART1. Does not return.
func runKlipper(dev *ch32.Device, clk *ch32.Clock, pins *ch32.PinDriver) {
	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		// Clear buffers on host reset.
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	// Push ACKs onto the wire immediately: the host's serial queue expects
	// the ACK before the response.
	transport.SetFlushCallback(flushTX)
	core.SetGlobalTransport(transport)

	// Klipper's FIRMWARE_RESTART lands here.
	core.SetResetHandler(systemReset)

	var err error
	uart, err = ch32.NewUART(dev, clk, 1, ch32.UARTConfig{
		Baud:     klipperBaud,
		DEPin:    ch32.BoardRS485DE,
		HasDEPin: true,
	}, pins, inputBuffer, txQueue)
	if err != nil {
		return
	}
	enableIRQ(ch32.IRQUsart1)
	enableIRQ(ch32.IRQTim2)

	for {
		// Recover from handler panics so one bad frame cannot wedge the
		// firmware; the transport resynchronizes on the next sync byte.
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgErrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				in := protocol.NewSliceInputBuffer(data)
				transport.Receive(in)
				if consumed := len(data) - in.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			flushTX()

			// Only after the reset ACK has been queued for transmission.
			core.CheckPendingReset()

			core.AnalogInTask()
		}()

		waitForInterrupt()
	}
}

// runStandalone answers the printer's polls directly. Does not return.
func runStandalone(dev *ch32.Device, clk *ch32.Clock, pins *ch32.PinDriver, motors *ch32.Motors) {
	mgr := standalone.NewManager(bambubus.DeviceAddress, standalone.Pins{
		SpoolOnline: ch32.BoardSpoolOnline,
		SpoolPull:   ch32.BoardSpoolPull,
	}, pins, motors, func(frame []byte) {
		queueTX(frame)
		uart.KickTX()
	})

	var err error
	uart, err = ch32.NewUART(dev, clk, 1, ch32.UARTConfig{
		Baud:       bambubus.BaudRate,
		ParityEven: true,
		DEPin:      ch32.BoardRS485DE,
		HasDEPin:   true,
	}, pins, inputBuffer, txQueue)
	if err != nil {
		return
	}
	enableIRQ(ch32.IRQUsart1)
	enableIRQ(ch32.IRQTim2)

	if err := mgr.Start(); err != nil {
		return
	}

	var scratch [64]byte
	for {
		if n := inputBuffer.Read(scratch[:]); n > 0 {
			mgr.Ingest(scratch[:n])
		} else {
			waitForInterrupt()
		}
	}
}

// handleCommand dispatches received commands to the command registry.
func handleCommand(cmdID uint16, data *[]byte) error {
	return core.DispatchCommand(cmdID, data)
}

// flushTX moves pending response bytes into the transmit queue and starts
// the transmitter.
func flushTX() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	queueTX(result)
	outputBuffer.Reset()
	uart.KickTX()
}

// queueTX writes data into the transmit FIFO, waiting on the transmit
// interrupt whenever the queue is full.
func queueTX(data []byte) {
	for len(data) > 0 {
		n := txQueue.Write(data)
		if n == 0 {
			uart.KickTX()
			continue
		}
		data = data[n:]
	}
}

// registerBoardPins publishes the pin namespace: ports A through D as
// "PA0".."PD15", plus the constants locating the motor sub-pin window.
func registerBoardPins() {
	const boardPorts = 4
	names := make([]string, boardPorts*16)
	for port := 0; port < boardPorts; port++ {
		for i := 0; i < 16; i++ {
			h := core.PhysicalPin(core.PortID(port), uint8(i))
			names[port*16+i] = h.String()
		}
	}
	core.RegisterEnumeration("pin", names)

	core.RegisterConstant("MOTOR_PIN_BASE", uint32(core.VirtualPinBase))
	core.RegisterConstant("MOTOR_CHANNELS", uint32(core.MotorChannels))
}

// registerSensors attaches the board's fixed sensor complement: the angle
// sensor on I2C1 and the humidity sensor on I2C2. A sensor that fails
// setup is simply absent from the dictionary.
func registerSensors() {
	if s, err := core.NewAS5600(0, 400000); err == nil {
		core.RegisterSensor(0, s)
	}
	if s, err := core.NewHumiditySensor(1, 100000); err == nil {
		core.RegisterSensor(1, s)
	}
}
