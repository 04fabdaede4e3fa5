// SPI device objects implementing Klipper's spi protocol for the
// hardware buses. Chip select lives here so one bus can carry several
// devices; the port handle carries the per-device mode and rate.
package core

import (
	"gomcu/protocol"
)

// SPI device flags.
const (
	SF_CS_ACTIVE_HIGH = 0x02
	SF_HAVE_PIN       = 0x04
)

// SPIDevice is one configured SPI device.
type SPIDevice struct {
	OID   uint8
	Flags uint8
	CS    PinHandle

	Port SPIPort

	// Sent to the device on firmware shutdown, for chips with an
	// explicit off command.
	ShutdownMsg []byte
}

var spiDevices = make(map[uint8]*SPIDevice)

// InitSPICommands registers the spi command family.
func InitSPICommands() {
	RegisterCommand("config_spi", "oid=%c pin=%u cs_active_high=%c", handleConfigSPI)
	RegisterCommand("config_spi_without_cs", "oid=%c", handleConfigSPIWithoutCS)
	RegisterCommand("spi_set_bus", "oid=%c spi_bus=%u mode=%u rate=%u", handleSPISetBus)
	RegisterCommand("config_spi_shutdown", "oid=%c spi_oid=%c shutdown_msg=%*s", handleConfigSPIShutdown)
	RegisterCommand("spi_transfer", "oid=%c data=%*s", handleSPITransfer)
	RegisterCommand("spi_send", "oid=%c data=%*s", handleSPISend)
	RegisterResponse("spi_transfer_response", "oid=%c response=%*s")
}

func handleConfigSPI(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rawPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	csActiveHigh, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pin, err := ParseWirePin(rawPin)
	if err != nil {
		return err
	}

	dev := &SPIDevice{
		OID:   uint8(oid),
		Flags: SF_HAVE_PIN,
		CS:    pin,
	}
	if csActiveHigh != 0 {
		dev.Flags |= SF_CS_ACTIVE_HIGH
	}

	// Start with chip select deasserted.
	inactive := csActiveHigh == 0
	if err := MustGPIO().SetupOutput(pin, inactive); err != nil {
		return err
	}

	spiDevices[uint8(oid)] = dev
	return nil
}

func handleConfigSPIWithoutCS(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	spiDevices[uint8(oid)] = &SPIDevice{OID: uint8(oid)}
	return nil
}

func handleSPISetBus(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	spiBus, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	mode, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rate, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	dev, exists := spiDevices[uint8(oid)]
	if !exists {
		return nil
	}

	port, err := MustSPI().Setup(spiBus, uint8(mode), rate)
	if err != nil {
		return err
	}
	dev.Port = port
	return nil
}

func handleConfigSPIShutdown(data *[]byte) error {
	_, err := protocol.DecodeVLQUint(data) // shutdown object oid, unused
	if err != nil {
		return err
	}
	spiOID, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	msg, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	if dev, exists := spiDevices[uint8(spiOID)]; exists {
		dev.ShutdownMsg = append([]byte(nil), msg...)
	}
	return nil
}

// spiDeviceTransfer runs one transfer with chip select asserted around
// it.
func spiDeviceTransfer(dev *SPIDevice, tx, rx []byte) error {
	if dev.Port == nil {
		return nil
	}

	hasCS := dev.Flags&SF_HAVE_PIN != 0
	activeHigh := dev.Flags&SF_CS_ACTIVE_HIGH != 0

	if hasCS {
		if err := MustGPIO().Write(dev.CS, activeHigh); err != nil {
			return err
		}
	}

	err := dev.Port.Transfer(tx, rx)

	if hasCS {
		if gpioErr := MustGPIO().Write(dev.CS, !activeHigh); gpioErr != nil && err == nil {
			err = gpioErr
		}
	}
	return err
}

func handleSPITransfer(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	txData, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	dev, exists := spiDevices[uint8(oid)]
	if !exists || dev.Port == nil {
		return nil
	}

	rxData := make([]byte, len(txData))
	if err := spiDeviceTransfer(dev, txData, rxData); err != nil {
		if IsUnrecoverable(err) {
			TryShutdown("SPI bus fault: " + err.Error())
		}
		return err
	}

	SendResponse("spi_transfer_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQBytes(output, rxData)
	})
	return nil
}

func handleSPISend(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	txData, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	dev, exists := spiDevices[uint8(oid)]
	if !exists || dev.Port == nil {
		return nil
	}

	if err := spiDeviceTransfer(dev, txData, nil); err != nil {
		if IsUnrecoverable(err) {
			TryShutdown("SPI bus fault: " + err.Error())
		}
		return err
	}
	return nil
}

// ShutdownSPI sends each device its configured shutdown message.
func ShutdownSPI() {
	for _, dev := range spiDevices {
		if dev != nil && len(dev.ShutdownMsg) > 0 {
			_ = spiDeviceTransfer(dev, dev.ShutdownMsg, nil)
		}
	}
}
