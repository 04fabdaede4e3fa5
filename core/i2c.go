// I2C device objects implementing Klipper's i2c protocol, extended with
// an explicit status field so the host can tell a missing device (NACK)
// from a wedged bus (timeout) without a full firmware shutdown.
package core

import (
	"gomcu/protocol"
)

// I2CDevice is one configured device on an I2C bus.
type I2CDevice struct {
	OID  uint8
	Port I2CPort
}

var i2cDevices = make(map[uint8]*I2CDevice)

// InitI2CCommands registers the i2c command family.
func InitI2CCommands() {
	RegisterCommand("config_i2c", "oid=%c", handleConfigI2C)
	RegisterCommand("i2c_set_bus", "oid=%c i2c_bus=%u rate=%u address=%u", handleI2CSetBus)
	RegisterCommand("i2c_write", "oid=%c data=%*s", handleI2CWrite)
	RegisterCommand("i2c_read", "oid=%c reg=%*s read_len=%u", handleI2CRead)
	RegisterResponse("i2c_write_response", "oid=%c status=%c")
	RegisterResponse("i2c_read_response", "oid=%c status=%c response=%*s")
}

func handleConfigI2C(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	i2cDevices[uint8(oid)] = &I2CDevice{OID: uint8(oid)}
	return nil
}

func handleI2CSetBus(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	bus, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rate, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	address, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	device, exists := i2cDevices[uint8(oid)]
	if !exists {
		return nil
	}

	port, err := MustI2C().Setup(bus, rate, uint8(address&0x7F))
	if err != nil {
		return err
	}
	device.Port = port
	return nil
}

// reportI2CError classifies a transfer error: unrecoverable faults shut
// the firmware down, everything else becomes a wire status code.
func reportI2CError(err error) error {
	if IsUnrecoverable(err) {
		TryShutdown("I2C bus fault: " + err.Error())
		return err
	}
	return nil
}

func handleI2CWrite(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	writeData, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	device, exists := i2cDevices[uint8(oid)]
	if !exists || device.Port == nil {
		return nil
	}

	werr := device.Port.Write(writeData)
	if werr != nil {
		if err := reportI2CError(werr); err != nil {
			return err
		}
	}

	SendResponse("i2c_write_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQInt(output, BusStatus(werr))
	})
	return nil
}

func handleI2CRead(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	regData, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	readLen, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	device, exists := i2cDevices[uint8(oid)]
	if !exists || device.Port == nil {
		return nil
	}

	readData := make([]byte, uint8(readLen))
	rerr := device.Port.Read(regData, readData)
	if rerr != nil {
		if err := reportI2CError(rerr); err != nil {
			return err
		}
		// A failed read reports its status with an empty payload.
		readData = nil
	}

	SendResponse("i2c_read_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQInt(output, BusStatus(rerr))
		protocol.EncodeVLQBytes(output, readData)
	})
	return nil
}

// ShutdownAllI2C drops every device port so no transfer starts after
// shutdown. Reconfiguration rebuilds them.
func ShutdownAllI2C() {
	for _, device := range i2cDevices {
		if device != nil {
			device.Port = nil
		}
	}
}
