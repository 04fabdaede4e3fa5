package core

// AS5600 Register Definitions
// Based on AS5600 datasheet v1.06 / 2018-Jun-20
// ams AG

// Fixed 7-bit I2C address.
const AS5600_ADDR = 0x36

// AS5600 Register Addresses
const (
	// Configuration Registers (0x00-0x08)
	AS5600_ZMCO   = 0x00 // Burn count (read only)
	AS5600_ZPOS_H = 0x01 // Zero position, high nibble
	AS5600_ZPOS_L = 0x02 // Zero position, low byte
	AS5600_MPOS_H = 0x03 // Maximum position, high nibble
	AS5600_MPOS_L = 0x04 // Maximum position, low byte
	AS5600_MANG_H = 0x05 // Maximum angle, high nibble
	AS5600_MANG_L = 0x06 // Maximum angle, low byte
	AS5600_CONF_H = 0x07 // Configuration, high byte
	AS5600_CONF_L = 0x08 // Configuration, low byte

	// Output Registers (0x0C-0x0F)
	AS5600_RAWANGLE_H = 0x0C // Unfiltered angle, high nibble (read only)
	AS5600_RAWANGLE_L = 0x0D // Unfiltered angle, low byte (read only)
	AS5600_ANGLE_H    = 0x0E // Filtered/scaled angle, high nibble (read only)
	AS5600_ANGLE_L    = 0x0F // Filtered/scaled angle, low byte (read only)

	// Status Registers (0x0B, 0x1A-0x1C)
	AS5600_STATUS      = 0x0B // Magnet status flags (read only)
	AS5600_AGC         = 0x1A // Automatic gain control value (read only)
	AS5600_MAGNITUDE_H = 0x1B // CORDIC magnitude, high nibble (read only)
	AS5600_MAGNITUDE_L = 0x1C // CORDIC magnitude, low byte (read only)

	// Burn Command Register (0xFF)
	AS5600_BURN = 0xFF // One-time programming trigger
)

// STATUS register bits
const (
	AS5600_STATUS_MH = 1 << 3 // Magnet too strong
	AS5600_STATUS_ML = 1 << 4 // Magnet too weak
	AS5600_STATUS_MD = 1 << 5 // Magnet detected
)

// Angle registers carry 12-bit values.
const AS5600_ANGLE_MASK = 0x0FFF
