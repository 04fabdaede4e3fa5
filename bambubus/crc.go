package bambubus

// CRC8 computes the DVB-S2 checksum (poly 0x39, init 0x66) the bus
// carries after the frame header.
func CRC8(data []byte) uint8 {
	crc := uint16(0x66)
	for _, b := range data {
		crc ^= uint16(b)
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x39
			} else {
				crc <<= 1
			}
		}
		crc &= 0xff
	}
	return uint8(crc)
}

// CRC16 computes the trailer checksum (poly 0x1021, init 0x913D) over
// everything before it. It travels little-endian on the wire.
func CRC16(data []byte) uint16 {
	crc := uint32(0x913d)
	for _, b := range data {
		crc ^= uint32(b) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crc &= 0xffff
	}
	return uint16(crc)
}
