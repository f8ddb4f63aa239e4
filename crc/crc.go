package crc

// Sensirion sensors (SHTC3, SHT3x) protect every 16 bit word with CRC-8
// polynomial x^8+x^5+x^4+1, init 0xff, no reflection, no final xor.
const (
	CRC_POLY_31 byte = 0x31
	CRC_INIT_FF byte = 0xff
)

func CRC8_p31(crc, data byte) byte {
	crc ^= data
	var i byte = 0
	for ; i < 8; i++ {
		if (crc & 0x80) != 0 {
			crc <<= 1
			crc ^= CRC_POLY_31
		} else {
			crc <<= 1
		}
	}
	return crc
}

func CRC8_p31_n(crc byte, bs []byte) byte {
	for _, b := range bs {
		crc = CRC8_p31(crc, b)
	}
	return crc
}

// CRC8_sensirion checksum of one measurement word as sent by sensor.
func CRC8_sensirion(msb, lsb byte) byte {
	out := CRC8_p31(CRC_INIT_FF, msb)
	out = CRC8_p31(out, lsb)
	return out
}
