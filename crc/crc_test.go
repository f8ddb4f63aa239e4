package crc

import (
	"strings"
	"testing"
)

func makeCheck2(fun func(byte, byte) byte, tag string) func(t *testing.T, v1, v2, expect byte) {
	return func(t *testing.T, v1, v2, expect byte) {
		if fun(v1, v2) != expect {
			t.Errorf("%s(%02x, %02x) != %02x", tag, v1, v2, expect)
		}
	}
}

func makeCheckN(fun func(byte, []byte) byte, tag string) func(t *testing.T, v1 byte, vs []byte, expect byte) {
	return func(t *testing.T, v1 byte, vs []byte, expect byte) {
		if fun(v1, vs) != expect {
			t.Errorf("%s(%02x, "+strings.Repeat("%02x", len(vs))+") != %02x", tag, v1, vs, expect)
		}
	}
}

func TestSensirion(t *testing.T) {
	check2 := makeCheck2(CRC8_sensirion, "CRC8_sensirion")
	// datasheet example
	check2(t, 0xbe, 0xef, 0x92)
	check2(t, 0x00, 0x00, 0x81)
	checkN := makeCheckN(CRC8_p31_n, "CRC8_p31_n")
	checkN(t, CRC_INIT_FF, []byte{0xbe, 0xef}, 0x92)
	checkN(t, CRC_INIT_FF, []byte{}, 0xff)
}
