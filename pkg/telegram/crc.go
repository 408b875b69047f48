package telegram

import (
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
)

// DSMR v4+ telegrams use CRC16/ARC over everything from `/` up to and including `!`.
var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

func validCRC(data, given string) bool {
	if len(given) < 4 {
		return false
	}
	calc := fmt.Sprintf("%04X", Checksum(data))
	return strings.ToUpper(given[:4]) == calc
}

// Checksum computes the telegram CRC of data.
func Checksum(data string) uint16 {
	return crc16.Checksum([]byte(data), crcTable)
}
