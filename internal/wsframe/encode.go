package wsframe

import "encoding/binary"

// EncodeText frames payload as a single server-to-client text message in
// the given dialect. RFC 6455 server frames are never masked (§4.1.4).
func EncodeText(d Dialect, payload []byte) []byte {
	if d == DialectHixie76 {
		return encodeHixieText(payload)
	}
	return encodeRFCText(payload)
}

func encodeRFCText(payload []byte) []byte {
	length := len(payload)
	var header []byte
	switch {
	case length <= 125:
		header = []byte{0x81, byte(length)}
	case length <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = 0x81
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(length))
	default:
		header = make([]byte, 10)
		header[0] = 0x81
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(length))
	}
	out := make([]byte, 0, len(header)+length)
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

func encodeHixieText(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, 0xff)
	out = append(out, payload...)
	out = append(out, 0x00)
	return out
}
