package packet

import "encoding/binary"

// HeaderSize is the on-wire size of a Header: two little-endian uint16s.
const HeaderSize = 4

// MaxPacketSize bounds the total framed length (header + body) of any packet.
const MaxPacketSize = 10240

// Header is the packed little-endian {size, id} prefix of every frame.
// Size includes the header itself; Id selects the protocol message type.
type Header struct {
	Size uint16
	ID   uint16
}

// DecodeHeader reads a Header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) Header {
	return Header{
		Size: binary.LittleEndian.Uint16(buf[0:2]),
		ID:   binary.LittleEndian.Uint16(buf[2:4]),
	}
}

// EncodeHeader writes h into the first HeaderSize bytes of buf.
func EncodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Size)
	binary.LittleEndian.PutUint16(buf[2:4], h.ID)
}

// Valid reports whether h.Size is within the legal frame-size range.
func (h Header) Valid() bool {
	return h.Size >= HeaderSize && h.Size <= MaxPacketSize
}
