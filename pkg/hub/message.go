// Package hub fans a stream of frames out to websocket viewers.
//
// One Hub carries one stream, for example pose updates or JPEG previews. The
// newest frame is kept so a viewer joining mid-stream sees the current state
// straight away.
package hub

import "github.com/gofiber/websocket/v2"

// Frame is one payload on a stream.
type Frame struct {
	Data   []byte
	Binary bool
}

// Text wraps an already encoded JSON document.
func Text(data []byte) Frame {
	return Frame{Data: data}
}

// Binary wraps raw bytes such as a JPEG preview.
func Binary(data []byte) Frame {
	return Frame{Data: data, Binary: true}
}

func (f Frame) opcode() int {
	if f.Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
