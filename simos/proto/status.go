package proto

import "encoding/binary"

// StatusPayload encodes a device status word as sent to a device mailbox.
//
// Layout (little-endian):
//   - i32: status
func StatusPayload(status int) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(status)))
	return buf
}

// DecodeStatusPayload decodes a StatusPayload.
func DecodeStatusPayload(payload []byte) (status int, ok bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return int(int32(binary.LittleEndian.Uint32(payload[0:4]))), true
}

// CounterPayload encodes a shared counter value exchanged by the demo
// workloads.
//
// Layout (little-endian):
//   - u32: sender pid
//   - u32: value
func CounterPayload(pid int, value uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(pid))
	binary.LittleEndian.PutUint32(buf[4:8], value)
	return buf
}

// DecodeCounterPayload decodes a CounterPayload.
func DecodeCounterPayload(payload []byte) (pid int, value uint32, ok bool) {
	if len(payload) < 8 {
		return 0, 0, false
	}
	return int(binary.LittleEndian.Uint32(payload[0:4])), binary.LittleEndian.Uint32(payload[4:8]), true
}
