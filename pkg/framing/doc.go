// Package framing provides the frame layer between the device and the host.
package framing

// Every message travels as a self-delimiting frame. The payload is escaped
// with COBS so the sentinel byte 0x00 never appears inside it, and the frame
// ends with a single 0x00 delimiter. A receiver can therefore resynchronize on
// any byte stream by waiting for the next 0x00, and no length prefix is needed.
//
// The escape is done in place: the caller reserves one byte in front of the
// payload and one byte after it. Encoding turns the leading byte into the
// first code and the trailing byte into the delimiter, so a frame is always
// exactly len(payload)+2 bytes. In-place escaping never inserts extra code
// bytes, which limits payloads to MaxPayload bytes.
//
// Producer: device (impedance reports), host (time sync)
// Consumer: host, device
