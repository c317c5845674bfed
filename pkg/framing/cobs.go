package framing

// Sentinel is the reserved byte delimiting frames.
const Sentinel byte = 0x00

// MaxPayload is the largest payload the in-place escape can carry.
const MaxPayload = 254

// Overhead is the number of bytes a frame adds to its payload.
const Overhead = 2

// EncodeInPlace escapes buf[1:len(buf)-1].
// buf[0] and buf[len(buf)-1] are placeholders and their values are ignored.
// After encoding buf contains no Sentinel except the last byte.
func EncodeInPlace(buf []byte) error {
	n := len(buf)
	if n < Overhead {
		return ErrFrameTooShort
	}
	if n-Overhead > MaxPayload {
		return ErrPayloadTooLong
	}
	patch := 0
	for i := 1; i < n-1; i++ {
		if buf[i] == Sentinel {
			buf[patch] = byte(i - patch)
			patch = i
		}
	}
	buf[patch] = byte(n - 1 - patch)
	buf[n-1] = Sentinel
	return nil
}

// DecodeInPlace reverses EncodeInPlace.
// On success the payload is at buf[1:len(buf)-1] and both delimiter
// positions hold Sentinel. On failure buf is left untouched.
func DecodeInPlace(buf []byte) error {
	n := len(buf)
	if n < Overhead {
		return ErrFrameTooShort
	}
	if buf[n-1] != Sentinel {
		return &EscapeError{Offset: n - 1, Reason: "missing delimiter"}
	}
	for i := 0; i < n-1; {
		code := int(buf[i])
		if code == 0 {
			return &EscapeError{Offset: i, Reason: "unexpected delimiter"}
		}
		next := i + code
		if next > n-1 {
			return &EscapeError{Offset: i, Reason: "code overruns frame"}
		}
		for j := i + 1; j < next; j++ {
			if buf[j] == Sentinel {
				return &EscapeError{Offset: j, Reason: "unexpected delimiter"}
			}
		}
		i = next
	}
	for i := 0; i < n-1; {
		next := i + int(buf[i])
		buf[i] = Sentinel
		i = next
	}
	return nil
}

// Frame copies payload into a new frame and escapes it.
func Frame(payload []byte) ([]byte, error) {
	buf := make([]byte, len(payload)+Overhead)
	copy(buf[1:], payload)
	if err := EncodeInPlace(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unframe de-escapes frame in place and returns the payload.
// A frame longer than maxLen is rejected before it is touched,
// maxLen <= 0 means no limit beyond MaxPayload.
func Unframe(frame []byte, maxLen int) ([]byte, error) {
	if maxLen <= 0 || maxLen > MaxPayload+Overhead {
		maxLen = MaxPayload + Overhead
	}
	if len(frame) > maxLen {
		return nil, ErrFrameTooLong
	}
	if err := DecodeInPlace(frame); err != nil {
		return nil, err
	}
	return frame[1 : len(frame)-1], nil
}
