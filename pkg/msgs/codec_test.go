package msgs

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eda.go/pkg/framing"
)

func testReport(seed float32, ts *Timestamp) *ImpedanceReport {
	values := make([]complex64, ImpedanceCount)
	for n := range values {
		values[n] = complex(seed*float32(n+1), -seed/float32(n+1))
	}
	return NewImpedanceReport(values, ts)
}

func requireNoInteriorSentinel(t *testing.T, frame []byte) {
	require.Equal(t, -1, bytes.IndexByte(frame[:len(frame)-1], framing.Sentinel))
	require.Equal(t, framing.Sentinel, frame[len(frame)-1])
}

func TestTimeSyncRoundTrip(t *testing.T) {
	testCases := []*TimeSync{
		{},
		{Time: 1700000000, Us: 500000},
		{Time: math.MaxUint64, Us: 999999},
		{Time: 1, Us: 0},
	}
	for _, msg := range testCases {
		t.Run(msg.String(), func(t *testing.T) {
			frame, err := Encode(msg)
			require.NoError(t, err)
			require.True(t, len(frame) <= KindTimeSync.MaxFrameSize())
			requireNoInteriorSentinel(t, frame)

			decoded, err := DecodeTimeSync(frame)
			require.NoError(t, err)
			require.Equal(t, msg, decoded)
		})
	}
}

func TestImpedanceReportRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		msg  *ImpedanceReport
	}{
		{"zero values", NewImpedanceReport(make([]complex64, ImpedanceCount), nil)},
		{"no timestamp", testReport(1.5, nil)},
		{"with timestamp", testReport(-440000, &Timestamp{Time: 1700000000, Us: 123456})},
		{"max timestamp", testReport(math.MaxFloat32, &Timestamp{Time: math.MaxUint64, Us: 999999})},
		{"tiny values", testReport(1e-30, &Timestamp{})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Encode(tc.msg)
			require.NoError(t, err)
			require.True(t, len(frame) <= 213, "frame size %d", len(frame))
			requireNoInteriorSentinel(t, frame)

			decoded, err := DecodeImpedanceReport(frame)
			require.NoError(t, err)
			require.Len(t, decoded.Data, ImpedanceCount)
			for n, z := range tc.msg.Data {
				require.Equal(t, math.Float32bits(z.Real), math.Float32bits(decoded.Data[n].Real))
				require.Equal(t, math.Float32bits(z.Imag), math.Float32bits(decoded.Data[n].Imag))
			}
			require.Equal(t, tc.msg.Timestamp, decoded.Timestamp)
		})
	}
}

func TestImpedanceReportNonFiniteBits(t *testing.T) {
	values := make([]complex64, ImpedanceCount)
	values[3] = complex(float32(math.Inf(1)), float32(math.NaN()))
	frame, err := Encode(NewImpedanceReport(values, nil))
	require.NoError(t, err)
	decoded, err := DecodeImpedanceReport(frame)
	require.NoError(t, err)
	require.True(t, math.IsInf(float64(decoded.Data[3].Real), 1))
	require.True(t, math.IsNaN(float64(decoded.Data[3].Imag)))
}

func TestMaxSizes(t *testing.T) {
	require.Equal(t, 17, TimeSyncMaxSize)
	require.Equal(t, 211, ImpedanceReportMaxSize)
	require.Equal(t, 19, KindTimeSync.MaxFrameSize())
	require.Equal(t, 213, KindImpedanceReport.MaxFrameSize())
}

func TestDecodeRejectsOversize(t *testing.T) {
	testCases := []struct {
		kind Kind
		size int
	}{
		{KindTimeSync, 20},
		{KindTimeSync, 1024},
		{KindImpedanceReport, 214},
	}
	for _, tc := range testCases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			frame := bytes.Repeat([]byte{0x01}, tc.size)
			orig := append([]byte{}, frame...)
			_, err := Decode(tc.kind, frame)
			require.True(t, errors.Is(err, ErrTooLarge), "got %v", err)
			require.Equal(t, orig, frame)
		})
	}
}

func framePayload(t *testing.T, payload []byte) []byte {
	frame, err := framing.Frame(payload)
	require.NoError(t, err)
	return frame
}

func TestDecodeSchemaMismatch(t *testing.T) {
	short := &ImpedanceReport{Data: make([]*Impedance, ImpedanceCount-1)}
	for n := range short.Data {
		short.Data[n] = &Impedance{Real: 1}
	}
	shortPayload, err := proto.Marshal(short)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		kind    Kind
		payload []byte
		err     error
	}{
		{"wire type", KindTimeSync, []byte{0x0d, 1, 2, 3, 4}, ErrWireType},
		{"unknown field", KindTimeSync, []byte{0x18, 0x01}, ErrUnknownField},
		{"truncated varint", KindTimeSync, []byte{0x08}, ErrTruncated},
		{"truncated fixed32", KindImpedanceReport, []byte{0x0a, 0x04, 0x0d, 1, 2, 3}, ErrTruncated},
		{"nested wire type", KindImpedanceReport, []byte{0x0a, 0x02, 0x08, 0x01}, ErrWireType},
		{"field count", KindImpedanceReport, shortPayload, ErrFieldCount},
		{"bad microseconds", KindTimeSync, []byte{0x10, 0xc0, 0x84, 0x3d}, ErrInvalidTimestamp},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.kind, framePayload(t, tc.payload))
			require.True(t, errors.Is(err, tc.err), "got %v", err)
		})
	}
}

func TestDecodeBadEscape(t *testing.T) {
	_, err := DecodeTimeSync([]byte{0x05, 0x08, 0x00})
	require.True(t, errors.Is(err, framing.ErrBadEscape))
}

type oversized struct {
	Data []byte `protobuf:"bytes,1,opt,name=data,proto3"`
}

func (m *oversized) Kind() Kind      { return KindTimeSync }
func (m *oversized) Validate() error { return nil }
func (m *oversized) ProtoMessage()   {}
func (m *oversized) Reset()          { *m = oversized{} }
func (m *oversized) String() string  { return proto.CompactTextString(m) }

func TestEncodeRejectsOversize(t *testing.T) {
	dst := []byte{0xaa}
	out, err := AppendFrame(dst, &oversized{Data: make([]byte, 32)})
	var sizeErr *SizeError
	require.True(t, errors.As(err, &sizeErr))
	require.Equal(t, TimeSyncMaxSize, sizeErr.Max)
	require.Equal(t, []byte{0xaa}, out)
}

func TestEncodeValidates(t *testing.T) {
	_, err := Encode(&TimeSync{Us: 1000000})
	require.Equal(t, ErrInvalidTimestamp, err)
	_, err = Encode(&ImpedanceReport{Data: make([]*Impedance, ImpedanceCount)})
	require.Equal(t, ErrNilField, err)
	_, err = Encode(&ImpedanceReport{})
	require.True(t, errors.Is(err, ErrFieldCount))
}

func TestAppendFrameReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, KindImpedanceReport.MaxFrameSize())
	for i := 0; i < 3; i++ {
		out, err := AppendFrame(buf[:0], testReport(float32(i+1), &Timestamp{Time: uint64(i)}))
		require.NoError(t, err)
		require.Equal(t, &buf[:1][0], &out[0])
		decoded, err := DecodeImpedanceReport(out)
		require.NoError(t, err)
		require.Equal(t, uint64(i), decoded.Timestamp.Time)
	}
}

func TestTimeConversions(t *testing.T) {
	now := time.Unix(1700000000, 123456789)
	ts := TimestampFrom(now)
	require.Equal(t, &Timestamp{Time: 1700000000, Us: 123456}, ts)
	require.Equal(t, time.Unix(1700000000, 123456000), ts.AsTime())
	require.Equal(t, &TimeSync{Time: 1700000000, Us: 123456}, TimeSyncFrom(now))
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(Kind(0), []byte{0x01, 0x00})
	require.Equal(t, ErrUnknownKind, err)
	require.Equal(t, "Unknown", Kind(0).String())
}
