package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"
)

// ImpedanceCount is the number of impedance values carried by a report.
const ImpedanceCount = 16

// Maximum encoded sizes.
const (
	TimestampMaxSize       = 17
	ImpedanceMaxSize       = 10
	TimeSyncMaxSize        = TimestampMaxSize
	ImpedanceReportMaxSize = ImpedanceCount*(ImpedanceMaxSize+2) + TimestampMaxSize + 2
)

// Kind discriminates message variants.
type Kind int

// Message kinds.
const (
	KindTimeSync Kind = iota + 1
	KindImpedanceReport
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindTimeSync:
		return "TimeSync"
	case KindImpedanceReport:
		return "ImpedanceReport"
	}
	return "Unknown"
}

// MaxSize returns the maximum encoded size of the kind.
func (k Kind) MaxSize() int {
	switch k {
	case KindTimeSync:
		return TimeSyncMaxSize
	case KindImpedanceReport:
		return ImpedanceReportMaxSize
	}
	return 0
}

// MaxFrameSize returns the maximum frame size of the kind.
func (k Kind) MaxFrameSize() int {
	return k.MaxSize() + frameOverhead
}

// Message is a message that can be framed.
type Message interface {
	proto.Message
	Kind() Kind
	Validate() error
}

// Timestamp is an absolute wall-clock time.
type Timestamp struct {
	Time uint64 `protobuf:"varint,1,opt,name=time,proto3" json:"time,omitempty"`
	Us   uint32 `protobuf:"varint,2,opt,name=us,proto3" json:"us,omitempty"`
}

// TimestampFrom converts time.Time.
func TimestampFrom(t time.Time) *Timestamp {
	return &Timestamp{Time: uint64(t.Unix()), Us: uint32(t.Nanosecond() / 1000)}
}

// AsTime converts to time.Time.
func (m *Timestamp) AsTime() time.Time {
	return time.Unix(int64(m.Time), int64(m.Us)*1000)
}

// Validate checks the microseconds range.
func (m *Timestamp) Validate() error {
	if m.Us >= 1000000 {
		return ErrInvalidTimestamp
	}
	return nil
}

// ProtoMessage implements proto.Message.
func (m *Timestamp) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Timestamp) Reset() { *m = Timestamp{} }

// String implements proto.Message.
func (m *Timestamp) String() string { return proto.CompactTextString(m) }

// Impedance is a complex impedance value.
type Impedance struct {
	Real float32 `protobuf:"fixed32,1,opt,name=real,proto3" json:"real,omitempty"`
	Imag float32 `protobuf:"fixed32,2,opt,name=imag,proto3" json:"imag,omitempty"`
}

// Complex converts to complex64.
func (m *Impedance) Complex() complex64 {
	return complex(m.Real, m.Imag)
}

// ProtoMessage implements proto.Message.
func (m *Impedance) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Impedance) Reset() { *m = Impedance{} }

// String implements proto.Message.
func (m *Impedance) String() string { return proto.CompactTextString(m) }

// TimeSync sets the device time base.
type TimeSync struct {
	Time uint64 `protobuf:"varint,1,opt,name=time,proto3" json:"time,omitempty"`
	Us   uint32 `protobuf:"varint,2,opt,name=us,proto3" json:"us,omitempty"`
}

// TimeSyncFrom creates a TimeSync from time.Time.
func TimeSyncFrom(t time.Time) *TimeSync {
	ts := TimestampFrom(t)
	return &TimeSync{Time: ts.Time, Us: ts.Us}
}

// Kind implements Message.
func (m *TimeSync) Kind() Kind { return KindTimeSync }

// Validate implements Message.
func (m *TimeSync) Validate() error {
	return (&Timestamp{Time: m.Time, Us: m.Us}).Validate()
}

// ProtoMessage implements proto.Message.
func (m *TimeSync) ProtoMessage() {}

// Reset implements proto.Message.
func (m *TimeSync) Reset() { *m = TimeSync{} }

// String implements proto.Message.
func (m *TimeSync) String() string { return proto.CompactTextString(m) }

// ImpedanceReport carries impedance values at every analysis frequency.
type ImpedanceReport struct {
	Data      []*Impedance `protobuf:"bytes,1,rep,name=data,proto3" json:"data,omitempty"`
	Timestamp *Timestamp   `protobuf:"bytes,2,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// NewImpedanceReport creates a report from complex values.
func NewImpedanceReport(values []complex64, ts *Timestamp) *ImpedanceReport {
	m := &ImpedanceReport{Data: make([]*Impedance, len(values)), Timestamp: ts}
	for n, v := range values {
		m.Data[n] = &Impedance{Real: real(v), Imag: imag(v)}
	}
	return m
}

// Values returns the impedances as complex values.
func (m *ImpedanceReport) Values() []complex64 {
	values := make([]complex64, len(m.Data))
	for n, z := range m.Data {
		if z != nil {
			values[n] = z.Complex()
		}
	}
	return values
}

// Kind implements Message.
func (m *ImpedanceReport) Kind() Kind { return KindImpedanceReport }

// Validate implements Message.
func (m *ImpedanceReport) Validate() error {
	if len(m.Data) != ImpedanceCount {
		return &FieldCountError{Field: "data", Count: len(m.Data), Expect: ImpedanceCount}
	}
	for _, z := range m.Data {
		if z == nil {
			return ErrNilField
		}
	}
	if m.Timestamp != nil {
		return m.Timestamp.Validate()
	}
	return nil
}

// ProtoMessage implements proto.Message.
func (m *ImpedanceReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ImpedanceReport) Reset() { *m = ImpedanceReport{} }

// String implements proto.Message.
func (m *ImpedanceReport) String() string { return proto.CompactTextString(m) }
