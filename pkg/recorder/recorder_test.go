package recorder

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/eda.go/pkg/host"
)

func testSample() host.Sample {
	return host.Sample{
		Device:      "dev1",
		Seq:         3,
		Time:        time.Unix(1700000000, 0),
		Elapsed:     1500 * time.Millisecond,
		Frequencies: []float64{12, 28},
		Data:        []complex64{complex(1000, -200), complex(800.5, -300.25)},
		Circle:      host.Circle{X: 500, Y: 10, R: 450},
	}
}

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

func TestCSVSink(t *testing.T) {
	var buf closeBuffer
	sink := NewCSVSink(&buf)
	s := testSample()
	require.NoError(t, sink.Record(context.Background(), s))
	s.Elapsed = 2 * time.Second
	require.NoError(t, sink.Record(context.Background(), s))
	require.NoError(t, sink.Close())
	assert.True(t, buf.closed)

	lines := strings.Split(buf.String(), "\r\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Time(s), 12Hz(Re), 12Hz(Im), 28Hz(Re), 28Hz(Im), Cx, Cy, Cr", lines[0])
	assert.Equal(t, "1.5000, 1000.0000, -200.0000, 800.5000, -300.2500, 500.0000, 10.0000, 450.0000", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "2.0000, "))
	assert.Empty(t, lines[3])
}

func TestCreateCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName("dev1", testSample()))
	sink, err := Open(context.Background(), "csv:"+path)
	require.NoError(t, err)
	require.NoError(t, sink.Record(context.Background(), testSample()))
	require.NoError(t, sink.Close())
	assert.FileExists(t, path)
}

type execCall struct {
	query string
	args  []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (e *fakeExecer) Exec(ctx context.Context, query string, args ...any) error {
	e.calls = append(e.calls, execCall{query: query, args: args})
	return e.err
}

func TestClickHouseSink(t *testing.T) {
	conn := &fakeExecer{}
	sink, err := NewClickHouseSink(context.Background(), conn, "")
	require.NoError(t, err)
	require.Len(t, conn.calls, 1)
	assert.Contains(t, conn.calls[0].query, "CREATE TABLE IF NOT EXISTS "+DefaultTable)

	require.NoError(t, sink.Record(context.Background(), testSample()))
	require.Len(t, conn.calls, 2)
	call := conn.calls[1]
	assert.Contains(t, call.query, "INSERT INTO "+DefaultTable)
	require.Len(t, call.args, 9)
	assert.Equal(t, "dev1", call.args[1])
	assert.Equal(t, uint64(3), call.args[2])
	assert.Equal(t, []float32{1000, 800.5}, call.args[4])
	assert.Equal(t, []float32{-200, -300.25}, call.args[5])
	assert.Equal(t, float64(450), call.args[8])
	assert.NoError(t, sink.Close())

	conn.err = errors.New("down")
	assert.Error(t, sink.Record(context.Background(), testSample()))
	_, err = NewClickHouseSink(context.Background(), conn, "t")
	assert.Error(t, err)
}

type failSink struct {
	records int
	err     error
}

func (f *failSink) Record(ctx context.Context, s host.Sample) error {
	f.records++
	return f.err
}

func (f *failSink) Close() error {
	return f.err
}

func TestMulti(t *testing.T) {
	ok, bad := &failSink{}, &failSink{err: errors.New("bad")}
	m := Multi{ok, bad, &LogSink{}}
	err := m.Record(context.Background(), testSample())
	require.Error(t, err)
	assert.Equal(t, 1, ok.records)
	assert.Equal(t, 1, bad.records)
	assert.Error(t, m.Close())
	assert.NoError(t, Multi{ok}.Close())
}

func TestOpen(t *testing.T) {
	sink, err := Open(context.Background(), "log:2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, sink.(*LogSink).Level)
	_, err = Open(context.Background(), "log:x")
	assert.Error(t, err)
	_, err = Open(context.Background(), "csv")
	assert.Error(t, err)
	_, err = Open(context.Background(), "parquet:x")
	assert.Error(t, err)
}
