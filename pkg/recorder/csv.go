package recorder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/robotalks/eda.go/pkg/host"
)

// CSVSink writes samples as rows of
//
//	Time(s), <f>Hz(Re), <f>Hz(Im), ..., Cx, Cy, Cr
//
// The header is written before the first row using its frequencies.
type CSVSink struct {
	lock   sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	header bool
}

// NewCSVSink writes to w, closing it when w is an io.Closer.
func NewCSVSink(w io.Writer) *CSVSink {
	s := &CSVSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// CreateCSV creates the file for a CSVSink.
func CreateCSV(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewCSVSink(f), nil
}

// FileName is the default recording file name of a device.
func FileName(device string, s host.Sample) string {
	return device + "_" + s.Time.Format("2006-01-02_15-04-05") + ".csv"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Record implements Sink.
func (c *CSVSink) Record(ctx context.Context, s host.Sample) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.header {
		cols := []string{"Time(s)"}
		for n := range s.Data {
			var f string
			if n < len(s.Frequencies) {
				f = strconv.FormatFloat(s.Frequencies[n], 'g', -1, 64)
			} else {
				f = "#" + strconv.Itoa(n)
			}
			cols = append(cols, f+"Hz(Re)", f+"Hz(Im)")
		}
		cols = append(cols, "Cx", "Cy", "Cr")
		if _, err := c.w.WriteString(strings.Join(cols, ", ") + "\r\n"); err != nil {
			return err
		}
		c.header = true
	}
	cols := []string{formatFloat(s.Elapsed.Seconds())}
	for _, v := range s.Data {
		cols = append(cols, formatFloat(float64(real(v))), formatFloat(float64(imag(v))))
	}
	cols = append(cols, formatFloat(s.Circle.X), formatFloat(s.Circle.Y), formatFloat(s.Circle.R))
	if _, err := c.w.WriteString(strings.Join(cols, ", ") + "\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// Close implements Sink.
func (c *CSVSink) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	err := c.w.Flush()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	return nil
}
