package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/golang/glog"

	"github.com/robotalks/eda.go/pkg/host"
)

// DefaultTable is the default ClickHouse table.
const DefaultTable = "eda_impedance"

// ClickHouseConfig configures the ClickHouse connection.
type ClickHouseConfig struct {
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}

// Execer executes statements, implemented by the ClickHouse driver.Conn.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ClickHouseSink inserts samples into a ClickHouse table.
type ClickHouseSink struct {
	Conn  Execer
	Table string

	closer func() error
}

func createTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		timestamp DateTime64(6),
		device_id String,
		seq UInt64,
		frequencies Array(Float64),
		real Array(Float32),
		imag Array(Float32),
		cx Float64,
		cy Float64,
		cr Float64
	) ENGINE = MergeTree()
	ORDER BY (device_id, timestamp)`
}

// NewClickHouseSink creates the table when missing.
func NewClickHouseSink(ctx context.Context, conn Execer, table string) (*ClickHouseSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := conn.Exec(ctx, createTableSQL(table)); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &ClickHouseSink{Conn: conn, Table: table}, nil
}

// OpenClickHouse connects to ClickHouse and creates the sink.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err = conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	glog.Infof("recorder: connected to ClickHouse at %s", cfg.Addr)
	sink, err := NewClickHouseSink(ctx, conn, cfg.Table)
	if err != nil {
		conn.Close()
		return nil, err
	}
	sink.closer = conn.Close
	return sink, nil
}

// Record implements Sink.
func (c *ClickHouseSink) Record(ctx context.Context, s host.Sample) error {
	re := make([]float32, len(s.Data))
	im := make([]float32, len(s.Data))
	for n, v := range s.Data {
		re[n], im[n] = real(v), imag(v)
	}
	freqs := s.Frequencies
	if freqs == nil {
		freqs = []float64{}
	}
	query := `INSERT INTO ` + c.Table + ` (timestamp, device_id, seq, frequencies, real, imag, cx, cy, cr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if err := c.Conn.Exec(ctx, query,
		s.Time, s.Device, s.Seq, freqs, re, im,
		s.Circle.X, s.Circle.Y, s.Circle.R,
	); err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// Close implements Sink.
func (c *ClickHouseSink) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}
