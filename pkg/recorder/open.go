package recorder

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

// Open creates a sink from a target description:
//
//	log[:level]
//	csv:<path>
//	clickhouse://[user:pass@]host:port/database[?table=name]
func Open(ctx context.Context, target string) (Sink, error) {
	kind, arg, _ := strings.Cut(target, ":")
	switch kind {
	case "log":
		sink := &LogSink{}
		if arg != "" {
			level, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid log level %q", arg)
			}
			sink.Level = glog.Level(level)
		}
		return sink, nil
	case "csv":
		if arg == "" {
			return nil, fmt.Errorf("csv sink requires a path")
		}
		sink, err := CreateCSV(arg)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "clickhouse":
		u, err := url.Parse(target)
		if err != nil {
			return nil, err
		}
		cfg := ClickHouseConfig{
			Addr:     u.Host,
			Database: strings.TrimPrefix(u.Path, "/"),
			Table:    u.Query().Get("table"),
		}
		if u.User != nil {
			cfg.Username = u.User.Username()
			cfg.Password, _ = u.User.Password()
		}
		sink, err := OpenClickHouse(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	return nil, fmt.Errorf("unknown sink %q", target)
}
