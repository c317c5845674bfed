package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/eda.go/pkg/config"
	fx "github.com/robotalks/eda.go/pkg/framework"
	"github.com/robotalks/eda.go/pkg/host"
	"github.com/robotalks/eda.go/pkg/link/mqtt"
	"github.com/robotalks/eda.go/pkg/link/transport"
	"github.com/robotalks/eda.go/pkg/recorder"
)

func init() {
	config.SetupFlags(flag.CommandLine)
}

// devices resolves the links to monitor, an MQTT URL without a device
// monitors every device announced on the broker.
func devices(ctx context.Context, linkURL string) (map[string]string, error) {
	u, err := url.Parse(linkURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(u.Scheme, "mqtt") {
		return map[string]string{"": linkURL}, nil
	}
	if dev := u.Query().Get("device"); dev != "" {
		return map[string]string{dev: linkURL}, nil
	}
	connector, err := mqtt.NewConnector(linkURL)
	if err != nil {
		return nil, err
	}
	infoList, err := connector.Discover(ctx)
	if err != nil {
		return nil, err
	}
	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}
	res := make(map[string]string)
	for _, info := range infoList {
		res[info.ID] = linkURL + sep + "device=" + url.QueryEscape(info.ID)
	}
	return res, nil
}

func main() {
	flag.Parse()

	conf, err := config.Load(flag.CommandLine)
	if err != nil {
		log.Fatalln(err)
	}
	ctx := context.Background()

	var sinks recorder.Multi
	for _, target := range conf.Recorder.Sinks {
		if target == "clickhouse" {
			sink, err := recorder.OpenClickHouse(ctx, conf.Recorder.ClickHouse)
			if err != nil {
				log.Fatalln(err)
			}
			sinks = append(sinks, sink)
			continue
		}
		sink, err := recorder.Open(ctx, target)
		if err != nil {
			log.Fatalf("open sink %q: %v", target, err)
		}
		sinks = append(sinks, sink)
	}
	defer sinks.Close()

	links, err := devices(ctx, conf.Link.URL)
	if err != nil {
		log.Fatalln(err)
	}
	if len(links) == 0 {
		log.Fatalln("no devices found")
	}

	runner := fx.NewRunner().HandleSignals()
	for dev, linkURL := range links {
		conn, err := transport.Dial(runner.Context, linkURL)
		if err != nil {
			log.Fatalf("connect %s: %v", linkURL, err)
		}
		if dev == "" {
			dev = conf.Device.Name
		}
		m := host.NewMonitor(conn, dev, conf.DSP.Frequencies)
		m.SyncInterval = conf.Recorder.SyncInterval
		m.AddSink(sinks)
		glog.Infof("monitoring %s on %s", dev, linkURL)
		runner.Go(fx.NamedRun(dev, m))
	}
	if err = runner.Wait(); err != nil {
		glog.Error(err)
	}
}
