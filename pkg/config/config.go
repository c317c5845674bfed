// Package config loads the settings of the commands.
//
// Settings are resolved from, in decreasing precedence, command line flags,
// EDA_* environment variables (a .env file is loaded first), the config
// file eda.{yaml,toml,json} in . or /etc/eda and built-in defaults.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/robotalks/eda.go/pkg/afe/sim"
	"github.com/robotalks/eda.go/pkg/calendar"
	"github.com/robotalks/eda.go/pkg/dsp"
	fx "github.com/robotalks/eda.go/pkg/framework"
	"github.com/robotalks/eda.go/pkg/link"
	"github.com/robotalks/eda.go/pkg/recorder"
)

// DeviceConfig identifies the device.
type DeviceConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// AFEConfig configures the simulated front end.
type AFEConfig struct {
	// Pin is the excitation clock output.
	Pin int `mapstructure:"pin"`
	// LoadR, LoadC and LoadSeries describe the simulated skin load.
	LoadR      float64 `mapstructure:"load_r"`
	LoadC      float64 `mapstructure:"load_c"`
	LoadSeries float64 `mapstructure:"load_series"`
	// Noise is the RMS ADC input noise in volts.
	Noise float64       `mapstructure:"noise"`
	Step  time.Duration `mapstructure:"step"`
}

// CalendarConfig configures the time base counter.
type CalendarConfig struct {
	Bits  uint `mapstructure:"bits"`
	Shift uint `mapstructure:"shift"`
}

// LinkConfig configures the transport.
type LinkConfig struct {
	URL       string `mapstructure:"url"`
	MTU       int    `mapstructure:"mtu"`
	TxDepth   int    `mapstructure:"tx_depth"`
	QueueSize int    `mapstructure:"queue_size"`
}

// RecorderConfig configures the host side.
type RecorderConfig struct {
	// Sinks are recorder.Open targets.
	Sinks        []string                  `mapstructure:"sinks"`
	SyncInterval time.Duration             `mapstructure:"sync_interval"`
	ClickHouse   recorder.ClickHouseConfig `mapstructure:"clickhouse"`
}

// Config is the complete configuration.
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	AFE      AFEConfig      `mapstructure:"afe"`
	DSP      dsp.Config     `mapstructure:"dsp"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Link     LinkConfig     `mapstructure:"link"`
	Recorder RecorderConfig `mapstructure:"recorder"`
}

// EnvPrefix prefixes environment variables, e.g. EDA_LINK_URL.
const EnvPrefix = "EDA"

var defaultConfig = Config{
	Device: DeviceConfig{Name: "eda"},
	AFE: AFEConfig{
		Pin:        5,
		LoadR:      100e3,
		LoadC:      10e-9,
		LoadSeries: 1e3,
		Step:       sim.DefaultStep,
	},
	DSP: dsp.DefaultConfig(),
	Calendar: CalendarConfig{
		Bits:  calendar.DefaultBits,
		Shift: calendar.DefaultShift,
	},
	Link: LinkConfig{
		URL:       "tcp://localhost:8420",
		MTU:       link.DefaultMTU,
		TxDepth:   link.DefaultTxDepth,
		QueueSize: fx.DefaultQueueSize,
	},
	Recorder: RecorderConfig{
		Sinks:        []string{"log"},
		SyncInterval: time.Minute,
		ClickHouse: recorder.ClickHouseConfig{
			Addr:     "localhost:9000",
			Database: "default",
			Username: "default",
			Table:    recorder.DefaultTable,
		},
	},
}

type flagKey struct {
	name  string
	key   string
	usage string
}

var flagKeys = []flagKey{
	{"device-id", "device.id", "Device ID, the machine ID when empty."},
	{"device-name", "device.name", "Device name."},
	{"link", "link.url", "Link URL: tcp://host:port, serial:///dev/tty, ws://host:port/path, mqtt://broker/prefix."},
	{"mtu", "link.mtu", "Chunk size of stream links."},
	{"tx-depth", "link.tx_depth", "Outbound chunk queue depth."},
	{"queue-size", "link.queue_size", "Event queue capacity."},
	{"fft", "dsp.fft", "FFT implementation: gonum or radix2."},
	{"frequencies", "dsp.frequencies", "Comma separated analysis frequencies in Hz."},
	{"simulate-current", "dsp.simulate_current", "Use the theoretical excitation current."},
	{"load-r", "afe.load_r", "Simulated parallel resistance in ohms."},
	{"load-c", "afe.load_c", "Simulated parallel capacitance in farads."},
	{"load-series", "afe.load_series", "Simulated series resistance in ohms."},
	{"noise", "afe.noise", "Simulated ADC noise in volts RMS."},
	{"step", "afe.step", "Simulation pacing interval."},
	{"record", "recorder.sinks", "Comma separated sinks: log[:level], csv:<path>, clickhouse://host:port/db."},
	{"sync-interval", "recorder.sync_interval", "Interval to resend the host time, 0 to disable."},
}

var configFile string

// SetupFlags registers the command line flags on fs.
// It loads .env first so the environment is complete before parsing.
func SetupFlags(fs *flag.FlagSet) {
	if err := godotenv.Load(); err == nil {
		glog.V(1).Info("config: loaded .env")
	}
	defaults := defaultValues()
	fs.StringVar(&configFile, "config", "", "Config file, eda.{yaml,toml,json} in . or /etc/eda when empty.")
	for _, k := range flagKeys {
		fs.String(k.name, formatValue(defaults[k.key]), k.usage)
	}
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	conf.DSP.Frequencies = append([]float64(nil), defaultConfig.DSP.Frequencies...)
	conf.Recorder.Sinks = append([]string(nil), defaultConfig.Recorder.Sinks...)
	return &conf
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case []float64:
		strs := make([]string, len(val))
		for n, f := range val {
			strs[n] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(strs, ",")
	case []string:
		return strings.Join(val, ",")
	}
	return fmt.Sprint(v)
}

func defaultValues() map[string]interface{} {
	c := NewConfig()
	return map[string]interface{}{
		"device.id":                    c.Device.ID,
		"device.name":                  c.Device.Name,
		"afe.pin":                      c.AFE.Pin,
		"afe.load_r":                   c.AFE.LoadR,
		"afe.load_c":                   c.AFE.LoadC,
		"afe.load_series":              c.AFE.LoadSeries,
		"afe.noise":                    c.AFE.Noise,
		"afe.step":                     c.AFE.Step,
		"dsp.sample_rate":              c.DSP.SampleRate,
		"dsp.block_size":               c.DSP.BlockSize,
		"dsp.fft_size":                 c.DSP.FFTSize,
		"dsp.frequencies":              c.DSP.Frequencies,
		"dsp.voltage_scale":            c.DSP.VoltageScale,
		"dsp.tia_resistance":           c.DSP.TIAResistance,
		"dsp.simulate_current":         c.DSP.SimulateCurrent,
		"dsp.current_resolution":       c.DSP.CurrentResolution,
		"dsp.fft":                      c.DSP.FFT,
		"calendar.bits":                c.Calendar.Bits,
		"calendar.shift":               c.Calendar.Shift,
		"link.url":                     c.Link.URL,
		"link.mtu":                     c.Link.MTU,
		"link.tx_depth":                c.Link.TxDepth,
		"link.queue_size":              c.Link.QueueSize,
		"recorder.sinks":               c.Recorder.Sinks,
		"recorder.sync_interval":       c.Recorder.SyncInterval,
		"recorder.clickhouse.addr":     c.Recorder.ClickHouse.Addr,
		"recorder.clickhouse.database": c.Recorder.ClickHouse.Database,
		"recorder.clickhouse.username": c.Recorder.ClickHouse.Username,
		"recorder.clickhouse.password": c.Recorder.ClickHouse.Password,
		"recorder.clickhouse.table":    c.Recorder.ClickHouse.Table,
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	items := splitList(s)
	out := make([]float64, len(items))
	for n, item := range items {
		f, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid frequency %q: %w", item, err)
		}
		out[n] = f
	}
	return out, nil
}

// listValue converts a list given as a string by the environment or a flag.
func listValue(key string, v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	switch key {
	case "dsp.frequencies":
		return parseFloats(s)
	case "recorder.sinks":
		return splitList(s), nil
	}
	return v, nil
}

// Load resolves the configuration, fs must be parsed.
func Load(fs *flag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults := defaultValues()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var errs fx.AggregatedError
	if fs != nil {
		fs.Visit(func(f *flag.Flag) {
			for _, k := range flagKeys {
				if k.name == f.Name {
					v.Set(k.key, f.Value.String())
				}
			}
		})
	}
	for _, key := range []string{"dsp.frequencies", "recorder.sinks"} {
		val, err := listValue(key, v.Get(key))
		if err != nil {
			errs.Add(err)
			continue
		}
		v.Set(key, val)
	}
	if err := errs.Aggregate(); err != nil {
		return nil, err
	}

	conf := NewConfig()
	for _, section := range []struct {
		key    string
		target interface{}
	}{
		{"device", &conf.Device},
		{"afe", &conf.AFE},
		{"dsp", &conf.DSP},
		{"calendar", &conf.Calendar},
		{"link", &conf.Link},
		{"recorder", &conf.Recorder},
	} {
		if err := unmarshalSection(v, section.key, section.target); err != nil {
			return nil, fmt.Errorf("config %s: %w", section.key, err)
		}
	}
	if conf.Device.ID == "" {
		conf.Device.ID = DeviceID()
	}
	return conf, nil
}

func readConfigFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("eda")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/eda")
	}
	err := v.ReadInConfig()
	if err == nil {
		glog.Infof("config: loaded %s", v.ConfigFileUsed())
		return nil
	}
	if _, ok := err.(viper.ConfigFileNotFoundError); ok && file == "" {
		return nil
	}
	return err
}

// unmarshalSection decodes the leaf keys of a section, so every layer
// including the environment is honored.
func unmarshalSection(v *viper.Viper, section string, target interface{}) error {
	prefix := section + "."
	settings := viper.New()
	for _, key := range v.AllKeys() {
		if strings.HasPrefix(key, prefix) {
			settings.Set(strings.TrimPrefix(key, prefix), v.Get(key))
		}
	}
	return settings.Unmarshal(target)
}

// DeviceID returns the machine based device ID.
func DeviceID() string {
	id, err := machineid.ProtectedID("eda")
	if err != nil {
		glog.Warningf("config: machine id: %v", err)
		return "eda-sim"
	}
	return id[:12]
}
