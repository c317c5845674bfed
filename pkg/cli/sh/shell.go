package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/eda.go/pkg/config"
	"github.com/robotalks/eda.go/pkg/host"
	"github.com/robotalks/eda.go/pkg/link"
	"github.com/robotalks/eda.go/pkg/link/mqtt"
	"github.com/robotalks/eda.go/pkg/link/transport"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell   *ishell.Shell
	Config  *config.Config
	Session *Session
}

// Session is a monitored device connection.
type Session struct {
	Ctx     context.Context
	Cancel  func()
	URL     string
	Device  string
	Monitor *host.Monitor

	lock sync.Mutex
	err  error
	done chan struct{}
}

// Err returns the error which ended the session.
func (s *Session) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&DevicesCmd,
		&PortsCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&SyncCmd,
		&StartCmd,
		&StopCmd,
		&LastCmd,
		&StatsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Print prints v as JSON or with the text formatter.
func (s *Shell) Print(c *ishell.Context, v interface{}, text func() string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text())
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

func (s *Shell) isMQTT() bool {
	return strings.HasPrefix(s.Config.Link.URL, "mqtt")
}

// DiscoverDevices lists the devices announced on the MQTT broker.
func (s *Shell) DiscoverDevices() ([]mqtt.DeviceInfo, error) {
	if !s.isMQTT() {
		return nil, fmt.Errorf("discovery requires an mqtt link, not %q", s.Config.Link.URL)
	}
	connector, err := mqtt.NewConnector(s.Config.Link.URL)
	if err != nil {
		return nil, err
	}
	return connector.Discover(context.TODO())
}

// SelectDevice discovers devices and asks for a choice.
func (s *Shell) SelectDevice() (*mqtt.DeviceInfo, error) {
	infoList, err := s.DiscoverDevices()
	if err != nil || len(infoList) == 0 {
		return nil, err
	}
	var index int
	if len(infoList) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 devices discovered in non-interactive mode")
		}
		items := make([]string, len(infoList))
		for n, info := range infoList {
			items[n] = FormatDevice(info)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}
	return &infoList[index], nil
}

// FormatDevice prints DeviceInfo into friendly string for display.
func FormatDevice(info mqtt.DeviceInfo) string {
	if info.Name != "" && info.Name != info.ID {
		return info.ID + ": " + info.Name
	}
	return info.ID
}

// DeviceURL resolves the link URL of a device.
// A device ID is looked up on the configured MQTT broker.
func (s *Shell) DeviceURL(arg string) string {
	switch {
	case arg == "":
		return s.Config.Link.URL
	case strings.Contains(arg, "://"):
		return arg
	}
	sep := "?"
	if strings.Contains(s.Config.Link.URL, "?") {
		sep = "&"
	}
	return s.Config.Link.URL + sep + "device=" + arg
}

// Connect connects a device link and starts monitoring.
func (s *Shell) Connect(url, device string) error {
	session := &Session{URL: url, Device: device, done: make(chan struct{})}
	session.Ctx, session.Cancel = context.WithCancel(context.Background())
	conn, err := transport.Dial(session.Ctx, url)
	if err != nil {
		session.Cancel()
		return err
	}
	if device == "" {
		device = s.Config.Device.Name
	}
	session.Monitor = host.NewMonitor(conn, device, s.Config.DSP.Frequencies)
	session.Monitor.SyncInterval = s.Config.Recorder.SyncInterval
	s.Disconnect()
	s.Session = session
	go func() {
		err := session.Monitor.Run(session.Ctx)
		session.lock.Lock()
		session.err = err
		session.lock.Unlock()
		close(session.done)
		if err != nil && session.Ctx.Err() == nil {
			glog.Errorf("session %s: %v", url, err)
		}
	}()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", device))
	return nil
}

// Disconnect disconnects current device.
func (s *Shell) Disconnect() {
	if s.Session != nil {
		s.Session.Cancel()
		<-s.Session.done
		link.Close(s.Session.Monitor.Conn)
		s.Session = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Link.URL != "" && !s.isMQTT() {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Link.URL)
		}
		if err := s.Connect(s.Config.Link.URL, ""); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Link.URL, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	config.SetupFlags(flag.CommandLine)
	flag.Parse()
	conf, err := config.Load(flag.CommandLine)
	if err != nil {
		log.Fatalln(err)
	}
	New(conf).WithAutoConnect(true).Run(flag.Args()...)
}
