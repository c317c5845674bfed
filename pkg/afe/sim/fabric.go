// Package sim simulates the front-end peripherals and a skin load.
package sim

import (
	"errors"
	"sync"

	"github.com/robotalks/eda.go/pkg/afe"
)

// DefaultChannels is the number of interconnect channels of a Fabric.
const DefaultChannels = 20

var (
	errUnassigned = errors.New("channel not assigned")
	errForked     = errors.New("channel already forked")
	errBadChannel = errors.New("invalid channel")
)

type route struct {
	event   afe.EventAddr
	tasks   []afe.TaskAddr
	enabled bool
}

// Fabric is a simulated interconnect. Peripherals register their events
// and tasks on it, and Signal dispatches an event to the routed tasks.
type Fabric struct {
	MaxChannels int

	lock   sync.Mutex
	next   uint32
	tasks  map[afe.TaskAddr]func()
	routes []*route
}

// NewFabric creates a Fabric.
func NewFabric() *Fabric {
	return &Fabric{MaxChannels: DefaultChannels, tasks: make(map[afe.TaskAddr]func())}
}

// NewEvent registers an event.
func (f *Fabric) NewEvent() afe.EventAddr {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.next++
	return afe.EventAddr(f.next)
}

// NewTask registers a task.
func (f *Fabric) NewTask(fn func()) afe.TaskAddr {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.next++
	addr := afe.TaskAddr(f.next)
	f.tasks[addr] = fn
	return addr
}

// Signal raises an event.
func (f *Fabric) Signal(ev afe.EventAddr) {
	var fns []func()
	f.lock.Lock()
	for _, r := range f.routes {
		if r == nil || !r.enabled || r.event != ev {
			continue
		}
		for _, t := range r.tasks {
			if fn := f.tasks[t]; fn != nil {
				fns = append(fns, fn)
			}
		}
	}
	f.lock.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Alloc implements afe.Interconnect.
func (f *Fabric) Alloc() (afe.Channel, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for n, r := range f.routes {
		if r == nil {
			f.routes[n] = &route{}
			return afe.Channel(n), nil
		}
	}
	if len(f.routes) >= f.MaxChannels {
		return 0, afe.ErrNoChannel
	}
	f.routes = append(f.routes, &route{})
	return afe.Channel(len(f.routes) - 1), nil
}

// Assign implements afe.Interconnect.
func (f *Fabric) Assign(ch afe.Channel, ev afe.EventAddr, task afe.TaskAddr) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	r, err := f.route(ch)
	if err != nil {
		return err
	}
	r.event, r.tasks = ev, []afe.TaskAddr{task}
	return nil
}

// Fork implements afe.Interconnect.
func (f *Fabric) Fork(ch afe.Channel, task afe.TaskAddr) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	r, err := f.route(ch)
	switch {
	case err != nil:
		return err
	case len(r.tasks) == 0:
		return errUnassigned
	case len(r.tasks) > 1:
		return errForked
	}
	r.tasks = append(r.tasks, task)
	return nil
}

// Enable implements afe.Interconnect.
func (f *Fabric) Enable(ch afe.Channel) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	r, err := f.route(ch)
	if err != nil {
		return err
	}
	if len(r.tasks) == 0 {
		return errUnassigned
	}
	r.enabled = true
	return nil
}

// FreeAll implements afe.Interconnect.
func (f *Fabric) FreeAll() {
	f.lock.Lock()
	f.routes = nil
	f.lock.Unlock()
}

// InUse returns the number of allocated channels.
func (f *Fabric) InUse() (n int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, r := range f.routes {
		if r != nil {
			n++
		}
	}
	return
}

func (f *Fabric) route(ch afe.Channel) (*route, error) {
	if int(ch) < 0 || int(ch) >= len(f.routes) || f.routes[ch] == nil {
		return nil, errBadChannel
	}
	return f.routes[ch], nil
}
