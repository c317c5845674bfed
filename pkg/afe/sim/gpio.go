package sim

import (
	"sync"

	"github.com/robotalks/eda.go/pkg/afe"
)

type pin struct {
	level   bool
	toggles uint64
	task    afe.TaskAddr
}

// GPIO is a simulated GPIO port.
type GPIO struct {
	fabric *Fabric
	lock   sync.Mutex
	pins   map[int]*pin
}

// NewGPIO creates a GPIO on the fabric.
func NewGPIO(fabric *Fabric) *GPIO {
	return &GPIO{fabric: fabric, pins: make(map[int]*pin)}
}

// InitToggle implements afe.GPIO.
func (g *GPIO) InitToggle(num int) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if _, ok := g.pins[num]; ok {
		return nil
	}
	p := &pin{}
	p.task = g.fabric.NewTask(func() {
		g.lock.Lock()
		p.level = !p.level
		p.toggles++
		g.lock.Unlock()
	})
	g.pins[num] = p
	return nil
}

// ToggleTask implements afe.GPIO.
func (g *GPIO) ToggleTask(num int) afe.TaskAddr {
	g.lock.Lock()
	defer g.lock.Unlock()
	if p := g.pins[num]; p != nil {
		return p.task
	}
	return 0
}

// Uninit implements afe.GPIO.
func (g *GPIO) Uninit(num int) {
	g.lock.Lock()
	delete(g.pins, num)
	g.lock.Unlock()
}

// Level returns the pin level.
func (g *GPIO) Level(num int) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	if p := g.pins[num]; p != nil {
		return p.level
	}
	return false
}

// Toggles returns the number of toggles of the pin.
func (g *GPIO) Toggles(num int) uint64 {
	g.lock.Lock()
	defer g.lock.Unlock()
	if p := g.pins[num]; p != nil {
		return p.toggles
	}
	return 0
}
