package host

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/luabridge/bridge"
	"github.com/tliron/commonlog"
)

// A Task is a system task. It binds its arguments with the binder, runs and
// writes its outputs.
type Task func(bind *Binder) error

// ErrUnknownTask is returned when calling a task that is not registered.
var ErrUnknownTask = errors.New("unknown system task")

type entry struct {
	task  Task
	calls atomic.Uint64
}

// A Registry maps system-task names to tasks.
type Registry struct {
	lock   sync.RWMutex
	tasks  map[string]*entry
	logger commonlog.Logger
}

// NewRegistry creates an empty registry. A nil logger means the default
// luabridge.host logger.
func NewRegistry(logger commonlog.Logger) *Registry {
	if logger == nil {
		logger = commonlog.GetLogger("luabridge.host")
	}

	return &Registry{
		tasks:  make(map[string]*entry),
		logger: logger,
	}
}

// Register adds a task. Task names start with '$' and are registered once.
func (r *Registry) Register(name string, task Task) {
	if !strings.HasPrefix(name, "$") {
		log.Panicf("system task name %q must start with $", name)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, found := r.tasks[name]; found {
		log.Panicf("system task %s is already registered", name)
	}

	r.tasks[name] = &entry{task: task}
}

// Names returns the registered task names in sorted order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Calls returns how many times a task has been called.
func (r *Registry) Calls(name string) uint64 {
	r.lock.RLock()
	defer r.lock.RUnlock()

	e, found := r.tasks[name]
	if !found {
		return 0
	}

	return e.calls.Load()
}

// Call runs a task with the given arguments. Binding errors are logged and
// the task is abandoned without writing outputs. A panic inside the task never
// escapes Call: it is logged, reported as a host fault and written to the
// status output if the task had bound one.
func (r *Registry) Call(name string, args ...Slot) (err error) {
	r.lock.RLock()
	e, found := r.tasks[name]
	r.lock.RUnlock()

	if !found {
		r.logger.Errorf("call of unknown system task %s", name)
		return fmt.Errorf("%w %s", ErrUnknownTask, name)
	}

	e.calls.Add(1)
	bind := NewBinder(name, args)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("system task %s panicked: %v", name, p)

			if bind.status != nil {
				put(bind.status, bridge.StatusHostFault)
			}

			err = &bridge.Error{
				Kind:    bridge.HostFault,
				Op:      name,
				Message: fmt.Sprint(p),
			}
		}
	}()

	err = e.task(bind)

	var bindErr *BindingError
	if errors.As(err, &bindErr) {
		r.logger.Errorf("%s", bindErr)
	}

	return err
}
