package stage

import (
	"sync"

	"github.com/felixgeelhaar/statekit"

	"tcforge/internal/ledger"
)

// State of one stage within the current process. Only Done outlives the
// process, through the ledger; a Failed stage is NotStarted again on restart.
type State string

const (
	NotStarted State = stateNotStarted
	Running    State = stateRunning
	Done       State = stateDone
	Failed     State = stateFailed
)

const (
	stateNotStarted = "not-started"
	stateRunning    = "running"
	stateDone       = "done"
	stateFailed     = "failed"
)

// Event types for the stage state machine.
const (
	EventStart   = "START"
	EventSucceed = "SUCCEED"
	EventFail    = "FAIL"
	EventSkip    = "SKIP"
	EventRetry   = "RETRY"
)

type trackerContext struct {
	Key string
}

// Entry is a tracked stage and where it ended up.
type Entry struct {
	Key   ledger.Key
	State State
}

// Tracker keeps one state machine per stage touched during a run.
type Tracker struct {
	mu       sync.Mutex
	machines map[ledger.Key]*statekit.Interpreter[trackerContext]
	order    []ledger.Key
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{machines: make(map[ledger.Key]*statekit.Interpreter[trackerContext])}
}

func buildStageMachine(key ledger.Key) (*statekit.Interpreter[trackerContext], error) {
	machine, err := statekit.NewMachine[trackerContext]("stage-" + key.String()).
		WithInitial(stateNotStarted).
		WithContext(trackerContext{Key: key.String()}).
		State(stateNotStarted).
		On(EventStart).Target(stateRunning).
		On(EventSkip).Target(stateDone).Done().
		State(stateRunning).
		On(EventSucceed).Target(stateDone).
		On(EventFail).Target(stateFailed).Done().
		State(stateDone).
		On(EventSkip).Target(stateDone).Done().
		State(stateFailed).
		On(EventRetry).Target(stateRunning).Done().
		Build()
	if err != nil {
		return nil, err
	}
	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return interp, nil
}

func (t *Tracker) machine(key ledger.Key, fresh bool) *statekit.Interpreter[trackerContext] {
	interp, ok := t.machines[key]
	if ok && !fresh {
		return interp
	}
	if ok {
		interp.Stop()
	} else {
		t.order = append(t.order, key)
	}
	interp, err := buildStageMachine(key)
	if err != nil {
		// the machine definition is static; a build error is a programming error
		panic(err)
	}
	t.machines[key] = interp
	return interp
}

func (t *Tracker) send(key ledger.Key, event statekit.EventType) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	interp := t.machine(key, false)
	interp.Send(statekit.Event{Type: event})
}

// Skip records a stage found already done in the ledger.
func (t *Tracker) Skip(key ledger.Key) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	interp := t.machine(key, false)
	if State(interp.State().Value) != NotStarted && State(interp.State().Value) != Done {
		interp = t.machine(key, true)
	}
	interp.Send(statekit.Event{Type: EventSkip})
}

// Begin moves a stage to Running, retrying it if it failed earlier in this process.
func (t *Tracker) Begin(key ledger.Key) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	interp := t.machine(key, false)
	switch State(interp.State().Value) {
	case NotStarted:
		interp.Send(statekit.Event{Type: EventStart})
	case Failed:
		interp.Send(statekit.Event{Type: EventRetry})
	default:
		interp = t.machine(key, true)
		interp.Send(statekit.Event{Type: EventStart})
	}
}

// Succeed records a successful execution.
func (t *Tracker) Succeed(key ledger.Key) {
	t.send(key, EventSucceed)
}

// Fail records a failed execution.
func (t *Tracker) Fail(key ledger.Key) {
	t.send(key, EventFail)
}

// State returns the current state of key, NotStarted when it was never touched.
func (t *Tracker) State(key ledger.Key) State {
	if t == nil {
		return NotStarted
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	interp, ok := t.machines[key]
	if !ok {
		return NotStarted
	}
	return State(interp.State().Value)
}

// Entries lists tracked stages in the order they were first touched.
func (t *Tracker) Entries() []Entry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, Entry{Key: key, State: State(t.machines[key].State().Value)})
	}
	return out
}
