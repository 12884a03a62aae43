package reactor

// Phase orders the triggers of a system event.
type Phase int

const (
	// PhaseBefore triggers run first.
	PhaseBefore Phase = iota
	// PhaseDuring triggers run once all before triggers completed.
	PhaseDuring
	// PhaseAfter triggers run last.
	PhaseAfter
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseDuring:
		return "during"
	case PhaseAfter:
		return "after"
	default:
		return "unknown"
	}
}

// SystemEvent names a reactor lifecycle event.
type SystemEvent string

const (
	// EventStartup fires at the start of every Run.
	EventStartup SystemEvent = "startup"
	// EventShutdown fires when Stop is called. Crash skips it.
	EventShutdown SystemEvent = "shutdown"
)

// TriggerID identifies a registered system event trigger.
type TriggerID struct {
	event SystemEvent
	phase Phase
	id    uint64
}

type trigger struct {
	id uint64
	fn func() error
}

// eventTriggers holds the triggers of one system event, per phase.
type eventTriggers [3][]trigger

// AddSystemEventTrigger registers fn to run in the given phase of event.
// Errors returned by fn are logged and do not stop later triggers.
func (r *Reactor) AddSystemEventTrigger(phase Phase, event SystemEvent, fn func() error) TriggerID {
	if phase < PhaseBefore || phase > PhaseAfter {
		panic("reactor: invalid trigger phase")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggerSeq++
	t := r.triggers[event]
	if t == nil {
		t = new(eventTriggers)
		r.triggers[event] = t
	}
	t[phase] = append(t[phase], trigger{id: r.triggerSeq, fn: fn})
	return TriggerID{event: event, phase: phase, id: r.triggerSeq}
}

// RemoveSystemEventTrigger removes a trigger previously added.
func (r *Reactor) RemoveSystemEventTrigger(id TriggerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.triggers[id.event]
	if t == nil || id.phase < PhaseBefore || id.phase > PhaseAfter {
		return ErrNoSuchTrigger
	}
	for i, v := range t[id.phase] {
		if v.id == id.id {
			t[id.phase] = append(t[id.phase][:i:i], t[id.phase][i+1:]...)
			return nil
		}
	}
	return ErrNoSuchTrigger
}

// FireSystemEvent runs the triggers of event, phase by phase. Triggers
// added for a phase that has not started yet still run.
func (r *Reactor) FireSystemEvent(event SystemEvent) {
	for phase := PhaseBefore; phase <= PhaseAfter; phase++ {
		r.mu.Lock()
		var pending []trigger
		if t := r.triggers[event]; t != nil {
			pending = append(pending, t[phase]...)
		}
		r.mu.Unlock()

		for _, v := range pending {
			if err := SafeCall(v.fn); err != nil {
				r.logger.Err().
					Str("event", string(event)).
					Str("phase", phase.String()).
					Err(err).
					Log("system event trigger failed")
			}
		}
	}
}
