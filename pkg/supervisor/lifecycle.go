package supervisor

import (
	"context"

	"github.com/looplab/fsm"
)

// Phase фаза жизненного цикла конвейера с точки зрения супервизора
type Phase string

const (
	PhaseAssembled Phase = "assembled"
	PhaseStarting  Phase = "starting"
	PhasePlaying   Phase = "playing"
	PhaseDraining  Phase = "draining"
	PhaseStopped   Phase = "stopped"
	PhaseFailed    Phase = "failed"
)

// События автомата
const (
	eventStart   = "start"
	eventConfirm = "confirm"
	eventDrain   = "drain"
	eventStop    = "stop"
	eventFail    = "fail"
)

// PhaseHandler вызывается после каждого перехода
type PhaseHandler func(from, to Phase)

// lifecycle обертка над fsm.FSM.
// assembled -> starting -> playing -> draining -> stopped, и failed из любой живой фазы.
type lifecycle struct {
	machine  *fsm.FSM
	onChange PhaseHandler
}

func newLifecycle(onChange PhaseHandler) *lifecycle {
	l := &lifecycle{onChange: onChange}
	l.machine = fsm.NewFSM(
		string(PhaseAssembled),
		fsm.Events{
			{Name: eventStart, Src: []string{string(PhaseAssembled)}, Dst: string(PhaseStarting)},
			// подтверждение PLAYING приходит с шины
			{Name: eventConfirm, Src: []string{string(PhaseStarting)}, Dst: string(PhasePlaying)},
			{Name: eventDrain, Src: []string{string(PhaseStarting), string(PhasePlaying)}, Dst: string(PhaseDraining)},
			{Name: eventStop, Src: []string{string(PhaseStarting), string(PhasePlaying), string(PhaseDraining)}, Dst: string(PhaseStopped)},
			{Name: eventFail, Src: []string{string(PhaseAssembled), string(PhaseStarting), string(PhasePlaying), string(PhaseDraining)}, Dst: string(PhaseFailed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if l.onChange != nil {
					l.onChange(Phase(e.Src), Phase(e.Dst))
				}
			},
		},
	)
	return l
}

// fire выполняет событие, если оно допустимо в текущей фазе.
// Переходы выполняются и после отмены контекста запуска.
func (l *lifecycle) fire(event string) bool {
	if !l.machine.Can(event) {
		return false
	}
	return l.machine.Event(context.Background(), event) == nil
}

func (l *lifecycle) current() Phase {
	return Phase(l.machine.Current())
}
