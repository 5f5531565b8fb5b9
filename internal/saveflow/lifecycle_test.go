package saveflow

import (
	"sync"
	"testing"
)

type signalRecorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *signalRecorder) handle(sig Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func (r *signalRecorder) recorded() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Signal(nil), r.signals...)
}

func TestDispatcherDeliversPerEntity(t *testing.T) {
	dispatcher := NewLifecycleDispatcher()
	first := &signalRecorder{}
	second := &signalRecorder{}
	dispatcher.Subscribe("sheet-1", first.handle)
	dispatcher.Subscribe("sheet-2", second.handle)

	dispatcher.Publish("sheet-1", SignalUserSave)
	dispatcher.Publish("sheet-2", SignalHidden)

	if got := first.recorded(); len(got) != 1 || got[0] != SignalUserSave {
		t.Fatalf("unexpected signals for sheet-1: %v", got)
	}
	if got := second.recorded(); len(got) != 1 || got[0] != SignalHidden {
		t.Fatalf("unexpected signals for sheet-2: %v", got)
	}
}

func TestDispatcherBroadcastReachesAll(t *testing.T) {
	dispatcher := NewLifecycleDispatcher()
	first := &signalRecorder{}
	second := &signalRecorder{}
	dispatcher.Subscribe("sheet-1", first.handle)
	dispatcher.Subscribe("sheet-2", second.handle)

	dispatcher.Broadcast(SignalTeardown)

	for name, recorder := range map[string]*signalRecorder{"first": first, "second": second} {
		got := recorder.recorded()
		if len(got) != 1 || got[0] != SignalTeardown {
			t.Fatalf("%s subscriber missed broadcast: %v", name, got)
		}
	}
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	dispatcher := NewLifecycleDispatcher()
	recorder := &signalRecorder{}
	cancel := dispatcher.Subscribe("sheet-1", recorder.handle)

	dispatcher.Publish("sheet-1", SignalUserSave)
	cancel()
	dispatcher.Publish("sheet-1", SignalHidden)
	dispatcher.Broadcast(SignalTeardown)

	if got := recorder.recorded(); len(got) != 1 || got[0] != SignalUserSave {
		t.Fatalf("expected delivery to stop after cancel, got %v", got)
	}
}
