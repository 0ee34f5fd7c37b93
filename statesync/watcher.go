package statesync

import (
	"sync"

	"go.dedis.ch/community/state"
)

// Event is the notification of a new state cached by a synchronizer.
type Event struct {
	ContractID string
	Snapshot   *state.Snapshot
}

// Observer is the interface to implement to watch the cached state.
type Observer interface {
	NotifyCallback(event Event)
}

// watcher keeps the observers of a synchronizer.
type watcher struct {
	sync.RWMutex

	observers map[Observer]struct{}
}

func newWatcher() *watcher {
	return &watcher{
		observers: make(map[Observer]struct{}),
	}
}

func (w *watcher) Add(observer Observer) {
	w.Lock()
	w.observers[observer] = struct{}{}
	w.Unlock()
}

func (w *watcher) Remove(observer Observer) {
	w.Lock()
	delete(w.observers, observer)
	w.Unlock()
}

// Notify notifies the whole list of observers one after each other.
func (w *watcher) Notify(event Event) {
	w.RLock()
	defer w.RUnlock()

	for obs := range w.observers {
		obs.NotifyCallback(event)
	}
}
