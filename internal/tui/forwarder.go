package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sternrassler/crm-client/pkg/collection"
)

// stateMsg carries a controller snapshot into the program.
type stateMsg[T any] struct {
	state collection.State[T]
}

// forwarder hands controller snapshots to the event loop without ever
// blocking the controller. Only the newest pending snapshot is kept.
type forwarder[T any] struct {
	mu     sync.Mutex
	latest collection.State[T]
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newForwarder[T any]() *forwarder[T] {
	return &forwarder[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (f *forwarder[T]) push(s collection.State[T]) {
	f.mu.Lock()
	f.latest = s
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// wait returns a command that resolves with the next snapshot.
func (f *forwarder[T]) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-f.signal:
		case <-f.done:
			return nil
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		return stateMsg[T]{state: f.latest}
	}
}

func (f *forwarder[T]) stop() {
	f.once.Do(func() { close(f.done) })
}
