package core

// Bus is a change-notification channel. A signal carries no payload;
// consumers re-read the kernel's exposed collections after each signal
// (pull-based sync). Notify never blocks: if a signal is already pending
// the new one coalesces into it.
type Bus struct {
	ch chan struct{}
}

// NewBus creates a bus with a single pending-signal slot.
func NewBus() *Bus {
	return &Bus{ch: make(chan struct{}, 1)}
}

// Notify emits a change signal without blocking.
func (b *Bus) Notify() {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

// Changes returns the signal channel.
func (b *Bus) Changes() <-chan struct{} {
	return b.ch
}
