package fastmutex

// waiter is the intrusive FIFO node parked goroutines are linked
// through. The idiomatic Go translation of "park until woken" is a
// single-slot channel, which is what wakeCh is here — the goroutine
// equivalent of the binary semaphore the nsync waiter in the example
// pack uses (see vanadium-go.lib nsync's waiter.sem).
//
// next/tail form a singly linked list with the tail cached on the head
// node only, so appends stay O(1) without walking the list.
type waiter struct {
	next *waiter
	tail *waiter // valid only on the head of the list

	wakeCh chan struct{}
}

func newWaiter() *waiter {
	return &waiter{wakeCh: make(chan struct{}, 1)}
}

// park blocks the caller until wake is called on this waiter.
func (w *waiter) park() {
	<-w.wakeCh
}

// wake releases a single parked goroutine. Safe to call exactly once per
// park.
func (w *waiter) wake() {
	w.wakeCh <- struct{}{}
}
