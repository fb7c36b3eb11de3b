// Package fastmutex implements a waiter-queue mutex and condition
// variable: a lock-free fast path guarded by a single atomic word,
// falling back to an intrusive FIFO of parked waiters under contention.
// The bit layout and slow-path protocol are grounded on the nsync Mu/CV
// implementation found in the example pack (vanadium-go.lib's nsync
// package: a single atomic word carrying lock and spinlock bits,
// CAS-based acquire/release, spin-then-park slow path), adapted to pack
// the waiter queue's head pointer directly into the unused high bits of
// the word instead of keeping a side-table list like nsync does.
package fastmutex

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	lockedBit = uint64(1) << 0
	latchBit  = uint64(1) << 1
	ptrShift  = 2

	spinIterations = 40
	spinMaxBackoff = 100 * time.Microsecond
)

// Mutex is a fast, waiter-queue mutex. Its zero value is unlocked and
// ready to use. Mutex satisfies sync.Locker.
type Mutex struct {
	// w packs, from low to high bit: locked (bit 0), queue-latch (bit
	// 1), and the head *waiter pointer (bits 2..63). Pointer alignment
	// of >=4 bytes is required so the low two bits stay free for flags;
	// every Go heap allocation of a pointer-containing struct satisfies
	// this on all supported architectures.
	w uint64
}

func packPtr(p *waiter) uint64 {
	return uint64(uintptr(unsafe.Pointer(p)))
}

func unpackPtr(word uint64) *waiter {
	return (*waiter)(unsafe.Pointer(uintptr(word >> ptrShift << ptrShift)))
}

func headOf(word uint64) *waiter {
	return unpackPtr(word &^ (lockedBit | latchBit))
}

// unpackShift is the same pointer-in-word trick used by Mutex.w, but
// with a single reserved flag bit instead of two — used by Cond's queue
// word (cond.go), which has no "locked" concept. Packing reuses packPtr
// directly since pointer alignment already guarantees the low bit is
// clear.
func unpackShift(word uint64) *waiter {
	return (*waiter)(unsafe.Pointer(uintptr(word >> condPtrShift << condPtrShift)))
}

// Lock acquires the mutex, blocking until it is available.
func (m *Mutex) Lock() {
	if atomic.CompareAndSwapUint64(&m.w, 0, lockedBit) {
		return
	}
	m.lockSlow()
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool {
	if atomic.CompareAndSwapUint64(&m.w, 0, lockedBit) {
		return true
	}
	old := atomic.LoadUint64(&m.w)
	return old&lockedBit == 0 && atomic.CompareAndSwapUint64(&m.w, old, old|lockedBit)
}

func (m *Mutex) lockSlow() {
	for {
		// Bounded spin with ramping back-off before parking.
		backoff := time.Microsecond
		for i := 0; i < spinIterations; i++ {
			old := atomic.LoadUint64(&m.w)
			if old&lockedBit == 0 {
				if atomic.CompareAndSwapUint64(&m.w, old, old|lockedBit) {
					return
				}
				continue
			}
			time.Sleep(backoff)
			if backoff < spinMaxBackoff {
				backoff *= 2
				if backoff > spinMaxBackoff {
					backoff = spinMaxBackoff
				}
			}
		}

		// Still contended: latch the waiter queue and enqueue
		// ourselves.
		me := newWaiter()
		var newHead *waiter
		for {
			old := atomic.LoadUint64(&m.w)
			if old&latchBit != 0 {
				runtime.Gosched()
				continue
			}
			if !atomic.CompareAndSwapUint64(&m.w, old, old|latchBit) {
				continue
			}
			// Latch acquired. old still holds the pre-latch word:
			// lock bit + previous head pointer.
			head := headOf(old)
			if head == nil {
				me.tail = me
				newHead = me
			} else {
				head.tail.next = me
				head.tail = me
				newHead = head
			}
			newWord := (old & lockedBit) | packPtr(newHead)
			atomic.StoreUint64(&m.w, newWord) // release write, clears latch
			break
		}

		me.park()
		// Re-check from the top: a woken waiter does not inherit the
		// lock directly, it re-competes for it like any new caller.
	}
}

// Unlock releases the mutex, waking one waiter if any are queued. It is
// a programming error to Unlock a mutex not held by the caller.
func (m *Mutex) Unlock() {
	if atomic.CompareAndSwapUint64(&m.w, lockedBit, 0) {
		return
	}
	m.unlockSlow()
}

func (m *Mutex) unlockSlow() {
	for {
		old := atomic.LoadUint64(&m.w)
		if old&latchBit != 0 {
			runtime.Gosched()
			continue
		}
		if !atomic.CompareAndSwapUint64(&m.w, old, old|latchBit) {
			continue
		}
		head := headOf(old)
		var popped *waiter
		var newWord uint64
		if head == nil {
			newWord = 0
		} else {
			popped = head
			next := head.next
			if next != nil {
				next.tail = head.tail
			}
			head.next = nil
			head.tail = nil
			newWord = packPtr(next)
		}
		// Single release write clears both the locked bit and the
		// latch — a subsequent Lock() may now succeed even before the
		// popped waiter runs again.
		atomic.StoreUint64(&m.w, newWord)
		if popped != nil {
			popped.wake()
		}
		return
	}
}
