package discovery

import "sync"

// notifier runs callbacks one at a time in submission order, off the
// caller's goroutine. Its goroutine exits whenever the queue drains.
type notifier struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	idle    *sync.Cond
}

func newNotifier() *notifier {
	n := &notifier{}
	n.idle = sync.NewCond(&n.mu)
	return n
}

func (n *notifier) post(f func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.queue = append(n.queue, f)
	if !n.running {
		n.running = true
		go n.drain()
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.running = false
			n.idle.Broadcast()
			n.mu.Unlock()
			return
		}
		f := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()

		f()
	}
}

// wait blocks until every posted callback has run.
func (n *notifier) wait() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for n.running {
		n.idle.Wait()
	}
}
