package server

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/SritejBommaraju/mini-redis/internal/resp"
)

// pubsub maps channel names to subscriber sets. Delivery happens inline
// on the publisher's goroutine; each subscriber's connection write lock
// keeps pushed messages from interleaving with its own replies.
type pubsub struct {
	channels *xsync.MapOf[string, *xsync.MapOf[uint64, *client]]
}

func newPubSub() *pubsub {
	return &pubsub{
		channels: xsync.NewMapOf[string, *xsync.MapOf[uint64, *client]](),
	}
}

func (p *pubsub) subscribe(channel string, cl *client) {
	subs, _ := p.channels.LoadOrCompute(channel, func() *xsync.MapOf[uint64, *client] {
		return xsync.NewMapOf[uint64, *client]()
	})
	subs.Store(cl.id, cl)
	cl.channels[channel] = struct{}{}
}

// publish delivers [channel, message] to every subscriber and returns
// the subscriber count. A subscriber whose write fails is skipped; its
// own read loop will notice the dead connection and tear it down.
func (p *pubsub) publish(channel string, message []byte) int {
	subs, found := p.channels.Load(channel)
	if !found {
		return 0
	}
	payload := resp.Array([][]byte{[]byte(channel), message})
	count := 0
	subs.Range(func(_ uint64, cl *client) bool {
		count++
		_ = cl.send(payload)
		return true
	})
	return count
}

// unsubscribeAll removes cl from every channel it joined, called when
// its connection closes.
func (p *pubsub) unsubscribeAll(cl *client) {
	for channel := range cl.channels {
		if subs, found := p.channels.Load(channel); found {
			subs.Delete(cl.id)
		}
	}
	cl.channels = nil
}
