// Package broadcast provides type-safe in-process fan-out of messages to many
// subscribers.
//
// Broadcast never blocks on a slow subscriber. When a subscriber's buffer is
// full the message is dropped for it and counted; with the EvictSubscriber
// policy the subscriber is also closed so a stalled stream does not linger.
//
// Basic usage:
//
//	b := broadcast.NewMemoryBroadcaster[string](broadcast.WithBufferSize(32))
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, broadcast.Message[string]{Data: "hello"})
//
//	for msg := range sub.Receive(ctx) {
//		fmt.Println(msg.Data)
//	}
//
// A subscriber is removed when its context is cancelled, when it is closed,
// or when the broadcaster is closed.
package broadcast
