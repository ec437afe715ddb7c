package ports

import "context"

// SignalChannel is the bidirectional message channel a signaling session runs
// over. Implementations deliver raw payloads in arrival order; Recv returns
// an error once the channel is closed or broken.
type SignalChannel interface {
	Send(ctx context.Context, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// SignalDialer opens a SignalChannel to a signaling server URL.
type SignalDialer interface {
	Dial(ctx context.Context, url string) (SignalChannel, error)
}
