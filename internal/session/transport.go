package session

import (
	"context"
	"iter"

	"github.com/dgnsrekt/promptdj/internal/lyria"
)

// Transport is an open connection to the music service. Sends are best
// effort: callers log failures and move on.
type Transport interface {
	Play() error
	Pause() error
	Stop() error
	ResetContext() error
	SetWeightedPrompts(prompts []lyria.WeightedPrompt) error
	SetMusicGenerationConfig(cfg *lyria.MusicGenerationConfig) error
	Messages() iter.Seq2[*lyria.ServerMessage, error]
	BytesReceived() int64
	Close() error
}

// Dialer opens a Transport. Every call must mint fresh credentials.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// LyriaDialer adapts a lyria.Dialer.
func LyriaDialer(d *lyria.Dialer) Dialer {
	return DialerFunc(func(ctx context.Context) (Transport, error) {
		c, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

var _ Transport = (*lyria.Conn)(nil)
