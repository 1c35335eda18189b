package audio

import (
	"sync"
	"time"

	"github.com/dgnsrekt/promptdj/internal/pcm"
)

// NullOutput renders the timeline in real time and throws the samples
// away. It keeps the playback clock honest on machines without a sound
// device.
type NullOutput struct {
	*Timeline

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewNullOutput starts a silent output pulling one block per tick.
func NewNullOutput(f pcm.Format, tick time.Duration) *NullOutput {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	n := &NullOutput{
		Timeline: NewTimeline(f),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go n.run(tick)
	return n
}

func (n *NullOutput) run(tick time.Duration) {
	defer close(n.done)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	block := make([]byte, n.format.FrameSize()*int(int64(n.format.SampleRate)*int64(tick)/int64(time.Second)))
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			_, _ = n.Timeline.Read(block)
		}
	}
}

// Close stops the render goroutine.
func (n *NullOutput) Close() error {
	n.once.Do(func() { close(n.stop) })
	<-n.done
	return nil
}
