package lyria

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

type messageOrError struct {
	msg *ServerMessage
	err error
}

// Conn is an open music session. Sends are safe for concurrent use.
type Conn struct {
	ws     *websocket.Conn
	logger *log.Logger

	mu        sync.Mutex
	closeCh   chan struct{}
	msgCh     chan messageOrError
	closeOnce sync.Once

	// broken is set once the read side has failed; Close then skips the
	// close handshake.
	broken atomic.Bool
	bytes  atomic.Int64
}

func newConn(ws *websocket.Conn, logger *log.Logger) *Conn {
	c := &Conn{
		ws:      ws,
		logger:  logger,
		closeCh: make(chan struct{}),
		msgCh:   make(chan messageOrError, 64),
	}
	go c.readLoop()
	return c
}

// SetWeightedPrompts replaces the prompts steering generation.
func (c *Conn) SetWeightedPrompts(prompts []WeightedPrompt) error {
	return c.send(clientMessage{ClientContent: &clientContent{WeightedPrompts: prompts}})
}

// SetMusicGenerationConfig updates generator settings.
func (c *Conn) SetMusicGenerationConfig(cfg *MusicGenerationConfig) error {
	if cfg == nil {
		return errors.New("lyria: nil music generation config")
	}
	return c.send(clientMessage{MusicGenerationConfig: cfg})
}

// Play starts or resumes generation.
func (c *Conn) Play() error { return c.control(ControlPlay) }

// Pause pauses generation.
func (c *Conn) Pause() error { return c.control(ControlPause) }

// Stop stops generation.
func (c *Conn) Stop() error { return c.control(ControlStop) }

// ResetContext discards generation history so new prompts take effect from
// a clean slate.
func (c *Conn) ResetContext() error { return c.control(ControlResetContext) }

func (c *Conn) control(pc PlaybackControl) error {
	return c.send(clientMessage{PlaybackControl: pc})
}

// BytesReceived returns the total payload received so far.
func (c *Conn) BytesReceived() int64 {
	return c.bytes.Load()
}

// Messages returns an iterator over server messages. Iteration ends after
// the first error or once the connection is closed.
func (c *Conn) Messages() iter.Seq2[*ServerMessage, error] {
	return func(yield func(*ServerMessage, error) bool) {
		for {
			select {
			case <-c.closeCh:
				return
			case item, ok := <-c.msgCh:
				if !ok {
					return
				}
				if !yield(item.msg, item.err) {
					return
				}
				if item.err != nil {
					return
				}
			}
		}
	}
}

// Close closes the connection. When the peer is still reachable a close
// frame is sent first.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if !c.broken.Load() {
			c.mu.Lock()
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.mu.Unlock()
		}
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) send(msg clientMessage) error {
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}
	if c.broken.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.logger.GetLevel() <= log.DebugLevel {
		if b, err := json.Marshal(msg); err == nil {
			s := string(b)
			if len(s) > 500 {
				s = s[:500] + "..."
			}
			c.logger.Debug("Sending message", "content", s)
		}
	}

	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("lyria: write: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.msgCh)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.broken.Store(true)
			select {
			case <-c.closeCh:
			case c.msgCh <- messageOrError{err: readError(err)}:
			}
			return
		}
		c.bytes.Add(int64(len(data)))

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Dropping malformed message", "error", err, "len", len(data))
			continue
		}

		select {
		case <-c.closeCh:
			return
		case c.msgCh <- messageOrError{msg: &msg}:
		}
	}
}

func readError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &Error{Code: "closed", Message: fmt.Sprintf("server closed connection: %d %s", ce.Code, ce.Text), Cause: err}
	}
	return &Error{Code: "read_failed", Message: err.Error(), Cause: err}
}
