package lyria

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	// DefaultEndpoint is the public Gemini API websocket host.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com"

	// DefaultAPIVersion is the API version serving realtime music.
	DefaultAPIVersion = "v1alpha"

	// DefaultModel is the realtime music model.
	DefaultModel = "lyria-realtime-exp"

	methodPath = "/ws/google.ai.generativelanguage.%s.GenerativeService.BidiGenerateMusic"
)

type dialerConfig struct {
	endpoint         string
	apiVersion       string
	model            string
	handshakeTimeout time.Duration
	logger           *log.Logger
}

// Option configures a Dialer.
type Option func(*dialerConfig)

// WithEndpoint overrides the websocket base URL (scheme and host).
func WithEndpoint(endpoint string) Option {
	return func(c *dialerConfig) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithAPIVersion sets the API version in the method path.
func WithAPIVersion(v string) Option {
	return func(c *dialerConfig) {
		c.apiVersion = v
	}
}

// WithModel sets the model requested during setup.
func WithModel(model string) Option {
	return func(c *dialerConfig) {
		c.model = model
	}
}

// WithHandshakeTimeout bounds the websocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *dialerConfig) {
		c.handshakeTimeout = d
	}
}

// WithLogger sets the logger used for wire debugging.
func WithLogger(l *log.Logger) Option {
	return func(c *dialerConfig) {
		c.logger = l
	}
}

// Dialer opens connections to the music service. Each Dial mints a new
// credential.
type Dialer struct {
	minter Minter
	config dialerConfig
}

// NewDialer returns a dialer authenticating with minter.
func NewDialer(minter Minter, opts ...Option) *Dialer {
	cfg := dialerConfig{
		endpoint:         DefaultEndpoint,
		apiVersion:       DefaultAPIVersion,
		model:            DefaultModel,
		handshakeTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.Default().WithPrefix("lyria")
	}
	return &Dialer{minter: minter, config: cfg}
}

// URL returns the websocket URL for cred.
func (d *Dialer) URL(cred Credential) string {
	q := url.Values{}
	if cred.Ephemeral {
		q.Set("access_token", cred.Value)
	} else {
		q.Set("key", cred.Value)
	}
	return d.config.endpoint + fmt.Sprintf(methodPath, d.config.apiVersion) + "?" + q.Encode()
}

// Dial mints a credential, performs the websocket handshake and sends the
// setup message. The returned connection is usable at once; SetupComplete
// arrives later on Messages.
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	cred, err := d.minter.Mint(ctx)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.config.handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, resp, err := dialer.DialContext(ctx, d.URL(cred), nil)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("failed to connect: %v", err),
				HTTPStatus: resp.StatusCode,
				Cause:      err,
			}
		}
		return nil, &Error{Code: "connection_failed", Message: err.Error(), Cause: err}
	}

	conn := newConn(ws, d.config.logger)
	model := d.config.model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	if err := conn.send(clientMessage{Setup: &setup{Model: model}}); err != nil {
		conn.Close()
		return nil, &Error{Code: "setup_failed", Message: "failed to send setup", Cause: err}
	}

	d.config.logger.Debug("Connected", "model", model, "ephemeral", cred.Ephemeral)
	return conn, nil
}
