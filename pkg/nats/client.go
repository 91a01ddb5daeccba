package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
)

// Base subject constants (without prefix)
const (
	baseSubjectBuildStatusChanged = "build.status.changed"
	baseSubjectBuildLog           = "build.log"
	baseSubjectBuildLogEnd        = "build.log.end"
	baseSubjectWorkerControl      = "worker.control"
)

// Client publishes build events and serves the worker control subject
type Client struct {
	conn   *nats.Conn
	logger hclog.Logger
	prefix string // Stream prefix for namespace isolation (e.g., "cs" -> "cs.build.log.<id>")
}

// NewClientWithPrefix connects to servers. With a non-empty nkeySeed the connection is
// authenticated with that NKey; the prefix namespaces every subject.
func NewClientWithPrefix(servers string, nkeySeed string, prefix string, logger hclog.Logger) (*Client, error) {
	if logger == nil {
		logger = hclog.Default()
	}
	logger = logger.Named("nats")

	opts := []nats.Option{
		nats.Name("deploy-worker"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	if nkeySeed != "" {
		opt, err := nkeyOption(nkeySeed)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}

	nc, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", "servers", servers, "prefix", prefix)

	return &Client{
		conn:   nc,
		logger: logger,
		prefix: prefix,
	}, nil
}

func nkeyOption(seed string) (nats.Option, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("failed to parse NKey seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	return nats.Nkey(pub, func(nonce []byte) ([]byte, error) {
		sig, err := kp.Sign(nonce)
		if err != nil {
			return nil, fmt.Errorf("failed to sign nonce: %w", err)
		}
		return sig, nil
	}), nil
}

// withPrefix adds the stream prefix to a subject if prefix is set
func (c *Client) withPrefix(subject string) string {
	return prefixed(c.prefix, subject)
}

func prefixed(prefix, subject string) string {
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}

// ControlSubject is the request subject the worker answers control messages on
func (c *Client) ControlSubject() string {
	return c.withPrefix(baseSubjectWorkerControl)
}

// PublishBuildLog publishes one build log line on build.log.<buildId>
func (c *Client) PublishBuildLog(payload BuildLogPayload) error {
	subject := fmt.Sprintf("%s.%s", c.withPrefix(baseSubjectBuildLog), payload.BuildID)
	return c.publish(subject, payload)
}

// PublishBuildLogEnd signals end of build logs for a build
func (c *Client) PublishBuildLogEnd(payload BuildLogEndPayload) error {
	subject := fmt.Sprintf("%s.%s", c.withPrefix(baseSubjectBuildLogEnd), payload.BuildID)
	return c.publish(subject, payload)
}

// PublishBuildStatus publishes a build status change
func (c *Client) PublishBuildStatus(payload BuildStatusPayload) error {
	if payload.Timestamp == 0 {
		payload.Timestamp = time.Now().UnixMilli()
	}
	return c.publish(c.withPrefix(baseSubjectBuildStatusChanged), payload)
}

// publish is a helper function to publish events to NATS JetStream
func (c *Client) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	js, err := c.conn.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if _, err := js.Publish(subject, data); err != nil {
		c.logger.Error("Failed to publish event", "subject", subject, "error", err)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	// Flush failure is not fatal: JetStream already acknowledged the message
	if err := c.conn.Flush(); err != nil {
		c.logger.Warn("Failed to flush NATS connection", "subject", subject, "error", err)
	}

	c.logger.Trace("Published event", "subject", subject)
	return nil
}

// ServeControl answers requests on the control subject with handler's reply.
// A nil reply sends nothing back.
func (c *Client) ServeControl(handler func(data []byte) []byte) (*nats.Subscription, error) {
	subject := c.ControlSubject()
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		reply := handler(msg.Data)
		if reply == nil || msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			c.logger.Warn("Failed to answer control message", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.logger.Info("Serving control messages", "subject", subject)
	return sub, nil
}

// Close closes the NATS connection
// Drain() automatically flushes any pending messages before closing
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Drain()
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
	return nil
}
