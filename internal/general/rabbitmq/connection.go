package rabbitmq

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridemarket/internal/general/config"
	"ridemarket/internal/general/logger"
)

// Client is a resilient RabbitMQ connector with auto-reconnect and topology
// setup. Publishing goes through one confirm-mode channel; consumers open
// their own channels.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // context for logging (without cancel)

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	pubMu       sync.Mutex
	pubConfirms chan amqp.Confirmation

	closed    chan struct{}
	reconnect chan struct{}
}

// Connected reports whether a connection is currently open.
func (client *Client) Connected() bool {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.conn != nil && !client.conn.IsClosed()
}

// Reconnect and consumer restart delays.
const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

func nextBackoff(d time.Duration) time.Duration {
	return min(2*d, maxBackoff)
}

// ConnectRabbitMQ dials once and declares the topology. Later failures are
// handled by a background reconnect loop.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Client, error) {
	u := &url.URL{
		Scheme: "amqp",
		Host:   net.JoinHostPort(cfg.RabbitMQ.Host, strconv.Itoa(cfg.RabbitMQ.Port)),
		User:   url.UserPassword(cfg.RabbitMQ.User, cfg.RabbitMQ.Password),
		Path:   "/",
	}
	client := &Client{
		url:       u.String(),
		logger:    logger,
		logCtx:    context.WithoutCancel(ctx),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}
	if err := client.connectOnce(); err != nil {
		return nil, err
	}
	go client.watch()
	return client, nil
}

// Close stops reconnecting and releases the connection. Publishers waiting
// on a confirm are released too.
func (client *Client) Close() {
	select {
	case <-client.closed:
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()

	client.pubMu.Lock()
	if client.pubConfirms != nil {
		close(client.pubConfirms)
		client.pubConfirms = nil
	}
	client.pubMu.Unlock()
}

func (client *Client) connectOnce() error {
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(30 * time.Second),
		Properties: amqp.Table{"connection_name": "ridemarket"},
	})
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := client.openPublisher(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	client.mu.Lock()
	if client.pubChan != nil && !client.pubChan.IsClosed() {
		_ = client.pubChan.Close()
	}
	client.conn, client.pubChan = conn, ch
	client.mu.Unlock()

	go client.signalOnClose(conn, ch)
	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connected", nil)
	return nil
}

// openPublisher opens the confirm-mode channel, declares the topology on it
// and swaps in its confirm stream.
func (client *Client) openPublisher(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_open_channel_failed", "Failed to open RabbitMQ channel", err, nil)
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		client.logger.Error(client.logCtx, "rabbitmq_declare_topology_failed", "Failed to declare RabbitMQ topology", err, nil)
		return nil, fmt.Errorf("rabbitmq: declare topology: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		client.logger.Error(client.logCtx, "rabbitmq_enable_confirms_failed", "Failed to enable publisher confirms", err, nil)
		return nil, fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	client.pubMu.Lock()
	stale := client.pubConfirms
	client.pubConfirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	client.pubMu.Unlock()
	if stale != nil {
		close(stale)
	}

	go client.logReturns(ch.NotifyReturn(make(chan amqp.Return, 1)))
	return ch, nil
}

// logReturns reports mandatory publishes no queue accepted.
func (client *Client) logReturns(returns <-chan amqp.Return) {
	for r := range returns {
		client.logger.Error(client.logCtx, "rabbitmq_returned", "Unroutable message returned",
			fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
			map[string]any{"exchange": r.Exchange, "routing_key": r.RoutingKey, "size": len(r.Body)},
		)
	}
}

// signalOnClose asks watch to reconnect once conn or ch goes away.
func (client *Client) signalOnClose(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case <-client.closed:
		return
	case <-connClosed:
	case <-chClosed:
	}
	select {
	case client.reconnect <- struct{}{}:
	default:
	}
}

// watch reconnects after every close signal until Close is called.
func (client *Client) watch() {
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
		}
		if !client.redial() {
			return
		}
	}
}

// redial retries connectOnce with backoff. It reports false if the client
// was closed first.
func (client *Client) redial() bool {
	backoff := minBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-client.closed:
			return false
		default:
		}
		err := client.connectOnce()
		if err == nil {
			client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ", map[string]any{"attempts": attempt})
			return true
		}
		client.logger.Warn(client.logCtx, "rabbitmq_reconnect_failed", "Reconnect failed", err, map[string]any{
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
		})
		select {
		case <-client.closed:
			return false
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}
