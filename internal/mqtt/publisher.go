// Package mqtt publishes controller events to an MQTT broker, buffering
// them while the broker is unreachable.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/fridge-controller/internal/events"
	"github.com/sweeney/fridge-controller/internal/logger"
)

// DefaultTopic is used when no events topic is configured.
const DefaultTopic = "home/fridge/controller/events"

// bufferSize is how many events are kept while disconnected.
const bufferSize = 256

const publishTimeout = 5 * time.Second

// client is the subset of paho.Client the publisher uses.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher sends events to a broker topic.
type Publisher struct {
	client client
	topic  string
	log    *logger.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewPublisher connects to broker and returns a publisher for topic.
// The connection is retried in the background; events published before it
// comes up are buffered and replayed on connect.
func NewPublisher(broker, clientID, topic string, log *logger.Logger) (*Publisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	p := &Publisher{topic: topic, log: log.Named("mqtt"), buf: newRingBuffer(bufferSize)}

	will, err := events.FormatPayload(events.Event{
		Type:      events.TypeShutdown,
		Timestamp: time.Now(),
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(topic, string(will), 1, false).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnw("connection lost", "broker", broker, "err", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warnw("broker not reachable yet, buffering events", "broker", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(c client, topic string, log *logger.Logger) *Publisher {
	return &Publisher{client: c, topic: topic, log: log, buf: newRingBuffer(bufferSize)}
}

// Publish sends the event, or buffers it while disconnected.
// STARTUP and SHUTDOWN are sent QoS 1; everything else QoS 0.
func (p *Publisher) Publish(event events.Event) error {
	payload, err := events.FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	msg := bufferedMsg{payload: payload, retained: event.Retained}
	if event.Type == events.TypeStartup || event.Type == events.TypeShutdown {
		msg.qos = 1
	}

	if !p.client.IsConnected() {
		p.enqueue(msg)
		return nil
	}
	if err := p.send(msg); err != nil {
		p.enqueue(msg)
		return err
	}
	return nil
}

func (p *Publisher) send(msg bufferedMsg) error {
	token := p.client.Publish(p.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *Publisher) enqueue(msg bufferedMsg) {
	p.mu.Lock()
	dropped := p.buf.push(msg)
	p.mu.Unlock()
	if dropped {
		p.log.Warnw("event buffer full, dropping oldest", "capacity", bufferSize)
	}
}

// flush replays buffered events after (re)connection.
func (p *Publisher) flush() {
	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	p.log.Infow("replaying buffered events", "count", len(pending))
	for i, msg := range pending {
		if err := p.send(msg); err != nil {
			p.log.Warnw("replay failed, re-buffering", "remaining", len(pending)-i, "err", err)
			for _, m := range pending[i:] {
				p.enqueue(m)
			}
			return
		}
	}
}

// Buffered returns how many events await replay.
func (p *Publisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
