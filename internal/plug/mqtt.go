package plug

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTimeout bounds connect, publish and reply waits when none is configured.
const DefaultTimeout = 5 * time.Second

// mqttClient is the subset of paho.Client the plug uses.
type mqttClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// MQTTPlug drives a Tasmota-style smart plug. Commands go to
// cmnd/<topic>/POWER and the plug answers on stat/<topic>/POWER.
type MQTTPlug struct {
	broker   string
	topic    string
	clientID string
	timeout  time.Duration

	newClient func(*paho.ClientOptions) mqttClient

	mu      sync.Mutex
	client  mqttClient
	replies chan bool
}

// NewMQTTPlug creates a plug for the device topic on the given broker.
// No connection is made until Initialize.
func NewMQTTPlug(broker, topic, clientID string, timeout time.Duration) *MQTTPlug {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &MQTTPlug{
		broker:   broker,
		topic:    topic,
		clientID: clientID,
		timeout:  timeout,
		newClient: func(o *paho.ClientOptions) mqttClient {
			return paho.NewClient(o)
		},
		replies: make(chan bool, 1),
	}
}

func (p *MQTTPlug) commandTopic() string { return "cmnd/" + p.topic + "/POWER" }
func (p *MQTTPlug) statusTopic() string  { return "stat/" + p.topic + "/POWER" }

// Initialize drops any existing session and connects afresh.
// Auto-reconnect is off: reconnection is driven by the caller's retry policy.
func (p *MQTTPlug) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}

	opts := paho.NewClientOptions().
		AddBroker(p.broker).
		SetClientID(p.clientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(p.timeout)

	client := p.newClient(opts)
	if err := p.wait(ctx, client.Connect(), "connect"); err != nil {
		return err
	}

	if err := p.wait(ctx, client.Subscribe(p.statusTopic(), 1, p.onStatus), "subscribe"); err != nil {
		client.Disconnect(250)
		return err
	}

	p.client = client
	return nil
}

func (p *MQTTPlug) onStatus(_ paho.Client, msg paho.Message) {
	on, ok := parsePower(msg.Payload())
	if !ok {
		return
	}
	// Keep only the newest reply.
	select {
	case <-p.replies:
	default:
	}
	select {
	case p.replies <- on:
	default:
	}
}

func parsePower(payload []byte) (bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "ON", "1":
		return true, true
	case "OFF", "0":
		return false, true
	}
	return false, false
}

// PowerState asks the plug for its current state.
func (p *MQTTPlug) PowerState(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.request(ctx, "")
}

// SetPower switches the plug and checks the reported state.
func (p *MQTTPlug) SetPower(ctx context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	got, err := p.request(ctx, StateString(on))
	if err != nil {
		return err
	}
	if got != on {
		return fmt.Errorf("%w: plug %s reported %s after %s", ErrConnection, p.topic, StateString(got), StateString(on))
	}
	return nil
}

// request publishes payload on the command topic and waits for the status reply.
// An empty payload is a query.
func (p *MQTTPlug) request(ctx context.Context, payload string) (bool, error) {
	if p.client == nil || !p.client.IsConnected() {
		return false, fmt.Errorf("%w: plug %s not connected", ErrConnection, p.topic)
	}

	select {
	case <-p.replies:
	default:
	}

	if err := p.wait(ctx, p.client.Publish(p.commandTopic(), 1, false, payload), "publish"); err != nil {
		return false, err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case on := <-p.replies:
		return on, nil
	case <-timer.C:
		return false, fmt.Errorf("%w: no reply from plug %s within %v", ErrConnection, p.topic, p.timeout)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *MQTTPlug) wait(ctx context.Context, token paho.Token, what string) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w: %s timeout (%s)", ErrConnection, what, p.broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnection, what, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPlug) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(1000)
		p.client = nil
	}
	return nil
}
