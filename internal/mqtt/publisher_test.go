package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/fridge-controller/internal/events"
	"github.com/sweeney/fridge-controller/internal/logger"
)

var _ events.Publisher = (*Publisher)(nil)
var _ events.ConnectionStatus = (*Publisher)(nil)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	sent       []sent
	closed     bool
}

func (c *fakeClient) Connect() paho.Token { return fakeToken{} }
func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return fakeToken{err: c.publishErr}
	}
	c.sent = append(c.sent, sent{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return fakeToken{}
}

func testEvent(t events.Type) events.Event {
	return events.New(t, time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
}

func TestPublishConnected(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newPublisher(c, "fridge/events", logger.Nop())

	if err := p.Publish(testEvent(events.TypeTick)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(c.sent) != 1 {
		t.Fatalf("sent: got %d, want 1", len(c.sent))
	}
	if c.sent[0].topic != "fridge/events" {
		t.Errorf("topic: got %s, want fridge/events", c.sent[0].topic)
	}
	if c.sent[0].qos != 0 {
		t.Errorf("tick qos: got %d, want 0", c.sent[0].qos)
	}

	var parsed events.Payload
	if err := json.Unmarshal(c.sent[0].payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Fridge.Event != "TICK" {
		t.Errorf("event: got %s, want TICK", parsed.Fridge.Event)
	}
}

func TestPublishLifecycleQoS(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newPublisher(c, "t", logger.Nop())

	startup := testEvent(events.TypeStartup)
	startup.Retained = true
	p.Publish(startup)
	p.Publish(testEvent(events.TypeShutdown))

	if c.sent[0].qos != 1 || !c.sent[0].retained {
		t.Errorf("startup: got qos %d retained %v, want 1 true", c.sent[0].qos, c.sent[0].retained)
	}
	if c.sent[1].qos != 1 {
		t.Errorf("shutdown qos: got %d, want 1", c.sent[1].qos)
	}
}

func TestPublishBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, "t", logger.Nop())

	for i := 0; i < 3; i++ {
		if err := p.Publish(testEvent(events.TypeTick)); err != nil {
			t.Fatalf("Publish while disconnected should buffer, got %v", err)
		}
	}
	if len(c.sent) != 0 {
		t.Errorf("nothing should be sent while disconnected, got %d", len(c.sent))
	}
	if p.Buffered() != 3 {
		t.Errorf("Buffered: got %d, want 3", p.Buffered())
	}

	c.connected = true
	p.flush()

	if len(c.sent) != 3 {
		t.Errorf("replayed: got %d, want 3", len(c.sent))
	}
	if p.Buffered() != 0 {
		t.Errorf("Buffered after flush: got %d, want 0", p.Buffered())
	}
}

func TestPublishErrorBuffers(t *testing.T) {
	c := &fakeClient{connected: true, publishErr: errors.New("broken pipe")}
	p := newPublisher(c, "t", logger.Nop())

	if err := p.Publish(testEvent(events.TypeCommand)); err == nil {
		t.Error("expected publish error")
	}
	if p.Buffered() != 1 {
		t.Errorf("failed event should be buffered, got %d", p.Buffered())
	}
}

func TestFlushRebuffersOnFailure(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, "t", logger.Nop())
	p.Publish(testEvent(events.TypeTick))
	p.Publish(testEvent(events.TypeTick))

	c.connected = true
	c.publishErr = errors.New("still down")
	p.flush()

	if p.Buffered() != 2 {
		t.Errorf("Buffered: got %d, want 2", p.Buffered())
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newPublisher(c, "t", logger.Nop())
	p.flush()
	if len(c.sent) != 0 {
		t.Errorf("sent: got %d, want 0", len(c.sent))
	}
}

func TestClose(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newPublisher(c, "t", logger.Nop())
	p.Close()
	if !c.closed {
		t.Error("expected Disconnect on Close")
	}
}
