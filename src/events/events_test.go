package events

import (
	"bytes"
	"io/ioutil"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(common.NewTestEntry(t, common.TestLogLevel))

	var mu sync.Mutex
	got := map[string]int{}

	for _, name := range []string{"a", "b"} {
		name := name
		bus.Attach(SinkFunc(func(e Event) {
			mu.Lock()
			got[name]++
			mu.Unlock()
		}))
	}

	for i := 0; i < 10; i++ {
		bus.Notify(New(MessageDelivered, "n1"))
	}
	bus.Close()

	if got["a"] != 10 || got["b"] != 10 {
		t.Fatalf("each sink should receive 10 events, got %v", got)
	}
}

func TestBusPanicIsolated(t *testing.T) {
	bus := NewBus(common.NewTestEntry(t, common.TestLogLevel))

	count := 0
	bus.Attach(SinkFunc(func(e Event) {
		if e.Type == AckSent {
			panic("boom")
		}
		count++
	}))

	bus.Notify(New(AckSent, "n1"))
	bus.Notify(New(NackSent, "n1"))
	bus.Close()

	if count != 1 {
		t.Fatalf("the sink should survive the panic and count 1 event, not %d", count)
	}
}

func TestBusNeverBlocks(t *testing.T) {
	bus := NewBus(common.NewTestEntry(t, common.TestLogLevel))

	release := make(chan struct{})
	bus.Attach(SinkFunc(func(e Event) {
		<-release
	}))

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*4; i++ {
			bus.Notify(New(MessageResent, "n1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Notify blocked on a slow sink")
	}

	close(release)
	bus.Close()
}

func TestBusSubscribe(t *testing.T) {
	bus := NewBus(common.NewTestEntry(t, common.TestLogLevel))
	ch := bus.Subscribe()

	bus.Notify(New(StateChanged, "n1"))

	select {
	case e := <-ch:
		if e.Type != StateChanged {
			t.Fatalf("expected state_changed, got %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout")
	}
	bus.Close()
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.Out = &buf
	logger.Formatter = &logrus.TextFormatter{DisableTimestamp: true}

	sink := NewLogSink(logrus.NewEntry(logger), logrus.InfoLevel)

	e := New(RetryExhausted, "n1")
	e.MessageID = "n1-1-1000"
	e.Attempt = 3
	sink.Notify(e)

	out := buf.String()
	for _, s := range []string{"retry_exhausted", "message_id=n1-1-1000", "attempt=3"} {
		if !strings.Contains(out, s) {
			t.Fatalf("log line should contain %q: %s", s, out)
		}
	}
}

func TestMetricsSink(t *testing.T) {
	m := NewMetricsSink()

	m.Notify(New(MessageDelivered, "n1"))
	m.Notify(New(MessageDelivered, "n1"))
	m.Notify(New(AckSent, "n1"))
	m.Notify(New(MessageDelivered, "n2"))

	if c := m.Count("n1", MessageDelivered); c != 2 {
		t.Fatalf("n1 should have 2 deliveries, not %d", c)
	}
	if c := m.Count("n2", AckSent); c != 0 {
		t.Fatalf("n2 should have no acks, not %d", c)
	}

	report := m.Report()
	if !strings.Contains(report, "node n1") || !strings.Contains(report, "message_delivered") {
		t.Fatalf("unexpected report:\n%s", report)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := ioutil.ReadAll(rec.Body)

	expected := `murmur_events_total{event="message_delivered",node="n1"} 2`
	if !strings.Contains(string(body), expected) {
		t.Fatalf("metrics should contain %s:\n%s", expected, body)
	}
}
