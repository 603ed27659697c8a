package failure

import (
	"context"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/message"
)

func testMessage(t *testing.T) message.Message {
	m, err := message.NewMessage("a", 1, "x")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNone(t *testing.T) {
	m := testMessage(t)
	for i := 0; i < 100; i++ {
		if !(None{}).Process(context.Background(), m) {
			t.Fatalf("None should never drop a message")
		}
	}
}

func TestOmissionBounds(t *testing.T) {
	m := testMessage(t)

	all := NewOmission(1.0)
	never := NewOmission(0)
	for i := 0; i < 1000; i++ {
		if all.Process(context.Background(), m) {
			t.Fatalf("Omission(1.0) should drop every message")
		}
		if !never.Process(context.Background(), m) {
			t.Fatalf("Omission(0) should keep every message")
		}
	}

	if p := NewOmission(3).Probability; p != 1 {
		t.Fatalf("probability should be clamped to 1, not %v", p)
	}
}

func TestOmissionRate(t *testing.T) {
	m := testMessage(t)
	o := NewOmission(0.3)

	dropped := 0
	n := 10000
	for i := 0; i < n; i++ {
		if !o.Process(context.Background(), m) {
			dropped++
		}
	}

	rate := float64(dropped) / float64(n)
	if rate < 0.25 || rate > 0.35 {
		t.Fatalf("drop rate should be close to 0.3, not %v", rate)
	}
}

func TestDelay(t *testing.T) {
	m := testMessage(t)
	d := NewDelay(20*time.Millisecond, 40*time.Millisecond)

	start := time.Now()
	if !d.Process(context.Background(), m) {
		t.Fatalf("Delay should not drop messages")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Delay returned after %v, expected at least 20ms", elapsed)
	}

	for i := 0; i < 100; i++ {
		s := d.Sample()
		if s < d.Min || s > d.Max {
			t.Fatalf("sample %v out of [%v, %v]", s, d.Min, d.Max)
		}
	}
}

func TestDelayCancel(t *testing.T) {
	m := testMessage(t)
	d := NewDelay(time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool)
	go func() { done <- d.Process(ctx, m) }()

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("cancelled Delay should still let the message through")
		}
	case <-time.After(time.Second):
		t.Fatalf("Delay did not honour context cancellation")
	}
}

func TestSwitchSetMode(t *testing.T) {
	s := NewSwitch()

	if _, ok := s.Get().(None); !ok {
		t.Fatalf("initial strategy should be None, not %v", s.Get())
	}

	s.SetMode(ModeOmission, true)
	o, ok := s.Get().(Omission)
	if !ok || o.Probability != DefaultOmissionProbability {
		t.Fatalf("expected default Omission, got %v", s.Get())
	}

	// Turning delay off while omission is active changes nothing
	s.SetMode(ModeDelay, false)
	if _, ok := s.Get().(Omission); !ok {
		t.Fatalf("strategy should still be Omission, not %v", s.Get())
	}

	// Turning delay on replaces omission
	s.SetMode(ModeDelay, true)
	d, ok := s.Get().(Delay)
	if !ok || d.Min != DefaultDelayMin || d.Max != DefaultDelayMax {
		t.Fatalf("expected default Delay, got %v", s.Get())
	}

	s.SetMode(ModeDelay, false)
	if _, ok := s.Get().(None); !ok {
		t.Fatalf("strategy should be None, not %v", s.Get())
	}

	if err := s.SetMode(Mode("jitter"), true); err == nil {
		t.Fatalf("unknown mode should return an error")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("delay"); err != nil || m != ModeDelay {
		t.Fatalf("ParseMode(delay) => %v, %v", m, err)
	}
	if _, err := ParseMode("x"); err == nil {
		t.Fatalf("ParseMode(x) should fail")
	}
}
