package murmur

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/directory"
	"github.com/mosaicnetworks/murmur/src/node/state"
)

func newConsolePair(t *testing.T) (*Console, *bytes.Buffer, *Murmur, *Murmur) {
	dir := directory.NewInmemDirectory()

	engines := []*Murmur{}
	for _, id := range []string{"alice", "bob"} {
		conf := newTestConfig(t, id, t.TempDir())
		conf.Directory = config.DirectoryInmem

		m := NewMurmur(conf)
		m.Directory = dir
		if err := m.Init(); err != nil {
			t.Fatal(err)
		}
		if err := m.Start(); err != nil {
			t.Fatal(err)
		}
		engines = append(engines, m)
	}

	out := &bytes.Buffer{}
	return NewConsole(engines[0], out), out, engines[0], engines[1]
}

func TestConsoleScript(t *testing.T) {
	console, out, alice, bob := newConsolePair(t)
	defer alice.Close()
	defer bob.Close()

	script := strings.Join([]string{
		"connect bob",
		"broadcast hello world",
		"state",
		"exit",
		"broadcast never sent",
	}, "\n")

	if err := console.Run(strings.NewReader(script)); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-bob.Node.DeliverCh():
		if m.Content() != "hello world" {
			t.Fatalf("unexpected content %q", m.Content())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message was not delivered")
	}

	if alice.Node.LastSeqSent() != 1 {
		t.Fatalf("commands after exit should be ignored, last seq = %d", alice.Node.LastSeqSent())
	}

	for _, s := range []string{"connected to bob", "sent #1", "Active"} {
		if !strings.Contains(out.String(), s) {
			t.Fatalf("output should contain %q:\n%s", s, out.String())
		}
	}
}

func TestConsoleStateCommands(t *testing.T) {
	console, out, alice, bob := newConsolePair(t)
	defer alice.Close()
	defer bob.Close()

	console.Execute("fail maintenance")
	if st := alice.Node.GetState(); st.Kind != state.Failed || st.Reason != "maintenance" {
		t.Fatalf("node should be Failed(maintenance), not %s", st)
	}

	out.Reset()
	console.Execute("broadcast x")
	if !strings.Contains(out.String(), "error:") {
		t.Fatalf("broadcast should fail while Failed:\n%s", out.String())
	}

	console.Execute("recover")
	console.Execute("activate")
	if k := alice.Node.GetState().Kind; k != state.Active {
		t.Fatalf("node should be Active, not %s", k)
	}

	console.Execute("shutdown")
	if k := alice.Node.GetState().Kind; k != state.Inactive {
		t.Fatalf("node should be Inactive, not %s", k)
	}
}

func TestConsoleFailureMode(t *testing.T) {
	console, out, alice, bob := newConsolePair(t)
	defer alice.Close()
	defer bob.Close()

	console.Execute("failure delay on")
	if name := alice.Node.GetFailureStrategy().Name(); name != "delay" {
		t.Fatalf("strategy should be delay, not %s", name)
	}

	console.Execute("failure omission off")
	if name := alice.Node.GetFailureStrategy().Name(); name != "delay" {
		t.Fatalf("turning off an inactive mode should keep delay, not %s", name)
	}

	console.Execute("failure delay off")
	if name := alice.Node.GetFailureStrategy().Name(); name != "none" {
		t.Fatalf("strategy should be none, not %s", name)
	}

	out.Reset()
	console.Execute("failure crash on")
	if !strings.Contains(out.String(), "error:") {
		t.Fatalf("unknown mode should be reported:\n%s", out.String())
	}

	out.Reset()
	console.Execute("frobnicate")
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("unknown command should be reported:\n%s", out.String())
	}
}

func TestConsoleMetrics(t *testing.T) {
	console, out, alice, bob := newConsolePair(t)
	defer alice.Close()
	defer bob.Close()

	waitFor(t, time.Second, "state event", func() bool {
		return strings.Contains(alice.Metrics.Report(), "state_changed")
	})

	console.Execute("metrics")
	if !strings.Contains(out.String(), "node alice") {
		t.Fatalf("metrics report should list alice:\n%s", out.String())
	}
}
