package directory

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/peers"
)

func testDirectory(t *testing.T, d Directory) {
	ctx := context.Background()

	if _, err := d.Lookup(ctx, "alice"); !IsNotFound(err) {
		t.Fatalf("lookup of an unknown id should be NotFound, got %v", err)
	}

	if err := d.Register(ctx, "alice", "addr1"); err != nil {
		t.Fatal(err)
	}

	addr, err := d.Lookup(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if addr != "addr1" {
		t.Fatalf("alice should be at addr1, not %s", addr)
	}

	if err := d.Register(ctx, "alice", "addr2"); err != nil {
		t.Fatal(err)
	}
	if addr, _ := d.Lookup(ctx, "alice"); addr != "addr2" {
		t.Fatalf("alice should be at addr2, not %s", addr)
	}

	if err := d.Reconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if addr, _ := d.Lookup(ctx, "alice"); addr != "addr2" {
		t.Fatalf("alice should still be at addr2 after Reconnect, not %s", addr)
	}

	if err := d.Unregister(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Lookup(ctx, "alice"); !IsNotFound(err) {
		t.Fatalf("lookup after unregister should be NotFound, got %v", err)
	}
}

func TestInmemDirectory(t *testing.T) {
	testDirectory(t, NewInmemDirectory())
}

func TestEtcdDirectory(t *testing.T) {
	endpoints := os.Getenv("MURMUR_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("MURMUR_ETCD_ENDPOINTS not set")
	}

	d, err := NewEtcdDirectory(strings.Split(endpoints, ","), 2*time.Second, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	testDirectory(t, d)
}

func TestEtcdKey(t *testing.T) {
	if k := etcdKey(DefaultEtcdPrefix, "node1"); k != "/murmur/nodes/node1" {
		t.Fatalf("key should be /murmur/nodes/node1, not %s", k)
	}
}

func TestStaticDirectory(t *testing.T) {
	dir, err := ioutil.TempDir("", "murmur-directory")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store := peers.NewJSONPeers(dir)
	store.SetPeers([]*peers.Peer{peers.NewPeer("alice", "127.0.0.1:1337")})

	d, err := NewStaticDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	addr, err := d.Lookup(ctx, "alice")
	if err != nil || addr != "127.0.0.1:1337" {
		t.Fatalf("alice should be at 127.0.0.1:1337, got %s, %v", addr, err)
	}

	// read-only
	d.Register(ctx, "bob", "x")
	if _, err := d.Lookup(ctx, "bob"); !IsNotFound(err) {
		t.Fatalf("Register should be a no-op, got %v", err)
	}

	// Reconnect reloads the file
	store.SetPeers([]*peers.Peer{
		peers.NewPeer("alice", "127.0.0.1:1337"),
		peers.NewPeer("bob", "127.0.0.1:1338"),
	})
	if err := d.Reconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if addr, _ := d.Lookup(ctx, "bob"); addr != "127.0.0.1:1338" {
		t.Fatalf("bob should be at 127.0.0.1:1338 after reload, not %s", addr)
	}
}

func TestError(t *testing.T) {
	err := notFound("x")

	var de *Error
	if !errors.As(err, &de) || de.Op != "lookup" || de.ID != "x" {
		t.Fatalf("notFound should return a *Error, got %#v", err)
	}
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound should recognise %v", err)
	}
	if IsNotFound(&Error{Op: "lookup", ID: "x", Err: errors.New("boom")}) {
		t.Fatalf("IsNotFound should not match other errors")
	}
}
