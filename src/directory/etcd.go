package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// DefaultEtcdPrefix is the key prefix under which nodes are registered.
	DefaultEtcdPrefix = "/murmur/nodes/"

	// DefaultEtcdTTL is the lifetime, in seconds, of a registration lease.
	// The lease is kept alive as long as the node is registered.
	DefaultEtcdTTL = 10

	// DefaultEtcdDialTimeout ...
	DefaultEtcdDialTimeout = 5 * time.Second
)

// EtcdDirectory stores registrations in etcd, under <prefix><id>. Every
// registration is bound to a lease which is kept alive until Unregister, so
// that a crashed node disappears from the directory after the lease TTL.
type EtcdDirectory struct {
	lock        sync.Mutex
	endpoints   []string
	dialTimeout time.Duration
	prefix      string
	ttl         int64
	client      *clientv3.Client
	leases      map[string]*etcdLease
	logger      *logrus.Entry
}

type etcdLease struct {
	id     clientv3.LeaseID
	addr   string
	cancel context.CancelFunc
}

// NewEtcdDirectory connects to the etcd cluster at endpoints.
func NewEtcdDirectory(endpoints []string, dialTimeout time.Duration, logger *logrus.Entry) (*EtcdDirectory, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	if dialTimeout <= 0 {
		dialTimeout = DefaultEtcdDialTimeout
	}

	d := &EtcdDirectory{
		endpoints:   endpoints,
		dialTimeout: dialTimeout,
		prefix:      DefaultEtcdPrefix,
		ttl:         DefaultEtcdTTL,
		leases:      make(map[string]*etcdLease),
		logger:      logger.WithField("directory", "etcd"),
	}

	client, err := d.dial()
	if err != nil {
		return nil, err
	}
	d.client = client

	return d, nil
}

func (d *EtcdDirectory) dial() (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   d.endpoints,
		DialTimeout: d.dialTimeout,
	})
	if err != nil {
		return nil, &Error{Op: "dial", ID: strings.Join(d.endpoints, ","), Err: err}
	}
	return client, nil
}

// Key returns the etcd key of a node id.
func (d *EtcdDirectory) Key(id string) string {
	return etcdKey(d.prefix, id)
}

func etcdKey(prefix, id string) string {
	return fmt.Sprintf("%s%s", prefix, id)
}

func (d *EtcdDirectory) getClient() *clientv3.Client {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.client
}

// Register implements the Directory interface. It grants a lease, binds the
// key to it, and keeps the lease alive in the background.
func (d *EtcdDirectory) Register(ctx context.Context, id, addr string) error {
	client := d.getClient()

	lease, err := client.Grant(ctx, d.ttl)
	if err != nil {
		return &Error{Op: "register", ID: id, Err: err}
	}

	if _, err := client.Put(ctx, d.Key(id), addr, clientv3.WithLease(lease.ID)); err != nil {
		return &Error{Op: "register", ID: id, Err: err}
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	kaCh, err := client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return &Error{Op: "register", ID: id, Err: err}
	}

	// drain keep-alive responses, the client warns when the channel is full
	go func() {
		for range kaCh {
		}
		d.logger.WithField("id", id).Debug("lease keep-alive stopped")
	}()

	d.lock.Lock()
	old := d.leases[id]
	d.leases[id] = &etcdLease{id: lease.ID, addr: addr, cancel: cancel}
	d.lock.Unlock()

	if old != nil {
		old.cancel()
		client.Revoke(ctx, old.id)
	}

	d.logger.WithFields(logrus.Fields{
		"id":    id,
		"addr":  addr,
		"lease": lease.ID,
	}).Debug("registered")

	return nil
}

// Lookup implements the Directory interface.
func (d *EtcdDirectory) Lookup(ctx context.Context, id string) (string, error) {
	resp, err := d.getClient().Get(ctx, d.Key(id))
	if err != nil {
		return "", &Error{Op: "lookup", ID: id, Err: err}
	}
	if len(resp.Kvs) == 0 {
		return "", notFound(id)
	}
	return string(resp.Kvs[0].Value), nil
}

// Unregister implements the Directory interface.
func (d *EtcdDirectory) Unregister(ctx context.Context, id string) error {
	client := d.getClient()

	d.lock.Lock()
	l := d.leases[id]
	delete(d.leases, id)
	d.lock.Unlock()

	if l != nil {
		l.cancel()
		if _, err := client.Revoke(ctx, l.id); err != nil {
			d.logger.WithError(err).Debug("revoke lease")
		}
	}

	if _, err := client.Delete(ctx, d.Key(id)); err != nil {
		return &Error{Op: "unregister", ID: id, Err: err}
	}
	return nil
}

// Reconnect implements the Directory interface. It replaces the client and
// re-registers every binding made through this directory.
func (d *EtcdDirectory) Reconnect(ctx context.Context) error {
	client, err := d.dial()
	if err != nil {
		return err
	}

	d.lock.Lock()
	old := d.client
	d.client = client
	registered := make(map[string]string, len(d.leases))
	for id, l := range d.leases {
		l.cancel()
		registered[id] = l.addr
	}
	d.leases = make(map[string]*etcdLease)
	d.lock.Unlock()

	if old != nil {
		old.Close()
	}

	for id, addr := range registered {
		if err := d.Register(ctx, id, addr); err != nil {
			return err
		}
	}

	d.logger.Debug("reconnected")
	return nil
}

// Close releases every lease and closes the client.
func (d *EtcdDirectory) Close() error {
	d.lock.Lock()
	for _, l := range d.leases {
		l.cancel()
	}
	d.leases = make(map[string]*etcdLease)
	client := d.client
	d.lock.Unlock()

	return client.Close()
}
