package node

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/directory"
	"github.com/mosaicnetworks/murmur/src/events"
	"github.com/mosaicnetworks/murmur/src/failure"
	"github.com/mosaicnetworks/murmur/src/message"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/node/state"
	"github.com/mosaicnetworks/murmur/src/ordering"
	"github.com/mosaicnetworks/murmur/src/peers"
)

// lookupTries is the number of directory lookups attempted before giving up.
// A failed lookup triggers a Reconnect before the next try.
const lookupTries = 2

// Node is a participant of the FIFO broadcast network.
type Node struct {
	id     string
	conf   *Config
	logger *logrus.Entry

	state *state.Manager

	trans net.Transport
	netCh <-chan net.RPC

	directory directory.Directory
	sink      events.Sink

	failures  *failure.Switch
	ordering  *ordering.Table
	timeout   *AdaptiveTimeout
	retry     *RetryScheduler
	monitor   *HeartbeatMonitor

	peersLock sync.RWMutex
	peers     *peers.PeerSet

	seqLock sync.Mutex
	seq     uint32

	// queue outlives activations, like the ordering table: messages admitted
	// but not yet handed to the application survive Shutdown.
	queue     *deliveryQueue
	delivered uint64
	deliverCh chan message.Message

	// runLock serialises lifecycle operations and guards rt
	runLock sync.Mutex
	rt      *runtime

	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// runtime holds what is allocated on activation and released on shutdown.
type runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode is a factory method that returns an Inactive Node. dir and sink may
// be nil.
func NewNode(id string,
	conf *Config,
	trans net.Transport,
	dir directory.Directory,
	sink events.Sink,
) (*Node, error) {
	if id == "" {
		return nil, fmt.Errorf("node id is required")
	}

	if sink == nil {
		sink = events.Discard
	}

	timeout := NewAdaptiveTimeout(conf.AckTimeout)

	node := &Node{
		id:         id,
		conf:       conf,
		logger:     conf.Logger.WithField("this_id", id),
		state:      state.NewManager(),
		trans:      trans,
		netCh:      trans.Consumer(),
		directory:  dir,
		sink:       sink,
		failures:   failure.NewSwitch(),
		ordering:   ordering.NewTable(),
		timeout:    timeout,
		peers:      peers.NewPeerSet([]*peers.Peer{}),
		queue:      newDeliveryQueue(),
		deliverCh:  make(chan message.Message, conf.DeliveryBuffer),
		shutdownCh: make(chan struct{}),
	}

	node.retry = NewRetryScheduler(timeout, conf.MaxRetries, node)
	node.monitor = NewHeartbeatMonitor(conf.HeartbeatInterval, timeout, node)

	return node, nil
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

// Run dispatches incoming RPCs until the node is closed. Each RPC is processed
// in its own goroutine, whatever the number of RPCs in flight, so that a
// delayed Receive never holds up a heartbeat.
func (n *Node) Run() {
	for {
		select {
		case rpc := <-n.netCh:
			n.state.Go(func() {
				n.processRPC(rpc)
			})
		case <-n.shutdownCh:
			return
		}
	}
}

/*******************************************************************************
Lifecycle
*******************************************************************************/

// Activate starts an Inactive node, or forces a Recovering node back to
// Active. In any other state it returns an InvalidTransitionError and does
// nothing.
func (n *Node) Activate() error {
	n.runLock.Lock()
	defer n.runLock.Unlock()

	from, to, ok := n.state.Transition(state.Activate, "")
	if !ok {
		return n.invalidTransition(from, state.Activate)
	}

	if from.Kind == state.Inactive {
		n.startRuntime()
		n.register()
	}

	n.logger.WithField("from", from.String()).Info("Activated")
	n.emitState(to)
	return nil
}

// Shutdown stops the node's routines and removes it from the directory. The
// transport keeps running, answering every call with a NodeInactiveError, so
// that the node can be activated again.
func (n *Node) Shutdown() error {
	n.runLock.Lock()
	defer n.runLock.Unlock()

	from, to, ok := n.state.Transition(state.Shutdown, "")
	if !ok {
		return n.invalidTransition(from, state.Shutdown)
	}

	n.stopRuntime()
	n.unregister()

	n.logger.WithField("from", from.String()).Info("Shutdown")
	n.emitState(to)
	return nil
}

// EnterFailure puts an Active node into failure. Outbound traffic is refused
// until the node recovers.
func (n *Node) EnterFailure(reason string) error {
	n.runLock.Lock()
	defer n.runLock.Unlock()

	from, to, ok := n.state.Transition(state.EnterFailure, reason)
	if !ok {
		return n.invalidTransition(from, state.EnterFailure)
	}

	n.logger.WithField("reason", reason).Warn("Entered failure")
	n.emitState(to)
	return nil
}

// Recover starts the recovery of a Failed node. The messages still awaiting
// confirmation are forgotten.
func (n *Node) Recover() error {
	n.runLock.Lock()
	defer n.runLock.Unlock()

	from, to, ok := n.state.Transition(state.Recover, "")
	if !ok {
		return n.invalidTransition(from, state.Recover)
	}

	n.retry.Clear()

	n.logger.WithField("reason", from.Reason).Info("Recovering")
	n.emitState(to)
	return nil
}

// Close shuts the node down for good, stopping the dispatch loop and closing
// the transport and the delivery channel. Messages still staged are flushed
// to the delivery channel as far as its buffer allows.
func (n *Node) Close() {
	n.closeOnce.Do(func() {
		n.logger.Debug("Close")

		if n.state.Kind() != state.Inactive {
			n.Shutdown()
		}

		close(n.shutdownCh)

		staged := n.queue.Close()

		n.state.WaitRoutines()

		n.trans.Close()

		n.flush(staged)

		close(n.deliverCh)
	})
}

func (n *Node) flush(staged []message.Message) {
	lost := 0
	for _, m := range staged {
		select {
		case n.deliverCh <- m:
			atomic.AddUint64(&n.delivered, 1)
		default:
			lost++
		}
	}
	if lost > 0 {
		n.logger.WithField("lost", lost).Warn("Delivery channel full, staged messages lost")
	}
}

func (n *Node) invalidTransition(from state.State, op state.Op) error {
	err := &InvalidTransitionError{From: from, Op: op}
	n.logger.WithError(err).Warn("Ignoring operation")
	return err
}

func (n *Node) startRuntime() {
	ctx, cancel := context.WithCancel(context.Background())

	rt := &runtime{
		ctx:    ctx,
		cancel: cancel,
	}

	rt.wg.Add(2)
	go func() {
		defer rt.wg.Done()
		n.consumeDeliveries(rt)
	}()
	go func() {
		defer rt.wg.Done()
		n.monitor.Run(ctx)
	}()

	n.retry.Start()

	n.rt = rt
}

func (n *Node) stopRuntime() {
	rt := n.rt
	if rt == nil {
		return
	}

	n.rt = nil

	rt.cancel()
	n.retry.Stop()
	rt.wg.Wait()
}

// runtime returns the current runtime, or nil if the node is Inactive.
func (n *Node) runtime() *runtime {
	n.runLock.Lock()
	defer n.runLock.Unlock()
	return n.rt
}

// consumeDeliveries hands staged messages to the application until rt is
// cancelled. A message popped but not handed over goes back to the head of
// its lane for the next activation.
func (n *Node) consumeDeliveries(rt *runtime) {
	for {
		msg, ok := n.queue.Pop(rt.ctx)
		if !ok {
			return
		}

		select {
		case n.deliverCh <- msg:
			atomic.AddUint64(&n.delivered, 1)
		case <-rt.ctx.Done():
			n.queue.Requeue(msg)
			return
		}
	}
}

func (n *Node) register() {
	if n.directory == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := n.directory.Register(ctx, n.id, n.trans.AdvertiseAddr()); err != nil {
		n.logger.WithError(err).Error("Registering in directory")
	}
}

func (n *Node) unregister() {
	if n.directory == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := n.directory.Unregister(ctx, n.id); err != nil {
		n.logger.WithError(err).Error("Unregistering from directory")
	}
}

// recordAttempt counts an outbound operation of a Recovering node.
func (n *Node) recordAttempt() {
	st, promoted := n.state.RecordAttempt()
	if promoted {
		n.logger.Info("Recovery complete")
		n.emitState(st)
	}
}

/*******************************************************************************
Broadcast
*******************************************************************************/

// Broadcast sends content to every neighbor under the next sequence number.
// It does not deliver the message locally. The returned message remains
// pending until all neighbors acknowledged it or the retries are exhausted.
func (n *Node) Broadcast(content string) (message.Message, error) {
	st := n.state.GetState()
	switch st.Kind {
	case state.Inactive:
		return message.Message{}, &NodeInactiveError{ID: n.id}
	case state.Failed:
		return message.Message{}, &NodeFailedError{ID: n.id, Reason: st.Reason}
	}

	n.seqLock.Lock()
	msg, err := message.NewMessage(n.id, n.seq+1, content)
	if err != nil {
		n.seqLock.Unlock()
		return message.Message{}, err
	}
	n.seq++
	n.seqLock.Unlock()

	n.recordAttempt()

	targets := n.getNeighbors()

	n.logger.WithFields(logrus.Fields{
		"seq":       msg.SequenceNumber(),
		"neighbors": len(targets),
	}).Debug("Broadcast")

	if len(targets) > 0 {
		n.retry.Register(msg)
	}

	for _, p := range targets {
		p := p
		n.state.GoFunc(func() {
			n.send(p, msg)
		})
	}

	return msg, nil
}

// send delivers msg to a neighbor. A neighbor that cannot be reached is
// removed; a live neighbor refusing the message is left for the retries.
func (n *Node) send(p *peers.Peer, msg message.Message) {
	out, err := n.requestReceive(p.NetAddr, msg)
	if err != nil {
		if isRejection(err) {
			n.logger.WithFields(logrus.Fields{
				"peer":  p.ID,
				"error": err,
			}).Debug("Message refused")
			return
		}
		n.neighborUnreachable(p.ID, err)
		return
	}

	n.logger.WithFields(logrus.Fields{
		"peer":    p.ID,
		"msg":     msg.UniqueID(),
		"verdict": out.Verdict,
	}).Debug("Message sent")
}

// resend implements retryHost.
func (n *Node) resend(msg message.Message, peerIDs []string, attempt int) {
	n.logger.WithFields(logrus.Fields{
		"msg":     msg.UniqueID(),
		"attempt": attempt,
		"peers":   peerIDs,
	}).Debug("Resending")

	for _, id := range peerIDs {
		p, ok := n.getPeer(id)
		if !ok {
			continue
		}

		e := events.New(events.MessageResent, n.id)
		e.MessageID = msg.UniqueID()
		e.Seq = msg.SequenceNumber()
		e.PeerID = id
		e.Attempt = attempt
		n.notify(e)

		n.state.GoFunc(func() {
			n.send(p, msg)
		})
	}
}

// retryExhausted implements retryHost.
func (n *Node) retryExhausted(msg message.Message, attempt int) {
	n.logger.WithFields(logrus.Fields{
		"msg":     msg.UniqueID(),
		"attempt": attempt,
	}).Warn("Retries exhausted, dropping message")

	e := events.New(events.RetryExhausted, n.id)
	e.MessageID = msg.UniqueID()
	e.Seq = msg.SequenceNumber()
	e.Attempt = attempt
	n.notify(e)
}

// acceptsOutbound implements retryHost.
func (n *Node) acceptsOutbound() bool {
	return n.state.GetState().AcceptsOutbound()
}

// neighborIDs implements retryHost.
func (n *Node) neighborIDs() []string {
	n.peersLock.RLock()
	defer n.peersLock.RUnlock()
	return n.peers.IDs()
}

/*******************************************************************************
Heartbeats
*******************************************************************************/

// probing implements heartbeatHost.
func (n *Node) probing() bool {
	return n.acceptsOutbound()
}

// neighbors implements heartbeatHost.
func (n *Node) neighbors() []*peers.Peer {
	return n.getNeighbors()
}

// heartbeat implements heartbeatHost.
func (n *Node) heartbeat(p *peers.Peer) error {
	_, err := n.requestHeartbeat(p.NetAddr)
	return err
}

// probeFailed implements heartbeatHost.
func (n *Node) probeFailed(p *peers.Peer, err error) {
	n.neighborUnreachable(p.ID, err)
}

// probeSucceeded implements heartbeatHost.
func (n *Node) probeSucceeded(p *peers.Peer, rtt time.Duration) {
	n.logger.WithFields(logrus.Fields{
		"peer":    p.ID,
		"rtt":     rtt,
		"timeout": n.timeout.Get(),
	}).Debug("Heartbeat")

	n.recordAttempt()
}

/*******************************************************************************
Neighbors
*******************************************************************************/

// AddNeighbor records p as a neighbor and asks it to record this node in
// return. It is idempotent: adding a known neighbor only refreshes its
// address. If p cannot be reached it is removed again and a
// NeighborUnreachableError is returned.
func (n *Node) AddNeighbor(p *peers.Peer) error {
	if n.state.Kind() == state.Inactive {
		return &NodeInactiveError{ID: n.id}
	}

	if p.ID == n.id {
		return fmt.Errorf("node %s cannot be its own neighbor", n.id)
	}

	if !n.addNeighbor(p) {
		return nil
	}

	out, err := n.requestAddNeighbor(p.NetAddr)
	if err != nil {
		n.removeNeighbor(p.ID)
		return &NeighborUnreachableError{PeerID: p.ID, Err: err}
	}

	n.logger.WithFields(logrus.Fields{
		"peer":  p.ID,
		"known": out.Known,
	}).Info("Connected")

	return nil
}

// Connect looks id up in the directory and adds it as a neighbor.
func (n *Node) Connect(id string) error {
	if n.state.Kind() == state.Inactive {
		return &NodeInactiveError{ID: n.id}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr, err := n.lookupAddr(ctx, id)
	if err != nil {
		return err
	}

	return n.AddNeighbor(peers.NewPeer(id, addr))
}

// RemoveNeighbor forgets a neighbor. It returns false if id was not a
// neighbor.
func (n *Node) RemoveNeighbor(id string) bool {
	removed := n.removeNeighbor(id)
	if removed {
		n.logger.WithField("peer", id).Info("Disconnected")
	}
	return removed
}

// addNeighbor returns true if p was not a neighbor yet.
func (n *Node) addNeighbor(p *peers.Peer) bool {
	n.peersLock.Lock()
	defer n.peersLock.Unlock()

	_, known := n.peers.ByID[p.ID]
	n.peers = n.peers.WithNewPeer(p)
	return !known
}

func (n *Node) removeNeighbor(id string) bool {
	n.peersLock.Lock()
	defer n.peersLock.Unlock()

	if !n.peers.Contains(id) {
		return false
	}
	n.peers = n.peers.WithRemovedPeer(id)
	return true
}

func (n *Node) neighborUnreachable(id string, err error) {
	if !n.removeNeighbor(id) {
		return
	}

	n.logger.WithFields(logrus.Fields{
		"peer":  id,
		"error": err,
	}).Warn("Neighbor failed, removed")

	e := events.New(events.NeighborFailed, n.id)
	e.PeerID = id
	e.Reason = err.Error()
	n.notify(e)
}

func (n *Node) getNeighbors() []*peers.Peer {
	n.peersLock.RLock()
	defer n.peersLock.RUnlock()
	return n.peers.Peers
}

func (n *Node) getPeer(id string) (*peers.Peer, bool) {
	n.peersLock.RLock()
	defer n.peersLock.RUnlock()
	p, ok := n.peers.ByID[id]
	return p, ok
}

// lookupAddr resolves the address of a node, looking at the neighbors first
// and then at the directory.
func (n *Node) lookupAddr(ctx context.Context, id string) (string, error) {
	if p, ok := n.getPeer(id); ok {
		return p.NetAddr, nil
	}

	if n.directory == nil {
		return "", fmt.Errorf("no address for %s", id)
	}

	operation := func() (string, error) {
		addr, err := n.directory.Lookup(ctx, id)
		if err == nil {
			return addr, nil
		}

		if directory.IsNotFound(err) {
			return "", backoff.Permanent(err)
		}

		n.logger.WithError(err).Debug("Directory lookup failed, reconnecting")

		if rerr := n.directory.Reconnect(ctx); rerr != nil {
			n.logger.WithError(rerr).Error("Reconnecting directory")
		}

		return "", err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(lookupTries))
}

/*******************************************************************************
Failure injection
*******************************************************************************/

// SetFailureStrategy replaces the strategy applied to inbound messages.
func (n *Node) SetFailureStrategy(s failure.Strategy) {
	n.failures.Set(s)
	n.logger.WithField("failure", n.failures.Get().String()).Info("Failure strategy")
}

// SetFailureMode turns a failure mode on or off.
func (n *Node) SetFailureMode(mode failure.Mode, on bool) error {
	if err := n.failures.SetMode(mode, on); err != nil {
		return err
	}
	n.logger.WithField("failure", n.failures.Get().String()).Info("Failure strategy")
	return nil
}

// GetFailureStrategy returns the active failure strategy.
func (n *Node) GetFailureStrategy() failure.Strategy {
	return n.failures.Get()
}

/*******************************************************************************
Events
*******************************************************************************/

// notify hands e to the sink. A sink that panics loses the event, not the
// protocol step that emitted it.
func (n *Node) notify(e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.WithFields(logrus.Fields{
				"event": e.Type,
				"panic": r,
			}).Error("Event sink panicked")
		}
	}()
	n.sink.Notify(e)
}

func (n *Node) emitState(s state.State) {
	e := events.New(events.StateChanged, n.id)
	e.State = s.Kind.String()
	e.Reason = s.Reason
	n.notify(e)
}

func (n *Node) emitMessage(t events.Type, msg message.Message, peer string) {
	e := events.New(t, n.id)
	e.MessageID = msg.UniqueID()
	e.SenderID = msg.SenderID()
	e.Seq = msg.SequenceNumber()
	e.PeerID = peer
	n.notify(e)
}

/*******************************************************************************
Getters
*******************************************************************************/

// DeliverCh returns the channel through which delivered messages are handed
// to the application, per sender in sequence order. It is closed by Close.
func (n *Node) DeliverCh() <-chan message.Message {
	return n.deliverCh
}

// ID returns the id of the node.
func (n *Node) ID() string {
	return n.id
}

// GetState returns the current state.
func (n *Node) GetState() state.State {
	return n.state.GetState()
}

// GetPeers returns the current neighbors.
func (n *Node) GetPeers() []*peers.Peer {
	return n.getNeighbors()
}

// GetOrdering returns a snapshot of the FIFO admission table.
func (n *Node) GetOrdering() map[string]ordering.SenderInfo {
	return n.ordering.Snapshot()
}

// LastSeq returns the last sequence number delivered from sender.
func (n *Node) LastSeq(sender string) uint32 {
	return n.ordering.LastSeq(sender)
}

// LastSeqSent returns the sequence number of the last broadcast message.
func (n *Node) LastSeqSent() uint32 {
	n.seqLock.Lock()
	defer n.seqLock.Unlock()
	return n.seq
}

// IsPending reports whether a broadcast message awaits acknowledgements.
func (n *Node) IsPending(uid string) bool {
	return n.retry.IsPending(uid)
}

// AckTimeout returns the current adaptive ACK timeout.
func (n *Node) AckTimeout() time.Duration {
	return n.timeout.Get()
}

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	s := map[string]string{
		"id":            n.id,
		"state":         n.state.GetState().String(),
		"neighbors":     strconv.Itoa(len(n.getNeighbors())),
		"last_seq_sent": strconv.FormatUint(uint64(n.LastSeqSent()), 10),
		"pending":       strconv.Itoa(n.retry.Len()),
		"ack_timeout":   n.timeout.Get().String(),
		"failure":       n.failures.Get().String(),
		"rtt_median":    n.monitor.MedianRTT().String(),
		"delivered":     strconv.FormatUint(atomic.LoadUint64(&n.delivered), 10),
		"staged":        strconv.Itoa(n.queue.Len()),
	}
	return s
}
