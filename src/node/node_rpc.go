package node

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/events"
	"github.com/mosaicnetworks/murmur/src/message"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/node/state"
	"github.com/mosaicnetworks/murmur/src/ordering"
	"github.com/mosaicnetworks/murmur/src/peers"
)

// verdictDropped is reported to the sender of a message discarded by the
// failure strategy.
const verdictDropped = "Dropped"

// replyTimeout bounds the address resolution of ACKs and NACKs.
const replyTimeout = 10 * time.Second

func (n *Node) requestReceive(target string, msg message.Message) (net.ReceiveResponse, error) {
	args := net.ReceiveRequest{
		FromID:  n.id,
		Message: msg.ToWire(),
	}

	var out net.ReceiveResponse

	err := n.trans.Receive(target, &args, &out)

	return out, err
}

func (n *Node) requestAck(target string, msg message.Message) (net.AckResponse, error) {
	args := net.AckRequest{
		FromID:    n.id,
		MessageID: msg.UniqueID(),
	}

	var out net.AckResponse

	err := n.trans.Ack(target, &args, &out)

	return out, err
}

func (n *Node) requestNACK(target string, lastSeq uint32) (net.NACKResponse, error) {
	args := net.NACKRequest{
		FromID:          n.id,
		LastReceivedSeq: lastSeq,
	}

	var out net.NACKResponse

	err := n.trans.NACK(target, &args, &out)

	return out, err
}

func (n *Node) requestHeartbeat(target string) (net.HeartbeatResponse, error) {
	args := net.HeartbeatRequest{
		FromID: n.id,
	}

	var out net.HeartbeatResponse

	err := n.trans.Heartbeat(target, &args, &out)

	return out, err
}

func (n *Node) requestAddNeighbor(target string) (net.AddNeighborResponse, error) {
	args := net.AddNeighborRequest{
		FromID:   n.id,
		FromAddr: n.trans.AdvertiseAddr(),
	}

	var out net.AddNeighborResponse

	err := n.trans.AddNeighbor(target, &args, &out)

	return out, err
}

func (n *Node) processRPC(rpc net.RPC) {
	if n.state.Kind() == state.Inactive {
		rpc.Respond(nil, &NodeInactiveError{ID: n.id})
		return
	}

	switch cmd := rpc.Command.(type) {
	case *net.ReceiveRequest:
		n.processReceiveRequest(rpc, cmd)
	case *net.AckRequest:
		n.processAckRequest(rpc, cmd)
	case *net.NACKRequest:
		n.processNACKRequest(rpc, cmd)
	case *net.HeartbeatRequest:
		n.processHeartbeatRequest(rpc, cmd)
	case *net.AddNeighborRequest:
		n.processAddNeighborRequest(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

func (n *Node) processReceiveRequest(rpc net.RPC, cmd *net.ReceiveRequest) {
	resp := &net.ReceiveResponse{
		FromID: n.id,
	}

	msg, err := message.ReadWire(cmd.Message)
	if err != nil {
		n.logger.WithError(err).Error("Invalid message")
		rpc.Respond(nil, err)
		return
	}

	rt := n.runtime()
	if rt == nil {
		rpc.Respond(nil, &NodeInactiveError{ID: n.id})
		return
	}

	if st := n.state.GetState(); st.Kind == state.Failed {
		n.logger.WithFields(logrus.Fields{
			"reason": st.Reason,
			"msg":    msg.UniqueID(),
		}).Warn("Processing message in degraded mode")
	}

	if !n.failures.Get().Process(rt.ctx, msg) {
		n.logger.WithField("msg", msg.UniqueID()).Debug("Message dropped by failure strategy")
		n.emitMessage(events.MessageDropped, msg, cmd.FromID)
		resp.Verdict = verdictDropped
		rpc.Respond(resp, nil)
		return
	}

	// the node was shut down while the message was held
	if rt.ctx.Err() != nil {
		rpc.Respond(nil, &NodeInactiveError{ID: n.id})
		return
	}

	n.emitMessage(events.MessageReceived, msg, cmd.FromID)

	verdict := n.ordering.Admit(msg, func(m message.Message) bool {
		if !n.queue.Push(m) {
			n.logger.WithField("msg", m.UniqueID()).Debug("Delivery queue closed")
			return false
		}
		n.emitMessage(events.MessageDelivered, m, "")
		return true
	})

	n.logger.WithFields(logrus.Fields{
		"from":    cmd.FromID,
		"msg":     msg.UniqueID(),
		"verdict": verdict.String(),
	}).Debug("process ReceiveRequest")

	switch verdict {
	case ordering.Rejected:
		rpc.Respond(nil, &NodeInactiveError{ID: n.id})
		return
	case ordering.Deliver:
		n.state.GoFunc(func() {
			n.sendAck(msg)
		})
	case ordering.Buffer:
		sender := msg.SenderID()
		lastSeq := n.ordering.LastSeq(sender)
		n.state.GoFunc(func() {
			n.sendNACK(sender, lastSeq)
		})
	}

	resp.Verdict = verdict.String()
	rpc.Respond(resp, nil)
}

func (n *Node) sendAck(msg message.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	sender := msg.SenderID()

	addr, err := n.lookupAddr(ctx, sender)
	if err != nil {
		n.logger.WithError(err).WithField("peer", sender).Error("Resolving ACK target")
		return
	}

	if _, err := n.requestAck(addr, msg); err != nil {
		n.logger.WithError(err).WithField("peer", sender).Error("Sending ACK")
		return
	}

	n.emitMessage(events.AckSent, msg, sender)
}

func (n *Node) sendNACK(sender string, lastSeq uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	addr, err := n.lookupAddr(ctx, sender)
	if err != nil {
		n.logger.WithError(err).WithField("peer", sender).Error("Resolving NACK target")
		return
	}

	if _, err := n.requestNACK(addr, lastSeq); err != nil {
		n.logger.WithError(err).WithField("peer", sender).Error("Sending NACK")
		return
	}

	e := events.New(events.NackSent, n.id)
	e.PeerID = sender
	e.SenderID = sender
	e.Seq = lastSeq
	n.notify(e)
}

func (n *Node) processAckRequest(rpc net.RPC, cmd *net.AckRequest) {
	n.logger.WithFields(logrus.Fields{
		"from": cmd.FromID,
		"msg":  cmd.MessageID,
	}).Debug("process AckRequest")

	complete := n.retry.Confirm(cmd.MessageID, cmd.FromID, n.neighborIDs())

	e := events.New(events.AckReceived, n.id)
	e.MessageID = cmd.MessageID
	e.PeerID = cmd.FromID
	n.notify(e)

	if complete {
		n.logger.WithField("msg", cmd.MessageID).Debug("Message confirmed by all neighbors")
	}

	rpc.Respond(&net.AckResponse{FromID: n.id}, nil)
}

func (n *Node) processNACKRequest(rpc net.RPC, cmd *net.NACKRequest) {
	n.logger.WithFields(logrus.Fields{
		"from":     cmd.FromID,
		"last_seq": cmd.LastReceivedSeq,
	}).Debug("process NACKRequest")

	e := events.New(events.NackReceived, n.id)
	e.PeerID = cmd.FromID
	e.Seq = cmd.LastReceivedSeq
	n.notify(e)

	rpc.Respond(&net.NACKResponse{FromID: n.id}, nil)

	if !n.acceptsOutbound() {
		n.logger.WithField("from", cmd.FromID).Debug("Ignoring NACK, outbound traffic blocked")
		return
	}

	missing := n.retry.PendingAfter(n.id, cmd.LastReceivedSeq)
	if len(missing) == 0 {
		return
	}

	n.state.GoFunc(func() {
		n.resendMissing(cmd.FromID, missing)
	})
}

// resendMissing sends msgs to id one after the other, in the given order.
func (n *Node) resendMissing(id string, msgs []message.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	addr, err := n.lookupAddr(ctx, id)
	if err != nil {
		n.logger.WithError(err).WithField("peer", id).Error("Resolving NACK sender")
		return
	}

	p := peers.NewPeer(id, addr)
	for _, m := range msgs {
		n.emitMessage(events.MessageResent, m, id)
		n.send(p, m)
	}
}

func (n *Node) processHeartbeatRequest(rpc net.RPC, cmd *net.HeartbeatRequest) {
	n.recordAttempt()
	rpc.Respond(&net.HeartbeatResponse{FromID: n.id}, nil)
}

func (n *Node) processAddNeighborRequest(rpc net.RPC, cmd *net.AddNeighborRequest) {
	n.logger.WithFields(logrus.Fields{
		"from": cmd.FromID,
		"addr": cmd.FromAddr,
	}).Debug("process AddNeighborRequest")

	resp := &net.AddNeighborResponse{
		FromID: n.id,
	}

	if cmd.FromID == n.id || cmd.FromID == "" {
		rpc.Respond(resp, fmt.Errorf("invalid neighbor id %q", cmd.FromID))
		return
	}

	resp.Known = !n.addNeighbor(peers.NewPeer(cmd.FromID, cmd.FromAddr))
	resp.Accepted = true

	rpc.Respond(resp, nil)
}
