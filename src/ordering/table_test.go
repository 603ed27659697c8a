package ordering

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mosaicnetworks/murmur/src/message"
)

func newMessage(t *testing.T, sender string, seq uint32) message.Message {
	m, err := message.NewMessageAt(sender, seq, fmt.Sprintf("m%d", seq), uint64(1000+seq))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

type recorder struct {
	sync.Mutex
	delivered []message.Message
}

func (r *recorder) deliver(m message.Message) bool {
	r.Lock()
	defer r.Unlock()
	r.delivered = append(r.delivered, m)
	return true
}

func (r *recorder) seqs(sender string) []uint32 {
	r.Lock()
	defer r.Unlock()
	res := []uint32{}
	for _, m := range r.delivered {
		if m.SenderID() == sender {
			res = append(res, m.SequenceNumber())
		}
	}
	return res
}

func checkSeqs(t *testing.T, got []uint32, exp ...uint32) {
	t.Helper()
	if len(got) != len(exp) {
		t.Fatalf("delivered should be %v, not %v", exp, got)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Fatalf("delivered should be %v, not %v", exp, got)
		}
	}
}

func TestAdmitInOrder(t *testing.T) {
	table := NewTable()
	rec := &recorder{}

	for i := uint32(1); i <= 5; i++ {
		if v := table.Admit(newMessage(t, "a", i), rec.deliver); v != Deliver {
			t.Fatalf("message %d should be delivered, got %v", i, v)
		}
		if ls := table.LastSeq("a"); ls != i {
			t.Fatalf("LastSeq should be %d, not %d", i, ls)
		}
	}

	checkSeqs(t, rec.seqs("a"), 1, 2, 3, 4, 5)
}

func TestAdmitOutOfOrder(t *testing.T) {
	table := NewTable()
	rec := &recorder{}

	verdicts := []Verdict{}
	nacks := []uint32{}

	for _, seq := range []uint32{3, 1, 2} {
		v := table.Admit(newMessage(t, "a", seq), rec.deliver)
		verdicts = append(verdicts, v)
		if v == Buffer {
			nacks = append(nacks, table.LastSeq("a"))
		}
	}

	if verdicts[0] != Buffer || verdicts[1] != Deliver || verdicts[2] != Deliver {
		t.Fatalf("verdicts should be [Buffer Deliver Deliver], not %v", verdicts)
	}

	if len(nacks) != 1 || nacks[0] != 0 {
		t.Fatalf("a single NACK carrying 0 was expected, got %v", nacks)
	}

	checkSeqs(t, rec.seqs("a"), 1, 2, 3)

	if b := table.Buffered("a"); len(b) != 0 {
		t.Fatalf("buffer should be empty, not %v", b)
	}
}

func TestAdmitGapStaysBuffered(t *testing.T) {
	table := NewTable()
	rec := &recorder{}

	table.Admit(newMessage(t, "a", 1), rec.deliver)
	table.Admit(newMessage(t, "a", 4), rec.deliver)
	table.Admit(newMessage(t, "a", 5), rec.deliver)

	checkSeqs(t, rec.seqs("a"), 1)
	b := table.Buffered("a")
	if len(b) != 2 || b[0] != 4 || b[1] != 5 {
		t.Fatalf("buffer should be [4 5], not %v", b)
	}

	table.Admit(newMessage(t, "a", 3), rec.deliver)
	checkSeqs(t, rec.seqs("a"), 1)

	if v := table.Admit(newMessage(t, "a", 2), rec.deliver); v != Deliver {
		t.Fatalf("message 2 should be delivered, got %v", v)
	}
	checkSeqs(t, rec.seqs("a"), 1, 2, 3, 4, 5)
	if ls := table.LastSeq("a"); ls != 5 {
		t.Fatalf("LastSeq should be 5, not %d", ls)
	}
}

func TestAdmitDuplicates(t *testing.T) {
	table := NewTable()
	rec := &recorder{}

	m1 := newMessage(t, "a", 1)
	if v := table.Admit(m1, rec.deliver); v != Deliver {
		t.Fatalf("first admission should deliver, got %v", v)
	}
	for i := 0; i < 3; i++ {
		if v := table.Admit(m1, rec.deliver); v != Discard {
			t.Fatalf("duplicate should be discarded, got %v", v)
		}
	}

	checkSeqs(t, rec.seqs("a"), 1)

	if !table.Delivered("a", m1.UniqueID()) {
		t.Fatalf("%s should be marked delivered", m1.UniqueID())
	}
}

func TestAdmitSendersIndependent(t *testing.T) {
	table := NewTable()
	rec := &recorder{}

	table.Admit(newMessage(t, "a", 2), rec.deliver)
	if v := table.Admit(newMessage(t, "b", 1), rec.deliver); v != Deliver {
		t.Fatalf("b#1 should be delivered regardless of a's gap, got %v", v)
	}

	checkSeqs(t, rec.seqs("a"))
	checkSeqs(t, rec.seqs("b"), 1)

	snap := table.Snapshot()
	if snap["a"].Buffered != 1 || snap["a"].LastSeq != 0 {
		t.Fatalf("unexpected snapshot for a: %+v", snap["a"])
	}
	if snap["b"].LastSeq != 1 {
		t.Fatalf("unexpected snapshot for b: %+v", snap["b"])
	}
}

func TestAdmitConcurrent(t *testing.T) {
	table := NewTable()
	rec := &recorder{}

	senders := []string{"a", "b", "c"}
	n := uint32(200)

	var wg sync.WaitGroup
	for _, s := range senders {
		// Every message is admitted twice from different goroutines, in
		// reverse order, to exercise buffering and duplicates.
		for i := n; i >= 1; i-- {
			m := newMessage(t, s, i)
			wg.Add(2)
			go func() {
				defer wg.Done()
				table.Admit(m, rec.deliver)
			}()
			go func() {
				defer wg.Done()
				table.Admit(m, rec.deliver)
			}()
		}
	}
	wg.Wait()

	for _, s := range senders {
		got := rec.seqs(s)
		if uint32(len(got)) != n {
			t.Fatalf("sender %s: %d messages delivered, expected %d", s, len(got), n)
		}
		for i, seq := range got {
			if seq != uint32(i+1) {
				t.Fatalf("sender %s: position %d holds seq %d", s, i, seq)
			}
		}
	}
}

func TestAdmitRefused(t *testing.T) {
	table := NewTable()
	rec := &recorder{}

	refuse := func(message.Message) bool { return false }

	m1 := newMessage(t, "a", 1)
	if v := table.Admit(m1, refuse); v != Rejected {
		t.Fatalf("refused message should be Rejected, not %s", v)
	}
	if table.LastSeq("a") != 0 || table.Delivered("a", m1.UniqueID()) {
		t.Fatal("refused message should not be recorded")
	}

	// the same message is accepted once the callback accepts it
	if v := table.Admit(m1, rec.deliver); v != Deliver {
		t.Fatalf("retransmission should be delivered, not %s", v)
	}
	checkSeqs(t, rec.seqs("a"), 1)
}

func TestAdmitRefusedWhileDraining(t *testing.T) {
	table := NewTable()
	rec := &recorder{}

	table.Admit(newMessage(t, "a", 2), rec.deliver)
	table.Admit(newMessage(t, "a", 3), rec.deliver)

	// accept 1, refuse what follows
	onlyFirst := func(m message.Message) bool {
		if m.SequenceNumber() != 1 {
			return false
		}
		return rec.deliver(m)
	}

	if v := table.Admit(newMessage(t, "a", 1), onlyFirst); v != Deliver {
		t.Fatalf("seq 1 should be delivered, not %s", v)
	}
	if table.LastSeq("a") != 1 {
		t.Fatalf("LastSeq should be 1, not %d", table.LastSeq("a"))
	}
	checkSeqs(t, table.Buffered("a"), 2, 3)

	if v := table.Admit(newMessage(t, "a", 2), rec.deliver); v != Deliver {
		t.Fatalf("seq 2 should be delivered, not %s", v)
	}
	checkSeqs(t, rec.seqs("a"), 1, 2, 3)
	checkSeqs(t, table.Buffered("a"))
}
