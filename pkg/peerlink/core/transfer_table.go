package core

import (
	"sync"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
)

// TransferTable is the second associative map from spec.md §3: transfer
// id to TransferRecord, exclusively owned under mu the same way the
// Registry owns peer sessions.
type TransferTable struct {
	mu        sync.Mutex
	transfers map[types.TransferID]*types.TransferRecord
}

func NewTransferTable() *TransferTable {
	return &TransferTable{transfers: make(map[types.TransferID]*types.TransferRecord)}
}

func (t *TransferTable) Insert(r *types.TransferRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transfers[r.ID] = r
}

func (t *TransferTable) Get(id types.TransferID) (*types.TransferRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.transfers[id]
	return r, ok
}

func (t *TransferTable) Remove(id types.TransferID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.transfers, id)
}

// Count returns the number of transfer records not yet in a terminal
// status, for the ActiveTransfers gauge.
func (t *TransferTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.transfers {
		if !r.Status.Kind.Terminal() {
			n++
		}
	}
	return n
}

// RemoveByPeer removes and returns every transfer belonging to peer,
// for use when drop_peer tears down a connection mid-transfer.
func (t *TransferTable) RemoveByPeer(peer types.PeerAddress) []*types.TransferRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*types.TransferRecord
	for id, r := range t.transfers {
		if r.Peer == peer {
			out = append(out, r)
			delete(t.transfers, id)
		}
	}
	return out
}
