package fake

import (
	"context"
	"encoding/json"
	"sync"

	"go.dedis.ch/community/contract"
	"go.dedis.ch/community/crypto"
	"go.dedis.ch/community/ledger"
	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

// Reader is a fake implementation of contract.Reader. The reads can be held
// back by a gate to simulate a slow network.
//
// - implements contract.Reader
type Reader struct {
	sync.Mutex

	Calls     *Call
	States    map[string]*state.Snapshot
	Outcome   contract.Outcome
	TxID      string
	ErrRead   error
	ErrDryRun error
	ErrCommit error
	ErrCreate error

	gate    chan struct{}
	entered chan struct{}
}

// NewReader returns a fake reader with no contract.
func NewReader() *Reader {
	return &Reader{
		Calls:   NewCall(),
		States:  make(map[string]*state.Snapshot),
		Outcome: contract.Outcome{Type: contract.OutcomeOK},
		TxID:    "action-tx",
	}
}

// SetState sets the state of the contract.
func (r *Reader) SetState(id string, snap *state.Snapshot) {
	r.Lock()
	r.States[id] = snap
	r.Unlock()
}

// SetError sets the error returned by the reads.
func (r *Reader) SetError(err error) {
	r.Lock()
	r.ErrRead = err
	r.Unlock()
}

// Hold makes the next reads wait until Release is called. The returned
// channel receives a value every time a read is waiting.
func (r *Reader) Hold() <-chan struct{} {
	r.Lock()
	defer r.Unlock()

	r.gate = make(chan struct{})
	r.entered = make(chan struct{}, 100)

	return r.entered
}

// Release lets the held reads go.
func (r *Reader) Release() {
	r.Lock()
	defer r.Unlock()

	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

// Reads returns the number of reads of the contract.
func (r *Reader) Reads(id string) int {
	r.Calls.Lock()
	defer r.Calls.Unlock()

	count := 0
	for _, call := range r.Calls.calls {
		if call[0] == "ReadState" && call[1] == id {
			count++
		}
	}

	return count
}

// ReadState implements contract.Reader.
func (r *Reader) ReadState(ctx context.Context, id string) (*state.Snapshot, error) {
	r.Calls.Add("ReadState", id)

	r.Lock()
	gate := r.gate
	entered := r.entered
	r.Unlock()

	if gate != nil {
		entered <- struct{}{}

		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.Lock()
	defer r.Unlock()

	if r.ErrRead != nil {
		return nil, r.ErrRead
	}

	snap, found := r.States[id]
	if !found {
		return nil, xerrors.Errorf("contract '%s' not found", id)
	}

	return snap, nil
}

// DryRunWrite implements contract.Reader.
func (r *Reader) DryRunWrite(ctx context.Context, id string, signer crypto.Signer,
	input json.RawMessage) (contract.Outcome, error) {

	r.Calls.Add("DryRunWrite", id, input)

	if r.ErrDryRun != nil {
		return contract.Outcome{}, r.ErrDryRun
	}

	return r.Outcome, nil
}

// CommitWrite implements contract.Reader.
func (r *Reader) CommitWrite(ctx context.Context, id string, signer crypto.Signer,
	input json.RawMessage, tags ...ledger.Tag) (string, error) {

	r.Calls.Add("CommitWrite", id, input, tags)

	if r.ErrCommit != nil {
		return "", r.ErrCommit
	}

	return r.TxID, nil
}

// CreateFromPayload implements contract.Reader.
func (r *Reader) CreateFromPayload(ctx context.Context, srcID string, payload []byte,
	signer crypto.Signer, tags ...ledger.Tag) (string, error) {

	r.Calls.Add("CreateFromPayload", srcID, payload, tags)

	if r.ErrCreate != nil {
		return "", r.ErrCreate
	}

	snap, err := state.Decode(payload)
	if err != nil {
		return "", err
	}

	id := "contract-" + srcID
	r.SetState(id, snap)

	return id, nil
}
