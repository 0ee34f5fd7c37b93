// Package contract defines the abstraction of the contract reader.
//
// A reader replays the interactions of a contract to produce its current
// state, and evaluates new interactions, either as a dry run against the
// current state or by committing them to the ledger. How the contract is
// interpreted is the business of the reader.
package contract

import (
	"context"
	"encoding/json"

	"go.dedis.ch/community/crypto"
	"go.dedis.ch/community/ledger"
	"go.dedis.ch/community/state"
)

// Types of outcome of an interaction.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeException = "exception"
)

// Interaction is an input sent to a contract by a caller.
type Interaction struct {
	ID     string          `json:"id"`
	Caller string          `json:"caller"`
	Input  json.RawMessage `json:"input"`
	Height uint64          `json:"height"`
}

// Outcome is the result of the evaluation of an interaction.
type Outcome struct {
	Type    string
	Message string
	Result  json.RawMessage
	State   *state.Snapshot
}

// Failed returns true if the interaction would be rejected by the contract.
func (o Outcome) Failed() bool {
	return o.Type != OutcomeOK
}

// Reader is the interface to read and write a contract.
type Reader interface {
	// ReadState returns the current state of the contract.
	ReadState(ctx context.Context, id string) (*state.Snapshot, error)

	// DryRunWrite evaluates the input against the current state of the
	// contract without committing anything.
	DryRunWrite(ctx context.Context, id string, signer crypto.Signer, input json.RawMessage) (Outcome, error)

	// CommitWrite submits the input to the contract and returns the
	// identifier of the transaction.
	CommitWrite(ctx context.Context, id string, signer crypto.Signer, input json.RawMessage, tags ...ledger.Tag) (string, error)

	// CreateFromPayload creates a new contract from an existing source and an
	// initial state, and returns its identifier.
	CreateFromPayload(ctx context.Context, srcID string, payload []byte, signer crypto.Signer, tags ...ledger.Tag) (string, error)
}
