// Package native implements a contract reader that evaluates the contracts in
// process.
//
// The contracts and their interactions are persisted in a key/value database,
// and every interaction is also recorded as a transaction on the ledger so
// that its sender pays for it. The state of a contract is obtained by
// replaying its interactions on top of the initial state. Interactions that
// the contract rejects are kept but do not change the state. Replayed states
// are cached so that a read only replays the interactions added since the
// previous one.
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"go.dedis.ch/community"
	"go.dedis.ch/community/contract"
	communityexec "go.dedis.ch/community/contract/community"
	"go.dedis.ch/community/core/store/kv"
	"go.dedis.ch/community/crypto"
	"go.dedis.ch/community/ledger"
	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

// Tags added to the transactions of the contracts.
const (
	TagContract    = "Contract"
	TagContractSrc = "Contract-Src"
	TagInput       = "Input"

	AppAction   = "SmartWeaveAction"
	AppContract = "SmartWeaveContract"
	AppVersion  = "0.3.0"
)

// DefaultCacheSize is the default number of states kept in memory.
const DefaultCacheSize = 64

var (
	bucketName = []byte("contracts")

	heightKey        = []byte("height")
	contractPrefix   = "c:"
	interactionsPrfx = "i:"
)

// Executor evaluates an interaction on a state.
type Executor func(snap *state.Snapshot, in contract.Interaction) contract.Outcome

// Option is the type of option to configure the reader.
type Option func(*Reader)

// WithExecutor sets the executor of the contracts.
func WithExecutor(exec Executor) Option {
	return func(r *Reader) {
		r.exec = exec
	}
}

// WithCacheSize sets the number of states kept in memory.
func WithCacheSize(size int) Option {
	return func(r *Reader) {
		r.cacheSize = size
	}
}

// WithLogger sets the logger of the reader.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

type record struct {
	Source string          `json:"source"`
	Owner  string          `json:"owner"`
	Height uint64          `json:"height"`
	Init   json.RawMessage `json:"init"`
}

type replayed struct {
	snap  *state.Snapshot
	count int
}

// Reader is a contract reader that runs the contracts locally.
//
// - implements contract.Reader
type Reader struct {
	db        kv.DB
	ledger    ledger.Client
	exec      Executor
	cacheSize int
	cache     *lru.Cache[string, replayed]
	logger    zerolog.Logger
}

// NewReader creates a reader on top of the database that records the
// interactions on the ledger.
func NewReader(db kv.DB, l ledger.Client, opts ...Option) (*Reader, error) {
	r := &Reader{
		db:        db,
		ledger:    l,
		exec:      communityexec.Outcome,
		cacheSize: DefaultCacheSize,
		logger:    community.Logger.With().Str("component", "contracts").Logger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	cache, err := lru.New[string, replayed](r.cacheSize)
	if err != nil {
		return nil, xerrors.Errorf("failed to create cache: %v", err)
	}

	r.cache = cache

	err = db.Update(bucketName, func(kv.Bucket) error { return nil })
	if err != nil {
		return nil, xerrors.Errorf("failed to init bucket: %v", err)
	}

	return r, nil
}

// ReadState implements contract.Reader. It replays the interactions that are
// not yet part of the cached state.
func (r *Reader) ReadState(ctx context.Context, id string) (*state.Snapshot, error) {
	var rec record
	var interactions []contract.Interaction

	cached, hit := r.cache.Get(id)

	err := r.db.View(bucketName, func(b kv.Bucket) error {
		err := readRecord(b, id, &rec)
		if err != nil {
			return err
		}

		index := 0

		return b.Scan([]byte(interactionsPrfx+id+":"), func(k, v []byte) error {
			index++
			if hit && index <= cached.count {
				return nil
			}

			var in contract.Interaction

			err := json.Unmarshal(v, &in)
			if err != nil {
				return xerrors.Errorf("failed to decode interaction: %v", err)
			}

			interactions = append(interactions, in)

			return nil
		})
	})

	if err != nil {
		return nil, xerrors.Errorf("failed to read contract '%s': %v", id, err)
	}

	if !hit {
		snap, err := state.Decode(rec.Init)
		if err != nil {
			return nil, xerrors.Errorf("invalid initial state: %v", err)
		}

		cached = replayed{snap: snap}
	}

	if hit && len(interactions) == 0 {
		return cached.snap, nil
	}

	snap := cached.snap

	for _, in := range interactions {
		out := r.exec(snap, in)
		if out.Failed() {
			r.logger.Debug().
				Str("contract", id).
				Str("interaction", in.ID).
				Str("reason", out.Message).
				Msg("interaction rejected")

			continue
		}

		snap = out.State
	}

	r.cache.Add(id, replayed{snap: snap, count: cached.count + len(interactions)})

	return snap, nil
}

// DryRunWrite implements contract.Reader. The input is evaluated on the
// current state as if it was sent by the signer at the next height.
func (r *Reader) DryRunWrite(ctx context.Context, id string, signer crypto.Signer,
	input json.RawMessage) (contract.Outcome, error) {

	snap, err := r.ReadState(ctx, id)
	if err != nil {
		return contract.Outcome{}, xerrors.Errorf("failed to read state: %v", err)
	}

	caller, err := crypto.Address(signer.GetPublicKey())
	if err != nil {
		return contract.Outcome{}, xerrors.Errorf("failed to get address: %v", err)
	}

	height, err := r.currentHeight()
	if err != nil {
		return contract.Outcome{}, err
	}

	in := contract.Interaction{
		Caller: caller,
		Input:  input,
		Height: height + 1,
	}

	return r.exec(snap, in), nil
}

// CommitWrite implements contract.Reader. The interaction is submitted to the
// ledger, then appended to the contract.
func (r *Reader) CommitWrite(ctx context.Context, id string, signer crypto.Signer,
	input json.RawMessage, tags ...ledger.Tag) (string, error) {

	err := r.db.View(bucketName, func(b kv.Bucket) error {
		return readRecord(b, id, &record{})
	})
	if err != nil {
		return "", xerrors.Errorf("failed to read contract '%s': %v", id, err)
	}

	caller, err := crypto.Address(signer.GetPublicKey())
	if err != nil {
		return "", xerrors.Errorf("failed to get address: %v", err)
	}

	fields := ledger.Fields{
		Tags: append([]ledger.Tag{
			{Name: ledger.TagAppName, Value: AppAction},
			{Name: ledger.TagAppVersion, Value: AppVersion},
			{Name: TagContract, Value: id},
			{Name: TagInput, Value: string(input)},
		}, tags...),
	}

	txID, err := r.submit(ctx, fields, signer)
	if err != nil {
		return "", err
	}

	err = r.db.Update(bucketName, func(b kv.Bucket) error {
		height, err := nextHeight(b)
		if err != nil {
			return err
		}

		in := contract.Interaction{
			ID:     txID,
			Caller: caller,
			Input:  input,
			Height: height,
		}

		data, err := json.Marshal(in)
		if err != nil {
			return xerrors.Errorf("failed to encode interaction: %v", err)
		}

		return b.Set(interactionKey(id, height), data)
	})

	if err != nil {
		return "", xerrors.Errorf("failed to store interaction: %v", err)
	}

	r.logger.Debug().Str("contract", id).Str("tx", txID).Msg("interaction committed")

	return txID, nil
}

// CreateFromPayload implements contract.Reader. The identifier of the contract
// is the identifier of its creation transaction.
func (r *Reader) CreateFromPayload(ctx context.Context, srcID string, payload []byte,
	signer crypto.Signer, tags ...ledger.Tag) (string, error) {

	_, err := state.Decode(payload)
	if err != nil {
		return "", xerrors.Errorf("invalid initial state: %v", err)
	}

	owner, err := crypto.Address(signer.GetPublicKey())
	if err != nil {
		return "", xerrors.Errorf("failed to get address: %v", err)
	}

	fields := ledger.Fields{
		Data: payload,
		Tags: append([]ledger.Tag{
			{Name: ledger.TagAppName, Value: AppContract},
			{Name: ledger.TagAppVersion, Value: AppVersion},
			{Name: TagContractSrc, Value: srcID},
		}, tags...),
	}

	id, err := r.submit(ctx, fields, signer)
	if err != nil {
		return "", err
	}

	err = r.db.Update(bucketName, func(b kv.Bucket) error {
		height, err := nextHeight(b)
		if err != nil {
			return err
		}

		data, err := json.Marshal(record{
			Source: srcID,
			Owner:  owner,
			Height: height,
			Init:   payload,
		})
		if err != nil {
			return xerrors.Errorf("failed to encode contract: %v", err)
		}

		return b.Set([]byte(contractPrefix+id), data)
	})

	if err != nil {
		return "", xerrors.Errorf("failed to store contract: %v", err)
	}

	r.logger.Info().Str("contract", id).Str("source", srcID).Msg("contract created")

	return id, nil
}

// Height returns the height of the last interaction.
func (r *Reader) Height() (uint64, error) {
	return r.currentHeight()
}

func (r *Reader) submit(ctx context.Context, fields ledger.Fields, signer crypto.Signer) (string, error) {
	tx, err := r.ledger.CreateTransaction(ctx, fields, signer)
	if err != nil {
		return "", xerrors.Errorf("failed to create transaction: %v", err)
	}

	err = r.ledger.Sign(ctx, tx, signer)
	if err != nil {
		return "", xerrors.Errorf("failed to sign transaction: %v", err)
	}

	status, err := r.ledger.Submit(ctx, tx)
	if err != nil {
		return "", xerrors.Errorf("failed to submit: %v", err)
	}

	if !status.Success() {
		return "", xerrors.Errorf("ledger answered %d (%s)", status.Code, status.Message)
	}

	return tx.ID, nil
}

func (r *Reader) currentHeight() (uint64, error) {
	var height uint64

	err := r.db.View(bucketName, func(b kv.Bucket) error {
		var err error
		height, err = readHeight(b)
		return err
	})

	if err != nil {
		return 0, xerrors.Errorf("failed to read height: %v", err)
	}

	return height, nil
}

func readRecord(b kv.Bucket, id string, rec *record) error {
	data := b.Get([]byte(contractPrefix + id))
	if data == nil {
		return xerrors.New("contract not found")
	}

	err := json.Unmarshal(data, rec)
	if err != nil {
		return xerrors.Errorf("failed to decode contract: %v", err)
	}

	return nil
}

func readHeight(b kv.Bucket) (uint64, error) {
	data := b.Get(heightKey)
	if data == nil {
		return 0, nil
	}

	height, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("invalid height: %v", err)
	}

	return height, nil
}

func nextHeight(b kv.Bucket) (uint64, error) {
	height, err := readHeight(b)
	if err != nil {
		return 0, err
	}

	height++

	err = b.Set(heightKey, []byte(strconv.FormatUint(height, 10)))
	if err != nil {
		return 0, xerrors.Errorf("failed to write height: %v", err)
	}

	return height, nil
}

// interactionKey pads the height so that the keys sort in the order of the
// interactions.
func interactionKey(id string, height uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", interactionsPrfx, id, height))
}
