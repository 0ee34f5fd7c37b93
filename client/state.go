package client

import (
	"context"

	"go.dedis.ch/community/action"
	"go.dedis.ch/community/state"
	"golang.org/x/xerrors"
)

// StateParams are the parameters of the initial state of a new community.
// Quorum and support are percentages.
type StateParams struct {
	Name          string
	Ticker        string
	Balances      state.Balances
	Quorum        float64
	Support       float64
	VoteLength    uint64
	LockMinLength uint64
	LockMaxLength uint64
	Vault         state.Vault
	Votes         []state.Vote
	Roles         map[string]string
	Extra         [][2]interface{}
}

// DefaultStateParams returns the parameters with the default settings.
func DefaultStateParams() StateParams {
	return StateParams{
		Quorum:        50,
		Support:       50,
		VoteLength:    2000,
		LockMinLength: 720,
		LockMaxLength: 10000,
		Roles:         make(map[string]string),
	}
}

// SetState validates the parameters and prepares the initial state of the
// community that Create will use.
func (c *Community) SetState(params StateParams) (*state.Snapshot, error) {
	if params.Name == "" || params.Ticker == "" {
		return nil, xerrors.Errorf("name and ticker are required: %w", action.ErrInvalidParameter)
	}

	if params.Balances.Total() == 0 && params.Vault.Len() == 0 {
		return nil, xerrors.Errorf("at least one holder is required: %w", action.ErrInvalidParameter)
	}

	var bounds state.Settings
	bounds.Set(state.SettingLockMaxLength, params.LockMaxLength)

	values := []struct {
		key     string
		value   interface{}
		current state.Settings
	}{
		{key: state.SettingQuorum, value: params.Quorum},
		{key: state.SettingSupport, value: params.Support},
		{key: state.SettingVoteLength, value: params.VoteLength},
		{key: state.SettingLockMinLength, value: params.LockMinLength, current: bounds},
		{key: state.SettingLockMaxLength, value: params.LockMaxLength},
	}

	snap := &state.Snapshot{
		Name:     params.Name,
		Ticker:   params.Ticker,
		Balances: params.Balances.Clone(),
		Vault:    params.Vault.Clone(),
		Votes:    append([]state.Vote{}, params.Votes...),
		Roles:    make(map[string]string, len(params.Roles)),
	}

	for _, v := range values {
		value, err := action.CheckSetting(v.key, v.value, v.current)
		if err != nil {
			return nil, err
		}

		snap.Settings.Set(v.key, value)
	}

	for _, pair := range params.Extra {
		key, _ := pair[0].(string)

		value, err := action.CheckSetting(key, pair[1], snap.Settings)
		if err != nil {
			return nil, err
		}

		snap.Settings.Set(key, value)
	}

	for addr, role := range params.Roles {
		snap.Roles[addr] = role
	}

	c.Lock()
	c.draft = snap
	c.Unlock()

	return snap, nil
}

// Create charges the creation fee, creates the community contract from the
// state prepared by SetState and binds the client to it.
func (c *Community) Create(ctx context.Context) (string, error) {
	c.Lock()
	draft := c.draft
	c.Unlock()

	if draft == nil {
		return "", xerrors.New("state of the community is not set")
	}

	payload, err := draft.Encode()
	if err != nil {
		return "", xerrors.Errorf("failed to encode state: %v", err)
	}

	rec, err := c.charger.Charge(ctx, ActionCreate, "", draft.Ticker)
	if err != nil {
		return "", xerrors.Errorf("failed to charge fee: %w", err)
	}

	id, err := c.reader.CreateFromPayload(ctx, c.cfg.ContractSource, payload, c.signer,
		c.charger.Tags(ActionCreate, "", draft.Ticker)...)
	if err != nil {
		return "", xerrors.Errorf("failed to create contract: %v", err)
	}

	c.logger.Info().Str("contract", id).Str("fee-tx", rec.TxID).Msg("community created")

	err = c.BindContract(ctx, id)
	if err != nil {
		return "", err
	}

	return id, nil
}

// Balance returns the total balance of the account, locked or not. The
// address of the member is used when the address is empty.
func (c *Community) Balance(ctx context.Context, addr string) (uint64, error) {
	snap, addr, err := c.lookup(ctx, addr)
	if err != nil {
		return 0, err
	}

	return snap.Balance(addr), nil
}

// UnlockedBalance returns the balance of the account that is not locked.
func (c *Community) UnlockedBalance(ctx context.Context, addr string) (uint64, error) {
	snap, addr, err := c.lookup(ctx, addr)
	if err != nil {
		return 0, err
	}

	return snap.UnlockedBalance(addr), nil
}

// VaultBalance returns the balance of the account locked in the vault.
func (c *Community) VaultBalance(ctx context.Context, addr string) (uint64, error) {
	snap, addr, err := c.lookup(ctx, addr)
	if err != nil {
		return 0, err
	}

	return snap.VaultBalance(addr), nil
}

// Role returns the role of the account in the community.
func (c *Community) Role(ctx context.Context, addr string) (string, error) {
	snap, addr, err := c.lookup(ctx, addr)
	if err != nil {
		return "", err
	}

	return snap.Role(addr), nil
}

func (c *Community) lookup(ctx context.Context, addr string) (*state.Snapshot, string, error) {
	if addr == "" {
		addr = c.address
	}

	snap, err := c.state.GetState(ctx, true)
	if err != nil {
		return nil, "", xerrors.Errorf("failed to get state: %w", err)
	}

	return snap, addr, nil
}
