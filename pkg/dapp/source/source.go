// Package source implements the thin per-table read operations against
// the ledger-query interface. It is the only part of the aggregation
// engine that performs I/O; everything downstream is pure transformation.
package source

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/dsphq/dapphub/pkg/asset"
	"github.com/dsphq/dapphub/pkg/chainrpc"
	"github.com/dsphq/dapphub/pkg/dapp"
	"github.com/dsphq/dapphub/pkg/eosname"
)

const (
	tableAccounts    = "accounts"
	tableAccountExt  = "accountext"
	tablePackage     = "package"
	tableStaking     = "staking"
	tableRefunds     = "refunds"
	tableReward      = "reward"
	tableStatExt     = "statext"
	tableStat        = "stat"
	tableProviderMdl = "providermdl"

	secondaryIndex = 2
	keyTypeSHA256  = "sha256"
	encodeTypeHex  = "hex"
)

// Contracts names the on-chain accounts and scopes the engine reads from.
type Contracts struct {
	// Services is the marketplace contract account.
	Services string
	// Vesting is the vesting-token (AirHODL) contract account.
	Vesting string
	// TokenSymbol is the primary staking token symbol.
	TokenSymbol string
	// SymbolScope is the encoded-symbol scope of the accountext and
	// statext tables. Fixed by the contract's schema.
	SymbolScope string
}

// Source exposes one read operation per raw ledger table.
type Source struct {
	rpc       chainrpc.TableReader
	contracts Contracts
	logger    *zap.Logger
}

// New creates a Source over the given table reader.
func New(rpc chainrpc.TableReader, contracts Contracts, logger *zap.Logger) *Source {
	return &Source{rpc: rpc, contracts: contracts, logger: logger}
}

// Contracts returns the configured contract accounts.
func (s *Source) Contracts() Contracts { return s.contracts }

// Balance returns the account's available balance, zero when the account
// has no balance row.
func (s *Source) Balance(ctx context.Context, account string) (asset.Asset, error) {
	rows, err := chainrpc.FetchAll[dapp.BalanceRow](ctx, s.rpc, chainrpc.TableRowsRequest{
		Code:  s.contracts.Services,
		Scope: account,
		Table: tableAccounts,
		Limit: 100,
	})
	if err != nil {
		return asset.Asset{}, err
	}
	if len(rows) == 0 {
		return asset.Zero(s.contracts.TokenSymbol), nil
	}
	return rows[0].Balance, nil
}

// VestingBalance returns the account's vesting-token row, nil when absent.
func (s *Source) VestingBalance(ctx context.Context, account string) (*dapp.VestingBalanceRow, error) {
	resp, err := s.rpc.GetTableRows(ctx, chainrpc.TableRowsRequest{
		Code:  s.contracts.Vesting,
		Scope: account,
		Table: tableAccounts,
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Rows) == 0 {
		return nil, nil
	}
	var row dapp.VestingBalanceRow
	if err := json.Unmarshal(resp.Rows[0], &row); err != nil {
		return nil, fmt.Errorf("decode vesting balance: %w", err)
	}
	return &row, nil
}

// Staked returns all of the account's staking rows.
func (s *Source) Staked(ctx context.Context, account string) ([]dapp.StakingRow, error) {
	return chainrpc.FetchAll[dapp.StakingRow](ctx, s.rpc, chainrpc.TableRowsRequest{
		Code:  s.contracts.Services,
		Scope: account,
		Table: tableStaking,
		Limit: 1000,
	})
}

// Refunds returns all refund rows under the given scope. The vesting
// contract's scope holds vesting-token refunds for every account.
func (s *Source) Refunds(ctx context.Context, scope string) ([]dapp.RefundRow, error) {
	return chainrpc.FetchAll[dapp.RefundRow](ctx, s.rpc, chainrpc.TableRowsRequest{
		Code:  s.contracts.Services,
		Scope: scope,
		Table: tableRefunds,
		Limit: 1000,
	})
}

// PackageRows returns the full package catalog.
func (s *Source) PackageRows(ctx context.Context) ([]dapp.PackageRow, error) {
	return chainrpc.FetchAll[dapp.PackageRow](ctx, s.rpc, chainrpc.TableRowsRequest{
		Code:  s.contracts.Services,
		Scope: s.contracts.Services,
		Table: tablePackage,
		Limit: 1000,
	})
}

// AccountExtRows returns the full account-extension table.
func (s *Source) AccountExtRows(ctx context.Context) ([]dapp.AccountExtRow, error) {
	return chainrpc.FetchAll[dapp.AccountExtRow](ctx, s.rpc, chainrpc.TableRowsRequest{
		Code:  s.contracts.Services,
		Scope: s.contracts.SymbolScope,
		Table: tableAccountExt,
		Limit: 100,
	})
}

// Reward returns the provider's reward summary. Absent rows and failed
// queries both degrade to a zero-valued record; reward is advisory and
// must never fail an account view.
func (s *Source) Reward(ctx context.Context, account string) dapp.RewardRow {
	zero := dapp.RewardRow{
		TotalStaked: "0 " + s.contracts.TokenSymbol,
		Balance:     "0 " + s.contracts.TokenSymbol,
	}

	resp, err := s.rpc.GetTableRows(ctx, chainrpc.TableRowsRequest{
		Code:  s.contracts.Services,
		Scope: account,
		Table: tableReward,
		Limit: 1,
	})
	if err != nil {
		s.logger.Warn("reward lookup failed, using zero record",
			zap.String("account", account), zap.Error(err))
		return zero
	}
	if len(resp.Rows) == 0 {
		return zero
	}
	var row dapp.RewardRow
	if err := json.Unmarshal(resp.Rows[0], &row); err != nil {
		s.logger.Warn("reward row malformed, using zero record",
			zap.String("account", account), zap.Error(err))
		return zero
	}
	return row
}

// TotalStaked returns the marketplace-wide staked total.
func (s *Source) TotalStaked(ctx context.Context) (asset.Asset, error) {
	resp, err := s.rpc.GetTableRows(ctx, chainrpc.TableRowsRequest{
		Code:  s.contracts.Services,
		Scope: s.contracts.SymbolScope,
		Table: tableStatExt,
		Limit: 1,
	})
	if err != nil {
		return asset.Asset{}, err
	}
	if len(resp.Rows) == 0 {
		return asset.Zero(s.contracts.TokenSymbol), nil
	}
	var row dapp.StatExtRow
	if err := json.Unmarshal(resp.Rows[0], &row); err != nil {
		return asset.Asset{}, fmt.Errorf("decode statext: %w", err)
	}
	return row.Staked, nil
}

// TokenStat returns the token supply summary.
func (s *Source) TokenStat(ctx context.Context) (dapp.CurrencyStatRow, error) {
	resp, err := s.rpc.GetTableRows(ctx, chainrpc.TableRowsRequest{
		Code:  s.contracts.Services,
		Scope: s.contracts.TokenSymbol,
		Table: tableStat,
		Limit: 1,
	})
	if err != nil {
		return dapp.CurrencyStatRow{}, err
	}
	if len(resp.Rows) == 0 {
		return dapp.CurrencyStatRow{}, nil
	}
	var row dapp.CurrencyStatRow
	if err := json.Unmarshal(resp.Rows[0], &row); err != nil {
		return dapp.CurrencyStatRow{}, fmt.Errorf("decode stat: %w", err)
	}
	return row, nil
}

// PackageByKey looks up a single package definition through the 3-field
// secondary index. Returns nil (not an error) when the index yields no
// row, so callers can distinguish "does not exist" from a query failure.
func (s *Source) PackageByKey(ctx context.Context, provider, service, packageID string) (*dapp.PackageRow, error) {
	key, err := eosname.BuildChecksumKey(packageID, provider, service)
	if err != nil {
		return nil, err
	}

	resp, err := s.rpc.GetTableRows(ctx, chainrpc.TableRowsRequest{
		Code:          s.contracts.Services,
		Scope:         s.contracts.Services,
		Table:         tablePackage,
		LowerBound:    key,
		KeyType:       keyTypeSHA256,
		EncodeType:    encodeTypeHex,
		IndexPosition: secondaryIndex,
		Limit:         1,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Rows) == 0 {
		return nil, nil
	}
	var row dapp.PackageRow
	if err := json.Unmarshal(resp.Rows[0], &row); err != nil {
		return nil, fmt.Errorf("decode package row: %w", err)
	}
	return &row, nil
}

// VestingStake looks up the vesting-token stake for one account's
// selected package, nil when the account has none.
func (s *Source) VestingStake(ctx context.Context, account, provider, service string) (*dapp.StakingRow, error) {
	key, err := eosname.BuildChecksumKey(account, provider, service)
	if err != nil {
		return nil, err
	}

	resp, err := s.rpc.GetTableRows(ctx, chainrpc.TableRowsRequest{
		Code:          s.contracts.Services,
		Scope:         s.contracts.Vesting,
		Table:         tableStaking,
		LowerBound:    key,
		KeyType:       keyTypeSHA256,
		EncodeType:    encodeTypeHex,
		IndexPosition: secondaryIndex,
		Limit:         1,
	})
	if err != nil {
		return nil, err
	}
	for _, raw := range resp.Rows {
		var row dapp.StakingRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decode staking row: %w", err)
		}
		// The index scan is a lower bound; make sure the row is ours.
		if row.Account == account && row.Provider == provider && row.Service == service {
			return &row, nil
		}
	}
	return nil, nil
}

// ProviderModel returns the provider's service-cost model document for a
// package, nil when the service publishes none.
func (s *Source) ProviderModel(ctx context.Context, service, provider, packageID string) (json.RawMessage, error) {
	resp, err := s.rpc.GetTableRows(ctx, chainrpc.TableRowsRequest{
		Code:       service,
		Scope:      provider,
		Table:      tableProviderMdl,
		LowerBound: packageID,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Rows) == 0 {
		return nil, nil
	}
	var row dapp.ProviderModelRow
	if err := json.Unmarshal(resp.Rows[0], &row); err != nil {
		return nil, fmt.Errorf("decode providermdl row: %w", err)
	}
	return row.Model, nil
}
