package dapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dsphq/dapphub/pkg/asset"
)

// Millis is a unix-millisecond timestamp that the ledger serializes as
// either a JSON number or a decimal string depending on magnitude.
type Millis int64

// UnmarshalJSON accepts both representations. Empty strings decode to zero.
func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", data, err)
	}
	*m = Millis(v)
	return nil
}

// PackageRow is a raw row of the provider/package catalog table.
type PackageRow struct {
	ID               uint64      `json:"id"`
	APIEndpoint      string      `json:"api_endpoint"`
	PackageJSONURI   string      `json:"package_json_uri"`
	PackageID        string      `json:"package_id"`
	Service          string      `json:"service"`
	Provider         string      `json:"provider"`
	Quota            string      `json:"quota"`
	PackagePeriod    int64       `json:"package_period"`
	MinStakeQuantity asset.Asset `json:"min_stake_quantity"`
	MinUnstakePeriod int64       `json:"min_unstake_period"`
	Enabled          int         `json:"enabled"`
}

// AccountExtRow is a raw row of the per-account package-extension table.
type AccountExtRow struct {
	ID             uint64      `json:"id"`
	Account        string      `json:"account"`
	Balance        asset.Asset `json:"balance"`
	Symbol         string      `json:"symbol"`
	LastUsage      Millis      `json:"last_usage"`
	LastReward     Millis      `json:"last_reward"`
	Package        string      `json:"package"`
	PendingPackage string      `json:"pending_package"`
	PackageStarted Millis      `json:"package_started"`
	PackageEnd     Millis      `json:"package_end"`
	Quota          string      `json:"quota"`
	Provider       string      `json:"provider"`
	Service        string      `json:"service"`
}

// StakingRow is a raw row of the staking table.
type StakingRow struct {
	ID       uint64      `json:"id"`
	Account  string      `json:"account"`
	Balance  asset.Asset `json:"balance"`
	Provider string      `json:"provider"`
	Service  string      `json:"service"`
}

// RefundRow is a raw row of a refunds table.
type RefundRow struct {
	ID          uint64      `json:"id"`
	Account     string      `json:"account"`
	Amount      asset.Asset `json:"amount"`
	UnstakeTime Millis      `json:"unstake_time"`
	Provider    string      `json:"provider"`
	Service     string      `json:"service"`
}

// RewardRow is the provider reward summary row.
type RewardRow struct {
	TotalStaked     string `json:"total_staked"`
	Balance         string `json:"balance"`
	LastUsage       Millis `json:"last_usage"`
	LastInflationTS Millis `json:"last_inflation_ts"`
}

// StatExtRow carries the total-staked summary.
type StatExtRow struct {
	Staked asset.Asset `json:"staked"`
}

// CurrencyStatRow is the token supply summary row.
type CurrencyStatRow struct {
	Supply    asset.Asset `json:"supply"`
	MaxSupply asset.Asset `json:"max_supply"`
	Issuer    string      `json:"issuer"`
}

// BalanceRow is a raw row of a token balances table.
type BalanceRow struct {
	Balance asset.Asset `json:"balance"`
}

// VestingBalanceRow is the vesting-token account row, passed through to
// the account view as-is.
type VestingBalanceRow struct {
	Balance    asset.Asset `json:"balance"`
	Allocation asset.Asset `json:"allocation"`
	Staked     asset.Asset `json:"staked"`
	Claimed    int         `json:"claimed"`
}

// ProviderModelRow holds a provider's service-cost model document.
type ProviderModelRow struct {
	PackageID string          `json:"package_id"`
	Model     json.RawMessage `json:"model"`
}
