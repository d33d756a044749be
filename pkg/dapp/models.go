// Package dapp holds the domain models of the service marketplace and
// the pure transforms that build them from raw ledger rows.
package dapp

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/dsphq/dapphub/pkg/asset"
)

// StakeSummary aggregates stake over a set of selected packages.
type StakeSummary struct {
	Total      decimal.Decimal `json:"total"`
	Percentage decimal.Decimal `json:"percentage"`
}

// ProviderStake extends StakeSummary with the number of staking records.
type ProviderStake struct {
	Total            decimal.Decimal `json:"total"`
	Percentage       decimal.Decimal `json:"percentage"`
	NumberOfAccounts int             `json:"numberOfAccounts"`
}

// PackageDefinition is a provider's published offer of bounded quota for
// a service. Identity is (packageId, provider, service).
type PackageDefinition struct {
	ID                 string            `json:"id"`
	PackageID          string            `json:"packageId"`
	Provider           string            `json:"provider"`
	Service            string            `json:"service"`
	APIEndpoint        string            `json:"apiEndpoint"`
	PackageJSONURI     string            `json:"packageJsonUri"`
	Quota              string            `json:"quota"`
	PackagePeriod      int64             `json:"packagePeriod"`
	MinStakeQuantity   asset.Asset       `json:"minStakeQuantity"`
	MinUnstakePeriod   int64             `json:"minUnstakePeriod"`
	Enabled            bool              `json:"enabled"`
	Deprecated         bool              `json:"deprecated"`
	ProviderName       string            `json:"providerName"`
	ProviderLogo       string            `json:"providerLogo,omitempty"`
	ServiceName        string            `json:"serviceName"`
	ServiceDescription string            `json:"serviceDescription,omitempty"`
	SelectedPackages   []SelectedPackage `json:"selectedPackages"`
	Staked             StakeSummary      `json:"staked"`

	// Single-definition enrichments, empty on the catalog view.
	ProviderTotalStaked string          `json:"providerTotalStaked,omitempty"`
	ServiceModel        json.RawMessage `json:"serviceModel,omitempty"`
	Details             map[string]any  `json:"details,omitempty"`
	ProviderDetails     map[string]any  `json:"providerDetails,omitempty"`
}

// SelectedPackage is one account's relationship to one package
// definition. Identity is (account, packageId, provider, service).
type SelectedPackage struct {
	ID                 string      `json:"id"`
	PackageID          string      `json:"packageId"`
	Account            string      `json:"account"`
	Provider           string      `json:"provider"`
	Service            string      `json:"service"`
	ProviderName       string      `json:"providerName"`
	ProviderLogo       string      `json:"providerLogo,omitempty"`
	ServiceName        string      `json:"serviceName"`
	ServiceDescription string      `json:"serviceDescription,omitempty"`
	Balance            asset.Asset `json:"balance"`
	AvailableQuota     string      `json:"availableQuota"`
	LastUsage          Millis      `json:"lastUsage"`
	LastReward         Millis      `json:"lastReward"`
	PackageStarted     Millis      `json:"packageStarted"`
	PackageEnd         Millis      `json:"packageEnd"`
	WaitingOnPackage   bool        `json:"waitingOnPackage"`
	Expires            bool        `json:"expires"`

	// Back-filled on the account view with the vesting-token stake.
	StakedAirHodl asset.Asset `json:"stakedAirHodl"`
}

// ServiceRef names a service offered by a provider.
type ServiceRef struct {
	Account string `json:"account"`
	Name    string `json:"name"`
}

// Provider aggregates every package definition published by one account.
type Provider struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Logo     string              `json:"logo,omitempty"`
	Services []ServiceRef        `json:"services"`
	Packages []PackageDefinition `json:"packages"`
	Staked   ProviderStake       `json:"staked"`
}

// Refund is a pending withdrawal, claimable after UnstakeTime.
type Refund struct {
	Amount       asset.Asset `json:"amount"`
	Provider     string      `json:"provider"`
	ProviderName string      `json:"providerName"`
	Service      string      `json:"service"`
	ServiceName  string      `json:"serviceName"`
	UnstakeTime  Millis      `json:"unstakeTime"`
	AirHodl      bool        `json:"airHodl"`
}

// AccountBalance is the composed balance view of an account.
type AccountBalance struct {
	Total         decimal.Decimal    `json:"total"`
	Staked        decimal.Decimal    `json:"staked"`
	PendingRefund decimal.Decimal    `json:"pendingRefund"`
	Available     decimal.Decimal    `json:"available"`
	AirHodl       *VestingBalanceRow `json:"airHodl,omitempty"`
}

// DSPDetails is attached to an account view when the account itself
// provides at least one package definition.
type DSPDetails struct {
	ID       string              `json:"id"`
	Services []ServiceRef        `json:"services"`
	Packages []PackageDefinition `json:"packages"`
	Reward   RewardRow           `json:"reward"`
	Details  map[string]any      `json:"details"`
}

// SelectedSummary indexes every package definition by identity and lists
// the account's own selected packages.
type SelectedSummary struct {
	PackageDefinitions map[string]PackageDefinition `json:"packageDefinitions"`
	Packages           []SelectedPackage            `json:"packages"`
}

// AccountDetails is the full financial and package state of one account.
type AccountDetails struct {
	Name     string          `json:"name"`
	Balance  AccountBalance  `json:"balance"`
	Refunds  []Refund        `json:"refunds"`
	DSP      *DSPDetails     `json:"dsp,omitempty"`
	Selected SelectedSummary `json:"selected"`
}

// Stats is the marketplace-wide rollup view.
type Stats struct {
	Users    StatsTotal  `json:"users"`
	DSP      StatsTotal  `json:"dsp"`
	Packages StatsTotal  `json:"packages"`
	Dapp     StatsSupply `json:"dapp"`
}

// StatsTotal is a single cardinality figure.
type StatsTotal struct {
	Total int `json:"total"`
}

// StatsSupply carries the token supply.
type StatsSupply struct {
	Supply decimal.Decimal `json:"supply"`
}
