package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/dsphq/dapphub/pkg/app/errors"
	"github.com/dsphq/dapphub/pkg/chainrpc"
	"github.com/dsphq/dapphub/pkg/dapp/source"
	"github.com/dsphq/dapphub/pkg/metadata"
)

var svcNow = time.UnixMilli(1_700_000_000_000)

const (
	accountExtKey = "accountext/dappservices/......2ke1.o4"
	catalogKey    = "package/dappservices/dappservices"
	statExtKey    = "statext/dappservices/......2ke1.o4"
)

// fakeLedger routes table queries by (table, code, scope), with secondary
// index lookups kept under their own key.
type fakeLedger struct {
	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	tables map[string][]json.RawMessage
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		calls:  map[string]int{},
		fail:   map[string]error{},
		tables: map[string][]json.RawMessage{},
	}
}

func tableKey(req chainrpc.TableRowsRequest) string {
	k := req.Table + "/" + req.Code + "/" + req.Scope
	if req.IndexPosition == 2 {
		k += "/idx"
	}
	return k
}

func (f *fakeLedger) GetTableRows(_ context.Context, req chainrpc.TableRowsRequest) (*chainrpc.TableRowsResponse, error) {
	key := tableKey(req)
	f.mu.Lock()
	f.calls[key]++
	err := f.fail[key]
	rows := f.tables[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &chainrpc.TableRowsResponse{Rows: rows, More: false}, nil
}

func (f *fakeLedger) add(t *testing.T, key string, doc any) {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	f.mu.Lock()
	f.tables[key] = append(f.tables[key], raw)
	f.mu.Unlock()
}

func (f *fakeLedger) failWith(key string, err error) {
	f.mu.Lock()
	f.fail[key] = err
	f.mu.Unlock()
}

func (f *fakeLedger) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// newFixture wires a Service over a fake ledger with unreachable metadata
// directories, so display names fall back to raw account names.
func newFixture(t *testing.T) (*fakeLedger, *Service) {
	t.Helper()
	ledger := newFakeLedger()
	src := source.New(ledger, source.Contracts{
		Services:    "dappservices",
		Vesting:     "dappairhodl1",
		TokenSymbol: "DAPP",
		SymbolScope: "......2ke1.o4",
	}, zap.NewNop())
	registry := metadata.New("http://127.0.0.1:1/providers.json", "http://127.0.0.1:1/services.json", zap.NewNop())
	svc := New(src, registry, zap.NewNop(), WithClock(func() time.Time { return svcNow }))
	return ledger, svc
}

func packageRowDoc(pkg, provider, service string) map[string]any {
	return map[string]any{
		"id":                 1,
		"api_endpoint":       "https://dsp.example",
		"package_json_uri":   "",
		"package_id":         pkg,
		"service":            service,
		"provider":           provider,
		"quota":              "10.0000 QUOTA",
		"package_period":     86400,
		"min_stake_quantity": "10.0000 DAPP",
		"min_unstake_period": 3600,
		"enabled":            1,
	}
}

func extRowDocFull(account, pkg, provider, service, balance string) map[string]any {
	return map[string]any{
		"id":              1,
		"account":         account,
		"balance":         balance,
		"package":         pkg,
		"pending_package": pkg,
		"package_end":     0,
		"quota":           "1.0000 QUOTA",
		"provider":        provider,
		"service":         service,
	}
}

func extRowDoc(account, pkg, balance string) map[string]any {
	return extRowDocFull(account, pkg, "provider1111", "ipfsservice1", balance)
}

func stakingDoc(account, balance string) map[string]any {
	return map[string]any{
		"id":       1,
		"account":  account,
		"balance":  balance,
		"provider": "provider1111",
		"service":  "ipfsservice1",
	}
}

func refundDoc(account, amount string) map[string]any {
	return map[string]any{
		"id":           1,
		"account":      account,
		"amount":       amount,
		"unstake_time": 1_700_000_100_000,
		"provider":     "provider1111",
		"service":      "ipfsservice1",
	}
}

func TestSelectedPackagesCachedUntilInvalidated(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, accountExtKey, extRowDoc("someaccount1", "pkg1", "100.0000 DAPP"))

	packages, err := svc.GetSelectedPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, "someaccount1", packages[0].Account)
	// metadata directories are unreachable, names fall back
	assert.Equal(t, "provider1111", packages[0].ProviderName)

	_, err = svc.GetSelectedPackages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.callCount(accountExtKey))

	svc.InvalidateCache()

	_, err = svc.GetSelectedPackages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.callCount(accountExtKey))
}

func TestGetPackageDefinitionsStakeRollup(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, catalogKey, packageRowDoc("pkg1", "provider1111", "ipfsservice1"))
	ledger.add(t, accountExtKey, extRowDoc("someaccount1", "pkg1", "100.0000 DAPP"))
	ledger.add(t, accountExtKey, extRowDoc("useraccount1", "pkg1", "300.0000 DAPP"))
	ledger.add(t, statExtKey, map[string]any{"staked": "1000.0000 DAPP"})

	defs, err := svc.GetPackageDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, "pkg1:provider1111:ipfsservice1", def.ID)
	require.Len(t, def.SelectedPackages, 2)
	assert.True(t, def.Staked.Total.Equal(decimal.RequireFromString("400")), def.Staked.Total.String())
	assert.True(t, def.Staked.Percentage.Equal(decimal.RequireFromString("0.4")), def.Staked.Percentage.String())

	// second call is served from cache, no fresh catalog fetch
	_, err = svc.GetPackageDefinitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.callCount(catalogKey))

	svc.InvalidateCache()
	_, err = svc.GetPackageDefinitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.callCount(catalogKey))
}

func TestGetPackageDefinitionsLedgerFailure(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, catalogKey, packageRowDoc("pkg1", "provider1111", "ipfsservice1"))
	ledger.failWith(accountExtKey, errors.New("boom"))

	_, err := svc.GetPackageDefinitions(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure))
}

func TestGetProvidersGroupsCatalog(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, catalogKey, packageRowDoc("pkg1", "provider1111", "ipfsservice1"))
	ledger.add(t, catalogKey, packageRowDoc("pkg2", "provider1111", "ipfsservice1"))
	ledger.add(t, catalogKey, packageRowDoc("pkg1", "provider2222", "ipfsservice1"))
	ledger.add(t, accountExtKey, extRowDoc("someaccount1", "pkg1", "100.0000 DAPP"))
	ledger.add(t, accountExtKey, extRowDocFull("useraccount1", "pkg1", "provider2222", "ipfsservice1", "300.0000 DAPP"))
	ledger.add(t, statExtKey, map[string]any{"staked": "1000.0000 DAPP"})

	providers, err := svc.GetProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 2)

	first := providers[0]
	assert.Equal(t, "provider1111", first.ID)
	assert.Len(t, first.Services, 1)
	assert.Len(t, first.Packages, 2)
	assert.Equal(t, 1, first.Staked.NumberOfAccounts)
	assert.True(t, first.Staked.Total.Equal(decimal.RequireFromString("100")), first.Staked.Total.String())
	assert.True(t, first.Staked.Percentage.Equal(decimal.RequireFromString("0.1")), first.Staked.Percentage.String())

	second := providers[1]
	assert.Equal(t, "provider2222", second.ID)
	assert.True(t, second.Staked.Total.Equal(decimal.RequireFromString("300")), second.Staked.Total.String())
}

func TestGetAccountDetailsAvailableOnly(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, "accounts/dappservices/someaccount1", map[string]any{"balance": "50.0000 DAPP"})

	details, err := svc.GetAccountDetails(context.Background(), "someaccount1")
	require.NoError(t, err)

	assert.Equal(t, "someaccount1", details.Name)
	assert.True(t, details.Balance.Available.Equal(decimal.RequireFromString("50")))
	assert.True(t, details.Balance.Total.Equal(decimal.RequireFromString("50")))
	assert.True(t, details.Balance.Staked.IsZero())
	assert.True(t, details.Balance.PendingRefund.IsZero())
	assert.Nil(t, details.Balance.AirHodl)
	assert.Empty(t, details.Refunds)
	assert.Nil(t, details.DSP)
	assert.Empty(t, details.Selected.Packages)
}

func TestGetAccountDetailsComposedBalance(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, "accounts/dappservices/someaccount1", map[string]any{"balance": "50.0000 DAPP"})
	ledger.add(t, "staking/dappservices/someaccount1", stakingDoc("someaccount1", "10.0000 DAPP"))
	ledger.add(t, "staking/dappservices/someaccount1", stakingDoc("someaccount1", "10.0000 DAPP"))
	ledger.add(t, "refunds/dappservices/someaccount1", refundDoc("someaccount1", "5.0000 DAPP"))
	ledger.add(t, "refunds/dappservices/dappairhodl1", refundDoc("someaccount1", "2.5000 DAPPHDL"))
	ledger.add(t, "refunds/dappservices/dappairhodl1", refundDoc("useraccount1", "9.0000 DAPPHDL"))

	details, err := svc.GetAccountDetails(context.Background(), "someaccount1")
	require.NoError(t, err)

	assert.True(t, details.Balance.Staked.Equal(decimal.RequireFromString("20")), details.Balance.Staked.String())
	assert.True(t, details.Balance.PendingRefund.Equal(decimal.RequireFromString("7.5")), details.Balance.PendingRefund.String())
	assert.True(t, details.Balance.Total.Equal(decimal.RequireFromString("77.5")), details.Balance.Total.String())

	// other accounts' vesting refunds are filtered out
	require.Len(t, details.Refunds, 2)
	assert.False(t, details.Refunds[0].AirHodl)
	assert.True(t, details.Refunds[1].AirHodl)
}

func TestGetAccountDetailsProviderGetsDSPBlock(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, "accounts/dappservices/provider1111", map[string]any{"balance": "1.0000 DAPP"})
	ledger.add(t, catalogKey, packageRowDoc("pkg1", "provider1111", "ipfsservice1"))
	ledger.add(t, catalogKey, packageRowDoc("pkg2", "provider1111", "oracleservic"))

	details, err := svc.GetAccountDetails(context.Background(), "provider1111")
	require.NoError(t, err)
	require.NotNil(t, details.DSP)

	assert.Equal(t, "provider1111", details.DSP.ID)
	assert.Len(t, details.DSP.Services, 2)
	assert.Len(t, details.DSP.Packages, 2)
	// reward table is empty, the zero record stands in
	assert.Equal(t, "0 DAPP", details.DSP.Reward.TotalStaked)
	assert.NotNil(t, details.DSP.Details)
}

func TestGetAccountDetailsVestingStakeBackfill(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, "accounts/dappservices/someaccount1", map[string]any{"balance": "1.0000 DAPP"})
	ledger.add(t, catalogKey, packageRowDoc("pkg1", "provider1111", "ipfsservice1"))
	ledger.add(t, accountExtKey, extRowDoc("someaccount1", "pkg1", "100.0000 DAPP"))
	ledger.add(t, "staking/dappservices/dappairhodl1/idx", map[string]any{
		"id":       1,
		"account":  "someaccount1",
		"balance":  "7.0000 DAPPHDL",
		"provider": "provider1111",
		"service":  "ipfsservice1",
	})

	details, err := svc.GetAccountDetails(context.Background(), "someaccount1")
	require.NoError(t, err)
	require.Len(t, details.Selected.Packages, 1)
	assert.Equal(t, "7.0000 DAPPHDL", details.Selected.Packages[0].StakedAirHodl.String())

	// the cached catalog copy stays untouched
	defs, err := svc.GetPackageDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Len(t, defs[0].SelectedPackages, 1)
	assert.True(t, defs[0].SelectedPackages[0].StakedAirHodl.Amount.IsZero())
}

func TestGetAccountDetailsInvalidName(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.GetAccountDetails(context.Background(), "NotAValidName")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

func TestGetPackageDefinitionNotFound(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.GetPackageDefinition(context.Background(), "provider1111", "ipfsservice1", "pkg1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))
}

func TestGetPackageDefinitionEnriched(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, catalogKey+"/idx", packageRowDoc("pkg1", "provider1111", "ipfsservice1"))
	ledger.add(t, accountExtKey, extRowDoc("someaccount1", "pkg1", "100.0000 DAPP"))
	ledger.add(t, accountExtKey, extRowDocFull("useraccount1", "pkg2", "provider1111", "ipfsservice1", "300.0000 DAPP"))
	ledger.add(t, statExtKey, map[string]any{"staked": "1000.0000 DAPP"})
	ledger.add(t, "providermdl/ipfsservice1/provider1111", map[string]any{
		"package_id": "pkg1",
		"model":      map[string]any{"rate": 1},
	})

	def, err := svc.GetPackageDefinition(context.Background(), "provider1111", "ipfsservice1", "pkg1")
	require.NoError(t, err)
	require.NotNil(t, def)

	assert.Equal(t, "pkg1:provider1111:ipfsservice1", def.ID)
	// only the matching triple contributes to the package stake
	require.Len(t, def.SelectedPackages, 1)
	assert.True(t, def.Staked.Total.Equal(decimal.RequireFromString("100")), def.Staked.Total.String())
	assert.True(t, def.Staked.Percentage.Equal(decimal.RequireFromString("0.1")), def.Staked.Percentage.String())
	// the provider-wide total spans every package the provider serves
	assert.Equal(t, "400.0000 DAPP", def.ProviderTotalStaked)
	assert.JSONEq(t, `{"rate":1}`, string(def.ServiceModel))
	assert.Equal(t, map[string]any{}, def.Details)
	assert.Equal(t, map[string]any{}, def.ProviderDetails)
}

func TestGetPackageDefinitionInvalidName(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.GetPackageDefinition(context.Background(), "Provider", "ipfsservice1", "pkg1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

func TestGetStats(t *testing.T) {
	ledger, svc := newFixture(t)
	ledger.add(t, catalogKey, packageRowDoc("pkg1", "provider1111", "ipfsservice1"))
	ledger.add(t, accountExtKey, extRowDoc("someaccount1", "pkg1", "100.0000 DAPP"))
	ledger.add(t, accountExtKey, extRowDoc("useraccount1", "pkg1", "300.0000 DAPP"))
	ledger.add(t, statExtKey, map[string]any{"staked": "1000.0000 DAPP"})
	ledger.add(t, "stat/dappservices/DAPP", map[string]any{
		"supply":     "170000000.0000 DAPP",
		"max_supply": "10000000000.0000 DAPP",
		"issuer":     "dappservices",
	})

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Users.Total)
	assert.Equal(t, 1, stats.DSP.Total)
	assert.Equal(t, 1, stats.Packages.Total)
	assert.True(t, stats.Dapp.Supply.Equal(decimal.RequireFromString("170000000")), stats.Dapp.Supply.String())
}
