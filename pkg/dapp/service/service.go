// Package service implements the aggregation engine. It composes raw
// table reads into the dashboard view models, fanning the independent
// ledger queries out in parallel and memoizing the two marketplace-wide
// collections every view starts from.
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/dsphq/dapphub/pkg/app/errors"
	"github.com/dsphq/dapphub/pkg/asset"
	"github.com/dsphq/dapphub/pkg/dapp"
	"github.com/dsphq/dapphub/pkg/dapp/source"
	"github.com/dsphq/dapphub/pkg/eosname"
	"github.com/dsphq/dapphub/pkg/metadata"
)

// Service aggregates ledger state into the dashboard views.
type Service struct {
	source     *source.Source
	registry   *metadata.Registry
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	selectedPackages   *resultCache[[]dapp.SelectedPackage]
	packageDefinitions *resultCache[[]dapp.PackageDefinition]
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for package expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHTTPClient overrides the client used for detail-document fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.httpClient = client }
}

// New creates the aggregation service.
func New(src *source.Source, registry *metadata.Registry, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		source:     src,
		registry:   registry,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,

		selectedPackages:   newResultCache[[]dapp.SelectedPackage]("selected_packages"),
		packageDefinitions: newResultCache[[]dapp.PackageDefinition]("package_definitions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InvalidateCache drops both memoized collections so the next request
// refetches from the ledger.
func (s *Service) InvalidateCache() {
	s.selectedPackages.Invalidate()
	s.packageDefinitions.Invalidate()
	s.logger.Info("aggregation caches invalidated")
}

// GetSelectedPackages returns every account's selected-package records
// across the whole marketplace. Memoized until invalidated.
func (s *Service) GetSelectedPackages(ctx context.Context) ([]dapp.SelectedPackage, error) {
	return s.selectedPackages.Get(ctx, s.fetchSelectedPackages)
}

func (s *Service) fetchSelectedPackages(ctx context.Context) ([]dapp.SelectedPackage, error) {
	rows, err := s.source.AccountExtRows(ctx)
	if err != nil {
		return nil, apperrors.DependencyFailureError(err, "account extension query failed")
	}

	providers := s.registry.Providers(ctx)
	services := s.registry.Services(ctx)
	now := s.now()

	packages := make([]dapp.SelectedPackage, 0, len(rows))
	for _, row := range rows {
		packages = append(packages, dapp.BuildSelectedPackages(row, providers[row.Provider], services[row.Service], now)...)
	}
	return packages, nil
}

// GetPackageDefinitions returns the full package catalog with each
// definition's selected packages and stake rollup attached. Memoized
// until invalidated.
func (s *Service) GetPackageDefinitions(ctx context.Context) ([]dapp.PackageDefinition, error) {
	return s.packageDefinitions.Get(ctx, s.fetchPackageDefinitions)
}

func (s *Service) fetchPackageDefinitions(ctx context.Context) ([]dapp.PackageDefinition, error) {
	var (
		rows     []dapp.PackageRow
		selected []dapp.SelectedPackage
		total    asset.Asset
	)

	pool := pond.NewPool(3)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	group.SubmitErr(func() (err error) {
		rows, err = s.source.PackageRows(ctx)
		if err != nil {
			return apperrors.DependencyFailureError(err, "package catalog query failed")
		}
		return nil
	})
	group.SubmitErr(func() (err error) {
		selected, err = s.GetSelectedPackages(ctx)
		return err
	})
	group.SubmitErr(func() (err error) {
		total, err = s.source.TotalStaked(ctx)
		if err != nil {
			return apperrors.DependencyFailureError(err, "total staked query failed")
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	byDef := make(map[string][]dapp.SelectedPackage)
	for _, pkg := range selected {
		key := pkg.PackageID + ":" + pkg.Provider + ":" + pkg.Service
		byDef[key] = append(byDef[key], pkg)
	}

	providers := s.registry.Providers(ctx)
	services := s.registry.Services(ctx)

	defs := make([]dapp.PackageDefinition, 0, len(rows))
	for _, row := range rows {
		def := dapp.BuildPackageDefinition(row, providers[row.Provider], services[row.Service])
		if sel := byDef[def.ID]; len(sel) > 0 {
			def.SelectedPackages = sel
		}
		def.Staked = stakeSummary(def.SelectedPackages, total.Amount)
		defs = append(defs, def)
	}
	return defs, nil
}

// GetProviders groups the package catalog by providing account, with
// per-provider stake rollups computed against the marketplace total.
func (s *Service) GetProviders(ctx context.Context) ([]dapp.Provider, error) {
	defs, err := s.GetPackageDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.source.TotalStaked(ctx)
	if err != nil {
		return nil, apperrors.DependencyFailureError(err, "total staked query failed")
	}
	providersMeta := s.registry.Providers(ctx)

	var order []string
	byProvider := make(map[string]*dapp.Provider)
	for _, def := range defs {
		p, ok := byProvider[def.Provider]
		if !ok {
			built := dapp.BuildProvider(def.Provider, providersMeta[def.Provider])
			p = &built
			byProvider[def.Provider] = p
			order = append(order, def.Provider)
		}
		if !hasService(p.Services, def.Service) {
			p.Services = append(p.Services, dapp.ServiceRef{Account: def.Service, Name: def.ServiceName})
		}
		p.Packages = append(p.Packages, def)
	}

	providers := make([]dapp.Provider, 0, len(order))
	for _, account := range order {
		p := byProvider[account]
		stake := dapp.ProviderStake{Total: decimal.Zero, Percentage: decimal.Zero}
		for _, pkg := range p.Packages {
			for _, sel := range pkg.SelectedPackages {
				stake.Total = stake.Total.Add(sel.Balance.Amount)
				stake.NumberOfAccounts++
			}
		}
		stake.Percentage = asset.Share(stake.Total, total.Amount)
		p.Staked = stake
		providers = append(providers, *p)
	}
	return providers, nil
}

// GetAccountDetails composes the full financial and package state of one
// account. Balance components, refunds and the package catalog are
// required; the vesting-token balance, reward summary and detail
// documents degrade to empty values on failure.
func (s *Service) GetAccountDetails(ctx context.Context, account string) (*dapp.AccountDetails, error) {
	if _, err := eosname.EncodeName(account); err != nil {
		return nil, apperrors.BadRequestError(err, "invalid account name")
	}
	contracts := s.source.Contracts()

	var (
		available      asset.Asset
		defs           []dapp.PackageDefinition
		staked         []dapp.StakingRow
		refunds        []dapp.RefundRow
		vestingRefunds []dapp.RefundRow
		reward         dapp.RewardRow
		vesting        *dapp.VestingBalanceRow
	)

	pool := pond.NewPool(7)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	group.SubmitErr(func() (err error) {
		available, err = s.source.Balance(ctx, account)
		if err != nil {
			return apperrors.DependencyFailureError(err, "balance query failed")
		}
		return nil
	})
	group.SubmitErr(func() (err error) {
		defs, err = s.GetPackageDefinitions(ctx)
		return err
	})
	group.SubmitErr(func() (err error) {
		staked, err = s.source.Staked(ctx, account)
		if err != nil {
			return apperrors.DependencyFailureError(err, "staking query failed")
		}
		return nil
	})
	group.SubmitErr(func() (err error) {
		refunds, err = s.source.Refunds(ctx, account)
		if err != nil {
			return apperrors.DependencyFailureError(err, "refunds query failed")
		}
		return nil
	})
	group.SubmitErr(func() error {
		rows, err := s.source.Refunds(ctx, contracts.Vesting)
		if err != nil {
			return apperrors.DependencyFailureError(err, "vesting refunds query failed")
		}
		for _, row := range rows {
			if row.Account == account {
				vestingRefunds = append(vestingRefunds, row)
			}
		}
		return nil
	})
	group.Submit(func() {
		reward = s.source.Reward(ctx, account)
	})
	group.Submit(func() {
		row, err := s.source.VestingBalance(ctx, account)
		if err != nil {
			s.logger.Warn("vesting balance lookup failed",
				zap.String("account", account), zap.Error(err))
			return
		}
		vesting = row
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	stakedTotal := decimal.Zero
	for _, row := range staked {
		stakedTotal = stakedTotal.Add(row.Balance.Amount)
	}
	pendingRefund := decimal.Zero
	for _, row := range refunds {
		pendingRefund = pendingRefund.Add(row.Amount.Amount)
	}
	for _, row := range vestingRefunds {
		pendingRefund = pendingRefund.Add(row.Amount.Amount)
	}

	providersMeta := s.registry.Providers(ctx)
	servicesMeta := s.registry.Services(ctx)

	details := &dapp.AccountDetails{
		Name: account,
		Balance: dapp.AccountBalance{
			Total:         available.Amount.Add(stakedTotal).Add(pendingRefund),
			Staked:        stakedTotal,
			PendingRefund: pendingRefund,
			Available:     available.Amount,
			AirHodl:       vesting,
		},
		Refunds: make([]dapp.Refund, 0, len(refunds)+len(vestingRefunds)),
	}
	for _, row := range refunds {
		details.Refunds = append(details.Refunds,
			dapp.BuildRefund(row, false, providersMeta[row.Provider], servicesMeta[row.Service]))
	}
	for _, row := range vestingRefunds {
		details.Refunds = append(details.Refunds,
			dapp.BuildRefund(row, true, providersMeta[row.Provider], servicesMeta[row.Service]))
	}

	var provided []dapp.PackageDefinition
	for _, def := range defs {
		if def.Provider == account {
			provided = append(provided, def)
		}
	}
	if len(provided) > 0 {
		dsp := &dapp.DSPDetails{
			ID:       account,
			Services: []dapp.ServiceRef{},
			Packages: provided,
			Reward:   reward,
		}
		for _, def := range provided {
			if !hasService(dsp.Services, def.Service) {
				dsp.Services = append(dsp.Services, dapp.ServiceRef{Account: def.Service, Name: def.ServiceName})
			}
		}
		dsp.Details = s.providerDetailsFromPackage(ctx, provided[0])
		details.DSP = dsp
	}

	// Index the whole catalog and pull out this account's own selected
	// packages. The records are value copies, so the vesting back-fill
	// below never touches the cached collections.
	selected := dapp.SelectedSummary{
		PackageDefinitions: make(map[string]dapp.PackageDefinition, len(defs)),
		Packages:           []dapp.SelectedPackage{},
	}
	for _, def := range defs {
		selected.PackageDefinitions[def.ID] = def
		for _, pkg := range def.SelectedPackages {
			if pkg.Account == account {
				selected.Packages = append(selected.Packages, pkg)
			}
		}
	}

	if err := s.backfillVestingStakes(ctx, account, selected.Packages); err != nil {
		return nil, err
	}
	details.Selected = selected

	return details, nil
}

// backfillVestingStakes annotates each selected package with the
// account's vesting-token stake for its provider/service pair. Lookups
// are best effort: a failed or absent row leaves a zero stake.
func (s *Service) backfillVestingStakes(ctx context.Context, account string, packages []dapp.SelectedPackage) error {
	if len(packages) == 0 {
		return nil
	}
	zero := asset.Zero(s.source.Contracts().TokenSymbol)

	stakes := xsync.NewMap[string, asset.Asset]()
	pool := pond.NewPool(4)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, pkg := range packages {
		provider, service := pkg.Provider, pkg.Service
		if _, loaded := stakes.LoadOrStore(provider+":"+service, zero); loaded {
			continue
		}
		group.Submit(func() {
			row, err := s.source.VestingStake(ctx, account, provider, service)
			if err != nil {
				s.logger.Warn("vesting stake lookup failed",
					zap.String("account", account),
					zap.String("provider", provider),
					zap.String("service", service),
					zap.Error(err))
				return
			}
			if row != nil {
				stakes.Store(provider+":"+service, row.Balance)
			}
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i := range packages {
		pkg := &packages[i]
		if stake, ok := stakes.Load(pkg.Provider + ":" + pkg.Service); ok {
			pkg.StakedAirHodl = stake
		} else {
			pkg.StakedAirHodl = zero
		}
	}
	return nil
}

// GetPackageDefinition resolves a single package by its identity triple
// through the checksum secondary index and enriches it with the
// provider-wide stake, the service cost model and the off-chain detail
// documents.
func (s *Service) GetPackageDefinition(ctx context.Context, provider, service, packageID string) (*dapp.PackageDefinition, error) {
	for _, name := range []string{provider, service, packageID} {
		if _, err := eosname.EncodeName(name); err != nil {
			return nil, apperrors.BadRequestError(err, "invalid name: "+name)
		}
	}

	var (
		row      *dapp.PackageRow
		selected []dapp.SelectedPackage
		total    asset.Asset
		model    json.RawMessage
	)

	pool := pond.NewPool(4)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	group.SubmitErr(func() (err error) {
		row, err = s.source.PackageByKey(ctx, provider, service, packageID)
		if err != nil {
			return apperrors.DependencyFailureError(err, "package lookup failed")
		}
		return nil
	})
	group.SubmitErr(func() (err error) {
		selected, err = s.GetSelectedPackages(ctx)
		return err
	})
	group.SubmitErr(func() (err error) {
		total, err = s.source.TotalStaked(ctx)
		if err != nil {
			return apperrors.DependencyFailureError(err, "total staked query failed")
		}
		return nil
	})
	group.Submit(func() {
		m, err := s.source.ProviderModel(ctx, service, provider, packageID)
		if err != nil {
			s.logger.Warn("service model lookup failed",
				zap.String("provider", provider),
				zap.String("service", service),
				zap.String("package", packageID),
				zap.Error(err))
			return
		}
		model = m
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperrors.ResourceNotFoundError(nil, "package not found")
	}

	providersMeta := s.registry.Providers(ctx)
	servicesMeta := s.registry.Services(ctx)

	def := dapp.BuildPackageDefinition(*row, providersMeta[row.Provider], servicesMeta[row.Service])

	providerTotal := decimal.Zero
	for _, pkg := range selected {
		if pkg.Provider == def.Provider {
			providerTotal = providerTotal.Add(pkg.Balance.Amount)
		}
		if pkg.PackageID == def.PackageID && pkg.Provider == def.Provider && pkg.Service == def.Service {
			def.SelectedPackages = append(def.SelectedPackages, pkg)
		}
	}
	def.Staked = stakeSummary(def.SelectedPackages, total.Amount)
	def.ProviderTotalStaked = asset.FromDecimal(providerTotal, s.source.Contracts().TokenSymbol).String()
	def.ServiceModel = model

	def.Details = s.packageDetails(ctx, def)
	if uri, ok := def.Details["dsp_json_uri"].(string); ok && uri != "" {
		def.ProviderDetails = s.providerDetails(ctx, uri)
	} else {
		def.ProviderDetails = map[string]any{}
	}

	return &def, nil
}

// GetStats returns the marketplace-wide rollup.
func (s *Service) GetStats(ctx context.Context) (*dapp.Stats, error) {
	var (
		defs      []dapp.PackageDefinition
		selected  []dapp.SelectedPackage
		providers []dapp.Provider
		stat      dapp.CurrencyStatRow
	)

	pool := pond.NewPool(4)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	group.SubmitErr(func() (err error) {
		defs, err = s.GetPackageDefinitions(ctx)
		return err
	})
	group.SubmitErr(func() (err error) {
		selected, err = s.GetSelectedPackages(ctx)
		return err
	})
	group.SubmitErr(func() (err error) {
		providers, err = s.GetProviders(ctx)
		return err
	})
	group.SubmitErr(func() (err error) {
		stat, err = s.source.TokenStat(ctx)
		if err != nil {
			return apperrors.DependencyFailureError(err, "token stat query failed")
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	accounts := make(map[string]struct{})
	for _, pkg := range selected {
		accounts[pkg.Account] = struct{}{}
	}

	return &dapp.Stats{
		Users:    dapp.StatsTotal{Total: len(accounts)},
		DSP:      dapp.StatsTotal{Total: len(providers)},
		Packages: dapp.StatsTotal{Total: len(defs)},
		Dapp:     dapp.StatsSupply{Supply: stat.Supply.Amount},
	}, nil
}

func (s *Service) packageDetails(ctx context.Context, def dapp.PackageDefinition) map[string]any {
	if def.PackageJSONURI == "" {
		return map[string]any{}
	}
	doc, err := metadata.FetchJSON(ctx, s.httpClient, def.PackageJSONURI)
	if err != nil {
		s.logger.Warn("package details fetch failed",
			zap.String("package", def.ID),
			zap.String("uri", def.PackageJSONURI),
			zap.Error(err))
		return map[string]any{}
	}
	return doc
}

func (s *Service) providerDetails(ctx context.Context, uri string) map[string]any {
	doc, err := metadata.FetchJSON(ctx, s.httpClient, uri)
	if err != nil {
		s.logger.Warn("provider details fetch failed",
			zap.String("uri", uri),
			zap.Error(err))
		return map[string]any{}
	}
	return doc
}

func (s *Service) providerDetailsFromPackage(ctx context.Context, def dapp.PackageDefinition) map[string]any {
	doc := s.packageDetails(ctx, def)
	if uri, ok := doc["dsp_json_uri"].(string); ok && uri != "" {
		return s.providerDetails(ctx, uri)
	}
	return map[string]any{}
}

func stakeSummary(packages []dapp.SelectedPackage, total decimal.Decimal) dapp.StakeSummary {
	sum := decimal.Zero
	for _, pkg := range packages {
		sum = sum.Add(pkg.Balance.Amount)
	}
	return dapp.StakeSummary{
		Total:      sum,
		Percentage: asset.Share(sum, total),
	}
}

func hasService(services []dapp.ServiceRef, account string) bool {
	for _, s := range services {
		if s.Account == account {
			return true
		}
	}
	return false
}
