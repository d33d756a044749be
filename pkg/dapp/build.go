package dapp

import (
	"time"

	"github.com/dsphq/dapphub/pkg/metadata"
)

// BuildPackageDefinition builds a catalog model from a raw package row.
// Display metadata falls back to raw account names when the directories
// have no entry. SelectedPackages and Staked are left empty for the
// aggregator to populate.
func BuildPackageDefinition(row PackageRow, providerMeta, serviceMeta metadata.Entry) PackageDefinition {
	return PackageDefinition{
		ID:                 row.PackageID + ":" + row.Provider + ":" + row.Service,
		PackageID:          row.PackageID,
		Provider:           row.Provider,
		Service:            row.Service,
		APIEndpoint:        row.APIEndpoint,
		PackageJSONURI:     row.PackageJSONURI,
		Quota:              row.Quota,
		PackagePeriod:      row.PackagePeriod,
		MinStakeQuantity:   row.MinStakeQuantity,
		MinUnstakePeriod:   row.MinUnstakePeriod,
		Enabled:            row.Enabled == 1,
		Deprecated:         row.APIEndpoint == "" || row.APIEndpoint == "null",
		ProviderName:       displayName(providerMeta, row.Provider),
		ProviderLogo:       providerMeta.Logo,
		ServiceName:        displayName(serviceMeta, row.Service),
		ServiceDescription: serviceMeta.Description,
		SelectedPackages:   []SelectedPackage{},
	}
}

// BuildSelectedPackages applies the current/pending splitting rule to one
// account-extension row. An expired current package is suppressed unless
// it equals the pending one; a distinct pending package always yields its
// own record. The caller supplies "now" so expiry checks stay pure.
func BuildSelectedPackages(row AccountExtRow, providerMeta, serviceMeta metadata.Entry, now time.Time) []SelectedPackage {
	var packages []SelectedPackage
	if row.Package != "" {
		if row.Package == row.PendingPackage || row.PackageEnd.After(now) {
			packages = append(packages, buildSelectedPackage(row.Package, row, providerMeta, serviceMeta, now))
		}
	}
	if row.PendingPackage != "" && row.PendingPackage != row.Package {
		packages = append(packages, buildSelectedPackage(row.PendingPackage, row, providerMeta, serviceMeta, now))
	}
	return packages
}

func buildSelectedPackage(packageID string, row AccountExtRow, providerMeta, serviceMeta metadata.Entry, now time.Time) SelectedPackage {
	waiting := packageID == row.PendingPackage &&
		row.Package != "" && packageID != row.Package &&
		row.PackageEnd.After(now)

	return SelectedPackage{
		ID:                 row.Account + ":" + packageID + ":" + row.Provider + ":" + row.Service,
		PackageID:          packageID,
		Account:            row.Account,
		Provider:           row.Provider,
		Service:            row.Service,
		ProviderName:       displayName(providerMeta, row.Provider),
		ProviderLogo:       providerMeta.Logo,
		ServiceName:        displayName(serviceMeta, row.Service),
		ServiceDescription: serviceMeta.Description,
		Balance:            row.Balance,
		AvailableQuota:     row.Quota,
		LastUsage:          row.LastUsage,
		LastReward:         row.LastReward,
		PackageStarted:     row.PackageStarted,
		PackageEnd:         row.PackageEnd,
		WaitingOnPackage:   waiting,
		Expires:            packageID != row.PendingPackage,
	}
}

// BuildProvider seeds a provider model with empty collections for the
// aggregator to populate.
func BuildProvider(account string, meta metadata.Entry) Provider {
	return Provider{
		ID:       account,
		Name:     displayName(meta, account),
		Logo:     meta.Logo,
		Services: []ServiceRef{},
		Packages: []PackageDefinition{},
	}
}

// BuildRefund builds a refund model, tagging its vesting-token origin.
func BuildRefund(row RefundRow, airHodl bool, providerMeta, serviceMeta metadata.Entry) Refund {
	return Refund{
		Amount:       row.Amount,
		Provider:     row.Provider,
		ProviderName: displayName(providerMeta, row.Provider),
		Service:      row.Service,
		ServiceName:  displayName(serviceMeta, row.Service),
		UnstakeTime:  row.UnstakeTime,
		AirHodl:      airHodl,
	}
}

// After reports whether the millisecond timestamp is after now.
func (m Millis) After(now time.Time) bool {
	return time.UnixMilli(int64(m)).After(now)
}

// Time converts the timestamp to time.Time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

func displayName(meta metadata.Entry, fallback string) string {
	if meta.Name != "" {
		return meta.Name
	}
	return fallback
}
