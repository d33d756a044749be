package dapp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsphq/dapphub/pkg/asset"
	"github.com/dsphq/dapphub/pkg/metadata"
)

var testNow = time.UnixMilli(1_600_000_000_000)

func extRow(pkg, pending string, end Millis) AccountExtRow {
	return AccountExtRow{
		ID:             4,
		Account:        "someaccount1",
		Balance:        asset.MustParse("10.0000 DAPP"),
		Package:        pkg,
		PendingPackage: pending,
		PackageEnd:     end,
		Quota:          "1.0000 QUOTA",
		Provider:       "provider1111",
		Service:        "ipfsservice1",
	}
}

func TestBuildSelectedPackagesExpiredCurrentSuppressed(t *testing.T) {
	// Current package lapsed, distinct pending package queued: exactly one
	// record, the pending one, and it is not waiting on anything.
	row := extRow("pkga", "pkgb", Millis(testNow.Add(-time.Hour).UnixMilli()))

	packages := BuildSelectedPackages(row, metadata.Entry{}, metadata.Entry{}, testNow)
	require.Len(t, packages, 1)
	assert.Equal(t, "pkgb", packages[0].PackageID)
	assert.False(t, packages[0].WaitingOnPackage)
	assert.False(t, packages[0].Expires)
}

func TestBuildSelectedPackagesSamePackageSingleRecord(t *testing.T) {
	for _, end := range []Millis{
		Millis(testNow.Add(-time.Hour).UnixMilli()),
		Millis(testNow.Add(time.Hour).UnixMilli()),
	} {
		row := extRow("pkga", "pkga", end)
		packages := BuildSelectedPackages(row, metadata.Entry{}, metadata.Entry{}, testNow)
		require.Len(t, packages, 1, "packageEnd=%d", end)
		assert.Equal(t, "pkga", packages[0].PackageID)
		assert.False(t, packages[0].Expires)
	}
}

func TestBuildSelectedPackagesCurrentAndPending(t *testing.T) {
	row := extRow("pkga", "pkgb", Millis(testNow.Add(time.Hour).UnixMilli()))

	packages := BuildSelectedPackages(row, metadata.Entry{}, metadata.Entry{}, testNow)
	require.Len(t, packages, 2)

	current, pending := packages[0], packages[1]
	assert.Equal(t, "pkga", current.PackageID)
	assert.True(t, current.Expires)
	assert.False(t, current.WaitingOnPackage)

	assert.Equal(t, "pkgb", pending.PackageID)
	assert.False(t, pending.Expires)
	assert.True(t, pending.WaitingOnPackage)
}

func TestBuildSelectedPackagesNoCurrent(t *testing.T) {
	row := extRow("", "pkgb", 0)
	packages := BuildSelectedPackages(row, metadata.Entry{}, metadata.Entry{}, testNow)
	require.Len(t, packages, 1)
	assert.Equal(t, "pkgb", packages[0].PackageID)
	assert.False(t, packages[0].WaitingOnPackage)
}

func TestBuildSelectedPackageIdentityAndMetadata(t *testing.T) {
	row := extRow("pkga", "pkga", 0)
	packages := BuildSelectedPackages(row,
		metadata.Entry{Name: "Provider One", Logo: "logo.png"},
		metadata.Entry{Name: "IPFS", Description: "storage"},
		testNow,
	)
	require.Len(t, packages, 1)
	got := packages[0]
	assert.Equal(t, "someaccount1:pkga:provider1111:ipfsservice1", got.ID)
	assert.Equal(t, "Provider One", got.ProviderName)
	assert.Equal(t, "IPFS", got.ServiceName)
	assert.Equal(t, "storage", got.ServiceDescription)
	assert.Equal(t, "10.0000 DAPP", got.Balance.String())
}

func TestBuildPackageDefinition(t *testing.T) {
	row := PackageRow{
		ID:               1,
		APIEndpoint:      "https://dsp.example",
		PackageJSONURI:   "https://dsp.example/pkg.json",
		PackageID:        "pkg1",
		Service:          "ipfsservice1",
		Provider:         "provider1111",
		Quota:            "10.0000 QUOTA",
		PackagePeriod:    86400,
		MinStakeQuantity: asset.MustParse("10.0000 DAPP"),
		MinUnstakePeriod: 3600,
		Enabled:          1,
	}

	def := BuildPackageDefinition(row, metadata.Entry{Name: "Provider One"}, metadata.Entry{})
	assert.Equal(t, "pkg1:provider1111:ipfsservice1", def.ID)
	assert.True(t, def.Enabled)
	assert.False(t, def.Deprecated)
	assert.Equal(t, "Provider One", def.ProviderName)
	// fallback to raw account name without a directory entry
	assert.Equal(t, "ipfsservice1", def.ServiceName)
	assert.NotNil(t, def.SelectedPackages)
	assert.Empty(t, def.SelectedPackages)
}

func TestBuildPackageDefinitionDeprecated(t *testing.T) {
	for _, endpoint := range []string{"", "null"} {
		def := BuildPackageDefinition(PackageRow{APIEndpoint: endpoint}, metadata.Entry{}, metadata.Entry{})
		assert.True(t, def.Deprecated, "endpoint=%q", endpoint)
	}
}

func TestBuildRefund(t *testing.T) {
	row := RefundRow{
		Account:     "someaccount1",
		Amount:      asset.MustParse("3.0000 DAPP"),
		UnstakeTime: 1_600_000_100_000,
		Provider:    "provider1111",
		Service:     "ipfsservice1",
	}

	refund := BuildRefund(row, true, metadata.Entry{}, metadata.Entry{Name: "IPFS"})
	assert.True(t, refund.AirHodl)
	assert.Equal(t, "provider1111", refund.ProviderName)
	assert.Equal(t, "IPFS", refund.ServiceName)
	assert.Equal(t, Millis(1_600_000_100_000), refund.UnstakeTime)
}

func TestMillisUnmarshal(t *testing.T) {
	var row struct {
		A Millis `json:"a"`
		B Millis `json:"b"`
		C Millis `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":1600000000000,"b":"1600000000000","c":""}`), &row))
	assert.Equal(t, Millis(1_600_000_000_000), row.A)
	assert.Equal(t, Millis(1_600_000_000_000), row.B)
	assert.Equal(t, Millis(0), row.C)
}
