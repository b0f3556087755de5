package contract

import (
	"encoding/json"
	"testing"

	"licenseledger/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// issueActive drives a digest through submit, approve and issue so integrity
// tests start from an Active license.
func issueActive(t *testing.T, c *LicenseManagerContract, adminCtx, ownerCtx *fakeTxContext, digest string) {
	t.Helper()
	submitApproved(t, c, adminCtx, ownerCtx, digest, "FairTrade", "1.0.0")
	require.NoError(t, c.IssueLicense(ownerCtx, digest, "FairTrade"))
}

func TestCheckAuthenticityMatch(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)
	aliceCtx := registerApproved(t, c, stub, adminCtx, aliceFullID, "alice@example.com")
	issueActive(t, c, adminCtx, aliceCtx, digestA)

	// Anyone holding the key can verify, registered or not.
	verdict, err := c.CheckAuthenticity(ctxFor(stub, eveFullID), digestA, digestA)
	require.NoError(t, err)
	assert.True(t, verdict.Authentic)
	assert.Empty(t, verdict.Reason)

	// Verification is read-only when the digests match.
	lic, err := c.GetLicense(aliceCtx, digestA)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseActive, lic.State)
}

func TestCheckAuthenticityNoLicense(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)

	// An unknown key is a negative verdict, not an operation error.
	verdict, err := c.CheckAuthenticity(adminCtx, digestB, digestB)
	require.NoError(t, err)
	assert.False(t, verdict.Authentic)
	assert.Equal(t, ReasonNoLicense, verdict.Reason)
}

func TestCheckAuthenticityMismatchMarksTampered(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)
	aliceCtx := registerApproved(t, c, stub, adminCtx, aliceFullID, "alice@example.com")
	issueActive(t, c, adminCtx, aliceCtx, digestA)

	verdict, err := c.CheckAuthenticity(aliceCtx, digestA, digestB)
	require.NoError(t, err)
	assert.False(t, verdict.Authentic)
	assert.Equal(t, ReasonContentModified, verdict.Reason)

	lic, err := c.GetLicense(aliceCtx, digestA)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseTampered, lic.State)

	events := stub.eventsNamed("LicenseTampered")
	require.Len(t, events, 1)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(events[0], &payload))
	assert.Equal(t, digestA, payload["key"])
	assert.Equal(t, aliceFullID, payload["reporter"])
}

func TestCheckAuthenticityRepeatedMismatch(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)
	aliceCtx := registerApproved(t, c, stub, adminCtx, aliceFullID, "alice@example.com")
	issueActive(t, c, adminCtx, aliceCtx, digestA)

	// First mismatch trips the transition, further ones only report.
	_, err := c.CheckAuthenticity(aliceCtx, digestA, digestB)
	require.NoError(t, err)
	verdict, err := c.CheckAuthenticity(aliceCtx, digestA, digestC)
	require.NoError(t, err)
	assert.False(t, verdict.Authentic)
	assert.Equal(t, ReasonContentModified, verdict.Reason)

	assert.Len(t, stub.eventsNamed("LicenseTampered"), 1)
}

func TestCheckAuthenticityCompromisedLicense(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)
	aliceCtx := registerApproved(t, c, stub, adminCtx, aliceFullID, "alice@example.com")
	issueActive(t, c, adminCtx, aliceCtx, digestA)

	// Tamper, then present the genuine bytes again. The content matches
	// but the license never returns to Active.
	_, err := c.CheckAuthenticity(aliceCtx, digestA, digestB)
	require.NoError(t, err)

	verdict, err := c.CheckAuthenticity(aliceCtx, digestA, digestA)
	require.NoError(t, err)
	assert.False(t, verdict.Authentic)
	assert.Equal(t, ReasonCompromised, verdict.Reason)

	lic, err := c.GetLicense(aliceCtx, digestA)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseTampered, lic.State)
}

func TestReportCracked(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)
	aliceCtx := registerApproved(t, c, stub, adminCtx, aliceFullID, "alice@example.com")
	issueActive(t, c, adminCtx, aliceCtx, digestA)

	require.NoError(t, c.ReportCracked(aliceCtx, digestA))

	lic, err := c.GetLicense(aliceCtx, digestA)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseCracked, lic.State)

	events := stub.eventsNamed("LicenseCracked")
	require.Len(t, events, 1)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(events[0], &payload))
	assert.Equal(t, digestA, payload["key"])
	assert.Equal(t, aliceFullID, payload["reporter"])

	// Cracked is terminal.
	err = c.ReportCracked(aliceCtx, digestA)
	require.ErrorIs(t, err, ErrAlreadyCracked)
}

func TestReportCrackedFromTampered(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)
	aliceCtx := registerApproved(t, c, stub, adminCtx, aliceFullID, "alice@example.com")
	issueActive(t, c, adminCtx, aliceCtx, digestA)

	_, err := c.CheckAuthenticity(aliceCtx, digestA, digestB)
	require.NoError(t, err)
	require.NoError(t, c.ReportCracked(aliceCtx, digestA))

	lic, err := c.GetLicense(aliceCtx, digestA)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseCracked, lic.State)
}

func TestReportCrackedNotFound(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)

	err := c.ReportCracked(adminCtx, digestB)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCrackedStateIsMonotonic(t *testing.T) {
	c := &LicenseManagerContract{}
	stub := newFakeStub()
	adminCtx := bootstrapAdmin(t, c, stub)
	aliceCtx := registerApproved(t, c, stub, adminCtx, aliceFullID, "alice@example.com")
	issueActive(t, c, adminCtx, aliceCtx, digestA)

	require.NoError(t, c.ReportCracked(aliceCtx, digestA))

	// A mismatching check against a cracked license reports compromise
	// without rewriting the state or emitting a tamper event.
	verdict, err := c.CheckAuthenticity(aliceCtx, digestA, digestB)
	require.NoError(t, err)
	assert.False(t, verdict.Authentic)
	assert.Equal(t, ReasonContentModified, verdict.Reason)

	lic, err := c.GetLicense(aliceCtx, digestA)
	require.NoError(t, err)
	assert.Equal(t, model.LicenseCracked, lic.State)
	assert.Empty(t, stub.eventsNamed("LicenseTampered"))
}
