package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
)

// approvedAsset submits and approves asset a1 with carbon/1000.
func approvedAsset(t *testing.T, gw *Gateway) {
	t.Helper()
	ctx := context.Background()
	_, err := gw.SubmitAsset(ctx, "u1", "a1")
	require.NoError(t, err)
	_, err = gw.ApproveAsset(ctx, "admin", "a1", []string{"carbon"}, []*big.Int{big.NewInt(1000)})
	require.NoError(t, err)
}

func TestSimulatedAccounts(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(NewSimulated())

	_, err := gw.RegisterAccount(ctx, "u1", "verifier", "NXaddr")
	require.NoError(t, err)

	_, err = gw.RegisterAccount(ctx, "u1", "verifier", "NXaddr")
	assert.True(t, apperrors.IsLedgerRejected(err))

	ok, err := gw.VerifyRole(ctx, "u1", "verifier")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.VerifyRole(ctx, "u1", "admin")
	require.NoError(t, err)
	assert.False(t, ok)

	receipt, err := gw.BlacklistAccount(ctx, "u1", true)
	require.NoError(t, err)
	ev, found := receipt.FindEvent(EventAccountBlacklisted)
	require.True(t, found)
	assert.Equal(t, AccountBlacklisted{AccountID: "u1", IsBlacklisted: true}, ev.Payload)

	ok, err = gw.IsNotBlacklisted(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := gw.GetAccountData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "verifier", data.Role)
	assert.Equal(t, "NXaddr", data.TxAddress)
	assert.True(t, data.IsBlacklisted)
	assert.True(t, data.Registered)
	assert.Positive(t, data.LastActive.Sign())

	data, err = gw.GetAccountData(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, data.Registered)

	_, err = gw.UpdateLastActive(ctx, "nobody")
	assert.True(t, apperrors.IsLedgerRejected(err))
}

func TestSimulatedDisputeFlow(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(NewSimulated())

	receipt, err := gw.SubmitAsset(ctx, "u1", "a1")
	require.NoError(t, err)
	ev, ok := receipt.FindEvent(EventAssetSubmitted)
	require.True(t, ok)
	assert.Equal(t, "1", ev.Payload.(AssetSubmitted).ID.String())

	receipt, err = gw.RaiseDispute(ctx, "u1", "a1", "wrong meter")
	require.NoError(t, err)
	ev, ok = receipt.FindEvent(EventDisputeRaised)
	require.True(t, ok)
	raised := ev.Payload.(DisputeRaised)
	assert.Equal(t, "a1", raised.AssetID)
	assert.Equal(t, "wrong meter", raised.Reason)

	// a disputed asset can be neither approved nor disputed again
	_, err = gw.ApproveAsset(ctx, "admin", "a1", []string{"carbon"}, []*big.Int{big.NewInt(1)})
	assert.True(t, apperrors.IsLedgerRejected(err))
	_, err = gw.RaiseDispute(ctx, "u1", "a1", "again")
	assert.True(t, apperrors.IsLedgerRejected(err))

	receipt, err = gw.ResolveDispute(ctx, "u1", raised.DisputeID, "recalibrated", "resolved")
	require.NoError(t, err)
	ev, ok = receipt.FindEvent(EventDisputeResolved)
	require.True(t, ok)
	assert.Equal(t, "recalibrated", ev.Payload.(DisputeResolved).Solution)

	_, err = gw.ResolveDispute(ctx, "u1", raised.DisputeID, "recalibrated", "resolved")
	assert.True(t, apperrors.IsLedgerRejected(err))
	_, err = gw.RaiseDispute(ctx, "u1", "a1", "closed now")
	assert.True(t, apperrors.IsLedgerRejected(err))
}

func TestSimulatedApproveAndIssue(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(NewSimulated())
	approvedAsset(t, gw)

	limit, err := gw.GetCreditSupplyLimit(ctx, "a1", "carbon")
	require.NoError(t, err)
	assert.Equal(t, "1000", limit.String())

	types, err := gw.GetCreditTypes(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"carbon"}, types)

	receipt, err := gw.IssueCredits(ctx, "u1", "a1", "p1", "v1", "carbon", big.NewInt(500))
	require.NoError(t, err)
	_, ok := receipt.FindEvent(EventCreditsIssued)
	assert.True(t, ok)

	supply, err := gw.GetSupply(ctx, "p1", "v1", "carbon")
	require.NoError(t, err)
	assert.Equal(t, "500", supply.Issued.String())
	assert.Equal(t, "500", supply.Available.String())

	_, err = gw.IssueCredits(ctx, "u1", "a1", "p1", "v1", "carbon", big.NewInt(501))
	assert.True(t, apperrors.IsLedgerRejected(err))
	_, err = gw.IssueCredits(ctx, "u1", "a1", "p1", "v1", "nitrogen", big.NewInt(1))
	assert.True(t, apperrors.IsLedgerRejected(err))

	registered, err := gw.IsVerifierRegistered(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.True(t, registered)

	producers, err := gw.GetProducers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, producers)

	owner, err := gw.OwnerOf(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)
}

func TestSimulatedSupplyInvariant(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(NewSimulated())
	approvedAsset(t, gw)

	_, err := gw.IssueCredits(ctx, "u1", "a1", "p1", "v1", "carbon", big.NewInt(800))
	require.NoError(t, err)

	receipt, err := gw.BuyCredits(ctx, "buyer", "p1", "v1", "carbon", big.NewInt(300), big.NewInt(12))
	require.NoError(t, err)
	ev, ok := receipt.FindEvent(EventCertificateCreated)
	require.True(t, ok)
	certID := ev.Payload.(CertificateCreated).CertificateID

	_, err = gw.DonateCredits(ctx, "u1", "p1", "v1", "carbon", big.NewInt(100))
	require.NoError(t, err)

	_, err = gw.TransferCredits(ctx, "buyer", "friend", "p1", "v1", "carbon", big.NewInt(50), big.NewInt(12))
	require.NoError(t, err)
	_, err = gw.TransferCredits(ctx, "buyer", "friend", "p1", "v1", "carbon", big.NewInt(251), big.NewInt(12))
	assert.True(t, apperrors.IsLedgerRejected(err))

	supply, err := gw.GetSupply(ctx, "p1", "v1", "carbon")
	require.NoError(t, err)
	assert.Equal(t, "800", supply.Issued.String())
	assert.Equal(t, "400", supply.Available.String())
	assert.Equal(t, "100", supply.Donated.String())
	assert.Equal(t, "300", supply.Sold().String())

	sold, err := gw.GetTotalSold(ctx)
	require.NoError(t, err)
	assert.Equal(t, supply.Sold().String(), sold.String())

	balance, err := gw.GetAccountCreditBalance(ctx, "buyer", "p1", "v1", "carbon")
	require.NoError(t, err)
	assert.Equal(t, "250", balance.String())

	cert, err := gw.GetCertificateByID(ctx, certID)
	require.NoError(t, err)
	assert.Equal(t, "buyer", cert.Recipient)
	assert.Equal(t, "300", cert.Balance.String())
	assert.Equal(t, "12", cert.Price.String())

	ids, err := gw.GetAccountCertificates(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, certID.String(), ids[0].String())

	total, err := gw.GetTotalCertificates(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", total.String())

	_, err = gw.GetCertificateByID(ctx, big.NewInt(99))
	assert.True(t, apperrors.IsLedgerRejected(err))
}

func TestSimulatedSuppressEvent(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated()
	gw := newTestGateway(sim)
	approvedAsset(t, gw)
	_, err := gw.IssueCredits(ctx, "u1", "a1", "p1", "v1", "carbon", big.NewInt(10))
	require.NoError(t, err)

	sim.SuppressEvent(EventCertificateCreated, true)
	receipt, err := gw.BuyCredits(ctx, "buyer", "p1", "v1", "carbon", big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)

	_, ok := receipt.FindEvent(EventCertificateCreated)
	assert.False(t, ok)
	_, ok = receipt.FindEvent(EventCreditsBought)
	assert.True(t, ok)

	ids, err := gw.GetAccountCertificates(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSimulatedBlocks(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated()
	gw := newTestGateway(sim)

	count, err := sim.BlockCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	receipt, err := gw.RegisterAccount(ctx, "u1", "consumer", "NXaddr")
	require.NoError(t, err)

	count, err = sim.BlockCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	events, err := sim.BlockEvents(ctx, receipt.BlockIndex)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventAccountRegistered, events[0].Name)
	assert.Equal(t, ContractAccounts, events[0].Contract)
	assert.Equal(t, receipt.BlockIndex, events[0].Block)

	_, err = sim.BlockEvents(ctx, 5)
	assert.Error(t, err)
}
