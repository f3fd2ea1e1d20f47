package credits

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
)

type fakeCertLedger struct {
	count   int64
	byOwner map[string][]*big.Int
	certs   map[string]*ledger.Certificate
	reads   int
	err     error
}

func (f *fakeCertLedger) GetTotalCertificates(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.count), f.err
}

func (f *fakeCertLedger) GetAccountCertificates(ctx context.Context, accountID string) ([]*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byOwner[accountID], nil
}

func (f *fakeCertLedger) GetCertificateByID(ctx context.Context, id *big.Int) (*ledger.Certificate, error) {
	f.reads++
	c, ok := f.certs[id.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func cert(id int64, recipient string, k Key, balance int64) *ledger.Certificate {
	return &ledger.Certificate{
		ID:         big.NewInt(id),
		Recipient:  recipient,
		Producer:   k.Producer,
		Verifier:   k.Verifier,
		CreditType: k.CreditType,
		Balance:    big.NewInt(balance),
	}
}

func TestSequencerNextIsCountPlusOne(t *testing.T) {
	seq := NewSequencer(&fakeCertLedger{count: 41})
	p, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", p.CertificateID.Int.String())
	assert.Equal(t, "41", p.BasedOnCount.Int.String())
	assert.False(t, p.ReadAt.IsZero())
}

func TestSequencerResolvePrefersEvent(t *testing.T) {
	fake := &fakeCertLedger{}
	seq := NewSequencer(fake)
	receipt := &ledger.Receipt{TxHash: "0x1", Events: []ledger.Event{
		{Name: ledger.EventCertificateCreated, Payload: ledger.CertificateCreated{
			CertificateID: big.NewInt(9), AccountID: "other", Producer: "p1", Verifier: "v1", CreditType: "carbon", Balance: big.NewInt(5),
		}},
		{Name: ledger.EventCertificateCreated, Payload: ledger.CertificateCreated{
			CertificateID: big.NewInt(7), AccountID: "b1", Producer: "p1", Verifier: "v1", CreditType: "carbon", Balance: big.NewInt(5),
		}},
	}}

	got, source, err := seq.Resolve(context.Background(), receipt, CertificateMatch{Recipient: "b1", Key: carbon})
	require.NoError(t, err)
	assert.Equal(t, SourceEvent, source)
	assert.Equal(t, "7", got.ID.String())
	assert.Zero(t, fake.reads)
}

func TestSequencerResolveLookupNewestFirst(t *testing.T) {
	fake := &fakeCertLedger{
		byOwner: map[string][]*big.Int{"b1": {big.NewInt(3), big.NewInt(8), big.NewInt(12)}},
		certs: map[string]*ledger.Certificate{
			"3":  cert(3, "b1", carbon, 10),
			"8":  cert(8, "b1", carbon, 10),
			"12": cert(12, "b1", Key{Producer: "p1", Verifier: "v1", CreditType: "nitrogen"}, 10),
		},
	}
	seq := NewSequencer(fake)

	got, source, err := seq.Resolve(context.Background(), &ledger.Receipt{TxHash: "0x2"}, CertificateMatch{
		Recipient: "b1", Key: carbon, Balance: big.NewInt(10), Floor: big.NewInt(5),
	})
	require.NoError(t, err)
	assert.Equal(t, SourceLookup, source)
	assert.Equal(t, "8", got.ID.String())
	// 12 then 8; 3 is below the floor
	assert.Equal(t, 2, fake.reads)
}

func TestSequencerResolveUnresolved(t *testing.T) {
	fake := &fakeCertLedger{
		byOwner: map[string][]*big.Int{"b1": {big.NewInt(2)}},
		certs:   map[string]*ledger.Certificate{"2": cert(2, "b1", carbon, 99)},
	}
	seq := NewSequencer(fake)

	_, _, err := seq.Resolve(context.Background(), &ledger.Receipt{TxHash: "0x3"}, CertificateMatch{
		Recipient: "b1", Key: carbon, Balance: big.NewInt(10),
	})
	assert.ErrorIs(t, err, ErrUnresolved)

	fake.err = errors.New("rpc down")
	_, _, err = seq.Resolve(context.Background(), &ledger.Receipt{TxHash: "0x3"}, CertificateMatch{Recipient: "b1", Key: carbon})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnresolved)
}

type fakeClaims map[string]string

func (f fakeClaims) ClaimedBy(ctx context.Context, id string) (string, error) {
	return f[id], nil
}

func twinPurchases() *fakeCertLedger {
	return &fakeCertLedger{
		byOwner: map[string][]*big.Int{"b1": {big.NewInt(4), big.NewInt(5)}},
		certs: map[string]*ledger.Certificate{
			"4": cert(4, "b1", carbon, 10),
			"5": cert(5, "b1", carbon, 10),
		},
	}
}

func TestSequencerResolveAmbiguous(t *testing.T) {
	seq := NewSequencer(twinPurchases())

	_, _, err := seq.Resolve(context.Background(), &ledger.Receipt{TxHash: "0x4"}, CertificateMatch{
		Recipient: "b1", Key: carbon, Balance: big.NewInt(10), Floor: big.NewInt(4),
	})
	require.ErrorIs(t, err, ErrAmbiguous)
	assert.NotErrorIs(t, err, ErrUnresolved)
	assert.Contains(t, err.Error(), "[5 4]")
}

func TestSequencerResolveSkipsClaimed(t *testing.T) {
	want := CertificateMatch{Recipient: "b1", Key: carbon, Balance: big.NewInt(10), Floor: big.NewInt(4)}

	seq := NewSequencer(twinPurchases()).WithClaims(fakeClaims{"5": "0xother"})
	got, source, err := seq.Resolve(context.Background(), &ledger.Receipt{TxHash: "0x4"}, want)
	require.NoError(t, err)
	assert.Equal(t, SourceLookup, source)
	assert.Equal(t, "4", got.ID.String())

	// a claim by the same transaction is its own certificate
	seq = NewSequencer(twinPurchases()).WithClaims(fakeClaims{"4": "0xother", "5": "0x4"})
	got, _, err = seq.Resolve(context.Background(), &ledger.Receipt{TxHash: "0x4"}, want)
	require.NoError(t, err)
	assert.Equal(t, "5", got.ID.String())

	seq = NewSequencer(twinPurchases()).WithClaims(fakeClaims{"4": "0xa", "5": "0xb"})
	_, _, err = seq.Resolve(context.Background(), &ledger.Receipt{TxHash: "0x4"}, want)
	assert.ErrorIs(t, err, ErrUnresolved)
}
