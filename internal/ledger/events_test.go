package ledger

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
)

func TestPayloadRoundTrip(t *testing.T) {
	huge, _ := new(big.Int).SetString("340282366920938463463374607431768211457", 10)
	payloads := []Payload{
		DisputeRaised{AssetID: "a1", DisputeID: big.NewInt(4), Reason: "meter", AccountID: "u1"},
		CreditsTransferred{Sender: "s", Receiver: "r", Producer: "p", Verifier: "v", CreditType: "carbon", Amount: huge, Price: big.NewInt(0)},
		CertificateCreated{CertificateID: big.NewInt(9), AccountID: "u1", Producer: "p", Verifier: "v", CreditType: "carbon", Balance: big.NewInt(100)},
		AccountBlacklisted{AccountID: "u1", IsBlacklisted: true},
	}
	for _, p := range payloads {
		decoded, err := DecodePayload(p.EventName(), EncodePayload(p))
		require.NoError(t, err, p.EventName())
		assert.Equal(t, p.Fields(), decoded.Fields(), p.EventName())
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	_, err := DecodePayload(EventCreditsIssued, chain.NewArrayItem(chain.NewStringItem("p")))
	assert.Error(t, err)

	_, err = DecodePayload(EventCreditsIssued, chain.NewStringItem("not an array"))
	assert.Error(t, err)

	p, err := DecodePayload("Transfer", chain.NewArrayItem())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDecodeNotificationsFiltersContracts(t *testing.T) {
	contracts := map[string]ContractName{SimulatedCreditsHash: ContractCredits}
	issued := CreditsIssued{Producer: "p", Verifier: "v", CreditType: "carbon", Amount: big.NewInt(5)}

	events, err := DecodeNotifications(contracts, "0xtx", 12, []chain.Notification{
		{Contract: "0xD2A4CFF31913016155E38E474A2C06D08BE276CF", EventName: "Transfer", State: chain.NewArrayItem()},
		{Contract: "0x6E70630000000000000000000000000000000003", EventName: EventCreditsIssued, State: EncodePayload(issued)},
		{Contract: SimulatedCreditsHash, EventName: "Unknown", State: chain.NewArrayItem()},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ContractCredits, events[0].Contract)
	assert.Equal(t, uint64(12), events[0].Block)
	assert.Equal(t, issued.Fields(), events[0].Payload.Fields())
}

func TestEventJSON(t *testing.T) {
	ev := Event{
		Name:     EventCreditsDonated,
		Contract: ContractCredits,
		TxHash:   "0xtx",
		Block:    3,
		Payload:  CreditsDonated{AccountID: "u1", Producer: "p", Verifier: "v", CreditType: "carbon", Amount: big.NewInt(7)},
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "CreditsDonated", out["name"])
	assert.Equal(t, "credits", out["contract"])
	assert.Equal(t, "0xtx", out["tx_hash"])
	assert.Equal(t, "7", out["data"].(map[string]interface{})["amount"])
}

func TestSupplyKeyOf(t *testing.T) {
	key, ok := SupplyKeyOf(CreditsBought{Producer: "p", Verifier: "v", CreditType: "carbon"})
	require.True(t, ok)
	assert.Equal(t, SupplyKey{Producer: "p", Verifier: "v", CreditType: "carbon"}, key)

	_, ok = SupplyKeyOf(AssetVerified{})
	assert.False(t, ok)

	assert.True(t, IsCreditEvent(EventCertificateCreated))
	assert.False(t, IsCreditEvent(EventDisputeRaised))
}
