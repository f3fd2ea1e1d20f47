package ledger

import (
	"context"
	"math/big"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
)

// Contract method names.
const (
	MethodRegisterAccount  = "registerAccount"
	MethodBlacklistAccount = "blacklistAccount"
	MethodUpdateLastActive = "updateLastActive"
	MethodVerifyRole       = "verifyRole"
	MethodIsRegistered     = "isRegistered"
	MethodIsNotBlacklisted = "isNotBlacklisted"
	MethodGetAccountData   = "getAccountData"

	MethodSubmitAsset    = "submitAsset"
	MethodApproveAsset   = "approveAsset"
	MethodRaiseDispute   = "raiseDispute"
	MethodResolveDispute = "resolveDispute"

	MethodIssueCredits            = "issueCredits"
	MethodBuyCredits              = "buyCredits"
	MethodTransferCredits         = "transferCredits"
	MethodDonateCredits           = "donateCredits"
	MethodOwnerOf                 = "ownerOf"
	MethodGetCreditTypes          = "getCreditTypes"
	MethodGetCreditSupplyLimit    = "getCreditSupplyLimit"
	MethodGetTotalCertificates    = "getTotalCertificates"
	MethodGetTotalSold            = "getTotalSold"
	MethodIsProducerRegistered    = "isProducerRegistered"
	MethodIsVerifierRegistered    = "isVerifierRegistered"
	MethodGetProducerVerifiers    = "getProducerVerifiers"
	MethodGetSupply               = "getSupply"
	MethodGetCertificateByID      = "getCertificateById"
	MethodGetAccountCertificates  = "getAccountCertificates"
	MethodGetAccountCreditBalance = "getAccountCreditBalance"
	MethodGetProducers            = "getProducers"
	MethodGetRecoveryDuration     = "getRecoveryDuration"
)

var (
	strArg  = chain.NewStringParam
	intArg  = chain.NewIntegerParam
	boolArg = chain.NewBoolParam
)

func accounts(method string, args ...chain.ContractParam) Call {
	return Call{Contract: ContractAccounts, Method: method, Args: args}
}

func verification(method string, args ...chain.ContractParam) Call {
	return Call{Contract: ContractVerification, Method: method, Args: args}
}

func credits(method string, args ...chain.ContractParam) Call {
	return Call{Contract: ContractCredits, Method: method, Args: args}
}

// =============================================================================
// Account Manager
// =============================================================================

func (g *Gateway) RegisterAccount(ctx context.Context, accountID, role, txAddress string) (*Receipt, error) {
	return g.Execute(ctx, accounts(MethodRegisterAccount, strArg(accountID), strArg(role), strArg(txAddress)))
}

func (g *Gateway) BlacklistAccount(ctx context.Context, accountID string, status bool) (*Receipt, error) {
	return g.Execute(ctx, accounts(MethodBlacklistAccount, strArg(accountID), boolArg(status)))
}

func (g *Gateway) UpdateLastActive(ctx context.Context, accountID string) (*Receipt, error) {
	return g.Execute(ctx, accounts(MethodUpdateLastActive, strArg(accountID)))
}

func (g *Gateway) VerifyRole(ctx context.Context, accountID, role string) (bool, error) {
	return g.readBool(ctx, accounts(MethodVerifyRole, strArg(accountID), strArg(role)))
}

func (g *Gateway) IsRegistered(ctx context.Context, accountID string) (bool, error) {
	return g.readBool(ctx, accounts(MethodIsRegistered, strArg(accountID)))
}

func (g *Gateway) IsNotBlacklisted(ctx context.Context, accountID string) (bool, error) {
	return g.readBool(ctx, accounts(MethodIsNotBlacklisted, strArg(accountID)))
}

// GetAccountData returns the (role, txAddress, isBlacklisted, lastActive, registered) tuple.
func (g *Gateway) GetAccountData(ctx context.Context, accountID string) (*AccountData, error) {
	call := accounts(MethodGetAccountData, strArg(accountID))
	item, err := g.readOne(ctx, call)
	if err != nil {
		return nil, err
	}
	fields, err := chain.ParseArrayN(item, 5)
	if err != nil {
		return nil, parseErr(call, err)
	}
	r := &fieldReader{items: fields}
	data := &AccountData{
		Role:          r.string(),
		TxAddress:     r.string(),
		IsBlacklisted: r.boolean(),
		LastActive:    r.integer(),
		Registered:    r.boolean(),
	}
	if r.err != nil {
		return nil, parseErr(call, r.err)
	}
	return data, nil
}

// =============================================================================
// Verification
// =============================================================================

// SubmitAsset submits assetID; the ledger returns the numeric submission id.
func (g *Gateway) SubmitAsset(ctx context.Context, accountID, assetID string) (*Receipt, error) {
	return g.Execute(ctx, verification(MethodSubmitAsset, strArg(accountID), strArg(assetID)))
}

func (g *Gateway) ApproveAsset(ctx context.Context, accountID, assetID string, creditTypes []string, limits []*big.Int) (*Receipt, error) {
	return g.Execute(ctx, verification(MethodApproveAsset,
		strArg(accountID), strArg(assetID),
		chain.NewStringArrayParam(creditTypes),
		chain.NewIntegerArrayParam(limits),
	))
}

func (g *Gateway) RaiseDispute(ctx context.Context, accountID, assetID, reason string) (*Receipt, error) {
	return g.Execute(ctx, verification(MethodRaiseDispute, strArg(accountID), strArg(assetID), strArg(reason)))
}

func (g *Gateway) ResolveDispute(ctx context.Context, accountID string, disputeID *big.Int, solution, status string) (*Receipt, error) {
	return g.Execute(ctx, verification(MethodResolveDispute, strArg(accountID), intArg(disputeID), strArg(solution), strArg(status)))
}

// =============================================================================
// Credits
// =============================================================================

func (g *Gateway) IssueCredits(ctx context.Context, senderID, assetTokenID, producer, verifier, creditType string, amount *big.Int) (*Receipt, error) {
	return g.Execute(ctx, credits(MethodIssueCredits, strArg(senderID), strArg(assetTokenID), strArg(producer), strArg(verifier), strArg(creditType), intArg(amount)))
}

func (g *Gateway) BuyCredits(ctx context.Context, accountID, producer, verifier, creditType string, amount, price *big.Int) (*Receipt, error) {
	return g.Execute(ctx, credits(MethodBuyCredits, strArg(accountID), strArg(producer), strArg(verifier), strArg(creditType), intArg(amount), intArg(price)))
}

func (g *Gateway) TransferCredits(ctx context.Context, senderID, recipientID, producer, verifier, creditType string, amount, price *big.Int) (*Receipt, error) {
	return g.Execute(ctx, credits(MethodTransferCredits, strArg(senderID), strArg(recipientID), strArg(producer), strArg(verifier), strArg(creditType), intArg(amount), intArg(price)))
}

func (g *Gateway) DonateCredits(ctx context.Context, senderID, producer, verifier, creditType string, amount *big.Int) (*Receipt, error) {
	return g.Execute(ctx, credits(MethodDonateCredits, strArg(senderID), strArg(producer), strArg(verifier), strArg(creditType), intArg(amount)))
}

// OwnerOf returns the owner of an asset token.
func (g *Gateway) OwnerOf(ctx context.Context, assetTokenID string) (string, error) {
	call := credits(MethodOwnerOf, strArg(assetTokenID))
	item, err := g.readOne(ctx, call)
	if err != nil {
		return "", err
	}
	owner, err := chain.ParseAddressOrString(item)
	if err != nil {
		return "", parseErr(call, err)
	}
	return owner, nil
}

func (g *Gateway) GetCreditTypes(ctx context.Context, assetTokenID string) ([]string, error) {
	return g.readStrings(ctx, credits(MethodGetCreditTypes, strArg(assetTokenID)))
}

func (g *Gateway) GetCreditSupplyLimit(ctx context.Context, assetTokenID, creditType string) (*big.Int, error) {
	return g.readInt(ctx, credits(MethodGetCreditSupplyLimit, strArg(assetTokenID), strArg(creditType)))
}

func (g *Gateway) GetTotalCertificates(ctx context.Context) (*big.Int, error) {
	return g.readInt(ctx, credits(MethodGetTotalCertificates))
}

func (g *Gateway) GetTotalSold(ctx context.Context) (*big.Int, error) {
	return g.readInt(ctx, credits(MethodGetTotalSold))
}

func (g *Gateway) IsProducerRegistered(ctx context.Context, producer string) (bool, error) {
	return g.readBool(ctx, credits(MethodIsProducerRegistered, strArg(producer)))
}

func (g *Gateway) IsVerifierRegistered(ctx context.Context, producer, verifier string) (bool, error) {
	return g.readBool(ctx, credits(MethodIsVerifierRegistered, strArg(producer), strArg(verifier)))
}

func (g *Gateway) GetProducerVerifiers(ctx context.Context, producer string) ([]string, error) {
	return g.readStrings(ctx, credits(MethodGetProducerVerifiers, strArg(producer)))
}

func (g *Gateway) GetProducers(ctx context.Context) ([]string, error) {
	return g.readStrings(ctx, credits(MethodGetProducers))
}

// GetSupply returns the (issued, available, donated) tuple for a supply key.
func (g *Gateway) GetSupply(ctx context.Context, producer, verifier, creditType string) (*Supply, error) {
	call := credits(MethodGetSupply, strArg(producer), strArg(verifier), strArg(creditType))
	item, err := g.readOne(ctx, call)
	if err != nil {
		return nil, err
	}
	values, err := chain.ParseIntegers(item)
	if err != nil {
		return nil, parseErr(call, err)
	}
	for len(values) < 3 {
		values = append(values, new(big.Int))
	}
	return &Supply{Issued: values[0], Available: values[1], Donated: values[2]}, nil
}

func (g *Gateway) GetCertificateByID(ctx context.Context, id *big.Int) (*Certificate, error) {
	call := credits(MethodGetCertificateByID, intArg(id))
	item, err := g.readOne(ctx, call)
	if err != nil {
		return nil, err
	}
	fields, err := chain.ParseArrayN(item, 8)
	if err != nil {
		return nil, parseErr(call, err)
	}
	r := &fieldReader{items: fields}
	cert := &Certificate{
		ID:         r.integer(),
		Recipient:  r.string(),
		Producer:   r.string(),
		Verifier:   r.string(),
		CreditType: r.string(),
		Balance:    r.integer(),
		Price:      r.integer(),
		Timestamp:  r.integer(),
	}
	if r.err != nil {
		return nil, parseErr(call, r.err)
	}
	return cert, nil
}

func (g *Gateway) GetAccountCertificates(ctx context.Context, accountID string) ([]*big.Int, error) {
	call := credits(MethodGetAccountCertificates, strArg(accountID))
	item, err := g.readOne(ctx, call)
	if err != nil {
		return nil, err
	}
	ids, err := chain.ParseIntegers(item)
	if err != nil {
		return nil, parseErr(call, err)
	}
	return ids, nil
}

func (g *Gateway) GetAccountCreditBalance(ctx context.Context, accountID, producer, verifier, creditType string) (*big.Int, error) {
	return g.readInt(ctx, credits(MethodGetAccountCreditBalance, strArg(accountID), strArg(producer), strArg(verifier), strArg(creditType)))
}

func (g *Gateway) GetRecoveryDuration(ctx context.Context) (*big.Int, error) {
	return g.readInt(ctx, credits(MethodGetRecoveryDuration))
}

// =============================================================================
// Read helpers
// =============================================================================

func (g *Gateway) readBool(ctx context.Context, call Call) (bool, error) {
	item, err := g.readOne(ctx, call)
	if err != nil {
		return false, err
	}
	v, err := chain.ParseBoolean(item)
	if err != nil {
		return false, parseErr(call, err)
	}
	return v, nil
}

func (g *Gateway) readInt(ctx context.Context, call Call) (*big.Int, error) {
	item, err := g.readOne(ctx, call)
	if err != nil {
		return nil, err
	}
	v, err := chain.ParseInteger(item)
	if err != nil {
		return nil, parseErr(call, err)
	}
	return v, nil
}

func (g *Gateway) readStrings(ctx context.Context, call Call) ([]string, error) {
	item, err := g.readOne(ctx, call)
	if err != nil {
		return nil, err
	}
	v, err := chain.ParseStrings(item)
	if err != nil {
		return nil, parseErr(call, err)
	}
	return v, nil
}
