package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"agentregistry/internal/ledger/retry"

	rpcclient "github.com/stellar/go/clients/rpcclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	protocol "github.com/stellar/go/protocols/rpc"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// RPC status values
const (
	sendStatusPending       = "PENDING"
	sendStatusDuplicate     = "DUPLICATE"
	sendStatusTryAgainLater = "TRY_AGAIN_LATER"
	sendStatusError         = "ERROR"

	txStatusSuccess  = "SUCCESS"
	txStatusNotFound = "NOT_FOUND"
	txStatusFailed   = "FAILED"
)

// StellarConfig configures the Soroban registry transport
type StellarConfig struct {
	RPCServerURL      string
	NetworkPassphrase string
	ContractID        string // Registry contract strkey (C...)
	SignerSecret      string // Secret seed (S...) of the account paying for and authorizing refreshes
	Function          string // Contract function taking (caller: Address, id: u64, uri: String)

	HTTPTimeout     time.Duration
	TxTimeout       time.Duration // Validity window of a submitted transaction
	ConfirmAttempts int           // Total getTransaction polls before giving up
	PollInterval    time.Duration
}

// Stellar submits pointer updates to a Soroban registry contract over Stellar RPC
type Stellar struct {
	client   *rpcclient.Client
	accounts accountLoader
	signer   *keypair.Full
	contract xdr.ScAddress
	config   StellarConfig

	retry   retry.Strategy // Transient RPC failures on a single call
	polling retry.Strategy // getTransaction polling until the transaction leaves NOT_FOUND
}

// accountLoader returns the source account with its current sequence number
type accountLoader func(ctx context.Context, address string) (txnbuild.Account, error)

// NewStellar creates a Stellar transport. strategy wraps individual RPC calls.
func NewStellar(config StellarConfig, strategy retry.Strategy) (*Stellar, error) {
	if config.RPCServerURL == "" {
		return nil, fmt.Errorf("RPCServerURL is required")
	}
	if config.NetworkPassphrase == "" {
		config.NetworkPassphrase = network.TestNetworkPassphrase
	}
	if config.Function == "" {
		config.Function = "set_uri"
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 30 * time.Second
	}
	if config.TxTimeout <= 0 {
		config.TxTimeout = 5 * time.Minute
	}
	if config.ConfirmAttempts <= 0 {
		config.ConfirmAttempts = 30
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if strategy == nil {
		strategy = retry.NewOnce()
	}

	signer, err := keypair.ParseFull(config.SignerSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid signer secret: %w", err)
	}

	contract, err := contractAddress(config.ContractID)
	if err != nil {
		return nil, err
	}

	client := rpcclient.NewClient(config.RPCServerURL, &http.Client{Timeout: config.HTTPTimeout})

	loadAccount := func(ctx context.Context, address string) (txnbuild.Account, error) {
		return client.LoadAccount(ctx, address)
	}

	return &Stellar{
		client:   client,
		accounts: loadAccount,
		signer:   signer,
		contract: contract,
		config:   config,
		retry:    strategy,
		polling:  retry.NewExponentialBackoffStrategy(config.ConfirmAttempts-1, config.PollInterval, config.PollInterval),
	}, nil
}

// Address returns the signer account, the principal refreshes are made as
func (s *Stellar) Address() string {
	return s.signer.Address()
}

// EstimateFee reads the median Soroban inclusion fee from recent ledgers
func (s *Stellar) EstimateFee(ctx context.Context) (Fee, error) {
	var stats protocol.GetFeeStatsResponse
	err := s.retry.Execute(ctx, func() error {
		var err error
		stats, err = s.client.GetFeeStats(ctx)
		return err
	})
	if err != nil {
		return Fee{}, fmt.Errorf("failed to get fee stats: %w", err)
	}

	inclusion := int64(stats.SorobanInclusionFee.P50)
	if inclusion < txnbuild.MinBaseFee {
		inclusion = txnbuild.MinBaseFee
	}

	slog.Debug("Stellar: Fee estimated",
		"inclusion_fee", inclusion,
		"p90", stats.SorobanInclusionFee.P90,
		"latest_ledger", stats.LatestLedger,
	)

	return Fee{Inclusion: inclusion, LatestLedger: stats.LatestLedger}, nil
}

// Submit simulates the contract call for its footprint and auth, enforces the resource
// ceiling, then signs and sends the transaction
func (s *Stellar) Submit(ctx context.Context, mutation Mutation) (Receipt, error) {
	source := s.signer.Address()
	caller := mutation.Caller
	if caller == "" {
		caller = source
	}

	args, err := s.invokeArgs(caller, mutation.IdentityID, mutation.Pointer)
	if err != nil {
		return Receipt{}, err
	}

	var account txnbuild.Account
	err = s.retry.Execute(ctx, func() error {
		var err error
		account, err = s.accounts(ctx, source)
		return err
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to load source account: %w", err)
	}
	sequence, err := account.GetSequenceNumber()
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to read account sequence: %w", err)
	}

	fee := mutation.MaxFee
	if fee < txnbuild.MinBaseFee {
		fee = txnbuild.MinBaseFee
	}

	op := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type:           xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &args,
		},
		SourceAccount: source,
	}

	// Simulate to obtain the footprint, resource fee and auth entries
	draft, err := s.buildTransaction(source, sequence, op, fee)
	if err != nil {
		return Receipt{}, err
	}
	draftXDR, err := draft.Base64()
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to encode simulation transaction: %w", err)
	}

	var sim protocol.SimulateTransactionResponse
	err = s.retry.Execute(ctx, func() error {
		var err error
		sim, err = s.client.SimulateTransaction(ctx, protocol.SimulateTransactionRequest{Transaction: draftXDR})
		return err
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to simulate transaction: %w", err)
	}
	if sim.Error != "" {
		return Receipt{}, fmt.Errorf("%w: simulation failed: %s", ErrRejected, sim.Error)
	}

	var sorobanData xdr.SorobanTransactionData
	if err := xdr.SafeUnmarshalBase64(sim.TransactionDataXDR, &sorobanData); err != nil {
		return Receipt{}, fmt.Errorf("failed to decode soroban transaction data: %w", err)
	}

	instructions := uint32(sorobanData.Resources.Instructions)
	if mutation.MaxInstructions > 0 && instructions > mutation.MaxInstructions {
		return Receipt{}, fmt.Errorf("%w: needs %d instructions, ceiling is %d",
			ErrBudgetExceeded, instructions, mutation.MaxInstructions)
	}

	if len(sim.Results) > 0 && sim.Results[0].AuthXDR != nil {
		for _, encoded := range *sim.Results[0].AuthXDR {
			var entry xdr.SorobanAuthorizationEntry
			if err := xdr.SafeUnmarshalBase64(encoded, &entry); err != nil {
				return Receipt{}, fmt.Errorf("failed to decode auth entry: %w", err)
			}
			op.Auth = append(op.Auth, entry)
		}
	}
	op.Ext = xdr.TransactionExt{V: 1, SorobanData: &sorobanData}

	tx, err := s.buildTransaction(source, sequence, op, fee)
	if err != nil {
		return Receipt{}, err
	}
	tx, err = tx.Sign(s.config.NetworkPassphrase, s.signer)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	txXDR, err := tx.Base64()
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	var sent protocol.SendTransactionResponse
	err = s.retry.Execute(ctx, func() error {
		var err error
		sent, err = s.client.SendTransaction(ctx, protocol.SendTransactionRequest{Transaction: txXDR})
		if err != nil {
			return err
		}
		if sent.Status == sendStatusTryAgainLater {
			return fmt.Errorf("send status %s: %w", sent.Status, retry.ErrRetryable)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	switch sent.Status {
	case sendStatusPending, sendStatusDuplicate:
	case sendStatusError:
		return Receipt{}, fmt.Errorf("%w: send status %s: %s", ErrRejected, sent.Status, sent.ErrorResultXDR)
	default:
		return Receipt{}, fmt.Errorf("%w: unexpected send status %q", ErrRejected, sent.Status)
	}

	slog.Info("Stellar: Transaction sent",
		"hash", sent.Hash,
		"status", sent.Status,
		"identity_id", mutation.IdentityID,
		"instructions", instructions,
		"resource_fee", sim.MinResourceFee,
		"inclusion_fee", fee,
	)

	return Receipt{Hash: sent.Hash, Status: sent.Status, SubmittedAt: time.Now().UTC()}, nil
}

// AwaitConfirmation polls getTransaction until the transaction succeeds or fails
func (s *Stellar) AwaitConfirmation(ctx context.Context, receipt Receipt) (Confirmation, error) {
	var result protocol.GetTransactionResponse
	err := s.polling.Execute(ctx, func() error {
		var err error
		result, err = s.client.GetTransaction(ctx, protocol.GetTransactionRequest{Hash: receipt.Hash})
		if err != nil {
			return err
		}
		if result.Status == txStatusNotFound {
			return fmt.Errorf("transaction %s not found yet: %w", receipt.Hash, retry.ErrRetryable)
		}
		return nil
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("failed to confirm transaction %s: %w", receipt.Hash, err)
	}

	switch result.Status {
	case txStatusSuccess:
		return Confirmation{
			Hash:        receipt.Hash,
			Ledger:      result.Ledger,
			FeeCharged:  feeCharged(result.ResultXDR),
			ConfirmedAt: time.Now().UTC(),
		}, nil
	case txStatusFailed:
		return Confirmation{}, fmt.Errorf("%w: transaction %s failed in ledger %d", ErrRejected, receipt.Hash, result.Ledger)
	default:
		return Confirmation{}, fmt.Errorf("%w: unexpected transaction status %q", ErrRejected, result.Status)
	}
}

// feeCharged reads the fee actually paid from a TransactionResult; zero if absent
func feeCharged(resultXDR string) int64 {
	if resultXDR == "" {
		return 0
	}
	var result xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(resultXDR, &result); err != nil {
		slog.Warn("Stellar: Could not decode transaction result", "error", err)
		return 0
	}
	return int64(result.FeeCharged)
}

func (s *Stellar) buildTransaction(source string, sequence int64, op *txnbuild.InvokeHostFunction, fee int64) (*txnbuild.Transaction, error) {
	account := txnbuild.NewSimpleAccount(source, sequence)
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              fee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(s.config.TxTimeout.Seconds())),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

// invokeArgs builds set_uri(caller, id, uri)
func (s *Stellar) invokeArgs(caller string, id uint64, uri string) (xdr.InvokeContractArgs, error) {
	callerAddress, err := accountAddress(caller)
	if err != nil {
		return xdr.InvokeContractArgs{}, err
	}

	identityID := xdr.Uint64(id)
	pointer := xdr.ScString(uri)

	return xdr.InvokeContractArgs{
		ContractAddress: s.contract,
		FunctionName:    xdr.ScSymbol(s.config.Function),
		Args: []xdr.ScVal{
			{Type: xdr.ScValTypeScvAddress, Address: &callerAddress},
			{Type: xdr.ScValTypeScvU64, U64: &identityID},
			{Type: xdr.ScValTypeScvString, Str: &pointer},
		},
	}, nil
}

// contractAddress decodes a C... strkey into an ScAddress
func contractAddress(contractID string) (xdr.ScAddress, error) {
	raw, err := strkey.Decode(strkey.VersionByteContract, contractID)
	if err != nil {
		return xdr.ScAddress{}, fmt.Errorf("invalid contract id %q: %w", contractID, err)
	}
	return decodeScAddress(uint32(xdr.ScAddressTypeScAddressTypeContract), nil, raw)
}

// accountAddress decodes a G... strkey into an ScAddress
func accountAddress(accountID string) (xdr.ScAddress, error) {
	raw, err := strkey.Decode(strkey.VersionByteAccountID, accountID)
	if err != nil {
		return xdr.ScAddress{}, fmt.Errorf("invalid account id %q: %w", accountID, err)
	}
	keyType := uint32(xdr.PublicKeyTypePublicKeyTypeEd25519)
	return decodeScAddress(uint32(xdr.ScAddressTypeScAddressTypeAccount), &keyType, raw)
}

// decodeScAddress assembles the XDR union encoding of an ScAddress and decodes it,
// which keeps this code independent of the generated arm types
func decodeScAddress(addressType uint32, keyType *uint32, payload []byte) (xdr.ScAddress, error) {
	buf := binary.BigEndian.AppendUint32(nil, addressType)
	if keyType != nil {
		buf = binary.BigEndian.AppendUint32(buf, *keyType)
	}
	buf = append(buf, payload...)

	var address xdr.ScAddress
	if err := xdr.SafeUnmarshal(buf, &address); err != nil {
		return xdr.ScAddress{}, fmt.Errorf("failed to decode address: %w", err)
	}
	return address, nil
}

// ValidAccountID reports whether principal is a Stellar account strkey (G...)
func ValidAccountID(principal string) bool {
	return strkey.IsValidEd25519PublicKey(principal)
}
