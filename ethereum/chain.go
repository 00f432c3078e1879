package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/cctp-transfer/metrics"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

// Backend is the subset of the JSON-RPC API the chain client needs. *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg goethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg goethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// gas estimates are padded by this percentage
const gasLimitPadding = 20

type Chain struct {
	name    string
	domain  types.Domain
	chainID *big.Int

	backend     Backend
	signer      Signer
	sequenceMap *types.SequenceMap

	receiptPollInterval time.Duration
	MetricsDenom        string
	MetricsExponent     int

	logger log.Logger
}

// NewChain dials the chain's RPC endpoint and checks it serves the configured chain id
func NewChain(
	ctx context.Context,
	name string,
	settings types.ChainSettings,
	signer Signer,
	sequenceMap *types.SequenceMap,
	logger log.Logger,
) (*Chain, error) {
	client, err := ethclient.DialContext(ctx, settings.RPC)
	if err != nil {
		return nil, &types.NetworkError{Op: fmt.Sprintf("dial %s rpc", name), Err: err}
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, &types.NetworkError{Op: "eth_chainId", Err: err}
	}
	if settings.ChainID != 0 && chainID.Int64() != settings.ChainID {
		client.Close()
		return nil, fmt.Errorf("rpc for %s serves chain id %s, expected %d", name, chainID, settings.ChainID)
	}

	return NewChainWithBackend(name, settings, client, signer, sequenceMap, logger), nil
}

// NewChainWithBackend wraps an existing backend without any network round trip
func NewChainWithBackend(
	name string,
	settings types.ChainSettings,
	backend Backend,
	signer Signer,
	sequenceMap *types.SequenceMap,
	logger log.Logger,
) *Chain {
	if sequenceMap == nil {
		sequenceMap = types.NewSequenceMap()
	}
	pollInterval := settings.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Chain{
		name:                name,
		domain:              settings.Domain,
		chainID:             big.NewInt(settings.ChainID),
		backend:             backend,
		signer:              signer,
		sequenceMap:         sequenceMap,
		receiptPollInterval: pollInterval,
		MetricsDenom:        settings.MetricsDenom,
		MetricsExponent:     settings.MetricsExponent,
		logger:              logger.With("chain", name, "domain", settings.Domain),
	}
}

func (c *Chain) Name() string {
	return c.name
}

func (c *Chain) Domain() types.Domain {
	return c.domain
}

// Address returns the signing account, empty for a read-only client
func (c *Chain) Address() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Address().Hex()
}

func (c *Chain) Close() {
	c.backend.Close()
}

// ReadBalance returns the ERC-20 balance of owner
func (c *Chain) ReadBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	data, err := EncodeBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	return c.callUint256(ctx, token, "balanceOf", data)
}

// ReadAllowance returns the ERC-20 allowance granted by owner to spender
func (c *Chain) ReadAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	data, err := EncodeAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	return c.callUint256(ctx, token, "allowance", data)
}

// ReadAllowanceState snapshots balance and allowance of owner in one call
func (c *Chain) ReadAllowanceState(ctx context.Context, token, owner, spender string) (types.AllowanceState, error) {
	state := types.AllowanceState{Token: token, Owner: owner, Spender: spender}
	balance, err := c.ReadBalance(ctx, token, owner)
	if err != nil {
		return state, err
	}
	allowance, err := c.ReadAllowance(ctx, token, owner, spender)
	if err != nil {
		return state, err
	}
	state.Balance = balance
	state.Allowance = allowance
	return state, nil
}

// NativeBalance returns the gas token balance of the signing account
func (c *Chain) NativeBalance(ctx context.Context) (*big.Int, error) {
	if c.signer == nil {
		return nil, errors.New("chain client has no signer")
	}
	balance, err := c.backend.BalanceAt(ctx, c.signer.Address(), nil)
	if err != nil {
		return nil, &types.NetworkError{Op: "eth_getBalance", Err: err}
	}
	return balance, nil
}

func (c *Chain) callUint256(ctx context.Context, contract, method string, data []byte) (*big.Int, error) {
	to, err := parseAddress("token", contract)
	if err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, goethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, &types.NetworkError{Op: method, Err: err}
	}
	values, err := erc20ABI.Unpack(method, out)
	if err != nil || len(values) != 1 {
		return nil, &types.NetworkError{Op: method, Err: fmt.Errorf("unexpected %s response 0x%x: %v", method, out, err)}
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return nil, &types.NetworkError{Op: method, Err: fmt.Errorf("unexpected %s response type %T", method, values[0])}
	}
	return n, nil
}

// SubmitTransaction signs and sends an EIP-1559 transaction calling `to` with data.
// It returns as soon as the node accepted the transaction; use WaitMined to confirm it.
func (c *Chain) SubmitTransaction(ctx context.Context, to string, data []byte) (string, error) {
	step := methodName(data)
	if c.signer == nil {
		return "", &types.SubmissionError{Step: step, Err: errors.New("chain client has no signer")}
	}
	toAddr, err := parseAddress("to", to)
	if err != nil {
		return "", &types.SubmissionError{Step: step, Err: err}
	}
	from := c.signer.Address()

	seq := c.sequenceMap.Acquire(c.domain)
	defer seq.Release()

	nonce, synced := seq.Next()
	if !synced {
		nonce, err = c.backend.PendingNonceAt(ctx, from)
		if err != nil {
			return "", &types.SubmissionError{Step: step, Err: &types.NetworkError{Op: "eth_getTransactionCount", Err: err}}
		}
		seq.Set(nonce)
	}

	gas, err := c.backend.EstimateGas(ctx, goethereum.CallMsg{From: from, To: &toAddr, Data: data})
	if err != nil {
		return "", &types.SubmissionError{Step: step, Err: fmt.Errorf("gas estimation failed, transaction would revert: %w", err)}
	}
	gas += gas * gasLimitPadding / 100

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return "", &types.SubmissionError{Step: step, Err: &types.NetworkError{Op: "eth_maxPriorityFeePerGas", Err: err}}
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", &types.SubmissionError{Step: step, Err: &types.NetworkError{Op: "eth_getBlockByNumber", Err: err}}
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &toAddr,
		Data:      data,
	})

	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return "", &types.SubmissionError{Step: step, Err: fmt.Errorf("signer rejected transaction: %w", err)}
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		seq.Invalidate()
		return "", &types.SubmissionError{Step: step, Err: err}
	}
	seq.Increment()

	txHash := signed.Hash().Hex()
	c.logger.Info(fmt.Sprintf("Submitted %s transaction", step), "tx", txHash, "nonce", nonce, "gas", gas)
	return txHash, nil
}

// WaitMined polls for the receipt of txHash until it is mined or ctx is done.
// A reverted transaction returns its receipt together with a SubmissionError.
func (c *Chain) WaitMined(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			r := &types.Receipt{
				TxHash:      txHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				Success:     receipt.Status == ethtypes.ReceiptStatusSuccessful,
				Logs:        receipt.Logs,
			}
			if !r.Success {
				return r, &types.SubmissionError{Step: "transaction", TxHash: txHash, Err: errors.New("transaction reverted")}
			}
			c.logger.Debug("Transaction mined", "tx", txHash, "block", r.BlockNumber)
			return r, nil
		case errors.Is(err, goethereum.NotFound):
		default:
			c.logger.Debug("Receipt lookup failed, retrying", "tx", txHash, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WalletBalanceMetric tracks the gas token balance of the signing wallet for monitoring
func (c *Chain) WalletBalanceMetric(ctx context.Context, interval time.Duration, m *metrics.PromMetrics) {
	if m == nil || c.signer == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	exponent := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.MetricsExponent)), nil))
	for {
		balance, err := c.NativeBalance(ctx)
		if err != nil {
			c.logger.Error("Failed to get wallet balance", "error", err)
		} else {
			value, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), exponent).Float64()
			m.SetWalletBalance(c.name, c.signer.Address().Hex(), c.MetricsDenom, value)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
