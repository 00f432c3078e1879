package ethereum_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/cctp-transfer/ethereum"
	testutil "github.com/strangelove-ventures/cctp-transfer/test_util"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

func newTestChain(t *testing.T, backend *mockBackend) *ethereum.Chain {
	t.Helper()

	signer, err := ethereum.NewKeySigner(testutil.TestPrivateKey)
	require.NoError(t, err)

	settings := types.ChainSettings{
		Domain:              0,
		ChainID:             11155111,
		ReceiptPollInterval: 5 * time.Millisecond,
	}
	return ethereum.NewChainWithBackend("sepolia", settings, backend, signer, types.NewSequenceMap(), testutil.Logger())
}

func TestSubmitTransactionSignsDynamicFeeTx(t *testing.T) {
	backend := newMockBackend()
	backend.PendingNonceAtFunc = func(context.Context, common.Address) (uint64, error) { return 7, nil }
	chain := newTestChain(t, backend)

	data, err := ethereum.EncodeApprove(testutil.SepoliaTokenMessenger, big.NewInt(1))
	require.NoError(t, err)

	txHash, err := chain.SubmitTransaction(context.Background(), testutil.SepoliaUSDC, data)
	require.NoError(t, err)

	sent := backend.Sent()
	require.Len(t, sent, 1)
	tx := sent[0]
	require.Equal(t, tx.Hash().Hex(), txHash)
	require.Equal(t, uint8(ethtypes.DynamicFeeTxType), tx.Type())
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, uint64(120_000), tx.Gas())
	require.Equal(t, big.NewInt(1_000_000_000), tx.GasTipCap())
	require.Equal(t, big.NewInt(21_000_000_000), tx.GasFeeCap())
	require.Equal(t, common.HexToAddress(testutil.SepoliaUSDC), *tx.To())
	require.Equal(t, data, tx.Data())

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(testutil.TestAddress), from)

	// the next submission reuses the locally tracked nonce
	_, err = chain.SubmitTransaction(context.Background(), testutil.SepoliaUSDC, data)
	require.NoError(t, err)
	require.Equal(t, uint64(8), backend.Sent()[1].Nonce())
	require.Equal(t, 1, backend.NonceCalls())
}

func TestSubmitTransactionSendFailureResyncsNonce(t *testing.T) {
	backend := newMockBackend()
	backend.PendingNonceAtFunc = func(context.Context, common.Address) (uint64, error) { return 3, nil }
	fail := true
	backend.SendTransactionFunc = func(context.Context, *ethtypes.Transaction) error {
		if fail {
			return errors.New("nonce too low")
		}
		return nil
	}
	chain := newTestChain(t, backend)

	data, err := ethereum.EncodeApprove(testutil.SepoliaTokenMessenger, big.NewInt(1))
	require.NoError(t, err)

	_, err = chain.SubmitTransaction(context.Background(), testutil.SepoliaUSDC, data)
	require.ErrorIs(t, err, types.ErrSubmission)
	var subErr *types.SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.Equal(t, "approve", subErr.Step)
	require.Empty(t, subErr.TxHash)

	fail = false
	_, err = chain.SubmitTransaction(context.Background(), testutil.SepoliaUSDC, data)
	require.NoError(t, err)
	require.Equal(t, 2, backend.NonceCalls())
}

func TestSubmitTransactionGasEstimateRevert(t *testing.T) {
	backend := newMockBackend()
	backend.EstimateGasFunc = func(context.Context, goethereum.CallMsg) (uint64, error) {
		return 0, errors.New("execution reverted: ERC20: transfer amount exceeds allowance")
	}
	chain := newTestChain(t, backend)

	data, err := ethereum.EncodeDepositForBurn(big.NewInt(1), 6, testutil.Recipient, testutil.SepoliaUSDC)
	require.NoError(t, err)

	_, err = chain.SubmitTransaction(context.Background(), testutil.SepoliaTokenMessenger, data)
	require.ErrorIs(t, err, types.ErrSubmission)
	require.Contains(t, err.Error(), "depositForBurn")
	require.Contains(t, err.Error(), "exceeds allowance")
	require.Empty(t, backend.Sent())
}

func TestSubmitTransactionWithoutSigner(t *testing.T) {
	chain := ethereum.NewChainWithBackend("sepolia", types.ChainSettings{ChainID: 11155111}, newMockBackend(), nil, nil, testutil.Logger())
	require.Empty(t, chain.Address())

	_, err := chain.SubmitTransaction(context.Background(), testutil.SepoliaUSDC, []byte{0x01})
	require.ErrorIs(t, err, types.ErrSubmission)
}

func TestReadBalanceAndAllowance(t *testing.T) {
	backend := newMockBackend()
	backend.CallContractFunc = func(_ context.Context, msg goethereum.CallMsg) ([]byte, error) {
		require.Equal(t, common.HexToAddress(testutil.SepoliaUSDC), *msg.To)
		switch {
		case string(msg.Data[:4]) == string(selector("balanceOf(address)")):
			return common.LeftPadBytes(big.NewInt(5_000_000).Bytes(), 32), nil
		case string(msg.Data[:4]) == string(selector("allowance(address,address)")):
			return common.LeftPadBytes(big.NewInt(1_000_000).Bytes(), 32), nil
		}
		return nil, errors.New("unexpected call")
	}
	chain := newTestChain(t, backend)

	state, err := chain.ReadAllowanceState(context.Background(), testutil.SepoliaUSDC, testutil.TestAddress, testutil.SepoliaTokenMessenger)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000_000), state.Balance)
	require.Equal(t, big.NewInt(1_000_000), state.Allowance)
	require.True(t, state.AllowanceCovers(big.NewInt(1_000_000)))
	require.False(t, state.AllowanceCovers(big.NewInt(1_000_001)))
	require.True(t, state.BalanceCovers(big.NewInt(5_000_000)))
}

func TestReadBalanceNetworkError(t *testing.T) {
	backend := newMockBackend()
	backend.CallContractFunc = func(context.Context, goethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("connection refused")
	}
	chain := newTestChain(t, backend)

	_, err := chain.ReadBalance(context.Background(), testutil.SepoliaUSDC, testutil.TestAddress)
	require.ErrorIs(t, err, types.ErrNetwork)

	_, err = chain.ReadAllowance(context.Background(), testutil.SepoliaUSDC, "bad owner", testutil.SepoliaTokenMessenger)
	require.ErrorIs(t, err, types.ErrEncoding)
}

func TestWaitMined(t *testing.T) {
	backend := newMockBackend()
	calls := 0
	backend.TransactionReceiptFunc = func(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
		calls++
		if calls < 3 {
			return nil, goethereum.NotFound
		}
		return &ethtypes.Receipt{
			Status:      ethtypes.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(42),
			TxHash:      hash,
		}, nil
	}
	chain := newTestChain(t, backend)

	txHash := common.HexToHash("0x01").Hex()
	receipt, err := chain.WaitMined(context.Background(), txHash)
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Equal(t, uint64(42), receipt.BlockNumber)
	require.Equal(t, txHash, receipt.TxHash)
	require.Equal(t, 3, calls)
}

func TestWaitMinedReverted(t *testing.T) {
	backend := newMockBackend()
	backend.TransactionReceiptFunc = func(context.Context, common.Hash) (*ethtypes.Receipt, error) {
		return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(42)}, nil
	}
	chain := newTestChain(t, backend)

	txHash := common.HexToHash("0x02").Hex()
	receipt, err := chain.WaitMined(context.Background(), txHash)
	require.ErrorIs(t, err, types.ErrSubmission)
	require.NotNil(t, receipt)
	require.False(t, receipt.Success)

	var subErr *types.SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.Equal(t, txHash, subErr.TxHash)
}

func TestWaitMinedCanceled(t *testing.T) {
	backend := newMockBackend()
	backend.TransactionReceiptFunc = func(context.Context, common.Hash) (*ethtypes.Receipt, error) {
		return nil, goethereum.NotFound
	}
	chain := newTestChain(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := chain.WaitMined(ctx, common.HexToHash("0x03").Hex())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
