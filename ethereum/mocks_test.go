package ethereum_test

import (
	"context"
	"math/big"
	"sync"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

type mockBackend struct {
	mu sync.Mutex

	CallContractFunc       func(ctx context.Context, msg goethereum.CallMsg) ([]byte, error)
	PendingNonceAtFunc     func(ctx context.Context, account common.Address) (uint64, error)
	EstimateGasFunc        func(ctx context.Context, msg goethereum.CallMsg) (uint64, error)
	SendTransactionFunc    func(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceiptFunc func(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)

	tip     *big.Int
	baseFee *big.Int

	nonceCalls int
	sent       []*ethtypes.Transaction
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		tip:     big.NewInt(1_000_000_000),
		baseFee: big.NewInt(10_000_000_000),
	}
}

func (m *mockBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(11155111), nil
}

func (m *mockBackend) CallContract(ctx context.Context, msg goethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return m.CallContractFunc(ctx, msg)
}

func (m *mockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	m.nonceCalls++
	m.mu.Unlock()
	if m.PendingNonceAtFunc != nil {
		return m.PendingNonceAtFunc(ctx, account)
	}
	return 0, nil
}

func (m *mockBackend) EstimateGas(ctx context.Context, msg goethereum.CallMsg) (uint64, error) {
	if m.EstimateGasFunc != nil {
		return m.EstimateGasFunc(ctx, msg)
	}
	return 100_000, nil
}

func (m *mockBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(m.tip), nil
}

func (m *mockBackend) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(100), BaseFee: new(big.Int).Set(m.baseFee)}, nil
}

func (m *mockBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if m.SendTransactionFunc != nil {
		if err := m.SendTransactionFunc(ctx, tx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, tx)
	m.mu.Unlock()
	return nil
}

func (m *mockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return m.TransactionReceiptFunc(ctx, txHash)
}

func (m *mockBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (m *mockBackend) Close() {}

func (m *mockBackend) Sent() []*ethtypes.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ethtypes.Transaction(nil), m.sent...)
}

func (m *mockBackend) NonceCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonceCalls
}
