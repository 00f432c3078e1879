package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

// Submission is one transaction handed to a MockChain
type Submission struct {
	To   string
	Data []byte
}

// MockChain is a chain client whose behaviour is set per test through its function fields.
// Unset functions fall back to a funded account with no allowance whose transactions all succeed.
type MockChain struct {
	DomainID types.Domain
	Account  string

	ReadBalanceFunc       func(ctx context.Context, token, owner string) (*big.Int, error)
	ReadAllowanceFunc     func(ctx context.Context, token, owner, spender string) (*big.Int, error)
	SubmitTransactionFunc func(ctx context.Context, to string, data []byte) (string, error)
	WaitMinedFunc         func(ctx context.Context, txHash string) (*types.Receipt, error)

	mu          sync.Mutex
	submissions []Submission
}

func NewMockChain(domain types.Domain) *MockChain {
	return &MockChain{DomainID: domain, Account: TestAddress}
}

func (m *MockChain) Name() string {
	return fmt.Sprintf("domain-%d", m.DomainID)
}

func (m *MockChain) Domain() types.Domain {
	return m.DomainID
}

func (m *MockChain) Address() string {
	return m.Account
}

func (m *MockChain) ReadBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	if m.ReadBalanceFunc != nil {
		return m.ReadBalanceFunc(ctx, token, owner)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil), nil
}

func (m *MockChain) ReadAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	if m.ReadAllowanceFunc != nil {
		return m.ReadAllowanceFunc(ctx, token, owner, spender)
	}
	return big.NewInt(0), nil
}

func (m *MockChain) SubmitTransaction(ctx context.Context, to string, data []byte) (string, error) {
	m.mu.Lock()
	m.submissions = append(m.submissions, Submission{To: to, Data: append([]byte(nil), data...)})
	n := len(m.submissions)
	m.mu.Unlock()

	if m.SubmitTransactionFunc != nil {
		return m.SubmitTransactionFunc(ctx, to, data)
	}
	return fmt.Sprintf("0x%064x", n), nil
}

func (m *MockChain) WaitMined(ctx context.Context, txHash string) (*types.Receipt, error) {
	if m.WaitMinedFunc != nil {
		return m.WaitMinedFunc(ctx, txHash)
	}
	return &types.Receipt{TxHash: txHash, BlockNumber: 1, Success: true}, nil
}

// Submissions returns every transaction submitted so far, including rejected ones
func (m *MockChain) Submissions() []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Submission(nil), m.submissions...)
}
