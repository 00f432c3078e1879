package types

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"cosmossdk.io/log"
)

type MockFilter struct {
	name         string
	shouldReject bool
	reason       string
	err          error
	closeErr     error
	closed       bool
}

func (m *MockFilter) Name() string { return m.name }
func (m *MockFilter) Filter(ctx context.Context, req TransferRequest) (bool, string, error) {
	return m.shouldReject, m.reason, m.err
}
func (m *MockFilter) Close() error {
	m.closed = true
	return m.closeErr
}

func testLogger() log.Logger {
	return log.NewLogger(os.Stdout, log.LevelOption(zerolog.ErrorLevel))
}

func testRequest() TransferRequest {
	return TransferRequest{Amount: big.NewInt(1), SourceDomain: 0, DestinationDomain: 6}
}

func TestFilterRegistry_Register(t *testing.T) {
	registry := NewFilterRegistry(testLogger())
	registry.Register(&MockFilter{name: "filter1"})
	registry.Register(&MockFilter{name: "filter2"})
	require.Equal(t, 2, registry.Len())
}

func TestFilterRegistry_Filter_NoMatch(t *testing.T) {
	registry := NewFilterRegistry(testLogger())
	registry.Register(&MockFilter{name: "test"})
	reject, reason := registry.Filter(context.Background(), testRequest())
	require.False(t, reject)
	require.Empty(t, reason)
}

func TestFilterRegistry_Filter_MultipleFilters(t *testing.T) {
	registry := NewFilterRegistry(testLogger())
	registry.Register(&MockFilter{name: "filter1"})
	registry.Register(&MockFilter{name: "filter2", shouldReject: true, reason: "matched"})
	registry.Register(&MockFilter{name: "filter3", shouldReject: true, reason: "never reached"})
	reject, reason := registry.Filter(context.Background(), testRequest())
	require.True(t, reject)
	require.Equal(t, "matched", reason)
}

func TestFilterRegistry_Filter_ErrorRejects(t *testing.T) {
	registry := NewFilterRegistry(testLogger())
	registry.Register(&MockFilter{name: "remote", err: errors.New("list unavailable")})
	reject, reason := registry.Filter(context.Background(), testRequest())
	require.True(t, reject)
	require.Contains(t, reason, "list unavailable")
}

func TestFilterRegistry_Close(t *testing.T) {
	registry := NewFilterRegistry(testLogger())
	f1, f2 := &MockFilter{name: "f1"}, &MockFilter{name: "f2"}
	registry.Register(f1)
	registry.Register(f2)
	require.NoError(t, registry.Close())
	require.True(t, f1.closed)
	require.True(t, f2.closed)

	closeErr := errors.New("still refreshing")
	registry.Register(&MockFilter{name: "f3", closeErr: closeErr})
	err := registry.Close()
	require.ErrorIs(t, err, closeErr)
	require.Contains(t, err.Error(), "f3")
}
