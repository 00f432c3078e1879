package transfer_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/cctp-transfer/circle"
	"github.com/strangelove-ventures/cctp-transfer/ethereum"
	"github.com/strangelove-ventures/cctp-transfer/filters"
	"github.com/strangelove-ventures/cctp-transfer/metrics"
	testutil "github.com/strangelove-ventures/cctp-transfer/test_util"
	"github.com/strangelove-ventures/cctp-transfer/transfer"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

var ceiling = big.NewInt(10_000_000_000)

func request() types.TransferRequest {
	return types.TransferRequest{
		Amount:            big.NewInt(1_000_000),
		SourceDomain:      0,
		DestinationDomain: 6,
		SourceToken:       testutil.SepoliaUSDC,
		MintRecipient:     testutil.Recipient,
		BurnSpender:       testutil.SepoliaTokenMessenger,
	}
}

func config() transfer.Config {
	return transfer.Config{
		MessageTransmitter: testutil.BaseSepoliaMessageTransmitter,
		AllowanceCeiling:   ceiling,
		CheckAllowance:     true,
	}
}

// mockPoller returns a scripted attestation and counts calls
type mockPoller struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, burn types.BurnReceipt, onAttempt func(types.PollAttempt)) (*types.Attestation, error)
}

func (p *mockPoller) AwaitAttestation(ctx context.Context, burn types.BurnReceipt, onAttempt func(types.PollAttempt)) (*types.Attestation, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.fn != nil {
		return p.fn(ctx, burn, onAttempt)
	}
	return &types.Attestation{Status: types.AttestationComplete, Message: []byte{0xaa}, Attestation: []byte{0xbb}}, nil
}

func (p *mockPoller) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func fundedSource() *testutil.MockChain {
	source := testutil.NewMockChain(0)
	source.ReadAllowanceFunc = func(context.Context, string, string, string) (*big.Int, error) {
		return ceiling, nil
	}
	return source
}

func recordStates(events *[]transfer.Event) transfer.Option {
	var mu sync.Mutex
	return transfer.WithObserver(func(e transfer.Event) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, e)
	})
}

func statesOf(events []transfer.Event) []transfer.State {
	var states []transfer.State
	for _, e := range events {
		if e.Type == transfer.EventStateChanged {
			states = append(states, e.State)
		}
	}
	return states
}

func typesOf(events []transfer.Event) []transfer.EventType {
	var out []transfer.EventType
	for _, e := range events {
		if e.Type != transfer.EventStateChanged {
			out = append(out, e.Type)
		}
	}
	return out
}

// 1 USDC from Sepolia to Base Sepolia against a scripted attestation service
func TestRunEndToEnd(t *testing.T) {
	iris := testutil.NewIrisServer(t,
		testutil.IrisResponse{Status: "pending_confirmations"},
		testutil.IrisResponse{Status: "complete", Message: "0xAA", Attestation: "0xBB"},
	)
	cfg := testutil.ConfigSetup(t, iris.URL)
	poller, err := circle.NewPoller(cfg.Circle, testutil.Logger())
	require.NoError(t, err)

	source := fundedSource()
	source.SubmitTransactionFunc = func(context.Context, string, []byte) (string, error) { return "0xburn", nil }
	destination := testutil.NewMockChain(6)
	destination.SubmitTransactionFunc = func(context.Context, string, []byte) (string, error) { return "0xmint", nil }

	var events []transfer.Event
	o := transfer.NewOrchestrator(source, destination, poller, config(), testutil.Logger(), recordStates(&events))

	res, err := o.Run(context.Background(), request())
	require.NoError(t, err)

	require.Equal(t, transfer.Complete, res.State)
	require.Equal(t, []transfer.State{
		transfer.Approving,
		transfer.Burning,
		transfer.AwaitingAttestation,
		transfer.Minting,
		transfer.Complete,
	}, statesOf(events))
	require.Equal(t, []transfer.EventType{
		transfer.EventApproveSkipped,
		transfer.EventBurnSubmitted,
		transfer.EventAttestationPending,
		transfer.EventAttestationComplete,
		transfer.EventMintSubmitted,
	}, typesOf(events))

	require.Equal(t, "0xburn", res.BurnTxHash)
	require.Equal(t, "0xburn", res.Burn.TxHash)
	require.Equal(t, "0xmint", res.MintTxHash)
	require.Equal(t, "0xmint", res.Mint.TxHash)
	require.Equal(t, types.Domain(6), res.Mint.DestinationDomain)
	require.Empty(t, res.ApproveTxHash)

	// the burn is sent to the TokenMessenger with the encoded deposit
	burnData, err := ethereum.EncodeDepositForBurn(big.NewInt(1_000_000), 6, testutil.Recipient, testutil.SepoliaUSDC)
	require.NoError(t, err)
	require.Equal(t, []testutil.Submission{{To: testutil.SepoliaTokenMessenger, Data: burnData}}, source.Submissions())

	// the mint carries exactly the attested message and signature
	mintData, err := ethereum.EncodeReceiveMessage([]byte{0xaa}, []byte{0xbb})
	require.NoError(t, err)
	require.Equal(t, []testutil.Submission{{To: testutil.BaseSepoliaMessageTransmitter, Data: mintData}}, destination.Submissions())

	requests := iris.Requests()
	require.Len(t, requests, 2)
	require.Equal(t, "/v2/messages/0", requests[0].Path)
	require.Equal(t, "transactionHash=0xburn", requests[0].Query)
}

func TestRunApprovesCeiling(t *testing.T) {
	source := testutil.NewMockChain(0)
	// the allowance is granted once the approval was submitted
	source.ReadAllowanceFunc = func(context.Context, string, string, string) (*big.Int, error) {
		if len(source.Submissions()) > 0 {
			return ceiling, nil
		}
		return big.NewInt(0), nil
	}
	destination := testutil.NewMockChain(6)

	var events []transfer.Event
	o := transfer.NewOrchestrator(source, destination, &mockPoller{}, config(), testutil.Logger(), recordStates(&events))

	res, err := o.Run(context.Background(), request())
	require.NoError(t, err)
	require.NotEmpty(t, res.ApproveTxHash)
	require.Equal(t, transfer.EventApproveSubmitted, typesOf(events)[0])

	approveData, err := ethereum.EncodeApprove(testutil.SepoliaTokenMessenger, ceiling)
	require.NoError(t, err)

	submissions := source.Submissions()
	require.Len(t, submissions, 2)
	require.Equal(t, testutil.SepoliaUSDC, submissions[0].To)
	require.Equal(t, approveData, submissions[0].Data)
	require.Equal(t, testutil.SepoliaTokenMessenger, submissions[1].To)
	require.Equal(t, res.ApproveTxHash, fmt.Sprintf("0x%064x", 1))
}

func TestRunApprovesWithoutAllowanceCheck(t *testing.T) {
	source := testutil.NewMockChain(0)
	destination := testutil.NewMockChain(6)
	cfg := config()
	cfg.CheckAllowance = false

	res, err := transfer.NewOrchestrator(source, destination, &mockPoller{}, cfg, testutil.Logger()).Run(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, transfer.Complete, res.State)

	submissions := source.Submissions()
	require.Len(t, submissions, 2)
	require.Equal(t, testutil.SepoliaUSDC, submissions[0].To)
	require.Equal(t, testutil.SepoliaTokenMessenger, submissions[1].To)
	require.Equal(t, submissions[0].Data[:4], []byte{0x09, 0x5e, 0xa7, 0xb3}) // approve(address,uint256)
}

func TestRunApprovesAmountAboveCeiling(t *testing.T) {
	source := testutil.NewMockChain(0)
	cfg := config()
	cfg.CheckAllowance = false
	cfg.AllowanceCeiling = big.NewInt(100)

	_, err := transfer.NewOrchestrator(source, testutil.NewMockChain(6), &mockPoller{}, cfg, testutil.Logger()).Run(context.Background(), request())
	require.NoError(t, err)

	approveData, err := ethereum.EncodeApprove(testutil.SepoliaTokenMessenger, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, approveData, source.Submissions()[0].Data)
}

func TestRunBurnRejectedSkipsAttestation(t *testing.T) {
	source := fundedSource()
	source.SubmitTransactionFunc = func(context.Context, string, []byte) (string, error) {
		return "", &types.SubmissionError{Step: "depositForBurn", Err: errors.New("insufficient funds for gas")}
	}
	destination := testutil.NewMockChain(6)
	poller := &mockPoller{}

	var events []transfer.Event
	res, err := transfer.NewOrchestrator(source, destination, poller, config(), testutil.Logger(), recordStates(&events)).
		Run(context.Background(), request())

	require.Error(t, err)
	require.ErrorIs(t, err, types.ErrSubmission)
	require.Equal(t, transfer.BurnRejected, transfer.ReasonOf(err))

	var transferErr *transfer.TransferError
	require.True(t, errors.As(err, &transferErr))
	require.Equal(t, transfer.Approving, transferErr.LastState)

	require.Equal(t, transfer.Failed, res.State)
	require.Equal(t, 0, poller.Calls())
	require.Empty(t, destination.Submissions())
	require.Equal(t, transfer.EventFailed, events[len(events)-1].Type)
}

func TestRunBurnReverted(t *testing.T) {
	source := fundedSource()
	source.WaitMinedFunc = func(_ context.Context, txHash string) (*types.Receipt, error) {
		return &types.Receipt{TxHash: txHash, Success: false}, &types.SubmissionError{Step: "transaction", TxHash: txHash, Err: errors.New("transaction reverted")}
	}
	poller := &mockPoller{}

	res, err := transfer.NewOrchestrator(source, testutil.NewMockChain(6), poller, config(), testutil.Logger()).Run(context.Background(), request())
	require.Equal(t, transfer.BurnRejected, transfer.ReasonOf(err))
	require.NotEmpty(t, res.BurnTxHash)
	require.Nil(t, res.Burn)
	require.Equal(t, 0, poller.Calls())
}

func TestRunInsufficientAllowanceBeforeBurn(t *testing.T) {
	source := testutil.NewMockChain(0)
	poller := &mockPoller{}

	res, err := transfer.NewOrchestrator(source, testutil.NewMockChain(6), poller, config(), testutil.Logger()).Run(context.Background(), request())
	require.ErrorIs(t, err, types.ErrInsufficientAllowance)
	require.Equal(t, transfer.BurnRejected, res.Reason)
	require.Len(t, source.Submissions(), 1) // approve only
	require.Empty(t, res.BurnTxHash)
}

func TestRunInsufficientBalance(t *testing.T) {
	source := testutil.NewMockChain(0)
	source.ReadBalanceFunc = func(context.Context, string, string) (*big.Int, error) {
		return big.NewInt(999_999), nil
	}

	_, err := transfer.NewOrchestrator(source, testutil.NewMockChain(6), &mockPoller{}, config(), testutil.Logger()).Run(context.Background(), request())
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	require.Equal(t, transfer.InvalidRequest, transfer.ReasonOf(err))
	require.Empty(t, source.Submissions())
}

func TestRunAllowanceReadFailure(t *testing.T) {
	source := testutil.NewMockChain(0)
	source.ReadAllowanceFunc = func(context.Context, string, string, string) (*big.Int, error) {
		return nil, &types.NetworkError{Op: "allowance", Err: errors.New("connection refused")}
	}

	_, err := transfer.NewOrchestrator(source, testutil.NewMockChain(6), &mockPoller{}, config(), testutil.Logger()).Run(context.Background(), request())
	require.ErrorIs(t, err, types.ErrNetwork)
	require.Equal(t, transfer.ApprovalRejected, transfer.ReasonOf(err))
	require.Empty(t, source.Submissions())
}

func TestRunApprovalRejected(t *testing.T) {
	source := testutil.NewMockChain(0)
	source.SubmitTransactionFunc = func(context.Context, string, []byte) (string, error) {
		return "", &types.SubmissionError{Step: "approve", Err: errors.New("user rejected")}
	}

	res, err := transfer.NewOrchestrator(source, testutil.NewMockChain(6), &mockPoller{}, config(), testutil.Logger()).Run(context.Background(), request())
	require.Equal(t, transfer.ApprovalRejected, transfer.ReasonOf(err))

	var transferErr *transfer.TransferError
	require.True(t, errors.As(err, &transferErr))
	require.Equal(t, transfer.Idle, transferErr.LastState)
	require.Empty(t, res.BurnTxHash)
}

func TestRunInvalidRequest(t *testing.T) {
	source := fundedSource()
	o := transfer.NewOrchestrator(source, testutil.NewMockChain(6), &mockPoller{}, config(), testutil.Logger())

	req := request()
	req.MintRecipient = "0x1234"
	_, err := o.Run(context.Background(), req)
	require.ErrorIs(t, err, types.ErrEncoding)
	require.Equal(t, transfer.InvalidRequest, transfer.ReasonOf(err))

	req = request()
	req.DestinationDomain = 3
	_, err = o.Run(context.Background(), req)
	require.Equal(t, transfer.InvalidRequest, transfer.ReasonOf(err))

	req = request()
	req.Amount = big.NewInt(0)
	_, err = o.Run(context.Background(), req)
	require.Equal(t, transfer.InvalidRequest, transfer.ReasonOf(err))

	require.Empty(t, source.Submissions())
}

func TestRunFiltered(t *testing.T) {
	registry := types.NewFilterRegistry(testutil.Logger())
	registry.Register(filters.NewRouteFilter(map[types.Domain][]types.Domain{0: {3}}))

	source := fundedSource()
	_, err := transfer.NewOrchestrator(source, testutil.NewMockChain(6), &mockPoller{}, config(), testutil.Logger(),
		transfer.WithFilters(registry)).Run(context.Background(), request())
	require.Equal(t, transfer.Filtered, transfer.ReasonOf(err))
	require.Empty(t, source.Submissions())
}

func TestRunAttestationFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason transfer.FailureReason
	}{
		{"failed", &types.AttestationServiceError{TxHash: "0x1", Status: "failed"}, transfer.AttestationFailed},
		{"timeout", &types.AttestationTimeoutError{TxHash: "0x1", Attempts: 3}, transfer.AttestationTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			destination := testutil.NewMockChain(6)
			poller := &mockPoller{fn: func(context.Context, types.BurnReceipt, func(types.PollAttempt)) (*types.Attestation, error) {
				return nil, tt.err
			}}

			res, err := transfer.NewOrchestrator(fundedSource(), destination, poller, config(), testutil.Logger()).Run(context.Background(), request())
			require.Equal(t, tt.reason, transfer.ReasonOf(err))

			var transferErr *transfer.TransferError
			require.True(t, errors.As(err, &transferErr))
			require.Equal(t, transfer.Burning, transferErr.LastState)
			require.NotNil(t, res.Burn)
			require.Empty(t, destination.Submissions())
		})
	}
}

func TestRunCanceledWhileAwaitingAttestation(t *testing.T) {
	iris := testutil.NewIrisServer(t, testutil.IrisResponse{StatusCode: http.StatusNotFound})
	cfg := testutil.ConfigSetup(t, iris.URL)
	cfg.Circle.MaxWait = 0
	poller, err := circle.NewPoller(cfg.Circle, testutil.Logger())
	require.NoError(t, err)

	destination := testutil.NewMockChain(6)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res, err := transfer.NewOrchestrator(fundedSource(), destination, poller, config(), testutil.Logger()).Run(ctx, request())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, transfer.Canceled, res.Reason)
	require.NotEmpty(t, res.BurnTxHash)
	require.Empty(t, destination.Submissions())
}

func TestRunNeverMintsIncompleteAttestation(t *testing.T) {
	destination := testutil.NewMockChain(6)
	poller := &mockPoller{fn: func(context.Context, types.BurnReceipt, func(types.PollAttempt)) (*types.Attestation, error) {
		return &types.Attestation{Status: types.AttestationPending}, nil
	}}

	_, err := transfer.NewOrchestrator(fundedSource(), destination, poller, config(), testutil.Logger()).Run(context.Background(), request())
	require.Equal(t, transfer.AttestationFailed, transfer.ReasonOf(err))
	require.Empty(t, destination.Submissions())

	o := transfer.NewOrchestrator(fundedSource(), destination, poller, config(), testutil.Logger())
	_, err = o.Mint(context.Background(), request(), &types.Attestation{Status: types.AttestationPending, Message: []byte{1}, Attestation: []byte{2}})
	require.Equal(t, transfer.MintRejected, transfer.ReasonOf(err))
	_, err = o.Mint(context.Background(), request(), nil)
	require.Equal(t, transfer.MintRejected, transfer.ReasonOf(err))
	require.Empty(t, destination.Submissions())
}

func TestMintTwice(t *testing.T) {
	destination := testutil.NewMockChain(6)
	var mu sync.Mutex
	minted := false
	destination.SubmitTransactionFunc = func(context.Context, string, []byte) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if minted {
			return "", &types.SubmissionError{Step: "receiveMessage", Err: errors.New("execution reverted: Nonce already used")}
		}
		minted = true
		return "0xmint", nil
	}
	o := transfer.NewOrchestrator(fundedSource(), destination, &mockPoller{}, config(), testutil.Logger())
	att := &types.Attestation{Status: types.AttestationComplete, Message: []byte{0xaa}, Attestation: []byte{0xbb}}

	res, err := o.Mint(context.Background(), request(), att)
	require.NoError(t, err)
	require.Equal(t, "0xmint", res.MintTxHash)

	res, err = o.Mint(context.Background(), request(), att)
	require.Error(t, err)
	require.ErrorIs(t, err, types.ErrSubmission)
	require.Equal(t, transfer.MintRejected, transfer.ReasonOf(err))
	require.Equal(t, transfer.Failed, res.State)
	require.Len(t, destination.Submissions(), 2)
}

func TestMintVerifiesMessage(t *testing.T) {
	message := testutil.BurnMessageBytes(0, 6, 42, testutil.SepoliaUSDC, testutil.Recipient, testutil.TestAddress, big.NewInt(1_000_000))
	att := &types.Attestation{Status: types.AttestationComplete, Message: message, Attestation: []byte{0xbb}}

	cfg := config()
	cfg.VerifyMessage = true
	destination := testutil.NewMockChain(6)
	o := transfer.NewOrchestrator(fundedSource(), destination, &mockPoller{}, cfg, testutil.Logger())

	_, err := o.Mint(context.Background(), request(), att)
	require.NoError(t, err)

	req := request()
	req.Amount = big.NewInt(2_000_000)
	_, err = o.Mint(context.Background(), req, att)
	require.ErrorIs(t, err, types.ErrEncoding)
	require.Equal(t, transfer.MintRejected, transfer.ReasonOf(err))
	require.Len(t, destination.Submissions(), 1)
}

func TestResumeFromBurn(t *testing.T) {
	source := fundedSource()
	destination := testutil.NewMockChain(6)
	poller := &mockPoller{fn: func(_ context.Context, burn types.BurnReceipt, _ func(types.PollAttempt)) (*types.Attestation, error) {
		require.Equal(t, "0xburned", burn.TxHash)
		require.Equal(t, types.Domain(0), burn.SourceDomain)
		return &types.Attestation{Status: types.AttestationComplete, Message: []byte{0xaa}, Attestation: []byte{0xbb}}, nil
	}}

	var events []transfer.Event
	res, err := transfer.NewOrchestrator(source, destination, poller, config(), testutil.Logger(), recordStates(&events)).
		ResumeFromBurn(context.Background(), request(), "0xburned")
	require.NoError(t, err)
	require.Equal(t, transfer.Complete, res.State)
	require.Equal(t, "0xburned", res.BurnTxHash)
	require.Empty(t, source.Submissions())
	require.Len(t, destination.Submissions(), 1)
	require.Equal(t, []transfer.State{transfer.AwaitingAttestation, transfer.Minting, transfer.Complete}, statesOf(events))
}

func TestRunWithStore(t *testing.T) {
	store := transfer.NewStore()
	source := fundedSource()
	o := transfer.NewOrchestrator(source, testutil.NewMockChain(6), &mockPoller{}, config(), testutil.Logger(), transfer.WithStore(store))

	res, err := o.Run(context.Background(), request())
	require.NoError(t, err)

	stored, ok := store.Load(res.ID)
	require.True(t, ok)
	require.Equal(t, transfer.Complete, stored.State)
	require.Equal(t, res.MintTxHash, stored.MintTxHash)

	byBurn, ok := store.ByBurnTx(res.BurnTxHash)
	require.True(t, ok)
	require.Equal(t, res.ID, byBurn.ID)
	require.False(t, store.InFlight(testutil.TestAddress))

	// a second transfer is refused while one is in flight for the sender
	require.NoError(t, store.Begin(transfer.Result{ID: "pending", Sender: testutil.TestAddress, State: transfer.AwaitingAttestation}))
	_, err = o.Run(context.Background(), request())
	require.ErrorIs(t, err, transfer.ErrTransferInFlight)
	require.Equal(t, transfer.InvalidRequest, transfer.ReasonOf(err))
}

func TestResumeRefusedKeepsStoredBurn(t *testing.T) {
	store := transfer.NewStore()
	store.Store(transfer.Result{ID: "burned", Sender: testutil.TestAddress, State: transfer.Failed, Reason: transfer.AttestationTimeout, BurnTxHash: "0xburn"})
	require.NoError(t, store.Begin(transfer.Result{ID: "other", Sender: testutil.TestAddress, State: transfer.Burning}))

	destination := testutil.NewMockChain(6)
	poller := &mockPoller{}
	o := transfer.NewOrchestrator(fundedSource(), destination, poller, config(), testutil.Logger(), transfer.WithStore(store))

	res, err := o.ResumeFromBurnWithID(context.Background(), "burned", request(), "0xburn")
	require.ErrorIs(t, err, transfer.ErrTransferInFlight)
	require.Equal(t, transfer.Failed, res.State)
	require.Zero(t, poller.Calls())
	require.Empty(t, destination.Submissions())

	stored, ok := store.Load("burned")
	require.True(t, ok)
	require.Equal(t, transfer.Failed, stored.State)
	require.Equal(t, transfer.AttestationTimeout, stored.Reason)
	require.Equal(t, "0xburn", stored.BurnTxHash)

	byBurn, ok := store.ByBurnTx("0xBURN")
	require.True(t, ok)
	require.Equal(t, "burned", byBurn.ID)
}

func TestResumeSameTransferConcurrently(t *testing.T) {
	store := transfer.NewStore()
	store.Store(transfer.Result{ID: "burned", Sender: testutil.TestAddress, State: transfer.Failed, Reason: transfer.AttestationTimeout, BurnTxHash: "0xburn"})

	release := make(chan struct{})
	destination := testutil.NewMockChain(6)
	poller := &mockPoller{fn: func(ctx context.Context, _ types.BurnReceipt, _ func(types.PollAttempt)) (*types.Attestation, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &types.Attestation{Status: types.AttestationComplete, Message: []byte{0xaa}, Attestation: []byte{0xbb}}, nil
	}}
	o := transfer.NewOrchestrator(fundedSource(), destination, poller, config(), testutil.Logger(), transfer.WithStore(store))

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := o.ResumeFromBurnWithID(context.Background(), "burned", request(), "0xburn")
			errs <- err
		}()
	}

	// the loser returns straight away while the winner waits on the poller
	select {
	case err := <-errs:
		require.ErrorIs(t, err, transfer.ErrTransferRunning)
	case <-time.After(5 * time.Second):
		t.Fatal("neither resume was refused")
	}
	close(release)
	require.NoError(t, <-errs)

	require.Equal(t, 1, poller.Calls())
	require.Len(t, destination.Submissions(), 1)
	stored, ok := store.Load("burned")
	require.True(t, ok)
	require.Equal(t, transfer.Complete, stored.State)
	require.Equal(t, "0xburn", stored.BurnTxHash)

	// a finished transfer can be claimed again
	_, err := o.ResumeFromBurnWithID(context.Background(), "burned", request(), "0xburn")
	require.NoError(t, err)
}

func TestRunMetrics(t *testing.T) {
	m := metrics.NewPromMetrics()
	o := transfer.NewOrchestrator(fundedSource(), testutil.NewMockChain(6), &mockPoller{}, config(), testutil.Logger(), transfer.WithMetrics(m))

	_, err := o.Run(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, float64(1), promtestutil.ToFloat64(m.TransfersTotal.WithLabelValues("0", "6", "complete", "")))
	require.Equal(t, float64(0), promtestutil.ToFloat64(m.AttestationPending.WithLabelValues("0", "6")))

	source := fundedSource()
	source.SubmitTransactionFunc = func(context.Context, string, []byte) (string, error) {
		return "", errors.New("nonce too low")
	}
	o = transfer.NewOrchestrator(source, testutil.NewMockChain(6), &mockPoller{}, config(), testutil.Logger(), transfer.WithMetrics(m))
	_, err = o.Run(context.Background(), request())
	require.Error(t, err)
	require.Equal(t, float64(1), promtestutil.ToFloat64(m.TransfersTotal.WithLabelValues("0", "6", "failed", "burn_rejected")))
	require.Equal(t, float64(1), promtestutil.ToFloat64(m.SubmissionErrors.WithLabelValues("domain-0", "0", "depositForBurn")))
}
