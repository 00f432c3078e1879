package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/strangelove-ventures/cctp-transfer/ethereum"
	"github.com/strangelove-ventures/cctp-transfer/metrics"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

// ChainClient is the chain access the orchestrator needs. *ethereum.Chain satisfies it.
type ChainClient interface {
	Name() string
	Domain() types.Domain
	Address() string
	ReadBalance(ctx context.Context, token, owner string) (*big.Int, error)
	ReadAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
	SubmitTransaction(ctx context.Context, to string, data []byte) (string, error)
	WaitMined(ctx context.Context, txHash string) (*types.Receipt, error)
}

// AttestationPoller waits for the attestation of a burn. *circle.Poller satisfies it.
type AttestationPoller interface {
	AwaitAttestation(ctx context.Context, burn types.BurnReceipt, onAttempt func(types.PollAttempt)) (*types.Attestation, error)
}

type Config struct {
	// MessageTransmitter receives the mint on the destination chain
	MessageTransmitter string
	// AllowanceCeiling is approved instead of the transfer amount so later transfers skip approval
	AllowanceCeiling *big.Int
	// CheckAllowance reads balance and allowance before approving and burning
	CheckAllowance bool
	// VerifyMessage checks the attested message against the request before minting
	VerifyMessage bool
}

// NewConfig builds the orchestrator config of a route from the transfer settings
func NewConfig(settings types.TransferSettings, destination types.ChainSettings) (Config, error) {
	ceiling, err := settings.Ceiling()
	if err != nil {
		return Config{}, err
	}
	if destination.MessageTransmitter == "" {
		return Config{}, errors.New("destination chain has no message-transmitter")
	}
	return Config{
		MessageTransmitter: destination.MessageTransmitter,
		AllowanceCeiling:   ceiling,
		CheckAllowance:     settings.CheckAllowance,
		VerifyMessage:      settings.VerifyMessage,
	}, nil
}

type Option func(*Orchestrator)

// WithObserver registers a progress callback
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, observer)
	}
}

// WithFilters rejects requests matched by any registered filter before anything is submitted
func WithFilters(registry *types.FilterRegistry) Option {
	return func(o *Orchestrator) {
		o.filters = registry
	}
}

func WithMetrics(m *metrics.PromMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithStore records a snapshot of every transition and refuses a second in flight transfer per sender
func WithStore(store *Store) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// Orchestrator drives a transfer through approve, burn, attestation and mint. Steps run
// strictly in order on the caller's goroutine.
type Orchestrator struct {
	source      ChainClient
	destination ChainClient
	poller      AttestationPoller
	cfg         Config

	observers []Observer
	filters   *types.FilterRegistry
	metrics   *metrics.PromMetrics
	store     *Store

	logger log.Logger
}

func NewOrchestrator(
	source, destination ChainClient,
	poller AttestationPoller,
	cfg Config,
	logger log.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		source:      source,
		destination: destination,
		poller:      poller,
		cfg:         cfg,
		logger: logger.With("component", "orchestrator",
			"source_domain", source.Domain(), "dest_domain", destination.Domain()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes a transfer from the start. The returned result always carries the artifacts
// obtained so far; on failure the error is a *TransferError.
func (o *Orchestrator) Run(ctx context.Context, req types.TransferRequest) (*Result, error) {
	return o.RunWithID(ctx, uuid.NewString(), req)
}

func (o *Orchestrator) RunWithID(ctx context.Context, id string, req types.TransferRequest) (*Result, error) {
	run := o.begin(id, req, Idle, "")
	if run.res.State == Failed {
		return run.res, run.res.err
	}

	approveData, burnData, err := o.preflight(ctx, req)
	if err != nil {
		reason := InvalidRequest
		var filterErr *filteredError
		if errors.As(err, &filterErr) {
			reason = Filtered
		}
		return run.fail(reason, err)
	}

	if err := run.approve(ctx, approveData); err != nil {
		return run.res, err
	}
	if err := run.burn(ctx, burnData); err != nil {
		return run.res, err
	}
	return run.awaitAndMint(ctx)
}

// ResumeFromBurn finishes a transfer whose burn was already submitted: it waits for the burn
// receipt, then awaits the attestation and mints. This is the recovery path once a burn has
// been mined, which can never be undone.
func (o *Orchestrator) ResumeFromBurn(ctx context.Context, req types.TransferRequest, burnTxHash string) (*Result, error) {
	return o.ResumeFromBurnWithID(ctx, uuid.NewString(), req, burnTxHash)
}

func (o *Orchestrator) ResumeFromBurnWithID(ctx context.Context, id string, req types.TransferRequest, burnTxHash string) (*Result, error) {
	run := o.begin(id, req, Burning, burnTxHash)
	if run.res.State == Failed {
		return run.res, run.res.err
	}
	if err := o.checkRoute(req); err != nil {
		return run.fail(InvalidRequest, err)
	}
	if err := run.confirmBurn(ctx, burnTxHash); err != nil {
		return run.res, err
	}
	return run.awaitAndMint(ctx)
}

// Mint submits receiveMessage with an attestation obtained earlier. Minting the same
// attestation twice is safe to attempt: the destination contract rejects the replay and
// the rejection is returned as a mint_rejected TransferError.
func (o *Orchestrator) Mint(ctx context.Context, req types.TransferRequest, attestation *types.Attestation) (*Result, error) {
	run := o.begin(uuid.NewString(), req, AwaitingAttestation, "")
	if run.res.State == Failed {
		return run.res, run.res.err
	}
	run.res.Attestation = attestation
	return run.mint(ctx)
}

func (o *Orchestrator) checkRoute(req types.TransferRequest) error {
	if req.SourceDomain != o.source.Domain() {
		return &types.EncodingError{Field: "sourceDomain", Err: fmt.Errorf("source chain serves domain %d, not %d", o.source.Domain(), req.SourceDomain)}
	}
	if req.DestinationDomain != o.destination.Domain() {
		return &types.EncodingError{Field: "destinationDomain", Err: fmt.Errorf("destination chain serves domain %d, not %d", o.destination.Domain(), req.DestinationDomain)}
	}
	return nil
}

type filteredError struct {
	reason string
}

func (e *filteredError) Error() string {
	return "transfer filtered: " + e.reason
}

// preflight rejects invalid or filtered requests and encodes every calldata of the source
// chain before any network call is made.
func (o *Orchestrator) preflight(ctx context.Context, req types.TransferRequest) (approveData, burnData []byte, err error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if err := o.checkRoute(req); err != nil {
		return nil, nil, err
	}
	if o.source.Address() == "" {
		return nil, nil, errors.New("source chain client has no signer")
	}
	if o.filters != nil {
		if reject, reason := o.filters.Filter(ctx, req); reject {
			return nil, nil, &filteredError{reason: reason}
		}
	}

	approveData, err = ethereum.EncodeApprove(req.BurnSpender, o.approvalAmount(req.Amount))
	if err != nil {
		return nil, nil, err
	}
	burnData, err = ethereum.EncodeDepositForBurn(req.Amount, req.DestinationDomain, req.MintRecipient, req.SourceToken)
	if err != nil {
		return nil, nil, err
	}
	return approveData, burnData, nil
}

// approvalAmount is the allowance ceiling, raised to amount when the transfer exceeds it
func (o *Orchestrator) approvalAmount(amount *big.Int) *big.Int {
	if o.cfg.AllowanceCeiling == nil || o.cfg.AllowanceCeiling.Cmp(amount) < 0 {
		return amount
	}
	return o.cfg.AllowanceCeiling
}

// run is the mutable state of one transfer
type run struct {
	o         *Orchestrator
	res       *Result
	completed State
	logger    log.Logger
	// unclaimed runs were refused by the store and must not overwrite its snapshot
	unclaimed bool
}

func (o *Orchestrator) begin(id string, req types.TransferRequest, state State, burnTxHash string) *run {
	now := time.Now()
	r := &run{
		o: o,
		res: &Result{
			ID:         id,
			Sender:     o.source.Address(),
			Request:    req,
			State:      state,
			BurnTxHash: burnTxHash,
			StartedAt:  now,
			UpdatedAt:  now,
		},
		completed: previous(state),
		logger:    o.logger.With("transfer", id),
	}
	if o.store != nil {
		if err := o.store.Begin(*r.res); err != nil {
			r.unclaimed = true
			r.fail(InvalidRequest, err)
		}
	}
	return r
}

// previous is the state completed before entering s
func previous(s State) State {
	switch s {
	case Burning:
		return Approving
	case AwaitingAttestation:
		return Burning
	case Minting:
		return AwaitingAttestation
	default:
		return Idle
	}
}

func (r *run) approve(ctx context.Context, approveData []byte) error {
	r.transition(Approving)
	req := r.res.Request
	src := r.o.source

	if r.o.cfg.CheckAllowance {
		balance, err := src.ReadBalance(ctx, req.SourceToken, src.Address())
		if err != nil {
			_, err = r.fail(r.reasonFor(ctx, ApprovalRejected), err)
			return err
		}
		allowance, err := src.ReadAllowance(ctx, req.SourceToken, src.Address(), req.BurnSpender)
		if err != nil {
			_, err = r.fail(r.reasonFor(ctx, ApprovalRejected), err)
			return err
		}
		state := types.AllowanceState{Token: req.SourceToken, Owner: src.Address(), Spender: req.BurnSpender, Balance: balance, Allowance: allowance}
		if !state.BalanceCovers(req.Amount) {
			_, err = r.fail(InvalidRequest, fmt.Errorf("%w: balance %s is below amount %s", types.ErrInsufficientBalance, balance, req.Amount))
			return err
		}
		if state.AllowanceCovers(req.Amount) {
			r.logger.Info("Allowance covers transfer, skipping approval", "allowance", allowance.String(), "amount", req.Amount.String())
			r.emit(Event{Type: EventApproveSkipped})
			return nil
		}
	}

	txHash, err := src.SubmitTransaction(ctx, req.SourceToken, approveData)
	if err != nil {
		r.o.incSubmissionErrors(src, "approve")
		_, err = r.fail(r.reasonFor(ctx, ApprovalRejected), err)
		return err
	}
	r.res.ApproveTxHash = txHash
	r.emit(Event{Type: EventApproveSubmitted, TxHash: txHash})

	if _, err := src.WaitMined(ctx, txHash); err != nil {
		_, err = r.fail(r.reasonFor(ctx, ApprovalRejected), err)
		return err
	}
	return nil
}

func (r *run) burn(ctx context.Context, burnData []byte) error {
	r.transition(Burning)
	req := r.res.Request
	src := r.o.source

	if r.o.cfg.CheckAllowance {
		allowance, err := src.ReadAllowance(ctx, req.SourceToken, src.Address(), req.BurnSpender)
		if err != nil {
			_, err = r.fail(r.reasonFor(ctx, BurnRejected), err)
			return err
		}
		if allowance.Cmp(req.Amount) < 0 {
			_, err = r.fail(BurnRejected, &types.SubmissionError{
				Step: "depositForBurn",
				Err:  fmt.Errorf("%w: allowance %s is below amount %s", types.ErrInsufficientAllowance, allowance, req.Amount),
			})
			return err
		}
	}

	txHash, err := src.SubmitTransaction(ctx, req.BurnSpender, burnData)
	if err != nil {
		r.o.incSubmissionErrors(src, "depositForBurn")
		_, err = r.fail(r.reasonFor(ctx, BurnRejected), err)
		return err
	}
	r.res.BurnTxHash = txHash
	r.emit(Event{Type: EventBurnSubmitted, TxHash: txHash})

	return r.confirmBurn(ctx, txHash)
}

// confirmBurn waits for the burn receipt and records it. From here on the source balance is
// gone and only a mint can complete the transfer.
func (r *run) confirmBurn(ctx context.Context, txHash string) error {
	receipt, err := r.o.source.WaitMined(ctx, txHash)
	if err != nil {
		_, err = r.fail(r.reasonFor(ctx, BurnRejected), err)
		return err
	}
	burn := ethereum.BurnReceiptFromReceipt(receipt, r.res.Request.SourceDomain)
	r.res.Burn = &burn
	r.logger.Info("Burn confirmed", "tx", txHash, "block", burn.BlockNumber, "message_hash", burn.MessageHash)
	return nil
}

func (r *run) awaitAndMint(ctx context.Context) (*Result, error) {
	r.transition(AwaitingAttestation)
	src := strconv.FormatUint(uint64(r.res.Request.SourceDomain), 10)
	dst := strconv.FormatUint(uint64(r.res.Request.DestinationDomain), 10)

	if r.o.metrics != nil {
		r.o.metrics.IncPending(src, dst)
		defer r.o.metrics.DecPending(src, dst)
	}

	start := time.Now()
	att, err := r.o.poller.AwaitAttestation(ctx, *r.res.Burn, func(pa types.PollAttempt) {
		if r.o.metrics != nil {
			status := string(pa.Status)
			if pa.Err != nil {
				status = "error"
			}
			r.o.metrics.IncAttestation(src, status)
		}
		if pa.Err == nil && pa.Status != types.AttestationComplete {
			r.emit(Event{Type: EventAttestationPending, TxHash: r.res.BurnTxHash, Attempt: pa.Attempt, Elapsed: pa.Elapsed})
		}
	})
	if err != nil {
		reason := AttestationFailed
		switch {
		case ctx.Err() != nil:
			reason = Canceled
		case errors.Is(err, types.ErrAttestationTimeout):
			reason = AttestationTimeout
		}
		return r.fail(reason, err)
	}
	if !att.Complete() {
		return r.fail(AttestationFailed, &types.AttestationServiceError{TxHash: r.res.BurnTxHash, Status: string(att.Status)})
	}

	wait := time.Since(start)
	if r.o.metrics != nil {
		r.o.metrics.ObserveAttestationWait(src, wait)
	}
	r.res.Attestation = att
	r.emit(Event{Type: EventAttestationComplete, TxHash: r.res.BurnTxHash, Elapsed: wait})

	return r.mint(ctx)
}

func (r *run) mint(ctx context.Context) (*Result, error) {
	r.transition(Minting)
	req := r.res.Request
	att := r.res.Attestation
	dst := r.o.destination

	if !att.Complete() {
		status := "missing"
		if att != nil {
			status = string(att.Status)
		}
		return r.fail(MintRejected, fmt.Errorf("mint requires a complete attestation, have %s", status))
	}
	if r.o.cfg.VerifyMessage {
		if err := VerifyMessage(req, att.Message); err != nil {
			return r.fail(MintRejected, err)
		}
	}

	data, err := ethereum.EncodeReceiveMessage(att.Message, att.Attestation)
	if err != nil {
		return r.fail(MintRejected, err)
	}
	txHash, err := dst.SubmitTransaction(ctx, r.o.cfg.MessageTransmitter, data)
	if err != nil {
		r.o.incSubmissionErrors(dst, "receiveMessage")
		return r.fail(r.reasonFor(ctx, MintRejected), err)
	}
	r.res.MintTxHash = txHash
	r.emit(Event{Type: EventMintSubmitted, TxHash: txHash})

	receipt, err := dst.WaitMined(ctx, txHash)
	if err != nil {
		return r.fail(r.reasonFor(ctx, MintRejected), err)
	}
	r.res.Mint = &types.MintReceipt{
		TxHash:            txHash,
		DestinationDomain: req.DestinationDomain,
		BlockNumber:       receipt.BlockNumber,
	}

	r.transition(Complete)
	r.o.incTransfer(req, Complete, "")
	r.logger.Info("Transfer complete", "burn_tx", r.res.BurnTxHash, "mint_tx", txHash, "amount", req.Amount.String())
	return r.res, nil
}

func (r *run) transition(next State) {
	prev := r.res.State
	if prev != next && prev != Idle {
		r.completed = prev
	}
	r.res.State = next
	r.res.UpdatedAt = time.Now()
	r.logger.Info("Transfer state changed", "from", prev, "to", next)
	r.emit(Event{Type: EventStateChanged})
}

// fail moves the transfer to the absorbing failed state
func (r *run) fail(reason FailureReason, err error) (*Result, error) {
	transferErr := &TransferError{Reason: reason, LastState: r.completed, Err: err}
	r.res.State = Failed
	r.res.Reason = reason
	r.res.Error = err.Error()
	r.res.UpdatedAt = time.Now()
	r.res.err = transferErr

	if r.res.Burn != nil || (reason == Canceled && r.res.BurnTxHash != "") {
		r.logger.Error("Transfer failed after burn, resume with the burn tx to mint",
			"reason", reason, "burn_tx", r.res.BurnTxHash, "error", err)
	} else {
		r.logger.Error("Transfer failed", "reason", reason, "last_state", r.completed, "error", err)
	}
	r.o.incTransfer(r.res.Request, Failed, reason)
	r.emit(Event{Type: EventFailed, Reason: reason, Err: transferErr})
	return r.res, transferErr
}

// reasonFor maps a failure to canceled when the caller's context is done
func (r *run) reasonFor(ctx context.Context, reason FailureReason) FailureReason {
	if ctx.Err() != nil {
		return Canceled
	}
	return reason
}

func (r *run) emit(e Event) {
	e.TransferID = r.res.ID
	e.State = r.res.State
	if r.o.store != nil && !r.unclaimed {
		r.o.store.Store(*r.res)
	}
	for _, observer := range r.o.observers {
		observer(e)
	}
}

func (o *Orchestrator) incSubmissionErrors(chain ChainClient, step string) {
	if o.metrics != nil {
		o.metrics.IncSubmissionErrors(chain.Name(), strconv.FormatUint(uint64(chain.Domain()), 10), step)
	}
}

func (o *Orchestrator) incTransfer(req types.TransferRequest, state State, reason FailureReason) {
	if o.metrics != nil {
		o.metrics.IncTransfer(
			strconv.FormatUint(uint64(req.SourceDomain), 10),
			strconv.FormatUint(uint64(req.DestinationDomain), 10),
			string(state), string(reason))
	}
}
