package cmd

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/strangelove-ventures/cctp-transfer/transfer"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

// transferRunner starts transfers under a caller chosen id. *transfer.Orchestrator satisfies it.
type transferRunner interface {
	RunWithID(ctx context.Context, id string, req types.TransferRequest) (*transfer.Result, error)
	ResumeFromBurnWithID(ctx context.Context, id string, req types.TransferRequest, burnTxHash string) (*transfer.Result, error)
}

// API runs transfers in the background and serves their progress from the store
type API struct {
	ctx    context.Context
	runner transferRunner
	store  *transfer.Store
	cfg    *types.Config
	sender string
	logger log.Logger

	// the route transfers are requested on
	source      string
	destination string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// transferBody is the body of POST /transfers. Amount is in whole USDC, e.g. "1.5".
type transferBody struct {
	Amount    string `json:"amount" binding:"required"`
	Recipient string `json:"recipient" binding:"required"`
}

// NewAPI returns an API that runs transfers from source to destination until ctx is done
func NewAPI(ctx context.Context, runner transferRunner, store *transfer.Store, cfg *types.Config, source, destination, sender string, logger log.Logger) *API {
	return &API{
		ctx:         ctx,
		runner:      runner,
		store:       store,
		cfg:         cfg,
		sender:      sender,
		logger:      logger.With("component", "api"),
		source:      source,
		destination: destination,
		cancels:     make(map[string]context.CancelFunc),
	}
}

func (a *API) Router(trustedProxies []string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		return nil, err
	}

	router.POST("/transfers", a.postTransfer)
	router.GET("/transfers", a.listTransfers)
	router.GET("/transfers/:id", a.getTransfer)
	router.POST("/transfers/:id/cancel", a.cancelTransfer)
	router.POST("/transfers/:id/resume", a.resumeTransfer)
	router.GET("/tx/:txHash", a.getTxByHash)
	return router, nil
}

// Serve blocks until ctx is done, then stops accepting requests and waits for running
// transfers to observe the cancellation
func (a *API) Serve(ctx context.Context, address string, trustedProxies []string) error {
	router, err := a.Router(trustedProxies)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.logger.Info("API listening", "address", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.Wait()
	return nil
}

// Wait blocks until every background transfer has returned
func (a *API) Wait() {
	a.wg.Wait()
}

func (a *API) postTransfer(c *gin.Context) {
	var body transferBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	amount, err := parseAmount(body.Amount, a.cfg.Transfer.Decimals)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	req, err := a.cfg.RouteRequest(a.source, a.destination, amount, body.Recipient)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	// reserve the sender before responding so a concurrent request sees it in flight
	now := time.Now()
	res := transfer.Result{
		ID:        uuid.NewString(),
		Sender:    a.sender,
		Request:   req,
		State:     transfer.Idle,
		StartedAt: now,
		UpdatedAt: now,
	}
	err = a.start(res, func(ctx context.Context) (*transfer.Result, error) {
		return a.runner.RunWithID(ctx, res.ID, req)
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (a *API) listTransfers(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.List())
}

func (a *API) getTransfer(c *gin.Context) {
	res, ok := a.store.Load(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "transfer not found"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) cancelTransfer(c *gin.Context) {
	id := c.Param("id")
	res, ok := a.store.Load(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "transfer not found"})
		return
	}

	cancel, running := a.running(id)
	if !running || res.State.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"message": "transfer is not running", "state": res.State})
		return
	}
	cancel()
	c.JSON(http.StatusAccepted, gin.H{"id": id, "state": res.State})
}

// resumeTransfer restarts a failed transfer from its burn, keeping its id
func (a *API) resumeTransfer(c *gin.Context) {
	id := c.Param("id")
	res, ok := a.store.Load(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "transfer not found"})
		return
	}
	if res.State != transfer.Failed || res.BurnTxHash == "" {
		c.JSON(http.StatusConflict, gin.H{"message": "only a failed transfer with a burn tx can be resumed", "state": res.State})
		return
	}

	resumed := res
	resumed.State = transfer.Burning
	resumed.Reason = ""
	resumed.Error = ""
	resumed.UpdatedAt = time.Now()
	err := a.start(resumed, func(ctx context.Context) (*transfer.Result, error) {
		return a.runner.ResumeFromBurnWithID(ctx, id, res.Request, res.BurnTxHash)
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "burnTxHash": res.BurnTxHash})
}

// getTxByHash finds the transfer that submitted a burn, optionally checking its source domain
func (a *API) getTxByHash(c *gin.Context) {
	txHash := c.Param("txHash")
	if !strings.HasPrefix(txHash, "0x") {
		txHash = "0x" + txHash
	}

	res, ok := a.store.ByBurnTx(txHash)
	if domain := c.Query("domain"); ok && domain != "" {
		domainInt, err := strconv.ParseUint(domain, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "unable to parse domain"})
			return
		}
		ok = res.Request.SourceDomain == types.Domain(domainInt)
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "transfer not found"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// running returns the cancel func of a transfer whose goroutine has not returned yet
func (a *API) running(id string) (context.CancelFunc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cancel, ok := a.cancels[id]
	return cancel, ok
}

// start reserves res in the store and runs fn in the background. The reservation and the
// cancel registration happen under one lock so two requests cannot start the same transfer.
func (a *API) start(res transfer.Result, fn func(ctx context.Context) (*transfer.Result, error)) error {
	id := res.ID
	a.mu.Lock()
	if _, ok := a.cancels[id]; ok {
		a.mu.Unlock()
		return transfer.ErrTransferRunning
	}
	if err := a.store.Reserve(res); err != nil {
		a.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.cancels[id] = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			a.mu.Lock()
			delete(a.cancels, id)
			a.mu.Unlock()
			cancel()
		}()

		res, err := fn(ctx)
		if err != nil {
			a.logger.Error("Transfer failed", "transfer", id, "reason", transfer.ReasonOf(err), "error", err)
			return
		}
		a.logger.Info("Transfer complete", "transfer", id, "mint_tx", res.MintTxHash)
	}()
	return nil
}
