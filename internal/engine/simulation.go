// Package engine simulates order execution for paper trading sessions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/alert"
	"github.com/your-org/strategy-runner/internal/config"
	"github.com/your-org/strategy-runner/internal/dbwriter"
	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/market"
	"github.com/your-org/strategy-runner/internal/report"
)

// Config holds the engine-wide defaults.
type Config struct {
	// BaseAddress is the token address of the base currency itself.
	BaseAddress         string
	FeePct              float64
	SlippagePct         float64
	NetworkFee          float64
	InitialBaseBalance  float64
	InitialQuoteBalance float64
	PriceRetryAttempts  int
	PriceRetryBaseDelay time.Duration
	// SnapshotDir receives a JSON ledger snapshot per ended session. Empty disables it.
	SnapshotDir string
}

// ConfigFromSimulation builds an engine Config from the application config.
func ConfigFromSimulation(c config.SimulationConfig, snapshotDir string) Config {
	return Config{
		BaseAddress:         c.BaseAddress,
		FeePct:              c.FeePct,
		SlippagePct:         c.SlippagePct,
		NetworkFee:          c.NetworkFee,
		InitialBaseBalance:  c.InitialBaseBalance,
		InitialQuoteBalance: c.InitialQuoteBalance,
		PriceRetryAttempts:  c.PriceRetryAttempts,
		PriceRetryBaseDelay: c.PriceRetryBaseDelay.Std(),
		SnapshotDir:         snapshotDir,
	}
}

// SessionConfig describes one paper session.
type SessionConfig struct {
	StrategyID          string  `json:"strategy_id"`
	InstanceID          string  `json:"instance_id"`
	TokenAddress        string  `json:"token_address"`
	FeePct              float64 `json:"fee_pct"`
	SlippagePct         float64 `json:"slippage_pct"`
	NetworkFee          float64 `json:"network_fee"`
	InitialBaseBalance  float64 `json:"initial_base_balance"`
	InitialQuoteBalance float64 `json:"initial_quote_balance"`
	// InitialInventoryBase, when positive, is spent on a synthetic
	// initialization buy so the session starts holding the token.
	InitialInventoryBase float64 `json:"initial_inventory_base"`
}

// SessionView is a read-only copy of a session.
type SessionView struct {
	ID        string           `json:"id"`
	Config    SessionConfig    `json:"config"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
	EndedAt   time.Time        `json:"ended_at,omitempty"`
	Portfolio ledger.Portfolio `json:"portfolio"`
	Trades    []ledger.Trade   `json:"trades"`
	Metrics   report.Metrics   `json:"metrics"`
}

// SellAmount is either an exact quantity or the whole position.
type SellAmount struct {
	qty float64
	all bool
}

// Exact sells qty tokens.
func Exact(qty float64) SellAmount { return SellAmount{qty: qty} }

// All sells the whole position.
func All() SellAmount { return SellAmount{all: true} }

// IsAll reports whether the whole position is sold.
func (a SellAmount) IsAll() bool { return a.all }

// Quantity returns the exact quantity. It is zero for All.
func (a SellAmount) Quantity() float64 { return a.qty }

func (a SellAmount) String() string {
	if a.all {
		return "all"
	}
	return fmt.Sprintf("%.8f", a.qty)
}

type session struct {
	mu        sync.Mutex
	id        string
	cfg       SessionConfig
	ledger    *ledger.Ledger
	metrics   report.Metrics
	active    bool
	createdAt time.Time
	endedAt   time.Time
}

// SimulationEngine owns paper sessions and fills orders against a price
// oracle. Orders on one session commit one at a time; quotes are fetched
// outside the session lock.
type SimulationEngine struct {
	oracle   market.PriceOracle
	repo     dbwriter.Repository
	notifier alert.Notifier
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSimulationEngine creates a new SimulationEngine. repo and notifier may be nil.
func NewSimulationEngine(oracle market.PriceOracle, repo dbwriter.Repository, notifier alert.Notifier, cfg Config, logger *zap.Logger) *SimulationEngine {
	if cfg.PriceRetryAttempts <= 0 {
		cfg.PriceRetryAttempts = 3
	}
	if repo == nil {
		repo = dbwriter.NewInMemWriter()
	}
	if notifier == nil {
		notifier = alert.NewNoOpNotifier()
	}
	return &SimulationEngine{
		oracle:   oracle,
		repo:     repo,
		notifier: notifier,
		logger:   logger.Named("simulation"),
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// DefaultSessionConfig returns a SessionConfig for token using the engine defaults.
func (e *SimulationEngine) DefaultSessionConfig(token string) SessionConfig {
	return SessionConfig{
		TokenAddress:        token,
		FeePct:              e.cfg.FeePct,
		SlippagePct:         e.cfg.SlippagePct,
		NetworkFee:          e.cfg.NetworkFee,
		InitialBaseBalance:  e.cfg.InitialBaseBalance,
		InitialQuoteBalance: e.cfg.InitialQuoteBalance,
	}
}

func validateSessionConfig(c SessionConfig, baseAddress string) error {
	switch {
	case c.TokenAddress == "":
		return fmt.Errorf("%w: token address is required", ErrValidation)
	case !finiteNonNegative(c.FeePct) || c.FeePct >= 1:
		return fmt.Errorf("%w: fee pct %v", ErrValidation, c.FeePct)
	case !finiteNonNegative(c.SlippagePct) || c.SlippagePct >= 1:
		return fmt.Errorf("%w: slippage pct %v", ErrValidation, c.SlippagePct)
	case !finiteNonNegative(c.NetworkFee):
		return fmt.Errorf("%w: network fee %v", ErrValidation, c.NetworkFee)
	case !finiteNonNegative(c.InitialBaseBalance) || !finiteNonNegative(c.InitialQuoteBalance):
		return fmt.Errorf("%w: initial balances must not be negative", ErrValidation)
	case !finiteNonNegative(c.InitialInventoryBase) || c.InitialInventoryBase > c.InitialBaseBalance:
		return fmt.Errorf("%w: initial inventory %v exceeds base balance %v", ErrValidation, c.InitialInventoryBase, c.InitialBaseBalance)
	case c.InitialInventoryBase > 0 && c.TokenAddress == baseAddress:
		return fmt.Errorf("%w: initial inventory cannot be the base currency", ErrValidation)
	}
	return nil
}

// CreateSession opens a paper session. An empty sessionID is replaced by a
// generated one. When cfg.InitialInventoryBase is positive a synthetic buy
// at the oracle's current quote is recorded; if no quote is available the
// session is not created.
func (e *SimulationEngine) CreateSession(ctx context.Context, sessionID string, cfg SessionConfig) (SessionView, error) {
	if err := validateSessionConfig(cfg, e.cfg.BaseAddress); err != nil {
		return SessionView{}, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	e.mu.RLock()
	_, exists := e.sessions[sessionID]
	e.mu.RUnlock()
	if exists {
		return SessionView{}, fmt.Errorf("%w: session %s already exists", ErrValidation, sessionID)
	}

	s := &session{
		id:        sessionID,
		cfg:       cfg,
		active:    true,
		createdAt: e.now().UTC(),
		ledger: ledger.New(ledger.Balances{
			BaseAddress:  e.cfg.BaseAddress,
			BaseBalance:  cfg.InitialBaseBalance,
			QuoteBalance: cfg.InitialQuoteBalance,
		}),
	}

	var initTrade *ledger.Trade
	if cfg.InitialInventoryBase > 0 {
		price, err := e.fetchPrice(ctx, cfg.TokenAddress, ledger.LegToken)
		if err != nil {
			return SessionView{}, err
		}
		t, err := s.ledger.AddTrade(ledger.Trade{
			ID:              uuid.NewString(),
			SessionID:       sessionID,
			Side:            market.SideBuy,
			Leg:             ledger.LegToken,
			TokenAddress:    cfg.TokenAddress,
			RequestedAmount: cfg.InitialInventoryBase,
			TokenAmount:     cfg.InitialInventoryBase / price,
			FundsAmount:     cfg.InitialInventoryBase,
			MarketPrice:     price,
			ExecutionPrice:  price,
			Synthetic:       true,
			Timestamp:       s.createdAt,
		})
		if err != nil {
			return SessionView{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		initTrade = &t
	}
	s.refreshMetrics()

	e.mu.Lock()
	if _, exists := e.sessions[sessionID]; exists {
		e.mu.Unlock()
		return SessionView{}, fmt.Errorf("%w: session %s already exists", ErrValidation, sessionID)
	}
	e.sessions[sessionID] = s
	e.mu.Unlock()

	e.repo.SavePaperSession(dbwriter.PaperSession{
		SessionID:           sessionID,
		InstanceID:          cfg.InstanceID,
		StrategyID:          cfg.StrategyID,
		TokenAddress:        cfg.TokenAddress,
		InitialBaseBalance:  decimal.NewFromFloat(cfg.InitialBaseBalance),
		InitialQuoteBalance: decimal.NewFromFloat(cfg.InitialQuoteBalance),
		FeePct:              cfg.FeePct,
		SlippagePct:         cfg.SlippagePct,
		NetworkFee:          decimal.NewFromFloat(cfg.NetworkFee),
		CreatedAt:           s.createdAt,
	})
	if initTrade != nil {
		e.repo.SavePaperTrade(*initTrade)
	}
	e.logger.Info("Paper session created",
		zap.String("sessionID", sessionID),
		zap.String("strategyID", cfg.StrategyID),
		zap.String("token", cfg.TokenAddress),
		zap.Float64("initialBase", cfg.InitialBaseBalance),
		zap.Bool("synthetic", initTrade != nil))

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

func (e *SimulationEngine) lookup(sessionID string) (*session, error) {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

func (e *SimulationEngine) legFor(token string) ledger.Leg {
	if token == e.cfg.BaseAddress {
		return ledger.LegBase
	}
	return ledger.LegToken
}

// ExecuteBuy spends amount of the funding currency on token. The base
// balance funds token buys; the quote balance funds buys of the base
// currency itself.
func (e *SimulationEngine) ExecuteBuy(ctx context.Context, sessionID, token string, amount float64) (ledger.Trade, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return ledger.Trade{}, err
	}
	if token == "" {
		return ledger.Trade{}, fmt.Errorf("%w: token address is required", ErrValidation)
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return ledger.Trade{}, fmt.Errorf("%w: buy amount %v", ErrValidation, amount)
	}
	leg := e.legFor(token)

	// The quote is fetched without holding s.mu so readers are not blocked
	// by oracle retries. Preconditions are checked again before commit.
	s.mu.Lock()
	_, _, err = s.checkBuy(leg, amount)
	s.mu.Unlock()
	if err != nil {
		return ledger.Trade{}, err
	}
	price, err := e.fetchPrice(ctx, token, leg)
	if err != nil {
		e.notifyFailure(s, token, market.SideBuy, err)
		return ledger.Trade{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tradingFee, fee, err := s.checkBuy(leg, amount)
	if err != nil {
		return ledger.Trade{}, err
	}
	execPrice := price * (1 + s.cfg.SlippagePct)

	return e.commit(s, ledger.Trade{
		ID:              uuid.NewString(),
		SessionID:       s.id,
		Side:            market.SideBuy,
		Leg:             leg,
		TokenAddress:    token,
		RequestedAmount: amount,
		TokenAmount:     (amount - fee) / execPrice,
		FundsAmount:     amount,
		MarketPrice:     price,
		ExecutionPrice:  execPrice,
		SlippagePct:     s.cfg.SlippagePct,
		Fees:            ledger.Fees{Trading: tradingFee, Network: s.cfg.NetworkFee, Total: fee},
		Timestamp:       e.now().UTC(),
	})
}

// checkBuy validates a buy against the current balances and returns its
// fees. The caller holds s.mu.
func (s *session) checkBuy(leg ledger.Leg, amount float64) (tradingFee, fee float64, err error) {
	if !s.active {
		return 0, 0, fmt.Errorf("%w: %s", ErrSessionInactive, s.id)
	}
	p := s.ledger.Portfolio()
	available := p.BaseBalance
	if leg == ledger.LegBase {
		available = p.QuoteBalance
	}
	if amount > available {
		return 0, 0, fmt.Errorf("%w: need %.8f, have %.8f", ErrInsufficientBalance, amount, available)
	}
	tradingFee = amount * s.cfg.FeePct
	fee = tradingFee + s.cfg.NetworkFee
	if fee >= amount {
		return 0, 0, fmt.Errorf("%w: amount %.8f does not cover fee %.8f", ErrValidation, amount, fee)
	}
	return tradingFee, fee, nil
}

// ExecuteSell sells an exact quantity or the whole position of token.
func (e *SimulationEngine) ExecuteSell(ctx context.Context, sessionID, token string, qty SellAmount) (ledger.Trade, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return ledger.Trade{}, err
	}
	if token == "" {
		return ledger.Trade{}, fmt.Errorf("%w: token address is required", ErrValidation)
	}
	if !qty.IsAll() && (!(qty.Quantity() > 0) || math.IsInf(qty.Quantity(), 0)) {
		return ledger.Trade{}, fmt.Errorf("%w: sell quantity %v", ErrValidation, qty.Quantity())
	}
	leg := e.legFor(token)

	s.mu.Lock()
	_, _, err = s.checkSell(token, qty)
	s.mu.Unlock()
	if err != nil {
		return ledger.Trade{}, err
	}
	price, err := e.fetchPrice(ctx, token, leg)
	if err != nil {
		e.notifyFailure(s, token, market.SideSell, err)
		return ledger.Trade{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The position may have changed while the quote was fetched.
	avgEntry, amount, err := s.checkSell(token, qty)
	if err != nil {
		return ledger.Trade{}, err
	}
	execPrice := price * (1 - s.cfg.SlippagePct)
	gross := amount * execPrice
	tradingFee := gross * s.cfg.FeePct
	fee := tradingFee + s.cfg.NetworkFee
	proceeds := gross - fee
	if proceeds < 0 {
		return ledger.Trade{}, fmt.Errorf("%w: proceeds %.8f do not cover fee %.8f", ErrValidation, gross, fee)
	}
	costBasis := amount * avgEntry
	realized := proceeds - costBasis
	realizedBase := realized
	if leg == ledger.LegBase {
		realizedBase = realized / execPrice
	}

	return e.commit(s, ledger.Trade{
		ID:              uuid.NewString(),
		SessionID:       s.id,
		Side:            market.SideSell,
		Leg:             leg,
		TokenAddress:    token,
		RequestedAmount: qty.Quantity(),
		SellAll:         qty.IsAll(),
		TokenAmount:     amount,
		FundsAmount:     proceeds,
		MarketPrice:     price,
		ExecutionPrice:  execPrice,
		SlippagePct:     s.cfg.SlippagePct,
		Fees:            ledger.Fees{Trading: tradingFee, Network: s.cfg.NetworkFee, Total: fee},
		CostBasis:       costBasis,
		RealizedPnL:     realized,
		RealizedPnLBase: realizedBase,
		Timestamp:       e.now().UTC(),
	})
}

// checkSell resolves the quantity to sell against the held position and
// returns it with the position's average entry price. The caller holds s.mu.
func (s *session) checkSell(token string, qty SellAmount) (avgEntry, amount float64, err error) {
	if !s.active {
		return 0, 0, fmt.Errorf("%w: %s", ErrSessionInactive, s.id)
	}
	pos, held := s.ledger.Portfolio().Positions[token]
	if !held || pos.Closed() {
		return 0, 0, fmt.Errorf("%w: no position in %s", ErrInsufficientPosition, token)
	}
	if qty.IsAll() {
		return pos.AverageEntryPrice, pos.Amount, nil
	}
	if qty.Quantity() > pos.Amount {
		return 0, 0, fmt.Errorf("%w: sell %.8f, hold %.8f", ErrInsufficientPosition, qty.Quantity(), pos.Amount)
	}
	return pos.AverageEntryPrice, qty.Quantity(), nil
}

// commit applies a fully computed trade. The caller holds s.mu.
func (e *SimulationEngine) commit(s *session, t ledger.Trade) (ledger.Trade, error) {
	stamped, err := s.ledger.AddTrade(t)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return ledger.Trade{}, fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
		case errors.Is(err, ledger.ErrInsufficientPosition):
			return ledger.Trade{}, fmt.Errorf("%w: %v", ErrInsufficientPosition, err)
		}
		return ledger.Trade{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	s.refreshMetrics()
	e.repo.SavePaperTrade(stamped)

	e.logger.Info("Simulated trade executed",
		zap.String("sessionID", s.id),
		zap.String("side", string(stamped.Side)),
		zap.String("token", stamped.TokenAddress),
		zap.Float64("tokenAmount", stamped.TokenAmount),
		zap.Float64("executionPrice", stamped.ExecutionPrice),
		zap.Float64("fee", stamped.Fees.Total),
		zap.Float64("realizedPnL", stamped.RealizedPnL))

	base := alert.Event{
		StrategyID: s.cfg.StrategyID,
		InstanceID: s.cfg.InstanceID,
		SessionID:  s.id,
		Time:       stamped.Timestamp,
	}
	ev := base
	ev.Type = alert.TradeExecuted
	ev.Message = fmt.Sprintf("%s %s", stamped.Side, stamped.TokenAddress)
	ev.Data = map[string]any{
		"trade_id":        stamped.ID,
		"token_amount":    stamped.TokenAmount,
		"execution_price": stamped.ExecutionPrice,
		"realized_pnl":    stamped.RealizedPnL,
	}
	e.notifier.Notify(ev)

	ev = base
	ev.Type = alert.BalanceUpdated
	ev.Message = "balance updated"
	ev.Data = map[string]any{
		"base_balance":  stamped.BaseBalanceAfter,
		"quote_balance": stamped.QuoteBalanceAfter,
		"total_value":   stamped.TotalValueAfter,
	}
	e.notifier.Notify(ev)

	ev = base
	ev.Type = alert.MetricsUpdated
	ev.Message = "metrics updated"
	ev.Data = map[string]any{
		"total_pnl": s.metrics.TotalPnL,
		"win_rate":  s.metrics.WinRate,
		"roi":       s.metrics.ROI,
	}
	e.notifier.Notify(ev)
	return stamped, nil
}

func (e *SimulationEngine) notifyFailure(s *session, token string, side market.Side, err error) {
	e.logger.Warn("Simulated order failed",
		zap.String("sessionID", s.id),
		zap.String("side", string(side)),
		zap.String("token", token),
		zap.Error(err))
	e.notifier.Notify(alert.Event{
		Type:       alert.TradeFailed,
		StrategyID: s.cfg.StrategyID,
		InstanceID: s.cfg.InstanceID,
		SessionID:  s.id,
		Message:    err.Error(),
		Time:       e.now().UTC(),
	})
}

// MarkToMarket refreshes the current price of every open position. A
// position whose quote cannot be fetched keeps its last price. Quotes are
// fetched without holding the session lock.
func (e *SimulationEngine) MarkToMarket(ctx context.Context, sessionID string) (SessionView, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	p := s.ledger.Portfolio()
	s.mu.Unlock()

	tokens := make([]string, 0, len(p.Positions))
	for token := range p.Positions {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	prices := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		price, err := e.fetchPrice(ctx, token, e.legFor(token))
		if err != nil {
			e.logger.Debug("Keeping last price", zap.String("sessionID", s.id), zap.String("token", token), zap.Error(err))
			continue
		}
		prices[token] = price
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range tokens {
		if price, ok := prices[token]; ok {
			// A position closed in the meantime is skipped.
			s.ledger.Mark(token, price)
		}
	}
	s.refreshMetrics()
	return s.view(), nil
}

// GetSession returns a copy of a session.
func (e *SimulationEngine) GetSession(sessionID string) (SessionView, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Metrics returns the current metrics of a session.
func (e *SimulationEngine) Metrics(sessionID string) (report.Metrics, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return report.Metrics{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics, nil
}

// ListSessions returns every session ordered by creation time.
func (e *SimulationEngine) ListSessions() []SessionView {
	e.mu.RLock()
	all := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.RUnlock()

	views := make([]SessionView, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		views = append(views, s.view())
		s.mu.Unlock()
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// EndSession deactivates a session and returns its final metrics. Ending
// an already ended session returns the same metrics.
func (e *SimulationEngine) EndSession(sessionID string) (report.Metrics, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return report.Metrics{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return s.metrics, nil
	}
	s.active = false
	s.endedAt = e.now().UTC()
	s.refreshMetrics()
	e.repo.EndPaperSession(s.id, s.endedAt)

	if e.cfg.SnapshotDir != "" {
		path := filepath.Join(e.cfg.SnapshotDir, s.id+".json")
		if err := ledger.WriteSnapshot(path, s.ledger.ExportState()); err != nil {
			e.logger.Error("Failed to write session snapshot", zap.String("sessionID", s.id), zap.String("path", path), zap.Error(err))
		}
	}
	e.logger.Info("Paper session ended",
		zap.String("sessionID", s.id),
		zap.Int("trades", s.metrics.TotalTrades),
		zap.Float64("totalPnL", s.metrics.TotalPnL),
		zap.Float64("roiPercent", s.metrics.ROIPercent))
	return s.metrics, nil
}

// refreshMetrics recomputes metrics from the trade log. The caller holds s.mu.
func (s *session) refreshMetrics() {
	p := s.ledger.Portfolio()
	s.metrics = report.Compute(report.Input{
		InitialValue: s.ledger.Initial().BaseBalance,
		Trades:       s.ledger.Trades(),
		Portfolio:    &p,
	})
}

// view copies the session. The caller holds s.mu.
func (s *session) view() SessionView {
	return SessionView{
		ID:        s.id,
		Config:    s.cfg,
		Active:    s.active,
		CreatedAt: s.createdAt,
		EndedAt:   s.endedAt,
		Portfolio: s.ledger.Portfolio(),
		Trades:    s.ledger.Trades(),
		Metrics:   s.metrics,
	}
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
