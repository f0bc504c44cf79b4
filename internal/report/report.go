// Package report derives performance metrics from a paper trading log.
package report

import (
	"math"
	"time"

	"github.com/your-org/strategy-runner/internal/ledger"
)

// ProfitFactorCap is reported as the profit factor when there are wins and no losses.
const ProfitFactorCap = 1_000_000.0

// Metrics は取引ログから算出した成績指標を保持します。
type Metrics struct {
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
	TotalTrades          int       `json:"total_trades"`
	BuyTrades            int       `json:"buy_trades"`
	SellTrades           int       `json:"sell_trades"`
	WinningTrades        int       `json:"winning_trades"`
	LosingTrades         int       `json:"losing_trades"`
	WinRate              float64   `json:"win_rate"`
	RealizedPnL          float64   `json:"realized_pnl"`
	UnrealizedPnL        float64   `json:"unrealized_pnl"`
	TotalPnL             float64   `json:"total_pnl"`
	InitialValue         float64   `json:"initial_value"`
	CurrentValue         float64   `json:"current_value"`
	ROI                  float64   `json:"roi"`
	ROIPercent           float64   `json:"roi_percent"`
	TotalWinAmount       float64   `json:"total_win_amount"`
	TotalLossAmount      float64   `json:"total_loss_amount"`
	AverageWin           float64   `json:"average_win"`
	AverageLoss          float64   `json:"average_loss"`
	ProfitFactor         float64   `json:"profit_factor"`
	MaxDrawdown          float64   `json:"max_drawdown"`
	MaxDrawdownPercent   float64   `json:"max_drawdown_percent"`
	SharpeRatio          float64   `json:"sharpe_ratio"`
	SortinoRatio         float64   `json:"sortino_ratio"`
	MaxConsecutiveWins   int       `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int       `json:"max_consecutive_losses"`
	TotalFees            float64   `json:"total_fees"`
}

// Input is everything Compute needs. Portfolio is optional; without it the
// current value is taken from the last trade and unrealized PnL is zero.
type Input struct {
	InitialValue float64
	Trades       []ledger.Trade
	Portfolio    *ledger.Portfolio
}

// Compute はトレードログを分析して成績指標を作成します。
// Synthetic trades move value between balances but are not counted as trades.
func Compute(in Input) Metrics {
	m := Metrics{InitialValue: in.InitialValue, CurrentValue: in.InitialValue}

	var returns []float64
	var consecutiveWins, consecutiveLosses int
	equity := in.InitialValue
	peak := in.InitialValue

	for _, t := range in.Trades {
		m.TotalFees += t.FeesInBase()
		equity = t.TotalValueAfter
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
			if peak > 0 {
				m.MaxDrawdownPercent = dd / peak * 100
			}
		}

		if t.Synthetic {
			continue
		}
		if m.TotalTrades == 0 {
			m.StartDate = t.Timestamp
		}
		m.EndDate = t.Timestamp
		m.TotalTrades++

		if t.IsBuy() {
			m.BuyTrades++
			continue
		}
		m.SellTrades++
		pnl := t.RealizedPnLBase
		m.RealizedPnL += pnl
		if t.CostBasis > 0 {
			returns = append(returns, t.RealizedPnL/t.CostBasis)
		}

		switch {
		case pnl > 0:
			m.WinningTrades++
			m.TotalWinAmount += pnl
			consecutiveWins++
			consecutiveLosses = 0
			if consecutiveWins > m.MaxConsecutiveWins {
				m.MaxConsecutiveWins = consecutiveWins
			}
		case pnl < 0:
			m.LosingTrades++
			m.TotalLossAmount += -pnl
			consecutiveLosses++
			consecutiveWins = 0
			if consecutiveLosses > m.MaxConsecutiveLosses {
				m.MaxConsecutiveLosses = consecutiveLosses
			}
		}
	}

	if len(in.Trades) > 0 {
		m.CurrentValue = equity
	}
	if in.Portfolio != nil {
		m.CurrentValue = in.Portfolio.TotalValue()
		m.UnrealizedPnL = in.Portfolio.UnrealizedPnLBase()
	}
	m.TotalPnL = m.RealizedPnL + m.UnrealizedPnL

	if in.InitialValue > 0 {
		m.ROI = (m.CurrentValue - in.InitialValue) / in.InitialValue
		m.ROIPercent = m.ROI * 100
	}

	if m.SellTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.SellTrades)
	}
	if m.WinningTrades > 0 {
		m.AverageWin = m.TotalWinAmount / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.TotalLossAmount / float64(m.LosingTrades)
	}
	m.ProfitFactor = profitFactor(m.TotalWinAmount, m.TotalLossAmount)

	factor := annualizationFactor(len(returns), m.StartDate, m.EndDate)
	m.SharpeRatio = calculateSharpeRatio(returns, 0) * factor
	m.SortinoRatio = calculateSortinoRatio(returns, 0) * factor
	return m
}

func profitFactor(wins, losses float64) float64 {
	switch {
	case wins <= 0:
		return 0
	case losses <= 0:
		return ProfitFactorCap
	}
	pf := wins / losses
	if pf > ProfitFactorCap || math.IsInf(pf, 0) || math.IsNaN(pf) {
		return ProfitFactorCap
	}
	return pf
}

// annualizationFactor scales a per-trade ratio by the square root of the
// number of sells per year observed over the trading span. A span shorter
// than a day is not annualized.
func annualizationFactor(n int, start, end time.Time) float64 {
	span := end.Sub(start)
	if n < 2 || span < 24*time.Hour {
		return 1
	}
	years := span.Hours() / 24 / 365.25
	return math.Sqrt(float64(n) / years)
}

// calculateStandardDeviation はリターンの標準偏差を計算します。
func calculateStandardDeviation(returns []float64, mean float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-mean, 2)
	}
	return math.Sqrt(variance / float64(len(returns)))
}

// calculateDownsideDeviation は下方偏差を計算します。
func calculateDownsideDeviation(returns []float64, target float64) float64 {
	downsideVariance := 0.0
	downsideCount := 0
	for _, r := range returns {
		if r < target {
			downsideVariance += math.Pow(r-target, 2)
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return 0.0
	}
	return math.Sqrt(downsideVariance / float64(downsideCount))
}

func mean(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	return sum / float64(len(returns))
}

// calculateSharpeRatio はシャープレシオを計算します。
func calculateSharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	m := mean(returns)
	stdDev := calculateStandardDeviation(returns, m)
	if stdDev == 0 {
		return 0.0
	}
	return (m - riskFreeRate) / stdDev
}

// calculateSortinoRatio はソルティノレシオを計算します。
func calculateSortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	downsideDev := calculateDownsideDeviation(returns, 0) // ターゲットリターンを0と仮定
	if downsideDev == 0 {
		return 0.0
	}
	return (mean(returns) - riskFreeRate) / downsideDev
}
