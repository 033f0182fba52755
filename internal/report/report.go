// Package report summarizes the performance of closed positions recorded in
// the pnl_reports journal table.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrNoTrades is returned when there is nothing to analyze.
var ErrNoTrades = errors.New("no closed positions to analyze")

// Trade is one closed position.
type Trade struct {
	Time      time.Time `json:"time"`
	TenantID  string    `json:"tenant_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	PnLUSDT   float64   `json:"pnl_usdt"`
	PnLPct    float64   `json:"pnl_pct"`
	HoldingMs int64     `json:"holding_ms"`
	Source    string    `json:"source"`
}

// Report holds the result of a performance analysis.
type Report struct {
	StartDate                          time.Time       `json:"start_date"`
	EndDate                            time.Time       `json:"end_date"`
	TotalTrades                        int             `json:"total_trades"`
	WinningTrades                      int             `json:"winning_trades"`
	LosingTrades                       int             `json:"losing_trades"`
	WinRate                            float64         `json:"win_rate"`
	LongWinningTrades                  int             `json:"long_winning_trades"`
	LongLosingTrades                   int             `json:"long_losing_trades"`
	LongWinRate                        float64         `json:"long_win_rate"`
	ShortWinningTrades                 int             `json:"short_winning_trades"`
	ShortLosingTrades                  int             `json:"short_losing_trades"`
	ShortWinRate                       float64         `json:"short_win_rate"`
	TotalPnL                           decimal.Decimal `json:"total_pnl"`
	AverageProfit                      decimal.Decimal `json:"average_profit"`
	AverageLoss                        decimal.Decimal `json:"average_loss"`
	RiskRewardRatio                    float64         `json:"risk_reward_ratio"`
	ProfitFactor                       float64         `json:"profit_factor"`
	MaxDrawdown                        decimal.Decimal `json:"max_drawdown"`
	RecoveryFactor                     float64         `json:"recovery_factor"`
	SharpeRatio                        float64         `json:"sharpe_ratio"`
	SortinoRatio                       float64         `json:"sortino_ratio"`
	MaxConsecutiveWins                 int             `json:"max_consecutive_wins"`
	MaxConsecutiveLosses               int             `json:"max_consecutive_losses"`
	AverageHoldingPeriodSeconds        float64         `json:"average_holding_period_seconds"`
	AverageWinningHoldingPeriodSeconds float64         `json:"average_winning_holding_period_seconds"`
	AverageLosingHoldingPeriodSeconds  float64         `json:"average_losing_holding_period_seconds"`

	BySymbol map[string]decimal.Decimal `json:"pnl_by_symbol"`
}

// Querier is the subset of pgxpool.Pool used by Service.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service loads closed positions and analyzes them.
type Service struct {
	db Querier
}

// NewService creates a new report service.
func NewService(db Querier) *Service {
	return &Service{db: db}
}

const tradesQuery = `
        SELECT time, tenant_id, symbol, side, pnl_usdt, pnl_pct, holding_ms, source
        FROM pnl_reports
        WHERE tenant_id = $1 AND time >= $2
        ORDER BY time ASC;
    `

// FetchTrades returns the closed positions of tenantID since the given time, oldest first.
func (s *Service) FetchTrades(ctx context.Context, tenantID string, since time.Time) ([]Trade, error) {
	rows, err := s.db.Query(ctx, tradesQuery, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query pnl reports: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.Time, &t.TenantID, &t.Symbol, &t.Side, &t.PnLUSDT, &t.PnLPct, &t.HoldingMs, &t.Source); err != nil {
			return nil, fmt.Errorf("failed to scan pnl report: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pnl reports: %w", err)
	}
	return trades, nil
}

// Generate fetches and analyzes the closed positions of a tenant.
func (s *Service) Generate(ctx context.Context, tenantID string, since time.Time) (Report, error) {
	trades, err := s.FetchTrades(ctx, tenantID, since)
	if err != nil {
		return Report{}, err
	}
	return AnalyzeTrades(trades)
}

// AnalyzeTrades builds a Report from trades ordered by close time.
// Break-even trades count towards the total but neither wins nor losses.
func AnalyzeTrades(trades []Trade) (Report, error) {
	if len(trades) == 0 {
		return Report{}, ErrNoTrades
	}

	var (
		totalPnL, totalProfit, totalLoss             decimal.Decimal
		longWins, longLosses, shortWins, shortLosses int
		consecutiveWins, consecutiveLosses           int
		maxConsecutiveWins, maxConsecutiveLosses     int
		holding, winningHolding, losingHolding       []float64
		pnlFloats                                    []float64
	)
	bySymbol := make(map[string]decimal.Decimal)
	equity, peak, maxDrawdown := decimal.Zero, decimal.Zero, decimal.Zero

	for _, t := range trades {
		pnl := decimal.NewFromFloat(t.PnLUSDT)
		totalPnL = totalPnL.Add(pnl)
		bySymbol[t.Symbol] = bySymbol[t.Symbol].Add(pnl)
		pnlFloats = append(pnlFloats, t.PnLUSDT)
		held := float64(t.HoldingMs) / 1000
		holding = append(holding, held)
		short := t.Side == "SHORT"

		switch {
		case pnl.IsPositive():
			if short {
				shortWins++
			} else {
				longWins++
			}
			totalProfit = totalProfit.Add(pnl)
			winningHolding = append(winningHolding, held)
			consecutiveWins++
			consecutiveLosses = 0
			maxConsecutiveWins = max(maxConsecutiveWins, consecutiveWins)
		case pnl.IsNegative():
			if short {
				shortLosses++
			} else {
				longLosses++
			}
			totalLoss = totalLoss.Add(pnl)
			losingHolding = append(losingHolding, held)
			consecutiveLosses++
			consecutiveWins = 0
			maxConsecutiveLosses = max(maxConsecutiveLosses, consecutiveLosses)
		}

		equity = equity.Add(pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(maxDrawdown) {
			maxDrawdown = dd
		}
	}

	wins := longWins + shortWins
	losses := longLosses + shortLosses

	r := Report{
		StartDate:            trades[0].Time,
		EndDate:              trades[len(trades)-1].Time,
		TotalTrades:          len(trades),
		WinningTrades:        wins,
		LosingTrades:         losses,
		WinRate:              percent(wins, wins+losses),
		LongWinningTrades:    longWins,
		LongLosingTrades:     longLosses,
		LongWinRate:          percent(longWins, longWins+longLosses),
		ShortWinningTrades:   shortWins,
		ShortLosingTrades:    shortLosses,
		ShortWinRate:         percent(shortWins, shortWins+shortLosses),
		TotalPnL:             totalPnL,
		AverageProfit:        decimal.Zero,
		AverageLoss:          decimal.Zero,
		MaxDrawdown:          maxDrawdown,
		SharpeRatio:          calculateSharpeRatio(pnlFloats, 0.0),
		SortinoRatio:         calculateSortinoRatio(pnlFloats, 0.0),
		MaxConsecutiveWins:   maxConsecutiveWins,
		MaxConsecutiveLosses: maxConsecutiveLosses,

		AverageHoldingPeriodSeconds:        mean(holding),
		AverageWinningHoldingPeriodSeconds: mean(winningHolding),
		AverageLosingHoldingPeriodSeconds:  mean(losingHolding),
		BySymbol:                           bySymbol,
	}
	if wins > 0 {
		r.AverageProfit = totalProfit.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		r.AverageLoss = totalLoss.Div(decimal.NewFromInt(int64(losses)))
	}
	if !r.AverageLoss.IsZero() {
		r.RiskRewardRatio = r.AverageProfit.Div(r.AverageLoss.Abs()).InexactFloat64()
	}
	if totalLoss.IsNegative() {
		r.ProfitFactor = totalProfit.Div(totalLoss.Abs()).InexactFloat64()
	}
	if maxDrawdown.IsPositive() {
		r.RecoveryFactor = totalPnL.Div(maxDrawdown).InexactFloat64()
	}
	return r, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

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

func calculateSortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	downsideDev := calculateDownsideDeviation(returns, 0)
	if downsideDev == 0 {
		return 0.0
	}
	return (mean(returns) - riskFreeRate) / downsideDev
}
