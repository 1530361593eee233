// Package domain contains the core domain types for the scoring context.
package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// AddressActivity is the observed on-chain activity a score derives from.
type AddressActivity struct {
	Address       string
	TxCount       uint64   // outbound transaction count (nonce)
	BalanceWei    *big.Int // latest balance
	LastSeenBlock uint64   // height of the last live-observed transaction, 0 if never
	CurrentHeight uint64
}

// ScoreComponents breaks a score into its weighted parts.
type ScoreComponents struct {
	Activity decimal.Decimal // 0..450, from transaction count
	Capital  decimal.Decimal // 0..400, from balance tier
	Recency  decimal.Decimal // 0..150, from last observed activity
}

// Grade buckets a score for display.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// CreditScore is a 0..1000 creditworthiness estimate for an address.
type CreditScore struct {
	Address    string          `json:"address"`
	Score      decimal.Decimal `json:"score"`
	Grade      Grade           `json:"grade"`
	Components ScoreComponents `json:"components"`
	ComputedAt time.Time       `json:"computedAt"`
}

var (
	weiPerEth      = decimal.New(1, 18)
	activityWeight = decimal.NewFromInt(45)
	activityCap    = decimal.NewFromInt(450)
	recencyCap     = decimal.NewFromInt(150)
)

// capitalTiers maps minimum whole-ETH balances to capital points, checked
// from the top down.
var capitalTiers = []struct {
	minEth decimal.Decimal
	points decimal.Decimal
}{
	{decimal.NewFromInt(100), decimal.NewFromInt(400)},
	{decimal.NewFromInt(10), decimal.NewFromInt(320)},
	{decimal.NewFromInt(1), decimal.NewFromInt(240)},
	{decimal.NewFromFloat(0.1), decimal.NewFromInt(160)},
	{decimal.NewFromFloat(0.001), decimal.NewFromInt(80)},
}

// ComputeScore derives a deterministic credit score from observed activity.
// The model is a weighted sum: square-root-damped transaction activity,
// tiered capital, and a recency bonus for addresses seen live recently.
func ComputeScore(a AddressActivity) CreditScore {
	activity := decimal.NewFromBigInt(new(big.Int).Sqrt(new(big.Int).SetUint64(a.TxCount)), 0).
		Mul(activityWeight)
	if activity.GreaterThan(activityCap) {
		activity = activityCap
	}

	capital := decimal.Zero
	if a.BalanceWei != nil && a.BalanceWei.Sign() > 0 {
		balanceEth := decimal.NewFromBigInt(a.BalanceWei, 0).Div(weiPerEth)
		for _, tier := range capitalTiers {
			if balanceEth.GreaterThanOrEqual(tier.minEth) {
				capital = tier.points
				break
			}
		}
	}

	recency := decimal.Zero
	if a.LastSeenBlock > 0 && a.CurrentHeight >= a.LastSeenBlock {
		switch blocksAgo := a.CurrentHeight - a.LastSeenBlock; {
		case blocksAgo <= 100:
			recency = recencyCap
		case blocksAgo <= 1000:
			recency = decimal.NewFromInt(100)
		case blocksAgo <= 10000:
			recency = decimal.NewFromInt(50)
		}
	}

	score := activity.Add(capital).Add(recency)

	return CreditScore{
		Address:    a.Address,
		Score:      score,
		Grade:      gradeFor(score),
		Components: ScoreComponents{Activity: activity, Capital: capital, Recency: recency},
		ComputedAt: time.Now().UTC(),
	}
}

func gradeFor(score decimal.Decimal) Grade {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(750)):
		return GradeA
	case score.GreaterThanOrEqual(decimal.NewFromInt(500)):
		return GradeB
	case score.GreaterThanOrEqual(decimal.NewFromInt(250)):
		return GradeC
	default:
		return GradeD
	}
}
