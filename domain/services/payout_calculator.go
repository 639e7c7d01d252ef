package services

import (
	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PayoutResult is the pari-mutuel settlement of a drawn round
type PayoutResult struct {
	WinningDigit int
	TotalPool    decimal.Decimal
	WinningStake decimal.Decimal // stakes placed on the winning digit
	LosingPool   decimal.Decimal
	HouseFee     decimal.Decimal
	WinningPool  decimal.Decimal // losing pool net of fee
	TotalPayout  decimal.Decimal
	Residual     decimal.Decimal // left over by flooring, retained by the house
	Winnings     map[int64]decimal.Decimal
}

// HasWinners returns true if at least one bet staked on the winning digit
func (r *PayoutResult) HasWinners() bool {
	return r.WinningStake.IsPositive()
}

// CalculatePayouts splits the losing stakes among the winning bets in proportion
// to their stake on the digit. All arithmetic is integral with floor division, so
// the total paid never exceeds what the pool holds. Only paid bets take part.
func CalculatePayouts(digit int, bets []*entities.Bet, feePercent decimal.Decimal) *PayoutResult {
	result := &PayoutResult{
		WinningDigit: digit,
		TotalPool:    decimal.Zero,
		WinningStake: decimal.Zero,
		TotalPayout:  decimal.Zero,
		Residual:     decimal.Zero,
		Winnings:     make(map[int64]decimal.Decimal),
	}

	stakes := make(map[int64]decimal.Decimal)
	for _, bet := range bets {
		if !bet.IsPaid() {
			continue
		}
		result.TotalPool = result.TotalPool.Add(bet.TotalAmount)
		if stake := bet.StakeOn(digit); stake.IsPositive() {
			stakes[bet.ID] = stakes[bet.ID].Add(stake)
			result.WinningStake = result.WinningStake.Add(stake)
		}
	}

	result.LosingPool = result.TotalPool.Sub(result.WinningStake)

	if !result.HasWinners() {
		result.HouseFee = result.TotalPool
		result.WinningPool = decimal.Zero
		return result
	}

	result.HouseFee = floorDiv(result.LosingPool.Mul(feePercent), hundred)
	result.WinningPool = result.LosingPool.Sub(result.HouseFee)

	for betID, stake := range stakes {
		share := floorDiv(stake.Mul(result.WinningPool), result.WinningStake)
		payout := stake.Add(share)
		result.Winnings[betID] = payout
		result.TotalPayout = result.TotalPayout.Add(payout)
	}

	result.Residual = result.WinningPool.Add(result.WinningStake).Sub(result.TotalPayout)
	return result
}

// floorDiv divides non-negative integral amounts rounding down
func floorDiv(numerator, denominator decimal.Decimal) decimal.Decimal {
	quotient, _ := numerator.QuoRem(denominator, 0)
	return quotient
}
