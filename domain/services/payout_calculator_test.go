package services

import (
	"testing"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func paidBet(id int64, items ...entities.BetItem) *entities.Bet {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return &entities.Bet{
		ID:            id,
		Items:         items,
		TotalAmount:   total,
		PaymentStatus: entities.PaymentStatusPaid,
	}
}

func stake(digit int, amount int64) entities.BetItem {
	return entities.BetItem{Digit: digit, Amount: decimal.NewFromInt(amount)}
}

func TestCalculatePayouts(t *testing.T) {
	t.Parallel()

	fee := decimal.NewFromInt(5)

	t.Run("winner takes losing pool net of fee", func(t *testing.T) {
		t.Parallel()

		bets := []*entities.Bet{
			paidBet(1, stake(3, 100)),
			paidBet(2, stake(8, 100)),
		}

		result := CalculatePayouts(3, bets, fee)

		assert.Equal(t, "200", result.TotalPool.String())
		assert.Equal(t, "100", result.LosingPool.String())
		assert.Equal(t, "5", result.HouseFee.String())
		assert.Equal(t, "95", result.WinningPool.String())
		assert.Equal(t, "195", result.Winnings[1].String())
		assert.NotContains(t, result.Winnings, int64(2))
		assert.Equal(t, "195", result.TotalPayout.String())
		assert.True(t, result.Residual.IsZero())
	})

	t.Run("no winners sends whole pool to the house", func(t *testing.T) {
		t.Parallel()

		bets := []*entities.Bet{paidBet(1, stake(4, 60), stake(5, 40))}

		result := CalculatePayouts(0, bets, fee)

		assert.False(t, result.HasWinners())
		assert.Equal(t, "100", result.HouseFee.String())
		assert.True(t, result.TotalPayout.IsZero())
		assert.Empty(t, result.Winnings)
	})

	t.Run("single bettor with no losers gets stake back", func(t *testing.T) {
		t.Parallel()

		result := CalculatePayouts(7, []*entities.Bet{paidBet(1, stake(7, 100))}, fee)

		assert.True(t, result.HouseFee.IsZero())
		assert.Equal(t, "100", result.Winnings[1].String())
		assert.Equal(t, "100", result.TotalPayout.String())
	})

	t.Run("only the stake on the winning digit counts", func(t *testing.T) {
		t.Parallel()

		bets := []*entities.Bet{
			paidBet(1, stake(2, 50), stake(9, 50)),
			paidBet(2, stake(2, 150)),
			paidBet(3, stake(1, 200)),
		}

		result := CalculatePayouts(2, bets, fee)

		// P=450 W=200 L=250 fee=floor(12.5)=12 pool=238
		assert.Equal(t, "12", result.HouseFee.String())
		assert.Equal(t, "238", result.WinningPool.String())
		// 50 + floor(50*238/200)=50+59
		assert.Equal(t, "109", result.Winnings[1].String())
		// 150 + floor(150*238/200)=150+178
		assert.Equal(t, "328", result.Winnings[2].String())
		assert.Equal(t, "437", result.TotalPayout.String())
		assert.Equal(t, "1", result.Residual.String())
	})

	t.Run("unpaid bets are excluded", func(t *testing.T) {
		t.Parallel()

		pending := paidBet(2, stake(6, 1000))
		pending.PaymentStatus = entities.PaymentStatusPending

		result := CalculatePayouts(6, []*entities.Bet{paidBet(1, stake(1, 100)), pending}, fee)

		assert.Equal(t, "100", result.TotalPool.String())
		assert.False(t, result.HasWinners())
		assert.Equal(t, "100", result.HouseFee.String())
	})

	t.Run("house never pays more than it holds", func(t *testing.T) {
		t.Parallel()

		bets := []*entities.Bet{
			paidBet(1, stake(5, 333)),
			paidBet(2, stake(5, 333)),
			paidBet(3, stake(5, 334)),
			paidBet(4, stake(0, 1001)),
		}

		result := CalculatePayouts(5, bets, decimal.NewFromInt(7))

		held := result.WinningPool.Add(result.WinningStake)
		assert.True(t, result.TotalPayout.LessThanOrEqual(held))
		assert.True(t, result.TotalPayout.Add(result.HouseFee).Add(result.Residual).Equal(result.TotalPool))
		for _, payout := range result.Winnings {
			assert.True(t, payout.IsInteger())
		}
	})
}
