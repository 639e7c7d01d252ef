package services

import (
	"slices"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
)

// DefaultSplitSearchDepth bounds the exact-subset search
const DefaultSplitSearchDepth = 5

// SplitPlanner chooses which tokens pay an exact amount
type SplitPlanner struct {
	maxDepth int
}

// NewSplitPlanner creates a planner that searches exact subsets of up to maxDepth tokens
func NewSplitPlanner(maxDepth int) *SplitPlanner {
	if maxDepth <= 0 {
		maxDepth = DefaultSplitSearchDepth
	}
	return &SplitPlanner{maxDepth: maxDepth}
}

// Plan returns the tokens that deliver exactly target, or nil when the
// inventory holds less than target. Tokens with a non-positive amount are ignored.
func (p *SplitPlanner) Plan(target decimal.Decimal, tokens []*entities.Token) *entities.SplitPlan {
	if !target.IsPositive() {
		return nil
	}

	sorted := make([]*entities.Token, 0, len(tokens))
	total := decimal.Zero
	for _, token := range tokens {
		if token == nil || !token.Amount.IsPositive() {
			continue
		}
		sorted = append(sorted, token)
		total = total.Add(token.Amount)
	}
	if total.LessThan(target) {
		return nil
	}

	slices.SortStableFunc(sorted, func(a, b *entities.Token) int {
		return a.Amount.Cmp(b.Amount)
	})

	for _, token := range sorted {
		if token.Amount.Equal(target) {
			return &entities.SplitPlan{Direct: []*entities.Token{token}}
		}
	}

	if subset := p.findExactSubset(sorted, target); subset != nil {
		return &entities.SplitPlan{Direct: subset}
	}

	return greedyPlan(sorted, target)
}

// findExactSubset enumerates combinations of size 2..maxDepth in lexicographic
// order over the ascending list and returns the first that sums to target.
func (p *SplitPlanner) findExactSubset(sorted []*entities.Token, target decimal.Decimal) []*entities.Token {
	n := len(sorted)

	for size := 2; size <= p.maxDepth && size <= n; size++ {
		idx := make([]int, size)
		for i := range idx {
			idx[i] = i
		}

		// The first combination is the smallest sum of this size.
		if sumAt(sorted, idx).GreaterThan(target) {
			return nil
		}

		for {
			sum := sumAt(sorted, idx)
			if sum.Equal(target) {
				subset := make([]*entities.Token, size)
				for i, j := range idx {
					subset[i] = sorted[j]
				}
				return subset
			}

			// Raising the last index only grows an oversized sum, so advance the one before it.
			pos := size - 1
			if sum.GreaterThan(target) {
				pos = size - 2
			}
			for pos >= 0 && idx[pos] == n-size+pos {
				pos--
			}
			if pos < 0 {
				break
			}

			idx[pos]++
			for j := pos + 1; j < size; j++ {
				idx[j] = idx[j-1] + 1
			}
		}
	}

	return nil
}

// greedyPlan consumes ascending tokens until the next one reaches target,
// splitting it when it overshoots. Callers guarantee the total covers target.
func greedyPlan(sorted []*entities.Token, target decimal.Decimal) *entities.SplitPlan {
	plan := &entities.SplitPlan{}
	running := decimal.Zero

	for _, token := range sorted {
		next := running.Add(token.Amount)
		switch next.Cmp(target) {
		case -1:
			plan.Direct = append(plan.Direct, token)
			running = next
		case 0:
			plan.Direct = append(plan.Direct, token)
			return plan
		default:
			splitAmount := target.Sub(running)
			plan.Split = &entities.TokenSplit{
				Token:       token,
				SplitAmount: splitAmount,
				Remainder:   token.Amount.Sub(splitAmount),
			}
			return plan
		}
	}

	return nil
}

func sumAt(tokens []*entities.Token, idx []int) decimal.Decimal {
	sum := decimal.Zero
	for _, i := range idx {
		sum = sum.Add(tokens[i].Amount)
	}
	return sum
}
