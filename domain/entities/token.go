package entities

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Token is one indivisible balance held in the house inventory.
// A token is spent whole or replaced by two freshly minted tokens.
type Token struct {
	ID        string          `json:"id"`
	CoinID    string          `json:"coin_id"`
	Amount    decimal.Decimal `json:"amount"`   // smallest units
	Location  string          `json:"location"` // storage path, set by the inventory store
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TokenSplit describes one token to retire and the two amounts to mint from it
type TokenSplit struct {
	Token       *Token
	SplitAmount decimal.Decimal // sent to the recipient
	Remainder   decimal.Decimal // kept as change
}

// SplitPlan selects the tokens that together deliver an exact amount
type SplitPlan struct {
	Direct []*Token     // transferred whole
	Split  *TokenSplit // nil when an exact subset was found
}

// RequiresSplit returns true if one token must be split
func (p *SplitPlan) RequiresSplit() bool {
	return p.Split != nil
}

// DirectTotal sums the tokens transferred whole
func (p *SplitPlan) DirectTotal() decimal.Decimal {
	total := decimal.Zero
	for _, token := range p.Direct {
		total = total.Add(token.Amount)
	}
	return total
}

// DeliveredAmount is what the recipient receives if the plan executes
func (p *SplitPlan) DeliveredAmount() decimal.Decimal {
	total := p.DirectTotal()
	if p.Split != nil {
		total = total.Add(p.Split.SplitAmount)
	}
	return total
}

// MintedPair is the result of minting a split on the ledger
type MintedPair struct {
	Outgoing *Token
	Change   *Token
}
