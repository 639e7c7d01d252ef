package services

import (
	"fmt"
	"sync"
	"time"

	"digitlotto/domain/entities"

	"github.com/shopspring/decimal"
)

// pendingPayment accumulates receipts against one invoice
type pendingPayment struct {
	invoiceID     string
	correlationID string
	sender        string
	expected      decimal.Decimal
	accumulated   decimal.Decimal
	amounts       []decimal.Decimal
	txIDs         []string
	confirmed     bool
	registeredAt  time.Time
	deadline      time.Time
}

// MatchOutcome describes what a receipt did to the pending set
type MatchOutcome int

const (
	// MatchUnmatched means no pending invoice claims the receipt
	MatchUnmatched MatchOutcome = iota
	// MatchDuplicate means the transaction was already counted
	MatchDuplicate
	// MatchPartial means the receipt was added but the invoice is not covered yet
	MatchPartial
	// MatchConfirmed means the invoice is now covered; fired once per invoice
	MatchConfirmed
	// MatchSettled means the receipt names an invoice that was already
	// confirmed; nothing is credited
	MatchSettled
)

func (o MatchOutcome) String() string {
	switch o {
	case MatchDuplicate:
		return "duplicate"
	case MatchPartial:
		return "partial"
	case MatchConfirmed:
		return "confirmed"
	case MatchSettled:
		return "settled"
	default:
		return "unmatched"
	}
}

// Match is the result of applying one receipt
type Match struct {
	Outcome      MatchOutcome
	InvoiceID    string
	Confirmation *entities.PaymentConfirmation // set only for MatchConfirmed
}

// PaymentMatcher reconciles incoming receipts with outstanding invoices.
// It is safe for concurrent use.
type PaymentMatcher struct {
	mu            sync.Mutex
	pending       map[string]*pendingPayment // by invoice id
	byCorrelation map[string]string          // correlation id -> invoice id
	settled       map[string]settledRequest  // correlation id of confirmed invoices
	tolerance     decimal.Decimal
	timeout       time.Duration
}

type settledRequest struct {
	invoiceID string
	txIDs     []string
	at        time.Time
}

func (r settledRequest) counted(txID string) bool {
	for _, id := range r.txIDs {
		if id == txID {
			return true
		}
	}
	return false
}

// NewPaymentMatcher creates a matcher confirming receipts within tolerance of
// the expected amount and expiring invoices after timeout
func NewPaymentMatcher(tolerance decimal.Decimal, timeout time.Duration) *PaymentMatcher {
	return &PaymentMatcher{
		pending:       make(map[string]*pendingPayment),
		byCorrelation: make(map[string]string),
		settled:       make(map[string]settledRequest),
		tolerance:     tolerance,
		timeout:       timeout,
	}
}

// Register starts tracking an invoice. registeredAt anchors the expiry window so
// invoices reloaded after a restart keep their original deadline.
func (m *PaymentMatcher) Register(invoiceID, correlationID, sender string, expected decimal.Decimal, registeredAt time.Time) error {
	if !expected.IsPositive() {
		return entities.NewValidationError("expected amount for invoice %s must be positive", invoiceID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pending[invoiceID]; exists {
		return fmt.Errorf("invoice %s is already registered", invoiceID)
	}

	m.pending[invoiceID] = &pendingPayment{
		invoiceID:     invoiceID,
		correlationID: correlationID,
		sender:        sender,
		expected:      expected,
		accumulated:   decimal.Zero,
		registeredAt:  registeredAt,
		deadline:      registeredAt.Add(m.timeout),
	}
	if correlationID != "" {
		m.byCorrelation[correlationID] = invoiceID
	}
	return nil
}

// Receive applies one receipt. The confirmation is returned only on the call
// that covers the invoice; the entry is removed in the same critical section.
func (m *PaymentMatcher) Receive(receipt entities.ValueReceived) (*entities.PaymentConfirmation, MatchOutcome) {
	match := m.Apply(receipt)
	return match.Confirmation, match.Outcome
}

// Apply is Receive reporting which invoice the receipt was credited to
func (m *PaymentMatcher) Apply(receipt entities.ValueReceived) Match {
	m.mu.Lock()
	defer m.mu.Unlock()

	if receipt.CorrelationID != "" {
		if settled, ok := m.settled[receipt.CorrelationID]; ok {
			if settled.counted(receipt.TxID) {
				return Match{Outcome: MatchDuplicate, InvoiceID: settled.invoiceID}
			}
			return Match{Outcome: MatchSettled, InvoiceID: settled.invoiceID}
		}
	}

	entry := m.lookup(receipt)
	if entry == nil {
		return Match{Outcome: MatchUnmatched}
	}
	return m.credit(entry, receipt)
}

// Replay credits a receipt to a known invoice, bypassing correlation and
// sender lookup. Used to rebuild accumulated amounts after a restart.
func (m *PaymentMatcher) Replay(invoiceID string, receipt entities.ValueReceived) Match {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.pending[invoiceID]
	if !ok {
		return Match{Outcome: MatchUnmatched}
	}
	return m.credit(entry, receipt)
}

// AttachCorrelation links a payment request id to an invoice registered before
// the request was sent
func (m *PaymentMatcher) AttachCorrelation(invoiceID, correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if correlationID == "" {
		return entities.NewValidationError("correlation id is required")
	}
	entry, ok := m.pending[invoiceID]
	if !ok {
		// confirmed or expired while the request was in flight
		if settled, done := m.settledInvoice(invoiceID); done {
			m.settled[correlationID] = settled
		}
		return nil
	}
	if entry.correlationID != "" && entry.correlationID != correlationID {
		return fmt.Errorf("invoice %s already has correlation id %s", invoiceID, entry.correlationID)
	}
	entry.correlationID = correlationID
	m.byCorrelation[correlationID] = invoiceID
	return nil
}

func (m *PaymentMatcher) credit(entry *pendingPayment, receipt entities.ValueReceived) Match {
	for _, txID := range entry.txIDs {
		if txID == receipt.TxID {
			return Match{Outcome: MatchDuplicate, InvoiceID: entry.invoiceID}
		}
	}

	entry.accumulated = entry.accumulated.Add(receipt.Amount)
	entry.amounts = append(entry.amounts, receipt.Amount)
	entry.txIDs = append(entry.txIDs, receipt.TxID)

	if entry.confirmed {
		return Match{Outcome: MatchDuplicate, InvoiceID: entry.invoiceID}
	}

	if entry.accumulated.LessThan(entry.expected.Sub(m.tolerance)) {
		return Match{Outcome: MatchPartial, InvoiceID: entry.invoiceID}
	}

	entry.confirmed = true
	m.remove(entry)
	settled := settledRequest{
		invoiceID: entry.invoiceID,
		txIDs:     append([]string(nil), entry.txIDs...),
		at:        entry.registeredAt,
	}
	if entry.correlationID != "" {
		m.settled[entry.correlationID] = settled
	} else {
		m.settled[settledInvoiceKey(entry.invoiceID)] = settled
	}

	sender := entry.sender
	if receipt.Sender != "" {
		sender = receipt.Sender
	}

	return Match{
		Outcome:   MatchConfirmed,
		InvoiceID: entry.invoiceID,
		Confirmation: &entities.PaymentConfirmation{
			InvoiceID:     entry.invoiceID,
			Sender:        sender,
			TotalReceived: entry.accumulated,
			ReceiptCount:  len(entry.amounts),
			Amounts:       append([]decimal.Decimal(nil), entry.amounts...),
			TxIDs:         append([]string(nil), entry.txIDs...),
		},
	}
}

// settledInvoiceKey marks invoices confirmed before a correlation id was attached
func settledInvoiceKey(invoiceID string) string {
	return "invoice:" + invoiceID
}

func (m *PaymentMatcher) settledInvoice(invoiceID string) (settledRequest, bool) {
	settled, ok := m.settled[settledInvoiceKey(invoiceID)]
	return settled, ok
}

// ExpireDue removes invoices whose window has passed and reports them
func (m *PaymentMatcher) ExpireDue(now time.Time) []entities.PaymentExpiry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []entities.PaymentExpiry
	for _, entry := range m.pending {
		if entry.confirmed || now.Before(entry.deadline) {
			continue
		}
		expired = append(expired, entities.PaymentExpiry{
			InvoiceID:   entry.invoiceID,
			Accumulated: entry.accumulated,
		})
		m.remove(entry)
	}

	// confirmed request ids are remembered for two payment windows
	for key, settled := range m.settled {
		if now.Sub(settled.at) > 2*m.timeout {
			delete(m.settled, key)
		}
	}
	return expired
}

// Cancel stops tracking an invoice without reporting it
func (m *PaymentMatcher) Cancel(invoiceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.pending[invoiceID]; ok {
		m.remove(entry)
	}
}

// InvoiceForCorrelation returns the pending invoice registered under a payment request id
func (m *PaymentMatcher) InvoiceForCorrelation(correlationID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	invoiceID, ok := m.byCorrelation[correlationID]
	return invoiceID, ok
}

// PendingCount returns the number of invoices awaiting payment
func (m *PaymentMatcher) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// lookup matches by correlation id first, then by the oldest invoice from the
// same sender. A receipt carrying an unknown correlation id only falls back to
// invoices whose payment request id is not attached yet.
func (m *PaymentMatcher) lookup(receipt entities.ValueReceived) *pendingPayment {
	if receipt.CorrelationID != "" {
		if invoiceID, ok := m.byCorrelation[receipt.CorrelationID]; ok {
			return m.pending[invoiceID]
		}
	}

	if receipt.Sender == "" {
		return nil
	}

	var oldest *pendingPayment
	for _, entry := range m.pending {
		if entry.confirmed || entry.sender != receipt.Sender {
			continue
		}
		if receipt.CorrelationID != "" && entry.correlationID != "" {
			continue
		}
		if oldest == nil || entry.registeredAt.Before(oldest.registeredAt) ||
			(entry.registeredAt.Equal(oldest.registeredAt) && entry.invoiceID < oldest.invoiceID) {
			oldest = entry
		}
	}
	return oldest
}

func (m *PaymentMatcher) remove(entry *pendingPayment) {
	delete(m.pending, entry.invoiceID)
	if entry.correlationID != "" {
		delete(m.byCorrelation, entry.correlationID)
	}
}
