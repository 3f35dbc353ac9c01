package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"agrobridge/internal/adapter"
	"agrobridge/pkg/subsystem"
)

// LegacyLedger is the original money tracker: a float balance and a flat
// transaction log.
type LegacyLedger struct {
	mu           sync.Mutex
	Money        float64
	TaxRate      float64
	Transactions []LegacyTransaction
}

// LegacyTransaction is one ledger line in the legacy shape.
type LegacyTransaction struct {
	Amount float64 `json:"amount"`
	Kind   string  `json:"kind"`
	Day    int     `json:"day"`
}

// NewLegacyLedger starts with the legacy default bankroll.
func NewLegacyLedger() *LegacyLedger {
	return &LegacyLedger{Money: 5000, TaxRate: 0.08}
}

// Apply records a transaction and moves the balance.
func (l *LegacyLedger) Apply(amount float64, kind string, day int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Money += amount
	l.Transactions = append(l.Transactions, LegacyTransaction{Amount: amount, Kind: kind, Day: day})
}

// Balance returns the current funds.
func (l *LegacyLedger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Money
}

type ledgerData struct {
	Cash         float64             `json:"cash"`
	Transactions []LegacyTransaction `json:"transactions"`
}

type ledgerConfig struct {
	TaxRate float64 `json:"tax_rate"`
}

func legacyLedgerCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, l *LegacyLedger) (json.RawMessage, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			txs := make([]LegacyTransaction, len(l.Transactions))
			copy(txs, l.Transactions)
			return packLayers(ledgerData{Cash: l.Money, Transactions: txs}, ledgerConfig{TaxRate: l.TaxRate}, nil)
		},
		func(_ context.Context, l *LegacyLedger, state json.RawMessage) error {
			lay, err := unpackLayers(state)
			if err != nil {
				return err
			}
			l.mu.Lock()
			defer l.mu.Unlock()
			if len(lay.Data) > 0 {
				var data ledgerData
				if err := json.Unmarshal(lay.Data, &data); err != nil {
					return fmt.Errorf("decode ledger data: %w", err)
				}
				l.Money = data.Cash
				l.Transactions = data.Transactions
			}
			if len(lay.Config) > 0 {
				var cfg ledgerConfig
				if err := json.Unmarshal(lay.Config, &cfg); err != nil {
					return fmt.Errorf("decode ledger config: %w", err)
				}
				l.TaxRate = cfg.TaxRate
			}
			return nil
		},
	)
}

// EconomyEngine is the phase-2 rewrite: a journal of typed entries with the
// balance derived and cached.
type EconomyEngine struct {
	mu      sync.Mutex
	Cash    float64
	TaxRate float64
	Journal []JournalEntry
}

// JournalEntry is one phase-2 ledger line.
type JournalEntry struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Day      int     `json:"day"`
}

// NewEconomyEngine starts empty; state arrives via migration or restore.
func NewEconomyEngine() *EconomyEngine {
	return &EconomyEngine{TaxRate: 0.08}
}

// Post records a journal entry and moves the balance.
func (e *EconomyEngine) Post(amount float64, category string, day int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Cash += amount
	e.Journal = append(e.Journal, JournalEntry{Amount: amount, Category: category, Day: day})
}

// Balance returns the current funds.
func (e *EconomyEngine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Cash
}

type economyData struct {
	Cash    float64        `json:"cash"`
	Journal []JournalEntry `json:"journal"`
}

func economyEngineCodec() subsystem.Codec {
	return codecFor(
		func(_ context.Context, e *EconomyEngine) (json.RawMessage, error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			entries := make([]JournalEntry, len(e.Journal))
			copy(entries, e.Journal)
			return packLayers(economyData{Cash: e.Cash, Journal: entries}, ledgerConfig{TaxRate: e.TaxRate}, nil)
		},
		func(_ context.Context, e *EconomyEngine, state json.RawMessage) error {
			lay, err := unpackLayers(state)
			if err != nil {
				return err
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			if len(lay.Data) > 0 {
				var data economyData
				if err := json.Unmarshal(lay.Data, &data); err != nil {
					return fmt.Errorf("decode economy data: %w", err)
				}
				e.Cash = data.Cash
				e.Journal = data.Journal
			}
			if len(lay.Config) > 0 {
				var cfg ledgerConfig
				if err := json.Unmarshal(lay.Config, &cfg); err != nil {
					return fmt.Errorf("decode economy config: %w", err)
				}
				e.TaxRate = cfg.TaxRate
			}
			return nil
		},
	)
}

// economyConverter maps cash straight across and re-types ledger lines.
// A capture with no cash field converts to a zero balance, reported as a
// warning rather than an error so operators can decide.
func economyConverter() adapter.Converter {
	return adapter.Converter{
		ToNew: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var raw map[string]json.RawMessage
			if err := json.Unmarshal(l.Data, &raw); err != nil {
				return nil, adapter.Failed("decode ledger data: %v", err)
			}
			var warns []string
			var data ledgerData
			if _, ok := raw["cash"]; !ok {
				warns = append(warns, "cash missing from legacy ledger, defaulted to 0")
			}
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode ledger data: %v", err)
			}
			out := economyData{Cash: data.Cash, Journal: make([]JournalEntry, 0, len(data.Transactions))}
			for _, tx := range data.Transactions {
				out.Journal = append(out.Journal, JournalEntry{Amount: tx.Amount, Category: tx.Kind, Day: tx.Day})
			}
			packed, err := repackData(l, out)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return packed, adapter.Converted(warns...)
		},
		ToLegacy: func(state json.RawMessage) (json.RawMessage, adapter.ConversionResult) {
			l, err := unpackLayers(state)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			var data economyData
			if err := json.Unmarshal(l.Data, &data); err != nil {
				return nil, adapter.Failed("decode economy data: %v", err)
			}
			out := ledgerData{Cash: data.Cash, Transactions: make([]LegacyTransaction, 0, len(data.Journal))}
			for _, entry := range data.Journal {
				out.Transactions = append(out.Transactions, LegacyTransaction{Amount: entry.Amount, Kind: entry.Category, Day: entry.Day})
			}
			packed, err := repackData(l, out)
			if err != nil {
				return nil, adapter.Failed("%v", err)
			}
			return packed, adapter.Converted()
		},
	}
}

// economyDisplay flattens either generation's capture for the farm UI.
func economyDisplay(state json.RawMessage) (map[string]string, error) {
	l, err := unpackLayers(state)
	if err != nil {
		return nil, err
	}
	var data struct {
		Cash float64 `json:"cash"`
	}
	if err := json.Unmarshal(l.Data, &data); err != nil {
		return nil, fmt.Errorf("decode economy data: %w", err)
	}
	return map[string]string{"cash": fmt.Sprintf("%.2f", data.Cash)}, nil
}
