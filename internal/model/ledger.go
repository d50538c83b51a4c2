package model

import "time"

// LedgerStatus is the outcome recorded for a processed document.
type LedgerStatus string

// Ledger statuses.
const (
	LedgerSuccess LedgerStatus = "success"
	LedgerPartial LedgerStatus = "partial"
	LedgerError   LedgerStatus = "error"
)

// LedgerEntry records one processing attempt of a source document.
type LedgerEntry struct {
	ProcessedAt         time.Time
	FilePath            string
	FileHash            string
	Bank                string
	Status              LedgerStatus
	ErrorDetail         string
	ID                  int64
	FileSize            int64
	StatementsCreated   int
	TransactionsCreated int
	InstallmentsCreated int
	Forced              bool
}
