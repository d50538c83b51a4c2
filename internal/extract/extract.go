// Package extract turns recognized statement documents into canonical
// records through a fixed, ordered registry of bank extractors.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/normalize"
)

// ErrSectionNotFound marks an expected statement section that is missing.
var ErrSectionNotFound = errors.New("expected section not found")

// Extractor pairs a fingerprint check with a parser for one source format.
type Extractor struct {
	Detect func(doc *document.Document) bool
	Parse  func(doc *document.Document) (*Extraction, error)
	Name   string
}

// Extraction is the in-memory result of parsing one document. Issues hold
// section-level failures; whatever could be read is still present.
type Extraction struct {
	Statement    *model.Statement
	Bank         string
	Transactions []*model.Transaction
	Plans        []*model.InstallmentPlan
	Issues       []error
}

func newExtraction(bank, sourceType string) *Extraction {
	return &Extraction{
		Bank:      bank,
		Statement: &model.Statement{Bank: bank, SourceType: sourceType},
	}
}

// AddIssue records a section-level failure.
func (x *Extraction) AddIssue(section string, err error) {
	x.Issues = append(x.Issues, common.NewExtractionError(x.Bank, section, err))
}

// Recovered reports whether anything usable came out of the document.
func (x *Extraction) Recovered() bool {
	return len(x.Transactions) > 0 || len(x.Plans) > 0 || x.Statement.HasValidPeriod()
}

// Status maps the extraction to its ledger outcome.
func (x *Extraction) Status() model.LedgerStatus {
	switch {
	case !x.Recovered():
		return model.LedgerError
	case len(x.Issues) > 0:
		return model.LedgerPartial
	default:
		return model.LedgerSuccess
	}
}

// Err joins the recorded issues, or returns nil when there are none.
func (x *Extraction) Err() error {
	return errors.Join(x.Issues...)
}

// Registry holds extractors in priority order.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry that consults extractors in the given order.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// DefaultRegistry returns the built-in extractors. BBVA has the weakest
// fingerprint and is consulted last.
func DefaultRegistry() *Registry {
	return NewRegistry(
		OFX(),
		HSBC(),
		Banamex(),
		Banorte(),
		Liverpool(),
		BBVA(),
	)
}

// Register appends an extractor with the lowest priority.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Names lists the registered extractors in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name
	}
	return names
}

// Detect returns the first extractor that recognizes doc.
func (r *Registry) Detect(doc *document.Document) (Extractor, bool) {
	for _, e := range r.extractors {
		if e.Detect(doc) {
			return e, true
		}
	}
	return Extractor{}, false
}

// Dispatch selects the extractor for doc and parses it. It returns
// UnrecognizedSourceError when no extractor claims the document and
// ExtractionError when the chosen parser cannot produce a statement.
func (r *Registry) Dispatch(doc *document.Document) (x *Extraction, err error) {
	e, ok := r.Detect(doc)
	if !ok {
		return nil, &common.UnrecognizedSourceError{Path: doc.Path}
	}

	defer func() {
		if p := recover(); p != nil {
			x, err = nil, common.NewExtractionError(e.Name, "", fmt.Errorf("parser panic: %v", p))
		}
	}()

	x, err = e.Parse(doc)
	if err != nil {
		var extractionErr *common.ExtractionError
		if errors.As(err, &extractionErr) {
			return nil, err
		}
		return nil, common.NewExtractionError(e.Name, "", err)
	}
	if x == nil || x.Statement == nil {
		return nil, common.NewExtractionError(e.Name, "", errors.New("parser returned no statement"))
	}

	finalize(x, doc)
	return x, nil
}

type rawSnapshot struct {
	Extractor    string   `json:"extractor"`
	File         string   `json:"file"`
	Issues       []string `json:"issues,omitempty"`
	Transactions int      `json:"transactions"`
	Plans        int      `json:"plans"`
}

// finalize assigns identifiers and fills the fields every extractor leaves
// to the dispatcher.
func finalize(x *Extraction, doc *document.Document) {
	stmt := x.Statement
	if stmt.ID == "" {
		stmt.ID = uuid.NewString()
	}
	if stmt.Bank == "" {
		stmt.Bank = x.Bank
	}
	stmt.SourceFile = doc.Path
	stmt.SourceHash = doc.Hash()

	asOf := stmt.StatementDate
	if asOf == nil {
		asOf = stmt.PeriodEnd
	}

	plans := x.Plans[:0]
	for _, p := range x.Plans {
		if err := p.Validate(); err != nil {
			x.AddIssue("installments", fmt.Errorf("%s: %w", p.Description, err))
			continue
		}
		p.ID = uuid.NewString()
		p.StatementID = stmt.ID
		if p.SourceBank == "" {
			p.SourceBank = x.Bank
		}
		p.RefreshStatus(asOf)
		plans = append(plans, p)
	}
	x.Plans = plans

	for _, t := range x.Transactions {
		t.ID = uuid.NewString()
		t.StatementID = stmt.ID
		if t.Currency == "" {
			t.Currency = model.DefaultCurrency
		}
		if t.NormalizedDescription == "" {
			t.NormalizedDescription = normalize.Description(t.Description)
		}
		if t.Kind == "" {
			t.Kind = normalize.Kind(t.Description)
		}
	}
	linkPlans(x.Transactions, x.Plans)

	snap := rawSnapshot{
		Extractor:    x.Bank,
		File:         doc.Path,
		Transactions: len(x.Transactions),
		Plans:        len(x.Plans),
	}
	for _, issue := range x.Issues {
		snap.Issues = append(snap.Issues, issue.Error())
	}
	if raw, err := json.Marshal(snap); err == nil {
		stmt.RawData = string(raw)
	}
}

// linkPlans points each installment payment at the plan it pays.
func linkPlans(txns []*model.Transaction, plans []*model.InstallmentPlan) {
	if len(plans) == 0 {
		return
	}
	for _, t := range txns {
		if !t.IsInstallmentPayment || t.InstallmentPlanID != "" {
			continue
		}
		if plan := matchPlan(t, plans); plan != nil {
			t.InstallmentPlanID = plan.ID
		}
	}
}

// matchPlan prefers the plan whose merchant key the payment carries and
// falls back to the only plan billing exactly the payment amount. A payment
// that matches several plans equally is left unlinked.
func matchPlan(t *model.Transaction, plans []*model.InstallmentPlan) *model.InstallmentPlan {
	key := normalize.MerchantKey(t.Description)
	amount := t.Amount.Abs()

	var byName, byAmount []*model.InstallmentPlan
	for _, p := range plans {
		planKey := normalize.MerchantKey(p.Description)
		if planKey != "" && (key == planKey || strings.HasPrefix(key, planKey+" ")) {
			byName = append(byName, p)
		}
		if p.MonthlyPayment.IsPositive() && p.MonthlyPayment.Equal(amount) {
			byAmount = append(byAmount, p)
		}
	}

	named := len(byName) > 0
	if len(byName) > 1 {
		var billed []*model.InstallmentPlan
		for _, p := range byName {
			if p.MonthlyPayment.Equal(amount) {
				billed = append(billed, p)
			}
		}
		byName = billed
	}
	switch {
	case len(byName) == 1:
		return byName[0]
	case !named && len(byAmount) == 1:
		return byAmount[0]
	}
	return nil
}
