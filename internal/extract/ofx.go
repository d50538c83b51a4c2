package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/normalize"
	"github.com/shopspring/decimal"
)

var (
	ofxSeverity = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML exports sometimes drop the closing bracket of a bare tag line.
	ofxOpenTag = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)

	ofxPrefixes = []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"COMPRA TARJETA ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
	}
	ofxGeneric = map[string]bool{
		"DEBIT":           true,
		"CREDIT":          true,
		"PURCHASE":        true,
		"PAYMENT":         true,
		"POS TRANSACTION": true,
		"CARD PURCHASE":   true,
		"COMPRA":          true,
		"CARGO":           true,
	}
)

// OFX extracts OFX and QFX exports. OFX reports debits as negative amounts,
// so signs are inverted into the charge-positive convention.
func OFX() Extractor {
	return Extractor{
		Name: "ofx",
		Detect: func(doc *document.Document) bool {
			head := doc.Content
			if len(head) > 4096 {
				head = head[:4096]
			}
			upper := strings.ToUpper(string(head))
			return strings.Contains(upper, "OFXHEADER") || strings.Contains(upper, "<OFX>")
		},
		Parse: parseOFX,
	}
}

func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = ofxSeverity.ReplaceAllStringFunc(content, strings.ToUpper)
	return ofxOpenTag.ReplaceAllString(content, "$1>")
}

func parseOFX(doc *document.Document) (*Extraction, error) {
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(doc.Content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	x := newExtraction("ofx", model.SourceTypeChecking)
	found := false

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		if !found {
			x.Statement.SourceType = ofxAccountType(stmt.BankAcctFrom.AcctType.String())
			x.Statement.AccountSuffix = lastFour(string(stmt.BankAcctFrom.AcctID))
			x.Statement.CurrentBalance = decimal.NewNullDecimal(ofxAmount(&stmt.BalAmt))
			found = true
		}
		x.ofxTransactions(stmt.BankTranList, stmt.CurDef.String(), false)
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		if !found {
			x.Statement.SourceType = model.SourceTypeCreditCard
			x.Statement.AccountSuffix = lastFour(string(stmt.CCAcctFrom.AcctID))
			// Credit card balances are negative when money is owed.
			x.Statement.CurrentBalance = decimal.NewNullDecimal(ofxAmount(&stmt.BalAmt).Neg())
			if stmt.AvailBalAmt != nil {
				x.Statement.AvailableCredit = decimal.NewNullDecimal(ofxAmount(stmt.AvailBalAmt))
			}
			found = true
		}
		x.ofxTransactions(stmt.BankTranList, stmt.CurDef.String(), true)
	}

	if !found {
		return nil, errors.New("no bank or credit card statement in OFX response")
	}
	return x, nil
}

func (x *Extraction) ofxTransactions(list *ofxgo.TransactionList, currency string, creditCard bool) {
	if list == nil {
		x.AddIssue("transactions", fmt.Errorf("%w: BANKTRANLIST", ErrSectionNotFound))
		return
	}

	start, end := day(list.DtStart.Time), day(list.DtEnd.Time)
	if !start.IsZero() && (x.Statement.PeriodStart == nil || start.Before(*x.Statement.PeriodStart)) {
		x.Statement.PeriodStart = &start
	}
	if !end.IsZero() && (x.Statement.PeriodEnd == nil || end.After(*x.Statement.PeriodEnd)) {
		x.Statement.PeriodEnd = &end
	}

	for i := range list.Transactions {
		x.Transactions = append(x.Transactions, convertOFX(&list.Transactions[i], currency, creditCard))
	}
}

func convertOFX(tx *ofxgo.Transaction, currency string, creditCard bool) *model.Transaction {
	desc := ofxDescription(tx)
	amount := ofxAmount(&tx.TrnAmt).Neg()

	posted := day(tx.DtPosted.Time)
	date, post := posted, (*time.Time)(nil)
	if tx.DtUser != nil && !tx.DtUser.Time.IsZero() {
		date, post = day(tx.DtUser.Time), &posted
	}

	t := &model.Transaction{
		Date:                  date,
		PostDate:              post,
		Description:           desc,
		NormalizedDescription: normalize.Description(desc),
		Amount:                amount,
		Currency:              currency,
		Kind:                  ofxKind(tx.TrnType.String(), desc, amount, creditCard),
	}
	t.HasInterest = t.Kind == model.KindInterest
	if t.Currency == "" {
		t.Currency = model.DefaultCurrency
	}
	return t
}

func ofxKind(trnType, desc string, amount decimal.Decimal, creditCard bool) model.TransactionKind {
	switch trnType {
	case "INT", "DIV":
		if amount.IsNegative() {
			return model.KindIncome
		}
		return model.KindInterest
	case "FEE", "SRVCHG":
		return model.KindFee
	}

	kind := normalize.Kind(desc)
	if !amount.IsNegative() {
		if kind == model.KindPayment {
			return model.KindExpense
		}
		return kind
	}
	if creditCard || kind == model.KindPayment {
		return model.KindPayment
	}
	return model.KindIncome
}

// ofxDescription prefers the payee, falls back to NAME and uses MEMO when
// NAME is a bare transaction type.
func ofxDescription(tx *ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && (name == "" || ofxGeneric[strings.ToUpper(name)]) {
		name = strings.TrimSpace(string(tx.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range ofxPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " posting stamps.
	if len(name) > 6 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func ofxAmount(a *ofxgo.Amount) decimal.Decimal {
	d, err := decimal.NewFromString(a.FloatString(2))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func ofxAccountType(acctType string) string {
	switch acctType {
	case "CREDITLINE":
		return model.SourceTypeCreditCard
	case "CHECKING", "SAVINGS", "MONEYMRKT":
		return model.SourceTypeChecking
	default:
		return model.SourceTypeDebit
	}
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func lastFour(account string) string {
	account = strings.TrimSpace(account)
	if len(account) > 4 {
		return account[len(account)-4:]
	}
	return account
}
