// Package ofx reads OFX/QFX bank and credit card statements into ledger
// transactions.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// Statement holds the transactions of one account in a statement file.
// Transactions carry no ledger account ID; the importer assigns it.
type Statement struct {
	AccountNumber string
	Currency      string
	Transactions  []model.Transaction
}

// Parser reads OFX/QFX files.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagPattern  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// normalize repairs formatting quirks some banks emit: leading blank lines,
// mixed-case severities, and SGML tags missing their closing bracket.
func normalize(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagPattern.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(normalize(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile returns one statement per bank or credit card account in the
// file. Debits become expenses and credits income; zero-amount entries are
// dropped.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]Statement, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var statements []Statement
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		statements = append(statements, p.statement(ctx,
			string(stmt.BankAcctFrom.AcctID), currencyCode(stmt.CurDef), stmt.BankTranList))
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		statements = append(statements, p.statement(ctx,
			string(stmt.CCAcctFrom.AcctID), currencyCode(stmt.CurDef), stmt.BankTranList))
	}

	total := 0
	for _, s := range statements {
		total += len(s.Transactions)
	}
	slog.InfoContext(ctx, "parsed OFX file",
		"statements", len(statements),
		"transactions", total)
	return statements, nil
}

// currencyCode maps an unset CURDEF (the ISO 4217 "XXX" placeholder) to "".
func currencyCode(symbol ofxgo.CurrSymbol) string {
	code := strings.ToUpper(strings.TrimSpace(symbol.String()))
	if code == "XXX" {
		return ""
	}
	return code
}

func (p *Parser) statement(ctx context.Context, accountNumber, currency string, list *ofxgo.TransactionList) Statement {
	stmt := Statement{AccountNumber: accountNumber, Currency: currency}
	if list == nil {
		return stmt
	}

	for _, entry := range list.Transactions {
		txn, ok := p.convert(entry, currency)
		if !ok {
			slog.DebugContext(ctx, "skipping zero-amount OFX entry", "fitid", entry.FiTID)
			continue
		}
		stmt.Transactions = append(stmt.Transactions, txn)
	}
	return stmt
}

func (p *Parser) convert(entry ofxgo.Transaction, currency string) (model.Transaction, bool) {
	amount, err := decimal.NewFromString(entry.TrnAmt.FloatString(2))
	if err != nil || amount.IsZero() {
		return model.Transaction{}, false
	}

	mode := model.ModeIncome
	if amount.IsNegative() {
		mode = model.ModeExpense
	}

	return model.Transaction{
		Title:                p.extractMerchantName(entry),
		Amount:               amount.Abs(),
		Date:                 model.DateOf(entry.DtPosted.Time),
		Mode:                 mode,
		Kind:                 model.KindDefault,
		Status:               model.StatusNone,
		ExternalID:           string(entry.FiTID),
		OriginalCurrencyCode: currency,
	}, true
}

var cardPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// extractMerchantName prefers PAYEE, then NAME, falling back to MEMO when
// NAME is a generic label, and strips card-network prefixes.
func (p *Parser) extractMerchantName(entry ofxgo.Transaction) string {
	if entry.Payee != nil && entry.Payee.Name != "" {
		return string(entry.Payee.Name)
	}

	name := string(entry.Name)
	if entry.Memo != "" && isGenericDescription(name) {
		name = string(entry.Memo)
	}
	name = strings.TrimSpace(name)

	for _, prefix := range cardPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// "MM/DD " date stamps
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	if name == "" {
		name = entry.TrnType.String()
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
