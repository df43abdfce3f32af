// Package ofx decodes OFX/QFX investment statements into tabular trade rows.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
)

// Columns emitted for every investment transaction, in order.
var Columns = []string{
	"Date",
	"Account",
	"Action",
	"Symbol",
	"Quantity",
	"Price",
	"Commission",
	"Fees",
	"Total",
	"Currency",
	"FITID",
	"Security Type",
	"Option Type",
	"Strike",
	"Expiry",
	"Underlying",
	"Multiplier",
	"Memo",
}

// Statement is the tabular form of every investment transaction in a file.
type Statement struct {
	Rows     [][]string
	Accounts []string
}

// Parser implements OFX/QFX investment statement parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, "\ufeff \t\r\n")

	// SEVERITY must be INFO, WARN or ERROR
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML files from some brokers drop the closing bracket of bare tags
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// security is what the SECLIST says about a SECID.
type security struct {
	strike     string
	ticker     string
	kind       string
	optionType string
	expiry     string
	underlying string
	multiplier string
}

// Parse reads an OFX/QFX file and flattens its buy and sell transactions.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (*Statement, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	securities := collectSecurities(resp.SecList)

	stmt := &Statement{}
	seen := make(map[string]bool)
	var invStmts, skipped int

	for _, msg := range resp.InvStmt {
		inv, ok := msg.(*ofxgo.InvStatementResponse)
		if !ok {
			continue
		}
		invStmts++

		account := string(inv.InvAcctFrom.AcctID)
		if account != "" && !seen[account] {
			seen[account] = true
			stmt.Accounts = append(stmt.Accounts, account)
		}
		if inv.InvTranList == nil {
			continue
		}

		currency := fmt.Sprint(inv.CurDef)
		for _, tran := range inv.InvTranList.InvTransactions {
			row, ok := convertTransaction(tran, account, currency, securities)
			if !ok {
				skipped++
				continue
			}
			stmt.Rows = append(stmt.Rows, row)
		}
	}

	slog.Info("Parsed OFX file",
		"trades", len(stmt.Rows),
		"investment_statements", invStmts,
		"skipped", skipped)

	return stmt, nil
}

func collectSecurities(msgs []ofxgo.Message) map[string]security {
	out := make(map[string]security)
	for _, msg := range msgs {
		list, ok := msg.(*ofxgo.SecurityList)
		if !ok {
			continue
		}
		for _, sec := range list.Securities {
			switch s := sec.(type) {
			case ofxgo.StockInfo:
				addSecInfo(out, s.SecInfo, "STOCK")
			case *ofxgo.StockInfo:
				addSecInfo(out, s.SecInfo, "STOCK")
			case ofxgo.MFInfo:
				addSecInfo(out, s.SecInfo, "FUND")
			case *ofxgo.MFInfo:
				addSecInfo(out, s.SecInfo, "FUND")
			case ofxgo.OptInfo:
				addOptInfo(out, s)
			case *ofxgo.OptInfo:
				addOptInfo(out, *s)
			}
		}
	}

	// Resolve option underlyings now that every security is known.
	for id, sec := range out {
		if sec.kind == "OPTION" && sec.underlying != "" {
			if under, ok := out[sec.underlying]; ok && under.ticker != "" {
				sec.underlying = under.ticker
				out[id] = sec
			}
		}
	}
	return out
}

func addSecInfo(out map[string]security, info ofxgo.SecInfo, kind string) {
	out[string(info.SecID.UniqueID)] = security{
		ticker: string(info.Ticker),
		kind:   kind,
	}
}

func addOptInfo(out map[string]security, info ofxgo.OptInfo) {
	sec := security{
		ticker:     string(info.SecInfo.Ticker),
		kind:       "OPTION",
		optionType: fmt.Sprint(info.OptType),
		strike:     ratString(&info.StrikePrice.Rat),
		multiplier: fmt.Sprint(int64(info.ShPerCtrct)),
	}
	if !info.DtExpire.IsZero() {
		sec.expiry = info.DtExpire.Format("2006-01-02")
	}
	if info.SecID != nil {
		sec.underlying = string(info.SecID.UniqueID)
	}
	out[string(info.SecInfo.SecID.UniqueID)] = sec
}

var actionNames = map[string]string{
	"BUY":         "BUY",
	"BUYTOCOVER":  "BUY TO COVER",
	"SELL":        "SELL",
	"SELLSHORT":   "SELL SHORT",
	"BUYTOOPEN":   "BUY TO OPEN",
	"BUYTOCLOSE":  "BUY TO CLOSE",
	"SELLTOOPEN":  "SELL TO OPEN",
	"SELLTOCLOSE": "SELL TO CLOSE",
}

func action(kind fmt.Stringer, fallback string) string {
	if name, ok := actionNames[kind.String()]; ok {
		return name
	}
	return fallback
}

// convertTransaction flattens one buy or sell. Income, transfers and other
// non-trade transactions report false.
func convertTransaction(tran ofxgo.InvTransaction, account, currency string, securities map[string]security) ([]string, bool) {
	switch t := tran.(type) {
	case ofxgo.BuyStock:
		return buyRow(t.InvBuy, action(t.BuyType, "BUY"), "", account, currency, securities), true
	case *ofxgo.BuyStock:
		return buyRow(t.InvBuy, action(t.BuyType, "BUY"), "", account, currency, securities), true
	case ofxgo.BuyMF:
		return buyRow(t.InvBuy, action(t.BuyType, "BUY"), "", account, currency, securities), true
	case *ofxgo.BuyMF:
		return buyRow(t.InvBuy, action(t.BuyType, "BUY"), "", account, currency, securities), true
	case ofxgo.BuyOpt:
		return buyRow(t.InvBuy, action(t.OptBuyType, "BUY"), shares(t.ShPerCtrct), account, currency, securities), true
	case *ofxgo.BuyOpt:
		return buyRow(t.InvBuy, action(t.OptBuyType, "BUY"), shares(t.ShPerCtrct), account, currency, securities), true
	case ofxgo.SellStock:
		return sellRow(t.InvSell, action(t.SellType, "SELL"), "", account, currency, securities), true
	case *ofxgo.SellStock:
		return sellRow(t.InvSell, action(t.SellType, "SELL"), "", account, currency, securities), true
	case ofxgo.SellMF:
		return sellRow(t.InvSell, action(t.SellType, "SELL"), "", account, currency, securities), true
	case *ofxgo.SellMF:
		return sellRow(t.InvSell, action(t.SellType, "SELL"), "", account, currency, securities), true
	case ofxgo.SellOpt:
		return sellRow(t.InvSell, action(t.OptSellType, "SELL"), shares(t.ShPerCtrct), account, currency, securities), true
	case *ofxgo.SellOpt:
		return sellRow(t.InvSell, action(t.OptSellType, "SELL"), shares(t.ShPerCtrct), account, currency, securities), true
	default:
		return nil, false
	}
}

func shares(n ofxgo.Int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprint(int64(n))
}

type trade struct {
	commission *big.Rat
	fees       *big.Rat
	units      *big.Rat
	price      *big.Rat
	total      *big.Rat
	tran       ofxgo.InvTran
	secID      string
}

func buyRow(b ofxgo.InvBuy, act, mult, account, currency string, securities map[string]security) []string {
	return buildRow(trade{
		tran:       b.InvTran,
		secID:      string(b.SecID.UniqueID),
		units:      &b.Units.Rat,
		price:      &b.UnitPrice.Rat,
		commission: &b.Commission.Rat,
		fees:       &b.Fees.Rat,
		total:      &b.Total.Rat,
	}, act, mult, account, currency, securities)
}

func sellRow(s ofxgo.InvSell, act, mult, account, currency string, securities map[string]security) []string {
	return buildRow(trade{
		tran:       s.InvTran,
		secID:      string(s.SecID.UniqueID),
		units:      &s.Units.Rat,
		price:      &s.UnitPrice.Rat,
		commission: &s.Commission.Rat,
		fees:       &s.Fees.Rat,
		total:      &s.Total.Rat,
	}, act, mult, account, currency, securities)
}

func buildRow(t trade, act, mult, account, currency string, securities map[string]security) []string {
	sec := securities[t.secID]
	symbol := sec.ticker
	if symbol == "" {
		symbol = t.secID
	}
	if mult == "" {
		mult = sec.multiplier
	}
	secType := sec.kind
	if secType == "" {
		secType = "STOCK"
	}

	return []string{
		t.tran.DtTrade.UTC().Format("2006-01-02T15:04:05Z"),
		account,
		act,
		symbol,
		ratString(new(big.Rat).Abs(t.units)),
		ratString(t.price),
		ratString(t.commission),
		ratString(t.fees),
		ratString(t.total),
		currency,
		string(t.tran.FiTID),
		secType,
		sec.optionType,
		sec.strike,
		sec.expiry,
		sec.underlying,
		mult,
		string(t.tran.Memo),
	}
}

// ratString renders an exact decimal without float rounding.
func ratString(r *big.Rat) string {
	if r == nil {
		return ""
	}
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(10)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
