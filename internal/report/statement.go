package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/phpdave11/gofpdf"

	"credit_ledger/internal/domain"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/money"
)

// StatementRowLimit caps how many entries a PDF statement lists.
const StatementRowLimit = 500

var statementCols = []float64{32, 40, 30, 28, 28, 24}

// Statement renders the user's ledger as a PDF and returns how many entries it
// lists. Demo entries are part of a user's own statement.
func (s *Service) Statement(ctx context.Context, w io.Writer, userID uint, f ledger.Filter) (int, error) {
	f.IncludeDemo = true
	f.PageSize = ledger.MaxPageSize

	var (
		entries []domain.LedgerEntry
		in, out money.Credits
	)
	for e, err := range s.ledger.QueryByUser(ctx, userID, f) {
		if err != nil {
			return 0, err
		}
		if len(entries) == StatementRowLimit {
			break
		}
		entries = append(entries, e)
		if e.IsCredit {
			in += e.Amount
		} else {
			out += e.Amount
		}
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Wallet statement")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Cell(0, 6, "User #"+strconv.FormatUint(uint64(userID), 10)+"   Period: "+period(f))
	pdf.Ln(10)

	pdf.SetTextColor(20, 20, 20)
	pdf.SetFillColor(248, 248, 248)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(60, 9, "Credits in", "1", 0, "C", true, 0, "")
	pdf.CellFormat(60, 9, "Credits out", "1", 0, "C", true, 0, "")
	pdf.CellFormat(60, 9, "Net", "1", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(60, 9, fmt.Sprint(int64(in)), "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 9, fmt.Sprint(int64(out)), "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 9, fmt.Sprint(int64(in-out)), "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(245, 245, 245)
		for i, h := range []string{"DATE", "TYPE", "MODE", "AMOUNT", "BALANCE", "CASH"} {
			pdf.CellFormat(statementCols[i], 8, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}
	header()
	for _, e := range entries {
		if pdf.GetY() > 270 {
			pdf.AddPage()
			header()
		}
		amount := strconv.FormatInt(int64(e.Amount), 10)
		if !e.IsCredit {
			amount = "-" + amount
		}
		cash := ""
		if e.CashAmount > 0 {
			cash = e.CashAmount.String()
		}
		row := []string{
			e.CreatedAt.UTC().Format("2006-01-02 15:04"),
			string(e.TransactionType),
			string(e.ModeOfPayment),
			amount,
			strconv.FormatInt(int64(e.BalanceAfterTxn), 10),
			cash,
		}
		for i, v := range row {
			align := "L"
			if i >= 3 {
				align = "R"
			}
			pdf.CellFormat(statementCols[i], 7, v, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(entries) == StatementRowLimit {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, 8, "Truncated, narrow the period to see older entries", "1", 1, "C", false, 0, "")
	}

	pdf.SetY(-18)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 10, "Generated "+time.Now().UTC().Format(time.RFC3339)+"  Rate "+money.CreditRateVersion, "", 0, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return 0, fmt.Errorf("render statement: %w", err)
	}
	return len(entries), nil
}

func period(f ledger.Filter) string {
	from, to := "beginning", "now"
	if !f.From.IsZero() {
		from = f.From.UTC().Format(time.DateOnly)
	}
	if !f.To.IsZero() {
		to = f.To.UTC().Format(time.DateOnly)
	}
	return from + " to " + to
}
