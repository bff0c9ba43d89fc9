package walletd

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"walletledger/core/types"
	"walletledger/gateway/middleware"
)

const reportDayLayout = "2006-01-02"

// DailyTotals aggregates approved money movements for one calendar day in
// the ledger timezone.
type DailyTotals struct {
	Date          string          `json:"date"`
	Recharges     decimal.Decimal `json:"recharges"`
	RechargeCount int             `json:"rechargeCount"`
	Withdrawals   decimal.Decimal `json:"withdrawals"`
	WithdrawCount int             `json:"withdrawCount"`
}

// DailyReport sums approved recharges and withdrawals per day, newest first.
func (l *Ledger) DailyReport(ctx context.Context, actor middleware.Identity) ([]DailyTotals, error) {
	if err := l.policy.authorize(actor); err != nil {
		return nil, err
	}
	accounts, err := l.snapshotAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return aggregateDaily(accounts, l.loc), nil
}

func aggregateDaily(accounts []*types.Account, loc *time.Location) []DailyTotals {
	days := make(map[string]*DailyTotals)
	for _, acc := range accounts {
		for _, tx := range acc.Transactions {
			if tx.Status != types.StatusApproved || !tx.Kind.Moderated() {
				continue
			}
			key := tx.CreatedAt.In(loc).Format(reportDayLayout)
			day, ok := days[key]
			if !ok {
				day = &DailyTotals{Date: key, Recharges: decimal.Zero, Withdrawals: decimal.Zero}
				days[key] = day
			}
			if tx.Kind == types.KindRecharge {
				day.Recharges = day.Recharges.Add(tx.Amount)
				day.RechargeCount++
			} else {
				day.Withdrawals = day.Withdrawals.Add(tx.Amount)
				day.WithdrawCount++
			}
		}
	}
	out := make([]DailyTotals, 0, len(days))
	for _, day := range days {
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// ExportedReport names the files written by ExportReport.
type ExportedReport struct {
	CSVPath     string `json:"csvPath"`
	ParquetPath string `json:"parquetPath"`
	Rows        int    `json:"rows"`
}

// ExportReport writes the daily report as CSV and Parquet under the report
// directory.
func (l *Ledger) ExportReport(ctx context.Context, actor middleware.Identity) (ExportedReport, error) {
	rows, err := l.DailyReport(ctx, actor)
	if err != nil {
		return ExportedReport{}, err
	}
	if err := os.MkdirAll(l.reportDir, 0o755); err != nil {
		return ExportedReport{}, fmt.Errorf("walletd: create report dir: %w", err)
	}
	stamp := l.now().In(l.loc).Format("20060102T150405")
	base := filepath.Join(l.reportDir, "daily_"+stamp)
	out := ExportedReport{CSVPath: base + ".csv", ParquetPath: base + ".parquet", Rows: len(rows)}
	if err := writeReportCSV(out.CSVPath, rows); err != nil {
		return ExportedReport{}, err
	}
	if err := writeReportParquet(out.ParquetPath, rows); err != nil {
		return ExportedReport{}, err
	}
	l.logger.Info("report exported",
		slog.String("actor", actor.Subject),
		slog.String("csv", out.CSVPath),
		slog.String("parquet", out.ParquetPath),
		slog.Int("rows", out.Rows))
	return out, nil
}

func writeReportCSV(path string, rows []DailyTotals) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("walletd: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write([]string{"date", "recharges", "recharge_count", "withdrawals", "withdraw_count"}); err != nil {
		return fmt.Errorf("walletd: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Date,
			row.Recharges.StringFixed(2),
			fmt.Sprint(row.RechargeCount),
			row.Withdrawals.StringFixed(2),
			fmt.Sprint(row.WithdrawCount),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("walletd: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("walletd: flush csv: %w", err)
	}
	return file.Close()
}

type parquetDailyRow struct {
	Date          string `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Recharges     string `parquet:"name=recharges, type=BYTE_ARRAY, convertedtype=UTF8"`
	RechargeCount int32  `parquet:"name=recharge_count, type=INT32"`
	Withdrawals   string `parquet:"name=withdrawals, type=BYTE_ARRAY, convertedtype=UTF8"`
	WithdrawCount int32  `parquet:"name=withdraw_count, type=INT32"`
}

func writeReportParquet(path string, rows []DailyTotals) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("walletd: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetDailyRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("walletd: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		pr := &parquetDailyRow{
			Date:          row.Date,
			Recharges:     row.Recharges.String(),
			RechargeCount: int32(row.RechargeCount),
			Withdrawals:   row.Withdrawals.String(),
			WithdrawCount: int32(row.WithdrawCount),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("walletd: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("walletd: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("walletd: close parquet file: %w", err)
	}
	return nil
}
