package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"walletledger/cmd/internal/secret"
	"walletledger/core/types"
	"walletledger/services/walletd"
)

const (
	defaultServer = "http://localhost:7090"
	tokenEnv      = "WALLETCTL_TOKEN"
	serverEnv     = "WALLETCTL_SERVER"
)

func main() {
	src := secret.NewSource(tokenEnv, "walletd admin token")
	os.Exit(run(os.Args[1:], src.Get, os.Stdout, os.Stderr))
}

func run(args []string, token func() (string, error), stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("walletctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	server := global.String("server", envOr(serverEnv, defaultServer), "walletd base URL")
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage())
		return 2
	}
	c := newClient(*server, token)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	switch rest[0] {
	case "accounts":
		err = listAccounts(ctx, c, stdout)
	case "pending":
		err = listPending(ctx, c, rest[1:], stdout, stderr)
	case "approve", "reject":
		if len(rest) != 2 || strings.TrimSpace(rest[1]) == "" {
			fmt.Fprintf(stderr, "usage: walletctl %s <txid>\n", rest[0])
			return 2
		}
		err = decide(ctx, c, rest[0], strings.TrimSpace(rest[1]), stdout)
	case "settings":
		err = settings(ctx, c, rest[1:], stdout, stderr)
	case "report":
		err = report(ctx, c, rest[1:], stdout, stderr)
	default:
		fmt.Fprint(stderr, usage())
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage() string {
	return `Usage: walletctl [-server URL] <command>

Commands:
  accounts                      list accounts with balances and plan counts
  pending [-kind recharge|withdraw]
                                list transactions awaiting review
  approve <txid>                approve a pending recharge or withdrawal
  reject <txid>                 reject a pending recharge or withdrawal
  settings [-upi ID] [-website URL] [-whatsapp N] [-telegram URL] [-email ADDR]
                                show or update app settings
  report [-export]              show daily totals, or write CSV and Parquet files

The admin token is read from WALLETCTL_TOKEN or prompted for.
`
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func listAccounts(ctx context.Context, c *client, stdout io.Writer) error {
	var views []walletd.AccountView
	if err := c.call(ctx, "GET", "/api/v1/admin/accounts", nil, &views); err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBALANCE\tSPINS\tACTIVE\tINVESTED\tWITHDRAWN\tREFERRER")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			v.ID, v.Name, v.Balance.StringFixed(2), v.SpinCredits, v.ActivePlans,
			v.TotalInvested.StringFixed(2), v.TotalWithdrawn.StringFixed(2), v.ReferrerID)
	}
	return w.Flush()
}

func listPending(ctx context.Context, c *client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", "", "filter by kind (recharge or withdraw)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := url.Values{"status": {string(types.StatusPending)}}
	if k := strings.TrimSpace(*kind); k != "" {
		query.Set("kind", k)
	}
	var txs []walletd.TransactionView
	if err := c.call(ctx, "GET", "/api/v1/admin/transactions?"+query.Encode(), nil, &txs); err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TX\tKIND\tAMOUNT\tUSER\tNAME\tDATE\tREFERENCE")
	for _, tx := range txs {
		reference := tx.Reference
		if tx.WithdrawalDetails != nil {
			reference = string(tx.WithdrawalDetails.Method) + ":" + tx.WithdrawalDetails.PaymentAddress
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Kind, tx.Amount.StringFixed(2), tx.AccountID, tx.AccountName,
			tx.CreatedAt.Format(time.RFC3339), reference)
	}
	return w.Flush()
}

func decide(ctx context.Context, c *client, verb, txID string, stdout io.Writer) error {
	var result walletd.Decision
	path := "/api/v1/admin/transactions/" + url.PathEscape(txID) + "/" + verb
	if err := c.call(ctx, "POST", path, nil, &result); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s for %s, balance %s\n",
		result.Transaction.Kind, result.Transaction.Status, result.AccountID, result.Balance.StringFixed(2))
	if result.ReferralGrant {
		fmt.Fprintf(stdout, "referrer %s earned a spin credit\n", result.ReferrerID)
	}
	return nil
}

func settings(ctx context.Context, c *client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	fs.SetOutput(stderr)
	upi := fs.String("upi", "", "collection UPI id")
	website := fs.String("website", "", "site origin")
	whatsapp := fs.String("whatsapp", "", "support WhatsApp number")
	telegram := fs.String("telegram", "", "support Telegram link")
	email := fs.String("email", "", "support email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var current types.AppSettings
	if err := c.call(ctx, "GET", "/api/v1/settings", nil, &current); err != nil {
		return err
	}
	changed := false
	set := func(dst *string, value string) {
		if value != "" {
			*dst = value
			changed = true
		}
	}
	set(&current.CollectionAddress, *upi)
	set(&current.SiteOrigin, *website)
	set(&current.Support.WhatsApp, *whatsapp)
	set(&current.Support.Telegram, *telegram)
	set(&current.Support.Email, *email)
	if changed {
		current.UpdatedAt = nil
		current.UpdatedBy = ""
		if err := c.call(ctx, "PUT", "/api/v1/admin/settings", current, &current); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "upi:       %s\nwebsite:   %s\nwhatsapp:  %s\ntelegram:  %s\nemail:     %s\n",
		current.CollectionAddress, current.SiteOrigin, current.Support.WhatsApp, current.Support.Telegram, current.Support.Email)
	if current.UpdatedAt != nil {
		fmt.Fprintf(stdout, "updated:   %s by %s\n", current.UpdatedAt.Format(time.RFC3339), current.UpdatedBy)
	}
	return nil
}

func report(ctx context.Context, c *client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	export := fs.Bool("export", false, "write CSV and Parquet files on the server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *export {
		var out walletd.ExportedReport
		if err := c.call(ctx, "POST", "/api/v1/admin/reports/export", nil, &out); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %d rows to %s and %s\n", out.Rows, out.CSVPath, out.ParquetPath)
		return nil
	}
	var rows []walletd.DailyTotals
	if err := c.call(ctx, "GET", "/api/v1/admin/reports/daily", nil, &rows); err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tRECHARGES\tCOUNT\tWITHDRAWALS\tCOUNT")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n",
			row.Date, row.Recharges.StringFixed(2), row.RechargeCount, row.Withdrawals.StringFixed(2), row.WithdrawCount)
	}
	return w.Flush()
}
