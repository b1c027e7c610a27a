// Package cli holds the operator commands of the carepoint binary.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/carepoint-hms/carepoint/internal/payroll"
	"github.com/carepoint-hms/carepoint/jobs"
)

// Enqueuer submits background jobs.
type Enqueuer interface {
	EnqueuePayrollGenerate(ctx context.Context, payload jobs.PayrollGeneratePayload) (*asynq.TaskInfo, error)
	EnqueueStockScan(ctx context.Context, payload jobs.StockScanPayload) (*asynq.TaskInfo, error)
}

// ScannerOpener opens a stock scanner on the configured store. The returned
// close function releases the store.
type ScannerOpener func(ctx context.Context) (jobs.StockScanner, func() error, error)

// JobsCLI implements `carepoint jobs ...`.
type JobsCLI struct {
	Enqueuer    Enqueuer
	Inspector   jobs.QueueInspector
	OpenScanner ScannerOpener
	Out         io.Writer

	printer *message.Printer
}

// ErrUsage is returned for unknown subcommands or missing flags.
var ErrUsage = errors.New("usage: carepoint jobs <payroll|scan-stock|stats> [flags]")

// Run dispatches args, e.g. ["scan-stock", "--tenant", "h1"].
func (c *JobsCLI) Run(ctx context.Context, args []string) error {
	if c.printer == nil {
		c.printer = message.NewPrinter(language.English)
	}
	if len(args) == 0 {
		return ErrUsage
	}
	switch args[0] {
	case "payroll":
		return c.payroll(ctx, args[1:])
	case "scan-stock":
		return c.scanStock(ctx, args[1:])
	case "stats":
		return c.stats()
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (c *JobsCLI) payroll(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("payroll", flag.ContinueOnError)
	fs.SetOutput(c.Out)
	tenant := fs.String("tenant", "", "tenant id")
	period := fs.String("period", "", "month as YYYY-MM; empty means the previous month")
	bonusType := fs.String("bonus-type", "", "flat or percent_ctc")
	bonusValue := fs.String("bonus-value", "0", "bonus amount or percentage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenant == "" {
		return fmt.Errorf("%w: --tenant is required", ErrUsage)
	}
	value, err := decimal.NewFromString(*bonusValue)
	if err != nil {
		return fmt.Errorf("bonus value: %w", err)
	}
	if c.Enqueuer == nil {
		return errors.New("jobs cli: queue client not configured")
	}
	info, err := c.Enqueuer.EnqueuePayrollGenerate(ctx, jobs.PayrollGeneratePayload{
		TenantID: *tenant,
		Period:   strings.TrimSpace(*period),
		Bonus:    payroll.Bonus{Type: payroll.BonusType(*bonusType), Value: value},
	})
	if err != nil {
		return err
	}
	c.printer.Fprintf(c.Out, "enqueued %s as %s on queue %s\n", jobs.TaskPayrollGenerate, info.ID, info.Queue)
	return nil
}

// scanStock runs the scan inline by default so failures reproduce locally;
// --enqueue hands it to the worker instead.
func (c *JobsCLI) scanStock(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan-stock", flag.ContinueOnError)
	fs.SetOutput(c.Out)
	tenant := fs.String("tenant", "", "tenant id")
	days := fs.Int("days", jobs.DefaultExpiryDays, "expiry look-ahead in days")
	enqueue := fs.Bool("enqueue", false, "submit to the worker instead of scanning inline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenant == "" {
		return fmt.Errorf("%w: --tenant is required", ErrUsage)
	}

	if *enqueue {
		if c.Enqueuer == nil {
			return errors.New("jobs cli: queue client not configured")
		}
		info, err := c.Enqueuer.EnqueueStockScan(ctx, jobs.StockScanPayload{TenantID: *tenant, WithinDays: *days})
		if err != nil {
			return err
		}
		c.printer.Fprintf(c.Out, "enqueued %s as %s on queue %s\n", jobs.TaskStockScan, info.ID, info.Queue)
		return nil
	}

	if c.OpenScanner == nil {
		return errors.New("jobs cli: store not configured")
	}
	scanner, closeFn, err := c.OpenScanner(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	alerts, err := scanner.Scan(ctx, *tenant, time.Duration(*days)*24*time.Hour)
	if err != nil {
		return err
	}
	for _, a := range alerts {
		line := fmt.Sprintf("%-10s item=%s location=%s qty=%s", a.Kind, a.StockItemID, a.LocationID, a.Quantity.String())
		if a.BatchNumber != "" {
			line += " batch=" + a.BatchNumber
		}
		if a.ExpiryDate != nil {
			line += " expires=" + a.ExpiryDate.Format(time.DateOnly)
		}
		fmt.Fprintln(c.Out, line)
	}
	c.printer.Fprintf(c.Out, "%d alerts for tenant %s\n", len(alerts), *tenant)
	return nil
}

func (c *JobsCLI) stats() error {
	if c.Inspector == nil {
		return errors.New("jobs cli: inspector not configured")
	}
	info, err := c.Inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return err
	}
	if info == nil {
		info = &asynq.QueueInfo{Queue: jobs.QueueDefault}
	}
	c.printer.Fprintf(c.Out, "queue=%s pending=%d active=%d scheduled=%d retry=%d processed=%d failed=%d\n",
		info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry, info.Processed, info.Failed)
	return nil
}
