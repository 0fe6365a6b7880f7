package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/fieldpay-hr/fieldpay/internal/jobs"
	"github.com/fieldpay-hr/fieldpay/internal/payout"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// MailEnqueuer queues transactional mail produced by report handlers.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// reportCacheTTL keeps built reports readable by export consumers until the
// next payroll cycle has long passed.
const reportCacheTTL = 7 * 24 * time.Hour

// NewTeamReportHandler returns the handler that builds a team's weekly
// payout report, caches the result JSON in redis and mails a plain-text
// rendering to the requested recipient.
func NewTeamReportHandler(svc *payout.Service, mail MailEnqueuer, rdb redis.UniversalClient, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("payout_team_report")
		var payload TeamReportPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		date, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			logger.Warn("team report: bad date", slog.String("date", payload.Date))
			return asynq.SkipRetry
		}

		report, err := svc.TeamReport(ctx, payload.TeamID, date)
		if err != nil {
			logger.Error("build team report", slog.Int64("team_id", payload.TeamID), slog.Any("error", err))
			return tracker.End(err)
		}

		if rdb != nil {
			if err := cacheTeamReport(ctx, rdb, report); err != nil {
				logger.Warn("cache team report", slog.Int64("team_id", payload.TeamID), slog.Any("error", err))
			}
		}

		if payload.To != "" && mail != nil {
			_, err = mail.EnqueueSendEmail(ctx, SendEmailPayload{
				To:      payload.To,
				Subject: fmt.Sprintf("Payout report: %s, week of %s", report.TeamName, report.Week.Start.Format("2006-01-02")),
				Body:    renderTeamReport(report),
			})
			if err != nil {
				return tracker.End(err)
			}
		}
		logger.Info("team report built",
			slog.Int64("team_id", payload.TeamID),
			slog.Int("rows", len(report.Rows)),
			slog.String("grand_total", report.GrandTotal.StringFixed(2)),
		)
		return tracker.End(nil)
	}
}

func cacheTeamReport(ctx context.Context, rdb redis.UniversalClient, report payout.TeamReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	key := shared.TeamReportKey(report.TeamID, report.Week.Start)
	return rdb.Set(ctx, key, data, reportCacheTTL).Err()
}

func renderTeamReport(report payout.TeamReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Team %s, week %s to %s\n\n",
		report.TeamName,
		report.Week.Start.Format("2006-01-02"),
		report.Week.End.Format("2006-01-02"),
	)
	for _, row := range report.Rows {
		fmt.Fprintf(&b, "%s (%s): %s km -> %s, expenses %s, total %s\n",
			row.EmployeeName,
			row.BankingRef,
			row.TotalKM.String(),
			row.MileageAmount.StringFixed(2),
			row.ExpenseAmount.StringFixed(2),
			row.GrandTotal.StringFixed(2),
		)
	}
	fmt.Fprintf(&b, "\nGrand total: %s\n", report.GrandTotal.StringFixed(2))
	return b.String()
}
