// Package pipeline drives the email-to-record extraction loop: enumerate
// labeled mails, skip what the ledger already covers, then for each pending
// mail extract, validate, persist and durably mark it processed before
// moving on. Processing is strictly sequential; the ledger is flushed after
// every mail so a crash loses at most the in-flight mail's result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/fetcher"
	"weekly-report-hub/internal/ledger"
	"weekly-report-hub/internal/llm"
	"weekly-report-hub/internal/metrics"
	"weekly-report-hub/internal/models"
	"weekly-report-hub/internal/repository"
)

var (
	// ErrLedgerFlush means a processed mail could not be durably recorded.
	// The run halts: advancing past it risks duplicate records on resume.
	ErrLedgerFlush = errors.New("ledger flush failed")

	// ErrRunActive means another ingestion run holds the advisory lock
	ErrRunActive = errors.New("another ingestion run is active")
)

// Stats are the running totals of one ingestion sweep
type Stats struct {
	Candidates       int    `json:"candidates"`
	AlreadyProcessed int    `json:"already_processed"`
	Processed        int    `json:"processed"`
	MailsRegistered  int    `json:"mails_registered"`
	Records          int    `json:"records"`
	NonReports       int    `json:"non_reports"`
	Malformed        int    `json:"malformed"`
	PersistFailures  int    `json:"persist_failures"`
	FetchFailures    int    `json:"fetch_failures"`
	LastMailID       string `json:"last_mail_id"`
}

// Sink receives progress: human-readable lines via Write and the structured
// running totals via Progress, so consumers never re-parse the text.
type Sink interface {
	io.Writer
	Progress(Stats)
}

type writerSink struct {
	io.Writer
}

func (writerSink) Progress(Stats) {}

// NewWriterSink wraps a plain writer into a Sink that discards structured
// progress, for CLI use.
func NewWriterSink(w io.Writer) Sink {
	return writerSink{w}
}

// Pipeline is the ingestion orchestrator
type Pipeline struct {
	source     fetcher.Source
	generator  llm.Generator
	normalizer *llm.Normalizer
	repo       *repository.Repository
	metrics    *metrics.Metrics

	label               string
	lists               config.ListsConfig
	ledgerPath          string
	lockPath            string
	retryFailedPersists bool
}

// New wires an orchestrator from its collaborators
func New(source fetcher.Source, generator llm.Generator, repo *repository.Repository, m *metrics.Metrics, cfg *config.Config) *Pipeline {
	return &Pipeline{
		source:              source,
		generator:           generator,
		normalizer:          llm.NewNormalizer(llm.NewCanonicalizer(cfg.Lists.Products)),
		repo:                repo,
		metrics:             m,
		label:               cfg.Gmail.Label,
		lists:               cfg.Lists,
		ledgerPath:          cfg.Ingest.LedgerPath,
		lockPath:            cfg.Ingest.LockPath,
		retryFailedPersists: cfg.Ingest.RetryFailedPersists,
	}
}

// Run executes one full sweep. It returns the sweep totals together with the
// first fatal error, if any; per-mail failures never abort the run.
func (p *Pipeline) Run(ctx context.Context, sink Sink) (Stats, error) {
	stats := Stats{}
	start := time.Now()
	defer func() {
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	lock := flock.New(p.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return stats, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		return stats, ErrRunActive
	}
	defer lock.Unlock()

	led, err := ledger.Load(p.ledgerPath)
	if err != nil {
		return stats, err
	}

	ids, err := p.source.List(ctx, p.label)
	if err != nil {
		p.metrics.SourceErrors.Inc()
		return stats, err
	}

	// Newest first: ids are ordered tokens, larger hex value means more recent
	sortIDsDescending(ids)

	stats.Candidates = len(ids)
	for _, id := range ids {
		if led.Contains(id) {
			stats.AlreadyProcessed++
		}
	}

	fmt.Fprintf(sink, "label %q: %d mails, %d already processed, %d pending\n",
		p.label, stats.Candidates, stats.AlreadyProcessed, stats.Candidates-stats.AlreadyProcessed)
	sink.Progress(stats)

	for _, id := range ids {
		if led.Contains(id) {
			continue
		}

		// Cancellation only prevents the next mail from starting; a mail in
		// flight always reaches a terminal state first.
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		msg, err := p.source.Fetch(ctx, id)
		if err != nil {
			// Not marked processed: the next sweep attempts it again.
			stats.FetchFailures++
			logrus.WithField("mail_id", id).Warnf("fetch failed: %v", err)
			fmt.Fprintf(sink, "mail %s: fetch failed, left for next run: %v\n", id, err)
			sink.Progress(stats)
			continue
		}

		result := p.extract(ctx, msg)

		var outcome string
		switch result.Kind {
		case llm.KindMalformed:
			p.logIngest(id, models.StatusMalformed, result.Reason, 0)
			stats.Malformed++
			p.metrics.MalformedResults.Inc()
			outcome = "malformed model output, skipped: " + result.Reason

		case llm.KindNonReport:
			p.logIngest(id, models.StatusNonReport, "", 0)
			stats.NonReports++
			p.metrics.NonReports.Inc()
			outcome = "not a weekly report, skipped"

		case llm.KindReport:
			n, persistErr := p.repo.InsertReport(id, result.Report.ReportDate, result.Report.Reporter, result.Report.Entries)
			if persistErr != nil {
				p.logIngest(id, models.StatusPersistFailed, persistErr.Error(), len(result.Report.Entries))
				stats.PersistFailures++
				p.metrics.PersistFailures.Inc()
				logrus.WithField("mail_id", id).Errorf("persist failed: %v", persistErr)
				if p.retryFailedPersists {
					// Kept off the ledger so the next sweep retries it.
					fmt.Fprintf(sink, "mail %s: persist failed, left for next run: %v\n", id, persistErr)
					sink.Progress(stats)
					continue
				}
				outcome = fmt.Sprintf("persist failed, skipped: %v", persistErr)
			} else {
				p.logIngest(id, models.StatusRegistered, "", n)
				if n > 0 {
					stats.MailsRegistered++
					p.metrics.MailsRegistered.Inc()
				}
				stats.Records += n
				p.metrics.RecordsRegistered.Add(float64(n))
				outcome = fmt.Sprintf("%d records registered", n)
			}
		}

		led.Add(id)
		if flushErr := led.Flush(); flushErr != nil {
			// Records for this mail may already be committed; halting here is
			// the only way to keep a resume from inserting them twice.
			return stats, fmt.Errorf("%w: %v", ErrLedgerFlush, flushErr)
		}

		stats.Processed++
		stats.LastMailID = id
		p.metrics.MessagesProcessed.Inc()

		fmt.Fprintf(sink, "[%d/%d] mail %s: %s\n", stats.Processed, stats.Candidates-stats.AlreadyProcessed, id, outcome)
		sink.Progress(stats)
	}

	// The literal "messages processed" and "registered to DB" markers are a
	// stable contract for tooling that scrapes this stream.
	fmt.Fprintf(sink, "run complete: %d messages processed, %d mails registered to DB (%d records)\n",
		stats.Processed, stats.MailsRegistered, stats.Records)
	sink.Progress(stats)

	logrus.WithFields(logrus.Fields{
		"processed":  stats.Processed,
		"registered": stats.MailsRegistered,
		"records":    stats.Records,
		"elapsed":    time.Since(start).String(),
	}).Info("ingestion run finished")

	return stats, nil
}

// extract renders the prompt, calls the model once and normalizes the answer.
// A failed model call degrades to a Malformed outcome so the loop continues.
func (p *Pipeline) extract(ctx context.Context, msg models.EmailMessage) llm.ExtractionResult {
	prompt := llm.BuildPrompt(p.lists.Reporters, p.lists.Employees, p.lists.Products,
		msg.Subject, msg.From, msg.Date, msg.Body)

	raw, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return llm.ExtractionResult{Kind: llm.KindMalformed, Reason: "model call failed: " + err.Error()}
	}

	return p.normalizer.Normalize(raw)
}

func (p *Pipeline) logIngest(mailID, status, detail string, entryCount int) {
	if err := p.repo.LogIngest(mailID, status, detail, entryCount); err != nil {
		logrus.WithField("mail_id", mailID).Warnf("failed to record ingest log: %v", err)
	}
}

// sortIDsDescending orders ids newest first, interpreting them as base-16
// integers. Unparseable ids fall back to plain string order instead of
// breaking the sort.
func sortIDsDescending(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return idLess(ids[j], ids[i])
	})
}

func idLess(a, b string) bool {
	av, aerr := strconv.ParseUint(a, 16, 64)
	bv, berr := strconv.ParseUint(b, 16, 64)
	if aerr == nil && berr == nil {
		if av != bv {
			return av < bv
		}
		return a < b
	}
	return a < b
}
