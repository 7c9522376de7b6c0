package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KafClaw/sheetclaw/internal/agent"
	"github.com/KafClaw/sheetclaw/internal/approval"
	"github.com/KafClaw/sheetclaw/internal/audit"
	"github.com/KafClaw/sheetclaw/internal/config"
	"github.com/KafClaw/sheetclaw/internal/grid"
	"github.com/KafClaw/sheetclaw/internal/provider"
	"github.com/KafClaw/sheetclaw/internal/tables"
	"github.com/KafClaw/sheetclaw/internal/threads"
	"github.com/KafClaw/sheetclaw/internal/tools"
)

// app holds the shared services behind every command.
type app struct {
	cfg      *config.Config
	sheet    *grid.Store
	threads  *threads.Store
	ledger   *approval.Ledger
	tables   *tables.Cache
	audit    audit.Publisher
	registry *tools.Registry
}

// openApp wires storage, the ledger and the tool registry from cfg. The
// workbook is seeded when it does not exist yet.
func openApp(cfg *config.Config) (*app, error) {
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	pub, err := buildAudit(cfg)
	if err != nil {
		return nil, err
	}

	sheet := grid.NewStore(cfg.Paths.WorkbookPath())
	if err := sheet.Seed(false); err != nil {
		pub.Close()
		return nil, err
	}
	store, err := threads.Open(cfg.Store.Driver, cfg.Paths.DatabasePath())
	if err != nil {
		pub.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		sheet:    sheet,
		threads:  store,
		ledger:   approval.NewLedger(cfg.Confirmations.TTL(), pub),
		tables:   tables.NewCache(),
		audit:    pub,
		registry: tools.NewRegistry(),
	}
	tools.RegisterDefaults(a.registry, sheet, store, a.ledger, a.onThreadDeleted)
	return a, nil
}

func (a *app) onThreadDeleted(threadID string) {
	a.tables.Delete(threadID)
	audit.Emit(context.Background(), a.audit, audit.Event{
		Type:     audit.EventThreadDeleted,
		ThreadID: threadID,
		Detail:   map[string]any{"source": "tool"},
	})
}

// newLoop builds the turn controller around prov.
func (a *app) newLoop(prov provider.LLMProvider) *agent.Loop {
	return agent.NewLoop(agent.LoopOptions{
		Provider:           prov,
		Registry:           a.registry,
		Ledger:             a.ledger,
		Threads:            a.threads,
		Tables:             a.tables,
		Audit:              a.audit,
		Model:              a.cfg.Model.Name,
		MaxTokens:          a.cfg.Model.MaxTokens,
		Temperature:        a.cfg.Model.Temperature,
		MaxSteps:           a.cfg.Model.MaxSteps,
		HistoryTokenBudget: a.cfg.Model.HistoryTokenBudget,
	})
}

func (a *app) Close() error {
	err := a.threads.Close()
	if cerr := a.audit.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// buildAudit always logs events and adds Kafka when enabled.
func buildAudit(cfg *config.Config) (audit.Publisher, error) {
	pubs := audit.Multi{audit.NewLogPublisher(slog.Default())}
	if cfg.Audit.KafkaEnabled {
		kp, err := audit.NewKafkaPublisher(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka audit: %w", err)
		}
		pubs = append(pubs, kp)
	}
	return pubs, nil
}
