// Package services wires the enrichment components around one store and one GitHub client.
package services

import (
	"context"
	"net/http"

	"github.com/ortelius/pdvd-enricher/alerts"
	"github.com/ortelius/pdvd-enricher/collector"
	"github.com/ortelius/pdvd-enricher/config"
	"github.com/ortelius/pdvd-enricher/epss"
	triageevents "github.com/ortelius/pdvd-enricher/events/modules/triage"
	"github.com/ortelius/pdvd-enricher/findings"
	"github.com/ortelius/pdvd-enricher/github"
	"github.com/ortelius/pdvd-enricher/internal/kafka"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/triage"
	"github.com/ortelius/pdvd-enricher/util"
	"go.uber.org/zap"
)

// EventSource names this service on published events.
const EventSource = "pdvd-enricher"

// Options selects per-command behavior.
type Options struct {
	UseREST bool
	Force   bool
	// Async publishes re-triage requests to Kafka instead of evaluating them in process.
	Async bool
}

// Services holds the wired components. Collector and Alerts are nil when no GitHub client
// was supplied.
type Services struct {
	Config    *config.Config
	Store     store.Store
	GitHub    *github.Client
	Collector *collector.Collector
	Projector *findings.Projector
	Alerts    *alerts.Orchestrator
	Triage    *triage.Engine
	Scores    *epss.Updater
	Producer  *triageevents.RetriageProducer
}

// New authenticates against GitHub and wires every component.
func New(ctx context.Context, cfg *config.Config, st store.Store, opts Options, logger *zap.Logger) (*Services, error) {
	client, err := github.NewClient(ctx, github.Options{
		Token: cfg.GitHub.Token,
		App: github.AppCredentials{
			AppID:          cfg.GitHub.AppID,
			InstallationID: cfg.GitHub.InstallationID,
			PrivateKey:     cfg.GitHub.PrivateKey,
		},
		APIURL:     cfg.GitHub.APIURL,
		GraphQLURL: cfg.GitHub.GraphQLURL,
		Timeout:    cfg.HTTPTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return Build(cfg, st, client, opts, logger), nil
}

// Build wires the components around an existing client, which may be nil for commands that
// only work on stored data.
func Build(cfg *config.Config, st store.Store, client *github.Client, opts Options, logger *zap.Logger) *Services {
	logger = util.OrNop(logger)
	s := &Services{Config: cfg, Store: st, GitHub: client}

	s.Projector = findings.NewProjector(st, logger, nil)
	s.Triage = triage.NewEngine(st, nil, nil, logger)

	var retriager epss.Retriager
	switch {
	case !cfg.AutoTriageEnabled:
		logger.Info("Auto-triage disabled; exploit score changes will only be flagged")
	case opts.Async:
		s.Producer = triageevents.NewRetriageProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRetriage, EventSource, kafka.NewTransport(cfg.Kafka), logger)
		retriager = s.Producer
	default:
		retriager = s.Triage
	}

	s.Scores = epss.NewUpdater(st, epss.NewClient(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.EPSS.URL, logger), retriager, epss.Config{
		BatchSize:         cfg.EPSS.BatchSize,
		SignificantChange: cfg.EPSS.SignificantChange,
	}, logger)

	if client != nil {
		s.Collector = collector.New(client.Bulk, client.Resource, st, collector.Options{
			Org:     cfg.GitHub.Org,
			UseREST: opts.UseREST,
			Force:   opts.Force,
		}, logger)
		s.Alerts = alerts.New(client.Bulk, client.Resource, st, s.Projector, alerts.Config{
			Interval:       cfg.AlertSync.Interval,
			RateLimitFloor: cfg.AlertSync.RateLimitFloor,
		}, logger)
	}
	return s
}

// Close releases the Kafka writer when one was created.
func (s *Services) Close() error {
	if s.Producer != nil {
		return s.Producer.Close()
	}
	return nil
}
