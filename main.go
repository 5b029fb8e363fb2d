package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"hnenricher/api"
	"hnenricher/batch"
	"hnenricher/common"
	"hnenricher/config"
	"hnenricher/content"
	"hnenricher/enrichment"
	"hnenricher/events"
	"hnenricher/hackernews"
	"hnenricher/inference"
	"hnenricher/orchestrator"
	"hnenricher/secrets"
	"hnenricher/store"
	"hnenricher/vectorstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := common.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("enricher stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := common.LoadAWSConfig(ctx, common.AWSConfig{
		Region:       cfg.Storage.Region,
		Profile:      cfg.Storage.Profile,
		UsePathStyle: cfg.Storage.UsePathStyle,
	})
	if err != nil {
		return err
	}

	if cfg.HasSecretRefs() {
		params, err := secrets.NewParamStore(ssm.NewFromConfig(awsCfg))
		if err != nil {
			return err
		}
		if err := cfg.ResolveSecrets(ctx, params); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	objects, err := common.NewS3(awsCfg, cfg.Storage.Bucket, cfg.Storage.UsePathStyle)
	if err != nil {
		return err
	}

	items, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer items.Close()
	if err := items.Migrate(ctx); err != nil {
		return err
	}

	embedder, err := vectorstore.NewCohereEmbeddings(cfg.Cohere.APIKey, cfg.Vector.EmbedModel)
	if err != nil {
		return err
	}
	chroma, err := vectorstore.NewChroma(ctx, vectorstore.ChromaConfig{
		Host:           cfg.Vector.Host,
		Port:           cfg.Vector.Port,
		CollectionName: cfg.Vector.Collection,
	})
	if err != nil {
		return err
	}
	checks := map[string]api.Pinger{"database": items, "vector": chroma}

	vectors, err := vectorstore.NewWriter(chroma, embedder, cfg.Vector.ChunkSize)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		checks["redis"] = redisPinger{rdb}
	}

	pending, err := newPending(cfg, rdb)
	if err != nil {
		return err
	}
	var marker enrichment.ReconciledMarker
	if rdb != nil {
		m, err := batch.NewMarker(rdb, cfg.Redis.KeyPrefix+"reconciled")
		if err != nil {
			return err
		}
		marker = m
	}

	hn := hackernews.NewClient(cfg.HackerNews.BaseURL, cfg.HackerNews.Timeout)
	var ranker enrichment.Ranker = hn
	if cfg.HackerNews.Ranking == "feed" {
		ranker = hackernews.NewFeedRanker(cfg.HackerNews.FeedURL)
	}
	fetcher := content.NewFetcher(cfg.Ingest.ScratchDir, cfg.Ingest.ContentTimeout, logger)
	payloads := inference.PayloadBuilder{
		Prompt:           cfg.Inference.Prompt,
		MaxTokens:        cfg.Inference.MaxTokens,
		AnthropicVersion: cfg.Inference.AnthropicVersion,
	}

	jobs, err := inference.NewBatchSubmitter(bedrock.NewFromConfig(awsCfg), cfg.Inference.ModelID, cfg.Inference.RoleARN, cfg.Inference.JobNamePrefix)
	if err != nil {
		return err
	}
	syncInvoker, err := inference.NewRuntime(inference.NewRuntimeClient(awsCfg), cfg.Inference.ModelID, config.MaxAttempts, nil, logger)
	if err != nil {
		return err
	}

	var publisher enrichment.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EnrichedTopic, logger)
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = producer
	}

	pipeline, err := buildPipeline(cfg, pipelineParts{
		ranker:    ranker,
		details:   hn,
		fetcher:   fetcher,
		payloads:  payloads,
		items:     items,
		pending:   pending,
		objects:   objects,
		jobs:      jobs,
		invoker:   syncInvoker,
		vectors:   vectors,
		publisher: publisher,
		marker:    marker,
	}, logger)
	if err != nil {
		return err
	}

	sched := orchestrator.New(map[orchestrator.Cycle]orchestrator.CycleFunc{
		orchestrator.CycleIngest: func(ctx context.Context) (any, error) {
			return pipeline.Ingest(ctx)
		},
		orchestrator.CycleReconcile: func(ctx context.Context) (any, error) {
			return pipeline.Reconcile(ctx)
		},
		orchestrator.CycleRetention: func(ctx context.Context) (any, error) {
			return pipeline.Sweep(ctx), nil
		},
	}, logger)
	if err := sched.Schedule(map[orchestrator.Cycle]string{
		orchestrator.CycleIngest:    cfg.Schedule.Ingest,
		orchestrator.CycleReconcile: cfg.Schedule.Reconcile,
		orchestrator.CycleRetention: cfg.Schedule.Retention,
	}); err != nil {
		return err
	}
	sched.Start()

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TriggerTopic != "" {
		handler := events.NewTriggerHandler(
			func(c string) bool { return sched.Known(orchestrator.Cycle(c)) },
			func(c string) error { return sched.Trigger(orchestrator.Cycle(c)) },
			logger,
		)
		consumer, err := events.NewConsumer(events.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.TriggerTopic,
			GroupID: cfg.Kafka.GroupID,
			Handler: handler,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("trigger consumer disabled", "err", err)
		} else {
			defer consumer.Close()
			go func() {
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("trigger consumer stopped", "err", err)
				}
			}()
		}
	}

	router := api.NewRouter(api.Deps{
		Scheduler: sched,
		Pipeline:  pipeline,
		Searcher:  vectors,
		Items:     items,
		Checks:    checks,
		Logger:    logger,
	})
	server := api.NewServer(cfg.Server.Addr, router, logger)
	serveErr := server.Start()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "err", err)
	}
	return sched.Stop(shutdownCtx)
}

type pipelineParts struct {
	ranker    enrichment.Ranker
	details   enrichment.DetailSource
	fetcher   *content.Fetcher
	payloads  inference.PayloadBuilder
	items     enrichment.ItemStore
	pending   batch.Pending
	objects   enrichment.ObjectStore
	jobs      enrichment.BatchSubmitter
	invoker   enrichment.Invoker
	vectors   *vectorstore.Writer
	publisher enrichment.Publisher
	marker    enrichment.ReconciledMarker
}

func buildPipeline(cfg config.Config, p pipelineParts, logger *slog.Logger) (*enrichment.Pipeline, error) {
	selector, err := enrichment.NewSelector(p.ranker, p.items, cfg.Ingest.CandidateLimit, cfg.Ingest.RecencyWindow)
	if err != nil {
		return nil, err
	}
	builder, err := enrichment.NewBuilder(p.details, p.fetcher, p.payloads, logger)
	if err != nil {
		return nil, err
	}
	acc, err := enrichment.NewAccumulator(p.pending, cfg.Ingest.FlushThreshold)
	if err != nil {
		return nil, err
	}
	sub, err := enrichment.NewSubmitter(enrichment.SubmitterDeps{
		Pending:      p.pending,
		Objects:      p.objects,
		Jobs:         p.jobs,
		Scratch:      p.fetcher,
		InputPrefix:  cfg.Storage.InputPrefix,
		OutputPrefix: cfg.Storage.OutputPrefix,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	rec, err := enrichment.NewReconciler(enrichment.ReconcilerDeps{
		Objects:      p.objects,
		Details:      p.details,
		Items:        p.items,
		Marker:       p.marker,
		InputPrefix:  cfg.Storage.InputPrefix,
		OutputPrefix: cfg.Storage.OutputPrefix,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	ret, err := enrichment.NewRetention(enrichment.RetentionDeps{
		Vectors:        p.vectors,
		Objects:        p.objects,
		VectorTTL:      cfg.Vector.TTL,
		ArtifactCutoff: cfg.Retention.Cutoff,
		InputPrefix:    cfg.Storage.InputPrefix,
		OutputPrefix:   cfg.Storage.OutputPrefix,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return enrichment.NewPipeline(enrichment.PipelineDeps{
		Selector:    selector,
		Builder:     builder,
		Accumulator: acc,
		Submitter:   sub,
		Reconciler:  rec,
		Retention:   ret,
		Items:       p.items,
		Vectors:     p.vectors,
		Publisher:   p.publisher,
		Invoker:     p.invoker,
		Lookup:      p.vectors,
		Logger:      logger,
	})
}

func newPending(cfg config.Config, rdb *redis.Client) (batch.Pending, error) {
	if cfg.Ingest.Pending == "redis" {
		if rdb == nil {
			return nil, errors.New("ingest.pending is redis but redis.addr is empty")
		}
		return batch.NewRedisStore(rdb, cfg.Redis.KeyPrefix+"pending")
	}
	return batch.NewFileStore(cfg.Ingest.PendingPath)
}

type redisPinger struct{ client *redis.Client }

func (r redisPinger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
