package main

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockdataautomationruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"

	"medley/internal/completion"
	"medley/internal/config"
	"medley/internal/contentstore"
	"medley/internal/contentstore/fsstore"
	"medley/internal/contentstore/s3store"
	"medley/internal/continuation"
	"medley/internal/extraction"
	"medley/internal/finalizer"
	"medley/internal/invoker"
	"medley/internal/jobstore"
	"medley/internal/jobstore/dynamostore"
	"medley/internal/jobstore/sqlitestore"
	"medley/internal/preprocess"
	"medley/internal/resolver"
	"medley/internal/services/analysis"
	"medley/internal/services/stepfn"
	"medley/internal/workflow"
)

// stack bundles every collaborator the daemon needs, built per the
// configured backends.
type stack struct {
	store    jobstore.Store
	content  contentstore.Store
	registry *continuation.Registry
	manager  *workflow.Manager
	resolver *resolver.Resolver
}

func buildStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	store, err := openJobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	content, err := openContentStore(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := continuation.NewRegistry()
	sender, err := buildSender(ctx, cfg, registry)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	anInvoker, err := buildInvoker(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	scheme := contentstore.SchemeFile
	if cfg.Content.Backend == "s3" {
		scheme = contentstore.SchemeS3
	}

	engine := extraction.NewEngine(content, scheme, cfg.Content.Bucket,
		cfg.Content.OutputPrefix, cfg.Content.TranscriptPrefix, logger)
	steps := workflow.Steps{
		Preprocess: preprocess.New(store, content, scheme, cfg.Content.Bucket,
			cfg.Content.RawPrefix, cfg.Content.WorkingPrefix, logger),
		Invoke: invoker.New(store, anInvoker, registry, scheme,
			cfg.Content.Bucket, cfg.Content.OutputPrefix, logger),
		Extract:  extraction.NewStep(store, engine, logger),
		Complete: completion.New(store, logger),
	}

	final := finalizer.New(store, logger)
	manager := workflow.NewManager(cfg, store, registry, steps, final, logger)
	res := resolver.New(store, sender, resolverOptions(cfg), logger)

	return &stack{
		store:    store,
		content:  content,
		registry: registry,
		manager:  manager,
		resolver: res,
	}, nil
}

func openJobStore(ctx context.Context, cfg *config.Config) (jobstore.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return sqlitestore.Open(cfg.DatabasePath())
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return dynamostore.New(dynamodb.NewFromConfig(awsCfg), cfg.Store.TableName, cfg.Store.OperationIndex)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func openContentStore(ctx context.Context, cfg *config.Config) (contentstore.Store, error) {
	switch cfg.Content.Backend {
	case "fs":
		return fsstore.New(cfg.ObjectsDir())
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return s3store.New(s3.NewFromConfig(awsCfg)), nil
	default:
		return nil, fmt.Errorf("unsupported content backend %q", cfg.Content.Backend)
	}
}

func buildSender(ctx context.Context, cfg *config.Config, registry *continuation.Registry) (continuation.Sender, error) {
	switch cfg.Callback.Backend {
	case "local":
		return registry, nil
	case "stepfunctions":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Callback.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return stepfn.New(sfn.NewFromConfig(awsCfg)), nil
	default:
		return nil, fmt.Errorf("unsupported callback backend %q", cfg.Callback.Backend)
	}
}

func buildInvoker(ctx context.Context, cfg *config.Config) (analysis.Invoker, error) {
	if cfg.Analysis.ProfileARN == "" && cfg.Analysis.ProjectARN == "" {
		return analysis.Manual{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Analysis.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return analysis.NewBedrock(bedrockdataautomationruntime.NewFromConfig(awsCfg),
		cfg.Analysis.ProfileARN, cfg.Analysis.ProjectARN)
}

func resolverOptions(cfg *config.Config) resolver.Options {
	opts := resolver.DefaultOptions()
	if cfg.Resolver.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.Resolver.MaxAttempts
	}
	if cfg.Resolver.InitialDelayMS > 0 {
		opts.InitialDelay = msDuration(cfg.Resolver.InitialDelayMS)
	}
	if cfg.Resolver.MaxDelayMS > 0 {
		opts.MaxDelay = msDuration(cfg.Resolver.MaxDelayMS)
	}
	return opts
}
