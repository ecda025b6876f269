package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloudops-agent/internal/agent/audit"
	"cloudops-agent/internal/common/config"
	"cloudops-agent/internal/common/database"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (default: configs/config.yaml lookup)")
	withIndex := flag.Bool("elasticsearch", false, "Also create the interaction search index")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := initPostgres(ctx, cfg.Database.Postgres); err != nil {
		fmt.Printf("Error initializing PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("user_interactions table is ready")

	if *withIndex {
		index := cfg.Database.Elasticsearch.Index
		if err := initIndex(ctx, cfg.Database.Elasticsearch); err != nil {
			fmt.Printf("Error initializing Elasticsearch: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s index is ready\n", index)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func initPostgres(ctx context.Context, cfg config.PostgresConfig) error {
	pg, err := database.NewPostgres(cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Ping(ctx); err != nil {
		return err
	}
	return pg.EnsureSchema(ctx, audit.Schema)
}

func initIndex(ctx context.Context, cfg config.ElasticsearchConfig) error {
	es, err := database.NewElasticsearch(cfg, nil)
	if err != nil {
		return err
	}
	if err := es.Ping(ctx); err != nil {
		return err
	}
	return es.EnsureIndex(ctx, cfg.Index, audit.IndexMapping)
}
