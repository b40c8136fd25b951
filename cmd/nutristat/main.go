package main

import (
	"log"

	"github.com/seantiz/nutristat/internal/api"
	"github.com/seantiz/nutristat/internal/config"
	"github.com/seantiz/nutristat/internal/dataset"
	"github.com/seantiz/nutristat/internal/engine"
	"github.com/seantiz/nutristat/internal/resultstore"
	"github.com/seantiz/nutristat/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	out, closeLog, err := config.LogOutput(cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer closeLog()
	logger := config.NewLogger(out, cfg.LogLevel).With("node_id", cfg.NodeID)

	logger.Info("nutristat: starting",
		"listen_addr", cfg.ListenAddr,
		"dataset", cfg.DatasetPath,
		"result_backend", cfg.ResultBackend,
	)

	ds, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	catalog, err := dataset.LoadCatalog(cfg.QuestionsPath)
	if err != nil {
		log.Fatalf("failed to load question catalog: %v", err)
	}
	logger.Info("dataset loaded", "rows", ds.Len(), "questions", ds.Questions())

	results, err := resultstore.Open(cfg.ResultBackend, cfg.ResultsDir, cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open result store: %v", err)
	}
	defer results.Close()

	reg := tasks.NewDatasetRegistry(ds, catalog)
	eng := engine.NewEngine(reg, results, logger, cfg.Workers)

	srv := api.NewServer(cfg.ListenAddr, cfg.NodeID, eng, reg, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
