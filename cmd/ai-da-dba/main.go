package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/zatuliveter/ai-da-dba/pkg/agent"
	"github.com/zatuliveter/ai-da-dba/pkg/config"
	"github.com/zatuliveter/ai-da-dba/pkg/llms"
	"github.com/zatuliveter/ai-da-dba/pkg/logger"
	"github.com/zatuliveter/ai-da-dba/pkg/mssql"
	"github.com/zatuliveter/ai-da-dba/pkg/server"
	"github.com/zatuliveter/ai-da-dba/pkg/store"
	"github.com/zatuliveter/ai-da-dba/pkg/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ai-da-dba: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		// The server still starts so the UI can report the problem, but
		// every agent turn will fail with a configuration error.
		log.Error("incomplete configuration", "error", err)
	}

	st, err := store.Open(cfg.DataDir, log)
	if err != nil {
		return err
	}
	defer st.Close()

	connector := mssql.NewConnector(cfg.SQLServer, cfg.SQLUser, cfg.SQLPassword, log)
	registry := tools.NewRegistry(connector, log)

	var provider llms.Provider
	if cfg.LLMConfigured() {
		provider = llms.NewOpenAIProvider(cfg.APIURL, cfg.APIKey, cfg.Model, cfg.Temperature, log)
	}

	ag := agent.New(provider, registry, st, log)
	srv := server.New(ag, st, connector, log)

	log.Info("listening", "addr", cfg.Addr, "model", cfg.Model)
	return http.ListenAndServe(cfg.Addr, srv.Router())
}
