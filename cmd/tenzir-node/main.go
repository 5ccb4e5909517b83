// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tenzir-node is the node entrypoint: it loads configuration,
// wires the pipeline manager and control API, and serves until a
// termination signal arrives. Flag/`.env`/gops handling mirrors the
// teacher's cmd/cc-backend/main.go almost line for line; only the
// sub-systems wired after flag parsing differ.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tenzir/pipeline-core/internal/config"
	"github.com/tenzir/pipeline-core/internal/controlapi"
	"github.com/tenzir/pipeline-core/internal/manager"
	"github.com/tenzir/pipeline-core/pkg/nats"
	"github.com/tenzir/pipeline-core/pkg/tenzir/catalog"
	"github.com/tenzir/pipeline-core/pkg/tenzir/expr"
	"github.com/tenzir/pipeline-core/pkg/tenzir/metrics"
	"github.com/tenzir/pipeline-core/pkg/tenzir/pipeline"
)

func main() {
	var flagConfigFile string
	var flagGops bool
	var flagVersion bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default node configuration with `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagVersion, "version", false, "Print the node version and exit")
	flag.Parse()

	if flagVersion {
		cclog.Printf("tenzir-node %s", controlapi.Version)
		return
	}

	// See https://github.com/google/gops (Runtime overhead is almost zero)
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Fatalf("parsing '.env' file failed: %s", err.Error())
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		cclog.Fatal(err)
	}

	var natsClient *nats.Client
	if cfg.NATS != nil {
		natsClient, err = nats.NewClient(&nats.NatsConfig{Address: cfg.NATS.URL})
		if err != nil {
			cclog.Fatalf("nats: %s", err.Error())
		}
		defer natsClient.Close()
	}

	cat := catalog.New()
	metricsRegistry := metrics.NewRegistry()
	functions := expr.NewRegistry()
	registry := pipeline.DefaultRegistry()

	promRegistry := prometheus.NewRegistry()
	promExporter := metrics.NewExporter(promRegistry)

	if _, err := metrics.StartPolling(metricsRegistry, promExporter); err != nil {
		cclog.Fatalf("metrics: %s", err.Error())
	}

	mgr := manager.New(cfg, registry, functions, cat, metricsRegistry, natsClient)

	api := &controlapi.API{
		Manager:               mgr,
		DisableAuthentication: cfg.DisableAuthentication,
		JWTSigningKey:         cfg.JWTSigningKey,
		PrometheusGatherer:    promRegistry,
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		cclog.Printf("control API listening at %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Fatal(err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cclog.Print("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		cclog.Errorf("server shutdown: %v", err)
	}
}
