// Package main is the entry point for the forgeai demo gateway — a thin
// OpenAI-compatible HTTP facade that dispatches to forgeai adapters
// instead of implementing any provider logic of its own.
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/forgeai-go/forgeai"
	"github.com/forgeai-go/forgeai/internal/config"
	"github.com/forgeai-go/forgeai/internal/server"
	"github.com/forgeai-go/forgeai/providers/anthropic"
	"github.com/forgeai-go/forgeai/providers/gemini"
	"github.com/forgeai-go/forgeai/providers/openai"
	"github.com/forgeai-go/forgeai/router"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// adapterFactory builds the forgeai.Adapter for one configured
	// provider block. main.go owns this mapping rather than config,
	// since config only knows about strings and credentials — it has
	// no business importing every provider package.
	type adapterFactory func(apiKey, baseURL string) forgeai.Adapter

	constructors := map[string]adapterFactory{
		"openai": func(apiKey, baseURL string) forgeai.Adapter {
			return openai.New(apiKey, baseURL, http.DefaultClient)
		},
		"anthropic": func(apiKey, baseURL string) forgeai.Adapter {
			return anthropic.New(apiKey, baseURL, http.DefaultClient)
		},
		"gemini": func(apiKey, baseURL string) forgeai.Adapter {
			return gemini.New(apiKey, baseURL, "", http.DefaultClient)
		},
	}

	// Build the model registry: a map from model name to the
	// forgeai.Client that handles it. Each provider block in config.yaml
	// names the models it should be registered for; if a model name is
	// claimed by more than one provider, those adapters are chained into
	// a router.FailoverRouter instead of the last one silently winning.
	adaptersByModel := make(map[string][]forgeai.Adapter)

	for name, provCfg := range cfg.Providers {
		factory, ok := constructors[name]
		if !ok {
			log.Fatalf("unknown provider in config: %q", name)
		}

		adapter := factory(provCfg.APIKey, provCfg.BaseURL)

		for _, model := range provCfg.Models {
			adaptersByModel[model] = append(adaptersByModel[model], adapter)
			log.Printf("registered model %q -> provider %q", model, name)
		}
	}

	models := make(map[string]*forgeai.Client, len(adaptersByModel))
	for model, adapters := range adaptersByModel {
		if len(adapters) == 1 {
			models[model] = forgeai.NewClient(adapters[0])
			continue
		}

		r, err := router.New(adapters)
		if err != nil {
			log.Fatalf("building failover router for model %q: %v", model, err)
		}
		models[model] = forgeai.NewClient(r)
	}

	srv := server.New(cfg, models)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("forgeai gateway listening on :%d", cfg.Server.Port)

	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
