package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"llmd/internal/config"
	"llmd/internal/registry"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "llmd",
		Short:         "Local model inference server with an OpenAI-compatible API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, configPath, os.LookupEnv)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	f.Int("port", config.DefaultPort, "HTTP listen port (defaults PORT or 8080)")
	f.String("host", config.DefaultHost, "HTTP listen host (empty = all interfaces)")
	f.String("models-dir", config.DefaultModelsDir, "Models root holding chat/, embedding/ and reranker/ (defaults LLMD_MODELS_DIR)")
	f.String("log-level", config.DefaultLogLevel, "Log level: debug|info|warn|error|disabled (defaults LLMD_LOG_LEVEL)")
	f.String("log-format", config.DefaultLogFormat, "Log format: console|json")
	f.Int("idle-ttl", config.DefaultIdleTTLMinutes, "Minutes a model may stay unused before eviction")
	f.Int("sweep-interval", config.DefaultSweepIntervalMinutes, "Minutes between idle sweeps")
	f.Int("session-ttl", config.DefaultSessionTTLMinutes, "Minutes a chat session may stay idle")
	f.Int("session-history-chars", 0, "Characters of earlier turns kept in each chat prompt (0 = default)")
	f.Int64("max-body-bytes", config.DefaultMaxBodyBytes, "Maximum JSON request body size")
	f.String("cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	f.Int("llama-ctx", 0, "llama.cpp context size (0 = engine default)")
	f.Int("llama-threads", 0, "llama.cpp threads (0 = engine default)")
	f.Int("llama-gpu-layers", 0, "Layers offloaded to the GPU")

	root.AddCommand(newModelsCmd(&configPath))
	return root
}

// newModelsCmd lists artifacts on disk without starting the server.
func newModelsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model artifacts under the models root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, *configPath, os.LookupEnv)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			store, err := registry.New(cfg.ModelsDir, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range store.ListAll(nil) {
				fmt.Fprintf(out, "%-10s %s\n", m.Type, m.Name)
			}
			return nil
		},
	}
}

// resolveConfig layers defaults, environment, the config file and explicitly
// set flags, in that order.
func resolveConfig(cmd *cobra.Command, path string, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}
	if path != "" {
		fileCfg, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg.Merge(fileCfg)
	}

	fl := cmd.Flags()
	if fl.Changed("port") {
		cfg.Port, _ = fl.GetInt("port")
	}
	if fl.Changed("host") {
		cfg.Host, _ = fl.GetString("host")
	}
	if fl.Changed("models-dir") {
		cfg.ModelsDir, _ = fl.GetString("models-dir")
	}
	if fl.Changed("log-level") {
		cfg.LogLevel, _ = fl.GetString("log-level")
	}
	if fl.Changed("log-format") {
		cfg.LogFormat, _ = fl.GetString("log-format")
	}
	if fl.Changed("idle-ttl") {
		cfg.IdleTTLMinutes, _ = fl.GetInt("idle-ttl")
	}
	if fl.Changed("sweep-interval") {
		cfg.SweepIntervalMinutes, _ = fl.GetInt("sweep-interval")
	}
	if fl.Changed("session-ttl") {
		cfg.SessionTTLMinutes, _ = fl.GetInt("session-ttl")
	}
	if fl.Changed("session-history-chars") {
		cfg.SessionHistoryChars, _ = fl.GetInt("session-history-chars")
	}
	if fl.Changed("max-body-bytes") {
		cfg.MaxBodyBytes, _ = fl.GetInt64("max-body-bytes")
	}
	if fl.Changed("cors-origins") {
		v, _ := fl.GetString("cors-origins")
		cfg.CORSOrigins = splitCSV(v)
	}
	if fl.Changed("llama-ctx") {
		cfg.LlamaContext, _ = fl.GetInt("llama-ctx")
	}
	if fl.Changed("llama-threads") {
		cfg.LlamaThreads, _ = fl.GetInt("llama-threads")
	}
	if fl.Changed("llama-gpu-layers") {
		cfg.LlamaGPULayers, _ = fl.GetInt("llama-gpu-layers")
	}
	return cfg, cfg.Validate()
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
