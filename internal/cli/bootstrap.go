package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lens/internal/cache"
	"lens/internal/contract"
	"lens/internal/llm"
	"lens/internal/model"
	"lens/internal/modules"
	"lens/internal/pipeline"
	"lens/internal/source"
	"lens/internal/store"
	"lens/internal/worker"
)

// loadConfig layers viper values over the built-in defaults.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()

	if v := viper.GetDuration("http.timeout"); v > 0 {
		cfg.HTTP.Timeout = v
	}
	if v := viper.GetString("http.user_agent"); v != "" {
		cfg.HTTP.UserAgent = v
	}
	if v := viper.GetInt64("http.max_body_bytes"); v > 0 {
		cfg.HTTP.MaxBodyBytes = v
	}
	if viper.IsSet("http.respect_robots") {
		cfg.HTTP.RespectRobots = viper.GetBool("http.respect_robots")
	}
	if v := viper.GetInt("concurrency.fetch_workers"); v > 0 {
		cfg.Concurrency.FetchWorkers = v
	}
	if viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	}
	if v := viper.GetString("cache.dir"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := viper.GetDuration("cache.ttl"); v > 0 {
		cfg.Cache.TTL = v
	}
	if v := viper.GetString("llm.provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetString("llm.base_url"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := viper.GetString("storage.path"); v != "" {
		cfg.Storage.Path = v
	}
	if v := viper.GetFloat64("budget.ceiling"); v > 0 {
		cfg.Budget.Ceiling = v
	}
	cfg.Output.Verbose = verbose

	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg
}

// buildLogger returns the run logger: console at info, debug when verbose.
func buildLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

// runtime bundles everything a command needs after bootstrap.
type runtime struct {
	cfg      *model.Config
	ec       contract.ExecutionContext
	registry *source.Registry
	fetchers source.FetcherSet
	runner   *pipeline.Runner
	store    *store.Store
	logger   *zap.Logger
}

func (rt *runtime) close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
}

// contractIDFromPath derives the default contract id from the file name.
func contractIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// bootstrap loads the registry and contract, then wires the pipeline. A
// contract gate failure returns the gate error unwrapped so the command
// exits non-zero with the gate number and offending reference visible.
func bootstrap(contractPath, contractID, sourcesPath string) (*runtime, error) {
	cfg := loadConfig()

	logger, err := buildLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	registry, err := source.LoadRegistry(sourcesPath)
	if err != nil {
		return nil, err
	}

	if contractID == "" {
		contractID = contractIDFromPath(contractPath)
	}
	c, err := contract.LoadFile(contractPath, contractID, registry.IDs())
	if err != nil {
		return nil, err
	}
	ec := contract.NewExecutionContext(c)

	limiter := worker.NewLimiter(5, 3)
	for _, id := range registry.IDs() {
		spec, _ := registry.Get(id)
		if spec.RatePerSec > 0 {
			limiter.SetSourceRate(id, spec.RatePerSec, 0)
		}
	}

	fetchers := source.NewFetcherSet(registry, source.HTTPOptions{
		Timeout:       cfg.HTTP.Timeout,
		UserAgent:     cfg.HTTP.UserAgent,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		RespectRobots: cfg.HTTP.RespectRobots,
		Limiter:       limiter,
	})

	var artifactCache cache.Cache
	if cfg.Cache.Enabled {
		dir := cfg.Cache.Dir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err == nil {
				dir = filepath.Join(home, ".lens", "cache")
			}
		}
		if dir != "" {
			artifactCache = cache.NewLayeredCache(10*time.Minute, dir, cfg.Cache.TTL)
		}
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	runner, err := pipeline.NewRunner(ec, pipeline.Options{
		Registry: registry,
		Fetchers: fetchers,
		Ledger:   source.NewBudgetLedger(cfg.Budget.Ceiling),
		Pool:     worker.NewPool(cfg.Concurrency.FetchWorkers),
		Cache:    artifactCache,
		Store:    st,
		Modules:  modules.NewEngine(provider, logger),
		Logger:   logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		ec:       ec,
		registry: registry,
		fetchers: fetchers,
		runner:   runner,
		store:    st,
		logger:   logger,
	}, nil
}
