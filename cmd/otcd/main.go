package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"otcd/config"
	"otcd/core/events"
	"otcd/core/state"
	"otcd/native/otc"
	"otcd/native/token"
	"otcd/observability/logging"
	"otcd/observability/metrics"
	"otcd/rpc"
	"otcd/storage"
)

// The settlement engine holds custody of escrowed funds under a fixed,
// keyless ledger address.
var custodyAddress = [20]byte{'o', 't', 'c', '/', 'c', 'u', 's', 't', 'o', 'd', 'y'}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("OTCD_ENV"))
	logger := logging.Setup("otcd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Env
	}

	var db storage.Database
	if strings.TrimSpace(cfg.DataDir) == "" {
		logger.Warn("No DataDir configured, state will not survive restarts")
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("Failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		defer leveldb.Close()
		db = leveldb
	}

	mgr := state.NewManager(db)
	registry := token.NewRegistry()
	eventLog := events.NewLog(cfg.EventLogSize)

	engine := otc.NewEngine(custodyAddress, registry)
	engine.SetState(mgr)
	engine.SetEmitter(eventLog)
	engine.SetMetrics(metrics.OTC())

	if err := bootstrap(cfg, mgr, engine, registry, logger); err != nil {
		logger.Error("Failed to bootstrap state", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.New(rpc.Config{Engine: engine, Events: eventLog, Logger: logger})
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
}

// bootstrap registers the configured assets and, on first boot, seeds
// the owner, fee rate and genesis balances. An already initialised
// database keeps its stored owner and rate; the config file only
// supplies them once.
func bootstrap(cfg *config.Config, mgr *state.Manager, engine *otc.Engine, registry *token.Registry, logger *slog.Logger) error {
	tokens := make(map[string]*token.Token, len(cfg.Tokens))
	for _, tokenCfg := range cfg.Tokens {
		ledger, err := token.NewToken(tokenCfg.Symbol, mgr)
		if err != nil {
			return err
		}
		if err := registry.Register(ledger.Symbol(), ledger); err != nil {
			return err
		}
		tokens[ledger.Symbol()] = ledger
	}

	if _, err := mgr.Owner(); err == nil {
		logger.Info("State already initialised, skipping genesis")
		return nil
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		return err
	}
	if err := engine.Initialize(owner, cfg.FeeBps); err != nil {
		return err
	}
	for _, tokenCfg := range cfg.Tokens {
		ledger := tokens[strings.ToUpper(strings.TrimSpace(tokenCfg.Symbol))]
		for _, alloc := range tokenCfg.Genesis {
			account, err := otc.ParseAddress(alloc.Address)
			if err != nil {
				return err
			}
			amount, ok := new(big.Int).SetString(alloc.Amount, 10)
			if !ok {
				return fmt.Errorf("invalid genesis amount %q for %s", alloc.Amount, ledger.Symbol())
			}
			if err := ledger.Mint(account, amount); err != nil {
				return err
			}
		}
	}
	logger.Info("Genesis applied",
		slog.String("owner", otc.FormatAddress(owner)),
		slog.Int("tokens", len(cfg.Tokens)),
		slog.Int("fee_bps", int(cfg.FeeBps)))
	return nil
}
