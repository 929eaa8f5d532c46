package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/params"
	"github.com/uhyunpark/spotdex/pkg/api"
	"github.com/uhyunpark/spotdex/pkg/app"
	"github.com/uhyunpark/spotdex/pkg/exchange"
	"github.com/uhyunpark/spotdex/pkg/ledger"
	"github.com/uhyunpark/spotdex/pkg/storage"
	"github.com/uhyunpark/spotdex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Setup logging (console, plus file when configured)
	var logger *zap.Logger
	var err error
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Storage ----
	var store *storage.Store
	if cfg.Node.DataDir != "" {
		store, err = storage.NewStore(cfg.Node.DataDir)
		if err != nil {
			sugar.Fatalw("storage_init_failed", "dir", cfg.Node.DataDir, "err", err)
		}
		defer store.Close()
	} else {
		sugar.Warn("no data dir configured, running in-memory only")
	}

	// ---- Ledger and bank ----
	var ledgerStore ledger.Store
	var bankStore ledger.BankStore
	if store != nil {
		ledgerStore = store
		bankStore = store
	}
	ldg := ledger.NewLedger(sugar, ledgerStore)
	bank := ledger.NewBank(sugar, bankStore)

	// ---- Exchange engines ----
	accounts := cfg.Exchange.Accounts()
	thresholds := cfg.Exchange.Thresholds()

	var persistence exchange.Persistence
	if store != nil {
		persistence = store
	}

	notifier := exchange.FanoutNotifier{exchange.LogNotifier{Log: sugar}}

	token := exchange.NewEngine(app.EngineToken, sugar,
		exchange.TokenBinder{Ledger: ldg}, accounts, thresholds, notifier, persistence)
	native := exchange.NewEngine(app.EngineNative, sugar,
		exchange.NativeBinder{Bank: bank, Ledger: ldg}, accounts, thresholds, notifier, persistence)

	// ---- App ----
	node := app.New(sugar, util.RealClock{}, cfg.Node.CycleInterval,
		ldg, bank, token, native, store, cfg.Exchange.Admin)
	if err := node.Restore(); err != nil {
		sugar.Fatalw("restore_failed", "err", err)
	}

	// ---- API server ----
	apiServer := api.NewServer(sugar, node)

	// Feed engine events to WebSocket subscribers.
	notifier = append(notifier, apiServer.Notifier())
	token.SetNotifier(notifier)
	native.SetNotifier(notifier)

	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"height", node.Height(),
		"cycle_interval", cfg.Node.CycleInterval,
		"admin", cfg.Exchange.Admin.Hex())

	go node.Run()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	sugar.Info("shutting down")
	node.Stop()
}
