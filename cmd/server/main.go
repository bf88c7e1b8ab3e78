package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api"
	grpcserver "github.com/therealutkarshpriyadarshi/vocabtree/pkg/api/grpc"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/api/rest"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/config"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/search"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/vocab"
)

var (
	version = api.Version
	commit  = "dev"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version and exit")
		showHelp    = flag.Bool("help", false, "show help and exit")
		configFile  = flag.String("config", "", "path to YAML configuration file (optional)")
		host        = flag.String("host", "", "server host (overrides config/env)")
		port        = flag.Int("port", 0, "gRPC port (overrides config/env)")
		httpPort    = flag.Int("http-port", 0, "REST port (overrides config/env)")
		treePath    = flag.String("tree", "", "vocabulary tree file (overrides config/env)")
		invPath     = flag.String("inv", "", "inverted index file (overrides config/env)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Vocabulary Tree Server v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if *showHelp {
		showUsage()
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *httpPort > 0 {
		cfg.Server.HTTPPort = *httpPort
	}
	if *treePath != "" {
		cfg.Database.TreePath = *treePath
	}
	if *invPath != "" {
		cfg.Database.InvertedPath = *invPath
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", map[string]interface{}{"error": err})
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	metrics := observability.NewMetrics()

	db, err := loadDatabase(cfg, logger, metrics)
	if err != nil {
		return err
	}

	norm, _ := bow.ParseNormType(cfg.Database.Norm)
	scorerCfg := search.ScorerConfig{Norm: norm, Metrics: metrics}
	if cfg.Cache.Enabled {
		scorerCfg.CacheCapacity = cfg.Cache.Capacity
		scorerCfg.CacheTTL = cfg.Cache.TTL
	}
	svc := api.NewService(search.NewScorer(db, scorerCfg), logger.WithField("component", "service"))

	grpcSrv, err := grpcserver.NewServer(cfg, svc, logger.WithField("component", "grpc"), metrics)
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}
	if err := grpcSrv.Start(); err != nil {
		return err
	}

	restSrv := rest.NewServer(rest.ConfigFrom(cfg), svc, logger.WithField("component", "rest"), metrics)
	restErr := make(chan error, 1)
	go func() {
		restErr <- restSrv.Start()
	}()

	logger.Info("Server is ready", map[string]interface{}{
		"grpc_address": cfg.Server.Address(),
		"http_address": cfg.Server.HTTPAddress(),
		"images":       db.Len(),
		"words":        db.Tree().Size(),
		"cache":        cfg.Cache.Enabled,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal", map[string]interface{}{"signal": sig.String()})
	case err := <-restErr:
		if err != nil {
			logger.Error("REST server stopped", map[string]interface{}{"error": err})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := restSrv.Stop(ctx); err != nil {
		logger.Warn("REST shutdown error", map[string]interface{}{"error": err})
	}
	if err := grpcSrv.Stop(); err != nil {
		logger.Warn("gRPC shutdown error", map[string]interface{}{"error": err})
	}

	logger.Info("Server stopped")
	return nil
}

// loadDatabase loads the tree and the inverted index, plus the direct index
// when its file exists
func loadDatabase(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*bow.Database, error) {
	tree, err := vocab.Load(cfg.Database.TreePath)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	metrics.UpdateTree(tree.Nodes(), tree.Size())

	db := bow.New(tree,
		bow.WithLogger(logger.WithField("component", "database")),
		bow.WithMetrics(metrics),
		bow.WithWorkers(cfg.Database.Workers),
	)
	if err := db.LoadInvertedIndex(cfg.Database.InvertedPath); err != nil {
		return nil, fmt.Errorf("load inverted index: %w", err)
	}

	if cfg.Database.DirectPath != "" {
		if _, err := os.Stat(cfg.Database.DirectPath); err == nil {
			if err := db.LoadDirectIndex(cfg.Database.DirectPath); err != nil {
				return nil, fmt.Errorf("load direct index: %w", err)
			}
		}
	}

	if db.Phase() != bow.Normalized {
		logger.Warn("Serving a database that is not normalized", map[string]interface{}{
			"phase": db.Phase().String(),
		})
	}
	return db, nil
}

func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.LoadFromEnv(), nil
}

func showUsage() {
	fmt.Println("Vocabulary Tree Server - bag-of-words image retrieval over gRPC and REST")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vocab-server [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -help             Show this help message")
	fmt.Println("  -version          Show version information")
	fmt.Println("  -config PATH      Path to configuration file (YAML)")
	fmt.Println("  -host HOST        Server host (default: 0.0.0.0)")
	fmt.Println("  -port PORT        gRPC port (default: 50051)")
	fmt.Println("  -http-port PORT   REST port (default: 8080)")
	fmt.Println("  -tree PATH        Vocabulary tree (.yaml.gz)")
	fmt.Println("  -inv PATH         Inverted index (.yaml.gz)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  VOCAB_HOST, VOCAB_PORT, VOCAB_HTTP_PORT   Listen addresses")
	fmt.Println("  VOCAB_TREE_PATH, VOCAB_INVERTED_PATH      Database files")
	fmt.Println("  VOCAB_DIRECT_PATH                         Optional direct index")
	fmt.Println("  VOCAB_NORM                                Scoring norm (l1/l2)")
	fmt.Println("  VOCAB_CACHE_ENABLED, VOCAB_CACHE_CAPACITY, VOCAB_CACHE_TTL")
	fmt.Println("  VOCAB_AUTH_ENABLED, VOCAB_JWT_SECRET      Bearer token auth")
	fmt.Println("  VOCAB_RATE_LIMIT_ENABLED, VOCAB_RATE_LIMIT_RPS, VOCAB_RATE_LIMIT_BURST")
	fmt.Println("  VOCAB_LOG_LEVEL, VOCAB_LOG_FORMAT         Logging")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  vocab-server -tree tree.yaml.gz -inv inv.yaml.gz")
	fmt.Println("  VOCAB_PORT=9090 vocab-server -config vocab.yaml")
	fmt.Println()
}
