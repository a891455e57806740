package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trueballot/api"
	"trueballot/encryption"
	"trueballot/log"
	"trueballot/models"
	"trueballot/notify"
	"trueballot/service"
	"trueballot/storage"
)

const (
	defaultListenAddr = ":8080"
	defaultDataDir    = "trueballot_data"
	defaultLogLevel   = "info"
	defaultLogOutput  = "stderr"
)

// Config holds the application configuration.
type Config struct {
	ListenAddr string
	DataDir    string
	LogLevel   string
	LogOutput  string
	// AdminTokens entries have the form "token:actor:tier" where tier is
	// admin or super_admin.
	AdminTokens []string
	// Custodians entries have the form "label:name:email"; exactly three
	// are required, labeled A, B and C.
	Custodians []string
}

func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("listen", defaultListenAddr)
	v.SetDefault("datadir", defaultDataDir)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("admin.tokens", []string{})
	v.SetDefault("custodians", []string{
		"A:Custodian A:custodian-a@example.org",
		"B:Custodian B:custodian-b@example.org",
		"C:Custodian C:custodian-c@example.org",
	})

	flag.StringP("listen", "l", defaultListenAddr, "HTTP listen address")
	flag.StringP("datadir", "d", defaultDataDir, "data directory for the ballot database")
	flag.String("log.level", defaultLogLevel, "log level (debug, info, warn, error)")
	flag.String("log.output", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringSlice("admin.tokens", nil, "admin credentials, token:actor:tier")
	flag.StringSlice("custodians", nil, "shard custodians, label:name:email")
	flag.Parse()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("TRUEBALLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Config{
		ListenAddr:  v.GetString("listen"),
		DataDir:     v.GetString("datadir"),
		LogLevel:    v.GetString("log.level"),
		LogOutput:   v.GetString("log.output"),
		AdminTokens: v.GetStringSlice("admin.tokens"),
		Custodians:  v.GetStringSlice("custodians"),
	}, nil
}

func parseAdminTokens(entries []string) (map[string]service.Capability, error) {
	tokens := make(map[string]service.Capability)
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed admin token entry %q, want token:actor:tier", entry)
		}
		tier, err := service.ParseTier(parts[2])
		if err != nil {
			return nil, err
		}
		tokens[parts[0]] = service.Capability{Actor: parts[1], Tier: tier}
	}
	return tokens, nil
}

func parseCustodians(entries []string) ([]models.Custodian, error) {
	custodians := make([]models.Custodian, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed custodian entry %q, want label:name:email", entry)
		}
		custodians = append(custodians, models.Custodian{
			Label: parts[0],
			Name:  parts[1],
			Email: parts[2],
		})
	}
	return custodians, nil
}

func main() {
	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(config.LogLevel, config.LogOutput)

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	store, err := storage.Open(config.DataDir + "/trueballot.db")
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	tokens, err := parseAdminTokens(config.AdminTokens)
	if err != nil {
		log.Fatalf("invalid admin tokens: %v", err)
	}
	custodians, err := parseCustodians(config.Custodians)
	if err != nil {
		log.Fatalf("invalid custodians: %v", err)
	}

	crypto := encryption.NewCryptoService()
	audit := service.NewAuditService(store)
	state := service.NewStateMachine(store, audit)
	metrics := service.NewMetricsCollector()
	election := service.NewElectionService(crypto, store, state, metrics)
	tally := service.NewTallyService(crypto, store, state, audit, metrics)
	reset := service.NewResetService(store, state, audit)

	ceremony, err := service.NewKeyCeremonyService(
		crypto, store, state, audit, notify.NewLogDeliverer(), custodians)
	if err != nil {
		log.Fatalf("failed to set up key ceremony: %v", err)
	}

	server := api.NewServer(api.Deps{
		Authorizer: service.NewStaticAuthorizer(tokens),
		Ceremony:   ceremony,
		Election:   election,
		Tally:      tally,
		State:      state,
		Reset:      reset,
		Audit:      audit,
		Store:      store,
		Metrics:    metrics,
	})

	httpServer := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("listening on %s", config.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
}
