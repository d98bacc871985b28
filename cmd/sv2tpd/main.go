package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"sv2tp/internal/config"
	"sv2tp/internal/httpapi"
	"sv2tp/internal/metrics"
	"sv2tp/internal/noise"
	"sv2tp/internal/rpcnode"
	"sv2tp/internal/tp"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	keystore, err := noise.LoadKeystore(cfg.Sv2StaticKeyPath, cfg.Sv2CertificatePath)
	if err != nil {
		log.Fatalf("load noise keystore: %v", err)
	}

	node, err := rpcnode.New(cfg.NodeRPCURL)
	if err != nil {
		log.Fatalf("init node rpc client: %v", err)
	}
	tipWatcher := rpcnode.NewTipWatcher(node, cfg.TipPollInterval())

	prom, err := metrics.NewPromRecorder("sv2tp")
	if err != nil {
		log.Fatalf("init metrics: %v", err)
	}
	metrics.Default = prom

	srv := tp.NewServer(tp.ServerConfig{
		ListenAddr:             cfg.Sv2Listen,
		ProtocolID:             0x02,
		MinVersion:             cfg.Sv2ProtocolVersion,
		MaxVersion:             cfg.Sv2ProtocolVersion,
		OptionalFeatures:       cfg.Sv2OptionalFeatures,
		DefaultFutureTemplates: cfg.Sv2DefaultFutureTmpl,
		Interval:               cfg.TemplateInterval(),
		FeeDeltaSats:           cfg.Sv2FeeDelta,
		MaxBlockWeight:         cfg.Sv2MaxBlockWeight,
		TipPollInterval:        cfg.TipPollInterval(),
	}, keystore, node, node, node, tipWatcher, prom, log.Default())

	if cfg.AdminListen != "" {
		admin := httpapi.New(srv, prom.Handler())
		go func() {
			log.Printf("admin listening on %s", cfg.AdminListen)
			if err := http.ListenAndServe(cfg.AdminListen, admin.Handler()); err != nil {
				log.Printf("admin server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("template provider server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received, stopping...")
	cancel()
}
