// Package main is the CLI entry point for the host-side portal process: it
// dials into the VLC and inference enclaves over vsock, exposes an
// operator-facing HTTP façade, and optionally streams a dispatcher
// heartbeat and opens an audit store; no request path writes audit records
// to that store. None of this runs
// inside the enclave boundary.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/virtengine/tee-attest/pkg/collaborators"
	"github.com/virtengine/tee-attest/pkg/config"
	"github.com/virtengine/tee-attest/pkg/inference"
	"github.com/virtengine/tee-attest/pkg/transport"
	"github.com/virtengine/tee-attest/pkg/vlc"
)

const (
	flagConfig          = "config"
	flagCID             = "cid"
	flagVLCPort         = "vlc_port"
	flagLLMPort         = "llm_port"
	flagHTTPAddr        = "http_addr"
	flagLogLevel        = "log_level"
	flagDispatcherURL   = "dispatcher_url"
	flagAuditDSN        = "audit_dsn"
	flagDialTimeout     = "dial_timeout"
	flagRequestTimeout  = "request_timeout"
	flagHeartbeatPeriod = "heartbeat_period"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Host-side portal bridging enclave vsock services to the outside world",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the portal process",
	RunE:  runPortal,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, flagConfig, "", "config file")
	runCmd.Flags().Uint32(flagCID, 3, "vsock context id of the enclave host")
	runCmd.Flags().Uint32(flagVLCPort, 5005, "vsock port of the VLC enclave")
	runCmd.Flags().Uint32(flagLLMPort, 5006, "vsock port of the inference enclave")
	runCmd.Flags().String(flagHTTPAddr, ":8080", "operator HTTP listen address")
	runCmd.Flags().String(flagLogLevel, "info", "log level (debug, info, warn, error)")
	runCmd.Flags().String(flagDispatcherURL, "", "dispatcher heartbeat websocket URL (optional)")
	runCmd.Flags().String(flagAuditDSN, "", "Postgres DSN for the audit log (optional)")
	runCmd.Flags().Duration(flagDialTimeout, 5*time.Second, "vsock dial timeout")
	runCmd.Flags().Duration(flagRequestTimeout, 10*time.Second, "per-request enclave call timeout for the operator http routes")
	runCmd.Flags().Duration(flagHeartbeatPeriod, 30*time.Second, "dispatcher heartbeat interval")

	_ = viper.BindPFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
	viper.SetEnvPrefix("PORTAL")
	viper.AutomaticEnv()
}

func vlcExtractor(reply []byte) (uint64, error) {
	r, err := vlc.DecodeUpdateReply(reply)
	if err != nil {
		return 0, fmt.Errorf("portal: decode vlc reply: %w", err)
	}
	return r.ID, nil
}

func inferenceExtractor(reply []byte) (uint64, error) {
	r, err := inference.DecodeAnswerResp(reply)
	if err != nil {
		return 0, fmt.Errorf("portal: decode inference reply: %w", err)
	}
	return inference.CorrelationID(r.RequestID), nil
}

func runPortal(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadPortalConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("portal: load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "portal").Logger().Level(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vlcPort := viper.GetUint32(flagVLCPort)
	llmPort := viper.GetUint32(flagLLMPort)

	// DialTimeout times the retry attempt count bounds one shared deadline
	// for dialing both enclaves; individual attempts have no separate bound.
	// DialWithRetry provides the backoff loop across attempts while the
	// enclave listener is still coming up.
	retryCfg := transport.DefaultDialRetryConfig()

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.DialTimeout*time.Duration(retryCfg.MaxAttempts))
	defer dialCancel()

	vlcPortal, err := transport.DialWithRetry(dialCtx, cfg.CID, vlcPort, retryCfg, logger.With().Str("portal", "vlc").Logger())
	if err != nil {
		return fmt.Errorf("portal: dial vlc enclave: %w", err)
	}
	vlcPortal.Start(ctx, vlcExtractor)
	defer vlcPortal.Close()

	llmPortal, err := transport.DialWithRetry(dialCtx, cfg.CID, llmPort, retryCfg, logger.With().Str("portal", "llm").Logger())
	if err != nil {
		return fmt.Errorf("portal: dial inference enclave: %w", err)
	}
	llmPortal.Start(ctx, inferenceExtractor)
	defer llmPortal.Close()

	var audit *collaborators.AuditStore
	if dsn := viper.GetString(flagAuditDSN); dsn != "" {
		audit, err = collaborators.OpenAuditStore(dsn)
		if err != nil {
			return fmt.Errorf("portal: open audit store: %w", err)
		}
		defer audit.Close()
	}

	if dispatcherURL := viper.GetString(flagDispatcherURL); dispatcherURL != "" {
		dispatcher, err := collaborators.DialDispatcher(ctx, dispatcherURL, "portal", nil, logger.With().Str("collaborator", "dispatcher").Logger())
		if err != nil {
			return fmt.Errorf("portal: dial dispatcher: %w", err)
		}
		go dispatcher.Run(ctx, viper.GetDuration(flagHeartbeatPeriod))
	}

	status := func() collaborators.OperatorStatus {
		return collaborators.OperatorStatus{ModuleID: "portal", Healthy: true, CheckedAt: time.Now()}
	}
	router := collaborators.NewOperatorRouter(status, vlcPortal, llmPortal, cfg.RequestTimeout, logger.With().Str("collaborator", "operator-http").Logger())

	httpAddr := viper.GetString(flagHTTPAddr)
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpAddr).Msg("portal: operator http listening")
		errCh <- httpListenAndServe(ctx, httpAddr, router)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("portal: shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("portal: operator http server exited")
		}
	}
	cancel()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// httpListenAndServe runs an HTTP server on addr until ctx is canceled.
func httpListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
