// Package main is the CLI entry point for the Verifiable Logical Clock
// enclave binary: it listens on a vsock port inside the enclave, verifies
// inbound clock updates, and replies with a freshly attested merged clock.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/virtengine/tee-attest/pkg/attest"
	"github.com/virtengine/tee-attest/pkg/config"
	"github.com/virtengine/tee-attest/pkg/transport"
	"github.com/virtengine/tee-attest/pkg/vlc"
)

const (
	flagModuleID  = "module_id"
	flagVsockPort = "vsock_port"
	flagLogLevel  = "log_level"
	flagConfig    = "config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vlc-enclave",
	Short: "Verifiable Logical Clock attested enclave service",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the VLC enclave service",
	RunE:  runEnclave,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, flagConfig, "", "config file")
	runCmd.Flags().String(flagModuleID, "vlc-enclave", "module identifier used in simulated PCR derivation")
	runCmd.Flags().Uint32(flagVsockPort, 5005, "vsock port to listen on")
	runCmd.Flags().String(flagLogLevel, "info", "log level (debug, info, warn, error)")

	_ = viper.BindPFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
	viper.SetEnvPrefix("VLC_ENCLAVE")
	viper.AutomaticEnv()
}

func runEnclave(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadEnclaveConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("vlc-enclave: load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "vlc-enclave").Logger().Level(level)

	asm := attest.NewASM(cfg.ModuleID, logger)
	if err := asm.Init(); err != nil {
		return fmt.Errorf("vlc-enclave: init attestation module: %w", err)
	}
	defer asm.Release()

	// PCR0/1/2 are cached once, here, straight from the ASM the image just
	// opened — never from operator-supplied config, which is untrusted
	// input from the enclave's point of view and could otherwise be used
	// to pin any PCR policy an attacker likes.
	pcrs := make(map[int][]byte, 3)
	for _, idx := range []int{attest.PCRIndexEIF, attest.PCRIndexKernel, attest.PCRIndexApp} {
		pcr, err := asm.DescribePCR(idx)
		if err != nil {
			return fmt.Errorf("vlc-enclave: describe pcr%d: %w", idx, err)
		}
		pcrs[idx] = pcr
	}

	// The only ASM implementation in this tree always runs in self-signed
	// simulation mode, so the verifier's trust root has to be the ASM's own
	// certificate: the embedded real AWS Nitro root can never validate a
	// simulated document, which would make every non-genesis Update fail.
	rootCAPEM, err := asm.SigningCertificatePEM()
	if err != nil {
		return fmt.Errorf("vlc-enclave: read asm signing certificate: %w", err)
	}
	verifier, err := attest.NewVerifier(attest.VerifierConfig{RootCAPEM: rootCAPEM, MaxDocumentAge: cfg.MaxDocumentAge}, logger)
	if err != nil {
		return fmt.Errorf("vlc-enclave: construct verifier: %w", err)
	}

	svc := vlc.NewService(asm, verifier, pcrs, logger)

	ln, err := vsock.Listen(cfg.VsockPort, nil)
	if err != nil {
		return fmt.Errorf("vlc-enclave: listen on vsock port %d: %w", cfg.VsockPort, err)
	}
	listener := transport.NewListener(ln, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("vlc-enclave: shutdown signal received")
		cancel()
	}()

	logger.Info().Uint32("vsock_port", cfg.VsockPort).Str("module_id", cfg.ModuleID).Msg("vlc-enclave: listening")
	if err := listener.Serve(ctx, svc.Worker()); err != nil {
		return fmt.Errorf("vlc-enclave: serve: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
