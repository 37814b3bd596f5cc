// Package main is the CLI entry point for the attested inference enclave
// binary: it listens on a vsock port inside the enclave, runs the VRF gate
// on each prompt, conditionally invokes the local model runtime, and
// replies with an attested answer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/virtengine/tee-attest/pkg/attest"
	"github.com/virtengine/tee-attest/pkg/config"
	"github.com/virtengine/tee-attest/pkg/inference"
	"github.com/virtengine/tee-attest/pkg/transport"
)

const (
	flagModuleID   = "module_id"
	flagVsockPort  = "vsock_port"
	flagLogLevel   = "log_level"
	flagConfig     = "config"
	flagBinaryPath = "llama_binary"
	flagModelPath  = "model_path"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "llm-enclave",
	Short: "Attested VRF-gated LLM inference enclave service",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the inference enclave service",
	RunE:  runEnclave,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, flagConfig, "", "config file")
	runCmd.Flags().String(flagModuleID, "llm-enclave", "module identifier used in simulated PCR derivation")
	runCmd.Flags().Uint32(flagVsockPort, 5006, "vsock port to listen on")
	runCmd.Flags().String(flagLogLevel, "info", "log level (debug, info, warn, error)")
	runCmd.Flags().String(flagBinaryPath, "/opt/llama/llama-cli", "path to the llama.cpp CLI binary baked into the image")
	runCmd.Flags().String(flagModelPath, "/opt/llama/model.gguf", "path to the GGUF model file")

	_ = viper.BindPFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
	viper.SetEnvPrefix("LLM_ENCLAVE")
	viper.AutomaticEnv()
}

func runEnclave(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadEnclaveConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("llm-enclave: load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "llm-enclave").Logger().Level(level)

	asm := attest.NewASM(cfg.ModuleID, logger)
	if err := asm.Init(); err != nil {
		return fmt.Errorf("llm-enclave: init attestation module: %w", err)
	}
	defer asm.Release()

	binaryPath := viper.GetString(flagBinaryPath)
	modelPath := viper.GetString(flagModelPath)
	generator := inference.NewCLIGenerator(binaryPath, modelPath, inference.DefaultSessionParams(runtime.NumCPU()))

	svc := inference.NewService(asm, generator, logger)

	ln, err := vsock.Listen(cfg.VsockPort, nil)
	if err != nil {
		return fmt.Errorf("llm-enclave: listen on vsock port %d: %w", cfg.VsockPort, err)
	}
	listener := transport.NewListener(ln, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("llm-enclave: shutdown signal received")
		cancel()
	}()

	logger.Info().Uint32("vsock_port", cfg.VsockPort).Str("module_id", cfg.ModuleID).Msg("llm-enclave: listening")
	if err := listener.Serve(ctx, svc.Worker()); err != nil {
		return fmt.Errorf("llm-enclave: serve: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
