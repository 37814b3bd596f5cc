// Package config binds the enclave and portal binaries' settings through
// viper: flags override environment variables, which override a config
// file, which overrides the defaults below.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EnclaveConfig configures one attested enclave service (VLC or inference).
// The PCR policy itself is never part of this config: it is read straight
// from the ASM at startup (see runEnclave in cmd/vlc-enclave), since a
// config-sourced policy would let untrusted operator input pin whatever PCR
// values it likes.
type EnclaveConfig struct {
	ModuleID       string        `mapstructure:"module_id"`
	VsockPort      uint32        `mapstructure:"vsock_port"`
	LogLevel       string        `mapstructure:"log_level"`
	MaxDocumentAge time.Duration `mapstructure:"max_document_age"`
}

// DefaultEnclaveConfig matches the reference deployment.
func DefaultEnclaveConfig() EnclaveConfig {
	return EnclaveConfig{
		VsockPort:      5005,
		LogLevel:       "info",
		MaxDocumentAge: 3 * time.Minute,
	}
}

// LoadEnclaveConfig decodes v (already populated from flags, environment,
// and an optional config file) into an EnclaveConfig seeded with defaults.
func LoadEnclaveConfig(v *viper.Viper) (EnclaveConfig, error) {
	cfg := DefaultEnclaveConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return EnclaveConfig{}, fmt.Errorf("config: decode enclave config: %w", err)
	}
	return cfg, nil
}

// PortalConfig configures a host-side portal client dialing into one
// enclave over vsock.
type PortalConfig struct {
	CID            uint32        `mapstructure:"cid"`
	Port           uint32        `mapstructure:"port"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LogLevel       string        `mapstructure:"log_level"`
}

// DefaultPortalConfig matches the reference deployment: CID 3 is the first
// enclave slot on a single-enclave host.
func DefaultPortalConfig() PortalConfig {
	return PortalConfig{
		CID:            3,
		Port:           5005,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 10 * time.Second,
		LogLevel:       "info",
	}
}

// LoadPortalConfig decodes v into a PortalConfig seeded with defaults.
func LoadPortalConfig(v *viper.Viper) (PortalConfig, error) {
	cfg := DefaultPortalConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return PortalConfig{}, fmt.Errorf("config: decode portal config: %w", err)
	}
	return cfg, nil
}
