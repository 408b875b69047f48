package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	MeterAPIConfigFile = "p1_api.toml"
	TailConfigFile     = "meter_tail.toml"
)

var ErrInvalidConfig = errors.New("invalid config")

func DefaultMeterAPIConfig() *MeterAPIConfig {
	return &MeterAPIConfig{
		LogLevel:                "info",
		SerialDevice:            "/dev/ttyUSB0",
		Baudrate:                9600,
		DataBits:                7,
		StopBits:                1,
		Parity:                  "even",
		ReadTimeoutSeconds:      15,
		ListenAddress:           "0.0.0.0",
		ListenPort:              9039,
		SolarInverterIp:         "",
		SolarInverterModbusPort: 502,
		WlanConnectionId:        "", // Check with `nmcli device status`
		MqttTopic:               "p1/records",
		MqttClientID:            "p1_load_monitor",
	}
}

func DefaultTailConfig() *TailConfig {
	return &TailConfig{
		APIHost:    "localhost:9039",
		TLSEnabled: false,
	}
}

// LoadMeterAPIConfig reads p1_api.toml from configDir, writing the defaults first if the file is absent.
// Keys missing from an existing file keep their default value.
func LoadMeterAPIConfig(configDir string) (*MeterAPIConfig, error) {
	cfg := DefaultMeterAPIConfig()
	if err := loadOrCreate(filepath.Join(configDir, MeterAPIConfigFile), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadTailConfig(configDir string) (*TailConfig, error) {
	cfg := DefaultTailConfig()
	if err := loadOrCreate(filepath.Join(configDir, TailConfigFile), cfg); err != nil {
		return nil, err
	}
	if cfg.APIHost == "" {
		return nil, fmt.Errorf("%w: api_host is empty", ErrInvalidConfig)
	}
	return cfg, nil
}

func (c *MeterAPIConfig) Validate() error {
	var errs []error
	if c.SerialDevice == "" && c.ReplayFile == "" {
		errs = append(errs, errors.New("serial_device or replay_file must be set"))
	}
	if c.Baudrate == 0 {
		errs = append(errs, errors.New("baudrate must be positive"))
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		errs = append(errs, fmt.Errorf("data_bits %d out of range 5..8", c.DataBits))
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		errs = append(errs, fmt.Errorf("stop_bits %d must be 1 or 2", c.StopBits))
	}
	switch c.Parity {
	case "none", "odd", "even":
	default:
		errs = append(errs, fmt.Errorf("parity %q must be none, odd or even", c.Parity))
	}
	if c.ReadTimeoutSeconds < 0 {
		errs = append(errs, errors.New("read_timeout_seconds must not be negative"))
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("listen_port %d out of range", c.ListenPort))
	}
	if c.MqttBroker != "" && c.MqttTopic == "" {
		errs = append(errs, errors.New("mqtt_topic is required when mqtt_broker is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c *MeterAPIConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

func loadOrCreate(configPath string, cfg any) error {
	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return fmt.Errorf("write default config %s: %w", configPath, err)
		}
		return nil
	}

	// Load existing config on top of the defaults
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, configPath, err)
	}
	return nil
}
