package pathing

import (
	"os"
	"path/filepath"
)

const (
	configDirEnv = "P1LM_CONFIG_DIR"
	dataDirEnv   = "P1LM_DATA_DIR"
)

// EnsureDirs creates the config and data directories when they are missing.
func EnsureDirs() error {
	for _, dir := range []string{GetConfigDir(), GetDataDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func GetMeterDbPath() string {
	return filepath.Join(GetDataDir(), "p1-meter.db")
}

func GetDataDir() string {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return dir
	}
	return "/var/lib/p1_load_monitor"
}

func GetConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}
	return "/etc/p1_load_monitor"
}
