package configs

import (
	"flag"
	"os"

	"github.com/marloweh/tutti/internal/infrastructure/env"
)

// DetermineConfigPath resolves the config file from the --config flag, the
// TUTTI_CONFIG env var, or a set of conventional locations. An empty return
// means "run on defaults".
func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("TUTTI_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"/etc/tutti/config.yaml",
			"/app/config.yaml", // common in Docker
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
