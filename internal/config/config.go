package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var envOnce sync.Once

// LoadEnv loads environment variables from a .env file in the working
// directory or its parent, once per process. Variables already set in the
// environment win. It returns the file that was loaded, or "" if none was found.
func LoadEnv() (string, error) {
	var (
		loaded string
		err    error
	)
	envOnce.Do(func() {
		loaded, err = loadEnvFrom(".env", filepath.Join("..", ".env"))
	})
	return loaded, err
}

func loadEnvFrom(candidates ...string) (string, error) {
	for _, envFile := range candidates {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return "", err
		}
		return envFile, nil
	}
	return "", nil
}

// GetEnv retrieves an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}
