package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Backend names a detector implementation
const (
	BackendInference = "inference"
	BackendOllama    = "ollama"
)

// Settings hold process-level options taken from the environment, as opposed
// to the per-run JSON configuration.
type Settings struct {
	ProjectRoot  string
	Backend      string
	InferenceURL string
	OllamaURL    string
	OllamaModel  string
	// Accelerators overrides the backend's device count when >= 0
	Accelerators int
	Debug        bool
}

// LoadSettings reads envFile into the environment (missing file is fine,
// variables already set win) and builds Settings with defaults.
func LoadSettings(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Settings{}, errors.Wrapf(err, "load %s", envFile)
		}
	}

	s := Settings{
		ProjectRoot:  getEnv("PROJECT_ROOT", "."),
		Backend:      getEnv("DETECTOR_BACKEND", BackendInference),
		InferenceURL: getEnv("INFERENCE_URL", "http://localhost:8000"),
		OllamaURL:    getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:  getEnv("OLLAMA_MODEL", "qwen2.5vl:7b"),
		Accelerators: getEnvAsInt("ACCELERATOR_COUNT", -1),
		Debug:        getEnv("DEBUG", "") == "true",
	}

	switch s.Backend {
	case BackendInference, BackendOllama:
	default:
		return Settings{}, errors.Errorf("unknown DETECTOR_BACKEND %q (use %q or %q)", s.Backend, BackendInference, BackendOllama)
	}
	return s, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
