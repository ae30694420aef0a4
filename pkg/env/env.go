package env

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables honoured by pdfcompare. They sit between the
// config file and command-line flags: an env value overrides the config
// file, a flag overrides both.
const (
	CacheDirVar = "PDFCOMPARE_CACHE_DIR"
	DebugVar    = "PDFCOMPARE_DEBUG"
	PortVar     = "PDFCOMPARE_PORT"
)

var knownVars = []string{CacheDirVar, DebugVar, PortVar}

// Overridable is the subset of the app config that env vars may override.
type Overridable interface {
	SetCacheDir(dir string)
	SetPort(port int)
}

func LoadEnv() {
	err := godotenv.Load()

	if err != nil {
		log.Println("⚠️  No .env file found, using system envs")
	}
	for _, key := range knownVars {
		if value, exist := os.LookupEnv(key); exist {
			log.Printf("env override: %s=%s", key, value)
		}
	}
}

// ApplyOverrides pushes any set PDFCOMPARE_* variables into the config.
func ApplyOverrides(cfg Overridable) {
	if dir := GetEnv(CacheDirVar, ""); dir != "" {
		cfg.SetCacheDir(dir)
	}
	if port := GetEnvInt(PortVar, 0); port > 0 {
		cfg.SetPort(port)
	}
}

func GetEnv(key string, fallback string) string {
	if value, exist := os.LookupEnv(key); exist {
		return value
	}
	return fallback
}

func GetEnvBool(key string, fallback bool) bool {
	value, exist := os.LookupEnv(key)
	if !exist {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("⚠️  %s=%q is not a boolean, ignoring", key, value)
		return fallback
	}
	return parsed
}

func GetEnvInt(key string, fallback int) int {
	value, exist := os.LookupEnv(key)
	if !exist {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("⚠️  %s=%q is not an integer, ignoring", key, value)
		return fallback
	}
	return parsed
}
