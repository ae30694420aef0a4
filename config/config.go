package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/TillBeemelmanns/PDFCompare/internal/pipeline"
)

// AppConfig holds the application-level configuration
type AppConfig struct {
	CacheDir         string `mapstructure:"cache_dir"`
	ParallelismRatio int    `mapstructure:"parallelism_ratio"`
	SeedSize         int    `mapstructure:"seed_size"`
	MergeGap         int    `mapstructure:"merge_gap"`
	Mode             string `mapstructure:"mode"`
	SmithWaterman    bool   `mapstructure:"smith_waterman"`
	ContextLookahead int    `mapstructure:"context_lookahead"`
	Port             int    `mapstructure:"port"`
}

var Config *AppConfig

// SetCacheDir overrides the cache directory (env/flag layering).
func (c *AppConfig) SetCacheDir(dir string) { c.CacheDir = dir }

// SetPort overrides the server port (env/flag layering).
func (c *AppConfig) SetPort(port int) { c.Port = port }

// Params returns the configured comparison parameters.
func (c *AppConfig) Params() pipeline.Params {
	return pipeline.Params{
		SeedSize:         c.SeedSize,
		MergeGap:         c.MergeGap,
		Mode:             c.Mode,
		SmithWaterman:    c.SmithWaterman,
		ContextLookahead: c.ContextLookahead,
	}
}

// DefaultCacheDir is <home>/.pdfcompare/index_cache; falls back to a
// relative directory when the home directory cannot be resolved.
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".pdfcompare", "index_cache")
	}
	return filepath.Join(home, ".pdfcompare", "index_cache")
}

func LoadConfig(path string) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	viper.SetDefault("cache_dir", DefaultCacheDir())
	viper.SetDefault("parallelism_ratio", 1)
	viper.SetDefault("seed_size", 5)
	viper.SetDefault("merge_gap", 3)
	viper.SetDefault("mode", "exact")
	viper.SetDefault("smith_waterman", true)
	viper.SetDefault("context_lookahead", 10)
	viper.SetDefault("port", 8080)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("⚠️ Could not read config file, using defaults: %v", err)
	}

	var appConfig AppConfig
	if err := viper.Unmarshal(&appConfig); err != nil {
		log.Fatalf("❌ Unable to decode config into struct: %v", err)
	}

	Config = &appConfig

	fmt.Println("✅ Configuration loaded successfully.")
}
