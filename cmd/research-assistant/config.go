// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-assistant/internal/secrets"
	"github.com/pdiddy/research-assistant/pkg/types"
)

const (
	envPrefix  = "RESEARCH_ASSISTANT"
	configName = "research-assistant"
)

// configDirs lists the directories searched for configName.yaml, in order.
func configDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", configName))
	}
	return dirs
}

func configSearchPaths() []string {
	var paths []string
	for _, dir := range configDirs() {
		paths = append(paths, filepath.Join(dir, configName+".yaml"))
	}
	return paths
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
		for _, dir := range configDirs() {
			viper.AddConfigPath(dir)
		}
	}

	configureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig layers defaults, the config file, environment variables and the
// secrets directory, in increasing precedence except that secrets only fill
// fields left empty.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := registerDefaults(v, cfg); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg, decodeWithYAMLTags); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}

	dir, _ := cmd.Flags().GetString("secrets-dir")
	s, err := secrets.Load(dir, logger)
	if err != nil {
		return cfg, err
	}
	if len(s) > 0 {
		logger.Debug("secrets loaded", zap.Int("count", len(s)), zap.String("dir", dir))
	}
	s.Apply(&cfg)
	return cfg, nil
}

// decodeWithYAMLTags makes viper honor the yaml struct tags used by
// pkg/types, including inlined embedded structs.
func decodeWithYAMLTags(dc *mapstructure.DecoderConfig) {
	dc.TagName = "yaml"
	dc.Squash = true
}

// registerDefaults declares every configuration key with its default value
// so that environment variables can override keys absent from the file.
func registerDefaults(v *viper.Viper, cfg types.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding default configuration: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decoding default configuration: %w", err)
	}
	setDefaults(v, "", tree)
	for _, key := range optionalKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// optionalKeys have no default and are omitted when encoding the defaults.
var optionalKeys = []string{
	"sources.semantic_scholar_api_key",
	"sources.openalex_email",
	"sources.pubmed_api_key",
	"generation.api_key",
	"generation.base_url",
	"embedding.api_key",
	"embedding.base_url",
	"embedding.cache_path",
	"rank.vespa_url",
	"rank.vespa_config_url",
	"rank.pgvector_dsn",
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}
