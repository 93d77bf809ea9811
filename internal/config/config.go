package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Listen     string `json:"listen"`
	LogLevel   string `json:"log_level"`
	Inactivity struct {
		ReminderSeconds int `json:"reminder_seconds"`
		EndCallSeconds  int `json:"end_call_seconds"`
	} `json:"inactivity"`
	Cache struct {
		Driver     string `json:"driver"`
		TTLSeconds int    `json:"ttl_seconds"`
		RedisAddr  string `json:"redis_addr"`
	} `json:"cache"`
	AWS struct {
		Region          string `json:"region"`
		AgentsTable     string `json:"agents_table"`
		AnalyticsTable  string `json:"analytics_table"`
		SummariesTable  string `json:"summaries_table"`
		SummaryBucket   string `json:"summary_bucket"`
		APIKeyParameter string `json:"api_key_parameter"`
	} `json:"aws"`
	Realtime struct {
		BaseURL      string  `json:"base_url"`
		Model        string  `json:"model"`
		APIKey       string  `json:"api_key"`
		DefaultVoice string  `json:"default_voice"`
		Temperature  float64 `json:"temperature"`
	} `json:"realtime"`
	Summary struct {
		Model               string `json:"model"`
		MaxTranscriptTokens int    `json:"max_transcript_tokens"`
		Workers             int    `json:"workers"`
	} `json:"summary"`
	MaintenanceSchedule string `json:"maintenance_schedule"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Listen = ":8080"
	cfg.LogLevel = "info"
	cfg.Inactivity.ReminderSeconds = 20
	cfg.Inactivity.EndCallSeconds = 40
	cfg.Cache.Driver = "memory"
	cfg.Cache.TTLSeconds = 300
	cfg.AWS.Region = "us-east-1"
	cfg.AWS.AgentsTable = "voiceline-agents"
	cfg.AWS.AnalyticsTable = "voiceline-call-analytics"
	cfg.AWS.SummariesTable = "voiceline-call-summaries"
	cfg.AWS.SummaryBucket = "voiceline-call-summaries"
	cfg.AWS.APIKeyParameter = "/voiceline/openai-api-key"
	cfg.Realtime.BaseURL = "wss://api.openai.com/v1/realtime"
	cfg.Realtime.Model = "gpt-4o-realtime-preview"
	cfg.Realtime.DefaultVoice = "sage"
	cfg.Realtime.Temperature = 0.7
	cfg.Summary.Model = "gpt-4o-mini"
	cfg.Summary.MaxTranscriptTokens = 6000
	cfg.Summary.Workers = 2
	cfg.MaintenanceSchedule = "* * * * *"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.Realtime.APIKey = apiKey
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.Listen = addr
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.RedisAddr = addr
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWS.Region = region
	}
	if v := os.Getenv("INACTIVITY_REMINDER_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Inactivity.ReminderSeconds = n
		}
	}
	if v := os.Getenv("INACTIVITY_END_CALL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Inactivity.EndCallSeconds = n
		}
	}

	if cfg.Inactivity.EndCallSeconds <= cfg.Inactivity.ReminderSeconds {
		return nil, fmt.Errorf("inactivity end_call_seconds (%d) must exceed reminder_seconds (%d)",
			cfg.Inactivity.EndCallSeconds, cfg.Inactivity.ReminderSeconds)
	}

	return cfg, nil
}

// Save writes the config as indented JSON via a temp file and rename, so a
// crash mid-write never leaves a truncated config behind.
func Save(path string, cfg *Config) error {
	return writeDefaults(path, cfg)
}

// ToMap round-trips the config through JSON into a nested map, the form the
// flatten helpers and the config CLI operate on.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns the config as a flat dot-separated key map. With mask
// set, secret values are shown as "***" plus their last 4 characters.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue loads the config at path and returns the value for the given
// dot-separated key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue updates one dot-separated key in the config file. The raw value is
// parsed as JSON when possible (numbers, booleans), otherwise stored as a
// string. The file must already exist.
func SetValue(path, key, raw string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	flat := Flatten(m)
	flat[key] = value
	out, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	out = append(out, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
