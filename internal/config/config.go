package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	GeneralParams GeneralParams
	StoreParams   StoreParams
	MainDBParams  MainDBParams
	S3Params      S3Params
	OutboxParams  OutboxParams
}

type GeneralParams struct {
	Env         string
	SecretKey   string
	HTTPaddress string
}

type StoreParams struct {
	Backend  string
	Host     string
	Password string
}

type MainDBParams struct {
	Username string
	Password string
	Name     string
	Port     int
	Host     string
	Timeout  int
}

type S3Params struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

type OutboxParams struct {
	BackoffMs        int
	UploadTimeoutSec int
	CommitTimeoutSec int
	ArtifactDir      string
	ChatServerURL    string
	ChatServerToken  string
}

type ConfigManager struct {
	v      *viper.Viper
	config *Config
}

// NewConfigManager creates new config manager that handles
// all viper config options and loads a config from yaml
func NewConfigManager(configPath string) (*ConfigManager, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cm := &ConfigManager{v: v}

	if err := cm.loadConfig(); err != nil {
		return nil, err
	}

	return cm, nil
}

// Extracting data from yaml file and loading into Config
func (cm *ConfigManager) loadConfig() error {
	cm.config = &Config{
		GeneralParams: GeneralParams{
			Env:         cm.v.GetString("general_params.env"),
			SecretKey:   cm.v.GetString("general_params.secret_key"),
			HTTPaddress: cm.v.GetString("general_params.http_server_address"),
		},
		StoreParams: StoreParams{
			Backend:  cm.v.GetString("store_params.backend"),
			Host:     cm.v.GetString("store_params.host"),
			Password: cm.v.GetString("store_params.password"),
		},
		MainDBParams: MainDBParams{
			Username: cm.v.GetString("main_db_params.db_username"),
			Password: cm.v.GetString("main_db_params.db_password"),
			Name:     cm.v.GetString("main_db_params.db_name"),
			Port:     cm.v.GetInt("main_db_params.db_port"),
			Host:     cm.v.GetString("main_db_params.db_host"),
			Timeout:  cm.v.GetInt("main_db_params.db_timeout"),
		},
		S3Params: S3Params{
			Endpoint:        cm.v.GetString("s3_params.endpoint"),
			AccessKeyID:     cm.v.GetString("s3_params.access_key_id"),
			SecretAccessKey: cm.v.GetString("s3_params.secret_access_key"),
			UseSSL:          cm.v.GetBool("s3_params.use_ssl"),
			BucketName:      cm.v.GetString("s3_params.bucket_name"),
		},
		OutboxParams: OutboxParams{
			BackoffMs:        cm.v.GetInt("outbox_params.backoff_ms"),
			UploadTimeoutSec: cm.v.GetInt("outbox_params.upload_timeout_sec"),
			CommitTimeoutSec: cm.v.GetInt("outbox_params.commit_timeout_sec"),
			ArtifactDir:      cm.v.GetString("outbox_params.artifact_dir"),
			ChatServerURL:    cm.v.GetString("outbox_params.chat_server_url"),
			ChatServerToken:  cm.v.GetString("outbox_params.chat_server_token"),
		},
	}
	return nil
}

// Geting config instance
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Compiling a string to connect to main db
func (db *MainDBParams) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=%d&sslmode=disable",
		db.Username,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
		db.Timeout,
	)
}

func (c *Config) Validate() error {
	// Checking secret key
	if c.GeneralParams.SecretKey == "" {
		return fmt.Errorf("parameter secret_key is required")
	}

	// Checking http address
	if c.GeneralParams.HTTPaddress == "" {
		return fmt.Errorf("parameter http_server_address is requred")
	}

	// Checking out enviroment variable
	switch c.GeneralParams.Env {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("env parameter is invalid: %s. try dev/prod/test instead", c.GeneralParams.Env)
	}

	// Checking store backend selection
	switch c.StoreParams.Backend {
	case "valkey":
		if c.StoreParams.Host == "" {
			return fmt.Errorf("store backend valkey: host is required")
		}
	case "postgres":
		if c.MainDBParams.Host == "" {
			return fmt.Errorf("store backend postgres: db_host is required")
		}
		if c.MainDBParams.Username == "" {
			return fmt.Errorf("store backend postgres: db_username is required")
		}
		if c.MainDBParams.Password == "" {
			return fmt.Errorf("store backend postgres: db_password is requred")
		}
		if c.MainDBParams.Port <= 0 || c.MainDBParams.Port > 65535 {
			return fmt.Errorf("store backend postgres: db_port is invalid")
		}
	default:
		return fmt.Errorf("store backend is invalid: %s. try valkey/postgres instead", c.StoreParams.Backend)
	}

	// Checking S3 params
	if c.S3Params.Endpoint == "" {
		return fmt.Errorf("S3 endpoint is required")
	}
	if c.S3Params.AccessKeyID == "" {
		return fmt.Errorf("S3 access_key id is required")
	}
	if c.S3Params.SecretAccessKey == "" {
		return fmt.Errorf("S3 secret_access_key is required")
	}
	if c.S3Params.BucketName == "" {
		return fmt.Errorf("S3 bucket name is required")
	}

	// Checking outbox params
	if c.OutboxParams.ArtifactDir == "" {
		return fmt.Errorf("outbox artifact_dir is required")
	}
	if c.OutboxParams.ChatServerURL == "" {
		return fmt.Errorf("outbox chat_server_url is required")
	}
	if c.OutboxParams.BackoffMs < 0 {
		return fmt.Errorf("outbox backoff_ms must not be negative")
	}

	return nil
}
