package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dstepanovs/teamplan/internal/flagx"
	"github.com/dstepanovs/teamplan/internal/timex"
)

// jsonConfig is the JSON-file DTO; duration fields accept both "15m" strings
// and integer nanoseconds. Empty fields leave the current value alone so the
// file can override selectively.
type jsonConfig struct {
	EndpointAddr                string         `json:"endpoint_addr"`
	DatabaseDSN                 string         `json:"database_dsn"`
	JWTSecret                   string         `json:"jwt_secret"`
	EncryptionKey               string         `json:"encryption_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	PageSize                    int            `json:"page_size"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson overlays values from the JSON file named by -c/-config, if any.
// An unreadable or invalid file is a startup panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &jsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setIfNotEmpty(&config.EndpointAddr, c.EndpointAddr)
	setIfNotEmpty(&config.DatabaseDSN, c.DatabaseDSN)
	setIfNotEmpty(&config.JWTSecret, c.JWTSecret)
	setIfNotEmpty(&config.EncryptionKey, c.EncryptionKey)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	}
	if c.PageSize != 0 {
		config.PageSize = c.PageSize
	}
	setIfNotEmpty(&config.S3RootUser, c.S3RootUser)
	setIfNotEmpty(&config.S3RootPassword, c.S3RootPassword)
	setIfNotEmpty(&config.S3Bucket, c.S3Bucket)
	setIfNotEmpty(&config.S3Region, c.S3Region)
	setIfNotEmpty(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
