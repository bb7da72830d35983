package common

import (
	"bytes"
	"testing"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestViperConfigParsing(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	validate := validator.New()

	// Case 0: defaults alone miss the cloud credentials
	{
		var cfg SystemConfig
		InstallDefaultConfigValues()
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 1: defaults plus the secrets form a valid config
	{
		config := []byte(`---
cloud:
  auth:
    username: ops
    password: secret
dashboard:
  auth:
    token_signing_key: unit-test-signing-key`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.Nil(validate.Struct(&cfg))
		assert.Equal("rangehub.db", cfg.Storage.DBFile)
		assert.Equal("https://telemetry.rangelab.io", cfg.Telemetry.WSBaseURL)
		assert.Equal(5000, cfg.Telemetry.PollIntervalMS)
		assert.Equal("rangehub.telemetry", cfg.Relay.SubjectPrefix)
		assert.EqualValues(3000, cfg.Dashboard.HTTPSetting.Server.Port)
	}

	// Case 2: backoff multiplier below one is rejected
	{
		config := []byte(`---
cloud:
  auth:
    username: ops
    password: secret
dashboard:
  auth:
    token_signing_key: unit-test-signing-key
telemetry:
  backoff:
    multiplier: 0.5`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}

	// Case 3: sub-100ms poll intervals are rejected
	{
		config := []byte(`---
cloud:
  auth:
    username: ops
    password: secret
dashboard:
  auth:
    token_signing_key: unit-test-signing-key
telemetry:
  poll_interval_ms: 50`)
		viper.SetConfigType("yaml")
		assert.Nil(viper.ReadConfig(bytes.NewBuffer(config)))
		var cfg SystemConfig
		assert.Nil(viper.Unmarshal(&cfg))
		assert.NotNil(validate.Struct(&cfg))
	}
}
