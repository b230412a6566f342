package config

import (
	"encoding/hex"

	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	OAuthConfig
	SecurityConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetLogLevel() string
	GetLogFormat() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Security
}

// New loads the configuration from the environment and an optional .env file
// in the working directory.
func New() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	return FromViper(v)
}

// FromViper builds a Config over an already populated viper instance.
func FromViper(v *viper.Viper) Config {
	setDefaults(v)
	ensureSessionKeys(v)
	return mainConfig{
		EnvVars:  EnvVars{v: v},
		OAuth:    OAuth{v: v},
		Security: Security{v: v},
	}
}

func (c mainConfig) Validate() error {
	if err := c.OAuth.validate(); err != nil {
		return err
	}
	return c.Security.validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(portEnvVar, "3001")
	v.SetDefault(appNameVar, "SMART Launch")
	v.SetDefault(folderEnvVar, "./data")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(logFormatVar, "console")

	v.SetDefault(clientIDVar, defaultClientID)
	v.SetDefault(redirectURIVar, defaultRedirectURI)
	v.SetDefault(scopeVar, DefaultScope)
	v.SetDefault(verifierLengthVar, 64)
	v.SetDefault(redirectDelayVar, "0s")
	v.SetDefault(httpTimeoutVar, "0s")

	v.SetDefault(strictDiscoveryVar, false)
	v.SetDefault(verifyIDTokenVar, true)
	v.SetDefault(durableMaxAgeVar, "720h")
}

// ensureSessionKeys fills in per-process cookie keys when none are
// configured. Cookies issued by a previous process become unreadable.
func ensureSessionKeys(v *viper.Viper) {
	if v.GetString(sessionHashKeyVar) == "" {
		log.Warn().Msg("SESSION_HASH_KEY not set, generating a per-process key")
		v.Set(sessionHashKeyVar, hex.EncodeToString(securecookie.GenerateRandomKey(32)))
	}
	if v.GetString(sessionBlockKeyVar) == "" {
		log.Warn().Msg("SESSION_BLOCK_KEY not set, generating a per-process key")
		v.Set(sessionBlockKeyVar, hex.EncodeToString(securecookie.GenerateRandomKey(16)))
	}
}
