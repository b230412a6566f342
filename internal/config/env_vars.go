package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	portEnvVar   = "PORT"
	appNameVar   = "APP_NAME"
	folderEnvVar = "FOLDER"
	envVar       = "ENV"
	logLevelVar  = "LOG_LEVEL"
	logFormatVar = "LOG_FORMAT"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.v.GetString(portEnvVar)
	if port != "" && !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameVar)
}

// GetDataFolder is where the durable session files live.
func (e EnvVars) GetDataFolder() string {
	return e.v.GetString(folderEnvVar)
}

func (e EnvVars) GetEnv() string {
	return e.v.GetString(envVar)
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelVar)
}

// GetLogFormat is either "console" or "json".
func (e EnvVars) GetLogFormat() string {
	return e.v.GetString(logFormatVar)
}
