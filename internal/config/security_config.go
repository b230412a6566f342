package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	strictDiscoveryVar = "STRICT_DISCOVERY"
	verifyIDTokenVar   = "VERIFY_ID_TOKEN"
	sessionHashKeyVar  = "SESSION_HASH_KEY"
	sessionBlockKeyVar = "SESSION_BLOCK_KEY"
	durableMaxAgeVar   = "DURABLE_SESSION_MAX_AGE"
)

type SecurityConfig interface {
	GetStrictDiscovery() bool
	GetVerifyIDToken() bool
	GetSessionHashKey() []byte
	GetSessionBlockKey() []byte
	GetDurableSessionMaxAge() time.Duration
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

// GetStrictDiscovery turns a discovery document without endpoints into a
// failed launch instead of a stall.
func (s Security) GetStrictDiscovery() bool {
	return s.v.GetBool(strictDiscoveryVar)
}

func (s Security) GetVerifyIDToken() bool {
	return s.v.GetBool(verifyIDTokenVar)
}

func (s Security) GetSessionHashKey() []byte {
	return []byte(s.v.GetString(sessionHashKeyVar))
}

func (s Security) GetSessionBlockKey() []byte {
	return []byte(s.v.GetString(sessionBlockKeyVar))
}

func (s Security) GetDurableSessionMaxAge() time.Duration {
	return s.v.GetDuration(durableMaxAgeVar)
}

func (s Security) validate() error {
	switch n := len(s.GetSessionBlockKey()); n {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%s must be 16, 24 or 32 bytes, got %d", sessionBlockKeyVar, n)
	}
	if len(s.GetSessionHashKey()) < 32 {
		return fmt.Errorf("%s must be at least 32 bytes", sessionHashKeyVar)
	}
	if s.GetDurableSessionMaxAge() <= 0 {
		return fmt.Errorf("%s must be positive", durableMaxAgeVar)
	}
	return nil
}
