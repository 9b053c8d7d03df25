package config

import "time"

// JwtConfig configures verification of the HMAC tokens callers present
type JwtConfig struct {
	Secret string
	// Issuer, when set, must match the iss claim
	Issuer string
	Leeway time.Duration
}

func NewJwtConfig() *JwtConfig {
	return &JwtConfig{
		Secret: getEnv("JWT_SECRET", ""),
		Issuer: getEnv("JWT_ISSUER", ""),
		Leeway: time.Duration(getIntEnv("JWT_LEEWAY_SEC", 30)) * time.Second,
	}
}
