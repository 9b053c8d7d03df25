package config

import "os"

type AppConfig struct {
	DebugMode      bool
	HttpPort       string
	PipelineCfg    *PipelineCfg
	SandboxConfig  *SandboxConfig
	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	JwtConfig      *JwtConfig
	AMQPConfig     *AMQPConfig
}

func NewSystemConfig() *AppConfig {
	return &AppConfig{
		DebugMode:      os.Getenv("DEBUG_MODE") == "true",
		HttpPort:       getEnv("HTTP_PORT", "8080"),
		PipelineCfg:    NewPipelineCfg(),
		SandboxConfig:  NewSandboxConfig(),
		RedisConfig:    NewRedisConfig(),
		PostgresConfig: NewPostgresConfig(),
		JwtConfig:      NewJwtConfig(),
		AMQPConfig:     NewAMQPConfig(),
	}
}
