package config

import "time"

type RedisConfig struct {
	DB          int
	Url         string
	Password    string
	PoolSize    int
	DialTimeout time.Duration
}

func NewRedisConfig() *RedisConfig {
	return &RedisConfig{
		DB:          getIntEnv("REDIS_DB", 0),
		Url:         getEnv("REDIS_ADDR", "localhost:6379"),
		Password:    getEnv("REDIS_PASSWORD", ""),
		PoolSize:    getIntEnv("REDIS_POOL_SIZE", 10),
		DialTimeout: getMillisEnv("REDIS_DIAL_TIMEOUT_MS", 5*time.Second),
	}
}
