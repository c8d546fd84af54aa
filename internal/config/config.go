package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"3000" validate:"min=1000,max=65535"`

	WsWriteWait  time.Duration `env:"WS_WRITE_WAIT"  envDefault:"10s"`
	WsPongWait   time.Duration `env:"WS_PONG_WAIT"   envDefault:"60s"`
	WsPingPeriod time.Duration `env:"WS_PING_PERIOD" envDefault:"54s"`
	WsReadLimit  int64         `env:"WS_READ_LIMIT"  envDefault:"4096" validate:"min=1"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}

	if cfg.WsPingPeriod >= cfg.WsPongWait {
		zap.L().Warn("ws_ping_period should be below ws_pong_wait",
			zap.Duration("ping_period", cfg.WsPingPeriod),
			zap.Duration("pong_wait", cfg.WsPongWait))
	}
	return cfg, nil
}
