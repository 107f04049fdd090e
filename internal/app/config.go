package app

import (
	"time"

	"github.com/yungbote/rankset/internal/observability"
	"github.com/yungbote/rankset/internal/pkg/batch"
	"github.com/yungbote/rankset/internal/platform/envutil"
	"github.com/yungbote/rankset/internal/platform/logger"
)

type Config struct {
	BatchSize      int
	ArticleLimit   int
	RedisAddr      string
	LockTTL        time.Duration
	PushgatewayURL string
	Tracing        observability.TracingConfig
}

func LoadConfig(log *logger.Logger) Config {
	batchSize := envutil.Int("RANKING_BATCH_SIZE", batch.DefaultSize, log)
	if batchSize <= 0 {
		batchSize = batch.DefaultSize
	}
	if batchSize > batch.MaxSize {
		if log != nil {
			log.Warn("RANKING_BATCH_SIZE above maximum, clamping", "requested", batchSize, "max", batch.MaxSize)
		}
		batchSize = batch.MaxSize
	}
	lockTTLSeconds := envutil.Int("REFRESH_LOCK_TTL_SECONDS", 600, log)
	if lockTTLSeconds <= 0 {
		lockTTLSeconds = 600
	}
	return Config{
		BatchSize:      batchSize,
		ArticleLimit:   envutil.Int("RANKING_ARTICLE_LIMIT", 1000, log),
		RedisAddr:      envutil.String("REDIS_ADDR", "", log),
		LockTTL:        time.Duration(lockTTLSeconds) * time.Second,
		PushgatewayURL: envutil.String("METRICS_PUSHGATEWAY_URL", "", log),
		Tracing:        observability.LoadTracingConfig(log),
	}
}
