package broker

import (
	"github.com/go-redis/redis/v8"
	"github.com/lumenmq/lighthouse/config"
	"github.com/lumenmq/lighthouse/internal/persistence/redisstore"
	persistsession "github.com/lumenmq/lighthouse/internal/persistence/session"
)

// newRedisSessionStore builds the optional durable SessionStore backend
// from the broker's Redis configuration.
func newRedisSessionStore(cfg config.Redis) (persistsession.Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return redisstore.NewStore(rdb, cfg.TTL), nil
}
