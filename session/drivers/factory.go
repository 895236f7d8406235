// Package drivers provides the session.Store implementations.
package drivers

import "github.com/drewburns/ai-phonecall/session"

// New creates a session.Store of the given type.
// Redis requires WithRedisClient; sql requires WithDB.
func New(storeType session.StoreType, opts ...session.StoreOption) (session.Store, error) {
	cfg := session.NewStoreConfig(opts...)

	switch storeType {
	case session.StoreTypeMemory:
		return NewInMemoryStore(cfg.TTL), nil

	case session.StoreTypeRedis:
		if cfg.RedisClient == nil {
			return nil, session.ErrInvalidConfig
		}
		return NewRedisStore(cfg.RedisClient, cfg.KeyPrefix, cfg.TTL), nil

	case session.StoreTypeSQL:
		if cfg.DB == nil {
			return nil, session.ErrInvalidConfig
		}
		return NewGormStore(cfg.DB, cfg.TTL)

	default:
		return nil, session.ErrInvalidStoreType
	}
}
