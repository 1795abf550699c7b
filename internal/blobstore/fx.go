package blobstore

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Tiers bundles the secondary stores with their container names. The tier2
// and tier3 handles may share a backend but always use distinct containers.
type Tiers struct {
	Tier2          domain.BlobStore
	Tier3          domain.BlobStore
	Tier2Container string
	Tier3Container string
}

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// NewTiers builds the configured blob store per tier.
func NewTiers(p Params) (Tiers, error) {
	log := p.Log.Named("blobstore")

	tier2, err := newBackend(p, p.Cfg.Blob.Tier2Backend)
	if err != nil {
		return Tiers{}, fmt.Errorf("tier2 blob store: %w", err)
	}
	tier3, err := newBackend(p, p.Cfg.Blob.Tier3Backend)
	if err != nil {
		return Tiers{}, fmt.Errorf("tier3 blob store: %w", err)
	}

	log.Info("blob stores configured",
		zap.String("tier2_backend", p.Cfg.Blob.Tier2Backend),
		zap.String("tier3_backend", p.Cfg.Blob.Tier3Backend),
		zap.String("tier2_container", p.Cfg.Blob.Tier2Container),
		zap.String("tier3_container", p.Cfg.Blob.Tier3Container),
	)

	return Tiers{
		Tier2:          tier2,
		Tier3:          tier3,
		Tier2Container: p.Cfg.Blob.Tier2Container,
		Tier3Container: p.Cfg.Blob.Tier3Container,
	}, nil
}

func newBackend(p Params, backend string) (domain.BlobStore, error) {
	switch backend {
	case config.BlobBackendMemory:
		return NewMemoryStore(), nil
	case config.BlobBackendFilesystem:
		return NewFilesystemStore(p.Cfg.Blob.FilesystemRoot)
	case config.BlobBackendRedis:
		return NewRedisStore(p.Redis)
	case config.BlobBackendS3:
		return NewS3Store(S3Config{
			Endpoint:  p.Cfg.Blob.S3Endpoint,
			AccessKey: p.Cfg.Blob.S3AccessKey,
			SecretKey: p.Cfg.Blob.S3SecretKey,
			Region:    p.Cfg.Blob.S3Region,
			UseSSL:    p.Cfg.Blob.S3UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", backend)
	}
}

// NewRedisClient connects redis when an address is configured. The client is
// shared by the redis blob backend and the scheduler lock.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

var Module = fx.Module("blobstore",
	fx.Provide(NewRedisClient),
	fx.Provide(NewTiers),
)
