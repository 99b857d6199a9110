package transitdata

import (
	"context"
	"fmt"
	"os"

	"github.com/theoremus-urban-solutions/transitdata/config"
	"github.com/theoremus-urban-solutions/transitdata/store"
)

// OpenStore opens the configured artifact store. S3 credentials are read from
// the environment variables named in the config.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Kind {
	case "", "local":
		return store.NewLocal(cfg.Root)
	case "s3":
		if cfg.S3 == nil {
			return nil, fmt.Errorf("storage kind s3 requires an s3 section")
		}
		return store.NewS3(ctx, store.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			AccessKeyID:     os.Getenv(cfg.S3.AccessKeyEnv),
			SecretAccessKey: os.Getenv(cfg.S3.SecretKeyEnv),
			UseSSL:          cfg.S3.UseSSL,
		})
	}
	return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
}
