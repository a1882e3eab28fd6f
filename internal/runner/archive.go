package runner

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/crane"
	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// ArchiveSource opens images stored as archives, such as s3://bucket/key.tar.
type ArchiveSource interface {
	Image(ctx context.Context, uri string) (v1.Image, func(), error)
}

// archivePusher pushes an archive image to a registry in-process for either runner.
type archivePusher struct {
	archives   ArchiveSource
	configPath string
	userAgent  string
	push       func(img v1.Image, dst string, opts ...crane.Option) error
}

func (p archivePusher) copy(ctx context.Context, args []string, src, dst string) ([]byte, error) {
	if p.archives == nil {
		return exitFailure(args, fmt.Sprintf("no archive source configured for %s", src))
	}
	img, cleanup, err := p.archives.Image(ctx, src)
	if err != nil {
		return exitFailure(args, err.Error())
	}
	defer cleanup()
	push := p.push
	if push == nil {
		push = crane.Push
	}
	if err := push(img, dst, craneOptions(ctx, p.configPath, p.userAgent)...); err != nil {
		return exitFailure(args, err.Error())
	}
	return []byte(fmt.Sprintf("pushed %s to %s\n", src, dst)), nil
}

func craneOptions(ctx context.Context, configPath, userAgent string) []crane.Option {
	opts := []crane.Option{
		crane.WithContext(ctx),
		crane.WithAuthFromKeychain(ConfigKeychain{Path: configPath}),
	}
	if userAgent != "" {
		opts = append(opts, crane.WithUserAgent(userAgent))
	}
	return opts
}
