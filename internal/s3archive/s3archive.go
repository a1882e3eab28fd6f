// Package s3archive reads docker-archive tarballs stored in S3 so they can be
// used as copy sources.
package s3archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

// Prefix marks an image reference as an S3 archive location.
const Prefix = "s3://"

// ErrInvalidLocation is returned for malformed s3:// references.
var ErrInvalidLocation = errors.New("invalid s3 archive location")

// Location is a parsed s3://bucket/key[:tag|:@index] reference.
type Location struct {
	Bucket string
	Key    string
	// Tag selects the archive entry with this normalized tag.
	Tag string
	// Index selects the archive entry by position; -1 when unset.
	Index int
}

// IsArchive reports whether uri uses the s3:// scheme.
func IsArchive(uri string) bool {
	return strings.HasPrefix(strings.TrimSpace(uri), Prefix)
}

// Parse splits uri into bucket, key and the optional entry selector. The
// selector follows the first ":" after the scheme and is either a tag or "@N".
func Parse(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, Prefix) {
		return Location{}, fmt.Errorf("%w: %q must begin with %s", ErrInvalidLocation, uri, Prefix)
	}
	path, selector, hasSelector := strings.Cut(strings.TrimPrefix(uri, Prefix), ":")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidLocation, uri)
	}
	loc := Location{Bucket: bucket, Key: key, Index: -1}
	if !hasSelector {
		return loc, nil
	}
	if strings.HasPrefix(selector, "@") {
		i, err := strconv.Atoi(selector[1:])
		if err != nil || i < 0 {
			return Location{}, fmt.Errorf("%w: source index %q must be a non-negative integer", ErrInvalidLocation, selector)
		}
		loc.Index = i
		return loc, nil
	}
	tag, err := name.NewTag(selector)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	loc.Tag = tag.Name()
	return loc, nil
}

func (l Location) String() string {
	s := Prefix + l.Bucket + "/" + l.Key
	switch {
	case l.Tag != "":
		return s + ":" + l.Tag
	case l.Index >= 0:
		return s + ":@" + strconv.Itoa(l.Index)
	}
	return s
}

// API is the subset of the S3 client used by Fetcher.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options customize how the S3 client is built.
type Options struct {
	Region string
	// Endpoint overrides the service endpoint (local stacks, tests).
	Endpoint    string
	Credentials aws.CredentialsProvider
	// TempDir receives downloaded archives. Defaults to os.TempDir().
	TempDir string
	// NewClient builds the API client for a resolved config. Defaults to s3.NewFromConfig.
	NewClient func(cfg aws.Config, endpoint string) API
}

// Fetcher downloads archives from S3 and opens the selected image.
type Fetcher struct {
	opts Options
}

// NewFetcher returns a Fetcher with the given options.
func NewFetcher(opts Options) *Fetcher {
	if opts.NewClient == nil {
		opts.NewClient = defaultClient
	}
	opts.Endpoint = strings.TrimSpace(opts.Endpoint)
	return &Fetcher{opts: opts}
}

func defaultClient(cfg aws.Config, endpoint string) API {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// Image downloads the archive named by uri and returns the selected image. The
// returned cleanup removes the local copy and must run after the image is used.
func (f *Fetcher) Image(ctx context.Context, uri string) (v1.Image, func(), error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, nil, err
	}
	path, err := f.Download(ctx, loc)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = os.Remove(path) }
	img, err := loc.Image(path)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return img, cleanup, nil
}

// Download copies the object at loc into a temporary file and returns its path.
func (f *Fetcher) Download(ctx context.Context, loc Location) (string, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region := strings.TrimSpace(f.opts.Region); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if f.opts.Credentials != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(f.opts.Credentials))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	resp, err := f.opts.NewClient(cfg, f.opts.Endpoint).GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return "", fmt.Errorf("get s3 object %s/%s: %w", loc.Bucket, loc.Key, err)
	}
	defer resp.Body.Close()

	file, err := os.CreateTemp(f.opts.TempDir, "archive-*.tar")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("download %s: %w", loc, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

// Image opens the entry of the docker archive at path that l selects. Without
// a selector the archive must hold exactly one image.
func (l Location) Image(path string) (v1.Image, error) {
	switch {
	case l.Tag != "":
		tag, err := name.NewTag(l.Tag)
		if err != nil {
			return nil, err
		}
		return tarball.ImageFromPath(path, &tag)
	case l.Index >= 0:
		manifest, err := tarball.LoadManifest(func() (io.ReadCloser, error) { return os.Open(path) })
		if err != nil {
			return nil, fmt.Errorf("read archive manifest: %w", err)
		}
		if l.Index >= len(manifest) {
			return nil, fmt.Errorf("source index @%d out of range, archive holds %d images", l.Index, len(manifest))
		}
		if len(manifest) == 1 {
			return tarball.ImageFromPath(path, nil)
		}
		tags := manifest[l.Index].RepoTags
		if len(tags) == 0 {
			return nil, fmt.Errorf("archive entry @%d has no tag", l.Index)
		}
		tag, err := name.NewTag(tags[0])
		if err != nil {
			return nil, err
		}
		return tarball.ImageFromPath(path, &tag)
	default:
		return tarball.ImageFromPath(path, nil)
	}
}
