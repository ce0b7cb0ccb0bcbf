package configsource

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/k8sdemo/internal/xerrors"
)

// DefaultMaxBytes matches the 1 MiB ConfigMap/Secret size limit.
const DefaultMaxBytes int64 = 1 << 20

// ParameterGetter is the subset of the SSM API used for ssm:// references.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ObjectGetter is the subset of the S3 API used for s3:// references.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type ResolverOptions struct {
	SSM      ParameterGetter
	S3       ObjectGetter
	MaxBytes int64
}

// Resolver builds file sources, routing ssm:// and s3:// references to AWS.
type Resolver struct {
	ssm      ParameterGetter
	s3       ObjectGetter
	maxBytes int64
}

func NewResolver(opts ResolverOptions) *Resolver {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Resolver{ssm: opts.SSM, s3: opts.S3, maxBytes: opts.MaxBytes}
}

// File returns a source for ref: a local path, file://path, ssm://name or
// s3://bucket/key.
func (r *Resolver) File(ref string) Source {
	return &fileSource{r: r, ref: ref}
}

const (
	schemeSSM  = "ssm://"
	schemeS3   = "s3://"
	schemeFile = "file://"
)

// NeedsAWS reports whether any ref needs an AWS client.
func NeedsAWS(refs ...string) bool {
	for _, ref := range refs {
		if strings.HasPrefix(ref, schemeSSM) || strings.HasPrefix(ref, schemeS3) {
			return true
		}
	}
	return false
}

// ssmName maps ssm://app/db/password to /app/db/password. Names without a
// slash are flat parameters and stay as they are.
func ssmName(ref string) string {
	name := strings.TrimPrefix(ref, schemeSSM)
	if strings.Contains(name, "/") && !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

func parseS3(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", xerrors.Wrapf(err, "parse %s", ref)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", xerrors.Newf("invalid S3 reference %q, want s3://bucket/key", ref)
	}
	return u.Host, key, nil
}

type fileSource struct {
	r   *Resolver
	ref string
}

func (f *fileSource) Ref() string { return f.ref }

func (f *fileSource) Kind() string {
	switch {
	case strings.HasPrefix(f.ref, schemeSSM):
		return "ssm"
	case strings.HasPrefix(f.ref, schemeS3):
		return "s3"
	default:
		return "file"
	}
}

func (f *fileSource) Lookup(ctx context.Context) (string, error) {
	var v string
	var err error
	switch f.Kind() {
	case "ssm":
		v, err = f.r.readSSM(ctx, ssmName(f.ref))
	case "s3":
		v, err = f.r.readS3(ctx, f.ref)
	default:
		v, err = f.r.readLocal(strings.TrimPrefix(f.ref, schemeFile))
	}
	if err != nil {
		return "", unavailable(f.ref, err)
	}
	return v, nil
}

func (r *Resolver) readLocal(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		// message stays the OS error, shown verbatim by ReadError
		return "", xerrors.WithStack(err)
	}
	defer fh.Close()
	return r.readCapped(fh, path)
}

func (r *Resolver) readCapped(rd io.Reader, ref string) (string, error) {
	b, err := io.ReadAll(io.LimitReader(rd, r.maxBytes+1))
	if err != nil {
		return "", xerrors.Wrapf(err, "read %s", ref)
	}
	if int64(len(b)) > r.maxBytes {
		return "", xerrors.Newf("%s exceeds %d bytes", ref, r.maxBytes)
	}
	return string(b), nil
}

func (r *Resolver) readSSM(ctx context.Context, name string) (string, error) {
	if r.ssm == nil {
		return "", xerrors.Newf("no SSM client configured for parameter %s", name)
	}
	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	return *out.Parameter.Value, nil
}

func (r *Resolver) readS3(ctx context.Context, ref string) (string, error) {
	if r.s3 == nil {
		return "", xerrors.Newf("no S3 client configured for %s", ref)
	}
	bucket, key, err := parseS3(ref)
	if err != nil {
		return "", err
	}
	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get S3 object %s", ref)
	}
	defer out.Body.Close()
	return r.readCapped(out.Body, ref)
}
