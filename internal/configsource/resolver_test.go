package configsource

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	params map[string]string
	got    *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.got = in
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

type fakeS3 struct {
	objects map[string]string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	v, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(v))}, nil
}

func TestFile_LocalVerbatim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api-token.txt")
	if err := os.WriteFile(path, []byte("tok-123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(ResolverOptions{})

	for _, ref := range []string{path, "file://" + path} {
		src := r.File(ref)
		if src.Kind() != "file" {
			t.Fatalf("Kind = %q", src.Kind())
		}
		v, err := src.Lookup(bg)
		if err != nil || v != "tok-123\n" {
			t.Fatalf("%s: Lookup = %q, %v (content must be verbatim)", ref, v, err)
		}
	}
}

func TestFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.txt")
	_, err := NewResolver(ResolverOptions{}).File(path).Lookup(bg)
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrUnavailable wrapping ErrNotExist", err)
	}
	if !strings.HasPrefix(err.Error(), "open "+path) {
		t.Fatalf("message = %q, want the OS error verbatim", err.Error())
	}
	var st interface{ StackPCs() []uintptr }
	if !errors.As(err, &st) || len(st.StackPCs()) == 0 {
		t.Fatal("missing file error carries no stack")
	}
}

func TestFile_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewResolver(ResolverOptions{MaxBytes: 4}).File(path).Lookup(bg)
	if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "exceeds 4 bytes") {
		t.Fatalf("err = %v", err)
	}
}

func TestFile_SSM(t *testing.T) {
	fake := &fakeSSM{params: map[string]string{"/demo/db/password": "s3cr3t", "flat": "v"}}
	r := NewResolver(ResolverOptions{SSM: fake})

	src := r.File("ssm://demo/db/password")
	if src.Kind() != "ssm" {
		t.Fatalf("Kind = %q", src.Kind())
	}
	v, err := src.Lookup(bg)
	if err != nil || v != "s3cr3t" {
		t.Fatalf("Lookup = %q, %v", v, err)
	}
	if !aws.ToBool(fake.got.WithDecryption) {
		t.Fatal("SecureString parameters must be decrypted")
	}

	if v, _ := r.File("ssm://flat").Lookup(bg); v != "v" {
		t.Fatalf("flat parameter = %q", v)
	}
	if v, _ := r.File("ssm:///demo/db/password").Lookup(bg); v != "s3cr3t" {
		t.Fatalf("absolute parameter = %q", v)
	}

	_, err = r.File("ssm://demo/missing").Lookup(bg)
	if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "/demo/missing") {
		t.Fatalf("missing parameter err = %v", err)
	}
}

func TestFile_S3(t *testing.T) {
	r := NewResolver(ResolverOptions{S3: &fakeS3{objects: map[string]string{"cfg-bucket/dev/message.txt": "hello dev"}}})

	src := r.File("s3://cfg-bucket/dev/message.txt")
	if src.Kind() != "s3" {
		t.Fatalf("Kind = %q", src.Kind())
	}
	if v, err := src.Lookup(bg); err != nil || v != "hello dev" {
		t.Fatalf("Lookup = %q, %v", v, err)
	}

	for _, ref := range []string{"s3://cfg-bucket/prod/message.txt", "s3://cfg-bucket", "s3:///key-only"} {
		if _, err := r.File(ref).Lookup(bg); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%s: err = %v, want ErrUnavailable", ref, err)
		}
	}
}

func TestFile_RemoteWithoutClient(t *testing.T) {
	r := NewResolver(ResolverOptions{})
	for _, ref := range []string{"ssm://x", "s3://b/k"} {
		_, err := r.File(ref).Lookup(bg)
		if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "no ") {
			t.Fatalf("%s: err = %v", ref, err)
		}
	}
}

func TestNeedsAWS(t *testing.T) {
	if NeedsAWS("/etc/config/message.txt", "file:///x") {
		t.Fatal("local paths need no AWS client")
	}
	if !NeedsAWS("/etc/config/message.txt", "s3://b/k") || !NeedsAWS("ssm://p") {
		t.Fatal("remote refs need an AWS client")
	}
}
