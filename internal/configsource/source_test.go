package configsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keithlinneman/k8sdemo/internal/log"
)

var bg = context.Background()

func TestEnv_Set(t *testing.T) {
	t.Setenv("APP_GREETING", "Hello from ConfigMap")
	v, err := Env{Name: "APP_GREETING"}.Lookup(bg)
	if err != nil || v != "Hello from ConfigMap" {
		t.Fatalf("Lookup = %q, %v", v, err)
	}
}

func TestEnv_UnsetAndEmpty(t *testing.T) {
	t.Setenv("APP_GREETING", "")
	os.Unsetenv("DB_PASSWORD_NOT_THERE")

	for _, name := range []string{"APP_GREETING", "DB_PASSWORD_NOT_THERE"} {
		_, err := Env{Name: name}.Lookup(bg)
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("%s: err = %v, want ErrUnavailable", name, err)
		}
		var ue *UnavailableError
		if !errors.As(err, &ue) || ue.Ref != name {
			t.Fatalf("%s: want UnavailableError with Ref", name)
		}
	}
}

func TestResolve_StaticFallback(t *testing.T) {
	os.Unsetenv("APP_ENV_UNSET_FOR_TEST")
	got := Resolve(bg, Env{Name: "APP_ENV_UNSET_FOR_TEST"}, Static("unknown"))
	if got != "unknown" {
		t.Fatalf("Resolve = %q, want unknown", got)
	}
}

func TestResolve_ReadErrorFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.txt")
	src := NewResolver(ResolverOptions{}).File(path)

	got := Resolve(bg, src, ReadError())
	if !strings.HasPrefix(got, "Error reading file: open "+path) {
		t.Fatalf("Resolve = %q", got)
	}
	if !strings.Contains(got, "no such file or directory") {
		t.Fatalf("Resolve = %q, want the OS error", got)
	}
}

func TestResolve_NilFallback(t *testing.T) {
	os.Unsetenv("UNSET_FOR_TEST")
	if got := Resolve(bg, Env{Name: "UNSET_FOR_TEST"}, nil); got != "" {
		t.Fatalf("Resolve = %q, want empty", got)
	}
}

type countingSource struct {
	calls int
	val   string
	err   error
}

func (c *countingSource) Kind() string { return "test" }
func (c *countingSource) Ref() string  { return "counting" }
func (c *countingSource) Lookup(context.Context) (string, error) {
	c.calls++
	return c.val, c.err
}

func TestOnce_CachesSuccessAndFailure(t *testing.T) {
	ok := &countingSource{val: "v"}
	src := Once(ok)
	for i := 0; i < 3; i++ {
		if v, err := src.Lookup(bg); v != "v" || err != nil {
			t.Fatalf("Lookup = %q, %v", v, err)
		}
	}
	if ok.calls != 1 {
		t.Fatalf("calls = %d, want 1", ok.calls)
	}

	bad := &countingSource{err: unavailable("counting", errors.New("gone"))}
	src = Once(bad)
	_, _ = src.Lookup(bg)
	bad.err = nil
	if _, err := src.Lookup(bg); err == nil {
		t.Fatal("cached failure should be returned again")
	}
	if src.Kind() != "test" || src.Ref() != "counting" {
		t.Fatal("Once should forward Kind and Ref")
	}
}

type levelLog struct {
	log.Logger
	warns, debugs int
}

func (l *levelLog) Warn(context.Context, string, ...any)  { l.warns++ }
func (l *levelLog) Debug(context.Context, string, ...any) { l.debugs++ }

func TestResolve_OnceFailureWarnsOnce(t *testing.T) {
	lg := &levelLog{Logger: log.Nop()}
	ctx := log.WithContext(bg, lg)
	src := Once(NewResolver(ResolverOptions{}).File(filepath.Join(t.TempDir(), "missing.txt")))

	for i := 0; i < 5; i++ {
		if got := Resolve(ctx, src, ReadError()); !strings.HasPrefix(got, "Error reading file: ") {
			t.Fatalf("Resolve = %q", got)
		}
	}
	if lg.warns != 1 || lg.debugs != 4 {
		t.Fatalf("warns=%d debugs=%d, want 1 and 4", lg.warns, lg.debugs)
	}

	// per-request sources keep warning, the file may come back any time
	lg.warns = 0
	perRequest := NewResolver(ResolverOptions{}).File(filepath.Join(t.TempDir(), "missing.txt"))
	Resolve(ctx, perRequest, ReadError())
	Resolve(ctx, perRequest, ReadError())
	if lg.warns != 2 {
		t.Fatalf("per-request warns = %d, want 2", lg.warns)
	}
}

func TestOnce_StartupSemantics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}
	src := Once(NewResolver(ResolverOptions{}).File(path))
	if v, _ := src.Lookup(bg); v != "v1" {
		t.Fatalf("first = %q", v)
	}
	if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if v, _ := src.Lookup(bg); v != "v1" {
		t.Fatalf("Once should keep the startup value, got %q", v)
	}
}

func TestObserved_ReportsResult(t *testing.T) {
	var got []string
	fn := func(kind, result string) { got = append(got, kind+":"+result) }

	_, _ = Observed(&countingSource{val: "x"}, fn).Lookup(bg)
	_, _ = Observed(&countingSource{err: errors.New("nope")}, fn).Lookup(bg)

	want := []string{"test:ok", "test:unavailable"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("observed %v, want %v", got, want)
	}

	plain := &countingSource{}
	if Observed(plain, nil) != Source(plain) {
		t.Fatal("nil hook should return the source unchanged")
	}
}
