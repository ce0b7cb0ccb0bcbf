package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/k8sdemo/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names when reading the environment.
const EnvPrefix = "K8SDEMO_"

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	RateLimit         float64
	RateBurst         int
	TrustedHops       int
	DrainDelay        time.Duration
	ShutdownTimeout   time.Duration
	ConfigFile        string
	EnvFile           string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 3000, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.RateLimit, "rate-limit", 10, "per-client requests/sec on the app port (0 disables)")
	fs.IntVar(&c.RateBurst, "rate-burst", 30, "per-client burst on the app port")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted proxies in front of the app port (X-Forwarded-For)")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 5*time.Second, "time between failing readiness and stopping listeners")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "max time to wait for in-flight requests on shutdown")
	fs.StringVar(&c.ConfigFile, "config-file", "", "optional YAML file of flag-name: value pairs")
	fs.StringVar(&c.EnvFile, "env-file", "", "optional comma separated dotenv files loaded into the environment")
}

// Echo configures the two values an echo page shows.
type Echo struct {
	EnvVar         string
	EnvFallback    string
	File           string
	FilePerRequest bool
}

// RegisterEcho binds the echo flags with per-app defaults.
func RegisterEcho(fs *flag.FlagSet, e *Echo, def Echo) {
	fs.StringVar(&e.EnvVar, "env-var", def.EnvVar, "environment variable to echo")
	fs.StringVar(&e.EnvFallback, "env-fallback", def.EnvFallback, "value shown when env-var is unset or empty")
	fs.StringVar(&e.File, "file", def.File, "file to echo: a path, file://, ssm://name or s3://bucket/key")
	fs.BoolVar(&e.FilePerRequest, "file-per-request", def.FilePerRequest, "re-read file on every request instead of once at startup")
}

// LoadEnvFiles loads a comma separated list of dotenv files. Missing files
// are skipped and variables already in the environment are kept.
func LoadEnvFiles(list string, logf func(string, ...any)) error {
	var files []string
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			if logf != nil {
				logf("env file %s skipped: %v", f, err)
			}
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files %v: %w", files, err)
	}
	return nil
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// FillFromFile sets flags from a flat YAML map of flag names, skipping any
// flag already set by the CLI or FillFromEnv. Keys may use '-' or '_' in any
// case. Call it after FillFromEnv so the file ranks below the environment.
func FillFromFile(fs *flag.FlagSet, path string, logf func(string, ...any)) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var errs []error
	for k, v := range raw {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), "_", "-")
		f := fs.Lookup(name)
		if f == nil {
			if logf != nil {
				logf("config file %s: unknown key %q", path, k)
			}
			continue
		}
		if set[name] {
			continue
		}
		val := fmt.Sprint(v)
		if v == nil {
			val = ""
		}
		if err := fs.Set(name, val); err != nil {
			errs = append(errs, fmt.Errorf("config file %s: key %q: %w", path, k, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL, scheme and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Rate limiting
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT %.2f (must be >= 0)", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_BURST must be >= 1 when RATE_LIMIT > 0 (got %d)", c.RateBurst))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 16 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..16 (got %d)", c.TrustedHops))
	}

	// Shutdown
	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_DELAY %s (must be >= 0)", c.DrainDelay))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %s (must be > 0)", c.ShutdownTimeout))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateEcho checks the echo page settings.
func ValidateEcho(e Echo) error {
	var errs []error
	if e.EnvVar == "" {
		errs = append(errs, fmt.Errorf("ENV_VAR is required"))
	}
	if e.File == "" {
		errs = append(errs, fmt.Errorf("FILE is required"))
	}
	return errors.Join(errs...)
}
