package httpserver

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/k8sdemo/internal/health"
	"github.com/keithlinneman/k8sdemo/internal/httpmw"
)

func do(h http.Handler, method, path string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func helloRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("ENV: hello\n", 200)))
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
}

func TestNewHandler_RoutesAndHeaders(t *testing.T) {
	h := NewHandler(&Options{Routes: helloRoutes})
	rec := do(h, http.MethodGet, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id missing")
	}
}

func TestNewHandler_SecurityHeadersOn404(t *testing.T) {
	rec := do(NewHandler(&Options{}), http.MethodGet, "/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("security headers missing on 404")
	}
}

func TestNewHandler_Compresses(t *testing.T) {
	rec := do(NewHandler(&Options{Routes: helloRoutes}), http.MethodGet, "/", "Accept-Encoding", "gzip")
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(zr)
	if !strings.HasPrefix(string(body), "ENV: hello\n") {
		t.Fatalf("body = %q", body[:20])
	}
}

func TestNewHandler_HealthRoutes(t *testing.T) {
	var gate health.ShutdownGate
	h := NewHandler(&Options{
		Health:    health.Fixed(true, ""),
		Readiness: gate.Probe(),
	})
	if rec := do(h, http.MethodGet, "/-/healthy"); rec.Code != http.StatusOK {
		t.Fatalf("healthy = %d", rec.Code)
	}
	gate.Set("shutting down")
	if rec := do(h, http.MethodGet, "/-/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready = %d", rec.Code)
	}

	if rec := do(NewHandler(&Options{}), http.MethodGet, "/-/healthy"); rec.Code != http.StatusNotFound {
		t.Fatalf("healthy without probe = %d, want 404", rec.Code)
	}
}

func TestNewHandler_Recover(t *testing.T) {
	panics := 0
	h := NewHandler(&Options{Routes: helloRoutes, UseRecoverMW: true, OnPanic: func() { panics++ }})
	rec := do(h, http.MethodGet, "/boom")
	if rec.Code != http.StatusInternalServerError || panics != 1 {
		t.Fatalf("status=%d panics=%d", rec.Code, panics)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing on recovered panic")
	}
}

func TestNewHandler_MaxBody(t *testing.T) {
	var toggled int
	var readErr error
	h := NewHandler(&Options{Routes: func(r chi.Router) {
		r.Post("/toggle", func(w http.ResponseWriter, r *http.Request) { toggled++ })
		r.Post("/read", func(w http.ResponseWriter, r *http.Request) {
			_, readErr = io.ReadAll(r.Body)
		})
	}})

	big := strings.Repeat("x", 2*maxBodyBytes)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/toggle", strings.NewReader(big)))
	if rec.Code != http.StatusOK || toggled != 1 {
		t.Fatalf("oversized unread body: status=%d toggled=%d", rec.Code, toggled)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/read", strings.NewReader(big)))
	if readErr == nil {
		t.Fatal("reading past the cap should fail")
	}
}

func TestNewHandler_MiddlewareOrder(t *testing.T) {
	var sawIP, sawReqID string
	h := NewHandler(&Options{
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: 1},
		RateLimitMW: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawIP = httpmw.ClientIPFromContext(r.Context())
				sawReqID = httpmw.RequestIDFromContext(r.Context())
				next.ServeHTTP(w, r)
			})
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if sawIP != "198.51.100.4" {
		t.Fatalf("rate limiter saw ip %q", sawIP)
	}
	if sawReqID == "" {
		t.Fatal("rate limiter ran before request id")
	}
}

type build struct{}

func (build) Component() string { return "probes" }
func (build) Version() string   { return "v0.1.0" }

func TestNewHandler_BuildHeaders(t *testing.T) {
	rec := do(NewHandler(&Options{BuildInfo: build{}}), http.MethodGet, "/")
	if rec.Header().Get("X-App-Component") != "probes" || rec.Header().Get("X-App-Version") != "v0.1.0" {
		t.Fatalf("headers = %v", rec.Header())
	}
}

func TestNewServer_Timeouts(t *testing.T) {
	srv := NewServer(":0", http.NotFoundHandler())
	if srv.ReadHeaderTimeout != DefaultReadHeaderTimeout || srv.IdleTimeout != DefaultIdleTimeout || srv.MaxHeaderBytes != DefaultMaxHeaderBytes {
		t.Fatalf("server = %+v", srv)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestStart_ServeAndStop(t *testing.T) {
	port := freePort(t)
	stop, err := Start(context.Background(), &Options{Port: port, Routes: helloRoutes})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	_, err = Start(context.Background(), &Options{Port: ln.Addr().(*net.TCPAddr).Port})
	if err == nil {
		t.Fatal("want listen error")
	}
	var st interface{ StackPCs() []uintptr }
	if !errors.As(err, &st) || len(st.StackPCs()) == 0 {
		t.Fatalf("listen error carries no stack: %v", err)
	}
}
