package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Phala-Network/phala-nts-go/internal/base64url"
	"github.com/Phala-Network/phala-nts-go/internal/cmdutil"
	"github.com/Phala-Network/phala-nts-go/internal/securefile"
	ntsversion "github.com/Phala-Network/phala-nts-go/internal/version"
	"github.com/Phala-Network/phala-nts-go/observability"
	"github.com/Phala-Network/phala-nts-go/observability/prom"
	"github.com/Phala-Network/phala-nts-go/rotation"
	"github.com/Phala-Network/phala-nts-go/rotation/cache"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type switchHandler struct {
	mu      sync.RWMutex
	handler http.Handler
}

func newSwitchHandler() *switchHandler {
	return &switchHandler{handler: http.NotFoundHandler()}
}

func (h *switchHandler) Set(next http.Handler) {
	if next == nil {
		next = http.NotFoundHandler()
	}
	h.mu.Lock()
	h.handler = next
	h.mu.Unlock()
}

func (h *switchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	handler.ServeHTTP(w, r)
}

type metricsController struct {
	mu       sync.Mutex
	enabled  bool
	handler  *switchHandler
	observer *observability.AtomicRotationObserver
}

func newMetricsController(handler *switchHandler, observer *observability.AtomicRotationObserver) *metricsController {
	return &metricsController{handler: handler, observer: observer}
}

func (c *metricsController) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return
	}
	reg := prom.NewRegistry()
	obs := prom.NewRotationObserver(reg)
	c.handler.Set(prom.Handler(reg))
	c.observer.Set(obs)
	c.enabled = true
}

func (c *metricsController) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.handler.Set(nil)
	c.observer.Set(observability.NoopRotationObserver)
	c.enabled = false
}

type latestResponse struct {
	KeyIDHex string `json:"key_id_hex"`
	WrapB64  string `json:"wrap_base64"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		showVersion        bool
		listen             string
		prefix             string
		duration           time.Duration
		forward            int64
		backward           int64
		masterKeyB         string
		masterFile         string
		masterKeyOverwrite bool
		metrics            bool
	)

	listen = cmdutil.EnvString("NTSKE_ROTATORD_LISTEN", ":8420")
	prefix = cmdutil.EnvString("NTSKE_ROTATORD_PREFIX", "ntpkey")
	duration, _ = cmdutil.EnvDuration("NTSKE_ROTATORD_DURATION", 5*time.Minute)
	masterKeyB = cmdutil.EnvString("NTSKE_ROTATORD_MASTER_KEY_BASE64", "")
	masterFile = cmdutil.EnvString("NTSKE_ROTATORD_MASTER_KEY_FILE", "")

	fs := flag.NewFlagSet("ntske-rotatord", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&listen, "listen", listen, "HTTP listen address for /metrics and /latest (env: NTSKE_ROTATORD_LISTEN)")
	fs.StringVar(&prefix, "prefix", prefix, "cache key prefix (env: NTSKE_ROTATORD_PREFIX)")
	fs.DurationVar(&duration, "duration", duration, "rotation period (env: NTSKE_ROTATORD_DURATION)")
	fs.Int64Var(&forward, "forward-periods", 2, "number of future periods kept in the window")
	fs.Int64Var(&backward, "backward-periods", 2, "number of past periods kept in the window")
	fs.StringVar(&masterKeyB, "master-key-base64", masterKeyB, "base64-encoded HMAC master key, takes precedence over --master-key-file (env: NTSKE_ROTATORD_MASTER_KEY_BASE64)")
	fs.StringVar(&masterFile, "master-key-file", masterFile, "path to a persisted master key file, created with a random key on first run (env: NTSKE_ROTATORD_MASTER_KEY_FILE)")
	fs.BoolVar(&masterKeyOverwrite, "master-key-overwrite", false, "replace an existing --master-key-file with a freshly generated key instead of reusing it")
	fs.BoolVar(&metrics, "metrics", true, "serve Prometheus metrics on /metrics")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Fprintln(stdout, ntsversion.String(version, commit, date))
		return 0
	}
	if duration <= 0 {
		fmt.Fprintln(stderr, "--duration must be positive")
		return 2
	}

	masterKey, err := loadMasterKey(masterKeyB, masterFile, masterKeyOverwrite)
	if err != nil {
		fmt.Fprintf(stderr, "master key: %v\n", err)
		return 2
	}

	// The demo cache here stands in for the production deployment's
	// memcache instance, which this binary never talks to directly; see
	// rotation/cache.Getter.
	store := cache.NewMap()
	seedDemoCache(store, prefix, duration, forward, backward)

	rotationObserver := observability.NewAtomicRotationObserver()
	rotor := rotation.New(prefix, int64(duration.Seconds()), forward, backward, masterKey, store)
	rotor.Observer = rotationObserver

	logger := log.New(stderr, "ntske-rotatord: ", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go rotation.RunTicker(ctx, rotor, logger)

	metricsHandler := newSwitchHandler()
	controller := newMetricsController(metricsHandler, rotationObserver)
	if metrics {
		controller.Enable()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		id, wrap, ok := rotor.Latest()
		if !ok {
			http.Error(w, "no rotation has completed yet", http.StatusServiceUnavailable)
			return
		}
		_ = cmdutil.WriteJSON(w, latestResponse{
			KeyIDHex: hex.EncodeToString(id[:]),
			WrapB64:  base64.StdEncoding.EncodeToString(wrap),
		}, false)
	})

	srv := &http.Server{Addr: listen, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	fmt.Fprintf(stdout, "ntske-rotatord: listening on %s\n", listen)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		return 0
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
}

// loadMasterKey resolves the HMAC master key: an explicit base64 value
// wins, otherwise a key file is read (or created, with a fresh random key,
// if absent), otherwise a random key is used for the life of the process.
// overwrite forces a fresh key to replace whatever is already on disk at
// path instead of reusing it.
func loadMasterKey(base64Key, path string, overwrite bool) ([]byte, error) {
	if strings.TrimSpace(base64Key) != "" {
		return base64.StdEncoding.DecodeString(base64Key)
	}
	if path == "" {
		return randomMasterKey()
	}

	if err := cmdutil.RefuseOverwrite(path, overwrite); err != nil {
		if !cmdutil.IsUsage(err) {
			return nil, err
		}
		// The file already exists and overwrite was not requested: reuse
		// the persisted key instead of replacing it.
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, readErr
		}
		return base64url.Decode(strings.TrimSpace(string(b)))
	}

	key, err := randomMasterKey()
	if err != nil {
		return nil, err
	}
	if err := securefile.MkdirAllOwnerOnly(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := securefile.WriteFileAtomic(path, []byte(base64url.Encode(key)), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func randomMasterKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// seedDemoCache populates the in-memory store with a raw key for every
// offset the first rotation will request, so a freshly started demo
// process has a usable "latest" key instead of failing its first rotation.
func seedDemoCache(store *cache.Map, prefix string, duration time.Duration, forward, backward int64) {
	now := time.Now().Unix()
	d := int64(duration.Seconds())
	for k := -backward - 1; k <= forward+1; k++ {
		e := (now/d + k) * d
		key := fmt.Sprintf("%s/%d", prefix, e)
		raw := make([]byte, 32)
		copy(raw, fmt.Sprintf("%d", e))
		store.Set(key, raw)
	}
}
