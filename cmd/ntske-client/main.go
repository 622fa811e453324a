package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Phala-Network/phala-nts-go/internal/cmdutil"
	ntsversion "github.com/Phala-Network/phala-nts-go/internal/version"
	"github.com/Phala-Network/phala-nts-go/ke"
	"github.com/Phala-Network/phala-nts-go/ke/keerr"
	"github.com/Phala-Network/phala-nts-go/observability/prom"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type result struct {
	NextServer    string   `json:"next_server"`
	NextPort      uint16   `json:"next_port"`
	AEADScheme    uint16   `json:"aead_scheme"`
	NextProtocols []uint16 `json:"next_protocols"`
	CookiesB64    []string `json:"cookies_base64"`
	C2SKeyB64     string   `json:"c2s_key_base64"`
	S2CKeyB64     string   `json:"s2c_key_base64"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		showVersion   bool
		host          string
		port          uint
		useIPv6       bool
		timeout       time.Duration
		pretty        bool
		metrics       bool
		metricsListen string
	)

	host = cmdutil.EnvString("NTSKE_HOST", "")
	timeout, _ = cmdutil.EnvDuration("NTSKE_TIMEOUT", 20*time.Second)
	metrics, _ = cmdutil.EnvBool("NTSKE_METRICS", false)
	metricsListen = cmdutil.EnvString("NTSKE_METRICS_LISTEN", ":9468")

	fs := flag.NewFlagSet("ntske-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&host, "host", host, "NTS-KE server host (env: NTSKE_HOST)")
	fs.UintVar(&port, "port", 0, "NTS-KE server port (default 4460)")
	fs.BoolVar(&useIPv6, "ipv6", false, "resolve an IPv6 address instead of IPv4")
	fs.DurationVar(&timeout, "timeout", timeout, "timeout for resolution, connect and TLS handshake; the record exchange uses the fixed 15s per-I/O timeouts (env: NTSKE_TIMEOUT)")
	fs.BoolVar(&pretty, "pretty", false, "pretty-print the JSON result")
	fs.BoolVar(&metrics, "metrics", metrics, "export Prometheus handshake metrics on --metrics-listen and keep running until interrupted (env: NTSKE_METRICS)")
	fs.StringVar(&metricsListen, "metrics-listen", metricsListen, "HTTP listen address for /metrics when --metrics is set (env: NTSKE_METRICS_LISTEN)")
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
	if err := validateArgs(host); err != nil {
		fmt.Fprintln(stderr, err)
		if cmdutil.IsUsage(err) {
			fs.Usage()
			return 2
		}
		return 1
	}

	logger := log.New(stderr, "ntske-client: ", log.LstdFlags)

	var obs ke.Observer = ke.NoopObserver
	var metricsSrv *http.Server
	if metrics {
		reg := prom.NewRegistry()
		obs = prom.NewHandshakeObserver(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler(reg))
		metricsSrv = &http.Server{Addr: metricsListen, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(stderr, "metrics server: %v\n", err)
			}
		}()
		fmt.Fprintf(stdout, "ntske-client: serving metrics on %s\n", metricsListen)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	hres, hsErr := ke.RunHandshake(ctx, ke.ClientConfig{
		Host:     host,
		Port:     uint16(port),
		UseIPv6:  useIPv6,
		Logger:   logger,
		Observer: obs,
	})
	cancel()

	exitCode := 0
	if hsErr != nil {
		var kerr *keerr.Error
		if errors.As(hsErr, &kerr) {
			fmt.Fprintf(stderr, "handshake failed: stage=%s code=%s: %v\n", kerr.Stage, kerr.Code, kerr.Err)
		} else {
			fmt.Fprintln(stderr, hsErr)
		}
		exitCode = 1
	} else {
		cookies := make([]string, len(hres.Cookies))
		for i, c := range hres.Cookies {
			cookies[i] = base64.StdEncoding.EncodeToString(c)
		}
		out := result{
			NextServer:    hres.NextServer,
			NextPort:      hres.NextPort,
			AEADScheme:    hres.AEADScheme,
			NextProtocols: hres.NextProtocols,
			CookiesB64:    cookies,
			C2SKeyB64:     base64.StdEncoding.EncodeToString(hres.Keys.C2S),
			S2CKeyB64:     base64.StdEncoding.EncodeToString(hres.Keys.S2C),
		}
		if err := cmdutil.WriteJSON(stdout, out, pretty); err != nil {
			fmt.Fprintln(stderr, err)
			exitCode = 1
		}
	}

	if metricsSrv != nil {
		waitAndShutdown(stdout, metricsSrv)
	}
	return exitCode
}

// validateArgs reports usage errors that the flag package itself can't
// catch, such as a required flag left empty.
func validateArgs(host string) error {
	if host == "" {
		return &cmdutil.UsageError{Msg: "missing --host"}
	}
	return nil
}

// waitAndShutdown blocks until the process receives an interrupt or
// termination signal, then shuts metricsSrv down gracefully. It is only
// invoked when --metrics was requested, so a single handshake's outcome
// stays scrapeable until the operator is done with it.
func waitAndShutdown(stdout io.Writer, metricsSrv *http.Server) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	fmt.Fprintln(stdout, "ntske-client: metrics server running, press Ctrl-C to exit")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
