// Command lodestone-core is the Lodestone Core entry point: it loads (or
// creates) the on-disk layout under $LODESTONE_PATH, restores any
// previously-configured instances, and serves the §6 HTTP surface until a
// shutdown signal arrives.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lodestone-core/lodestone/infrastructure/logging"
	"github.com/lodestone-core/lodestone/infrastructure/metrics"
	"github.com/lodestone-core/lodestone/internal/app"
	"github.com/lodestone-core/lodestone/internal/httpapi"
)

const defaultBindAddr = "0.0.0.0:16662"

func main() {
	_ = godotenv.Load() // allow a .env beside the binary for local runs

	lodestonePath := flag.String("lodestone-path", "", "root directory for instances, stores, logs and TLS material (overrides LODESTONE_PATH)")
	bindAddr := flag.String("bind", "", "HTTP listen address (default 0.0.0.0:16662)")
	isCLI := flag.Bool("is-cli", false, "affects logging output only")
	isDesktop := flag.Bool("is-desktop", false, "affects logging output only")
	releaseMode := flag.Bool("release", false, "hard-fail instead of auto-incrementing the bind port when occupied")
	flag.Parse()

	dir := resolveLodestonePath(*lodestonePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("create lodestone path %s: %v", dir, err)
	}

	logger := logging.NewFromEnv("lodestone-core")
	if *isCLI {
		logger = logging.New("lodestone-core", "info", "text")
	} else if *isDesktop {
		logger = logging.New("lodestone-core", "info", "json")
	}

	unlock, err := acquireLock(filepath.Join(dir, "lodestone.lock"))
	if err != nil {
		log.Fatalf("acquire lodestone.lock: %v", err)
	}
	defer unlock()

	metrics.Init("lodestone-core")

	application, err := app.New(dir, logger)
	if err != nil {
		log.Fatalf("initialize core: %v", err)
	}

	if application.Auth.Setup != nil {
		fmt.Fprintf(os.Stdout, "first-time-setup key: %s\n", application.Auth.Setup.Key())
	}

	if err := application.RestoreInstances(); err != nil {
		logger.Error(context.Background(), "restore instances failed", err, nil)
	}

	addr := resolveBindAddr(*bindAddr)
	listener, addr, err := listenWithFallback(addr, *releaseMode)
	if err != nil {
		log.Fatalf("bind %s: %v", addr, err)
	}

	router := httpapi.NewRouter(application)
	server := &http.Server{Handler: router}

	certPath := filepath.Join(dir, "tls", "cert.pem")
	keyPath := filepath.Join(dir, "tls", "key.pem")
	useTLS := fileExists(certPath) && fileExists(keyPath)
	if useTLS {
		cert, certErr := tls.LoadX509KeyPair(certPath, keyPath)
		if certErr != nil {
			log.Fatalf("load TLS material: %v", certErr)
		}
		server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	metricsTicker := time.NewTicker(5 * time.Second)
	defer metricsTicker.Stop()
	metricsDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-metricsTicker.C:
				application.RecordRegistryMetrics()
			case <-metricsDone:
				return
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), fmt.Sprintf("lodestone-core listening on %s (tls=%v)", addr, useTLS), nil)
		if useTLS {
			serveErr <- server.ServeTLS(listener, "", "")
		} else {
			serveErr <- server.Serve(listener)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "http server error", err, nil)
		}
	case <-sigCh:
		logger.Info(context.Background(), "shutdown signal received", nil)
	}
	close(metricsDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	application.ShutdownInstancesGraceful(10 * time.Second)
	if err := application.Shutdown(); err != nil {
		logger.Error(context.Background(), "shutdown error", err, nil)
	}
}

func resolveLodestonePath(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("LODESTONE_PATH")); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lodestone"
	}
	return filepath.Join(home, ".lodestone")
}

func resolveBindAddr(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	return defaultBindAddr
}

// listenWithFallback binds addr, auto-incrementing the port on failure
// unless release is set, in which case the first failure is terminal, per
// §6's "Environment / CLI" note.
func listenWithFallback(addr string, release bool) (net.Listener, string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, addr, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, addr, err
	}

	if release {
		ln, err := net.Listen("tcp", addr)
		return ln, addr, err
	}

	for attempt := 0; attempt < 10; attempt++ {
		candidate := net.JoinHostPort(host, strconv.Itoa(port+attempt))
		ln, err := net.Listen("tcp", candidate)
		if err == nil {
			return ln, candidate, nil
		}
	}
	return nil, addr, fmt.Errorf("no free port found near %s after 10 attempts", addr)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// acquireLock creates (or takes over) an exclusive marker file at path,
// preventing a second Core instance from running against the same
// directory. Go's stdlib has no portable advisory file lock, so this uses
// the create-exclusive idiom; a lock whose recorded pid is still running is
// refused, and any other existing lock is treated as stale from an unclean
// shutdown, removed and retried once.
func acquireLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		if raw, readErr := os.ReadFile(path); readErr == nil {
			if pid, convErr := strconv.Atoi(strings.TrimSpace(string(raw))); convErr == nil && pid > 0 {
				if p, findErr := os.FindProcess(pid); findErr == nil && p.Signal(syscall.Signal(0)) == nil {
					return nil, fmt.Errorf("%s is held by running process %d", path, pid)
				}
			}
		}
		_ = os.Remove(path)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { _ = os.Remove(path) }, nil
}
