package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kulaginds/zel-html5/internal/anim"
	"github.com/kulaginds/zel-html5/internal/config"
	"github.com/kulaginds/zel-html5/internal/handler"
	"github.com/kulaginds/zel-html5/internal/logging"
	"github.com/kulaginds/zel-html5/web"
)

const (
	appName    = "ZEL HTML5 Viewer"
	appVersion = "v1.0.0"
)

func main() {
	hostFlag := flag.String("host", "", "server host")
	portFlag := flag.String("port", "", "server port")
	animationsFlag := flag.String("animations", "", "directory with .zel animation files")
	logLevelFlag := flag.String("log-level", "", "log level (debug, info, warn, error)")
	helpFlag := flag.Bool("help", false, "show help")
	versionFlag := flag.Bool("version", false, "show version")

	flag.Parse()

	if *helpFlag {
		showHelp()
		return
	}

	if *versionFlag {
		showVersion()
		return
	}

	opts := config.LoadOptions{
		Host:          strings.TrimSpace(*hostFlag),
		Port:          strings.TrimSpace(*portFlag),
		LogLevel:      strings.TrimSpace(*logLevelFlag),
		AnimationsDir: strings.TrimSpace(*animationsFlag),
	}

	cfg, err := config.LoadWithOverrides(opts)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logging.SetLevelFromString(cfg.Logging.Level)

	store := anim.NewStore()
	maxFileSize := int64(cfg.Animations.MaxFileSizeMB) << 20
	loaded, err := store.LoadDir(cfg.Animations.Dir, maxFileSize)
	if err != nil {
		log.Fatalf("failed to load animations: %v", err)
	}
	logging.Info("loaded %d animations from %s", loaded, cfg.Animations.Dir)

	server, err := createServer(cfg, store)
	if err != nil {
		log.Fatalln(err)
	}
	logging.Info("starting server on %s:%s (TLS=%t)", cfg.Server.Host, cfg.Server.Port, cfg.Security.EnableTLS)

	if err := startServer(server, cfg); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalln(err)
	}
}

func createServer(cfg *config.Config, store *anim.Store) (*http.Server, error) {
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	assets, err := web.DistFS()
	if err != nil {
		return nil, fmt.Errorf("load web assets: %w", err)
	}

	streamHandler := handler.New(store, cfg.Security.AllowedOrigins, cfg.Animations.MaxFrameRate)

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(assets)))
	mux.HandleFunc("/animations", streamHandler.Animations)
	mux.HandleFunc("/stream", streamHandler.Stream)

	h := applySecurityMiddleware(mux, cfg)
	h = requestLoggingMiddleware(h)

	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, nil
}

func startServer(server *http.Server, cfg *config.Config) error {
	if cfg.Security.EnableTLS {
		return server.ListenAndServeTLS(cfg.Security.TLSCertFile, cfg.Security.TLSKeyFile)
	}

	return server.ListenAndServe()
}

func applySecurityMiddleware(next http.Handler, cfg *config.Config) http.Handler {
	if cfg == nil {
		return securityHeadersMiddleware(corsMiddleware(next, nil))
	}

	h := next
	if cfg.Security.EnableRateLimit {
		h = rateLimitMiddleware(h, cfg.Security.RateLimitPerMinute)
	}
	h = corsMiddleware(h, cfg.Security.AllowedOrigins)
	h = securityHeadersMiddleware(h)

	return h
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// Allow inline scripts/styles and WASM for the single-page viewer
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' 'wasm-unsafe-eval'; style-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:")

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if isOriginAllowed(origin, allowedOrigins, r.Host) {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isOriginAllowed(origin string, allowedOrigins []string, host string) bool {
	if origin == "" {
		return true
	}

	if strings.HasSuffix(origin, "//"+host) {
		return true
	}

	for _, allowed := range allowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}

	return false
}

// rateLimitMiddleware applies a per-client sliding window over requests.
func rateLimitMiddleware(next http.Handler, perMinute int) http.Handler {
	var (
		mu      sync.Mutex
		clients = map[string][]time.Time{}
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		now := time.Now()
		cutoff := now.Add(-time.Minute)

		mu.Lock()
		window := clients[ip]
		kept := window[:0]
		for _, ts := range window {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}

		if len(kept) >= perMinute {
			clients[ip] = kept
			mu.Unlock()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		clients[ip] = append(kept, now)
		mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}

	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx > 0 {
		host = host[:idx]
	}

	return host
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func showHelp() {
	fmt.Printf("%s %s\n\n", appName, appVersion)
	fmt.Println("Streams ZEL animations to the browser over websocket.")
	fmt.Println()
	fmt.Println("Usage:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment variables mirror the flags; see internal/config.")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
}
