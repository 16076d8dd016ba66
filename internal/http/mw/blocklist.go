package mw

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// IPBlocklist blocks abusive click traffic by IP before it reaches the
// tracking endpoints. The list is a JSON array of IPs and CIDR ranges in an
// S3 bucket, shared with the dashboard service that maintains it.
//
// The list is lazy-loaded on first request, refreshed on an interval with
// etag-conditional fetches, and fails open: tracking must keep working when
// object storage does not.
type IPBlocklist struct {
	s3Client *s3.Client
	bucket   string
	key      string

	mu           sync.RWMutex
	blocked      map[string]bool
	blockedCIDRs []*net.IPNet
	etag         string
	lastCheck    time.Time
	lastError    time.Time
	initialized  bool
	cacheTTL     time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
}

// BlocklistConfig holds configuration for the IP blocklist.
type BlocklistConfig struct {
	S3Client     *s3.Client
	Bucket       string
	Key          string
	CacheTTL     time.Duration // refresh interval, default 5m
	ErrorBackoff time.Duration // wait after a fetch error, default 1m
	Logger       *slog.Logger
}

// NewIPBlocklist creates a new IP blocklist middleware.
func NewIPBlocklist(cfg BlocklistConfig) *IPBlocklist {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &IPBlocklist{
		s3Client:     cfg.S3Client,
		bucket:       cfg.Bucket,
		key:          cfg.Key,
		blocked:      make(map[string]bool),
		cacheTTL:     cfg.CacheTTL,
		errorBackoff: cfg.ErrorBackoff,
		logger:       cfg.Logger,
	}
}

// Middleware returns the HTTP middleware handler. With no S3 client
// configured the middleware is a no-op.
func (b *IPBlocklist) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if b.s3Client == nil {
				next.ServeHTTP(w, r)
				return
			}

			b.maybeRefresh(r.Context())

			clientIP := ClientIP(r)
			if b.isBlocked(clientIP) {
				b.logger.Warn("blocked request from blocklisted IP",
					"ip", clientIP, "path", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (b *IPBlocklist) maybeRefresh(ctx context.Context) {
	b.mu.RLock()
	needsRefresh := !b.initialized || time.Since(b.lastCheck) > b.cacheTTL
	inErrorBackoff := !b.lastError.IsZero() && time.Since(b.lastError) < b.errorBackoff
	b.mu.RUnlock()

	if !needsRefresh || inErrorBackoff {
		return
	}

	// Refresh in background so requests never wait on S3.
	go b.refresh(ctx)
}

func (b *IPBlocklist) refresh(ctx context.Context) {
	b.mu.Lock()
	if b.initialized && time.Since(b.lastCheck) < b.cacheTTL {
		b.mu.Unlock()
		return
	}
	currentEtag := b.etag
	b.mu.Unlock()

	input := &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &b.key,
	}
	if currentEtag != "" {
		input.IfNoneMatch = &currentEtag
	}

	resp, err := b.s3Client.GetObject(ctx, input)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			b.mu.Lock()
			b.initialized = true
			b.lastCheck = time.Now()
			b.lastError = time.Now()
			b.mu.Unlock()
			b.logger.Debug("blocklist object not found, will retry later",
				"bucket", b.bucket, "key", b.key)
			return
		}

		var notModified interface{ ErrorCode() string }
		if errors.As(err, &notModified) && notModified.ErrorCode() == "NotModified" {
			b.mu.Lock()
			b.lastCheck = time.Now()
			b.mu.Unlock()
			return
		}

		b.mu.Lock()
		b.lastError = time.Now()
		b.initialized = true
		b.mu.Unlock()
		b.logger.Error("failed to fetch blocklist",
			"error", err, "bucket", b.bucket, "key", b.key)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	var entries []string
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		b.mu.Lock()
		b.lastError = time.Now()
		b.initialized = true
		b.mu.Unlock()
		b.logger.Error("failed to parse blocklist JSON", "error", err)
		return
	}

	blocked := make(map[string]bool)
	var cidrs []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				b.logger.Warn("invalid CIDR in blocklist", "entry", entry, "error", err)
				continue
			}
			cidrs = append(cidrs, ipNet)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			blocked[ip.String()] = true
		} else {
			b.logger.Warn("invalid IP in blocklist", "entry", entry)
		}
	}

	b.mu.Lock()
	b.blocked = blocked
	b.blockedCIDRs = cidrs
	b.initialized = true
	b.lastCheck = time.Now()
	b.lastError = time.Time{}
	if resp.ETag != nil {
		b.etag = *resp.ETag
	}
	b.mu.Unlock()

	b.logger.Info("blocklist refreshed", "exact_ips", len(blocked), "cidr_ranges", len(cidrs))
}

func (b *IPBlocklist) isBlocked(ipStr string) bool {
	if ipStr == "" {
		return false
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.blocked[ip.String()] {
		return true
	}
	for _, cidr := range b.blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the client IP of a request. Assumes middleware.RealIP
// has already rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
