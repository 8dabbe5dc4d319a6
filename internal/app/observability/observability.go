package observability

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"olympiad/internal/auth"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

// Collector records per-route request counts and latency and writes one
// JSON access log line per request.
type Collector struct {
	db  *sql.DB
	rdb *redis.Client

	mu           sync.RWMutex
	requestStats map[key]stat
	startedAt    time.Time
}

// NewCollector reports pool stats for db and rdb when they are non-nil.
func NewCollector(db *sql.DB, rdb *redis.Client) *Collector {
	return &Collector{
		db:           db,
		rdb:          rdb,
		requestStats: make(map[key]stat),
		startedAt:    time.Now(),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

type tagsKey struct{}

// requestTags is filled in by inner middleware so the access log can see
// values that only exist deeper in the chain.
type requestTags struct {
	userID int64
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tags := &requestTags{}
		r = r.WithContext(context.WithValue(r.Context(), tagsKey{}, tags))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		entry := map[string]any{
			"request_id":     middleware.GetReqID(r.Context()),
			"user_id":        tags.userID,
			"competition_id": extractCompetitionID(r.URL.Path),
			"method":         r.Method,
			"path":           path,
			"status":         rec.status,
			"latency_ms":     latencyMS,
			"remote_ip":      strings.TrimSpace(r.RemoteAddr),
		}
		b, _ := json.Marshal(entry)
		log.Printf("%s", string(b))
	})
}

// TagUser records the authenticated user for the access log. Mount it after
// the auth middleware.
func TagUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tags, ok := r.Context().Value(tagsKey{}).(*requestTags); ok {
			if u, ok := auth.CurrentUser(r.Context()); ok {
				tags.userID = u.ID
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# olympiad observability metrics\n")
	sb.WriteString("# TYPE olympiad_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("olympiad_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE olympiad_http_requests_total counter\n")
	sb.WriteString("# TYPE olympiad_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE olympiad_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("olympiad_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("olympiad_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("olympiad_http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE olympiad_db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf("olympiad_db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE olympiad_db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf("olympiad_db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE olympiad_db_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf("olympiad_db_idle_connections %d\n", dbs.Idle))
		sb.WriteString("# TYPE olympiad_db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf("olympiad_db_wait_count %d\n", dbs.WaitCount))
		sb.WriteString("# TYPE olympiad_db_wait_duration_ms counter\n")
		sb.WriteString(fmt.Sprintf("olympiad_db_wait_duration_ms %.3f\n", float64(dbs.WaitDuration.Microseconds())/1000.0))
	}

	if c.rdb != nil {
		ps := c.rdb.PoolStats()
		sb.WriteString("# TYPE olympiad_redis_pool_hits counter\n")
		sb.WriteString(fmt.Sprintf("olympiad_redis_pool_hits %d\n", ps.Hits))
		sb.WriteString("# TYPE olympiad_redis_pool_misses counter\n")
		sb.WriteString(fmt.Sprintf("olympiad_redis_pool_misses %d\n", ps.Misses))
		sb.WriteString("# TYPE olympiad_redis_pool_timeouts counter\n")
		sb.WriteString(fmt.Sprintf("olympiad_redis_pool_timeouts %d\n", ps.Timeouts))
		sb.WriteString("# TYPE olympiad_redis_total_connections gauge\n")
		sb.WriteString(fmt.Sprintf("olympiad_redis_total_connections %d\n", ps.TotalConns))
		sb.WriteString("# TYPE olympiad_redis_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf("olympiad_redis_idle_connections %d\n", ps.IdleConns))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func extractCompetitionID(path string) int64 {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "competitions" {
			if id, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
				return id
			}
		}
	}
	return 0
}
