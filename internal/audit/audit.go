// Package audit implements the Audit Sink (C8): an async, buffered writer
// that appends one record per mutation (and per privileged read) without
// ever failing the originating operation. Retention is driven separately
// by internal/background, which calls Prune in batches.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/kubefleet/internal/db"
	"github.com/wisbric/kubefleet/internal/httpauth"
)

// Entry is a single audit record to be written.
type Entry struct {
	UserID       uuid.UUID
	ClusterID    *int64
	Action       string
	ResourceKind string
	ResourceName string
	Details      map[string]any
	IPAddress    *netip.Addr
	UserAgent    *string
	Success      bool
	Error        *string
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async, buffered audit log writer: entries are sent to an
// internal channel and flushed by a background goroutine, so appending a
// record never blocks the mutation that produced it.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter creates an audit Writer. Call Start to begin processing.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background flush loop on its own goroutine and
// returns at once. The loop ends when ctx is cancelled or Close is called;
// Close waits for it.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry. It never blocks the caller; if the buffer
// is full the entry is dropped and a warning is logged — a sink failure
// must never fail the originating operation (per P6, the DB write is the
// record of truth, but a full buffer is treated the same as a DB outage:
// logged, not escalated).
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource_kind", entry.ResourceKind, "resource_name", entry.ResourceName)
	}
}

// LogFromRequest extracts identity, IP, and user agent from the request
// and enqueues the entry — the convenience path every mutation handler
// calls on exit, success or failure.
func (w *Writer) LogFromRequest(r *http.Request, clusterID *int64, action, resourceKind, resourceName string, details map[string]any, success bool, errMsg *string) {
	entry := Entry{
		ClusterID:    clusterID,
		Action:       action,
		ResourceKind: resourceKind,
		ResourceName: resourceName,
		Details:      details,
		Success:      success,
		Error:        errMsg,
	}

	if id := httpauth.FromContext(r.Context()); id != nil {
		entry.UserID = id.UserID
	}

	if ip := clientIP(r); ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q := db.New(w.pool)
	for _, e := range entries {
		detailsJSON, err := json.Marshal(e.Details)
		if err != nil {
			detailsJSON = []byte("{}")
		}

		var clusterID pgtype.Int8
		if e.ClusterID != nil {
			clusterID = pgtype.Int8{Int64: *e.ClusterID, Valid: true}
		}

		var ip *string
		if e.IPAddress != nil {
			s := e.IPAddress.String()
			ip = &s
		}

		if _, err := q.CreateAuditLog(ctx, db.CreateAuditLogParams{
			UserID:       pgtype.UUID{Bytes: e.UserID, Valid: e.UserID != uuid.Nil},
			ClusterID:    clusterID,
			Action:       e.Action,
			ResourceKind: e.ResourceKind,
			ResourceName: e.ResourceName,
			Details:      detailsJSON,
			IPAddress:    ip,
			UserAgent:    e.UserAgent,
			Success:      e.Success,
			Error:        e.Error,
		}); err != nil {
			w.logger.Error("writing audit log entry", "error", err, "action", e.Action, "resource_kind", e.ResourceKind)
		}
	}
}

// Prune deletes audit_logs rows older than cutoff, one bounded batch at a
// time, returning the number of rows removed. internal/background calls
// this repeatedly until a batch comes back short of limit.
func (w *Writer) Prune(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	q := db.New(w.pool)
	return q.DeleteAuditLogsOlderThanBatch(ctx, cutoff, limit)
}

func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
