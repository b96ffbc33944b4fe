// Package audit records request metadata in a bounded in-memory ring buffer.
package audit

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained before the oldest is evicted.
const DefaultCapacity = 10_000

// Entry is the record of one request. The raw API key is never stored.
type Entry struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	Query          string    `json:"query,omitempty"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMS float64   `json:"response_time_ms"`
	ClientIP       string    `json:"client_ip"`
	UserAgent      string    `json:"user_agent,omitempty"`
	APIKeyID       string    `json:"api_key_id,omitempty"`
	Tier           string    `json:"tier,omitempty"`
	Bytes          int       `json:"bytes"`
}

// Log is a fixed-capacity ring buffer of entries.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
	total   int64
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]Entry, capacity)}
}

// Append stores e, evicting the oldest entry when the buffer is full.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	l.total++
	l.mu.Unlock()
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.entries)
	}
	return l.next
}

// Total counts every entry ever appended, evicted ones included.
func (l *Log) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Snapshot returns a copy of the retained entries, oldest first.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.full {
		return append([]Entry(nil), l.entries[:l.next]...)
	}
	out := make([]Entry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	return append(out, l.entries[:l.next]...)
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) []Entry {
	all := l.Snapshot()
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]Entry, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out
}

// Count is one bucket of a top-N aggregation.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Stats aggregates entries within a time window.
type Stats struct {
	WindowHours       float64     `json:"window_hours"`
	TotalRequests     int         `json:"total_requests"`
	RequestsPerHour   float64     `json:"requests_per_hour"`
	AvgResponseTimeMS float64     `json:"avg_response_time_ms"`
	ErrorRate         float64     `json:"error_rate"`
	StatusCodes       map[int]int `json:"status_codes"`
	TopPaths          []Count     `json:"top_paths"`
	TopClients        []Count     `json:"top_clients"`
}

// Stats summarizes entries newer than now-window. Errors are responses with
// status 400 and above.
func (l *Log) Stats(now time.Time, window time.Duration, top int) Stats {
	if window <= 0 {
		window = time.Hour
	}
	cutoff := now.Add(-window)
	st := Stats{WindowHours: window.Hours(), StatusCodes: map[int]int{}}
	paths := map[string]int{}
	clients := map[string]int{}
	var totalMS float64
	var errs int
	for _, e := range l.Snapshot() {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		st.TotalRequests++
		totalMS += e.ResponseTimeMS
		st.StatusCodes[e.StatusCode]++
		if e.StatusCode >= 400 {
			errs++
		}
		paths[e.Path]++
		client := e.ClientIP
		if e.APIKeyID != "" {
			client = "key:" + e.APIKeyID
		}
		clients[client]++
	}
	if st.TotalRequests > 0 {
		st.AvgResponseTimeMS = totalMS / float64(st.TotalRequests)
		st.ErrorRate = float64(errs) / float64(st.TotalRequests)
	}
	st.RequestsPerHour = float64(st.TotalRequests) / window.Hours()
	st.TopPaths = topN(paths, top)
	st.TopClients = topN(clients, top)
	return st
}

func topN(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for k, c := range m {
		out = append(out, Count{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
