// Package decisionlog keeps the durable, append-only journal of every
// authorization decision, manual or automated. The journal is the sole
// input to pattern detection, so exactly one record must be written per
// decision.
package decisionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steward-sh/steward/pkg/types"
)

const maxLineBytes = 1 << 20

// Log is a thread-safe JSONL journal. One mutex serializes all access;
// Record holds it across both the in-memory append and the file write
// so concurrent writers never interleave lines.
type Log struct {
	path   string
	logger *slog.Logger

	mu            sync.Mutex
	file          *os.File
	records       []types.DecisionRecord
	sinceAnalysis int
}

// Stats summarizes the journal for the owner-facing surface.
type Stats struct {
	Total        int `json:"total"`
	Approved     int `json:"approved"`
	Denied       int `json:"denied"`
	Auto         int `json:"auto"`
	AutoApproved int `json:"auto_approved"`
	AutoDenied   int `json:"auto_denied"`
}

// TodayStats counts decisions recorded on the current UTC date.
type TodayStats struct {
	AutoApproved int `json:"auto_approved"`
	AutoDenied   int `json:"auto_denied"`
	Manual       int `json:"manual"`
}

// Open replays an existing journal (skipping unparsable trailing lines
// left by a crashed write) and opens it for appending. The analysis
// counter resets to the full replayed count: a restart must not
// silently skip pending analysis.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("decision log path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}

	l := &Log{path: path, logger: logger}
	if err := l.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	l.file = f
	l.sinceAnalysis = len(l.records)
	return l, nil
}

func (l *Log) replay() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open decision log for replay: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	skipped := 0
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.DecisionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		l.records = append(l.records, rec)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("replay decision log: %w", err)
	}
	if skipped > 0 {
		l.logger.Warn("skipped unparsable decision log lines", "path", l.path, "count", skipped)
	}
	return nil
}

// Record appends one decision. ruleID empty means a manual owner
// decision. A failed file write is logged and does not fail the
// decision; the in-memory state stays authoritative.
func (l *Log) Record(ctx types.DecisionContext, decision types.Decision, decisionTimeMS int64, reason, ruleID string) types.DecisionRecord {
	rec := types.DecisionRecord{
		ID:             "dec-" + uuid.NewString(),
		Context:        ctx,
		Decision:       decision,
		DecisionTimeMS: decisionTimeMS,
		Reason:         reason,
		RuleID:         ruleID,
		RecordedAt:     time.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	l.sinceAnalysis++

	b, err := json.Marshal(rec)
	if err != nil {
		l.logger.Warn("marshal decision record", "error", err)
		return rec
	}
	if _, err := l.file.Write(append(b, '\n')); err != nil {
		l.logger.Warn("write decision record", "path", l.path, "error", err)
	}
	return rec
}

// Recent returns up to n records, newest first.
func (l *Log) Recent(n int) []types.DecisionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]types.DecisionRecord, 0, n)
	for i := len(l.records) - 1; i >= len(l.records)-n; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// Window returns the records recorded within the last `days` days.
func (l *Log) Window(days int) []types.DecisionRecord {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return l.filter(func(r types.DecisionRecord) bool {
		return r.RecordedAt.After(cutoff)
	})
}

// ByCapability returns records for one exact capability.
func (l *Log) ByCapability(capability string) []types.DecisionRecord {
	return l.filter(func(r types.DecisionRecord) bool {
		return r.Context.Capability == capability
	})
}

// ByTargetDomain returns records for one exact target domain.
func (l *Log) ByTargetDomain(domain string) []types.DecisionRecord {
	return l.filter(func(r types.DecisionRecord) bool {
		return r.Context.TargetDomain == domain
	})
}

func (l *Log) filter(keep func(types.DecisionRecord) bool) []types.DecisionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.DecisionRecord
	for _, r := range l.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Stats returns journal-wide counts.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var s Stats
	for _, r := range l.records {
		s.Total++
		if r.IsApproval() {
			s.Approved++
		} else {
			s.Denied++
		}
		if r.IsAuto() {
			s.Auto++
			if r.IsApproval() {
				s.AutoApproved++
			} else {
				s.AutoDenied++
			}
		}
	}
	return s
}

// Today returns counts for decisions recorded on the current UTC date.
func (l *Log) Today() TodayStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	today := time.Now().UTC().Format("2006-01-02")
	var s TodayStats
	for _, r := range l.records {
		if r.RecordedAt.UTC().Format("2006-01-02") != today {
			continue
		}
		switch {
		case !r.IsAuto():
			s.Manual++
		case r.IsApproval():
			s.AutoApproved++
		default:
			s.AutoDenied++
		}
	}
	return s
}

// CountSinceLastAnalysis returns the number of decisions recorded since
// the analyzer last consumed the journal.
func (l *Log) CountSinceLastAnalysis() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sinceAnalysis
}

// MarkAnalysisComplete resets the analysis counter.
func (l *Log) MarkAnalysisComplete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinceAnalysis = 0
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
