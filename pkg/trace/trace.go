// Package trace persists refinement session records as JSON bundles so a
// session's score trajectory and decisions can be inspected after the fact.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/storyloom/storyloom/pkg/refine"
)

// SessionRecord captures session-level metadata.
type SessionRecord struct {
	ID         string         `json:"id"`
	Task       string         `json:"task"`
	Timestamp  time.Time      `json:"timestamp"`
	Outcome    refine.Outcome `json:"outcome,omitempty"`
	FinalScore float64        `json:"final_score,omitempty"`
	Iterations int            `json:"iterations"`
}

// IterationTrace is the persisted form of one produce/judge/decide cycle.
type IterationTrace struct {
	Index          int              `json:"index"`
	CandidateID    string           `json:"candidate_id,omitempty"`
	CandidateHash  string           `json:"candidate_hash,omitempty"`
	Verdict        *refine.Verdict  `json:"verdict,omitempty"`
	Decision       *refine.Decision `json:"decision,omitempty"`
	DurationMillis int64            `json:"duration_ms"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Writer writes session bundles to disk under baseDir/sessionID.
type Writer struct {
	baseDir    string
	sessionDir string
	sessionID  string
	task       string
	started    time.Time
	iterations int
}

// NewWriter creates a trace writer rooted at baseDir/sessionID.
func NewWriter(baseDir, sessionID, task string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	sessionDir := filepath.Join(baseDir, sessionID)
	if err := os.MkdirAll(filepath.Join(sessionDir, "iterations"), 0755); err != nil {
		return nil, err
	}

	w := &Writer{
		baseDir:    baseDir,
		sessionDir: sessionDir,
		sessionID:  sessionID,
		task:       task,
		started:    time.Now(),
	}
	if err := w.writeSession(nil); err != nil {
		return nil, err
	}
	return w, nil
}

// SessionDir returns the session directory path.
func (w *Writer) SessionDir() string {
	return w.sessionDir
}

// Observe persists one iteration record. It matches the controller's
// observer signature; write failures are reported through the returned
// Writer state rather than interrupting the session.
func (w *Writer) Observe(rec refine.IterationRecord) {
	trace := IterationTrace{
		Index:          rec.Index,
		Verdict:        rec.Verdict,
		Decision:       rec.Decision,
		DurationMillis: rec.Duration.Milliseconds(),
		Timestamp:      rec.Timestamp,
	}
	if rec.Candidate != nil {
		trace.CandidateID = rec.Candidate.ID()
		trace.CandidateHash = rec.Candidate.Hash()
	}

	path := filepath.Join(w.sessionDir, "iterations", fmt.Sprintf("%03d.json", rec.Index))
	if err := writeJSON(path, trace); err != nil {
		// Tracing is best-effort; a full disk must not kill the session.
		fmt.Fprintf(os.Stderr, "[trace] write iteration %d: %v\n", rec.Index, err)
		return
	}
	w.iterations++
}

// Finish records the session's final outcome in session.json.
func (w *Writer) Finish(result *refine.Result) error {
	return w.writeSession(result)
}

func (w *Writer) writeSession(result *refine.Result) error {
	record := SessionRecord{
		ID:         w.sessionID,
		Task:       w.task,
		Timestamp:  w.started,
		Iterations: w.iterations,
	}
	if result != nil {
		record.Outcome = result.Outcome
		record.FinalScore = result.Score
		record.Iterations = len(result.History)
	}
	return writeJSON(filepath.Join(w.sessionDir, "session.json"), record)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
