// Package stm implements Short-Term Memory (spec §4.9): a per-session
// rolling window of recent messages plus a rolling summary, a last-results
// cache, and a trip-plan summary, backed by Redis under key "STM:<session_id>".
package stm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxMessages = 10

// Message is a single turn recorded in the rolling window.
type Message struct {
	Role      string    `json:"role"` // "user" or "agent"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PlanStep is the compact trip-plan summary exposed to the planner (§3).
type PlanStep struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Segment   string `json:"segment"`
	Title     string `json:"title"`
	EventTime string `json:"event_time,omitempty"`
	Status    string `json:"status"`
}

// Record is the STM record keyed by session_id (spec §3).
type Record struct {
	SessionID       string           `json:"session_id"`
	UserEmail       string           `json:"user_email"`
	LastMessages    []Message        `json:"last_messages"`
	Summary         string           `json:"summary"`
	LastResults     map[string]any   `json:"last_results"`
	TripPlanSummary []PlanStep       `json:"trip_plan_summary"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Summarizer condenses messages older than the rolling window into a 3-4
// line summary. ModelSummarizer requests the small model tier
// (model.ModelClassSmall); which model ID backs that tier is the model
// client's configuration (spec §4.9 / SPEC_FULL.md §12).
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}

// redisClient is the subset of *redis.Client the store depends on, kept as
// an interface so tests can exercise Store against a fake without a live
// Redis instance.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store is the Redis-backed STM implementation.
type Store struct {
	client     redisClient
	summarizer Summarizer

	// locks serializes appends per session_id (spec §5: "STM writes for a
	// session are serialized by a per-session lock").
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// New builds a Store against an already-configured Redis client.
func New(client *redis.Client, summarizer Summarizer) *Store {
	return newStore(client, summarizer)
}

func newStore(client redisClient, summarizer Summarizer) *Store {
	return &Store{
		client:     client,
		summarizer: summarizer,
		locks:      make(map[string]*sync.Mutex),
	}
}

func key(sessionID string) string {
	return fmt.Sprintf("STM:%s", sessionID)
}

// Get retrieves the STM record for a session, or nil if none exists.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.client.Get(ctx, key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stm get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("stm decode: %w", err)
	}
	return &rec, nil
}

// Clear removes the STM record for a session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, key(sessionID)).Err()
}

// GetSummary is a convenience accessor over Get.
func (s *Store) GetSummary(ctx context.Context, sessionID string) (string, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.Summary, nil
}

// AddMessage appends a message, keeping the window bounded (§4.9). When the
// window would exceed maxMessages, the oldest overflow is folded into
// Summary via Summarizer and dropped from LastMessages.
func (s *Store) AddMessage(ctx context.Context, sessionID, userEmail, role, text string) error {
	if role != "user" && role != "agent" {
		return fmt.Errorf("stm: invalid role %q", role)
	}

	unlock := s.lock(sessionID)
	defer unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{SessionID: sessionID, UserEmail: userEmail, LastResults: map[string]any{}}
	}
	rec.UserEmail = userEmail

	rec.LastMessages = append(rec.LastMessages, Message{Role: role, Text: text, Timestamp: time.Now()})
	sort.Slice(rec.LastMessages, func(i, j int) bool {
		return rec.LastMessages[i].Timestamp.Before(rec.LastMessages[j].Timestamp)
	})

	if len(rec.LastMessages) > maxMessages {
		overflow := rec.LastMessages[:len(rec.LastMessages)-maxMessages]
		rec.LastMessages = rec.LastMessages[len(rec.LastMessages)-maxMessages:]
		if s.summarizer != nil {
			// Feed the previous summary back in so the new one still covers
			// every message older than the window, not just this overflow.
			if rec.Summary != "" {
				overflow = append([]Message{{Role: "summary", Text: rec.Summary}}, overflow...)
			}
			summary, err := s.summarizer.Summarize(ctx, overflow)
			if err != nil {
				summary = "Summary unavailable"
			}
			rec.Summary = summary
		}
	}

	rec.UpdatedAt = time.Now()
	return s.save(ctx, rec)
}

// SetLastResults overwrites the worker-result cache used for back-reference
// resolution ("the cheapest one").
func (s *Store) SetLastResults(ctx context.Context, sessionID string, results map[string]any) error {
	unlock := s.lock(sessionID)
	defer unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{SessionID: sessionID}
	}
	rec.LastResults = results
	rec.UpdatedAt = time.Now()
	return s.save(ctx, rec)
}

// SetTripPlanSummary overwrites the trip-plan summary the planner consumes.
func (s *Store) SetTripPlanSummary(ctx context.Context, sessionID string, steps []PlanStep) error {
	unlock := s.lock(sessionID)
	defer unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{SessionID: sessionID}
	}
	rec.TripPlanSummary = steps
	rec.UpdatedAt = time.Now()
	return s.save(ctx, rec)
}

func (s *Store) save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("stm encode: %w", err)
	}
	return s.client.Set(ctx, key(rec.SessionID), data, 0).Err()
}

func (s *Store) lock(sessionID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	s.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}
