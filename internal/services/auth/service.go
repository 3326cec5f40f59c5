package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mcoot/stakegame/internal/dependencies/clock"
	"github.com/mcoot/stakegame/internal/dependencies/random"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/storage"
)

const (
	tokenLength          = 32
	maxDisplayNameLength = 32
)

// Session represents an authenticated bearer token
type Session struct {
	Token         string
	ParticipantID model.ParticipantID
	Participant   model.Participant
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Service is the development identity provider. It issues guest
// participants and resolves bearer tokens back to them.
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	sessionDuration time.Duration
}

// Config holds configuration for the auth service
type Config struct {
	SessionDuration time.Duration
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 24 * time.Hour,
	}
}

// New creates a new auth Service
func New(storage storage.Storage, clock clock.Clock, random random.Random, cfg Config, logger *slog.Logger) *Service {
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = DefaultConfig().SessionDuration
	}
	return &Service{
		storage:         storage,
		clock:           clock,
		random:          random,
		logger:          logger,
		sessions:        make(map[string]*Session),
		sessionDuration: cfg.SessionDuration,
	}
}

// CreateGuest creates an anonymous participant and a session for it
func (s *Service) CreateGuest(ctx context.Context, displayName string) (*Session, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, fmt.Errorf("display name must be 1-%d characters: %w", maxDisplayNameLength, model.ErrInvalidRequest)
	}

	participant := &model.Participant{
		ID:          model.ParticipantID("p_" + s.random.UUID()),
		DisplayName: displayName,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.storage.SaveParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("save participant: %w", err)
	}

	s.logger.Info("guest participant created", slog.String("participant_id", string(participant.ID)))
	return s.createSession(participant), nil
}

// ValidateSession checks if a token is valid and returns its session
func (s *Service) ValidateSession(token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, model.ErrInvalidSession
	}

	if s.clock.Now().After(session.ExpiresAt) {
		s.InvalidateSession(token)
		return nil, model.ErrInvalidSession
	}

	return session, nil
}

// Authenticate resolves a bearer token to its participant id
func (s *Service) Authenticate(token string) (model.ParticipantID, error) {
	session, err := s.ValidateSession(token)
	if err != nil {
		return "", err
	}
	return session.ParticipantID, nil
}

// InvalidateSession removes a session
func (s *Service) InvalidateSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// GetParticipant returns the stored participant for a session token
func (s *Service) GetParticipant(ctx context.Context, token string) (*model.Participant, error) {
	session, err := s.ValidateSession(token)
	if err != nil {
		return nil, err
	}
	return s.storage.GetParticipant(ctx, session.ParticipantID)
}

func (s *Service) createSession(participant *model.Participant) *Session {
	now := s.clock.Now()
	session := &Session{
		Token:         "sess_" + s.random.String(tokenLength, random.TokenAlphabet),
		ParticipantID: participant.ID,
		Participant:   *participant,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.sessionDuration),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}

// CleanExpiredSessions removes expired sessions and returns how many were
// removed. The sweeper calls it periodically.
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}
