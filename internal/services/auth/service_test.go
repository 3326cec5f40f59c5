package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/stakegame/internal/dependencies/mocks"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/storage/memory"
	"github.com/mcoot/stakegame/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *quartz.Mock
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(s.T(), mocks.DefaultTime)
	s.service = New(s.storage, s.clock, mocks.NewMockRandom(), DefaultConfig(), testutil.NopLogger())
	s.ctx = context.Background()
}

// CreateGuest tests

func (s *ServiceSuite) TestCreateGuestSucceeds() {
	session, err := s.service.CreateGuest(s.ctx, "  Alice ")
	s.Require().NoError(err)

	s.True(strings.HasPrefix(session.Token, "sess_"))
	s.Equal("Alice", session.Participant.DisplayName)
	s.NotEmpty(session.ParticipantID)
	s.Equal(mocks.DefaultTime.Add(24*time.Hour), session.ExpiresAt)
}

func (s *ServiceSuite) TestCreateGuestPersistsParticipant() {
	session, err := s.service.CreateGuest(s.ctx, "Alice")
	s.Require().NoError(err)

	participant, err := s.storage.GetParticipant(s.ctx, session.ParticipantID)
	s.Require().NoError(err)
	s.Equal("Alice", participant.DisplayName)
}

func (s *ServiceSuite) TestCreateGuestIssuesDistinctIdentities() {
	a, err := s.service.CreateGuest(s.ctx, "Alice")
	s.Require().NoError(err)
	b, err := s.service.CreateGuest(s.ctx, "Alice")
	s.Require().NoError(err)

	s.NotEqual(a.ParticipantID, b.ParticipantID)
	s.NotEqual(a.Token, b.Token)
}

func (s *ServiceSuite) TestCreateGuestRejectsBadNames() {
	for _, name := range []string{"", "   ", strings.Repeat("x", maxDisplayNameLength+1)} {
		_, err := s.service.CreateGuest(s.ctx, name)
		s.ErrorIs(err, model.ErrInvalidRequest, "name %q", name)
	}
}

// ValidateSession tests

func (s *ServiceSuite) TestAuthenticateResolvesParticipant() {
	session, _ := s.service.CreateGuest(s.ctx, "Alice")

	id, err := s.service.Authenticate(session.Token)
	s.Require().NoError(err)
	s.Equal(session.ParticipantID, id)
}

func (s *ServiceSuite) TestValidateSessionFailsWithInvalidToken() {
	_, err := s.service.ValidateSession("invalid_token")
	s.ErrorIs(err, model.ErrInvalidSession)
	s.ErrorIs(err, model.ErrForbidden)
}

func (s *ServiceSuite) TestValidateSessionFailsWhenExpired() {
	session, _ := s.service.CreateGuest(s.ctx, "Alice")

	s.clock.Advance(25 * time.Hour)

	_, err := s.service.ValidateSession(session.Token)
	s.ErrorIs(err, model.ErrInvalidSession)
}

func (s *ServiceSuite) TestInvalidateSessionRemovesSession() {
	session, _ := s.service.CreateGuest(s.ctx, "Alice")

	s.service.InvalidateSession(session.Token)
	s.service.InvalidateSession("unknown_token")

	_, err := s.service.ValidateSession(session.Token)
	s.ErrorIs(err, model.ErrInvalidSession)
}

func (s *ServiceSuite) TestGetParticipant() {
	session, _ := s.service.CreateGuest(s.ctx, "Alice")

	participant, err := s.service.GetParticipant(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal("Alice", participant.DisplayName)

	_, err = s.service.GetParticipant(s.ctx, "invalid_token")
	s.ErrorIs(err, model.ErrInvalidSession)
}

func (s *ServiceSuite) TestCleanExpiredSessionsRemovesExpired() {
	old, _ := s.service.CreateGuest(s.ctx, "Alice")

	s.clock.Advance(25 * time.Hour)

	fresh, _ := s.service.CreateGuest(s.ctx, "Bob")

	s.Equal(1, s.service.CleanExpiredSessions())

	_, err := s.service.ValidateSession(old.Token)
	s.ErrorIs(err, model.ErrInvalidSession)

	_, err = s.service.ValidateSession(fresh.Token)
	s.NoError(err)
}
