package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/clock"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/realtime"
	"github.com/monstrox/monstro/internal/social/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxContentLength = 4000
	maxChatMembers   = 50
	maxMediaURLs     = 10
	maxEmojiLength   = 32
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Locations locationdomain.Service
	Members   memberdomain.Service
	Realtime  realtime.Publisher `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	locations locationdomain.Service
	members   memberdomain.Service
	realtime  realtime.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("social.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		locations: p.Locations,
		members:   p.Members,
		realtime:  p.Realtime,
	}
}

// inLocation reports whether the user belongs to the location as a member
// with a live membership or as staff.
func (s *Service) inLocation(ctx context.Context, userID, locationID snowflake.ID) error {
	member, err := s.members.GetByUserID(ctx, userID.String())
	if err != nil && !errors.Is(err, memberdomain.ErrNotFound) {
		return err
	}
	if member != nil {
		membership, err := s.members.GetMembership(ctx, locationID, member.ID)
		if err != nil && !errors.Is(err, memberdomain.ErrNotMember) {
			return err
		}
		if membership != nil && membership.Status != memberdomain.MembershipArchived {
			return nil
		}
	}
	staff, err := s.locations.ListStaff(ctx, locationID.String())
	if err != nil {
		return err
	}
	for _, st := range staff {
		if st.UserID == userID {
			return nil
		}
	}
	return domain.ErrNotLocationMember
}

func (s *Service) publish(ctx context.Context, channel, eventType string, payload any) {
	if s.realtime == nil {
		return
	}
	if err := s.realtime.Publish(ctx, channel, eventType, payload); err != nil {
		s.log.Warn("realtime publish failed", zap.String("channel", channel), zap.String("type", eventType), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func cleanContent(value string) (string, error) {
	content := strings.TrimSpace(value)
	if content == "" || len(content) > maxContentLength {
		return "", domain.ErrInvalidContent
	}
	return content, nil
}
