package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/monstrox/monstro/internal/realtime"
	"github.com/monstrox/monstro/internal/social/domain"
	"github.com/monstrox/monstro/pkg/db"
	"github.com/monstrox/monstro/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 3

func (s *Service) CreateGroup(ctx context.Context, userID, locationID string, req domain.CreateGroupRequest) (*domain.Group, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 120 {
		return nil, domain.ErrInvalidName
	}
	if err := s.inLocation(ctx, uid, lid); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	group := domain.Group{
		ID:          s.genID.Generate(),
		LocationID:  lid,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   uid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := domain.GroupMember{GroupID: group.ID, UserID: uid, Role: domain.GroupRoleOwner, JoinedAt: now}

	for attempt := 0; ; attempt++ {
		group.Slug, err = s.groupSlug(ctx, lid, name)
		if err != nil {
			return nil, err
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.repo.InsertGroup(ctx, tx, &group, owner)
		})
		if err == nil {
			break
		}
		if !db.IsDuplicateKeyErr(err) || attempt+1 >= maxSlugAttempts {
			return nil, err
		}
	}

	s.log.Info("group created",
		zap.String("location_id", lid.String()),
		zap.String("group_id", group.ID.String()),
		zap.String("slug", group.Slug),
	)
	return &group, nil
}

// groupSlug picks base or base-N, unique within the location.
func (s *Service) groupSlug(ctx context.Context, locationID snowflake.ID, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "group"
	}
	taken, err := s.repo.GroupSlugsWithPrefix(ctx, s.db, locationID, base)
	if err != nil {
		return "", err
	}
	used := make(map[string]bool, len(taken))
	for _, t := range taken {
		used[t] = true
	}
	if !used[base] {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !used[candidate] {
			return candidate, nil
		}
	}
}

func (s *Service) loadGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	gid, err := parseID(groupID)
	if err != nil {
		return nil, err
	}
	group, err := s.repo.FindGroup(ctx, s.db, gid)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}
	return group, nil
}

func (s *Service) groupMember(ctx context.Context, groupID, userID snowflake.ID) (*domain.GroupMember, error) {
	member, err := s.repo.FindGroupMember(ctx, s.db, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrNotGroupMember
	}
	return member, nil
}

func (s *Service) CheckGroupAccess(ctx context.Context, userID, groupID string) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	_, err = s.groupMember(ctx, group.ID, uid)
	return err
}

func (s *Service) JoinGroup(ctx context.Context, userID, groupID string) (*domain.GroupMember, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.inLocation(ctx, uid, group.LocationID); err != nil {
		return nil, err
	}
	member := domain.GroupMember{
		GroupID:  group.ID,
		UserID:   uid,
		Role:     domain.GroupRoleMember,
		JoinedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.UpsertGroupMember(ctx, s.db, &member); err != nil {
		return nil, err
	}
	// joining twice keeps the original row
	return s.groupMember(ctx, group.ID, uid)
}

func (s *Service) LeaveGroup(ctx context.Context, userID, groupID string) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	member, err := s.groupMember(ctx, group.ID, uid)
	if err != nil {
		return err
	}
	if member.Role == domain.GroupRoleOwner {
		return domain.ErrOwnerCannotLeave
	}
	return s.repo.DeleteGroupMember(ctx, s.db, group.ID, uid)
}

func (s *Service) ListGroups(ctx context.Context, userID, locationID string) ([]domain.Group, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	lid, err := parseID(locationID)
	if err != nil {
		return nil, err
	}
	if err := s.inLocation(ctx, uid, lid); err != nil {
		return nil, err
	}
	groups, err := s.repo.ListGroups(ctx, s.db, lid)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	return groups, nil
}

func (s *Service) PostMoment(ctx context.Context, userID, groupID string, req domain.PostMomentRequest) (*domain.Moment, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.groupMember(ctx, group.ID, uid); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.Content)
	media := make([]string, 0, len(req.MediaURLs))
	for _, u := range req.MediaURLs {
		if u = strings.TrimSpace(u); u != "" {
			media = append(media, u)
		}
	}
	// a moment can be text, media, or both
	if len(content) > maxContentLength || len(media) > maxMediaURLs || (content == "" && len(media) == 0) {
		return nil, domain.ErrInvalidContent
	}

	now := s.clock.Now().UTC()
	moment := domain.Moment{
		ID:        s.genID.Generate(),
		GroupID:   group.ID,
		AuthorID:  uid,
		Content:   content,
		MediaURLs: db.StringArray(media),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertMoment(ctx, s.db, &moment); err != nil {
		return nil, err
	}
	s.publish(ctx, realtime.GroupChannel(group.ID.String()), domain.EventMomentCreated, moment)
	return &moment, nil
}

func (s *Service) ListMoments(ctx context.Context, userID, groupID string, page pagination.Pagination) (domain.ListMomentsResponse, error) {
	uid, err := parseID(userID)
	if err != nil {
		return domain.ListMomentsResponse{}, err
	}
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return domain.ListMomentsResponse{}, err
	}
	if _, err := s.groupMember(ctx, group.ID, uid); err != nil {
		return domain.ListMomentsResponse{}, err
	}
	moments, err := s.repo.ListMoments(ctx, s.db, group.ID, page)
	if err != nil {
		return domain.ListMomentsResponse{}, err
	}
	moments, info := pagination.BuildCursorPageInfo(moments, page.Limit(), func(m domain.Moment) pagination.Cursor {
		return pagination.Cursor{ID: int64(m.ID), CreatedAt: m.CreatedAt}
	})
	if moments == nil {
		moments = []domain.Moment{}
	}
	return domain.ListMomentsResponse{PageInfo: info, Moments: moments}, nil
}

// DeleteMoment is allowed for the author and the group owner.
func (s *Service) DeleteMoment(ctx context.Context, userID, momentID string) error {
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	mid, err := parseID(momentID)
	if err != nil {
		return err
	}
	moment, err := s.repo.FindMoment(ctx, s.db, mid)
	if err != nil {
		return err
	}
	if moment == nil {
		return domain.ErrMomentNotFound
	}
	if moment.AuthorID != uid {
		member, err := s.repo.FindGroupMember(ctx, s.db, moment.GroupID, uid)
		if err != nil {
			return err
		}
		if member == nil || member.Role != domain.GroupRoleOwner {
			return domain.ErrNotAuthor
		}
	}
	if err := s.repo.DeleteMoment(ctx, s.db, mid); err != nil {
		return err
	}
	s.publish(ctx, realtime.GroupChannel(moment.GroupID.String()), domain.EventMomentDeleted, map[string]string{
		"id":       moment.ID.String(),
		"group_id": moment.GroupID.String(),
	})
	return nil
}
