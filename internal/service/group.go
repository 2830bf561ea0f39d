package service

import (
	"context"
	"sort"

	"school_messenger/internal/domain"
	"school_messenger/internal/repository"
	"school_messenger/pkg/logger"
)

const groupPageSize = 20

type GroupService interface {
	// RoomsForUser computes the user's full set of encoded group tokens:
	// every automatic group implied by the user's roles plus every custom
	// group they are an active member of. The live channel subscribes a
	// fresh connection to exactly this set.
	RoomsForUser(ctx context.Context, user *domain.User) ([]string, error)
	ListGroups(ctx context.Context, user *domain.User, sortBy string, page int) ([]domain.GroupSummary, error)
	CanAccess(ctx context.Context, user *domain.User, token string) (bool, error)
}

type groupService struct {
	groupRepo   repository.GroupRepository
	messageRepo repository.MessageRepository
	log         logger.Logger
}

func NewGroupService(groupRepo repository.GroupRepository, messageRepo repository.MessageRepository, log logger.Logger) GroupService {
	return &groupService{
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		log:         log,
	}
}

func (s *groupService) RoomsForUser(ctx context.Context, user *domain.User) ([]string, error) {
	var rooms []string
	seen := map[string]bool{}
	add := func(g domain.GroupIdentifier) {
		token := domain.MustEncodeGroup(g)
		if !seen[token] {
			seen[token] = true
			rooms = append(rooms, token)
		}
	}

	add(domain.NewSchoolWideGroup(user.SchoolID))

	// Students and parents follow the enrolled class/section and the
	// subjects taught in that class.
	if user.ClassNum != nil {
		add(domain.NewClassGroup(user.SchoolID, *user.ClassNum))
		if user.SectionNum != nil {
			add(domain.NewSectionGroup(user.SchoolID, *user.ClassNum, *user.SectionNum))
		}
		subjects, err := s.groupRepo.ListClassSubjects(ctx, user.SchoolID, *user.ClassNum)
		if err != nil {
			return nil, err
		}
		for _, subject := range subjects {
			add(domain.NewSubjectGroup(user.SchoolID, subject.ID))
		}
	}

	// Teaching staff follow every class/section/subject they are assigned to.
	if user.TeacherID != nil {
		assignments, err := s.groupRepo.ListAssignments(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range assignments {
			add(domain.NewClassGroup(user.SchoolID, a.ClassNum))
			if a.SectionNum != nil {
				add(domain.NewSectionGroup(user.SchoolID, a.ClassNum, *a.SectionNum))
			}
			if a.SubjectID != nil {
				add(domain.NewSubjectGroup(user.SchoolID, *a.SubjectID))
			}
		}
	}

	memberGroups, err := s.groupRepo.ListMemberGroups(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range memberGroups {
		add(domain.NewCustomGroup(g.SchoolID, g.ID))
	}

	return rooms, nil
}

func (s *groupService) ListGroups(ctx context.Context, user *domain.User, sortBy string, page int) ([]domain.GroupSummary, error) {
	groups, err := s.groupRepo.ListMemberGroups(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.GroupSummary, 0, len(groups))
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		token := domain.MustEncodeGroup(domain.NewCustomGroup(g.SchoolID, g.ID))
		summaries = append(summaries, domain.GroupSummary{Key: token, Name: g.Name})
		keys = append(keys, token)
	}

	if len(keys) > 0 {
		lastAt, err := s.messageRepo.LastMessageAt(ctx, keys)
		if err != nil {
			// Listing still works without activity info
			s.log.Warn("Failed to load last message times", "error", err)
		} else {
			for i := range summaries {
				if at, ok := lastAt[summaries[i].Key]; ok {
					t := at
					summaries[i].LastMessageAt = &t
				}
			}
		}
	}

	switch sortBy {
	case "recent":
		sort.SliceStable(summaries, func(i, j int) bool {
			a, b := summaries[i].LastMessageAt, summaries[j].LastMessageAt
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			return a.After(*b)
		})
	default:
		sort.SliceStable(summaries, func(i, j int) bool {
			return summaries[i].Name < summaries[j].Name
		})
	}

	if page < 1 {
		page = 1
	}
	start := (page - 1) * groupPageSize
	if start >= len(summaries) {
		return []domain.GroupSummary{}, nil
	}
	end := start + groupPageSize
	if end > len(summaries) {
		end = len(summaries)
	}
	return summaries[start:end], nil
}

// CanAccess reports whether the user may read or post to the group the
// token addresses. The token is decoded first, so malformed tokens fail
// with the codec's typed errors.
func (s *groupService) CanAccess(ctx context.Context, user *domain.User, token string) (bool, error) {
	gid, err := domain.DecodeGroup(token)
	if err != nil {
		return false, err
	}
	if gid.School != user.SchoolID {
		return false, nil
	}

	if gid.Kind == domain.GroupKindCustom {
		return s.groupRepo.IsMember(ctx, gid.Group, user.ID)
	}

	rooms, err := s.RoomsForUser(ctx, user)
	if err != nil {
		return false, err
	}
	canonical := domain.MustEncodeGroup(gid)
	for _, room := range rooms {
		if room == canonical {
			return true, nil
		}
	}
	return false, nil
}
