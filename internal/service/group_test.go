package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school_messenger/internal/domain"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

type fakeGroupRepo struct {
	school      *domain.School
	groups      []domain.Group
	assignments []domain.TeacherAssignment
	subjects    []domain.Subject
	members     map[int64]map[uuid.UUID]bool
}

func (f *fakeGroupRepo) GetSchool(context.Context, int64) (*domain.School, error) {
	if f.school == nil {
		return nil, apperrors.ErrSchoolNotFound
	}
	return f.school, nil
}

func (f *fakeGroupRepo) GetGroup(_ context.Context, id int64) (*domain.Group, error) {
	for _, g := range f.groups {
		if g.ID == id {
			return &g, nil
		}
	}
	return nil, apperrors.ErrGroupNotFound
}

func (f *fakeGroupRepo) ListMemberGroups(context.Context, uuid.UUID) ([]domain.Group, error) {
	return f.groups, nil
}

func (f *fakeGroupRepo) ListAssignments(context.Context, uuid.UUID) ([]domain.TeacherAssignment, error) {
	return f.assignments, nil
}

func (f *fakeGroupRepo) ListClassSubjects(context.Context, int64, int64) ([]domain.Subject, error) {
	return f.subjects, nil
}

func (f *fakeGroupRepo) IsMember(_ context.Context, groupID int64, userID uuid.UUID) (bool, error) {
	return f.members[groupID][userID], nil
}

type fakeMessageRepo struct {
	lastAt map[string]time.Time
}

func (f *fakeMessageRepo) Create(context.Context, *domain.Message, int64) error { return nil }

func (f *fakeMessageRepo) ListByGroup(context.Context, string, int, string) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) GetByID(context.Context, uuid.UUID) (*domain.Message, error) {
	return nil, apperrors.ErrNotFound
}

func (f *fakeMessageRepo) UpdateText(context.Context, uuid.UUID, string) (*domain.Message, error) {
	return nil, apperrors.ErrNotFound
}

func (f *fakeMessageRepo) LastMessageAt(context.Context, []string) (map[string]time.Time, error) {
	return f.lastAt, nil
}

func int64Ptr(n int64) *int64 { return &n }

func TestRoomsForStudent(t *testing.T) {
	repo := &fakeGroupRepo{
		subjects: []domain.Subject{
			{ID: 31, SchoolID: 5, ClassNum: 7, Name: "Maths"},
			{ID: 32, SchoolID: 5, ClassNum: 7, Name: "History"},
		},
	}
	svc := NewGroupService(repo, &fakeMessageRepo{}, logger.Nop())

	student := &domain.User{
		ID:         uuid.New(),
		SchoolID:   5,
		Role:       domain.RoleStudent,
		ClassNum:   int64Ptr(7),
		SectionNum: int64Ptr(2),
	}

	rooms, err := svc.RoomsForUser(context.Background(), student)
	require.NoError(t, err)

	assert.Equal(t, []string{
		domain.MustEncodeGroup(domain.NewSchoolWideGroup(5)),
		domain.MustEncodeGroup(domain.NewClassGroup(5, 7)),
		domain.MustEncodeGroup(domain.NewSectionGroup(5, 7, 2)),
		domain.MustEncodeGroup(domain.NewSubjectGroup(5, 31)),
		domain.MustEncodeGroup(domain.NewSubjectGroup(5, 32)),
	}, rooms)
}

func TestRoomsForTeacherWithCustomGroup(t *testing.T) {
	teacherUID := uuid.New()
	repo := &fakeGroupRepo{
		groups: []domain.Group{
			{ID: 12, SchoolID: 5, Name: "Chess Club"},
		},
		assignments: []domain.TeacherAssignment{
			{TeacherUserID: teacherUID, ClassNum: 7, SectionNum: int64Ptr(2), SubjectID: int64Ptr(31)},
			{TeacherUserID: teacherUID, ClassNum: 8, SubjectID: int64Ptr(40)},
		},
	}
	svc := NewGroupService(repo, &fakeMessageRepo{}, logger.Nop())

	teacher := &domain.User{
		ID:        teacherUID,
		SchoolID:  5,
		Role:      domain.RoleTeacher,
		TeacherID: int64Ptr(99),
	}

	rooms, err := svc.RoomsForUser(context.Background(), teacher)
	require.NoError(t, err)

	assert.Equal(t, []string{
		domain.MustEncodeGroup(domain.NewSchoolWideGroup(5)),
		domain.MustEncodeGroup(domain.NewClassGroup(5, 7)),
		domain.MustEncodeGroup(domain.NewSectionGroup(5, 7, 2)),
		domain.MustEncodeGroup(domain.NewSubjectGroup(5, 31)),
		domain.MustEncodeGroup(domain.NewClassGroup(5, 8)),
		domain.MustEncodeGroup(domain.NewSubjectGroup(5, 40)),
		domain.MustEncodeGroup(domain.NewCustomGroup(5, 12)),
	}, rooms)
}

func TestRoomsDeduplicated(t *testing.T) {
	teacherUID := uuid.New()
	repo := &fakeGroupRepo{
		assignments: []domain.TeacherAssignment{
			{TeacherUserID: teacherUID, ClassNum: 7},
			{TeacherUserID: teacherUID, ClassNum: 7, SectionNum: int64Ptr(1)},
			{TeacherUserID: teacherUID, ClassNum: 7, SectionNum: int64Ptr(2)},
		},
	}
	svc := NewGroupService(repo, &fakeMessageRepo{}, logger.Nop())

	teacher := &domain.User{
		ID:        teacherUID,
		SchoolID:  5,
		TeacherID: int64Ptr(99),
	}

	rooms, err := svc.RoomsForUser(context.Background(), teacher)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, room := range rooms {
		assert.False(t, seen[room], "duplicate room %s", room)
		seen[room] = true
	}
	// school + class 7 appears once despite three assignments
	assert.Len(t, rooms, 4)
}

func TestCanAccess(t *testing.T) {
	userID := uuid.New()
	repo := &fakeGroupRepo{
		members: map[int64]map[uuid.UUID]bool{
			12: {userID: true},
		},
	}
	svc := NewGroupService(repo, &fakeMessageRepo{}, logger.Nop())

	user := &domain.User{ID: userID, SchoolID: 5, ClassNum: int64Ptr(7)}

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"member custom group", domain.MustEncodeGroup(domain.NewCustomGroup(5, 12)), true},
		{"non member custom group", domain.MustEncodeGroup(domain.NewCustomGroup(5, 13)), false},
		{"own school wide", domain.MustEncodeGroup(domain.NewSchoolWideGroup(5)), true},
		{"own class", domain.MustEncodeGroup(domain.NewClassGroup(5, 7)), true},
		{"other class", domain.MustEncodeGroup(domain.NewClassGroup(5, 8)), false},
		{"other school", domain.MustEncodeGroup(domain.NewSchoolWideGroup(6)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.CanAccess(context.Background(), user, tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	t.Run("malformed token", func(t *testing.T) {
		_, err := svc.CanAccess(context.Background(), user, "not-a-token")
		assert.ErrorIs(t, err, apperrors.ErrMalformedIdentifier)
	})
}

func TestListGroupsSorting(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)

	repo := &fakeGroupRepo{
		groups: []domain.Group{
			{ID: 1, SchoolID: 5, Name: "Zebra Club"},
			{ID: 2, SchoolID: 5, Name: "Art Club"},
			{ID: 3, SchoolID: 5, Name: "Quiet Club"},
		},
	}
	msgRepo := &fakeMessageRepo{lastAt: map[string]time.Time{
		domain.MustEncodeGroup(domain.NewCustomGroup(5, 1)): now,
		domain.MustEncodeGroup(domain.NewCustomGroup(5, 2)): earlier,
	}}
	svc := NewGroupService(repo, msgRepo, logger.Nop())

	user := &domain.User{ID: uuid.New(), SchoolID: 5}

	byName, err := svc.ListGroups(context.Background(), user, "name", 1)
	require.NoError(t, err)
	require.Len(t, byName, 3)
	assert.Equal(t, "Art Club", byName[0].Name)
	assert.Equal(t, "Quiet Club", byName[1].Name)
	assert.Equal(t, "Zebra Club", byName[2].Name)

	// recent sort: active groups first, quietest last
	byRecent, err := svc.ListGroups(context.Background(), user, "recent", 1)
	require.NoError(t, err)
	require.Len(t, byRecent, 3)
	assert.Equal(t, "Zebra Club", byRecent[0].Name)
	assert.Equal(t, "Art Club", byRecent[1].Name)
	assert.Equal(t, "Quiet Club", byRecent[2].Name)
}

func TestListGroupsPagination(t *testing.T) {
	var groups []domain.Group
	for i := int64(1); i <= 25; i++ {
		groups = append(groups, domain.Group{ID: i, SchoolID: 5, Name: "Group"})
	}
	svc := NewGroupService(&fakeGroupRepo{groups: groups}, &fakeMessageRepo{}, logger.Nop())

	user := &domain.User{ID: uuid.New(), SchoolID: 5}

	page1, err := svc.ListGroups(context.Background(), user, "name", 1)
	require.NoError(t, err)
	assert.Len(t, page1, 20)

	page2, err := svc.ListGroups(context.Background(), user, "name", 2)
	require.NoError(t, err)
	assert.Len(t, page2, 5)

	page3, err := svc.ListGroups(context.Background(), user, "name", 3)
	require.NoError(t, err)
	assert.Empty(t, page3)
}
