package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"school_messenger/internal/domain"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

type GroupRepository interface {
	GetSchool(ctx context.Context, id int64) (*domain.School, error)
	GetGroup(ctx context.Context, id int64) (*domain.Group, error)
	ListMemberGroups(ctx context.Context, userID uuid.UUID) ([]domain.Group, error)
	ListAssignments(ctx context.Context, teacherUserID uuid.UUID) ([]domain.TeacherAssignment, error)
	ListClassSubjects(ctx context.Context, schoolID, classNum int64) ([]domain.Subject, error)
	IsMember(ctx context.Context, groupID int64, userID uuid.UUID) (bool, error)
}

type groupRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewGroupRepository(db *pgxpool.Pool, log logger.Logger) GroupRepository {
	return &groupRepository{db: db, log: log}
}

func (r *groupRepository) GetSchool(ctx context.Context, id int64) (*domain.School, error) {
	query := `SELECT id, name, is_active FROM schools WHERE id = $1`

	s := &domain.School{}
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrSchoolNotFound
		}
		r.log.Error("Failed to get school", "error", err, "id", id)
		return nil, err
	}

	return s, nil
}

func (r *groupRepository) GetGroup(ctx context.Context, id int64) (*domain.Group, error) {
	query := `SELECT id, school_id, name, created_by, created_at FROM groups WHERE id = $1`

	g := &domain.Group{}
	err := r.db.QueryRow(ctx, query, id).Scan(&g.ID, &g.SchoolID, &g.Name, &g.CreatedBy, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrGroupNotFound
		}
		r.log.Error("Failed to get group", "error", err, "id", id)
		return nil, err
	}

	return g, nil
}

// ListMemberGroups returns the custom groups the user is an active member of.
func (r *groupRepository) ListMemberGroups(ctx context.Context, userID uuid.UUID) ([]domain.Group, error) {
	query := `
		SELECT g.id, g.school_id, g.name, g.created_by, g.created_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1 AND gm.is_active
		ORDER BY g.id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list member groups", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.SchoolID, &g.Name, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func (r *groupRepository) ListAssignments(ctx context.Context, teacherUserID uuid.UUID) ([]domain.TeacherAssignment, error) {
	query := `
		SELECT teacher_user_id, class_num, section_num, subject_id
		FROM teacher_assignments
		WHERE teacher_user_id = $1
		ORDER BY class_num, section_num
	`

	rows, err := r.db.Query(ctx, query, teacherUserID)
	if err != nil {
		r.log.Error("Failed to list assignments", "error", err, "user_id", teacherUserID)
		return nil, err
	}
	defer rows.Close()

	var assignments []domain.TeacherAssignment
	for rows.Next() {
		var a domain.TeacherAssignment
		if err := rows.Scan(&a.TeacherUserID, &a.ClassNum, &a.SectionNum, &a.SubjectID); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

func (r *groupRepository) ListClassSubjects(ctx context.Context, schoolID, classNum int64) ([]domain.Subject, error) {
	query := `
		SELECT id, school_id, class_num, name
		FROM subjects
		WHERE school_id = $1 AND class_num = $2
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, schoolID, classNum)
	if err != nil {
		r.log.Error("Failed to list class subjects", "error", err, "school_id", schoolID)
		return nil, err
	}
	defer rows.Close()

	var subjects []domain.Subject
	for rows.Next() {
		var s domain.Subject
		if err := rows.Scan(&s.ID, &s.SchoolID, &s.ClassNum, &s.Name); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}

	return subjects, rows.Err()
}

func (r *groupRepository) IsMember(ctx context.Context, groupID int64, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM group_members
			WHERE group_id = $1 AND user_id = $2 AND is_active
		)
	`

	var member bool
	if err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&member); err != nil {
		r.log.Error("Failed to check membership", "error", err, "group_id", groupID)
		return false, err
	}

	return member, nil
}
