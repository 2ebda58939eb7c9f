package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-registry/internal/models"
)

// FamilyRepository reads families and their students.
type FamilyRepository struct {
	db *sqlx.DB
}

// NewFamilyRepository constructs the repository.
func NewFamilyRepository(db *sqlx.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// FindByID returns a family by identifier.
func (r *FamilyRepository) FindByID(ctx context.Context, id int64) (*models.Family, error) {
	const query = `SELECT id, parent_name, email, phone, created_at FROM families WHERE id = $1`
	var family models.Family
	if err := r.db.GetContext(ctx, &family, query, id); err != nil {
		return nil, err
	}
	return &family, nil
}

// FindStudent returns a student by identifier.
func (r *FamilyRepository) FindStudent(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Student, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `SELECT id, family_id, full_name, birth_date, created_at FROM students WHERE id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, exec, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}
