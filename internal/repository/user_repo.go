package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tsureben-backend/internal/models"
)

// Connection list columns on users.
const (
	ListTurebenRequests = "tureben_requests"
	ListHiddenRequests  = "hidden_requests"
	ListHiddenMates     = "hidden_mates"
)

var listColumns = map[string]bool{
	ListTurebenRequests: true,
	ListHiddenRequests:  true,
	ListHiddenMates:     true,
}

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `email, name, grade, class, number, share_scope, teacher,
	tureben_requests, hidden_requests, hidden_mates, scores, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	var scores []byte
	err := row.Scan(
		&u.Email, &u.Name, &u.Grade, &u.Class, &u.Number, &u.ShareScope, &u.Teacher,
		&u.TurebenRequests, &u.HiddenRequests, &u.HiddenMates, &scores, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &u.Scores); err != nil {
			return nil, fmt.Errorf("decode scores of %s: %w", u.Email, err)
		}
	}
	return u, nil
}

// Create inserts a base record. It returns pgx.ErrNoRows when the email exists.
func (r *UserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ShareScope == "" {
		user.ShareScope = models.ScopeGrade
	}
	query := `
		INSERT INTO users (email, name, teacher, share_scope)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query, user.Email, user.Name, user.Teacher, user.ShareScope).
		Scan(&user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
}

// ListByGradeClass returns students of one class ordered by attendance number.
func (r *UserRepo) ListByGradeClass(ctx context.Context, grade, class string) ([]models.User, error) {
	return r.query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE teacher = FALSE AND grade = $1 AND ($2 = '' OR class = $2)
		ORDER BY class, NULLIF(regexp_replace(number, '\D', '', 'g'), '')::int NULLS LAST, number`,
		grade, class)
}

func (r *UserRepo) SearchByName(ctx context.Context, name, exclude string, limit int) ([]models.User, error) {
	return r.query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE name ILIKE '%' || $1 || '%' AND email <> $2
		ORDER BY name
		LIMIT $3`,
		name, exclude, limit)
}

func (r *UserRepo) query(ctx context.Context, sql string, args ...any) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateProfile writes the profile fields. Scores are only replaced when given.
func (r *UserRepo) UpdateProfile(ctx context.Context, email string, p models.ProfileRequest) error {
	var scores []byte
	if p.Scores != nil {
		var err error
		if scores, err = json.Marshal(p.Scores); err != nil {
			return err
		}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET grade = $2, class = $3, number = $4, share_scope = $5,
			scores = COALESCE($6::jsonb, scores), updated_at = NOW()
		WHERE email = $1`,
		email, p.Grade, p.Class, p.Number, p.ShareScope, nullableJSON(scores),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AddToList appends values missing from the list column, keeping order.
func (r *UserRepo) AddToList(ctx context.Context, email, column string, values ...string) error {
	if !listColumns[column] {
		return fmt.Errorf("unknown list column %q", column)
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE users
		SET %[1]s = %[1]s || ARRAY(
				SELECT DISTINCT v FROM unnest($2::text[]) AS v WHERE v <> ALL(%[1]s)
			),
			updated_at = NOW()
		WHERE email = $1`, column),
		email, values,
	)
	return err
}

func (r *UserRepo) RemoveFromList(ctx context.Context, email, column, value string) error {
	if !listColumns[column] {
		return fmt.Errorf("unknown list column %q", column)
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE users SET %[1]s = array_remove(%[1]s, $2), updated_at = NOW()
		WHERE email = $1`, column),
		email, value,
	)
	return err
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
