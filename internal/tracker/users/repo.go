package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/exercisetracker/internal/telemetry/tracing"
	"github.com/2beens/exercisetracker/pkg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrUserNotFound = errors.New("user not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Create(ctx context.Context, username string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if username == "" {
		return nil, errors.New("username empty")
	}

	id := uuid.NewString()
	span.SetAttributes(attribute.String("user.id", id))

	tag, err := r.db.Exec(
		ctx,
		`INSERT INTO tracker_user (id, username) VALUES ($1, $2);`,
		id, username,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, errors.New("unexpected error [no rows affected]")
	}

	return &User{
		ID:       id,
		Username: username,
		Log:      []Exercise{},
	}, nil
}

// Get returns the user with its full exercise log. A malformed identifier
// resolves to ErrUserNotFound, never to an internal error.
func (r *Repo) Get(ctx context.Context, id string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", id))

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, username FROM tracker_user WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrUserNotFound
	}

	var user User
	if err := rows.Scan(&user.ID, &user.Username); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}
	rows.Close()

	user.Log, err = r.userLog(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get user log: %w", err)
	}

	return &user, nil
}

// List returns all users with their full logs, in registration order.
func (r *Repo) List(ctx context.Context) (_ []User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, username FROM tracker_user ORDER BY seq ASC;`,
	)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		user.Log = []Exercise{}
		users = append(users, user)
	}
	rows.Close()

	logRows, err := r.db.Query(
		ctx,
		`SELECT user_id, description, duration, date FROM exercise ORDER BY id ASC;`,
	)
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer logRows.Close()

	if err := logRows.Err(); err != nil {
		return nil, err
	}

	logs := make(map[string][]Exercise)
	for logRows.Next() {
		var userID string
		var ex Exercise
		if err := logRows.Scan(&userID, &ex.Description, &ex.Duration, &ex.Date); err != nil {
			return nil, fmt.Errorf("log rows scan: %w", err)
		}
		logs[userID] = append(logs[userID], ex)
	}

	for i := range users {
		if log, ok := logs[users[i].ID]; ok {
			users[i].Log = log
		}
	}

	return users, nil
}

// AppendExercise adds an exercise to the user's log: an explicit
// read-modify-write with no transaction across the two steps. Concurrent
// appends to the same user are last-write-wins at the persistence layer.
func (r *Repo) AppendExercise(ctx context.Context, userID string, exercise Exercise) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.appendExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	user, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	tag, err := r.db.Exec(
		ctx,
		`INSERT INTO exercise (user_id, description, duration, date) VALUES ($1, $2, $3, $4);`,
		user.ID, exercise.Description, exercise.Duration, exercise.Date,
	)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("insert exercise: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, errors.New("unexpected error [no rows affected]")
	}

	user.Log = append(user.Log, exercise)
	return user, nil
}

func (r *Repo) userLog(ctx context.Context, userID string) ([]Exercise, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT description, duration, date FROM exercise WHERE user_id = $1 ORDER BY id ASC;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	log := make([]Exercise, 0)
	for rows.Next() {
		var ex Exercise
		if err := rows.Scan(&ex.Description, &ex.Duration, &ex.Date); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		log = append(log, ex)
	}

	return log, nil
}
