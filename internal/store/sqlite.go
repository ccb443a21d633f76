package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "carebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Users ----

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, name, timezone, channel, tg_chat_id, email)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, timezone=excluded.timezone, channel=excluded.channel,
		   tg_chat_id=excluded.tg_chat_id, email=excluded.email`,
		u.ID, u.Name, u.Timezone, u.Channel, u.TelegramChatID, u.Email,
	)
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, timezone, channel, tg_chat_id, email FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Timezone, &u.Channel, &u.TelegramChatID, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *sqliteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, timezone, channel, tg_chat_id, email FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Timezone, &u.Channel, &u.TelegramChatID, &u.Email); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---- Tasks ----

func (s *sqliteStore) UpsertTask(ctx context.Context, t Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("task id required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks(id, user_id, title, completed, priority, due_date, due_time, created_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id=excluded.user_id, title=excluded.title, completed=excluded.completed,
		   priority=excluded.priority, due_date=excluded.due_date, due_time=excluded.due_time`,
		t.ID, t.UserID, t.Title, boolInt(t.Completed), int(t.Priority), t.DueDate, t.DueTime,
		t.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}

	// Reminder periods are replaced wholesale; they are small per-task lists.
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_reminder_periods WHERE task_id = ?`, t.ID); err != nil {
		return err
	}
	for _, p := range t.ReminderPeriods {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_reminder_periods(task_id, date, start_hhmm, end_hhmm) VALUES(?,?,?,?)`,
			t.ID, p.Date, p.Start, p.End,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (Task, error) {
	var (
		t       Task
		done    int
		prio    int
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, completed, priority, due_date, due_time, created_at
		 FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &t.Title, &done, &prio, &t.DueDate, &t.DueTime, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Task{}, err
	}
	t.Completed = done != 0
	t.Priority = Priority(prio)
	if ts, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		t.CreatedAt = ts
	}

	ps, err := s.taskPeriods(ctx, t.ID)
	if err != nil {
		return Task{}, err
	}
	t.ReminderPeriods = ps
	return t, nil
}

func (s *sqliteStore) ListIncompleteTasks(ctx context.Context, userID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM tasks WHERE user_id = ? AND completed = 0 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *sqliteStore) CompleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET completed = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) taskPeriods(ctx context.Context, taskID string) ([]ReminderPeriod, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, start_hhmm, end_hhmm FROM task_reminder_periods WHERE task_id = ? ORDER BY date, start_hhmm`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReminderPeriod
	for rows.Next() {
		var p ReminderPeriod
		if err := rows.Scan(&p.Date, &p.Start, &p.End); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- Schedule configuration ----

func (s *sqliteStore) SetTimePeriods(ctx context.Context, userID, category string, ps []TimePeriod) error {
	if err := ValidatePeriods(ps); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM time_periods WHERE user_id = ? AND category = ?`, userID, category); err != nil {
		return err
	}
	for _, p := range ps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO time_periods(user_id, category, name, active, days, start_hhmm, end_hhmm)
			 VALUES(?,?,?,?,?,?,?)`,
			userID, category, p.Name, boolInt(p.Active), encodeDays(p.Days), p.Start, p.End,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetTimePeriods(ctx context.Context, userID, category string) ([]TimePeriod, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, active, days, start_hhmm, end_hhmm FROM time_periods
		 WHERE user_id = ? AND category = ? ORDER BY start_hhmm, name`, userID, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimePeriod
	for rows.Next() {
		var (
			p      TimePeriod
			active int
			days   string
		)
		if err := rows.Scan(&p.Name, &active, &days, &p.Start, &p.End); err != nil {
			return nil, err
		}
		p.Active = active != 0
		p.Days = decodeDays(days)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetTimezone(ctx context.Context, userID string) (string, error) {
	var tz string
	err := s.db.QueryRowContext(ctx, `SELECT timezone FROM users WHERE id = ?`, userID).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return tz, err
}

// ---- Backup ----

func (s *sqliteStore) Backup(ctx context.Context, dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("backup dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := "carebot-" + time.Now().Format("20060102-150405") + ".db"
	dst := filepath.Join(dir, name)
	// VACUUM INTO produces a consistent snapshot without blocking readers.
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return "", err
	}
	s.log.Info("backup written", logx.String("path", dst))
	return dst, nil
}

// ---- helpers ----

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeDays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func decodeDays(s string) []time.Weekday {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out = append(out, time.Weekday(n))
	}
	return out
}
