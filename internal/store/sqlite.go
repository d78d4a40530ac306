package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = sql.ErrNoRows

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
            login TEXT PRIMARY KEY,
            full_name TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            last_login INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS notebooks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            created_by TEXT NOT NULL,
            closed INTEGER NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS notebook_owners (
            notebook_id INTEGER NOT NULL,
            user_login TEXT NOT NULL,
            PRIMARY KEY (notebook_id, user_login),
            FOREIGN KEY(notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS sections (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            notebook_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            created_by TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            FOREIGN KEY(notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS pages (
            id TEXT PRIMARY KEY,
            section_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            tag TEXT NOT NULL DEFAULT '',
            body_html TEXT NOT NULL DEFAULT '',
            created_by TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL,
            FOREIGN KEY(section_id) REFERENCES sections(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sections_notebook ON sections(notebook_id);`,
		`CREATE INDEX IF NOT EXISTS idx_pages_section ON pages(section_id);`,
		`CREATE INDEX IF NOT EXISTS idx_pages_updated ON pages(updated_at);`,
		`CREATE INDEX IF NOT EXISTS idx_owners_login ON notebook_owners(user_login);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, login, fullName string, now time.Time) error {
	query := `INSERT INTO users (login, full_name, created_at, last_login)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(login) DO UPDATE SET last_login = excluded.last_login;`
	if _, err := s.db.ExecContext(ctx, query, login, fullName, now.Unix(), now.Unix()); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT login, full_name, created_at, last_login
        FROM users ORDER BY COALESCE(NULLIF(full_name, ''), login);`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		var createdAt, lastLogin int64
		if err := rows.Scan(&user.Login, &user.FullName, &createdAt, &lastLogin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.CreatedAt = time.Unix(createdAt, 0)
		user.LastLogin = time.Unix(lastLogin, 0)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) UserExists(ctx context.Context, login string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE login = ?;`, login).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return true, nil
}

// CreateNotebook inserts a notebook and makes the creator its first owner in
// the same transaction.
func (s *Store) CreateNotebook(ctx context.Context, name, createdBy string, now time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `INSERT INTO notebooks (name, created_by, closed, created_at, updated_at)
        VALUES (?, ?, 0, ?, ?);`, name, createdBy, now.Unix(), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert notebook: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert notebook: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO notebook_owners (notebook_id, user_login)
        VALUES (?, ?);`, id, createdBy); err != nil {
		return 0, fmt.Errorf("insert owner: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit notebook: %w", err)
	}
	return id, nil
}

// ListNotebooks returns every notebook the login may see: all open notebooks
// plus closed ones the login owns.
func (s *Store) ListNotebooks(ctx context.Context, login string) ([]Notebook, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_by, closed, created_at, updated_at
        FROM notebooks
        WHERE closed = 0
           OR id IN (SELECT notebook_id FROM notebook_owners WHERE user_login = ?)
        ORDER BY name;`, login)
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	defer rows.Close()

	var notebooks []Notebook
	for rows.Next() {
		notebook, err := scanNotebook(rows)
		if err != nil {
			return nil, err
		}
		notebooks = append(notebooks, notebook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	return notebooks, nil
}

func (s *Store) GetNotebook(ctx context.Context, id int64) (Notebook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_by, closed, created_at, updated_at
        FROM notebooks WHERE id = ?;`, id)
	notebook, err := scanNotebook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Notebook{}, ErrNotFound
	}
	return notebook, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotebook(row rowScanner) (Notebook, error) {
	var notebook Notebook
	var closed int
	var createdAt, updatedAt int64
	if err := row.Scan(&notebook.ID, &notebook.Name, &notebook.CreatedBy, &closed, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Notebook{}, err
		}
		return Notebook{}, fmt.Errorf("scan notebook: %w", err)
	}
	notebook.Closed = closed != 0
	notebook.CreatedAt = time.Unix(createdAt, 0)
	notebook.UpdatedAt = time.Unix(updatedAt, 0)
	return notebook, nil
}

func (s *Store) SetNotebookClosed(ctx context.Context, id int64, closed bool, now time.Time) error {
	value := 0
	if closed {
		value = 1
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE notebooks SET closed = ?, updated_at = ? WHERE id = ?;`,
		value, now.Unix(), id); err != nil {
		return fmt.Errorf("set notebook closed: %w", err)
	}
	return nil
}

func (s *Store) AddOwner(ctx context.Context, notebookID int64, login string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO notebook_owners (notebook_id, user_login)
        VALUES (?, ?) ON CONFLICT DO NOTHING;`, notebookID, login); err != nil {
		return fmt.Errorf("add owner: %w", err)
	}
	return nil
}

func (s *Store) IsOwner(ctx context.Context, notebookID int64, login string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM notebook_owners
        WHERE notebook_id = ? AND user_login = ? LIMIT 1;`, notebookID, login).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is owner: %w", err)
	}
	return true, nil
}

func (s *Store) ListOwners(ctx context.Context, notebookID int64) ([]Owner, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT o.user_login, COALESCE(u.full_name, '')
        FROM notebook_owners o
        LEFT JOIN users u ON u.login = o.user_login
        WHERE o.notebook_id = ?
        ORDER BY COALESCE(NULLIF(u.full_name, ''), o.user_login);`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []Owner
	for rows.Next() {
		var owner Owner
		if err := rows.Scan(&owner.Login, &owner.FullName); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return owners, nil
}

func (s *Store) CreateSection(ctx context.Context, notebookID int64, name, createdBy string, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO sections (notebook_id, name, created_by, created_at)
        VALUES (?, ?, ?, ?);`, notebookID, name, createdBy, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert section: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert section: %w", err)
	}
	return id, nil
}

func (s *Store) ListSections(ctx context.Context, notebookID int64) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, notebook_id, name, created_by, created_at
        FROM sections WHERE notebook_id = ? ORDER BY name;`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		var section Section
		var createdAt int64
		if err := rows.Scan(&section.ID, &section.NotebookID, &section.Name, &section.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		section.CreatedAt = time.Unix(createdAt, 0)
		sections = append(sections, section)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

func (s *Store) GetSection(ctx context.Context, id int64) (Section, error) {
	var section Section
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, notebook_id, name, created_by, created_at
        FROM sections WHERE id = ?;`, id).
		Scan(&section.ID, &section.NotebookID, &section.Name, &section.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Section{}, ErrNotFound
	}
	if err != nil {
		return Section{}, fmt.Errorf("get section: %w", err)
	}
	section.CreatedAt = time.Unix(createdAt, 0)
	return section, nil
}

func (s *Store) InsertPage(ctx context.Context, page Page) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO pages
        (id, section_id, title, tag, body_html, created_by, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		page.ID,
		page.SectionID,
		page.Title,
		page.Tag,
		page.BodyHTML,
		page.CreatedBy,
		page.CreatedAt.Unix(),
		page.UpdatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (s *Store) GetPage(ctx context.Context, id string) (Page, error) {
	var page Page
	var createdAt, updatedAt int64
	row := s.db.QueryRowContext(ctx, `SELECT p.id, p.section_id, p.title, p.tag, p.body_html,
            p.created_by, p.created_at, p.updated_at,
            s.name, n.id, n.name
        FROM pages p
        JOIN sections s ON p.section_id = s.id
        JOIN notebooks n ON s.notebook_id = n.id
        WHERE p.id = ?;`, id)
	if err := row.Scan(
		&page.ID,
		&page.SectionID,
		&page.Title,
		&page.Tag,
		&page.BodyHTML,
		&page.CreatedBy,
		&createdAt,
		&updatedAt,
		&page.SectionName,
		&page.NotebookID,
		&page.NotebookName,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Page{}, ErrNotFound
		}
		return Page{}, fmt.Errorf("get page: %w", err)
	}
	page.CreatedAt = time.Unix(createdAt, 0)
	page.UpdatedAt = time.Unix(updatedAt, 0)
	return page, nil
}

func (s *Store) UpdatePage(ctx context.Context, id, title, tag, bodyHTML string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE pages
        SET title = ?, tag = ?, body_html = ?, updated_at = ?
        WHERE id = ?;`, title, tag, bodyHTML, now.Unix(), id)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePage(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?;`, id)
	if err != nil {
		return false, fmt.Errorf("delete page: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete page: %w", err)
	}
	return rows > 0, nil
}

// ListPages returns page summaries visible to the login, filtered and
// paginated, newest first. Search matches title and body, or only the tag
// when the filter says so.
func (s *Store) ListPages(ctx context.Context, login string, filter PageFilter) ([]PageSummary, int32, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	baseQuery := ` FROM pages p
        JOIN sections s ON p.section_id = s.id
        JOIN notebooks n ON s.notebook_id = n.id`
	whereQuery := ` WHERE (n.closed = 0
        OR n.id IN (SELECT notebook_id FROM notebook_owners WHERE user_login = ?))`
	args := []any{login}

	if filter.NotebookID != 0 {
		whereQuery += " AND n.id = ?"
		args = append(args, filter.NotebookID)
	}
	if filter.SectionID != 0 {
		whereQuery += " AND s.id = ?"
		args = append(args, filter.SectionID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		term := "%" + search + "%"
		if filter.TagsOnly {
			whereQuery += " AND p.tag LIKE ?"
			args = append(args, term)
		} else {
			whereQuery += " AND (p.title LIKE ? OR p.body_html LIKE ?)"
			args = append(args, term, term)
		}
	}

	var totalCount int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1)"+baseQuery+whereQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("count pages: %w", err)
	}
	if totalCount > int64(^uint32(0)>>1) {
		totalCount = int64(^uint32(0) >> 1)
	}

	listQuery := `SELECT p.id, p.title, p.tag, s.id, s.name, n.id, n.name, p.created_by, p.updated_at` +
		baseQuery + whereQuery + " ORDER BY p.updated_at DESC, p.id DESC LIMIT ? OFFSET ?"
	listArgs := append([]any{}, args...)
	listArgs = append(listArgs, limit, offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []PageSummary
	for rows.Next() {
		var summary PageSummary
		var updatedAt int64
		if err := rows.Scan(
			&summary.ID,
			&summary.Title,
			&summary.Tag,
			&summary.SectionID,
			&summary.SectionName,
			&summary.NotebookID,
			&summary.NotebookName,
			&summary.CreatedBy,
			&updatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan page: %w", err)
		}
		summary.UpdatedAt = time.Unix(updatedAt, 0)
		pages = append(pages, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list pages: %w", err)
	}
	return pages, int32(totalCount), nil
}

// EnsureInbox returns the section id of the login's "Inbox" notebook,
// creating the notebook and section on first use. Used by the mail-in path.
func (s *Store) EnsureInbox(ctx context.Context, login string, now time.Time) (int64, error) {
	var sectionID int64
	err := s.db.QueryRowContext(ctx, `SELECT s.id
        FROM sections s
        JOIN notebooks n ON s.notebook_id = n.id
        JOIN notebook_owners o ON o.notebook_id = n.id
        WHERE n.name = 'Inbox' AND s.name = 'Inbox' AND o.user_login = ?
        ORDER BY s.id LIMIT 1;`, login).Scan(&sectionID)
	if err == nil {
		return sectionID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find inbox: %w", err)
	}

	notebookID, err := s.CreateNotebook(ctx, "Inbox", login, now)
	if err != nil {
		return 0, err
	}
	if err := s.SetNotebookClosed(ctx, notebookID, true, now); err != nil {
		return 0, err
	}
	return s.CreateSection(ctx, notebookID, "Inbox", login, now)
}
