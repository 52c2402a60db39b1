package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fieldtasker/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

// --- organisations ---

func (r Repo) InsertOrganisation(ctx context.Context, tx *sql.Tx, o domain.Organisation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO organisations(id,name,slug,description,url,created_at) VALUES (?,?,?,?,?,?)`,
		o.ID, o.Name, o.Slug, nullable(o.Description), nullable(o.URL), o.CreatedAt)
	return err
}

func (r Repo) GetOrganisation(ctx context.Context, id string) (domain.Organisation, error) {
	var o domain.Organisation
	var desc, url sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,slug,description,url,created_at FROM organisations WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &o.Slug, &desc, &url, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Description = desc.String
	o.URL = url.String
	return o, nil
}

func (r Repo) ListOrganisations(ctx context.Context) ([]domain.Organisation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,slug,description,url,created_at FROM organisations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organisation
	for rows.Next() {
		var o domain.Organisation
		var desc, url sql.NullString
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &desc, &url, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Description = desc.String
		o.URL = url.String
		res = append(res, o)
	}
	return res, rows.Err()
}

// --- projects ---

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,org_id,name,description,status,outline_geojson,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.OrgID, p.Name, nullable(p.Description), p.Status, nullable(p.OutlineGeoJSON), p.CreatedAt)
	return err
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var desc, outline sql.NullString
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &desc, &p.Status, &outline, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Description = desc.String
	p.OutlineGeoJSON = outline.String
	return p, nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,org_id,name,description,status,outline_geojson,created_at FROM projects WHERE id=?`, id))
}

type ProjectFilters struct {
	OrgID           string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,org_id,name,description,status,outline_geojson,created_at FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var desc, outline sql.NullString
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &desc, &p.Status, &outline, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		p.OutlineGeoJSON = outline.String
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, id string, status string, description *string) error {
	var (
		fields []string
		args   []any
	)
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes the project and, through cascades, its tasks and
// history. Individual tasks are never deleted any other way.
func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- users ---

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO users(id,username,role,profile_img,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Username, u.Role, nullable(u.ProfileImg), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var img sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,username,role,profile_img,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Username, &u.Role, &img, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.ProfileImg = img.String
	return u, nil
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	var img sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,username,role,profile_img,created_at FROM users WHERE username=?`, username).
		Scan(&u.ID, &u.Username, &u.Role, &img, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.ProfileImg = img.String
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,username,role,profile_img,created_at FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var img sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &img, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.ProfileImg = img.String
		res = append(res, u)
	}
	return res, rows.Err()
}
