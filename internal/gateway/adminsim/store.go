package adminsim

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE services (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	protocol   TEXT NOT NULL,
	host       TEXT NOT NULL,
	port       INTEGER NOT NULL,
	path       TEXT,
	created_at INTEGER NOT NULL
);
CREATE TABLE routes (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	service_id    TEXT NOT NULL REFERENCES services(id),
	paths         TEXT NOT NULL,
	hosts         TEXT NOT NULL,
	methods       TEXT NOT NULL,
	strip_path    INTEGER NOT NULL,
	preserve_host INTEGER NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE TABLE plugins (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	service_id TEXT NOT NULL REFERENCES services(id),
	config     TEXT NOT NULL,
	enabled    INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (name, service_id)
);
`

var errNotFound = errors.New("not found")

// uniqueError carries the column set that violated a UNIQUE constraint.
type uniqueError struct {
	fields map[string]string
}

func (e *uniqueError) Error() string {
	return fmt.Sprintf("UNIQUE violation detected on '%s'", describeFields(e.fields))
}

func describeFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := "{"
	for i, k := range keys {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%q", k, fields[k])
	}
	return s + "}"
}

func isUniqueConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

type serviceRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Protocol  string `json:"protocol"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Path      string `json:"path,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type ref struct {
	ID string `json:"id"`
}

type routeRow struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Service      ref      `json:"service"`
	Paths        []string `json:"paths"`
	Hosts        []string `json:"hosts"`
	Methods      []string `json:"methods"`
	StripPath    bool     `json:"strip_path"`
	PreserveHost bool     `json:"preserve_host"`
	CreatedAt    int64    `json:"created_at"`
}

type pluginRow struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Service   ref                    `json:"service"`
	Config    map[string]interface{} `json:"config"`
	Enabled   bool                   `json:"enabled"`
	CreatedAt int64                  `json:"created_at"`
}

type store struct {
	db *sql.DB
}

func openStore(ctx context.Context) (*store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) close() error {
	return s.db.Close()
}

func (s *store) insertService(ctx context.Context, svc serviceRow) (serviceRow, error) {
	svc.ID = uuid.NewString()
	svc.CreatedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO services (id, name, protocol, host, port, path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		svc.ID, svc.Name, svc.Protocol, svc.Host, svc.Port, svc.Path, svc.CreatedAt)
	if err != nil {
		if isUniqueConstraint(err) {
			return serviceRow{}, &uniqueError{fields: map[string]string{"name": svc.Name}}
		}
		return serviceRow{}, err
	}
	return svc, nil
}

// service looks a service up by id or name.
func (s *store) service(ctx context.Context, idOrName string) (serviceRow, error) {
	var svc serviceRow
	var path sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, protocol, host, port, path, created_at FROM services WHERE id = ? OR name = ?`,
		idOrName, idOrName).Scan(&svc.ID, &svc.Name, &svc.Protocol, &svc.Host, &svc.Port, &path, &svc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return serviceRow{}, errNotFound
	}
	svc.Path = path.String
	return svc, err
}

func (s *store) services(ctx context.Context) ([]serviceRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, protocol, host, port, path, created_at FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []serviceRow
	for rows.Next() {
		var svc serviceRow
		var path sql.NullString
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Protocol, &svc.Host, &svc.Port, &path, &svc.CreatedAt); err != nil {
			return nil, err
		}
		svc.Path = path.String
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *store) insertRoute(ctx context.Context, r routeRow) (routeRow, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routes (id, name, service_id, paths, hosts, methods, strip_path, preserve_host, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Service.ID, mustJSON(r.Paths), mustJSON(r.Hosts), mustJSON(r.Methods),
		r.StripPath, r.PreserveHost, r.CreatedAt)
	if err != nil {
		if isUniqueConstraint(err) {
			return routeRow{}, &uniqueError{fields: map[string]string{"name": r.Name}}
		}
		return routeRow{}, err
	}
	return r, nil
}

const routeColumns = `id, name, service_id, paths, hosts, methods, strip_path, preserve_host, created_at`

func scanRoute(scan func(dest ...interface{}) error) (routeRow, error) {
	var r routeRow
	var paths, hosts, methods string
	if err := scan(&r.ID, &r.Name, &r.Service.ID, &paths, &hosts, &methods, &r.StripPath, &r.PreserveHost, &r.CreatedAt); err != nil {
		return routeRow{}, err
	}
	_ = json.Unmarshal([]byte(paths), &r.Paths)
	_ = json.Unmarshal([]byte(hosts), &r.Hosts)
	_ = json.Unmarshal([]byte(methods), &r.Methods)
	return r, nil
}

// route looks a route up by id or name, optionally restricted to a service id.
func (s *store) route(ctx context.Context, serviceID, idOrName string) (routeRow, error) {
	q := `SELECT ` + routeColumns + ` FROM routes WHERE (id = ? OR name = ?)`
	args := []interface{}{idOrName, idOrName}
	if serviceID != "" {
		q += ` AND service_id = ?`
		args = append(args, serviceID)
	}
	r, err := scanRoute(s.db.QueryRowContext(ctx, q, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return routeRow{}, errNotFound
	}
	return r, err
}

func (s *store) routes(ctx context.Context, serviceID string) ([]routeRow, error) {
	q := `SELECT ` + routeColumns + ` FROM routes`
	var args []interface{}
	if serviceID != "" {
		q += ` WHERE service_id = ?`
		args = append(args, serviceID)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []routeRow
	for rows.Next() {
		r, err := scanRoute(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *store) insertPlugin(ctx context.Context, p pluginRow) (pluginRow, error) {
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().Unix()
	if p.Config == nil {
		p.Config = map[string]interface{}{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plugins (id, name, service_id, config, enabled, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Service.ID, mustJSON(p.Config), p.Enabled, p.CreatedAt)
	if err != nil {
		if isUniqueConstraint(err) {
			return pluginRow{}, &uniqueError{fields: map[string]string{"name": p.Name, "service": p.Service.ID}}
		}
		return pluginRow{}, err
	}
	return p, nil
}

func (s *store) plugins(ctx context.Context, serviceID string) ([]pluginRow, error) {
	q := `SELECT id, name, service_id, config, enabled, created_at FROM plugins`
	var args []interface{}
	if serviceID != "" {
		q += ` WHERE service_id = ?`
		args = append(args, serviceID)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY created_at, name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pluginRow
	for rows.Next() {
		var p pluginRow
		var cfg string
		if err := rows.Scan(&p.ID, &p.Name, &p.Service.ID, &cfg, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(cfg), &p.Config)
		out = append(out, p)
	}
	return out, rows.Err()
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
