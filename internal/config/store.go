package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/airea/airea/internal/model"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Store persists devices and their cough events. It is the credential store
// the authentication service reads device records from and writes issued key
// digests back to.
type Store struct {
	db      *sqlx.DB
	dialect string
}

// NewStore opens a SQLite store under dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		return OpenStore(DriverSQLite, ":memory:")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return OpenStore(DriverSQLite, sqliteFileDSN(filepath.Join(dataDir, "airea.db")))
}

// sqliteFileDSN enables WAL and a busy timeout through modernc's _pragma
// parameters, which run on every new connection.
func sqliteFileDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// OpenStore connects to the given driver and applies migrations.
func OpenStore(driver, dsn string) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch driver {
	case DriverSQLite:
		db, err = sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	case DriverPostgres:
		pgCfg, perr := pgx.ParseConfig(dsn)
		if perr != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", perr)
		}
		db = sqlx.NewDb(stdlib.OpenDB(*pgCfg), "pgx")
		if err = db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

	case DriverMySQL:
		myCfg, merr := mysql.ParseDSN(dsn)
		if merr != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", merr)
		}
		myCfg.ParseTime = true // DATETIME columns scan into time.Time
		myCfg.Loc = time.UTC
		connector, cerr := mysql.NewConnector(myCfg)
		if cerr != nil {
			return nil, fmt.Errorf("mysql connector: %w", cerr)
		}
		db = sqlx.NewDb(sql.OpenDB(connector), "mysql")
		if err = db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect mysql: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	s := &Store{db: db, dialect: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the driver name the store was opened with.
func (s *Store) Dialect() string {
	return s.dialect
}

// ---------------------------------------------------------------------------
// Devices
// ---------------------------------------------------------------------------

// deviceRow maps 1:1 to the devices table. The key digest and issue time are
// nullable columns, which model.Device represents as "" and nil.
type deviceRow struct {
	ID             string         `db:"id"`
	DeviceID       string         `db:"device_id"`
	DeviceName     string         `db:"device_name"`
	Location       string         `db:"location"`
	IsActive       bool           `db:"is_active"`
	APIKeyHash     sql.NullString `db:"api_key_hash"`
	APIKeyIssuedAt sql.NullTime   `db:"api_key_issued_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func deviceRowFromModel(d *model.Device) deviceRow {
	row := deviceRow{
		ID:         d.ID,
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		Location:   d.Location,
		IsActive:   d.IsActive,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	// The pair is written together or not at all.
	if d.APIKeyHash != "" && d.APIKeyIssuedAt != nil {
		row.APIKeyHash = sql.NullString{String: d.APIKeyHash, Valid: true}
		row.APIKeyIssuedAt = sql.NullTime{Time: d.APIKeyIssuedAt.UTC(), Valid: true}
	}
	return row
}

func (r deviceRow) toModel() model.Device {
	d := model.Device{
		ID:         r.ID,
		DeviceID:   r.DeviceID,
		DeviceName: r.DeviceName,
		Location:   r.Location,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.APIKeyHash.Valid && r.APIKeyIssuedAt.Valid {
		d.SetAPIKey(r.APIKeyHash.String, r.APIKeyIssuedAt.Time)
	}
	return d
}

const deviceColumns = `id, device_id, device_name, location, is_active,
	api_key_hash, api_key_issued_at, created_at, updated_at`

// RegisterDevice inserts a new active device. If a device with the same
// external ID already exists it is returned unchanged and created is false.
func (s *Store) RegisterDevice(ctx context.Context, d *model.Device) (dev *model.Device, created bool, err error) {
	if existing, err := s.FindByExternalID(ctx, d.DeviceID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	d.ID = uuid.Must(uuid.NewV7()).String()
	d.IsActive = true
	d.CreatedAt = now
	d.UpdatedAt = now
	d.ClearAPIKey()

	const q = `INSERT INTO devices (` + deviceColumns + `)
		VALUES (:id, :device_id, :device_name, :location, :is_active,
		 :api_key_hash, :api_key_issued_at, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, deviceRowFromModel(d)); err != nil {
		// Lost a race with a concurrent registration of the same ID.
		if existing, ferr := s.FindByExternalID(ctx, d.DeviceID); ferr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert device: %w", err)
	}
	return d, true, nil
}

// FindByExternalID returns the device with the given external identifier, or
// ErrNotFound.
func (s *Store) FindByExternalID(ctx context.Context, deviceID string) (*model.Device, error) {
	var row deviceRow
	q := s.db.Rebind("SELECT " + deviceColumns + " FROM devices WHERE device_id = ?")
	if err := s.db.GetContext(ctx, &row, q, deviceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	d := row.toModel()
	return &d, nil
}

// Save writes the mutable fields of an existing device, including the key
// digest and issue time in a single statement. UpdatedAt is refreshed.
func (s *Store) Save(ctx context.Context, d *model.Device) (*model.Device, error) {
	d.UpdatedAt = time.Now().UTC()

	const q = `UPDATE devices SET
		device_name = :device_name, location = :location, is_active = :is_active,
		api_key_hash = :api_key_hash, api_key_issued_at = :api_key_issued_at,
		updated_at = :updated_at
		WHERE device_id = :device_id`

	result, err := s.db.NamedExecContext(ctx, q, deviceRowFromModel(d))
	if err != nil {
		return nil, fmt.Errorf("update device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update device rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return d, nil
}

// ListDevices returns all devices ordered by external ID, optionally only
// the active ones.
func (s *Store) ListDevices(ctx context.Context, activeOnly bool) ([]model.Device, error) {
	q := "SELECT " + deviceColumns + " FROM devices"
	args := []interface{}{}
	if activeOnly {
		q += " WHERE is_active = ?"
		args = append(args, true)
	}
	q += " ORDER BY device_id"

	var rows []deviceRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	devices := make([]model.Device, len(rows))
	for i, r := range rows {
		devices[i] = r.toModel()
	}
	return devices, nil
}

// ---------------------------------------------------------------------------
// Cough events
// ---------------------------------------------------------------------------

type coughEventRow struct {
	ID          string          `db:"id"`
	DeviceID    string          `db:"device_id"`
	CoughType   string          `db:"cough_type"`
	Confidence  float64         `db:"confidence"`
	RawScore    sql.NullFloat64 `db:"raw_score"`
	DetectedAt  time.Time       `db:"detected_at"`
	AudioVolume sql.NullFloat64 `db:"audio_volume"`
	CreatedAt   time.Time       `db:"created_at"`
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func (r coughEventRow) toModel() model.CoughEvent {
	return model.CoughEvent{
		ID:          r.ID,
		DeviceID:    r.DeviceID,
		CoughType:   r.CoughType,
		Confidence:  r.Confidence,
		RawScore:    floatPtr(r.RawScore),
		Timestamp:   r.DetectedAt.UTC(),
		AudioVolume: floatPtr(r.AudioVolume),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// CreateCoughEvent stores a detection. ID and CreatedAt are assigned here; a
// zero Timestamp defaults to the creation time.
func (s *Store) CreateCoughEvent(ctx context.Context, e *model.CoughEvent) error {
	now := time.Now().UTC()
	e.ID = uuid.Must(uuid.NewV7()).String()
	e.CreatedAt = now
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}

	row := coughEventRow{
		ID:          e.ID,
		DeviceID:    e.DeviceID,
		CoughType:   e.CoughType,
		Confidence:  e.Confidence,
		RawScore:    nullFloat(e.RawScore),
		DetectedAt:  e.Timestamp.UTC(),
		AudioVolume: nullFloat(e.AudioVolume),
		CreatedAt:   e.CreatedAt,
	}

	const q = `INSERT INTO cough_events
		(id, device_id, cough_type, confidence, raw_score, detected_at, audio_volume, created_at)
		VALUES
		(:id, :device_id, :cough_type, :confidence, :raw_score, :detected_at, :audio_volume, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert cough event: %w", err)
	}
	return nil
}

// ListCoughEvents returns a device's events, newest first. from and to are
// optional inclusive bounds on the detection time.
func (s *Store) ListCoughEvents(ctx context.Context, deviceID string, from, to *time.Time) ([]model.CoughEvent, error) {
	q := `SELECT id, device_id, cough_type, confidence, raw_score, detected_at, audio_volume, created_at
		FROM cough_events WHERE device_id = ?`
	args := []interface{}{deviceID}
	if from != nil {
		q += " AND detected_at >= ?"
		args = append(args, from.UTC())
	}
	if to != nil {
		q += " AND detected_at <= ?"
		args = append(args, to.UTC())
	}
	q += " ORDER BY detected_at DESC"

	var rows []coughEventRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list cough events: %w", err)
	}

	events := make([]model.CoughEvent, len(rows))
	for i, r := range rows {
		events[i] = r.toModel()
	}
	return events, nil
}
