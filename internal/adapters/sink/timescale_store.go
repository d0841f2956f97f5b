package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// ErrUnknownSession is returned when a stop or read targets a session the database does not hold.
var ErrUnknownSession = errors.New("timescale: unknown session")

// TimescaleStore keeps sessions and their points in Postgres/TimescaleDB. Points are keyed
// by (session_id, ts) so a batch retried after an ambiguous failure is not stored twice.
type TimescaleStore struct {
	db            *sql.DB
	sessionsTable string
	pointsTable   string
	userID        string
	now           func() time.Time
}

func NewTimescaleStore(db *sql.DB, sessionsTable, pointsTable, userID string) *TimescaleStore {
	if sessionsTable == "" {
		sessionsTable = DefaultSessionsTable
	}
	if pointsTable == "" {
		pointsTable = DefaultPointsTable
	}
	return &TimescaleStore{
		db:            db,
		sessionsTable: sessionsTable,
		pointsTable:   pointsTable,
		userID:        userID,
		now:           time.Now,
	}
}

func (t *TimescaleStore) Name() string { return "timescaledb" }

// EnsureSchema creates both tables under their configured names when they are missing.
// Unlike Migrate it does not turn the points table into a hypertable.
func (t *TimescaleStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + t.sessionsTable + ` (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	start_lat DOUBLE PRECISION,
	start_lng DOUBLE PRECISION)`,
		"CREATE TABLE IF NOT EXISTS " + t.pointsTable + ` (
	session_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	altitude DOUBLE PRECISION,
	speed DOUBLE PRECISION,
	heading DOUBLE PRECISION,
	accuracy DOUBLE PRECISION,
	accel_x DOUBLE PRECISION NOT NULL,
	accel_y DOUBLE PRECISION NOT NULL,
	accel_z DOUBLE PRECISION NOT NULL,
	accel_magnitude DOUBLE PRECISION NOT NULL,
	accel_samples JSONB,
	PRIMARY KEY (session_id, ts))`,
	}
	for _, stmt := range stmts {
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (t *TimescaleStore) StartSession(ctx context.Context, start *domain.Position) (string, error) {
	id := uuid.NewString()
	var lat, lng any
	if start != nil {
		lat, lng = start.Latitude, start.Longitude
	}
	_, err := t.db.ExecContext(ctx,
		"INSERT INTO "+t.sessionsTable+" (id, user_id, started_at, status, start_lat, start_lng) VALUES ($1,$2,$3,$4,$5,$6)",
		id, t.userID, t.now().UTC(), "active", lat, lng)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func (t *TimescaleStore) StopSession(ctx context.Context, sessionID string) error {
	res, err := t.db.ExecContext(ctx,
		"UPDATE "+t.sessionsTable+" SET ended_at = $2, status = $3 WHERE id = $1",
		sessionID, t.now().UTC(), "completed")
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return nil
}

// UploadBatch inserts the whole batch in one statement. The database does not classify
// activity, so the returned slice is always empty.
func (t *TimescaleStore) UploadBatch(ctx context.Context, sessionID string, points []domain.DataPoint) ([]domain.ClassifiedPoint, error) {
	if len(points) == 0 {
		return nil, nil
	}

	const cols = 13
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.pointsTable)
	b.WriteString(" (session_id, ts, latitude, longitude, altitude, speed, heading, accuracy, accel_x, accel_y, accel_z, accel_magnitude, accel_samples) VALUES ")

	args := make([]any, 0, len(points)*cols)
	for i, p := range points {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 1; c <= cols; c++ {
			if c > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c)
		}
		b.WriteString(")")

		var samples any
		if len(p.AccelSamples) > 0 {
			raw, err := json.Marshal(p.AccelSamples)
			if err != nil {
				return nil, fmt.Errorf("marshal accel samples: %w", err)
			}
			samples = raw
		}
		args = append(args,
			sessionID,
			time.UnixMilli(p.Timestamp).UTC(),
			p.Latitude,
			p.Longitude,
			nullable(p.Altitude),
			nullable(p.Speed),
			nullable(p.Heading),
			nullable(p.Accuracy),
			p.AccelX,
			p.AccelY,
			p.AccelZ,
			p.AccelMagnitude,
			samples,
		)
	}
	b.WriteString(" ON CONFLICT (session_id, ts) DO NOTHING")

	if _, err := t.db.ExecContext(ctx, b.String(), args...); err != nil {
		return nil, fmt.Errorf("insert %d points: %w", len(points), err)
	}
	return nil, nil
}

func (t *TimescaleStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.QueryContext(ctx,
		"SELECT s.id, s.user_id, s.started_at, s.ended_at, s.status, COUNT(p.ts) FROM "+t.sessionsTable+
			" s LEFT JOIN "+t.pointsTable+" p ON p.session_id = s.id GROUP BY s.id ORDER BY s.started_at DESC LIMIT $1",
		limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		var (
			s     domain.SessionSummary
			ended sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.StartTime, &ended, &s.Status, &s.DataPointCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			s.EndTime = ended.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *TimescaleStore) SessionPoints(ctx context.Context, sessionID string) ([]domain.DataPoint, error) {
	rows, err := t.db.QueryContext(ctx,
		"SELECT ts, latitude, longitude, altitude, speed, heading, accuracy, accel_x, accel_y, accel_z, accel_magnitude, accel_samples FROM "+
			t.pointsTable+" WHERE session_id = $1 ORDER BY ts",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []domain.DataPoint
	for rows.Next() {
		var (
			p                                  domain.DataPoint
			ts                                 time.Time
			altitude, speed, heading, accuracy sql.NullFloat64
			samples                            []byte
		)
		if err := rows.Scan(&ts, &p.Latitude, &p.Longitude, &altitude, &speed, &heading, &accuracy,
			&p.AccelX, &p.AccelY, &p.AccelZ, &p.AccelMagnitude, &samples); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p.Timestamp = ts.UnixMilli()
		p.Altitude = floatPtr(altitude)
		p.Speed = floatPtr(speed)
		p.Heading = floatPtr(heading)
		p.Accuracy = floatPtr(accuracy)
		if len(samples) > 0 {
			if err := json.Unmarshal(samples, &p.AccelSamples); err != nil {
				return nil, fmt.Errorf("decode accel samples: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ ports.RemoteStore = (*TimescaleStore)(nil)
