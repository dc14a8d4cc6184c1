package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/minewatch/pitguard/internal/models"
)

// SQLiteLog is the durable ledger used when a database path is
// configured. The table is insert-only; resolution inserts shadow rows.
type SQLiteLog struct {
	db *sql.DB
}

func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return l, nil
}

func (l *SQLiteLog) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS compliance_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			zone_id TEXT NOT NULL,
			workers_alerted TEXT NOT NULL,
			alert_delivery_time TEXT NOT NULL,
			supervisor_action TEXT,
			status TEXT NOT NULL,
			severity TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_zone ON compliance_events(zone_id);
		CREATE INDEX IF NOT EXISTS idx_events_status ON compliance_events(status);
	`

	_, err := l.db.Exec(schema)
	return err
}

func (l *SQLiteLog) insert(ctx context.Context, e models.ComplianceEvent) error {
	workers, err := json.Marshal(e.WorkersAlerted)
	if err != nil {
		return fmt.Errorf("error marshaling workers: %w", err)
	}
	delivery, err := json.Marshal(e.AlertDeliveryTime)
	if err != nil {
		return fmt.Errorf("error marshaling delivery times: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO compliance_events
			(event_id, timestamp, zone_id, workers_alerted, alert_delivery_time, supervisor_action, status, severity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.Timestamp, e.ZoneID, string(workers), string(delivery), e.SupervisorAction, string(e.Status), string(e.Severity),
	)
	if err != nil {
		return fmt.Errorf("error inserting event: %w", err)
	}
	return nil
}

func (l *SQLiteLog) LogAlert(ctx context.Context, alert models.Alert, workersAlerted []string) (models.ComplianceEvent, error) {
	event := NewEvent(alert, workersAlerted)
	if err := l.insert(ctx, event); err != nil {
		return models.ComplianceEvent{}, err
	}
	return event, nil
}

func (l *SQLiteLog) ResolveZone(ctx context.Context, zoneID string, now time.Time) (*models.ComplianceEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, timestamp, zone_id, workers_alerted, alert_delivery_time, supervisor_action, status, severity
		FROM compliance_events WHERE zone_id = ? ORDER BY seq DESC LIMIT 1`, zoneID)
	if err != nil {
		return nil, fmt.Errorf("error querying latest event: %w", err)
	}

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 || events[0].Status != models.StatusOngoing {
		return nil, nil
	}

	shadow := resolvedShadow(events[0], now)
	if err := l.insert(ctx, shadow); err != nil {
		return nil, err
	}
	return &shadow, nil
}

func (l *SQLiteLog) Query(ctx context.Context, f Filter) ([]models.ComplianceEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, timestamp, zone_id, workers_alerted, alert_delivery_time, supervisor_action, status, severity
		FROM compliance_events ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	// Worker filtering needs the decoded list, so filters apply after the
	// scan rather than in SQL.
	out := []models.ComplianceEvent{}
	for _, e := range events {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func scanEvents(rows *sql.Rows) ([]models.ComplianceEvent, error) {
	defer rows.Close()

	var events []models.ComplianceEvent
	for rows.Next() {
		var (
			e        models.ComplianceEvent
			workers  string
			delivery string
			action   sql.NullString
			status   string
			severity string
		)
		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.ZoneID, &workers, &delivery, &action, &status, &severity); err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		if err := json.Unmarshal([]byte(workers), &e.WorkersAlerted); err != nil {
			return nil, fmt.Errorf("error unmarshaling workers: %w", err)
		}
		if err := json.Unmarshal([]byte(delivery), &e.AlertDeliveryTime); err != nil {
			return nil, fmt.Errorf("error unmarshaling delivery times: %w", err)
		}
		e.SupervisorAction = action.String
		e.Status = models.EventStatus(status)
		e.Severity = models.RiskLevel(severity)
		events = append(events, e)
	}
	return events, rows.Err()
}
