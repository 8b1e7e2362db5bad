package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/trip-progress/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO trips(id, status, planned_departure, planned_arrival,
		origin_name, origin_lat, origin_lng, dest_name, dest_lat, dest_lng, total_distance_m,
		progress, progress_method, last_updated)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		t.ID, t.Status, t.PlannedDeparture, t.PlannedArrival,
		t.Route.Origin.Name, t.Route.Origin.Coord.Lat, t.Route.Origin.Coord.Lng,
		t.Route.Destination.Name, t.Route.Destination.Coord.Lat, t.Route.Destination.Coord.Lng,
		t.Route.TotalDistanceMeters, t.Progress, t.ProgressMethod, t.LastUpdated)
	return err
}

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	t := &models.Trip{}
	row := p.db.QueryRowContext(ctx, `SELECT id, status, planned_departure, planned_arrival,
		origin_name, origin_lat, origin_lng, dest_name, dest_lat, dest_lng, total_distance_m,
		progress, progress_method, last_updated FROM trips WHERE id=$1`, id)
	err := row.Scan(&t.ID, &t.Status, &t.PlannedDeparture, &t.PlannedArrival,
		&t.Route.Origin.Name, &t.Route.Origin.Coord.Lat, &t.Route.Origin.Coord.Lng,
		&t.Route.Destination.Name, &t.Route.Destination.Coord.Lat, &t.Route.Destination.Coord.Lng,
		&t.Route.TotalDistanceMeters, &t.Progress, &t.ProgressMethod, &t.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trip %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if t.Checkpoints, err = p.loadCheckpoints(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *PostgresStore) loadCheckpoints(ctx context.Context, tripID string) ([]models.CheckpointRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT sequence, source, lat, lng, speed_kmh,
		action, target, observations, resulting_progress, resulting_status, ts
		FROM trip_checkpoints WHERE trip_id=$1 ORDER BY sequence`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CheckpointRecord
	for rows.Next() {
		var (
			rec          models.CheckpointRecord
			lat, lng     sql.NullFloat64
			speed        sql.NullFloat64
			action       sql.NullString
			target       sql.NullFloat64
			observations sql.NullString
		)
		if err := rows.Scan(&rec.Sequence, &rec.Source, &lat, &lng, &speed,
			&action, &target, &observations, &rec.ResultingProgress, &rec.ResultingStatus, &rec.Timestamp); err != nil {
			return nil, err
		}
		switch rec.Source {
		case models.SourceGPS:
			gps := &models.GPSPayload{Lat: lat.Float64, Lng: lng.Float64}
			if speed.Valid {
				v := speed.Float64
				gps.SpeedKmh = &v
			}
			rec.GPS = gps
		case models.SourceManual:
			man := &models.ManualPayload{Action: models.ManualAction(action.String), Observations: observations.String}
			if target.Valid {
				v := target.Float64
				man.Target = &v
			}
			rec.Manual = man
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateTrip(ctx context.Context, t *models.Trip) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET status=$1, progress=$2, progress_method=$3, last_updated=$4 WHERE id=$5`,
		t.Status, t.Progress, t.ProgressMethod, t.LastUpdated, t.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("trip %s: %w", t.ID, models.ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) ApplyCheckpoint(ctx context.Context, t *models.Trip, rec models.CheckpointRecord) error {
	var (
		lat, lng, speed, target sql.NullFloat64
		action, observations    sql.NullString
	)
	if rec.GPS != nil {
		lat = sql.NullFloat64{Float64: rec.GPS.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: rec.GPS.Lng, Valid: true}
		if rec.GPS.SpeedKmh != nil {
			speed = sql.NullFloat64{Float64: *rec.GPS.SpeedKmh, Valid: true}
		}
	}
	if rec.Manual != nil {
		action = sql.NullString{String: string(rec.Manual.Action), Valid: true}
		observations = sql.NullString{String: rec.Manual.Observations, Valid: rec.Manual.Observations != ""}
		if rec.Manual.Target != nil {
			target = sql.NullFloat64{Float64: *rec.Manual.Target, Valid: true}
		}
	}

	// record and head commit together so the log never holds a checkpoint
	// the trip head does not reflect
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO trip_checkpoints(trip_id, sequence, source, lat, lng,
		speed_kmh, action, target, observations, resulting_progress, resulting_status, ts)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, rec.Sequence, rec.Source, lat, lng, speed, action, target, observations,
		rec.ResultingProgress, rec.ResultingStatus, rec.Timestamp); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE trips SET status=$1, progress=$2, progress_method=$3, last_updated=$4 WHERE id=$5`,
		t.Status, t.Progress, t.ProgressMethod, t.LastUpdated, t.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("trip %s: %w", t.ID, models.ErrNotFound)
	}
	return tx.Commit()
}

func (p *PostgresStore) ActiveTripIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM trips WHERE status NOT IN ($1,$2)`,
		models.StateCompleted, models.StateCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
