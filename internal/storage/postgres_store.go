package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/example/carwash-booking/internal/models"
)

// PostgresStore talks to the remote relational store. Row ownership is
// enforced server side; every address query still passes the owning user.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	// quick ping
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

const workerColumns = `id, user_id, full_name, rating, review_count, ST_AsText(location), services,
	base_price, status, service_radius_km, hourly_rate, work_start, work_end, works_weekends`

type rowScanner interface{ Scan(dest ...any) error }

func scanWorker(r rowScanner) (models.Worker, error) {
	var (
		w          models.Worker
		loc        sql.NullString
		hourly     sql.NullFloat64
		start, end sql.NullString
		status     string
	)
	err := r.Scan(&w.ID, &w.UserID, &w.FullName, &w.Rating, &w.ReviewCount, &loc, pq.Array(&w.Services),
		&w.BasePrice, &status, &w.ServiceRadiusKm, &hourly, &start, &end, &w.WorksWeekends)
	if err != nil {
		return w, err
	}
	w.Status = models.WorkerStatus(status)
	if loc.Valid {
		w.RawLocation = []byte(loc.String)
	}
	if hourly.Valid {
		v := hourly.Float64
		w.HourlyRate = &v
	}
	w.WorkStart, w.WorkEnd = clockString(start.String), clockString(end.String)
	return w, nil
}

func (p *PostgresStore) queryWorkers(ctx context.Context, op, q string, args ...any) ([]models.Worker, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()
	out := []models.Worker{}
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, w)
	}
	return out, classify(op, rows.Err())
}

func (p *PostgresStore) ListWorkers(ctx context.Context, status models.WorkerStatus) ([]models.Worker, error) {
	return p.queryWorkers(ctx, "list workers",
		`SELECT `+workerColumns+` FROM worker_listings WHERE ($1 = '' OR status = $1) ORDER BY rating DESC, id`, string(status))
}

func (p *PostgresStore) FindNearbyWorkers(ctx context.Context, lat, lon, radiusKm float64, serviceID string) ([]models.NearbyCandidate, error) {
	var sid any
	if serviceID != "" {
		sid = serviceID
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT worker_id, user_id, full_name, rating, distance_km, base_price FROM find_nearby_workers($1, $2, $3, $4)`,
		lat, lon, radiusKm, sid)
	if err != nil {
		return nil, classify("find nearby workers", err)
	}
	defer rows.Close()
	out := []models.NearbyCandidate{}
	for rows.Next() {
		var c models.NearbyCandidate
		if err := rows.Scan(&c.WorkerID, &c.UserID, &c.FullName, &c.Rating, &c.DistanceKm, &c.BasePrice); err != nil {
			return nil, classify("find nearby workers", err)
		}
		out = append(out, c)
	}
	return out, classify("find nearby workers", rows.Err())
}

func (p *PostgresStore) WorkersByIDs(ctx context.Context, ids []string) ([]models.Worker, error) {
	if len(ids) == 0 {
		return []models.Worker{}, nil
	}
	return p.queryWorkers(ctx, "workers by id",
		`SELECT `+workerColumns+` FROM worker_listings WHERE id = ANY($1)`, pq.Array(ids))
}

func (p *PostgresStore) ServiceByKey(ctx context.Context, key string) (models.Service, bool, error) {
	var (
		s        models.Service
		category string
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, key, title, description, base_price, category, duration_minutes, active
		 FROM services WHERE key = $1 AND active`, key).
		Scan(&s.ID, &s.Key, &s.Title, &s.Description, &s.BasePrice, &category, &s.DurationMinutes, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Service{}, false, nil
	}
	if err != nil {
		return models.Service{}, false, classify("service by key", err)
	}
	s.Category = models.ServiceCategory(category)
	return s, true, nil
}

func (p *PostgresStore) WorkersByService(ctx context.Context, serviceID string) ([]models.Worker, error) {
	return p.queryWorkers(ctx, "workers by service",
		`SELECT `+workerColumns+` FROM worker_listings w
		 WHERE EXISTS (SELECT 1 FROM services s WHERE s.id = $1 AND s.active AND s.key = ANY(w.services))
		 ORDER BY rating DESC, id`, serviceID)
}

const bookingColumns = `id, customer_id, worker_id, service_id, scheduled_date::text, scheduled_time::text,
	estimated_duration, status, base_price, total_price,
	vehicle_type, vehicle_make, vehicle_model, vehicle_year, vehicle_color, vehicle_plate,
	service_address, latitude, longitude, payment_method, payment_intent_id,
	started_at, completed_at, cancelled_at, cancelled_by, cancellation_reason,
	customer_notes, worker_notes, can_rate, can_cancel, can_reschedule, created_at, updated_at`

// scanBooking reads bookingColumns followed by any extra columns into extra.
func scanBooking(r rowScanner, extra ...any) (models.Booking, error) {
	var (
		b                                           models.Booking
		status                                      string
		year                                        sql.NullInt64
		lat, lon                                    sql.NullFloat64
		intent, cancelledBy, reason, cNotes, wNotes sql.NullString
		started, completed, cancelled               sql.NullTime
	)
	dest := []any{&b.ID, &b.CustomerID, &b.WorkerID, &b.ServiceID, &b.ScheduledDate, &b.ScheduledTime,
		&b.EstimatedDuration, &status, &b.BasePrice, &b.TotalPrice,
		&b.Vehicle.Type, &b.Vehicle.Make, &b.Vehicle.Model, &year, &b.Vehicle.Color, &b.Vehicle.Plate,
		&b.ServiceAddress, &lat, &lon, &b.PaymentMethod, &intent,
		&started, &completed, &cancelled, &cancelledBy, &reason,
		&cNotes, &wNotes, &b.CanRate, &b.CanCancel, &b.CanReschedule, &b.CreatedAt, &b.UpdatedAt}
	err := r.Scan(append(dest, extra...)...)
	if err != nil {
		return b, err
	}
	b.Status = models.BookingStatus(status)
	b.ScheduledTime = clockString(b.ScheduledTime)
	b.Vehicle.Year = int(year.Int64)
	if lat.Valid && lon.Valid {
		b.Location = &models.Coord{Lat: lat.Float64, Lon: lon.Float64}
	}
	b.PaymentIntentID, b.CancelledBy, b.CancellationReason = intent.String, cancelledBy.String, reason.String
	b.CustomerNotes, b.WorkerNotes = cNotes.String, wNotes.String
	b.StartedAt, b.CompletedAt, b.CancelledAt = timePtr(started), timePtr(completed), timePtr(cancelled)
	return b, nil
}

func (p *PostgresStore) WorkerBookingsOn(ctx context.Context, workerID, date string, statuses []models.BookingStatus) ([]models.Booking, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE worker_id = $1 AND scheduled_date = $2 AND status = ANY($3)
		 ORDER BY scheduled_time`, workerID, date, pq.Array(ss))
	if err != nil {
		return nil, classify("worker bookings", err)
	}
	defer rows.Close()
	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify("worker bookings", err)
		}
		out = append(out, b)
	}
	return out, classify("worker bookings", rows.Err())
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (models.Booking, bool, error) {
	var workerUser sql.NullString
	b, err := scanBooking(p.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+`, worker_user_id FROM booking_details WHERE id = $1`, id), &workerUser)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, false, nil
	}
	if err != nil {
		return models.Booking{}, false, classify("get booking", err)
	}
	b.WorkerUserID = workerUser.String
	return b, true, nil
}

func (p *PostgresStore) CreateBooking(ctx context.Context, nb models.NewBooking) (models.Booking, error) {
	var lat, lon any
	if nb.Location != nil {
		lat, lon = nb.Location.Lat, nb.Location.Lon
	}
	var workerUser sql.NullString
	b, err := scanBooking(p.db.QueryRowContext(ctx,
		`WITH b AS (INSERT INTO bookings (customer_id, worker_id, service_id, scheduled_date, scheduled_time, estimated_duration,
			status, base_price, total_price, vehicle_type, vehicle_make, vehicle_model, vehicle_year, vehicle_color,
			vehicle_plate, service_address, latitude, longitude, payment_method, payment_intent_id, customer_notes,
			can_rate, can_cancel, can_reschedule)
		 VALUES ($1,$2,$3,$4,$5,$6,'pending',$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,NULLIF($19,''),NULLIF($20,''),false,true,true)
		 RETURNING *)
		 SELECT `+bookingColumns+`, (SELECT w.user_id FROM worker_listings w WHERE w.id = b.worker_id) FROM b`,
		nb.CustomerID, nb.WorkerID, nb.ServiceID, nb.ScheduledDate, nb.ScheduledTime, nb.EstimatedDuration,
		nb.BasePrice, nb.TotalPrice, nb.Vehicle.Type, nb.Vehicle.Make, nb.Vehicle.Model, nullInt(nb.Vehicle.Year), nb.Vehicle.Color,
		nb.Vehicle.Plate, nb.ServiceAddress, lat, lon, nb.PaymentMethod, nb.PaymentIntentID, nb.CustomerNotes), &workerUser)
	if err != nil {
		return models.Booking{}, classify("create booking", err)
	}
	b.WorkerUserID = workerUser.String
	return b, nil
}

func (p *PostgresStore) UpdateBooking(ctx context.Context, b models.Booking) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bookings SET status=$1, scheduled_date=$2, scheduled_time=$3, started_at=$4, completed_at=$5,
			cancelled_at=$6, cancelled_by=NULLIF($7,''), cancellation_reason=NULLIF($8,''), worker_notes=NULLIF($9,''),
			can_rate=$10, can_cancel=$11, can_reschedule=$12, updated_at=now()
		 WHERE id=$13`,
		string(b.Status), b.ScheduledDate, b.ScheduledTime, b.StartedAt, b.CompletedAt,
		b.CancelledAt, b.CancelledBy, b.CancellationReason, b.WorkerNotes,
		b.CanRate, b.CanCancel, b.CanReschedule, b.ID)
	if err != nil {
		return classify("update booking", err)
	}
	return affected(res, "booking", b.ID)
}

const addressColumns = `id, user_id, label, address, city, postal_code, type, is_default, latitude, longitude, created_at, updated_at`

func scanAddress(r rowScanner) (models.Address, error) {
	var (
		a        models.Address
		typ      string
		postal   sql.NullString
		lat, lon sql.NullFloat64
	)
	if err := r.Scan(&a.ID, &a.UserID, &a.Label, &a.Address, &a.City, &postal, &typ, &a.IsDefault, &lat, &lon, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	a.Type = models.AddressType(typ)
	a.PostalCode = postal.String
	if lat.Valid && lon.Valid {
		a.Location = &models.Coord{Lat: lat.Float64, Lon: lon.Float64}
	}
	return a, nil
}

func (p *PostgresStore) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, updated_at DESC`, userID)
	if err != nil {
		return nil, classify("list addresses", err)
	}
	defer rows.Close()
	out := []models.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, classify("list addresses", err)
		}
		out = append(out, a)
	}
	return out, classify("list addresses", rows.Err())
}

func (p *PostgresStore) GetAddress(ctx context.Context, userID, id string) (models.Address, bool, error) {
	a, err := scanAddress(p.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Address{}, false, nil
	}
	if err != nil {
		return models.Address{}, false, classify("get address", err)
	}
	return a, true, nil
}

func (p *PostgresStore) InsertAddress(ctx context.Context, a models.Address) (models.Address, error) {
	lat, lon := coordArgs(a.Location)
	out, err := scanAddress(p.db.QueryRowContext(ctx,
		`INSERT INTO addresses (user_id, label, address, city, postal_code, type, is_default, latitude, longitude)
		 VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9) RETURNING `+addressColumns,
		a.UserID, a.Label, a.Address, a.City, a.PostalCode, string(a.Type), a.IsDefault, lat, lon))
	if err != nil {
		return models.Address{}, classify("insert address", err)
	}
	return out, nil
}

func (p *PostgresStore) UpdateAddress(ctx context.Context, a models.Address) (models.Address, error) {
	lat, lon := coordArgs(a.Location)
	out, err := scanAddress(p.db.QueryRowContext(ctx,
		`UPDATE addresses SET label=$1, address=$2, city=$3, postal_code=NULLIF($4,''), type=$5, is_default=$6,
			latitude=$7, longitude=$8, updated_at=now()
		 WHERE id=$9 AND user_id=$10 RETURNING `+addressColumns,
		a.Label, a.Address, a.City, a.PostalCode, string(a.Type), a.IsDefault, lat, lon, a.ID, a.UserID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Address{}, notFound("address", a.ID)
	}
	if err != nil {
		return models.Address{}, classify("update address", err)
	}
	return out, nil
}

func (p *PostgresStore) DeleteAddress(ctx context.Context, userID, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, classify("delete address", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *PostgresStore) ClearDefaultAddresses(ctx context.Context, userID, exceptID string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE addresses SET is_default = false, updated_at = now()
		 WHERE user_id = $1 AND is_default AND id::text <> $2`, userID, exceptID)
	return classify("clear default addresses", err)
}

func (p *PostgresStore) MarkDefaultAddress(ctx context.Context, userID, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE addresses SET is_default = true, updated_at = now() WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, classify("mark default address", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SwapDefaultAddress moves the default flag in a single statement, so
// concurrent swaps cannot leave zero or two defaults behind.
func (p *PostgresStore) SwapDefaultAddress(ctx context.Context, userID, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE addresses SET is_default = (id::text = $2), updated_at = now()
		 WHERE user_id = $1 AND (is_default OR id::text = $2)
		   AND EXISTS (SELECT 1 FROM addresses WHERE id::text = $2 AND user_id = $1)`, userID, id)
	if err != nil {
		return false, classify("swap default address", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func affected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func coordArgs(c *models.Coord) (any, any) {
	if c == nil {
		return nil, nil
	}
	return c.Lat, c.Lon
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// clockString trims a Postgres time value ("10:30:00") to HH:MM.
func clockString(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 5 && s[2] == ':' && s[5] == ':' {
		return s[:5]
	}
	return s
}
