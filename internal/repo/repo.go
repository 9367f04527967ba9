package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"motorpool/internal/config"
	"motorpool/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// IsUniqueViolation reports whether err is a SQLite uniqueness constraint
// failure, e.g. a reference-number collision.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsBusy reports whether err is a lock/busy timeout from SQLite.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

// Fleets

func (r Repo) InsertFleetTx(ctx context.Context, tx *sql.Tx, f domain.Fleet) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO fleets(id,name,status,description,created_at) VALUES (?,?,?,?,?)`,
		f.ID, f.Name, f.Status, nullable(f.Description), f.CreatedAt)
	return err
}

func (r Repo) GetFleet(ctx context.Context, id string) (domain.Fleet, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,status,COALESCE(description,''),created_at FROM fleets WHERE id=?`, id)
	var f domain.Fleet
	err := row.Scan(&f.ID, &f.Name, &f.Status, &f.Description, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

// SingleFleet returns the only fleet in the workspace, ErrNotFound when
// there is none, and an error when several exist.
func (r Repo) SingleFleet(ctx context.Context) (domain.Fleet, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,COALESCE(description,''),created_at FROM fleets`)
	if err != nil {
		return domain.Fleet{}, err
	}
	defer rows.Close()
	var fleets []domain.Fleet
	for rows.Next() {
		var f domain.Fleet
		if err := rows.Scan(&f.ID, &f.Name, &f.Status, &f.Description, &f.CreatedAt); err != nil {
			return domain.Fleet{}, err
		}
		fleets = append(fleets, f)
	}
	if len(fleets) == 0 {
		return domain.Fleet{}, ErrNotFound
	}
	if len(fleets) > 1 {
		return domain.Fleet{}, fmt.Errorf("multiple fleets exist; specify --fleet")
	}
	return fleets[0], nil
}

func (r Repo) ListFleets(ctx context.Context) ([]domain.Fleet, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,COALESCE(description,''),created_at FROM fleets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Fleet
	for rows.Next() {
		var f domain.Fleet
		if err := rows.Scan(&f.ID, &f.Name, &f.Status, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) UpsertFleetConfig(ctx context.Context, fleetID string, cfg *config.Config) error {
	return r.upsertFleetConfig(ctx, nil, fleetID, cfg)
}

func (r Repo) UpsertFleetConfigTx(ctx context.Context, tx *sql.Tx, fleetID string, cfg *config.Config) error {
	return r.upsertFleetConfig(ctx, tx, fleetID, cfg)
}

func (r Repo) upsertFleetConfig(ctx context.Context, tx *sql.Tx, fleetID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Fleet.ID = fleetID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := formatTime(time.Now())
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO fleet_configs(fleet_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(fleet_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		fleetID, string(payload), now, now)
	return err
}

func (r Repo) GetFleetConfig(ctx context.Context, fleetID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM fleet_configs WHERE fleet_id=?`, fleetID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Actors

func (r Repo) UpsertActor(ctx context.Context, a domain.Actor) error {
	if a.ID == "" {
		return errors.New("actor id required")
	}
	if !a.Role.Valid() {
		return fmt.Errorf("unknown role %q", a.Role)
	}
	if a.CreatedAt == "" {
		a.CreatedAt = formatTime(time.Now())
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO actors(id,name,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, role=excluded.role`,
		a.ID, nullable(a.Name), string(a.Role), a.CreatedAt)
	return err
}

// EnsureActor inserts the actor if missing, defaulting to the employee role.
func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id,role,created_at) VALUES (?,?,?)`,
		actorID, string(domain.RoleEmployee), now)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return r.GetActorTx(ctx, nil, id)
}

func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id,COALESCE(name,''),role,created_at FROM actors WHERE id=?`, id)
	var a domain.Actor
	var role string
	err := row.Scan(&a.ID, &a.Name, &role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.Role = domain.Role(role)
	return a, err
}

func (r Repo) ListActors(ctx context.Context, role domain.Role) ([]domain.Actor, error) {
	query := `SELECT id,COALESCE(name,''),role,created_at FROM actors`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actors []domain.Actor
	for rows.Next() {
		var a domain.Actor
		var roleStr string
		if err := rows.Scan(&a.ID, &a.Name, &roleStr, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = domain.Role(roleStr)
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

// Vehicles

const vehicleColumns = `id,fleet_id,name,plate,COALESCE(category,''),status,odometer_km,created_at,updated_at`

func scanVehicle(row interface{ Scan(...any) error }) (domain.Vehicle, error) {
	var v domain.Vehicle
	var status string
	err := row.Scan(&v.ID, &v.FleetID, &v.Name, &v.Plate, &v.Category, &status, &v.OdometerKm, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	v.Status = domain.VehicleStatus(status)
	return v, err
}

func (r Repo) InsertVehicle(ctx context.Context, v domain.Vehicle) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO vehicles(id,fleet_id,name,plate,category,status,odometer_km,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		v.ID, v.FleetID, v.Name, v.Plate, nullable(v.Category), string(v.Status), v.OdometerKm, v.CreatedAt, v.UpdatedAt)
	return err
}

func (r Repo) GetVehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	return r.GetVehicleTx(ctx, nil, id)
}

func (r Repo) GetVehicleTx(ctx context.Context, tx *sql.Tx, id string) (domain.Vehicle, error) {
	return scanVehicle(r.q(tx).QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id=?`, id))
}

type VehicleFilter struct {
	FleetID  string
	Status   domain.VehicleStatus
	Category string
}

func (r Repo) ListVehicles(ctx context.Context, f VehicleFilter) ([]domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	var (
		conds []string
		args  []any
	)
	if f.FleetID != "" {
		conds = append(conds, "fleet_id=?")
		args = append(args, f.FleetID)
	}
	if f.Status != "" {
		conds = append(conds, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category=?")
		args = append(args, f.Category)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY name`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vehicles []domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (r Repo) SetVehicleStatusTx(ctx context.Context, tx *sql.Tx, id string, status domain.VehicleStatus, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE vehicles SET status=?, updated_at=? WHERE id=?`, string(status), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetVehicleOdometerTx(ctx context.Context, tx *sql.Tx, id string, odometerKm float64, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE vehicles SET odometer_km=?, updated_at=? WHERE id=?`, odometerKm, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reservations

const reservationColumns = `id,fleet_id,vehicle_id,requester_id,driver_id,status,start_at,end_at,purpose,
COALESCE(destination,''),passengers,estimated_km,reference,COALESCE(check_in_token,''),
approved_by,approved_at,COALESCE(approval_comment,''),COALESCE(rejected_reason,''),COALESCE(cancelled_reason,''),
check_in_at,check_in_odometer_km,COALESCE(check_in_notes,''),
check_out_at,check_out_odometer_km,COALESCE(check_out_notes,''),
rating,COALESCE(feedback,''),created_at,updated_at`

func scanReservation(row interface{ Scan(...any) error }) (domain.Reservation, error) {
	var (
		res                            domain.Reservation
		status                         string
		startAt, endAt                 string
		driverID                       sql.NullString
		passengers, rating             sql.NullInt64
		estimatedKm                    sql.NullFloat64
		approvedBy, approvedAt         sql.NullString
		approvalComment                string
		checkInAt, checkOutAt          sql.NullString
		checkInOdo, checkOutOdo        sql.NullFloat64
		checkInNotes, checkOutNotes    string
	)
	err := row.Scan(&res.ID, &res.FleetID, &res.VehicleID, &res.RequesterID, &driverID, &status, &startAt, &endAt,
		&res.Purpose, &res.Destination, &passengers, &estimatedKm, &res.Reference, &res.CheckInToken,
		&approvedBy, &approvedAt, &approvalComment, &res.RejectedReason, &res.CancelledReason,
		&checkInAt, &checkInOdo, &checkInNotes,
		&checkOutAt, &checkOutOdo, &checkOutNotes,
		&rating, &res.Feedback, &res.CreatedAt, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.Status = domain.ReservationStatus(status)
	start, err := parseTime(startAt)
	if err != nil {
		return res, fmt.Errorf("parse start_at: %w", err)
	}
	end, err := parseTime(endAt)
	if err != nil {
		return res, fmt.Errorf("parse end_at: %w", err)
	}
	res.Window = domain.Window{Start: start, End: end}
	if driverID.Valid {
		res.DriverID = &driverID.String
	}
	if passengers.Valid {
		n := int(passengers.Int64)
		res.Passengers = &n
	}
	if estimatedKm.Valid {
		res.EstimatedKm = &estimatedKm.Float64
	}
	if approvedBy.Valid && approvedAt.Valid {
		res.Approval = &domain.Approval{ApproverID: approvedBy.String, At: approvedAt.String, Comment: approvalComment}
	}
	if checkInAt.Valid {
		res.CheckIn = &domain.TripRecord{At: checkInAt.String, OdometerKm: checkInOdo.Float64, Notes: checkInNotes}
	}
	if checkOutAt.Valid {
		res.CheckOut = &domain.TripRecord{At: checkOutAt.String, OdometerKm: checkOutOdo.Float64, Notes: checkOutNotes}
	}
	if rating.Valid {
		n := int(rating.Int64)
		res.Rating = &n
	}
	return res, nil
}

func (r Repo) InsertReservationTx(ctx context.Context, tx *sql.Tx, res domain.Reservation) error {
	var driverID any
	if res.DriverID != nil {
		driverID = *res.DriverID
	}
	var passengers any
	if res.Passengers != nil {
		passengers = *res.Passengers
	}
	var estimatedKm any
	if res.EstimatedKm != nil {
		estimatedKm = *res.EstimatedKm
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO reservations(
id,fleet_id,vehicle_id,requester_id,driver_id,status,start_at,end_at,purpose,destination,passengers,estimated_km,reference,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.ID, res.FleetID, res.VehicleID, res.RequesterID, driverID, string(res.Status),
		formatTime(res.Window.Start), formatTime(res.Window.End),
		res.Purpose, nullable(res.Destination), passengers, estimatedKm, res.Reference,
		res.CreatedAt, res.UpdatedAt)
	return err
}

// UpdateReservationTx writes every transition-mutable field of the row.
func (r Repo) UpdateReservationTx(ctx context.Context, tx *sql.Tx, res domain.Reservation) error {
	var (
		approvedBy, approvedAt, approvalComment any
		checkInAt, checkInNotes                 any
		checkOutAt, checkOutNotes               any
		checkInOdo, checkOutOdo                 any
		rating                                  any
	)
	if res.Approval != nil {
		approvedBy = res.Approval.ApproverID
		approvedAt = res.Approval.At
		approvalComment = nullable(res.Approval.Comment)
	}
	if res.CheckIn != nil {
		checkInAt = res.CheckIn.At
		checkInOdo = res.CheckIn.OdometerKm
		checkInNotes = nullable(res.CheckIn.Notes)
	}
	if res.CheckOut != nil {
		checkOutAt = res.CheckOut.At
		checkOutOdo = res.CheckOut.OdometerKm
		checkOutNotes = nullable(res.CheckOut.Notes)
	}
	if res.Rating != nil {
		rating = *res.Rating
	}
	result, err := r.q(tx).ExecContext(ctx, `UPDATE reservations SET
status=?, check_in_token=?, approved_by=?, approved_at=?, approval_comment=?,
rejected_reason=?, cancelled_reason=?,
check_in_at=?, check_in_odometer_km=?, check_in_notes=?,
check_out_at=?, check_out_odometer_km=?, check_out_notes=?,
rating=?, feedback=?, updated_at=?
WHERE id=?`,
		string(res.Status), nullable(res.CheckInToken), approvedBy, approvedAt, approvalComment,
		nullable(res.RejectedReason), nullable(res.CancelledReason),
		checkInAt, checkInOdo, checkInNotes,
		checkOutAt, checkOutOdo, checkOutNotes,
		rating, nullable(res.Feedback), res.UpdatedAt,
		res.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	return r.GetReservationTx(ctx, nil, id)
}

func (r Repo) GetReservationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Reservation, error) {
	return scanReservation(r.q(tx).QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=?`, id))
}

func (r Repo) GetReservationByReference(ctx context.Context, reference string) (domain.Reservation, error) {
	return scanReservation(r.DB.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE reference=?`, reference))
}

type ReservationFilter struct {
	FleetID     string
	VehicleID   string
	RequesterID string
	DriverID    string
	Status      domain.ReservationStatus
	From        *time.Time
	To          *time.Time
	Limit       int
}

func (r Repo) ListReservations(ctx context.Context, f ReservationFilter) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations`
	var (
		conds []string
		args  []any
	)
	if f.FleetID != "" {
		conds = append(conds, "fleet_id=?")
		args = append(args, f.FleetID)
	}
	if f.VehicleID != "" {
		conds = append(conds, "vehicle_id=?")
		args = append(args, f.VehicleID)
	}
	if f.RequesterID != "" {
		conds = append(conds, "requester_id=?")
		args = append(args, f.RequesterID)
	}
	if f.DriverID != "" {
		conds = append(conds, "driver_id=?")
		args = append(args, f.DriverID)
	}
	if f.Status != "" {
		conds = append(conds, "status=?")
		args = append(args, string(f.Status))
	}
	// RFC3339 UTC strings order chronologically, so the half-open window
	// comparison runs directly on the stored text.
	if f.From != nil {
		conds = append(conds, "end_at > ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "start_at < ?")
		args = append(args, formatTime(*f.To))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY start_at`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reservations []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

const blockingStatuses = `'pending','approved','checked_in'`

// VehicleConflictTx returns blocking reservations of the vehicle whose
// windows overlap w, excluding excludeID when non-empty.
func (r Repo) VehicleConflictTx(ctx context.Context, tx *sql.Tx, vehicleID string, w domain.Window, excludeID string) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
WHERE vehicle_id=? AND status IN (` + blockingStatuses + `) AND start_at < ? AND end_at > ?`
	args := []any{vehicleID, formatTime(w.End), formatTime(w.Start)}
	if excludeID != "" {
		query += ` AND id <> ?`
		args = append(args, excludeID)
	}
	return r.queryReservations(ctx, tx, query, args...)
}

// DriverConflictTx returns blocking reservations across all vehicles where
// the given actor is the assigned driver and the window overlaps w.
func (r Repo) DriverConflictTx(ctx context.Context, tx *sql.Tx, driverID string, w domain.Window, excludeID string) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
WHERE driver_id=? AND status IN (` + blockingStatuses + `) AND start_at < ? AND end_at > ?`
	args := []any{driverID, formatTime(w.End), formatTime(w.Start)}
	if excludeID != "" {
		query += ` AND id <> ?`
		args = append(args, excludeID)
	}
	return r.queryReservations(ctx, tx, query, args...)
}

// VehicleHoldAtTx returns blocking reservations of the vehicle whose
// windows contain the instant t, excluding excludeID when non-empty.
func (r Repo) VehicleHoldAtTx(ctx context.Context, tx *sql.Tx, vehicleID string, t time.Time, excludeID string) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
WHERE vehicle_id=? AND status IN (` + blockingStatuses + `) AND start_at <= ? AND end_at > ?`
	args := []any{vehicleID, formatTime(t), formatTime(t)}
	if excludeID != "" {
		query += ` AND id <> ?`
		args = append(args, excludeID)
	}
	return r.queryReservations(ctx, tx, query, args...)
}

func (r Repo) queryReservations(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reservations []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func (r Repo) CountReservationsByStatus(ctx context.Context, fleetID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM reservations WHERE fleet_id=? GROUP BY status`, fleetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Events

func (r Repo) ListEvents(ctx context.Context, limit int, fleetID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(fleet_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var args []any
	if fleetID != "" {
		query += ` WHERE fleet_id=?`
		args = append(args, fleetID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.FleetID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventsAfter returns up to limit events with id greater than afterID, in
// ascending order. Used by the webhook dispatcher cursor.
func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64, fleetID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(fleet_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id > ?`
	args := []any{afterID}
	if fleetID != "" {
		query += ` AND fleet_id=?`
		args = append(args, fleetID)
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.FleetID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context, fleetID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if fleetID != "" {
		query += ` WHERE fleet_id=?`
		args = append(args, fleetID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}
