package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"motorpool/internal/config"
	"motorpool/internal/domain"
	"motorpool/internal/engine/auth"
	"motorpool/internal/events"
	"motorpool/internal/refnum"
	"motorpool/internal/repo"
)

// Engine owns the reservation state machine. Every transition runs inside
// one transaction: precondition checks, the authorization gate, conflict
// re-validation, the row updates and the event append commit atomically or
// not at all.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	// NewRef generates reference numbers and check-in tokens. Tests
	// override it to force collisions.
	NewRef func(prefix string, t time.Time) (string, error)
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		NewRef: refnum.New,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) fleetID() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Fleet.ID
}

// begin opens a write transaction, mapping a lock timeout to a retryable
// contention error.
func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		if repo.IsBusy(err) {
			return nil, ContentionError{Err: err}
		}
		return nil, err
	}
	return tx, nil
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		if repo.IsBusy(err) {
			return ContentionError{Err: err}
		}
		return err
	}
	return nil
}

// InitFleet creates the fleet record and stores its config.
func (e Engine) InitFleet(ctx context.Context, fleetID, name, description, actorID string) (domain.Fleet, error) {
	if strings.TrimSpace(fleetID) == "" {
		return domain.Fleet{}, validationf("fleet id required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Fleet{}, err
	}
	defer tx.Rollback()

	now := e.nowString()
	if name == "" {
		name = fleetID
	}
	f := domain.Fleet{
		ID:          fleetID,
		Name:        name,
		Status:      "active",
		Description: description,
		CreatedAt:   now,
	}
	if err := e.Repo.InsertFleetTx(ctx, tx, f); err != nil {
		return domain.Fleet{}, fmt.Errorf("insert fleet: %w", err)
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(fleetID)
	}
	if err := e.Repo.UpsertFleetConfigTx(ctx, tx, fleetID, cfg); err != nil {
		return domain.Fleet{}, fmt.Errorf("insert fleet config: %w", err)
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.Fleet{}, fmt.Errorf("ensure actor: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.FleetInit, f.ID, "fleet", f.ID, actorID, events.EventPayload{"status": f.Status}); err != nil {
		return domain.Fleet{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Fleet{}, err
	}
	return f, nil
}

// AddVehicleOptions are parameters for registering a vehicle.
type AddVehicleOptions struct {
	ID         string
	Name       string
	Plate      string
	Category   string
	OdometerKm float64
}

func (e Engine) AddVehicle(ctx context.Context, actor domain.Actor, opts AddVehicleOptions) (domain.Vehicle, error) {
	if err := auth.Check(actor, auth.Relation{}, auth.TransitionManageVehicle); err != nil {
		return domain.Vehicle{}, err
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Vehicle{}, validationf("vehicle name required")
	}
	if strings.TrimSpace(opts.Plate) == "" {
		return domain.Vehicle{}, validationf("vehicle plate required")
	}
	if opts.OdometerKm < 0 {
		return domain.Vehicle{}, validationf("odometer must not be negative")
	}
	if e.Config != nil && !e.Config.KnownCategory(opts.Category) {
		return domain.Vehicle{}, validationf("unknown vehicle category %q", opts.Category)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Vehicle{}, err
	}
	defer tx.Rollback()

	now := e.nowString()
	v := domain.Vehicle{
		ID:         opts.ID,
		FleetID:    e.fleetID(),
		Name:       strings.TrimSpace(opts.Name),
		Plate:      strings.ToUpper(strings.TrimSpace(opts.Plate)),
		Category:   opts.Category,
		Status:     domain.VehicleAvailable,
		OdometerKm: opts.OdometerKm,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if err := e.Repo.EnsureActor(ctx, tx, actor.ID, now); err != nil {
		return domain.Vehicle{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vehicles(id,fleet_id,name,plate,category,status,odometer_km,created_at,updated_at) VALUES (?,?,?,?,?,NULLIF(?,''),?,?,?)`,
		v.ID, v.FleetID, v.Name, v.Plate, v.Category, string(v.Status), v.OdometerKm, v.CreatedAt, v.UpdatedAt); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Vehicle{}, ConflictError{Msg: fmt.Sprintf("vehicle with plate %s already registered", v.Plate)}
		}
		return domain.Vehicle{}, fmt.Errorf("insert vehicle: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.VehicleCreated, v.FleetID, "vehicle", v.ID, actor.ID, events.EventPayload{"vehicle": v}); err != nil {
		return domain.Vehicle{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Vehicle{}, err
	}
	return v, nil
}

// SetVehicleStatus drives the maintenance workflow: approvers move vehicles
// between available, maintenance and out_of_service. Reservation-driven
// states (reserved, in_use) cannot be set by hand, and a vehicle with a
// checked-in reservation cannot be pulled from service mid-trip.
func (e Engine) SetVehicleStatus(ctx context.Context, actor domain.Actor, vehicleID string, status domain.VehicleStatus) (domain.Vehicle, error) {
	if err := auth.Check(actor, auth.Relation{}, auth.TransitionManageVehicle); err != nil {
		return domain.Vehicle{}, err
	}
	switch status {
	case domain.VehicleAvailable, domain.VehicleMaintenance, domain.VehicleOutOfService:
	default:
		return domain.Vehicle{}, validationf("vehicle status %q cannot be set directly", status)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Vehicle{}, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetVehicleTx(ctx, tx, vehicleID)
	if err != nil {
		return domain.Vehicle{}, err
	}
	if v.Status == domain.VehicleInUse {
		return domain.Vehicle{}, ConflictError{Msg: fmt.Sprintf("vehicle %s has a checked-in reservation", vehicleID)}
	}
	now := e.nowString()
	if err := e.Repo.SetVehicleStatusTx(ctx, tx, v.ID, status, now); err != nil {
		return domain.Vehicle{}, err
	}
	if err := e.Events.Append(ctx, tx, events.VehicleStatusChanged, v.FleetID, "vehicle", v.ID, actor.ID,
		events.EventPayload{"from": v.Status, "to": status}); err != nil {
		return domain.Vehicle{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Vehicle{}, err
	}
	v.Status = status
	v.UpdatedAt = now
	return v, nil
}

// CreateReservationOptions are parameters for requesting a vehicle.
type CreateReservationOptions struct {
	VehicleID   string
	Start       time.Time
	End         time.Time
	DriverID    string
	Purpose     string
	Destination string
	Passengers  *int
	EstimatedKm *float64
}

// CreateReservation opens a reservation in pending state. The conflict
// check and the insert share one transaction so two concurrent requests
// for overlapping windows cannot both succeed.
func (e Engine) CreateReservation(ctx context.Context, actor domain.Actor, opts CreateReservationOptions) (domain.Reservation, error) {
	if err := auth.Check(actor, auth.Relation{}, auth.TransitionCreate); err != nil {
		return domain.Reservation{}, err
	}
	w, err := domain.NewWindow(opts.Start, opts.End)
	if err != nil {
		return domain.Reservation{}, ValidationError{Msg: err.Error()}
	}
	if strings.TrimSpace(opts.Purpose) == "" {
		return domain.Reservation{}, validationf("purpose required")
	}
	if opts.Passengers != nil && *opts.Passengers < 1 {
		return domain.Reservation{}, validationf("passenger count must be at least 1")
	}
	if opts.EstimatedKm != nil && *opts.EstimatedKm < 0 {
		return domain.Reservation{}, validationf("estimated distance must not be negative")
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	v, err := e.Repo.GetVehicleTx(ctx, tx, opts.VehicleID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !v.Status.Bookable() {
		return domain.Reservation{}, ConflictError{Msg: fmt.Sprintf("vehicle %s is %s and cannot be reserved", v.ID, v.Status)}
	}

	var driverID *string
	if opts.DriverID != "" {
		driver, err := e.Repo.GetActorTx(ctx, tx, opts.DriverID)
		if err != nil {
			return domain.Reservation{}, err
		}
		if driver.Role != domain.RoleDriver {
			return domain.Reservation{}, validationf("actor %s is not a driver", driver.ID)
		}
		driverID = &driver.ID
	}

	now := e.nowString()
	if err := e.Repo.EnsureActor(ctx, tx, actor.ID, now); err != nil {
		return domain.Reservation{}, err
	}

	conflicts, err := e.Repo.VehicleConflictTx(ctx, tx, v.ID, w, "")
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(conflicts) > 0 {
		return domain.Reservation{}, ConflictError{
			Msg:           fmt.Sprintf("vehicle %s already reserved from %s to %s", v.ID, conflicts[0].Window.Start.Format(time.RFC3339), conflicts[0].Window.End.Format(time.RFC3339)),
			ReservationID: conflicts[0].ID,
		}
	}
	if driverID != nil {
		conflicts, err := e.Repo.DriverConflictTx(ctx, tx, *driverID, w, "")
		if err != nil {
			return domain.Reservation{}, err
		}
		if len(conflicts) > 0 {
			return domain.Reservation{}, ConflictError{
				Msg:           fmt.Sprintf("driver %s already booked for an overlapping window", *driverID),
				ReservationID: conflicts[0].ID,
			}
		}
	}

	res := domain.Reservation{
		ID:          uuid.NewString(),
		FleetID:     e.fleetID(),
		VehicleID:   v.ID,
		RequesterID: actor.ID,
		DriverID:    driverID,
		Status:      domain.ReservationPending,
		Window:      w,
		Purpose:     strings.TrimSpace(opts.Purpose),
		Destination: strings.TrimSpace(opts.Destination),
		Passengers:  opts.Passengers,
		EstimatedKm: opts.EstimatedKm,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.insertWithReference(ctx, tx, &res); err != nil {
		return domain.Reservation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ReservationCreated, res.FleetID, "reservation", res.ID, actor.ID,
		events.EventPayload{"reservation": res}); err != nil {
		return domain.Reservation{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

// insertWithReference generates a reference and inserts the row, retrying
// with a fresh reference while the store reports a uniqueness violation.
// The random suffix space is finite; collisions are managed, not assumed
// away.
func (e Engine) insertWithReference(ctx context.Context, tx *sql.Tx, res *domain.Reservation) error {
	attempts := e.Config.ReferenceAttempts()
	gen := e.NewRef
	if gen == nil {
		gen = refnum.New
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		ref, err := gen(refnum.PrefixReservation, e.now())
		if err != nil {
			return err
		}
		res.Reference = ref
		err = e.Repo.InsertReservationTx(ctx, tx, *res)
		if err == nil {
			return nil
		}
		if !repo.IsUniqueViolation(err) {
			return fmt.Errorf("insert reservation: %w", err)
		}
		lastErr = err
	}
	return ConflictError{Msg: fmt.Sprintf("reference generation exhausted after %d attempts: %v", attempts, lastErr)}
}

// ApproveReservation moves pending -> approved. The conflict check runs
// again inside the transaction: another reservation may have been approved
// for an overlapping window since this one was created, and approval must
// fail rather than silently double-book.
func (e Engine) ApproveReservation(ctx context.Context, actor domain.Actor, id, comment string) (domain.Reservation, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	res, err := e.Repo.GetReservationTx(ctx, tx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if res.Status != domain.ReservationPending {
		return domain.Reservation{}, InvalidTransitionError{ReservationID: id, Op: "approve", Current: res.Status, Required: string(domain.ReservationPending)}
	}
	if err := auth.Check(actor, relationOf(actor, res), auth.TransitionApprove); err != nil {
		return domain.Reservation{}, err
	}

	conflicts, err := e.Repo.VehicleConflictTx(ctx, tx, res.VehicleID, res.Window, res.ID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(conflicts) > 0 {
		return domain.Reservation{}, ConflictError{
			Msg:           fmt.Sprintf("window now conflicts with reservation %s", conflicts[0].Reference),
			ReservationID: conflicts[0].ID,
		}
	}

	now := e.now()
	token, err := e.newToken()
	if err != nil {
		return domain.Reservation{}, err
	}
	res.Status = domain.ReservationApproved
	res.Approval = &domain.Approval{ApproverID: actor.ID, At: now.UTC().Format(time.RFC3339), Comment: strings.TrimSpace(comment)}
	res.CheckInToken = token
	res.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateReservationTx(ctx, tx, res); err != nil {
		return domain.Reservation{}, err
	}

	// The vehicle shows as reserved only while the approved window is
	// current; future windows leave it available until check-in time.
	if res.Window.Contains(now) {
		v, err := e.Repo.GetVehicleTx(ctx, tx, res.VehicleID)
		if err != nil {
			return domain.Reservation{}, err
		}
		if v.Status == domain.VehicleAvailable {
			if err := e.Repo.SetVehicleStatusTx(ctx, tx, v.ID, domain.VehicleReserved, res.UpdatedAt); err != nil {
				return domain.Reservation{}, err
			}
		}
	}

	if err := e.Events.Append(ctx, tx, events.ReservationApproved, res.FleetID, "reservation", res.ID, actor.ID,
		events.EventPayload{"reservation": res}); err != nil {
		return domain.Reservation{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

// RejectReservation moves pending -> rejected. A non-empty reason is
// mandatory.
func (e Engine) RejectReservation(ctx context.Context, actor domain.Actor, id, reason string) (domain.Reservation, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Reservation{}, validationf("rejection reason required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	res, err := e.Repo.GetReservationTx(ctx, tx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if res.Status != domain.ReservationPending {
		return domain.Reservation{}, InvalidTransitionError{ReservationID: id, Op: "reject", Current: res.Status, Required: string(domain.ReservationPending)}
	}
	if err := auth.Check(actor, relationOf(actor, res), auth.TransitionReject); err != nil {
		return domain.Reservation{}, err
	}

	res.Status = domain.ReservationRejected
	res.RejectedReason = strings.TrimSpace(reason)
	res.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateReservationTx(ctx, tx, res); err != nil {
		return domain.Reservation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ReservationRejected, res.FleetID, "reservation", res.ID, actor.ID,
		events.EventPayload{"reservation": res}); err != nil {
		return domain.Reservation{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

// CancelReservation moves pending or approved -> cancelled, by the owner or
// an approver. A reserved vehicle is released unless another blocking
// reservation still covers it.
func (e Engine) CancelReservation(ctx context.Context, actor domain.Actor, id, reason string) (domain.Reservation, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Reservation{}, validationf("cancellation reason required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	res, err := e.Repo.GetReservationTx(ctx, tx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if res.Status != domain.ReservationPending && res.Status != domain.ReservationApproved {
		return domain.Reservation{}, InvalidTransitionError{ReservationID: id, Op: "cancel", Current: res.Status, Required: "pending or approved"}
	}
	if err := auth.Check(actor, relationOf(actor, res), auth.TransitionCancel); err != nil {
		return domain.Reservation{}, err
	}

	wasApproved := res.Status == domain.ReservationApproved
	res.Status = domain.ReservationCancelled
	res.CancelledReason = strings.TrimSpace(reason)
	res.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateReservationTx(ctx, tx, res); err != nil {
		return domain.Reservation{}, err
	}

	if wasApproved {
		v, err := e.Repo.GetVehicleTx(ctx, tx, res.VehicleID)
		if err != nil {
			return domain.Reservation{}, err
		}
		if v.Status == domain.VehicleReserved {
			// Release the hold unless another blocking reservation covers
			// the vehicle at this instant.
			holders, err := e.Repo.VehicleHoldAtTx(ctx, tx, v.ID, e.now(), res.ID)
			if err != nil {
				return domain.Reservation{}, err
			}
			if len(holders) == 0 {
				if err := e.Repo.SetVehicleStatusTx(ctx, tx, v.ID, domain.VehicleAvailable, res.UpdatedAt); err != nil {
					return domain.Reservation{}, err
				}
			}
		}
	}

	if err := e.Events.Append(ctx, tx, events.ReservationCancelled, res.FleetID, "reservation", res.ID, actor.ID,
		events.EventPayload{"reservation": res}); err != nil {
		return domain.Reservation{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

// CheckIn moves approved -> checked_in. Allowed for the owner or assigned
// driver, only within the configured grace window around the start, and the
// odometer reading may not be below the vehicle's last recorded reading.
func (e Engine) CheckIn(ctx context.Context, actor domain.Actor, id string, odometerKm float64, notes string) (domain.Reservation, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	res, err := e.Repo.GetReservationTx(ctx, tx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if res.Status != domain.ReservationApproved {
		return domain.Reservation{}, InvalidTransitionError{ReservationID: id, Op: "check in", Current: res.Status, Required: string(domain.ReservationApproved)}
	}
	if err := auth.Check(actor, relationOf(actor, res), auth.TransitionCheckIn); err != nil {
		return domain.Reservation{}, err
	}

	now := e.now()
	earliest := res.Window.Start.Add(-e.Config.GraceBefore())
	latest := res.Window.Start.Add(e.Config.GraceAfter())
	if now.Before(earliest) || now.After(latest) {
		return domain.Reservation{}, validationf("check-in only allowed between %s and %s",
			earliest.UTC().Format(time.RFC3339), latest.UTC().Format(time.RFC3339))
	}

	v, err := e.Repo.GetVehicleTx(ctx, tx, res.VehicleID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if odometerKm < v.OdometerKm {
		return domain.Reservation{}, validationf("odometer reading %.1f is below vehicle's last reading %.1f", odometerKm, v.OdometerKm)
	}

	res.Status = domain.ReservationCheckedIn
	res.CheckIn = &domain.TripRecord{At: now.UTC().Format(time.RFC3339), OdometerKm: odometerKm, Notes: strings.TrimSpace(notes)}
	res.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateReservationTx(ctx, tx, res); err != nil {
		return domain.Reservation{}, err
	}
	if err := e.Repo.SetVehicleStatusTx(ctx, tx, v.ID, domain.VehicleInUse, res.UpdatedAt); err != nil {
		return domain.Reservation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ReservationCheckedIn, res.FleetID, "reservation", res.ID, actor.ID,
		events.EventPayload{"reservation": res}); err != nil {
		return domain.Reservation{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

// CheckOutOptions carry the trip-end readings and optional feedback.
type CheckOutOptions struct {
	OdometerKm float64
	Notes      string
	Rating     *int
	Feedback   string
}

// CheckOut moves checked_in -> checked_out, releases the vehicle and rolls
// its odometer forward to the reading.
func (e Engine) CheckOut(ctx context.Context, actor domain.Actor, id string, opts CheckOutOptions) (domain.Reservation, error) {
	if opts.Rating != nil && (*opts.Rating < 1 || *opts.Rating > 5) {
		return domain.Reservation{}, validationf("rating must be between 1 and 5")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	res, err := e.Repo.GetReservationTx(ctx, tx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if res.Status != domain.ReservationCheckedIn {
		return domain.Reservation{}, InvalidTransitionError{ReservationID: id, Op: "check out", Current: res.Status, Required: string(domain.ReservationCheckedIn)}
	}
	if err := auth.Check(actor, relationOf(actor, res), auth.TransitionCheckOut); err != nil {
		return domain.Reservation{}, err
	}
	if res.CheckIn != nil && opts.OdometerKm < res.CheckIn.OdometerKm {
		return domain.Reservation{}, validationf("odometer reading %.1f is below check-in reading %.1f", opts.OdometerKm, res.CheckIn.OdometerKm)
	}

	now := e.nowString()
	res.Status = domain.ReservationCheckedOut
	res.CheckOut = &domain.TripRecord{At: now, OdometerKm: opts.OdometerKm, Notes: strings.TrimSpace(opts.Notes)}
	res.Rating = opts.Rating
	res.Feedback = strings.TrimSpace(opts.Feedback)
	res.UpdatedAt = now
	if err := e.Repo.UpdateReservationTx(ctx, tx, res); err != nil {
		return domain.Reservation{}, err
	}
	if err := e.Repo.SetVehicleStatusTx(ctx, tx, res.VehicleID, domain.VehicleAvailable, now); err != nil {
		return domain.Reservation{}, err
	}
	if err := e.Repo.SetVehicleOdometerTx(ctx, tx, res.VehicleID, opts.OdometerKm, now); err != nil {
		return domain.Reservation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ReservationCheckedOut, res.FleetID, "reservation", res.ID, actor.ID,
		events.EventPayload{"reservation": res}); err != nil {
		return domain.Reservation{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func (e Engine) newToken() (string, error) {
	gen := e.NewRef
	if gen == nil {
		gen = refnum.New
	}
	return gen(refnum.PrefixCheckIn, e.now())
}

func relationOf(actor domain.Actor, res domain.Reservation) auth.Relation {
	return auth.Relation{
		Owner:          res.Owner(actor.ID),
		AssignedDriver: res.AssignedDriver(actor.ID),
	}
}
