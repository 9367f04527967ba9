package domain

// VehicleStatus is the coarse fleet-side state of a vehicle. It is a
// projection maintained by reservation transitions, except maintenance and
// out_of_service which are set by the maintenance workflow.
type VehicleStatus string

const (
	VehicleAvailable    VehicleStatus = "available"
	VehicleReserved     VehicleStatus = "reserved"
	VehicleInUse        VehicleStatus = "in_use"
	VehicleMaintenance  VehicleStatus = "maintenance"
	VehicleOutOfService VehicleStatus = "out_of_service"
)

// Bookable reports whether new reservations may target the vehicle.
func (s VehicleStatus) Bookable() bool {
	return s != VehicleMaintenance && s != VehicleOutOfService
}

type Vehicle struct {
	ID         string        `json:"id"`
	FleetID    string        `json:"fleet_id"`
	Name       string        `json:"name"`
	Plate      string        `json:"plate"`
	Category   string        `json:"category,omitempty"`
	Status     VehicleStatus `json:"status" enum:"available,reserved,in_use,maintenance,out_of_service"`
	OdometerKm float64       `json:"odometer_km"`
	CreatedAt  string        `json:"created_at" format:"date-time"`
	UpdatedAt  string        `json:"updated_at" format:"date-time"`
}

// Role is the closed set of actor roles. Manager and admin carry approval
// authority; employee and driver are requester roles.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleDriver   Role = "driver"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleDriver, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Approver reports whether the role may approve or reject reservations.
func (r Role) Approver() bool {
	return r == RoleManager || r == RoleAdmin
}

type Actor struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Role      Role   `json:"role" enum:"employee,driver,manager,admin"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "pending"
	ReservationApproved   ReservationStatus = "approved"
	ReservationCheckedIn  ReservationStatus = "checked_in"
	ReservationCheckedOut ReservationStatus = "checked_out"
	ReservationRejected   ReservationStatus = "rejected"
	ReservationCancelled  ReservationStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted from s.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationCheckedOut, ReservationRejected, ReservationCancelled:
		return true
	}
	return false
}

// Blocking reports whether a reservation in this status holds its window
// against other reservations. Pending counts as a soft hold so two
// overlapping requests cannot both be approved.
func (s ReservationStatus) Blocking() bool {
	switch s {
	case ReservationPending, ReservationApproved, ReservationCheckedIn:
		return true
	}
	return false
}

// allowedTransitions is the reservation state machine as an adjacency list.
var allowedTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:    {ReservationApproved, ReservationRejected, ReservationCancelled},
	ReservationApproved:   {ReservationCheckedIn, ReservationCancelled},
	ReservationCheckedIn:  {ReservationCheckedOut},
	ReservationCheckedOut: {},
	ReservationRejected:   {},
	ReservationCancelled:  {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to ReservationStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Approval records who approved a reservation and when.
type Approval struct {
	ApproverID string `json:"approver_id"`
	At         string `json:"at" format:"date-time"`
	Comment    string `json:"comment,omitempty"`
}

// TripRecord captures an odometer reading taken at check-in or check-out.
type TripRecord struct {
	At         string  `json:"at" format:"date-time"`
	OdometerKm float64 `json:"odometer_km"`
	Notes      string  `json:"notes,omitempty"`
}

type Reservation struct {
	ID          string            `json:"id"`
	FleetID     string            `json:"fleet_id"`
	VehicleID   string            `json:"vehicle_id"`
	RequesterID string            `json:"requester_id"`
	DriverID    *string           `json:"driver_id,omitempty"`
	Status      ReservationStatus `json:"status" enum:"pending,approved,checked_in,checked_out,rejected,cancelled"`
	Window      Window            `json:"window"`
	Purpose     string            `json:"purpose"`
	Destination string            `json:"destination,omitempty"`
	Passengers  *int              `json:"passengers,omitempty"`
	EstimatedKm *float64          `json:"estimated_km,omitempty"`

	Reference    string `json:"reference"`
	CheckInToken string `json:"check_in_token,omitempty"`

	Approval        *Approval   `json:"approval,omitempty"`
	RejectedReason  string      `json:"rejected_reason,omitempty"`
	CancelledReason string      `json:"cancelled_reason,omitempty"`
	CheckIn         *TripRecord `json:"check_in,omitempty"`
	CheckOut        *TripRecord `json:"check_out,omitempty"`
	Rating          *int        `json:"rating,omitempty" minimum:"1" maximum:"5"`
	Feedback        string      `json:"feedback,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Owner reports whether the actor requested this reservation.
func (r Reservation) Owner(actorID string) bool {
	return actorID != "" && actorID == r.RequesterID
}

// AssignedDriver reports whether the actor is the reservation's driver.
func (r Reservation) AssignedDriver(actorID string) bool {
	return actorID != "" && r.DriverID != nil && *r.DriverID == actorID
}

type Fleet struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	FleetID    string `json:"fleet_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
