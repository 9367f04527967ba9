package server

// Request payloads

type CreateVehicleRequest struct {
	ID         *string `json:"id,omitempty"`
	Name       string  `json:"name"`
	Plate      string  `json:"plate"`
	Category   string  `json:"category,omitempty"`
	OdometerKm float64 `json:"odometer_km,omitempty"`
}

type SetVehicleStatusRequest struct {
	Status string `json:"status" enum:"available,maintenance,out_of_service"`
}

type CreateReservationRequest struct {
	VehicleID   string   `json:"vehicle_id"`
	Start       string   `json:"start" format:"date-time"`
	End         string   `json:"end" format:"date-time"`
	DriverID    *string  `json:"driver_id,omitempty"`
	Purpose     string   `json:"purpose"`
	Destination *string  `json:"destination,omitempty"`
	Passengers  *int     `json:"passengers,omitempty"`
	EstimatedKm *float64 `json:"estimated_km,omitempty"`
}

type ApproveReservationRequest struct {
	Comment *string `json:"comment,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type CheckInRequest struct {
	OdometerKm float64 `json:"odometer_km"`
	Notes      *string `json:"notes,omitempty"`
}

type CheckOutRequest struct {
	OdometerKm float64 `json:"odometer_km"`
	Notes      *string `json:"notes,omitempty"`
	Rating     *int    `json:"rating,omitempty" minimum:"1" maximum:"5"`
	Feedback   *string `json:"feedback,omitempty"`
}

type UpsertActorRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role" enum:"employee,driver,manager,admin"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Response payloads that differ in shape from the domain types

type CreateAPIKeyResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	// Key is the plaintext key, shown once at creation.
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type FleetStatusResponse struct {
	FleetID           string         `json:"fleet_id"`
	Name              string         `json:"name"`
	VehicleCounts     map[string]int `json:"vehicle_counts"`
	ReservationCounts map[string]int `json:"reservation_counts"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"employee,driver,manager,admin"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
