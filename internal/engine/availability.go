package engine

import (
	"context"
	"time"

	"motorpool/internal/domain"
	"motorpool/internal/repo"
)

// HasConflict reports whether the window overlaps any blocking reservation
// (pending, approved or checked in) for the vehicle. Pending reservations
// hold their window so two overlapping requests cannot both get approved.
func (e Engine) HasConflict(ctx context.Context, vehicleID string, w domain.Window, excludeID string) (bool, error) {
	conflicts, err := e.Repo.VehicleConflictTx(ctx, nil, vehicleID, w, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// DriverHasConflict reports whether the actor is already the assigned
// driver of a blocking reservation overlapping the window, on any vehicle.
func (e Engine) DriverHasConflict(ctx context.Context, driverID string, w domain.Window, excludeID string) (bool, error) {
	conflicts, err := e.Repo.DriverConflictTx(ctx, nil, driverID, w, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// AvailableVehicles returns the fleet's vehicles free for the whole window:
// bookable status (not maintenance or out of service) and no blocking
// reservation overlap. Category narrows the candidates when non-empty.
func (e Engine) AvailableVehicles(ctx context.Context, w domain.Window, category string) ([]domain.Vehicle, error) {
	vehicles, err := e.Repo.ListVehicles(ctx, repo.VehicleFilter{FleetID: e.fleetID(), Category: category})
	if err != nil {
		return nil, err
	}
	var free []domain.Vehicle
	for _, v := range vehicles {
		if !v.Status.Bookable() {
			continue
		}
		conflict, err := e.HasConflict(ctx, v.ID, w, "")
		if err != nil {
			return nil, err
		}
		if !conflict {
			free = append(free, v)
		}
	}
	return free, nil
}

// VehicleSchedule lists the vehicle's reservations intersecting [from, to),
// for calendar views.
func (e Engine) VehicleSchedule(ctx context.Context, vehicleID string, from, to time.Time) ([]domain.Reservation, error) {
	if _, err := e.Repo.GetVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	return e.Repo.ListReservations(ctx, repo.ReservationFilter{
		VehicleID: vehicleID,
		From:      &from,
		To:        &to,
	})
}
