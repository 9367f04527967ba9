package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"motorpool/internal/domain"
	"motorpool/internal/engine"
	"motorpool/internal/engine/auth"
	"motorpool/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflict"`
	Message string         `json:"message" example:"vehicle already reserved for an overlapping window"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Motorpool API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Motorpool API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerVehicles(group, cfg.Engine)
	registerAvailability(group, cfg.Engine)
	registerReservations(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerActors(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine's typed conditions onto the error envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"transition": string(fe.Transition)})
	}
	var ite engine.InvalidTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"current":  string(ite.Current),
			"required": ite.Required,
		})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		var details map[string]any
		if ce.ReservationID != "" {
			details = map[string]any{"reservation_id": ce.ReservationID}
		}
		return newAPIError(http.StatusConflict, "conflict", err.Error(), details)
	}
	var cte engine.ContentionError
	if errors.As(err, &cte) {
		return newAPIError(http.StatusServiceUnavailable, "contention", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "contention"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func parseRFC3339(field, value string) (time.Time, huma.StatusError) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("%s must be RFC 3339, got %q", field, value), nil)
	}
	return t, nil
}

var transitionErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusServiceUnavailable,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "fleet-status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Fleet status counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body FleetStatusResponse `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		fleetID := e.Config.Fleet.ID
		f, err := e.Repo.GetFleet(ctx, fleetID)
		if err != nil {
			return nil, handleError(err)
		}
		vehicles, err := e.Repo.ListVehicles(ctx, repo.VehicleFilter{FleetID: fleetID})
		if err != nil {
			return nil, handleError(err)
		}
		vehicleCounts := map[string]int{}
		for _, v := range vehicles {
			vehicleCounts[string(v.Status)]++
		}
		reservationCounts, err := e.Repo.CountReservationsByStatus(ctx, fleetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FleetStatusResponse `json:"body"`
		}{Body: FleetStatusResponse{
			FleetID:           f.ID,
			Name:              f.Name,
			VehicleCounts:     vehicleCounts,
			ReservationCounts: reservationCounts,
		}}, nil
	})
}

func registerVehicles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-vehicle",
		Method:        http.MethodPost,
		Path:          "/vehicles",
		Summary:       "Register vehicle",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateVehicleRequest `json:"body"`
	}) (*struct {
		Body domain.Vehicle `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.AddVehicle(ctx, actor, engine.AddVehicleOptions{
			ID:         strOrEmpty(input.Body.ID),
			Name:       input.Body.Name,
			Plate:      input.Body.Plate,
			Category:   input.Body.Category,
			OdometerKm: input.Body.OdometerKm,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Vehicle `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-vehicles",
		Method:      http.MethodGet,
		Path:        "/vehicles",
		Summary:     "List vehicles",
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"available,reserved,in_use,maintenance,out_of_service" required:"false"`
		Category string `query:"category" required:"false"`
	}) (*struct {
		Body []domain.Vehicle `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		vehicles, err := e.Repo.ListVehicles(ctx, repo.VehicleFilter{
			FleetID:  e.Config.Fleet.ID,
			Status:   domain.VehicleStatus(input.Status),
			Category: input.Category,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Vehicle `json:"body"`
		}{Body: vehicles}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-vehicle",
		Method:      http.MethodGet,
		Path:        "/vehicles/{vehicle_id}",
		Summary:     "Get vehicle",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		VehicleID string `path:"vehicle_id"`
	}) (*struct {
		Body domain.Vehicle `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		v, err := e.Repo.GetVehicle(ctx, input.VehicleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Vehicle `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-vehicle-status",
		Method:      http.MethodPut,
		Path:        "/vehicles/{vehicle_id}/status",
		Summary:     "Set vehicle status (maintenance workflow)",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		VehicleID string                  `path:"vehicle_id"`
		Body      SetVehicleStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Vehicle `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.SetVehicleStatus(ctx, actor, input.VehicleID, domain.VehicleStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Vehicle `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vehicle-schedule",
		Method:      http.MethodGet,
		Path:        "/vehicles/{vehicle_id}/schedule",
		Summary:     "Reservations intersecting a range",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		VehicleID string `path:"vehicle_id"`
		From      string `query:"from" format:"date-time"`
		To        string `query:"to" format:"date-time"`
	}) (*struct {
		Body []domain.Reservation `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		from, herr := parseRFC3339("from", input.From)
		if herr != nil {
			return nil, herr
		}
		to, herr := parseRFC3339("to", input.To)
		if herr != nil {
			return nil, herr
		}
		items, err := e.VehicleSchedule(ctx, input.VehicleID, from, to)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Reservation `json:"body"`
		}{Body: items}, nil
	})
}

func registerAvailability(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "available-vehicles",
		Method:      http.MethodGet,
		Path:        "/availability",
		Summary:     "Vehicles free for a window",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Start    string `query:"start" format:"date-time"`
		End      string `query:"end" format:"date-time"`
		Category string `query:"category" required:"false"`
	}) (*struct {
		Body []domain.Vehicle `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		start, herr := parseRFC3339("start", input.Start)
		if herr != nil {
			return nil, herr
		}
		end, herr := parseRFC3339("end", input.End)
		if herr != nil {
			return nil, herr
		}
		w, err := domain.NewWindow(start, end)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		free, err := e.AvailableVehicles(ctx, w, input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Vehicle `json:"body"`
		}{Body: free}, nil
	})
}

func registerReservations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reservation",
		Method:        http.MethodPost,
		Path:          "/reservations",
		Summary:       "Request a vehicle",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateReservationRequest `json:"body"`
	}) (*struct {
		Body domain.Reservation `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		start, herr := parseRFC3339("start", input.Body.Start)
		if herr != nil {
			return nil, herr
		}
		end, herr := parseRFC3339("end", input.Body.End)
		if herr != nil {
			return nil, herr
		}
		res, err := e.CreateReservation(ctx, actor, engine.CreateReservationOptions{
			VehicleID:   input.Body.VehicleID,
			Start:       start,
			End:         end,
			DriverID:    strOrEmpty(input.Body.DriverID),
			Purpose:     input.Body.Purpose,
			Destination: strOrEmpty(input.Body.Destination),
			Passengers:  input.Body.Passengers,
			EstimatedKm: input.Body.EstimatedKm,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reservation `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reservations",
		Method:      http.MethodGet,
		Path:        "/reservations",
		Summary:     "List reservations",
	}, func(ctx context.Context, input *struct {
		VehicleID   string `query:"vehicle_id" required:"false"`
		RequesterID string `query:"requester_id" required:"false"`
		Status      string `query:"status" enum:"pending,approved,checked_in,checked_out,rejected,cancelled" required:"false"`
		Limit       int    `query:"limit" required:"false"`
	}) (*struct {
		Body []domain.Reservation `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListReservations(ctx, repo.ReservationFilter{
			FleetID:     e.Config.Fleet.ID,
			VehicleID:   input.VehicleID,
			RequesterID: input.RequesterID,
			Status:      domain.ReservationStatus(input.Status),
			Limit:       input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Reservation `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-reservation",
		Method:      http.MethodGet,
		Path:        "/reservations/{reservation_id}",
		Summary:     "Get reservation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReservationID string `path:"reservation_id"`
	}) (*struct {
		Body domain.Reservation `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		res, err := e.Repo.GetReservation(ctx, input.ReservationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reservation `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-reservation",
		Method:      http.MethodPost,
		Path:        "/reservations/{reservation_id}/approve",
		Summary:     "Approve a pending reservation",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ReservationID string                    `path:"reservation_id"`
		Body          ApproveReservationRequest `json:"body"`
	}) (*struct {
		Body domain.Reservation `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ApproveReservation(ctx, actor, input.ReservationID, strOrEmpty(input.Body.Comment))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reservation `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-reservation",
		Method:      http.MethodPost,
		Path:        "/reservations/{reservation_id}/reject",
		Summary:     "Reject a pending reservation",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ReservationID string        `path:"reservation_id"`
		Body          ReasonRequest `json:"body"`
	}) (*struct {
		Body domain.Reservation `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RejectReservation(ctx, actor, input.ReservationID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reservation `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-reservation",
		Method:      http.MethodPost,
		Path:        "/reservations/{reservation_id}/cancel",
		Summary:     "Cancel a pending or approved reservation",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ReservationID string        `path:"reservation_id"`
		Body          ReasonRequest `json:"body"`
	}) (*struct {
		Body domain.Reservation `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CancelReservation(ctx, actor, input.ReservationID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reservation `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-in-reservation",
		Method:      http.MethodPost,
		Path:        "/reservations/{reservation_id}/check-in",
		Summary:     "Check in and take the vehicle",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ReservationID string         `path:"reservation_id"`
		Body          CheckInRequest `json:"body"`
	}) (*struct {
		Body domain.Reservation `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CheckIn(ctx, actor, input.ReservationID, input.Body.OdometerKm, strOrEmpty(input.Body.Notes))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reservation `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-out-reservation",
		Method:      http.MethodPost,
		Path:        "/reservations/{reservation_id}/check-out",
		Summary:     "Check out and return the vehicle",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ReservationID string          `path:"reservation_id"`
		Body          CheckOutRequest `json:"body"`
	}) (*struct {
		Body domain.Reservation `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CheckOut(ctx, actor, input.ReservationID, engine.CheckOutOptions{
			OdometerKm: input.Body.OdometerKm,
			Notes:      strOrEmpty(input.Body.Notes),
			Rating:     input.Body.Rating,
			Feedback:   strOrEmpty(input.Body.Feedback),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reservation `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event log",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" required:"false"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		evts, err := e.Repo.ListEvents(ctx, limit, e.Config.Fleet.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-actor",
		Method:      http.MethodPut,
		Path:        "/actors",
		Summary:     "Register or update an actor",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Body UpsertActorRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		if !actor.Role.Approver() {
			return nil, handleError(auth.ForbiddenError{Role: actor.Role, Transition: auth.TransitionManageVehicle})
		}
		a := domain.Actor{ID: input.Body.ID, Name: input.Body.Name, Role: domain.Role(input.Body.Role)}
		if err := e.Repo.UpsertActor(ctx, a); err != nil {
			if strings.Contains(err.Error(), "unknown role") || strings.Contains(err.Error(), "required") {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetActor(ctx, a.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: stored}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actors",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List actors",
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:"employee,driver,manager,admin" required:"false"`
	}) (*struct {
		Body []domain.Actor `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		actors, err := e.Repo.ListActors(ctx, domain.Role(input.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Actor `json:"body"`
		}{Body: actors}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key for an actor",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		if !actor.Role.Approver() {
			return nil, handleError(auth.ForbiddenError{Role: actor.Role, Transition: auth.TransitionManageVehicle})
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if _, err := e.Repo.GetActor(ctx, input.Body.ActorID); err != nil {
			return nil, handleError(err)
		}
		plaintext := uuid.NewString()
		key := domain.APIKey{
			ID:      uuid.NewString(),
			ActorID: input.Body.ActorID,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(plaintext),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{
			ID:        stored.ID,
			ActorID:   stored.ActorID,
			Name:      stored.Name,
			Key:       plaintext,
			CreatedAt: stored.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id" required:"false"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		if !actor.Role.Approver() {
			return nil, handleError(auth.ForbiddenError{Role: actor.Role, Transition: auth.TransitionManageVehicle})
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{key_id}",
		Summary:     "Revoke an API key",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx, e.Repo)
		if authErr != nil {
			return nil, authErr
		}
		if !actor.Role.Approver() {
			return nil, handleError(auth.ForbiddenError{Role: actor.Role, Transition: auth.TransitionManageVehicle})
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, cfg AuthConfig) {
	if !cfg.DevLogin || cfg.JWTSecret == "" {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a development token",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		role := domain.Role(input.Body.Role)
		if input.Body.Role == "" {
			role = domain.RoleEmployee
			if stored, err := e.Repo.GetActor(ctx, input.Body.ActorID); err == nil {
				role = stored.Role
			}
		}
		if !role.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown role %q", input.Body.Role), nil)
		}
		token, err := issueJWT(input.Body.ActorID, role, cfg.JWTSecret, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Motorpool API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
