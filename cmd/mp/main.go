package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"motorpool/internal/app"
	"motorpool/internal/config"
	"motorpool/internal/db"
	"motorpool/internal/domain"
	"motorpool/internal/engine"
	"motorpool/internal/migrate"
	"motorpool/internal/repo"
	"motorpool/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "mp",
	Short: "Motorpool CLI",
	Long: `Motorpool manages a shared vehicle fleet with approval-gated reservations.
- Workspace: the .motorpool directory holding the database; fleet config lives in the DB and is imported from motorpool.yml.
- Fleet: the pool of vehicles that owns all reservations and actors.
- Reservations: requests for a vehicle over a time window. They flow pending -> approved -> checked_in -> checked_out; rejected and cancelled are exits.
- Roles: employees request, drivers drive, managers and admins approve and run the fleet.
- Check-in/check-out: picking up and returning a vehicle, with odometer readings.
- Event log: diary of changes, view with 'mp log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MOTORPOOL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("as-role", "", "act with this role when the actor is not registered (dev only)")
	rootCmd.PersistentFlags().String("fleet", "", "fleet id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("as-role", rootCmd.PersistentFlags().Lookup("as-role"))
	_ = viper.BindPFlag("fleet", rootCmd.PersistentFlags().Lookup("fleet"))
}

func registerCommands() {
	rootCmd.AddCommand(fleetCmd())
	rootCmd.AddCommand(configCommand())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(vehicleCmd())
	rootCmd.AddCommand(reservationCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func fleetCmd() *cobra.Command {
	fleet := &cobra.Command{Use: "fleet", Short: "Manage fleets"}
	fleet.AddCommand(fleetInitCmd())
	fleet.AddCommand(fleetListCmd())
	fleet.AddCommand(fleetShowCmd())
	return fleet
}

func fleetInitCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			f, err := e.InitFleet(cmd.Context(), id, name, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			if err := e.Repo.UpsertFleetConfig(cmd.Context(), id, cfg); err != nil {
				return err
			}
			return printJSONOrTable(f)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "fleet id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func fleetListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fleets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListFleets(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func fleetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.Repo.GetFleet(ctx, e.Config.Fleet.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	return cmd
}

func configCommand() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect fleet config",
		Long:  "Config is the rulebook (stored in DB): fleet id, vehicle categories, check-in grace windows and webhooks. Import from motorpool.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import fleet config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			fleetID := cfg.Fleet.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if fleetID == "" {
					fleetID = e.Config.Fleet.ID
				}
				if err := e.Repo.UpsertFleetConfig(ctx, fleetID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	var fleetID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default motorpool.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(fleetID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&fleetID, "fleet-id", "motorpool", "fleet id for the generated config")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show fleet status",
		Long:  "See the scoreboard for your fleet: vehicle counts per state and reservation counts per status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fleetID := e.Config.Fleet.ID
				f, err := e.Repo.GetFleet(ctx, fleetID)
				if err != nil {
					return err
				}
				vehicles, err := e.Repo.ListVehicles(ctx, repo.VehicleFilter{FleetID: fleetID})
				if err != nil {
					return err
				}
				vehicleCounts := map[string]int{}
				for _, v := range vehicles {
					vehicleCounts[string(v.Status)]++
				}
				reservationCounts, err := e.Repo.CountReservationsByStatus(ctx, fleetID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"fleet_id":           f.ID,
					"name":               f.Name,
					"vehicle_counts":     vehicleCounts,
					"reservation_counts": reservationCounts,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Fleet: %s (%s)\n", f.ID, f.Name)
				fmt.Println("Vehicles:")
				for status, c := range vehicleCounts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Println("Reservations:")
				for status, c := range reservationCounts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func vehicleCmd() *cobra.Command {
	veh := &cobra.Command{
		Use:   "vehicle",
		Short: "Manage vehicles",
		Long:  "Vehicles live in one fleet and carry a status: available, reserved, in_use, maintenance or out_of_service. Only available vehicles can be booked.",
	}
	veh.AddCommand(vehicleAddCmd())
	veh.AddCommand(vehicleListCmd())
	veh.AddCommand(vehicleShowCmd())
	veh.AddCommand(vehicleStatusCmd())
	veh.AddCommand(vehicleScheduleCmd())
	return veh
}

func vehicleAddCmd() *cobra.Command {
	var opts engine.AddVehicleOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a vehicle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actorFor(ctx, e.Repo)
				if err != nil {
					return err
				}
				v, err := e.AddVehicle(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "vehicle id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Plate, "plate", "", "license plate")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category (see config)")
	cmd.Flags().Float64Var(&opts.OdometerKm, "odometer", 0, "current odometer km")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("plate")
	return cmd
}

func vehicleListCmd() *cobra.Command {
	var status, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vehicles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				vehicles, err := e.Repo.ListVehicles(ctx, repo.VehicleFilter{
					FleetID:  e.Config.Fleet.ID,
					Status:   domain.VehicleStatus(status),
					Category: category,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(vehicles)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Plate", "Category", "Status", "Odometer"})
				for _, v := range vehicles {
					tw.AppendRow(table.Row{v.ID, v.Name, v.Plate, v.Category, v.Status, fmt.Sprintf("%.0f", v.OdometerKm)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	return cmd
}

func vehicleShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Repo.GetVehicle(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func vehicleStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Move a vehicle in or out of service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actorFor(ctx, e.Repo)
				if err != nil {
					return err
				}
				v, err := e.SetVehicleStatus(ctx, actor, args[0], domain.VehicleStatus(status))
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (available, maintenance, out_of_service)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func vehicleScheduleCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "schedule <id>",
		Short: "Show reservations intersecting a range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromT, err := parseTimeFlag("from", from)
			if err != nil {
				return err
			}
			toT, err := parseTimeFlag("to", to)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.VehicleSchedule(ctx, args[0], fromT, toT)
				if err != nil {
					return err
				}
				return printReservations(items)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC 3339)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func reservationCmd() *cobra.Command {
	res := &cobra.Command{
		Use:   "reservation",
		Short: "Manage reservations",
		Long:  "Reservations flow pending -> approved -> checked_in -> checked_out. Managers approve or reject; the requester (or an approver) can cancel before check-in.",
	}
	res.AddCommand(reservationCreateCmd())
	res.AddCommand(reservationListCmd())
	res.AddCommand(reservationShowCmd())
	res.AddCommand(reservationApproveCmd())
	res.AddCommand(reservationRejectCmd())
	res.AddCommand(reservationCancelCmd())
	res.AddCommand(reservationCheckInCmd())
	res.AddCommand(reservationCheckOutCmd())
	return res
}

func reservationCreateCmd() *cobra.Command {
	var vehicleID, start, end, driverID, purpose, destination string
	var passengers int
	var estimatedKm float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request a vehicle",
		RunE: func(cmd *cobra.Command, args []string) error {
			startT, err := parseTimeFlag("start", start)
			if err != nil {
				return err
			}
			endT, err := parseTimeFlag("end", end)
			if err != nil {
				return err
			}
			opts := engine.CreateReservationOptions{
				VehicleID:   vehicleID,
				Start:       startT,
				End:         endT,
				DriverID:    driverID,
				Purpose:     purpose,
				Destination: destination,
			}
			if cmd.Flags().Changed("passengers") {
				opts.Passengers = &passengers
			}
			if cmd.Flags().Changed("estimated-km") {
				opts.EstimatedKm = &estimatedKm
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actorFor(ctx, e.Repo)
				if err != nil {
					return err
				}
				r, err := e.CreateReservation(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&vehicleID, "vehicle", "", "vehicle id")
	cmd.Flags().StringVar(&start, "start", "", "window start (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC 3339)")
	cmd.Flags().StringVar(&driverID, "driver", "", "assigned driver id")
	cmd.Flags().StringVar(&purpose, "purpose", "", "trip purpose")
	cmd.Flags().StringVar(&destination, "destination", "", "destination")
	cmd.Flags().IntVar(&passengers, "passengers", 0, "passenger count")
	cmd.Flags().Float64Var(&estimatedKm, "estimated-km", 0, "estimated distance km")
	_ = cmd.MarkFlagRequired("vehicle")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("purpose")
	return cmd
}

func reservationListCmd() *cobra.Command {
	var f repo.ReservationFilter
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f.FleetID = e.Config.Fleet.ID
				f.Status = domain.ReservationStatus(status)
				items, err := e.Repo.ListReservations(ctx, f)
				if err != nil {
					return err
				}
				return printReservations(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.VehicleID, "vehicle", "", "vehicle filter")
	cmd.Flags().StringVar(&f.RequesterID, "requester", "", "requester filter")
	cmd.Flags().StringVar(&f.DriverID, "driver", "", "driver filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func reservationShowCmd() *cobra.Command {
	var byRef bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					r   domain.Reservation
					err error
				)
				if byRef {
					r, err = e.Repo.GetReservationByReference(ctx, args[0])
				} else {
					r, err = e.Repo.GetReservation(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().BoolVar(&byRef, "by-reference", false, "look up by reference (e.g. RSV-...)")
	return cmd
}

func reservationApproveCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actorFor(ctx, e.Repo)
				if err != nil {
					return err
				}
				r, err := e.ApproveReservation(ctx, actor, args[0], comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "approval comment")
	return cmd
}

func reservationRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actorFor(ctx, e.Repo)
				if err != nil {
					return err
				}
				r, err := e.RejectReservation(ctx, actor, args[0], reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func reservationCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or approved reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actorFor(ctx, e.Repo)
				if err != nil {
					return err
				}
				r, err := e.CancelReservation(ctx, actor, args[0], reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func reservationCheckInCmd() *cobra.Command {
	var odometer float64
	var notes string
	cmd := &cobra.Command{
		Use:   "check-in <id>",
		Short: "Pick up the vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actorFor(ctx, e.Repo)
				if err != nil {
					return err
				}
				r, err := e.CheckIn(ctx, actor, args[0], odometer, notes)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().Float64Var(&odometer, "odometer", 0, "odometer reading at pickup")
	cmd.Flags().StringVar(&notes, "notes", "", "pickup notes")
	_ = cmd.MarkFlagRequired("odometer")
	return cmd
}

func reservationCheckOutCmd() *cobra.Command {
	var opts engine.CheckOutOptions
	var rating int
	cmd := &cobra.Command{
		Use:   "check-out <id>",
		Short: "Return the vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("rating") {
				opts.Rating = &rating
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actorFor(ctx, e.Repo)
				if err != nil {
					return err
				}
				r, err := e.CheckOut(ctx, actor, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().Float64Var(&opts.OdometerKm, "odometer", 0, "odometer reading at return")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "return notes")
	cmd.Flags().IntVar(&rating, "rating", 0, "trip rating 1-5")
	cmd.Flags().StringVar(&opts.Feedback, "feedback", "", "trip feedback")
	_ = cmd.MarkFlagRequired("odometer")
	return cmd
}

func availabilityCmd() *cobra.Command {
	var start, end, category string
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "List vehicles free for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			startT, err := parseTimeFlag("start", start)
			if err != nil {
				return err
			}
			endT, err := parseTimeFlag("end", end)
			if err != nil {
				return err
			}
			w, err := domain.NewWindow(startT, endT)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				free, err := e.AvailableVehicles(ctx, w, category)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(free)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Plate", "Category"})
				for _, v := range free {
					tw.AppendRow(table.Row{v.ID, v.Name, v.Plate, v.Category})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "window start (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC 3339)")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func actorCmd() *cobra.Command {
	actor := &cobra.Command{Use: "actor", Short: "Manage actors"}
	actor.AddCommand(actorAddCmd())
	actor.AddCommand(actorListCmd())
	return actor
}

func actorAddCmd() *cobra.Command {
	var a domain.Actor
	var role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register or update an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Role = domain.Role(role)
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertActor(ctx, a); err != nil {
					return err
				}
				stored, err := r.GetActor(ctx, a.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(stored)
			})
		},
	}
	cmd.Flags().StringVar(&a.ID, "id", "", "actor id")
	cmd.Flags().StringVar(&a.Name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "employee", "role (employee, driver, manager, admin)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func actorListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				actors, err := r.ListActors(ctx, domain.Role(role))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role"})
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetActor(ctx, actorID); err != nil {
					return err
				}
				plaintext := newKeyMaterial()
				key := domain.APIKey{
					ID:      newKeyMaterial(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(plaintext),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				out := map[string]any{"id": key.ID, "actor_id": actorID, "name": name, "key": plaintext}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("API key for %s (shown once):\n%s\n", actorID, plaintext)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: reservation transitions, vehicle changes, and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.ListEvents(ctx, n, e.Config.Fleet.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveFleetAndConfig(cmd.Context(), viper.GetString("fleet"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:        os.Getenv("MOTORPOOL_JWT_SECRET"),
				AllowActorHeader: allowActorHeader,
				DevLogin:         devLogin,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("MOTORPOOL_JWT_SECRET is required for bearer auth (or pass --allow-actor-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Motorpool API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept X-Actor-Id without credentials (local use)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose the dev token endpoint")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveFleetAndConfig(ctx, viper.GetString("fleet"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

// actorFor resolves the acting actor from --actor-id. A registered actor
// keeps its stored role; --as-role only applies to unregistered actors.
func actorFor(ctx context.Context, r repo.Repo) (domain.Actor, error) {
	id := viper.GetString("actor-id")
	actor, err := r.GetActor(ctx, id)
	if err == nil {
		return actor, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, err
	}
	role := domain.Role(viper.GetString("as-role"))
	if role == "" {
		role = domain.RoleEmployee
	}
	if !role.Valid() {
		return domain.Actor{}, fmt.Errorf("unknown role %q", role)
	}
	return domain.Actor{ID: id, Role: role}, nil
}

func parseTimeFlag(name, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be RFC 3339 (e.g. 2025-03-03T09:00:00Z): %w", name, err)
	}
	return t, nil
}

func printReservations(items []domain.Reservation) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Reference", "Vehicle", "Requester", "Status", "Start", "End"})
	for _, r := range items {
		tw.AppendRow(table.Row{
			r.ID, r.Reference, r.VehicleID, r.RequesterID, r.Status,
			r.Window.Start.Format(time.RFC3339), r.Window.End.Format(time.RFC3339),
		})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newKeyMaterial() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
