package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"stowage/internal/adapters/arrangement"
	"stowage/internal/core"
)

func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runInit(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("init", "Register containers and stow items from a YAML manifest, then mark the reset baseline.")
	manifestPath := fs.String("manifest", "", "Path to the station manifest (required)")
	baseline := fs.Bool("baseline", true, "Mark the resulting layout as the reset baseline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *manifestPath == "" {
		return errors.New("init: -manifest is required")
	}
	m, err := loadManifest(*manifestPath)
	if err != nil {
		return err
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		containers := make([]core.Container, 0, len(m.Containers))
		for _, c := range m.Containers {
			containers = append(containers, c.container())
		}
		if len(containers) > 0 {
			if _, _, err := st.svc.RegisterContainers(ctx, containers...); err != nil {
				return fmt.Errorf("register containers: %w", err)
			}
		}
		items := make([]core.Item, 0, len(m.Items))
		for _, it := range m.Items {
			items = append(items, it.item())
		}
		var batch core.BatchResult
		if len(items) > 0 {
			if batch, err = st.svc.PlaceBatch(ctx, items, m.FallbackZones); err != nil {
				return fmt.Errorf("place items: %w", err)
			}
		}
		if *baseline {
			if err := st.svc.MarkBaseline(ctx); err != nil {
				return err
			}
		}
		return printJSON(stdout, struct {
			Containers int              `json:"containers"`
			Placements []core.Placement `json:"placements"`
			Unplaced   []core.Unplaced  `json:"unplaced,omitempty"`
		}{len(containers), batch.Placements, batch.Unplaced})
	})
}

func runPlace(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("place", "Stow a single item in the first container with room, preferred zone first.")
	var spec itemSpec
	fs.StringVar(&spec.ID, "id", "", "Item identifier (required)")
	fs.StringVar(&spec.Name, "name", "", "Item name")
	fs.Float64Var(&spec.Width, "width", 0, "Width")
	fs.Float64Var(&spec.Depth, "depth", 0, "Depth")
	fs.Float64Var(&spec.Height, "height", 0, "Height")
	fs.Float64Var(&spec.Mass, "mass", 0, "Mass")
	fs.IntVar(&spec.Priority, "priority", 0, "Priority 1..100")
	fs.IntVar(&spec.UsageLimit, "usage-limit", 0, "Number of uses (0: unlimited)")
	fs.IntVar(&spec.DailyUsage, "daily-usage", 0, "Uses consumed every simulated day")
	fs.StringVar(&spec.PreferredZone, "zone", "", "Preferred zone")
	expiry := fs.Int("expiry-day", -1, "Day the item expires (-1: never)")
	zones := fs.String("zones", "", "Comma separated zones to try instead of the preferred zone")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if spec.ID == "" {
		return errors.New("place: -id is required")
	}
	if *expiry >= 0 {
		spec.ExpiryDay = expiry
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		p, err := st.svc.Place(ctx, spec.item(), splitIDs(*zones))
		if err != nil {
			return err
		}
		return printJSON(stdout, p)
	})
}

func parsePlaceBack(s string) (core.PlaceBackPolicy, error) {
	switch s {
	case "", "default":
		return core.PlaceBackDefault, nil
	case "always":
		return core.PlaceBackAlways, nil
	case "never":
		return core.PlaceBackNever, nil
	}
	return 0, fmt.Errorf("unknown place-back policy %q", s)
}

func runRetrieve(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("retrieve", "Plan the retrieval of an item and, unless -dry-run, confirm it.")
	id := fs.String("id", "", "Item identifier (required)")
	dryRun := fs.Bool("dry-run", false, "Print the plan without changing the registry")
	placeBack := fs.String("place-back", "default", "Blocker handling: default, always or never")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("retrieve: -id is required")
	}
	policy, err := parsePlaceBack(*placeBack)
	if err != nil {
		return err
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		plan, err := st.svc.Retrieve(ctx, *id)
		if err != nil {
			return err
		}
		if *dryRun {
			if err := st.svc.CancelRetrieval(ctx, plan.ID); err != nil {
				return err
			}
			return printJSON(stdout, plan)
		}
		outcome, err := st.svc.ConfirmRetrieval(ctx, plan.ID, core.RetrievalOptions{PlaceBack: policy})
		if err != nil {
			return err
		}
		return printJSON(stdout, outcome)
	})
}

func runSearch(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("search", "Find the stored item cheapest to retrieve by id or name.")
	var q core.SearchQuery
	fs.StringVar(&q.ItemID, "id", "", "Item identifier")
	fs.StringVar(&q.Name, "name", "", "Item name, case-insensitive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		res, err := st.svc.Search(ctx, q)
		if err != nil {
			return err
		}
		return printJSON(stdout, res)
	})
}

func runSimulate(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("simulate", "Advance the simulation clock, consuming usage and classifying waste.")
	days := fs.Int("days", 1, "Number of days to advance")
	use := fs.String("use", "", "Comma separated item ids used once on every day")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		out, err := st.svc.AdvanceDay(ctx, *days, core.AdvanceOptions{UsePerDay: splitIDs(*use)})
		if err != nil {
			return err
		}
		return printJSON(stdout, out)
	})
}

func runReset(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("reset", "Restore the baseline layout and report the moves it implies.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		res, err := st.svc.ResetSimulation(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, res)
	})
}

func runWaste(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("waste", "List expired and depleted items, including those due today.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		items, err := st.svc.IdentifyWaste(ctx)
		if err != nil {
			return err
		}
		if items == nil {
			items = []core.WasteItem{}
		}
		return printJSON(stdout, items)
	})
}

func runUndock(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("undock", "Load waste onto an undocking container, or complete its undocking.")
	var req core.WasteReturnRequest
	fs.StringVar(&req.UndockingContainerID, "container", "", "Undocking container id (required)")
	fs.IntVar(&req.UndockingDay, "day", 0, "Undocking day")
	fs.Float64Var(&req.MaxWeight, "max-weight", 0, "Mass budget for the return manifest")
	complete := fs.Bool("complete", false, "Complete the undocking, discarding its manifest items")
	export := fs.Bool("export", false, "Write the return manifest to blob storage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		if *complete {
			n, err := st.svc.CompleteUndocking(ctx, req.UndockingContainerID)
			if err != nil {
				return err
			}
			return printJSON(stdout, map[string]int{"items_removed": n})
		}
		manifest, err := st.svc.PlanWasteReturn(ctx, req)
		if err != nil {
			return err
		}
		if *export {
			store, err := st.openBlob(ctx)
			if err != nil {
				return err
			}
			info, err := arrangement.NewExporter(store, arrangement.WithSink(st.sink)).ExportManifest(ctx, manifest)
			if err != nil {
				return err
			}
			st.logger.Sugar().Infow("manifest exported", "key", info.Key, "driver", string(store.Driver()))
		}
		return printJSON(stdout, manifest)
	})
}

func runExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("export", "Write the current arrangement as CSV to blob storage.")
	list := fs.Bool("list", false, "List previous exports instead of writing one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withStation(ctx, g, func(ctx context.Context, st *station) error {
		store, err := st.openBlob(ctx)
		if err != nil {
			return err
		}
		exp := arrangement.NewExporter(store, arrangement.WithSink(st.sink))
		if *list {
			infos, err := exp.List(ctx, arrangement.ArrangementPrefix)
			if err != nil {
				return err
			}
			return printJSON(stdout, infos)
		}
		info, err := exp.ExportArrangement(ctx, st.svc.ExportState())
		if err != nil {
			return err
		}
		return printJSON(stdout, info)
	})
}

func runState(ctx context.Context, args []string, stdout io.Writer) error {
	fs, g := newFlagSet("state", "Print items, containers, placements and the current day as JSON.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withStation(ctx, g, func(_ context.Context, st *station) error {
		state := st.svc.ExportState()
		state.Normalize()
		return printJSON(stdout, state)
	})
}
