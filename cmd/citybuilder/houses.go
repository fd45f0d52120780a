package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"citybuilder/pkg/domain"
)

func newHousesCmd(a *app) *cobra.Command {
	var noWait bool
	cmd := &cobra.Command{
		Use:   "houses",
		Short: "Inspect and edit the stored collection",
	}
	cmd.PersistentFlags().BoolVar(&noWait, "no-wait", false, "exit without waiting for settle and purge transitions")

	// mutate opens the collection, applies fn and waits for the resulting
	// transitions so the final state is persisted before exiting.
	mutate := func(cmd *cobra.Command, fn func(rt *runtime) (any, error)) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx, a.cfg, a.logger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()
		rt.resume()
		result, err := fn(rt)
		if err != nil {
			return err
		}
		if !noWait {
			t := rt.store.Timings()
			if err := rt.settle(ctx, 2*(t.Settle+t.Remove)); err != nil {
				return err
			}
		}
		if err := rt.bridge.LastError(); err != nil {
			return fmt.Errorf("persist collection: %w", err)
		}
		return printJSON(cmd, result)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List houses in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			houses, err := a.loadHouses(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, houses)
			}
			return printTable(cmd, houses)
		},
	}
	list.Flags().Bool("json", false, "print JSON instead of a table")

	add := &cobra.Command{
		Use:   "add",
		Short: "Build a new single-floor house",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return mutate(cmd, func(rt *runtime) (any, error) {
				h := rt.store.Add()
				return h.ID, nil
			})
		},
	}

	duplicate := &cobra.Command{
		Use:   "duplicate <id>",
		Short: "Copy a house under a new id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(rt *runtime) (any, error) {
				h, ok := rt.store.Duplicate(args[0])
				return applied(ok, h.ID), nil
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a house",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(rt *runtime) (any, error) {
				_, ok := rt.store.Rename(args[0], args[1])
				return applied(ok, args[0]), nil
			})
		},
	}

	color := &cobra.Command{
		Use:   "color <id> <palette-key>",
		Short: "Recolor a house",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(rt *runtime) (any, error) {
				_, ok := rt.store.RecolorHouse(args[0], args[1])
				return applied(ok, args[0]), nil
			})
		},
	}

	floors := &cobra.Command{
		Use:   "floors <id> <count>",
		Short: "Set the floor count (clamped to 1..12)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("floor count %q: %w", args[1], err)
			}
			return mutate(cmd, func(rt *runtime) (any, error) {
				_, ok := rt.store.SetFloorCount(args[0], n)
				return applied(ok, args[0]), nil
			})
		},
	}

	floorColor := &cobra.Command{
		Use:   "floor-color <id> <floor> [color]",
		Short: "Recolor one floor; omit the color to inherit the house color",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			floor, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("floor id %q: %w", args[1], err)
			}
			c := ""
			if len(args) == 3 {
				c = args[2]
			}
			return mutate(cmd, func(rt *runtime) (any, error) {
				_, ok := rt.store.RecolorFloor(args[0], floor, c)
				return applied(ok, args[0]), nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a house",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(rt *runtime) (any, error) {
				return applied(rt.store.RequestRemoval(args[0]), args[0]), nil
			})
		},
	}

	move := &cobra.Command{
		Use:   "move <moved-id> <target-id>",
		Short: "Move a house to the position of another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(cmd, func(rt *runtime) (any, error) {
				_, ok := rt.store.Reorder(args[0], args[1])
				return applied(ok, args[0]), nil
			})
		},
	}

	cmd.AddCommand(list, add, duplicate, rename, color, floors, floorColor, remove, move)
	return cmd
}

type mutationResult struct {
	Applied bool   `json:"applied"`
	ID      string `json:"id,omitempty"`
}

func applied(ok bool, id string) mutationResult {
	return mutationResult{Applied: ok, ID: id}
}

func (a *app) loadHouses(ctx context.Context) ([]domain.House, error) {
	rt, err := openRuntime(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rt.Close() }()
	return rt.store.Snapshot(), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(cmd *cobra.Command, houses []domain.House) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOLOR\tFLOORS\tHEIGHT\tSTATUS")
	for _, h := range houses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", h.ID, h.Name, h.Color, len(h.Floors), h.Height, h.Status)
	}
	return tw.Flush()
}
