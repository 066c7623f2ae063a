package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/KevinKickass/OpenRotoCore/internal/catalog"
	"github.com/KevinKickass/OpenRotoCore/internal/layout"
	"github.com/KevinKickass/OpenRotoCore/internal/machine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errArrangementInvalid = errors.New("arrangement is invalid")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rotoctl",
		Short:         "Offline tooling for rotational molding arrangements",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("molds", "./data/molds.csv", "mold sheet (CSV)")

	root.AddCommand(newValidateCmd(), newCompatibleCmd(), newWeightsCmd())
	return root
}

func loadCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	path, _ := cmd.Flags().GetString("molds")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mold sheet: %w", err)
	}
	defer f.Close()

	cat := catalog.New()
	_, rowErrs, err := cat.Import(f)
	if err != nil {
		return nil, fmt.Errorf("mold sheet %s: %w", path, err)
	}
	for _, re := range rowErrs {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", re)
	}
	return cat, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newValidateCmd() *cobra.Command {
	var (
		spiderPaths []string
		spiderSheet string
		maxDaily    int
	)

	cmd := &cobra.Command{
		Use:   "validate <layout.yaml>",
		Short: "Compose a machine layout against the mold sheet and print its inspection report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(cmd)
			if err != nil {
				return err
			}

			spiders, err := catalog.NewProfileLoader(spiderPaths)
			if err != nil {
				return err
			}
			if spiderSheet != "" {
				f, err := os.Open(spiderSheet)
				if err != nil {
					return fmt.Errorf("failed to open spider sheet: %w", err)
				}
				profiles, err := catalog.LoadSpidersCSV(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("spider sheet %s: %w", spiderSheet, err)
				}
				for _, p := range profiles {
					spiders.Register(p)
				}
			}

			l, err := layout.Load(args[0])
			if err != nil {
				return err
			}

			m, err := layout.NewComposer(cat, spiders, maxDaily, zap.NewNop()).Compose(l)
			if err != nil {
				return err
			}

			report := m.InspectArrangement()
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Valid {
				return errArrangementInvalid
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&spiderPaths, "spider-profiles", []string{"./profiles/spiders"}, "directories searched for spider profiles")
	cmd.Flags().StringVar(&spiderSheet, "spider-sheet", "", "spider sheet (CSV)")
	cmd.Flags().IntVar(&maxDaily, "max-daily-cycles", 7, "daily quota when the layout sets none")
	return cmd
}

func newCompatibleCmd() *cobra.Command {
	var tolerance float64

	cmd := &cobra.Command{
		Use:   "compatible <mold_id>",
		Short: "List molds that can share an arm with the given mold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(cmd)
			if err != nil {
				return err
			}

			ref, ok := cat.Get(args[0])
			if !ok {
				return fmt.Errorf("mold %s: %w", args[0], catalog.ErrMoldNotFound)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MOLD\tTYPE\tHEAT (min)\tTEMP (C)\tAVAILABLE")
			for _, m := range cat.Compatible(ref, tolerance) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", m.MoldID, m.MoldType,
					strconv.FormatFloat(m.HeatingTime, 'f', -1, 64),
					strconv.FormatFloat(m.HeatingTemperature, 'f', -1, 64),
					m.AvailableQuantity)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Float64Var(&tolerance, "tolerance", 0.02, "relative tolerance on heating time and temperature")
	return cmd
}

func newWeightsCmd() *cobra.Command {
	var options []float64

	cmd := &cobra.Command{
		Use:   "weights <net_torque>",
		Short: "Plan counterweights for an arm's net torque",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			net, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid net torque %q: %w", args[0], err)
			}
			plan, err := machine.PlanCounterweights("", net, options)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), plan)
		},
	}

	cmd.Flags().Float64SliceVar(&options, "options", []float64{10, 5, 2, 1, 0.5}, "available counterweights")
	return cmd
}
