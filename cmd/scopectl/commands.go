package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// targetFlags selects one target variant on calibrate and goto.
type targetFlags struct {
	ra, dec, frame string
	name           string
	body           string
	minorPlanet    string
}

func (f *targetFlags) register(cmd *cobra.Command, withMinorPlanet bool) {
	cmd.Flags().StringVar(&f.ra, "ra", "", "right ascension (degrees, or 10h30m00s / 10:30:00 in hours)")
	cmd.Flags().StringVar(&f.dec, "dec", "", "declination (degrees or +20:30:00)")
	cmd.Flags().StringVar(&f.frame, "frame", "", "coordinate frame (icrs, fk5)")
	cmd.Flags().StringVar(&f.name, "name", "", "catalog object name (e.g. M31)")
	cmd.Flags().StringVar(&f.body, "body", "", "solar system body (e.g. jupiter)")
	if withMinorPlanet {
		cmd.Flags().StringVar(&f.minorPlanet, "mpc", "", "asteroid or comet designation")
	}
}

// endpoint returns the API path suffix and query for the selected target.
func (f *targetFlags) endpoint() (string, url.Values, error) {
	set := 0
	for _, v := range []string{f.ra + f.dec, f.name, f.body, f.minorPlanet} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return "", nil, errors.New("specify exactly one of --ra/--dec, --name, --body or --mpc")
	}

	q := url.Values{}
	switch {
	case f.name != "":
		q.Set("name", f.name)
		return "/by_name", q, nil
	case f.body != "":
		q.Set("name", f.body)
		return "/solar_system_object", q, nil
	case f.minorPlanet != "":
		q.Set("name", f.minorPlanet)
		return "/mpc", q, nil
	}
	if f.ra == "" || f.dec == "" {
		return "", nil, errors.New("--ra and --dec must be given together")
	}
	q.Set("ra", f.ra)
	q.Set("dec", f.dec)
	if f.frame != "" {
		q.Set("frame", f.frame)
	}
	return "", q, nil
}

func newCalibrateCmd() *cobra.Command {
	var f targetFlags
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Slew to a target and sync the mount there",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			suffix, q, err := f.endpoint()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			res, err := apiClient().command(ctx, "/calibrate"+suffix, q)
			return printCommand(cmd, res, err)
		},
	}
	f.register(cmd, false)
	return cmd
}

func newGotoCmd() *cobra.Command {
	var (
		f    targetFlags
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "goto",
		Short: "Slew to a target and keep tracking it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			suffix, q, err := f.endpoint()
			if err != nil {
				return err
			}
			if wait {
				q.Set("wait", "slew")
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			res, err := apiClient().command(ctx, "/goto"+suffix, q)
			return printCommand(cmd, res, err)
		},
	}
	f.register(cmd, true)
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the slew has finished")
	return cmd
}

func newBumpCmd() *cobra.Command {
	var (
		bearing, dec int
		noSync       bool
	)
	cmd := &cobra.Command{
		Use:   "bump",
		Short: "Nudge the mount by relative motor steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("bearing", strconv.Itoa(bearing))
			q.Set("dec", strconv.Itoa(dec))
			q.Set("sync", strconv.FormatBool(!noSync))

			ctx, cancel := commandContext(cmd)
			defer cancel()

			res, err := apiClient().command(ctx, "/calibrate/bump", q)
			return printCommand(cmd, res, err)
		},
	}
	cmd.Flags().IntVar(&bearing, "bearing", 0, "bearing axis steps")
	cmd.Flags().IntVar(&dec, "dec", 0, "declination axis steps")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "do not resume tracking the current target")
	return cmd
}

func newTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "target",
		Short: "Show the target currently being tracked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			t, err := apiClient().currentTarget(ctx)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), t)
			}
			if !t.Tracking {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("not tracking"))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("tracking"), t.Target)
			return nil
		},
	}
}

func newActivitiesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "List recent activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			acts, err := apiClient().activities(ctx, limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), acts)
			}
			renderActivities(cmd.OutOrStdout(), acts)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of activities")
	return cmd
}

func newActivityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity <id>",
		Short: "Show one activity and its status events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid activity id %q", args[0])
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			act, err := apiClient().activity(ctx, id)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), act)
			}
			renderActivity(cmd.OutOrStdout(), act)
			renderEvents(cmd.OutOrStdout(), act.Events)
			return nil
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Abort a pending or running activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid activity id %q", args[0])
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			res, err := apiClient().command(ctx, "/activities/"+args[0]+"/cancel", nil)
			return printCommand(cmd, res, err)
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored activity events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			records, err := apiClient().history(ctx, limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), records)
			}
			renderHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Request a bearer token (export it as SCOPECTL_TOKEN)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			token, err := apiClient().login(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
