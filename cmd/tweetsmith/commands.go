package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"tweetsmith/internal/cmdlog"
	"tweetsmith/internal/config"
	"tweetsmith/internal/jobs"
	"tweetsmith/internal/metrics"
	"tweetsmith/internal/model"
	"tweetsmith/internal/poster"
	"tweetsmith/internal/theme"
)

func sessionFlag() cli.Flag {
	return &cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "session name from config", Value: "morning"}
}

func (st *state) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init",
			Usage: "write a default config file",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "path", Usage: "path to write config", Value: "./tweetsmith.yaml"},
				&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
			},
			Action: st.runInit,
		},
		{
			Name:  "build",
			Usage: "generate and store the schedule for a session",
			Flags: []cli.Flag{
				sessionFlag(),
				&cli.IntFlag{Name: "slots", Usage: "override configured slot count"},
				&cli.DurationFlag{Name: "interval", Usage: "override configured spacing between slots"},
			},
			Action: st.runBuild,
		},
		{
			Name:  "post",
			Usage: "publish one scheduled entry",
			Flags: []cli.Flag{
				sessionFlag(),
				&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "entry index", Required: true},
			},
			Action: st.runPost,
		},
		{
			Name:  "run",
			Usage: "build the session schedule if needed and post entries as they come due",
			Flags: []cli.Flag{
				sessionFlag(),
				&cli.DurationFlag{Name: "tick", Usage: "poll interval", Value: time.Minute},
			},
			Action: st.runRun,
		},
		{
			Name:   "verify",
			Usage:  "check X credentials and print the connected account",
			Action: st.runVerify,
		},
		{
			Name:  "schedule",
			Usage: "inspect stored schedules",
			Subcommands: []*cli.Command{
				{
					Name:   "show",
					Usage:  "print the stored schedule of a session",
					Flags:  []cli.Flag{sessionFlag()},
					Action: st.runScheduleShow,
				},
			},
		},
		{
			Name:  "history",
			Usage: "inspect or prune the posted history",
			Subcommands: []*cli.Command{
				{
					Name:   "list",
					Usage:  "print recent history records",
					Flags:  []cli.Flag{&cli.IntFlag{Name: "days", Usage: "look-back window", Value: 90}},
					Action: st.runHistoryList,
				},
				{
					Name:   "prune",
					Usage:  "drop records older than the retention window",
					Flags:  []cli.Flag{&cli.IntFlag{Name: "days", Usage: "retention window (default from config)"}},
					Action: st.runHistoryPrune,
				},
			},
		},
		{
			Name:   "categories",
			Usage:  "list configured categories",
			Action: st.runCategories,
		},
	}
}

// signalContext cancels on SIGINT/SIGTERM so sleeps and HTTP calls unwind.
func signalContext(cctx *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
}

func (st *state) runInit(cctx *cli.Context) error {
	st.command = "init"
	return cmdlog.Run("init", func() error {
		path := cctx.String("path")
		if _, err := os.Stat(path); err == nil && !cctx.Bool("force") {
			return fmt.Errorf("%s exists; pass --force to overwrite", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		abs, _ := filepath.Abs(path)
		theme.PrintBanner(cctx.App.Writer, versioninfo.Short())
		fmt.Fprintln(cctx.App.Writer, "Config written to:", abs)
		return nil
	})
}

func (st *state) runBuild(cctx *cli.Context) error {
	st.command = "build"
	return cmdlog.Run("build", func() error {
		ctx, cancel := signalContext(cctx)
		defer cancel()
		sess, err := st.session(cctx)
		if err != nil {
			return err
		}
		b, err := st.builder()
		if err != nil {
			return err
		}
		sched, err := b.Build(ctx, sess.Name, sess.Slots, sess.Interval)
		if err != nil {
			return err
		}
		printSchedule(cctx, sched)
		return nil
	})
}

func (st *state) runPost(cctx *cli.Context) error {
	st.command = "post"
	return cmdlog.Run("post", func() error {
		ctx, cancel := signalContext(cctx)
		defer cancel()
		p, err := st.poster()
		if err != nil {
			return err
		}
		res, err := p.PostEntry(ctx, cctx.String("session"), cctx.Int("index"))
		if err != nil {
			return err
		}
		if res.Warning != nil {
			fmt.Fprintln(cctx.App.ErrWriter, "warning:", res.Warning)
		}
		fmt.Fprintf(cctx.App.Writer, "posted %s[%d] as %s after %d attempt(s): %s\n",
			res.Session, res.Index, res.PostID, res.Attempts, poster.PostURL(res.PostID))
		return nil
	})
}

func (st *state) runRun(cctx *cli.Context) error {
	st.command = "run"
	return cmdlog.Run("run", func() error {
		ctx, cancel := signalContext(cctx)
		defer cancel()
		metrics.StartServer(st.cfg.Metrics.Addr)
		sess, err := st.session(cctx)
		if err != nil {
			return err
		}
		b, err := st.builder()
		if err != nil {
			return err
		}
		p, err := st.poster()
		if err != nil {
			return err
		}
		s, err := st.storage()
		if err != nil {
			return err
		}
		return jobs.NewRunner(b, p, s, st.log).Run(ctx, sess, cctx.Duration("tick"))
	})
}

func (st *state) runVerify(cctx *cli.Context) error {
	st.command = "verify"
	return cmdlog.Run("verify", func() error {
		ctx, cancel := signalContext(cctx)
		defer cancel()
		pub, err := st.publisher()
		if err != nil {
			return err
		}
		acct, err := pub.VerifyIdentity(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "connected as @%s (%s, id %s)\n", acct.Username, acct.Name, acct.ID)
		return nil
	})
}

func (st *state) runScheduleShow(cctx *cli.Context) error {
	st.command = "schedule_show"
	return cmdlog.Run("schedule_show", func() error {
		s, err := st.storage()
		if err != nil {
			return err
		}
		sched, err := s.LoadSchedule(cctx.Context, cctx.String("session"))
		if err != nil {
			return model.Storage("load schedule", err)
		}
		printSchedule(cctx, sched)
		return nil
	})
}

func (st *state) runHistoryList(cctx *cli.Context) error {
	st.command = "history_list"
	return cmdlog.Run("history_list", func() error {
		h, err := st.history()
		if err != nil {
			return err
		}
		recs, err := h.Recent(cctx.Context, cctx.Int("days"))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tSESSION\tCATEGORY\tPOST\tCONTENT")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.CreatedAt.Format(time.RFC3339), r.Session, r.Category, r.PostID, r.Content)
		}
		return tw.Flush()
	})
}

func (st *state) runHistoryPrune(cctx *cli.Context) error {
	st.command = "history_prune"
	return cmdlog.Run("history_prune", func() error {
		h, err := st.history()
		if err != nil {
			return err
		}
		n, err := h.Prune(cctx.Context, cctx.Int("days"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "pruned %d record(s)\n", n)
		return nil
	})
}

func (st *state) runCategories(cctx *cli.Context) error {
	st.command = "categories"
	tw := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCHECK\tPROMPT")
	for _, d := range st.table.Definitions() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Check, d.Prompt)
	}
	return tw.Flush()
}

func printSchedule(cctx *cli.Context, s model.Schedule) {
	tw := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "session %s  generated %s  version %d\n", s.Session, s.GeneratedAt.Format(time.RFC3339), s.Version)
	fmt.Fprintln(tw, "#\tAT\tCATEGORY\tSTATUS\tPOST\tCONTENT")
	for _, e := range s.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.Index, e.ScheduledTime.Format(time.RFC3339), e.Item.Category, e.Status, e.PostID, e.Item.Content)
	}
	_ = tw.Flush()
}
