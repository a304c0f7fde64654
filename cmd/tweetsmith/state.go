package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"tweetsmith/internal/category"
	"tweetsmith/internal/config"
	"tweetsmith/internal/generate"
	"tweetsmith/internal/history"
	"tweetsmith/internal/jobs"
	"tweetsmith/internal/llm"
	"tweetsmith/internal/logging"
	"tweetsmith/internal/metrics"
	"tweetsmith/internal/model"
	"tweetsmith/internal/poster"
	"tweetsmith/internal/schedule"
	"tweetsmith/internal/similarity"
	"tweetsmith/internal/store/filestore"
	"tweetsmith/internal/store/sqlite"
	"tweetsmith/internal/xclient"
)

// storage is everything the commands persist: history, schedules and cursors.
type storage interface {
	history.Backend
	schedule.Store
	poster.ScheduleStore
	xclient.CursorStore
	Close() error
}

// state holds per-invocation wiring, filled in by before and opened lazily.
type state struct {
	cfgPath string
	cfg     config.Config
	log     *logrus.Entry
	table   *category.Table
	windows map[string]*schedule.Window
	store   storage
	command string
}

func (st *state) before(cctx *cli.Context) error {
	config.LoadEnv()
	st.cfgPath = cctx.String("config")
	cfg, err := config.Load(st.cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfg.ResolveEnv()
		err = cfg.Validate()
	}
	if err != nil {
		return fmt.Errorf("config %s: %w", st.cfgPath, err)
	}
	if lvl := cctx.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	st.cfg = cfg

	base := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logging.SetDefault(base)
	st.log = base.WithField("run_id", uuid.NewString())

	if st.table, err = category.NewTable(cfg.Categories); err != nil {
		return err
	}
	st.windows = map[string]*schedule.Window{}
	for name, s := range cfg.Sessions {
		if s.Start == "" {
			continue
		}
		w, err := schedule.ParseWindow(s.Start, s.Window, s.Timezone)
		if err != nil {
			return fmt.Errorf("session %s: %w", name, err)
		}
		st.windows[name] = w
	}
	return nil
}

func (st *state) after(cctx *cli.Context) error {
	if st.store != nil {
		if err := st.store.Close(); err != nil {
			st.log.WithError(err).Warn("storage_close_error")
		}
	}
	if st.command != "" && st.cfg.Metrics.PushGateway != "" {
		if err := metrics.Push(st.cfg.Metrics.PushGateway, "tweetsmith_"+st.command); err != nil {
			st.log.WithError(err).Warn("metrics_push_error")
		}
	}
	return nil
}

func (st *state) storage() (storage, error) {
	if st.store != nil {
		return st.store, nil
	}
	var (
		s   storage
		err error
	)
	switch st.cfg.Storage.Driver {
	case "file":
		s, err = filestore.Open(st.cfg.Storage.Dir)
	default:
		s, err = sqlite.Open(st.cfg.Storage.DBPath)
	}
	if err != nil {
		return nil, model.Storage("open "+st.cfg.Storage.Driver, err)
	}
	st.store = s
	return s, nil
}

func (st *state) history() (*history.Store, error) {
	s, err := st.storage()
	if err != nil {
		return nil, err
	}
	return history.New(s, history.Options{
		RetentionDays: st.cfg.History.RetentionDays,
		BackupKeep:    st.cfg.History.BackupKeep,
		ValidCategory: st.table.Valid,
		Logger:        st.log,
	}), nil
}

func (st *state) generator() (*generate.Generator, error) {
	hist, err := st.history()
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(st.cfg.LLM)
	if err != nil {
		return nil, err
	}
	scorer, err := similarity.New(st.cfg.Generation.Similarity.Algorithm)
	if err != nil {
		return nil, err
	}
	var gate *generate.Gate
	if st.cfg.Creativity.Enabled {
		if gate, err = generate.NewGate(st.cfg.Creativity); err != nil {
			return nil, err
		}
	}
	return generate.New(provider, hist, st.table, generate.Options{
		MaxAttempts:       st.cfg.Generation.MaxAttempts,
		Threshold:         st.cfg.Generation.Similarity.Threshold,
		HistoryWindowDays: st.cfg.Generation.HistoryWindowDays,
		SystemPrompt:      st.cfg.LLM.SystemPrompt,
		Temperature:       st.cfg.LLM.Temperature,
		MaxTokens:         st.cfg.LLM.MaxTokens,
		Scorer:            scorer,
		Gate:              gate,
		Logger:            st.log,
	}), nil
}

func (st *state) builder() (*schedule.Builder, error) {
	gen, err := st.generator()
	if err != nil {
		return nil, err
	}
	s, err := st.storage()
	if err != nil {
		return nil, err
	}
	return schedule.NewBuilder(gen, category.NewSelector(st.table, nil), s, schedule.Options{
		Windows: st.windows,
		Logger:  st.log,
	}), nil
}

func (st *state) publisher() (*xclient.HTTPClient, error) {
	s, err := st.storage()
	if err != nil {
		return nil, err
	}
	return xclient.NewHTTPClient(st.cfg.X, st.cfg.Credentials, s, st.log)
}

func (st *state) poster() (*poster.Poster, error) {
	s, err := st.storage()
	if err != nil {
		return nil, err
	}
	pub, err := st.publisher()
	if err != nil {
		return nil, err
	}
	hist, err := st.history()
	if err != nil {
		return nil, err
	}
	p := st.cfg.Posting
	return poster.New(s, pub, hist, poster.Options{
		MaxRetries:        p.MaxRetries,
		BaseBackoff:       p.BaseBackoff,
		RateLimitCooldown: p.RateLimitCooldown,
		SafetyMargin:      p.SafetyMargin,
		ResetBuffer:       p.ResetBuffer,
		Windows:           st.windows,
		Logger:            st.log,
	}), nil
}

// session resolves a configured session, letting flags override slots and interval.
func (st *state) session(cctx *cli.Context) (jobs.Session, error) {
	name := cctx.String("session")
	sc, ok := st.cfg.Sessions[name]
	if !ok {
		return jobs.Session{}, fmt.Errorf("unknown session %q", name)
	}
	s := jobs.Session{
		Name:     name,
		Slots:    sc.Slots,
		Interval: time.Duration(sc.IntervalMinutes) * time.Minute,
		Window:   st.windows[name],
	}
	if cctx.IsSet("slots") {
		s.Slots = cctx.Int("slots")
	}
	if cctx.IsSet("interval") {
		s.Interval = cctx.Duration("interval")
	}
	return s, nil
}
