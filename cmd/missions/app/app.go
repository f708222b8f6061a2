package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/groundlink/internal/engine"
	"github.com/roman-kulish/groundlink/internal/storage"
)

// Run prints the archived sessions, or the missions of one session, to w
func Run(ctx context.Context, config *Config, w io.Writer, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.SessionID == 0 {
		return listSessions(ctx, store, config, w)
	}
	return listMissions(ctx, store, config, w, logger)
}

func listSessions(ctx context.Context, store storage.Store, config *Config, w io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("reading sessions: %w", err)
	}

	if config.Format == FormatJSON {
		return json.NewEncoder(w).Encode(sessions)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tENDPOINT\tSTARTED\tDURATION")
	for _, s := range sessions {
		duration := "running"
		if s.EndTime != nil {
			duration = s.EndTime.Sub(s.StartTime).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Endpoint, s.StartTime.UTC().Format(time.DateTime), duration)
	}
	return tw.Flush()
}

func listMissions(ctx context.Context, store *storage.SqliteStore, config *Config, w io.Writer, logger *slog.Logger) error {
	var opts []storage.ReaderOption
	var filters []any
	if config.Since != nil {
		opts = append(opts, storage.WithSince(*config.Since))
		filters = append(filters, slog.String("since", config.Since.Format(time.DateTime)))
	}
	if config.Until != nil {
		opts = append(opts, storage.WithUntil(*config.Until))
		filters = append(filters, slog.String("until", config.Until.Format(time.DateTime)))
	}

	logger.Debug("reader configuration", filters...)

	reader, err := store.ReadMissions(ctx, config.SessionID, opts...)
	if err != nil {
		return err
	}
	defer reader.Close()

	var missions []*storage.Mission
	for reader.Next(ctx) {
		missions = append(missions, reader.Current())
	}
	if err = reader.Error(); err != nil {
		return fmt.Errorf("reading missions: %w", err)
	}

	if config.Format == FormatJSON {
		return json.NewEncoder(w).Encode(missions)
	}

	session := reader.Session()
	_, _ = fmt.Fprintf(w, "Session %d (%s), %s missions\n",
		session.ID, session.Endpoint, humanize.Comma(int64(len(missions))))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, m := range missions {
		_, _ = fmt.Fprintf(tw, "Mission %d\t%s\t%d waypoints\t%s\n",
			m.ID, m.DownloadedAt.UTC().Format(time.DateTime), len(m.Waypoints),
			humanize.SIWithDigits(engine.PathLength(m.Waypoints), 2, "m"))
		for _, wp := range m.Waypoints {
			_, _ = fmt.Fprintf(tw, "  #%d\t%.7f\t%.7f\t%.1f m\n", wp.Seq, wp.Lat, wp.Lon, wp.Alt)
		}
	}
	return tw.Flush()
}
