// Package main is the memdb demo CLI: a thin wrapper around
// internal/engine for running SQL against an embedded, in-process
// database either one statement at a time or interactively. It uses
// cobra for subcommands the way smf's own CLI does.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/kasuganosora/memdb/internal/engine"
	"github.com/kasuganosora/memdb/internal/logging"
	"github.com/kasuganosora/memdb/internal/persistence"
	"github.com/kasuganosora/memdb/internal/value"
	"github.com/kasuganosora/memdb/internal/wal"
)

type rootFlags struct {
	walPath          string
	snapshotPath     string
	durability       string
	checkpointBytes  int64
	checkpointEvents int
	logLevel         string
}

func main() {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "memdb",
		Short: "Embedded SQL engine demo CLI",
	}
	root.PersistentFlags().StringVar(&flags.walPath, "wal", "", "WAL file path (durability off if unset)")
	root.PersistentFlags().StringVar(&flags.snapshotPath, "snapshot", "", "Snapshot file path (required alongside --wal)")
	root.PersistentFlags().StringVar(&flags.durability, "durability", "sync", "WAL fsync mode: sync, group, async, or none")
	root.PersistentFlags().Int64Var(&flags.checkpointBytes, "checkpoint-bytes", 0, "Checkpoint once the WAL exceeds this many bytes (0: engine default)")
	root.PersistentFlags().IntVar(&flags.checkpointEvents, "checkpoint-ddl-events", 0, "Checkpoint after this many DDL events (0: engine default)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "debug, info, warn, or error")

	root.AddCommand(execCmd(flags))
	root.AddCommand(replCmd(flags))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openEngine(flags *rootFlags) (*engine.Engine, error) {
	var opts []engine.Option

	level := zapcore.InfoLevel
	switch strings.ToLower(flags.logLevel) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}
	log, err := logging.New(logging.WithLevel(level))
	if err != nil {
		return nil, fmt.Errorf("memdb: build logger: %w", err)
	}
	opts = append(opts, engine.WithLogger(log))

	if flags.walPath != "" {
		if flags.snapshotPath == "" {
			return nil, fmt.Errorf("memdb: --snapshot is required alongside --wal")
		}
		opts = append(opts, engine.WithWAL(flags.walPath, flags.snapshotPath))

		mode, err := parseDurability(flags.durability)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithDurability(mode))

		var policy persistence.CheckpointPolicy
		if flags.checkpointBytes > 0 {
			policy.WALSizeThreshold = flags.checkpointBytes
		}
		if flags.checkpointEvents > 0 {
			policy.DDLEventCount = flags.checkpointEvents
		}
		if policy != (persistence.CheckpointPolicy{}) {
			opts = append(opts, engine.WithCheckpointPolicy(policy))
		}
	}

	return engine.Open(opts...)
}

func parseDurability(s string) (wal.DurabilityMode, error) {
	switch strings.ToLower(s) {
	case "sync", "":
		return wal.Sync, nil
	case "group":
		return wal.Group, nil
	case "async":
		return wal.Async, nil
	case "none":
		return wal.None, nil
	default:
		return 0, fmt.Errorf("memdb: unknown durability mode %q", s)
	}
}

func execCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run one SQL statement and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			eng, err := openEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			sess := eng.NewSession()
			return runStatement(sess, args[0])
		},
	}
}

func replCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read SQL statements from stdin, one per line, until EOF",
		RunE: func(_ *cobra.Command, _ []string) error {
			eng, err := openEngine(flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			sess := eng.NewSession()
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				line = strings.TrimSuffix(line, ";")
				if line == "" || strings.HasPrefix(line, "--") {
					continue
				}
				if err := runStatement(sess, line); err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
				}
			}
			return scanner.Err()
		},
	}
}

// runStatement dispatches sql to Query or Exec by sniffing its first
// keyword — a SELECT/EXPLAIN/WITH statement reads rows, everything else
// (DDL, DML, BEGIN/COMMIT/ROLLBACK) runs through Exec — and prints
// whichever result comes back.
func runStatement(sess *engine.Session, sql string) error {
	start := time.Now()
	if looksLikeQuery(sql) {
		qr, err := sess.Query(context.Background(), sql)
		if err != nil {
			return err
		}
		printRows(qr.Schema, qr.Rows)
		fmt.Printf("(%d row(s), %s)\n", len(qr.Rows), time.Since(start).Round(time.Microsecond))
		return nil
	}

	res, err := sess.Exec(context.Background(), sql)
	if err != nil {
		return err
	}
	fmt.Printf("OK, %d row(s) affected (%s)\n", res.RowsAffected, time.Since(start).Round(time.Microsecond))
	return nil
}

func looksLikeQuery(sql string) bool {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	for _, kw := range []string{"SELECT", "EXPLAIN", "WITH"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

func printRows(schema value.Schema, rows []value.Row) {
	names := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		names[i] = c.Name
	}
	fmt.Println(strings.Join(names, "\t"))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
}
