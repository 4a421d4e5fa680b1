package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// Dumper produces SQL backups of the scraper database by shelling out to
// pg_dump on a schedule independent from scraping.
type Dumper struct {
	cfg    Config
	dir    string
	logger *slog.Logger
}

func NewDumper(cfg Config, dir string, logger *slog.Logger) *Dumper {
	if dir == "" {
		dir = "dumps"
	}
	return &Dumper{
		cfg:    cfg,
		dir:    dir,
		logger: logger.With("component", "dumper"),
	}
}

// CreateDump writes a timestamped pg_dump file and returns its path.
func (d *Dumper) CreateDump(ctx context.Context) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dump directory: %w", err)
	}

	dumpFile := filepath.Join(d.dir,
		fmt.Sprintf("autoria_dump_%s.sql", time.Now().Format("20060102_150405")))

	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", d.cfg.Host,
		"-p", strconv.Itoa(d.cfg.Port),
		"-U", d.cfg.User,
		"-d", d.cfg.Database,
		"-f", dumpFile,
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+d.cfg.Password)

	d.logger.Info("creating database dump", "file", dumpFile)

	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pg_dump failed: %w: %s", err, out)
	}

	d.logger.Info("database dump created", "file", dumpFile)
	return dumpFile, nil
}
