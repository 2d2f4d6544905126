package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecr/ecrviewer/internal/platform/db"
)

var errNoDocker = errors.New("docker not found on PATH")

// containerConfig describes the throwaway Postgres server. Image and the
// readiness timeout can be overridden from the environment.
type containerConfig struct {
	Image    string
	User     string
	Password string
	Database string
	Timeout  time.Duration
}

func containerConfigFromEnv() containerConfig {
	cfg := containerConfig{
		Image:    "postgres:16-alpine",
		User:     "ecr",
		Password: "ecr",
		Database: "ecrtest",
		Timeout:  45 * time.Second,
	}
	if img := os.Getenv("INTEGRATION_POSTGRES_IMAGE"); img != "" {
		cfg.Image = img
	}
	if d, err := time.ParseDuration(os.Getenv("INTEGRATION_POSTGRES_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	return cfg
}

// postgresContainer is a running container with its published port.
type postgresContainer struct {
	id  string
	url string
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// startPostgres runs cfg.Image with the server port published on an
// ephemeral loopback port and waits until it serves queries.
func startPostgres(ctx context.Context, cfg containerConfig) (*postgresContainer, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, errNoDocker
	}

	id, err := docker(ctx, "run", "-d", "--rm",
		"--name", "ecr-viewer-it-"+uuid.NewString()[:8],
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER="+cfg.User,
		"-e", "POSTGRES_PASSWORD="+cfg.Password,
		"-e", "POSTGRES_DB="+cfg.Database,
		cfg.Image)
	if err != nil {
		return nil, err
	}
	pc := &postgresContainer{id: id}

	binding, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		pc.stop()
		return nil, err
	}
	// "docker port" may list one binding per line.
	binding, _, _ = strings.Cut(binding, "\n")
	host, port, err := net.SplitHostPort(binding)
	if err != nil {
		pc.stop()
		return nil, fmt.Errorf("parse published port %q: %w", binding, err)
	}
	pc.url = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		cfg.User, cfg.Password, net.JoinHostPort(host, port), cfg.Database)

	readyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := pc.waitReady(readyCtx, cfg); err != nil {
		pc.stop()
		return nil, err
	}
	return pc, nil
}

// waitReady polls pg_isready inside the container, then confirms the
// published port accepts a pooled connection.
func (pc *postgresContainer) waitReady(ctx context.Context, cfg containerConfig) error {
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		if _, lastErr = docker(ctx, "exec", pc.id, "pg_isready", "-U", cfg.User, "-d", cfg.Database); lastErr == nil {
			pool, err := db.NewPool(ctx, pc.url, "", 1, 0)
			if err == nil {
				pool.Close()
				return nil
			}
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready: %w (last error: %v)", ctx.Err(), lastErr)
		case <-tick.C:
		}
	}
}

func (pc *postgresContainer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, _ = docker(ctx, "rm", "-f", pc.id)
}
