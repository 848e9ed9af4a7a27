package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// server-wide ("") status.
const ServiceName = "pipeforge"

// Config contains daemon configuration
type Config struct {
	// SocketPath is the Unix socket path for gRPC communication
	SocketPath string

	// Target is the pipeline target rebuilt on change
	Target string

	// Version is the daemon version
	Version string

	Logger *slog.Logger
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/pipeforge/daemon.sock, creating
// the parent directory.
func DefaultSocketPath() (string, error) {
	path, err := xdg.RuntimeFile(filepath.Join("pipeforge", "daemon.sock"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve socket path: %w", err)
	}
	return path, nil
}

// BuildFunc runs one build of the watched target.
type BuildFunc func(ctx context.Context) error

// Daemon serves build health over gRPC while rebuilding on change.
type Daemon struct {
	config   *Config
	server   *grpc.Server
	health   *health.Server
	listener net.Listener

	startTime time.Time
	status    StatusInfo

	mu sync.RWMutex
}

// New creates a new daemon instance
func New(config *Config) *Daemon {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Daemon{config: config}
}

// Start listens on the socket and serves the health service. Status starts
// as NOT_SERVING until the first build succeeds.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.config.SocketPath), 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// A socket left behind by a crashed daemon blocks Listen.
	if _, err := os.Stat(d.config.SocketPath); err == nil {
		if err := os.Remove(d.config.SocketPath); err != nil {
			return fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", d.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	d.listener = listener

	d.health = health.NewServer()
	d.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	d.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	d.server = grpc.NewServer()
	healthpb.RegisterHealthServer(d.server, d.health)

	d.startTime = time.Now()
	d.status = StatusInfo{Running: true, Version: d.config.Version, Target: d.config.Target}

	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			d.config.Logger.Error("gRPC server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the daemon server
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.health != nil {
		d.health.Shutdown()
	}
	if d.server != nil {
		d.server.GracefulStop()
	}

	d.status.Running = false
	if err := os.Remove(d.config.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Serve runs build once, then again for every batch of changes until ctx is
// done. Build failures only flip the health status; they never stop the loop.
func (d *Daemon) Serve(ctx context.Context, changes <-chan []FileEvent, build BuildFunc) error {
	d.rebuild(ctx, build, nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-changes:
			if !ok {
				return nil
			}
			d.rebuild(ctx, build, batch)
		}
	}
}

func (d *Daemon) rebuild(ctx context.Context, build BuildFunc, batch []FileEvent) {
	log := d.config.Logger
	if len(batch) > 0 {
		log.Info("change detected, rebuilding", "target", d.config.Target, "files", len(batch), "first", batch[0].Path)
	}

	err := build(ctx)
	if ctx.Err() != nil {
		return
	}
	d.SetServing(err == nil, err)

	if err != nil {
		log.Error("build failed", "target", d.config.Target, "error", err)
		return
	}
	log.Info("build succeeded", "target", d.config.Target)
}

// SetServing records a build outcome and updates the health status.
func (d *Daemon) SetServing(ok bool, buildErr error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	if d.health != nil {
		d.health.SetServingStatus("", status)
		d.health.SetServingStatus(ServiceName, status)
	}

	d.status.Builds++
	d.status.LastBuild = time.Now()
	d.status.LastError = ""
	if buildErr != nil {
		d.status.LastError = buildErr.Error()
	}
}

// Status returns the daemon status
func (d *Daemon) Status() StatusInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := d.status
	if s.Running {
		s.UptimeSeconds = int64(time.Since(d.startTime).Seconds())
	}
	return s
}

// StatusInfo contains daemon status information
type StatusInfo struct {
	Running       bool
	Version       string
	Target        string
	UptimeSeconds int64
	Builds        int
	LastBuild     time.Time
	LastError     string
}

// SocketPath returns the socket path for connecting to this daemon
func (d *Daemon) SocketPath() string {
	return d.config.SocketPath
}

// Dial creates a gRPC client connection to a daemon socket.
func Dial(socketPath string) (*grpc.ClientConn, error) {
	return grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

// Check asks the daemon at socketPath for its health status.
func Check(ctx context.Context, socketPath string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := Dial(socketPath)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}
