package matrix

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/jamesainslie/warden/pkg/warden/logging"
)

// DockerProvisioner runs each cell in its own container with a hard memory
// limit matching the cell's tier. Swap is pinned to the memory limit so the
// kernel OOM killer, not swap thrash, enforces the tier.
type DockerProvisioner struct {
	cli    *client.Client
	image  string
	logger *logging.Logger
}

// NewDockerProvisioner connects to the local Docker daemon and verifies it
// is reachable before any cell runs.
func NewDockerProvisioner(ctx context.Context, image string) (*DockerProvisioner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &DockerProvisioner{
		cli:    cli,
		image:  image,
		logger: logging.Get("matrix"),
	}, nil
}

// Close releases the client.
func (p *DockerProvisioner) Close() error {
	return p.cli.Close()
}

// Provision creates and starts a container constrained to the cell's tier.
func (p *DockerProvisioner) Provision(ctx context.Context, cell Cell) (Environment, error) {
	limit := int64(cell.TierMB) << 20

	env := []string{
		"WORKER_COUNT=" + strconv.Itoa(cell.Config.Workers),
		"WORKER_TIMEOUT=" + strconv.Itoa(cell.Config.RequestTimeout),
		"POOL_SIZE=" + strconv.Itoa(cell.Config.PoolSize),
		"RECYCLE_AFTER=" + strconv.Itoa(cell.Config.RecycleAfter),
		"CONFIG_MODE=" + string(cell.Mode),
	}

	created, err := p.cli.ContainerCreate(ctx,
		&container.Config{
			Image: p.image,
			Env:   env,
			Cmd:   []string{"sleep", "infinity"},
			Labels: map[string]string{
				"warden.cell": cell.Key(),
			},
		},
		&container.HostConfig{
			AutoRemove: false,
			Resources: container.Resources{
				Memory:     limit,
				MemorySwap: limit,
			},
		},
		nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create container for %s: %w", cell.Key(), err)
	}

	if err := p.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		p.remove(created.ID)
		return nil, fmt.Errorf("start container for %s: %w", cell.Key(), err)
	}

	p.logger.Debug("provisioned cell container",
		"cell", cell.Key(), "container", created.ID[:12], "memory_mb", cell.TierMB)

	return &dockerEnv{p: p, id: created.ID, cell: cell}, nil
}

func (p *DockerProvisioner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil {
		p.logger.Warn("failed to remove cell container", "container", id[:12], "error", err)
	}
}

type dockerEnv struct {
	p    *DockerProvisioner
	id   string
	cell Cell
}

// Run executes the scenario driver inside the container and parses its
// single-line result output.
func (e *dockerEnv) Run(ctx context.Context, sc Scenario) (Measurement, error) {
	start := time.Now()

	execResp, err := e.p.cli.ContainerExecCreate(ctx, e.id, container.ExecOptions{
		Cmd:          []string{"/usr/local/bin/warden-scenario", string(sc)},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return Measurement{}, fmt.Errorf("exec create: %w", err)
	}

	attach, err := e.p.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return Measurement{}, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- err
	}()

	select {
	case <-ctx.Done():
		return Measurement{}, ctx.Err()
	case err := <-copyDone:
		if err != nil {
			return Measurement{}, fmt.Errorf("read exec output: %w", err)
		}
	}

	insp, err := e.p.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return Measurement{}, fmt.Errorf("exec inspect: %w", err)
	}

	m, perr := parseScenarioOutput(stdout.Bytes())
	if perr != nil {
		m = Measurement{Detail: stderr.String()}
	}
	m.Passed = insp.ExitCode == 0 && perr == nil
	if m.ResponseTime == 0 {
		m.ResponseTime = time.Since(start)
	}
	if !m.Passed && m.Detail == "" {
		m.Detail = fmt.Sprintf("scenario exit code %d", insp.ExitCode)
	}
	return m, nil
}

func (e *dockerEnv) Close() error {
	e.p.remove(e.id)
	return nil
}

// parseScenarioOutput decodes the driver's "timeouts=N startup_ms=N
// response_ms=N" summary line. Missing fields stay zero.
func parseScenarioOutput(out []byte) (Measurement, error) {
	var (
		m                     Measurement
		timeouts              int
		startupMS, responseMS int64
	)
	fields, err := fmt.Sscanf(string(bytes.TrimSpace(out)),
		"timeouts=%d startup_ms=%d response_ms=%d",
		&timeouts, &startupMS, &responseMS)
	if err != nil && fields == 0 {
		return m, fmt.Errorf("unparseable scenario output: %w", err)
	}
	m.TimeoutCount = timeouts
	m.StartupTime = time.Duration(startupMS) * time.Millisecond
	m.ResponseTime = time.Duration(responseMS) * time.Millisecond
	return m, nil
}
