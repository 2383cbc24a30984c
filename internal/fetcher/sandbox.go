package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// SandboxExtractor runs PDF/HTML text extraction for untrusted content
// inside a throwaway container instead of in-process, the same
// create/start/wait/stdcopy/remove lifecycle the dispatcher uses for
// agent containers, repurposed here for sandboxed document extraction.
type SandboxExtractor struct {
	cli   *client.Client
	image string
}

// NewSandboxExtractor builds an extractor against the given extraction
// image (expected to contain a "pdftotext"-equivalent CLI on PATH).
func NewSandboxExtractor(image string) (*SandboxExtractor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("init docker client: %w", err)
	}
	if image == "" {
		image = "prospector-extract:latest"
	}
	return &SandboxExtractor{cli: cli, image: image}, nil
}

// ExtractText writes raw into a scratch input file, runs the extraction
// image against it inside a read-only bind mount, and returns whatever the
// container wrote to stdout.
func (s *SandboxExtractor) ExtractText(ctx context.Context, raw []byte, mimeType string) (string, error) {
	hostDir, err := os.MkdirTemp("", "prospector-sandbox-")
	if err != nil {
		return "", fmt.Errorf("create sandbox dir: %w", err)
	}
	defer os.RemoveAll(hostDir)

	inputPath := filepath.Join(hostDir, "input.bin")
	if err := os.WriteFile(inputPath, raw, 0o644); err != nil {
		return "", fmt.Errorf("write sandbox input: %w", err)
	}

	sessionName := fmt.Sprintf("prospector-extract-%d", time.Now().UnixNano())

	cfg := &container.Config{
		Image:      s.image,
		Cmd:        []string{"/extract.sh", "/sandbox/input.bin", mimeType},
		Tty:        false,
		WorkingDir: "/sandbox",
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: hostDir, Target: "/sandbox", ReadOnly: true},
		},
		AutoRemove: false,
		NetworkMode: "none",
	}

	resp, err := s.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, sessionName)
	if err != nil {
		return "", fmt.Errorf("create sandbox container: %w", err)
	}
	defer s.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start sandbox container: %w", err)
	}

	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("wait sandbox container: %w", err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return "", fmt.Errorf("sandbox container exited with status %d", status.StatusCode)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	logs, err := s.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("read sandbox logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", fmt.Errorf("demux sandbox logs: %w", err)
	}
	if stderr.Len() > 0 {
		return stdout.String(), fmt.Errorf("sandbox extraction stderr: %s", stderr.String())
	}
	return stdout.String(), nil
}
