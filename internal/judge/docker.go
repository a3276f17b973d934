package judge

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	workDir        = "/workspace"
	inputFile      = "input.txt"
	compileTimeout = 30 * time.Second

	// exit codes of coreutils/busybox timeout
	exitTimedOut = 124
	exitKilled   = 137
)

// DockerConfig holds configuration for the local Docker judge
type DockerConfig struct {
	MemoryMB   int
	CPULimit   float64
	NetworkOff bool
	Logger     *slog.Logger
}

// DefaultDockerConfig returns the settings used for local development
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		MemoryMB:   256,
		CPULimit:   1.0,
		NetworkOff: true,
	}
}

// DockerExecutor runs submissions in throwaway containers. It reports the
// same status labels as Judge0 so grading does not care which backend ran.
type DockerExecutor struct {
	client     *client.Client
	memoryMB   int
	cpuLimit   float64
	networkOff bool
	logger     *slog.Logger
}

var _ Executor = (*DockerExecutor)(nil)

// NewDockerExecutor connects to the Docker daemon from the environment
func NewDockerExecutor(cfg DockerConfig) (*DockerExecutor, error) {
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = 256
	}
	if cfg.CPULimit <= 0 {
		cfg.CPULimit = 1.0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}

	return &DockerExecutor{
		client:     cli,
		memoryMB:   cfg.MemoryMB,
		cpuLimit:   cfg.CPULimit,
		networkOff: cfg.NetworkOff,
		logger:     cfg.Logger,
	}, nil
}

// Close closes the Docker client
func (e *DockerExecutor) Close() error {
	return e.client.Close()
}

type execResult struct {
	exitCode int
	stdout   string
	stderr   string
	duration time.Duration
}

// Execute compiles (when needed) and runs the submission in a fresh container
func (e *DockerExecutor) Execute(ctx context.Context, sub Submission) (*Verdict, error) {
	lang, err := ParseLanguage(sub.Language)
	if err != nil {
		return nil, err
	}
	lc, _ := lang.Config()

	memoryMB := e.memoryMB
	if sub.MemoryLimitKB > 0 {
		memoryMB = (sub.MemoryLimitKB + 1023) / 1024
	}
	cpuLimit := sub.CPUTimeLimit
	if cpuLimit <= 0 {
		cpuLimit = defaultCPUTimeLimit
	}

	containerID, err := e.startContainer(ctx, lc.DockerImage, lang, memoryMB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJudgeFailed, err)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.client.ContainerRemove(rmCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Warn("remove judge container", "container", containerID, "error", err)
		}
	}()

	files := map[string]string{
		lc.SourceFile: sub.SourceCode,
		inputFile:     sub.Stdin,
	}
	if err := e.copyFiles(ctx, containerID, files); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJudgeFailed, err)
	}

	if len(lc.CompileCommand) > 0 {
		res, err := e.exec(ctx, containerID, lc.CompileCommand, compileTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrJudgeFailed, err)
		}
		if res.exitCode != 0 {
			return &Verdict{
				Status:        StatusCompilationError,
				CompileOutput: res.stdout + res.stderr,
			}, nil
		}
	}

	res, err := e.exec(ctx, containerID, runCommand(lc.RunCommand, cpuLimit), time.Duration(cpuLimit*float64(time.Second))+10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJudgeFailed, err)
	}

	return classify(res, sub.ExpectedOutput), nil
}

// runCommand wraps cmd with a wall clock limit and feeds it the input file
func runCommand(cmd []string, limitSeconds float64) []string {
	secs := strconv.FormatFloat(limitSeconds, 'f', -1, 64)
	return []string{"sh", "-c", fmt.Sprintf("timeout -s KILL %s %s < %s", secs, strings.Join(cmd, " "), inputFile)}
}

// classify maps a raw run onto Judge0's status vocabulary
func classify(res *execResult, expected string) *Verdict {
	v := &Verdict{
		Stdout: res.stdout,
		Stderr: res.stderr,
		Time:   strconv.FormatFloat(res.duration.Seconds(), 'f', 3, 64),
	}

	switch {
	case res.exitCode == exitTimedOut || res.exitCode == exitKilled:
		v.Status = StatusTimeLimitExceeded
	case res.exitCode != 0:
		v.Status = StatusRuntimeError
	case expected == "" || strings.TrimSpace(res.stdout) == strings.TrimSpace(expected):
		v.Status = StatusAccepted
	default:
		v.Status = StatusWrongAnswer
	}
	return v
}

func (e *DockerExecutor) startContainer(ctx context.Context, img string, lang Language, memoryMB int) (string, error) {
	if err := e.ensureImage(ctx, img); err != nil {
		return "", fmt.Errorf("ensure image: %w", err)
	}

	containerCfg := &container.Config{
		Image:           img,
		Cmd:             []string{"sh", "-c", "while true; do sleep 3600; done"},
		WorkingDir:      workDir,
		NetworkDisabled: e.networkOff,
		Labels: map[string]string{
			"skillforge.judge": "true",
			"skillforge.lang":  string(lang),
		},
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   int64(memoryMB) * 1024 * 1024,
			NanoCPUs: int64(e.cpuLimit * 1e9),
		},
	}

	resp, err := e.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = e.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}
	return resp.ID, nil
}

func (e *DockerExecutor) copyFiles(ctx context.Context, containerID string, files map[string]string) error {
	archive, err := tarFiles(files)
	if err != nil {
		return err
	}
	return e.client.CopyToContainer(ctx, containerID, workDir, archive, container.CopyToContainerOptions{})
}

func tarFiles(files map[string]string) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for name, content := range files {
		header := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return nil, fmt.Errorf("write tar content: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	return &buf, nil
}

func (e *DockerExecutor) exec(ctx context.Context, containerID string, cmd []string, timeout time.Duration) (*execResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := e.client.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec: %w", err)
	}

	start := time.Now()
	attachResp, err := e.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec: %w", err)
	}
	defer attachResp.Close()

	stdout, stderr, err := demux(attachResp.Reader)
	if err != nil {
		return nil, fmt.Errorf("read exec output: %w", err)
	}
	duration := time.Since(start)

	inspectResp, err := e.client.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec: %w", err)
	}

	return &execResult{
		exitCode: inspectResp.ExitCode,
		stdout:   stdout,
		stderr:   stderr,
		duration: duration,
	}, nil
}

// demux splits Docker's multiplexed exec stream into stdout and stderr
func demux(r io.Reader) (string, string, error) {
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, r); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

func (e *DockerExecutor) ensureImage(ctx context.Context, img string) error {
	if _, err := e.client.ImageInspect(ctx, img); err == nil {
		return nil
	}

	reader, err := e.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}
