// Package sandbox implements the container build/run collaborator on the
// Docker Engine SDK. Builds drop the submission into the harness build
// context; runs are offline, memory-capped and pinned to a CPU subset so
// timings stay stable.
package sandbox

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/ferris-elf/ferris-elf"
)

// submissionPath is where the harness crate expects the user's code inside
// the build context.
const submissionPath = "src/code.rs"

type Docker struct {
	cli       *client.Client
	runnerDir string
}

func New(runnerDir string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not create docker client: %w", err)
	}
	return &Docker{cli: cli, runnerDir: runnerDir}, nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}

// Build assembles the harness build context with the submission spliced in
// and builds the image for tag. Build failures surface as *BuildError with
// the daemon's build log.
func (d *Docker) Build(ctx context.Context, tag string, source []byte) error {
	buildCtx, err := d.buildContext(source)
	if err != nil {
		return fmt.Errorf("could not assemble build context: %w", err)
	}

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return &ferriself.BuildError{Log: err.Error()}
	}
	defer resp.Body.Close()

	// The daemon streams JSON messages; an "error" key anywhere means the
	// build failed, "stream" chunks are the log.
	var log strings.Builder
	var buildErr string
	dec := json.NewDecoder(resp.Body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return &ferriself.BuildError{Log: log.String()}
		}
		log.WriteString(msg.Stream)
		if msg.Error != "" {
			buildErr = msg.Error
		}
	}
	if buildErr != "" {
		return &ferriself.BuildError{Log: TrimBuildLog(log.String())}
	}
	return nil
}

// buildContext tars the runner directory, overriding src/code.rs with the
// submission.
func (d *Docker) buildContext(source []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.WalkDir(d.runnerDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, err := filepath.Rel(d.runnerDir, path)
		if err != nil {
			return err
		}
		if filepath.ToSlash(rel) == submissionPath {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return writeTarFile(tw, filepath.ToSlash(rel), data)
	})
	if err != nil {
		return nil, err
	}

	if err := writeTarFile(tw, submissionPath, source); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte) error {
	if err := tw.WriteHeader(&tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// Run executes one benchmark container for tag with the input passed through
// the environment, under the given limits: offline, memory-capped, CPU
// pinned, wall clock bounded. Non-zero exit or a daemon error yields
// *RunError carrying captured stderr.
func (d *Docker) Run(ctx context.Context, tag string, input string, limits ferriself.RunLimits) (string, error) {
	runCtx := ctx
	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	created, err := d.cli.ContainerCreate(runCtx,
		&container.Config{
			Image: tag,
			Cmd:   []string{"timeout", fmt.Sprintf("%d", int(limits.Timeout.Seconds())), "./profile.sh"},
			Env:   []string{"INPUT=" + input},
		},
		&container.HostConfig{
			NetworkMode: "none",
			Resources: container.Resources{
				Memory:     limits.MemoryBytes,
				CpusetCpus: limits.CPUSet,
			},
		}, nil, nil, "")
	if err != nil {
		return "", &ferriself.RunError{Stderr: []byte(err.Error())}
	}
	defer func() {
		_ = d.cli.ContainerRemove(context.WithoutCancel(ctx), created.ID, types.ContainerRemoveOptions{Force: true})
	}()

	if err := d.cli.ContainerStart(runCtx, created.ID, types.ContainerStartOptions{}); err != nil {
		return "", &ferriself.RunError{Stderr: []byte(err.Error())}
	}

	logs, err := d.cli.ContainerAttach(runCtx, created.ID, types.ContainerAttachOptions{
		Stream: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return "", &ferriself.RunError{Stderr: []byte(err.Error())}
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	stdoutBuf := bufio.NewWriter(&stdout)
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdoutBuf, &stderr, logs.Reader)
		copyDone <- err
	}()

	statusCh, errCh := d.cli.ContainerWait(runCtx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return "", &ferriself.RunError{Stderr: []byte(err.Error())}
	case status := <-statusCh:
		<-copyDone
		_ = stdoutBuf.Flush()
		if status.StatusCode != 0 {
			return "", &ferriself.RunError{Stderr: stderr.Bytes()}
		}
	case <-runCtx.Done():
		return "", &ferriself.RunError{Stderr: []byte("benchmark timed out")}
	}

	return stdout.String(), nil
}
