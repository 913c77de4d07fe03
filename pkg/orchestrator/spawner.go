package orchestrator

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// WorkerCommand is the hidden subcommand a worker process is started with.
const WorkerCommand = "worker"

// Process is a started worker.
type Process interface {
	// Output carries the worker's single message.
	Output() io.Reader
	Kill() error
	Wait() error
}

type Spawner interface {
	Spawn(ctx context.Context, req WorkerRequest) (Process, error)
}

// ExecSpawner starts workers as copies of an executable. The request is the
// only input a worker receives.
type ExecSpawner struct {
	Path string
	Args []string
	// Env is passed through unchanged; nil inherits the parent's environment.
	Env    []string
	Stderr io.Writer
}

// NewExecSpawner re-executes the running binary with the worker subcommand
// followed by args.
func NewExecSpawner(args ...string) (*ExecSpawner, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "locate executable")
	}
	return &ExecSpawner{Path: path, Args: append([]string{WorkerCommand}, args...), Stderr: os.Stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (s *ExecSpawner) Spawn(ctx context.Context, req WorkerRequest) (Process, error) {
	var in bytes.Buffer
	if err := writeJSON(&in, req); err != nil {
		return nil, errors.Wrap(err, "encode worker request")
	}

	cmd := exec.CommandContext(ctx, s.Path, s.Args...)
	cmd.Env = s.Env
	cmd.Stdin = &in
	cmd.Stderr = s.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "worker stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", s.Path)
	}
	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

func (p *execProcess) Output() io.Reader { return p.stdout }

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Wait() error { return p.cmd.Wait() }
