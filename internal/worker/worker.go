package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"vidscribe/internal/config"
	"vidscribe/internal/logging"
	"vidscribe/internal/protocol"
	"vidscribe/internal/services"
)

// Kind names a worker entry point.
type Kind string

const (
	KindBatchTranscribe Kind = "batch-transcribe"
	KindVerifyModel     Kind = "verify-model"
	KindDownloadModel   Kind = "download-model"
	KindSearch          Kind = "search"
)

const (
	lineChannelBuffer = 256
	maxLineBytes      = 16 * 1024 * 1024
)

// ModelCacheDirEnv carries transcription.model_cache_dir to the model
// workers. Workers that do not read it fall back to their own default.
const ModelCacheDirEnv = "VIDSCRIBE_MODEL_CACHE_DIR"

// Command is the resolved command line prefix for a worker kind. Script, when
// set, must exist before launch.
type Command struct {
	Program string
	Args    []string
	Script  string
	Env     []string
}

// Resolver maps a worker kind to its command.
type Resolver func(Kind) (Command, error)

// ConfigResolver resolves kinds to "<interpreter> <interpreter_args> <script>".
func ConfigResolver(cfg *config.Config) Resolver {
	return func(kind Kind) (Command, error) {
		var script string
		switch kind {
		case KindBatchTranscribe:
			script = cfg.Worker.BatchScript
		case KindVerifyModel:
			script = cfg.Worker.VerifyScript
		case KindDownloadModel:
			script = cfg.Worker.DownloadScript
		case KindSearch:
			script = cfg.Worker.SearchScript
		default:
			return Command{}, fmt.Errorf("unknown worker kind %q", kind)
		}
		path := cfg.WorkerScript(script)
		args := append(append([]string(nil), cfg.Worker.InterpreterArgs...), path)
		cmd := Command{Program: cfg.Worker.Interpreter, Args: args, Script: path}
		if token := cfg.Transcription.HuggingFaceToken; token != "" {
			cmd.Env = append(cmd.Env, "HF_TOKEN="+token)
		}
		if dir := cfg.Transcription.ModelCacheDir; dir != "" && (kind == KindVerifyModel || kind == KindDownloadModel) {
			cmd.Env = append(cmd.Env, ModelCacheDirEnv+"="+dir)
		}
		return cmd, nil
	}
}

// Launcher starts worker processes.
type Launcher struct {
	resolve Resolver
	logger  *slog.Logger
}

// NewLauncher constructs a Launcher.
func NewLauncher(resolve Resolver, logger *slog.Logger) *Launcher {
	return &Launcher{resolve: resolve, logger: logging.NewComponentLogger(logger, "worker")}
}

// ExitStatus is the outcome of a finished worker.
type ExitStatus struct {
	ExitCode        int  `json:"exitCode"`
	StoppedByCancel bool `json:"stoppedByCancel"`
}

// Success reports a zero exit that was not cancelled.
func (s ExitStatus) Success() bool {
	return s.ExitCode == 0 && !s.StoppedByCancel
}

// Handle is one running worker process.
type Handle struct {
	kind   Kind
	cmd    *exec.Cmd
	stdout chan string
	stderr chan string
	done   chan struct{}

	cancelled  atomic.Bool
	signalOnce sync.Once
	signalErr  error

	status ExitStatus
	ioErr  error
	logger *slog.Logger
}

// Launch starts one worker of the given kind. Failures to resolve or start the
// process are reported immediately as services.ErrLaunch.
func (l *Launcher) Launch(ctx context.Context, kind Kind, args []string) (*Handle, error) {
	if l == nil || l.resolve == nil {
		return nil, services.Wrap(services.ErrLaunch, "worker", string(kind), "launcher not configured", nil)
	}
	command, err := l.resolve(kind)
	if err != nil {
		return nil, services.Wrap(services.ErrLaunch, "worker", string(kind), "resolve command", err)
	}
	program, err := exec.LookPath(command.Program)
	if err != nil {
		return nil, services.Wrap(services.ErrLaunch, "worker", string(kind), fmt.Sprintf("interpreter %q not found", command.Program), err)
	}
	if command.Script != "" {
		if _, err := os.Stat(command.Script); err != nil {
			return nil, services.Wrap(services.ErrLaunch, "worker", string(kind), fmt.Sprintf("script %q not found", command.Script), err)
		}
	}

	argv := append(append([]string(nil), command.Args...), args...)
	cmd := exec.CommandContext(ctx, program, argv...) //nolint:gosec
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.Env = append(cmd.Env, command.Env...)
	// A terminal Ctrl-C must reach only vidscribe, which turns it into one SIGTERM.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h := &Handle{
		kind:   kind,
		cmd:    cmd,
		stdout: make(chan string, lineChannelBuffer),
		stderr: make(chan string, lineChannelBuffer),
		done:   make(chan struct{}),
		logger: logging.WithContext(services.WithWorkerKind(ctx, string(kind)), l.logger),
	}
	// Context cancellation maps to the same graceful signal as Cancel.
	cmd.Cancel = func() error {
		h.cancelled.Store(true)
		return h.signal()
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrLaunch, "worker", string(kind), "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrLaunch, "worker", string(kind), "stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrLaunch, "worker", string(kind), "start process", err)
	}
	h.logger.Debug("worker started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("command", strings.Join(append([]string{program}, argv...), " ")),
	)

	go h.supervise(stdout, stderr)
	return h, nil
}

func (h *Handle) supervise(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	var once sync.Once

	scan := func(r io.Reader, out chan<- string) {
		defer wg.Done()
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			out <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { h.ioErr = fmt.Errorf("scan output: %w", err) })
			// Keep the pipe drained so the worker never blocks on a full buffer.
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdout, h.stdout)
	go scan(stderr, h.stderr)
	wg.Wait()

	err := h.cmd.Wait()
	code := 0
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	// After a context cancel Wait reports the context error even on a clean exit.
	if err != nil && !errors.As(err, &exitErr) && !h.cancelled.Load() && h.ioErr == nil {
		h.ioErr = fmt.Errorf("wait command: %w", err)
	}
	h.status = ExitStatus{ExitCode: code, StoppedByCancel: h.cancelled.Load()}
	h.logger.Debug("worker exited",
		logging.Int("exit_code", code),
		logging.Bool("stopped_by_cancel", h.status.StoppedByCancel),
	)
	close(h.done)
}

// Kind returns the worker kind.
func (h *Handle) Kind() Kind { return h.kind }

// PID returns the worker process id.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stdout yields stdout lines in order and closes at EOF.
func (h *Handle) Stdout() <-chan string { return h.stdout }

// Stderr yields stderr lines in order and closes at EOF.
func (h *Handle) Stderr() <-chan string { return h.stderr }

// Done is closed after the process exited and both streams were drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel requests a graceful stop. It sends SIGTERM at most once; calling it
// after exit is a no-op.
func (h *Handle) Cancel() error {
	h.cancelled.Store(true)
	select {
	case <-h.done:
		return nil
	default:
	}
	return h.signal()
}

// CancelRequested reports whether Cancel was called or the launch context ended.
func (h *Handle) CancelRequested() bool { return h.cancelled.Load() }

func (h *Handle) signal() error {
	h.signalOnce.Do(func() {
		if h.cmd.Process == nil {
			return
		}
		h.logger.Info("sending graceful stop signal", logging.Int("pid", h.cmd.Process.Pid))
		if err := h.cmd.Process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.signalErr = fmt.Errorf("signal worker: %w", err)
		}
	})
	return h.signalErr
}

// Wait blocks until the worker exits and returns its status.
func (h *Handle) Wait() ExitStatus {
	<-h.done
	return h.status
}

// Err reports an I/O failure while reading the worker's output. A nonzero exit
// is not an error here; inspect Wait instead.
func (h *Handle) Err() error {
	<-h.done
	return h.ioErr
}

// Each delivers every line from both streams to fn until both close. Lines of
// one stream keep their order; the interleaving between streams follows
// arrival.
func (h *Handle) Each(fn func(protocol.Stream, string)) {
	stdout, stderr := h.stdout, h.stderr
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			fn(protocol.Stdout, line)
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			fn(protocol.Stderr, line)
		}
	}
}

// Run launches a worker, feeds every line to onLine, and waits for exit.
func (l *Launcher) Run(ctx context.Context, kind Kind, args []string, onLine func(protocol.Stream, string)) (ExitStatus, error) {
	h, err := l.Launch(ctx, kind, args)
	if err != nil {
		return ExitStatus{}, err
	}
	h.Each(func(stream protocol.Stream, line string) {
		if onLine != nil {
			onLine(stream, line)
		}
	})
	status := h.Wait()
	return status, h.Err()
}
