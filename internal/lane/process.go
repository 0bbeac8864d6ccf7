package lane

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"genesynth/internal/fault"
)

var ErrPoolClosed = errors.New("process pool is closed")

// ProcessOptions configure the process lane.
type ProcessOptions struct {
	// Exe is the worker binary; "" re-executes the running program.
	Exe  string
	Args []string
	// Size bounds the number of live workers.
	Size int
	// Passthrough names host variables copied into the worker environment.
	Passthrough []string
	// Stderr receives worker diagnostics; nil discards them.
	Stderr io.Writer
	Logger *zap.Logger
}

// Processes is the process lane. Workers are spawned on demand up to Size and
// reused across tasks.
type Processes struct {
	opts ProcessOptions
	sem  *semaphore.Weighted
	log  *zap.Logger
	ids  atomic.Uint64

	mu     sync.Mutex
	idle   []*worker
	closed bool
	tasks  sync.WaitGroup
}

func NewProcesses(opts ProcessOptions) (*Processes, error) {
	if opts.Exe == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating worker binary: %w", err)
		}
		opts.Exe = exe
	}
	if opts.Size < 1 {
		opts.Size = 1
	}
	if opts.Passthrough == nil {
		opts.Passthrough = DefaultPassthrough
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Processes{opts: opts, sem: semaphore.NewWeighted(int64(opts.Size)), log: log}, nil
}

func (p *Processes) Name() Name { return Process }

func (p *Processes) Submit(ctx context.Context, t Task) *Future {
	if t.Spec.Name == "" || t.Out == "" {
		return settled(fmt.Errorf("task %s: process lane needs a spec and an output path", t.Name))
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return settled(ErrPoolClosed)
	}
	p.tasks.Add(1)
	p.mu.Unlock()

	f := newFuture()
	go func() {
		defer p.tasks.Done()
		f.settle(p.run(ctx, t))
	}()
	return f
}

func (p *Processes) run(ctx context.Context, t Task) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return context.Cause(ctx)
	}
	defer p.sem.Release(1)

	w, err := p.checkout()
	if err != nil {
		return &fault.Error{Kind: fault.ErrLane, Node: t.Name, Msg: "starting worker", Err: err}
	}
	req := request{ID: p.ids.Add(1), Spec: t.Spec, Out: t.Out}
	resp, err := w.call(ctx, req)
	if err != nil {
		w.kill()
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		p.log.Warn("worker failed", zap.String("node", t.Name), zap.Int("pid", w.pid()), zap.Error(err))
		return &fault.Error{Kind: fault.ErrLane, Node: t.Name, Err: err}
	}
	p.checkin(w)
	p.log.Debug("worker built node", zap.String("node", t.Name), zap.Int("rows", resp.Rows))
	return resp.err()
}

func (p *Processes) checkout() (*worker, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		w := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return w, nil
	}
	p.mu.Unlock()
	return p.spawn()
}

func (p *Processes) checkin(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, w)
}

func (p *Processes) spawn() (*worker, error) {
	cmd := exec.Command(p.opts.Exe, p.opts.Args...)
	cmd.Env = workerEnv(p.opts.Passthrough)
	cmd.Stderr = p.opts.Stderr
	// Own process group so a kill reaches anything the worker started.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	bw := bufio.NewWriter(stdin)
	w := &worker{
		cmd:   cmd,
		stdin: stdin,
		bw:    bw,
		enc:   msgpack.NewEncoder(bw),
		dec:   msgpack.NewDecoder(bufio.NewReader(stdout)),
	}
	p.log.Debug("spawned worker", zap.Int("pid", w.pid()))
	return w, nil
}

// Close waits for in-flight tasks and shuts every worker down.
func (p *Processes) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.tasks.Wait()

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, w := range idle {
		if err := w.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type worker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	bw    *bufio.Writer
	enc   *msgpack.Encoder
	dec   *msgpack.Decoder

	waitOnce sync.Once
	waitErr  error
}

func (w *worker) pid() int {
	if w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

func (w *worker) call(ctx context.Context, req request) (response, error) {
	if err := w.enc.Encode(req); err != nil {
		return response{}, fmt.Errorf("sending request: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return response{}, fmt.Errorf("sending request: %w", err)
	}

	type result struct {
		resp response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var resp response
		err := w.dec.Decode(&resp)
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		// Unblock the reader before returning.
		w.signal()
		<-done
		return response{}, context.Cause(ctx)
	case res := <-done:
		if res.err != nil {
			return response{}, fmt.Errorf("reading response: %w", res.err)
		}
		if res.resp.ID != req.ID {
			return response{}, fmt.Errorf("response %d does not match request %d", res.resp.ID, req.ID)
		}
		return res.resp, nil
	}
}

func (w *worker) signal() {
	if pid := w.pid(); pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func (w *worker) kill() {
	w.signal()
	_ = w.wait()
}

// stop closes the request stream; the worker exits once it sees EOF.
func (w *worker) stop() error {
	_ = w.stdin.Close()
	return w.wait()
}

func (w *worker) wait() error {
	w.waitOnce.Do(func() { w.waitErr = w.cmd.Wait() })
	return w.waitErr
}
