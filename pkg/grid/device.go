// Package grid emulates a GPU style launch: a grid of fixed size blocks,
// each block a set of threads running the same kernel, executed on a
// persistent pool of goroutines. Launches are asynchronous; Synchronize is
// the full-device barrier and device buffers are only copied back to the
// host after it.
package grid

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	ErrInvalidLaunch = errors.New("invalid launch configuration")
	ErrSizeMismatch  = errors.New("buffer size mismatch")
	ErrFreed         = errors.New("buffer already freed")
	ErrDeviceClosed  = errors.New("device closed")
	ErrKernelFault   = errors.New("kernel fault")
)

// Dim3 is a launch extent. A zero Z is treated as 1.
type Dim3 struct {
	X, Y, Z int
}

func Dim2(x, y int) Dim3 {
	return Dim3{X: x, Y: y, Z: 1}
}

func (d Dim3) z() int {
	if d.Z == 0 {
		return 1
	}
	return d.Z
}

func (d Dim3) Size() int {
	return d.X * d.Y * d.z()
}

func (d Dim3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", d.X, d.Y, d.z())
}

// Thread identifies one computation unit inside a launch.
type Thread struct {
	BlockIdx  Dim3
	BlockDim  Dim3
	ThreadIdx Dim3
}

// Global returns the thread's x and y coordinate across the whole grid.
func (t Thread) Global() (int, int) {
	return t.BlockIdx.X*t.BlockDim.X + t.ThreadIdx.X,
		t.BlockIdx.Y*t.BlockDim.Y + t.ThreadIdx.Y
}

type Kernel func(t Thread)

// Buffer is device memory.
type Buffer struct {
	data  []byte
	freed atomic.Bool
}

func (b *Buffer) Len() int {
	return len(b.data)
}

type blockJob struct {
	run     func()
	barrier *sync.WaitGroup
}

type Device struct {
	workers   int
	workC     chan blockJob
	launchMu  sync.Mutex
	launches  sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool

	mu       sync.Mutex
	faultErr error
}

// NewDevice starts a device with the given number of workers, each acting
// as one multiprocessor. workers <= 0 uses GOMAXPROCS.
func NewDevice(workers int) *Device {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	d := &Device{
		workers: workers,
		workC:   make(chan blockJob, workers*2),
	}
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Device) worker() {
	for job := range d.workC {
		job.run()
		job.barrier.Done()
	}
}

func (d *Device) Workers() int {
	return d.workers
}

func (d *Device) Malloc(n int) (*Buffer, error) {
	if d.closed.Load() {
		return nil, ErrDeviceClosed
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative allocation %d", ErrSizeMismatch, n)
	}
	return &Buffer{data: make([]byte, n)}, nil
}

func (d *Device) Free(buf *Buffer) error {
	if buf.freed.Swap(true) {
		return ErrFreed
	}
	buf.data = nil
	return nil
}

// CopyToDevice copies host memory into buf. It waits for in-flight launches.
func (d *Device) CopyToDevice(dst *Buffer, src []byte) error {
	if err := d.Synchronize(context.Background()); err != nil {
		return err
	}
	if dst.freed.Load() {
		return ErrFreed
	}
	if len(src) != len(dst.data) {
		return fmt.Errorf("%w: host %d bytes, device %d bytes", ErrSizeMismatch, len(src), len(dst.data))
	}
	copy(dst.data, src)
	return nil
}

// CopyToHost copies buf back to host memory after all launches complete.
func (d *Device) CopyToHost(dst []byte, src *Buffer) error {
	if err := d.Synchronize(context.Background()); err != nil {
		return err
	}
	if src.freed.Load() {
		return ErrFreed
	}
	if len(dst) != len(src.data) {
		return fmt.Errorf("%w: host %d bytes, device %d bytes", ErrSizeMismatch, len(dst), len(src.data))
	}
	copy(dst, src.data)
	return nil
}

// Launch schedules kernel over grid x block threads and returns
// immediately.
func (d *Device) Launch(grid, block Dim3, kernel Kernel) error {
	if grid.Size() <= 0 || block.Size() <= 0 || kernel == nil {
		return fmt.Errorf("%w: grid %s block %s", ErrInvalidLaunch, grid, block)
	}

	// Admission and Close are serialized by launchMu.
	d.launchMu.Lock()
	if d.closed.Load() {
		d.launchMu.Unlock()
		return ErrDeviceClosed
	}
	d.launches.Add(1)
	d.launchMu.Unlock()

	go func() {
		defer d.launches.Done()
		d.runGrid(grid, block, kernel)
	}()
	return nil
}

func (d *Device) runGrid(grid, block Dim3, kernel Kernel) {
	total := grid.Size()
	workers := min(d.workers, total)

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		d.workC <- blockJob{
			run: func() {
				defer d.recoverFault()
				for {
					idx := int(next.Add(1)) - 1
					if idx >= total {
						return
					}
					runBlock(blockIndex(grid, idx), block, kernel)
				}
			},
			barrier: &wg,
		}
	}

	wg.Wait()
}

func (d *Device) recoverFault() {
	if r := recover(); r != nil {
		d.mu.Lock()
		if d.faultErr == nil {
			d.faultErr = fmt.Errorf("%w: %v", ErrKernelFault, r)
		}
		d.mu.Unlock()
	}
}

func blockIndex(grid Dim3, idx int) Dim3 {
	plane := grid.X * grid.Y
	return Dim3{
		X: idx % grid.X,
		Y: (idx % plane) / grid.X,
		Z: idx / plane,
	}
}

func runBlock(blockIdx, block Dim3, kernel Kernel) {
	t := Thread{BlockIdx: blockIdx, BlockDim: block}
	for z := 0; z < block.z(); z++ {
		for y := 0; y < block.Y; y++ {
			for x := 0; x < block.X; x++ {
				t.ThreadIdx = Dim3{X: x, Y: y, Z: z}
				kernel(t)
			}
		}
	}
}

// Synchronize blocks until every launched grid has finished. A kernel
// fault is reported once and then cleared.
func (d *Device) Synchronize(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.launches.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.faultErr
	d.faultErr = nil
	return err
}

// Close waits for pending launches and stops the workers.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.launchMu.Lock()
		d.closed.Store(true)
		d.launchMu.Unlock()
		d.launches.Wait()
		close(d.workC)
		log.Printf("Device: %d workers shut down", d.workers)
	})
}
