package agent

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"

	"github.com/moffa90/go-pldm/device"
	"github.com/moffa90/go-pldm/fwpkg"
	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/transport"
)

// runUpdate updates a MemoryOps FD with pkg over an in-memory pipe and
// returns both ends once the agent finished and the FD is back in Idle.
func runUpdate(t *testing.T, pkg *fwpkg.Package, mem *device.MemoryOps, opts ...Option) (*Agent, *device.FD, error) {
	t.Helper()
	fdSock, uaSock := transport.Pipe()

	fd := device.New(mem,
		device.WithLogger(testr.New(t).WithName("fd")),
		device.WithMetrics(false),
		device.WithPollInterval(2*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := device.NewService(fd, fdSock).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("service Run() error = %v", err)
		}
	}()

	opts = append([]Option{
		WithLogger(testr.New(t)),
		WithMetrics(false),
		WithResponseTimeout(time.Second),
	}, opts...)
	ua := New(uaSock, pkg, opts...)
	err := ua.Run(ctx)

	// Let the FD process the last message before the pipe goes away.
	deadline := time.Now().Add(time.Second)
	for fd.State() != fwupdate.StateIdle && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	uaSock.Close()
	wg.Wait()
	return ua, fd, err
}

func TestUpdateMemoryDevice(t *testing.T) {
	pkg := testPackage(200)
	mem := device.NewMemoryOps(testDescriptors(), testParams(1))

	var mu sync.Mutex
	var phases []string
	ua, fd, err := runUpdate(t, pkg, mem, WithProgressCallback(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := ua.State(); got != StateDone {
		t.Errorf("agent State() = %s, want %s", got, StateDone)
	}
	if got := ua.DiscoveryState(); got != DiscoveryDone {
		t.Errorf("agent DiscoveryState() = %s, want %s", got, DiscoveryDone)
	}
	st := fd.Status()
	if st.State != fwupdate.StateIdle || st.Reason != fwupdate.ReasonActivateFw {
		t.Errorf("FD status = %v/%v, want Idle/ActivateFw", st.State, st.Reason)
	}
	if fd.TID() != 1 {
		t.Errorf("FD TID = %d, want 1", fd.TID())
	}

	img, ok := mem.Image(fwupdate.ClassFirmware, 1, 0)
	if !ok {
		t.Fatal("FD holds no image for component 1")
	}
	if !bytes.Equal(img, pkg.Components[0].Data) {
		t.Errorf("FD image differs from the package image (%d bytes, want %d)", len(img), len(pkg.Components[0].Data))
	}

	want := []string{PhaseDiscovery, PhaseIdentify, PhaseLearn, PhaseDownload, PhaseVerify, PhaseApply, PhaseActivate, PhaseComplete}
	mu.Lock()
	defer mu.Unlock()
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %s, want %s", i, phases[i], want[i])
		}
	}
}

func TestUpdateMemoryDeviceUpToDate(t *testing.T) {
	params := testParams(1)
	params.Components[0].ActiveComparisonStamp = 2
	mem := device.NewMemoryOps(testDescriptors(), params)

	_, fd, err := runUpdate(t, testPackage(64), mem, WithDiscoveryActions(SkipDiscovery{}))
	if !errors.Is(err, ErrNothingToUpdate) {
		t.Fatalf("Run() error = %v, want ErrNothingToUpdate", err)
	}
	if fd.State() != fwupdate.StateIdle {
		t.Errorf("FD State() = %v, want Idle", fd.State())
	}
}

func TestUpdateMemoryDeviceVerifyFailure(t *testing.T) {
	mem := device.NewMemoryOps(testDescriptors(), testParams(1),
		device.WithVerifier(func(fwupdate.FirmwareComponent, []byte) fwupdate.VerifyResult {
			return fwupdate.VerifyErrorVerificationFailure
		}),
	)

	ua, fd, err := runUpdate(t, testPackage(100), mem, WithDiscoveryActions(SkipDiscovery{}))
	var failed *ComponentFailedError
	if !errors.As(err, &failed) || failed.Phase != PhaseVerify {
		t.Fatalf("Run() error = %v, want a verify failure", err)
	}
	if ua.State() != StateDone {
		t.Errorf("agent State() = %s, want %s", ua.State(), StateDone)
	}

	// The FD returns to Idle once VerifyComplete is acknowledged.
	if st := fd.Status(); st.State != fwupdate.StateIdle || st.Reason != fwupdate.ReasonVerifyTimeout {
		t.Errorf("FD status = %v/%v, want Idle/VerifyTimeout", st.State, st.Reason)
	}
	if _, ok := mem.Image(fwupdate.ClassFirmware, 1, 0); ok {
		t.Error("FD activated an image that failed verification")
	}
}

func TestRunCancelled(t *testing.T) {
	fdSock, uaSock := transport.Pipe()
	defer fdSock.Close()

	ua := New(uaSock, testPackage(16),
		WithLogger(testr.New(t)),
		WithMetrics(false),
		WithDiscoveryActions(SkipDiscovery{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ua.Run(ctx) }()

	// Nobody answers; wait for the first request, then give up.
	if _, err := fdSock.Receive(context.Background()); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want ErrCancelled wrapping context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
