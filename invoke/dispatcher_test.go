package invoke

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/codec"
	"github.com/wippyai/callback-runtime/errors"
	"github.com/wippyai/callback-runtime/foreign"
)

func fixed(status callbackrt.Status, out []byte, err error) BoundaryFunc {
	return func(context.Context, callbackrt.Handle, callbackrt.MethodIndex, []byte) (callbackrt.Status, []byte, error) {
		return status, out, err
	}
}

func TestInvoke_Success(t *testing.T) {
	d := New(fixed(callbackrt.StatusSuccess, []byte{1, 2, 3}, nil))
	out, err := d.Invoke(context.Background(), 7, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "\x01\x02\x03" {
		t.Fatalf("out = %v", out)
	}
}

func TestInvoke_ErrorStatus(t *testing.T) {
	d := New(fixed(callbackrt.StatusError, []byte("payload"), nil))
	_, err := d.Invoke(context.Background(), 7, 3, nil)
	if !errors.IsDispatch(err) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	payload, ok := errors.PayloadOf(err)
	if !ok || string(payload) != "payload" {
		t.Fatalf("payload = %q, %v", payload, ok)
	}
	var e *errors.Error
	if !errors.As(err, &e) || e.Handle != 7 || e.Method != 3 {
		t.Fatalf("call site not attached: %+v", e)
	}
}

func TestInvoke_UnexpectedStatus(t *testing.T) {
	d := New(fixed(callbackrt.StatusUnexpectedFailure, []byte("guest trapped"), nil))
	_, err := d.Invoke(context.Background(), 7, 1, nil)
	if !errors.IsUnexpected(err) {
		t.Fatalf("expected unexpected failure, got %v", err)
	}
	var e *errors.Error
	if !errors.As(err, &e) || e.Detail != "guest trapped" {
		t.Fatalf("diagnostic lost: %+v", e)
	}
}

func TestInvoke_UnknownStatus(t *testing.T) {
	d := New(fixed(callbackrt.Status(9), nil, nil))
	_, err := d.Invoke(context.Background(), 7, 1, nil)
	if !errors.IsUnexpected(err) {
		t.Fatalf("expected unexpected failure, got %v", err)
	}
}

func TestInvoke_TransportError(t *testing.T) {
	cause := stderrors.New("link down")
	d := New(fixed(0, nil, cause))
	_, err := d.Invoke(context.Background(), 7, 1, nil)
	if !errors.IsUnexpected(err) {
		t.Fatalf("expected unexpected failure, got %v", err)
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("transport cause not wrapped")
	}
}

func TestInvoke_BoundaryPanic(t *testing.T) {
	d := New(BoundaryFunc(func(context.Context, callbackrt.Handle, callbackrt.MethodIndex, []byte) (callbackrt.Status, []byte, error) {
		panic("bad boundary")
	}))
	_, err := d.Invoke(context.Background(), 7, 1, nil)
	if !errors.IsUnexpected(err) {
		t.Fatalf("expected unexpected failure, got %v", err)
	}
}

func TestInvoke_RejectsReservedIndexAndZeroHandle(t *testing.T) {
	rec := NewRecorder(fixed(callbackrt.StatusSuccess, nil, nil))
	d := New(rec)

	var e *errors.Error
	_, err := d.Invoke(context.Background(), 7, callbackrt.IdxFree, nil)
	if !errors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Fatalf("index 0: %v", err)
	}
	_, err = d.Invoke(context.Background(), 0, 1, nil)
	if !errors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Fatalf("handle 0: %v", err)
	}
	if n := len(rec.Crossings()); n != 0 {
		t.Fatalf("rejected calls crossed the boundary %d times", n)
	}
}

func TestFree_SwallowsFailures(t *testing.T) {
	cases := map[string]Boundary{
		"error":     fixed(callbackrt.StatusError, []byte("x"), nil),
		"transport": fixed(0, nil, stderrors.New("gone")),
		"panic": BoundaryFunc(func(context.Context, callbackrt.Handle, callbackrt.MethodIndex, []byte) (callbackrt.Status, []byte, error) {
			panic("free panicked")
		}),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			rec := NewRecorder(b)
			New(rec).Free(context.Background(), 11)
			if rec.Count(11, callbackrt.IdxFree) != 1 {
				t.Fatalf("crossings = %+v", rec.Crossings())
			}
		})
	}
}

func TestFree_SendsEmptyArgs(t *testing.T) {
	rec := NewRecorder(fixed(callbackrt.StatusSuccess, nil, nil))
	New(rec).Free(context.Background(), 5)
	c := rec.Crossings()
	if len(c) != 1 || c[0].Handle != 5 || c[0].Method != 0 || len(c[0].Args) != 0 {
		t.Fatalf("crossings = %+v", c)
	}
}

func TestSerialized(t *testing.T) {
	var inside, peak atomic.Int32
	b := BoundaryFunc(func(context.Context, callbackrt.Handle, callbackrt.MethodIndex, []byte) (callbackrt.Status, []byte, error) {
		n := inside.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inside.Add(-1)
		return callbackrt.StatusSuccess, nil, nil
	})

	d := New(b, WithSerialized())
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := d.Invoke(context.Background(), 1, 1, nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p != 1 {
		t.Fatalf("peak concurrency = %d, want 1", p)
	}
}

func TestMaxConcurrent(t *testing.T) {
	var inside, peak, arrivals atomic.Int32
	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(3)

	b := BoundaryFunc(func(context.Context, callbackrt.Handle, callbackrt.MethodIndex, []byte) (callbackrt.Status, []byte, error) {
		n := inside.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if arrivals.Add(1) <= 3 {
			entered.Done()
		}
		<-release
		inside.Add(-1)
		return callbackrt.StatusSuccess, nil, nil
	})

	d := New(b, WithMaxConcurrent(3))
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := d.Invoke(context.Background(), 1, 1, nil)
			return err
		})
	}
	entered.Wait()
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", p)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	status := callbackrt.StatusSuccess
	d := New(BoundaryFunc(func(context.Context, callbackrt.Handle, callbackrt.MethodIndex, []byte) (callbackrt.Status, []byte, error) {
		return status, nil, nil
	}), WithMetrics(m))

	ctx := context.Background()
	_, _ = d.Invoke(ctx, 1, 2, nil)
	_, _ = d.Invoke(ctx, 1, 2, nil)
	status = callbackrt.StatusError
	_, _ = d.Invoke(ctx, 1, 2, nil)
	d.Free(ctx, 1)

	if got := testutil.ToFloat64(m.Calls(2, outcomeSuccess)); got != 2 {
		t.Errorf("success = %v", got)
	}
	if got := testutil.ToFloat64(m.Calls(2, outcomeError)); got != 1 {
		t.Errorf("error = %v", got)
	}
	if got := testutil.ToFloat64(m.Calls(0, outcomeFree)); got != 1 {
		t.Errorf("free = %v", got)
	}
}

func TestDispatcher_ThroughForeignHost(t *testing.T) {
	host := foreign.NewHost()
	defer host.Close()

	h, err := host.Register(foreign.Methods{
		foreign.Method1(codec.String, codec.String, func(_ context.Context, s string) (string, error) {
			if s == "" {
				return "", foreign.FailWith(codec.String, "empty")
			}
			return s + s, nil
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := NewRecorder(host)
	d := New(rec)
	ctx := context.Background()

	args, _ := codec.Lower(codec.String, "ab")
	out, err := d.Invoke(ctx, h, callbackrt.MethodIndexFor(0), args)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := codec.Lift(codec.String, out); s != "abab" {
		t.Fatalf("result = %q", s)
	}

	args, _ = codec.Lower(codec.String, "")
	_, err = d.Invoke(ctx, h, 1, args)
	payload, ok := errors.PayloadOf(err)
	if !ok {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	if msg, _ := codec.Lift(codec.String, payload); msg != "empty" {
		t.Fatalf("payload = %q", msg)
	}

	d.Free(ctx, h)
	d.Free(ctx, h) // second free is swallowed
	if host.Registry().Len() != 0 {
		t.Fatal("object not released")
	}
	if rec.Count(h, 0) != 2 {
		t.Fatalf("free crossings = %d", rec.Count(h, 0))
	}
}
