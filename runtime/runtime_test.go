package runtime

import (
	"context"
	stderrors "errors"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/codec"
	"github.com/wippyai/callback-runtime/errors"
	"github.com/wippyai/callback-runtime/foreign"
	"github.com/wippyai/callback-runtime/metadata"
	"github.com/wippyai/callback-runtime/proxy"
	"github.com/wippyai/callback-runtime/testbed"
)

func newRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestRuntime_HostRoundTrip(t *testing.T) {
	rt := newRuntime(t, Config{})
	ctx := context.Background()

	h, err := rt.Host().Register(foreign.Methods{
		foreign.Method1(codec.Int32, codec.Int32, func(_ context.Context, n int32) (int32, error) {
			return n * 2, nil
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	p := rt.NewProxy(h)
	v, err := proxy.Invoke(ctx, p, 0, codec.Int32, func(w *codec.Writer) { w.WriteI32(21) })
	if err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}

	if rt.LiveProxies() != 1 {
		t.Fatalf("live proxies = %d", rt.LiveProxies())
	}
	_ = p.Close()
	if rt.LiveProxies() != 0 {
		t.Fatal("closed proxy still tracked")
	}
	if rt.Host().Registry().Len() != 0 {
		t.Fatal("foreign object not released by free")
	}
}

func TestRuntime_CloseFreesLiveProxies(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, Config{})
	if err != nil {
		t.Fatal(err)
	}

	var handles []callbackrt.Handle
	for i := 0; i < 3; i++ {
		h, _ := rt.Host().Register(foreign.Methods{})
		handles = append(handles, h)
	}
	p0 := rt.NewProxy(handles[0])
	p1 := rt.NewProxy(handles[1])
	_ = p0.Close()

	if err := rt.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p1.Closed() {
		t.Error("live proxy not closed by runtime")
	}
	if rt.Host().Registry().Len() != 0 {
		t.Error("unreferenced foreign object survived Close")
	}

	if _, err := p1.Call(ctx, 0, nil); !errors.IsUseAfterFree(err) {
		t.Fatalf("expected use after free, got %v", err)
	}

	late := rt.NewProxy(handles[2])
	if !late.Closed() {
		t.Error("proxy created after Close is live")
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRuntime_CleanupFreesLeakedProxy(t *testing.T) {
	rt := newRuntime(t, Config{Cleanup: true})

	h, _ := rt.Host().Register(foreign.Methods{})
	func() {
		p := rt.NewProxy(h)
		_ = p.Handle()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rt.Host().Registry().Len() != 0 || rt.LiveProxies() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("leaked proxy not freed: registered=%d live=%d",
				rt.Host().Registry().Len(), rt.LiveProxies())
		}
		goruntime.GC()
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRuntime_CleanupKeepsReachableProxy(t *testing.T) {
	rt := newRuntime(t, Config{Cleanup: true})
	ctx := context.Background()

	h, _ := rt.Host().Register(foreign.Methods{
		foreign.Method0(codec.Unit, func(context.Context) (struct{}, error) { return struct{}{}, nil }),
	})
	p := rt.NewProxy(h)
	for i := 0; i < 3; i++ {
		goruntime.GC()
	}
	if err := proxy.InvokeVoid(ctx, p, 0, nil); err != nil {
		t.Fatalf("reachable proxy broken by GC: %v", err)
	}

	if err := rt.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if !p.Closed() {
		t.Error("weakly tracked proxy not closed by runtime Close")
	}
}

func TestRuntime_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := newRuntime(t, Config{Metrics: reg})

	h, _ := rt.Host().Register(foreign.Methods{
		foreign.Method0(codec.Unit, func(context.Context) (struct{}, error) { return struct{}{}, nil }),
	})
	p := rt.NewProxy(h)
	for i := 0; i < 3; i++ {
		if err := proxy.InvokeVoid(context.Background(), p, 0, nil); err != nil {
			t.Fatal(err)
		}
	}
	_ = p.Close()

	if n := testutil.CollectAndCount(reg, "callback_invoker_calls_total"); n != 2 {
		t.Fatalf("series = %d, want success and free", n)
	}
}

type counter struct {
	total int64
}

func (c *counter) Add(n int64) int64 {
	c.total += n
	return c.total
}

func (c *counter) Label(ctx context.Context, prefix *string) (string, error) {
	if prefix != nil && *prefix == "" {
		return "", stderrors.New("empty prefix")
	}
	if prefix == nil {
		return "total", nil
	}
	return *prefix + ":total", nil
}

func (c *counter) Reset() {
	c.total = 0
}

const counterWIT = `
	add: func(n: s64) -> s64;
	label: func(prefix: option<string>) -> result<string, string>;
	reset: func();
`

func TestRuntime_RegisterImpl(t *testing.T) {
	rt := newRuntime(t, Config{})
	ctx := context.Background()

	iface, err := rt.DefineWIT("test", "Counter", counterWIT)
	if err != nil {
		t.Fatal(err)
	}
	impl := &counter{}
	h, err := rt.RegisterImpl(iface, impl)
	if err != nil {
		t.Fatal(err)
	}
	p := rt.NewProxy(h, proxy.WithInterface(iface))

	for _, n := range []int64{5, 7} {
		args, _ := codec.Lower(codec.Int64, n)
		if _, err := p.CallByName(ctx, "add", args); err != nil {
			t.Fatal(err)
		}
	}
	if impl.total != 12 {
		t.Fatalf("total = %d", impl.total)
	}

	prefix := "n"
	args, _ := codec.Lower(codec.Optional(codec.String), &prefix)
	out, err := p.CallByName(ctx, "label", args)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := codec.Lift(codec.String, out); s != "n:total" {
		t.Fatalf("label = %q", s)
	}

	empty := ""
	args, _ = codec.Lower(codec.Optional(codec.String), &empty)
	_, err = p.CallByName(ctx, "label", args)
	msg, ok, _ := proxy.ErrorAs(err, codec.String)
	if !ok || msg != "empty prefix" {
		t.Fatalf("error result = %q, %v (err %v)", msg, ok, err)
	}

	if _, err := p.CallByName(ctx, "reset", nil); err != nil {
		t.Fatal(err)
	}
	if impl.total != 0 {
		t.Fatal("reset not dispatched")
	}

	// trailing bytes are an unexpected failure, not a silent success
	if _, err := p.CallByName(ctx, "reset", []byte{1}); !errors.IsUnexpected(err) {
		t.Fatalf("expected unexpected failure, got %v", err)
	}
}

type wrongCounter struct{}

func (wrongCounter) Add(n string) int64 { return 0 }

func TestBind_Errors(t *testing.T) {
	iface, err := metadata.ParseWIT("test", "Counter", counterWIT)
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]any{
		"nil":            nil,
		"missing method": struct{}{},
		"wrong param":    wrongCounter{},
	}
	for name, impl := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Bind(iface, impl); err == nil {
				t.Fatal("expected bind error")
			}
		})
	}

	_, err = Bind(iface, struct{}{})
	if !strings.Contains(err.Error(), "Add") {
		t.Errorf("error does not name the Go method: %v", err)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"get-value":  "getvalue",
		"GetValue":   "getvalue",
		"get_value":  "getvalue",
		"HTTPServer": "httpserver",
	}
	for in, want := range tests {
		if got := normalizeName(in); got != want {
			t.Errorf("normalizeName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := toPascalCase("get-http_url"); got != "GetHttpUrl" {
		t.Errorf("toPascalCase = %q", got)
	}
}

func TestRuntime_Guest(t *testing.T) {
	rt := newRuntime(t, Config{})
	ctx := context.Background()

	mod, err := rt.LoadGuest(ctx, testbed.EchoGuest)
	if err != nil {
		t.Fatal(err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}

	p := inst.NewProxy(42)
	s, err := proxy.Invoke(ctx, p, testbed.EchoMethodOK-1, codec.String, func(w *codec.Writer) {
		w.WriteString("through the guest")
	})
	if err != nil || s != "through the guest" {
		t.Fatalf("got %q, %v", s, err)
	}

	_, err = proxy.Invoke(ctx, p, testbed.EchoMethodError-1, codec.String, func(w *codec.Writer) {
		w.WriteString("boom")
	})
	if msg, ok, _ := proxy.ErrorAs(err, codec.String); !ok || msg != "boom" {
		t.Fatalf("error result = %q, %v (err %v)", msg, ok, err)
	}

	if err := proxy.InvokeVoid(ctx, p, testbed.EchoMethodTrap-1, nil); !errors.IsUnexpected(err) {
		t.Fatalf("expected unexpected failure, got %v", err)
	}
}

func TestRuntime_LoadGuestErrors(t *testing.T) {
	rt := newRuntime(t, Config{})
	ctx := context.Background()

	if _, err := rt.LoadGuest(ctx, []byte{0, 1, 2}); err == nil {
		t.Error("garbage accepted")
	}
	if _, err := rt.LoadGuestFile(ctx, "does-not-exist.wasm"); err == nil {
		t.Error("missing file accepted")
	}

	_ = rt.Close(ctx)
	if _, err := rt.LoadGuest(ctx, testbed.EchoGuest); err == nil {
		t.Error("load after Close succeeded")
	}
}
