package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	callbackrt "github.com/wippyai/callback-runtime"
	"github.com/wippyai/callback-runtime/config"
	"github.com/wippyai/callback-runtime/metadata"
	"github.com/wippyai/callback-runtime/proxy"
	"github.com/wippyai/callback-runtime/runtime"
)

// target names a guest, the interface it implements and the handle to call.
type target struct {
	guest  string
	wit    string
	module string
	name   string
	handle uint64
}

func (t *target) interfaceName() string {
	if t.name != "" {
		return t.name
	}
	base := strings.TrimSuffix(filepath.Base(t.wit), filepath.Ext(t.wit))
	return toPascalCase(base)
}

func (t *target) loadInterface() (*metadata.Interface, error) {
	if t.wit == "" {
		return nil, fmt.Errorf("--wit is required")
	}
	text, err := os.ReadFile(t.wit)
	if err != nil {
		return nil, err
	}
	return metadata.ParseWIT(t.module, t.interfaceName(), string(text))
}

// session is a guest instance with one proxy over the target handle.
type session struct {
	rt       *runtime.Runtime
	inst     *runtime.Instance
	proxy    *proxy.Proxy
	iface    *metadata.Interface
	registry *prometheus.Registry
	logger   *zap.Logger
}

func openSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, t *target) (*session, error) {
	iface, err := t.loadInterface()
	if err != nil {
		return nil, err
	}
	guest := t.guest
	if guest == "" {
		guest = cfg.Guest.Path
	}
	if guest == "" {
		return nil, fmt.Errorf("no guest given; pass --guest or set guest.path")
	}

	reg := prometheus.NewRegistry()
	rt, err := runtime.New(ctx, cfg.Runtime(logger, reg))
	if err != nil {
		return nil, err
	}
	if err := rt.Define(iface); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	mod, err := rt.LoadGuestFile(ctx, guest)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	return &session{
		rt:       rt,
		inst:     inst,
		proxy:    inst.NewProxy(callbackrt.Handle(t.handle), proxy.WithInterface(iface)),
		iface:    iface,
		registry: reg,
		logger:   logger,
	}, nil
}

// call invokes a method by name with textual arguments and renders the result.
func (s *session) call(ctx context.Context, method string, texts []string) (string, error) {
	idx, ok := s.iface.MethodIndex(method)
	if !ok {
		return "", fmt.Errorf("%s has no method %q", s.iface.QualifiedName(), method)
	}
	m, _ := s.iface.Method(idx)

	args, err := encodeArgs(m, texts)
	if err != nil {
		return "", err
	}
	out, err := s.proxy.CallByName(ctx, method, args)
	if err != nil {
		return "", fmt.Errorf("%s", describeError(m, err))
	}
	return decodeValue(m.Return, out)
}

// close frees the proxy and tears the runtime down.
func (s *session) close(ctx context.Context) error {
	err := s.rt.Close(ctx)
	s.logMetrics()
	return err
}

func (s *session) logMetrics() {
	families, err := s.registry.Gather()
	if err != nil {
		s.logger.Warn("gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("metric", mf.GetName())}
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			if c := m.GetCounter(); c != nil {
				fields = append(fields, zap.Float64("value", c.GetValue()))
			}
			if h := m.GetHistogram(); h != nil {
				fields = append(fields, zap.Uint64("count", h.GetSampleCount()), zap.Float64("sum", h.GetSampleSum()))
			}
			s.logger.Info("metric", fields...)
		}
	}
}

func toPascalCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
