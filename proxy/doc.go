// Package proxy implements the native side of a callback interface.
//
// A Proxy owns one foreign handle. Each method call encodes its arguments,
// crosses the boundary through an invoke.Invoker with index declared+1, and
// decodes the result. Close issues the free call (index 0) exactly once, after
// any calls still in flight have returned; later calls fail with a
// use-after-free error without reaching the foreign side.
//
// Typed bindings usually wrap a Proxy:
//
//	type Logger struct{ p *proxy.Proxy }
//
//	func (l Logger) Write(ctx context.Context, line string) error {
//		_, err := proxy.Invoke(ctx, l.p, 0, codec.Unit, func(w *codec.Writer) {
//			w.WriteString(line)
//		})
//		return err
//	}
package proxy
