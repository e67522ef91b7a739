// Command cbrun inspects callback guests, builds interface metadata and calls
// guest methods from the command line.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/callback-runtime/config"
	"github.com/wippyai/callback-runtime/metadata"
	"github.com/wippyai/callback-runtime/runtime"
)

type app struct {
	cfgPath  string
	logLevel string
	logFile  string

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cbrun",
		Short:         "Drive callback interfaces implemented by wasm guests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")
	pf.StringVar(&a.logFile, "log-file", "", "rotated log file (overrides config)")

	root.AddCommand(
		a.inspectCmd(),
		a.metaCmd(),
		a.callCmd(),
		a.interactiveCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg := config.Default()
	if a.cfgPath != "" {
		loaded, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFile != "" {
		cfg.Log.File = a.logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [guest.wasm]",
		Short: "Check a guest against the callback ABI and list its exports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Guest.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no guest given")
			}

			ctx := cmd.Context()
			rt, err := runtime.New(ctx, a.cfg.Runtime(a.logger, nil))
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			mod, err := rt.LoadGuestFile(ctx, path)
			if err != nil {
				return err
			}
			inst, err := mod.Instantiate(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Guest: %s\n", path)
			fmt.Fprintf(out, "Memory: %d bytes\n", inst.MemorySize())
			fmt.Fprintf(out, "\nExports:\n")
			for _, name := range mod.Exports() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}

func (a *app) metaCmd() *cobra.Command {
	t := &target{}
	var verify string
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Build interface metadata from a WIT signature file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			iface, err := t.loadInterface()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if verify != "" {
				buf, err := hex.DecodeString(verify)
				if err != nil {
					return err
				}
				reg := metadata.NewRegistry()
				if err := reg.Add(iface); err != nil {
					return err
				}
				if _, err := reg.Verify(buf); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: metadata matches\n", iface.QualifiedName())
				return nil
			}

			printInterface(out, iface)
			return nil
		},
	}
	addInterfaceFlags(cmd, t)
	cmd.Flags().StringVar(&verify, "verify", "", "hex metadata buffer to check against the WIT file")
	return cmd
}

func (a *app) callCmd() *cobra.Command {
	t := &target{}
	cmd := &cobra.Command{
		Use:   "call METHOD [ARGS...]",
		Short: "Invoke one method on a guest-owned handle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, a.cfg, a.logger, t)
			if err != nil {
				return err
			}
			result, callErr := s.call(ctx, args[0], args[1:])
			closeErr := s.close(context.WithoutCancel(ctx))
			if callErr != nil {
				return callErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return closeErr
		},
	}
	addInterfaceFlags(cmd, t)
	addGuestFlags(cmd, t)
	return cmd
}

func (a *app) interactiveCmd() *cobra.Command {
	t := &target{}
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Pick methods and enter arguments in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal; use call instead")
			}
			return runInteractive(cmd.Context(), a.cfg, a.logger, t)
		},
	}
	addInterfaceFlags(cmd, t)
	addGuestFlags(cmd, t)
	return cmd
}

func addInterfaceFlags(cmd *cobra.Command, t *target) {
	f := cmd.Flags()
	f.StringVar(&t.wit, "wit", "", "file with one `name: func(...)` signature per line")
	f.StringVar(&t.module, "module", "app", "module path of the interface")
	f.StringVar(&t.name, "name", "", "interface name (default: WIT file name)")
}

func addGuestFlags(cmd *cobra.Command, t *target) {
	f := cmd.Flags()
	f.StringVar(&t.guest, "guest", "", "guest wasm file (default: guest.path)")
	f.Uint64Var(&t.handle, "handle", 1, "guest handle to call")
}

func printInterface(out io.Writer, iface *metadata.Interface) {
	fmt.Fprintf(out, "Interface: %s\n", iface.QualifiedName())
	fmt.Fprintf(out, "Checksum: %#04x\n\n", metadata.Checksum(iface))

	fmt.Fprintf(out, "Methods:\n")
	for i, m := range iface.Methods() {
		idx, _ := iface.MethodIndex(m.Name)
		sum, _ := metadata.MethodChecksum(iface, idx)
		fmt.Fprintf(out, "  [%d] %s  %#04x\n", i+1, signature(m), sum)
	}

	fmt.Fprintf(out, "\nMetadata: %s\n", hex.EncodeToString(metadata.Encode(iface)))
	fmt.Fprintf(out, "Type ID: %s\n", hex.EncodeToString(metadata.TypeIDMeta(iface.ModulePath(), iface.Name())))
}

func signature(m metadata.Method) string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.Name + ": " + p.Type.String()
	}
	s := m.Name + "(" + strings.Join(params, ", ") + ")"
	if m.Return.Code != metadata.TypeUnit {
		s += " -> " + m.Return.String()
	}
	if m.Throws != nil {
		s += " throws " + m.Throws.String()
	}
	return s
}
