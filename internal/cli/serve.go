package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/loopviz/webui"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const serveShutdownTimeout = 10 * time.Second

// ServeOptions holds the flags of the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	Open   bool
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   `serve`,
		Short: `Serve the visualizer in a web browser`,
		Long: `Serve a web view of the visualizer, until interrupted. Every browser
connected shares the same event list, and is updated as events fire.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Listen, `listen`, `l`, ``, `listen address (default "127.0.0.1:8080")`)
	cmd.Flags().BoolVar(&opts.Open, `open`, false, `open the view in the default browser`)

	return cmd
}

func serve(cmd *cobra.Command, opts *ServeOptions) (err error) {
	e, err := newEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	addr := e.cfg.Listen
	if opts.Listen != `` {
		addr = opts.Listen
	}

	server, err := webui.New(e.viz, webui.WithLogger(e.logger))
	if err != nil {
		return WrapExitError(ExitCommandError, `failed to create server`, err)
	}

	ln, err := net.Listen(`tcp`, addr)
	if err != nil {
		return WrapExitError(ExitCommandError, `failed to listen`, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := `http://` + ln.Addr().String() + `/`
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", url)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, ln, serveShutdownTimeout)
	})
	if opts.Open {
		g.Go(func() error {
			if err := browser.OpenURL(url); err != nil {
				e.logger.Warning().Err(err).Str(`url`, url).Log(`failed to open browser`)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf(`serve: %w`, err)
	}
	return nil
}
