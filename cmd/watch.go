package cmd

import (
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/logging"
	"github.com/smazurov/castnode/internal/watch"
)

// CreateWatchCmd creates the watch command.
func CreateWatchCmd() *cobra.Command {
	var interval time.Duration
	var timeout time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "watch host:port [host:port...]",
		Short: "Check availability of streaming servers",
		Long: `Pings every given host:port and prints a line whenever a server changes availability. ` +
			`With --once a single round is run and its results printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})

			bus := events.New()
			w := watch.New(
				watch.WithInterval(interval),
				watch.WithTimeout(timeout),
				watch.WithBus(bus),
			)
			for _, arg := range args {
				host, portStr, err := net.SplitHostPort(arg)
				if err != nil {
					return fmt.Errorf("%s: %w", arg, err)
				}
				port, err := strconv.Atoi(portStr)
				if err != nil {
					return fmt.Errorf("%s: invalid port: %w", arg, err)
				}
				w.Add(host, port)
			}

			out := c.OutOrStdout()
			if once {
				if err := w.Check(c.Context()); err != nil {
					return err
				}
				for _, s := range w.Remotes() {
					fmt.Fprintf(out, "%s:%d available=%t host=%t port=%t latency=%.3fs\n",
						s.Host, s.Port, s.Available, s.HostRunning, s.PortOpen, s.Latency)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			changes := make(chan any, 16)
			unsub := events.SubscribeToChannel[events.RemoteAvailabilityEvent](bus, changes)
			defer unsub()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				w.Start(ctx)
				<-ctx.Done()
				w.Stop()
				return nil
			})
			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case ev := <-changes:
						e := ev.(events.RemoteAvailabilityEvent)
						fmt.Fprintf(out, "%s %s:%d available=%t host=%t port=%t\n",
							e.Timestamp, e.Host, e.Port, e.Available, e.HostRunning, e.PortOpen)
					}
				}
			})
			return g.Wait()
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", watch.DefaultInterval, "Time between checks")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", watch.DefaultTimeout, "Connect timeout per check")
	cmd.Flags().BoolVar(&once, "once", false, "Run one check and exit")

	return cmd
}
