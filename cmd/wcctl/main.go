// Command wcctl checks and reserves the WC from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"wc-reservation-backend/internal/client"
	"wc-reservation-backend/internal/gateway"
)

func main() {
	app := &cli.App{
		Name:  "wcctl",
		Usage: "check and reserve the WC",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Value:   "ws://localhost:5000/ws",
				Usage:   "gateway websocket URL",
				EnvVars: []string{"WC_URL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "how long to wait for an answer",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "show who is inside and the recent visits",
				Action: status,
			},
			{
				Name:   "reserve",
				Usage:  "take the WC",
				Flags:  []cli.Flag{userFlag()},
				Action: request(gateway.EventReserve, gateway.EventReserved),
			},
			{
				Name:   "release",
				Usage:  "give the WC back",
				Flags:  []cli.Flag{userFlag()},
				Action: request(gateway.EventRelease, gateway.EventReleasedSuccess),
			},
			{
				Name:   "watch",
				Usage:  "follow status changes until interrupted",
				Action: watch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "wcctl:", err)
		os.Exit(1)
	}
}

func userFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "your user id",
		Required: true,
		EnvVars:  []string{"WC_USER"},
	}
}

func connect(c *cli.Context) (*client.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	conn, err := client.Dial(ctx, c.String("url"))
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return conn, ctx, cancel, nil
}

func status(c *cli.Context) error {
	conn, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	if err := conn.GetStatus(); err != nil {
		return err
	}
	ev, err := conn.WaitFor(ctx, gateway.EventStatus, gateway.EventError)
	if err != nil {
		return err
	}
	if ev.Error != "" {
		return errors.New(ev.Error)
	}
	client.Render(c.App.Writer, *ev.Status, time.Now())
	return nil
}

func request(event, success string) cli.ActionFunc {
	return func(c *cli.Context) error {
		conn, ctx, cancel, err := connect(c)
		if err != nil {
			return err
		}
		defer cancel()
		defer conn.Close()

		userID := c.Int64("user")
		if event == gateway.EventReserve {
			err = conn.Reserve(userID)
		} else {
			err = conn.Release(userID)
		}
		if err != nil {
			return err
		}

		ev, err := conn.WaitFor(ctx, success, gateway.EventError)
		if err != nil {
			return err
		}
		if ev.Error != "" {
			return errors.New(ev.Error)
		}
		fmt.Fprintln(c.App.Writer, "ok:", ev.Name)
		return nil
	}
}

func watch(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	conn, err := client.Dial(dialCtx, c.String("url"))
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.GetStatus(); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return conn.Err()
			}
			if ev.Status != nil {
				fmt.Fprintln(c.App.Writer)
				client.Render(c.App.Writer, *ev.Status, time.Now())
				continue
			}
			client.RenderEvent(c.App.Writer, ev)
		case <-ctx.Done():
			return nil
		}
	}
}
