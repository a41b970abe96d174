// Command l2capd brings up the LE fixed channel layer on an HCI controller
// and connects the ATT and SMP fixed channels to a peer.
package main

import (
	"os"
	"time"

	"github.com/rigado/l2cap"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "l2capd"
	app.Usage = "LE fixed channel link manager"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "h4s", Usage: "h4 socket server address"},
		cli.StringFlag{Name: "h4u", Usage: "h4 uart"},
		cli.IntFlag{Name: "device", Value: -1, Usage: "hci index"},
		cli.StringFlag{Name: "config", Usage: "json config file"},
		cli.BoolFlag{Name: "verbose", Usage: "trace logging"},
	}
	app.Before = func(c *cli.Context) error {
		if c.Bool("verbose") {
			l2cap.SetLogLevelMax()
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "connect",
			Usage:     "connect the ATT and SMP fixed channels to a peer",
			ArgsUsage: "<addr>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "random", Usage: "peer uses a random address"},
				cli.DurationFlag{Name: "wait", Value: 30 * time.Second, Usage: "how long to keep the link, 0 for until interrupted"},
			},
			Action: cmdConnect,
		},
	}

	if err := app.Run(os.Args); err != nil {
		l2cap.GetLogger().Errorf("%v", err)
		os.Exit(1)
	}
}
