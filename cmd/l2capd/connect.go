package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/hci/controller"
	"github.com/rigado/l2cap/le"
	"github.com/urfave/cli"
)

func cmdConnect(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("connect needs exactly one address", 2)
	}
	at := hci.AddressTypePublic
	if c.Bool("random") {
		at = hci.AddressTypeRandom
	}
	peer, err := hci.NewPeerIdentity(c.Args().First(), at)
	if err != nil {
		return err
	}

	log := l2cap.GetLogger().ChildLogger(map[string]interface{}{"peer": peer.String()})
	opts := []l2cap.Option{l2cap.OptLogger(l2cap.GetLogger())}
	if path := c.GlobalString("config"); path != "" {
		opts = append(opts, l2cap.OptConfigFile(path))
	}

	// closed last so close callbacks posted during shutdown still run
	user := l2cap.NewHandler("l2capd")
	defer user.Close()

	skt, err := openTransport(c, l2cap.GetLogger())
	if err != nil {
		return errors.Wrap(err, "can't open transport")
	}

	ctrl, err := controller.New(skt, opts...)
	if err != nil {
		skt.Close()
		return err
	}
	defer ctrl.Close()
	if err := ctrl.Init(); err != nil {
		return errors.Wrap(err, "can't init controller")
	}

	mod, err := le.New(ctrl, opts...)
	if err != nil {
		return err
	}
	defer mod.Close()

	failed := make(chan l2cap.ConnectionResult, 1)
	onOpen := func(ch l2cap.FixedChannel) {
		log.Infof("fixed channel 0x%04X open", ch.CID())
		ch.Acquire()
		ch.RegisterOnCloseCallback(user, func(status hci.ErrorCode) {
			log.Infof("fixed channel 0x%04X closed: %s", ch.CID(), status)
		})
	}

	fcm := mod.FixedChannelManager()
	for _, cid := range []uint16{l2cap.CidAtt, l2cap.CidSmp} {
		if _, err := fcm.RegisterService(cid, user, onOpen); err != nil {
			return errors.Wrapf(err, "can't register cid 0x%04X", cid)
		}
	}

	if !fcm.ConnectServices(peer, user, func(r l2cap.ConnectionResult) {
		select {
		case failed <- r:
		default:
		}
	}) {
		return le.ErrClosed
	}
	log.Info("connecting")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	var timeout <-chan time.Time
	if d := c.Duration("wait"); d > 0 {
		timeout = time.After(d)
	}

	select {
	case r := <-failed:
		return cli.NewExitError("connect failed: "+r.String(), 1)
	case s := <-sig:
		log.Infof("%v, shutting down", s)
	case <-timeout:
		log.Info("done waiting")
	}
	return nil
}
