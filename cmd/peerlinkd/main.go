// Command peerlinkd is a minimal demonstration binary for the peer
// session engine: a stand-in for the GUI shell spec.md places out of
// scope (§1). It starts the engine on the -bind address, sends Shutdown
// on SIGINT/SIGTERM, and logs whatever comes back on the notification
// channel; it reads no commands from stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kestrel-labs/peerlink/pkg/peerlink/definition"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/engine"
	"github.com/kestrel-labs/peerlink/pkg/peerlink/types"
)

func main() {
	bindAddr := flag.String("bind", "127.0.0.1:9100", "address to listen on, host:port")
	name := flag.String("name", "peerlinkd", "display name sent to peers during the handshake")
	flag.Parse()

	log := definition.NewLogger(logrus.StandardLogger())
	metrics := definition.NewMetrics(prometheus.NewRegistry())

	commands := make(chan types.Command, 16)
	notifications := make(chan types.Notification, 16)

	identity := types.PeerIdentity{Name: *name, BackendVersion: "0.1.0"}
	e := engine.New(commands, notifications, log, metrics, identity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go e.Run(ctx)
	go logNotifications(log, notifications)

	commands <- types.FrontendReady{BindAddr: *bindAddr}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Fprintln(os.Stderr, "shutting down")
	commands <- types.Shutdown{}
	close(commands)
}

func logNotifications(log definition.Logger, notifications <-chan types.Notification) {
	for n := range notifications {
		log.Infof("%T: %+v", n, n)
	}
}
