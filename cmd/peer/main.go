package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elijahnyp/casa_inteligente/peer"
	"github.com/elijahnyp/casa_inteligente/util"
)

var Commit string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "casa-peer",
	Short: "Simulate the door and light controller listening on the command topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		util.LogInit(util.Config.GetString("log_level"), util.Config.GetString("log_format"))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := peer.Options{
			Broker:         util.Config.GetString("broker_uri"),
			Topic:          util.Config.GetString("peer_topic"),
			ClientID:       util.Config.GetString("peer_client_id"),
			Username:       util.Config.GetString("username"),
			Password:       util.Config.GetString("password"),
			InitialBackoff: time.Duration(util.Config.GetInt("peer_retry_ms")) * time.Millisecond,
		}
		util.Logger.Info().Msgf("peer %s listening on %s at %s", opts.ClientID, opts.Topic, opts.Broker)
		return peer.Run(ctx, opts, &peer.LogActuator{})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Commit)
	},
}

func init() {
	util.Config.SetDefault("broker_uri", "tcp://broker.hivemq.com:1883")
	util.Config.SetDefault("peer_topic", "cmqtt_a")
	util.Config.SetDefault("peer_client_id", peer.DefaultClientID)
	util.Config.SetDefault("peer_retry_ms", 5000)
	util.Config.SetDefault("log_level", "info")
	util.Config.SetDefault("log_format", "console")
	util.Config.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("broker", "", "broker URI, e.g. tcp://localhost:1883")
	flags.String("topic", "", "command topic to subscribe to")
	flags.String("client-id", "", "MQTT client id")
	flags.String("log-level", "", "trace, debug, info, warn or error")
	flags.Int("retry-ms", 0, "initial reconnect delay in milliseconds")

	for key, flag := range map[string]string{
		"broker_uri":     "broker",
		"peer_topic":     "topic",
		"peer_client_id": "client-id",
		"log_level":      "log-level",
		"peer_retry_ms":  "retry-ms",
	} {
		if err := util.Config.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(versionCmd)
}
