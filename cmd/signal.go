package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridready/config"
	"github.com/kilianp07/gridready/infra/logger"
	"github.com/kilianp07/gridready/infra/mqtt"
)

var (
	signalCurrent   float64
	signalForecast  float64
	signalBlock     int
	signalGen       float64
	signalScheduled float64
	signalReason    string
)

var signalCmd = &cobra.Command{
	Use:       "signal <plant_id> <weather|deviation|curtailment>",
	Short:     "Publish a test signal on the MQTT broker",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{mqtt.KindWeather, mqtt.KindDeviation, mqtt.KindCurtailment},
	RunE:      publishSignal,
}

func init() {
	f := signalCmd.Flags()
	f.Float64Var(&signalCurrent, "current", 0, "current weather value")
	f.Float64Var(&signalForecast, "forecast", 0, "forecast weather value")
	f.IntVar(&signalBlock, "block", 0, "15-minute block (1-96), defaults to the current block")
	f.Float64Var(&signalGen, "generation", 0, "actual generation in MW")
	f.Float64Var(&signalScheduled, "scheduled", 0, "scheduled generation in MW")
	f.StringVar(&signalReason, "reason", "", "curtailment reason")
	rootCmd.AddCommand(signalCmd)
}

func publishSignal(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	plantID, kind := args[0], args[1]

	var payload any
	now := time.Now().UTC()
	switch kind {
	case mqtt.KindWeather:
		payload = map[string]any{"current": signalCurrent, "forecast": signalForecast, "observed_at": now}
	case mqtt.KindDeviation:
		payload = map[string]any{"block": signalBlock, "generation": signalGen, "scheduled": signalScheduled, "observed_at": now}
	case mqtt.KindCurtailment:
		payload = map[string]any{"active": true, "reason": signalReason, "observed_at": now}
	default:
		return fmt.Errorf("unknown signal kind %q", kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	mcfg := cfg.MQTT
	mcfg.ClientID += "-cli"
	client, err := mqtt.Connect(mcfg, logger.New("signal-command"))
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	topic := mqtt.SignalTopic(mcfg.TopicPrefix, plantID, kind)
	if err := client.Publish(topic, data, mcfg.QoS); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", topic)
	return nil
}
