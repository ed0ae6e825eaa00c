package cli

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/InboxRelay/internal/mq"
)

// EnvelopeView — представление доставки для вывода.
type EnvelopeView struct {
	MessageID   string `json:"message_id"`
	RoutingKey  string `json:"routing_key"`
	Redelivered bool   `json:"redelivered"`
	Raw         bool   `json:"raw"`
	Value       any    `json:"value"`
}

func newEnvelopeView(env *mq.Envelope) EnvelopeView {
	return EnvelopeView{
		MessageID:   env.MessageID,
		RoutingKey:  env.RoutingKey,
		Redelivered: env.Redelivered,
		Raw:         env.Raw,
		Value:       env.Value,
	}
}

// NewConsumeCmd создаёт команду чтения сообщений из топологии.
func NewConsumeCmd(deps Deps) *cobra.Command {
	var flags topologyFlags
	var count int

	cmd := &cobra.Command{
		Use:   "consume TOPOLOGY",
		Short: "Read messages from a topology and acknowledge them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			topo, err := flags.build(args[0], cmd.Flags().Changed)
			if err != nil {
				return err
			}

			broker, err := deps.Broker(cmd.Context())
			if err != nil {
				return err
			}

			// брокер не должен отдавать больше, чем команда прочитает:
			// лишние доставки вернутся в очередь только после Cancel
			var opts []mq.ConsumerOption
			if count > 0 {
				opts = append(opts, mq.WithPrefetch(count))
			}

			stream, err := broker.NewConsumer(opts...).Consume(cmd.Context(), topo)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := stream.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			out := deps.Output()
			for received := 0; count == 0 || received < count; received++ {
				env, err := stream.Next(cmd.Context())
				if errors.Is(err, mq.ErrStreamClosed) {
					return nil
				}
				if err != nil {
					return err
				}

				printEnvelope(out, env)
				if err := env.Ack(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", "direct", "Topology mode: direct or exchange")
	cmd.Flags().StringVar(&flags.kind, "kind", "direct", "Exchange kind in exchange mode")
	cmd.Flags().BoolVar(&flags.durable, "durable", true, "Declare durable topology")
	cmd.Flags().BoolVar(&flags.exclusive, "exclusive", false, "Declare exclusive queue")
	cmd.Flags().IntVar(&count, "count", 1, "Number of messages to read (0 = until interrupted)")

	return cmd
}

func printEnvelope(out *Output, env *mq.Envelope) {
	view := newEnvelopeView(env)
	out.Stream(
		[]string{"MESSAGE ID", "ROUTING KEY", "RAW", "BODY"},
		[]string{view.MessageID, view.RoutingKey, strconv.FormatBool(view.Raw), string(env.Body)},
		view,
	)
}
