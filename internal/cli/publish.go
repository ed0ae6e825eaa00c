package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ErrInvalidPayload — аргумент publish не является JSON.
var ErrInvalidPayload = errors.New("payload is not valid JSON")

// NewPublishCmd создаёт команду публикации сообщения.
func NewPublishCmd(deps Deps) *cobra.Command {
	var flags topologyFlags

	cmd := &cobra.Command{
		Use:   "publish TOPOLOGY JSON",
		Short: "Publish a JSON message to a topology",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := flags.build(args[0], cmd.Flags().Changed)
			if err != nil {
				return err
			}

			payload := json.RawMessage(args[1])
			if !json.Valid(payload) {
				return ErrInvalidPayload
			}

			broker, err := deps.Broker(cmd.Context())
			if err != nil {
				return err
			}

			if err := broker.Publisher.Publish(cmd.Context(), topo, payload); err != nil {
				return err
			}

			deps.Output().Success(fmt.Sprintf("Published to %s (%s)", topo.Name, topo.Mode))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", "direct", "Topology mode: direct or exchange")
	cmd.Flags().StringVar(&flags.kind, "kind", "direct", "Exchange kind in exchange mode")
	cmd.Flags().BoolVar(&flags.durable, "durable", true, "Declare durable topology")
	cmd.Flags().BoolVar(&flags.exclusive, "exclusive", false, "Declare exclusive queue")

	return cmd
}
