package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/InboxRelay/internal/repo"
)

// NewAppCmd создаёт группу команд для чтения данных приложений.
func NewAppCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Look up applications",
	}

	cmd.AddCommand(
		newAppFieldCmd(deps, "token", "Show application token", AppStore.GetToken),
		newAppFieldCmd(deps, "title", "Show application title", AppStore.GetTitle),
	)

	return cmd
}

func newAppFieldCmd(deps Deps, field, short string, get func(AppStore, context.Context, string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   field + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apps, err := deps.Apps(cmd.Context())
			if err != nil {
				return err
			}

			id := args[0]
			value, err := get(apps, cmd.Context(), id)
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("app %s: %w", id, err)
			}
			if err != nil {
				return err
			}

			deps.Output().Print(
				[]string{"ID", strings.ToUpper(field)},
				[][]string{{id, value}},
				map[string]string{"id": id, field: value},
			)
			return nil
		},
	}
}
