// relayctl — инструмент командной строки для работы с брокером
// и БД приложений inbox-relay.
//
// Использование:
//
//	relayctl [--json] <command> [args] [flags]
//
// Команды:
//
//	publish   Опубликовать JSON в топологию
//	consume   Прочитать сообщения из топологии
//	app       Токен и название приложения
//
// Настройки подключения берутся из .env и переменных окружения (MQ_*, DB_*).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/InboxRelay/internal/cli"
	"github.com/shaiso/InboxRelay/internal/config"
	"github.com/shaiso/InboxRelay/internal/mq"
	"github.com/shaiso/InboxRelay/internal/repo"
	"github.com/shaiso/InboxRelay/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "relayctl",
		Short:         "relayctl — inbox-relay broker and app tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// Логи CLI идут в stderr, чтобы не мешать выводу данных.
	logger := telemetry.NewLogger(os.Stderr, "text", telemetry.LogLevel())

	var cleanup []func()

	deps := cli.Deps{
		Broker: func(context.Context) (*cli.Broker, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			conn := mq.NewConnection(cfg.Broker.URL(), logger,
				mq.WithConnectTimeout(cfg.Broker.ConnectTimeout),
				mq.WithConnectionName("relayctl"),
			)
			cleanup = append(cleanup, func() {
				if err := conn.Close(); err != nil {
					logger.Warn("failed to close broker connection", "error", err)
				}
			})
			return &cli.Broker{
				Publisher: mq.NewPublisher(conn, logger),
				NewConsumer: func(opts ...mq.ConsumerOption) cli.Consumer {
					opts = append([]mq.ConsumerOption{mq.WithConsumerTagPrefix("relayctl")}, opts...)
					return mq.NewConsumer(conn, logger, opts...)
				},
			}, nil
		},
		Apps: func(ctx context.Context) (cli.AppStore, error) {
			db, err := config.LoadDatabase()
			if err != nil {
				return nil, err
			}
			pool, err := repo.NewPool(ctx, db.DSN())
			if err != nil {
				return nil, err
			}
			cleanup = append(cleanup, pool.Close)
			return repo.NewAppRepo(pool), nil
		},
		Output: func() *cli.Output { return cli.NewOutput(jsonOutput) },
	}

	rootCmd.AddCommand(
		cli.NewPublishCmd(deps),
		cli.NewConsumeCmd(deps),
		cli.NewAppCmd(deps),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	for _, fn := range cleanup {
		fn()
	}

	if err != nil {
		cli.NewOutput(jsonOutput).Error(err.Error())
		os.Exit(1)
	}
}
