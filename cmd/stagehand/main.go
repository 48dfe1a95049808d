// Stagehand — оркестратор тестовых фикстур для CI.
//
// Устанавливает, запускает и останавливает внешние сервисы (redis,
// postgres, elasticsearch...), нужные интеграционным тестам, и
// кэширует собранные артефакты между сборками.
//
// Использование:
//
//	stagehand [--json] <command> [args]
//
// Команды:
//
//	list       Список flavors
//	execute    Полный пайплайн одного или нескольких flavors
//	<flavor>   Пайплайн flavor'а или одна его стадия
//	stage      Одна стадия flavor'а
//	wait       Ожидание порта, URL или файла
//	cache      Кэш артефактов
//	history    История запусков (DB_URL)
//	warm       Прогрев кэша по расписанию
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Stagehand/internal/cli"
	"github.com/shaiso/Stagehand/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	logger := telemetry.SetupLogger()

	// graceful shutdown: cleanup всё равно выполняется
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := cli.NewRootCmd(cli.RootOptions{
		Version: version,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Logger:  logger,
	})

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
