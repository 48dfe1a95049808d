// Package cli реализует команды stagehand.
//
// # Обзор
//
// Все настройки приходят из переменных окружения (см. пакет config),
// аргументы командной строки только выбирают flavor и действие:
//
//	stagehand list
//	stagehand execute redis postgres
//	stagehand redis                  # то же, что execute redis
//	stagehand redis install          # одна стадия с предпосылками
//	stagehand stage redis install
//	stagehand wait 6379 --timeout 10s
//	stagehand cache slug|url|fetch|push redis
//	stagehand history --flavor redis
//	stagehand warm --schedule "@daily" redis postgres
//
// # Ключевые компоненты
//
// ## App
//
// Окружение команд: Config, каталог flavors, логгер, метрики и вывод.
// Создаётся лениво в момент выполнения команды (после разбора флагов)
// и закрывается после неё: метрики выгружаются, соединения с Postgres
// и RabbitMQ закрываются.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: stagehand history --json | jq .
package cli
