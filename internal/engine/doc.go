// Package engine разбирает описания flavor'ов и строит план стадий.
//
// Включает:
//   - parser.go   — парсинг FlavorSpec из YAML и валидация
//   - dag.go      — граф стадий (common:X → X, depends_on) и его обход
//   - template.go — рендеринг Go templates ({{ .RootDir }}, {{ .Env.X }})
//
// Engine отвечает за понимание структуры flavor'а и определение
// порядка выполнения стадий на основе их зависимостей.
package engine
