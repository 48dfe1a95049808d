// Package orchestrator запускает пайплайн flavor'а целиком.
//
// Driver отвечает за:
//   - Пропуск flavor'а в pull request'е, если изменения его не затрагивают
//   - Выполнение стадий в фиксированном порядке до первой ошибки
//   - Безусловный cleanup (кроме SKIP_CLEANUP)
//   - Запись результата в побочные каналы: метрики, история, события
//
// Ошибка стадии всегда важнее ошибки cleanup: она возвращается
// вызывающему, а ошибка cleanup только логируется и сохраняется в
// Run.CleanupError.
package orchestrator
