// Package changes определяет, какие flavors затронуты изменениями в
// pull request'е.
//
// Правила повторяют старую логику CI:
//   - checks.d/<name>.py — изменена проверка <name>;
//   - tests/checks/{integration,mock}/test_<name>.py — тесты проверки <name>;
//   - tests/checks/fixtures/* и conf.d/* — не влияют ни на что;
//   - файл, совпавший с paths одного из flavors, затрагивает этот flavor;
//   - любой другой путь делает набор изменений неразрешимым: запускается всё.
//
// Имена проверок переводятся в имена flavors через таблицу псевдонимов.
package changes

import (
	"context"
	"path"
	"slices"
	"sort"
	"strings"

	glob "github.com/ryanuber/go-glob"
)

// checkAliases — проверки, чей flavor называется иначе.
var checkAliases = map[string]string{
	"couch":      "couchdb",
	"disk":       "system",
	"elastic":    "elasticsearch",
	"gearmand":   "gearman",
	"http_check": "system",
	"mongo":      "mongodb",
	"mcache":     "memcache",
	"network":    "system",
	"php_fpm":    "phpfpm",
	"redisdb":    "redis",
	"ssh_check":  "ssh",
	"sysstat":    "system",
	"tcp_check":  "system",
	"zk":         "zookeeper",
}

var (
	checkPrefixes   = []string{"checks.d/"}
	testPrefixes    = []string{"tests/checks/integration/", "tests/checks/mock/"}
	ignoredPrefixes = []string{"tests/checks/fixtures/", "conf.d/"}
)

// Impact — результат анализа изменений.
type Impact struct {
	// Decidable — все пути распознаны, пропуск flavors допустим.
	Decidable bool `json:"decidable"`

	// Checks — изменённые проверки (до перевода в flavors).
	Checks []string `json:"checks,omitempty"`

	// Flavors — затронутые flavors.
	Flavors []string `json:"flavors,omitempty"`

	// Undecided — первый нераспознанный путь.
	Undecided string `json:"undecided,omitempty"`
}

// Affects сообщает, нужно ли запускать flavor.
func (i Impact) Affects(flavor string) bool {
	if !i.Decidable {
		return true
	}
	return slices.Contains(i.Flavors, flavor)
}

// TranslateCheck возвращает имя flavor'а для проверки.
func TranslateCheck(check string) string {
	if flavor, ok := checkAliases[check]; ok {
		return flavor
	}
	return check
}

// Analyzer анализирует пути с учётом glob-шаблонов flavors.
type Analyzer struct {
	globs map[string][]string
}

// NewAnalyzer создаёт Analyzer. globs — шаблоны путей по имени flavor'а
// (поле paths описания).
func NewAnalyzer(globs map[string][]string) *Analyzer {
	return &Analyzer{globs: globs}
}

// Analyze анализирует пути без шаблонов flavors.
func Analyze(paths []string) Impact {
	return NewAnalyzer(nil).Analyze(paths)
}

// Analyze сопоставляет изменённые пути с flavors.
func (a *Analyzer) Analyze(paths []string) Impact {
	var checks, flavors []string
	add := func(list []string, v string) []string {
		if v == "" || slices.Contains(list, v) {
			return list
		}
		return append(list, v)
	}

	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		switch {
		case hasAnyPrefix(p, checkPrefixes):
			check := strings.TrimSuffix(path.Base(p), ".py")
			checks = add(checks, check)
			flavors = add(flavors, TranslateCheck(check))

		case hasAnyPrefix(p, testPrefixes):
			check := strings.TrimPrefix(strings.TrimSuffix(path.Base(p), ".py"), "test_")
			checks = add(checks, check)
			flavors = add(flavors, TranslateCheck(check))

		case hasAnyPrefix(p, ignoredPrefixes):
			continue

		default:
			matched := a.match(p)
			if len(matched) == 0 {
				return Impact{Decidable: false, Undecided: p}
			}
			for _, f := range matched {
				flavors = add(flavors, f)
			}
		}
	}

	sort.Strings(checks)
	sort.Strings(flavors)
	return Impact{Decidable: true, Checks: checks, Flavors: flavors}
}

// match возвращает flavors, чьи шаблоны совпали с путём.
func (a *Analyzer) match(p string) []string {
	var matched []string
	for flavor, patterns := range a.globs {
		for _, pattern := range patterns {
			if glob.Glob(pattern, p) {
				matched = append(matched, flavor)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// Detector связывает источник изменений и анализатор.
type Detector struct {
	Source   Source
	Analyzer *Analyzer
}

// Impact получает изменения из источника и анализирует их.
func (d *Detector) Impact(ctx context.Context) (Impact, error) {
	paths, err := d.Source.ChangedPaths(ctx)
	if err != nil {
		return Impact{}, err
	}

	analyzer := d.Analyzer
	if analyzer == nil {
		analyzer = NewAnalyzer(nil)
	}
	return analyzer.Analyze(paths), nil
}
