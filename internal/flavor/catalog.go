// Package flavor собирает описания flavors и компилирует их в
// исполняемые стадии.
//
// Описания — YAML-файлы, встроенные в бинарник (definitions/*.yaml).
// Файл common.yaml описывает общие стадии, которые выполняются перед
// одноимёнными стадиями каждого flavor'а. Директория STAGEHAND_FLAVORS_DIR
// может добавлять новые описания и переопределять встроенные.
package flavor

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/engine"
)

// CommonName — имя описания общих стадий.
const CommonName = "common"

//go:embed definitions/*.yaml
var builtin embed.FS

// Ошибки каталога.
var (
	// ErrUnknownFlavor — flavor не найден в каталоге.
	ErrUnknownFlavor = errors.New("unknown flavor")

	// ErrNameMismatch — имя в описании не совпадает с именем файла.
	ErrNameMismatch = errors.New("flavor name does not match file name")
)

// Catalog — набор описаний flavors.
type Catalog struct {
	specs map[string]*domain.FlavorSpec
	raw   map[string][]byte
}

// Load загружает встроенные описания и, если dir не пуст, описания из
// dir поверх них.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{
		specs: make(map[string]*domain.FlavorSpec),
		raw:   make(map[string][]byte),
	}

	sub, err := fs.Sub(builtin, "definitions")
	if err != nil {
		return nil, err
	}
	if err := c.loadFS(sub); err != nil {
		return nil, fmt.Errorf("load builtin flavors: %w", err)
	}

	if dir != "" {
		if err := c.loadFS(os.DirFS(dir)); err != nil {
			return nil, fmt.Errorf("load flavors from %s: %w", dir, err)
		}
	}

	return c, nil
}

// loadFS читает все *.yaml / *.yml из корня fsys.
func (c *Catalog) loadFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return err
		}
		if err := c.Add(strings.TrimSuffix(e.Name(), ext), data); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}

// Add разбирает описание и добавляет его в каталог под именем name,
// заменяя существующее.
func (c *Catalog) Add(name string, data []byte) error {
	spec, err := engine.ParseFlavorSpec(data)
	if err != nil {
		return err
	}
	if spec.Name != name {
		return fmt.Errorf("%w: %q in %q", ErrNameMismatch, spec.Name, name)
	}

	c.specs[name] = spec
	c.raw[name] = data
	return nil
}

// Names возвращает отсортированные имена flavors (без common).
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		if name == CommonName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get возвращает описание flavor'а.
func (c *Catalog) Get(name string) (*domain.FlavorSpec, error) {
	spec, ok := c.specs[name]
	if !ok || name == CommonName {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlavor, name)
	}
	return spec, nil
}

// Common возвращает описание общих стадий или nil.
func (c *Catalog) Common() *domain.FlavorSpec {
	return c.specs[CommonName]
}

// Definition возвращает исходный текст описания (для хэша кэша).
func (c *Catalog) Definition(name string) []byte {
	return c.raw[name]
}

// Compile компилирует flavor name вместе с общими стадиями.
func (c *Catalog) Compile(name string, opts Options) (*Pipeline, error) {
	spec, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	opts.Definition = c.Definition(name)
	return Compile(spec, c.Common(), opts)
}
