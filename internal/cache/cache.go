// Package cache реализует удалённый кэш артефактов flavor'ов.
//
// Снимок директорий (установленные сервисы, кэш pip) хранится в S3 как
// один архив по ключу /<branch>/<slug>.tbz. Slug включает md5 описания
// flavor'а, поэтому изменение описания автоматически инвалидирует кэш.
//
// Кэш никогда не ломает сборку: без ключей доступа все операции —
// no-op, а ошибки сети и архива только логируются вызывающим кодом.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Stagehand/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultRegion      = "us-east-1"
	DefaultScheme      = "https"
	DefaultBranch      = "master"
	DefaultFetchExpiry = 60 * time.Second
	DefaultPushExpiry  = 600 * time.Second

	// Ограничения на передачу целиком: недоступное хранилище не должно
	// подвешивать сборку.
	DefaultFetchTimeout = 5 * time.Minute
	DefaultPushTimeout  = 15 * time.Minute

	// ObjectSuffix — расширение объекта. Исторически .tbz, содержимое —
	// tar+zstd.
	ObjectSuffix = ".tbz"
)

// Options — настройки кэша.
type Options struct {
	Bucket          string
	Region          string
	Scheme          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// Branch — ветка, под которой хранятся снимки. Fetch и Push всегда
	// работают с ней, а не с веткой текущей сборки.
	Branch string

	FetchExpiry time.Duration
	PushExpiry  time.Duration

	// FetchTimeout и PushTimeout ограничивают одну передачу, включая
	// распаковку и упаковку.
	FetchTimeout time.Duration
	PushTimeout  time.Duration

	// Directories регистрируются в Setup.
	Directories []string

	// Root — корень распаковки (по умолчанию "/").
	Root string

	// Debug включает подробное логирование передачи (DEBUG_CACHE).
	Debug bool

	HTTPClient *http.Client
	Metrics    *telemetry.Metrics

	// Now используется для подписи URL.
	Now func() time.Time
}

// Cache — кэш артефактов одного flavor'а.
type Cache struct {
	opts    Options
	slug    string
	missing []string
	logger  *slog.Logger

	mu   sync.Mutex
	dirs []string

	warnOnce sync.Once
}

// New создаёт кэш для slug.
func New(opts Options, slug string, logger *slog.Logger) *Cache {
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}
	if opts.Scheme == "" {
		opts.Scheme = DefaultScheme
	}
	if opts.Branch == "" {
		opts.Branch = DefaultBranch
	}
	if opts.FetchExpiry <= 0 {
		opts.FetchExpiry = DefaultFetchExpiry
	}
	if opts.PushExpiry <= 0 {
		opts.PushExpiry = DefaultPushExpiry
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	if opts.Root == "" {
		opts.Root = "/"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		opts:   opts,
		slug:   slug,
		logger: logger.With("slug", slug),
	}

	if opts.Bucket == "" {
		c.missing = append(c.missing, "bucket name")
	}
	if opts.AccessKeyID == "" {
		c.missing = append(c.missing, "access key id")
	}
	if opts.SecretAccessKey == "" {
		c.missing = append(c.missing, "secret access key")
	}

	return c
}

// Slug возвращает идентификатор снимка: flavor[-version]-md5(definition).
func Slug(flavor, version string, definition []byte) string {
	sum := md5.Sum(definition)

	slug := flavor
	if version != "" {
		slug += "-" + version
	}
	return slug + "-" + hex.EncodeToString(sum[:])
}

var unsafeKeyChars = regexp.MustCompile(`[^\w.\-]+`)

// ObjectPath возвращает путь объекта в бакете: /<branch>/<slug>.tbz.
//
// Из каждой части удаляются символы вне [A-Za-z0-9_.-].
func ObjectPath(branch, slug string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{branch, slug} {
		if p == "" {
			continue
		}
		parts = append(parts, unsafeKeyChars.ReplaceAllString(p, ""))
	}
	return "/" + strings.Join(parts, "/") + ObjectSuffix
}

// Slug возвращает slug кэша.
func (c *Cache) Slug() string {
	return c.slug
}

// Valid сообщает, заданы ли все обязательные настройки.
func (c *Cache) Valid() bool {
	return len(c.missing) == 0
}

// Missing возвращает список незаданных настроек.
func (c *Cache) Missing() []string {
	return append([]string(nil), c.missing...)
}

// Directories возвращает зарегистрированные директории.
func (c *Cache) Directories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dirs...)
}

// Setup скачивает снимок и регистрирует директории из Options.
//
// Ошибка Fetch возвращается только для логирования.
func (c *Cache) Setup(ctx context.Context) error {
	if !c.usable() {
		return nil
	}

	c.logger.Info("setting up build cache")
	err := c.Fetch(ctx)
	c.Add(c.opts.Directories...)
	return err
}

// Add регистрирует директории для следующего Push.
func (c *Cache) Add(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range paths {
		if p == "" || slices.Contains(c.dirs, p) {
			continue
		}
		c.dirs = append(c.dirs, p)
	}
}

// Fetch скачивает снимок и распаковывает его в Root.
//
// Если объекта нет, возвращает ErrCacheMiss.
func (c *Cache) Fetch(ctx context.Context) error {
	if !c.usable() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	u := c.FetchURL()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return c.fail("fetch", fmt.Errorf("build fetch request: %w", err))
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return c.fail("fetch", fmt.Errorf("fetch cache: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.opts.Metrics.CountCache("fetch", "miss", 0)
		c.logger.Info("cache miss", "branch", c.opts.Branch)
		return ErrCacheMiss
	case resp.StatusCode/100 != 2:
		return c.fail("fetch", fmt.Errorf("fetch cache: unexpected status %d", resp.StatusCode))
	}

	counter := &countingReader{r: resp.Body}
	if err := Extract(counter, c.opts.Root); err != nil {
		return c.fail("fetch", fmt.Errorf("extract cache: %w", err))
	}

	c.opts.Metrics.CountCache("fetch", "ok", counter.n)
	c.logTransfer("fetched cache", counter.n, time.Since(start))
	return nil
}

// Push архивирует зарегистрированные директории и загружает снимок,
// заменяя предыдущий.
func (c *Cache) Push(ctx context.Context) error {
	if !c.usable() {
		return nil
	}

	dirs := c.Directories()
	if len(dirs) == 0 {
		return ErrNothingToPush
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.PushTimeout)
	defer cancel()

	start := time.Now()

	tmp, err := os.CreateTemp("", "stagehand-cache-*.tbz")
	if err != nil {
		return c.fail("push", fmt.Errorf("create archive: %w", err))
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := Pack(tmp, dirs); err != nil {
		return c.fail("push", fmt.Errorf("pack cache: %w", err))
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return c.fail("push", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return c.fail("push", err)
	}

	c.logger.Debug("cache archive ready", "dirs", dirs, "bytes", size, "elapsed", time.Since(start))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.PushURL(), tmp)
	if err != nil {
		return c.fail("push", fmt.Errorf("build push request: %w", err))
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return c.fail("push", fmt.Errorf("push cache: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return c.fail("push", fmt.Errorf("push cache: unexpected status %d", resp.StatusCode))
	}

	c.opts.Metrics.CountCache("push", "ok", size)
	c.logTransfer("pushed cache", size, time.Since(start))
	return nil
}

// FetchURL возвращает подписанный URL для скачивания снимка.
func (c *Cache) FetchURL() string {
	return c.url(http.MethodGet, c.opts.FetchExpiry)
}

// PushURL возвращает подписанный URL для загрузки снимка.
func (c *Cache) PushURL() string {
	return c.url(http.MethodPut, c.opts.PushExpiry)
}

func (c *Cache) url(verb string, expires time.Duration) string {
	loc := Location{
		Scheme:   c.opts.Scheme,
		Region:   c.opts.Region,
		Bucket:   c.opts.Bucket,
		Path:     ObjectPath(c.opts.Branch, c.slug),
		Endpoint: c.opts.Endpoint,
	}
	keys := KeyPair{ID: c.opts.AccessKeyID, Secret: c.opts.SecretAccessKey}
	return Presign(keys, verb, loc, expires, c.opts.Now()).String()
}

// usable проверяет настройки и один раз предупреждает о недостающих.
func (c *Cache) usable() bool {
	if c.Valid() {
		return true
	}
	c.warnOnce.Do(func() {
		c.logger.Warn(fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(c.missing, ", ")))
	})
	return false
}

func (c *Cache) fail(op string, err error) error {
	c.opts.Metrics.CountCache(op, "error", 0)
	return err
}

func (c *Cache) logTransfer(msg string, bytes int64, elapsed time.Duration) {
	if !c.opts.Debug {
		c.logger.Info(msg, "bytes", bytes)
		return
	}

	speed := float64(0)
	if elapsed > 0 {
		speed = float64(bytes) / elapsed.Seconds()
	}
	c.logger.Info(msg,
		"bytes", bytes,
		"elapsed", elapsed,
		"speed_bytes_per_sec", int64(speed),
		"branch", c.opts.Branch,
	)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n += int64(n)
	return n, err
}
