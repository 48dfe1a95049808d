package wait

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Kind — тип цели ожидания.
type Kind string

const (
	// KindPort — TCP-порт (по умолчанию на localhost).
	KindPort Kind = "port"

	// KindURL — HTTP(S) endpoint, готов при ответе 2xx.
	KindURL Kind = "url"

	// KindPath — путь в файловой системе, готов когда существует.
	KindPath Kind = "path"

	// KindPostgres — Postgres, готов когда принимает соединения.
	KindPostgres Kind = "postgres"

	// KindAMQP — AMQP-брокер, готов когда проходит handshake.
	KindAMQP Kind = "amqp"
)

// DefaultHost — хост для целей-портов без явного хоста.
const DefaultHost = "localhost"

// schemeKinds — распознаваемые схемы URL.
var schemeKinds = map[string]Kind{
	"http":       KindURL,
	"https":      KindURL,
	"postgres":   KindPostgres,
	"postgresql": KindPostgres,
	"amqp":       KindAMQP,
	"amqps":      KindAMQP,
}

// Target — цель ожидания: порт, URL или путь.
type Target struct {
	Kind Kind

	// Host и Port заполнены для KindPort.
	Host string
	Port int

	// URL заполнен для KindURL, KindPostgres, KindAMQP.
	URL string

	// Path заполнен для KindPath.
	Path string
}

// Port создаёт цель для TCP-порта на localhost.
func Port(port int) Target {
	return Target{Kind: KindPort, Host: DefaultHost, Port: port}
}

// HostPort создаёт цель для TCP-порта на указанном хосте.
func HostPort(host string, port int) Target {
	return Target{Kind: KindPort, Host: host, Port: port}
}

// URL создаёт цель для HTTP endpoint'а.
func URL(rawURL string) Target {
	return Target{Kind: KindURL, URL: rawURL}
}

// Path создаёт цель для пути в файловой системе.
func Path(path string) Target {
	return Target{Kind: KindPath, Path: path}
}

// ParseTarget разбирает строковое описание цели.
//
// Правила:
//   - положительное целое число — порт на localhost;
//   - строка с распознанной схемой (http, https, postgres, amqp) — URL;
//   - всё остальное — путь в файловой системе.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || n > 65535 {
			return Target{}, fmt.Errorf("%w: port %d out of range", ErrInvalidTarget, n)
		}
		return Port(n), nil
	}

	if scheme, _, ok := strings.Cut(s, "://"); ok {
		kind, known := schemeKinds[strings.ToLower(scheme)]
		if known {
			if _, err := url.Parse(s); err != nil {
				return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
			}
			return Target{Kind: kind, URL: s}, nil
		}
	}

	return Path(s), nil
}

// FromValue преобразует значение из конфигурации (число или строка) в Target.
func FromValue(v any) (Target, error) {
	switch t := v.(type) {
	case int:
		return ParseTarget(strconv.Itoa(t))
	case int64:
		return ParseTarget(strconv.FormatInt(t, 10))
	case float64:
		if t != float64(int(t)) {
			return Target{}, fmt.Errorf("%w: port %v is not an integer", ErrInvalidTarget, t)
		}
		return ParseTarget(strconv.Itoa(int(t)))
	case string:
		return ParseTarget(t)
	default:
		return Target{}, fmt.Errorf("%w: unsupported value %T", ErrInvalidTarget, v)
	}
}

// String возвращает человекочитаемое описание цели.
func (t Target) String() string {
	switch t.Kind {
	case KindPort:
		host := t.Host
		if host == "" {
			host = DefaultHost
		}
		return fmt.Sprintf("%s:%d", host, t.Port)
	case KindPath:
		return t.Path
	default:
		return redact(t.URL)
	}
}

// redact скрывает пароль в URL для логов.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
