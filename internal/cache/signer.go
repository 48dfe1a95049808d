package cache

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Константы SigV4.
const (
	algorithm     = "AWS4-HMAC-SHA256"
	service       = "s3"
	requestType   = "aws4_request"
	unsignedBody  = "UNSIGNED-PAYLOAD"
	signedHeaders = "host"

	dateFormat      = "20060102"
	timestampFormat = "20060102T150405Z"
)

// KeyPair — ключи доступа к S3.
type KeyPair struct {
	ID     string
	Secret string
}

// Location — адрес объекта в бакете.
type Location struct {
	Scheme string
	Region string
	Bucket string
	Path   string

	// Endpoint заменяет стандартный хост S3 (S3-совместимые хранилища,
	// например MinIO). С Endpoint используется path-style адресация:
	// бакет становится первым сегментом пути.
	Endpoint string
}

// ObjectPath возвращает путь запроса: Path для virtual-host адресации
// S3, /<bucket>Path для Endpoint.
func (l Location) ObjectPath() string {
	if l.Endpoint != "" {
		return "/" + l.Bucket + l.Path
	}
	return l.Path
}

// Hostname возвращает хост бакета.
//
// Для us-east-1 — <bucket>.s3.amazonaws.com, для остальных регионов —
// <bucket>.s3-<region>.amazonaws.com.
func (l Location) Hostname() string {
	if l.Endpoint != "" {
		return l.Endpoint
	}
	if l.Region == "us-east-1" {
		return l.Bucket + ".s3.amazonaws.com"
	}
	return l.Bucket + ".s3-" + l.Region + ".amazonaws.com"
}

// Presign подписывает запрос verb к location по схеме SigV4 (query string).
//
// Подписывается только заголовок host, тело не подписывается
// (UNSIGNED-PAYLOAD). URL действителен expires с момента at.
func Presign(keys KeyPair, verb string, loc Location, expires time.Duration, at time.Time) *url.URL {
	at = at.UTC()
	date := at.Format(dateFormat)
	timestamp := at.Format(timestampFormat)
	scope := date + "/" + loc.Region + "/" + service + "/" + requestType

	// Порядок параметров совпадает с лексикографическим — так требует
	// канонический запрос.
	params := [][2]string{
		{"X-Amz-Algorithm", algorithm},
		{"X-Amz-Credential", keys.ID + "/" + scope},
		{"X-Amz-Date", timestamp},
		{"X-Amz-Expires", strconv.FormatInt(int64(expires/time.Second), 10)},
		{"X-Amz-SignedHeaders", signedHeaders},
	}

	query := canonicalQuery(params)
	host := loc.Hostname()
	path := loc.ObjectPath()

	canonicalRequest := strings.Join([]string{
		verb,
		path,
		query,
		"host:" + host + "\n",
		signedHeaders,
		unsignedBody,
	}, "\n")

	requestHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		algorithm,
		timestamp,
		scope,
		hex.EncodeToString(requestHash[:]),
	}, "\n")

	key := signingKey(keys.Secret, date, loc.Region)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	scheme := loc.Scheme
	if scheme == "" {
		scheme = "https"
	}

	return &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: query + "&X-Amz-Signature=" + signature,
	}
}

// signingKey выводит ключ подписи цепочкой HMAC.
func signingKey(secret, date, region string) []byte {
	key := []byte("AWS4" + secret)
	for _, part := range []string{date, region, service, requestType} {
		key = hmacSHA256(key, part)
	}
	return key
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func canonicalQuery(params [][2]string) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, uriEncode(p[0])+"="+uriEncode(p[1]))
	}
	return strings.Join(parts, "&")
}

// uriEncode кодирует всё, кроме A-Za-z0-9 и ~ _ . -
func uriEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '~', c == '_', c == '.', c == '-':
		return true
	}
	return false
}
