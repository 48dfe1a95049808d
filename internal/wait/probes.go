package wait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Probe — одна попытка проверить готовность цели.
//
// Возвращает (true, nil), если цель готова; (false, nil) или
// транзиентную ошибку, если ещё нет. Нетранзиентная ошибка прерывает
// ожидание. ctx ограничен таймаутом попытки.
type Probe func(ctx context.Context, target Target) (bool, error)

// probePort проверяет, что на порту кто-то слушает.
func probePort(ctx context.Context, target Target) (bool, error) {
	host := target.Host
	if host == "" {
		host = DefaultHost
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(target.Port)))
	if err != nil {
		return false, err
	}
	conn.Close()
	return true, nil
}

// newURLProbe возвращает проверку HTTP endpoint'а: готов при ответе 2xx.
func newURLProbe(client *http.Client) Probe {
	return func(ctx context.Context, target Target) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

		return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
	}
}

// probePath проверяет существование пути.
func probePath(_ context.Context, target Target) (bool, error) {
	_, err := os.Stat(target.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// probePostgres проверяет, что Postgres принимает соединения.
//
// Пока сервер стартует, он отвечает ошибками вида "the database system
// is starting up", поэтому любая ошибка соединения означает "ещё не готов".
// Невалидный DSN — фатальная ошибка.
func probePostgres(ctx context.Context, target Target) (bool, error) {
	cfg, err := pgx.ParseConfig(target.URL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return false, nil
	}
	defer conn.Close(context.Background())

	if err := conn.Ping(ctx); err != nil {
		return false, nil
	}
	return true, nil
}

// probeAMQP проверяет, что брокер проходит AMQP handshake.
//
// Дедлайн попытки ставится на сокет: handshake внутри amqp.DialConfig
// контекст не видит, а брокер может принять TCP и молчать. После
// открытия соединения amqp091 сам снимает дедлайн.
func probeAMQP(ctx context.Context, target Target) (bool, error) {
	if _, err := amqp.ParseURI(target.URL); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	var d net.Dialer
	conn, err := amqp.DialConfig(target.URL, amqp.Config{
		Dial: func(network, addr string) (net.Conn, error) {
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if deadline, ok := ctx.Deadline(); ok {
				if err := c.SetDeadline(deadline); err != nil {
					c.Close()
					return nil, err
				}
			}
			return c, nil
		},
	})
	if err != nil {
		return false, nil
	}
	conn.Close()
	return true, nil
}
