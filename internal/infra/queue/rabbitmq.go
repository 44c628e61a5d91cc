package queue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"member-portal/internal/domain"
	"member-portal/internal/infra/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultManagementPort = "15672"
	republishTimeout      = 10 * time.Second
)

var _ domain.EmailQueue = (*RabbitEmailQueue)(nil)

// RabbitEmailQueue хранит задачи писем в очереди RabbitMQ.
// Публикация и чтение идут через Management API, без AMQP-соединения.
type RabbitEmailQueue struct {
	client       *http.Client
	baseURL      *url.URL
	vhost        string
	queue        string
	user         *url.Userinfo
	pollInterval time.Duration
}

// RabbitOption настраивает RabbitEmailQueue.
type RabbitOption func(*RabbitEmailQueue)

// WithPollInterval задаёт паузу между опросами пустой очереди.
func WithPollInterval(d time.Duration) RabbitOption {
	return func(q *RabbitEmailQueue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithManagementClient подменяет HTTP-клиента Management API.
func WithManagementClient(c *http.Client) RabbitOption {
	return func(q *RabbitEmailQueue) {
		if c != nil {
			q.client = c
		}
	}
}

// NewRabbitEmailQueue создаёт очередь. Учётные данные и vhost берутся из amqpURL,
// адрес Management API без managementURL выводится из хоста брокера.
func NewRabbitEmailQueue(amqpURL, managementURL, queue string, opts ...RabbitOption) (*RabbitEmailQueue, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, errors.New("rabbitmq: не указано имя очереди")
	}
	broker, err := url.Parse(strings.TrimSpace(amqpURL))
	if err != nil || broker.Host == "" {
		return nil, fmt.Errorf("rabbitmq: некорректный AMQP URL %q", amqpURL)
	}
	base, err := managementBase(broker, managementURL)
	if err != nil {
		return nil, err
	}

	q := &RabbitEmailQueue{
		client:       &http.Client{Timeout: 10 * time.Second},
		baseURL:      base,
		vhost:        vhostOf(broker),
		queue:        queue,
		user:         broker.User,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

func vhostOf(broker *url.URL) string {
	if v := strings.TrimPrefix(broker.Path, "/"); v != "" {
		return v
	}
	return "/"
}

func managementBase(broker *url.URL, managementURL string) (*url.URL, error) {
	raw := strings.TrimSpace(managementURL)
	if raw == "" {
		scheme := "http"
		if broker.Scheme == "amqps" {
			scheme = "https"
		}
		raw = scheme + "://" + broker.Hostname() + ":" + defaultManagementPort
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: некорректный адрес Management API: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawPath = ""
	return base, nil
}

type publishRequest struct {
	Properties      struct{} `json:"properties"`
	RoutingKey      string   `json:"routing_key"`
	Payload         string   `json:"payload"`
	PayloadEncoding string   `json:"payload_encoding"`
}

type publishResponse struct {
	Routed bool `json:"routed"`
}

type getRequest struct {
	Count    int    `json:"count"`
	AckMode  string `json:"ackmode"`
	Encoding string `json:"encoding"`
}

type rabbitMessage struct {
	Payload string `json:"payload"`
}

// Enqueue публикует задачу через default exchange с ключом маршрутизации, равным имени очереди.
func (q *RabbitEmailQueue) Enqueue(ctx context.Context, job domain.EmailJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("кодирование задачи: %w", err)
	}
	return q.publish(ctx, payload)
}

func (q *RabbitEmailQueue) publish(ctx context.Context, payload []byte) error {
	req := publishRequest{
		RoutingKey:      q.queue,
		Payload:         base64.StdEncoding.EncodeToString(payload),
		PayloadEncoding: "base64",
	}
	var resp publishResponse
	if err := q.call(ctx, "publish", req, &resp, "api", "exchanges", q.vhost, "amq.default", "publish"); err != nil {
		return err
	}
	if !resp.Routed {
		return fmt.Errorf("rabbitmq: сообщение не доставлено в очередь %s", q.queue)
	}
	return nil
}

// Receive опрашивает очередь, пока не появится задача или не отменится контекст.
// Сообщение снимается из очереди сразу; ack(false) публикует его заново.
func (q *RabbitEmailQueue) Receive(ctx context.Context) (domain.EmailJob, domain.EmailAckFunc, error) {
	for {
		payload, err := q.take(ctx)
		switch {
		case ctx.Err() != nil:
			return domain.EmailJob{}, nil, ctx.Err()
		case err != nil:
			return domain.EmailJob{}, nil, err
		case payload != nil:
			var job domain.EmailJob
			if err := json.Unmarshal(payload, &job); err != nil {
				return domain.EmailJob{}, nil, fmt.Errorf("декодирование задачи: %w", err)
			}
			return job, q.ackFunc(payload), nil
		}

		timer := time.NewTimer(q.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.EmailJob{}, nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// take забирает одно сообщение. Пустая очередь даёт nil без ошибки.
func (q *RabbitEmailQueue) take(ctx context.Context) ([]byte, error) {
	var messages []rabbitMessage
	req := getRequest{Count: 1, AckMode: "ack_requeue_false", Encoding: "base64"}
	if err := q.call(ctx, "get", req, &messages, "api", "queues", q.vhost, q.queue, "get"); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	payload, err := base64.StdEncoding.DecodeString(messages[0].Payload)
	if err != nil {
		return nil, fmt.Errorf("декодирование сообщения: %w", err)
	}
	return payload, nil
}

func (q *RabbitEmailQueue) ackFunc(payload []byte) domain.EmailAckFunc {
	return func(success bool) error {
		if success {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), republishTimeout)
		defer cancel()
		return q.publish(ctx, payload)
	}
}

// call выполняет POST к Management API и декодирует ответ в out.
func (q *RabbitEmailQueue) call(ctx context.Context, op string, in, out any, segments ...string) (err error) {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("rabbitmq %s: кодирование запроса: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint(segments...), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rabbitmq %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.user != nil && q.user.Username() != "" {
		password, _ := q.user.Password()
		req.SetBasicAuth(q.user.Username(), password)
	}

	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("rabbitmq", op, q.queue, start, err)
	}()
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("rabbitmq %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("rabbitmq %s: status=%d: %s", op, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rabbitmq %s: декодирование ответа: %w", op, err)
	}
	return nil
}

// endpoint собирает путь Management API. Имя vhost "/" должно уйти как %2F.
func (q *RabbitEmailQueue) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	u := *q.baseURL
	u.Path = q.baseURL.Path + "/" + strings.Join(segments, "/")
	u.RawPath = q.baseURL.EscapedPath() + "/" + strings.Join(escaped, "/")
	return u.String()
}
