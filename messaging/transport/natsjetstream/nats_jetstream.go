// Package natsjetstream 基于 NATS JetStream 实现 messaging.Transport
package natsjetstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"prodlog/logging"
	"prodlog/messaging"
)

// Config JetStream 传输配置
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	DurablePrefix string
	AckWait       time.Duration
	MaxAckPending int
	Logger        logging.Logger
	Conn          *nats.Conn

	// 流参数
	Retention  string        // limits|workqueue|interest（默认 limits）
	MaxAge     time.Duration // 0 表示不限制
	Replicas   int           // 0 表示默认
	Duplicates time.Duration // 去重窗口，默认 2 分钟
}

// Transport 以 JetStream 流承载消息。
//
// 发布时以消息 ID 作为 Nats-Msg-Id，中继在检查点落盘前崩溃重发时由服务端去重。
type Transport struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	handlers map[string][]messaging.IMessageHandler
	subs     map[string]*nats.Subscription

	mu      sync.RWMutex
	running bool
}

// NewTransport 创建 JetStream 传输
func NewTransport(cfg Config) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "PRODLOG"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "prodlog."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "prodlog-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	if cfg.Duplicates <= 0 {
		cfg.Duplicates = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.nats")
	}
	return &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string][]messaging.IMessageHandler),
		subs:     make(map[string]*nats.Subscription),
	}
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.RLock()
	js := t.js
	running := t.running
	t.mu.RUnlock()
	if !running || js == nil {
		return errors.New("nats transport not running")
	}

	data, err := messaging.Marshal(message)
	if err != nil {
		return err
	}
	_, err = js.Publish(t.subjectName(message.GetType()), data,
		nats.Context(ctx),
		nats.MsgId(message.GetID()))
	return err
}

func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		return t.subscribeLocked(messageType)
	}
	return nil
}

func (t *Transport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType], _ = messaging.RemoveHandler(t.handlers[messageType], handler)
	if len(t.handlers[messageType]) == 0 {
		if sub, ok := t.subs[messageType]; ok {
			_ = sub.Drain()
			delete(t.subs, messageType)
		}
	}
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("nats transport already running")
	}
	if err := t.ensureConnection(); err != nil {
		return err
	}
	if err := t.ensureStream(); err != nil {
		return err
	}
	for mt := range t.handlers {
		if err := t.subscribeLocked(mt); err != nil {
			return err
		}
	}
	t.running = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	for mt, sub := range t.subs {
		_ = sub.Drain()
		delete(t.subs, mt)
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	t.js = nil
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return messaging.CollectStats(t.running, t.handlers)
}

func (t *Transport) ensureConnection() error {
	if t.conn != nil && t.js != nil {
		return nil
	}
	if t.cfg.Conn != nil {
		t.conn = t.cfg.Conn
	} else {
		url := t.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url, nats.Name("prodlog-relay"))
		if err != nil {
			return err
		}
		t.conn = conn
		t.ownsConn = true
	}
	js, err := t.conn.JetStream()
	if err != nil {
		return err
	}
	t.js = js
	return nil
}

func (t *Transport) ensureStream() error {
	_, err := t.js.StreamInfo(t.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = t.js.AddStream(streamConfig(t.cfg))
	return err
}

func streamConfig(cfg Config) *nats.StreamConfig {
	retention := nats.LimitsPolicy
	switch strings.ToLower(cfg.Retention) {
	case "workqueue":
		retention = nats.WorkQueuePolicy
	case "interest":
		retention = nats.InterestPolicy
	}
	sc := &nats.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.SubjectPrefix + ">"},
		Retention:  retention,
		Duplicates: cfg.Duplicates,
	}
	if cfg.MaxAge > 0 {
		sc.MaxAge = cfg.MaxAge
	}
	if cfg.Replicas > 0 {
		sc.Replicas = cfg.Replicas
	}
	return sc
}

func (t *Transport) subscribeLocked(messageType string) error {
	if _, exists := t.subs[messageType]; exists {
		return nil
	}
	durable := t.durableName(messageType)
	sub, err := t.js.QueueSubscribe(t.subjectName(messageType), durable, t.handleMessage(messageType),
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(t.cfg.AckWait),
		nats.MaxAckPending(t.cfg.MaxAckPending))
	if err != nil {
		return err
	}
	t.subs[messageType] = sub
	return nil
}

// handleMessage 处理器全部成功才 Ack，否则 Nak 等待重投
func (t *Transport) handleMessage(subscribedType string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx := context.Background()
		decoded, err := messaging.Unmarshal(msg.Data)
		if err != nil {
			t.logger.Warn(ctx, "decode nats message failed", logging.String("subject", msg.Subject), logging.Error(err))
			_ = msg.Term()
			return
		}
		if decoded.Type == "" {
			decoded.Type = subscribedType
		}

		if err := t.dispatch(ctx, subscribedType, decoded); err != nil {
			t.logger.Warn(ctx, "nats handler failed", logging.String("message_id", decoded.ID), logging.Error(err))
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			t.logger.Warn(ctx, "nats ack failed", logging.Error(err))
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, subscribedType string, message messaging.IMessage) error {
	t.mu.RLock()
	handlers := append([]messaging.IMessageHandler(nil), t.handlers[subscribedType]...)
	t.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// subjectName "*" 订阅前缀下的全部主题
func (t *Transport) subjectName(messageType string) string {
	if messageType == messaging.WildcardType {
		return t.cfg.SubjectPrefix + ">"
	}
	return t.cfg.SubjectPrefix + messageType
}

// durableName durable 名不允许出现 '.'、'*'、'>'
func (t *Transport) durableName(messageType string) string {
	r := strings.NewReplacer(".", "_", "*", "all", ">", "all")
	return t.cfg.DurablePrefix + r.Replace(messageType)
}
