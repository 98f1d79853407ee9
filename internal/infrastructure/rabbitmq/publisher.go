// Package rabbitmq は座席イベントを RabbitMQ の topic exchange に配信する
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/maskerliu/lynx-iot-server/internal/domain/seat"
	"github.com/maskerliu/lynx-iot-server/internal/pkg/logger"
)

var ErrPublisherClosed = errors.New("イベント配信は停止しています")

// Channel は配信に使う amqp.Channel のメソッド
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer は接続とチャネルを開く
type Dialer func(url string) (Channel, io.Closer, error)

// DialAMQP は amqp091-go で接続する Dialer
func DialAMQP(url string) (Channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("RabbitMQ接続に失敗しました: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("チャネルのオープンに失敗しました: %w", err)
	}
	return ch, conn, nil
}

// Publisher は座席イベントを配信する
// 接続は初回配信時に開き、配信に失敗したら次回に張り直す
type Publisher struct {
	url      string
	exchange string
	dial     Dialer

	mu     sync.Mutex
	ch     Channel
	conn   io.Closer
	closed bool
}

// NewPublisher は新しいPublisherを作成する
func NewPublisher(url, exchange string, dial Dialer) *Publisher {
	if dial == nil {
		dial = DialAMQP
	}
	return &Publisher{url: url, exchange: exchange, dial: dial}
}

// Publish はイベント種別をルーティングキーにして配信する
func (p *Publisher) Publish(ctx context.Context, ev seat.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("イベントのエンコードに失敗: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}
	if err := p.connect(); err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Type),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("イベント配信に失敗: %w", err)
	}

	logger.Debug("座席イベントを配信",
		zap.String("type", string(ev.Type)),
		zap.String("room_id", ev.RoomID),
	)
	return nil
}

func (p *Publisher) connect() error {
	if p.ch != nil {
		return nil
	}
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("exchange宣言に失敗しました: %w", err)
	}
	p.ch, p.conn = ch, conn
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close は接続を閉じる。以降の Publish は ErrPublisherClosed を返す
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.reset()
	return nil
}
