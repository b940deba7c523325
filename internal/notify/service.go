package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sebuszqo/FundLedger/pkg/rabbitmq"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a short-lived message shown to one user, or to the operators
// when UserID is empty.
type Notification struct {
	UserID  string    `json:"user_id,omitempty"`
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// Sink is fire-and-forget: callers never wait on or inspect delivery.
type Sink interface {
	Notify(n Notification)
}

type Service struct {
	publisher rabbitmq.Publisher
	exchange  string
	taskQueue chan Notification
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewService(publisher rabbitmq.Publisher, exchange string) *Service {
	s := &Service{
		publisher: publisher,
		exchange:  exchange,
		taskQueue: make(chan Notification, 100),
		done:      make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *Service) worker() {
	defer close(s.done)
	for n := range s.taskQueue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.publisher.Publish(ctx, s.exchange, routingKey(n), n); err != nil {
			log.Printf("level=warn component=notify msg=\"notification dropped\" user_id=%s title=%q err=%v", n.UserID, n.Title, err)
		}
		cancel()
	}
}

// Notify queues n. When the queue is full or the service is closed the
// notification is dropped.
func (s *Service) Notify(n Notification) {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		log.Printf("level=warn component=notify msg=\"service closed; notification dropped\" user_id=%s title=%q", n.UserID, n.Title)
		return
	}
	select {
	case s.taskQueue <- n:
	default:
		log.Printf("level=warn component=notify msg=\"queue full; notification dropped\" user_id=%s title=%q", n.UserID, n.Title)
	}
}

// Close stops accepting notifications and waits until the queued ones are
// published. Calling it again is a no-op.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.taskQueue)
	s.mu.Unlock()
	<-s.done
}

func routingKey(n Notification) string {
	if n.UserID == "" {
		return "notification.ops." + string(n.Level)
	}
	return "notification.user." + string(n.Level)
}

func Success(userID, title, message string) Notification {
	return Notification{UserID: userID, Level: LevelSuccess, Title: title, Message: message}
}

func Error(userID, title, message string) Notification {
	return Notification{UserID: userID, Level: LevelError, Title: title, Message: message}
}

func Info(userID, title, message string) Notification {
	return Notification{UserID: userID, Level: LevelInfo, Title: title, Message: message}
}

// Fanout delivers every notification to each of its sinks.
type Fanout []Sink

func (f Fanout) Notify(n Notification) {
	for _, sink := range f {
		sink.Notify(n)
	}
}
