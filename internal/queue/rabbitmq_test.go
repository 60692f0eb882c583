package queue

import (
	"net"
	"testing"
)

func TestNewRabbitMQUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	if _, err := NewRabbitMQ("amqp://guest:guest@"+addr+"/", "jobs.dlq"); err == nil {
		t.Fatal("expected dial error")
	}
}
