package connection

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type mockAddr struct{}

func (m *mockAddr) Network() string { return "tcp" }
func (m *mockAddr) String() string  { return "127.0.0.1:0" }

type mockConn struct {
	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error
}

func (m *mockConn) Read(b []byte) (n int, err error) { return 0, nil }
func (m *mockConn) Write(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.written.Write(b)
}
func (m *mockConn) Close() error                       { return nil }
func (m *mockConn) LocalAddr() net.Addr                { return &mockAddr{} }
func (m *mockConn) RemoteAddr() net.Addr               { return &mockAddr{} }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func TestManager_Register(t *testing.T) {
	m := NewManager(10)
	conn := &mockConn{}

	err := m.Register("conn1", "kiosk-lobby", conn)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if m.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", m.Count())
	}

	client, exists := m.Get("conn1")
	if !exists {
		t.Fatal("Client not found")
	}

	if client.Client != "kiosk-lobby" {
		t.Errorf("Expected client kiosk-lobby, got %s", client.Client)
	}

	if err := m.Register("conn1", "kiosk-lobby", conn); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestManager_RegisterMaxConnections(t *testing.T) {
	m := NewManager(2)
	conn := &mockConn{}

	m.Register("conn1", "kiosk-lobby", conn)
	m.Register("conn2", "wall-display", conn)

	// Third connection should fail
	err := m.Register("conn3", "tablet", conn)
	if err != ErrMaxConnectionsReached {
		t.Errorf("Expected ErrMaxConnectionsReached, got %v", err)
	}
}

func TestManager_Unregister(t *testing.T) {
	m := NewManager(10)
	conn := &mockConn{}

	m.Register("conn1", "kiosk-lobby", conn)
	m.Register("conn2", "kiosk-lobby", conn)

	err := m.Unregister("conn1")
	if err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	if m.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", m.Count())
	}

	// Client name should still have one connection
	if n := m.CountByClient()["kiosk-lobby"]; n != 1 {
		t.Errorf("Expected 1 connection for client, got %d", n)
	}

	if err := m.Unregister("conn1"); err == nil {
		t.Error("Expected second Unregister to fail")
	}
}

func TestManager_CountByClient(t *testing.T) {
	m := NewManager(10)
	conn := &mockConn{}

	m.Register("conn1", "kiosk-lobby", conn)
	m.Register("conn2", "kiosk-lobby", conn)
	m.Register("conn3", "wall-display", conn)

	counts := m.CountByClient()
	if counts["kiosk-lobby"] != 2 {
		t.Errorf("Expected 2 connections for kiosk-lobby, got %d", counts["kiosk-lobby"])
	}
	if counts["wall-display"] != 1 {
		t.Errorf("Expected 1 connection for wall-display, got %d", counts["wall-display"])
	}

	if len(m.GetAllClients()) != 3 {
		t.Errorf("Expected 3 clients, got %d", len(m.GetAllClients()))
	}
}

func TestManager_UpdateActivity(t *testing.T) {
	m := NewManager(10)
	conn := &mockConn{}

	m.Register("conn1", "kiosk-lobby", conn)

	client, _ := m.Get("conn1")
	firstHeard := client.GetLastHeardFrom()

	time.Sleep(10 * time.Millisecond)

	err := m.UpdateActivity("conn1")
	if err != nil {
		t.Fatalf("UpdateActivity failed: %v", err)
	}

	client, _ = m.Get("conn1")
	secondHeard := client.GetLastHeardFrom()

	if !secondHeard.After(firstHeard) {
		t.Error("LastHeardFrom was not updated")
	}
}

func TestManager_GetInactiveConnections(t *testing.T) {
	m := NewManager(10)
	conn := &mockConn{}

	m.Register("conn1", "kiosk-lobby", conn)
	m.Register("conn2", "wall-display", conn)

	// Make conn1 inactive by manually setting its timestamp
	client1, _ := m.Get("conn1")
	client1.mu.Lock()
	client1.LastHeardFrom = time.Now().Add(-5 * time.Minute)
	client1.mu.Unlock()

	inactive := m.GetInactiveConnections(2 * time.Minute)
	if len(inactive) != 1 {
		t.Fatalf("Expected 1 inactive connection, got %d", len(inactive))
	}

	if inactive[0] != "conn1" {
		t.Errorf("Expected conn1 to be inactive, got %s", inactive[0])
	}
}

func TestClientInfo_Send(t *testing.T) {
	m := NewManager(10)
	conn := &mockConn{}
	m.Register("conn1", "kiosk-lobby", conn)
	client, _ := m.Get("conn1")

	if err := client.Send([]byte(`{"type":"ack"}`), time.Second); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := conn.written.String(); got != "{\"type\":\"ack\"}\n" {
		t.Errorf("Unexpected write %q", got)
	}

	conn.writeErr = errors.New("broken pipe")
	if err := client.Send([]byte(`{}`), 0); err == nil {
		t.Error("Expected Send to fail")
	}
}

func TestManager_Stats(t *testing.T) {
	m := NewManager(100)
	conn := &mockConn{}

	m.Register("conn1", "kiosk-lobby", conn)
	m.Register("conn2", "kiosk-lobby", conn)
	m.Register("conn3", "wall-display", conn)

	stats := m.Stats()
	if stats.TotalConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", stats.TotalConnections)
	}
	if stats.UniqueClients != 2 {
		t.Errorf("Expected 2 unique clients, got %d", stats.UniqueClients)
	}
	if stats.MaxConnections != 100 {
		t.Errorf("Expected max 100, got %d", stats.MaxConnections)
	}
}

// blockingConn never completes a write until it is closed.
type blockingConn struct {
	mockConn
	closed chan struct{}
}

func (b *blockingConn) Write(p []byte) (int, error) {
	<-b.closed
	return 0, errors.New("use of closed connection")
}

func TestClientInfo_EnqueueNeverBlocks(t *testing.T) {
	m := NewManager(10)
	conn := &blockingConn{closed: make(chan struct{})}
	defer close(conn.closed)
	m.Register("conn1", "stalled", conn)
	client, _ := m.Get("conn1")

	go client.WriteLoop(time.Second)

	done := make(chan int)
	go func() {
		accepted := 0
		for i := 0; i < OutboundQueueSize*4; i++ {
			if client.Enqueue([]byte(`{"type":"update"}`)) {
				accepted++
			}
		}
		done <- accepted
	}()

	select {
	case accepted := <-done:
		// The writer holds at most one message while it is stuck
		if accepted > OutboundQueueSize+1 {
			t.Errorf("Expected at most %d queued messages, got %d", OutboundQueueSize+1, accepted)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a stalled client")
	}
}

func TestClientInfo_WriteLoopDeliversInOrder(t *testing.T) {
	m := NewManager(10)
	conn := &mockConn{}
	m.Register("conn1", "kiosk-lobby", conn)
	client, _ := m.Get("conn1")

	client.Enqueue([]byte("one"))
	client.Enqueue([]byte("two"))

	loopDone := make(chan error, 1)
	go func() { loopDone <- client.WriteLoop(time.Second) }()

	deadline := time.Now().Add(time.Second)
	for {
		conn.mu.Lock()
		got := conn.written.String()
		conn.mu.Unlock()
		if got == "one\ntwo\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Unexpected writes %q", got)
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Unregister("conn1")
	select {
	case err := <-loopDone:
		if err != nil {
			t.Errorf("Expected clean WriteLoop exit, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WriteLoop did not stop after Unregister")
	}

	if client.Enqueue([]byte("three")) {
		t.Error("Expected Enqueue to fail after Unregister")
	}
}
