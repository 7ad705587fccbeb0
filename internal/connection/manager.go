package connection

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// ClientInfo holds information about a subscribed feed client
type ClientInfo struct {
	ConnectionID  string
	Client        string // name sent in the subscribe message
	ConnectedAt   time.Time
	LastHeardFrom time.Time
	Conn          net.Conn
	mu            sync.RWMutex
	writeMu       sync.Mutex

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// OutboundQueueSize is how many messages may wait for a client's writer.
const OutboundQueueSize = 16

// Enqueue hands a message to the client's writer without blocking. It
// returns false when the queue is full or the client is gone.
func (c *ClientInfo) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbound <- data:
		return true
	default:
		return false
	}
}

// WriteLoop sends queued messages until the client is unregistered or a
// write fails.
func (c *ClientInfo) WriteLoop(timeout time.Duration) error {
	for {
		select {
		case <-c.done:
			return nil
		case data := <-c.outbound:
			if err := c.Send(data, timeout); err != nil {
				return err
			}
		}
	}
}

func (c *ClientInfo) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Send writes one newline-terminated message to the client, blocking up to
// timeout. Concurrent sends are serialized so lines never interleave.
func (c *ClientInfo) Send(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		c.Conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	line := make([]byte, 0, len(data)+1)
	line = append(append(line, data...), '\n')
	if _, err := c.Conn.Write(line); err != nil {
		return fmt.Errorf("failed to write to %s: %w", c.ConnectionID, err)
	}
	return nil
}

// UpdateLastHeardFrom updates the last activity timestamp
func (c *ClientInfo) UpdateLastHeardFrom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastHeardFrom = time.Now()
}

// GetLastHeardFrom returns the last activity timestamp
func (c *ClientInfo) GetLastHeardFrom() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastHeardFrom
}

// Manager manages all active client connections
type Manager struct {
	clients  map[string]*ClientInfo // key: connection_id
	byClient map[string][]string    // key: client name, value: []connection_id
	mu       sync.RWMutex
	maxConns int
}

// NewManager creates a new connection manager
func NewManager(maxConnections int) *Manager {
	return &Manager{
		clients:  make(map[string]*ClientInfo),
		byClient: make(map[string][]string),
		maxConns: maxConnections,
	}
}

// Register adds a new client connection
func (m *Manager) Register(connectionID, client string, conn net.Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check max connections
	if len(m.clients) >= m.maxConns {
		return ErrMaxConnectionsReached
	}

	// Check if connection ID already exists
	if _, exists := m.clients[connectionID]; exists {
		return fmt.Errorf("connection ID %s already registered", connectionID)
	}

	now := time.Now()
	clientInfo := &ClientInfo{
		ConnectionID:  connectionID,
		Client:        client,
		ConnectedAt:   now,
		LastHeardFrom: now,
		Conn:          conn,
		outbound:      make(chan []byte, OutboundQueueSize),
		done:          make(chan struct{}),
	}

	m.clients[connectionID] = clientInfo
	m.byClient[client] = append(m.byClient[client], connectionID)

	return nil
}

// Unregister removes a client connection
func (m *Manager) Unregister(connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, exists := m.clients[connectionID]
	if !exists {
		return fmt.Errorf("connection ID %s not found", connectionID)
	}

	// Remove from client name map
	name := client.Client
	if connIDs, ok := m.byClient[name]; ok {
		// Remove this connection ID from the slice
		for i, id := range connIDs {
			if id == connectionID {
				m.byClient[name] = append(connIDs[:i], connIDs[i+1:]...)
				break
			}
		}
		// Clean up empty entries
		if len(m.byClient[name]) == 0 {
			delete(m.byClient, name)
		}
	}

	// Remove from clients map and release its writer
	delete(m.clients, connectionID)
	client.stop()

	return nil
}

// Get retrieves client information by connection ID
func (m *Manager) Get(connectionID string) (*ClientInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[connectionID]
	return client, exists
}

// UpdateActivity updates the last heard from timestamp for a connection
func (m *Manager) UpdateActivity(connectionID string) error {
	m.mu.RLock()
	client, exists := m.clients[connectionID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("connection ID %s not found", connectionID)
	}

	client.UpdateLastHeardFrom()
	return nil
}

// GetInactiveConnections returns connection IDs that haven't been heard from in the given duration
func (m *Manager) GetInactiveConnections(timeout time.Duration) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var inactive []string

	for connID, client := range m.clients {
		lastHeard := client.GetLastHeardFrom()
		if now.Sub(lastHeard) > timeout {
			inactive = append(inactive, connID)
		}
	}

	return inactive
}

// Count returns the total number of active connections
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CountByClient returns the number of active connections per client name
func (m *Manager) CountByClient() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]int)
	for client, connIDs := range m.byClient {
		result[client] = len(connIDs)
	}
	return result
}

// GetAllClients returns every registered client
func (m *Manager) GetAllClients() []*ClientInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]*ClientInfo, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	return clients
}

// Stats returns statistics about the connection manager
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ManagerStats{
		TotalConnections: len(m.clients),
		UniqueClients:    len(m.byClient),
		MaxConnections:   m.maxConns,
	}
}

// ManagerStats contains statistics about the connection manager
type ManagerStats struct {
	TotalConnections int
	UniqueClients    int
	MaxConnections   int
}

var (
	ErrMaxConnectionsReached = &ConnectionError{"maximum connections reached"}
)

// ConnectionError represents a connection error
type ConnectionError struct {
	msg string
}

func (e *ConnectionError) Error() string {
	return e.msg
}
