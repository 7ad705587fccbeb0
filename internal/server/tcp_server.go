package server

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/internal/connection"
	"github.com/smukkama/sensor-dashboard/internal/protocol"
	"github.com/smukkama/sensor-dashboard/internal/scheduler"
	"github.com/smukkama/sensor-dashboard/internal/sensors"
	"github.com/smukkama/sensor-dashboard/pkg/config"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 30 * time.Second
)

// TCPServer pushes sensor updates to subscribed feed clients over
// newline-delimited JSON.
type TCPServer struct {
	config      *config.FeedConfig
	connManager *connection.Manager
	scheduler   *scheduler.Scheduler
	store       *sensors.Store
	log         *zap.Logger
	listener    net.Listener
	unsubscribe func()
	wg          sync.WaitGroup
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewTCPServer creates a new feed server
func NewTCPServer(cfg *config.FeedConfig, connManager *connection.Manager, sched *scheduler.Scheduler, store *sensors.Store, log *zap.Logger) *TCPServer {
	return &TCPServer{
		config:      cfg,
		connManager: connManager,
		scheduler:   sched,
		store:       store,
		log:         logger.OrNop(log),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the TCP server and begins forwarding store updates
func (s *TCPServer) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	s.listener = listener
	s.log.Info("feed server listening", zap.String("addr", listener.Addr().String()))

	s.unsubscribe = s.store.Subscribe(s.broadcast)

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Addr returns the listening address
func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop stops the TCP server and closes all client connections
func (s *TCPServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		if s.listener != nil {
			s.listener.Close()
		}
		for _, client := range s.connManager.GetAllClients() {
			client.Conn.Close()
		}
	})

	s.wg.Wait()
	s.log.Info("feed server stopped")
}

func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Warn("failed to accept connection", zap.Error(err))
				continue
			}
		}

		// Check max connections
		if s.connManager.Count() >= s.config.MaxConnections {
			s.log.Warn("maximum connections reached, rejecting connection",
				zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		// Handle connection in a new goroutine
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Generate connection ID
	connectionID := uuid.New().String()
	log := s.log.With(zap.String("conn", connectionID))
	log.Debug("new connection", zap.String("remote", conn.RemoteAddr().String()))

	// Set identify timeout
	conn.SetReadDeadline(time.Now().Add(s.config.IdentifyTimeout))

	// Read subscribe message
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Debug("failed to read subscribe message", zap.Error(err))
		return
	}

	msg, err := protocol.ParseMessage([]byte(line))
	if err != nil {
		log.Debug("failed to parse subscribe message", zap.Error(err))
		s.sendError(conn)
		return
	}

	subscribeMsg, ok := msg.(*protocol.SubscribeMessage)
	if !ok {
		log.Debug("expected subscribe message", zap.String("got", fmt.Sprintf("%T", msg)))
		s.sendError(conn)
		return
	}

	// The ack goes out before registration so no broadcast can precede it
	if err := writeDirect(conn, protocol.NewAckMessage(protocol.AckStatusSubscribed)); err != nil {
		log.Debug("failed to send ack", zap.Error(err))
		return
	}

	// Register client
	if err := s.connManager.Register(connectionID, subscribeMsg.Client, conn); err != nil {
		log.Warn("failed to register client", zap.Error(err))
		s.sendError(conn)
		return
	}
	defer s.connManager.Unregister(connectionID)
	defer s.scheduler.Cancel(inactivityTimerID(connectionID))

	select {
	case <-s.stopCh:
		return
	default:
	}

	client, _ := s.connManager.Get(connectionID)
	log = log.With(zap.String("client", subscribeMsg.Client))
	log.Info("feed client subscribed")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := client.WriteLoop(writeTimeout); err != nil {
			log.Info("dropping feed client", zap.Error(err))
			conn.Close()
		}
	}()

	// A broadcast landing between View and Enqueue can overtake this
	// update; clients drop any update whose seq does not advance.
	if view := s.store.View(); view.Ready {
		if err := s.sendMessage(client, NewUpdateMessage(view)); err != nil {
			log.Debug("failed to send initial update", zap.Error(err))
			return
		}
	}

	// Schedule inactivity timer
	s.scheduleInactivityTimer(connectionID)

	// Handle messages
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		// Read message with a reasonable timeout
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Timeout, continue reading
				continue
			}
			// Connection closed or error
			log.Info("feed client disconnected", zap.Error(err))
			return
		}

		msg, err := protocol.ParseMessage([]byte(line))
		if err != nil {
			log.Debug("failed to parse message", zap.Error(err))
			continue
		}

		if err := s.handleMessage(client, msg); err != nil {
			log.Debug("failed to handle message", zap.Error(err))
		}

		// Update activity timestamp
		s.connManager.UpdateActivity(connectionID)

		// Reschedule inactivity timer
		s.scheduleInactivityTimer(connectionID)
	}
}

func (s *TCPServer) handleMessage(client *connection.ClientInfo, msg interface{}) error {
	switch msg.(type) {
	case *protocol.KeepaliveMessage:
		return s.sendMessage(client, protocol.NewAckMessage(protocol.AckStatusAlive))

	case *protocol.SubscribeMessage:
		// Already subscribed
		return s.sendMessage(client, protocol.NewAckMessage(protocol.AckStatusSubscribed))

	default:
		return fmt.Errorf("unknown message type: %T", msg)
	}
}

// broadcast queues the new state for every subscribed client. It never
// writes to a socket itself; a client whose queue is full is disconnected.
func (s *TCPServer) broadcast(view sensors.View) {
	data, err := protocol.EncodeMessage(NewUpdateMessage(view))
	if err != nil {
		s.log.Error("failed to encode update", zap.Error(err))
		return
	}

	for _, client := range s.connManager.GetAllClients() {
		if !client.Enqueue(data) {
			s.log.Info("dropping slow feed client", zap.String("conn", client.ConnectionID))
			client.Conn.Close()
		}
	}
}

// NewUpdateMessage builds the feed message for a store state
func NewUpdateMessage(view sensors.View) *protocol.UpdateMessage {
	return &protocol.UpdateMessage{
		Type:             protocol.MsgTypeUpdate,
		Source:           view.Source,
		Synthetic:        view.Synthetic,
		Snapshot:         view.Snapshot,
		AmbientDark:      view.Derived.AmbientDark,
		NearObjectActive: view.Derived.NearObjectActive,
		Alerts:           view.Alerts,
		HistoryLen:       len(view.History),
		UpdatedAt:        view.UpdatedAt,
		Seq:              view.Updates,
	}
}

func (s *TCPServer) sendMessage(client *connection.ClientInfo, msg interface{}) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if !client.Enqueue(data) {
		return fmt.Errorf("outbound queue full for %s", client.ConnectionID)
	}
	return nil
}

func (s *TCPServer) sendError(conn net.Conn) {
	writeDirect(conn, protocol.NewAckMessage(protocol.AckStatusError))
}

// writeDirect writes a message to a connection that has no write loop yet.
func writeDirect(conn net.Conn, msg interface{}) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = conn.Write(append(data, '\n'))
	return err
}

func inactivityTimerID(connectionID string) string {
	return fmt.Sprintf("inactivity-%s", connectionID)
}

func (s *TCPServer) scheduleInactivityTimer(connectionID string) {
	expiryAt := time.Now().Add(s.config.InactivityTimeout)

	callback := func() {
		s.log.Info("inactivity timeout", zap.String("conn", connectionID))

		client, exists := s.connManager.Get(connectionID)
		if !exists {
			return
		}

		// Close connection; unregister happens in the handler's deferred cleanup
		client.Conn.Close()
	}

	s.scheduler.Schedule(inactivityTimerID(connectionID), expiryAt, callback)
}
