package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/syncspace/collab-app/internal/hub"
	"github.com/syncspace/collab-app/internal/messaging"
	"github.com/syncspace/collab-app/internal/metrics"
	"github.com/syncspace/collab-app/internal/protocol"
	"github.com/syncspace/collab-app/internal/ratelimit"
	"github.com/syncspace/collab-app/internal/session"
	"github.com/syncspace/collab-app/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("OUTBOUND_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.OutboundQueueSize = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	hubConfig := hub.DefaultConfig()
	if v := os.Getenv("DEBOUNCE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			hubConfig.DebounceWindow = d
		}
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "collab-1"
	}

	presenceStore, err := session.NewStore(redisAddr, serverName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	limiter := ratelimit.NewLimiter(presenceStore.Client())

	log.Printf("Collaboration server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  outbound_queue:  %d", config.OutboundQueueSize)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  debounce_window: %s", hubConfig.DebounceWindow)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  server_name:     %s", serverName)

	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(config, presenceStore, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	coordinator := hub.New(hubConfig, server, presenceStore, natsClient)

	// sendError replies to a single connection with a structured error.
	sendError := func(conn *ws.Connection, code, message string) {
		resp, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
			Code: code, Message: message,
		})
		if err != nil {
			return
		}
		if err := conn.WriteMessage(resp); err != nil {
			log.Printf("send error to %s failed: %v", conn.ID, err)
		}
	}

	// -----------------------------------------------------------------------
	// join-room — enter a collaboration room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoinRoom, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.JoinRoomMsg)
		if !ok {
			return
		}

		if err := hub.ValidateRoomID(joinMsg.RoomID); err != nil {
			metrics.CommandsDroppedTotal.WithLabelValues("invalid").Inc()
			sendError(conn, "invalid_room", err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleJoin)
		cancel()
		if !allowed {
			metrics.CommandsDroppedTotal.WithLabelValues("rate_limited").Inc()
			sendError(conn, "rate_limited", "too many join attempts")
			return
		}

		coordinator.Join(conn.ID, joinMsg.RoomID, hub.Identity{
			UserID:   joinMsg.UserID,
			Username: joinMsg.Username,
		})
		log.Printf("join-room from conn=%s room=%s user=%s", conn.ID, joinMsg.RoomID, joinMsg.UserID)
	})

	// -----------------------------------------------------------------------
	// leave-room — leave the current room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeLeaveRoom, func(conn *ws.Connection, msg interface{}) {
		coordinator.Leave(conn.ID)
		log.Printf("leave-room from conn=%s", conn.ID)
	})

	// -----------------------------------------------------------------------
	// chat-message — broadcast a chat message to the room, sender included
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		chatMsg, ok := msg.(protocol.ChatMessageMsg)
		if !ok {
			return
		}

		if err := hub.ValidateChatMessage(chatMsg.Message); err != nil {
			metrics.CommandsDroppedTotal.WithLabelValues("invalid").Inc()
			sendError(conn, "invalid_message", err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleChat)
		cancel()
		if !allowed {
			metrics.CommandsDroppedTotal.WithLabelValues("rate_limited").Inc()
			sendError(conn, "rate_limited", "too many messages")
			return
		}

		coordinator.Chat(conn.ID, chatMsg.Message)
	})

	// -----------------------------------------------------------------------
	// document-change — debounced whole-content document snapshot
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeDocumentChange, func(conn *ws.Connection, msg interface{}) {
		docMsg, ok := msg.(protocol.DocumentChangeMsg)
		if !ok {
			return
		}
		if docMsg.DocumentID == "" {
			metrics.CommandsDroppedTotal.WithLabelValues("invalid").Inc()
			sendError(conn, "invalid_document", "document id is empty")
			return
		}
		coordinator.DocumentChange(conn.ID, docMsg.DocumentID, docMsg.Content)
	})

	// -----------------------------------------------------------------------
	// cursor-move — relay cursor position to the rest of the room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeCursorMove, func(conn *ws.Connection, msg interface{}) {
		curMsg, ok := msg.(protocol.CursorMoveMsg)
		if !ok {
			return
		}
		coordinator.CursorMove(conn.ID, curMsg.Position.X, curMsg.Position.Y)
	})

	// Per-IP connection rate limiting, checked before the WebSocket upgrade.
	server.SetConnectGate(func(remoteIP string) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		allowed, _ := limiter.Allow(ctx, remoteIP, ratelimit.RuleConnect)
		if !allowed {
			metrics.CommandsDroppedTotal.WithLabelValues("rate_limited").Inc()
			log.Printf("connection rate limited ip=%s", remoteIP)
		}
		return allowed
	})

	// Wire connection lifecycle into the coordinator.
	server.SetOnConnect(coordinator.Connect)
	server.SetOnDisconnect(coordinator.Disconnect)

	coordinator.Start()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		coordinator.Stop()
		natsClient.Close()
		if err := presenceStore.Close(); err != nil {
			log.Printf("presence store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
