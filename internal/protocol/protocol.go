package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentio/claude-agent-go/internal/errors"
)

// Transport defines the minimal interface needed for protocol operations.
//
// This interface is satisfied by the CLITransport but allows for testing
// with mock transports.
type Transport interface {
	ReadMessages(ctx context.Context) (<-chan map[string]any, <-chan error)
	SendMessage(ctx context.Context, data []byte) error
}

// Controller manages bidirectional control message communication with the Claude CLI.
//
// The Controller handles:
//   - Sending control_request messages with unique request IDs
//   - Receiving and routing control_response messages to waiting requests
//   - Request timeout enforcement
//   - Handler registration for incoming control_request messages from the CLI
//   - Forwarding non-control messages to consumers via the Messages channel
//
// Regular messages pass through an unbounded queue between the read loop and
// the Messages channel. The read loop therefore never blocks on a slow
// consumer, which matters because that same loop routes control responses: a
// consumer that stops reading must not be able to starve an outstanding
// interrupt or permission round-trip.
//
// The Controller must be started with Start() before use and manages its own
// goroutines for reading, routing, and delivering messages.
type Controller struct {
	log       *slog.Logger
	transport Transport

	// Request tracking
	pendingMu sync.RWMutex
	pending   map[string]*pendingRequest

	// Handler registry for incoming requests
	handlersMu sync.RWMutex
	handlers   map[string]RequestHandler

	// Unbounded buffer between the read loop and Messages().
	queueMu   sync.Mutex
	queue     []map[string]any
	queueSig  chan struct{}
	messages  chan map[string]any

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Closed when the first result message is observed on the wire.
	firstResultOnce sync.Once
	firstResult     chan struct{}

	// Closed when the transport stream ends without error.
	eofOnce sync.Once
	eof     chan struct{}

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// pendingRequest tracks an outgoing request awaiting response.
// The per-request timeout is enforced by the select in SendRequest.
type pendingRequest struct {
	subtype  string
	response chan *ControlResponse
}

// NewController creates a new protocol controller.
//
// The logger will receive debug, info, warn, and error messages during
// protocol operations. The transport must be connected before calling Start().
func NewController(log *slog.Logger, transport Transport) *Controller {
	return &Controller{
		log:         log.With("component", "protocol"),
		transport:   transport,
		pending:     make(map[string]*pendingRequest, 10),
		handlers:    make(map[string]RequestHandler, 10),
		queueSig:    make(chan struct{}, 1),
		messages:    make(chan map[string]any),
		firstResult: make(chan struct{}),
		eof:         make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// closeDone safely closes the done channel exactly once.
func (c *Controller) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// closeEOF marks the end of the transport stream exactly once.
func (c *Controller) closeEOF() {
	c.eofOnce.Do(func() {
		close(c.eof)
	})
}

// SetFatalError stores a fatal error and broadcasts to all waiters by closing done.
func (c *Controller) SetFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

// FatalError returns the fatal error if one occurred.
func (c *Controller) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// Done returns a channel that is closed when the controller stops.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// FirstResult returns a channel that is closed when the first result message
// arrives from the CLI. Input streaming uses this to defer closing stdin
// while hooks or SDK MCP servers may still be called back.
func (c *Controller) FirstResult() <-chan struct{} {
	return c.firstResult
}

// Start begins reading messages from the transport and routing control messages.
//
// This method spawns the read loop, which routes control_request and
// control_response messages, and the pump loop, which delivers queued
// regular messages to Messages(). Both stop when the context is cancelled or
// the transport is closed.
//
// Start must be called before SendRequest or any handlers will work.
func (c *Controller) Start(ctx context.Context) error {
	c.log.Debug("Starting protocol controller")

	messages, errs := c.transport.ReadMessages(ctx)

	c.wg.Add(2)

	go c.readLoop(ctx, messages, errs)
	go c.pumpLoop(ctx)

	c.log.Info("Protocol controller started")

	return nil
}

// Stop gracefully shuts down the controller.
//
// This method signals the read and pump loops to stop and waits for all
// handler goroutines to finish. It's safe to call Stop multiple times, or
// without a prior Start.
func (c *Controller) Stop() {
	c.log.Debug("Stopping protocol controller")

	c.closeDone()

	c.wg.Wait()
	c.log.Info("Protocol controller stopped")
}

// Messages returns a channel for receiving non-control messages.
//
// The controller acts as a multiplexer: it reads all messages from the transport,
// handles control messages internally, and forwards regular messages through this
// channel. Consumers should read from this channel instead of calling
// transport.ReadMessages() directly.
//
// The channel is closed when the controller stops or the transport closes.
// Use Done() and FatalError() to detect and retrieve transport errors.
func (c *Controller) Messages() <-chan map[string]any {
	return c.messages
}

// SendRequest sends a control request and waits for the response.
//
// This method generates a unique request ID, sends the control_request,
// and blocks until a matching control_response is received or the timeout
// expires.
//
// The timeout parameter specifies how long to wait for a response.
// Use context cancellation for overall operation timeout.
//
// Returns an error if the request fails to send, times out, or the CLI
// returns an error response.
func (c *Controller) SendRequest(
	ctx context.Context,
	subtype string,
	payload map[string]any,
	timeout time.Duration,
) (*ControlResponse, error) {
	// Generate unique request ID
	requestID := c.generateRequestID()

	c.log.Debug("Sending control request", "request_id", requestID, "subtype", subtype)

	// Create pending request tracker
	responseChan := make(chan *ControlResponse, 1)
	pending := &pendingRequest{
		subtype:  subtype,
		response: responseChan,
	}

	c.pendingMu.Lock()
	c.pending[requestID] = pending
	c.pendingMu.Unlock()

	// Build nested request structure
	requestPayload := map[string]any{"subtype": subtype}
	maps.Copy(requestPayload, payload)

	req := &ControlRequest{
		Type:      "control_request",
		RequestID: requestID,
		Request:   requestPayload,
	}

	data, err := json.Marshal(req)
	if err != nil {
		c.log.Error("Failed to marshal control request", "error", err)

		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := c.transport.SendMessage(ctx, data); err != nil {
		c.log.Error("Failed to send control request", "error", err)

		return nil, fmt.Errorf("send request: %w", err)
	}

	c.log.Debug("Control request sent, waiting for response", "request_id", requestID)

	// Wait for response with timeout
	select {
	case resp := <-responseChan:
		if resp.IsError() {
			errMsg := resp.ErrorMessage()
			c.log.Warn("Control request returned error", "request_id", requestID, "error", errMsg)

			return nil, fmt.Errorf("request error: %s", errMsg)
		}

		c.log.Debug("Received control response", "request_id", requestID)

		return resp, nil

	case <-c.done:
		// Controller stopped (possibly due to transport error) - fail fast
		// Clean up pending request since we're exiting without a response
		c.pendingMu.Lock()
		delete(c.pending, requestID)
		c.pendingMu.Unlock()

		if err := c.FatalError(); err != nil {
			c.log.Warn("Transport error during request", "request_id", requestID, "error", err)

			return nil, fmt.Errorf("transport error: %w", err)
		}

		c.log.Debug("Controller stopped during request", "request_id", requestID)

		return nil, errors.ErrControllerStopped

	case <-time.After(timeout):
		// Clean up pending request since we're exiting without a response
		c.pendingMu.Lock()
		delete(c.pending, requestID)
		c.pendingMu.Unlock()

		c.log.Warn("Control request timed out", "request_id", requestID, "timeout", timeout)

		return nil, fmt.Errorf("%w after %s", errors.ErrRequestTimeout, timeout)

	case <-ctx.Done():
		// Clean up pending request since we're exiting without a response
		c.pendingMu.Lock()
		delete(c.pending, requestID)
		c.pendingMu.Unlock()

		c.log.Debug("Control request cancelled", "request_id", requestID)

		return nil, ctx.Err()
	}
}

// RegisterHandler registers a handler for incoming control requests.
//
// When the CLI sends a control_request with the specified subtype, the handler
// will be invoked. The handler should return a payload map or an error.
//
// Only one handler can be registered per subtype. Registering a handler for
// the same subtype twice will override the previous handler.
func (c *Controller) RegisterHandler(subtype string, handler RequestHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.log.Debug("Registering control request handler", "subtype", subtype)
	c.handlers[subtype] = handler
}

// readLoop reads messages from the transport and routes control messages.
//
// When the loop exits for any reason, every pending request is failed
// immediately: nothing can answer them anymore, so making callers sit out
// their timeouts would only delay the inevitable.
func (c *Controller) readLoop(
	ctx context.Context,
	messages <-chan map[string]any,
	errs <-chan error,
) {
	defer c.wg.Done()
	defer c.log.Debug("Protocol read loop stopped")
	defer c.failPending()
	defer c.closeEOF()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				c.log.Debug("Message channel closed")

				return
			}

			c.handleMessage(ctx, msg)

		case err, ok := <-errs:
			if !ok {
				c.log.Debug("Error channel closed")

				return
			}

			if err != nil {
				c.log.Debug("Transport error in protocol", "error", err)
				c.SetFatalError(err)

				return
			}

		case <-c.done:
			c.log.Debug("Protocol controller stop signal received")

			return

		case <-ctx.Done():
			c.log.Debug("Context cancelled in protocol read loop")

			return
		}
	}
}

// failPending claims every pending request and delivers an error response so
// callers unblock immediately rather than waiting out their timeouts.
func (c *Controller) failPending() {
	reason := "protocol controller stopped"
	if err := c.FatalError(); err != nil {
		reason = err.Error()
	}

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.pendingMu.Unlock()

	for requestID, p := range pending {
		c.log.Debug("Failing pending request", "request_id", requestID, "reason", reason)

		// Safe to send directly: we own the claimed entry and the channel
		// is buffered.
		p.response <- &ControlResponse{
			Type: "control_response",
			Response: map[string]any{
				"subtype":    "error",
				"request_id": requestID,
				"error":      reason,
			},
		}
	}
}

// pumpLoop drains the queue into the Messages channel.
func (c *Controller) pumpLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.messages)

	for {
		c.queueMu.Lock()

		var msg map[string]any
		if len(c.queue) > 0 {
			msg = c.queue[0]
			c.queue = c.queue[1:]
		}

		c.queueMu.Unlock()

		if msg == nil {
			select {
			case <-c.queueSig:
				continue

			case <-c.eof:
				// Stream ended; deliver anything that raced in, then stop.
				c.queueMu.Lock()
				remaining := len(c.queue)
				c.queueMu.Unlock()

				if remaining > 0 {
					continue
				}

				return

			case <-c.done:
				return

			case <-ctx.Done():
				return
			}
		}

		select {
		case c.messages <- msg:

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// enqueueMessage appends a regular message for delivery without ever
// blocking the read loop.
func (c *Controller) enqueueMessage(msg map[string]any) {
	c.queueMu.Lock()
	c.queue = append(c.queue, msg)
	c.queueMu.Unlock()

	select {
	case c.queueSig <- struct{}{}:
	default:
	}
}

// handleMessage routes a message based on its type.
func (c *Controller) handleMessage(ctx context.Context, msg map[string]any) {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case "control_response":
		c.handleControlResponse(msg)

	case "control_request":
		c.handleControlRequest(ctx, msg)

	case "control_cancel_request":
		c.handleCancelRequest(ctx, msg)

	default:
		if msgType == "result" {
			c.firstResultOnce.Do(func() {
				close(c.firstResult)
			})
		}

		c.enqueueMessage(msg)
	}
}

// handleControlResponse routes a response to the waiting request.
func (c *Controller) handleControlResponse(msg map[string]any) {
	// Extract from nested response
	responseData, ok := msg["response"].(map[string]any)
	if !ok {
		c.log.Warn("Control response missing 'response' field")

		return
	}

	requestID, ok := responseData["request_id"].(string)
	if !ok {
		c.log.Warn("Control response missing request_id in response")

		return
	}

	c.log.Debug("Received control response", "request_id", requestID)

	// Find and claim pending request atomically
	c.pendingMu.Lock()

	pending, exists := c.pending[requestID]
	if exists {
		delete(c.pending, requestID)
	}

	c.pendingMu.Unlock()

	if !exists {
		// Late or bogus response; discard without disturbing other requests.
		c.log.Warn("No pending request for control response", "request_id", requestID)

		return
	}

	// Build ControlResponse with nested format
	resp := &ControlResponse{
		Type:     "control_response",
		Response: responseData,
	}

	// Send to waiting goroutine (we own it now, blocking is safe since channel is buffered)
	pending.response <- resp
}

// handleControlRequest invokes the registered handler for an incoming request.
//
// The handler runs on its own goroutine so the read loop stays responsive,
// and it produces exactly one wire response: success with the handler's
// payload, or error with the handler's message.
func (c *Controller) handleControlRequest(ctx context.Context, msg map[string]any) {
	// Extract request_id from top level, request data from nested field
	requestID, ok := msg["request_id"].(string)
	if !ok {
		c.log.Warn("Control request missing request_id")

		return
	}

	requestData, ok := msg["request"].(map[string]any)
	if !ok {
		c.log.Warn("Control request missing 'request' field")

		return
	}

	// Build ControlRequest with nested format
	req := &ControlRequest{
		Type:      "control_request",
		RequestID: requestID,
		Request:   requestData,
	}

	subtype := req.Subtype()

	c.log.Debug("Received control request from CLI", "request_id", requestID, "subtype", subtype)

	// Find handler
	c.handlersMu.RLock()
	handler, exists := c.handlers[subtype]
	c.handlersMu.RUnlock()

	if !exists {
		// Interrupt requests from the CLI are acknowledged and otherwise
		// ignored; there is no SDK-side work to interrupt.
		if subtype == "interrupt" {
			c.log.Debug("Acknowledging interrupt request", "request_id", requestID)
			c.sendSuccessResponse(ctx, requestID, nil)

			return
		}

		c.log.Warn("No handler registered for control request subtype", "subtype", subtype)
		c.sendErrorResponse(ctx, requestID, "no handler registered")

		return
	}

	// Run handler in goroutine so the read loop can keep routing messages
	c.wg.Go(func() {
		payload, err := handler(ctx, req)
		if err != nil {
			c.log.Warn("Handler returned error", "request_id", requestID, "error", err.Error())
			c.sendErrorResponse(ctx, requestID, err.Error())

			return
		}

		c.sendSuccessResponse(ctx, requestID, payload)
	})
}

// sendSuccessResponse sends a successful control response.
func (c *Controller) sendSuccessResponse(
	ctx context.Context,
	requestID string,
	payload map[string]any,
) {
	resp := &ControlResponse{
		Type: "control_response",
		Response: map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   payload,
		},
	}

	c.writeResponse(ctx, resp)
}

// sendErrorResponse sends an error control response.
func (c *Controller) sendErrorResponse(
	ctx context.Context,
	requestID string,
	errMsg string,
) {
	resp := &ControlResponse{
		Type: "control_response",
		Response: map[string]any{
			"subtype":    "error",
			"request_id": requestID,
			"error":      errMsg,
		},
	}

	c.writeResponse(ctx, resp)
}

// writeResponse marshals and sends a control response. Write failures
// against a transport that is already gone are expected during shutdown
// and logged at debug level only; there is no one left to answer.
func (c *Controller) writeResponse(ctx context.Context, resp *ControlResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.log.Error("Failed to marshal control response", "error", err)

		return
	}

	if err := c.transport.SendMessage(ctx, data); err != nil {
		if c.stopping() || ctx.Err() != nil ||
			stderrors.Is(err, errors.ErrTransportNotConnected) ||
			stderrors.Is(err, errors.ErrStdinClosed) {
			c.log.Debug("Dropped control response on closed transport", "error", err)

			return
		}

		c.log.Error("Failed to send control response", "error", err)
	}
}

// stopping reports whether the controller has begun shutting down.
func (c *Controller) stopping() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// generateRequestID creates a unique request ID using ULID.
func (c *Controller) generateRequestID() string {
	return ulid.Make().String()
}

// handleCancelRequest handles control_cancel_request messages from the CLI.
//
// Cancellation of SDK-side handlers is not implemented: the request is
// acknowledged so the CLI does not wait, and the running handler completes
// normally. Handlers are torn down only by Stop().
func (c *Controller) handleCancelRequest(ctx context.Context, msg map[string]any) {
	requestID, ok := msg["request_id"].(string)
	if !ok {
		c.log.Warn("Cancel request missing request_id")

		return
	}

	c.log.Debug("Acknowledging cancel request", "request_id", requestID)

	resp := &ControlResponse{
		Type: "control_response",
		Response: map[string]any{
			"subtype":    "cancel_acknowledgment",
			"request_id": requestID,
		},
	}

	c.writeResponse(ctx, resp)
}
