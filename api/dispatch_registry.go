// Package api: this file wires the Producer, Consumer, Control, and
// Introspection operations (spec §6) onto HTTP routes backed by an
// engine.Engine. Naming and dispatch-by-path mirror
// semantic/actionregistry.go's name-keyed handler lookup, generalized from
// one registry of ActionHandlers to Echo's own route table.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatch.evalgo.org/config"
	"dispatch.evalgo.org/engine"
	"dispatch.evalgo.org/envelope"
	"dispatch.evalgo.org/topology"
)

// DispatchHandlers exposes an Engine to the HTTP layer.
type DispatchHandlers struct {
	Engine *engine.Engine
}

// SetupRoutes registers every public and protected route except
// GET /health, which NewServer registers.
//
// Public:
//   - POST /auth/token
//   - GET  /metrics
//
// Protected (Bearer JWT, validated against auth.JWTSecret):
//   - Producer:      POST /v1/publish, /v1/tasks, /v1/jobs/:name/trigger, /v1/workflows
//   - Consumer:      POST /v1/workers/register, /v1/workers/:id/heartbeat,
//     /v1/leases/acquire, /v1/leases/:id/ack, /v1/leases/:id/nack, /v1/leases/:id/extend
//   - Control:       POST /v1/topology/exchanges, /v1/topology/queues,
//     /v1/topology/bindings, /v1/topology/tasks, /v1/topology/jobs,
//     /v1/queues/:name/pause, /v1/queues/:name/resume, /v1/workers/:id/drain,
//     /v1/envelopes/:id/revoke, /v1/workflows/:id/cancel,
//     /v1/workflows/:id/human-tasks/:taskId/complete
//   - Introspection: GET /v1/queues, /v1/queues/:name/stats,
//     /v1/envelopes/:id, /v1/workflows/:id, /v1/audit
func SetupRoutes(e *echo.Echo, jwtH *JWTHandlers, dispatchH *DispatchHandlers, auth config.AuthConfig) {
	authGroup := e.Group("/auth")
	authGroup.POST("/token", jwtH.GenerateToken)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.Use(jwtMiddleware(auth.JWTSecret))
	v1.Use(claimsToContext)

	v1.POST("/publish", dispatchH.Publish)
	v1.POST("/tasks", dispatchH.SubmitTask)
	v1.POST("/jobs/:name/trigger", dispatchH.TriggerJob)
	v1.POST("/workflows", dispatchH.StartWorkflow)

	v1.POST("/workers/register", dispatchH.RegisterWorker)
	v1.POST("/workers/:id/heartbeat", dispatchH.Heartbeat)
	v1.POST("/leases/acquire", dispatchH.AcquireLease)
	v1.POST("/leases/:id/ack", dispatchH.Ack)
	v1.POST("/leases/:id/nack", dispatchH.Nack)
	v1.POST("/leases/:id/extend", dispatchH.ExtendLease)

	topo := v1.Group("/topology", RequireScope("topology:write"))
	topo.POST("/exchanges", dispatchH.DeclareExchange)
	topo.POST("/queues", dispatchH.DeclareQueue)
	topo.POST("/bindings", dispatchH.DeclareBinding)
	topo.POST("/tasks", dispatchH.DeclareTask)
	topo.POST("/jobs", dispatchH.DeclareJob)

	v1.POST("/queues/:name/pause", dispatchH.PauseQueue, RequireScope("control:queues"))
	v1.POST("/queues/:name/resume", dispatchH.ResumeQueue, RequireScope("control:queues"))
	v1.POST("/workers/:id/drain", dispatchH.DrainWorker, RequireScope("control:workers"))
	v1.POST("/envelopes/:id/revoke", dispatchH.RevokeEnvelope, RequireScope("control:envelopes"))
	v1.POST("/workflows/:id/cancel", dispatchH.CancelWorkflowInstance, RequireScope("control:workflows"))
	v1.POST("/workflows/:id/human-tasks/:taskId/complete", dispatchH.CompleteHumanTask, RequireScope("control:workflows"))

	v1.GET("/queues", dispatchH.ListQueues)
	v1.GET("/queues/:name/stats", dispatchH.QueueStats)
	v1.GET("/envelopes/:id", dispatchH.DescribeEnvelope)
	v1.GET("/workflows/:id", dispatchH.GetWorkflowInstance)
	v1.GET("/audit", dispatchH.QueryAudit)
}

func errJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// --- Producer API ------------------------------------------------------------

type publishRequest struct {
	Exchange    string            `json:"exchange" validate:"required"`
	RoutingKey  string            `json:"routing_key"`
	Payload     []byte            `json:"payload"`
	Headers     map[string]string `json:"headers,omitempty"`
	Priority    int               `json:"priority"`
	NotBefore   time.Time         `json:"not_before,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at,omitempty"`
	Correlation string            `json:"correlation,omitempty"`
	Parent      string            `json:"parent,omitempty"`
}

// Publish is POST /v1/publish.
func (h *DispatchHandlers) Publish(c echo.Context) error {
	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if req.Exchange == "" {
		return errJSON(c, http.StatusBadRequest, errRequired("exchange"))
	}

	id, err := h.Engine.Publish(req.Exchange, req.RoutingKey, req.Payload, req.Headers, req.Priority, req.NotBefore, req.ExpiresAt, req.Correlation, req.Parent)
	if err != nil {
		return errJSON(c, http.StatusConflict, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id})
}

type submitTaskRequest struct {
	Task        string            `json:"task" validate:"required"`
	Args        map[string]string `json:"args,omitempty"`
	Priority    int               `json:"priority"`
	NotBefore   time.Time         `json:"not_before,omitempty"`
	Correlation string            `json:"correlation,omitempty"`
}

// SubmitTask is POST /v1/tasks.
func (h *DispatchHandlers) SubmitTask(c echo.Context) error {
	var req submitTaskRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if req.Task == "" {
		return errJSON(c, http.StatusBadRequest, errRequired("task"))
	}

	id, err := h.Engine.SubmitTask(req.Task, req.Args, req.Priority, req.NotBefore, req.Correlation)
	if err != nil {
		return errJSON(c, http.StatusNotFound, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id})
}

// TriggerJob is POST /v1/jobs/:name/trigger.
func (h *DispatchHandlers) TriggerJob(c echo.Context) error {
	id, err := h.Engine.TriggerJob(c.Param("name"))
	if err != nil {
		return errJSON(c, http.StatusNotFound, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id})
}

type startWorkflowRequest struct {
	Workflow    string                 `json:"workflow" validate:"required"`
	Variables   map[string]interface{} `json:"variables,omitempty"`
	Initiator   string                 `json:"initiator,omitempty"`
	BusinessKey string                 `json:"business_key,omitempty"`
}

// StartWorkflow is POST /v1/workflows.
func (h *DispatchHandlers) StartWorkflow(c echo.Context) error {
	var req startWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if req.Workflow == "" {
		return errJSON(c, http.StatusBadRequest, errRequired("workflow"))
	}

	id, err := h.Engine.StartWorkflow(req.Workflow, req.Variables, req.Initiator, req.BusinessKey)
	if err != nil {
		return errJSON(c, http.StatusNotFound, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"instance_id": id})
}

// --- Consumer API ------------------------------------------------------------

type registerWorkerRequest struct {
	ID           string               `json:"id" validate:"required"`
	Queues       []string             `json:"queues,omitempty"`
	Capabilities []string             `json:"capabilities,omitempty"`
	Resources    envelope.ResourceAsk `json:"resources,omitempty"`
}

// RegisterWorker is POST /v1/workers/register.
func (h *DispatchHandlers) RegisterWorker(c echo.Context) error {
	var req registerWorkerRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if req.ID == "" {
		return errJSON(c, http.StatusBadRequest, errRequired("id"))
	}

	h.Engine.RegisterWorker(req.ID, req.Queues, req.Capabilities, req.Resources)
	return c.NoContent(http.StatusNoContent)
}

// Heartbeat is POST /v1/workers/:id/heartbeat.
func (h *DispatchHandlers) Heartbeat(c echo.Context) error {
	h.Engine.Heartbeat(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

type acquireLeaseRequest struct {
	Queue string `json:"queue" validate:"required"`
}

// AcquireLease is POST /v1/leases/acquire.
func (h *DispatchHandlers) AcquireLease(c echo.Context) error {
	var req acquireLeaseRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if req.Queue == "" {
		return errJSON(c, http.StatusBadRequest, errRequired("queue"))
	}

	workerID, env, err := h.Engine.AcquireLease(req.Queue)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}
	if env == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"worker_id":    workerID,
		"id":           env.ID,
		"kind":         env.Kind,
		"routing_key":  env.RoutingKey,
		"payload":      env.Payload,
		"content_type": env.ContentType,
		"attempt":      env.Attempt,
		"max_attempts": env.MaxAttempts,
	})
}

// Ack is POST /v1/leases/:id/ack.
func (h *DispatchHandlers) Ack(c echo.Context) error {
	if err := h.Engine.Ack(c.Param("id")); err != nil {
		return errJSON(c, http.StatusNotFound, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type nackRequest struct {
	Requeue bool `json:"requeue"`
}

// Nack is POST /v1/leases/:id/nack.
func (h *DispatchHandlers) Nack(c echo.Context) error {
	var req nackRequest
	_ = c.Bind(&req)
	if err := h.Engine.Nack(c.Param("id"), req.Requeue); err != nil {
		return errJSON(c, http.StatusNotFound, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type extendLeaseRequest struct {
	WorkerID string        `json:"worker_id" validate:"required"`
	Duration time.Duration `json:"duration"`
}

// ExtendLease is POST /v1/leases/:id/extend.
func (h *DispatchHandlers) ExtendLease(c echo.Context) error {
	var req extendLeaseRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	h.Engine.ExtendLease(req.WorkerID, req.Duration)
	return c.NoContent(http.StatusNoContent)
}

// --- Control API: topology declarations --------------------------------------

// DeclareExchange is POST /v1/topology/exchanges.
func (h *DispatchHandlers) DeclareExchange(c echo.Context) error {
	var ex topology.Exchange
	if err := c.Bind(&ex); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if err := h.Engine.Topology.DeclareExchange(ex); err != nil {
		return errJSON(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeclareQueue is POST /v1/topology/queues.
func (h *DispatchHandlers) DeclareQueue(c echo.Context) error {
	var q topology.Queue
	if err := c.Bind(&q); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if err := h.Engine.Topology.DeclareQueue(q); err != nil {
		return errJSON(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeclareBinding is POST /v1/topology/bindings.
func (h *DispatchHandlers) DeclareBinding(c echo.Context) error {
	var b topology.Binding
	if err := c.Bind(&b); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if err := h.Engine.Topology.DeclareBinding(b); err != nil {
		return errJSON(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeclareTask is POST /v1/topology/tasks.
func (h *DispatchHandlers) DeclareTask(c echo.Context) error {
	var t topology.TaskDefinition
	if err := c.Bind(&t); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if err := h.Engine.Topology.DeclareTask(t); err != nil {
		return errJSON(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeclareJob is POST /v1/topology/jobs.
func (h *DispatchHandlers) DeclareJob(c echo.Context) error {
	var j topology.JobDefinition
	if err := c.Bind(&j); err != nil {
		return errJSON(c, http.StatusBadRequest, err)
	}
	if err := h.Engine.Topology.DeclareJob(j); err != nil {
		return errJSON(c, http.StatusConflict, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Control API: operational actions ----------------------------------------

// PauseQueue is POST /v1/queues/:name/pause.
func (h *DispatchHandlers) PauseQueue(c echo.Context) error {
	h.Engine.PauseQueue(c.Param("name"))
	return c.NoContent(http.StatusNoContent)
}

// ResumeQueue is POST /v1/queues/:name/resume.
func (h *DispatchHandlers) ResumeQueue(c echo.Context) error {
	h.Engine.ResumeQueue(c.Param("name"))
	return c.NoContent(http.StatusNoContent)
}

// DrainWorker is POST /v1/workers/:id/drain.
func (h *DispatchHandlers) DrainWorker(c echo.Context) error {
	h.Engine.DrainWorker(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

// RevokeEnvelope is POST /v1/envelopes/:id/revoke.
func (h *DispatchHandlers) RevokeEnvelope(c echo.Context) error {
	var req revokeRequest
	_ = c.Bind(&req)
	if err := h.Engine.RevokeEnvelope(c.Param("id"), req.Reason); err != nil {
		return errJSON(c, http.StatusNotFound, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CancelWorkflowInstance is POST /v1/workflows/:id/cancel.
func (h *DispatchHandlers) CancelWorkflowInstance(c echo.Context) error {
	if err := h.Engine.CancelWorkflowInstance(c.Param("id")); err != nil {
		return errJSON(c, http.StatusNotFound, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CompleteHumanTask is POST /v1/workflows/:id/human-tasks/:taskId/complete.
func (h *DispatchHandlers) CompleteHumanTask(c echo.Context) error {
	if err := h.Engine.CompleteHumanTask(c.Param("id"), c.Param("taskId")); err != nil {
		return errJSON(c, http.StatusNotFound, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Introspection API --------------------------------------------------------

// ListQueues is GET /v1/queues.
func (h *DispatchHandlers) ListQueues(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"queues": h.Engine.ListQueues()})
}

// QueueStats is GET /v1/queues/:name/stats.
func (h *DispatchHandlers) QueueStats(c echo.Context) error {
	depth := h.Engine.QueueStats(c.Param("name"))
	return c.JSON(http.StatusOK, map[string]int{"depth": depth})
}

// DescribeEnvelope is GET /v1/envelopes/:id.
func (h *DispatchHandlers) DescribeEnvelope(c echo.Context) error {
	env, ok := h.Engine.DescribeEnvelope(c.Param("id"))
	if !ok {
		return errJSON(c, http.StatusNotFound, errNotFound("envelope", c.Param("id")))
	}
	return c.JSON(http.StatusOK, env)
}

// GetWorkflowInstance is GET /v1/workflows/:id.
func (h *DispatchHandlers) GetWorkflowInstance(c echo.Context) error {
	inst, ok := h.Engine.GetWorkflowInstance(c.Param("id"))
	if !ok {
		return errJSON(c, http.StatusNotFound, errNotFound("workflow instance", c.Param("id")))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":                  inst.ID,
		"completed":           inst.IsCompleted(),
		"cancelled":           inst.Cancelled(),
		"variables":           inst.Variables(),
		"pending_human_tasks": inst.PendingHumanTasks(),
	})
}

// QueryAudit is GET /v1/audit?envelope_id=&limit=.
func (h *DispatchHandlers) QueryAudit(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		if parsed, err := parsePositiveInt(v); err == nil {
			limit = parsed
		}
	}
	entries := h.Engine.QueryAudit(c.QueryParam("envelope_id"), limit)
	return c.JSON(http.StatusOK, map[string]interface{}{"entries": entries})
}

// --- request validation helpers -----------------------------------------------

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}

func errNotFound(kind, id string) error {
	return fmt.Errorf("not-found: %s %s", kind, id)
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %q", s)
	}
	return n, nil
}
