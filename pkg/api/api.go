// Package api implements the REST API for numeric field rules: ad-hoc
// validation, rule management and rule checks.
package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/lemonberrylabs/fieldrules/pkg/constraint"
	"github.com/lemonberrylabs/fieldrules/pkg/metrics"
	"github.com/lemonberrylabs/fieldrules/pkg/rules"
	"github.com/lemonberrylabs/fieldrules/pkg/store"
)

// Server is the REST API server.
type Server struct {
	app     *fiber.App
	store   *store.Store
	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	compiled map[string]compiledRule // keyed by rule name

	dirMu sync.Mutex // serializes LoadDir
}

// New creates a new API server. A nil logger disables logging and nil
// metrics disable both recording and the /metrics endpoint.
func New(s *store.Store, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		store:    s,
		log:      log,
		metrics:  m,
		compiled: make(map[string]compiledRule),
	}
	m.SetRules(len(s.ListRules()))

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	app.Use(fiberrecover.New())
	app.Use(srv.logRequest)

	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	app.Post("/v1/validate", srv.validate)

	// Rules API
	app.Post("/v1/rules", srv.createRule)
	app.Get("/v1/rules", srv.listRules)
	app.Get("/v1/rules/:rule", srv.getRule)
	app.Patch("/v1/rules/:rule", srv.updateRule)
	app.Delete("/v1/rules/:rule", srv.removeRule)

	// Checks API
	app.Post("/v1/rules/:rule/checks", srv.createCheck)
	app.Get("/v1/rules/:rule/checks", srv.listChecks)
	app.Get("/v1/rules/:rule/checks/:check", srv.getCheck)

	srv.app = app
	return srv
}

func (s *Server) logRequest(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug("HTTP request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("duration", time.Since(start)))
	return err
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// --- Validation ---

type validateRequest struct {
	Value      string `json:"value"`
	Constraint string `json:"constraint"`
}

func (s *Server) validate(c *fiber.Ctx) error {
	var req validateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Constraint == "" {
		return errorJSON(c, fiber.StatusBadRequest, "constraint is required")
	}

	start := time.Now()
	res := constraint.Explain(req.Value, req.Constraint)
	s.metrics.ObserveValidation(metrics.SourceAdHoc, res, time.Since(start))
	if res.Err != nil {
		s.log.Debug("Validation failed",
			zap.String("constraint", req.Constraint), zap.Error(res.Err))
	}
	return c.JSON(resultToJSON(res))
}

// --- Rule Handlers ---

type ruleRequest struct {
	Constraint  string `json:"constraint"`
	Description string `json:"description"`
}

func (s *Server) createRule(c *fiber.Ctx) error {
	ruleID := c.Query("ruleId")
	if ruleID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "ruleId query parameter is required")
	}
	if !rules.ValidName(ruleID) {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("invalid ruleId %q", ruleID))
	}

	var req ruleRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	prog, err := compileRequest(req)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	r, err := s.store.CreateRule(ruleID, req.Constraint, req.Description)
	if err != nil {
		return storeError(c, err)
	}
	s.cache(r, prog)
	s.metrics.SetRules(len(s.store.ListRules()))
	return c.JSON(ruleToJSON(r, prog))
}

func (s *Server) getRule(c *fiber.Ctx) error {
	r, err := s.store.GetRule(c.Params("rule"))
	if err != nil {
		return storeError(c, err)
	}
	prog, err := s.program(r)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(ruleToJSON(r, prog))
}

func (s *Server) listRules(c *fiber.Ctx) error {
	list := s.store.ListRules()
	items := make([]fiber.Map, 0, len(list))
	for _, r := range list {
		prog, err := s.program(r)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
		items = append(items, ruleToJSON(r, prog))
	}
	return c.JSON(fiber.Map{"rules": items})
}

func (s *Server) updateRule(c *fiber.Ctx) error {
	var req ruleRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	prog, err := compileRequest(req)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	r, err := s.store.UpdateRule(c.Params("rule"), req.Constraint, req.Description)
	if err != nil {
		return storeError(c, err)
	}
	s.cache(r, prog)
	return c.JSON(ruleToJSON(r, prog))
}

func (s *Server) removeRule(c *fiber.Ctx) error {
	name := c.Params("rule")
	if err := s.deleteRule(name); err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{})
}

func (s *Server) deleteRule(name string) error {
	if err := s.store.DeleteRule(name); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.compiled, name)
	s.mu.Unlock()

	s.metrics.SetRules(len(s.store.ListRules()))
	return nil
}

// --- Check Handlers ---

type checkRequest struct {
	Value string `json:"value"`
}

func (s *Server) createCheck(c *fiber.Ctx) error {
	var req checkRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}

	check, err := s.Check(c.Params("rule"), req.Value)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(check)
}

// Check evaluates value against the current revision of a stored rule and
// records the outcome.
func (s *Server) Check(ruleName, value string) (*store.Check, error) {
	r, err := s.store.GetRule(ruleName)
	if err != nil {
		return nil, err
	}
	prog, err := s.program(r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := prog.Explain(value)
	s.metrics.ObserveValidation(metrics.SourceRule, res, time.Since(start))
	if res.Err != nil {
		s.log.Debug("Check failed", zap.String("rule", ruleName), zap.Error(res.Err))
	}
	return s.store.RecordCheck(ruleName, value, res.Valid, res.Err)
}

func (s *Server) listChecks(c *fiber.Ctx) error {
	name := c.Params("rule")
	if _, err := s.store.GetRule(name); err != nil {
		return storeError(c, err)
	}
	checks := s.store.ListChecks(name)
	if checks == nil {
		checks = []*store.Check{}
	}
	return c.JSON(fiber.Map{"checks": checks})
}

func (s *Server) getCheck(c *fiber.Ctx) error {
	check, err := s.store.GetCheck(c.Params("rule"), c.Params("check"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(check)
}

// --- Helpers ---

func compileRequest(req ruleRequest) (*constraint.Program, error) {
	if req.Constraint == "" {
		return nil, errors.New("constraint is required")
	}
	prog, err := constraint.Compile(req.Constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid constraint: %w", err)
	}
	return prog, nil
}

// compiledRule is the compiled constraint of one rule revision.
type compiledRule struct {
	revisionID string
	program    *constraint.Program
}

// cache stores prog as the compiled form of r, replacing any older
// revision of the same rule.
func (s *Server) cache(r *store.Rule, prog *constraint.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.compiled[r.Name]; ok && newerRevision(cur.revisionID, r.RevisionID) {
		return
	}
	s.compiled[r.Name] = compiledRule{revisionID: r.RevisionID, program: prog}
}

// newerRevision reports whether revision ID a was issued after b. IDs are
// zero padded, so a longer ID is always the later one.
func newerRevision(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

// program returns the compiled constraint of a rule revision, compiling it
// on first use.
func (s *Server) program(r *store.Rule) (*constraint.Program, error) {
	s.mu.RLock()
	cur, ok := s.compiled[r.Name]
	s.mu.RUnlock()
	if ok && cur.revisionID == r.RevisionID {
		return cur.program, nil
	}

	prog, err := constraint.Compile(r.Constraint)
	if err != nil {
		return nil, fmt.Errorf("rule '%s': stored constraint does not compile: %w", r.Name, err)
	}
	s.cache(r, prog)
	return prog, nil
}

func errorJSON(c *fiber.Ctx, code int, message string) error {
	status := "INTERNAL"
	switch code {
	case fiber.StatusBadRequest:
		status = "INVALID_ARGUMENT"
	case fiber.StatusNotFound:
		status = "NOT_FOUND"
	case fiber.StatusConflict:
		status = "ALREADY_EXISTS"
	}
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	default:
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
}

func resultToJSON(res constraint.Result) fiber.Map {
	m := fiber.Map{"valid": res.Valid}
	if res.Expression != "" {
		m["expression"] = res.Expression
	}
	if d := constraint.DetailOf(res.Err); d != nil {
		m["error"] = d
	}
	return m
}

func ruleToJSON(r *store.Rule, prog *constraint.Program) fiber.Map {
	m := fiber.Map{
		"name":       r.Name,
		"constraint": r.Constraint,
		"normalized": prog.String(),
		"revisionId": r.RevisionID,
		"createTime": r.CreateTime.Format(time.RFC3339),
		"updateTime": r.UpdateTime.Format(time.RFC3339),
	}
	if r.Description != "" {
		m["description"] = r.Description
	}
	if r.Source != "" {
		m["source"] = r.Source
	}
	return m
}
