// package main provides the entry point and API handlers for the vulnprio
// microservice: it serves the prioritized vulnerability views of the current
// snapshot, accepts newly submitted findings, and exposes the GraphQL API.
package main

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/graphql-go/graphql"
	"github.com/ortelius/vulnprio/config"
	"github.com/ortelius/vulnprio/database"
	"github.com/ortelius/vulnprio/engine"
	gqlschema "github.com/ortelius/vulnprio/graphql"
	"github.com/ortelius/vulnprio/ingest"
	"github.com/ortelius/vulnprio/model"
	"github.com/ortelius/vulnprio/observability"
	"github.com/ortelius/vulnprio/util"
	"github.com/ortelius/vulnprio/view"
	"go.uber.org/zap"
)

// FindingSaver persists findings accepted by the ingestion endpoint.
type FindingSaver interface {
	SaveFindings(ctx context.Context, records []model.FindingRecord) error
}

// server bundles the collaborators shared by the handlers.
type server struct {
	cfg      *config.Config
	logger   *zap.Logger
	engine   *engine.Engine
	store    *engine.Store
	source   engine.Source
	findings FindingSaver
	wizard   *ingest.Wizard
}

// GraphQLHandler handles GraphQL requests
func GraphQLHandler(schema graphql.Schema, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var params struct {
			Query         string                 `json:"query"`
			OperationName string                 `json:"operationName"`
			Variables     map[string]interface{} `json:"variables"`
		}

		if err := c.BodyParser(&params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"errors": []map[string]interface{}{
					{
						"message": "Invalid request body",
					},
				},
			})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  params.Query,
			VariableValues: params.Variables,
			OperationName:  params.OperationName,
			Context:        c.UserContext(),
		})

		if len(result.Errors) > 0 {
			log.Warn("GraphQL errors", zap.Any("errors", result.Errors))
		}

		return c.JSON(result)
	}
}

// ============================================================================
// GET Handlers
// ============================================================================

// queryFromRequest builds a view query from the list endpoint's parameters.
func (s *server) queryFromRequest(c *fiber.Ctx) (view.Query, error) {
	q := view.Query{
		SortKey:   view.SortKey(c.Query("sort", string(view.SortPriority))),
		Direction: view.Direction(strings.ToLower(c.Query("order", string(view.Desc)))),
		Page:      c.QueryInt("page", 1),
		PageSize:  c.QueryInt("page_size", s.cfg.View.DefaultPageSize),
		Filter: view.Filter{
			Search: c.Query("search"),
		},
	}

	if q.PageSize > s.cfg.View.MaxPageSize {
		return q, &view.ConfigurationError{Field: "page size", Value: c.Query("page_size"), Reason: "exceeds the maximum page size"}
	}
	if sev := c.Query("severity"); sev != "" {
		q.Filter.Severity = model.ParseSeverity(sev)
		if q.Filter.Severity == model.SeverityUnknown && !strings.EqualFold(sev, string(model.SeverityUnknown)) {
			return q, &view.ConfigurationError{Field: "severity", Value: sev, Reason: "unknown severity"}
		}
	}
	if st := c.Query("status"); st != "" {
		status, ok := model.ParseStatus(st)
		if !ok {
			return q, &view.ConfigurationError{Field: "status", Value: st, Reason: "unknown status"}
		}
		q.Filter.Status = status
	}
	return q, nil
}

// GetVulnerabilities returns one page of the prioritized vulnerabilities
func (s *server) GetVulnerabilities(c *fiber.Ctx) error {
	p, err := s.store.Current()
	if err != nil {
		return s.fail(c, err)
	}

	q, err := s.queryFromRequest(c)
	if err != nil {
		return s.fail(c, err)
	}

	page, err := p.View(q)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(model.NewPageResponse(page))
}

// GetVulnerability returns a single vulnerability by finding id
func (s *server) GetVulnerability(c *fiber.Ctx) error {
	p, err := s.store.Current()
	if err != nil {
		return s.fail(c, err)
	}

	id := c.Params("id")
	v, ok := p.Find(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(model.Response{
			Success: false,
			Message: "Vulnerability " + id + " not found",
		})
	}
	return c.JSON(v)
}

// GetAssets returns one page of the snapshot's assets by priority score
func (s *server) GetAssets(c *fiber.Ctx) error {
	p, err := s.store.Current()
	if err != nil {
		return s.fail(c, err)
	}

	q := view.AssetQuery{
		Direction: view.Direction(strings.ToLower(c.Query("order", string(view.Desc)))),
		Page:      c.QueryInt("page", 1),
		PageSize:  c.QueryInt("page_size", s.cfg.View.DefaultPageSize),
		Search:    c.Query("search"),
	}
	if q.PageSize > s.cfg.View.MaxPageSize {
		return s.fail(c, &view.ConfigurationError{Field: "page size", Value: c.Query("page_size"), Reason: "exceeds the maximum page size"})
	}

	page, err := p.AssetPage(q)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(model.NewAssetPageResponse(page))
}

// GetAssetVulnerabilities returns an asset and a page of the findings
// correlated to it, by descending CVSS score unless ?sort says otherwise.
// Names such as package URLs contain slashes, so the asset is selected by the
// name and version query parameters.
func (s *server) GetAssetVulnerabilities(c *fiber.Ctx) error {
	p, err := s.store.Current()
	if err != nil {
		return s.fail(c, err)
	}

	name, version := c.Query("name"), c.Query("version")
	if name == "" {
		return s.fail(c, &view.ConfigurationError{Field: "asset name", Value: name, Reason: "is required"})
	}

	q, err := s.queryFromRequest(c)
	if err != nil {
		return s.fail(c, err)
	}
	if c.Query("sort") == "" {
		q.SortKey = view.SortCVSS
	}

	asset, page, ok, err := p.AssetVulnerabilities(name, version, q)
	if err != nil {
		return s.fail(c, err)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(model.Response{
			Success: false,
			Message: "Asset " + model.AssetKey(name, version) + " not found",
		})
	}
	return c.JSON(model.AssetDetailResponse{
		Asset:           asset,
		Vulnerabilities: model.NewPageResponse(page),
	})
}

// GetSummary returns the dashboard aggregates of the current snapshot
func (s *server) GetSummary(c *fiber.Ctx) error {
	p, err := s.store.Current()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p.SummaryResponse())
}

// ============================================================================
// POST Handlers
// ============================================================================

// PostFindings runs submitted vulnerabilities through the ingestion wizard and
// stores them so the next refresh correlates them. ?dry_run=true only previews.
func (s *server) PostFindings(c *fiber.Ctx) error {
	vulns, warnings, err := s.wizard.Process(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.IngestResponse{
			Success:  false,
			Message:  err.Error(),
			Warnings: warnings,
		})
	}

	if c.QueryBool("dry_run", false) || s.findings == nil {
		return c.JSON(model.IngestResponse{
			Success:         true,
			Message:         "Findings scored, not stored",
			Vulnerabilities: vulns,
			Warnings:        warnings,
		})
	}

	records := make([]model.FindingRecord, 0, len(vulns))
	for _, v := range vulns {
		records = append(records, ingest.ToRecord(v))
	}
	if err := s.findings.SaveFindings(c.UserContext(), records); err != nil {
		s.logger.Error("Failed to save findings", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(model.IngestResponse{
			Success: false,
			Message: "Failed to save findings: " + err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(model.IngestResponse{
		Success:         true,
		Message:         "Findings stored",
		Vulnerabilities: vulns,
		Warnings:        warnings,
	})
}

// PostRefresh reloads the snapshot and swaps it in. On failure the previous
// snapshot keeps serving.
func (s *server) PostRefresh(c *fiber.Ctx) error {
	p, err := s.engine.Refresh(c.UserContext(), s.source, s.store)
	if err != nil {
		s.logger.Error("Snapshot refresh failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(model.Response{
			Success: false,
			Message: err.Error(),
		})
	}
	return c.JSON(p.SummaryResponse())
}

// fail maps engine and view errors onto HTTP status codes.
func (s *server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, view.ErrConfiguration):
		status = fiber.StatusBadRequest
	case errors.Is(err, engine.ErrNoSnapshot):
		status = fiber.StatusServiceUnavailable
	}
	if status == fiber.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(model.Response{
		Success: false,
		Message: err.Error(),
	})
}

func newApp(s *server, schema graphql.Schema) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:     "vulnprio API v1.0",
		BodyLimit:   s.cfg.Server.BodyLimit,
		ReadTimeout: s.cfg.Server.ReadTimeout,
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
		})
	})

	// API routes
	api := app.Group("/api/v1")

	api.Get("/vulnerabilities", s.GetVulnerabilities)
	api.Get("/vulnerabilities/:id", s.GetVulnerability)
	api.Get("/assets", s.GetAssets)
	api.Get("/assets/vulnerabilities", s.GetAssetVulnerabilities)
	api.Get("/summary", s.GetSummary)

	api.Post("/findings", s.PostFindings)
	api.Post("/refresh", s.PostRefresh)

	api.Post("/graphql", GraphQLHandler(schema, s.logger))

	return app
}

// ============================================================================
// Main
// ============================================================================

func main() {
	cfg, err := config.Load(util.GetEnvDefault("VULNPRIO_CONFIG", ""))
	if err != nil {
		observability.GetLogger().Fatal("Failed to load configuration", zap.Error(err))
	}

	log := observability.InitializeLogger(cfg.Logger)
	defer observability.Sync()

	ctx := context.Background()

	// Initialize database connection
	db, err := database.InitializeDatabase(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}

	s := &server{
		cfg:      cfg,
		logger:   log,
		engine:   engine.New(log, cfg.Engine.IndexShards),
		store:    &engine.Store{},
		source:   db,
		findings: db,
		wizard:   ingest.NewWizard(log, nil),
	}

	// The service starts even when the first load fails, requests get 503 until a refresh succeeds.
	if _, err := s.engine.Refresh(ctx, s.source, s.store); err != nil {
		log.Error("Initial snapshot load failed", zap.Error(err))
	}

	// Initialize GraphQL schema
	gqlschema.InitStore(s.store, s.cfg.View.MaxPageSize)
	schema, err := gqlschema.CreateSchema()
	if err != nil {
		log.Fatal("Failed to create GraphQL schema", zap.Error(err))
	}

	app := newApp(s, schema)

	// Start server
	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	log.Info("GraphQL endpoint available at /api/v1/graphql")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
