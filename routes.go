package main

import (
	"errors"
	"net/http"

	"github.com/contextforge/contextforge/rag"
	"github.com/contextforge/contextforge/rag/history"
	"github.com/contextforge/contextforge/rag/supplier"
	"github.com/contextforge/contextforge/rag/types"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultTopK            = 5
	defaultMaxHistoryTurns = 3
)

func startAPI(listenAddress string, service *rag.Service, docStore *supplier.ChromemSupplier, registry *prometheus.Registry) {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	e.POST("/api/sessions", createSession(service))
	e.DELETE("/api/sessions/:id", dropSession(service))
	e.GET("/api/sessions/:id/stats", sessionStats(service))
	e.GET("/api/sessions/:id/export", exportSession(service))

	e.POST("/api/search", search(service, docStore))
	e.POST("/api/context", buildContext(service, docStore))
	e.POST("/api/chat", chat(service, docStore))

	if docStore != nil {
		e.POST("/api/documents", putDocument(docStore))
	}

	e.Logger.Fatal(e.Start(listenAddress))
}

type retrievalRequest struct {
	Query               string           `json:"query"`
	TopK                int              `json:"top_k"`
	Type                string           `json:"type"`
	Filters             map[string]any   `json:"filters,omitempty"`
	Weights             *types.Weights   `json:"weights,omitempty"`
	Documents           []types.Document `json:"documents,omitempty"`
	SessionID           string           `json:"session_id,omitempty"`
	IncludeConversation bool             `json:"include_conversation,omitempty"`
	MaxHistoryTurns     int              `json:"max_history_turns,omitempty"`
}

func (r *retrievalRequest) searchQuery() types.SearchQuery {
	topK := r.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return types.SearchQuery{
		Text:    r.Query,
		TopK:    topK,
		Filters: r.Filters,
		Weights: r.Weights,
	}
}

func (r *retrievalRequest) retrieveOptions() rag.RetrieveOptions {
	turns := r.MaxHistoryTurns
	if turns <= 0 {
		turns = defaultMaxHistoryTurns
	}
	return rag.RetrieveOptions{
		SessionID:           r.SessionID,
		SearchType:          types.SearchType(r.Type),
		IncludeConversation: r.IncludeConversation,
		MaxHistoryTurns:     turns,
	}
}

// resolveDocuments prefers the request's inline collection and falls back
// to the chromem store when one is configured.
func resolveDocuments(c echo.Context, r *retrievalRequest, docStore *supplier.ChromemSupplier) ([]types.Document, error) {
	if len(r.Documents) > 0 {
		return r.Documents, nil
	}
	if docStore != nil {
		return docStore.Export(c.Request().Context())
	}
	return nil, errors.New("no documents supplied and no document store configured")
}

func errorStatus(err error) int {
	if errors.Is(err, history.ErrSessionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func createSession(service *rag.Service) func(c echo.Context) error {
	return func(c echo.Context) error {
		id, err := service.Sessions().Create(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusCreated, map[string]string{"id": id})
	}
}

func dropSession(service *rag.Service) func(c echo.Context) error {
	return func(c echo.Context) error {
		if err := service.Sessions().Drop(c.Request().Context(), c.Param("id")); err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func sessionStats(service *rag.Service) func(c echo.Context) error {
	return func(c echo.Context) error {
		stats, err := service.Sessions().Stats(c.Request().Context(), c.Param("id"))
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, stats)
	}
}

func exportSession(service *rag.Service) func(c echo.Context) error {
	return func(c echo.Context) error {
		data, err := service.Sessions().Export(c.Request().Context(), c.Param("id"))
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func search(service *rag.Service, docStore *supplier.ChromemSupplier) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(retrievalRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		}

		documents, err := resolveDocuments(c, r, docStore)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		results, err := service.Search(c.Request().Context(), types.SearchType(r.Type), r.searchQuery(), documents)
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, results)
	}
}

func buildContext(service *rag.Service, docStore *supplier.ChromemSupplier) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(retrievalRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		}

		documents, err := resolveDocuments(c, r, docStore)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		result, err := service.Retrieve(c.Request().Context(), r.searchQuery(), documents, r.retrieveOptions())
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	}
}

func chat(service *rag.Service, docStore *supplier.ChromemSupplier) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(retrievalRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		}

		documents, err := resolveDocuments(c, r, docStore)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		result, err := service.Chat(c.Request().Context(), r.searchQuery(), documents, r.retrieveOptions())
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	}
}

func putDocument(docStore *supplier.ChromemSupplier) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Content  string            `json:"content"`
			Metadata map[string]string `json:"metadata,omitempty"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		}

		id, err := docStore.Put(c.Request().Context(), r.Content, r.Metadata)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusCreated, map[string]string{"id": id})
	}
}
