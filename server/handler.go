package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mikeydub/go-union/middleware"
	"github.com/mikeydub/go-union/publicapi"
	"github.com/mikeydub/go-union/service/enrichment"
	"github.com/mikeydub/go-union/service/multichain"
	"github.com/mikeydub/go-union/service/persist"
	sentryutil "github.com/mikeydub/go-union/service/sentry"
	"github.com/mikeydub/go-union/util"
)

func handlersInit(router *gin.Engine, deps *Dependencies) *gin.Engine {
	router.GET("/health", healthcheck())

	api := deps.api
	apiGroup := router.Group("/v0.1")
	if deps.limiter != nil {
		apiGroup.Use(middleware.RateLimited(deps.limiter))
	}
	apiGroup.Use(func(c *gin.Context) {
		publicapi.AddTo(c, api)
		c.Next()
	})

	// ITEMS

	itemsGroup := apiGroup.Group("/items")
	itemsGroup.GET("", listAcrossChains(api.Item.ListAcrossChains))
	itemsGroup.GET("/:id", getByID(api.Item.GetEnrichedByID))
	itemsGroup.POST("/byIds", getByIDs(api.Item.GetEnrichedByIDs))
	itemsGroup.GET("/:id/ownerships", listItemOwnerships(api.Item))

	// OWNERSHIPS

	ownershipsGroup := apiGroup.Group("/ownerships")
	ownershipsGroup.GET("", listAcrossChains(api.Ownership.ListAcrossChains))
	ownershipsGroup.GET("/:id", getByID(api.Ownership.GetEnrichedByID))
	ownershipsGroup.POST("/byIds", getByIDs(api.Ownership.GetEnrichedByIDs))

	// COLLECTIONS

	collectionsGroup := apiGroup.Group("/collections")
	collectionsGroup.GET("", listAcrossChains(api.Collection.ListAcrossChains))
	collectionsGroup.GET("/:id", getByID(api.Collection.GetEnrichedByID))
	collectionsGroup.POST("/byIds", getByIDs(api.Collection.GetEnrichedByIDs))

	// ORDERS

	ordersGroup := apiGroup.Group("/orders")
	ordersGroup.GET("", listAcrossChains(api.Order.ListAcrossChains))
	ordersGroup.GET("/:id", getByID(api.Order.GetByID))
	ordersGroup.POST("/byIds", getByIDs(api.Order.GetByIDs))

	// ACTIVITIES

	activitiesGroup := apiGroup.Group("/activities")
	activitiesGroup.GET("", listAcrossChains(api.Activity.ListAcrossChains))
	activitiesGroup.GET("/:id", getByID(api.Activity.GetByID))
	activitiesGroup.POST("/byIds", getByIDs(api.Activity.GetByIDs))

	// INTERNAL

	internalGroup := router.Group("/internal", middleware.InternalAuthRequired(deps.internalKey))
	internalGroup.POST("/events/orders", handleOrderEvent(deps.events))
	internalGroup.POST("/reconcile/:kind/:id", reconcileRecord(deps.reconciler))

	return router
}

type listQuery struct {
	Chains       []string `form:"chains"`
	Continuation string   `form:"continuation"`
	Size         int      `form:"size"`
}

// params accepts chains both repeated and comma separated
func (q listQuery) params() publicapi.ListParams {
	var chains []string
	for _, c := range q.Chains {
		for _, s := range strings.Split(c, ",") {
			if s = strings.TrimSpace(s); s != "" {
				chains = append(chains, s)
			}
		}
	}
	return publicapi.ListParams{Chains: chains, Continuation: q.Continuation, Size: q.Size}
}

type byIDsInput struct {
	IDs []string `json:"ids" binding:"required"`
}

func listAcrossChains[T any](list func(context.Context, publicapi.ListParams) (publicapi.Page[T], error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			errorResponse(c, persist.ErrInvalidInput{Parameter: "query", Reason: err.Error()})
			return
		}

		page, err := list(c.Request.Context(), q.params())
		if err != nil {
			errorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

func getByID[T any](get func(context.Context, string) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		entity, err := get(c.Request.Context(), c.Param("id"))
		if err != nil {
			errorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, entity)
	}
}

func getByIDs[T any](get func(context.Context, []string) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input byIDsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			errorResponse(c, persist.ErrInvalidInput{Parameter: "ids", Reason: err.Error()})
			return
		}

		entities, err := get(c.Request.Context(), input.IDs)
		if err != nil {
			errorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"entities": entities})
	}
}

func listItemOwnerships(api *publicapi.ItemAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			errorResponse(c, persist.ErrInvalidInput{Parameter: "query", Reason: err.Error()})
			return
		}

		page, err := api.ListOwnerships(c.Request.Context(), c.Param("id"), q.Continuation, q.Size)
		if err != nil {
			errorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

func handleOrderEvent(events *enrichment.OrderEventHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var order persist.Order
		if err := c.ShouldBindJSON(&order); err != nil {
			errorResponse(c, persist.ErrInvalidInput{Parameter: "order", Reason: err.Error()})
			return
		}

		if err := events.HandleOrder(c.Request.Context(), order); err != nil {
			errorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, util.SuccessResponse{Success: true})
	}
}

func reconcileRecord(reconciler *enrichment.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := multichain.ParseKind(c.Param("kind"))
		if err != nil {
			errorResponse(c, err)
			return
		}

		key, err := enrichment.ParseKey(kind, c.Param("id"))
		if err != nil {
			errorResponse(c, err)
			return
		}

		record, err := reconciler.Reconcile(c.Request.Context(), key)
		if err != nil {
			errorResponse(c, err)
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

// errorStatus maps the error taxonomy onto HTTP statuses
func errorStatus(err error) int {
	switch {
	case util.ErrorAs[persist.ErrNotFound](err):
		return http.StatusNotFound
	case util.ErrorAs[persist.ErrInvalidInput](err):
		return http.StatusBadRequest
	case util.ErrorAs[persist.ErrConcurrentWrite](err):
		return http.StatusConflict
	case util.ErrorAs[persist.ErrUpstream](err):
		return http.StatusBadGateway
	case util.ErrorAs[multichain.ErrNoAdapter](err):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func errorResponse(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		sentryutil.ReportError(c.Request.Context(), err)
	}
	if status == http.StatusConflict {
		c.Header("Retry-After", "1")
	}
	util.ErrResponse(c, status, err)
}
