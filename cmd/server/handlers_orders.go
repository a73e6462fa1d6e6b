package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sweetlane/sweetshop/internal/events"
	"github.com/sweetlane/sweetshop/internal/httpx"
	"github.com/sweetlane/sweetshop/internal/order"
)

type createOrderItem struct {
	SweetID  string `json:"sweet_id"`
	Quantity int    `json:"quantity"`
	// Price is accepted for compatibility with the old client but the server
	// snapshots the catalog price; only total_amount can be trusted, and only
	// when configured.
	Price *decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	UserID          string            `json:"user_id"`
	TotalAmount     *decimal.Decimal  `json:"total_amount"`
	DeliveryAddress string            `json:"delivery_address"`
	Items           []createOrderItem `json:"items"`
}

func createOrderHandler(repo order.Repository, pub *events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok := false
		defer func() { httpx.RecordOrderOperation("create", ok) }()

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errJSON(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.UserID == "" || req.DeliveryAddress == "" || len(req.Items) == 0 {
			errJSON(c, http.StatusBadRequest, "user_id, delivery_address and items are required")
			return
		}
		items := make([]order.PlaceItem, 0, len(req.Items))
		for _, it := range req.Items {
			if it.SweetID == "" || it.Quantity < 1 {
				errJSON(c, http.StatusBadRequest, "each item needs a sweet_id and a quantity >= 1")
				return
			}
			items = append(items, order.PlaceItem{SweetID: it.SweetID, Quantity: it.Quantity})
		}

		o, replayed, err := repo.Place(c.Request.Context(), order.PlaceRequest{
			UserID:          req.UserID,
			DeliveryAddress: req.DeliveryAddress,
			Items:           items,
			SuppliedTotal:   req.TotalAmount,
			ClientRef:       c.GetHeader("Idempotency-Key"),
		})
		if err != nil {
			var unknown *order.UnknownSweetError
			var short *order.InsufficientStockError
			switch {
			case errors.As(err, &unknown):
				c.JSON(http.StatusNotFound, gin.H{"error": "sweet not found", "sweet_id": unknown.SweetID})
			case errors.As(err, &short):
				c.JSON(http.StatusBadRequest, gin.H{
					"error":     "insufficient stock",
					"sweet_id":  short.SweetID,
					"available": short.Available,
					"requested": short.Requested,
				})
			default:
				errJSON(c, http.StatusInternalServerError, "could not place order")
			}
			return
		}
		ok = true

		if replayed {
			c.JSON(http.StatusOK, gin.H{"message": "Order already placed", "orderId": o.ID})
			return
		}
		if pub != nil {
			pub.Publish(c.Request.Context(), events.TypeOrderPlaced, events.OrderPlaced{
				OrderID:     o.ID,
				UserID:      o.UserID,
				TotalAmount: o.TotalAmount.String(),
				ItemCount:   len(o.Items),
			})
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Order placed successfully", "orderId": o.ID})
	}
}

func listUserOrdersHandler(repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := repo.ListByUser(c.Request.Context(), c.Param("userId"))
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not list orders")
			return
		}
		if out == nil {
			out = []order.Order{}
		}
		c.JSON(http.StatusOK, out)
	}
}

func getOrderHandler(repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := repo.GetByID(c.Request.Context(), c.Param("orderId"))
		if errors.Is(err, order.ErrNotFound) {
			errJSON(c, http.StatusNotFound, "order not found")
			return
		}
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not load order")
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func listAdminOrdersHandler(repo order.Repository, detailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := repo.ListAll(c.Request.Context(), detailed)
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not list orders")
			return
		}
		if out == nil {
			out = []order.Order{}
		}
		c.JSON(http.StatusOK, out)
	}
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func updateOrderStatusHandler(repo order.Repository, pub *events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok := false
		defer func() { httpx.RecordOrderOperation("update_status", ok) }()

		var req statusUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errJSON(c, http.StatusBadRequest, "invalid json")
			return
		}
		s := order.Status(req.Status)
		if !order.ValidStatus(s) {
			errJSON(c, http.StatusBadRequest, "invalid status")
			return
		}
		id := c.Param("orderId")
		err := repo.UpdateStatus(c.Request.Context(), id, s)
		var bad *order.TransitionError
		switch {
		case errors.Is(err, order.ErrNotFound):
			errJSON(c, http.StatusNotFound, "order not found")
			return
		case errors.As(err, &bad):
			errJSON(c, http.StatusConflict, bad.Error())
			return
		case err != nil:
			errJSON(c, http.StatusInternalServerError, "could not update status")
			return
		}
		ok = true
		if pub != nil {
			pub.Publish(c.Request.Context(), events.TypeOrderStatus, events.StatusChanged{
				OrderID: id,
				Status:  string(s),
			})
		}
		c.JSON(http.StatusOK, gin.H{"message": "Order status updated"})
	}
}

func updateOrderItemStatusHandler(repo order.Repository, pub *events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok := false
		defer func() { httpx.RecordOrderOperation("update_item_status", ok) }()

		var req statusUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errJSON(c, http.StatusBadRequest, "invalid json")
			return
		}
		s := order.ItemStatus(req.Status)
		if !order.ValidItemStatus(s) {
			errJSON(c, http.StatusBadRequest, "invalid status")
			return
		}
		id := c.Param("itemId")
		err := repo.UpdateItemStatus(c.Request.Context(), id, s)
		var bad *order.TransitionError
		switch {
		case errors.Is(err, order.ErrItemNotFound):
			errJSON(c, http.StatusNotFound, "order item not found")
			return
		case errors.As(err, &bad):
			errJSON(c, http.StatusConflict, bad.Error())
			return
		case err != nil:
			errJSON(c, http.StatusInternalServerError, "could not update status")
			return
		}
		ok = true
		if pub != nil {
			pub.Publish(c.Request.Context(), events.TypeOrderItemStatus, events.StatusChanged{
				ItemID: id,
				Status: string(s),
			})
		}
		c.JSON(http.StatusOK, gin.H{"message": "Order item status updated"})
	}
}
