package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sweetlane/sweetshop/internal/events"
	"github.com/sweetlane/sweetshop/internal/sweet"
)

func listSweetsHandler(repo sweet.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		offset, _ := strconv.Atoi(c.Query("offset"))
		out, err := repo.List(c.Request.Context(), sweet.Query{
			Q:      c.Query("q"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not list sweets")
			return
		}
		if out == nil {
			out = []sweet.Sweet{}
		}
		c.JSON(http.StatusOK, out)
	}
}

func createSweetHandler(repo sweet.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sweet.CreateSweetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errJSON(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Name == "" || !req.Price.IsPositive() {
			errJSON(c, http.StatusBadRequest, "sweet_name and a positive price are required")
			return
		}
		if req.StockQuantity < 0 {
			errJSON(c, http.StatusBadRequest, "stock_quantity must be non-negative")
			return
		}
		s := &sweet.Sweet{
			ID:            uuid.NewString(),
			Name:          req.Name,
			Category:      req.Category,
			Weight:        req.Weight,
			Flavor:        req.Flavor,
			Location:      req.Location,
			ShopAddr:      req.ShopAddr,
			Price:         req.Price,
			Type:          req.Type,
			Image:         req.Image,
			StockQuantity: req.StockQuantity,
		}
		if err := repo.Create(c.Request.Context(), s); err != nil {
			errJSON(c, http.StatusInternalServerError, "could not create sweet")
			return
		}
		c.JSON(http.StatusCreated, s)
	}
}

func updateSweetHandler(repo sweet.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sweet.CreateSweetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errJSON(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.StockQuantity < 0 {
			errJSON(c, http.StatusBadRequest, "stock_quantity must be non-negative")
			return
		}
		s := &sweet.Sweet{
			ID:            c.Param("id"),
			Name:          req.Name,
			Category:      req.Category,
			Weight:        req.Weight,
			Flavor:        req.Flavor,
			Location:      req.Location,
			ShopAddr:      req.ShopAddr,
			Price:         req.Price,
			Type:          req.Type,
			Image:         req.Image,
			StockQuantity: req.StockQuantity,
		}
		err := repo.Update(c.Request.Context(), s)
		if errors.Is(err, sweet.ErrNotFound) {
			errJSON(c, http.StatusNotFound, "sweet not found")
			return
		}
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not update sweet")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Sweet updated"})
	}
}

func deleteSweetHandler(repo sweet.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := repo.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not delete sweet")
			return
		}
		if !deleted {
			errJSON(c, http.StatusNotFound, "sweet not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Sweet deleted"})
	}
}

type updateStockRequest struct {
	StockQuantity *int `json:"stock_quantity"`
}

func updateStockHandler(repo sweet.Repository, pub *events.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateStockRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.StockQuantity == nil {
			errJSON(c, http.StatusBadRequest, "stock_quantity is required")
			return
		}
		if *req.StockQuantity < 0 {
			errJSON(c, http.StatusBadRequest, "stock_quantity must be non-negative")
			return
		}
		id := c.Param("id")
		err := repo.SetStock(c.Request.Context(), id, *req.StockQuantity)
		if errors.Is(err, sweet.ErrNotFound) {
			errJSON(c, http.StatusNotFound, "sweet not found")
			return
		}
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not update stock")
			return
		}
		if pub != nil {
			pub.Publish(c.Request.Context(), events.TypeStockAdjusted, events.StockAdjusted{
				SweetID:       id,
				StockQuantity: *req.StockQuantity,
			})
		}
		c.JSON(http.StatusOK, gin.H{"message": "Stock updated", "stock_quantity": *req.StockQuantity})
	}
}
