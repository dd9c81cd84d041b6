package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oxang/groupforge/internal/models"
	"gorm.io/gorm"
)

// listLimit caps list responses; runs accumulate indefinitely.
const listLimit = 200

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", handleHealth(db))

	api := router.Group("/api")
	api.GET("/runs", handleRunList(db))
	api.GET("/runs/:id", handleRunDetail(db))
	api.GET("/operators", handleOperatorList(db))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleRunList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := db.Order("created_at DESC").Limit(listLimit)
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}

		var runs []models.ProvisionRun
		if err := query.Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
	}
}

func handleRunDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var run models.ProvisionRun
		err := db.First(&run, "id = ?", c.Param("id")).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func handleOperatorList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var operators []models.Operator
		if err := db.Order("authorized_at DESC").Limit(listLimit).Find(&operators).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"operators": operators, "count": len(operators)})
	}
}
