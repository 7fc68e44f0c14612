package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"imucap/internal/acquisition"
)

// StatusSource is the read side of an acquisition session.
type StatusSource interface {
	Snapshot() acquisition.Snapshot
}

// NewRouter returns the status API:
//
//	GET /healthz  200 while sampling, 503 otherwise
//	GET /status   full snapshot
//	GET /sample   last reported sample, 404 before the first one
func NewRouter(src StatusSource) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		snap := src.Snapshot()
		code := http.StatusOK
		if snap.Stage != acquisition.StageSampling {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"stage": snap.Stage,
		})
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Snapshot())
	})

	router.GET("/sample", func(c *gin.Context) {
		snap := src.Snapshot()
		if snap.Last == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"err": "no sample yet",
			})
			return
		}
		c.JSON(http.StatusOK, snap.Last)
	})

	return router
}
