package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) listToolsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.registry.Schemas())
	}
}

func (s *Server) getToolHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Query("name")
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'name' query parameter"})
			return
		}
		tool, ok := s.registry.Lookup(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "tool not found: " + name})
			return
		}
		c.JSON(http.StatusOK, tool)
	}
}

func (s *Server) listInvocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if l := c.Query("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "'limit' must be a non-negative integer"})
				return
			}
			limit = n
		}

		records, err := s.auditService.ListInvocations(c.Query("tool"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, records)
	}
}
