package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenBusSpoofer/internal/bus"
	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

type registerDump struct {
	Register string `json:"register" yaml:"register"`
	Payload  string `json:"payload" yaml:"payload"`
	Length   int    `json:"length" yaml:"length"`
}

type spoofDump struct {
	Register  string `json:"register" yaml:"register"`
	Overrides string `json:"overrides" yaml:"overrides"`
}

// GET /api/v1/registers[?format=yaml]
func (s *Server) listRegisters(c *gin.Context) {
	entries := s.lm.Cache().Snapshot()

	response := make([]registerDump, 0, len(entries))
	for _, e := range entries {
		response = append(response, registerDump{
			Register: e.Register.String(),
			Payload:  bus.Hex(e.Payload),
			Length:   len(e.Payload),
		})
	}

	if c.Query("format") == "yaml" {
		out, err := yaml.Marshal(map[string]interface{}{
			"registers": response,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.NewErrorResponse("REGISTERS_500", "Failed to render YAML", err.Error()))
			return
		}
		c.Data(http.StatusOK, "application/yaml", out)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"registers": response,
		"count":     len(response),
	})
}

// GET /api/v1/registers/:reg
func (s *Server) getRegister(c *gin.Context) {
	reg, err := types.ParseRegister(c.Param("reg"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("REGISTERS_400", "Invalid register", err.Error()))
		return
	}

	payload, ok := s.lm.Cache().Get(reg)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("REGISTERS_404", "Register not cached", reg.String()))
		return
	}

	resp := gin.H{
		"register": reg.String(),
		"payload":  bus.Hex(payload),
		"length":   len(payload),
	}
	if ov, ok := s.lm.Overlay().Get(reg); ok {
		resp["spoof"] = ov.String()
	}

	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/registers/:reg/history
func (s *Server) getRegisterHistory(c *gin.Context) {
	reg, err := types.ParseRegister(c.Param("reg"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("REGISTERS_400", "Invalid register", err.Error()))
		return
	}

	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("STORAGE_503", "Database not enabled", nil))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("REGISTERS_400", "Invalid limit", c.Query("limit")))
		return
	}

	frames, err := store.RecentFrames(c.Request.Context(), reg, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("STORAGE_500", "Failed to load history", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"register": reg.String(),
		"frames":   frames,
		"count":    len(frames),
	})
}

// GET /api/v1/spoof
func (s *Server) listSpoof(c *gin.Context) {
	entries := s.lm.Overlay().Snapshot()

	response := make([]spoofDump, 0, len(entries))
	for _, e := range entries {
		response = append(response, spoofDump{
			Register:  e.Register.String(),
			Overrides: e.Override.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"spoof": response,
		"count": len(response),
	})
}
