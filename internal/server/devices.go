package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
)

// GetDeviceConsumption reports one device, including devices no client owns.
func (s *Server) GetDeviceConsumption(c *gin.Context) {
	var query struct {
		Date       string `form:"date"`
		Convention string `form:"convention"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, ok := s.date(c, "date", query.Date)
	if !ok {
		return
	}

	resp, err := s.billingSvc.DeviceConsumption(c.Request.Context(), billingdomain.DeviceRequest{
		DeviceID:   c.Param("device_id"),
		Date:       date,
		Convention: consumptiondomain.Convention(defaultString(query.Convention, string(consumptiondomain.ConventionPeriod))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
