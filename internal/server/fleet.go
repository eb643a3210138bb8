package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
)

func (s *Server) GetFleetConsumption(c *gin.Context) {
	var query struct {
		Date     string `form:"date"`
		ClientID string `form:"client_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, ok := s.date(c, "date", query.Date)
	if !ok {
		return
	}
	clientID, err := parseOptionalSnowflakeID(query.ClientID)
	if err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_client", "invalid client id"))
		return
	}

	resp, err := s.billingSvc.FleetConsumption(c.Request.Context(), billingdomain.FleetRequest{
		Date:     date,
		ClientID: clientID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetFleetUsage defaults to the last twelve months by month.
func (s *Server) GetFleetUsage(c *gin.Context) {
	var query struct {
		From        string `form:"from"`
		To          string `form:"to"`
		Granularity string `form:"granularity"`
		ClientID    string `form:"client_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	from, ok := s.date(c, "from", query.From)
	if !ok {
		return
	}
	to, ok := s.date(c, "to", query.To)
	if !ok {
		return
	}
	if to.IsZero() {
		to = s.clock.Now()
	}
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}
	clientID, err := parseOptionalSnowflakeID(query.ClientID)
	if err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_client", "invalid client id"))
		return
	}

	resp, err := s.billingSvc.FleetUsageSeries(c.Request.Context(), billingdomain.SeriesRequest{
		From:        from,
		To:          to,
		Granularity: billingdomain.Granularity(defaultString(query.Granularity, string(billingdomain.GranularityMonth))),
		ClientID:    clientID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// date parses a query timestamp in the billing location, aborting the request on failure.
func (s *Server) date(c *gin.Context, field, value string) (time.Time, bool) {
	parsed, err := parseOptionalTime(value, s.resolver.Location())
	if err != nil {
		AbortWithError(c, newValidationError(field, "invalid_date", "expected RFC3339 or YYYY-MM-DD"))
		return time.Time{}, false
	}
	return parsed, true
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
