package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
)

const defaultForecastAhead = 3

func (s *Server) clientID(c *gin.Context) (snowflake.ID, bool) {
	id, err := parseSnowflakeID(c.Param("client_id"))
	if err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_client", "invalid client id"))
		return 0, false
	}
	return id, true
}

// GetClientDebt returns the client's balance. Without a convention it reports the
// current balance measured from each device's first reading.
func (s *Server) GetClientDebt(c *gin.Context) {
	var query struct {
		Date       string `form:"date"`
		Convention string `form:"convention"`
		RuleSet    string `form:"rule_set"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	clientID, ok := s.clientID(c)
	if !ok {
		return
	}
	date, ok := s.date(c, "date", query.Date)
	if !ok {
		return
	}

	resp, err := s.billingSvc.ClientDebt(c.Request.Context(), billingdomain.DebtRequest{
		ClientID:   clientID,
		Date:       date,
		Convention: consumptiondomain.Convention(defaultString(query.Convention, string(consumptiondomain.ConventionLifetime))),
		RuleSet:    pricingdomain.RuleSet(defaultString(query.RuleSet, string(pricingdomain.RuleSetDebt))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetClientHistory(c *gin.Context) {
	var query struct {
		Date       string `form:"date"`
		Periods    string `form:"periods"`
		Order      string `form:"order"`
		Convention string `form:"convention"`
		RuleSet    string `form:"rule_set"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	clientID, ok := s.clientID(c)
	if !ok {
		return
	}
	date, ok := s.date(c, "date", query.Date)
	if !ok {
		return
	}
	periods, err := parseOptionalInt(query.Periods)
	if err != nil {
		AbortWithError(c, newValidationError("periods", "invalid_period_count", "periods must be an integer"))
		return
	}
	order, err := billingperioddomain.ParseOrder(query.Order)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := billingdomain.HistoryRequest{
		ClientID:   clientID,
		Date:       date,
		Periods:    12,
		Order:      order,
		Convention: consumptiondomain.Convention(defaultString(query.Convention, string(consumptiondomain.ConventionPeriod))),
		RuleSet:    pricingdomain.RuleSet(defaultString(query.RuleSet, string(pricingdomain.RuleSetDebt))),
	}
	if periods != nil {
		req.Periods = *periods
	}

	resp, err := s.billingSvc.ClientHistory(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetClientForecast(c *gin.Context) {
	var query struct {
		Date  string `form:"date"`
		Ahead string `form:"ahead"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	clientID, ok := s.clientID(c)
	if !ok {
		return
	}
	date, ok := s.date(c, "date", query.Date)
	if !ok {
		return
	}
	ahead, err := parseOptionalInt(query.Ahead)
	if err != nil {
		AbortWithError(c, newValidationError("ahead", "invalid_forecast", "ahead must be an integer"))
		return
	}

	req := billingdomain.ForecastRequest{ClientID: clientID, Date: date, Ahead: defaultForecastAhead}
	if ahead != nil {
		req.Ahead = *ahead
	}

	resp, err := s.billingSvc.ClientForecast(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceLines(c *gin.Context) {
	var query struct {
		Date string `form:"date"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	clientID, ok := s.clientID(c)
	if !ok {
		return
	}
	date, ok := s.date(c, "date", query.Date)
	if !ok {
		return
	}

	resp, err := s.billingSvc.InvoiceLines(c.Request.Context(), billingdomain.InvoiceRequest{
		ClientID: clientID,
		Date:     date,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
