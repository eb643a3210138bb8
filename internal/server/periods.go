package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
)

const maxListedPeriods = 120

type periodView struct {
	Key   string `json:"key"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) ListPeriods(c *gin.Context) {
	var query struct {
		Date  string `form:"date"`
		Count string `form:"count"`
		Order string `form:"order"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, ok := s.date(c, "date", query.Date)
	if !ok {
		return
	}
	if date.IsZero() {
		date = s.clock.Now()
	}
	count, err := parseOptionalInt(query.Count)
	if err != nil {
		AbortWithError(c, newValidationError("count", "invalid_period_count", "count must be an integer"))
		return
	}
	n := 1
	if count != nil {
		n = *count
	}
	if n > maxListedPeriods {
		AbortWithError(c, billingperioddomain.ErrInvalidPeriodCount)
		return
	}
	order, err := billingperioddomain.ParseOrder(query.Order)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	periods, err := s.resolver.Enumerate(date, n, order)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]periodView, 0, len(periods))
	for _, p := range periods {
		views = append(views, periodView{
			Key:   p.Key(),
			Start: p.Start.Format(time.RFC3339),
			End:   p.End.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}
