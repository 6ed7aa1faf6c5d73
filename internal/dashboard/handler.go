package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/sunmeter-lab/sunmeter/internal/core/errors"
)

// RegisterRoutes registers the dashboard API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/dashboard/daily/:date", s.HandleDaily)
	r.GET("/v1/dashboard/monthly/:year/:month", s.HandleMonthly)
	r.GET("/v1/dashboard/yearly/:year", s.HandleYearly)
}

// HandleDaily handles GET /v1/dashboard/daily/:date (date as YYYY-MM-DD).
func (s *Service) HandleDaily(c *gin.Context) {
	date, err := time.ParseInLocation(dateLayout, c.Param("date"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParamError,
			Message:   "Invalid date, expected YYYY-MM-DD",
			Details:   err.Error(),
		})
		return
	}

	view, err := s.Daily(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to build daily view",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleMonthly handles GET /v1/dashboard/monthly/:year/:month.
func (s *Service) HandleMonthly(c *gin.Context) {
	year, ok := parseYear(c)
	if !ok {
		return
	}

	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParamError,
			Message:   "Invalid month, expected 1-12",
		})
		return
	}

	view, err := s.Monthly(c.Request.Context(), year, time.Month(month))
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to build monthly view",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleYearly handles GET /v1/dashboard/yearly/:year.
func (s *Service) HandleYearly(c *gin.Context) {
	year, ok := parseYear(c)
	if !ok {
		return
	}

	view, err := s.Yearly(c.Request.Context(), year)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to build yearly view",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

func parseYear(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1970 || year > 9999 {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParamError,
			Message:   "Invalid year",
		})
		return 0, false
	}
	return year, true
}
