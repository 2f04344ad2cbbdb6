package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestComplianceHandlerValidatePersonRequiresRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewComplianceHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/compliance/people/p-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "p-1"}}

	handler.ValidatePerson(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestComplianceHandlerSweepRejectsBadDates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewComplianceHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/compliance/sweep?from=tomorrow&to=someday", nil)
	c.Request = req

	handler.Sweep(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
