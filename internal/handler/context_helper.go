package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/models"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

const dateLayout = "2006-01-02"

// dateRangeQuery parses the from/to query parameters every range-scoped
// endpoint shares.
func dateRangeQuery(c *gin.Context) (models.DateRange, error) {
	from, err := time.Parse(dateLayout, c.Query("from"))
	if err != nil {
		return models.DateRange{}, appErrors.Clone(appErrors.ErrValidation, "from must be a YYYY-MM-DD date")
	}
	to, err := time.Parse(dateLayout, c.Query("to"))
	if err != nil {
		return models.DateRange{}, appErrors.Clone(appErrors.ErrValidation, "to must be a YYYY-MM-DD date")
	}
	return models.DateRange{Start: from, End: to}, nil
}

// dateQuery parses one optional YYYY-MM-DD query parameter.
func dateQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must be a YYYY-MM-DD date")
	}
	return &t, nil
}
