package stub

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Sternrassler/crm-client/internal/store"
	"github.com/Sternrassler/crm-client/pkg/client"
	"github.com/Sternrassler/crm-client/pkg/crm"
	"github.com/Sternrassler/crm-client/pkg/query"
)

type listResponse struct {
	Status     string            `json:"status"`
	Data       []any             `json:"data"`
	Pagination client.Pagination `json:"pagination"`
}

// listHandler serves one page of an entity. The listing and search routes
// share it; both accept the entity's filters.
func listHandler(lister Lister, d crm.Descriptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := positiveInt(c, query.ParamPage, 1)
		if !ok {
			fail(c, http.StatusUnprocessableEntity, "page must be a positive integer")
			return
		}
		perPage, ok := positiveInt(c, query.ParamPerPage, query.DefaultPerPage)
		if !ok {
			fail(c, http.StatusUnprocessableEntity, "per_page must be a positive integer")
			return
		}
		perPage = min(perPage, MaxPerPage)

		filter := make(map[string]string, len(d.Filters))
		for _, name := range d.Filters {
			if v := c.Query(name); !query.IsUnsetFor(name, v) {
				filter[name] = v
			}
		}

		items, total, err := lister.List(c.Request.Context(), d.Name, filter, page, perPage)
		if err != nil {
			if errors.Is(err, store.ErrUnknownFilter) {
				fail(c, http.StatusUnprocessableEntity, err.Error())
				return
			}
			fail(c, http.StatusInternalServerError, "failed to load "+d.Name)
			return
		}

		body, err := json.Marshal(listResponse{
			Status:     "success",
			Data:       items,
			Pagination: paginate(page, perPage, total, len(items)),
		})
		if err != nil {
			fail(c, http.StatusInternalServerError, "failed to encode response")
			return
		}

		sum := sha256.Sum256(body)
		etag := `"` + hex.EncodeToString(sum[:8]) + `"`
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, no-cache")
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}

		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
	}
}

func paginate(page, perPage, total, n int) client.Pagination {
	p := client.Pagination{
		CurrentPage: page,
		LastPage:    max(1, (total+perPage-1)/perPage),
		Total:       total,
		PerPage:     perPage,
	}
	if n > 0 {
		p.From = (page-1)*perPage + 1
		p.To = p.From + n - 1
	}
	return p
}

func positiveInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
