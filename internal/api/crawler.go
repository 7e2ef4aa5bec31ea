package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/ingest"
)

// refFields are the keys of a new-product report that identify the queue entry.
var refFields = []string{"hash", "shop", "url", "requester"}

type reportResponse struct {
	Outcome        string `json:"outcome"`
	ProductID      string `json:"product_id,omitempty"`
	HistoryID      string `json:"history_id,omitempty"`
	ProductCreated bool   `json:"product_created"`
	Resolved       int64  `json:"resolved"`
	Notifications  int    `json:"notifications"`
}

func writeReport(c *gin.Context, res *ingest.Result) {
	body := reportResponse{
		Outcome:        res.Outcome.String(),
		ProductCreated: res.ProductCreated,
		Resolved:       res.Resolved,
		Notifications:  res.Notifications,
	}
	if res.Product != nil {
		body.ProductID = res.Product.ID
	}
	if res.History != nil {
		body.HistoryID = res.History.ID
	}

	status := http.StatusOK
	if res.Outcome == ingest.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, body)
}

// PullQueue handles GET /api/v1/crawler/queue.
func (h *Handler) PullQueue(c *gin.Context) {
	crawlerID, err := subject(c, "crawler")
	if err != nil {
		h.writeError(c, err)
		return
	}

	entries, err := h.coordinator.Pull(c.Request.Context(), crawlerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// ReportExisting handles POST /api/v1/crawler/products/:id/results.
func (h *Handler) ReportExisting(c *gin.Context) {
	crawlerID, err := subject(c, "crawler")
	if err != nil {
		h.writeError(c, err)
		return
	}
	productID, err := parseID("product", c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		h.writeError(c, domain.NewValidationError("", domain.CodeInvalidField, "unreadable body"))
		return
	}
	report, err := ingest.ParseReport(body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.ingestor.ReportExisting(c.Request.Context(), crawlerID, productID, report)
	if err != nil {
		h.writeError(c, err)
		return
	}
	writeReport(c, res)
}

// ReportNew handles POST /api/v1/crawler/queue/results. The body carries
// the queue reference next to the report fields.
func (h *Handler) ReportNew(c *gin.Context) {
	crawlerID, err := subject(c, "crawler")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var fields map[string]json.RawMessage
	if bindErr := c.ShouldBindJSON(&fields); bindErr != nil {
		h.writeError(c, domain.NewValidationError("", domain.CodeInvalidField, "body must be a JSON object"))
		return
	}

	ref, err := splitRef(fields)
	if err != nil {
		h.writeError(c, err)
		return
	}
	report, err := ingest.DecodeReport(fields)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if _, err = parseID("queue entry", ref.Requester); err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.ingestor.ReportNew(c.Request.Context(), crawlerID, ref, report)
	if err != nil {
		h.writeError(c, err)
		return
	}
	writeReport(c, res)
}

// splitRef removes the queue reference keys from fields.
func splitRef(fields map[string]json.RawMessage) (ingest.QueueRef, error) {
	values := make(map[string]string, len(refFields))
	for _, name := range refFields {
		raw, ok := fields[name]
		delete(fields, name)
		if !ok {
			return ingest.QueueRef{}, domain.NewValidationError(name, domain.CodeMissingField, "is required")
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ingest.QueueRef{}, domain.NewValidationError(name, domain.CodeInvalidField, "must be a string")
		}
		values[name] = s
	}

	return ingest.QueueRef{
		Hash:      values["hash"],
		Shop:      values["shop"],
		URL:       values["url"],
		Requester: values["requester"],
	}, nil
}

// OutdatedProducts handles GET /api/v1/crawler/products/outdated.
func (h *Handler) OutdatedProducts(c *gin.Context) {
	maxAge, err := intQuery(c, "max_age_hours")
	if err != nil {
		h.writeError(c, err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		h.writeError(c, err)
		return
	}

	products, err := h.lifecycle.OutdatedProducts(c.Request.Context(), maxAge, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// intQuery reads an optional integer query parameter; absent is 0.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, domain.CodeInvalidField, "must be an integer")
	}
	return v, nil
}
