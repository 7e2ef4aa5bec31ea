package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// Render builds the message text for one notification.
func Render(kind domain.NotificationKind, product domain.Product, price float64, baseURL string) string {
	title := strings.TrimSpace(product.Title)
	if title == "" {
		title = product.URL
	}

	var headline string
	switch kind {
	case domain.NotificationFirstInStock:
		headline = fmt.Sprintf("%s: first time in stock", title)
	case domain.NotificationBackInStock:
		headline = fmt.Sprintf("%s: back in stock", title)
	default:
		headline = title
	}

	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\nPrice: ")
	b.WriteString(FormatPrice(price))
	b.WriteString("\n")
	b.WriteString(product.URL)
	b.WriteString("\n")
	b.WriteString(DeepLink(baseURL, product.ID))
	return b.String()
}

// FormatPrice prints price in its shortest decimal form.
func FormatPrice(price float64) string {
	if price <= 0 {
		return "unknown"
	}
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// DeepLink is the product page in the web app.
func DeepLink(baseURL, productID string) string {
	return strings.TrimRight(baseURL, "/") + "/products/" + productID
}
