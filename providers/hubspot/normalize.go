package hubspot

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-crm-connect/core"
)

type contactPage struct {
	Results []contactRecord `json:"results"`
}

type contactRecord struct {
	ID         string            `json:"id"`
	Properties contactProperties `json:"properties"`
	CreatedAt  string            `json:"createdAt"`
	UpdatedAt  string            `json:"updatedAt"`
}

type contactProperties struct {
	FirstName        string `json:"firstname"`
	LastName         string `json:"lastname"`
	Email            string `json:"email"`
	CreateDate       string `json:"createdate"`
	LastModifiedDate string `json:"lastmodifieddate"`
}

type apiError struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

var naiveTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func normalizeContactPage(body []byte, itemType string) (core.ItemPage, error) {
	var page contactPage
	if err := json.Unmarshal(body, &page); err != nil {
		return core.ItemPage{}, core.ProviderError(http.StatusBadGateway, "decode contacts response: "+err.Error())
	}
	out := core.ItemPage{Items: make([]core.IntegrationItem, 0, len(page.Results))}
	for _, record := range page.Results {
		item, warnings := normalizeContact(record, itemType)
		out.Items = append(out.Items, item)
		out.Warnings = append(out.Warnings, warnings...)
	}
	return out, nil
}

func normalizeContact(record contactRecord, itemType string) (core.IntegrationItem, []error) {
	var warnings []error
	created, err := parseTimestamp("createdate", firstNonEmpty(record.Properties.CreateDate, record.CreatedAt))
	if err != nil {
		warnings = append(warnings, err)
	}
	modified, err := parseTimestamp("lastmodifieddate", firstNonEmpty(record.Properties.LastModifiedDate, record.UpdatedAt))
	if err != nil {
		warnings = append(warnings, err)
	}
	return core.IntegrationItem{
		ID:               record.ID,
		Type:             itemType,
		Name:             contactName(record),
		CreationTime:     created,
		LastModifiedTime: modified,
	}, warnings
}

func contactName(record contactRecord) string {
	first := strings.TrimSpace(record.Properties.FirstName)
	last := strings.TrimSpace(record.Properties.LastName)
	if first != "" || last != "" {
		return strings.TrimSpace(first + " " + last)
	}
	if email := strings.TrimSpace(record.Properties.Email); email != "" {
		return email
	}
	return fmt.Sprintf("Contact %s", record.ID)
}

// parseTimestamp reads ISO-8601 values. A trailing Z is stripped and the
// remainder read as UTC; explicit offsets are honoured.
func parseTimestamp(field string, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	naive := strings.TrimSuffix(value, "Z")
	for _, layout := range naiveTimestampLayouts {
		if parsed, err := time.ParseInLocation(layout, naive, time.UTC); err == nil {
			return &parsed, nil
		}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, core.MalformedTimestampError(field, value, err)
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func describeAPIError(body []byte) string {
	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil && strings.TrimSpace(decoded.Message) != "" {
		return strings.TrimSpace(decoded.Message)
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 256 {
		return text
	}
	return "contacts request failed"
}
