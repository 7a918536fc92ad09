package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/lahm-market/api/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds limit")
)

var supportedLanguages = language.NewMatcher([]language.Tag{
	language.English,
	language.Arabic,
})

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// parsePagination reads page_size and page_token query parameters, clamping
// the size to the supported window.
func parsePagination(r *http.Request) (domain.Pagination, error) {
	pager := domain.Pagination{PageSize: defaultPageSize}

	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return domain.Pagination{}, errors.New("page_size must be a positive integer")
		}
		if size > maxPageSize {
			size = maxPageSize
		}
		pager.PageSize = size
	}

	pager.PageToken = strings.TrimSpace(r.URL.Query().Get("page_token"))
	return pager, nil
}

// requestLanguage matches the Accept-Language header against the supported
// set and returns the BCP-47 base ("en" or "ar"). English wins on ties.
func requestLanguage(r *http.Request) string {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return "en"
	}
	tag, _, _ := supportedLanguages.Match(tags...)
	base, _ := tag.Base()
	return base.String()
}

type textPayload struct {
	EN string `json:"en"`
	AR string `json:"ar,omitempty"`
}

func buildTextPayload(text domain.Text) textPayload {
	return textPayload{EN: text.EN, AR: text.AR}
}

type geoPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func buildGeoPayload(point domain.GeoPoint) geoPayload {
	return geoPayload{Lat: point.Lat, Lng: point.Lng}
}

type addressPayload struct {
	Recipient  string      `json:"recipient"`
	Line1      string      `json:"line1"`
	Line2      string      `json:"line2,omitempty"`
	City       string      `json:"city"`
	District   string      `json:"district,omitempty"`
	PostalCode string      `json:"postal_code,omitempty"`
	Phone      string      `json:"phone"`
	Location   *geoPayload `json:"location,omitempty"`
}

func buildAddressPayload(address domain.Address) addressPayload {
	payload := addressPayload{
		Recipient:  address.Recipient,
		Line1:      address.Line1,
		City:       address.City,
		PostalCode: address.PostalCode,
		Phone:      address.Phone,
	}
	if address.Line2 != nil {
		payload.Line2 = *address.Line2
	}
	if address.District != nil {
		payload.District = *address.District
	}
	if address.Location != nil {
		loc := buildGeoPayload(*address.Location)
		payload.Location = &loc
	}
	return payload
}

func (p addressPayload) toDomain() domain.Address {
	address := domain.Address{
		Recipient:  strings.TrimSpace(p.Recipient),
		Line1:      strings.TrimSpace(p.Line1),
		City:       strings.TrimSpace(p.City),
		PostalCode: strings.TrimSpace(p.PostalCode),
		Phone:      strings.TrimSpace(p.Phone),
	}
	if line2 := strings.TrimSpace(p.Line2); line2 != "" {
		address.Line2 = &line2
	}
	if district := strings.TrimSpace(p.District); district != "" {
		address.District = &district
	}
	if p.Location != nil {
		address.Location = &domain.GeoPoint{Lat: p.Location.Lat, Lng: p.Location.Lng}
	}
	return address
}

func stringPtrValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
