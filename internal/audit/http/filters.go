package audithttp

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/firmdesk/firmdesk/internal/audit"
	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/shared"
)

const (
	dateLayout       = "2006-01-02"
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// timelineQuery adalah bentuk mentah query string sebelum divalidasi.
type timelineQuery struct {
	From     string `validate:"omitempty,datetime=2006-01-02"`
	To       string `validate:"omitempty,datetime=2006-01-02"`
	Actor    string `validate:"omitempty,max=64"`
	Entity   string `validate:"omitempty,max=64"`
	Action   string `validate:"omitempty,audit_action"`
	Page     string `validate:"omitempty,number"`
	PageSize string `validate:"omitempty,number"`
}

func newQueryValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("audit_action", func(fl validator.FieldLevel) bool {
		return shared.KnownAuditAction(fl.Field().String())
	})
	return v
}

func readQuery(values url.Values) timelineQuery {
	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }
	return timelineQuery{
		From:     get("from"),
		To:       get("to"),
		Actor:    get("actor"),
		Entity:   get("entity"),
		Action:   get("action"),
		Page:     get("page"),
		PageSize: get("page_size"),
	}
}

// parseFilters turns the query string into timeline filters. to defaults to today, from to
// seven days before to, and the range may not exceed 90 days.
func (h *Handler) parseFilters(values url.Values) (audit.TimelineFilters, error) {
	q := readQuery(values)
	if err := h.validate.Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return audit.TimelineFilters{}, validationError{field: strings.ToLower(fieldErrs[0].Field())}
		}
		return audit.TimelineFilters{}, validationError{field: "query"}
	}

	to := h.now().UTC().Truncate(24 * time.Hour)
	if q.To != "" {
		to, _ = time.Parse(dateLayout, q.To)
	}
	from := to.Add(-defaultDateRange)
	if q.From != "" {
		from, _ = time.Parse(dateLayout, q.From)
	}
	if from.After(to) || to.Sub(from) > maxDateRange {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}

	page, err := positive(q.Page, 1)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "page"}
	}
	pageSize, err := positive(q.PageSize, 0)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "page_size"}
	}

	return audit.TimelineFilters{
		From:     from,
		To:       to,
		Actor:    q.Actor,
		Entity:   q.Entity,
		Action:   q.Action,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func positive(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return "invalid " + v.field
}

// Is maps filter errors onto the generic validation sentinel.
func (validationError) Is(target error) bool {
	return target == httpx.ErrValidation
}
