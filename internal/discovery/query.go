package discovery

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
)

// ParseQuery reads a nearby request from URL query parameters. Coordinates
// and rating must parse when present; radius and paging fall back to their
// defaults when they do not. maxDistance and limit are accepted as aliases of
// radiusKm and pageSize.
func ParseQuery(q url.Values) (Request, error) {
	const op = "discovery.ParseQuery"
	var r Request
	var err error

	if r.Lat, err = optionalFloat(q.Get("lat")); err != nil {
		return r, apperr.InvalidArgument(op, "invalid latitude")
	}
	if r.Lng, err = optionalFloat(q.Get("lng")); err != nil {
		return r, apperr.InvalidArgument(op, "invalid longitude")
	}
	if r.Rating, err = optionalFloat(q.Get("rating")); err != nil {
		return r, apperr.InvalidArgument(op, "rating must be a number between 0 and 5")
	}

	r.RadiusKm = lenientFloat(first(q, "radiusKm", "maxDistance"))
	r.Page = lenientInt(q.Get("page"))
	r.PageSize = lenientInt(first(q, "pageSize", "limit"))

	for _, v := range q["category"] {
		r.Categories = append(r.Categories, strings.Split(v, ",")...)
	}
	r.Organic = q.Get("organic") == "true"
	r.Local = q.Get("local") == "true"
	r.Search = q.Get("search")
	return r, nil
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func optionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func lenientFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func lenientInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
