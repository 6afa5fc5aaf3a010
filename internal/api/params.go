package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/wormworks/agentic-worm/internal/memory"
)

// locationFromQuery parses x/y/z query parameters into a Location.
func locationFromQuery(r *http.Request) (memory.Location, error) {
	q := r.URL.Query()
	if q.Get("x") == "" || q.Get("y") == "" {
		return memory.Location{}, errors.New("x and y query parameters are required")
	}
	x, err := strconv.ParseFloat(q.Get("x"), 64)
	if err != nil {
		return memory.Location{}, errors.New("invalid x coordinate")
	}
	y, err := strconv.ParseFloat(q.Get("y"), 64)
	if err != nil {
		return memory.Location{}, errors.New("invalid y coordinate")
	}
	loc := memory.Location{X: x, Y: y}
	if zs := q.Get("z"); zs != "" {
		z, err := strconv.ParseFloat(zs, 64)
		if err != nil {
			return memory.Location{}, errors.New("invalid z coordinate")
		}
		loc.Z = z
	}
	return loc, nil
}

func floatQuery(r *http.Request, name string, fallback float64) float64 {
	if v := r.URL.Query().Get(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func intQuery(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
