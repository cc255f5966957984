package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/pkg/apperror"
)

// mapGeoError translates C1's sentinel errors onto the standard error
// envelope; any other error is left for writeError's generic Internal path.
func mapGeoError(err error) error {
	switch {
	case errors.Is(err, geo.ErrNotFound):
		return apperror.New(apperror.CodeResourceNotFound, err.Error())
	case errors.Is(err, geo.ErrUnavailable):
		return apperror.New(apperror.CodeServiceUnavailable, err.Error())
	case errors.Is(err, geo.ErrQuota):
		return apperror.New(apperror.CodeQuotaExceeded, err.Error())
	default:
		return err
	}
}

// handleRouteTraffic passes an origin/destination pair through to the geo
// provider and returns its per-segment traffic levels, for a dispatcher
// inspecting why a leg is running slow.
func (a *API) handleRouteTraffic(w http.ResponseWriter, r *http.Request) {
	if a.Geo == nil {
		writeError(w, apperror.New(apperror.CodeServiceUnavailable, "geo provider not configured"))
		return
	}

	q := r.URL.Query()
	origin, err := parseCoordinate(q.Get("origin_lat"), q.Get("origin_lon"))
	if err != nil {
		writeError(w, err)
		return
	}
	dest, err := parseCoordinate(q.Get("dest_lat"), q.Get("dest_lon"))
	if err != nil {
		writeError(w, err)
		return
	}

	kind := geo.VehicleKindCar
	if q.Get("vehicle_kind") == string(geo.VehicleKindTruck) {
		kind = geo.VehicleKindTruck
	}

	result, err := a.Geo.Route(r.Context(), origin, dest, nil, kind)
	if err != nil {
		writeError(w, mapGeoError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseCoordinate(latRaw, lonRaw string) (domain.Coordinate, error) {
	if latRaw == "" || lonRaw == "" {
		return domain.Coordinate{}, apperror.NewWithField(apperror.CodeInvalidInput, "lat and lon query parameters are required", "origin_lat")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return domain.Coordinate{}, apperror.NewWithField(apperror.CodeInvalidInput, "lat must be a number", "lat")
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return domain.Coordinate{}, apperror.NewWithField(apperror.CodeInvalidInput, "lon must be a number", "lon")
	}
	return domain.Coordinate{Lat: lat, Lon: lon}, nil
}
