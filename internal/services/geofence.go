package services

import (
	"math"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

// MaxGeofenceRadiusM caps the configured geofence radius. A missing or
// oversized radius falls back to this cap.
const MaxGeofenceRadiusM = 1000

const earthRadiusM = 6371000.0

// haversineM returns the great-circle distance between two points in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// geofenceAllowanceM is the allowed distance for a sample: the capped
// configured radius inflated by the sample's reported accuracy.
func geofenceAllowanceM(radiusM int, accuracyM float64) float64 {
	r := radiusM
	if r <= 0 || r > MaxGeofenceRadiusM {
		r = MaxGeofenceRadiusM
	}
	return float64(r) + accuracyM
}

// validateGeofence checks a GPS sample against the job site. On violation
// the error reports distance and allowance rounded to whole meters.
func validateGeofence(post *models.JobPost, sample *models.GPSSample) error {
	distance := haversineM(sample.Latitude, sample.Longitude, post.Latitude, post.Longitude)
	allowance := geofenceAllowanceM(post.GeofenceRadiusM, sample.AccuracyM)
	if distance > allowance {
		return apperrors.Geofence(int(math.Round(distance)), int(math.Round(allowance)))
	}
	return nil
}
