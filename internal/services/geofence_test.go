package services

import (
	"math"
	"testing"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/models"
)

func TestGeofenceAllowance(t *testing.T) {
	cases := []struct {
		name      string
		radiusM   int
		accuracyM float64
		want      float64
	}{
		{"radius within cap", 100, 0, 100},
		{"radius at cap", 1000, 0, 1000},
		{"zero radius falls back to cap", 0, 0, 1000},
		{"negative radius falls back to cap", -50, 0, 1000},
		{"oversized radius clamped to cap", 5000, 0, 1000},
		{"accuracy inflates allowance", 100, 12.5, 112.5},
		{"accuracy inflates fallback too", 0, 30, 1030},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := geofenceAllowanceM(tc.radiusM, tc.accuracyM); got != tc.want {
				t.Errorf("geofenceAllowanceM(%d, %v) = %v, want %v", tc.radiusM, tc.accuracyM, got, tc.want)
			}
		})
	}
}

func TestHaversine(t *testing.T) {
	// Same point.
	if d := haversineM(37.7749, -122.4194, 37.7749, -122.4194); d != 0 {
		t.Errorf("zero distance: got %v", d)
	}
	// One degree of latitude is about 111.2km everywhere.
	d := haversineM(37.0, -122.0, 38.0, -122.0)
	if math.Abs(d-111_195) > 200 {
		t.Errorf("one degree latitude: got %vm, want ~111195m", d)
	}
	// Direction must not matter.
	if a, b := haversineM(37.0, -122.0, 37.5, -121.5), haversineM(37.5, -121.5, 37.0, -122.0); math.Abs(a-b) > 1e-6 {
		t.Errorf("asymmetric distance: %v vs %v", a, b)
	}
}

func TestValidateGeofence(t *testing.T) {
	post := &models.JobPost{
		Latitude:        37.7749,
		Longitude:       -122.4194,
		GeofenceRadiusM: 100,
	}

	onSite := &models.GPSSample{Latitude: 37.7749, Longitude: -122.4194}
	if err := validateGeofence(post, onSite); err != nil {
		t.Errorf("on-site sample rejected: %v", err)
	}

	// ~0.005 degrees of latitude is roughly 550m, well outside 100m.
	offSite := &models.GPSSample{Latitude: 37.7799, Longitude: -122.4194}
	err := validateGeofence(post, offSite)
	if !apperrors.IsGeofenceViolation(err) {
		t.Fatalf("off-site sample: expected geofence violation, got %v", err)
	}
	appErr := err.(*apperrors.AppError)
	if appErr.AllowanceM != 100 {
		t.Errorf("allowance: got %d, want 100", appErr.AllowanceM)
	}
	if appErr.DistanceM < 500 || appErr.DistanceM > 600 {
		t.Errorf("distance: got %dm, want ~550m", appErr.DistanceM)
	}

	// A poor fix widens the allowance enough to pass.
	nearEdge := &models.GPSSample{Latitude: 37.7759, Longitude: -122.4194, AccuracyM: 50}
	if err := validateGeofence(post, nearEdge); err != nil {
		t.Errorf("sample inside inflated allowance rejected: %v", err)
	}
}
