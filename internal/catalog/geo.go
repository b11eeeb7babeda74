package catalog

import "math"

// EarthRadiusKm matches the radius used to convert search distances to radians.
const EarthRadiusKm = 6378.1

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceKm is the great-circle (haversine) distance between a and b.
func DistanceKm(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BoundingBox covers every point within radiusKm of center. WrapsLng is set
// when the longitude range cannot be expressed as a single interval (poles or
// antimeridian); callers then skip the longitude pre-filter.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	WrapsLng       bool
}

func NewBoundingBox(center Point, radiusKm float64) BoundingBox {
	dLat := toDeg(radiusKm / EarthRadiusKm)
	box := BoundingBox{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
	}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		box.MinLng, box.MaxLng, box.WrapsLng = -180, 180, true
		return box
	}
	dLng := toDeg(math.Asin(math.Min(1, math.Sin(radiusKm/EarthRadiusKm)/math.Cos(toRad(center.Lat)))))
	box.MinLng = center.Lng - dLng
	box.MaxLng = center.Lng + dLng
	if box.MinLng < -180 || box.MaxLng > 180 {
		box.MinLng, box.MaxLng, box.WrapsLng = -180, 180, true
	}
	return box
}
