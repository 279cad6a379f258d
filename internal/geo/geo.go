package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

// EarthRadiusMeters radio medio de la Tierra usado por Haversine
const EarthRadiusMeters = 6371000

// CellPrecision ~150m x 150m, suficiente para agrupar unidades por zona
const CellPrecision = 7

// DistanceMeters calcula la distancia de gran círculo (Haversine) en metros.
// Puntos idénticos retornan 0. El término intermedio se acota a [0,1] para
// que errores de redondeo en puntos antipodales no produzcan NaN.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Cell retorna el geohash de la coordenada con CellPrecision caracteres
func Cell(lat, lng float64) string {
	return geohash.EncodeWithPrecision(lat, lng, CellPrecision)
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
