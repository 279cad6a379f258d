package validation

import (
	"fmt"
	"math"
)

// CoordinateError representa un error de validación de coordenadas
type CoordinateError struct {
	Field   string
	Value   float64
	Message string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%s: %s (valor: %.6f)", e.Field, e.Message, e.Value)
}

func checkFinite(v float64, field string) error {
	if math.IsNaN(v) {
		return &CoordinateError{Field: field, Value: v, Message: "valor NaN no permitido"}
	}
	if math.IsInf(v, 0) {
		return &CoordinateError{Field: field, Value: v, Message: "valor infinito no permitido"}
	}
	return nil
}

// ValidateLatitude valida una coordenada de latitud
func ValidateLatitude(lat float64, fieldName string) error {
	if err := checkFinite(lat, fieldName); err != nil {
		return err
	}
	if lat < -90 || lat > 90 {
		return &CoordinateError{
			Field:   fieldName,
			Value:   lat,
			Message: "debe estar entre -90 y 90",
		}
	}
	return nil
}

// ValidateLongitude valida una coordenada de longitud
func ValidateLongitude(lng float64, fieldName string) error {
	if err := checkFinite(lng, fieldName); err != nil {
		return err
	}
	if lng < -180 || lng > 180 {
		return &CoordinateError{
			Field:   fieldName,
			Value:   lng,
			Message: "debe estar entre -180 y 180",
		}
	}
	return nil
}

// ValidateCoordinatePair valida un par de coordenadas (lat, lng)
func ValidateCoordinatePair(lat, lng float64, prefix string) error {
	if err := ValidateLatitude(lat, prefix+"_lat"); err != nil {
		return err
	}
	return ValidateLongitude(lng, prefix+"_lng")
}
