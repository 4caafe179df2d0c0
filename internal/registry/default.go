package registry

import "github.com/speedwagon-io/sensorsim/internal/model"

const (
	SensorTemperature = 1
	SensorVibration   = 2
	SensorDistance    = 3
)

// DefaultDefinitions mirrors the monitoring firmware: a DS18B20 probe, an
// MPU6050 accelerometer and an HC-SR04 level gauge.
func DefaultDefinitions() []model.SensorDefinition {
	return []model.SensorDefinition{
		{
			ID: SensorTemperature, Name: "Temperatura", Unit: "°C",
			Min: 20, Max: 100, Alert: 60, Critical: 80,
			Initial: 30, MaxDelta: 0.8,
			Windows: []model.FaultWindow{
				{From: 50, To: 70, Offset: 3},
				{From: 150, To: 170, Offset: 3},
			},
		},
		{
			ID: SensorVibration, Name: "Vibração", Unit: "g",
			Min: 0.1, Max: 3.0, Alert: 1.0, Critical: 2.0,
			Initial: 0.5, MaxDelta: 0.1,
			Windows: []model.FaultWindow{
				{From: 90, To: 110, Offset: 0.5},
			},
		},
		{
			ID: SensorDistance, Name: "Distância/Nível", Unit: "cm",
			Min: 5, Max: 250, Alert: 10, AlertHigh: 200, Critical: 5, Inverted: true,
			Initial: 150, MaxDelta: 5,
		},
	}
}

func Default() *Registry {
	r, err := New(DefaultDefinitions())
	if err != nil {
		panic("reference sensor registry is invalid: " + err.Error())
	}
	return r
}
